// Package backpack Backpack Exchange REST 客户端：公共行情接口和 ed25519 签名的账户接口。
package backpack

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/gopack/pkg/cache"
	"github.com/betbot/gopack/pkg/logger"
	"github.com/betbot/gopack/pkg/pause"
	"github.com/betbot/gopack/pkg/ratelimit"
	sdkhttp "github.com/betbot/gopack/pkg/sdk/http"
)

// DefaultBaseURL 正式环境
const DefaultBaseURL = "https://api.backpack.exchange"

// decimalsTTL 精度很少变化，缓存较久
const decimalsTTL = 30 * time.Minute

var sharedDecimals = cache.NewInMemoryCache[string, int](decimalsTTL)

// Options 客户端选项，零值可用
type Options struct {
	BaseURL  string
	Proxy    string
	Timeout  time.Duration
	Limiter  ratelimit.RateLimiter
	Decimals *cache.InMemoryCache[string, int]
	Sleep    pause.Sleeper
	Log      *logrus.Entry
}

// Client 公共行情接口
type Client struct {
	http     *sdkhttp.Client
	decimals *cache.InMemoryCache[string, int]
	sleep    pause.Sleeper
	log      *logrus.Entry
}

// NewClient 创建公共客户端
func NewClient(opts Options) *Client {
	base := opts.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	httpOpts := []sdkhttp.Option{sdkhttp.WithProxy(opts.Proxy)}
	if opts.Timeout > 0 {
		httpOpts = append(httpOpts, sdkhttp.WithTimeout(opts.Timeout))
	}
	if opts.Limiter != nil {
		httpOpts = append(httpOpts, sdkhttp.WithLimiter(opts.Limiter))
	}

	c := &Client{
		http:     sdkhttp.NewClient(base, httpOpts...),
		decimals: opts.Decimals,
		sleep:    opts.Sleep,
		log:      opts.Log,
	}
	if c.decimals == nil {
		c.decimals = sharedDecimals
	}
	if c.sleep == nil {
		c.sleep = pause.Sleep
	}
	if c.log == nil {
		c.log = logger.WithField("client", "BackpackClient")
	}
	return c
}

// GetTokenPrice 最新成交价
func (c *Client) GetTokenPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	var out struct {
		LastPrice decimal.Decimal `json:"lastPrice"`
	}
	if err := c.http.Get(ctx, "/api/v1/ticker", map[string]any{"symbol": symbol}, &out); err != nil {
		return decimal.Zero, fmt.Errorf("get price for %s: %w", symbol, err)
	}
	if !out.LastPrice.IsPositive() {
		return decimal.Zero, fmt.Errorf("get price for %s: invalid price %s", symbol, out.LastPrice)
	}
	c.log.Debugf("Current price for %s: %s", symbol, out.LastPrice)
	return out.LastPrice, nil
}

// GetOrderBookDepth 订单簿深度
func (c *Client) GetOrderBookDepth(ctx context.Context, symbol string) (*OrderBook, error) {
	var book OrderBook
	if err := c.http.Get(ctx, "/api/v1/depth", map[string]any{"symbol": symbol}, &book); err != nil {
		return nil, fmt.Errorf("get order book for %s: %w", symbol, err)
	}
	return &book, nil
}

// GetTokenDecimals 用最优卖单数量的小数位数推断下单精度
func (c *Client) GetTokenDecimals(ctx context.Context, symbol string) (int, error) {
	return c.decimals.GetOrLoad(symbol, decimalsTTL, func() (int, error) {
		book, err := c.GetOrderBookDepth(ctx, symbol)
		if err != nil {
			return 0, err
		}
		if len(book.Asks) == 0 || len(book.Asks[0]) < 2 {
			return 0, fmt.Errorf("%w: no asks for %s", ErrEmptyBook, symbol)
		}
		return fractionDigits(book.Asks[0][1]), nil
	})
}

func fractionDigits(s string) int {
	if i := strings.IndexByte(s, '.'); i >= 0 {
		return len(s) - i - 1
	}
	return 0
}

// GetMarkets 以 USDC 计价的交易对
func (c *Client) GetMarkets(ctx context.Context) ([]Market, error) {
	var markets []Market
	if err := c.http.Get(ctx, "/api/v1/markets", nil, &markets); err != nil {
		return nil, fmt.Errorf("get markets: %w", err)
	}
	usdc := make([]Market, 0, len(markets))
	for _, m := range markets {
		if m.QuoteSymbol == "USDC" {
			usdc = append(usdc, m)
		}
	}
	c.log.Infof("Found %d USDC markets", len(usdc))
	return usdc, nil
}

// GetUSDCSymbols 返回现货（X_USDC）和永续（X_USDC_PERP）交易对
func (c *Client) GetUSDCSymbols(ctx context.Context) (spot, perp []string, err error) {
	markets, err := c.GetMarkets(ctx)
	if err != nil {
		return nil, nil, err
	}
	for _, m := range markets {
		switch {
		case strings.HasSuffix(m.Symbol, "_USDC_PERP"):
			perp = append(perp, m.Symbol)
		case strings.HasSuffix(m.Symbol, "_USDC"):
			spot = append(spot, m.Symbol)
		}
	}
	c.log.Infof("Found %d spot markets and %d perpetual futures markets", len(spot), len(perp))
	return spot, perp, nil
}
