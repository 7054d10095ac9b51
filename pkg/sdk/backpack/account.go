package backpack

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/betbot/gopack/pkg/logger"
	sdkhttp "github.com/betbot/gopack/pkg/sdk/http"
)

// Account 带签名的账户接口，一个 API secret 对应一个 Account
type Account struct {
	*Client
	signer *Signer
	window int64
	now    func() time.Time
}

// NewAccount secret 为 base64 编码的 ed25519 种子
func NewAccount(secret string, opts Options) (*Account, error) {
	signer, err := NewSigner(secret)
	if err != nil {
		return nil, err
	}
	if opts.Log == nil {
		opts.Log = logger.ForAccount("backpack", signer.PublicKey())
	}
	return &Account{
		Client: NewClient(opts),
		signer: signer,
		window: DefaultWindow,
		now:    time.Now,
	}, nil
}

// PublicKey base64 公钥
func (a *Account) PublicKey() string {
	return a.signer.PublicKey()
}

// signed 发送签名请求：GET 的参数放在 query，POST 的参数即请求体
func (a *Account) signed(ctx context.Context, method, path, instruction string, params map[string]any, out any) error {
	headers := a.signer.Headers(instruction, params, a.now().UnixMilli(), a.window)
	opt := &sdkhttp.RequestOptions{Headers: headers}
	if method == http.MethodGet {
		opt.Params = params
	} else if params != nil {
		opt.Data = params
	}
	_, err := a.http.Do(ctx, method, path, opt, out)
	return err
}

// GetBalances 全部币种余额
func (a *Account) GetBalances(ctx context.Context) (map[string]Balance, error) {
	balances := map[string]Balance{}
	if err := a.signed(ctx, http.MethodGet, "/api/v1/capital", "balanceQuery", nil, &balances); err != nil {
		return nil, fmt.Errorf("get balances: %w", err)
	}
	return balances, nil
}

// GetBalance 单个币种可用余额，没有该币种时为 0
func (a *Account) GetBalance(ctx context.Context, symbol string) (decimal.Decimal, error) {
	balances, err := a.GetBalances(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	b, ok := balances[symbol]
	if !ok {
		a.log.Infof("No balance for %s found", symbol)
		return decimal.Zero, nil
	}
	a.log.Infof("Available balance for %s is %s", symbol, b.Available)
	return b.Available, nil
}

// limitData 取盘口价格并按精度计算数量：买单吃最优卖价，卖单吃最优买价
func (a *Account) limitData(ctx context.Context, symbol string, amountUSD decimal.Decimal, side Side) (string, decimal.Decimal, error) {
	book, err := a.GetOrderBookDepth(ctx, symbol)
	if err != nil {
		return "", decimal.Zero, err
	}

	var level []string
	if side == Bid {
		if len(book.Asks) > 0 {
			level = book.Asks[0]
		}
	} else if len(book.Bids) > 0 {
		level = book.Bids[len(book.Bids)-1]
	}
	if len(level) == 0 {
		return "", decimal.Zero, fmt.Errorf("%w: %s %s", ErrEmptyBook, symbol, side)
	}
	price, err := decimal.NewFromString(level[0])
	if err != nil || !price.IsPositive() {
		return "", decimal.Zero, fmt.Errorf("bad price %q for %s", level[0], symbol)
	}

	places, err := a.GetTokenDecimals(ctx, symbol)
	if err != nil {
		places = 8
	}
	qty := amountUSD.Div(price).RoundBank(int32(places))
	if qty.IsZero() && side == Bid {
		return "", decimal.Zero, ErrAmountTooSmall
	}
	return level[0], qty, nil
}

func (a *Account) executeOrder(ctx context.Context, payload map[string]any) (*Order, error) {
	var order Order
	if err := a.signed(ctx, http.MethodPost, "/api/v1/order", "orderExecute", payload, &order); err != nil {
		return nil, fmt.Errorf("execute %s %s order on %s: %w", payload["orderType"], payload["side"], payload["symbol"], err)
	}
	return &order, nil
}

// PostLimitOrder 以盘口价挂限价单；amountToken 非零时直接使用该数量
func (a *Account) PostLimitOrder(ctx context.Context, symbol string, side Side, amountUSD, amountToken decimal.Decimal, tif TimeInForce) (*Order, error) {
	price, qty, err := a.limitData(ctx, symbol, amountUSD, side)
	if err != nil {
		return nil, err
	}
	if !amountToken.IsZero() {
		qty = amountToken
	}
	return a.executeOrder(ctx, map[string]any{
		"orderType":   "Limit",
		"price":       price,
		"quantity":    qty.String(),
		"side":        side,
		"symbol":      symbol,
		"timeInForce": tif,
	})
}

// PostLimitSellOrder 以最优买价卖出指定数量的代币
func (a *Account) PostLimitSellOrder(ctx context.Context, symbol string, amountToken decimal.Decimal, tif TimeInForce) (*Order, error) {
	places, err := a.GetTokenDecimals(ctx, symbol)
	if err != nil || places == 0 {
		places = 6
	}
	qty := amountToken.RoundBank(int32(places))

	current, err := a.GetTokenPrice(ctx, symbol)
	if err != nil {
		return nil, err
	}
	price, _, err := a.limitData(ctx, symbol, current.Mul(qty), Ask)
	if err != nil {
		return nil, err
	}
	return a.executeOrder(ctx, map[string]any{
		"orderType":   "Limit",
		"price":       price,
		"quantity":    qty.String(),
		"side":        Ask,
		"symbol":      symbol,
		"timeInForce": tif,
	})
}

// OpenFuturesPosition 市价开仓，返回是否立即成交
func (a *Account) OpenFuturesPosition(ctx context.Context, symbol string, side Side, amountUSD decimal.Decimal) (bool, error) {
	_, qty, err := a.limitData(ctx, symbol, amountUSD, side)
	if err != nil {
		return false, err
	}
	order, err := a.executeOrder(ctx, map[string]any{
		"orderType":   "Market",
		"quantity":    qty.String(),
		"side":        side,
		"symbol":      symbol,
		"timeInForce": GTC,
		"reduceOnly":  false,
	})
	if err != nil {
		return false, err
	}
	return a.filled(order), nil
}

// CloseFuturesPosition 反方向 reduceOnly 市价单平仓
func (a *Account) CloseFuturesPosition(ctx context.Context, symbol string, openedSide Side, size decimal.Decimal) (bool, error) {
	a.log.Infof("closing position on %s", symbol)
	order, err := a.executeOrder(ctx, map[string]any{
		"orderType":   "Market",
		"quantity":    size.Abs().String(),
		"side":        openedSide.Opposite(),
		"symbol":      symbol,
		"timeInForce": GTC,
		"reduceOnly":  true,
	})
	if err != nil {
		return false, err
	}
	return a.filled(order), nil
}

func (a *Account) filled(order *Order) bool {
	if order.Status == StatusFilled {
		logger.Success("%s: %s %s order filled", a.PublicKey()[:8], order.Symbol, order.Side)
		return true
	}
	a.log.Warnf("order failed to fill - status %s, id %s", order.Status, order.ID)
	return false
}

// GetOpenPositions 当前合约持仓；接口可能返回数组，也可能返回 {"positions": [...]}
func (a *Account) GetOpenPositions(ctx context.Context) ([]Position, error) {
	var raw json.RawMessage
	if err := a.signed(ctx, http.MethodGet, "/api/v1/position", "positionQuery", nil, &raw); err != nil {
		return nil, fmt.Errorf("get positions: %w", err)
	}
	return decodePositions(raw)
}

func decodePositions(raw json.RawMessage) ([]Position, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var list []Position
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}
	var wrapped struct {
		Positions []Position `json:"positions"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("decode positions: %w", err)
	}
	return wrapped.Positions, nil
}

// CloseAllPositions 平掉全部持仓；没有持仓时返回 false
func (a *Account) CloseAllPositions(ctx context.Context) (bool, error) {
	positions, err := a.GetOpenPositions(ctx)
	if err != nil {
		return false, err
	}
	if len(positions) == 0 {
		a.log.Info("No positions to close")
		return false, nil
	}

	for i, p := range positions {
		ok, err := a.CloseFuturesPosition(ctx, p.Symbol, p.Side(), p.NetQuantity)
		if err != nil {
			return false, err
		}
		if ok && i < len(positions)-1 {
			if err := a.sleep(ctx, time.Second); err != nil {
				return false, err
			}
		}
	}
	return true, nil
}

// CheckAllPositions 打印当前持仓
func (a *Account) CheckAllPositions(ctx context.Context) ([]Position, error) {
	positions, err := a.GetOpenPositions(ctx)
	if err != nil {
		return nil, err
	}
	if len(positions) == 0 {
		a.log.Info("No open positions")
	}
	for _, p := range positions {
		dir := "SHORT"
		if p.Side() == Bid {
			dir = "LONG"
		}
		a.log.Infof("%s %s position - size: %s", p.Symbol, dir, p.NetQuantity.Abs())
	}
	return positions, nil
}

// Withdraw 提币，数量向下截断到 2 位小数
func (a *Account) Withdraw(ctx context.Context, w Withdrawal) (map[string]any, error) {
	if w.Address == "" {
		return nil, ErrNoAddress
	}
	if w.Blockchain == "" {
		w.Blockchain = "Solana"
	}
	if w.Symbol == "" {
		w.Symbol = "USDC"
	}
	qty := w.Quantity.Truncate(2)
	if !qty.IsPositive() {
		return nil, fmt.Errorf("withdrawal amount is too small: %s %s", w.Quantity, w.Symbol)
	}

	a.log.Infof("Withdrawing %s %s to %s on %s blockchain", qty.StringFixed(2), w.Symbol, w.Address, w.Blockchain)
	out := map[string]any{}
	err := a.signed(ctx, http.MethodPost, "/wapi/v1/capital/withdrawals", "withdraw", map[string]any{
		"address":    w.Address,
		"blockchain": w.Blockchain,
		"quantity":   qty.StringFixed(2),
		"symbol":     w.Symbol,
	}, &out)
	if err != nil {
		if sdkhttp.IsStatus(err, http.StatusForbidden) {
			a.log.Error("Access forbidden. This could be due to insufficient permissions or 2FA requirements.")
		}
		return nil, fmt.Errorf("withdraw %s: %w", w.Symbol, err)
	}
	logger.Success("Successfully withdrawn %s %s to %s", qty.StringFixed(2), w.Symbol, w.Address)
	return out, nil
}

// WithdrawPercent 提取余额的 percent%（0-100），数量保留 4 位
func (a *Account) WithdrawPercent(ctx context.Context, percent decimal.Decimal, blockchain, symbol, address string) (map[string]any, error) {
	if address == "" {
		return nil, ErrNoAddress
	}
	balance, err := a.GetBalance(ctx, symbol)
	if err != nil {
		return nil, err
	}
	qty := balance.Mul(percent).Div(decimal.NewFromInt(100)).Round(4)
	if !qty.IsPositive() {
		return nil, fmt.Errorf("calculated withdrawal amount is too small: %s %s", qty, symbol)
	}
	return a.Withdraw(ctx, Withdrawal{Address: address, Blockchain: blockchain, Symbol: symbol, Quantity: qty})
}

// GetDepositAddress 指定链的充值地址
func (a *Account) GetDepositAddress(ctx context.Context, chain string) (string, error) {
	if chain == "" {
		chain = "Solana"
	}
	var out DepositAddress
	err := a.signed(ctx, http.MethodGet, "/wapi/v1/capital/deposit/address", "depositAddressQuery",
		map[string]any{"blockchain": chain}, &out)
	if err != nil {
		return "", fmt.Errorf("get deposit address: %w", err)
	}
	if out.Address == "" {
		return "", fmt.Errorf("get deposit address: empty address for %s", chain)
	}
	logger.Success("Successfully retrieved deposit address for %s", chain)
	return out.Address, nil
}

// GetOverallBalance USDC 加上其他代币按最新价折算的总值，保留 2 位
func (a *Account) GetOverallBalance(ctx context.Context) (decimal.Decimal, error) {
	balances, err := a.GetBalances(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for token, b := range balances {
		if token == "USDC" {
			total = total.Add(b.Available)
			continue
		}
		if b.Available.IsZero() {
			continue
		}
		price, err := a.GetTokenPrice(ctx, token+"_USDC")
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(b.Available.Mul(price))
		if err := a.sleep(ctx, time.Second); err != nil {
			return decimal.Zero, err
		}
	}
	return total.Round(2), nil
}
