// Package tasks 单个钱包的任务实现，每个任务返回 (completed, err)。
// 只有 completed 为 true 时任务才会在数据库中标记完成，否则下次运行重试。
package tasks

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/gopack/internal/domain"
	"github.com/betbot/gopack/pkg/config"
	"github.com/betbot/gopack/pkg/logger"
	"github.com/betbot/gopack/pkg/pause"
	"github.com/betbot/gopack/pkg/sdk/backpack"
	"github.com/betbot/gopack/pkg/sdk/okx"
)

var (
	// ErrUnknownTask 任务名不在已知列表中
	ErrUnknownTask = errors.New("tasks: unknown task")
	// ErrNoRecipient OKX_DEPOSIT 需要 recipients.txt 中的地址
	ErrNoRecipient = errors.New("tasks: wallet has no recipient address")
	// ErrNoOKX 未配置 OKX 凭证
	ErrNoOKX = errors.New("tasks: okx client is not configured")
)

// Exchange 任务用到的 Backpack 账户接口，*backpack.Account 满足该接口
type Exchange interface {
	PublicKey() string
	GetBalance(ctx context.Context, symbol string) (decimal.Decimal, error)
	GetBalances(ctx context.Context) (map[string]backpack.Balance, error)
	GetTokenPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
	GetTokenDecimals(ctx context.Context, symbol string) (int, error)
	GetUSDCSymbols(ctx context.Context) (spot, perp []string, err error)
	PostLimitOrder(ctx context.Context, symbol string, side backpack.Side, amountUSD, amountToken decimal.Decimal, tif backpack.TimeInForce) (*backpack.Order, error)
	PostLimitSellOrder(ctx context.Context, symbol string, amountToken decimal.Decimal, tif backpack.TimeInForce) (*backpack.Order, error)
	OpenFuturesPosition(ctx context.Context, symbol string, side backpack.Side, amountUSD decimal.Decimal) (bool, error)
	CheckAllPositions(ctx context.Context) ([]backpack.Position, error)
	CloseAllPositions(ctx context.Context) (bool, error)
	GetDepositAddress(ctx context.Context, chain string) (string, error)
	Withdraw(ctx context.Context, w backpack.Withdrawal) (map[string]any, error)
}

// Dialer 为钱包创建交易所账户（私钥 + 代理）
type Dialer func(w domain.Wallet) (Exchange, error)

// BackpackDialer 用 opts 作为模板，按钱包设置代理
func BackpackDialer(opts backpack.Options) Dialer {
	return func(w domain.Wallet) (Exchange, error) {
		o := opts
		o.Proxy = w.Proxy.URL()
		return backpack.NewAccount(w.PrivateKey, o)
	}
}

// CEX OKX 资金接口，*okx.Client 满足该接口
type CEX interface {
	TransferAllSubToMain(ctx context.Context, ccy string) (decimal.Decimal, error)
	Withdraw(ctx context.Context, req okx.WithdrawRequest) (string, error)
}

// Executor 按任务名分发到具体实现
type Executor struct {
	cfg   *config.Config
	dial  Dialer
	cex   CEX
	rnd   config.Rand
	sleep pause.Sleeper
}

// Option Executor 选项
type Option func(*Executor)

// WithCEX 设置 OKX 客户端
func WithCEX(c CEX) Option {
	return func(e *Executor) { e.cex = c }
}

// WithRand 设置随机源
func WithRand(r config.Rand) Option {
	return func(e *Executor) { e.rnd = r }
}

// WithSleeper 设置停顿实现，测试中使用 pause.None
func WithSleeper(s pause.Sleeper) Option {
	return func(e *Executor) { e.sleep = s }
}

// NewExecutor 创建任务执行器
func NewExecutor(cfg *config.Config, dial Dialer, opts ...Option) *Executor {
	e := &Executor{
		cfg:   cfg,
		dial:  dial,
		rnd:   NewRand(time.Now().UnixNano()),
		sleep: pause.Sleep,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run 执行钱包的一个任务
func (e *Executor) Run(ctx context.Context, task domain.TaskName, w domain.Wallet) (bool, error) {
	ex, err := e.dial(w)
	if err != nil {
		return false, fmt.Errorf("%s: %w", w.Masked(), err)
	}
	log := logger.ForAccount(string(task), ex.PublicKey())

	switch task {
	case domain.TaskOKXWithdraw:
		return e.okxWithdraw(ctx, ex, log)
	case domain.TaskBackpackSpot:
		return e.spot(ctx, ex, log)
	case domain.TaskBackpackFutures:
		return e.futures(ctx, ex, log)
	case domain.TaskRandomSwaps:
		return e.randomSwaps(ctx, ex, log)
	case domain.TaskCloseAll:
		return e.closeAll(ctx, ex, log)
	case domain.TaskSwapAllToUSDC:
		return e.swapAllToUSDC(ctx, ex, log)
	case domain.TaskGetTickers:
		return e.tickers(ctx, ex, log)
	case domain.TaskOKXDeposit:
		return e.okxDeposit(ctx, ex, w.Recipient, log)
	default:
		return false, fmt.Errorf("%w: %s", ErrUnknownTask, task)
	}
}

// pauseModules 模块之间的随机停顿
func (e *Executor) pauseModules(ctx context.Context, log *logrus.Entry) error {
	d := e.cfg.General.PauseBetweenModules.Seconds(e.rnd)
	log.Infof("Sleeping %v...", d)
	return e.sleep(ctx, d)
}

func (e *Executor) pick(list []string) string {
	return list[e.rnd.Intn(len(list))]
}

func (e *Executor) decimalIn(r config.Range) decimal.Decimal {
	return decimal.NewFromFloat(r.Float(e.rnd))
}

// Rand 并发安全的随机源，多个钱包 goroutine 共享
type Rand struct {
	mu sync.Mutex
	r  *rand.Rand
}

// NewRand 按种子创建
func NewRand(seed int64) *Rand {
	return &Rand{r: rand.New(rand.NewSource(seed))}
}

func (r *Rand) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.r.Float64()
}

func (r *Rand) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.r.Intn(n)
}

// Shuffle 原地打乱
func Shuffle[T any](rnd config.Rand, s []T) {
	for i := len(s) - 1; i > 0; i-- {
		j := rnd.Intn(i + 1)
		s[i], s[j] = s[j], s[i]
	}
}
