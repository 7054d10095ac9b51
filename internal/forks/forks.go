// Package forks 多账户对冲（fork）计划的生成和执行。
package forks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/gopack/internal/domain"
	"github.com/betbot/gopack/internal/metrics"
	"github.com/betbot/gopack/internal/store"
	"github.com/betbot/gopack/internal/tasks"
	"github.com/betbot/gopack/internal/wallets"
	"github.com/betbot/gopack/pkg/config"
	"github.com/betbot/gopack/pkg/deltaneutral"
	"github.com/betbot/gopack/pkg/logger"
	"github.com/betbot/gopack/pkg/pause"
	"github.com/betbot/gopack/pkg/sdk/backpack"
	"github.com/betbot/gopack/pkg/syncgroup"
)

// Random 分配器和执行顺序共用的随机源
type Random interface {
	Float64() float64
	Intn(n int) int
}

// Workflow fork 的生成与执行
type Workflow struct {
	cfg   *config.Config
	store *store.Store
	dial  tasks.Dialer
	rnd   Random
	sleep pause.Sleeper
	log   *logrus.Entry
}

// Option Workflow 选项
type Option func(*Workflow)

// WithRand 设置随机源
func WithRand(r Random) Option {
	return func(w *Workflow) { w.rnd = r }
}

// WithSleeper 设置停顿实现
func WithSleeper(s pause.Sleeper) Option {
	return func(w *Workflow) { w.sleep = s }
}

// New 创建工作流；forks.seed 非 0 时结果可复现
func New(cfg *config.Config, st *store.Store, dial tasks.Dialer, opts ...Option) *Workflow {
	seed := cfg.Forks.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	w := &Workflow{
		cfg:   cfg,
		store: st,
		dial:  dial,
		rnd:   tasks.NewRand(seed),
		sleep: pause.Sleep,
		log:   logger.WithField("component", "forks"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Plan 一次分配的结果
type Plan struct {
	ID       string
	Result   *deltaneutral.Result
	Groups   map[string]*deltaneutral.SymbolGroup
	Totals   map[string]deltaneutral.Exposure
	Balances map[string]float64
}

// Create 查询余额、分配仓位并写入 forks 表（替换未执行的 fork）
func (w *Workflow) Create(ctx context.Context, in *wallets.Inputs) (*Plan, error) {
	runID := w.startJob(ctx, "forks_create", map[string]any{"wallets": len(in.Keys)})
	plan, err := w.create(ctx, in)
	meta := map[string]any{}
	if plan != nil {
		meta["plan_id"] = plan.ID
		meta["positions"] = len(plan.Result.Positions)
		meta["pairs"] = plan.Result.PairsBuilt
	}
	w.finishJob(ctx, runID, err, meta)
	return plan, err
}

func (w *Workflow) create(ctx context.Context, in *wallets.Inputs) (*Plan, error) {
	balances, err := w.balances(ctx, in)
	if err != nil {
		return nil, err
	}

	alloc, err := deltaneutral.New(w.cfg.Forks.Allocator(), w.rnd, w.log)
	if err != nil {
		return nil, err
	}
	res, err := alloc.Plan(balances)
	if err != nil {
		return nil, err
	}
	if res.Exhausted > 0 {
		w.log.Warnf("%d legs may share a total size with another leg", res.Exhausted)
	}

	plan := &Plan{
		ID:       uuid.NewString(),
		Result:   res,
		Groups:   deltaneutral.Group(res.Positions),
		Totals:   deltaneutral.Totals(res.Positions),
		Balances: balances,
	}
	if err := w.store.FillForks(ctx, plan.ID, plan.Groups); err != nil {
		return nil, err
	}

	for _, symbol := range deltaneutral.Symbols(plan.Totals) {
		t := plan.Totals[symbol]
		w.log.Infof("Symbol: %s | long: $%.2f | short: $%.2f | delta: $%.2f", symbol, t.Long, t.Short, t.Delta)
	}
	w.log.Infof("✅ Plan %s: %d forks, %d positions", plan.ID, len(plan.Groups), len(res.Positions))
	return plan, nil
}

// balances 用固定数量的 worker 并发查询 USDC 余额；查询失败的账户不参与分配
func (w *Workflow) balances(ctx context.Context, in *wallets.Inputs) (map[string]float64, error) {
	workers := max(w.cfg.Forks.BalanceWorkers, 1)
	jobs := make(chan int)
	var (
		mu  sync.Mutex
		out = make(map[string]float64, len(in.Keys))
	)

	g := syncgroup.NewSyncGroup()
	for range workers {
		g.Go(func() {
			for i := range jobs {
				key := in.Keys[i]
				bal, err := w.balance(ctx, domain.Wallet{PrivateKey: key, Proxy: in.ProxyAt(i)})
				if err != nil {
					w.log.Errorf("balance of %s: %v", domain.MaskKey(key), err)
					continue
				}
				mu.Lock()
				out[key] = bal
				mu.Unlock()
			}
		})
	}
feed:
	for i := range in.Keys {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	w.log.Infof("Fetched %d/%d balances", len(out), len(in.Keys))
	return out, nil
}

func (w *Workflow) balance(ctx context.Context, wallet domain.Wallet) (float64, error) {
	ex, err := w.dial(wallet)
	if err != nil {
		return 0, err
	}
	bal, err := ex.GetBalance(ctx, "USDC")
	if err != nil {
		return 0, err
	}
	return bal.InexactFloat64(), nil
}

// Resume 按 id 顺序执行未完成的 fork
func (w *Workflow) Resume(ctx context.Context, in *wallets.Inputs) error {
	pending, err := w.store.PendingForks(ctx)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		w.log.Info("✅ All forks are completed. Create new database.")
		return nil
	}

	for i, fork := range pending {
		runID := w.startJob(ctx, "fork:"+fork.Symbol, map[string]any{"fork_id": fork.ID, "plan_id": fork.PlanID})
		opened, err := w.runFork(ctx, fork, in)
		if err == nil {
			err = w.store.CompleteFork(ctx, fork.ID)
		}
		if err == nil {
			metrics.ForksCompleted.Add(1)
		}
		w.finishJob(ctx, runID, err, map[string]any{"opened": opened})
		if err != nil {
			return err
		}
		if i == len(pending)-1 {
			break
		}
		d := w.cfg.General.PauseBetweenWallets.Seconds(w.rnd)
		w.log.Infof("Sleeping %v before next fork...", d)
		if err := w.sleep(ctx, d); err != nil {
			return err
		}
	}
	return nil
}

type order struct {
	leg  deltaneutral.Leg
	side backpack.Side
}

// runFork 多头 Bid、空头 Ask，打乱顺序后逐个市价开仓；单条腿失败只记录日志
func (w *Workflow) runFork(ctx context.Context, fork domain.Fork, in *wallets.Inputs) (int, error) {
	orders := make([]order, 0, len(fork.Group.Long)+len(fork.Group.Short))
	for _, leg := range fork.Group.Long {
		orders = append(orders, order{leg: leg, side: backpack.Bid})
	}
	for _, leg := range fork.Group.Short {
		orders = append(orders, order{leg: leg, side: backpack.Ask})
	}
	tasks.Shuffle(w.rnd, orders)

	opened := 0
	for _, o := range orders {
		if err := w.open(ctx, fork.Symbol, o, in); err != nil {
			if ctx.Err() != nil {
				return opened, ctx.Err()
			}
			w.log.Errorf("Failed to open position: %v", err)
			metrics.LegsFailed.Add(1)
		} else {
			opened++
			metrics.LegsOpened.Add(1)
		}
		d := w.cfg.General.PauseBetweenModules.Seconds(w.rnd)
		w.log.Infof("Sleeping %v...", d)
		if err := w.sleep(ctx, d); err != nil {
			return opened, err
		}
	}
	return opened, nil
}

func (w *Workflow) open(ctx context.Context, symbol string, o order, in *wallets.Inputs) error {
	ex, err := w.dial(domain.Wallet{PrivateKey: o.leg.Account, Proxy: in.ProxyFor(o.leg.Account)})
	if err != nil {
		return fmt.Errorf("%s: %w", domain.MaskKey(o.leg.Account), err)
	}
	amount := decimal.NewFromFloat(o.leg.TotalSize)
	if _, err := ex.OpenFuturesPosition(ctx, symbol, o.side, amount); err != nil {
		return err
	}
	w.log.Infof("Opened %s position on %s with %s USDC (leverage: %vx)", o.side, symbol, amount.StringFixed(2), o.leg.Leverage)
	return nil
}

func (w *Workflow) startJob(ctx context.Context, name string, meta map[string]any) int64 {
	id, err := w.store.InsertJobRunStart(ctx, name, "forks", "", meta)
	if err != nil {
		w.log.Warnf("record job %s: %v", name, err)
		return 0
	}
	return id
}

func (w *Workflow) finishJob(ctx context.Context, id int64, jobErr error, meta map[string]any) {
	if id == 0 {
		return
	}
	msg := ""
	if jobErr != nil {
		msg = jobErr.Error()
	}
	if err := w.store.FinishJobRun(context.WithoutCancel(ctx), id, jobErr == nil, msg, meta); err != nil {
		w.log.Warnf("finish job %d: %v", id, err)
	}
}
