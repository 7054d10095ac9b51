// Package runner 钱包数据库的生成和执行流程。
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/betbot/gopack/internal/domain"
	"github.com/betbot/gopack/internal/metrics"
	"github.com/betbot/gopack/internal/notify"
	"github.com/betbot/gopack/internal/store"
	"github.com/betbot/gopack/internal/tasks"
	"github.com/betbot/gopack/internal/wallets"
	"github.com/betbot/gopack/pkg/config"
	"github.com/betbot/gopack/pkg/logger"
	"github.com/betbot/gopack/pkg/pause"
	"github.com/betbot/gopack/pkg/proxy"
	"github.com/betbot/gopack/pkg/syncgroup"
)

// ErrRecipientMismatch 启用 OKX_DEPOSIT 时收款地址数量必须与钱包数量一致
var ErrRecipientMismatch = errors.New("runner: number of recipients does not match number of wallets")

// TaskRunner 执行单个任务，*tasks.Executor 满足该接口
type TaskRunner interface {
	Run(ctx context.Context, task domain.TaskName, w domain.Wallet) (bool, error)
}

// Runner 钱包工作流
type Runner struct {
	cfg      *config.Config
	store    *store.Store
	exec     TaskRunner
	notifier *notify.Notifier
	rnd      config.Rand
	sleep    pause.Sleeper
	log      *logrus.Entry
}

// Option Runner 选项
type Option func(*Runner)

// WithRand 设置随机源
func WithRand(r config.Rand) Option {
	return func(rn *Runner) { rn.rnd = r }
}

// WithSleeper 设置停顿实现
func WithSleeper(s pause.Sleeper) Option {
	return func(rn *Runner) { rn.sleep = s }
}

// New 创建 Runner；notifier 可为 nil
func New(cfg *config.Config, st *store.Store, exec TaskRunner, notifier *notify.Notifier, opts ...Option) *Runner {
	r := &Runner{
		cfg:      cfg,
		store:    st,
		exec:     exec,
		notifier: notifier,
		rnd:      tasks.NewRand(time.Now().UnixNano()),
		sleep:    pause.Sleep,
		log:      logger.WithField("component", "runner"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type seed struct {
	key       string
	recipient string
}

// Generate 清空并重建钱包任务表，返回写入的钱包数
func (r *Runner) Generate(ctx context.Context, in *wallets.Inputs) (int, error) {
	if r.cfg.Tasks.OKXDeposit && len(in.Recipients) != len(in.Keys) {
		return 0, fmt.Errorf("%w: %d keys, %d recipients", ErrRecipientMismatch, len(in.Keys), len(in.Recipients))
	}
	enabled := domain.EnabledTasks(r.cfg.Tasks)

	seeds := make([]seed, len(in.Keys))
	for i, key := range in.Keys {
		seeds[i] = seed{key: key}
		if r.cfg.Tasks.OKXDeposit {
			seeds[i].recipient = in.RecipientAt(i)
		}
	}
	if r.cfg.General.ShuffleWallets {
		tasks.Shuffle(r.rnd, seeds)
	}

	runID := r.startJob(ctx, "generate", "batch", "", map[string]any{"wallets": len(seeds), "tasks": len(enabled)})
	n, err := r.generate(ctx, seeds, enabled, proxy.NewRoundRobin(in.Proxies))
	r.finishJob(ctx, runID, err, map[string]any{"wallets": n})
	if err != nil {
		return n, err
	}
	r.log.Infof("✅ Database generated: %d wallets, tasks: %v", n, enabled)
	return n, nil
}

func (r *Runner) generate(ctx context.Context, seeds []seed, enabled []domain.TaskName, proxies *proxy.RoundRobin) (int, error) {
	if err := r.store.ClearWallets(ctx); err != nil {
		return 0, err
	}
	r.log.Info("The database has been cleared")

	for i, s := range seeds {
		w := domain.Wallet{PrivateKey: s.key, Proxy: proxies.Next(), Recipient: s.recipient}
		if _, err := r.store.AddWallet(ctx, w); err != nil {
			return i, err
		}
		for _, task := range enabled {
			if err := r.store.AddTask(ctx, s.key, task); err != nil {
				return i, err
			}
		}
	}
	return len(seeds), nil
}

// Work 执行 keys 对应钱包的未完成任务，每个钱包一个 goroutine，启动之间随机停顿
func (r *Runner) Work(ctx context.Context, keys []string) error {
	routes, err := r.store.PendingRoutes(ctx, keys)
	if err != nil {
		return err
	}
	if len(routes) == 0 {
		r.log.Info("✅ All tasks are completed")
		return nil
	}

	runID := r.startJob(ctx, "work", "batch", "", map[string]any{"routes": len(routes)})
	g := syncgroup.NewSyncGroup()
	for i, route := range routes {
		g.Go(func() { r.processRoute(ctx, route) })
		if i == len(routes)-1 {
			break
		}
		d := r.cfg.General.PauseBetweenWallets.Seconds(r.rnd)
		r.log.Infof("Sleeping %v before next wallet...", d)
		if err = r.sleep(ctx, d); err != nil {
			break
		}
	}
	g.Wait()
	r.finishJob(ctx, runID, err, nil)
	return err
}

func (r *Runner) processRoute(ctx context.Context, route domain.Route) {
	w := route.Wallet
	log := logger.ForAccount("runner", w.Masked())

	if w.Proxy != nil && w.Proxy.ChangeLink != "" && r.cfg.General.MobileProxy && r.cfg.General.RotateIP {
		if err := w.Proxy.ChangeIP(ctx); err != nil {
			log.Warnf("change ip via %s: %v", w.Proxy.Host(), err)
		}
	}

	for _, task := range route.Tasks {
		if ctx.Err() != nil {
			return
		}
		r.runTask(ctx, log, task, w)

		d := r.cfg.General.PauseBetweenModules.Seconds(r.rnd)
		log.Infof("Sleeping %v before next module...", d)
		if err := r.sleep(ctx, d); err != nil {
			return
		}
	}

	metrics.WalletsDone.Add(1)
	if err := r.notifier.WalletDone(ctx, w.PrivateKey); err != nil {
		log.Warnf("telegram notification failed: %v", err)
	}
}

func (r *Runner) runTask(ctx context.Context, log *logrus.Entry, task domain.TaskName, w domain.Wallet) {
	runID := r.startJob(ctx, "task:"+string(task), "wallet", w.Masked(), nil)
	completed, err := r.exec.Run(ctx, task, w)
	if err != nil {
		log.Errorf("%s failed: %v", task, err)
	}
	if completed {
		if cErr := r.store.CompleteTask(ctx, w.PrivateKey, task); cErr != nil {
			log.Errorf("mark %s completed: %v", task, cErr)
		}
	}
	if err == nil && !completed {
		err = errors.New("not completed")
	}
	if completed {
		metrics.TasksCompleted.Add(1)
	} else {
		metrics.TasksFailed.Add(1)
	}
	r.finishJob(ctx, runID, err, map[string]any{"completed": completed})
}

// DepositAddresses 查询每个钱包的 Solana 充值地址并写入 deposit_addresses 文件
func (r *Runner) DepositAddresses(ctx context.Context, in *wallets.Inputs, dial tasks.Dialer) ([]wallets.DepositAddress, error) {
	r.log.Infof("Processing %d API keys to get deposit addresses", len(in.Keys))
	path := r.cfg.Files.DepositAddresses
	if err := wallets.WriteDepositAddresses(path, nil); err != nil {
		return nil, err
	}
	runID := r.startJob(ctx, "deposit_addresses", "batch", "", map[string]any{"wallets": len(in.Keys)})

	var rows []wallets.DepositAddress
	for i, key := range in.Keys {
		w := domain.Wallet{PrivateKey: key, Proxy: in.ProxyAt(i)}
		address, err := r.depositAddress(ctx, dial, w)
		if err != nil {
			r.log.Errorf("[%d/%d] Failed to get deposit address for key %s: %v", i+1, len(in.Keys), w.Masked(), err)
		} else {
			r.log.Infof("✅ [%d/%d] Retrieved Solana deposit address for %s: %s", i+1, len(in.Keys), w.Masked(), address)
			rows = append(rows, wallets.DepositAddress{Key: key, Address: address})
			if err := wallets.WriteDepositAddresses(path, rows); err != nil {
				r.finishJob(ctx, runID, err, nil)
				return rows, err
			}
		}
		if i == len(in.Keys)-1 {
			break
		}
		d := r.cfg.General.PauseBetweenModules.Seconds(r.rnd)
		r.log.Infof("Sleeping %v before next wallet...", d)
		if err := r.sleep(ctx, d); err != nil {
			r.finishJob(ctx, runID, err, nil)
			return rows, err
		}
	}

	r.log.Infof("Successfully retrieved %d deposit addresses out of %d", len(rows), len(in.Keys))
	r.finishJob(ctx, runID, nil, map[string]any{"retrieved": len(rows)})
	return rows, nil
}

func (r *Runner) depositAddress(ctx context.Context, dial tasks.Dialer, w domain.Wallet) (string, error) {
	ex, err := dial(w)
	if err != nil {
		return "", err
	}
	return ex.GetDepositAddress(ctx, "Solana")
}

// CheckProxies 并发检测代理，用可用的代理覆盖代理文件
func (r *Runner) CheckProxies(ctx context.Context, list []*proxy.Proxy) ([]*proxy.Proxy, error) {
	pc := r.cfg.ProxyCheck
	checker := proxy.Checker{
		URL:         pc.URL,
		Timeout:     time.Duration(pc.TimeoutSec) * time.Second,
		Concurrency: pc.Concurrency,
	}
	alive := checker.Filter(ctx, list)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := wallets.WriteProxies(r.cfg.Files.Proxies, alive); err != nil {
		return alive, err
	}
	r.log.Infof("Working proxies: %d", len(alive))
	r.log.Infof("Dead proxies: %d", len(list)-len(alive))
	return alive, nil
}

// startJob 记录失败只打日志，返回 0 时 finishJob 不做任何事
func (r *Runner) startJob(ctx context.Context, name, scope, account string, meta map[string]any) int64 {
	id, err := r.store.InsertJobRunStart(ctx, name, scope, account, meta)
	if err != nil {
		r.log.Warnf("record job %s: %v", name, err)
		return 0
	}
	return id
}

func (r *Runner) finishJob(ctx context.Context, id int64, jobErr error, meta map[string]any) {
	if id == 0 {
		return
	}
	msg := ""
	if jobErr != nil {
		msg = jobErr.Error()
	}
	// 取消后仍要落库
	if err := r.store.FinishJobRun(context.WithoutCancel(ctx), id, jobErr == nil, msg, meta); err != nil {
		r.log.Warnf("finish job %d: %v", id, err)
	}
}
