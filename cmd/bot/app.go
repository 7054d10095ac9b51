package main

import (
	"context"
	"fmt"
	"time"

	"github.com/betbot/gopack/internal/forks"
	"github.com/betbot/gopack/internal/notify"
	"github.com/betbot/gopack/internal/runner"
	"github.com/betbot/gopack/internal/store"
	"github.com/betbot/gopack/internal/tasks"
	"github.com/betbot/gopack/internal/wallets"
	"github.com/betbot/gopack/pkg/config"
	"github.com/betbot/gopack/pkg/logger"
	"github.com/betbot/gopack/pkg/ratelimit"
	"github.com/betbot/gopack/pkg/sdk/backpack"
	"github.com/betbot/gopack/pkg/sdk/okx"
	"github.com/betbot/gopack/pkg/secretstore"
	"github.com/betbot/gopack/pkg/shutdown"
)

// app 一次运行需要的全部组件
type app struct {
	cfg    *config.Config
	in     *wallets.Inputs
	dial   tasks.Dialer
	runner *runner.Runner
	forks  *forks.Workflow
}

func newApp(cfg *config.Config, stop *shutdown.Manager) (*app, error) {
	in, err := loadInputs(cfg)
	if err != nil {
		return nil, err
	}
	logger.Infof("Loaded %d wallets, %d proxies, %d recipients", len(in.Keys), len(in.Proxies), len(in.Recipients))

	st, err := store.Open(cfg.Storage.DBPath)
	if err != nil {
		return nil, err
	}
	stop.OnShutdown("store", func(context.Context) error { return st.Close() })

	limits := ratelimit.NewManager()
	dial := tasks.BackpackDialer(backpackOptions(limits))

	var opts []tasks.Option
	if cfg.Tasks.OKXWithdraw {
		client, err := okx.New(okx.Credentials{
			APIKey:     cfg.OKX.APIKey,
			Secret:     cfg.OKX.APISecret,
			Passphrase: cfg.OKX.APIPassword,
		}, okx.Options{BaseURL: cfg.OKX.BaseURL, Proxy: cfg.OKX.Proxy, Limits: limits})
		if err != nil {
			return nil, err
		}
		opts = append(opts, tasks.WithCEX(client))
	}
	exec := tasks.NewExecutor(cfg, dial, opts...)

	var notifier *notify.Notifier
	if cfg.Telegram.Enabled() {
		tg, err := notify.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.UserID, "")
		if err != nil {
			logger.Warnf("telegram disabled: %v", err)
		} else {
			notifier = notify.New(tg, st)
		}
	}

	return &app{
		cfg:    cfg,
		in:     in,
		dial:   dial,
		runner: runner.New(cfg, st, exec, notifier),
		forks:  forks.New(cfg, st, dial),
	}, nil
}

// backpackOptions 所有账户共享 backpack:account 限速器，避免同一出口 IP 被限流
func backpackOptions(limits *ratelimit.Manager) backpack.Options {
	return backpack.Options{
		Timeout: 30 * time.Second,
		Limiter: limits.Get("backpack:account"),
	}
}

// loadInputs 配置了加密存储时私钥从 badger 读取，否则读 wallets 文件
func loadInputs(cfg *config.Config) (*wallets.Inputs, error) {
	if cfg.Storage.SecretDB == "" || cfg.Storage.SecretKey == "" {
		return wallets.Load(cfg.Files, cfg.General.MobileProxy)
	}
	key, err := secretstore.ParseKey(cfg.Storage.SecretKey)
	if err != nil {
		return nil, err
	}
	ss, err := secretstore.Open(secretstore.OpenOptions{Path: cfg.Storage.SecretDB, EncryptionKey: key, ReadOnly: true})
	if err != nil {
		return nil, err
	}
	defer ss.Close()
	keys, err := ss.Wallets()
	if err != nil {
		return nil, err
	}
	logger.Infof("Loaded %d private keys from %s", len(keys), cfg.Storage.SecretDB)
	return wallets.LoadWithKeys(cfg.Files, cfg.General.MobileProxy, keys)
}

func (a *app) run(ctx context.Context, mode string) error {
	switch mode {
	case modeGenerate:
		logger.Debug("Generating new database")
		_, err := a.runner.Generate(ctx, a.in)
		return err
	case modeWork:
		logger.Debug("Working with the database")
		return a.runner.Work(ctx, a.in.Keys)
	case modeForksCreate:
		_, err := a.forks.Create(ctx, a.in)
		return err
	case modeForksResume:
		return a.forks.Resume(ctx, a.in)
	case modeDepositAddresses:
		logger.Debug("Getting deposit addresses for all wallets")
		_, err := a.runner.DepositAddresses(ctx, a.in, a.dial)
		return err
	case modeCheckProxies:
		_, err := a.runner.CheckProxies(ctx, a.in.Proxies)
		return err
	}
	return fmt.Errorf("unknown mode %q", mode)
}
