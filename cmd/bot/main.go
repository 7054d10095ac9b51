package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/betbot/gopack/internal/metrics"
	"github.com/betbot/gopack/pkg/config"
	"github.com/betbot/gopack/pkg/logger"
	"github.com/betbot/gopack/pkg/shutdown"
)

const (
	modeGenerate         = "generate"
	modeWork             = "work"
	modeForksCreate      = "forks-create"
	modeForksResume      = "forks-resume"
	modeDepositAddresses = "deposit-addresses"
	modeCheckProxies     = "check-proxies"
)

var modes = []string{modeGenerate, modeWork, modeForksCreate, modeForksResume, modeDepositAddresses, modeCheckProxies}

func main() {
	_ = godotenv.Load()

	var (
		configPath = flag.String("config", config.DefaultPath, "config file (yaml/json)")
		mode       = flag.String("mode", "", fmt.Sprintf("run mode %v; empty opens the menu", modes))
	)
	flag.Parse()

	if err := run(*configPath, *mode); err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
}

func run(configPath, mode string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := logger.Init(cfg.Log); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	if mode == "" {
		if mode, err = chooseMode(); err != nil {
			return err
		}
		if mode == "" {
			fmt.Println("Wrong choice")
			return nil
		}
	}
	if !validMode(mode) {
		return fmt.Errorf("unknown mode %q, want one of %v", mode, modes)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	logger.StartRotationChecker(ctx)
	if cfg.API.MetricsListen != "" {
		addr, err := metrics.StartAsync(ctx, cfg.API.MetricsListen)
		if err != nil {
			return fmt.Errorf("start metrics server: %w", err)
		}
		logger.Infof("metrics on http://%s/debug/vars", addr)
	}

	stop := shutdown.NewManager()
	defer func() {
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		if err := stop.Shutdown(sctx); err != nil {
			logger.Warnf("shutdown: %v", err)
		}
	}()

	a, err := newApp(cfg, stop)
	if err != nil {
		return err
	}
	err = a.run(ctx, mode)
	if errors.Is(err, context.Canceled) {
		logger.Warn("interrupted")
		return nil
	}
	return err
}

func validMode(mode string) bool {
	for _, m := range modes {
		if m == mode {
			return true
		}
	}
	return false
}
