package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/betbot/gopack/internal/api"
	"github.com/betbot/gopack/internal/store"
	"github.com/betbot/gopack/pkg/config"
	"github.com/betbot/gopack/pkg/logger"
	"github.com/betbot/gopack/pkg/shutdown"
)

func main() {
	// .env 可选，不存在时直接用环境变量
	_ = godotenv.Load()

	var (
		configPath = flag.String("config", config.DefaultPath, "config file (yaml/json)")
		listenAddr = flag.String("listen", "", "HTTP listen address (overrides api.listen)")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
	if err := logger.Init(cfg.Log); err != nil {
		logger.Errorf("init logger: %v", err)
		os.Exit(1)
	}
	addr := cfg.API.Listen
	if *listenAddr != "" {
		addr = *listenAddr
	}

	st, err := store.Open(cfg.Storage.DBPath)
	if err != nil {
		logger.Errorf("open db: %v", err)
		os.Exit(1)
	}
	srv, err := api.New(st)
	if err != nil {
		_ = st.Close()
		logger.Errorf("init server: %v", err)
		os.Exit(1)
	}

	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	stop := shutdown.NewManager()
	stop.OnShutdown("http", httpSrv.Shutdown)

	go func() {
		logger.Infof("status server listening on %s (db %s)", addr, cfg.Storage.DBPath)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("http server error: %v", err)
		}
	}()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	<-stopCh

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := stop.Shutdown(ctx); err != nil {
		logger.Warnf("shutdown: %v", err)
	}
	// 请求全部结束后再关库
	if err := st.Close(); err != nil {
		logger.Warnf("close db: %v", err)
	}
	logger.Info("server stopped")
}
