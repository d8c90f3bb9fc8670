package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"etcapply/internal/gateway"
	"etcapply/internal/params"
	"etcapply/internal/server/handlers/apply"
	"etcapply/internal/server/routers"
	"etcapply/internal/synth"
	"etcapply/internal/worker"
	"etcapply/internal/workflow"
	"etcapply/pkg/config"
	"etcapply/pkg/infra/redis"
	"etcapply/pkg/lmstfy"
	"etcapply/pkg/logger"
)

var serveFlags struct {
	addr string
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the local application UI backend",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveFlags.addr, "addr", "", "Listen address (overrides server.addr)")
}

func runServe(_ *cobra.Command, _ []string) error {
	ctx := context.Background()

	// 1. 加载配置
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	defaults, err := config.LoadDefaults(cfg.DefaultsFile)
	if err != nil {
		return err
	}

	// 2. 初始化依赖
	dao, err := openDAO(cfg)
	if err != nil {
		return err
	}
	defer dao.Close()

	notifier, cleanup, err := newNotifier(cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	gen := synth.Default()
	manager := worker.NewManager(worker.Options{
		Builder: params.NewBuilder(defaults, gen),
		NewGateway: func() (workflow.Gateway, error) {
			return gateway.New(gateway.Options{
				BaseURL: cfg.Backoffice.BaseURL,
				Cookies: cfg.CookieMap(),
				Timeout: cfg.Backoffice.Timeout,
				Logger:  log,
			})
		},
		Datastore: dao,
		Devices:   gen,
		Notifier:  notifier,
		Logger:    log,
	})

	// 3. HTTP Server
	if cfg.App.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	addr := cfg.Server.Addr
	if serveFlags.addr != "" {
		addr = serveFlags.addr
	}
	server := &http.Server{
		Addr:              addr,
		Handler:           routers.SetupRoutes(apply.NewApplyHandler(manager, log), log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		log.Infof(ctx, "[Server] Listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- err
		}
	}()

	// 4. 优雅停机
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		log.Infof(ctx, "[Server] Received shutdown signal")
	case err := <-serverErrChan:
		manager.Shutdown()
		return fmt.Errorf("http server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warnf(ctx, "[Server] HTTP shutdown error: %v", err)
	}
	manager.Shutdown()
	log.Infof(ctx, "[Server] Stopped")
	return nil
}

// newNotifier 按配置组装结果通知：redis 频道和 lmstfy 回调队列都是可选的
func newNotifier(cfg *config.Config, log logger.Logger) (worker.Notifier, func(), error) {
	ctx := context.Background()
	var (
		notifiers worker.MultiNotifier
		closers   []func() error
	)

	if ep, ok := cfg.Endpoint(config.EndpointRedis); ok && cfg.Notify.RedisChannel != "" {
		db, err := ep.RedisDB()
		if err != nil {
			return nil, nil, err
		}
		ps, err := redis.NewPubSub(ep.Address, ep.Password, db, cfg.Notify.RedisChannel)
		if err != nil {
			return nil, nil, err
		}
		notifiers = append(notifiers, ps)
		closers = append(closers, ps.Close)
		log.Infof(ctx, "[Server] Redis notify channel: %s", cfg.Notify.RedisChannel)
	}

	if lc := cfg.Notify.Lmstfy; lc.Host != "" && cfg.Notify.CallbackQueue != "" {
		notifiers = append(notifiers, lmstfy.NewClient(lc.Host, lc.Port, lc.Namespace, lc.Token, cfg.Notify.CallbackQueue))
		log.Infof(ctx, "[Server] Lmstfy callback queue: %s", cfg.Notify.CallbackQueue)
	}

	cleanup := func() {
		for _, c := range closers {
			_ = c()
		}
	}
	if len(notifiers) == 0 {
		return nil, cleanup, nil
	}
	return notifiers, cleanup, nil
}
