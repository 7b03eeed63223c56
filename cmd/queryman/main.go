package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/queryman/queryman/internal/api"
	"github.com/queryman/queryman/internal/config"
	"github.com/queryman/queryman/internal/database"
	"github.com/queryman/queryman/internal/health"
	"github.com/queryman/queryman/internal/hostcache"
	"github.com/queryman/queryman/internal/metrics"
	"github.com/queryman/queryman/internal/query"
	"github.com/queryman/queryman/internal/server"
	"github.com/queryman/queryman/internal/worker"
)

const (
	shutdownTimeout      = 60 * time.Second
	healthCheckInterval  = 15 * time.Second
	healthCheckTimeout   = 5 * time.Second
	healthCheckThreshold = 3
)

func main() {
	configPath := flag.String("config", "configs/queryman.yaml", "path to configuration file")
	flag.Parse()

	slog.Info("query manager starting...")

	// A client hanging up mid-response must not kill the process.
	signal.Ignore(syscall.SIGPIPE)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	slog.Info("configuration loaded",
		"path", *configPath, "driver", cfg.Database.Driver)

	// Verify the schema before anything touches the database.
	sess, err := database.Open(cfg.Database)
	if err != nil {
		slog.Error("failed to open database", "err", err)
		os.Exit(1)
	}
	if err := sess.CheckSchema(context.Background(), cfg.Database.SQLite.SchemaDir); err != nil {
		slog.Error("schema check failed", "err", err)
		sess.Close()
		os.Exit(1)
	}

	m := metrics.New()

	hosts := hostcache.New(cfg.HostCache.MaxCachedHostNames, cfg.HostCache.ExpireTime, nil)
	hosts.OnStats(m.HostCacheHit, m.HostCacheMiss)

	queue := query.NewQueue(2 * cfg.QueryManager.MaxConnections)
	queue.OnStats(m.SetQueueDepth, m.QueueFull)

	pool := worker.NewPool(worker.Config{
		Workers:     cfg.QueryManager.WorkerThreads,
		MaxAttempts: cfg.QueryManager.MaxAttempts,
		Database:    cfg.Database,
		Queue:       queue,
		Hosts:       hosts,
		Metrics:     m,
		Log:         slog.Default(),
	})
	if err := pool.Start(context.Background()); err != nil {
		slog.Error("failed to start worker pool", "err", err)
		sess.Close()
		os.Exit(1)
	}

	srv := server.New(server.Config{
		Port:           cfg.QueryManager.Port,
		Password:       cfg.QueryManager.Password,
		BufferSize:     cfg.QueryManager.BufferSize,
		MaxConnections: cfg.QueryManager.MaxConnections,
		IdleTimeout:    cfg.QueryManager.MaxConnectionIdleTime,
		Queue:          queue,
		Metrics:        m,
		Log:            slog.Default(),
	})
	if err := srv.Start(); err != nil {
		slog.Error("failed to start server", "err", err)
		pool.Stop()
		sess.Close()
		os.Exit(1)
	}

	hc := health.NewChecker(sess, m, healthCheckInterval, healthCheckThreshold, healthCheckTimeout)
	hc.Start()

	apiServer := api.NewServer(hc, m, queue, *cfg)
	if err := apiServer.Start(); err != nil {
		slog.Error("failed to start admin server", "err", err)
		srv.Stop()
		pool.Stop()
		hc.Stop()
		sess.Close()
		os.Exit(1)
	}

	configWatcher, err := config.NewWatcher(*configPath, func(newCfg *config.Config) {
		srv.UpdatePassword(newCfg.QueryManager.Password)
		srv.UpdateIdleTimeout(newCfg.QueryManager.MaxConnectionIdleTime)
		hosts.SetTTL(newCfg.HostCache.ExpireTime)
		apiServer.SetConfig(*newCfg)
	})
	if err != nil {
		slog.Warn("config hot-reload not available", "err", err)
	}

	slog.Info("query manager ready",
		"port", cfg.QueryManager.Port,
		"admin_port", cfg.Admin.Port,
		"workers", cfg.QueryManager.WorkerThreads)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("received signal, shutting down...", "signal", sig)

	done := make(chan struct{})
	go func() {
		if configWatcher != nil {
			configWatcher.Stop()
		}
		apiServer.Stop()
		srv.Stop()
		pool.Stop()
		hc.Stop()
		sess.Close()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("query manager stopped")
	case <-time.After(shutdownTimeout):
		slog.Error("shutdown timed out, forcing exit", "timeout", shutdownTimeout)
		os.Exit(1)
	}
}
