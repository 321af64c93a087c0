package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/fjod/go_pos/internal/backend"
	"github.com/fjod/go_pos/internal/cart"
	"github.com/fjod/go_pos/internal/config"
	"github.com/fjod/go_pos/internal/connectivity"
	h "github.com/fjod/go_pos/internal/http"
	"github.com/fjod/go_pos/internal/ledger"
	"github.com/fjod/go_pos/internal/logger"
	"github.com/fjod/go_pos/internal/metrics"
	"github.com/fjod/go_pos/internal/queue"
	"github.com/fjod/go_pos/internal/register"
	"github.com/fjod/go_pos/internal/storage"
	"github.com/fjod/go_pos/internal/syncer"
)

func main() {
	// .env is optional; real environment variables win
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	format := cfg.App.LogFormat
	if cfg.App.IsDev() && os.Getenv(config.EnvLogFormat) == "" {
		format = "console"
	}
	lg := logger.New(logger.Options{
		ServiceName: "pos",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      format,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(ctx, storage.Options{
		Driver:        cfg.Storage.Driver,
		SQLitePath:    cfg.Storage.SQLitePath,
		RedisAddr:     cfg.Redis.Addr,
		RedisPassword: cfg.Redis.Password,
		RedisDB:       cfg.Redis.DB,
	})
	if err != nil {
		lg.Error(ctx, "failed to open local storage", err)
		os.Exit(1)
	}
	defer store.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	client := backend.New(backend.Config{
		BaseURL:         cfg.Backend.APIURL,
		ClerkID:         cfg.Backend.ClerkID,
		Timeout:         cfg.Backend.RequestTimeout,
		BreakerFailures: cfg.Backend.BreakerFailures,
		BreakerTimeout:  cfg.Backend.BreakerTimeout,
	})
	monitor := connectivity.NewMonitor(client.Ping, cfg.Sync.ProbeInterval, lg)

	q := queue.New(store, queue.WithLogger(lg))
	if n, err := q.Len(ctx); err != nil {
		lg.Warn(ctx, "failed to read offline queue", err)
	} else {
		m.SetPending(n)
		if n > 0 {
			lg.Info(lg.WithField(ctx, "pending", n), "offline sales waiting for sync")
		}
	}

	pos := register.New(cart.NewStore(ledger.New(), lg), q, client, monitor,
		register.WithLogger(lg),
		register.WithMetrics(m),
	)
	ctrl := syncer.New(q, client, monitor, store,
		syncer.WithLogger(lg),
		syncer.WithMetrics(m),
		syncer.WithInterval(cfg.Sync.Interval),
	)

	if _, err := pos.RefreshProducts(ctx); err != nil {
		lg.Warn(ctx, "initial product fetch failed, starting with an empty catalog", err)
	}

	go monitor.Run(ctx)
	go ctrl.Run(ctx)

	srv := &http.Server{
		Addr: cfg.HTTP.Addr,
		Handler: h.NewRouter(h.RouterConfig{
			Register:       pos,
			Syncer:         ctrl,
			Logger:         lg,
			Gatherer:       reg,
			RequestTimeout: cfg.HTTP.RequestTimeout,
		}),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.HTTP.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		lg.Info(lg.WithField(ctx, "addr", cfg.HTTP.Addr), "register starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Error(ctx, "server error", err)
			stop()
		}
	}()

	<-ctx.Done()

	lg.Info(context.Background(), "shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Error(shutdownCtx, "server forced to shutdown", err)
	}

	lg.Info(context.Background(), "server exited")
}
