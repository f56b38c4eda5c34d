package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/astro-motors/internal/config"
	kafkax "github.com/ariefcatur/astro-motors/internal/kafka"
	"github.com/ariefcatur/astro-motors/internal/logging"
	"github.com/ariefcatur/astro-motors/internal/metrics"
	"github.com/ariefcatur/astro-motors/internal/notify"
	"github.com/ariefcatur/astro-motors/internal/redisx"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", "err", err)
		os.Exit(1)
	}
	log := logging.Init(logging.Options{Component: cfg.App.Name + "-notifier", Level: cfg.Log.Level, File: cfg.Log.File})

	if err := run(cfg, log); err != nil {
		log.Error("notifier exited", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Redis
	rdb := redisx.New(cfg.Redis.Addr, cfg.Redis.Password)
	defer rdb.Close()

	renderer, err := notify.NewRenderer(cfg.Notify.FrontBaseURL)
	if err != nil {
		return err
	}
	m := metrics.New()
	svc := &notify.Service{
		Redis:       rdb,
		Renderer:    renderer,
		Mail:        notify.NewSMTPSender(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.User, cfg.SMTP.Password, cfg.SMTP.From),
		ServiceName: cfg.App.Name + "-notifier",
		MaxAttempts: cfg.Notify.MaxAttempts,
		Backoff:     cfg.Notify.Backoff,
		Log:         log,
		Metrics:     m,
	}

	// Consumer
	cons := kafkax.NewConsumer(cfg.BrokerList(), cfg.Kafka.Group, cfg.Kafka.Topic, cfg.Kafka.Workers, log)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", m.Handler())
	srv := &http.Server{Addr: cfg.HTTP.Addr, Handler: r, ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("notifier consumer started", "group", cfg.Kafka.Group, "topic", cfg.Kafka.Topic, "workers", cfg.Kafka.Workers)
		return cons.Start(gctx, svc.Handle)
	})
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down notifier")
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}
