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

	"github.com/ariefcatur/astro-motors/internal/auth"
	"github.com/ariefcatur/astro-motors/internal/cart"
	"github.com/ariefcatur/astro-motors/internal/catalog"
	"github.com/ariefcatur/astro-motors/internal/config"
	"github.com/ariefcatur/astro-motors/internal/httpx"
	kafkax "github.com/ariefcatur/astro-motors/internal/kafka"
	"github.com/ariefcatur/astro-motors/internal/logging"
	"github.com/ariefcatur/astro-motors/internal/metrics"
	"github.com/ariefcatur/astro-motors/internal/notify"
	"github.com/ariefcatur/astro-motors/internal/orders"
	"github.com/ariefcatur/astro-motors/internal/postgres"
	"github.com/ariefcatur/astro-motors/internal/pricing"
	"github.com/ariefcatur/astro-motors/internal/redisx"
	"github.com/ariefcatur/astro-motors/internal/reports"
	"github.com/ariefcatur/astro-motors/internal/users"
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
	log := logging.Init(logging.Options{Component: cfg.App.Name, Level: cfg.Log.Level, File: cfg.Log.File})

	if err := run(cfg, log); err != nil {
		log.Error("api exited", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// DB
	if cfg.Postgres.RunMigrations {
		if err := postgres.RunMigrations(cfg.Postgres.DSN, log); err != nil {
			return err
		}
	}
	db, err := postgres.Connect(ctx, cfg.Postgres.DSN, postgres.Options{MaxConns: cfg.Postgres.MaxConns})
	if err != nil {
		return err
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.Redis.Addr, cfg.Redis.Password)
	defer rdb.Close()

	// Kafka producer for notifications
	m := metrics.New()
	prod := kafkax.NewProducer(cfg.BrokerList(), cfg.Kafka.Topic, 1024, log)
	prod.Start(ctx)
	events := notify.NewPublisher(prod, cfg.App.Name, cfg.Notify.PublishTimeout, m)

	userRepo := &users.Repo{DB: db}
	authSvc := &auth.Service{
		Users:    userRepo,
		Captcha:  auth.NewRedisCaptchaStore(rdb, cfg.Security.CaptchaTTL),
		Tokens:   auth.NewTokens(cfg.Security.JWTSecret, cfg.Security.Issuer, cfg.Security.TokenTTL),
		Events:   events,
		Lockout:  users.Lockout{MaxAttempts: cfg.Security.MaxLoginAttempts, Duration: cfg.Security.Lockout},
		ResetTTL: cfg.Security.ResetTTL,
		Coupon:   pricing.DefaultCoupon,
	}
	if cfg.Admin.Email != "" && cfg.Admin.Password != "" {
		if err := authSvc.Bootstrap(ctx, cfg.Admin.Name, cfg.Admin.Email, cfg.Admin.Password); err != nil {
			return err
		}
		log.Info("admin account ensured", "email", cfg.Admin.Email)
	}

	h := &httpx.Handler{
		Catalog:         &catalog.Repo{DB: db},
		Carts:           &cart.Repo{DB: db},
		Orders:          &orders.Repo{DB: db, Policy: pricing.NewPolicy(pricing.DefaultCountries(), cfg.Pricing.Coupons)},
		Auth:            authSvc,
		Users:           userRepo,
		Reports:         &reports.Repo{DB: db},
		Events:          events,
		Idempotency:     redisx.NewIdempotency(rdb, redisx.TTLIdempotency),
		Metrics:         m,
		Timeout:         5 * time.Second,
		CheckoutTimeout: cfg.HTTP.CheckoutTimeout,
	}
	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           httpx.NewRouter(h, log, cfg.HTTP.RequestTimeout),
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http listening", "addr", cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := srv.Shutdown(sctx)
		prod.Close() // flush buffered notifications and close the writer
		prod.WaitClosed()
		return err
	})
	return g.Wait()
}
