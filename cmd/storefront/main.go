package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/fjod/storefront/internal/cart"
	"github.com/fjod/storefront/internal/catalog"
	"github.com/fjod/storefront/internal/checkout"
	"github.com/fjod/storefront/internal/config"
	"github.com/fjod/storefront/internal/events"
	"github.com/fjod/storefront/internal/health"
	h "github.com/fjod/storefront/internal/http"
	"github.com/fjod/storefront/internal/logger"
	"github.com/fjod/storefront/internal/payment"
	"github.com/fjod/storefront/internal/telemetry"
)

type closer func() error

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	l, err := logger.New(cfg.AppEnv)
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer l.Sync()
	zap.ReplaceGlobals(l)

	if err := run(cfg, l); err != nil {
		l.Fatal("storefront stopped with error", zap.Error(err))
	}
}

func run(cfg *config.Config, l *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var closers []closer
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				l.Warn("close failed", zap.Error(err))
			}
		}
	}()

	shutdownTracing, err := telemetry.Setup("storefront")
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	closers = append(closers, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return shutdownTracing(ctx)
	})

	monitor := health.NewMonitor(l.With(zap.String("component", "health")))

	// catalog
	var productRepo catalog.Repository = catalog.NewStaticRepository()
	if cfg.CatalogDBPath != "" {
		sqliteRepo, err := catalog.NewSQLiteRepository(cfg.CatalogDBPath)
		if err != nil {
			return fmt.Errorf("catalog: %w", err)
		}
		closers = append(closers, sqliteRepo.Close)
		if err := sqliteRepo.RunMigrations(cfg.CatalogMigrationsPath); err != nil {
			return fmt.Errorf("catalog migrations: %w", err)
		}
		monitor.Register("catalog", sqliteRepo.Ping)
		productRepo = sqliteRepo
		l.Info("catalog backed by sqlite", zap.String("path", cfg.CatalogDBPath))
	}
	products := catalog.NewService(productRepo, l.With(zap.String("component", "catalog")))

	// carts
	var sessions cart.SessionRepository = cart.NewMemoryRepository()
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		closers = append(closers, rdb.Close)
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		monitor.Register("redis", func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
		sessions = cart.NewRedisRepository(rdb, cfg.SessionTTL)
		l.Info("carts stored in redis", zap.String("addr", cfg.RedisAddr))
	}
	carts := cart.NewService(sessions, products, l.With(zap.String("component", "cart")))

	// payment provider
	var provider payment.Provider
	if cfg.PayPal.ClientSecret != "" {
		provider = payment.NewPayPalClient(cfg.PayPal.BaseURL, cfg.PayPal.ClientID, cfg.PayPal.ClientSecret,
			&http.Client{Timeout: cfg.PayPal.CaptureTimeout}, l.With(zap.String("component", "paypal")))
		l.Info("using paypal provider", zap.String("base_url", cfg.PayPal.BaseURL))
	} else {
		provider = payment.NewSandbox(payment.RandomDecider{FailurePercent: cfg.PayPal.SandboxFailurePercent})
		l.Info("using in-process sandbox provider", zap.Int("failure_percent", cfg.PayPal.SandboxFailurePercent))
	}
	provider = payment.NewBreaker(provider, l.With(zap.String("component", "payment")))

	// order ledger
	var ledger checkout.Ledger = checkout.NewMemoryLedger()
	if cfg.UseLedgerDB() {
		creds := &checkout.Credentials{
			Host:              cfg.DB.Host,
			Port:              cfg.DB.Port,
			User:              cfg.DB.User,
			Password:          cfg.DB.Password,
			DBName:            cfg.DB.Name,
			MigrationsDirPath: cfg.DB.MigrationsPath,
		}
		pg, err := checkout.NewPostgresLedger(ctx, creds)
		if err != nil {
			return fmt.Errorf("ledger: %w", err)
		}
		closers = append(closers, pg.Close)
		if err := pg.RunMigrations(creds); err != nil {
			return fmt.Errorf("ledger migrations: %w", err)
		}
		monitor.Register("ledger", pg.Ping)
		ledger = pg
		l.Info("order ledger backed by postgres", zap.String("host", cfg.DB.Host))
	}

	// events
	var publisher interface {
		checkout.EventPublisher
		Close() error
	} = events.NewNoopPublisher(l.With(zap.String("component", "events")))
	if brokers := cfg.GetKafkaBrokers(); len(brokers) > 0 {
		publisher = events.NewKafkaPublisher(cfg.KafkaTopic, l.With(zap.String("component", "events")), brokers...)
		l.Info("publishing checkout events to kafka", zap.Strings("brokers", brokers), zap.String("topic", cfg.KafkaTopic))
	}
	closers = append(closers, publisher.Close)

	if !cfg.PaymentConfigured() {
		l.Warn("PAYPAL_CLIENT_ID is not set, checkout will show a configuration error")
	}

	inbox := checkout.NewInbox(cfg.SessionTTL)
	orch := checkout.NewOrchestrator(carts, provider, ledger, inbox, checkout.Options{
		ClientID:       cfg.PayPal.ClientID,
		CaptureTimeout: cfg.PayPal.CaptureTimeout,
		AttemptTTL:     cfg.SessionTTL,
	}, l.With(zap.String("component", "checkout")))

	poller := checkout.NewOutboxPoller(ledger, orch, publisher, cfg.OutboxEventTick, cfg.OutboxRecoveryTick,
		l.With(zap.String("component", "outbox")))
	go poller.Run(ctx)
	go monitor.Run(ctx, 15*time.Second)
	go checkout.RunJanitor(ctx, time.Minute, l.With(zap.String("component", "janitor")), orch, inbox)

	// gRPC health
	lis, err := net.Listen("tcp", ":"+cfg.GRPCHealthPort)
	if err != nil {
		return fmt.Errorf("failed to listen on grpc health port: %w", err)
	}
	grpcServer := monitor.NewGRPCServer()
	go func() {
		l.Info("grpc health server starting", zap.String("port", cfg.GRPCHealthPort))
		if err := grpcServer.Serve(lis); err != nil {
			l.Error("grpc health server error", zap.Error(err))
		}
	}()

	router := h.NewRouter(h.Handlers{
		Products:      h.NewProductHandler(products),
		Cart:          h.NewCartHandler(carts),
		Checkout:      h.NewCheckoutHandler(orch),
		Notifications: h.NewNotificationHandler(inbox),
		Health:        monitor.ServeHTTP,
	}, h.RouterConfig{
		RequestTimeout: cfg.RequestTimeout,
		SessionTTL:     cfg.SessionTTL,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		l.Info("storefront starting", zap.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	}

	l.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	grpcServer.GracefulStop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	l.Info("server exited")
	return nil
}
