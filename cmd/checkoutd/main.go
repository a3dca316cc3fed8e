// Command checkoutd serves the checkout intent API in front of Stripe.
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
	"github.com/go-co-op/gocron"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	checkout "github.com/payelement/checkout/go"
	"github.com/payelement/checkout/go/decoupled"
	"github.com/payelement/checkout/go/extensions/ratelimit"
	"github.com/payelement/checkout/go/pkg/config"
	checkoutgin "github.com/payelement/checkout/go/pkg/gin"
	"github.com/payelement/checkout/go/pkg/metrics"
	stripeprocessor "github.com/payelement/checkout/go/processor/stripe"
)

const (
	confirmationTTL = 10 * time.Minute
	pricingTimeout  = 10 * time.Second
	shutdownTimeout = 10 * time.Second
)

// identityStore is what the resolver needs from a backing store
type identityStore interface {
	decoupled.UserDirectory
	decoupled.SessionReader
	decoupled.OrderStore
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "checkoutd: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "checkoutd: failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("checkoutd stopped", zap.Error(err))
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	messages, err := checkout.NewMessages(cfg.Languages...)
	if err != nil {
		return fmt.Errorf("failed to load messages: %w", err)
	}

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	codec, err := decoupled.NewTokenCodec([]byte(cfg.TokenSecret))
	if err != nil {
		return fmt.Errorf("failed to create token codec: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New("checkout", reg)

	resolver := decoupled.NewResolver(codec, store, store,
		decoupled.WithAllowlist(cfg.Allowlist),
		decoupled.WithRuntime(decoupled.StaticRuntime{Enabled: cfg.DecoupledEnabled, Plugins: cfg.ActivePlugins}),
		decoupled.WithOrderStore(store),
		decoupled.WithObserver(m.IdentityObserver()),
		decoupled.WithResolverLogger(logger))

	registry, stopRegistry, err := openRegistry(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer stopRegistry()

	guard := checkout.NewDuplicatePaymentGuard(registry,
		checkout.WithThreshold(cfg.RateLimit.Threshold),
		checkout.WithGuardLogger(logger),
		checkout.WithGuardMessages(messages))

	processor, err := stripeprocessor.New(cfg.StripeKey, newStorePricer(cfg.StoreURL, pricingTimeout),
		stripeprocessor.WithOrderReceivedURL(cfg.OrderReceivedURL),
		stripeprocessor.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to create processor: %w", err)
	}

	api := checkoutgin.NewIntentAPI(processor,
		checkoutgin.WithConfirmationCache(checkout.NewConfirmationCache(confirmationTTL)),
		checkoutgin.WithGuard(guard),
		checkoutgin.WithResolver(resolver),
		checkoutgin.WithAPILogger(logger))

	router := gin.New()
	router.Use(gin.Recovery(), m.Middleware())
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})))
	api.Register(router.Group(checkoutgin.StoreAPIBase, checkoutgin.DecoupledCheckout(resolver, checkoutgin.WithLogger(logger))))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting http server", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("server exited")
	return nil
}

// openStore connects the Postgres store when a database is configured and
// falls back to an in-memory store otherwise.
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (identityStore, func(), error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("no database configured, identity state is kept in memory")
		return decoupled.NewMemoryStore(), func() {}, nil
	}

	store, err := decoupled.NewPostgresStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if err := decoupled.Migrate(ctx, store.DB()); err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	logger.Info("postgres store ready")
	return store, func() {
		if err := store.Close(); err != nil {
			logger.Warn("failed to close database", zap.Error(err))
		}
	}, nil
}

// openRegistry selects the Redis registry when Redis is configured. The
// in-memory registry is pruned every minute.
func openRegistry(ctx context.Context, cfg *config.Config, logger *zap.Logger) (checkout.RateLimitRegistry, func(), error) {
	window := ratelimit.WithWindow(cfg.RateLimit.Window.Duration)

	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		logger.Info("redis rate limit registry ready", zap.String("addr", cfg.RedisAddr))
		return ratelimit.NewRedisRegistry(client, window), func() { _ = client.Close() }, nil
	}

	registry := ratelimit.NewMemoryRegistry(window)
	scheduler := gocron.NewScheduler(time.UTC)
	if _, err := scheduler.Every(time.Minute).Do(func() {
		if n := registry.Prune(); n > 0 {
			logger.Debug("pruned rate limit windows", zap.Int("count", n))
		}
	}); err != nil {
		return nil, nil, fmt.Errorf("failed to schedule pruning: %w", err)
	}
	scheduler.StartAsync()
	return registry, scheduler.Stop, nil
}
