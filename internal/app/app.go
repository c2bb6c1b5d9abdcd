// Package app wires the coupon engine together: configuration, storage,
// cache, domain services, HTTP server, and graceful shutdown.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/sweetoven/coupon-engine/internal/cache"
	"github.com/sweetoven/coupon-engine/internal/domain/coupon"
	"github.com/sweetoven/coupon-engine/internal/domain/order"
	"github.com/sweetoven/coupon-engine/internal/handler"
	"github.com/sweetoven/coupon-engine/internal/repository"
	"github.com/sweetoven/coupon-engine/pkg/health"
	"github.com/sweetoven/coupon-engine/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	loc, err := time.LoadLocation(cfg.TimeZone)
	if err != nil {
		return errors.Wrapf(err, "load time zone %q", cfg.TimeZone)
	}

	// PostgreSQL pool + migrations.
	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))

	// Repositories.
	var couponRepo coupon.Repository = repository.NewCouponRepository(pool)
	productRepo := repository.NewProductRepository(pool)
	orderRepo := repository.NewOrderRepository(pool)
	ledger := repository.NewRedemptionLedger(pool)
	history := repository.NewCustomerHistory(pool)

	// Optional Redis read-through cache for coupon lookups.
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return errors.Wrap(err, "parse redis URL")
		}
		client := redis.NewClient(opts)
		defer client.Close()

		healthSvc.AddReadinessCheck("redis", 5*time.Second, func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})
		couponRepo = cache.NewCouponCache(client, couponRepo, cfg.CacheTTL)
		lg.Info("Coupon cache enabled", zap.Duration("ttl", cfg.CacheTTL))
	}

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Domain services.
	evaluator := coupon.NewEvaluator(history, loc)
	tracker := coupon.NewTracker(ledger)
	couponSvc := coupon.NewService(couponRepo, evaluator, tracker)
	orderSvc := order.NewService(productRepo, couponSvc, orderRepo)

	// HTTP handlers: health endpoints + API routes on one server.
	h := handler.NewHandler(productRepo, couponSvc, orderSvc)

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	mux.Handle("/api/", http.StripPrefix("/api", h.Routes()))

	instrumented := otelhttp.NewHandler(mux, "coupon-api",
		otelhttp.WithTracerProvider(m.TracerProvider()),
		otelhttp.WithMeterProvider(m.MeterProvider()),
	)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(instrumented,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.LogRequests(),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}
