package app

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/xenking/oolio-purchase/internal/domain/order"
	"github.com/xenking/oolio-purchase/internal/handler"
	"github.com/xenking/oolio-purchase/pkg/health"
	"github.com/xenking/oolio-purchase/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("driver", cfg.Database.Driver),
		zap.String("notifier", cfg.Notify.Kind),
	)

	st, err := openStorage(ctx, lg, m, cfg.Database, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer st.close()

	healthSvc := health.New()
	if st.ping != nil {
		healthSvc.AddReadinessCheck("database", 5*time.Second, st.ping)
	}
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.AddLivenessCheck("gc_pause", time.Second, health.GCPauseCheck(time.Second))

	catalog := st.catalog
	if cfg.Redis.Addr != "" {
		cached, check, closeCache := withProductCache(catalog, cfg.Redis)
		defer closeCache()
		catalog = cached
		healthSvc.AddDegradedCheck("redis", time.Second, check)
		lg.Info("Product cache enabled", zap.String("redis", cfg.Redis.Addr), zap.Duration("ttl", cfg.Redis.ProductTTL))
	}

	notifier, err := newNotifier(lg, m, cfg.Notify)
	if err != nil {
		return err
	}
	if notifier.check != nil {
		healthSvc.AddDegradedCheck("notify_breaker", time.Second, notifier.check)
	}

	// Domain services.
	coordinator := order.NewCoordinator(st.store,
		order.WithTxTimeout(cfg.Database.TxTimeout),
		order.WithTracerProvider(m.TracerProvider()),
	)
	orderService, err := order.NewService(coordinator, st.orders, catalog, notifier.detached,
		order.WithMeterProvider(m.MeterProvider()),
	)
	if err != nil {
		return errors.Wrap(err, "create order service")
	}

	h := handler.NewHandler(orderService, catalog)

	mux := chi.NewRouter()
	mux.Get("/livez", healthSvc.LiveEndpoint)
	mux.Get("/readyz", healthSvc.ReadyEndpoint)
	mux.Mount("/api", h.Routes())

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      cfg.Database.TxTimeout + 5*time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: otelhttp.NewHandler(
			httpmiddleware.Wrap(mux,
				httpmiddleware.InjectLogger(lg),
				httpmiddleware.Recovery(),
				httpmiddleware.RequestID(),
				httpmiddleware.LogRequests(),
				httpmiddleware.RateLimit(ctx, httpmiddleware.RateLimitConfig{
					Max:    cfg.RateLimit.Max,
					Window: cfg.RateLimit.Window,
					Skip:   notPurchase,
				}),
			),
			"purchase-api",
			otelhttp.WithTracerProvider(m.TracerProvider()),
			otelhttp.WithMeterProvider(m.MeterProvider()),
		),
	}

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
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
		// Requests are done; orders committed by them may still be notifying.
		if err := notifier.shutdown(shutdownCtx); err != nil {
			lg.Warn("Notifications not drained", zap.Error(err))
		}
		healthSvc.Stop()
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// notPurchase exempts everything but order placement from rate limiting.
func notPurchase(r *http.Request) bool {
	return r.Method != http.MethodPost || strings.TrimSuffix(r.URL.Path, "/") != "/api/orders"
}
