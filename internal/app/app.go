// Package app wires configuration, storage, domain services and the HTTP
// server together.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xenking/hdcontrol/internal/domain/auth"
	"github.com/xenking/hdcontrol/internal/domain/ledger"
	"github.com/xenking/hdcontrol/internal/domain/order"
	"github.com/xenking/hdcontrol/internal/domain/payment"
	"github.com/xenking/hdcontrol/internal/domain/product"
	"github.com/xenking/hdcontrol/internal/domain/recovery"
	"github.com/xenking/hdcontrol/internal/domain/user"
	"github.com/xenking/hdcontrol/internal/handler"
	"github.com/xenking/hdcontrol/internal/notify"
	"github.com/xenking/hdcontrol/internal/storage/rediscache"
	"github.com/xenking/hdcontrol/pkg/health"
	"github.com/xenking/hdcontrol/pkg/httpmiddleware"
)

const serviceName = "hdcontrol"

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("store", cfg.Store.Driver),
		zap.String("notifier", cfg.Notifier.Driver),
	)

	backend, err := OpenStore(ctx, lg, cfg)
	if err != nil {
		return err
	}
	defer backend.Close()

	checks := health.New()
	checks.Add(health.Liveness, "goroutines", time.Second, health.Goroutines(10000))
	checks.Add(health.Liveness, "gc_pause", time.Second, health.GCPause(time.Second))
	if backend.Ping != nil {
		checks.Add(health.Readiness, "postgres", 5*time.Second, backend.Ping)
	}

	// Optional product cache.
	var cache product.Cache
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() { _ = client.Close() }()
		if err := client.Ping(ctx).Err(); err != nil {
			return errors.Wrap(err, "ping redis")
		}
		cache = rediscache.NewProductCache(client, cfg.Redis.TTL)
		checks.Add(health.Readiness, "redis", 2*time.Second, health.Redis(client))
	}

	notifier, err := openNotifier(cfg.Notifier, checks)
	if err != nil {
		return err
	}
	defer func() { _ = notifier.Close() }()

	// Domain services.
	hasher := user.NewBcryptHasher(cfg.Bcrypt.Cost)
	items := ledger.New(backend.Tx, backend.Lines, backend.Products, backend.Orders)
	h := handler.New(
		handler.Config{RecoveryLifetime: cfg.Recovery.TokenLifetime},
		handler.Services{
			Products: product.NewService(backend.Products, cache),
			Orders: order.NewService(backend.Tx, backend.Orders, items, backend.Users, backend.Payments,
				order.WithTracerProvider(m.TracerProvider()),
				order.WithMeterProvider(m.MeterProvider()),
			),
			Ledger: items,
			Payments: payment.NewService(backend.Tx, backend.Payments, backend.Orders,
				payment.WithMeterProvider(m.MeterProvider()),
			),
			Recovery: recovery.NewService(backend.Tx, backend.Tokens, backend.Users, hasher, notifier,
				recovery.Config{URI: cfg.Recovery.URI, Subject: cfg.Recovery.Subject},
			),
			Users: user.NewService(backend.Tx, backend.Users, hasher),
			Auth: auth.NewAuthenticator(backend.APIKeys, backend.Users, []byte(cfg.APIKeyPepper)),
		},
	)

	// Health endpoints and the API on one router.
	router := h.Router("/api")
	router.Get("/livez", checks.Handler(health.Liveness))
	router.Get("/readyz", checks.Handler(health.Readiness))
	routes := httpmiddleware.ChiRoutes(router)

	checks.Start(ctx, 10*time.Second)
	checks.SetReady(true)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(router,
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(lg),
			httpmiddleware.Recovery(),
			httpmiddleware.Instrument(serviceName, routes, m.TracerProvider(), m.MeterProvider()),
			httpmiddleware.LogRequests(routes),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				Origins:     cfg.CORS.Origins,
				Headers:     []string{"Content-Type", handler.HeaderAPIKey, httpmiddleware.HeaderRequestID},
				Credentials: cfg.CORS.AllowCredentials,
				MaxAge:      24 * time.Hour,
			}),
			httpmiddleware.RateLimit(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		checks.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		checks.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// closingNotifier is a recovery.Notifier owned by Run.
type closingNotifier interface {
	recovery.Notifier
	Close() error
}

type nopCloser struct {
	recovery.Notifier
}

func (nopCloser) Close() error { return nil }

func openNotifier(cfg NotifierConfig, checks *health.Checker) (closingNotifier, error) {
	if cfg.Driver != NotifierAMQP {
		return nopCloser{notify.LogNotifier{}}, nil
	}
	n, err := notify.DialAMQP(cfg.AMQPURL, cfg.Queue)
	if err != nil {
		return nil, errors.Wrap(err, "dial amqp")
	}
	checks.Add(health.Readiness, "amqp", 2*time.Second, health.Ping(n))
	return n, nil
}
