package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xenking/golden-feast/internal/domain/checkout"
	"github.com/xenking/golden-feast/internal/domain/order"
	"github.com/xenking/golden-feast/internal/domain/payment"
	"github.com/xenking/golden-feast/internal/domain/product"
	"github.com/xenking/golden-feast/internal/domain/user"
	"github.com/xenking/golden-feast/internal/handler"
	"github.com/xenking/golden-feast/internal/jwtauth"
	"github.com/xenking/golden-feast/internal/notify"
	"github.com/xenking/golden-feast/internal/provider/stripe"
	"github.com/xenking/golden-feast/internal/storage/memory"
	"github.com/xenking/golden-feast/internal/storage/postgres"
	rediscache "github.com/xenking/golden-feast/internal/storage/redis"
	"github.com/xenking/golden-feast/pkg/health"
	"github.com/xenking/golden-feast/pkg/httpmiddleware"
)

const serviceName = "golden-feast"

// stores groups the repositories selected by Storage.Driver.
type stores struct {
	orders   order.Repository
	products product.Repository
	users    user.Repository
	close    func()
}

func openStores(ctx context.Context, cfg *Config, h *health.Health) (*stores, error) {
	if cfg.Storage.Driver == DriverMemory {
		products, err := memory.NewSeededProductRepository()
		if err != nil {
			return nil, err
		}
		return &stores{
			orders:   memory.NewOrderRepository(),
			products: products,
			users:    memory.NewUserRepository(),
			close:    func() {},
		}, nil
	}

	conn := postgres.NewConnector(cfg.DatabaseURL, cfg.Storage.Migrate)
	pool, err := conn.Pool(ctx)
	if err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "connect postgres")
	}
	h.Register(health.Readiness, "postgres", health.PingCheck(pool))
	return &stores{
		orders:   postgres.NewOrderRepository(pool),
		products: postgres.NewProductRepository(pool),
		users:    postgres.NewUserRepository(pool),
		close:    conn.Close,
	}, nil
}

// paymentProvider returns nil interfaces when Stripe is not configured so
// checkout can tell "absent" apart from a typed nil.
func paymentProvider(cfg StripeConfig) (payment.Provider, payment.EventVerifier, error) {
	var (
		provider payment.Provider
		verifier payment.EventVerifier
	)
	if cfg.SecretKey != "" {
		p, err := stripe.NewProvider(stripe.Config{SecretKey: cfg.SecretKey, Currency: cfg.Currency})
		if err != nil {
			return nil, nil, errors.Wrap(err, "stripe provider")
		}
		provider = p
	}
	if cfg.WebhookSecret != "" {
		v, err := stripe.NewVerifier(cfg.WebhookSecret)
		if err != nil {
			return nil, nil, errors.Wrap(err, "stripe verifier")
		}
		verifier = v
	}
	return provider, verifier, nil
}

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application. m is usually
// the *app.Telemetry handed over by app.Run.
func Run(ctx context.Context, lg *zap.Logger, m httpmiddleware.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("storage", cfg.Storage.Driver),
		zap.Bool("test_payment", cfg.Checkout.TestPayment),
	)

	healthSvc := health.New()
	healthSvc.Register(health.Liveness, "goroutines", health.GoroutineCountCheck(10000), health.WithTimeout(time.Second))

	st, err := openStores(ctx, cfg, healthSvc)
	if err != nil {
		return err
	}
	defer st.close()

	products := st.products
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() { _ = rdb.Close() }()
		products = rediscache.NewProductCache(rdb, products, cfg.Redis.TTL)
		healthSvc.Register(health.Readiness, "redis", health.RedisCheck(rdb))
	}

	tokens, err := jwtauth.New(cfg.Auth.JWTSecret, jwtauth.WithTTL(cfg.Auth.TokenTTL))
	if err != nil {
		return errors.Wrap(err, "tokens")
	}

	hub := notify.NewHub(cfg.Bus.SendBuffer)
	orderSvc, err := order.NewService(st.orders, products, notify.NewPublisher(hub),
		order.WithTracerProvider(m.TracerProvider()),
		order.WithMeterProvider(m.MeterProvider()),
	)
	if err != nil {
		return errors.Wrap(err, "order service")
	}

	provider, verifier, err := paymentProvider(cfg.Stripe)
	if err != nil {
		return err
	}
	checkoutSvc := checkout.NewService(orderSvc, provider, verifier, checkout.Config{
		TestPayment: cfg.Checkout.TestPayment,
	})

	socket := notify.NewServer(hub, tokens, notify.ServerConfig{
		PingInterval:   cfg.Bus.PingInterval,
		AllowedOrigins: cfg.CORS.Origins,
	})
	h := handler.NewHandler(
		handler.HandlerConfig{ImageBaseURL: cfg.ImageBaseURL},
		products,
		orderSvc,
		checkoutSvc,
		user.NewService(st.users, tokens),
		socket,
	)

	router := chi.NewRouter()
	router.Use(
		httpmiddleware.Instrument(serviceName, m),
		httpmiddleware.LogRequests(),
	)
	router.Get("/livez", healthSvc.LiveEndpoint)
	router.Get("/readyz", healthSvc.ReadyEndpoint)
	router.Route("/api", func(r chi.Router) {
		r.Use(
			httpmiddleware.Authenticate(tokens),
			httpmiddleware.RateLimit(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
		)
		h.Routes(r)
	})

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(router,
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.RequestID(),
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", "Stripe-Signature"},
				ExposeHeaders:    []string{httpmiddleware.HeaderRequestID},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
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
