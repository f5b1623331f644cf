package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/HadjievK/BoKe/libs/auth"
	"github.com/HadjievK/BoKe/libs/config"
	"github.com/HadjievK/BoKe/libs/db"
	"github.com/HadjievK/BoKe/libs/grpcx"
	"github.com/HadjievK/BoKe/libs/httpx"
	"github.com/HadjievK/BoKe/libs/kafkax"
	otelx "github.com/HadjievK/BoKe/libs/otel"
	"github.com/HadjievK/BoKe/libs/runtime"
	"github.com/HadjievK/BoKe/services/booking-service/internal/booking"
	"github.com/HadjievK/BoKe/services/booking-service/internal/handlers"
	"github.com/HadjievK/BoKe/services/booking-service/internal/outbox"
	"github.com/HadjievK/BoKe/services/booking-service/internal/storage"
)

func main() {
	if err := config.LoadDotenv(); err != nil {
		panic(err)
	}
	service := config.String("SERVICE_NAME", "booking-service")
	port, err := config.Port("PORT", "8083")
	if err != nil {
		panic(err)
	}
	grpcPort, err := config.Port("GRPC_PORT", "9083")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service, config.String("LOG_LEVEL", "info"))

	loc, err := time.LoadLocation(config.String("TIMEZONE", "UTC"))
	if err != nil {
		panic(err)
	}

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL, db.Options{
		MaxConns:         int32(config.Int("DB_MAX_CONNS", 10)),
		StatementTimeout: config.Duration("DB_STATEMENT_TIMEOUT_MS", 5*time.Second, time.Millisecond),
	})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	if config.Bool("MIGRATE_ON_START", true) {
		if err := db.Migrate(ctx, pool, storage.Migrations, storage.MigrationsDir, logger); err != nil {
			logger.Error("migrations failed", "err", err)
			panic(err)
		}
	}

	outboxRepo := outbox.NewRepository()
	bookingRepo := storage.NewBookingRepository(pool, outboxRepo)
	catalogRepo := storage.NewCatalogRepository(pool)

	bookings := booking.NewService(catalogRepo, bookingRepo, logger, booking.Options{
		Location:        loc,
		DefaultDuration: config.Int("DEFAULT_SERVICE_MINUTES", booking.DefaultDurationMinutes),
	})
	dashboard := booking.NewDashboard(bookingRepo, bookings)
	h := handlers.New(bookings, dashboard, catalogRepo, logger)

	brokers := kafkax.SplitBrokers(config.String("KAFKA_BROKERS", ""))
	checks := []runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(pool)}}
	if len(brokers) > 0 {
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
	}

	limitPerMinute := config.Int("RATE_LIMIT_PER_MINUTE", 60)
	var rateLimitMW httpx.Middleware
	if addr := strings.TrimSpace(config.String("REDIS_ADDR", "")); addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       config.Int("REDIS_DB", 0),
		})
		defer func() { _ = rdb.Close() }()

		rl := httpx.NewRedisRateLimiter(rdb, limitPerMinute, time.Minute, config.String("RATE_LIMIT_PREFIX", "booking-rl"))
		rateLimitMW = rl.Middleware(logger, config.Bool("RATE_LIMIT_FAIL_OPEN", true))
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: rl.Ping})
		logger.Info("rate limiting enabled (redis)", "per_minute", limitPerMinute, "redis_addr", addr)
	} else {
		rateLimitMW = httpx.NewRateLimiter(limitPerMinute, time.Minute).Middleware()
		logger.Info("rate limiting enabled (in-memory)", "per_minute", limitPerMinute)
	}

	// Without key material the dashboard trusts the provider header set by the
	// gateway in front of this service.
	var authMW httpx.Middleware
	var jwksClient *auth.JWKSClient
	if jwksURL := config.String("AUTH_JWKS_URL", ""); jwksURL != "" {
		jwksClient = auth.NewJWKSClient(jwksURL, config.Duration("AUTH_JWKS_CACHE_SECONDS", 5*time.Minute, time.Second))
	}
	if verifier := auth.NewVerifier(config.String("AUTH_JWT_SECRET", ""), jwksClient); verifier.Enabled() {
		authMW = auth.RequireProvider(verifier, handlers.ProviderIDHeader, isUnauthenticated)
		logger.Info("provider token auth enabled", "jwks", jwksClient != nil)
	}

	mux := runtime.NewBaseMuxWithReady(checks...)
	h.Register(mux)

	httpHandler := httpx.Chain(mux,
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins:   config.List("CORS_ALLOWED_ORIGINS", ""),
			AllowedMethods:   config.List("CORS_ALLOWED_METHODS", "GET,POST,PUT,OPTIONS"),
			AllowedHeaders:   config.List("CORS_ALLOWED_HEADERS", "Authorization,Content-Type,X-Request-Id,Idempotency-Key,"+handlers.ProviderIDHeader),
			ExposedHeaders:   []string{httpx.RequestIDHeader, "Retry-After"},
			AllowCredentials: config.Bool("CORS_ALLOW_CREDENTIALS", false),
			MaxAge:           config.Duration("CORS_MAX_AGE_SECONDS", 10*time.Minute, time.Second),
		}),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(int64(config.Int("REQUEST_BODY_LIMIT_BYTES", 1<<20))),
		httpx.WithTimeout(config.Duration("REQUEST_TIMEOUT_SECONDS", 10*time.Second, time.Second)),
		authMW,
		httpx.ForPaths(handlers.Public, rateLimitMW),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcSrv := grpcx.NewServer(logger)
	lis, err := net.Listen("tcp", ":"+grpcPort)
	if err != nil {
		logger.Error("grpc listen failed", "err", err)
		panic(err)
	}

	publisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   brokers,
		PollEvery: config.Duration("OUTBOX_POLL_MS", 2*time.Second, time.Millisecond),
		BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50),
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return runtime.ServeHTTP(gctx, srv, 10*time.Second, logger)
	})
	g.Go(func() error {
		logger.Info("grpc server starting", "addr", lis.Addr().String())
		return grpcSrv.Serve(gctx, lis)
	})
	g.Go(func() error {
		watchReadiness(gctx, grpcSrv, checks, config.Duration("READINESS_POLL_SECONDS", 10*time.Second, time.Second), logger)
		return nil
	})
	g.Go(func() error {
		return publisher.Run(gctx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("booking-service exited", "err", err)
	}
}

func isUnauthenticated(path string) bool {
	return handlers.Public(path) || path == "/healthz" || path == "/readyz"
}

// watchReadiness mirrors the HTTP readiness checks into the gRPC health
// status until ctx is cancelled.
func watchReadiness(ctx context.Context, srv *grpcx.Server, checks []runtime.ReadyCheck, every time.Duration, logger *slog.Logger) {
	update := func() {
		failures := runtime.RunChecks(ctx, checks)
		if len(failures) > 0 && ctx.Err() == nil {
			logger.Warn("not ready", "failures", failures)
		}
		srv.SetServing("", len(failures) == 0)
	}

	update()
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			update()
		}
	}
}
