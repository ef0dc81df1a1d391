package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"hrassist/internal/domain/assistant"
	"hrassist/internal/domain/audit"
	"hrassist/internal/domain/credential"
	"hrassist/internal/domain/identity"
	"hrassist/internal/domain/intent"
	"hrassist/internal/domain/leave"
	"hrassist/internal/domain/notifications"
	"hrassist/internal/domain/query"
	"hrassist/internal/domain/retrieval"
	"hrassist/internal/platform/config"
	"hrassist/internal/platform/db"
	"hrassist/internal/platform/email"
	"hrassist/internal/platform/events"
	"hrassist/internal/platform/jobs"
	"hrassist/internal/platform/llm"
	"hrassist/internal/platform/metrics"
	"hrassist/internal/platform/tracing"
	"hrassist/internal/transport/http/api"
	audithandler "hrassist/internal/transport/http/handlers/audit"
	authhandler "hrassist/internal/transport/http/handlers/auth"
	chathandler "hrassist/internal/transport/http/handlers/chat"
	datasethandler "hrassist/internal/transport/http/handlers/dataset"
	leavehandler "hrassist/internal/transport/http/handlers/leave"
	notificationshandler "hrassist/internal/transport/http/handlers/notifications"
	policyhandler "hrassist/internal/transport/http/handlers/policy"
	"hrassist/internal/transport/http/middleware"
	"hrassist/internal/transport/inbox"
)

const devJWTSecret = "hrassist-development-secret-do-not-deploy"

type App struct {
	Config  config.Config
	Router  http.Handler
	Jobs    *jobs.Service
	Policy  *retrieval.Engine
	Gate    *credential.Gate
	Metrics *metrics.Collector

	pool            *pgxpool.Pool
	redis           *redis.Client
	publisher       events.Publisher
	shutdownTracing tracing.ShutdownFunc
	cancel          context.CancelFunc
}

// backends groups the stores for one STORE_DRIVER.
type backends struct {
	audit         audit.Recorder
	identities    identity.StoreAPI
	credentials   credential.StoreAPI
	leave         leave.StoreAPI
	notifications notifications.StoreAPI
	policy        retrieval.StoreAPI
	executor      query.Executor
	runs          jobs.RunStore
}

func memoryBackends() backends {
	log := audit.NewMemoryLog()
	identities := identity.NewMemoryStore(log)
	notes := notifications.NewMemoryStore()
	leaveStore := leave.NewMemoryStore(identities, log, notes)
	return backends{
		audit:         log,
		identities:    identities,
		credentials:   credential.NewMemoryStore(log),
		leave:         leaveStore,
		notifications: notes,
		policy:        retrieval.NewMemoryStore(log),
		executor: query.NewMemoryExecutor(map[string]query.TableSource{
			"identities":     identities.Rows,
			"leave_requests": leaveStore.Rows,
		}),
	}
}

func postgresBackends(pool *pgxpool.Pool) backends {
	return backends{
		audit:         audit.New(pool),
		identities:    identity.NewStore(pool),
		credentials:   credential.NewStore(pool),
		leave:         leave.NewStore(pool),
		notifications: notifications.NewStore(pool),
		policy:        retrieval.NewStore(pool),
		executor:      query.NewPGExecutor(pool),
		runs:          jobs.PGRuns{DB: pool},
	}
}

// New wires the application. Background jobs and the policy inbox run until Close.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.JWTSecret == "" {
		zap.L().Warn("JWT_SECRET not set, using the development secret")
		cfg.JWTSecret = devJWTSecret
	}

	app := &App{Config: cfg, Metrics: metrics.New()}
	ok := false
	defer func() {
		if !ok {
			app.Close()
		}
	}()

	shutdown, err := tracing.Init(ctx, cfg)
	if err != nil {
		return nil, err
	}
	app.shutdownTracing = shutdown

	var stores backends
	switch cfg.StoreDriver {
	case config.StoreMemory:
		stores = memoryBackends()
	default:
		pool, err := db.Connect(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		app.pool = pool
		if cfg.RunMigrations {
			if err := db.Migrate(ctx, pool); err != nil {
				return nil, fmt.Errorf("run migrations: %w", err)
			}
		}
		stores = postgresBackends(pool)
	}
	if cfg.RunSeed {
		if err := db.Seed(ctx, stores.identities, cfg); err != nil {
			return nil, err
		}
	}

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		app.redis = redis.NewClient(opts)
	}

	publisher, err := events.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("create event publisher: %w", err)
	}
	app.publisher = publisher

	gen, embedder := modelBackends(cfg, app.Metrics)
	mailer := email.New(cfg)
	app.Jobs = jobs.New(stores.runs)

	dispatcher := notifications.New(stores.notifications, notifications.Options{
		Hub:        notifications.NewHub(),
		Publisher:  publisher,
		Mailer:     mailer,
		Jobs:       app.Jobs,
		Identities: stores.identities,
		From:       cfg.EmailFrom,
		HRMailbox:  cfg.HRMailbox,
	})

	schema, err := query.DefaultSchema()
	if err != nil {
		return nil, err
	}
	dataEngine := query.NewEngine(schema, stores.executor, gen, stores.audit, app.Metrics)

	app.Policy, err = retrieval.NewEngine(stores.policy, embedder, gen, retrieval.Options{
		TopK:         cfg.RetrievalTopK,
		MinScore:     cfg.RetrievalMinScore,
		ChunkSize:    cfg.ChunkSize,
		ChunkOverlap: cfg.ChunkOverlap,
		CacheSize:    cfg.AnswerCacheSize,
		Metrics:      app.Metrics,
	})
	if err != nil {
		return nil, err
	}
	if err := app.Policy.Load(ctx); err != nil {
		return nil, err
	}

	workflow := leave.NewService(stores.leave, stores.identities, dispatcher, app.Metrics)
	app.Gate = credential.NewGate(stores.credentials, stores.identities, credential.GateOptions{
		TTL:        cfg.OTPTTL,
		Mailer:     mailer,
		From:       cfg.EmailFrom,
		ExposeCode: !cfg.IsProduction() && (!cfg.EmailEnabled || cfg.EmailDisableSend),
		Metrics:    app.Metrics,
	})
	sessions := credential.NewSessions(cfg.JWTSecret, cfg.SessionTTL)
	hr := assistant.New(intent.NewRouter(gen, app.Metrics), dataEngine, app.Policy, workflow, gen)

	app.Jobs.Every(cfg.OTPCleanupInterval, jobs.JobOTPCleanup, func(ctx context.Context) (any, error) {
		purged, err := app.Gate.PurgeExpired(ctx, time.Now())
		return map[string]any{"purged": purged}, err
	})

	runCtx, cancel := context.WithCancel(context.Background())
	app.cancel = cancel
	app.Jobs.Start(runCtx)
	if cfg.PolicyInboxDir != "" {
		watcher := inbox.New(cfg.PolicyInboxDir, app.Policy, app.Jobs)
		go func() {
			if err := watcher.Run(runCtx); err != nil {
				zap.L().Error("policy inbox stopped", zap.String("dir", cfg.PolicyInboxDir), zap.Error(err))
			}
		}()
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Auth(sessions))
	router.Use(middleware.Logger(app.Metrics))
	router.Use(middleware.SecureHeaders(cfg.IsProduction()))
	router.Use(middleware.BodyLimit(cfg.MaxBodyBytes))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.Get("/readyz", app.handleReady)
	if cfg.MetricsEnabled {
		router.Handle("/metrics", app.Metrics.Handler())
	}

	limitOpts := []middleware.RateLimitOption{}
	if app.redis != nil {
		limitOpts = append(limitOpts, middleware.WithRedis(app.redis, "rl:api:"))
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RateLimit(cfg.RateLimitPerMinute, time.Minute, limitOpts...))
		r.Use(middleware.SensitiveMutationRateLimit(cfg.RateLimitPerMinute, time.Minute, app.redis))

		authHandler := authhandler.NewHandler(app.Gate, sessions, cfg.AdminIdentityKey)
		r.Post("/auth/request-otp", authHandler.HandleRequestOTP)
		r.Post("/auth/verify-otp", authHandler.HandleVerifyOTP)

		chathandler.NewHandler(hr).RegisterRoutes(r)
		leavehandler.NewHandler(workflow).RegisterRoutes(r)
		notificationshandler.NewHandler(dispatcher, cfg.AllowedOrigins).RegisterRoutes(r)
		policyhandler.NewHandler(app.Policy, app.Jobs).RegisterRoutes(r)
		datasethandler.NewHandler(stores.identities).RegisterRoutes(r)
		audithandler.NewHandler(stores.audit).RegisterRoutes(r)
	})

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		api.Fail(w, http.StatusNotFound, "not_found", "route not found", middleware.GetRequestID(r.Context()))
	})

	app.Router = otelhttp.NewHandler(router, tracing.ServiceName)
	ok = true
	zap.L().Info("application ready",
		zap.String("store", cfg.StoreDriver),
		zap.String("llm", cfg.LLMProvider),
		zap.String("events", cfg.EventsBackend),
		zap.Bool("redis", app.redis != nil))
	return app, nil
}

// modelBackends returns a nil generator in local mode; callers fall back to rules and extraction.
func modelBackends(cfg config.Config, m *metrics.Collector) (llm.Generator, llm.Embedder) {
	if cfg.LLMProvider != "openai" {
		return nil, llm.NewHashEmbedder(cfg.EmbeddingDim)
	}
	client := llm.NewClient(llm.ClientConfig{
		BaseURL:        cfg.LLMBaseURL,
		APIKey:         cfg.LLMAPIKey,
		Model:          cfg.LLMModel,
		EmbeddingModel: cfg.EmbeddingModel,
		Timeout:        cfg.LLMTimeout,
		MaxRetries:     cfg.LLMMaxRetries,
	})
	client.OnFailure = m.ProviderFailure
	return client, client
}

func (a *App) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if a.pool != nil {
		if err := a.pool.Ping(ctx); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
	}
	if a.redis != nil {
		if err := a.redis.Ping(ctx).Err(); err != nil {
			http.Error(w, "redis not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (a *App) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			zap.L().Warn("close event publisher", zap.Error(err))
		}
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.shutdownTracing != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.shutdownTracing(ctx); err != nil {
			zap.L().Warn("shutdown tracing", zap.Error(err))
		}
	}
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func Run(ctx context.Context, cfg config.Config) error {
	app, err := New(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("hrassist listening", zap.String("addr", cfg.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
