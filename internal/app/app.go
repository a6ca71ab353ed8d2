// Package app provides application initialization and lifecycle management.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/bissquit/incident-radar/api/openapi"
	"github.com/bissquit/incident-radar/internal/api"
	"github.com/bissquit/incident-radar/internal/config"
	"github.com/bissquit/incident-radar/internal/feeds"
	incidentspostgres "github.com/bissquit/incident-radar/internal/incidents/postgres"
	"github.com/bissquit/incident-radar/internal/notifications"
	"github.com/bissquit/incident-radar/internal/notifications/email"
	"github.com/bissquit/incident-radar/internal/notifications/mattermost"
	"github.com/bissquit/incident-radar/internal/notifications/telegram"
	"github.com/bissquit/incident-radar/internal/pkg/httputil"
	"github.com/bissquit/incident-radar/internal/pkg/metrics"
	"github.com/bissquit/incident-radar/internal/pkg/postgres"
	"github.com/bissquit/incident-radar/internal/snapshot"
	"github.com/bissquit/incident-radar/internal/sources"
	"github.com/bissquit/incident-radar/internal/subscribers"
	subscriberspostgres "github.com/bissquit/incident-radar/internal/subscribers/postgres"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// App represents the application instance.
type App struct {
	config        *config.Config
	logger        *slog.Logger
	db            *pgxpool.Pool
	cache         *snapshot.Cache
	scheduler     *snapshot.Scheduler
	subscribers   *subscribers.Store
	server        *http.Server
	metricsServer *http.Server
	cancel        context.CancelFunc
	ctx           context.Context
}

// New creates a new application instance.
func New(cfg *config.Config) (*App, error) {
	logger := initLogger(cfg.Log)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	app := &App{
		config: cfg,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}

	if err := app.connectDatabase(); err != nil {
		cancel()
		return nil, err
	}

	if err := app.setupPipeline(); err != nil {
		app.closeDatabase()
		cancel()
		return nil, fmt.Errorf("setup refresh pipeline: %w", err)
	}

	app.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:           app.setupRouter(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	metricsRouter := chi.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.Handler())

	app.metricsServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.MetricsPort),
		Handler:           metricsRouter,
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return app, nil
}

func (a *App) connectDatabase() error {
	if !a.config.Database.Enabled {
		a.logger.Warn("database disabled: incidents and subscribers are kept in memory only")
		return nil
	}

	db, err := postgres.Connect(a.ctx, postgres.Config{
		URL:             a.config.Database.URL,
		MaxOpenConns:    a.config.Database.MaxOpenConns,
		MaxIdleConns:    a.config.Database.MaxIdleConns,
		ConnMaxLifetime: a.config.Database.ConnMaxLifetime,
		ConnectAttempts: a.config.Database.ConnectAttempts,
		ConnectTimeout:  a.config.Database.ConnectTimeout,
	})
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}

	if a.config.Database.AutoMigrate {
		if err := postgres.Migrate(a.config.Database.URL); err != nil {
			db.Close()
			return fmt.Errorf("migrate database: %w", err)
		}
	}

	a.db = db
	go a.collectDBMetrics(a.ctx)
	return nil
}

func (a *App) closeDatabase() {
	if a.db != nil {
		a.db.Close()
	}
}

// setupPipeline wires sources, fetcher, notifiers and persistence into the cache.
func (a *App) setupPipeline() error {
	cfg := a.config

	sourceList := sources.Defaults()
	if len(cfg.Sources) > 0 {
		sourceList = make([]sources.Source, 0, len(cfg.Sources))
		for _, s := range cfg.Sources {
			sourceList = append(sourceList, sources.Source(s))
		}
	}
	registry, err := sources.NewRegistry(sourceList, cfg.Refresh.FetchTimeout)
	if err != nil {
		return fmt.Errorf("build source registry: %w", err)
	}
	a.logger.Info("sources configured",
		"sources", registry.Len(),
		"providers", registry.Providers(),
	)

	var (
		sink           snapshot.IncidentSink
		subscriberRepo subscribers.Repository
	)
	if a.db != nil {
		sink = incidentspostgres.NewRepository(a.db)
		subscriberRepo = subscriberspostgres.NewRepository(a.db)
	}

	a.subscribers = subscribers.NewStore(subscriberRepo)
	if err := a.subscribers.Load(a.ctx); err != nil {
		a.logger.Error("failed to load subscribers, continuing with empty set", "error", err)
	}

	notifier, err := a.setupNotifier()
	if err != nil {
		return err
	}

	fetcher := feeds.NewFetcher(feeds.Config{UserAgent: cfg.Refresh.UserAgent})
	orchestrator := snapshot.NewOrchestrator(registry, fetcher, notifier, sink, snapshot.OrchestratorConfig{
		NotifyTimeout:  cfg.Refresh.NotifyTimeout,
		PersistTimeout: cfg.Refresh.PersistTimeout,
	})

	a.cache = snapshot.NewCache(orchestrator, cfg.Refresh.TTL)

	a.scheduler, err = snapshot.NewScheduler(a.cache, cfg.Refresh.TTL)
	if err != nil {
		return err
	}
	return nil
}

func (a *App) setupNotifier() (*notifications.Notifier, error) {
	cfg := a.config.Notifications

	renderer, err := notifications.NewRenderer(cfg.MaxItems, cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("create notification renderer: %w", err)
	}

	targets := make([]notifications.ChatTarget, 0, len(cfg.Chat.Targets))
	for i, t := range cfg.Chat.Targets {
		channel := notifications.ChannelType(t.Type)
		if !channel.IsValid() {
			return nil, fmt.Errorf("chat target %d: unsupported type %q", i, t.Type)
		}
		targets = append(targets, notifications.ChatTarget{
			Type:   channel,
			Target: t.Target,
		})
	}

	webhookConfig := mattermost.Config{
		DefaultUsername: cfg.Chat.Username,
		DefaultIconURL:  cfg.Chat.IconURL,
		Timeout:         cfg.Chat.Timeout,
	}
	slackConfig := webhookConfig
	slackConfig.Channel = notifications.ChannelTypeSlack

	telegramSender, err := telegram.NewSender(telegram.Config{
		Enabled:   cfg.TelegramEnabled(),
		BotToken:  cfg.Telegram.BotToken,
		RateLimit: cfg.Telegram.RateLimit,
		APIURL:    cfg.Telegram.APIURL,
		Timeout:   cfg.Chat.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("create telegram sender: %w", err)
	}

	emailSender, err := email.NewSender(email.Config{
		Enabled:      cfg.Email.Enabled,
		SMTPHost:     cfg.Email.SMTPHost,
		SMTPPort:     cfg.Email.SMTPPort,
		SMTPUser:     cfg.Email.SMTPUser,
		SMTPPassword: cfg.Email.SMTPPassword,
		FromAddress:  cfg.Email.FromAddress,
		BatchSize:    cfg.Email.BatchSize,
		DisableTLS:   cfg.Email.DisableTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("create email sender: %w", err)
	}
	if !cfg.Email.Enabled {
		a.logger.Warn("email sender is disabled: digests will not be sent")
	}

	a.logger.Info("notifications configured",
		"chat_targets", len(targets),
		"email_enabled", cfg.Email.Enabled,
		"baseline_first_refresh", cfg.BaselineFirstRefresh,
		"ledger_capacity", cfg.LedgerCapacity,
	)

	chat := notifications.NewChatDispatcher(targets, renderer,
		mattermost.NewSender(webhookConfig),
		mattermost.NewSender(slackConfig),
		telegramSender,
	)
	digest := notifications.NewDigestDispatcher(a.subscribers, emailSender, renderer)
	detector := notifications.NewDetector(notifications.NewLedger(cfg.LedgerCapacity), cfg.BaselineFirstRefresh)

	return notifications.NewNotifier(detector, chat, digest), nil
}

func (a *App) setupRouter() *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware must be first to measure full request time
	r.Use(httputil.MetricsMiddleware)

	// CORS must be early to handle preflight requests before other middleware
	r.Use(httputil.CORSMiddleware(a.config.CORS.AllowedOrigins))
	r.Use(middleware.RequestID)
	r.Use(httputil.RequestLoggerMiddleware(a.logger))
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	var db api.Pinger
	if a.db != nil {
		db = a.db
	}
	handler := api.NewHandler(a.cache, a.subscribers, db)

	handler.RegisterProbeRoutes(r)

	r.Get("/api/openapi.yaml", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		_, _ = w.Write(openapi.Spec)
	})

	r.Route("/api/v1", handler.RegisterRoutes)

	return r
}

// Run starts the scheduler and the HTTP servers. It blocks until the main
// server stops.
func (a *App) Run() error {
	if err := a.scheduler.Start(a.ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	go func() {
		a.logger.Info("starting metrics server",
			"host", a.config.Server.Host,
			"port", a.config.Server.MetricsPort,
		)
		if err := a.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server error", "error", err)
		}
	}()

	a.logger.Info("starting server",
		"host", a.config.Server.Host,
		"port", a.config.Server.Port,
	)

	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown stops accepting requests, waits for a running refresh and closes the pool.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down")

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	collect := func(err error) {
		if err != nil {
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		}
	}

	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := a.server.Shutdown(ctx); err != nil {
			collect(fmt.Errorf("shutdown server: %w", err))
		}
	}()
	go func() {
		defer wg.Done()
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			collect(fmt.Errorf("shutdown metrics server: %w", err))
		}
	}()
	wg.Wait()

	collect(a.scheduler.Stop())

	a.cancel()
	a.closeDatabase()

	return errors.Join(errs...)
}

// Router returns the HTTP handler for testing.
func (a *App) Router() http.Handler {
	return a.server.Handler
}

// Cache returns the snapshot cache.
func (a *App) Cache() *snapshot.Cache {
	return a.cache
}

func (a *App) collectDBMetrics(ctx context.Context) {
	metrics.RecordDBPoolMetrics(a.db)

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			metrics.RecordDBPoolMetrics(a.db)
		case <-ctx.Done():
			return
		}
	}
}

func initLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler).With("service", "incident-radar")
}
