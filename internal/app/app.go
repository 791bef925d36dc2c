package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"tutordesk/common/logger"
	commonmetrics "tutordesk/common/metrics"
	"tutordesk/common/telemetry"
	"tutordesk/internal/auth"
	"tutordesk/internal/config"
	"tutordesk/internal/health"
	"tutordesk/internal/mail"
	"tutordesk/internal/metrics"
	"tutordesk/internal/middleware"
	"tutordesk/internal/notification"
	"tutordesk/internal/scheduler"
	"tutordesk/internal/student"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const healthWatchInterval = 15 * time.Second

type App struct {
	config *config.Config
	router chi.Router
	server *http.Server
	logger *slog.Logger

	scheduler     *scheduler.Scheduler
	grpcServer    *health.GRPCServer
	health        *health.Handler
	meterProvider *sdkmetric.MeterProvider

	stopWatch context.CancelFunc
	closers   []closer
}

// closer releases one resource on shutdown. Closers run in reverse order of acquisition.
type closer struct {
	name  string
	close func(ctx context.Context) error
}

// New loads configuration from the environment and builds the application.
func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	slogLogger := logger.NewWithServiceContext(ServiceName, Version, logger.Options{
		Env:   cfg.Env,
		Level: cfg.LogLevel,
	})

	// Set as default logger so slog.Info() uses the service format
	slog.SetDefault(slogLogger)

	slogLogger.Info("config loaded", "env", cfg.Env, "database", cfg.Database.Driver, "events", cfg.Events.Driver)

	return NewWithConfig(ctx, cfg, slogLogger)
}

// NewWithConfig wires every component from cfg. On error, anything already opened is released.
func NewWithConfig(ctx context.Context, cfg *config.Config, slogLogger *slog.Logger) (*App, error) {
	slogLogger.Info("initializing application", "version", Version, "commit", GitCommit, "build_time", BuildTime)

	app := &App{
		config: cfg,
		router: chi.NewRouter(),
		logger: slogLogger,
	}

	if err := app.build(ctx); err != nil {
		_ = app.closeAll(context.Background())
		return nil, err
	}

	slogLogger.Info("application initialized successfully")
	return app, nil
}

func (a *App) build(ctx context.Context) error {
	cfg := a.config

	infraMetrics, err := a.initMetrics(ctx)
	if err != nil {
		return err
	}
	domainMetrics, err := metrics.New(otel.Meter(ServiceName))
	if err != nil {
		return fmt.Errorf("failed to initialize domain metrics: %w", err)
	}

	location, err := time.LoadLocation(cfg.Scheduler.Timezone)
	if err != nil {
		return fmt.Errorf("invalid scheduler timezone %q: %w", cfg.Scheduler.Timezone, err)
	}
	clock := func() time.Time { return time.Now().In(location) }

	repo, checks, err := a.openStore(ctx, infraMetrics)
	if err != nil {
		return err
	}

	locker, lockChecks, err := a.openLocker(ctx)
	if err != nil {
		return err
	}
	checks = append(checks, lockChecks...)

	publisher, err := a.openPublisher(infraMetrics)
	if err != nil {
		return err
	}

	sender, err := mail.NewSender(cfg.Mail, a.logger)
	if err != nil {
		return err
	}
	notifier, err := notification.NewNotifier(sender, a.logger, domainMetrics)
	if err != nil {
		return fmt.Errorf("failed to initialize notifier: %w", err)
	}

	studentService := student.NewService(repo, student.WithClock(clock), student.WithLogger(a.logger))
	if cfg.Database.Seed {
		n, err := student.SeedSampleData(ctx, studentService)
		if err != nil {
			return fmt.Errorf("failed to seed sample data: %w", err)
		}
		a.logger.Info("sample data seeded", "created", n)
	}
	studentHandler := student.NewHandler(studentService, a.logger, domainMetrics,
		student.WithNotifier(notifier),
		student.WithPublisher(publisher),
	)

	a.scheduler, err = a.newScheduler(studentService, notifier, locker, location, clock, domainMetrics)
	if err != nil {
		return err
	}
	schedulerHandler := scheduler.NewHandler(a.scheduler, a.logger)

	names := make([]string, 0, len(checks))
	for _, c := range checks {
		names = append(names, c.Name)
	}
	if err := infraMetrics.Health.RegisterDependencies(otel.Meter(ServiceName), names...); err != nil {
		a.logger.Warn("failed to register dependency metrics", "error", err)
	}
	a.health = health.NewHandler(a.logger, infraMetrics, checks...)
	if cfg.Grpc.Port != "" {
		a.grpcServer = health.NewGRPCServer(a.logger)
		a.health.WithGRPC(a.grpcServer)
	}

	a.router.Use(chimw.RequestID)
	a.router.Use(chimw.RealIP)
	a.router.Use(middleware.RequestLogger(a.logger))
	a.router.Use(chimw.Recoverer)
	a.router.Use(middleware.CORS(cfg.Server.CORSOrigins))

	// Health endpoints (no auth required)
	a.health.RegisterRoutes(a.router)

	var authService *auth.Service
	if cfg.Auth.Enabled() {
		authService = auth.NewService(cfg.Auth)
		auth.NewHandler(authService, a.logger, cfg.Env).RegisterRoutes(a.router)
	} else {
		a.logger.Warn("auth disabled, student API is unprotected")
	}

	// Student and scheduler endpoints (auth required when configured)
	a.router.Group(func(r chi.Router) {
		if authService != nil {
			r.Use(auth.Middleware(authService, a.logger))
		}
		studentHandler.RegisterRoutes(r)
		schedulerHandler.RegisterRoutes(r)
	})

	return nil
}

// initMetrics installs the OTLP meter provider when telemetry is enabled.
// Otherwise instruments are created on the global no-op provider.
func (a *App) initMetrics(ctx context.Context) (*commonmetrics.Metrics, error) {
	cfg := a.config.Telemetry
	if !cfg.Enabled {
		return commonmetrics.New(ServiceName, a.logger)
	}

	tel, err := telemetry.Init(ctx, telemetry.Options{
		ServiceName:    ServiceName,
		ServiceVersion: Version,
		Env:            a.config.Env,
		Endpoint:       cfg.Endpoint,
		Interval:       time.Duration(cfg.IntervalSeconds) * time.Second,
	}, a.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	a.meterProvider = tel.MeterProvider
	return tel.Metrics, nil
}

func (a *App) newScheduler(
	students scheduler.StudentSource,
	notifier notification.Notifier,
	locker scheduler.Locker,
	location *time.Location,
	clock func() time.Time,
	m *metrics.Metrics,
) (*scheduler.Scheduler, error) {
	cfg := a.config.Scheduler

	s := scheduler.New(scheduler.Options{
		Location: location,
		Locker:   locker,
		LockTTL:  cfg.LockTTL(),
		Logger:   a.logger,
		Metrics:  m,
	})

	// Disabled scheduling still allows manual runs over HTTP.
	expirySpec, paymentSpec := cfg.ExpiryCron, cfg.PaymentCron
	if !cfg.Enabled {
		expirySpec, paymentSpec = "", ""
	}

	if err := s.Register(expirySpec, scheduler.NewExpiryCheckJob(students, notifier, cfg.ExpiryDaysBefore)); err != nil {
		return nil, err
	}
	if err := s.Register(paymentSpec, scheduler.NewPaymentReminderJob(students, notifier, clock)); err != nil {
		return nil, err
	}
	return s, nil
}

func (a *App) addCloser(name string, fn func(ctx context.Context) error) {
	a.closers = append(a.closers, closer{name: name, close: fn})
}

func (a *App) closeAll(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.close(ctx); err != nil {
			a.logger.Error("failed to close resource", "resource", c.name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", c.name, err))
		}
	}
	a.closers = nil

	if err := telemetry.Shutdown(ctx, a.meterProvider, a.logger); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Router exposes the HTTP handler, mainly for tests.
func (a *App) Router() http.Handler {
	return a.router
}

func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	a.stopWatch = cancel

	if a.config.Scheduler.Enabled {
		a.scheduler.Start()
	}

	errCh := make(chan error, 2)

	if a.grpcServer != nil {
		go a.health.Watch(ctx, healthWatchInterval)
		go func() {
			if err := a.grpcServer.ListenAndServe(a.config.Grpc.Port); err != nil {
				errCh <- fmt.Errorf("gRPC server: %w", err)
			}
		}()
	}

	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%s", a.config.Server.Port),
		Handler:      a.router,
		ReadTimeout:  time.Duration(a.config.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(a.config.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(a.config.Server.IdleTimeout) * time.Second,
	}

	go func() {
		a.logger.Info("server starting", "port", a.config.Server.Port)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
			return
		}
		errCh <- nil
	}()

	return <-errCh
}

func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down servers")

	var errs []error

	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("HTTP server: %w", err))
		}
	}

	if a.stopWatch != nil {
		a.stopWatch()
	}
	if a.grpcServer != nil {
		a.grpcServer.Shutdown(ctx)
	}

	if err := a.scheduler.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("scheduler: %w", err))
	}

	if err := a.closeAll(ctx); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}
