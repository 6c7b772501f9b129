package app

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"contrib.go.opencensus.io/integrations/ocsql"
	"github.com/redis/go-redis/v9"

	"github.com/Notifuse/outreach/config"
	"github.com/Notifuse/outreach/internal/database"
	"github.com/Notifuse/outreach/internal/domain"
	httpHandler "github.com/Notifuse/outreach/internal/http"
	"github.com/Notifuse/outreach/internal/http/middleware"
	"github.com/Notifuse/outreach/internal/repository"
	"github.com/Notifuse/outreach/internal/service"
	"github.com/Notifuse/outreach/internal/service/campaign"
	"github.com/Notifuse/outreach/internal/service/queue"
	"github.com/Notifuse/outreach/pkg/logger"
	"github.com/Notifuse/outreach/pkg/mailer"
	"github.com/Notifuse/outreach/pkg/tracing"
)

// Scheduled job names
const (
	JobDelivery  = "delivery"
	JobReaper    = "reaper"
	JobCampaigns = "campaigns"
)

// AppInterface defines the interface for the App
type AppInterface interface {
	Initialize() error
	Start() error
	Shutdown(ctx context.Context) error

	// Getters for app components accessed in tests
	GetConfig() *config.Config
	GetLogger() logger.Logger
	GetMux() *http.ServeMux
	GetDB() *sql.DB
	GetMailTransport() domain.MailTransport
	GetScheduler() *Scheduler

	// Server status methods
	IsServerCreated() bool
	WaitForServerStart(ctx context.Context) bool

	// Methods for initialization steps
	InitDB() error
	InitRedis() error
	InitMailer() error
	InitTracing() error
	InitRepositories() error
	InitServices() error
	InitHandlers() error
	InitScheduler() error

	// One-shot passes, used by cmd/deliver
	RunDelivery(ctx context.Context) (*domain.DeliveryResult, error)
	RunReaper(ctx context.Context) (*domain.ReapResult, error)

	// Graceful shutdown methods
	SetShutdownTimeout(timeout time.Duration)
	GetActiveRequestCount() int64
	GetShutdownContext() context.Context
}

// App encapsulates the application dependencies and configuration
type App struct {
	config      *config.Config
	logger      logger.Logger
	db          *sql.DB
	redis       *redis.Client
	transport   domain.MailTransport
	stopDBStats func()

	// Repositories
	contactRepo     domain.ContactRepository
	campaignRepo    domain.CampaignRepository
	sendQueueRepo   domain.SendQueueRepository
	domainLimitRepo domain.DomainLimitRepository

	// Services
	policy          domain.DeliveryPolicy
	domainLimiter   *service.DomainRateLimiter
	enqueuer        *campaign.Enqueuer
	campaignService *campaign.Service
	worker          *queue.EmailQueueWorker
	reaper          *queue.LeaseReaper
	scheduler       *Scheduler

	// HTTP handlers
	mux    *http.ServeMux
	server *http.Server

	// Server synchronization
	serverMu      sync.RWMutex
	serverStarted chan struct{}

	// Graceful shutdown management
	shutdownCtx     context.Context
	shutdownCancel  context.CancelFunc
	activeRequests  int64          // atomic counter for active HTTP requests
	requestWg       sync.WaitGroup // wait group for active requests
	shutdownTimeout time.Duration  // configurable shutdown timeout
}

// AppOption defines a functional option for configuring the App
type AppOption func(*App)

// WithMockDB configures the app to use a mock database
func WithMockDB(db *sql.DB) AppOption {
	return func(a *App) {
		a.db = db
	}
}

// WithMailTransport replaces the configured mail transport
func WithMailTransport(t domain.MailTransport) AppOption {
	return func(a *App) {
		a.transport = t
	}
}

// WithRedisClient provides an already connected Redis client
func WithRedisClient(client *redis.Client) AppOption {
	return func(a *App) {
		a.redis = client
	}
}

// WithLogger sets a custom logger
func WithLogger(logger logger.Logger) AppOption {
	return func(a *App) {
		a.logger = logger
	}
}

// NewApp creates a new application instance
func NewApp(cfg *config.Config, opts ...AppOption) AppInterface {
	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())

	app := &App{
		config:          cfg,
		logger:          logger.NewLoggerWithLevel(cfg.LogLevel),
		mux:             http.NewServeMux(),
		serverStarted:   make(chan struct{}),
		shutdownCtx:     shutdownCtx,
		shutdownCancel:  shutdownCancel,
		shutdownTimeout: 60 * time.Second,
	}

	for _, opt := range opts {
		opt(app)
	}

	return app
}

// DeliveryPolicyFromConfig maps the delivery settings onto the domain policy
func DeliveryPolicyFromConfig(cfg config.DeliveryConfig) domain.DeliveryPolicy {
	policy := domain.DefaultDeliveryPolicy()
	if cfg.MaxHourlyPerDomain > 0 {
		policy.MaxHourlyPerDomain = cfg.MaxHourlyPerDomain
	}
	if cfg.MaxDailyPerDomain > 0 {
		policy.MaxDailyPerDomain = cfg.MaxDailyPerDomain
	}
	if cfg.MaxAttempts > 0 {
		policy.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.BackoffBaseMinutes > 0 {
		policy.BackoffBaseMinutes = cfg.BackoffBaseMinutes
	}
	if cfg.BackoffCapMinutes > 0 {
		policy.BackoffCapMinutes = cfg.BackoffCapMinutes
	}
	if cfg.DefaultMaxPerEnqueue > 0 {
		policy.DefaultMaxPerEnqueue = cfg.DefaultMaxPerEnqueue
	}
	if cfg.TargetBatchCount > 0 {
		policy.TargetBatchCount = cfg.TargetBatchCount
	}
	if cfg.MaxBatchSize > 0 {
		policy.MaxBatchSize = cfg.MaxBatchSize
	}
	if cfg.BatchSpacing > 0 {
		policy.BatchSpacing = cfg.BatchSpacing
	}
	if cfg.LeaseTimeout > 0 {
		policy.LeaseTimeout = cfg.LeaseTimeout
	}
	return policy
}

// InitTracing initializes OpenCensus tracing and the delivery metric views
func (a *App) InitTracing() error {
	tracingConfig := &a.config.Tracing

	if err := tracing.InitTracing(tracingConfig); err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}

	if tracingConfig.Enabled {
		if err := tracing.RegisterDeliveryViews(); err != nil {
			return fmt.Errorf("failed to register delivery views: %w", err)
		}

		a.logger.WithField("trace_exporter", tracingConfig.TraceExporter).
			WithField("metrics_exporter", tracingConfig.MetricsExporter).
			WithField("sampling_rate", tracingConfig.SamplingProbability).
			Info("Tracing initialized successfully")
	}

	return nil
}

// InitDB initializes the database connection and schema
func (a *App) InitDB() error {
	ctx := context.Background()

	if a.db == nil {
		password := a.config.Database.Password
		maskedPassword := ""
		if len(password) > 0 {
			maskedPassword = fmt.Sprintf("%c...%c", password[0], password[len(password)-1])
		}
		a.logger.Info(fmt.Sprintf("Connecting to database %s:%d, user %s, sslmode %s, password: %s, dbname: %s",
			a.config.Database.Host, a.config.Database.Port, a.config.Database.User,
			a.config.Database.SSLMode, maskedPassword, a.config.Database.DBName))

		if err := database.EnsureSystemDatabaseExists(ctx, database.GetPostgresDSN(&a.config.Database), a.config.Database.DBName); err != nil {
			return fmt.Errorf("failed to ensure database exists: %w", err)
		}

		db, err := database.Open(ctx, &a.config.Database, a.config.Tracing.Enabled)
		if err != nil {
			return err
		}
		a.db = db

		if a.config.Tracing.Enabled {
			a.stopDBStats = ocsql.RecordStats(a.db, 5*time.Second)
			a.logger.Info("Database driver wrapped with OpenCensus tracing")
		}
	}

	if err := database.InitializeDatabase(ctx, a.db); err != nil {
		return fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return nil
}

// InitRedis connects the Redis domain limit store when it is selected
func (a *App) InitRedis() error {
	if a.redis != nil || a.config.Delivery.DomainLimitBackend != "redis" {
		return nil
	}

	opts, err := redis.ParseURL(a.config.Redis.URL)
	if err != nil {
		return fmt.Errorf("failed to parse REDIS_URL: %w", err)
	}

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("failed to ping redis: %w", err)
	}

	a.redis = client
	a.logger.WithField("addr", opts.Addr).Info("Connected to Redis")
	return nil
}

// InitMailer selects the mail transport
func (a *App) InitMailer() error {
	if a.transport != nil {
		return nil
	}

	transport, err := mailer.New(a.config.Mail, a.logger)
	if err != nil {
		return fmt.Errorf("failed to create mail transport: %w", err)
	}
	a.transport = transport
	a.logger.WithField("transport", transport.Kind()).Info("Mail transport ready")
	return nil
}

// InitRepositories initializes all repositories
func (a *App) InitRepositories() error {
	if a.db == nil {
		return fmt.Errorf("database must be initialized before repositories")
	}

	a.policy = DeliveryPolicyFromConfig(a.config.Delivery)
	a.contactRepo = repository.NewContactRepository(a.db)
	a.campaignRepo = repository.NewCampaignRepository(a.db)
	a.sendQueueRepo = repository.NewSendQueueRepository(a.db, a.policy)

	switch a.config.Delivery.DomainLimitBackend {
	case "redis":
		if a.redis == nil {
			return fmt.Errorf("redis must be initialized before the redis domain limit store")
		}
		a.domainLimitRepo = repository.NewRedisDomainLimitRepository(a.redis)
	default:
		a.domainLimitRepo = repository.NewDomainLimitRepository(a.db)
	}

	return nil
}

// InitServices initializes all application services
func (a *App) InitServices() error {
	if a.transport == nil {
		return fmt.Errorf("mail transport must be initialized before services")
	}

	a.domainLimiter = service.NewDomainRateLimiter(a.domainLimitRepo, a.policy, a.logger)

	clock := campaign.NewRealTimeProvider()
	campaignConfig := campaign.DefaultConfig()
	campaignConfig.Policy = a.policy
	a.enqueuer = campaign.NewEnqueuer(a.sendQueueRepo, clock, campaignConfig, a.logger)
	a.campaignService = campaign.NewService(a.campaignRepo, a.contactRepo, a.sendQueueRepo, a.enqueuer, clock, campaignConfig, a.logger)

	workerConfig := queue.DefaultWorkerConfig()
	if a.config.Delivery.ClaimLimit > 0 {
		workerConfig.ClaimLimit = a.config.Delivery.ClaimLimit
	}
	workerConfig.TransportRatePerMinute = a.config.Delivery.TransportRatePerMin
	a.worker = queue.NewEmailQueueWorker(a.sendQueueRepo, a.contactRepo, a.domainLimiter, a.transport, a.policy, workerConfig, a.logger)
	a.worker.SetSentCallback(a.recordLastSent)

	a.reaper = queue.NewLeaseReaper(a.sendQueueRepo, 0, a.logger)

	return nil
}

// recordLastSent stamps the contacts of a confirmed send
func (a *App) recordLastSent(ctx context.Context, item *domain.QueueItem, contactIDs []string, sentAt time.Time) {
	if err := a.contactRepo.UpdateLastSentAt(ctx, contactIDs, sentAt); err != nil {
		a.logger.WithFields(map[string]interface{}{
			"item_id":     item.ID,
			"campaign_id": item.CampaignID,
			"contacts":    len(contactIDs),
			"error":       err.Error(),
		}).Error("Failed to record last sent time")
	}
}

// InitHandlers registers the HTTP routes
func (a *App) InitHandlers() error {
	apiKey := middleware.NewAPIKeyMiddleware(a.config.Server.APIKey)
	protect := apiKey.RequireAPIKey

	httpHandler.NewQueueHandler(a.enqueuer, a.worker, a.reaper, a.sendQueueRepo, a.logger).RegisterRoutes(a.mux, protect)
	httpHandler.NewCampaignHandler(a.campaignService, a.logger).RegisterRoutes(a.mux, protect)
	httpHandler.NewDomainLimitHandler(a.domainLimiter, a.logger).RegisterRoutes(a.mux, protect)
	httpHandler.NewRootHandler(a.config.Version, a.db, a.logger).RegisterRoutes(a.mux)

	return nil
}

// InitScheduler registers the delivery, reaper and campaign jobs
func (a *App) InitScheduler() error {
	a.scheduler = NewScheduler(a.shutdownCtx, a.logger)
	d := a.config.Delivery

	// a delivery pass must finish before the leases it took expire
	if err := a.scheduler.Add(JobDelivery, d.DeliverySchedule, a.policy.LeaseTimeout, func(ctx context.Context) error {
		_, err := a.RunDelivery(ctx)
		return err
	}); err != nil {
		return err
	}

	if err := a.scheduler.Add(JobReaper, d.ReaperSchedule, time.Minute, func(ctx context.Context) error {
		_, err := a.RunReaper(ctx)
		return err
	}); err != nil {
		return err
	}

	return a.scheduler.Add(JobCampaigns, d.CampaignSchedule, 10*time.Minute, func(ctx context.Context) error {
		results, err := a.campaignService.AdvanceActive(ctx)
		if err == nil {
			a.logger.WithField("campaigns", len(results)).Debug("Active campaigns advanced")
		}
		return err
	})
}

// RunDelivery runs one delivery pass
func (a *App) RunDelivery(ctx context.Context) (*domain.DeliveryResult, error) {
	if a.worker == nil {
		return nil, fmt.Errorf("services must be initialized before delivery")
	}
	result, err := a.worker.RunOnce(ctx)
	if err != nil {
		return nil, err
	}
	if result.Claimed > 0 {
		a.logger.WithFields(map[string]interface{}{
			"claimed":  result.Claimed,
			"sent":     result.Sent,
			"failed":   result.Failed,
			"deferred": result.Deferred,
		}).Info("Delivery pass completed")
	}
	return result, nil
}

// RunReaper returns expired leases to the queue
func (a *App) RunReaper(ctx context.Context) (*domain.ReapResult, error) {
	if a.reaper == nil {
		return nil, fmt.Errorf("services must be initialized before reaping")
	}
	res, err := a.reaper.RunOnce(ctx)
	if err != nil {
		return res, err
	}
	if res.Requeued > 0 || res.Failed > 0 {
		a.logger.WithFields(map[string]interface{}{
			"requeued": res.Requeued,
			"failed":   res.Failed,
		}).Info("Expired leases reaped")
	}
	return res, nil
}

// Start runs the scheduler and serves HTTP until the server is shut down
func (a *App) Start() error {
	if a.scheduler != nil {
		a.scheduler.Start()
		a.logger.WithField("jobs", a.scheduler.Entries()).Info("Scheduler started")
	}

	var handler http.Handler = a.mux

	// Apply graceful shutdown middleware first (outermost)
	handler = a.gracefulShutdownMiddleware(handler)

	if a.config.Tracing.Enabled {
		handler = middleware.TracingMiddleware(handler)
		a.logger.Info("OpenCensus tracing middleware enabled")
	}

	handler = middleware.CORSMiddleware(a.config.Server.CORSOrigins)(handler)

	addr := fmt.Sprintf("%s:%d", a.config.Server.Host, a.config.Server.Port)
	a.logger.WithField("address", addr).Info(fmt.Sprintf("Server starting on %s", addr))

	a.serverMu.Lock()
	if a.serverStarted != nil {
		close(a.serverStarted)
	}
	a.serverStarted = make(chan struct{})

	a.server = &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverStarted := a.serverStarted
	a.serverMu.Unlock()

	// Signal that the server has been created and is about to start
	close(serverStarted)

	return a.server.ListenAndServe()
}

// Shutdown stops the scheduler, drains HTTP requests and releases resources
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("Starting graceful shutdown...")

	// Signal shutdown to all components
	a.shutdownCancel()

	shutdownTimeout := a.shutdownTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < shutdownTimeout {
			shutdownTimeout = remaining - time.Second // Leave 1 second buffer
			if shutdownTimeout < 0 {
				shutdownTimeout = 0
			}
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	var shutdownErr error

	if a.scheduler != nil {
		if err := a.scheduler.Stop(shutdownCtx); err != nil {
			a.logger.WithField("error", err.Error()).Warn("Scheduled jobs still running at shutdown")
			shutdownErr = err
		}
	}

	a.serverMu.RLock()
	server := a.server
	a.serverMu.RUnlock()

	if server != nil {
		a.logger.WithField("active_requests", a.getActiveRequestCount()).Info("Active requests at shutdown start")

		serverShutdownDone := make(chan error, 1)
		go func() {
			serverShutdownDone <- server.Shutdown(shutdownCtx)
		}()

		requestsDone := make(chan struct{})
		go func() {
			a.requestWg.Wait()
			close(requestsDone)
		}()

		select {
		case err := <-serverShutdownDone:
			if err != nil && shutdownErr == nil {
				shutdownErr = err
			}
			a.logger.Info("HTTP server shutdown completed")
		case <-shutdownCtx.Done():
			a.logger.Warn("Shutdown timeout reached")
			if shutdownErr == nil {
				shutdownErr = fmt.Errorf("shutdown timeout exceeded")
			}
		}

		select {
		case <-requestsDone:
		case <-time.After(2 * time.Second):
			if activeCount := a.getActiveRequestCount(); activeCount > 0 {
				a.logger.WithField("active_requests", activeCount).Warn("Some requests still active, proceeding with shutdown")
			}
		}
	}

	if cleanupErr := a.cleanupResources(); cleanupErr != nil {
		a.logger.WithField("error", cleanupErr.Error()).Error("Error during resource cleanup")
		if shutdownErr == nil {
			shutdownErr = cleanupErr
		}
	}

	if shutdownErr != nil {
		a.logger.WithField("error", shutdownErr.Error()).Error("Graceful shutdown completed with errors")
	} else {
		a.logger.Info("Graceful shutdown completed successfully")
	}

	return shutdownErr
}

func (a *App) cleanupResources() error {
	if a.stopDBStats != nil {
		a.stopDBStats()
	}

	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.WithField("error", err.Error()).Error("Error closing redis client")
		}
	}

	if a.db != nil {
		a.logger.Info("Closing database connection")
		if err := a.db.Close(); err != nil {
			return fmt.Errorf("failed to close database: %w", err)
		}
	}

	return nil
}

// IsServerCreated safely checks if the server has been created
func (a *App) IsServerCreated() bool {
	a.serverMu.RLock()
	defer a.serverMu.RUnlock()
	return a.server != nil
}

// WaitForServerStart waits for the server to be created and initialized
// Returns true if the server started successfully, false if context expired
func (a *App) WaitForServerStart(ctx context.Context) bool {
	a.serverMu.RLock()
	started := a.serverStarted
	a.serverMu.RUnlock()

	if started == nil {
		<-ctx.Done()
		return false
	}

	select {
	case <-started:
		return a.IsServerCreated()
	case <-ctx.Done():
		return false
	}
}

// Initialize sets up all components of the application
func (a *App) Initialize() error {
	a.logger.WithField("version", a.config.Version).Info("Starting outreach application")

	steps := []func() error{
		a.InitTracing,
		a.InitDB,
		a.InitRedis,
		a.InitMailer,
		a.InitRepositories,
		a.InitServices,
		a.InitHandlers,
		a.InitScheduler,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}

	a.logger.Info("Application successfully initialized")
	return nil
}

func (a *App) GetConfig() *config.Config {
	return a.config
}

func (a *App) GetLogger() logger.Logger {
	return a.logger
}

func (a *App) GetMux() *http.ServeMux {
	return a.mux
}

func (a *App) GetDB() *sql.DB {
	return a.db
}

func (a *App) GetMailTransport() domain.MailTransport {
	return a.transport
}

func (a *App) GetScheduler() *Scheduler {
	return a.scheduler
}

func (a *App) incrementActiveRequests() {
	atomic.AddInt64(&a.activeRequests, 1)
	a.requestWg.Add(1)
}

func (a *App) decrementActiveRequests() {
	atomic.AddInt64(&a.activeRequests, -1)
	a.requestWg.Done()
}

func (a *App) getActiveRequestCount() int64 {
	return atomic.LoadInt64(&a.activeRequests)
}

// GetActiveRequestCount returns the current number of active requests
func (a *App) GetActiveRequestCount() int64 {
	return a.getActiveRequestCount()
}

// SetShutdownTimeout sets the timeout for graceful shutdown
func (a *App) SetShutdownTimeout(timeout time.Duration) {
	a.shutdownTimeout = timeout
}

// GetShutdownContext returns the shutdown context for components that need to watch for shutdown
func (a *App) GetShutdownContext() context.Context {
	return a.shutdownCtx
}

func (a *App) isShuttingDown() bool {
	select {
	case <-a.shutdownCtx.Done():
		return true
	default:
		return false
	}
}

// gracefulShutdownMiddleware rejects new requests once shutdown began and tracks the rest
func (a *App) gracefulShutdownMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.isShuttingDown() {
			httpHandler.WriteJSONError(w, "Server is shutting down", http.StatusServiceUnavailable)
			return
		}

		a.incrementActiveRequests()
		defer a.decrementActiveRequests()

		next.ServeHTTP(w, r)
	})
}

// Ensure App implements AppInterface
var _ AppInterface = (*App)(nil)
