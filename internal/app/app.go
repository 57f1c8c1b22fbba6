package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/openrecords-api/internal/calendar"
	"github.com/noah-isme/openrecords-api/internal/filestore"
	"github.com/noah-isme/openrecords-api/internal/handler"
	"github.com/noah-isme/openrecords-api/internal/notify"
	"github.com/noah-isme/openrecords-api/internal/repository"
	"github.com/noah-isme/openrecords-api/internal/search"
	"github.com/noah-isme/openrecords-api/internal/service"
	"github.com/noah-isme/openrecords-api/pkg/cache"
	"github.com/noah-isme/openrecords-api/pkg/config"
	"github.com/noah-isme/openrecords-api/pkg/database"
	"github.com/noah-isme/openrecords-api/pkg/jobs"
	"github.com/noah-isme/openrecords-api/pkg/storage"
)

// App holds the wired services shared by the API server and foilctl.
type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	DB       *sqlx.DB
	Calendar *calendar.Calendar
	Metrics  *service.MetricsService

	Roles *repository.RoleRepository

	Auth           *service.AuthorizationService
	Requests       *service.RequestService
	Determinations *service.DeterminationService
	Responses      *service.ResponseService
	Users          *service.UserRequestService
	Events         *service.EventService
	Agencies       *service.AgencyService
	Sweeper        *service.SweeperService
	Tokens         *service.TokenVerifier

	Hooks     *service.PostCommitHooks
	Scheduler *service.SweepScheduler

	signer    *storage.DownloadSigner
	files     *filestore.Store
	cacheRepo *repository.CacheRepository
	publisher *notify.Publisher
}

// New connects to the backing stores and wires every service. Optional
// integrations are attached only when their config enables them.
func New(ctx context.Context, cfg *config.Config, logr *zap.Logger) (*App, error) {
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	a := &App{Config: cfg, Logger: logr, DB: db, Metrics: service.NewMetricsService()}

	if err := a.buildCalendar(); err != nil {
		_ = db.Close()
		return nil, err
	}

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, continuing without cache", zap.Error(err))
		redisClient = nil
	}
	a.cacheRepo = repository.NewCacheRepository(redisClient, logr)
	cacheSvc := service.NewCacheService(a.cacheRepo, a.Metrics, cfg.Workflow.RequestCacheTTL, logr, redisClient != nil)

	if err := a.buildFiles(); err != nil {
		a.Close()
		return nil, err
	}

	var publisher service.NotificationPublisher
	if cfg.Notify.Enabled {
		a.publisher = notify.NewPublisher(cfg.Notify.URL, cfg.Notify.Queue, logr)
		publisher = a.publisher
	}
	var indexer service.RequestIndexer
	if cfg.Search.Enabled {
		indexer = search.NewIndexer(cfg.Search.URL, cfg.Search.APIKey, cfg.Search.Index, logr)
	}
	a.Hooks = service.NewPostCommitHooks(publisher, indexer, cacheSvc, a.Metrics, logr, jobs.QueueConfig{
		Workers:    cfg.Jobs.Workers,
		MaxRetries: cfg.Jobs.Retries,
		RetryDelay: time.Second,
	})

	store := repository.NewStore(db)
	requestRepo := repository.NewRequestRepository(db)
	responseRepo := repository.NewResponseRepository(db)
	eventRepo := repository.NewEventRepository(db)
	userRepo := repository.NewUserRepository(db)
	edgeRepo := repository.NewUserRequestRepository(db)
	agencyRepo := repository.NewAgencyRepository(db)
	reasonRepo := repository.NewReasonRepository(db)
	a.Roles = repository.NewRoleRepository(db)

	wf := service.WorkflowConfig{
		AcknowledgmentDays: cfg.Workflow.AcknowledgmentDays,
		DueSoonDays:        cfg.Workflow.DueSoonDays,
	}
	opts := []service.WorkflowOption{service.WithHooks(a.Hooks), service.WithMetrics(a.Metrics)}

	a.Auth = service.NewAuthorizationService(userRepo, edgeRepo, logr)

	var requestExtras []service.RequestServiceOption
	if cacheSvc.Enabled() {
		requestExtras = append(requestExtras, service.WithRequestCache(cacheSvc))
	}
	a.Requests = service.NewRequestService(store, requestRepo, service.RequestServiceDeps{
		Users:     userRepo,
		Edges:     edgeRepo,
		Agencies:  agencyRepo,
		Lister:    requestRepo,
		Responses: responseRepo,
	}, a.Auth, a.Calendar, wf, logr, opts, requestExtras...)

	a.Determinations = service.NewDeterminationService(store, requestRepo, reasonRepo, a.Auth, a.Calendar, wf, logr, opts...)

	var responseExtras []service.ResponseServiceOption
	if a.files != nil {
		responseExtras = append(responseExtras, service.WithFileChecker(a.files))
	}
	if a.signer != nil {
		responseExtras = append(responseExtras, service.WithDownloadSigner(a.signer))
	}
	a.Responses = service.NewResponseService(store, requestRepo, responseRepo, edgeRepo, a.Auth, a.Calendar, logr, opts, responseExtras...)

	a.Users = service.NewUserRequestService(store, requestRepo, userRepo, a.Auth, a.Calendar, logr, opts...).WithLister(edgeRepo)
	a.Events = service.NewEventService(requestRepo, eventRepo, a.Auth, logr)
	a.Agencies = service.NewAgencyService(store, agencyRepo, userRepo, logr).
		WithReasons(reasonRepo).
		WithLocation(a.Calendar.Location())
	a.Sweeper = service.NewSweeperService(store, agencyRepo, requestRepo, a.Calendar, wf, logr, opts...).WithRecipients(userRepo)
	a.Tokens = service.NewTokenVerifier(cfg.JWT.Secret, cfg.JWT.Issuer)

	a.Scheduler = service.NewSweepScheduler(a.Sweeper, a.Agencies, a.cacheRepo, service.SchedulerConfig{
		Interval:      cfg.Sweeper.Interval,
		LeaseKey:      cfg.Sweeper.LeaseKey,
		LeaseTTL:      cfg.Sweeper.LeaseTTL,
		ResetCounters: cfg.Sweeper.ResetCounters,
		Location:      a.Calendar.Location(),
	}, logr)

	return a, nil
}

func (a *App) buildCalendar() error {
	calCfg := calendar.Config{
		Timezone:  a.Config.Calendar.Timezone,
		FirstYear: a.Config.Calendar.FirstYear,
		LastYear:  a.Config.Calendar.LastYear,
	}
	if path := a.Config.Calendar.HolidaysFile; path != "" {
		extra, err := calendar.LoadHolidayFile(path)
		if err != nil {
			return fmt.Errorf("load holidays: %w", err)
		}
		calCfg.Extra = extra
	}
	cal, err := calendar.New(calCfg)
	if err != nil {
		return fmt.Errorf("build calendar: %w", err)
	}
	a.Calendar = cal
	return nil
}

func (a *App) buildFiles() error {
	if a.Config.Downloads.Secret != "" {
		a.signer = storage.NewDownloadSigner(a.Config.Downloads.Secret, a.Config.Downloads.TTL)
	}
	if !a.Config.FileStore.Enabled {
		return nil
	}
	files, err := filestore.New(filestore.Config{
		Endpoint:  a.Config.FileStore.Endpoint,
		AccessKey: a.Config.FileStore.AccessKey,
		SecretKey: a.Config.FileStore.SecretKey,
		Bucket:    a.Config.FileStore.Bucket,
		UseSSL:    a.Config.FileStore.UseSSL,
	})
	if err != nil {
		return err
	}
	a.files = files
	return nil
}

// Handlers builds the HTTP handlers over the wired services.
func (a *App) Handlers() handler.Handlers {
	h := handler.Handlers{
		Requests:       handler.NewRequestHandler(a.Requests),
		Determinations: handler.NewDeterminationHandler(a.Determinations),
		Users:          handler.NewUserRequestHandler(a.Users),
		Events:         handler.NewEventHandler(a.Events),
		Admin:          handler.NewAdminHandler(a.Sweeper, a.Agencies),
		Metrics:        handler.NewMetricsHandler(a.Metrics, a.DB),
	}
	// downloads stay disabled unless both halves are configured
	if a.signer != nil && a.files != nil {
		h.Responses = handler.NewResponseHandler(a.Responses, a.signer, a.files)
	} else {
		h.Responses = handler.NewResponseHandler(a.Responses, nil, nil)
	}
	return h
}

// Start launches the background workers. The scheduler runs only when enabled.
func (a *App) Start(ctx context.Context) {
	a.Hooks.Start(ctx)
	if a.Config.Sweeper.Enabled {
		a.Scheduler.Start(ctx)
	}
}

// Close stops the workers and releases every connection.
func (a *App) Close() {
	if a.Scheduler != nil {
		a.Scheduler.Stop()
	}
	if a.Hooks != nil {
		a.Hooks.Stop()
	}
	var errs []error
	if a.publisher != nil {
		errs = append(errs, a.publisher.Close())
	}
	if a.cacheRepo != nil {
		errs = append(errs, a.cacheRepo.Close())
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	if err := errors.Join(errs...); err != nil {
		a.Logger.Warn("shutdown incomplete", zap.Error(err))
	}
}
