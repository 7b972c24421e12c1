// Package app builds the report service from configuration and owns its start and shutdown order.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/mongo"
	"gorm.io/gorm"

	"signal_report_backend/config"
	"signal_report_backend/metrics"
	"signal_report_backend/models"
	"signal_report_backend/scheduler"
	"signal_report_backend/services/dispatch"
	"signal_report_backend/services/ledger"
	"signal_report_backend/services/notifier"
	"signal_report_backend/services/report"
	"signal_report_backend/services/settings"
)

// App holds every long-lived component of the service
type App struct {
	Config *config.Config
	DB     *gorm.DB

	Prometheus *prometheus.Registry
	Metrics    *metrics.Registry

	Settings    *settings.Cache
	Ledger      ledger.Store
	Engine      *report.Engine
	Sinks       *notifier.Registry
	Dashboard   *notifier.DashboardHub
	Keeper      *notifier.Keeper
	Coordinator *dispatch.Coordinator
	Scheduler   *scheduler.JobScheduler
	Jobs        []models.ScheduledJob

	now          func() time.Time
	mongoClient  *mongo.Client
	keeperCancel context.CancelFunc
	keeperDone   chan error
}

// New connects to storage, builds the channel sinks and registers the report jobs.
// Nothing runs until Start.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg, Keeper: notifier.NewKeeper(), now: time.Now}

	db, err := config.InitDB(cfg)
	if err != nil {
		return nil, err
	}
	a.DB = db

	if err := a.migrate(); err != nil {
		a.closeStorage()
		return nil, err
	}

	a.Prometheus = prometheus.NewRegistry()
	a.Prometheus.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.Metrics = metrics.NewRegistry(a.Prometheus)

	a.Settings = settings.NewCache(
		settings.NewGormStore(db),
		settings.WithFreshness(cfg.SettingsCacheTTL),
		settings.WithMetrics(a.Metrics),
	)

	if err := a.openLedger(ctx); err != nil {
		a.closeStorage()
		return nil, err
	}

	a.Engine = report.NewEngine(a.Ledger,
		report.WithLocation(cfg.Location()),
		report.WithExcludeUnresolved(cfg.ExcludeUnresolved),
		report.WithLabels(cfg.ReportLabel, cfg.WeeklyReportLabel),
	)

	a.buildSinks(ctx)

	a.Coordinator = dispatch.NewCoordinator(a.Engine, a.Settings, a.Sinks, dispatch.Config{
		Channels:    cfg.Channels,
		SendTimeout: cfg.SendTimeout,
		Metrics:     a.Metrics,
	})

	jobs, err := config.LoadJobs(cfg.JobsFile)
	if err != nil {
		a.closeStorage()
		return nil, err
	}
	a.Jobs = jobs

	a.Scheduler = scheduler.NewJobScheduler(scheduler.WithMetrics(a.Metrics))
	for _, job := range jobs {
		if err := a.Scheduler.Register(job, a.runReportJob); err != nil {
			a.closeStorage()
			return nil, err
		}
	}

	return a, nil
}

// runReportJob is the handler behind every scheduled job
func (a *App) runReportJob(ctx context.Context, job models.ScheduledJob) error {
	ref, err := jobReference(job, a.now(), a.Engine.Location())
	if err != nil {
		return err
	}
	_, err = a.Coordinator.RunJobAt(ctx, job.ID, job.Range, ref)
	return err
}

// jobReference is the job's current calendar date, read in the job's own timezone and
// expressed in the reporting timezone. A 23:00 trigger in one zone reports that zone's day
// even when it is already tomorrow where the reports are dated.
func jobReference(job models.ScheduledJob, now time.Time, reportLoc *time.Location) (*time.Time, error) {
	loc, err := time.LoadLocation(job.Timezone)
	if err != nil {
		return nil, fmt.Errorf("job %s: invalid timezone %q: %w", job.ID, job.Timezone, err)
	}
	local := now.In(loc)
	ref := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, reportLoc)
	return &ref, nil
}

// Start puts the jobs on the calendar and hands the stateful sinks to the keeper
func (a *App) Start() error {
	keeperCtx, cancel := context.WithCancel(context.Background())
	a.keeperCancel = cancel
	a.keeperDone = make(chan error, 1)
	go func() { a.keeperDone <- a.Keeper.Run(keeperCtx) }()

	if err := a.Scheduler.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	return nil
}

// Shutdown drains running jobs, closes channel connections and then storage
func (a *App) Shutdown(ctx context.Context) {
	if err := a.Scheduler.Stop(ctx); err != nil {
		log.Warn().Err(err).Msg("Scheduler did not drain in time")
	}

	if a.keeperCancel != nil {
		a.keeperCancel()
		if err := <-a.keeperDone; err != nil {
			log.Warn().Err(err).Msg("Some channel connections failed to close")
		}
	} else {
		// Never started: release the sinks directly
		done, cancel := context.WithCancel(context.Background())
		cancel()
		if err := a.Keeper.Run(done); err != nil {
			log.Warn().Err(err).Msg("Some channel connections failed to close")
		}
	}

	a.closeStorage()
	log.Info().Msg("Report service shut down")
}

// MetricsHandler serves the service's Prometheus registry
func (a *App) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(a.Prometheus, promhttp.HandlerOpts{})
}

// Ping checks the settings database
func (a *App) Ping(ctx context.Context) error {
	sqlDB, err := a.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (a *App) migrate() error {
	log.Info().Msg("Running database migrations...")
	if err := models.MigrateNotifierModels(a.DB); err != nil {
		return fmt.Errorf("failed to migrate notifier settings: %w", err)
	}
	if a.Config.LedgerBackend == "sql" {
		if err := models.MigrateTradingModels(a.DB); err != nil {
			return fmt.Errorf("failed to migrate trade ledger: %w", err)
		}
	}

	// Channels configured for dispatch start enabled, the rest start disabled
	var others []string
	configured := make(map[string]bool, len(a.Config.Channels))
	for _, name := range a.Config.Channels {
		configured[name] = true
	}
	for _, name := range models.KnownChannels {
		if !configured[name] {
			others = append(others, name)
		}
	}
	if err := models.SeedNotifierSettings(a.DB, a.Config.Channels, true); err != nil {
		return fmt.Errorf("failed to seed notifier settings: %w", err)
	}
	if err := models.SeedNotifierSettings(a.DB, others, false); err != nil {
		return fmt.Errorf("failed to seed notifier settings: %w", err)
	}
	log.Info().Msg("Database migrations completed successfully")
	return nil
}

func (a *App) openLedger(ctx context.Context) error {
	if a.Config.LedgerBackend != "mongo" {
		a.Ledger = ledger.NewGormStore(a.DB)
		return nil
	}
	client, store, err := ledger.ConnectMongo(ctx, a.Config.MongoURI, a.Config.MongoDatabase)
	if err != nil {
		return err
	}
	a.mongoClient = client
	a.Ledger = store
	return nil
}

// buildSinks creates a guarded sink for every configured channel. Sinks connect lazily, so a
// channel that is down at start-up fails its sends until it comes back. Only a channel missing its
// settings is left out; it reports FAILED on every run until configured.
func (a *App) buildSinks(ctx context.Context) {
	cfg := a.Config
	a.Sinks = notifier.NewRegistry()
	guard := func(s notifier.Sink) *notifier.Guard {
		return notifier.NewGuard(s, notifier.GuardConfig{
			Timeout:       cfg.SendTimeout,
			RatePerMinute: cfg.ChannelRatePerMin,
			Metrics:       a.Metrics,
		})
	}

	for _, name := range cfg.Channels {
		var (
			sink notifier.Sink
			err  error
		)
		switch name {
		case models.ChannelTelegram:
			sink, err = notifier.NewTelegramSink(cfg.TelegramBotToken, cfg.TelegramChannel, "", nil)
		case models.ChannelWhatsApp:
			sink, err = notifier.NewWhatsAppSink(cfg.WhatsAppAPIURL, cfg.WhatsAppToken, cfg.WhatsAppRecipient, nil)
		case models.ChannelRedis:
			sink, err = notifier.DialRedis(ctx, cfg.RedisAddr, cfg.RedisChannel)
		case models.ChannelDashboard:
			a.Dashboard = notifier.NewDashboardHub(notifier.MaxDashboardClients)
			sink = a.Dashboard
		default:
			err = fmt.Errorf("unknown channel %q", name)
		}
		if err != nil {
			log.Warn().Err(err).Str("channel", name).Msg("Channel not configured, runs will report it as failed")
			continue
		}

		g := guard(sink)
		a.Sinks.Add(g)
		if _, ok := sink.(notifier.Closer); ok {
			a.Keeper.Hold(name, g)
		}
	}
	log.Info().Strs("channels", a.Sinks.Names()).Msg("Channel sinks ready")
}

func (a *App) closeStorage() {
	if a.mongoClient != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.mongoClient.Disconnect(ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to disconnect MongoDB")
		}
		a.mongoClient = nil
	}
	if a.DB != nil {
		config.CloseDB(a.DB)
		a.DB = nil
	}
}
