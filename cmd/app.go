package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/resume-updater/internal/ai"
	"github.com/spigell/resume-updater/internal/ai/gemini"
	"github.com/spigell/resume-updater/internal/blob"
	"github.com/spigell/resume-updater/internal/lock"
	"github.com/spigell/resume-updater/internal/logger"
	"github.com/spigell/resume-updater/internal/metrics"
	"github.com/spigell/resume-updater/internal/notification"
	"github.com/spigell/resume-updater/internal/pipeline"
	"github.com/spigell/resume-updater/internal/search"
	"github.com/spigell/resume-updater/internal/secrets"
	"github.com/spigell/resume-updater/internal/store"
	"github.com/spigell/resume-updater/internal/store/memory"
	"github.com/spigell/resume-updater/internal/store/postgres"
	"github.com/spigell/resume-updater/internal/tracker"
)

// application holds every wired component. Commands pick what they need.
type application struct {
	config    *Config
	metrics   *metrics.Manager
	blobs     *blob.Store
	repo      *tracker.Repository
	engine    *pipeline.Engine
	gateway   *notification.Gateway
	processor *pipeline.Processor
	reviewer  *pipeline.Reviewer
	feedback  *pipeline.Feedback
	reminder  *notification.Reminder

	closers []func()
}

func (a *application) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func setup(ctx context.Context) (*application, *zap.Logger, error) {
	log, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		return nil, nil, fmt.Errorf("creating a logger: %w", err)
	}

	config, err := getConfig()
	if err != nil {
		return nil, log, fmt.Errorf("getting a config: %w", err)
	}
	if config == nil {
		return nil, log, fmt.Errorf("config is required")
	}

	log.Info("starting the resume-updater", zap.String("version", version))

	a, err := newApplication(ctx, config, log)
	if err != nil {
		return nil, log, err
	}
	return a, log, nil
}

func newApplication(ctx context.Context, config *Config, log *zap.Logger) (*application, error) {
	if err := config.Store.Consistency.Validate(); err != nil {
		return nil, fmt.Errorf("store.consistency: %w", err)
	}

	a := &application{config: config, metrics: metrics.NewManager()}

	db, err := openStore(ctx, config.Store, a)
	if err != nil {
		a.Close()
		return nil, err
	}

	searchKey, err := secrets.Load(secrets.Source{
		Name:  "search api key",
		Value: config.Search.APIKey,
		Env:   "SEARCH_API_KEY",
		File:  config.Search.APIKeyFile,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	searchClient := search.New(config.Search.Config, searchKey, logger.Named(log, "search"))

	writer, err := newWriter(ctx, config.AI, log)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.blobs = blob.NewOS(config.Blob.Root)

	a.repo = tracker.NewRepository(db.Collection(store.ResumeTrackers), logger.Named(log, "tracker"), tracker.Options{
		Consistency:     config.Store.Consistency,
		ConflictRetries: config.Store.ConflictRetries,
		ReviewPeriod:    config.Tracker.ReviewPeriod,
		Metrics:         a.metrics,
	})

	sender, err := newSender(config.Notification, log)
	if err != nil {
		a.Close()
		return nil, err
	}
	directory := notification.NewDirectory(db.Collection(store.EmployeeMetadata))
	a.gateway = notification.NewGateway(db.Collection(store.Notifications), directory, sender, logger.Named(log, "notification"), notification.Options{
		Cooldown:    config.Notification.Cooldown,
		ReviewerURL: config.Notification.ReviewerURL,
		Metrics:     a.metrics,
	})
	a.reminder = notification.NewReminder(a.repo, a.gateway, config.Notification.RatePerMinute, logger.Named(log, "reminder"))

	checks := pipeline.DefaultChecks(config.Tracker.HoursThreshold, searchClient, writer, a.repo, a.metrics)
	for _, name := range config.Tracker.DisabledChecks {
		pipeline.DisableByName(checks, strings.TrimSpace(name), "disabled in config")
	}
	a.engine = pipeline.NewEngine(logger.Named(log, "trigger"), a.metrics, checks...)
	for _, status := range a.engine.Describe() {
		log.Debug("trigger check", zap.String("name", status.Name), zap.Bool("enabled", status.Enabled), zap.String("reason", status.Reason))
	}

	locker, err := newLocker(config.Lock, a)
	if err != nil {
		a.Close()
		return nil, err
	}

	drafter := pipeline.NewDrafter(searchClient, writer, a.repo, a.gateway, a.metrics, logger.Named(log, "drafter"))
	a.processor = pipeline.NewProcessor(db.Collection(store.KeyMembers), a.repo, a.engine, drafter, locker, a.metrics, logger.Named(log, "processor"))
	a.reviewer = pipeline.NewReviewer(searchClient, writer, a.blobs, config.Blob.Container, a.repo, a.metrics, logger.Named(log, "reviewer"))
	a.feedback = pipeline.NewFeedback(db.Collection(store.Feedback))

	return a, nil
}

func openStore(ctx context.Context, cfg StoreConfig, a *application) (store.Database, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "memory":
		return memory.New(), nil
	case "postgres":
		dsn, err := secrets.Load(secrets.Source{
			Name:  "postgres dsn",
			Value: cfg.DSN,
			Env:   "DATABASE_URL",
			File:  cfg.DSNFile,
		})
		if err != nil {
			return nil, err
		}
		db, pool, err := postgres.Connect(ctx, dsn)
		if err != nil {
			return nil, fmt.Errorf("connecting to postgres: %w", err)
		}
		a.closers = append(a.closers, pool.Close)
		return db, nil
	default:
		return nil, fmt.Errorf("unsupported store driver: %s", cfg.Driver)
	}
}

func newWriter(ctx context.Context, cfg AIConfig, log *zap.Logger) (ai.Writer, error) {
	provider := strings.TrimSpace(strings.ToLower(cfg.Provider))
	if provider != "" && provider != "gemini" {
		return nil, fmt.Errorf("unsupported ai provider: %s", cfg.Provider)
	}
	if cfg.Gemini == nil {
		return nil, fmt.Errorf("ai.gemini section is required")
	}

	apiKey, err := secrets.Load(secrets.Source{
		Name: "gemini api key",
		Env:  "GEMINI_API_KEY",
		File: cfg.Gemini.APIKeyFile,
	})
	if err != nil {
		return nil, fmt.Errorf("%w (set ai.gemini.api-key-file or GEMINI_API_KEY)", err)
	}

	genLogger := log.With(
		zap.String("provider", "gemini"),
		zap.String("model", cfg.Gemini.Model),
		zap.Int("ai_retry_attempts", cfg.Gemini.MaxRetries),
	)

	generator, err := gemini.NewGenerator(ctx, apiKey, cfg.Gemini.Model, cfg.Gemini.MaxRetries, genLogger)
	if err != nil {
		return nil, err
	}

	return gemini.NewWriter(generator, logger.Named(log, "writer"), cfg.Gemini.MaxLogLength), nil
}

func newSender(cfg NotificationConfig, log *zap.Logger) (notification.Sender, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Sender)) {
	case "", "log":
		return notification.NewLogSender(logger.Named(log, "mail")), nil
	case "smtp":
		password, err := secrets.Optional(secrets.Source{
			Name: "smtp password",
			Env:  "SMTP_PASSWORD",
			File: cfg.PasswordFile,
		})
		if err != nil {
			return nil, err
		}
		return notification.NewSMTPSender(cfg.SMTP, cfg.From, password), nil
	default:
		return nil, fmt.Errorf("unsupported notification sender: %s", cfg.Sender)
	}
}

func newLocker(cfg lock.Config, a *application) (lock.Locker, error) {
	if !cfg.Enabled {
		return lock.Nop{}, nil
	}
	if cfg.Addr == "" {
		return nil, fmt.Errorf("lock.addr is required when the lock is enabled")
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.Addr})
	a.closers = append(a.closers, func() { _ = rdb.Close() })
	return lock.NewRedis(rdb, cfg), nil
}
