// Package app wires configuration, infrastructure and the conversion pipeline together.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/internal/handlers"
	"github.com/Ramsey-B/fern/pkg/batch"
	"github.com/Ramsey-B/fern/pkg/classifier"
	"github.com/Ramsey-B/fern/pkg/clients"
	"github.com/Ramsey-B/fern/pkg/conversion"
	"github.com/Ramsey-B/fern/pkg/credentials"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/dataset"
	"github.com/Ramsey-B/fern/pkg/enrollment"
	"github.com/Ramsey-B/fern/pkg/health"
	"github.com/Ramsey-B/fern/pkg/identity"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/redis"
	"github.com/Ramsey-B/fern/pkg/repositories"
	"github.com/Ramsey-B/fern/pkg/rules"
	"github.com/Ramsey-B/fern/pkg/startup"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const (
	depTracing    = "tracing"
	depDatabase   = "database"
	depMigrations = "migrations"
	depRedis      = "redis"
	depKafka      = "kafka"
	depPipeline   = "pipeline"
)

// Options selects which parts of the app are started
type Options struct {
	// Migrate applies pending migrations after connecting
	Migrate bool

	// Pipeline builds the service clients and the conversion runner
	Pipeline bool
}

// App holds the started infrastructure and the conversion runner
type App struct {
	Config *config.Config
	Logger ectologger.Logger

	DB       *sqlx.DB
	Sources  *repositories.SourceRepository
	Runs     *repositories.RunRepository
	Redis    *redis.Client
	Producer *kafka.Producer
	Runner   *batch.Runner
	Health   *health.Checker

	startup         *startup.Startup
	shutdownTracing func(context.Context) error
}

// New creates an app. Nothing is connected until Start.
func New(cfg *config.Config, logger ectologger.Logger) *App {
	return &App{
		Config:          cfg,
		Logger:          logger,
		Health:          health.NewChecker(cfg.Version),
		startup:         startup.NewStartup(logger, cfg.StartupMaxAttempts),
		shutdownTracing: func(context.Context) error { return nil },
	}
}

// Start connects every dependency named by opts, in dependency order
func (a *App) Start(ctx context.Context, opts Options) error {
	a.startup.AddDependency(startup.Func{Name: depTracing, StartFn: a.startTracing, StopFn: func(ctx context.Context) error {
		return a.shutdownTracing(ctx)
	}})
	a.startup.AddDependency(startup.Func{Name: depDatabase, StartFn: a.startDatabase, StopFn: a.stopDatabase})

	if opts.Migrate {
		a.startup.AddDependency(startup.Func{Name: depMigrations, Requires: []string{depDatabase}, StartFn: a.Migrate})
	}

	if opts.Pipeline {
		requires := []string{depDatabase, depRedis, depKafka}
		if opts.Migrate {
			requires = append(requires, depMigrations)
		}
		a.startup.AddDependency(startup.Func{Name: depRedis, StartFn: a.startRedis, StopFn: a.stopRedis})
		a.startup.AddDependency(startup.Func{Name: depKafka, StartFn: a.startKafka, StopFn: a.stopKafka})
		a.startup.AddDependency(startup.Func{Name: depPipeline, Requires: requires, StartFn: a.startPipeline})
	}

	if err := a.startup.Start(ctx); err != nil {
		return err
	}
	a.Health.SetReady(true)
	return nil
}

// Stop releases everything Start connected
func (a *App) Stop(ctx context.Context) error {
	a.Health.SetReady(false)
	return a.startup.Stop(ctx)
}

// Migrate applies the configured migrations
func (a *App) Migrate(_ context.Context) error {
	if a.DB == nil {
		return errors.New("database is not connected")
	}
	svc := database.NewMigrationService(a.Logger, &database.MigrationConfig{
		MigrationFolderPath: a.Config.DatabaseMigrationFolderPath,
		Version:             uint(a.Config.DatabaseMigrationVersion),
		Force:               a.Config.DatabaseMigrationForce,
		AutoRollback:        a.Config.DatabaseMigrationAutoRollback,
	})
	return svc.MigratePostgres(a.DB.DB, a.Config.DatabaseName)
}

// Serve runs the admin API until ctx is cancelled
func (a *App) Serve(ctx context.Context) error {
	if a.Runner == nil {
		return errors.New("pipeline is not started")
	}

	e := handlers.NewRouter(a.Config.AppName, handlers.NewConversionHandler(a.Runner, a.Runs, a.Logger), a.Health, a.Logger)
	e.Server.ReadTimeout = time.Duration(a.Config.HttpServerReadTimeoutSeconds) * time.Second
	e.Server.WriteTimeout = time.Duration(a.Config.HttpServerWriteTimeoutSeconds) * time.Second
	e.Server.IdleTimeout = time.Duration(a.Config.HttpServerIdleTimeoutSeconds) * time.Second

	errCh := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", a.Config.Port)
		a.Logger.Infof("Listening on %s", addr)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.Logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	return shutdownEcho(shutdownCtx, e)
}

func shutdownEcho(ctx context.Context, e *echo.Echo) error {
	if err := e.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down HTTP server: %w", err)
	}
	return nil
}

func (a *App) startTracing(ctx context.Context) error {
	if !a.Config.OTLPEnabled {
		a.Logger.Debug("Tracing disabled")
		return nil
	}
	shutdown, err := tracing.Setup(ctx, tracing.OTLPConfig{
		Endpoint:    a.Config.OTLPEndpoint,
		Protocol:    a.Config.OTLPProtocol,
		Insecure:    a.Config.OTLPInsecure,
		Timeout:     a.Config.OTLPTimeout,
		ServiceName: a.Config.AppName,
	})
	if err != nil {
		return err
	}
	a.shutdownTracing = shutdown
	return nil
}

func (a *App) startDatabase(ctx context.Context) error {
	db, err := database.Open(ctx, database.Config{
		Host:            a.Config.DatabaseHost,
		Port:            a.Config.DatabasePort,
		User:            a.Config.DatabaseUserName,
		Password:        a.Config.DatabasePassword,
		Name:            a.Config.DatabaseName,
		SSLMode:         a.Config.DatabaseSSLMode,
		MaxOpenConns:    a.Config.DatabaseMaxOpenConns,
		MaxIdleConns:    a.Config.DatabaseMaxIdleConns,
		ConnMaxLifetime: a.Config.DatabaseConnMaxLifetime,
	}, a.Logger)
	if err != nil {
		return err
	}

	a.DB = db
	instance := database.NewDatabaseInstance(db, a.Logger)
	a.Sources = repositories.NewSourceRepository(instance, a.Logger)
	a.Runs = repositories.NewRunRepository(instance, a.Logger)
	a.Health.Require(depDatabase, db)
	return nil
}

func (a *App) stopDatabase(_ context.Context) error {
	if a.DB == nil {
		return nil
	}
	return a.DB.Close()
}

func (a *App) startRedis(_ context.Context) error {
	if a.Config.RedisHost == "" {
		a.Logger.Info("Redis disabled: credentials stay in process and runs are not locked")
		return nil
	}
	client, err := redis.NewClient(redis.Config{
		Host:     a.Config.RedisHost,
		Port:     a.Config.RedisPort,
		Password: a.Config.RedisPassword,
		DB:       a.Config.RedisDB,
	}, a.Logger)
	if err != nil {
		return err
	}
	a.Redis = client
	a.Health.Optional(depRedis, health.PingFunc(client.Ping))
	return nil
}

func (a *App) stopRedis(_ context.Context) error {
	if a.Redis == nil {
		return nil
	}
	return a.Redis.Close()
}

func (a *App) startKafka(_ context.Context) error {
	brokers := kafka.ParseBrokers(a.Config.KafkaBrokers)
	if len(brokers) == 0 {
		a.Logger.Info("Kafka disabled: conversion events will not be published")
		return nil
	}
	a.Producer = kafka.NewProducer(kafka.Config{
		Brokers:         brokers,
		StudentTopic:    a.Config.KafkaStudentTopic,
		RunTopic:        a.Config.KafkaRunTopic,
		WriteTimeout:    a.Config.KafkaWriteTimeout,
		AutoCreateTopic: a.Config.KafkaAutoCreate,
	}, a.Logger)
	return nil
}

func (a *App) stopKafka(_ context.Context) error {
	if a.Producer == nil {
		return nil
	}
	return a.Producer.Close()
}

func (a *App) startPipeline(_ context.Context) error {
	cfg := a.Config
	if err := cfg.RequireServices(); err != nil {
		return err
	}

	tokens, err := a.newTokenSource()
	if err != nil {
		return err
	}

	clientConfig := clients.DefaultConfig()
	clientConfig.Timeout = cfg.ServiceTimeout
	newClient := func(service, url string) *clients.Client {
		if url == "" {
			return nil
		}
		return clients.NewClient(service, url, tokens, clientConfig, a.Logger)
	}

	history := clients.NewHistoryClient(newClient("history", cfg.HistoryServiceURL))
	ruleClient := clients.NewRuleClient(newClient("rule", cfg.RuleServiceURL), newClient("school", cfg.SchoolServiceURL))
	lookup := rules.NewLookup(ruleClient, a.Logger, rules.CacheConfig{MaxSize: cfg.RuleCacheSize, TTL: cfg.RuleCacheTTL})

	deps := conversion.Dependencies{
		Classifier:  classifier.NewClassifier(),
		Identities:  identity.NewResolver(clients.NewStudentClient(newClient("student", cfg.StudentServiceURL)), a.Logger, cfg.RegisterMissing),
		Destination: clients.NewGradClient(newClient("grad", cfg.GradServiceURL)),
		Enrollments: enrollment.NewSynchronizer(clients.NewProgramClient(newClient("program", cfg.ProgramServiceURL)), a.Logger),
		Datasets:    dataset.NewBuilder(history, lookup, a.Logger),
		History:     history,
	}
	if cfg.GenerateDocuments && cfg.ReportServiceURL != "" {
		deps.Renderer = clients.NewReportClient(newClient("report", cfg.ReportServiceURL))
	}

	var events batch.RunEvents
	if a.Producer != nil {
		deps.Events = a.Producer
		events = a.Producer
	}

	var locker batch.Locker
	if a.Redis != nil {
		locker = runLocker{locker: redis.NewLocker(a.Redis, "fern:lock:")}
	}

	executor := batch.NewExecutor(a.Sources, conversion.NewOrchestrator(deps, a.Logger), tokens, a.Logger, batch.Config{
		Partitions:   cfg.Partitions,
		RefreshEvery: cfg.CredentialRefreshCalls,
	})
	a.Runner = batch.NewRunner(executor, a.Runs, locker, events, a.Logger, batch.RunnerConfig{
		LockKey: batch.DefaultLockKey,
		LockTTL: cfg.RunLockTTL,
	})
	return nil
}

// newTokenSource returns nil when no token endpoint is configured, leaving clients unauthenticated
func (a *App) newTokenSource() (clients.TokenSource, error) {
	cfg := a.Config
	if cfg.TokenURL == "" {
		a.Logger.Warn("TOKEN_URL is not set: service calls will be unauthenticated")
		return nil, nil
	}

	provider, err := clients.NewTokenProvider(clients.TokenConfig{
		TokenURL:      cfg.TokenURL,
		ClientID:      cfg.ClientID,
		ClientSecret:  cfg.ClientSecret,
		Scope:         cfg.TokenScope,
		TokenPath:     cfg.TokenPath,
		ExpiresInPath: cfg.TokenExpiresInPath,
		Timeout:       cfg.ServiceTimeout,
	}, a.Logger)
	if err != nil {
		return nil, err
	}

	var store credentials.Store
	if a.Redis != nil {
		store = redis.NewCredentialStore(a.Redis, redis.DefaultCredentialKey)
	}
	return credentials.NewCache(provider, store, a.Logger, credentials.Config{
		Skew:         cfg.CredentialSkew,
		RefreshEvery: cfg.CredentialRefreshCalls,
	}), nil
}
