package app

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/browser"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/handlers"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/rpc"
	"github.com/ternarybob/colligo/internal/services/agent"
	"github.com/ternarybob/colligo/internal/services/events"
	"github.com/ternarybob/colligo/internal/services/extractor"
	"github.com/ternarybob/colligo/internal/services/pipeline"
	"github.com/ternarybob/colligo/internal/services/scheduler"
	"github.com/ternarybob/colligo/internal/services/submit"
	badgerstore "github.com/ternarybob/colligo/internal/storage/badger"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	// Storage
	DB            *badgerstore.BadgerDB
	RecordStorage interfaces.RecordStorage
	KVStorage     interfaces.KeyValueStorage

	// Browser and agent
	BrowserSession *browser.Session
	CallTable      *rpc.Table
	Agent          interfaces.WorkerAgent
	Extractor      *extractor.Extractor

	// Pipeline and supporting services
	EventService interfaces.EventService
	Submitter    interfaces.Submitter
	Pipeline     *pipeline.Service
	Scheduler    *scheduler.Scheduler

	// HTTP handlers
	APIHandler     *handlers.APIHandler
	ControlHandler *handlers.ControlHandler
	WSHandler      *handlers.WebSocketHandler
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	if err := app.initStorage(); err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	// Event service and WebSocket handler come up early so everything after
	// them can publish
	app.EventService = events.NewService(logger)
	app.WSHandler = handlers.NewWebSocketHandler(app.EventService, logger, &cfg.WebSocket)

	if err := app.initServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.initHandlers()

	// A crash mid-run leaves the durable flag behind; clear it before any
	// command is accepted
	app.Pipeline.ClearStaleRunFlag(context.Background())

	if err := app.Scheduler.Start(); err != nil {
		return nil, fmt.Errorf("failed to start scheduler: %w", err)
	}

	logger.Info().
		Str("listing_url", cfg.Pipeline.ListingURL).
		Bool("scheduler_enabled", cfg.Scheduler.Enabled).
		Msg("Application initialization complete")

	return app, nil
}

// initStorage opens the Badger database and its typed stores
func (a *App) initStorage() error {
	db, err := badgerstore.NewBadgerDB(a.Logger, &a.Config.Storage.Badger)
	if err != nil {
		return err
	}

	a.DB = db
	a.RecordStorage = badgerstore.NewRecordStorage(db, a.Logger)
	a.KVStorage = badgerstore.NewKVStorage(db, a.Logger)

	a.Logger.Debug().
		Str("storage", "badger").
		Str("path", a.Config.Storage.Badger.Path).
		Msg("Storage layer initialized")

	return nil
}

// initServices wires the browser session, worker agent, extractor, submitter
// and the pipeline. The browser launches here so a broken Chrome install
// fails startup instead of the first run.
func (a *App) initServices() error {
	a.BrowserSession = browser.NewSession(&a.Config.Browser, a.Logger)
	a.CallTable = rpc.NewTable(a.Logger)
	a.Agent = agent.NewAgent(a.BrowserSession, a.CallTable, &a.Config.Pipeline, a.Logger)
	a.Extractor = extractor.New(a.BrowserSession, &a.Config.Pipeline, a.Logger)
	a.Submitter = submit.NewClient(&a.Config.Submission, a.Logger)

	if err := a.BrowserSession.Start(context.Background()); err != nil {
		return fmt.Errorf("failed to start browser: %w", err)
	}

	a.Pipeline = pipeline.NewService(
		a.Agent,
		a.Extractor,
		a.Submitter,
		a.RecordStorage,
		a.KVStorage,
		a.EventService,
		&a.Config.Pipeline,
		a.Logger,
	)

	a.Scheduler = scheduler.NewScheduler(a.Pipeline, &a.Config.Scheduler, a.Logger)

	return nil
}

// initHandlers creates the HTTP handlers
func (a *App) initHandlers() {
	a.APIHandler = handlers.NewAPIHandler(a.Logger)
	a.ControlHandler = handlers.NewControlHandler(a.Pipeline, a.RecordStorage, a.Logger)
}

// Close shuts components down in reverse dependency order
func (a *App) Close() error {
	a.Logger.Info().Msg("Shutting down application")

	if a.Scheduler != nil {
		a.Scheduler.Stop()
	}
	if a.Pipeline != nil {
		a.Pipeline.Close()
	}
	if a.BrowserSession != nil {
		if err := a.BrowserSession.Shutdown(); err != nil {
			a.Logger.Warn().Err(err).Msg("Browser shutdown reported error")
		}
	}
	if a.EventService != nil {
		a.EventService.Close()
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Database close reported error")
			return err
		}
	}

	a.Logger.Info().Msg("Application shutdown complete")
	return nil
}
