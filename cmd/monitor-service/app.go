package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/sync/errgroup"

	"devpulse/internal/broker"
	"devpulse/internal/bus"
	"devpulse/internal/config"
	"devpulse/internal/console"
	"devpulse/internal/constants"
	"devpulse/internal/deadletter"
	"devpulse/internal/dedup"
	"devpulse/internal/export"
	"devpulse/internal/logger"
	"devpulse/internal/queue"
	"devpulse/pkg/bootstrap"
	celpkg "devpulse/pkg/cel"
	"devpulse/pkg/health"
	"devpulse/pkg/metrics"
	"devpulse/pkg/models"
	"devpulse/pkg/tracing"
)

const serviceName = "monitor-service"

type App struct {
	*bootstrap.Base
	dbConnector *bootstrap.DatabaseConnector

	bus       *bus.Bus
	manager   *queue.Manager
	evaluator *celpkg.Evaluator
	forwarder *export.Forwarder

	redis          *redis.Client
	mongo          *mongo.Client
	tracerProvider *tracing.TracerProvider
	server         *http.Server
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	if sugaredLogger, ok := log.(*logger.SugaredLogger); ok {
		sugaredLogger.SetServiceName(serviceName)
	}
	return &App{
		Base:        bootstrap.NewBase(cfg, log),
		dbConnector: bootstrap.NewDatabaseConnector(cfg, log),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	eval, err := celpkg.NewEvaluator()
	if err != nil {
		return fmt.Errorf("failed to create expression evaluator: %w", err)
	}
	a.evaluator = eval

	a.bus = bus.New(a.Logger)

	if err := a.initQueueManager(); err != nil {
		return fmt.Errorf("failed to initialize queue manager: %w", err)
	}

	if err := a.installConfigFilters(); err != nil {
		return fmt.Errorf("failed to install configured filters: %w", err)
	}

	if a.Config.Dedup.Enabled {
		if err := a.initDedup(ctx); err != nil {
			return fmt.Errorf("failed to initialize deduplication: %w", err)
		}
	}

	if a.Config.Export.Enabled {
		if err := a.initExport(); err != nil {
			return fmt.Errorf("failed to initialize export: %w", err)
		}
	}

	if err := a.initDeadLetter(ctx); err != nil {
		return fmt.Errorf("failed to initialize dead-letter store: %w", err)
	}

	if a.Config.Tracing.Enabled {
		tp, err := tracing.Init(a.Config.Tracing, serviceName)
		if err != nil {
			return fmt.Errorf("failed to initialize tracing: %w", err)
		}
		a.tracerProvider = tp
	}

	a.registerMetrics()
	a.initConsole()

	return nil
}

func (a *App) initQueueManager() error {
	diag := func(ctx context.Context, evt models.Event) {
		if err := a.bus.PublishDirect(ctx, evt); err != nil {
			a.Logger.WarnwCtx(ctx, "Failed to publish queue diagnostic", "error", err)
		}
	}

	manager, err := queue.NewManager(a.Config.Queues, a.evaluator, diag, a.Logger)
	if err != nil {
		return err
	}
	a.manager = manager
	a.bus.SetEnqueuer(manager)

	// Queued delivery is the same dispatch, deferred: every queue's
	// processor replays its batches through the bus.
	for _, name := range manager.QueueNames() {
		name := name
		err := manager.RegisterProcessor(name, func(ctx context.Context, events []models.Event) error {
			return a.bus.Redeliver(ctx, name, events)
		})
		if err != nil {
			return err
		}
	}

	return nil
}

func (a *App) installConfigFilters() error {
	for _, expression := range a.Config.Bus.Filters {
		program, err := a.evaluator.CompileFilter(expression)
		if err != nil {
			return fmt.Errorf("filter %q: %w", expression, err)
		}
		expression := expression
		a.bus.AddGlobalFilter(func(ctx context.Context, evt models.Event) bool {
			keep, err := a.evaluator.EvaluateProgram(ctx, program, evt)
			if err != nil {
				a.Logger.WarnwCtx(ctx, "Filter evaluation failed, allowing event",
					"expression", expression,
					"error", err,
				)
				return true
			}
			return keep
		})
	}
	return nil
}

func (a *App) initDedup(ctx context.Context) error {
	rdb, err := a.dbConnector.InitRedis(ctx)
	if err != nil {
		return err
	}
	a.redis = rdb

	filter := dedup.NewFilter(dedup.NewRepository(rdb), a.Config.Dedup, a.Logger)
	a.bus.AddGlobalFilter(filter.Allow)
	return nil
}

func (a *App) initExport() error {
	producer, err := broker.NewProducer(a.Config.Export.Broker, a.Logger)
	if err != nil {
		return err
	}

	a.forwarder = export.NewForwarder(producer, a.Config.Export, a.Logger)
	a.forwarder.Attach(a.bus)
	return nil
}

func (a *App) initDeadLetter(ctx context.Context) error {
	var handler queue.FailedHandler

	switch a.Config.DeadLetter.Store {
	case "mongodb":
		client, err := a.dbConnector.InitMongoDB(ctx)
		if err != nil {
			return err
		}
		if client == nil {
			return fmt.Errorf("dead-letter store is mongodb but no URI configured")
		}
		a.mongo = client
		handler = deadletter.NewMongoStore(client, a.Config.DeadLetter.MongoDB, a.Logger).Handle
	default:
		handler = deadletter.LogHandler(a.Logger)
	}

	for _, name := range a.manager.QueueNames() {
		if err := a.manager.RegisterFailedHandler(name, handler); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) registerMetrics() {
	metrics.RegisterBusMetrics()
	metrics.RegisterQueueMetrics()
	metrics.RegisterConsoleMetrics()
	if a.Config.Dedup.Enabled {
		metrics.RegisterDedupMetrics()
	}
	if a.Config.Export.Enabled {
		metrics.RegisterExportMetrics()
		if a.Config.Export.Breaker.Enabled {
			metrics.RegisterCircuitBreakerMetrics()
		}
	}
}

func (a *App) initConsole() {
	healthRegistry := health.NewCheckerRegistry()
	if a.redis != nil {
		healthRegistry.Register(health.NewRedisChecker(a.redis))
	}
	if a.mongo != nil {
		healthRegistry.Register(health.NewMongoDBChecker(a.mongo))
	}

	handler := console.NewHandler(a.bus, a.manager, healthRegistry, a.Logger)
	router := console.NewRouter(handler, a.Config.RateLimit)

	a.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler: router,
	}
}

func (a *App) Run(ctx context.Context) error {
	a.manager.Start()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.InfowCtx(ctx, "Console server starting", "port", a.Config.Server.Port)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})

	err := g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		constants.ShutdownTimeout+constants.HandlerDrainTimeout)
	defer cancel()
	if shutdownErr := a.ShutdownApp(shutdownCtx); shutdownErr != nil && err == nil {
		err = shutdownErr
	}
	return err
}

func (a *App) ShutdownApp(ctx context.Context) error {
	return a.Base.Shutdown(ctx, func(ctx context.Context) []error {
		var errs []error

		// Queue drain first: the redeliver path needs the bus open.
		if err := a.manager.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("queue manager stop error: %w", err))
		}

		drain := a.Config.Bus.HandlerDrainTimeout
		if drain <= 0 {
			drain = constants.HandlerDrainTimeout
		}
		if err := a.bus.Close(drain); err != nil {
			errs = append(errs, fmt.Errorf("bus close error: %w", err))
		}

		if a.forwarder != nil {
			if err := a.forwarder.Close(); err != nil {
				errs = append(errs, fmt.Errorf("export forwarder close error: %w", err))
			}
		}

		errs = append(errs, a.dbConnector.ShutdownDatabases(ctx, a.redis, a.mongo)...)

		if a.tracerProvider != nil {
			if err := a.tracerProvider.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("tracer shutdown error: %w", err))
			}
		}

		return errs
	})
}
