package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"routing-simulator/internal/config"
	"routing-simulator/internal/connectors"
	"routing-simulator/internal/gateway"
	"routing-simulator/internal/helpers/logs"
	"routing-simulator/internal/metrics"
	"routing-simulator/internal/payment"
	"routing-simulator/internal/simulation"
	"routing-simulator/internal/store"
	"routing-simulator/internal/summary"
	"routing-simulator/internal/types"
)

type application struct {
	settings *config.Settings
	logger   *zap.Logger
	rdb      *redis.Client
	store    *store.Store
	registry *connectors.Registry
	rules    *gateway.RuleConfigurer
	feedback *gateway.FeedbackPool
	engine   *simulation.Engine
	metrics  *prometheus.Registry
}

func main() {
	flags := config.Flags()

	root := &cobra.Command{
		Use:           "simulator",
		Short:         "Payment routing simulation dashboard backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), flags)
		},
	}
	root.PersistentFlags().AddFlagSet(flags)

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), flags)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Run one simulation to completion and print its summary",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHeadless(cmd.Context(), flags)
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func build(ctx context.Context, settings *config.Settings) (*application, error) {
	logger, err := logs.Setup(settings.Debug || logs.IsDebugMode)
	if err != nil {
		return nil, fmt.Errorf("failed to set up logging: %w", err)
	}

	app := &application{settings: settings, logger: logger}

	session := settings.Session
	if settings.Redis.Enabled {
		app.rdb = redis.NewClient(&redis.Options{
			Addr: settings.Redis.Addr,
			DB:   settings.Redis.DB,
		})
		if err := app.rdb.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("could not connect to Redis: %w", err)
		}
		app.store = store.New(app.rdb, settings.Redis.Prefix)

		if session.APIKey == "" {
			stored, ok, err := app.store.LoadSession(ctx)
			if err != nil {
				logger.Warn("stored session unavailable", zap.Error(err))
			} else if ok {
				session = stored
			}
		}
	}

	client := &http.Client{Timeout: settings.HTTPTimeout}

	app.registry = connectors.NewRegistry(settings.Endpoints.Connectors, client, settings.ConnectorTTL, logger)
	if len(settings.StaticConnectors) > 0 {
		app.registry.Set(settings.StaticConnectors)
		logger.Info("using static connector list", zap.Int("connectors", len(settings.StaticConnectors)))
	}
	app.rules = gateway.NewRuleConfigurer(settings.Endpoints.RoutingRule, client, settings.RoutingDebounce, settings.HTTPTimeout, logger)
	app.feedback = gateway.NewFeedbackPool(
		gateway.NewFeedbackClient(settings.Endpoints.Feedback, client),
		settings.Feedback.Workers,
		settings.Feedback.QueueSize,
		settings.Feedback.Timeout,
		logger,
	)

	orchestrator := simulation.NewOrchestrator(
		gateway.NewDecisionClient(settings.Endpoints.Decision, client, logger),
		payment.NewSubmitter(settings.Endpoints.Payments, client, payment.DefaultRand{}, logger),
		app.feedback,
		app.registry,
		logger,
	)

	var engine *simulation.Engine
	summarizer := summary.NewRequester(settings.Endpoints.Summary, newSummaryClient(settings.Engine), func() types.SessionContext { return engine.Session() }, logger)
	engine = simulation.NewEngine(session, app.registry, orchestrator, summarizer, logger, simulation.Options{
		TickInterval:   settings.Engine.TickInterval,
		MaxConcurrency: settings.Engine.MaxConcurrency,
		SummaryTimeout: settings.Engine.SummaryTimeout,
	})
	app.engine = engine

	app.metrics = prometheus.NewRegistry()
	app.metrics.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	engine.AddObserver(metrics.NewCollector(app.metrics))

	if app.store != nil {
		engine.AddObserver(store.NewRecorder(app.store, settings.HTTPTimeout, logger))
	}

	app.feedback.Start()

	return app, nil
}

func (a *application) close() {
	ctx, cancel := context.WithTimeout(context.Background(), a.settings.HTTPTimeout)
	defer cancel()

	if err := a.rules.Flush(ctx); err != nil {
		a.logger.Warn("pending routing rule not pushed", zap.Error(err))
	}

	a.engine.WaitSummaries()
	a.feedback.Stop()

	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.logger.Warn("error closing Redis client", zap.Error(err))
		}
	}

	_ = a.logger.Sync()
}

// newSummaryClient bounds summary requests by SummaryTimeout instead of the
// shared HTTP timeout.
func newSummaryClient(engine config.Engine) *http.Client {
	return &http.Client{Timeout: engine.SummaryTimeout}
}
