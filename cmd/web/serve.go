package main

import (
	"context"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"routing-simulator/internal/config"
	"routing-simulator/internal/handlers"
)

func serve(ctx context.Context, flags *pflag.FlagSet) error {
	settings, err := config.Load(flags)
	if err != nil {
		return err
	}

	app, err := build(ctx, settings)
	if err != nil {
		return err
	}
	defer app.close()

	server := fiber.New(fiber.Config{
		DisableStartupMessage: !settings.Debug,
		JSONEncoder:           sonic.Marshal,
		JSONDecoder:           sonic.Unmarshal,
	})

	events := handlers.NewBroadcaster(32)
	app.engine.AddObserver(events)

	h := &handlers.Handlers{
		Simulator:  app.engine,
		Connectors: app.registry,
		Rules:      app.rules,
		Events:     events,
		Defaults:   settings.Simulation,
		Logger:     app.logger,
	}
	if app.store != nil {
		h.Store = app.store
	}
	h.Register(server)

	if settings.Endpoints.ProxyTarget != "" {
		handlers.NewPaymentsProxy(settings.Endpoints.ProxyTarget, settings.HTTPTimeout, func() string {
			return app.engine.Session().APIKey
		}).Register(server)
	}

	server.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(app.metrics, promhttp.HandlerOpts{})))

	listenErr := make(chan error, 1)
	go func() {
		app.logger.Info("listening", zap.String("addr", settings.Listen))
		listenErr <- server.Listen(settings.Listen)
	}()

	select {
	case <-ctx.Done():
	case err := <-listenErr:
		if err != nil {
			return fmt.Errorf("error starting server: %w", err)
		}
	}

	// A run still in progress is stopped so its summary is requested before exit.
	_ = app.engine.Stop()
	events.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.ShutdownWithContext(shutdownCtx); err != nil {
		app.logger.Warn("error during server shutdown", zap.Error(err))
	}

	return nil
}
