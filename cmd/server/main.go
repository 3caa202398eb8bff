package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mcoot/scanogram/internal/api"
	"github.com/mcoot/scanogram/internal/config"
	"github.com/mcoot/scanogram/internal/dependencies/random"
	"github.com/mcoot/scanogram/internal/factory"
	"github.com/mcoot/scanogram/internal/web/ws"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	app, err := factory.New(factory.FromServerConfig(cfg, logger))
	if err != nil {
		return fmt.Errorf("create application: %w", err)
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Error("failed to close application", slog.String("error", err.Error()))
		}
	}()

	realtime := ws.NewHandler(app.Dispatcher, cfg.Origins(), random.New(), logger)

	router := api.NewRouter(api.RouterConfig{
		Logger:    logger,
		Snapshots: app.Snapshots,
		Sessions:  app.Registry,
		Rooms:     app.Hubs,
		Realtime:  realtime,
		Origins:   cfg.Origins(),
	})

	serverConfig := api.DefaultServerConfig()
	serverConfig.Host = cfg.Host
	serverConfig.Port = cfg.Port
	server := api.NewServer(router, serverConfig, logger)
	server.OnShutdown(func() {
		n := app.Registry.CloseAll()
		logger.Info("closed realtime connections", slog.Int("count", n))
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	logger.Info("server started",
		slog.String("addr", server.Addr()),
		slog.String("storage", cfg.StorageType))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	if err := server.Shutdown(context.Background()); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}
