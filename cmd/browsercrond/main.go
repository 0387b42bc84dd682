package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"browsercron/internal/api"
	"browsercron/internal/config"
	"browsercron/internal/core"
	"browsercron/internal/driver"
	"browsercron/internal/logging"
	browsercronmcp "browsercron/internal/mcp"
	"browsercron/internal/metrics"
	"browsercron/internal/notify"
	"browsercron/internal/store"
)

var version = "dev"

func main() {
	cfg, err := config.Parse()
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}

	logOpts := logging.Options{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	}
	if cfg.Mode != "http" {
		// stdout carries the MCP protocol.
		logOpts.Output = os.Stderr
	}
	logger, logCloser := logging.New(logOpts)
	defer logCloser.Close()

	if err := run(cfg, logger); err != nil {
		logger.Error("browsercrond exited", "err", err)
		logCloser.Close()
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	baseCtx := context.Background()
	storeInst, err := store.Open(baseCtx, cfg.StateDir)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer storeInst.Close()

	location := time.Local
	if cfg.UseUTC {
		location = time.UTC
	}

	chrome := driver.New(driver.Options{
		Headless:      cfg.Browser.Headless,
		ExecPath:      cfg.Browser.ChromePath,
		WindowWidth:   cfg.Browser.WindowWidth,
		WindowHeight:  cfg.Browser.WindowHeight,
		NavTimeout:    cfg.Browser.NavTimeout,
		ActionTimeout: cfg.Browser.ActionTimeout,
	}, logger)

	var (
		sink          core.ResultSink = storeInst
		metricsInst   *metrics.PrometheusMetrics
		metricsHandle http.Handler
	)
	if cfg.MetricsEnabled {
		metricsInst = metrics.New("browsercron")
		metricsHandle = metricsInst.Handler()
		sink = metricsInst.Sink(sink)
	}
	if notifier := buildNotifier(cfg, logger); notifier != nil {
		sink = notify.NewResultNotifier(sink, notifier, notify.ParsePolicy(cfg.Notification.On),
			cfg.Notification.Interval, cfg.Notification.Burst, logger)
	}

	executor := core.NewAutomationExecutor(chrome, sink, storeInst, logger)
	pool := core.NewPool(cfg.Execution.Workers, cfg.Execution.QueueSize, logger)
	registry := core.NewRegistry(storeInst, executor, pool, logger, location)
	orch := core.NewOrchestrator(storeInst, registry, logger)
	if metricsInst != nil {
		metricsInst.ObserveScheduler(registry, pool)
	}

	ctx, cancel := signal.NotifyContext(baseCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	registry.Start(ctx)
	if n, err := registry.ScheduleAllActive(ctx); err != nil {
		logger.Error("initial schedule", "err", err)
	} else {
		logger.Info("initial schedule complete", "scheduled", n)
	}

	errs := make(chan error, 2)
	var server *api.Server
	if cfg.Mode == "http" || cfg.Mode == "both" {
		server = api.NewServer(cfg.Server.Addr, cfg.Server.AuthToken, orch, storeInst, metricsHandle, logger, location)
		go func() {
			if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errs <- fmt.Errorf("http server: %w", err)
			}
		}()
	}
	if cfg.Mode == "mcp" || cfg.Mode == "both" {
		mcpServer := browsercronmcp.NewMCPServer(orch, storeInst, logger, location, version)
		go func() {
			// ServeStdio returns when stdin closes, which ends the process in mcp mode.
			errs <- mcpServer.Run()
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("received signal, shutting down")
	case err := <-errs:
		if err != nil {
			runErr = err
		} else {
			logger.Info("mcp client disconnected, shutting down")
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer shutdownCancel()

	if server != nil {
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown", "err", err)
		}
	}
	if err := registry.Shutdown(shutdownCtx); err != nil {
		logger.Warn("in-flight runs cancelled at shutdown", "err", err)
	}
	logger.Info("shutdown complete")
	return runErr
}

func buildNotifier(cfg *config.Config, logger *slog.Logger) notify.Notifier {
	if !cfg.Notification.Bark.Enabled {
		return nil
	}
	bark, err := notify.NewBarkNotifier(cfg.Notification.Bark.URL)
	if err != nil {
		logger.Error("bark notifier disabled", "err", err)
		return nil
	}
	return notify.NewMultiNotifier(bark)
}
