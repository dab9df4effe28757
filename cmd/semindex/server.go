package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperjump/semindex/internal/config"
	"github.com/hyperjump/semindex/internal/registry"
	"github.com/hyperjump/semindex/internal/scheduler"
	"github.com/hyperjump/semindex/internal/server"
	"github.com/hyperjump/semindex/pkg/utils"
)

const shutdownTimeout = 30 * time.Second

// NewServerCmd runs the HTTP server until SIGINT or SIGTERM.
func NewServerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "server",
		Short: "Start the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			debug, _ := cmd.Flags().GetBool("debug")
			return runServer(cmd.Context(), configPath, debug)
		},
	}
}

func runServer(ctx context.Context, configPath string, debug bool) error {
	cfg, resolvedConfigPath, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	debugMode := cfg.Debug || debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		return err
	}

	reg := startRegistry(ctx, cfg, components.Scheduler, logger)
	components.Scheduler.Start()

	srv := server.NewServer(components.Service, components.Scheduler, &cfg.Server, logger)
	serverErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	var runErr error
	select {
	case sig := <-sigChan:
		logger.Info("Shutting down...", zap.String("signal", sig.String()))
	case err := <-serverErr:
		if err != nil {
			logger.Error("Server failed", zap.Error(err))
			runErr = err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Warn("http shutdown failed", zap.Error(err))
	}
	if err := components.Scheduler.Stop(shutdownCtx); err != nil {
		logger.Warn("scheduler shutdown failed", zap.Error(err))
	}
	if reg != nil {
		if err := reg.Deregister(shutdownCtx); err != nil {
			logger.Warn("registry deregistration failed", zap.Error(err))
		}
	}
	if err := components.Close(shutdownCtx); err != nil {
		logger.Error("final checkpoint failed", zap.Error(err))
		return errors.Join(runErr, err)
	}
	return runErr
}

// startRegistry registers the instance and schedules heartbeats. It returns nil when
// registration is disabled or no address in the configured subnet is available.
func startRegistry(ctx context.Context, cfg *config.Config, sched *scheduler.Scheduler, logger *zap.Logger) *registry.Registrar {
	if !cfg.Registry.Enabled {
		return nil
	}
	reg, err := registry.New(registry.Config{
		ServiceURL: cfg.Registry.ServiceURL(),
		AppName:    cfg.Registry.AppName,
		Subnet:     cfg.Registry.Subnet,
		Port:       cfg.Server.Port,
	}, registry.WithLogger(logger))
	if err != nil {
		logger.Warn("service registration skipped", zap.Error(err))
		return nil
	}
	if err := reg.Register(ctx); err != nil {
		logger.Warn("service registration failed, will retry on heartbeat", zap.Error(err))
	}
	if err := sched.Add("registry-heartbeat", cfg.Registry.Heartbeat, reg.Heartbeat); err != nil {
		logger.Warn("registry heartbeat not scheduled", zap.Error(err))
	}
	return reg
}
