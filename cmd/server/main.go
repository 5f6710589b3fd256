package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/agentrace/agentrace/internal/config"
	"github.com/agentrace/agentrace/internal/di"
	"github.com/agentrace/agentrace/internal/scheduler"
	"github.com/agentrace/agentrace/internal/server"
	"github.com/agentrace/agentrace/pkg/logger"
)

func main() {
	// Initialize logger
	log := logger.New(logger.Config{
		Level:  os.Getenv("LOG_LEVEL"),
		Pretty: os.Getenv("LOG_PRETTY") == "true",
	})

	log.Info().Msg("Starting Agent Race")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Wire the dependency container (databases, repositories, services, jobs)
	container, jobs, err := di.Wire(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}
	defer container.Close()

	// Sync the universe seed (assets + agents) before the first cycle
	if cfg.SeedFile != "" {
		seed, err := config.LoadSeed(cfg.SeedFile)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.SeedFile).Msg("Failed to load seed file")
		}
		if err := container.SeedService.Sync(seed); err != nil {
			log.Fatal().Err(err).Msg("Failed to sync universe seed")
		}
	} else {
		log.Warn().Msg("No seed file configured, universe is whatever the databases hold")
	}

	// Start the scheduler and register jobs
	sched := scheduler.New(log)
	if err := di.RegisterJobs(sched, jobs, cfg); err != nil {
		log.Fatal().Err(err).Msg("Failed to register jobs")
	}
	sched.Start()
	defer sched.Stop()

	// Initialize HTTP server
	srv := server.New(server.Config{
		Port:         cfg.Port,
		DevMode:      cfg.DevMode,
		Log:          log,
		Databases:    container.Databases(),
		Bus:          container.EventBus,
		AgentRepo:    container.AgentRepo,
		LedgerSvc:    container.LedgerService,
		EquitySvc:    container.EquityService,
		Orchestrator: container.Orchestrator,
		InstanceRepo: container.InstanceRepo,
	})

	// Start server in goroutine
	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
