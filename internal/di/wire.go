package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/agentrace/agentrace/internal/config"
)

// Wire builds the full dependency graph:
// 1. Initialize databases
// 2. Initialize repositories
// 3. Initialize services
// 4. Create job instances
func Wire(cfg *config.Config, log zerolog.Logger) (*Container, *JobInstances, error) {
	container, err := InitializeDatabases(cfg, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize databases: %w", err)
	}

	InitializeRepositories(container, log)

	if err := InitializeServices(container, cfg, log); err != nil {
		container.Close()
		return nil, nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	jobs := InitializeJobs(container, cfg, log)

	log.Info().Msg("Dependency container wired")
	return container, jobs, nil
}
