package di

import (
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/agentrace/agentrace/internal/config"
	"github.com/agentrace/agentrace/internal/database"
)

// InitializeDatabases opens and migrates the four databases
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{}

	specs := []struct {
		name    string
		profile database.DatabaseProfile
		target  **database.DB
	}{
		{"market", database.ProfileStandard, &container.MarketDB},
		{"ledger", database.ProfileLedger, &container.LedgerDB},
		{"agents", database.ProfileStandard, &container.AgentsDB},
		{"cache", database.ProfileCache, &container.CacheDB},
	}

	for _, spec := range specs {
		db, err := database.New(database.Config{
			Path:    filepath.Join(cfg.DataDir, spec.name+".db"),
			Profile: spec.profile,
			Name:    spec.name,
		})
		if err != nil {
			container.Close()
			return nil, fmt.Errorf("failed to open %s database: %w", spec.name, err)
		}

		if err := db.Migrate(); err != nil {
			_ = db.Close()
			container.Close()
			return nil, fmt.Errorf("failed to migrate %s database: %w", spec.name, err)
		}

		*spec.target = db
		log.Info().
			Str("database", spec.name).
			Str("profile", string(spec.profile)).
			Msg("Database initialized")
	}

	return container, nil
}
