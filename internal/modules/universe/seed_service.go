package universe

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/agentrace/agentrace/internal/config"
	"github.com/agentrace/agentrace/internal/domain"
)

// AgentWriter is the subset of the agent repository the seed sync needs
type AgentWriter interface {
	Upsert(agent domain.Agent) (*domain.Agent, error)
}

// SeedService syncs the YAML universe seed into the asset and agent stores
type SeedService struct {
	assetRepo *AssetRepository
	agentRepo AgentWriter
	log       zerolog.Logger
}

// NewSeedService creates a new seed service
func NewSeedService(assetRepo *AssetRepository, agentRepo AgentWriter, log zerolog.Logger) *SeedService {
	return &SeedService{
		assetRepo: assetRepo,
		agentRepo: agentRepo,
		log:       log.With().Str("service", "seed").Logger(),
	}
}

// Sync applies the seed declarations. Upserts are keyed by asset symbol
// and agent name, so running Sync repeatedly is safe.
func (s *SeedService) Sync(seed *config.Seed) error {
	if seed == nil {
		return nil
	}

	for _, sa := range seed.Assets {
		asset := domain.MarketAsset{
			Symbol:        sa.Symbol,
			Name:          sa.Name,
			QuoteCurrency: sa.QuoteCurrency,
			ExternalID:    sa.ExternalID,
			IsEnabled:     sa.IsEnabled(),
		}
		if _, err := s.assetRepo.Upsert(asset); err != nil {
			return fmt.Errorf("failed to seed asset %s: %w", sa.Symbol, err)
		}
	}

	for _, sg := range seed.Agents {
		agent := domain.Agent{
			Name:          sg.Name,
			Strategy:      sg.Strategy,
			Instructions:  sg.Instructions,
			ModelProvider: sg.ModelProvider,
			DeploymentKey: sg.DeploymentKey,
			IsActive:      sg.IsActive(),
		}
		if _, err := s.agentRepo.Upsert(agent); err != nil {
			return fmt.Errorf("failed to seed agent %s: %w", sg.Name, err)
		}
	}

	s.log.Info().
		Int("assets", len(seed.Assets)).
		Int("agents", len(seed.Agents)).
		Msg("Universe seed synced")

	return nil
}
