// Package di provides dependency injection type definitions.
package di

import (
	"github.com/agentrace/agentrace/internal/database"
	"github.com/agentrace/agentrace/internal/events"
	"github.com/agentrace/agentrace/internal/modules/agents"
	"github.com/agentrace/agentrace/internal/modules/decisions"
	"github.com/agentrace/agentrace/internal/modules/equity"
	"github.com/agentrace/agentrace/internal/modules/ledger"
	"github.com/agentrace/agentrace/internal/modules/marketdata"
	"github.com/agentrace/agentrace/internal/modules/universe"
	"github.com/agentrace/agentrace/internal/orchestrator"
	"github.com/agentrace/agentrace/internal/reliability"
)

// Container holds all dependencies for the application.
// This is the single source of truth for all service instances.
type Container struct {
	// Databases (4-database architecture)
	MarketDB *database.DB
	LedgerDB *database.DB
	AgentsDB *database.DB
	CacheDB  *database.DB

	// Repositories
	AssetRepo     *universe.AssetRepository
	CandleRepo    *marketdata.CandleRepository
	PriceCache    *marketdata.PriceCache
	AgentRepo     *agents.Repository
	PortfolioRepo *ledger.PortfolioRepository
	PositionRepo  *ledger.PositionRepository
	TradeRepo     *ledger.TradeRepository
	SnapshotRepo  *equity.SnapshotRepository
	InstanceRepo  *orchestrator.InstanceRepository

	// Clients
	CoinGeckoClient *marketdata.CoinGeckoClient

	// Services
	EventBus         *events.Bus
	SeedService      *universe.SeedService
	IngestionService *marketdata.IngestionService
	LedgerService    *ledger.Service
	EquityService    *equity.Service
	ContextBuilder   *decisions.ContextBuilder
	SourceFactory    *decisions.SourceFactory
	RiskValidator    *decisions.RiskValidator
	DecisionRunner   *decisions.Runner
	Orchestrator     *orchestrator.Orchestrator
	BackupService    *reliability.BackupService // nil unless backups are configured
}

// JobInstances holds the scheduled jobs ready for registration
type JobInstances struct {
	CycleJob  *orchestrator.CycleJob
	BackupJob *reliability.BackupJob // nil unless backups are configured
}

// Databases returns the named database map used by health checks and backups
func (c *Container) Databases() map[string]*database.DB {
	return map[string]*database.DB{
		"market": c.MarketDB,
		"ledger": c.LedgerDB,
		"agents": c.AgentsDB,
		"cache":  c.CacheDB,
	}
}

// Close closes every database connection
func (c *Container) Close() {
	for _, db := range []*database.DB{c.MarketDB, c.LedgerDB, c.AgentsDB, c.CacheDB} {
		if db != nil {
			_ = db.Close()
		}
	}
}
