package di

import (
	"github.com/rs/zerolog"

	"github.com/agentrace/agentrace/internal/modules/agents"
	"github.com/agentrace/agentrace/internal/modules/equity"
	"github.com/agentrace/agentrace/internal/modules/ledger"
	"github.com/agentrace/agentrace/internal/modules/marketdata"
	"github.com/agentrace/agentrace/internal/modules/universe"
	"github.com/agentrace/agentrace/internal/orchestrator"
)

// InitializeRepositories wires every repository onto its database
func InitializeRepositories(c *Container, log zerolog.Logger) {
	c.AssetRepo = universe.NewAssetRepository(c.MarketDB.Conn(), log)
	c.CandleRepo = marketdata.NewCandleRepository(c.MarketDB.Conn(), log)
	c.PriceCache = marketdata.NewPriceCache(c.CacheDB.Conn(), log)
	c.AgentRepo = agents.NewRepository(c.AgentsDB.Conn(), log)
	c.PortfolioRepo = ledger.NewPortfolioRepository(c.LedgerDB.Conn(), log)
	c.PositionRepo = ledger.NewPositionRepository(c.LedgerDB.Conn(), log)
	c.TradeRepo = ledger.NewTradeRepository(c.LedgerDB.Conn(), log)
	c.SnapshotRepo = equity.NewSnapshotRepository(c.LedgerDB.Conn(), log)
	c.InstanceRepo = orchestrator.NewInstanceRepository(c.CacheDB.Conn(), log)
}
