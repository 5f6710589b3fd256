package di

import (
	"github.com/rs/zerolog"

	"github.com/agentrace/agentrace/internal/config"
	"github.com/agentrace/agentrace/internal/events"
	"github.com/agentrace/agentrace/internal/modules/decisions"
	"github.com/agentrace/agentrace/internal/modules/equity"
	"github.com/agentrace/agentrace/internal/modules/ledger"
	"github.com/agentrace/agentrace/internal/modules/marketdata"
	"github.com/agentrace/agentrace/internal/modules/universe"
	"github.com/agentrace/agentrace/internal/orchestrator"
	"github.com/agentrace/agentrace/internal/reliability"
)

// InitializeServices wires every service onto its repositories
func InitializeServices(c *Container, cfg *config.Config, log zerolog.Logger) error {
	c.EventBus = events.NewBus(log)

	c.SeedService = universe.NewSeedService(c.AssetRepo, c.AgentRepo, log)

	c.CoinGeckoClient = marketdata.NewCoinGeckoClient(cfg.CoinGeckoURL, cfg.CoinGeckoAPIKey, log)
	c.IngestionService = marketdata.NewIngestionService(
		c.AssetRepo,
		c.CandleRepo,
		c.CoinGeckoClient,
		cfg.IngestDelay,
		cfg.CandleDays,
		log,
	)

	c.LedgerService = ledger.NewService(
		c.LedgerDB.Conn(),
		c.PortfolioRepo,
		c.PositionRepo,
		c.TradeRepo,
		c.AssetRepo,
		c.CandleRepo,
		c.SnapshotRepo,
		cfg.StartingCash,
		log,
	)

	c.EquityService = equity.NewService(
		c.AgentRepo,
		c.PortfolioRepo,
		c.PositionRepo,
		c.TradeRepo,
		c.SnapshotRepo,
		c.CandleRepo,
		cfg.StartingCash,
		log,
	)

	c.ContextBuilder = decisions.NewContextBuilder(c.AssetRepo, c.CandleRepo, c.LedgerService, log)
	c.SourceFactory = decisions.NewSourceFactory(log)
	c.RiskValidator = decisions.NewRiskValidator(decisions.RiskLimits{
		MaxOrdersPerCycle: cfg.MaxOrdersPerCycle,
		MaxTradeNotional:  cfg.MaxTradeNotional,
		CashReservePct:    cfg.CashReservePct,
		MaxPositionPct:    cfg.MaxPositionPct,
	}, log)
	c.DecisionRunner = decisions.NewRunner(c.AgentRepo, c.ContextBuilder, c.SourceFactory, c.RiskValidator, log)

	c.Orchestrator = orchestrator.New(
		orchestrator.Config{
			CycleInterval:    cfg.CycleInterval,
			DecisionInterval: cfg.DecisionInterval,
			AgentTimeout:     cfg.AgentTimeout,
			MaxParallel:      cfg.MaxParallel,
		},
		c.InstanceRepo,
		c.IngestionService,
		c.EquityService,
		c.AgentRepo,
		c.DecisionRunner,
		c.LedgerService,
		c.CandleRepo,
		c.PriceCache,
		c.EventBus,
		log,
	)

	if cfg.Backup != nil && cfg.Backup.Enabled {
		s3Client, err := reliability.NewS3Client(cfg.Backup, log)
		if err != nil {
			return err
		}
		c.BackupService = reliability.NewBackupService(s3Client, c.Databases(), cfg.DataDir, log)
	}

	return nil
}
