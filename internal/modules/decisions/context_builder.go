package decisions

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/agentrace/agentrace/internal/domain"
	"github.com/agentrace/agentrace/pkg/formulas"
)

const (
	rsiPeriod     = 14
	smaFastPeriod = 7
	smaSlowPeriod = 21

	// candles handed to the model per asset
	contextCandles = 48
)

// AssetLister is the subset of the universe repository the builder needs
type AssetLister interface {
	GetAllEnabled() ([]domain.MarketAsset, error)
}

// CandleReader provides recent candles per asset
type CandleReader interface {
	GetRecentCandles(assetID string, limit int) ([]domain.Candle, error)
}

// PortfolioReader returns the agent's current valued portfolio state
type PortfolioReader interface {
	GetPortfolio(agentID string) (*domain.PortfolioState, error)
}

// ContextBuilder assembles the AgentContext handed to decision sources:
// portfolio state, recent candles, and an indicator block per asset.
type ContextBuilder struct {
	assets    AssetLister
	candles   CandleReader
	portfolio PortfolioReader
	log       zerolog.Logger
}

// NewContextBuilder creates a new context builder
func NewContextBuilder(assets AssetLister, candles CandleReader, portfolio PortfolioReader, log zerolog.Logger) *ContextBuilder {
	return &ContextBuilder{
		assets:    assets,
		candles:   candles,
		portfolio: portfolio,
		log:       log.With().Str("component", "context_builder").Logger(),
	}
}

// Build assembles the decision context for one agent at one cycle time
func (b *ContextBuilder) Build(agent domain.Agent, cycleTime time.Time) (domain.AgentContext, error) {
	state, err := b.portfolio.GetPortfolio(agent.ID)
	if err != nil {
		return domain.AgentContext{}, fmt.Errorf("failed to load portfolio for %s: %w", agent.ID, err)
	}

	assets, err := b.assets.GetAllEnabled()
	if err != nil {
		return domain.AgentContext{}, fmt.Errorf("failed to list assets: %w", err)
	}

	marketData := make([]domain.AssetMarketData, 0, len(assets))
	for _, asset := range assets {
		candles, err := b.candles.GetRecentCandles(asset.ID, contextCandles)
		if err != nil {
			return domain.AgentContext{}, fmt.Errorf("failed to load candles for %s: %w", asset.Symbol, err)
		}
		if len(candles) == 0 {
			continue
		}

		marketData = append(marketData, domain.AssetMarketData{
			Symbol:     asset.Symbol,
			Candles:    candles,
			Indicators: computeIndicators(asset.Symbol, candles),
		})
	}

	return domain.AgentContext{
		Agent:      agent,
		Portfolio:  *state,
		MarketData: marketData,
		CycleTime:  cycleTime,
	}, nil
}

// computeIndicators derives the indicator block from candle closes.
// Indicators with insufficient history are left at zero.
func computeIndicators(symbol string, candles []domain.Candle) domain.AssetIndicators {
	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}

	ind := domain.AssetIndicators{Symbol: symbol}
	if rsi := formulas.CalculateRSI(closes, rsiPeriod); rsi != nil {
		ind.RSI14 = *rsi
	}
	if fast := formulas.CalculateSMA(closes, smaFastPeriod); fast != nil {
		ind.SMAFast = *fast
	}
	if slow := formulas.CalculateSMA(closes, smaSlowPeriod); slow != nil {
		ind.SMASlow = *slow
	}

	return ind
}
