package decisions

import (
	"context"

	"github.com/agentrace/agentrace/internal/domain"
)

// HoldSource always returns an empty decision
type HoldSource struct{}

// NewHoldSource creates a hold source
func NewHoldSource() *HoldSource {
	return &HoldSource{}
}

// Name identifies the source for logging
func (s *HoldSource) Name() string {
	return "hold"
}

// GenerateDecision returns no orders
func (s *HoldSource) GenerateDecision(_ context.Context, _ domain.AgentContext) (domain.AgentDecision, error) {
	return domain.AgentDecision{Rationale: "holding"}, nil
}

// MockSource produces deliberately oversized buy orders for the first
// asset it sees. Useful for exercising risk validation end to end.
type MockSource struct{}

// NewMockSource creates a mock source
func NewMockSource() *MockSource {
	return &MockSource{}
}

// Name identifies the source for logging
func (s *MockSource) Name() string {
	return "mock"
}

// GenerateDecision returns a buy sized at twice the portfolio's total value
func (s *MockSource) GenerateDecision(_ context.Context, agentCtx domain.AgentContext) (domain.AgentDecision, error) {
	if len(agentCtx.MarketData) == 0 {
		return domain.AgentDecision{Rationale: "no market data"}, nil
	}

	md := agentCtx.MarketData[0]
	price := 0.0
	if n := len(md.Candles); n > 0 {
		price = md.Candles[n-1].Close
	}
	if price <= 0 {
		return domain.AgentDecision{Rationale: "no price"}, nil
	}

	quantity := agentCtx.Portfolio.TotalValue * 2 / price

	return domain.AgentDecision{
		Orders: []domain.TradeOrder{{
			AssetSymbol: md.Symbol,
			Side:        domain.OrderSideBuy,
			Quantity:    quantity,
			Reasoning:   "mock oversized order",
		}},
		Rationale: "mock decision",
	}, nil
}
