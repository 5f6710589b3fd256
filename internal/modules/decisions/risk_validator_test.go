package decisions

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentrace/agentrace/internal/domain"
)

func defaultLimits() RiskLimits {
	return RiskLimits{
		MaxOrdersPerCycle: 5,
		MaxTradeNotional:  5000,
		CashReservePct:    0.05,
		MaxPositionPct:    0.50,
	}
}

func testState() domain.PortfolioState {
	return domain.PortfolioState{
		Cash:       100000,
		TotalValue: 100000,
	}
}

func TestValidateAcceptsWithinLimits(t *testing.T) {
	v := NewRiskValidator(defaultLimits(), zerolog.Nop())

	limit := 100.0
	accepted, rejected := v.Validate(domain.AgentDecision{Orders: []domain.TradeOrder{
		{AssetSymbol: "ETH", Side: domain.OrderSideBuy, Quantity: 10, LimitPrice: &limit},
	}}, testState())

	assert.Len(t, accepted, 1)
	assert.Empty(t, rejected)
}

func TestValidateRejectsOversizedNotional(t *testing.T) {
	v := NewRiskValidator(defaultLimits(), zerolog.Nop())

	limit := 42000.0
	accepted, rejected := v.Validate(domain.AgentDecision{Orders: []domain.TradeOrder{
		{AssetSymbol: "BTC", Side: domain.OrderSideBuy, Quantity: 1, LimitPrice: &limit},
	}}, testState())

	assert.Empty(t, accepted)
	require.Len(t, rejected, 1)
	assert.Contains(t, rejected[0].Reason, "per-trade limit")
}

func TestValidateCapsOrdersPerCycle(t *testing.T) {
	limits := defaultLimits()
	limits.MaxOrdersPerCycle = 2
	v := NewRiskValidator(limits, zerolog.Nop())

	limit := 10.0
	order := domain.TradeOrder{AssetSymbol: "ETH", Side: domain.OrderSideBuy, Quantity: 1, LimitPrice: &limit}
	accepted, rejected := v.Validate(domain.AgentDecision{
		Orders: []domain.TradeOrder{order, order, order, order},
	}, testState())

	assert.Len(t, accepted, 2)
	require.Len(t, rejected, 2)
	assert.Contains(t, rejected[0].Reason, "orders per cycle")
}

func TestValidateEnforcesCashReserveAcrossBatch(t *testing.T) {
	limits := RiskLimits{CashReservePct: 0.5}
	v := NewRiskValidator(limits, zerolog.Nop())

	// Each buy fits alone, together the second breaches the 50% reserve
	limit := 30000.0
	order := domain.TradeOrder{AssetSymbol: "BTC", Side: domain.OrderSideBuy, Quantity: 1, LimitPrice: &limit}
	accepted, rejected := v.Validate(domain.AgentDecision{
		Orders: []domain.TradeOrder{order, order},
	}, testState())

	assert.Len(t, accepted, 1)
	require.Len(t, rejected, 1)
	assert.Contains(t, rejected[0].Reason, "cash reserve")
}

func TestValidateEnforcesPositionConcentration(t *testing.T) {
	limits := RiskLimits{MaxPositionPct: 0.10}
	v := NewRiskValidator(limits, zerolog.Nop())

	state := testState()
	state.Positions = []domain.PositionSnapshot{
		{Symbol: "ETH", Quantity: 90, CurrentPrice: 100, MarketValue: 9000},
	}

	limit := 100.0
	accepted, rejected := v.Validate(domain.AgentDecision{Orders: []domain.TradeOrder{
		{AssetSymbol: "ETH", Side: domain.OrderSideBuy, Quantity: 20, LimitPrice: &limit},
	}}, state)

	assert.Empty(t, accepted)
	require.Len(t, rejected, 1)
	assert.Contains(t, rejected[0].Reason, "of equity")
}

func TestValidateRejectsSellBeyondSimulatedHoldings(t *testing.T) {
	v := NewRiskValidator(RiskLimits{}, zerolog.Nop())

	state := testState()
	state.Positions = []domain.PositionSnapshot{
		{Symbol: "ETH", Quantity: 1, CurrentPrice: 100, MarketValue: 100},
	}

	accepted, rejected := v.Validate(domain.AgentDecision{Orders: []domain.TradeOrder{
		{AssetSymbol: "ETH", Side: domain.OrderSideSell, Quantity: 1},
		{AssetSymbol: "ETH", Side: domain.OrderSideSell, Quantity: 1},
	}}, state)

	assert.Len(t, accepted, 1)
	require.Len(t, rejected, 1)
	assert.Contains(t, rejected[0].Reason, "simulated holdings")
}

func TestValidatePassesUnpricedOrdersThrough(t *testing.T) {
	v := NewRiskValidator(defaultLimits(), zerolog.Nop())

	// No limit price and no held position: sizing is left to the ledger
	accepted, rejected := v.Validate(domain.AgentDecision{Orders: []domain.TradeOrder{
		{AssetSymbol: "NEW", Side: domain.OrderSideBuy, Quantity: 1},
	}}, testState())

	assert.Len(t, accepted, 1)
	assert.Empty(t, rejected)
}

func TestValidateHoldAndInvalidOrders(t *testing.T) {
	v := NewRiskValidator(defaultLimits(), zerolog.Nop())

	accepted, rejected := v.Validate(domain.AgentDecision{Orders: []domain.TradeOrder{
		{AssetSymbol: "BTC", Side: domain.OrderSideHold},
		{AssetSymbol: "BTC", Side: domain.OrderSideBuy, Quantity: -1},
		{AssetSymbol: "BTC", Side: domain.OrderSide("short"), Quantity: 1},
	}}, testState())

	assert.Len(t, accepted, 1)
	assert.Equal(t, domain.OrderSideHold, accepted[0].Side)
	require.Len(t, rejected, 2)
	assert.Contains(t, rejected[0].Reason, "positive")
	assert.Contains(t, rejected[1].Reason, "unrecognized side")
}
