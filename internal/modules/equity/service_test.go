package equity

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentrace/agentrace/internal/domain"
	"github.com/agentrace/agentrace/internal/modules/ledger"
	apptesting "github.com/agentrace/agentrace/internal/testing"
)

type stubAgents []domain.Agent

func (a stubAgents) GetAllActive() ([]domain.Agent, error) {
	return a, nil
}

type stubPrices map[string]float64

func (p stubPrices) GetLatestPrices() (map[string]float64, error) {
	return map[string]float64(p), nil
}

func newTestService(t *testing.T, agents stubAgents, prices stubPrices) (*Service, func()) {
	t.Helper()

	db, cleanup := apptesting.NewTestDB(t, "ledger")
	log := zerolog.Nop()

	svc := NewService(
		agents,
		ledger.NewPortfolioRepository(db.Conn(), log),
		ledger.NewPositionRepository(db.Conn(), log),
		ledger.NewTradeRepository(db.Conn(), log),
		NewSnapshotRepository(db.Conn(), log),
		prices,
		100000,
		log,
	)

	return svc, cleanup
}

func TestCaptureSnapshotLazilyCreatesPortfolio(t *testing.T) {
	svc, cleanup := newTestService(t, nil, stubPrices{})
	defer cleanup()

	result, err := svc.CaptureSnapshot("agent-1")
	require.NoError(t, err)

	assert.InDelta(t, 100000, result.Snapshot.TotalValue, 1e-9)
	assert.InDelta(t, 100000, result.Snapshot.CashValue, 1e-9)
	assert.Zero(t, result.Snapshot.PositionsValue)
	assert.Zero(t, result.PercentChange, "first snapshot is its own baseline")
}

func TestCaptureAllSnapshotsSharesBatch(t *testing.T) {
	agents := stubAgents{
		{ID: "agent-1", Name: "one", IsActive: true},
		{ID: "agent-2", Name: "two", IsActive: true},
	}
	svc, cleanup := newTestService(t, agents, stubPrices{})
	defer cleanup()

	ts := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	captured, err := svc.CaptureAllSnapshots("batch-a", ts)
	require.NoError(t, err)
	assert.Equal(t, 2, captured)

	for _, agent := range agents {
		curve, err := svc.GetEquityCurve(agent.ID, 0, 0)
		require.NoError(t, err)
		require.Len(t, curve, 1)
		assert.Equal(t, ts.Unix(), curve[0].CapturedAt)
	}
}

func TestGetEquityCurvePercentChange(t *testing.T) {
	svc, cleanup := newTestService(t, nil, stubPrices{})
	defer cleanup()

	result, err := svc.CaptureSnapshot("agent-1")
	require.NoError(t, err)

	_, err = svc.snapshots.Insert(domain.EquitySnapshot{
		PortfolioID: result.Snapshot.PortfolioID,
		CapturedAt:  result.Snapshot.CapturedAt + 300,
		TotalValue:  110000,
		CashValue:   110000,
	})
	require.NoError(t, err)

	curve, err := svc.GetEquityCurve("agent-1", 0, 0)
	require.NoError(t, err)
	require.Len(t, curve, 2)
	assert.Zero(t, curve[0].PercentChange)
	assert.InDelta(t, 10, curve[1].PercentChange, 1e-9)
}

func TestGetEquityCurveUnknownAgentIsEmpty(t *testing.T) {
	svc, cleanup := newTestService(t, nil, stubPrices{})
	defer cleanup()

	curve, err := svc.GetEquityCurve("nobody", 0, 0)
	require.NoError(t, err)
	assert.Empty(t, curve)
}

func TestMaxDrawdown(t *testing.T) {
	snapshots := []domain.EquitySnapshot{
		{TotalValue: 100},
		{TotalValue: 120},
		{TotalValue: 90},
		{TotalValue: 110},
	}
	// Worst decline runs from the 120 peak to the 90 trough
	assert.InDelta(t, 25, maxDrawdown(snapshots), 1e-9)

	assert.Zero(t, maxDrawdown(nil))
	assert.Zero(t, maxDrawdown([]domain.EquitySnapshot{{TotalValue: 100}, {TotalValue: 150}}))
}

func TestReplayWinRate(t *testing.T) {
	trades := []domain.Trade{
		{MarketAssetID: "a", Side: domain.OrderSideBuy, Quantity: 1, Price: 100},
		{MarketAssetID: "a", Side: domain.OrderSideBuy, Quantity: 1, Price: 200},
		// Weighted average entry is 150: one winning sell, one losing sell
		{MarketAssetID: "a", Side: domain.OrderSideSell, Quantity: 1, Price: 180},
		{MarketAssetID: "a", Side: domain.OrderSideSell, Quantity: 1, Price: 120},
	}
	assert.InDelta(t, 50, replayWinRate(trades), 1e-9)

	assert.Zero(t, replayWinRate(nil))
	assert.Zero(t, replayWinRate([]domain.Trade{
		{MarketAssetID: "a", Side: domain.OrderSideBuy, Quantity: 1, Price: 100},
	}))
}

func TestSharpeRatio(t *testing.T) {
	assert.Zero(t, sharpeRatio(nil))
	assert.Zero(t, sharpeRatio([]domain.EquitySnapshot{{TotalValue: 100}, {TotalValue: 110}}))

	// Constant returns have zero deviation
	flat := []domain.EquitySnapshot{{TotalValue: 100}, {TotalValue: 100}, {TotalValue: 100}}
	assert.Zero(t, sharpeRatio(flat))

	rising := []domain.EquitySnapshot{{TotalValue: 100}, {TotalValue: 110}, {TotalValue: 115}, {TotalValue: 130}}
	assert.Greater(t, sharpeRatio(rising), 0.0)
}

func TestCalculatePerformanceUnknownAgent(t *testing.T) {
	svc, cleanup := newTestService(t, nil, stubPrices{})
	defer cleanup()

	metrics, err := svc.CalculatePerformance("nobody")
	require.NoError(t, err)
	assert.Equal(t, "nobody", metrics.AgentID)
	assert.InDelta(t, 100000, metrics.TotalValue, 1e-9)
	assert.Zero(t, metrics.SnapshotCount)
}

func TestLeaderboardOrdering(t *testing.T) {
	agents := stubAgents{
		{ID: "agent-1", Name: "one", IsActive: true},
		{ID: "agent-2", Name: "two", IsActive: true},
		{ID: "agent-3", Name: "three", IsActive: true},
	}
	svc, cleanup := newTestService(t, agents, stubPrices{})
	defer cleanup()

	// agent-1 and agent-2 get snapshots, agent-3 has never been valued
	ts := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	_, err := svc.CaptureAllSnapshots("b1", ts)
	require.NoError(t, err)

	// Push agent-2 ahead by crediting its portfolio directly
	portfolio, err := svc.portfolios.GetByAgentID("agent-2")
	require.NoError(t, err)
	_, err = svc.snapshots.Insert(domain.EquitySnapshot{
		PortfolioID: portfolio.ID,
		CapturedAt:  ts.Add(5 * time.Minute).Unix(),
		TotalValue:  120000,
		CashValue:   120000,
	})
	require.NoError(t, err)

	entries, err := svc.Leaderboard()
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, "agent-2", entries[0].AgentID)
	assert.InDelta(t, 120000, entries[0].TotalValue, 1e-9)
	assert.InDelta(t, 20, entries[0].TotalReturnPct, 1e-9)
	assert.Equal(t, "three", entries[2].AgentName)
	assert.InDelta(t, 100000, entries[2].TotalValue, 1e-9)
}
