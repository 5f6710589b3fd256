package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentrace/agentrace/internal/domain"
	"github.com/agentrace/agentrace/internal/events"
	"github.com/agentrace/agentrace/internal/modules/marketdata"
	apptesting "github.com/agentrace/agentrace/internal/testing"
)

type fakeIngester struct {
	calls int
	err   error
}

func (f *fakeIngester) IngestAllAssets(ctx context.Context) (*marketdata.IngestResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &marketdata.IngestResult{AssetsProcessed: 1, CandlesInserted: 12}, nil
}

type fakeSnapshots struct {
	mu       sync.Mutex
	batchIDs []string
	captured int
}

func (f *fakeSnapshots) CaptureAllSnapshots(batchID string, timestamp time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batchIDs = append(f.batchIDs, batchID)
	f.captured++
	return 2, nil
}

type fakeAgents []domain.Agent

func (f fakeAgents) GetAllActive() ([]domain.Agent, error) {
	return f, nil
}

type fakeRunner struct {
	mu   sync.Mutex
	runs []string
}

func (f *fakeRunner) RunAgentOnce(ctx context.Context, agentID string, cycleTime time.Time) domain.DecisionResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, agentID)
	return domain.DecisionResult{
		AgentID: agentID,
		Decision: domain.AgentDecision{Orders: []domain.TradeOrder{
			{AssetSymbol: "BTC", Side: domain.OrderSideBuy, Quantity: 0.1},
		}},
	}
}

type fakeExecutor struct {
	mu     sync.Mutex
	agents []string
	err    error
}

func (f *fakeExecutor) ApplyDecision(agentID string, orders []domain.TradeOrder) (*domain.PortfolioState, []string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.agents = append(f.agents, agentID)
	if f.err != nil {
		return nil, nil, f.err
	}
	return &domain.PortfolioState{AgentID: agentID, TotalValue: 100000}, []string{"trade-1"}, nil
}

type fakePrices map[string]float64

func (f fakePrices) GetLatestPrices() (map[string]float64, error) {
	return map[string]float64(f), nil
}

type fixture struct {
	orch      *Orchestrator
	instances *InstanceRepository
	ingester  *fakeIngester
	snapshots *fakeSnapshots
	runner    *fakeRunner
	executor  *fakeExecutor
	cleanup   func()
}

func newFixture(t *testing.T, agents fakeAgents) *fixture {
	t.Helper()

	db, cleanup := apptesting.NewTestDB(t, "cache")
	log := zerolog.Nop()

	f := &fixture{
		instances: NewInstanceRepository(db.Conn(), log),
		ingester:  &fakeIngester{},
		snapshots: &fakeSnapshots{},
		runner:    &fakeRunner{},
		executor:  &fakeExecutor{},
		cleanup:   cleanup,
	}

	f.orch = New(
		Config{
			CycleInterval:    5 * time.Minute,
			DecisionInterval: 15 * time.Minute,
			AgentTimeout:     time.Second,
			MaxParallel:      2,
		},
		f.instances,
		f.ingester,
		f.snapshots,
		agents,
		f.runner,
		f.executor,
		fakePrices{"asset-btc": 42000},
		nil,
		events.NewBus(log),
		log,
	)

	return f
}

func TestInstanceKeyTruncatesToCycle(t *testing.T) {
	f := newFixture(t, nil)
	defer f.cleanup()

	ts := time.Date(2026, 8, 30, 12, 3, 41, 0, time.UTC)
	assert.Equal(t, "market-cycle-20260830-1200", f.orch.InstanceKey(ts))

	exact := time.Date(2026, 8, 30, 12, 5, 0, 0, time.UTC)
	assert.Equal(t, "market-cycle-20260830-1205", f.orch.InstanceKey(exact))
}

func TestBatchIDIsDeterministic(t *testing.T) {
	a := BatchID("market-cycle-20260830-1200")
	b := BatchID("market-cycle-20260830-1200")
	c := BatchID("market-cycle-20260830-1205")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 36)
}

func TestDecisionGate(t *testing.T) {
	f := newFixture(t, nil)
	defer f.cleanup()

	assert.True(t, f.orch.decisionGate(time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)))
	assert.False(t, f.orch.decisionGate(time.Date(2026, 8, 30, 12, 5, 0, 0, time.UTC)))
	assert.False(t, f.orch.decisionGate(time.Date(2026, 8, 30, 12, 10, 0, 0, time.UTC)))
	assert.True(t, f.orch.decisionGate(time.Date(2026, 8, 30, 12, 15, 0, 0, time.UTC)))
}

func TestRunScheduledFullCycleOnGate(t *testing.T) {
	agents := fakeAgents{{ID: "agent-1", IsActive: true}, {ID: "agent-2", IsActive: true}}
	f := newFixture(t, agents)
	defer f.cleanup()

	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	require.NoError(t, f.orch.RunScheduled(context.Background(), now))

	assert.Equal(t, 1, f.ingester.calls)
	assert.ElementsMatch(t, []string{"agent-1", "agent-2"}, f.runner.runs)
	assert.ElementsMatch(t, []string{"agent-1", "agent-2"}, f.executor.agents)

	// Pre and post trade passes share the instance's batch id
	require.Len(t, f.snapshots.batchIDs, 2)
	assert.Equal(t, BatchID("market-cycle-20260830-1200"), f.snapshots.batchIDs[0])
	assert.Equal(t, f.snapshots.batchIDs[0], f.snapshots.batchIDs[1])

	instance, err := f.instances.Get("market-cycle-20260830-1200")
	require.NoError(t, err)
	require.NotNil(t, instance)
	assert.Equal(t, domain.InstanceCompleted, instance.Status)
	assert.Contains(t, instance.ResultJSON, `"decision_gate":true`)
}

func TestRunScheduledSkipsAgentsOffGate(t *testing.T) {
	agents := fakeAgents{{ID: "agent-1", IsActive: true}}
	f := newFixture(t, agents)
	defer f.cleanup()

	now := time.Date(2026, 8, 30, 12, 5, 0, 0, time.UTC)
	require.NoError(t, f.orch.RunScheduled(context.Background(), now))

	assert.Empty(t, f.runner.runs)
	assert.Empty(t, f.executor.agents)
	// Only the pre-trade snapshot pass runs off the gate
	assert.Equal(t, 1, f.snapshots.captured)
}

func TestRunScheduledDuplicateIsNoOp(t *testing.T) {
	f := newFixture(t, nil)
	defer f.cleanup()

	now := time.Date(2026, 8, 30, 12, 5, 0, 0, time.UTC)
	require.NoError(t, f.orch.RunScheduled(context.Background(), now))
	require.NoError(t, f.orch.RunScheduled(context.Background(), now.Add(30*time.Second)))

	assert.Equal(t, 1, f.ingester.calls, "replayed cycle window must not run again")
}

func TestRunScheduledIngestionFailureFailsCycle(t *testing.T) {
	f := newFixture(t, nil)
	defer f.cleanup()
	f.ingester.err = context.DeadlineExceeded

	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	err := f.orch.RunScheduled(context.Background(), now)
	require.Error(t, err)

	instance, err := f.instances.Get("market-cycle-20260830-1200")
	require.NoError(t, err)
	require.NotNil(t, instance)
	assert.Equal(t, domain.InstanceFailed, instance.Status)
	assert.Equal(t, 0, f.snapshots.captured)
}

func TestExecutionFailureIsolatedPerAgent(t *testing.T) {
	agents := fakeAgents{{ID: "agent-1", IsActive: true}, {ID: "agent-2", IsActive: true}}
	f := newFixture(t, agents)
	defer f.cleanup()
	f.executor.err = domain.ErrInsufficientCash

	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	require.NoError(t, f.orch.RunScheduled(context.Background(), now), "rejected batches do not fail the cycle")

	instance, err := f.instances.Get("market-cycle-20260830-1200")
	require.NoError(t, err)
	assert.Equal(t, domain.InstanceCompleted, instance.Status)
	assert.Contains(t, instance.ResultJSON, `"executions_failed":2`)
}

func TestTriggerReturnsImmediately(t *testing.T) {
	f := newFixture(t, nil)
	defer f.cleanup()

	id, err := f.orch.Trigger()
	require.NoError(t, err)
	assert.Contains(t, id, "market-cycle-manual-")

	// The background run completes the instance on its own
	require.Eventually(t, func() bool {
		instance, err := f.instances.Get(id)
		if err != nil || instance == nil {
			return false
		}
		return instance.Status == domain.InstanceCompleted
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 1, f.ingester.calls)
}
