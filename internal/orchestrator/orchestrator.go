package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/agentrace/agentrace/internal/domain"
	"github.com/agentrace/agentrace/internal/events"
	"github.com/agentrace/agentrace/internal/modules/marketdata"
)

// Ingester pulls fresh market data; a failure here fails the cycle
type Ingester interface {
	IngestAllAssets(ctx context.Context) (*marketdata.IngestResult, error)
}

// SnapshotCapturer records equity snapshots for every active agent
type SnapshotCapturer interface {
	CaptureAllSnapshots(batchID string, timestamp time.Time) (int, error)
}

// AgentLister is the subset of the agent repository the orchestrator needs
type AgentLister interface {
	GetAllActive() ([]domain.Agent, error)
}

// DecisionRunner produces one validated decision per agent
type DecisionRunner interface {
	RunAgentOnce(ctx context.Context, agentID string, cycleTime time.Time) domain.DecisionResult
}

// TradeExecutor applies an agent's order batch atomically
type TradeExecutor interface {
	ApplyDecision(agentID string, orders []domain.TradeOrder) (*domain.PortfolioState, []string, error)
}

// PriceSource provides latest close prices per asset
type PriceSource interface {
	GetLatestPrices() (map[string]float64, error)
}

// Config holds orchestrator timing and concurrency settings
type Config struct {
	CycleInterval    time.Duration // timer cadence, also the instance key granularity
	DecisionInterval time.Duration // only cycles on this boundary run agents
	AgentTimeout     time.Duration // per-agent decision deadline
	MaxParallel      int           // bounded fan-out width
}

// CycleSummary is persisted on the instance row when a cycle completes
type CycleSummary struct {
	CandlesIngested  int  `json:"candles_ingested"`
	PreSnapshots     int  `json:"pre_snapshots"`
	PostSnapshots    int  `json:"post_snapshots"`
	DecisionGate     bool `json:"decision_gate"`
	AgentsRun        int  `json:"agents_run"`
	AgentsFailed     int  `json:"agents_failed"`
	TradesApplied    int  `json:"trades_applied"`
	ExecutionsFailed int  `json:"executions_failed"`
}

// Orchestrator drives the recurring market cycle: ingest, snapshot,
// agent decisions on the gate boundary, trade execution, snapshot again.
// Instance ids derived from the truncated cycle time make re-entry for
// the same cycle a no-op.
type Orchestrator struct {
	cfg        Config
	instances  *InstanceRepository
	ingester   Ingester
	snapshots  SnapshotCapturer
	agents     AgentLister
	runner     DecisionRunner
	executor   TradeExecutor
	prices     PriceSource
	priceCache *marketdata.PriceCache
	bus        *events.Bus
	log        zerolog.Logger
}

// New creates a new orchestrator
func New(
	cfg Config,
	instances *InstanceRepository,
	ingester Ingester,
	snapshots SnapshotCapturer,
	agents AgentLister,
	runner DecisionRunner,
	executor TradeExecutor,
	prices PriceSource,
	priceCache *marketdata.PriceCache,
	bus *events.Bus,
	log zerolog.Logger,
) *Orchestrator {
	if cfg.MaxParallel < 1 {
		cfg.MaxParallel = 1
	}
	return &Orchestrator{
		cfg:        cfg,
		instances:  instances,
		ingester:   ingester,
		snapshots:  snapshots,
		agents:     agents,
		runner:     runner,
		executor:   executor,
		prices:     prices,
		priceCache: priceCache,
		bus:        bus,
		log:        log.With().Str("component", "orchestrator").Logger(),
	}
}

// InstanceKey derives the idempotent instance id for a cycle timestamp
func (o *Orchestrator) InstanceKey(ts time.Time) string {
	truncated := ts.UTC().Truncate(o.cfg.CycleInterval)
	return "market-cycle-" + truncated.Format("20060102-1504")
}

// manualInstanceKey derives a unique id for a manual trigger
func manualInstanceKey(ts time.Time) string {
	return "market-cycle-manual-" + ts.UTC().Format("20060102-150405")
}

// BatchID derives the deterministic snapshot batch id for an instance.
// The same instance key always yields the same batch id, so a replayed
// cycle tags its snapshots identically.
func BatchID(instanceKey string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(instanceKey)).String()
}

// RunScheduled runs the cycle for the current timer tick synchronously.
// A second start for the same cycle window is a no-op.
func (o *Orchestrator) RunScheduled(ctx context.Context, now time.Time) error {
	cycleTime := now.UTC().Truncate(o.cfg.CycleInterval)
	instanceID := o.InstanceKey(now)

	if err := o.instances.CreateIfAbsent(instanceID); err != nil {
		if errors.Is(err, domain.ErrInstanceExists) {
			o.log.Info().Str("instance_id", instanceID).Msg("Cycle already started, skipping")
			return nil
		}
		return err
	}

	return o.runCycle(ctx, instanceID, cycleTime)
}

// Trigger starts a manual cycle and returns its instance id immediately.
// The cycle runs in the background under its own deadline, detached from
// the caller; an HTTP request finishing must not cancel an in-flight cycle.
func (o *Orchestrator) Trigger() (string, error) {
	now := time.Now().UTC()
	instanceID := manualInstanceKey(now)

	if err := o.instances.CreateIfAbsent(instanceID); err != nil {
		return "", err
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), o.cycleTimeout())
		defer cancel()

		cycleTime := now.Truncate(o.cfg.CycleInterval)
		if err := o.runCycle(ctx, instanceID, cycleTime); err != nil {
			o.log.Error().Err(err).Str("instance_id", instanceID).Msg("Manual cycle failed")
		}
	}()

	return instanceID, nil
}

// cycleTimeout bounds one full background cycle including agent fan-out
func (o *Orchestrator) cycleTimeout() time.Duration {
	if o.cfg.CycleInterval > 0 {
		return o.cfg.CycleInterval
	}
	return 4 * time.Minute
}

// runCycle executes the cycle state machine for a claimed instance
func (o *Orchestrator) runCycle(ctx context.Context, instanceID string, cycleTime time.Time) error {
	started := time.Now()
	batchID := BatchID(instanceID)
	gate := o.decisionGate(cycleTime)
	summary := CycleSummary{DecisionGate: gate}

	if err := o.instances.MarkRunning(instanceID); err != nil {
		return err
	}

	o.log.Info().
		Str("instance_id", instanceID).
		Str("batch_id", batchID).
		Bool("decision_gate", gate).
		Msg("Cycle started")

	o.bus.Emit("orchestrator", &events.CycleStartedData{
		InstanceID:   instanceID,
		DecisionGate: gate,
	})

	fail := func(err error) error {
		o.log.Error().Err(err).Str("instance_id", instanceID).Msg("Cycle failed")
		if markErr := o.instances.MarkFailed(instanceID, time.Since(started), err.Error()); markErr != nil {
			o.log.Error().Err(markErr).Str("instance_id", instanceID).Msg("Failed to mark instance failed")
		}
		o.bus.Emit("orchestrator", &events.CycleFailedData{InstanceID: instanceID, Error: err.Error()})
		return err
	}

	// Step 1: market data ingestion. A failure here is cycle-fatal; the
	// next timer tick retries with a fresh instance.
	ingest, err := o.ingester.IngestAllAssets(ctx)
	if err != nil {
		return fail(fmt.Errorf("ingestion failed: %w", err))
	}
	summary.CandlesIngested = ingest.CandlesInserted

	o.cachePrices(batchID)

	if err := ctx.Err(); err != nil {
		return fail(fmt.Errorf("cycle cancelled: %w", err))
	}

	// Step 2: pre-trade snapshots, strictly before any agent runs
	pre, err := o.snapshots.CaptureAllSnapshots(batchID, cycleTime)
	if err != nil {
		return fail(fmt.Errorf("pre-trade snapshots failed: %w", err))
	}
	summary.PreSnapshots = pre
	o.bus.Emit("orchestrator", &events.SnapshotsCapturedData{BatchID: batchID, Captured: pre, Phase: "pre_trade"})

	if err := ctx.Err(); err != nil {
		return fail(fmt.Errorf("cycle cancelled: %w", err))
	}

	// Step 3: agent decisions and execution, only on the gate boundary
	if gate {
		results, err := o.runAgents(ctx, cycleTime)
		if err != nil {
			return fail(err)
		}

		summary.AgentsRun = len(results)
		for _, r := range results {
			if !r.Succeeded() {
				summary.AgentsFailed++
			}
		}

		if err := ctx.Err(); err != nil {
			return fail(fmt.Errorf("cycle cancelled: %w", err))
		}

		applied, execFailed := o.executeDecisions(instanceID, results)
		summary.TradesApplied = applied
		summary.ExecutionsFailed = execFailed

		// Step 4: post-trade snapshots with the same batch id
		post, err := o.snapshots.CaptureAllSnapshots(batchID, time.Now().UTC())
		if err != nil {
			return fail(fmt.Errorf("post-trade snapshots failed: %w", err))
		}
		summary.PostSnapshots = post
		o.bus.Emit("orchestrator", &events.SnapshotsCapturedData{BatchID: batchID, Captured: post, Phase: "post_trade"})
	}

	duration := time.Since(started)
	resultJSON, _ := json.Marshal(summary)
	if err := o.instances.MarkCompleted(instanceID, duration, string(resultJSON)); err != nil {
		return err
	}

	o.log.Info().
		Str("instance_id", instanceID).
		Dur("duration", duration).
		Int("agents_run", summary.AgentsRun).
		Int("trades_applied", summary.TradesApplied).
		Msg("Cycle completed")

	o.bus.Emit("orchestrator", &events.CycleCompletedData{
		InstanceID:    instanceID,
		DurationMs:    duration.Milliseconds(),
		AgentsRun:     summary.AgentsRun,
		AgentsFailed:  summary.AgentsFailed,
		TradesApplied: summary.TradesApplied,
	})

	return nil
}

// decisionGate reports whether this cycle falls on the decision boundary
func (o *Orchestrator) decisionGate(cycleTime time.Time) bool {
	interval := int64(o.cfg.DecisionInterval.Seconds())
	if interval <= 0 {
		return true
	}
	return cycleTime.Unix()%interval == 0
}

// runAgents fans out decision runs across active agents with bounded
// parallelism and a per-agent timeout, then fans in every result.
func (o *Orchestrator) runAgents(ctx context.Context, cycleTime time.Time) ([]domain.DecisionResult, error) {
	agents, err := o.agents.GetAllActive()
	if err != nil {
		return nil, fmt.Errorf("failed to list active agents: %w", err)
	}
	if len(agents) == 0 {
		return nil, nil
	}

	results := make([]domain.DecisionResult, len(agents))
	sem := make(chan struct{}, o.cfg.MaxParallel)
	var wg sync.WaitGroup

	for i, agent := range agents {
		wg.Add(1)
		go func(idx int, agentID string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			agentCtx := ctx
			if o.cfg.AgentTimeout > 0 {
				var cancel context.CancelFunc
				agentCtx, cancel = context.WithTimeout(ctx, o.cfg.AgentTimeout)
				defer cancel()
			}

			results[idx] = o.runner.RunAgentOnce(agentCtx, agentID, cycleTime)
		}(i, agent.ID)
	}

	wg.Wait()
	return results, nil
}

// executeDecisions applies each successful decision through the ledger.
// One agent's rejected batch never blocks another's.
func (o *Orchestrator) executeDecisions(instanceID string, results []domain.DecisionResult) (applied, failed int) {
	for _, result := range results {
		if !result.Succeeded() || len(result.Decision.Orders) == 0 {
			continue
		}

		state, tradeIDs, err := o.executor.ApplyDecision(result.AgentID, result.Decision.Orders)
		if err != nil {
			failed++
			o.log.Warn().
				Err(err).
				Str("agent_id", result.AgentID).
				Str("instance_id", instanceID).
				Msg("Trade execution rejected")
			continue
		}

		applied += len(tradeIDs)
		o.bus.Emit("orchestrator", &events.TradesExecutedData{
			InstanceID: instanceID,
			AgentID:    result.AgentID,
			TradeIDs:   tradeIDs,
			TotalValue: state.TotalValue,
		})
	}
	return applied, failed
}

// cachePrices stores the current price map under the batch id for the
// websocket stream and leaderboard reads. Best effort.
func (o *Orchestrator) cachePrices(batchID string) {
	if o.priceCache == nil {
		return
	}

	prices, err := o.prices.GetLatestPrices()
	if err != nil {
		o.log.Warn().Err(err).Msg("Failed to load prices for cache")
		return
	}

	if err := o.priceCache.Store(batchID, prices); err != nil {
		o.log.Warn().Err(err).Str("batch_id", batchID).Msg("Failed to cache prices")
	}
}
