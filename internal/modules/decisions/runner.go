package decisions

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/agentrace/agentrace/internal/domain"
)

// AgentGetter is the subset of the agent repository the runner needs
type AgentGetter interface {
	GetByID(id string) (*domain.Agent, error)
}

// Runner takes one agent through a full decision pass: build context,
// call the decision source, filter through risk validation. Execution
// of the surviving orders belongs to the caller.
type Runner struct {
	agents    AgentGetter
	builder   *ContextBuilder
	factory   *SourceFactory
	validator *RiskValidator
	log       zerolog.Logger
}

// NewRunner creates a new decision runner
func NewRunner(agents AgentGetter, builder *ContextBuilder, factory *SourceFactory, validator *RiskValidator, log zerolog.Logger) *Runner {
	return &Runner{
		agents:    agents,
		builder:   builder,
		factory:   factory,
		validator: validator,
		log:       log.With().Str("component", "runner").Logger(),
	}
}

// RunAgentOnce produces one validated decision for one agent.
// Failures are recorded on the result, never returned: one agent's
// broken model must not abort the cycle.
func (r *Runner) RunAgentOnce(ctx context.Context, agentID string, cycleTime time.Time) domain.DecisionResult {
	result := domain.DecisionResult{AgentID: agentID}

	agent, err := r.agents.GetByID(agentID)
	if err != nil {
		result.Err = err.Error()
		return result
	}
	result.AgentName = agent.Name

	agentCtx, err := r.builder.Build(*agent, cycleTime)
	if err != nil {
		result.Err = err.Error()
		return result
	}

	source, err := r.factory.ForAgent(*agent)
	if err != nil {
		result.Err = err.Error()
		return result
	}

	decision, err := source.GenerateDecision(ctx, agentCtx)
	if err != nil {
		r.log.Warn().
			Err(err).
			Str("agent", agent.Name).
			Str("source", source.Name()).
			Msg("Decision source failed")
		result.Err = err.Error()
		return result
	}

	accepted, rejectedOrders := r.validator.Validate(decision, agentCtx.Portfolio)
	result.Decision = domain.AgentDecision{
		Orders:    accepted,
		Rationale: decision.Rationale,
	}
	result.Rejected = rejectedOrders

	r.log.Info().
		Str("agent", agent.Name).
		Str("source", source.Name()).
		Int("orders", len(accepted)).
		Int("rejected", len(rejectedOrders)).
		Msg("Decision generated")

	return result
}
