// Package decisions produces and validates agent trade decisions.
package decisions

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/agentrace/agentrace/internal/domain"
)

// Source produces a trade decision for one agent and cycle.
// Implementations must honor ctx cancellation and deadlines.
type Source interface {
	// Name identifies the source for logging
	Name() string

	// GenerateDecision returns the agent's decision for the given context
	GenerateDecision(ctx context.Context, agentCtx domain.AgentContext) (domain.AgentDecision, error)
}

// SourceFactory selects a decision source by the agent's model provider
type SourceFactory struct {
	log zerolog.Logger
}

// NewSourceFactory creates a new source factory
func NewSourceFactory(log zerolog.Logger) *SourceFactory {
	return &SourceFactory{log: log}
}

// ForAgent returns the decision source matching the agent's model provider.
// "model" expects the agent's deployment key to be the prediction endpoint.
func (f *SourceFactory) ForAgent(agent domain.Agent) (Source, error) {
	switch strings.ToLower(agent.ModelProvider) {
	case "model", "http":
		if agent.DeploymentKey == "" {
			return nil, fmt.Errorf("agent %s has provider %q but no deployment key", agent.Name, agent.ModelProvider)
		}
		return NewModelSource(agent.DeploymentKey, f.log), nil
	case "mock":
		return NewMockSource(), nil
	case "hold", "":
		return NewHoldSource(), nil
	default:
		return nil, fmt.Errorf("unknown model provider %q for agent %s", agent.ModelProvider, agent.Name)
	}
}
