package decisions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/agentrace/agentrace/internal/domain"
)

// ModelSource calls an external model endpoint over HTTP/JSON.
// The endpoint is treated as a black box: POST /predict with the agent
// context, decision JSON back.
type ModelSource struct {
	endpoint string
	apiKey   string
	client   *http.Client
	log      zerolog.Logger
}

// NewModelSource creates a model source for one deployment.
// deploymentKey is "url" or "url|api-key".
func NewModelSource(deploymentKey string, log zerolog.Logger) *ModelSource {
	endpoint := deploymentKey
	apiKey := ""
	if idx := strings.Index(deploymentKey, "|"); idx >= 0 {
		endpoint = deploymentKey[:idx]
		apiKey = deploymentKey[idx+1:]
	}

	return &ModelSource{
		endpoint: strings.TrimRight(endpoint, "/"),
		apiKey:   apiKey,
		client:   &http.Client{Timeout: 90 * time.Second},
		log:      log.With().Str("source", "model").Logger(),
	}
}

// Name identifies the source for logging
func (s *ModelSource) Name() string {
	return "model"
}

// predictRequest is the wire format sent to the model endpoint
type predictRequest struct {
	AgentID      string                   `json:"agent_id"`
	Strategy     string                   `json:"strategy"`
	Instructions string                   `json:"instructions"`
	Portfolio    domain.PortfolioState    `json:"portfolio"`
	MarketData   []domain.AssetMarketData `json:"market_data"`
	CycleTime    time.Time                `json:"cycle_time"`
}

// predictResponse is the wire format returned by the model endpoint
type predictResponse struct {
	Orders    []domain.TradeOrder `json:"orders"`
	Rationale string              `json:"rationale"`
}

// GenerateDecision posts the agent context to the model endpoint.
// The idempotency key is derived from the agent and the 5-minute bucket,
// so a retried call within the same cycle dedups server-side.
func (s *ModelSource) GenerateDecision(ctx context.Context, agentCtx domain.AgentContext) (domain.AgentDecision, error) {
	payload := predictRequest{
		AgentID:      agentCtx.Agent.ID,
		Strategy:     agentCtx.Agent.Strategy,
		Instructions: agentCtx.Agent.Instructions,
		Portfolio:    agentCtx.Portfolio,
		MarketData:   agentCtx.MarketData,
		CycleTime:    agentCtx.CycleTime,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return domain.AgentDecision{}, fmt.Errorf("failed to encode predict request: %w", err)
	}

	endpoint, err := url.JoinPath(s.endpoint, "predict")
	if err != nil {
		return domain.AgentDecision{}, fmt.Errorf("invalid model endpoint: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return domain.AgentDecision{}, fmt.Errorf("failed to build predict request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", idempotencyKey(agentCtx.Agent.ID, agentCtx.CycleTime))
	if s.apiKey != "" {
		req.Header.Set("X-API-Key", s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return domain.AgentDecision{}, fmt.Errorf("predict request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.AgentDecision{}, fmt.Errorf("model endpoint returned status %d", resp.StatusCode)
	}

	var result predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return domain.AgentDecision{}, fmt.Errorf("failed to parse predict response: %w", err)
	}

	return domain.AgentDecision{
		Orders:    result.Orders,
		Rationale: result.Rationale,
	}, nil
}

// idempotencyKey buckets the cycle time to 5 minutes so retries within
// one cycle share a key
func idempotencyKey(agentID string, cycleTime time.Time) string {
	bucket := cycleTime.UTC().Truncate(5 * time.Minute)
	return fmt.Sprintf("%s-%s", agentID, bucket.Format("20060102-1504"))
}
