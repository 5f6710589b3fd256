package decisions

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentrace/agentrace/internal/domain"
)

func TestForAgentSelectsSource(t *testing.T) {
	f := NewSourceFactory(zerolog.Nop())

	source, err := f.ForAgent(domain.Agent{Name: "a", ModelProvider: "hold"})
	require.NoError(t, err)
	assert.Equal(t, "hold", source.Name())

	source, err = f.ForAgent(domain.Agent{Name: "a", ModelProvider: ""})
	require.NoError(t, err)
	assert.Equal(t, "hold", source.Name())

	source, err = f.ForAgent(domain.Agent{Name: "a", ModelProvider: "mock"})
	require.NoError(t, err)
	assert.Equal(t, "mock", source.Name())

	source, err = f.ForAgent(domain.Agent{Name: "a", ModelProvider: "Model", DeploymentKey: "http://localhost:9999"})
	require.NoError(t, err)
	assert.Equal(t, "model", source.Name())

	_, err = f.ForAgent(domain.Agent{Name: "a", ModelProvider: "model"})
	assert.Error(t, err, "model provider requires a deployment key")

	_, err = f.ForAgent(domain.Agent{Name: "a", ModelProvider: "quantum"})
	assert.Error(t, err)
}

func TestHoldSourceReturnsNoOrders(t *testing.T) {
	decision, err := NewHoldSource().GenerateDecision(context.Background(), domain.AgentContext{})
	require.NoError(t, err)
	assert.Empty(t, decision.Orders)
}

func TestMockSourceOversizesFirstAsset(t *testing.T) {
	agentCtx := domain.AgentContext{
		Portfolio: domain.PortfolioState{TotalValue: 100000},
		MarketData: []domain.AssetMarketData{{
			Symbol:  "BTC",
			Candles: []domain.Candle{{Close: 40000}, {Close: 50000}},
		}},
	}

	decision, err := NewMockSource().GenerateDecision(context.Background(), agentCtx)
	require.NoError(t, err)
	require.Len(t, decision.Orders, 1)

	order := decision.Orders[0]
	assert.Equal(t, "BTC", order.AssetSymbol)
	assert.Equal(t, domain.OrderSideBuy, order.Side)
	// Sized at twice the equity against the latest close
	assert.InDelta(t, 4, order.Quantity, 1e-9)
}

func TestMockSourceWithoutDataHolds(t *testing.T) {
	decision, err := NewMockSource().GenerateDecision(context.Background(), domain.AgentContext{})
	require.NoError(t, err)
	assert.Empty(t, decision.Orders)
}

func TestModelSourcePostsPredict(t *testing.T) {
	var gotKey, gotIdempotency string
	var gotReq predictRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/predict", r.URL.Path)
		gotKey = r.Header.Get("X-API-Key")
		gotIdempotency = r.Header.Get("Idempotency-Key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		_ = json.NewEncoder(w).Encode(predictResponse{
			Orders: []domain.TradeOrder{
				{AssetSymbol: "BTC", Side: domain.OrderSideBuy, Quantity: 0.1},
			},
			Rationale: "momentum",
		})
	}))
	defer server.Close()

	source := NewModelSource(server.URL+"|secret-key", zerolog.Nop())
	cycleTime := time.Date(2026, 8, 30, 12, 3, 0, 0, time.UTC)

	decision, err := source.GenerateDecision(context.Background(), domain.AgentContext{
		Agent:     domain.Agent{ID: "agent-1", Strategy: "momentum"},
		CycleTime: cycleTime,
	})
	require.NoError(t, err)

	assert.Equal(t, "secret-key", gotKey)
	assert.Equal(t, "agent-1-20260830-1200", gotIdempotency)
	assert.Equal(t, "agent-1", gotReq.AgentID)
	require.Len(t, decision.Orders, 1)
	assert.Equal(t, "momentum", decision.Rationale)
}

func TestModelSourceErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	source := NewModelSource(server.URL, zerolog.Nop())
	_, err := source.GenerateDecision(context.Background(), domain.AgentContext{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestIdempotencyKeyBucketsToCycle(t *testing.T) {
	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	a := idempotencyKey("agent-1", base)
	b := idempotencyKey("agent-1", base.Add(4*time.Minute+59*time.Second))
	c := idempotencyKey("agent-1", base.Add(5*time.Minute))
	d := idempotencyKey("agent-2", base)

	assert.Equal(t, a, b, "retries within one cycle share a key")
	assert.NotEqual(t, a, c)
	assert.NotEqual(t, a, d)
}
