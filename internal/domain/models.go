// Package domain defines the core entities and value types shared across modules.
package domain

import "time"

// OrderSide identifies the direction of a trade order
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
	OrderSideHold OrderSide = "hold"
)

// MarketAsset is a tradable asset in the simulation universe
type MarketAsset struct {
	ID            string `json:"id"`
	Symbol        string `json:"symbol"`
	Name          string `json:"name"`
	QuoteCurrency string `json:"quote_currency"`
	ExternalID    string `json:"external_id,omitempty"` // CoinGecko coin id
	IsEnabled     bool   `json:"is_enabled"`
	CreatedAt     int64  `json:"created_at"`
}

// Candle is a single OHLCV bar for an asset
type Candle struct {
	ID            int64   `json:"id"`
	MarketAssetID string  `json:"market_asset_id"`
	TimestampUTC  int64   `json:"timestamp_utc"`
	Open          float64 `json:"open"`
	High          float64 `json:"high"`
	Low           float64 `json:"low"`
	Close         float64 `json:"close"`
	Volume        float64 `json:"volume"`
}

// Agent is a registered AI trading agent
type Agent struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Strategy      string `json:"strategy"`
	Instructions  string `json:"instructions"`
	ModelProvider string `json:"model_provider"` // selects the decision source
	DeploymentKey string `json:"deployment_key"` // endpoint URL or key for model sources
	IsActive      bool   `json:"is_active"`
	CreatedAt     int64  `json:"created_at"`
}

// Portfolio is an agent's cash account
type Portfolio struct {
	ID           string  `json:"id"`
	AgentID      string  `json:"agent_id"`
	Cash         float64 `json:"cash"`
	BaseCurrency string  `json:"base_currency"`
	CreatedAt    int64   `json:"created_at"`
}

// Position is a non-negative holding of one asset within a portfolio.
// Positions are deleted when quantity reaches zero.
type Position struct {
	ID            string  `json:"id"`
	PortfolioID   string  `json:"portfolio_id"`
	MarketAssetID string  `json:"market_asset_id"`
	Quantity      float64 `json:"quantity"`
	AvgEntryPrice float64 `json:"avg_entry_price"`
	UpdatedAt     int64   `json:"updated_at"`
}

// Trade is an immutable execution record
type Trade struct {
	ID            string    `json:"id"`
	PortfolioID   string    `json:"portfolio_id"`
	MarketAssetID string    `json:"market_asset_id"`
	Side          OrderSide `json:"side"`
	Quantity      float64   `json:"quantity"`
	Price         float64   `json:"price"`
	ExecutedAt    int64     `json:"executed_at"`
}

// EquitySnapshot is a point-in-time valuation of a portfolio
type EquitySnapshot struct {
	ID             string  `json:"id"`
	PortfolioID    string  `json:"portfolio_id"`
	CapturedAt     int64   `json:"captured_at"`
	TotalValue     float64 `json:"total_value"`
	CashValue      float64 `json:"cash_value"`
	PositionsValue float64 `json:"positions_value"`
	UnrealizedPnL  float64 `json:"unrealized_pnl"`
	BatchID        string  `json:"batch_id,omitempty"`
}

// TradeOrder is a single instruction inside an agent's decision
type TradeOrder struct {
	AssetSymbol string    `json:"asset_symbol"`
	Side        OrderSide `json:"side"`
	Quantity    float64   `json:"quantity"`
	LimitPrice  *float64  `json:"limit_price,omitempty"` // execution price when positive
	Reasoning   string    `json:"reasoning,omitempty"`
}

// AgentDecision is what a decision source returns for one agent and cycle
type AgentDecision struct {
	Orders    []TradeOrder `json:"orders"`
	Rationale string       `json:"rationale,omitempty"`
}

// RejectedOrder is an order the risk validator refused, with the reason
type RejectedOrder struct {
	Order  TradeOrder `json:"order"`
	Reason string     `json:"reason"`
}

// DecisionResult is the outcome of running one agent through its decision
// source and risk validation. A failed run carries Err and an empty decision.
type DecisionResult struct {
	AgentID   string          `json:"agent_id"`
	AgentName string          `json:"agent_name"`
	Decision  AgentDecision   `json:"decision"`
	Rejected  []RejectedOrder `json:"rejected,omitempty"`
	Err       string          `json:"error,omitempty"`
}

// Succeeded reports whether the decision run completed without error
func (r DecisionResult) Succeeded() bool {
	return r.Err == ""
}

// PositionSnapshot is a position enriched with its current market price
type PositionSnapshot struct {
	Symbol        string  `json:"symbol"`
	MarketAssetID string  `json:"market_asset_id"`
	Quantity      float64 `json:"quantity"`
	AvgEntryPrice float64 `json:"avg_entry_price"`
	CurrentPrice  float64 `json:"current_price"`
	MarketValue   float64 `json:"market_value"`
}

// PortfolioState is the full valued state of an agent's portfolio
type PortfolioState struct {
	PortfolioID string             `json:"portfolio_id"`
	AgentID     string             `json:"agent_id"`
	Cash        float64            `json:"cash"`
	Positions   []PositionSnapshot `json:"positions"`
	TotalValue  float64            `json:"total_value"`
	AsOf        time.Time          `json:"as_of"`
}

// AssetIndicators holds computed technical indicators for one asset
type AssetIndicators struct {
	Symbol  string  `json:"symbol"`
	RSI14   float64 `json:"rsi_14"`
	SMAFast float64 `json:"sma_fast"`
	SMASlow float64 `json:"sma_slow"`
}

// AssetMarketData bundles the recent candles and indicators for one asset
type AssetMarketData struct {
	Symbol     string          `json:"symbol"`
	Candles    []Candle        `json:"candles"`
	Indicators AssetIndicators `json:"indicators"`
}

// AgentContext is everything a decision source sees for one cycle
type AgentContext struct {
	Agent      Agent             `json:"agent"`
	Portfolio  PortfolioState    `json:"portfolio"`
	MarketData []AssetMarketData `json:"market_data"`
	CycleTime  time.Time         `json:"cycle_time"`
}

// PerformanceMetrics summarizes an agent's track record
type PerformanceMetrics struct {
	AgentID        string  `json:"agent_id"`
	TotalValue     float64 `json:"total_value"`
	TotalReturnPct float64 `json:"total_return_pct"` // vs first snapshot
	MaxDrawdownPct float64 `json:"max_drawdown_pct"` // peak-to-trough, positive number
	WinRatePct     float64 `json:"win_rate_pct"`     // replay-based, sells only
	SharpeRatio    float64 `json:"sharpe_ratio"`     // annualized from snapshot returns
	TradeCount     int     `json:"trade_count"`
	SnapshotCount  int     `json:"snapshot_count"`
}

// EquityPoint is one entry of an equity curve response
type EquityPoint struct {
	CapturedAt     int64   `json:"captured_at"`
	TotalValue     float64 `json:"total_value"`
	PercentChange  float64 `json:"percent_change"` // vs first point in the range
	CashValue      float64 `json:"cash_value"`
	PositionsValue float64 `json:"positions_value"`
}

// InstanceStatus is the lifecycle state of an orchestration instance
type InstanceStatus string

const (
	InstancePending   InstanceStatus = "pending"
	InstanceRunning   InstanceStatus = "running"
	InstanceCompleted InstanceStatus = "completed"
	InstanceFailed    InstanceStatus = "failed"
)

// OrchestrationInstance tracks one market cycle run, keyed by its
// truncated cycle timestamp for idempotency.
type OrchestrationInstance struct {
	InstanceID  string         `json:"instance_id"`
	Status      InstanceStatus `json:"status"`
	StartedAt   int64          `json:"started_at"`
	CompletedAt *int64         `json:"completed_at,omitempty"`
	DurationMs  *int64         `json:"duration_ms,omitempty"`
	ResultJSON  string         `json:"result,omitempty"`
}
