package equity

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/agentrace/agentrace/internal/domain"
	"github.com/agentrace/agentrace/internal/modules/ledger"
)

// snapshotsPerYear assumes the 5-minute capture cadence
const snapshotsPerYear = 365 * 24 * 12

// AgentLister is the subset of the agent repository the engine needs
type AgentLister interface {
	GetAllActive() ([]domain.Agent, error)
}

// PriceSource provides latest close prices per asset
type PriceSource interface {
	GetLatestPrices() (map[string]float64, error)
}

// SnapshotResult is the DTO returned after capturing a snapshot
type SnapshotResult struct {
	Snapshot      domain.EquitySnapshot `json:"snapshot"`
	PercentChange float64               `json:"percent_change"` // vs first-ever snapshot
}

// Service values portfolios and records equity snapshots. Valuation never
// fails: assets without a current price fall back to the position's
// average entry price.
type Service struct {
	agents       AgentLister
	portfolios   *ledger.PortfolioRepository
	positions    *ledger.PositionRepository
	trades       *ledger.TradeRepository
	snapshots    *SnapshotRepository
	prices       PriceSource
	startingCash float64
	log          zerolog.Logger
}

// NewService creates a new equity service
func NewService(
	agents AgentLister,
	portfolios *ledger.PortfolioRepository,
	positions *ledger.PositionRepository,
	trades *ledger.TradeRepository,
	snapshots *SnapshotRepository,
	prices PriceSource,
	startingCash float64,
	log zerolog.Logger,
) *Service {
	return &Service{
		agents:       agents,
		portfolios:   portfolios,
		positions:    positions,
		trades:       trades,
		snapshots:    snapshots,
		prices:       prices,
		startingCash: startingCash,
		log:          log.With().Str("service", "equity").Logger(),
	}
}

// CaptureSnapshot values one agent's portfolio and persists a snapshot
func (s *Service) CaptureSnapshot(agentID string) (*SnapshotResult, error) {
	prices, err := s.prices.GetLatestPrices()
	if err != nil {
		return nil, fmt.Errorf("failed to load latest prices: %w", err)
	}
	return s.captureOne(agentID, prices, time.Now().UTC(), "")
}

// CaptureAllSnapshots values every active agent with one shared price map,
// one shared timestamp, and one shared batch id. Per-agent failures are
// logged and skipped. Returns the number of snapshots captured.
func (s *Service) CaptureAllSnapshots(batchID string, timestamp time.Time) (int, error) {
	agents, err := s.agents.GetAllActive()
	if err != nil {
		return 0, fmt.Errorf("failed to list active agents: %w", err)
	}
	if len(agents) == 0 {
		return 0, nil
	}

	prices, err := s.prices.GetLatestPrices()
	if err != nil {
		return 0, fmt.Errorf("failed to load latest prices: %w", err)
	}

	captured := 0
	for _, agent := range agents {
		if _, err := s.captureOne(agent.ID, prices, timestamp, batchID); err != nil {
			s.log.Warn().
				Err(err).
				Str("agent_id", agent.ID).
				Str("batch_id", batchID).
				Msg("Snapshot capture failed")
			continue
		}
		captured++
	}

	s.log.Info().
		Str("batch_id", batchID).
		Int("captured", captured).
		Int("agents", len(agents)).
		Msg("Snapshot batch complete")

	return captured, nil
}

// captureOne values and snapshots a single agent's portfolio
func (s *Service) captureOne(agentID string, prices map[string]float64, timestamp time.Time, batchID string) (*SnapshotResult, error) {
	portfolio, err := s.getOrCreatePortfolio(agentID)
	if err != nil {
		return nil, err
	}

	positions, err := s.positions.GetByPortfolio(portfolio.ID)
	if err != nil {
		return nil, err
	}

	positionsValue := 0.0
	unrealized := 0.0
	for _, p := range positions {
		price, ok := prices[p.MarketAssetID]
		if !ok || price <= 0 {
			// No market price yet, value at cost
			price = p.AvgEntryPrice
		}
		positionsValue += p.Quantity * price
		unrealized += (price - p.AvgEntryPrice) * p.Quantity
	}

	snapshot := domain.EquitySnapshot{
		PortfolioID:    portfolio.ID,
		CapturedAt:     timestamp.Unix(),
		TotalValue:     portfolio.Cash + positionsValue,
		CashValue:      portfolio.Cash,
		PositionsValue: positionsValue,
		UnrealizedPnL:  unrealized,
		BatchID:        batchID,
	}

	id, err := s.snapshots.Insert(snapshot)
	if err != nil {
		return nil, err
	}
	snapshot.ID = id

	first, err := s.snapshots.GetFirst(portfolio.ID)
	if err != nil {
		return nil, err
	}

	percentChange := 0.0
	if first != nil && first.TotalValue > 0 {
		percentChange = (snapshot.TotalValue - first.TotalValue) / first.TotalValue * 100
	}

	return &SnapshotResult{Snapshot: snapshot, PercentChange: percentChange}, nil
}

// GetEquityCurve returns ordered snapshots with percent change relative to
// the first snapshot in the returned range. Zero bounds are open-ended.
func (s *Service) GetEquityCurve(agentID string, from, to int64) ([]domain.EquityPoint, error) {
	portfolio, err := s.portfolios.GetByAgentID(agentID)
	if err != nil {
		return nil, err
	}
	if portfolio == nil {
		return []domain.EquityPoint{}, nil
	}

	snapshots, err := s.snapshots.GetRange(portfolio.ID, from, to)
	if err != nil {
		return nil, err
	}

	points := make([]domain.EquityPoint, 0, len(snapshots))
	var base float64
	for i, snap := range snapshots {
		if i == 0 {
			base = snap.TotalValue
		}

		percentChange := 0.0
		if base > 0 {
			percentChange = (snap.TotalValue - base) / base * 100
		}

		points = append(points, domain.EquityPoint{
			CapturedAt:     snap.CapturedAt,
			TotalValue:     snap.TotalValue,
			PercentChange:  percentChange,
			CashValue:      snap.CashValue,
			PositionsValue: snap.PositionsValue,
		})
	}

	return points, nil
}

// CalculatePerformance computes the agent's track record from its snapshot
// history and trade log.
func (s *Service) CalculatePerformance(agentID string) (*domain.PerformanceMetrics, error) {
	portfolio, err := s.portfolios.GetByAgentID(agentID)
	if err != nil {
		return nil, err
	}
	if portfolio == nil {
		return &domain.PerformanceMetrics{AgentID: agentID, TotalValue: s.startingCash}, nil
	}

	snapshots, err := s.snapshots.GetRange(portfolio.ID, 0, 0)
	if err != nil {
		return nil, err
	}

	trades, err := s.trades.GetByPortfolio(portfolio.ID)
	if err != nil {
		return nil, err
	}

	metrics := &domain.PerformanceMetrics{
		AgentID:       agentID,
		TradeCount:    len(trades),
		SnapshotCount: len(snapshots),
		WinRatePct:    replayWinRate(trades),
	}

	if len(snapshots) == 0 {
		metrics.TotalValue = portfolio.Cash
		return metrics, nil
	}

	first := snapshots[0]
	latest := snapshots[len(snapshots)-1]
	metrics.TotalValue = latest.TotalValue

	if first.TotalValue > 0 {
		metrics.TotalReturnPct = (latest.TotalValue - first.TotalValue) / first.TotalValue * 100
	}

	metrics.MaxDrawdownPct = maxDrawdown(snapshots)
	metrics.SharpeRatio = sharpeRatio(snapshots)

	return metrics, nil
}

// LeaderboardEntry is one row of the race standings
type LeaderboardEntry struct {
	AgentID        string  `json:"agent_id"`
	AgentName      string  `json:"agent_name"`
	TotalValue     float64 `json:"total_value"`
	TotalReturnPct float64 `json:"total_return_pct"`
	CapturedAt     int64   `json:"captured_at"`
}

// Leaderboard returns every active agent's latest snapshot, sorted by
// total value descending. Agents with no snapshots yet rank at their
// starting cash.
func (s *Service) Leaderboard() ([]LeaderboardEntry, error) {
	agents, err := s.agents.GetAllActive()
	if err != nil {
		return nil, fmt.Errorf("failed to list active agents: %w", err)
	}

	entries := make([]LeaderboardEntry, 0, len(agents))
	for _, agent := range agents {
		entry := LeaderboardEntry{
			AgentID:    agent.ID,
			AgentName:  agent.Name,
			TotalValue: s.startingCash,
		}

		portfolio, err := s.portfolios.GetByAgentID(agent.ID)
		if err != nil {
			return nil, err
		}
		if portfolio != nil {
			latest, err := s.snapshots.GetLatest(portfolio.ID)
			if err != nil {
				return nil, err
			}
			first, err := s.snapshots.GetFirst(portfolio.ID)
			if err != nil {
				return nil, err
			}
			if latest != nil {
				entry.TotalValue = latest.TotalValue
				entry.CapturedAt = latest.CapturedAt
				if first != nil && first.TotalValue > 0 {
					entry.TotalReturnPct = (latest.TotalValue - first.TotalValue) / first.TotalValue * 100
				}
			} else {
				entry.TotalValue = portfolio.Cash
			}
		}

		entries = append(entries, entry)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].TotalValue > entries[j].TotalValue
	})

	return entries, nil
}

// getOrCreatePortfolio mirrors the ledger's lazy portfolio creation so the
// pre-trade snapshot of a brand new agent records its starting cash.
func (s *Service) getOrCreatePortfolio(agentID string) (*domain.Portfolio, error) {
	portfolio, err := s.portfolios.GetByAgentID(agentID)
	if err != nil {
		return nil, err
	}
	if portfolio != nil {
		return portfolio, nil
	}
	return s.portfolios.Create(agentID, s.startingCash)
}

// maxDrawdown walks the snapshot series tracking the running peak and
// returns the largest peak-to-trough decline as a positive percentage.
func maxDrawdown(snapshots []domain.EquitySnapshot) float64 {
	var peak, maxDD float64
	for _, snap := range snapshots {
		if snap.TotalValue > peak {
			peak = snap.TotalValue
		}
		if peak > 0 {
			dd := (peak - snap.TotalValue) / peak
			if dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD * 100
}

// replayWinRate replays the trade log with a synthetic weighted-average
// entry per asset and classifies each sell as a win when the sell price
// exceeds that average. Returns the win percentage over sells.
func replayWinRate(trades []domain.Trade) float64 {
	type holding struct {
		qty float64
		avg float64
	}
	holdings := make(map[string]holding)

	var sells, wins int
	for _, t := range trades {
		h := holdings[t.MarketAssetID]
		switch t.Side {
		case domain.OrderSideBuy:
			newQty := h.qty + t.Quantity
			h.avg = (h.qty*h.avg + t.Quantity*t.Price) / newQty
			h.qty = newQty
			holdings[t.MarketAssetID] = h
		case domain.OrderSideSell:
			sells++
			if t.Price > h.avg {
				wins++
			}
			h.qty -= t.Quantity
			if h.qty <= 0 {
				delete(holdings, t.MarketAssetID)
			} else {
				holdings[t.MarketAssetID] = h
			}
		}
	}

	if sells == 0 {
		return 0
	}
	return float64(wins) / float64(sells) * 100
}

// sharpeRatio annualizes the mean/stddev of successive snapshot returns
func sharpeRatio(snapshots []domain.EquitySnapshot) float64 {
	if len(snapshots) < 3 {
		return 0
	}

	returns := make([]float64, 0, len(snapshots)-1)
	for i := 1; i < len(snapshots); i++ {
		prev := snapshots[i-1].TotalValue
		if prev <= 0 {
			continue
		}
		returns = append(returns, (snapshots[i].TotalValue-prev)/prev)
	}
	if len(returns) < 2 {
		return 0
	}

	mean, std := stat.MeanStdDev(returns, nil)
	if std == 0 {
		return 0
	}

	return mean / std * math.Sqrt(snapshotsPerYear)
}
