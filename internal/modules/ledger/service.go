package ledger

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/agentrace/agentrace/internal/database"
	"github.com/agentrace/agentrace/internal/domain"
)

// quantity below this is treated as a fully closed position
const closeEpsilon = 1e-9

// AssetResolver resolves order symbols and asset ids to market assets
type AssetResolver interface {
	GetBySymbol(symbol string) (*domain.MarketAsset, error)
	GetByID(id string) (*domain.MarketAsset, error)
}

// PriceSource provides latest close prices per asset
type PriceSource interface {
	GetLatestPrices() (map[string]float64, error)
}

// SnapshotWriter persists an equity snapshot inside the trade transaction
type SnapshotWriter interface {
	InsertTx(tx *sql.Tx, snapshot domain.EquitySnapshot) (string, error)
}

// Service applies trade decisions to portfolios. Every batch is atomic:
// one failing order rolls back the whole batch for that agent.
type Service struct {
	ledgerDB      *sql.DB
	portfolioRepo *PortfolioRepository
	positionRepo  *PositionRepository
	tradeRepo     *TradeRepository
	assets        AssetResolver
	prices        PriceSource
	snapshots     SnapshotWriter
	startingCash  float64
	log           zerolog.Logger

	// Per-agent locks serialize concurrent batches for the same agent
	// (manual trigger overlapping the scheduled cycle).
	mu     sync.Mutex
	agentL map[string]*sync.Mutex
}

// NewService creates a new ledger service
func NewService(
	ledgerDB *sql.DB,
	portfolioRepo *PortfolioRepository,
	positionRepo *PositionRepository,
	tradeRepo *TradeRepository,
	assets AssetResolver,
	prices PriceSource,
	snapshots SnapshotWriter,
	startingCash float64,
	log zerolog.Logger,
) *Service {
	return &Service{
		ledgerDB:      ledgerDB,
		portfolioRepo: portfolioRepo,
		positionRepo:  positionRepo,
		tradeRepo:     tradeRepo,
		assets:        assets,
		prices:        prices,
		snapshots:     snapshots,
		startingCash:  startingCash,
		log:           log.With().Str("service", "ledger").Logger(),
		agentL:        make(map[string]*sync.Mutex),
	}
}

// lockAgent returns the held lock for one agent
func (s *Service) lockAgent(agentID string) *sync.Mutex {
	s.mu.Lock()
	l, ok := s.agentL[agentID]
	if !ok {
		l = &sync.Mutex{}
		s.agentL[agentID] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l
}

// GetPortfolio returns the agent's current valued portfolio state,
// lazily creating the portfolio with the default starting cash.
func (s *Service) GetPortfolio(agentID string) (*domain.PortfolioState, error) {
	l := s.lockAgent(agentID)
	defer l.Unlock()

	portfolio, err := s.getOrCreatePortfolio(agentID)
	if err != nil {
		return nil, err
	}

	positions, err := s.positionRepo.GetByPortfolio(portfolio.ID)
	if err != nil {
		return nil, err
	}

	prices, err := s.prices.GetLatestPrices()
	if err != nil {
		return nil, fmt.Errorf("failed to load latest prices: %w", err)
	}

	state := buildState(portfolio, positions, prices, portfolio.Cash, time.Now().UTC())
	s.fillSymbols(&state)
	return &state, nil
}

// fillSymbols resolves asset ids to display symbols on position snapshots
func (s *Service) fillSymbols(state *domain.PortfolioState) {
	for i := range state.Positions {
		asset, err := s.assets.GetByID(state.Positions[i].MarketAssetID)
		if err != nil || asset == nil {
			continue
		}
		state.Positions[i].Symbol = asset.Symbol
	}
}

// ApplyDecision executes an agent's order batch atomically. Hold orders are
// no-ops; any invalid or unaffordable order aborts the entire batch. On
// success the new portfolio state and the created trade ids are returned,
// and a post-trade equity snapshot is recorded in the same transaction.
func (s *Service) ApplyDecision(agentID string, orders []domain.TradeOrder) (*domain.PortfolioState, []string, error) {
	l := s.lockAgent(agentID)
	defer l.Unlock()

	portfolio, err := s.getOrCreatePortfolio(agentID)
	if err != nil {
		return nil, nil, err
	}

	prices, err := s.prices.GetLatestPrices()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load latest prices: %w", err)
	}

	now := time.Now().UTC()
	var tradeIDs []string
	var state domain.PortfolioState

	err = database.WithTransaction(s.ledgerDB, func(tx *sql.Tx) error {
		cash := portfolio.Cash

		for _, order := range orders {
			if order.Side == domain.OrderSideHold {
				continue
			}

			newCash, tradeID, err := s.applyOrder(tx, portfolio.ID, order, cash, prices, now)
			if err != nil {
				return err
			}
			cash = newCash
			tradeIDs = append(tradeIDs, tradeID)
		}

		if err := s.portfolioRepo.UpdateCashTx(tx, portfolio.ID, cash); err != nil {
			return err
		}

		positions, err := s.positionRepo.GetByPortfolioTx(tx, portfolio.ID)
		if err != nil {
			return err
		}

		state = buildState(portfolio, positions, prices, cash, now)

		// Post-trade snapshot in the same transaction as the trades
		_, err = s.snapshots.InsertTx(tx, domain.EquitySnapshot{
			PortfolioID:    portfolio.ID,
			CapturedAt:     now.Unix(),
			TotalValue:     state.TotalValue,
			CashValue:      cash,
			PositionsValue: state.TotalValue - cash,
			UnrealizedPnL:  unrealizedPnL(state.Positions),
		})
		return err
	})
	if err != nil {
		s.log.Warn().
			Err(err).
			Str("agent_id", agentID).
			Int("orders", len(orders)).
			Msg("Decision batch rolled back")
		return nil, nil, err
	}

	s.fillSymbols(&state)

	s.log.Info().
		Str("agent_id", agentID).
		Int("trades", len(tradeIDs)).
		Float64("total_value", state.TotalValue).
		Msg("Decision batch applied")

	return &state, tradeIDs, nil
}

// applyOrder mutates one order against the portfolio inside the transaction.
// Returns the updated cash balance and the created trade id.
func (s *Service) applyOrder(tx *sql.Tx, portfolioID string, order domain.TradeOrder, cash float64, prices map[string]float64, now time.Time) (float64, string, error) {
	if order.Quantity <= 0 {
		return 0, "", fmt.Errorf("%w: quantity %f for %s", domain.ErrInvalidOrder, order.Quantity, order.AssetSymbol)
	}
	if order.Side != domain.OrderSideBuy && order.Side != domain.OrderSideSell {
		return 0, "", fmt.Errorf("%w: side %q for %s", domain.ErrInvalidOrder, order.Side, order.AssetSymbol)
	}

	asset, err := s.assets.GetBySymbol(order.AssetSymbol)
	if err != nil {
		return 0, "", err
	}
	if asset == nil || !asset.IsEnabled {
		return 0, "", fmt.Errorf("%w: %s", domain.ErrUnknownAsset, order.AssetSymbol)
	}

	price, err := resolvePrice(order, asset.ID, prices)
	if err != nil {
		return 0, "", err
	}

	position, err := s.positionRepo.GetTx(tx, portfolioID, asset.ID)
	if err != nil {
		return 0, "", err
	}

	switch order.Side {
	case domain.OrderSideBuy:
		notional := order.Quantity * price
		if notional > cash {
			return 0, "", fmt.Errorf("%w: need %.2f, have %.2f for %s",
				domain.ErrInsufficientCash, notional, cash, order.AssetSymbol)
		}

		oldQty, oldAvg := 0.0, 0.0
		if position != nil {
			oldQty, oldAvg = position.Quantity, position.AvgEntryPrice
		}
		newQty := oldQty + order.Quantity
		newAvg := (oldQty*oldAvg + notional) / newQty

		if err := s.positionRepo.UpsertTx(tx, portfolioID, asset.ID, newQty, newAvg); err != nil {
			return 0, "", err
		}
		cash -= notional

	case domain.OrderSideSell:
		if position == nil || position.Quantity < order.Quantity {
			held := 0.0
			if position != nil {
				held = position.Quantity
			}
			return 0, "", fmt.Errorf("%w: want %f, hold %f of %s",
				domain.ErrInsufficientHoldings, order.Quantity, held, order.AssetSymbol)
		}

		newQty := position.Quantity - order.Quantity
		if newQty <= closeEpsilon {
			if err := s.positionRepo.DeleteTx(tx, portfolioID, asset.ID); err != nil {
				return 0, "", err
			}
		} else {
			// Average entry price is untouched on sells
			if err := s.positionRepo.UpsertTx(tx, portfolioID, asset.ID, newQty, position.AvgEntryPrice); err != nil {
				return 0, "", err
			}
		}
		cash += order.Quantity * price
	}

	tradeID, err := s.tradeRepo.InsertTx(tx, domain.Trade{
		PortfolioID:   portfolioID,
		MarketAssetID: asset.ID,
		Side:          order.Side,
		Quantity:      order.Quantity,
		Price:         price,
		ExecutedAt:    now.Unix(),
	})
	if err != nil {
		return 0, "", err
	}

	return cash, tradeID, nil
}

// getOrCreatePortfolio returns the agent's portfolio, creating it with the
// default starting cash on first use.
func (s *Service) getOrCreatePortfolio(agentID string) (*domain.Portfolio, error) {
	portfolio, err := s.portfolioRepo.GetByAgentID(agentID)
	if err != nil {
		return nil, err
	}
	if portfolio != nil {
		return portfolio, nil
	}
	return s.portfolioRepo.Create(agentID, s.startingCash)
}

// resolvePrice picks the execution price: a positive limit price wins,
// otherwise the latest candle close.
func resolvePrice(order domain.TradeOrder, assetID string, prices map[string]float64) (float64, error) {
	if order.LimitPrice != nil && *order.LimitPrice > 0 {
		return *order.LimitPrice, nil
	}
	if price, ok := prices[assetID]; ok && price > 0 {
		return price, nil
	}
	return 0, fmt.Errorf("%w: %s", domain.ErrNoPriceAvailable, order.AssetSymbol)
}

// buildState values positions with the latest prices, falling back to the
// average entry price for assets with no price, and totals the portfolio.
func buildState(portfolio *domain.Portfolio, positions []domain.Position, prices map[string]float64, cash float64, asOf time.Time) domain.PortfolioState {
	state := domain.PortfolioState{
		PortfolioID: portfolio.ID,
		AgentID:     portfolio.AgentID,
		Cash:        cash,
		TotalValue:  cash,
		AsOf:        asOf,
	}

	for _, p := range positions {
		price, ok := prices[p.MarketAssetID]
		if !ok || price <= 0 {
			price = p.AvgEntryPrice
		}

		snap := domain.PositionSnapshot{
			MarketAssetID: p.MarketAssetID,
			Quantity:      p.Quantity,
			AvgEntryPrice: p.AvgEntryPrice,
			CurrentPrice:  price,
			MarketValue:   p.Quantity * price,
		}
		state.Positions = append(state.Positions, snap)
		state.TotalValue += snap.MarketValue
	}

	return state
}

// unrealizedPnL sums market value minus cost basis across positions
func unrealizedPnL(positions []domain.PositionSnapshot) float64 {
	var pnl float64
	for _, p := range positions {
		pnl += (p.CurrentPrice - p.AvgEntryPrice) * p.Quantity
	}
	return pnl
}
