package ledger

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/agentrace/agentrace/internal/domain"
)

// tradeColumns is the list of columns for the trades table
const tradeColumns = `id, portfolio_id, market_asset_id, side, quantity, price, executed_at`

// TradeRepository handles trade database operations.
// Trade rows are append-only.
type TradeRepository struct {
	ledgerDB *sql.DB
	log      zerolog.Logger
}

// NewTradeRepository creates a new trade repository
func NewTradeRepository(ledgerDB *sql.DB, log zerolog.Logger) *TradeRepository {
	return &TradeRepository{
		ledgerDB: ledgerDB,
		log:      log.With().Str("repo", "trades").Logger(),
	}
}

// InsertTx records a trade inside a transaction and returns its id
func (r *TradeRepository) InsertTx(tx *sql.Tx, trade domain.Trade) (string, error) {
	if trade.ID == "" {
		trade.ID = uuid.New().String()
	}

	_, err := tx.Exec(
		"INSERT INTO trades ("+tradeColumns+") VALUES (?, ?, ?, ?, ?, ?, ?)",
		trade.ID, trade.PortfolioID, trade.MarketAssetID,
		string(trade.Side), trade.Quantity, trade.Price, trade.ExecutedAt)
	if err != nil {
		return "", fmt.Errorf("failed to insert trade: %w", err)
	}

	return trade.ID, nil
}

// GetByPortfolio returns all trades for a portfolio in execution order
func (r *TradeRepository) GetByPortfolio(portfolioID string) ([]domain.Trade, error) {
	rows, err := r.ledgerDB.Query(
		"SELECT "+tradeColumns+" FROM trades WHERE portfolio_id = ? ORDER BY executed_at ASC, id ASC",
		portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var trades []domain.Trade
	for rows.Next() {
		var t domain.Trade
		var side string
		if err := rows.Scan(&t.ID, &t.PortfolioID, &t.MarketAssetID, &side, &t.Quantity, &t.Price, &t.ExecutedAt); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		t.Side = domain.OrderSide(side)
		trades = append(trades, t)
	}

	return trades, rows.Err()
}

// CountByPortfolio returns the number of trades recorded for a portfolio
func (r *TradeRepository) CountByPortfolio(portfolioID string) (int, error) {
	var count int
	err := r.ledgerDB.QueryRow(
		"SELECT COUNT(*) FROM trades WHERE portfolio_id = ?", portfolioID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count trades: %w", err)
	}
	return count, nil
}
