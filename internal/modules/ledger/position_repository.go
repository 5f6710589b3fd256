package ledger

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/agentrace/agentrace/internal/domain"
)

// positionColumns is the list of columns for the positions table
const positionColumns = `id, portfolio_id, market_asset_id, quantity, avg_entry_price, updated_at`

// PositionRepository handles position database operations.
// Positions with zero quantity are deleted, never stored.
type PositionRepository struct {
	ledgerDB *sql.DB
	log      zerolog.Logger
}

// NewPositionRepository creates a new position repository
func NewPositionRepository(ledgerDB *sql.DB, log zerolog.Logger) *PositionRepository {
	return &PositionRepository{
		ledgerDB: ledgerDB,
		log:      log.With().Str("repo", "position").Logger(),
	}
}

// GetByPortfolio returns all positions in a portfolio
func (r *PositionRepository) GetByPortfolio(portfolioID string) ([]domain.Position, error) {
	rows, err := r.ledgerDB.Query(
		"SELECT "+positionColumns+" FROM positions WHERE portfolio_id = ? ORDER BY market_asset_id",
		portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	return scanPositions(rows)
}

// GetByPortfolioTx returns all positions in a portfolio inside a transaction
func (r *PositionRepository) GetByPortfolioTx(tx *sql.Tx, portfolioID string) ([]domain.Position, error) {
	rows, err := tx.Query(
		"SELECT "+positionColumns+" FROM positions WHERE portfolio_id = ? ORDER BY market_asset_id",
		portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	return scanPositions(rows)
}

// GetTx returns the position for one asset inside a transaction, nil when absent
func (r *PositionRepository) GetTx(tx *sql.Tx, portfolioID, assetID string) (*domain.Position, error) {
	var p domain.Position
	err := tx.QueryRow(
		"SELECT "+positionColumns+" FROM positions WHERE portfolio_id = ? AND market_asset_id = ?",
		portfolioID, assetID).
		Scan(&p.ID, &p.PortfolioID, &p.MarketAssetID, &p.Quantity, &p.AvgEntryPrice, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan position: %w", err)
	}
	return &p, nil
}

// UpsertTx inserts or updates a position inside a transaction
func (r *PositionRepository) UpsertTx(tx *sql.Tx, portfolioID, assetID string, quantity, avgEntryPrice float64) error {
	now := time.Now().Unix()
	_, err := tx.Exec(`
		INSERT INTO positions (id, portfolio_id, market_asset_id, quantity, avg_entry_price, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(portfolio_id, market_asset_id)
		DO UPDATE SET quantity = excluded.quantity,
		              avg_entry_price = excluded.avg_entry_price,
		              updated_at = excluded.updated_at`,
		uuid.New().String(), portfolioID, assetID, quantity, avgEntryPrice, now)
	if err != nil {
		return fmt.Errorf("failed to upsert position: %w", err)
	}
	return nil
}

// DeleteTx removes a position inside a transaction
func (r *PositionRepository) DeleteTx(tx *sql.Tx, portfolioID, assetID string) error {
	_, err := tx.Exec(
		"DELETE FROM positions WHERE portfolio_id = ? AND market_asset_id = ?",
		portfolioID, assetID)
	if err != nil {
		return fmt.Errorf("failed to delete position: %w", err)
	}
	return nil
}

func scanPositions(rows *sql.Rows) ([]domain.Position, error) {
	var positions []domain.Position
	for rows.Next() {
		var p domain.Position
		if err := rows.Scan(&p.ID, &p.PortfolioID, &p.MarketAssetID, &p.Quantity, &p.AvgEntryPrice, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}
