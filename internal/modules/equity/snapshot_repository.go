// Package equity captures portfolio valuations and computes performance metrics.
package equity

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/agentrace/agentrace/internal/domain"
)

// snapshotColumns is the list of columns for the equity_snapshots table
const snapshotColumns = `id, portfolio_id, captured_at, total_value, cash_value, positions_value, unrealized_pnl, batch_id`

// SnapshotRepository handles equity snapshot database operations.
// Snapshot rows are append-only.
type SnapshotRepository struct {
	ledgerDB *sql.DB
	log      zerolog.Logger
}

// NewSnapshotRepository creates a new snapshot repository
func NewSnapshotRepository(ledgerDB *sql.DB, log zerolog.Logger) *SnapshotRepository {
	return &SnapshotRepository{
		ledgerDB: ledgerDB,
		log:      log.With().Str("repo", "snapshots").Logger(),
	}
}

// Insert persists a snapshot and returns its id
func (r *SnapshotRepository) Insert(snapshot domain.EquitySnapshot) (string, error) {
	if snapshot.ID == "" {
		snapshot.ID = uuid.New().String()
	}

	_, err := r.ledgerDB.Exec(
		"INSERT INTO equity_snapshots ("+snapshotColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		snapshot.ID, snapshot.PortfolioID, snapshot.CapturedAt,
		snapshot.TotalValue, snapshot.CashValue, snapshot.PositionsValue,
		snapshot.UnrealizedPnL, nullString(snapshot.BatchID))
	if err != nil {
		return "", fmt.Errorf("failed to insert snapshot: %w", err)
	}

	return snapshot.ID, nil
}

// InsertTx persists a snapshot inside an existing transaction.
// Used by the ledger to record the post-trade snapshot atomically
// with the trades that produced it.
func (r *SnapshotRepository) InsertTx(tx *sql.Tx, snapshot domain.EquitySnapshot) (string, error) {
	if snapshot.ID == "" {
		snapshot.ID = uuid.New().String()
	}

	_, err := tx.Exec(
		"INSERT INTO equity_snapshots ("+snapshotColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		snapshot.ID, snapshot.PortfolioID, snapshot.CapturedAt,
		snapshot.TotalValue, snapshot.CashValue, snapshot.PositionsValue,
		snapshot.UnrealizedPnL, nullString(snapshot.BatchID))
	if err != nil {
		return "", fmt.Errorf("failed to insert snapshot: %w", err)
	}

	return snapshot.ID, nil
}

// GetFirst returns the oldest snapshot for a portfolio, nil when none exist
func (r *SnapshotRepository) GetFirst(portfolioID string) (*domain.EquitySnapshot, error) {
	return r.getOne(
		"SELECT "+snapshotColumns+" FROM equity_snapshots WHERE portfolio_id = ? ORDER BY captured_at ASC, id ASC LIMIT 1",
		portfolioID)
}

// GetLatest returns the newest snapshot for a portfolio, nil when none exist
func (r *SnapshotRepository) GetLatest(portfolioID string) (*domain.EquitySnapshot, error) {
	return r.getOne(
		"SELECT "+snapshotColumns+" FROM equity_snapshots WHERE portfolio_id = ? ORDER BY captured_at DESC, id DESC LIMIT 1",
		portfolioID)
}

// GetRange returns snapshots for a portfolio ordered by capture time.
// Zero bounds are open-ended.
func (r *SnapshotRepository) GetRange(portfolioID string, from, to int64) ([]domain.EquitySnapshot, error) {
	query := "SELECT " + snapshotColumns + " FROM equity_snapshots WHERE portfolio_id = ?"
	args := []interface{}{portfolioID}

	if from > 0 {
		query += " AND captured_at >= ?"
		args = append(args, from)
	}
	if to > 0 {
		query += " AND captured_at <= ?"
		args = append(args, to)
	}
	query += " ORDER BY captured_at ASC, id ASC"

	rows, err := r.ledgerDB.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []domain.EquitySnapshot
	for rows.Next() {
		snapshot, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, snapshot)
	}

	return snapshots, rows.Err()
}

// CountByPortfolio returns the number of snapshots for a portfolio
func (r *SnapshotRepository) CountByPortfolio(portfolioID string) (int, error) {
	var count int
	err := r.ledgerDB.QueryRow(
		"SELECT COUNT(*) FROM equity_snapshots WHERE portfolio_id = ?", portfolioID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count snapshots: %w", err)
	}
	return count, nil
}

func (r *SnapshotRepository) getOne(query string, args ...interface{}) (*domain.EquitySnapshot, error) {
	rows, err := r.ledgerDB.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, nil
	}

	snapshot, err := scanSnapshot(rows)
	if err != nil {
		return nil, err
	}
	return &snapshot, nil
}

func scanSnapshot(rows *sql.Rows) (domain.EquitySnapshot, error) {
	var s domain.EquitySnapshot
	var batchID sql.NullString

	err := rows.Scan(
		&s.ID, &s.PortfolioID, &s.CapturedAt,
		&s.TotalValue, &s.CashValue, &s.PositionsValue,
		&s.UnrealizedPnL, &batchID)
	if err != nil {
		return domain.EquitySnapshot{}, fmt.Errorf("failed to scan snapshot: %w", err)
	}

	s.BatchID = batchID.String
	return s, nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
