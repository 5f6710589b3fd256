// Package ledger is the system of record for portfolios, positions, and trades.
package ledger

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/agentrace/agentrace/internal/domain"
)

// portfolioColumns is the list of columns for the portfolios table
const portfolioColumns = `id, agent_id, cash, base_currency, created_at`

// PortfolioRepository handles portfolio database operations
type PortfolioRepository struct {
	ledgerDB *sql.DB
	log      zerolog.Logger
}

// NewPortfolioRepository creates a new portfolio repository
func NewPortfolioRepository(ledgerDB *sql.DB, log zerolog.Logger) *PortfolioRepository {
	return &PortfolioRepository{
		ledgerDB: ledgerDB,
		log:      log.With().Str("repo", "portfolio").Logger(),
	}
}

// GetByAgentID returns the portfolio for an agent, nil when not found
func (r *PortfolioRepository) GetByAgentID(agentID string) (*domain.Portfolio, error) {
	return scanPortfolioRow(r.ledgerDB.QueryRow(
		"SELECT "+portfolioColumns+" FROM portfolios WHERE agent_id = ?", agentID))
}

// GetByAgentIDTx returns the portfolio for an agent inside a transaction
func (r *PortfolioRepository) GetByAgentIDTx(tx *sql.Tx, agentID string) (*domain.Portfolio, error) {
	return scanPortfolioRow(tx.QueryRow(
		"SELECT "+portfolioColumns+" FROM portfolios WHERE agent_id = ?", agentID))
}

// GetAll returns every portfolio
func (r *PortfolioRepository) GetAll() ([]domain.Portfolio, error) {
	rows, err := r.ledgerDB.Query("SELECT " + portfolioColumns + " FROM portfolios")
	if err != nil {
		return nil, fmt.Errorf("failed to query portfolios: %w", err)
	}
	defer rows.Close()

	var portfolios []domain.Portfolio
	for rows.Next() {
		var p domain.Portfolio
		if err := rows.Scan(&p.ID, &p.AgentID, &p.Cash, &p.BaseCurrency, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan portfolio: %w", err)
		}
		portfolios = append(portfolios, p)
	}

	return portfolios, rows.Err()
}

// Create inserts a new portfolio for an agent with the given starting cash
func (r *PortfolioRepository) Create(agentID string, startingCash float64) (*domain.Portfolio, error) {
	p := &domain.Portfolio{
		ID:           uuid.New().String(),
		AgentID:      agentID,
		Cash:         startingCash,
		BaseCurrency: "USD",
		CreatedAt:    time.Now().Unix(),
	}

	_, err := r.ledgerDB.Exec(
		"INSERT INTO portfolios (id, agent_id, cash, base_currency, created_at) VALUES (?, ?, ?, ?, ?)",
		p.ID, p.AgentID, p.Cash, p.BaseCurrency, p.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create portfolio for agent %s: %w", agentID, err)
	}

	r.log.Info().
		Str("agent_id", agentID).
		Float64("starting_cash", startingCash).
		Msg("Portfolio created")

	return p, nil
}

// UpdateCashTx sets a portfolio's cash balance inside a transaction
func (r *PortfolioRepository) UpdateCashTx(tx *sql.Tx, portfolioID string, cash float64) error {
	result, err := tx.Exec("UPDATE portfolios SET cash = ? WHERE id = ?", cash, portfolioID)
	if err != nil {
		return fmt.Errorf("failed to update portfolio cash: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("portfolio %s not found", portfolioID)
	}

	return nil
}

// rowScanner abstracts *sql.Row for single-row portfolio scans
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPortfolioRow(row rowScanner) (*domain.Portfolio, error) {
	var p domain.Portfolio
	err := row.Scan(&p.ID, &p.AgentID, &p.Cash, &p.BaseCurrency, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan portfolio: %w", err)
	}
	return &p, nil
}
