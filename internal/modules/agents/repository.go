// Package agents manages the registry of AI trading agents.
package agents

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/agentrace/agentrace/internal/domain"
)

// agentColumns is the list of columns for the agents table
const agentColumns = `id, name, strategy, instructions, model_provider, deployment_key, is_active, created_at`

// Repository handles agent database operations
type Repository struct {
	agentsDB *sql.DB
	log      zerolog.Logger
}

// NewRepository creates a new agent repository
func NewRepository(agentsDB *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		agentsDB: agentsDB,
		log:      log.With().Str("repo", "agents").Logger(),
	}
}

// GetByID returns an agent by id
func (r *Repository) GetByID(id string) (*domain.Agent, error) {
	query := "SELECT " + agentColumns + " FROM agents WHERE id = ?"

	rows, err := r.agentsDB.Query(query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query agent by id: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, domain.ErrAgentNotFound
	}

	agent, err := scanAgent(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan agent: %w", err)
	}

	return &agent, nil
}

// GetByName returns an agent by name, nil when not found
func (r *Repository) GetByName(name string) (*domain.Agent, error) {
	query := "SELECT " + agentColumns + " FROM agents WHERE name = ?"

	rows, err := r.agentsDB.Query(query, strings.TrimSpace(name))
	if err != nil {
		return nil, fmt.Errorf("failed to query agent by name: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, nil
	}

	agent, err := scanAgent(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan agent: %w", err)
	}

	return &agent, nil
}

// GetAll returns every registered agent ordered by name
func (r *Repository) GetAll() ([]domain.Agent, error) {
	return r.queryAgents("SELECT " + agentColumns + " FROM agents ORDER BY name")
}

// GetAllActive returns all active agents ordered by name
func (r *Repository) GetAllActive() ([]domain.Agent, error) {
	return r.queryAgents("SELECT " + agentColumns + " FROM agents WHERE is_active = 1 ORDER BY name")
}

// Upsert inserts an agent or updates its mutable fields by name.
// Returns the stored agent (existing id preserved on update).
func (r *Repository) Upsert(agent domain.Agent) (*domain.Agent, error) {
	agent.Name = strings.TrimSpace(agent.Name)
	if agent.Name == "" {
		return nil, fmt.Errorf("agent name is required")
	}

	existing, err := r.GetByName(agent.Name)
	if err != nil {
		return nil, err
	}

	if existing != nil {
		query := `UPDATE agents
			SET strategy = ?, instructions = ?, model_provider = ?, deployment_key = ?, is_active = ?
			WHERE id = ?`
		_, err := r.agentsDB.Exec(query,
			agent.Strategy, agent.Instructions, agent.ModelProvider,
			agent.DeploymentKey, boolToInt(agent.IsActive), existing.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to update agent %s: %w", agent.Name, err)
		}
		agent.ID = existing.ID
		agent.CreatedAt = existing.CreatedAt
		return &agent, nil
	}

	agent.ID = uuid.New().String()
	agent.CreatedAt = time.Now().Unix()
	if agent.ModelProvider == "" {
		agent.ModelProvider = "hold"
	}

	query := `INSERT INTO agents (id, name, strategy, instructions, model_provider, deployment_key, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = r.agentsDB.Exec(query,
		agent.ID, agent.Name, agent.Strategy, agent.Instructions,
		agent.ModelProvider, agent.DeploymentKey, boolToInt(agent.IsActive), agent.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert agent %s: %w", agent.Name, err)
	}

	return &agent, nil
}

// SetActive toggles an agent's active flag
func (r *Repository) SetActive(id string, active bool) error {
	result, err := r.agentsDB.Exec("UPDATE agents SET is_active = ? WHERE id = ?", boolToInt(active), id)
	if err != nil {
		return fmt.Errorf("failed to update agent active flag: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if affected == 0 {
		return domain.ErrAgentNotFound
	}

	return nil
}

func (r *Repository) queryAgents(query string, args ...interface{}) ([]domain.Agent, error) {
	rows, err := r.agentsDB.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query agents: %w", err)
	}
	defer rows.Close()

	var result []domain.Agent
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan agent: %w", err)
		}
		result = append(result, agent)
	}

	return result, rows.Err()
}

// scanAgent scans an agent row
func scanAgent(rows *sql.Rows) (domain.Agent, error) {
	var agent domain.Agent
	var isActive int

	err := rows.Scan(
		&agent.ID,
		&agent.Name,
		&agent.Strategy,
		&agent.Instructions,
		&agent.ModelProvider,
		&agent.DeploymentKey,
		&isActive,
		&agent.CreatedAt,
	)
	if err != nil {
		return domain.Agent{}, err
	}

	agent.IsActive = isActive != 0

	return agent, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
