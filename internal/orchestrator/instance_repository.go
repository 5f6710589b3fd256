// Package orchestrator runs the recurring market cycle workflow.
package orchestrator

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/agentrace/agentrace/internal/domain"
)

// instanceColumns is the list of columns for the orchestration_instances table
const instanceColumns = `instance_id, status, started_at, completed_at, duration_ms, result_json`

// InstanceRepository tracks orchestration instances in cache.db.
// The instance id doubles as the idempotency key for a cycle.
type InstanceRepository struct {
	cacheDB *sql.DB
	log     zerolog.Logger
}

// NewInstanceRepository creates a new instance repository
func NewInstanceRepository(cacheDB *sql.DB, log zerolog.Logger) *InstanceRepository {
	return &InstanceRepository{
		cacheDB: cacheDB,
		log:     log.With().Str("repo", "instances").Logger(),
	}
}

// CreateIfAbsent claims an instance id. Returns ErrInstanceExists when an
// instance with this id is already pending or running; a previously
// completed or failed instance with the same id is also left alone so a
// finished cycle is never re-run.
func (r *InstanceRepository) CreateIfAbsent(instanceID string) error {
	result, err := r.cacheDB.Exec(
		"INSERT OR IGNORE INTO orchestration_instances (instance_id, status, started_at) VALUES (?, ?, ?)",
		instanceID, string(domain.InstancePending), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to claim instance %s: %w", instanceID, err)
	}

	inserted, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check claimed rows: %w", err)
	}
	if inserted == 0 {
		return fmt.Errorf("%w: %s", domain.ErrInstanceExists, instanceID)
	}

	return nil
}

// MarkRunning transitions an instance to running
func (r *InstanceRepository) MarkRunning(instanceID string) error {
	return r.setStatus(instanceID, domain.InstanceRunning)
}

// MarkCompleted finalizes an instance with its duration and result summary
func (r *InstanceRepository) MarkCompleted(instanceID string, duration time.Duration, resultJSON string) error {
	return r.finalize(instanceID, domain.InstanceCompleted, duration, resultJSON)
}

// MarkFailed finalizes an instance as failed with the error message
func (r *InstanceRepository) MarkFailed(instanceID string, duration time.Duration, errMsg string) error {
	return r.finalize(instanceID, domain.InstanceFailed, duration, errMsg)
}

// Get returns an instance by id, nil when not found
func (r *InstanceRepository) Get(instanceID string) (*domain.OrchestrationInstance, error) {
	rows, err := r.cacheDB.Query(
		"SELECT "+instanceColumns+" FROM orchestration_instances WHERE instance_id = ?", instanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query instance: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, nil
	}

	instance, err := scanInstance(rows)
	if err != nil {
		return nil, err
	}
	return &instance, nil
}

// GetRecent returns the newest instances, most recent first
func (r *InstanceRepository) GetRecent(limit int) ([]domain.OrchestrationInstance, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.cacheDB.Query(
		"SELECT "+instanceColumns+" FROM orchestration_instances ORDER BY started_at DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query instances: %w", err)
	}
	defer rows.Close()

	var instances []domain.OrchestrationInstance
	for rows.Next() {
		instance, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		instances = append(instances, instance)
	}

	return instances, rows.Err()
}

func (r *InstanceRepository) setStatus(instanceID string, status domain.InstanceStatus) error {
	_, err := r.cacheDB.Exec(
		"UPDATE orchestration_instances SET status = ? WHERE instance_id = ?",
		string(status), instanceID)
	if err != nil {
		return fmt.Errorf("failed to update instance %s: %w", instanceID, err)
	}
	return nil
}

func (r *InstanceRepository) finalize(instanceID string, status domain.InstanceStatus, duration time.Duration, resultJSON string) error {
	_, err := r.cacheDB.Exec(
		"UPDATE orchestration_instances SET status = ?, completed_at = ?, duration_ms = ?, result_json = ? WHERE instance_id = ?",
		string(status), time.Now().Unix(), duration.Milliseconds(), resultJSON, instanceID)
	if err != nil {
		return fmt.Errorf("failed to finalize instance %s: %w", instanceID, err)
	}
	return nil
}

func scanInstance(rows *sql.Rows) (domain.OrchestrationInstance, error) {
	var instance domain.OrchestrationInstance
	var status string
	var completedAt, durationMs sql.NullInt64
	var resultJSON sql.NullString

	err := rows.Scan(
		&instance.InstanceID, &status, &instance.StartedAt,
		&completedAt, &durationMs, &resultJSON)
	if err != nil {
		return domain.OrchestrationInstance{}, fmt.Errorf("failed to scan instance: %w", err)
	}

	instance.Status = domain.InstanceStatus(status)
	if completedAt.Valid {
		instance.CompletedAt = &completedAt.Int64
	}
	if durationMs.Valid {
		instance.DurationMs = &durationMs.Int64
	}
	instance.ResultJSON = resultJSON.String

	return instance, nil
}
