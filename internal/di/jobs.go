package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/agentrace/agentrace/internal/config"
	"github.com/agentrace/agentrace/internal/orchestrator"
	"github.com/agentrace/agentrace/internal/reliability"
	"github.com/agentrace/agentrace/internal/scheduler"
)

// InitializeJobs creates the scheduled job instances
func InitializeJobs(c *Container, cfg *config.Config, log zerolog.Logger) *JobInstances {
	jobs := &JobInstances{
		CycleJob: orchestrator.NewCycleJob(c.Orchestrator, cfg.CycleInterval, log),
	}

	if c.BackupService != nil {
		jobs.BackupJob = reliability.NewBackupJob(c.BackupService, cfg.Backup.RetentionDays, log)
	}

	return jobs
}

// RegisterJobs attaches every job to the scheduler with its cron spec
func RegisterJobs(sched *scheduler.Scheduler, jobs *JobInstances, cfg *config.Config) error {
	cycleSpec := fmt.Sprintf("0 */%d * * * *", int(cfg.CycleInterval.Minutes()))
	if err := sched.AddJob(cycleSpec, jobs.CycleJob); err != nil {
		return fmt.Errorf("failed to register market cycle job: %w", err)
	}

	if jobs.BackupJob != nil {
		if err := sched.AddJob(cfg.Backup.Schedule, jobs.BackupJob); err != nil {
			return fmt.Errorf("failed to register backup job: %w", err)
		}
	}

	return nil
}
