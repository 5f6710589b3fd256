package orchestrator

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// CycleJob adapts the orchestrator to the scheduler's Job interface
type CycleJob struct {
	orch    *Orchestrator
	timeout time.Duration
	log     zerolog.Logger
}

// NewCycleJob creates the recurring market cycle job.
// timeout bounds one full cycle including agent fan-out.
func NewCycleJob(orch *Orchestrator, timeout time.Duration, log zerolog.Logger) *CycleJob {
	if timeout <= 0 {
		timeout = 4 * time.Minute
	}
	return &CycleJob{
		orch:    orch,
		timeout: timeout,
		log:     log.With().Str("job", "market_cycle").Logger(),
	}
}

// Name returns the job name
func (j *CycleJob) Name() string {
	return "market_cycle"
}

// Run executes one cycle for the current timer tick
func (j *CycleJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	return j.orch.RunScheduled(ctx, time.Now())
}
