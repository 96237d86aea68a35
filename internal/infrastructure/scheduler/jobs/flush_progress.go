// Package jobs contains the background jobs run by the API server.
package jobs

import (
	"context"

	"github.com/wellness-escape/vitality-hub/internal/domain/progress"
	"github.com/wellness-escape/vitality-hub/pkg/logger"
)

// FlushRecorder counts writes that reached the medium late.
type FlushRecorder interface {
	Flushed(n int)
}

// FlushProgressJob retries writes the progress medium refused earlier.
// Records still failing stay pending for the next run.
type FlushProgressJob struct {
	store    *progress.Store
	recorder FlushRecorder
	log      *logger.Logger
}

// NewFlushProgressJob creates the job. recorder may be nil.
func NewFlushProgressJob(store *progress.Store, recorder FlushRecorder, log *logger.Logger) *FlushProgressJob {
	if log == nil {
		log = logger.Nop()
	}
	return &FlushProgressJob{store: store, recorder: recorder, log: log}
}

// Name returns the job name.
func (j *FlushProgressJob) Name() string { return "flush-pending-progress" }

// Description returns a human-readable description.
func (j *FlushProgressJob) Description() string {
	return "Write progress held in memory back to the progress medium"
}

// Run flushes pending records. It never fails: leftovers are retried next run.
func (j *FlushProgressJob) Run(ctx context.Context) error {
	if j.store.Pending() == 0 {
		return nil
	}

	n := j.store.Flush(ctx)
	if n == 0 {
		return nil
	}
	if j.recorder != nil {
		j.recorder.Flushed(n)
	}
	j.log.Info("pending progress flushed",
		logger.Int("keys", n),
		logger.Int("left", j.store.Pending()),
	)
	return nil
}
