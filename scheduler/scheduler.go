package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"nurtureflow/models"
	"nurtureflow/store"
)

// KindSequenceStep is the unit-of-work identifier for a deferred step send.
const KindSequenceStep = "sequence.step"

// Scheduler registers deferred work. The contract is at-least-once execution
// with no ordering guarantee across independent jobs; any backend that keeps
// those two properties can sit behind this interface.
type Scheduler interface {
	Schedule(ctx context.Context, kind string, params models.StepParams, fireAt time.Time) (string, error)
	CancelPending(ctx context.Context, email string) (int64, error)
}

// DBScheduler stores jobs as rows; the dispatch worker polls and executes
// them when due.
type DBScheduler struct {
	Jobs   store.JobStore
	Logger *log.Logger
}

func NewDBScheduler(jobs store.JobStore, logger *log.Logger) *DBScheduler {
	return &DBScheduler{
		Jobs:   jobs,
		Logger: logger,
	}
}

func (s *DBScheduler) Schedule(ctx context.Context, kind string, params models.StepParams, fireAt time.Time) (string, error) {
	job := &models.ScheduledJob{
		JobID:  uuid.NewString(),
		Kind:   kind,
		Params: params,
		FireAt: fireAt.UTC(),
		Status: models.JobStatusPending,
	}

	if err := s.Jobs.CreateJob(ctx, job); err != nil {
		return "", fmt.Errorf("failed to register %s for %s step %d: %w", kind, params.Email, params.StepNumber, err)
	}

	s.Logger.Printf("Scheduled %s step %d for %s at %s", params.Campaign, params.StepNumber, params.Email, job.FireAt.Format(time.RFC3339))
	return job.JobID, nil
}

func (s *DBScheduler) CancelPending(ctx context.Context, email string) (int64, error) {
	canceled, err := s.Jobs.CancelPendingForEmail(ctx, email)
	if err != nil {
		return 0, fmt.Errorf("failed to cancel pending jobs for %s: %w", email, err)
	}
	if canceled > 0 {
		s.Logger.Printf("Canceled %d pending jobs for %s", canceled, email)
	}
	return canceled, nil
}
