package worker

import (
	"context"
	"log"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"

	"nurtureflow/models"
	"nurtureflow/scheduler"
	"nurtureflow/sequence"
	"nurtureflow/store"
)

// DispatchWorker polls for due scheduled jobs and executes them. Jobs are
// independent: one failing step never blocks another, and there is no
// ordering between steps beyond their fire times.
type DispatchWorker struct {
	Jobs      store.JobStore
	Sender    *sequence.StepSender
	Logger    *log.Logger
	Interval  time.Duration
	BatchSize int
}

func NewDispatchWorker(jobs store.JobStore, sender *sequence.StepSender, logger *log.Logger, interval time.Duration, batchSize int) *DispatchWorker {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	return &DispatchWorker{
		Jobs:      jobs,
		Sender:    sender,
		Logger:    logger,
		Interval:  interval,
		BatchSize: batchSize,
	}
}

func (dw *DispatchWorker) Start(ctx context.Context) {
	dw.Logger.Println("Dispatch worker started")

	ticker := time.NewTicker(dw.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			dw.Logger.Println("Dispatch worker shutting down...")
			return
		case <-ticker.C:
			dw.processDueJobs(ctx)
		}
	}
}

func (dw *DispatchWorker) processDueJobs(ctx context.Context) {
	jobs, err := dw.Jobs.DueJobs(ctx, time.Now(), dw.BatchSize)
	if err != nil {
		dw.Logger.Printf("Error fetching due jobs: %v", err)
		return
	}

	for _, job := range jobs {
		if err := dw.runJob(ctx, job); err != nil {
			dw.Logger.Printf("Job %s failed: %v", job.JobID, err)
			dw.captureFailure(job, err)
			if markErr := dw.Jobs.MarkJobFailed(ctx, job.ID, err.Error()); markErr != nil {
				dw.Logger.Printf("Failed to mark job %s failed: %v", job.JobID, markErr)
			}
			continue
		}
		// A crash before this mark leaves the job pending and it will run
		// again; the step sender's idempotency check absorbs that.
		if err := dw.Jobs.MarkJobDone(ctx, job.ID); err != nil {
			dw.Logger.Printf("Failed to mark job %s done: %v", job.JobID, err)
		}
	}
}

func (dw *DispatchWorker) runJob(ctx context.Context, job models.ScheduledJob) error {
	switch job.Kind {
	case scheduler.KindSequenceStep:
		result, err := dw.Sender.Deliver(ctx, job.Params)
		if err != nil {
			return err
		}
		logrus.WithFields(logrus.Fields{
			"job_id":   job.JobID,
			"campaign": job.Params.Campaign,
			"step":     job.Params.StepNumber,
			"email":    job.Params.Email,
			"status":   result.Status,
		}).Info("Step executed")
		return nil
	default:
		dw.Logger.Printf("Unknown job kind %q for job %s, marking done", job.Kind, job.JobID)
		return nil
	}
}

func (dw *DispatchWorker) captureFailure(job models.ScheduledJob, err error) {
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("campaign", job.Params.Campaign)
		scope.SetExtra("job_id", job.JobID)
		scope.SetExtra("step", job.Params.StepNumber)
		scope.SetExtra("email", job.Params.Email)
		sentry.CaptureException(err)
	})
}
