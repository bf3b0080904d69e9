package scheduler

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nurtureflow/models"
)

type fakeJobStore struct {
	jobs []*models.ScheduledJob
}

func (f *fakeJobStore) CreateJob(_ context.Context, job *models.ScheduledJob) error {
	f.jobs = append(f.jobs, job)
	return nil
}

func (f *fakeJobStore) DueJobs(_ context.Context, now time.Time, limit int) ([]models.ScheduledJob, error) {
	var due []models.ScheduledJob
	for _, job := range f.jobs {
		if job.Status == models.JobStatusPending && !job.FireAt.After(now) && len(due) < limit {
			due = append(due, *job)
		}
	}
	return due, nil
}

func (f *fakeJobStore) MarkJobDone(_ context.Context, id uint) error   { return nil }
func (f *fakeJobStore) MarkJobFailed(_ context.Context, id uint, _ string) error {
	return nil
}

func (f *fakeJobStore) CancelPendingForEmail(_ context.Context, email string) (int64, error) {
	var canceled int64
	for _, job := range f.jobs {
		if job.Status == models.JobStatusPending && job.Params.Email == email {
			job.Status = models.JobStatusCanceled
			canceled++
		}
	}
	return canceled, nil
}

func testScheduler(jobs *fakeJobStore) *DBScheduler {
	return NewDBScheduler(jobs, log.New(io.Discard, "", 0))
}

func TestSchedulePersistsJob(t *testing.T) {
	jobs := &fakeJobStore{}
	s := testScheduler(jobs)

	fireAt := time.Date(2025, 3, 11, 9, 0, 0, 0, time.FixedZone("EST", -5*3600))
	params := models.StepParams{
		Campaign:     "assessment-nurture",
		StepNumber:   2,
		Email:        "dana@acmeplumbing.com",
		TemplateName: "assessment-nurture-step-2",
	}

	id, err := s.Schedule(context.Background(), KindSequenceStep, params, fireAt)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	require.Len(t, jobs.jobs, 1)
	job := jobs.jobs[0]
	assert.Equal(t, id, job.JobID)
	assert.Equal(t, KindSequenceStep, job.Kind)
	assert.Equal(t, models.JobStatusPending, job.Status)
	assert.Equal(t, params, job.Params)
	assert.Equal(t, fireAt.UTC(), job.FireAt, "fire times are stored in UTC")
}

func TestScheduleIssuesUniqueJobIDs(t *testing.T) {
	jobs := &fakeJobStore{}
	s := testScheduler(jobs)

	seen := make(map[string]bool)
	for i := 0; i < 10; i++ {
		id, err := s.Schedule(context.Background(), KindSequenceStep, models.StepParams{StepNumber: i + 1, Email: "a@b.co"}, time.Now())
		require.NoError(t, err)
		assert.False(t, seen[id])
		seen[id] = true
	}
}

func TestCancelPendingOnlyTouchesMatchingEmail(t *testing.T) {
	jobs := &fakeJobStore{}
	s := testScheduler(jobs)

	now := time.Now()
	for _, email := range []string{"dana@acmeplumbing.com", "dana@acmeplumbing.com", "sam@riveroofing.com"} {
		_, err := s.Schedule(context.Background(), KindSequenceStep, models.StepParams{Email: email}, now.Add(time.Hour))
		require.NoError(t, err)
	}

	canceled, err := s.CancelPending(context.Background(), "dana@acmeplumbing.com")
	require.NoError(t, err)
	assert.Equal(t, int64(2), canceled)

	due, err := jobs.DueJobs(context.Background(), now.Add(2*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "sam@riveroofing.com", due[0].Params.Email)
}
