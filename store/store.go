package store

import (
	"context"
	"errors"
	"time"

	"nurtureflow/models"
)

var (
	ErrTemplateNotFound = errors.New("template not found")
	ErrContactNotFound  = errors.New("contact not found")
	ErrSequenceNotFound = errors.New("sequence record not found")
)

// RecordStore is the persistence boundary of the sequence engine. Everything
// the orchestrator and step sender touch goes through here, so the backing
// database can change without touching the campaign logic, and the
// at-least-once redelivery race is isolated behind MarkStepSent.
type RecordStore interface {
	// UpsertContact creates the contact on first intake or refreshes its
	// display attributes on repeat intakes. The assessment snapshot (severity
	// counts, health score, revenue at risk) is refreshed only when
	// refreshAssessment is set, so an intake without assessment data never
	// zeroes an earlier snapshot.
	UpsertContact(ctx context.Context, contact *models.Contact, refreshAssessment bool) (*models.Contact, error)

	// FindContact returns ErrContactNotFound when no contact exists.
	FindContact(ctx context.Context, email string) (*models.Contact, error)

	// FindSequence returns (nil, nil) when the contact has no record for the
	// campaign. Step sends are preloaded.
	FindSequence(ctx context.Context, email, campaign string) (*models.SequenceRecord, error)

	// CreateSequence creates the single tracking record for (contact, campaign).
	// A concurrent duplicate create fails with gorm.ErrDuplicatedKey.
	CreateSequence(ctx context.Context, contactID uint, campaign, segment string, stepCount int) (*models.SequenceRecord, error)

	// UpdateSequenceSegment refreshes the recorded segment on a sequence that
	// resumed with different assessment results before anything was sent.
	UpdateSequenceSegment(ctx context.Context, sequenceID uint, segment string) error

	// MarkStepSent records the step as sent exactly once. The second return
	// is false when another execution already marked it, which is how a lost
	// race surfaces.
	MarkStepSent(ctx context.Context, sequenceID uint, step int, sentAt time.Time, deliveryID string) (bool, error)

	// GetTemplate returns ErrTemplateNotFound when the name is unknown.
	GetTemplate(ctx context.Context, name string) (*models.EmailTemplate, error)

	// MarkUnsubscribed flips the contact's suppression flag and records the
	// opt-out for audit. Suppression is always global; campaign, when
	// non-empty, records which campaign's email carried the opt-out link.
	MarkUnsubscribed(ctx context.Context, email, campaign, reason, ip, userAgent string) error
}

// JobStore persists deferred work for the DB-backed scheduler.
type JobStore interface {
	CreateJob(ctx context.Context, job *models.ScheduledJob) error

	// DueJobs returns pending jobs whose fire time has passed, oldest first.
	DueJobs(ctx context.Context, now time.Time, limit int) ([]models.ScheduledJob, error)

	MarkJobDone(ctx context.Context, id uint) error
	MarkJobFailed(ctx context.Context, id uint, lastError string) error

	// CancelPendingForEmail cancels every not-yet-fired job addressed to the
	// given contact and returns how many were canceled.
	CancelPendingForEmail(ctx context.Context, email string) (int64, error)
}
