package models

import (
	"time"

	"gorm.io/gorm"
)

// Scheduled job statuses
const (
	JobStatusPending  = "pending"
	JobStatusDone     = "done"
	JobStatusFailed   = "failed"
	JobStatusCanceled = "canceled"
)

// StepParams is everything a deferred step execution needs. It is persisted
// with the job so the dispatcher can run the step without re-deriving any
// intake state.
type StepParams struct {
	Campaign     string            `json:"campaign"`
	StepNumber   int               `json:"step_number"`
	Email        string            `json:"email"`
	TemplateName string            `json:"template_name"`
	Variables    map[string]string `json:"variables"`
}

// ScheduledJob is one deferred unit of work registered with the scheduler.
// Delivery is at-least-once: a crash between execution and MarkJobDone leaves
// the row pending, and the dispatcher will pick it up again. The step sender's
// per-step idempotency check absorbs the redelivery.
type ScheduledJob struct {
	gorm.Model
	JobID string `gorm:"not null;uniqueIndex" json:"job_id"`
	Kind  string `gorm:"not null" json:"kind"`

	Params StepParams `gorm:"type:jsonb;serializer:json" json:"params"`

	FireAt time.Time `gorm:"not null;index" json:"fire_at"`
	Status string    `gorm:"default:'pending';index" json:"status"`

	Attempts  int    `gorm:"default:0" json:"attempts"`
	LastError string `json:"last_error"`
}
