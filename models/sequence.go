package models

import (
	"time"

	"gorm.io/gorm"
)

// SequenceRecord tracks one contact's participation in one campaign.
// The composite unique index guarantees at most one record per
// (contact, campaign) pair.
type SequenceRecord struct {
	gorm.Model
	ContactID uint   `gorm:"not null;uniqueIndex:idx_sequence_contact_campaign" json:"contact_id"`
	Campaign  string `gorm:"not null;uniqueIndex:idx_sequence_contact_campaign" json:"campaign"`

	Segment   string `gorm:"not null" json:"segment"`
	StepCount int    `gorm:"not null" json:"step_count"`

	// Relations
	StepSends []SequenceStepSend `gorm:"foreignKey:SequenceRecordID" json:"step_sends,omitempty"`
	Contact   Contact            `json:"-"`
}

// StepSent reports whether the given step has already been recorded as sent.
// Requires StepSends to be preloaded.
func (r *SequenceRecord) StepSent(step int) bool {
	for _, s := range r.StepSends {
		if s.StepNumber == step {
			return true
		}
	}
	return false
}

// AnyStepSent reports whether at least one step of this sequence went out.
func (r *SequenceRecord) AnyStepSent() bool {
	return len(r.StepSends) > 0
}

// SequenceStepSend records a single delivered step. Row existence is the
// "sent" flag; the unique index turns mark-sent into a conditional insert,
// so two concurrent redeliveries cannot both record a send. A row is never
// deleted or updated back to unsent.
type SequenceStepSend struct {
	gorm.Model
	SequenceRecordID uint `gorm:"not null;uniqueIndex:idx_step_send_once" json:"sequence_record_id"`
	StepNumber       int  `gorm:"not null;uniqueIndex:idx_step_send_once" json:"step_number"`

	SentAt     time.Time `gorm:"not null" json:"sent_at"`
	DeliveryID string    `json:"delivery_id"`
}
