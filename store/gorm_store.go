package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"nurtureflow/models"
)

// GormStore implements RecordStore and JobStore on top of Postgres.
type GormStore struct {
	DB *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{DB: db}
}

func (s *GormStore) UpsertContact(ctx context.Context, contact *models.Contact, refreshAssessment bool) (*models.Contact, error) {
	var existing models.Contact
	err := s.DB.WithContext(ctx).Where("email = ?", contact.Email).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if err := s.DB.WithContext(ctx).Create(contact).Error; err != nil {
			return nil, fmt.Errorf("failed to create contact: %w", err)
		}
		return contact, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up contact: %w", err)
	}

	// Refresh display attributes, but never undo a suppression. The
	// assessment snapshot is only touched when this intake carried one, so a
	// no-show or booking event cannot zero earlier assessment results.
	updates := map[string]interface{}{
		"first_name":     contact.FirstName,
		"business_name":  contact.BusinessName,
		"source":         contact.Source,
		"last_intake_at": contact.LastIntakeAt,
	}
	if refreshAssessment {
		updates["critical_count"] = contact.CriticalCount
		updates["high_count"] = contact.HighCount
		updates["medium_count"] = contact.MediumCount
		updates["low_count"] = contact.LowCount
		updates["health_score"] = contact.HealthScore
		updates["revenue_at_risk"] = contact.RevenueAtRisk
	}
	if err := s.DB.WithContext(ctx).Model(&existing).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to refresh contact: %w", err)
	}
	return &existing, nil
}

func (s *GormStore) FindContact(ctx context.Context, email string) (*models.Contact, error) {
	var contact models.Contact
	err := s.DB.WithContext(ctx).Where("email = ?", email).First(&contact).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrContactNotFound
	}
	if err != nil {
		return nil, err
	}
	return &contact, nil
}

func (s *GormStore) FindSequence(ctx context.Context, email, campaign string) (*models.SequenceRecord, error) {
	contact, err := s.FindContact(ctx, email)
	if errors.Is(err, ErrContactNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var record models.SequenceRecord
	err = s.DB.WithContext(ctx).
		Where("contact_id = ? AND campaign = ?", contact.ID, campaign).
		Preload("StepSends").
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (s *GormStore) CreateSequence(ctx context.Context, contactID uint, campaign, segment string, stepCount int) (*models.SequenceRecord, error) {
	record := &models.SequenceRecord{
		ContactID: contactID,
		Campaign:  campaign,
		Segment:   segment,
		StepCount: stepCount,
	}
	if err := s.DB.WithContext(ctx).Create(record).Error; err != nil {
		return nil, err
	}
	return record, nil
}

func (s *GormStore) UpdateSequenceSegment(ctx context.Context, sequenceID uint, segment string) error {
	err := s.DB.WithContext(ctx).Model(&models.SequenceRecord{}).
		Where("id = ?", sequenceID).
		Update("segment", segment).Error
	if err != nil {
		return fmt.Errorf("failed to update segment on sequence %d: %w", sequenceID, err)
	}
	return nil
}

// MarkStepSent is the authoritative duplicate-send guard. The unique index on
// (sequence_record_id, step_number) plus ON CONFLICT DO NOTHING makes it a
// single atomic conditional insert: of two concurrent executions only one can
// get rows_affected = 1.
func (s *GormStore) MarkStepSent(ctx context.Context, sequenceID uint, step int, sentAt time.Time, deliveryID string) (bool, error) {
	send := models.SequenceStepSend{
		SequenceRecordID: sequenceID,
		StepNumber:       step,
		SentAt:           sentAt,
		DeliveryID:       deliveryID,
	}
	result := s.DB.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&send)
	if result.Error != nil {
		return false, fmt.Errorf("failed to mark step %d sent: %w", step, result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (s *GormStore) GetTemplate(ctx context.Context, name string) (*models.EmailTemplate, error) {
	var tmpl models.EmailTemplate
	err := s.DB.WithContext(ctx).Where("name = ?", name).First(&tmpl).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
	}
	if err != nil {
		return nil, err
	}
	return &tmpl, nil
}

func (s *GormStore) MarkUnsubscribed(ctx context.Context, email, campaign, reason, ip, userAgent string) error {
	if err := s.DB.WithContext(ctx).Model(&models.Contact{}).
		Where("email = ?", email).
		Update("is_unsubscribed", true).Error; err != nil {
		return fmt.Errorf("failed to suppress contact: %w", err)
	}

	record := models.Unsubscribe{
		Email:     email,
		Reason:    reason,
		IPAddress: ip,
		UserAgent: userAgent,
	}
	if campaign != "" {
		record.Campaign = &campaign
	}
	return s.DB.WithContext(ctx).Create(&record).Error
}

func (s *GormStore) CreateJob(ctx context.Context, job *models.ScheduledJob) error {
	return s.DB.WithContext(ctx).Create(job).Error
}

func (s *GormStore) DueJobs(ctx context.Context, now time.Time, limit int) ([]models.ScheduledJob, error) {
	var jobs []models.ScheduledJob
	err := s.DB.WithContext(ctx).
		Where("status = ? AND fire_at <= ?", models.JobStatusPending, now).
		Order("fire_at asc").
		Limit(limit).
		Find(&jobs).Error
	return jobs, err
}

func (s *GormStore) MarkJobDone(ctx context.Context, id uint) error {
	return s.DB.WithContext(ctx).Model(&models.ScheduledJob{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":   models.JobStatusDone,
			"attempts": gorm.Expr("attempts + 1"),
		}).Error
}

func (s *GormStore) MarkJobFailed(ctx context.Context, id uint, lastError string) error {
	return s.DB.WithContext(ctx).Model(&models.ScheduledJob{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     models.JobStatusFailed,
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": lastError,
		}).Error
}

func (s *GormStore) CancelPendingForEmail(ctx context.Context, email string) (int64, error) {
	result := s.DB.WithContext(ctx).Model(&models.ScheduledJob{}).
		Where("status = ? AND params->>'email' = ?", models.JobStatusPending, email).
		Update("status", models.JobStatusCanceled)
	return result.RowsAffected, result.Error
}
