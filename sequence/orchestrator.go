package sequence

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/badoux/checkmail"
	"gorm.io/gorm"

	"nurtureflow/models"
	"nurtureflow/scheduler"
	"nurtureflow/store"
)

// Outcome statuses reported to the intake caller.
const (
	OutcomeStarted = "started"
	OutcomeResumed = "resumed"
	OutcomeSkipped = "skipped"
)

// Skip reasons.
const (
	SkipAlreadyInSequence = "already_in_sequence"
	SkipUnsubscribed      = "unsubscribed"
	SkipMeetingTooSoon    = "meeting_too_soon"
)

// ErrInvalidIntake is returned for payloads that pass transport parsing but
// fail the orchestrator's own requirements.
var ErrInvalidIntake = errors.New("invalid intake")

// StartRequest is a validated intake event for one campaign.
type StartRequest struct {
	Campaign *Campaign

	Email        string
	FirstName    string
	BusinessName string
	Source       string

	// Counts drive the classifier and are required for the primary
	// sequence only. HealthScore and RevenueAtRisk travel with them as the
	// rest of the assessment snapshot persisted on the contact.
	Counts        *SeverityCounts
	HealthScore   float64
	RevenueAtRisk float64

	// Segment is used for secondary sequences whose trigger carries its own
	// context. Falls back to the campaign default when empty.
	Segment Segment

	// Variables are merged over the base set derived from the contact.
	Variables map[string]string

	// MeetingAt is required for campaigns with a MinimumLeadTime.
	MeetingAt *time.Time
}

// Outcome is the synchronous summary the intake caller sees. Failures inside
// individual future steps never surface here; they show up in the dispatch
// worker's logs.
type Outcome struct {
	Status         string  `json:"status"`
	Reason         string  `json:"reason,omitempty"`
	Segment        Segment `json:"segment,omitempty"`
	SequenceID     uint    `json:"sequence_id,omitempty"`
	StepsScheduled int     `json:"steps_scheduled"`
	StepsFailed    int     `json:"steps_failed"`
}

// Orchestrator runs the intake-to-scheduled-steps flow for every campaign.
type Orchestrator struct {
	Store     store.RecordStore
	Scheduler scheduler.Scheduler
	Profile   Profile
	Logger    *log.Logger

	// Now is swapped out in tests.
	Now func() time.Time
}

func NewOrchestrator(recordStore store.RecordStore, sched scheduler.Scheduler, profile Profile, logger *log.Logger) *Orchestrator {
	return &Orchestrator{
		Store:     recordStore,
		Scheduler: sched,
		Profile:   profile,
		Logger:    logger,
		Now:       time.Now,
	}
}

// Start classifies the lead, enforces at-most-once initiation, writes the
// tracking record and registers one deferred send per step. Steps are
// scheduled independently: a scheduler failure on step k does not stop steps
// k+1..N, it only lowers the reported scheduled count.
func (o *Orchestrator) Start(ctx context.Context, req StartRequest) (*Outcome, error) {
	if req.Campaign == nil {
		return nil, fmt.Errorf("%w: campaign is required", ErrInvalidIntake)
	}
	if err := checkmail.ValidateFormat(req.Email); err != nil {
		return nil, fmt.Errorf("%w: bad email %q: %v", ErrInvalidIntake, req.Email, err)
	}
	if req.Campaign.RequiresClassifier && req.Counts == nil {
		return nil, fmt.Errorf("%w: %s requires severity counts", ErrInvalidIntake, req.Campaign.ID)
	}

	now := o.Now()

	// Meetings booked too close need no reminders; a valid, expected case.
	if req.Campaign.MinimumLeadTime > 0 {
		if req.MeetingAt == nil {
			return nil, fmt.Errorf("%w: %s requires a meeting time", ErrInvalidIntake, req.Campaign.ID)
		}
		if req.MeetingAt.Sub(now) < req.Campaign.MinimumLeadTime {
			o.Logger.Printf("Skipping %s for %s: meeting at %s is under the %s lead time",
				req.Campaign.ID, req.Email, req.MeetingAt.Format(time.RFC3339), req.Campaign.MinimumLeadTime)
			return &Outcome{Status: OutcomeSkipped, Reason: SkipMeetingTooSoon}, nil
		}
	}

	segment := o.resolveSegment(req)

	contact, err := o.upsertContact(ctx, req, now)
	if err != nil {
		return nil, err
	}
	if contact.IsUnsubscribed {
		return &Outcome{Status: OutcomeSkipped, Reason: SkipUnsubscribed, Segment: segment}, nil
	}

	record, status, err := o.guard(ctx, req, contact, segment)
	if err != nil {
		return nil, err
	}
	if status == OutcomeSkipped {
		o.Logger.Printf("Skipping %s for %s: sequence already underway", req.Campaign.ID, req.Email)
		return &Outcome{Status: OutcomeSkipped, Reason: SkipAlreadyInSequence, Segment: Segment(record.Segment), SequenceID: record.ID}, nil
	}

	offsets, err := Offsets(o.Profile, req.Campaign.StepCount())
	if err != nil {
		return nil, err
	}

	vars := o.buildVariables(req, segment)

	scheduled, failed := 0, 0
	for i, step := range req.Campaign.Steps {
		params := models.StepParams{
			Campaign:     req.Campaign.ID,
			StepNumber:   i + 1,
			Email:        req.Email,
			TemplateName: step.Template,
			Variables:    vars,
		}
		if _, err := o.Scheduler.Schedule(ctx, scheduler.KindSequenceStep, params, now.Add(offsets[i])); err != nil {
			o.Logger.Printf("Failed to schedule %s step %d for %s: %v", req.Campaign.ID, i+1, req.Email, err)
			failed++
			continue
		}
		scheduled++
	}

	return &Outcome{
		Status:         status,
		Segment:        segment,
		SequenceID:     record.ID,
		StepsScheduled: scheduled,
		StepsFailed:    failed,
	}, nil
}

func (o *Orchestrator) resolveSegment(req StartRequest) Segment {
	if req.Campaign.RequiresClassifier {
		return Classify(*req.Counts)
	}
	if req.Segment != "" {
		return req.Segment
	}
	return req.Campaign.DefaultSegment
}

func (o *Orchestrator) upsertContact(ctx context.Context, req StartRequest, now time.Time) (*models.Contact, error) {
	contact := &models.Contact{
		Email:        req.Email,
		FirstName:    req.FirstName,
		BusinessName: req.BusinessName,
		Source:       req.Source,
		LastIntakeAt: &now,
	}
	if req.Counts != nil {
		contact.CriticalCount = req.Counts.Critical
		contact.HighCount = req.Counts.High
		contact.MediumCount = req.Counts.Medium
		contact.LowCount = req.Counts.Low
		contact.HealthScore = req.HealthScore
		contact.RevenueAtRisk = req.RevenueAtRisk
	}
	saved, err := o.Store.UpsertContact(ctx, contact, req.Counts != nil)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert contact %s: %w", req.Email, err)
	}
	return saved, nil
}

// guard implements the sequence-level idempotency decision: start fresh,
// resume a record with no sends yet, or skip a sequence that already went
// out. This check is advisory; the step sender's per-step re-check is what
// actually prevents duplicate sends.
func (o *Orchestrator) guard(ctx context.Context, req StartRequest, contact *models.Contact, segment Segment) (*models.SequenceRecord, string, error) {
	existing, err := o.Store.FindSequence(ctx, req.Email, req.Campaign.ID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to check for existing sequence: %w", err)
	}
	if existing != nil {
		if existing.AnyStepSent() {
			return existing, OutcomeSkipped, nil
		}
		// Retry-safe resume: reschedule everything, duplicates are
		// suppressed per step at send time.
		return o.resume(ctx, existing, segment)
	}

	record, err := o.Store.CreateSequence(ctx, contact.ID, req.Campaign.ID, string(segment), req.Campaign.StepCount())
	if err != nil {
		// A concurrent intake beat us to the insert; fall back to its record.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			existing, findErr := o.Store.FindSequence(ctx, req.Email, req.Campaign.ID)
			if findErr != nil || existing == nil {
				return nil, "", fmt.Errorf("failed to recover from duplicate sequence create: %w", err)
			}
			if existing.AnyStepSent() {
				return existing, OutcomeSkipped, nil
			}
			return o.resume(ctx, existing, segment)
		}
		return nil, "", fmt.Errorf("failed to create sequence record: %w", err)
	}
	return record, OutcomeStarted, nil
}

// resume keeps the tracking record honest: nothing has been sent yet, so if a
// repeat intake reclassified the lead, the record's segment must match the
// segment the scheduled emails will actually carry.
func (o *Orchestrator) resume(ctx context.Context, record *models.SequenceRecord, segment Segment) (*models.SequenceRecord, string, error) {
	if record.Segment != string(segment) {
		if err := o.Store.UpdateSequenceSegment(ctx, record.ID, string(segment)); err != nil {
			return nil, "", fmt.Errorf("failed to refresh segment on resumed sequence: %w", err)
		}
		record.Segment = string(segment)
	}
	return record, OutcomeResumed, nil
}

func (o *Orchestrator) buildVariables(req StartRequest, segment Segment) map[string]string {
	vars := map[string]string{
		"first_name":    req.FirstName,
		"business_name": req.BusinessName,
		"segment":       string(segment),
	}
	if req.Counts != nil {
		vars["critical_count"] = fmt.Sprintf("%d", req.Counts.Critical)
		vars["high_count"] = fmt.Sprintf("%d", req.Counts.High)
	}
	if req.MeetingAt != nil {
		vars["meeting_time"] = req.MeetingAt.Format("Monday, Jan 2 at 3:04 PM MST")
	}
	for k, v := range req.Variables {
		vars[k] = v
	}
	return vars
}
