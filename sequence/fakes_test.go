package sequence

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"gorm.io/gorm"

	"nurtureflow/models"
	"nurtureflow/store"
)

// fakeStore is an in-memory RecordStore with the same contract as the GORM
// implementation, including the duplicate-key error on concurrent creates
// and the conditional mark-sent.
type fakeStore struct {
	mu sync.Mutex

	contacts  map[string]*models.Contact
	sequences map[string]*models.SequenceRecord
	templates map[string]*models.EmailTemplate

	nextID              uint
	createSequenceCalls int
	markStepSentErr     error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		contacts:  make(map[string]*models.Contact),
		sequences: make(map[string]*models.SequenceRecord),
		templates: make(map[string]*models.EmailTemplate),
	}
}

func (f *fakeStore) seqKey(contactID uint, campaign string) string {
	return fmt.Sprintf("%d|%s", contactID, campaign)
}

func (f *fakeStore) id() uint {
	f.nextID++
	return f.nextID
}

func (f *fakeStore) UpsertContact(_ context.Context, contact *models.Contact, refreshAssessment bool) (*models.Contact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if existing, ok := f.contacts[contact.Email]; ok {
		existing.FirstName = contact.FirstName
		existing.BusinessName = contact.BusinessName
		existing.LastIntakeAt = contact.LastIntakeAt
		if refreshAssessment {
			existing.CriticalCount = contact.CriticalCount
			existing.HighCount = contact.HighCount
			existing.MediumCount = contact.MediumCount
			existing.LowCount = contact.LowCount
			existing.HealthScore = contact.HealthScore
			existing.RevenueAtRisk = contact.RevenueAtRisk
		}
		return existing, nil
	}

	contact.ID = f.id()
	f.contacts[contact.Email] = contact
	return contact, nil
}

func (f *fakeStore) FindContact(_ context.Context, email string) (*models.Contact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	contact, ok := f.contacts[email]
	if !ok {
		return nil, store.ErrContactNotFound
	}
	return contact, nil
}

func (f *fakeStore) FindSequence(_ context.Context, email, campaign string) (*models.SequenceRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	contact, ok := f.contacts[email]
	if !ok {
		return nil, nil
	}
	record, ok := f.sequences[f.seqKey(contact.ID, campaign)]
	if !ok {
		return nil, nil
	}
	return record, nil
}

func (f *fakeStore) CreateSequence(_ context.Context, contactID uint, campaign, segment string, stepCount int) (*models.SequenceRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.createSequenceCalls++
	key := f.seqKey(contactID, campaign)
	if _, ok := f.sequences[key]; ok {
		return nil, gorm.ErrDuplicatedKey
	}

	record := &models.SequenceRecord{
		ContactID: contactID,
		Campaign:  campaign,
		Segment:   segment,
		StepCount: stepCount,
	}
	record.ID = f.id()
	f.sequences[key] = record
	return record, nil
}

func (f *fakeStore) UpdateSequenceSegment(_ context.Context, sequenceID uint, segment string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, record := range f.sequences {
		if record.ID == sequenceID {
			record.Segment = segment
			return nil
		}
	}
	return fmt.Errorf("sequence %d not found", sequenceID)
}

func (f *fakeStore) MarkStepSent(_ context.Context, sequenceID uint, step int, sentAt time.Time, deliveryID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.markStepSentErr != nil {
		return false, f.markStepSentErr
	}

	for _, record := range f.sequences {
		if record.ID != sequenceID {
			continue
		}
		if record.StepSent(step) {
			return false, nil
		}
		record.StepSends = append(record.StepSends, models.SequenceStepSend{
			SequenceRecordID: sequenceID,
			StepNumber:       step,
			SentAt:           sentAt,
			DeliveryID:       deliveryID,
		})
		return true, nil
	}
	return false, fmt.Errorf("sequence %d not found", sequenceID)
}

func (f *fakeStore) GetTemplate(_ context.Context, name string) (*models.EmailTemplate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	tmpl, ok := f.templates[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrTemplateNotFound, name)
	}
	return tmpl, nil
}

func (f *fakeStore) MarkUnsubscribed(_ context.Context, email, _, _, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if contact, ok := f.contacts[email]; ok {
		contact.IsUnsubscribed = true
	}
	return nil
}

func (f *fakeStore) addTemplate(name, subject, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.templates[name] = &models.EmailTemplate{Name: name, Subject: subject, HTMLContent: body}
}

// fakeScheduler records every deferred call and can be told to reject
// specific steps.
type fakeScheduler struct {
	mu        sync.Mutex
	calls     []scheduledCall
	failSteps map[int]bool
}

type scheduledCall struct {
	kind   string
	params models.StepParams
	fireAt time.Time
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{failSteps: make(map[int]bool)}
}

func (f *fakeScheduler) Schedule(_ context.Context, kind string, params models.StepParams, fireAt time.Time) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failSteps[params.StepNumber] {
		return "", fmt.Errorf("scheduler rejected step %d", params.StepNumber)
	}
	f.calls = append(f.calls, scheduledCall{kind: kind, params: params, fireAt: fireAt})
	return fmt.Sprintf("job-%d", len(f.calls)), nil
}

func (f *fakeScheduler) CancelPending(_ context.Context, _ string) (int64, error) {
	return 0, nil
}

// fakeMailer records sends and can fail on demand.
type fakeMailer struct {
	mu    sync.Mutex
	sends []sentEmail
	err   error
}

type sentEmail struct {
	to      string
	subject string
	body    string
}

func (f *fakeMailer) Send(to, subject, htmlBody string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return "", f.err
	}
	f.sends = append(f.sends, sentEmail{to: to, subject: subject, body: htmlBody})
	return fmt.Sprintf("delivery-%d", len(f.sends)), nil
}

var testTime = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func newTestOrchestrator(fs *fakeStore, sched *fakeScheduler) *Orchestrator {
	o := NewOrchestrator(fs, sched, ProfileAccelerated, log.New(io.Discard, "", 0))
	o.Now = func() time.Time { return testTime }
	return o
}

func newTestSender(fs *fakeStore, m *fakeMailer) *StepSender {
	s := NewStepSender(fs, m, NewResolver(fs), log.New(io.Discard, "", 0))
	s.Now = func() time.Time { return testTime }
	return s
}
