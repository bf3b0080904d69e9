package sequence

import (
	"context"
	"fmt"
	"log"
	"time"

	"nurtureflow/mailer"
	"nurtureflow/models"
	"nurtureflow/store"
)

// Step send result statuses.
const (
	SendStatusSent        = "sent"
	SendStatusAlreadySent = "already_sent"
	SendStatusSuppressed  = "suppressed"
)

// SendResult summarizes one step execution.
type SendResult struct {
	Status     string
	DeliveryID string
}

// StepSender is the unit of work behind every deferred call. The scheduler
// may invoke it more than once for the same logical step, so it re-checks
// idempotency before doing anything else.
type StepSender struct {
	Store    store.RecordStore
	Mailer   mailer.Mailer
	Resolver *Resolver
	Logger   *log.Logger

	Now func() time.Time
}

func NewStepSender(recordStore store.RecordStore, m mailer.Mailer, resolver *Resolver, logger *log.Logger) *StepSender {
	return &StepSender{
		Store:    recordStore,
		Mailer:   m,
		Resolver: resolver,
		Logger:   logger,
		Now:      time.Now,
	}
}

// Deliver resolves, personalizes and sends one step, then marks it sent.
// Template problems and delivery failures are hard errors: the step stays
// unmarked so a corrected template or a scheduler re-trigger can complete it
// later. There is deliberately no fallback email.
func (s *StepSender) Deliver(ctx context.Context, p models.StepParams) (*SendResult, error) {
	campaign, ok := CampaignByID(p.Campaign)
	if !ok {
		return nil, fmt.Errorf("unknown campaign %q", p.Campaign)
	}
	if p.StepNumber < 1 || p.StepNumber > campaign.StepCount() {
		return nil, fmt.Errorf("step %d out of range for %s", p.StepNumber, p.Campaign)
	}

	record, err := s.Store.FindSequence(ctx, p.Email, p.Campaign)
	if err != nil {
		return nil, fmt.Errorf("failed to load sequence for %s/%s: %w", p.Email, p.Campaign, err)
	}
	if record == nil {
		return nil, fmt.Errorf("%w for %s/%s", store.ErrSequenceNotFound, p.Email, p.Campaign)
	}

	// Authoritative idempotency check. The scheduler is at-least-once; a
	// redelivered step must be a no-op.
	if record.StepSent(p.StepNumber) {
		s.Logger.Printf("Step %d of %s for %s already sent, skipping", p.StepNumber, p.Campaign, p.Email)
		return &SendResult{Status: SendStatusAlreadySent}, nil
	}

	contact, err := s.Store.FindContact(ctx, p.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to load contact %s: %w", p.Email, err)
	}
	if contact.IsUnsubscribed {
		s.Logger.Printf("Step %d of %s for %s suppressed: contact unsubscribed", p.StepNumber, p.Campaign, p.Email)
		return &SendResult{Status: SendStatusSuppressed}, nil
	}

	step := campaign.Steps[p.StepNumber-1]
	templateName := p.TemplateName
	if templateName == "" {
		templateName = step.Template
	}

	subject, body, err := s.Resolver.Resolve(ctx, templateName, p.Variables, step.OptionalVars)
	if err != nil {
		return nil, fmt.Errorf("step %d of %s for %s: %w", p.StepNumber, p.Campaign, p.Email, err)
	}

	deliveryID, err := s.Mailer.Send(p.Email, subject, body)
	if err != nil {
		return nil, fmt.Errorf("step %d of %s for %s: %w", p.StepNumber, p.Campaign, p.Email, err)
	}

	marked, err := s.Store.MarkStepSent(ctx, record.ID, p.StepNumber, s.Now(), deliveryID)
	if err != nil {
		// The email went out but the flag did not stick. Surface loudly:
		// a redelivery would now duplicate the send.
		return nil, fmt.Errorf("step %d of %s for %s sent (delivery %s) but not marked: %w",
			p.StepNumber, p.Campaign, p.Email, deliveryID, err)
	}
	if !marked {
		// A concurrent execution won the conditional insert after our
		// read. The duplicate already happened; record it for operators.
		s.Logger.Printf("WARNING: duplicate send of step %d of %s for %s (delivery %s)",
			p.StepNumber, p.Campaign, p.Email, deliveryID)
	}

	s.Logger.Printf("Sent step %d of %s to %s (delivery %s)", p.StepNumber, p.Campaign, p.Email, deliveryID)
	return &SendResult{Status: SendStatusSent, DeliveryID: deliveryID}, nil
}
