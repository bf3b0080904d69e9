package sequence

import (
	"fmt"
	"time"
)

// Step is one position in a campaign: a template plus, optionally, variables
// that may legitimately be absent at send time.
type Step struct {
	Template     string
	OptionalVars []string
}

// Campaign defines one sequence type. All campaigns run through the same
// orchestrator and step sender; only the trigger payload, step list, default
// segment and preconditions differ.
type Campaign struct {
	ID string

	Steps []Step

	// RequiresClassifier marks the primary sequence, which derives its
	// segment from assessment severity counts. Secondary sequences carry
	// their segment in the trigger.
	RequiresClassifier bool
	DefaultSegment     Segment

	// MinimumLeadTime, when non-zero, requires the referenced meeting to be
	// at least this far in the future, otherwise scheduling is skipped.
	MinimumLeadTime time.Duration
}

func (c *Campaign) StepCount() int {
	return len(c.Steps)
}

// numberedSteps builds the conventional template name list for a campaign:
// "<campaign>-step-<n>".
func numberedSteps(campaignID string, n int, optional ...string) []Step {
	steps := make([]Step, n)
	for i := range steps {
		steps[i] = Step{
			Template:     fmt.Sprintf("%s-step-%d", campaignID, i+1),
			OptionalVars: optional,
		}
	}
	return steps
}

var (
	// AssessmentNurture is the primary sequence: seven emails after a
	// completed business-health assessment, segmented by severity counts.
	AssessmentNurture = Campaign{
		ID:                 "assessment-nurture",
		Steps:              numberedSteps("assessment-nurture", 7, "revenue_at_risk"),
		RequiresClassifier: true,
	}

	// NoShowRecovery follows up a missed call.
	NoShowRecovery = Campaign{
		ID:             "no-show-recovery",
		Steps:          numberedSteps("no-show-recovery", 3),
		DefaultSegment: SegmentPriority,
	}

	// DecisionFollowUp nudges a lead who finished a call undecided.
	DecisionFollowUp = Campaign{
		ID:             "decision-follow-up",
		Steps:          numberedSteps("decision-follow-up", 3),
		DefaultSegment: SegmentPriority,
	}

	// ClientOnboarding welcomes a new paying client, triggered by the
	// payment webhook.
	ClientOnboarding = Campaign{
		ID:             "client-onboarding",
		Steps:          numberedSteps("client-onboarding", 3),
		DefaultSegment: SegmentNurture,
	}

	// CallReminder sends reminders ahead of a booked call. Meetings less
	// than two hours out are skipped: there is no point reminding someone
	// about a call that is effectively already happening.
	CallReminder = Campaign{
		ID:              "call-reminder",
		Steps:           numberedSteps("call-reminder", 3, "meeting_location"),
		DefaultSegment:  SegmentPriority,
		MinimumLeadTime: 2 * time.Hour,
	}
)

var campaigns = map[string]*Campaign{
	AssessmentNurture.ID: &AssessmentNurture,
	NoShowRecovery.ID:    &NoShowRecovery,
	DecisionFollowUp.ID:  &DecisionFollowUp,
	ClientOnboarding.ID:  &ClientOnboarding,
	CallReminder.ID:      &CallReminder,
}

// CampaignByID resolves a campaign identifier, e.g. from a persisted job.
func CampaignByID(id string) (*Campaign, bool) {
	c, ok := campaigns[id]
	return c, ok
}
