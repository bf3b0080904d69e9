package sequence

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nurtureflow/models"
	"nurtureflow/store"
)

func seedSequence(t *testing.T, fs *fakeStore, email, campaign string, stepCount int) *models.SequenceRecord {
	t.Helper()
	contact, err := fs.UpsertContact(context.Background(), &models.Contact{Email: email, FirstName: "Sam"}, false)
	require.NoError(t, err)
	record, err := fs.CreateSequence(context.Background(), contact.ID, campaign, string(SegmentPriority), stepCount)
	require.NoError(t, err)
	return record
}

func noShowParams(step int) models.StepParams {
	return models.StepParams{
		Campaign:     "no-show-recovery",
		StepNumber:   step,
		Email:        "sam@riveroofing.com",
		TemplateName: "no-show-recovery-step-1",
		Variables:    map[string]string{"first_name": "Sam"},
	}
}

func TestDeliverSendsAndMarks(t *testing.T) {
	fs := newFakeStore()
	fs.addTemplate("no-show-recovery-step-1", "We missed you, {{first_name}}", "<p>{{first_name}}, grab another time.</p>")
	record := seedSequence(t, fs, "sam@riveroofing.com", "no-show-recovery", 3)

	m := &fakeMailer{}
	sender := newTestSender(fs, m)

	result, err := sender.Deliver(context.Background(), noShowParams(1))
	require.NoError(t, err)

	assert.Equal(t, SendStatusSent, result.Status)
	assert.NotEmpty(t, result.DeliveryID)
	require.Len(t, m.sends, 1)
	assert.Equal(t, "sam@riveroofing.com", m.sends[0].to)
	assert.Equal(t, "We missed you, Sam", m.sends[0].subject)
	assert.True(t, record.StepSent(1))
	assert.Equal(t, testTime, record.StepSends[0].SentAt)
}

// The scheduler is at-least-once: a redelivered step must send nothing.
func TestDeliverTwiceSendsOnce(t *testing.T) {
	fs := newFakeStore()
	fs.addTemplate("no-show-recovery-step-1", "We missed you, {{first_name}}", "<p>Rebook?</p>")
	record := seedSequence(t, fs, "sam@riveroofing.com", "no-show-recovery", 3)

	m := &fakeMailer{}
	sender := newTestSender(fs, m)

	first, err := sender.Deliver(context.Background(), noShowParams(1))
	require.NoError(t, err)
	second, err := sender.Deliver(context.Background(), noShowParams(1))
	require.NoError(t, err)

	assert.Equal(t, SendStatusSent, first.Status)
	assert.Equal(t, SendStatusAlreadySent, second.Status)
	assert.Len(t, m.sends, 1, "redelivery must not produce a second email")
	assert.Len(t, record.StepSends, 1)
}

func TestDeliverFailsHardOnMissingTemplate(t *testing.T) {
	fs := newFakeStore()
	record := seedSequence(t, fs, "sam@riveroofing.com", "no-show-recovery", 3)

	m := &fakeMailer{}
	sender := newTestSender(fs, m)

	_, err := sender.Deliver(context.Background(), noShowParams(1))
	require.ErrorIs(t, err, store.ErrTemplateNotFound)
	assert.Empty(t, m.sends, "no fallback email may be sent")
	assert.False(t, record.StepSent(1))
}

func TestDeliverFailsHardOnEmptyTemplate(t *testing.T) {
	fs := newFakeStore()
	fs.addTemplate("no-show-recovery-step-1", "", "<p>body</p>")
	record := seedSequence(t, fs, "sam@riveroofing.com", "no-show-recovery", 3)

	sender := newTestSender(fs, &fakeMailer{})

	_, err := sender.Deliver(context.Background(), noShowParams(1))
	require.ErrorIs(t, err, ErrTemplateInvalid)
	assert.False(t, record.StepSent(1))
}

func TestDeliverFailsHardOnUnresolvedVariables(t *testing.T) {
	fs := newFakeStore()
	fs.addTemplate("no-show-recovery-step-1", "Hi {{first_name}}", "<p>{{calendar_link}}</p>")
	record := seedSequence(t, fs, "sam@riveroofing.com", "no-show-recovery", 3)

	m := &fakeMailer{}
	sender := newTestSender(fs, m)

	_, err := sender.Deliver(context.Background(), noShowParams(1))
	require.ErrorIs(t, err, ErrUnresolvedVariables)
	assert.Empty(t, m.sends, "literal placeholders must never reach a recipient")
	assert.False(t, record.StepSent(1))
}

func TestDeliverDoesNotMarkOnDeliveryFailure(t *testing.T) {
	fs := newFakeStore()
	fs.addTemplate("no-show-recovery-step-1", "Hi {{first_name}}", "<p>Rebook?</p>")
	record := seedSequence(t, fs, "sam@riveroofing.com", "no-show-recovery", 3)

	m := &fakeMailer{err: errors.New("smtp 421: try again later")}
	sender := newTestSender(fs, m)

	_, err := sender.Deliver(context.Background(), noShowParams(1))
	require.Error(t, err)
	assert.False(t, record.StepSent(1), "a failed send must stay retryable")

	// A scheduler re-trigger after the transport recovers completes the step.
	m.err = nil
	result, err := sender.Deliver(context.Background(), noShowParams(1))
	require.NoError(t, err)
	assert.Equal(t, SendStatusSent, result.Status)
}

func TestDeliverSuppressesUnsubscribedContact(t *testing.T) {
	fs := newFakeStore()
	fs.addTemplate("no-show-recovery-step-1", "Hi {{first_name}}", "<p>Rebook?</p>")
	record := seedSequence(t, fs, "sam@riveroofing.com", "no-show-recovery", 3)
	require.NoError(t, fs.MarkUnsubscribed(context.Background(), "sam@riveroofing.com", "", "", "", ""))

	m := &fakeMailer{}
	sender := newTestSender(fs, m)

	result, err := sender.Deliver(context.Background(), noShowParams(1))
	require.NoError(t, err)

	assert.Equal(t, SendStatusSuppressed, result.Status)
	assert.Empty(t, m.sends)
	assert.False(t, record.StepSent(1))
}

func TestDeliverRejectsUnknownCampaignAndStep(t *testing.T) {
	fs := newFakeStore()
	sender := newTestSender(fs, &fakeMailer{})

	p := noShowParams(1)
	p.Campaign = "spring-sale"
	_, err := sender.Deliver(context.Background(), p)
	assert.Error(t, err)

	p = noShowParams(9)
	_, err = sender.Deliver(context.Background(), p)
	assert.Error(t, err)
}

func TestDeliverFailsWithoutSequenceRecord(t *testing.T) {
	fs := newFakeStore()
	fs.addTemplate("no-show-recovery-step-1", "Hi {{first_name}}", "<p>Rebook?</p>")
	sender := newTestSender(fs, &fakeMailer{})

	_, err := sender.Deliver(context.Background(), noShowParams(1))
	assert.ErrorIs(t, err, store.ErrSequenceNotFound)
}
