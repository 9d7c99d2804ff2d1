package history

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relay/internal/delivery"
	"relay/internal/event"
	"relay/internal/logger"
	"relay/internal/rules"
)

type fakeRepository struct {
	Repository
	created []*Record
	updates map[string]OutcomeUpdate
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{updates: make(map[string]OutcomeUpdate)}
}

func (f *fakeRepository) Create(_ context.Context, record *Record) error {
	if record.ID == "" {
		record.ID = "generated"
	}
	f.created = append(f.created, record)
	return nil
}

func (f *fakeRepository) UpdateOutcome(_ context.Context, id string, update OutcomeUpdate) error {
	f.updates[id] = update
	return nil
}

func smsEvent() *event.InboundEvent {
	return &event.InboundEvent{
		SourceType:   event.SourceSMS,
		Content:      "Your OTP is 4821",
		SenderNumber: "+15550100",
		Timestamp:    time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC),
	}
}

func matchedRule() *rules.Rule {
	return &rules.Rule{
		ID:         "rule-1",
		Name:       "otp",
		Pattern:    "OTP",
		SourceType: event.SourceSMS,
		Endpoint:   "https://example.com/hook",
		Method:     "POST",
		Headers:    map[string]string{"Authorization": "Bearer token"},
	}
}

func TestRecordReceivedMatched(t *testing.T) {
	repo := newFakeRepository()
	rec := NewRecorder(repo, logger.NopLogger())

	id, err := rec.RecordReceived(context.Background(), smsEvent(), matchedRule())
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	require.Len(t, repo.created, 1)
	record := repo.created[0]

	assert.Equal(t, StatusReceived, record.Status)
	assert.True(t, record.MatchedRule)
	require.NotNil(t, record.RuleID)
	assert.Equal(t, "rule-1", *record.RuleID)
	assert.Equal(t, "https://example.com/hook", record.Endpoint)
	assert.Equal(t, "POST", record.Method)
	assert.Equal(t, "Bearer token", record.RequestHeaders["Authorization"])
	assert.Equal(t, "relay/1.0", record.RequestHeaders["User-Agent"])
	assert.Contains(t, record.RequestBody, "Your OTP is 4821")
	assert.Equal(t, "Your OTP is 4821", record.MessageBody)
	assert.Equal(t, "+15550100", record.SenderNumber)
}

func TestRecordReceivedWithoutRule(t *testing.T) {
	repo := newFakeRepository()
	rec := NewRecorder(repo, logger.NopLogger())

	_, err := rec.RecordReceived(context.Background(), smsEvent(), nil)
	require.NoError(t, err)

	require.Len(t, repo.created, 1)
	record := repo.created[0]

	assert.Equal(t, StatusNoRuleMatched, record.Status)
	assert.False(t, record.MatchedRule)
	assert.Nil(t, record.RuleID)
	assert.Empty(t, record.Endpoint)
	assert.Empty(t, record.RequestBody)
}

func TestRecordUnmatchedCarriesReason(t *testing.T) {
	repo := newFakeRepository()
	rec := NewRecorder(repo, logger.NopLogger())

	_, err := rec.RecordUnmatched(context.Background(), smsEvent(), "content did not match any rule")
	require.NoError(t, err)

	require.Len(t, repo.created, 1)
	assert.Equal(t, StatusNoRuleMatched, repo.created[0].Status)
	assert.Equal(t, "content did not match any rule", repo.created[0].ErrorMessage)
}

func TestRecordRejected(t *testing.T) {
	repo := newFakeRepository()
	rec := NewRecorder(repo, logger.NopLogger())

	_, err := rec.RecordRejected(context.Background(), &event.InboundEvent{SourceType: event.SourceSMS}, "invalid message")
	require.NoError(t, err)

	require.Len(t, repo.created, 1)
	assert.Equal(t, StatusFailed, repo.created[0].Status)
	assert.Equal(t, "invalid message", repo.created[0].ErrorMessage)
	assert.False(t, repo.created[0].Timestamp.IsZero())
}

func TestRecordOutcomeSuccess(t *testing.T) {
	repo := newFakeRepository()
	rec := NewRecorder(repo, logger.NopLogger())

	outcome := delivery.Outcome{
		Kind:         delivery.OutcomeSuccess,
		StatusCode:   http.StatusOK,
		ResponseBody: "ok",
		Attempts:     1,
	}

	require.NoError(t, rec.RecordOutcome(context.Background(), "h1", outcome))

	update, ok := repo.updates["h1"]
	require.True(t, ok)
	assert.Equal(t, StatusSuccess, update.Status)
	require.NotNil(t, update.ResponseCode)
	assert.Equal(t, http.StatusOK, *update.ResponseCode)
	assert.Equal(t, "ok", update.ResponseBody)
	assert.False(t, update.ForwardedAt.IsZero())
}

func TestRecordCompletedSuccess(t *testing.T) {
	repo := newFakeRepository()
	rec := NewRecorder(repo, logger.NopLogger())

	outcome := delivery.Outcome{
		Kind:         delivery.OutcomeSuccess,
		StatusCode:   http.StatusOK,
		ResponseBody: "ok",
		Attempts:     1,
	}

	id, err := rec.RecordCompleted(context.Background(), smsEvent(), matchedRule(), outcome)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	require.Len(t, repo.created, 1)
	record := repo.created[0]

	assert.Equal(t, StatusSuccess, record.Status)
	assert.True(t, record.MatchedRule)
	assert.Equal(t, "https://example.com/hook", record.Endpoint)
	assert.Contains(t, record.RequestBody, "Your OTP is 4821")
	require.NotNil(t, record.ResponseCode)
	assert.Equal(t, http.StatusOK, *record.ResponseCode)
	assert.Equal(t, "ok", record.ResponseBody)
	require.NotNil(t, record.ForwardedAt)
	assert.Empty(t, repo.updates, "completed rows are single writes, not updates")
}

func TestRecordCompletedFailure(t *testing.T) {
	repo := newFakeRepository()
	rec := NewRecorder(repo, logger.NopLogger())

	outcome := delivery.Outcome{
		Kind:     delivery.OutcomeNetworkError,
		Message:  "delivery failed after 3 attempts: connection refused",
		Attempts: 3,
	}

	_, err := rec.RecordCompleted(context.Background(), smsEvent(), matchedRule(), outcome)
	require.NoError(t, err)

	require.Len(t, repo.created, 1)
	record := repo.created[0]

	assert.Equal(t, StatusFailed, record.Status)
	assert.Nil(t, record.ResponseCode)
	assert.Contains(t, record.ErrorMessage, "3 attempts")
}

func TestRecordOutcomeNetworkError(t *testing.T) {
	repo := newFakeRepository()
	rec := NewRecorder(repo, logger.NopLogger())

	outcome := delivery.Outcome{
		Kind:     delivery.OutcomeNetworkError,
		Message:  "delivery failed after 3 attempts: connection refused",
		Attempts: 3,
	}

	require.NoError(t, rec.RecordOutcome(context.Background(), "h2", outcome))

	update := repo.updates["h2"]
	assert.Equal(t, StatusFailed, update.Status)
	assert.Nil(t, update.ResponseCode)
	assert.Contains(t, update.ErrorMessage, "3 attempts")
}
