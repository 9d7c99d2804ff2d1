package ingest

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relay/internal/broker"
	"relay/internal/delivery"
	"relay/internal/event"
	"relay/internal/logger"
	"relay/internal/matching"
	"relay/internal/pipeline"
	"relay/internal/rules"
)

type fakeRuleSource struct {
	rules []rules.Rule
}

func (f *fakeRuleSource) GetActiveRules(context.Context, event.SourceType) ([]rules.Rule, error) {
	return f.rules, nil
}

type fakeDeliverer struct {
	outcome delivery.Outcome
}

func (f *fakeDeliverer) Deliver(context.Context, *event.InboundEvent, rules.Rule) delivery.Outcome {
	return f.outcome
}

type fakeRecorder struct {
	mu       sync.Mutex
	rejected []string
	received int
	outcomes int
}

func (f *fakeRecorder) RecordReceived(context.Context, *event.InboundEvent, *rules.Rule) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.received++
	return "h1", nil
}

func (f *fakeRecorder) RecordUnmatched(context.Context, *event.InboundEvent, string) (string, error) {
	return "h2", nil
}

func (f *fakeRecorder) RecordRejected(_ context.Context, _ *event.InboundEvent, reason string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rejected = append(f.rejected, reason)
	return "h3", nil
}

func (f *fakeRecorder) RecordOutcome(context.Context, string, delivery.Outcome) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes++
	return nil
}

func (f *fakeRecorder) RecordCompleted(context.Context, *event.InboundEvent, *rules.Rule, delivery.Outcome) (string, error) {
	return "h4", nil
}

type denyGuard struct{}

func (denyGuard) Allow(context.Context, *event.InboundEvent) bool { return false }

func newTestProcessor(source *fakeRuleSource, deliverer *fakeDeliverer, recorder *fakeRecorder) *Processor {
	orchestrator := pipeline.NewOrchestrator(source, matching.New(logger.NopLogger()), deliverer, recorder, logger.NopLogger())
	return NewProcessor(nil, orchestrator, logger.NopLogger())
}

func activeSMSRule(pattern string) rules.Rule {
	return rules.Rule{
		ID:         "r1",
		Name:       "rule",
		Pattern:    pattern,
		SourceType: event.SourceSMS,
		Endpoint:   "https://example.com/hook",
		Method:     "POST",
		IsActive:   true,
	}
}

func TestProcessSMSMatched(t *testing.T) {
	recorder := &fakeRecorder{}
	p := newTestProcessor(
		&fakeRuleSource{rules: []rules.Rule{activeSMSRule("OTP")}},
		&fakeDeliverer{outcome: delivery.Outcome{Kind: delivery.OutcomeSuccess, StatusCode: http.StatusOK, Attempts: 1}},
		recorder,
	)

	summary, err := p.ProcessSMS(context.Background(), "Your OTP is 4821", "+15550100", time.Now())
	require.NoError(t, err)

	assert.True(t, summary.Accepted)
	assert.Equal(t, 1, summary.Matched)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, 1, recorder.received)
	assert.Equal(t, 1, recorder.outcomes)
}

func TestProcessSMSInvalid(t *testing.T) {
	recorder := &fakeRecorder{}
	p := newTestProcessor(&fakeRuleSource{}, &fakeDeliverer{}, recorder)

	summary, err := p.ProcessSMS(context.Background(), "", "+15550100", time.Now())
	require.NoError(t, err)

	assert.False(t, summary.Accepted)
	assert.Equal(t, "invalid message", summary.Reason)
	require.Len(t, recorder.rejected, 1)
	assert.Equal(t, "invalid message", recorder.rejected[0])
}

func TestProcessNotificationInvalidWhenTitleAndTextBlank(t *testing.T) {
	recorder := &fakeRecorder{}
	p := newTestProcessor(&fakeRuleSource{}, &fakeDeliverer{}, recorder)

	summary, err := p.ProcessNotification(context.Background(), "com.example", "Example", "", "   ", time.Now(), nil)
	require.NoError(t, err)

	assert.False(t, summary.Accepted)
	require.Len(t, recorder.rejected, 1)
}

func TestProcessDuplicateDropped(t *testing.T) {
	recorder := &fakeRecorder{}
	orchestrator := pipeline.NewOrchestrator(
		&fakeRuleSource{rules: []rules.Rule{activeSMSRule("OTP")}},
		matching.New(logger.NopLogger()),
		&fakeDeliverer{},
		recorder,
		logger.NopLogger(),
	)
	p := NewProcessor(denyGuard{}, orchestrator, logger.NopLogger())

	summary, err := p.ProcessSMS(context.Background(), "Your OTP is 4821", "+15550100", time.Now())
	require.NoError(t, err)

	assert.True(t, summary.Duplicate)
	assert.Equal(t, 0, recorder.received, "duplicates never reach the pipeline")
}

func TestProcessRaw(t *testing.T) {
	recorder := &fakeRecorder{}
	p := newTestProcessor(
		&fakeRuleSource{rules: []rules.Rule{activeSMSRule("OTP")}},
		&fakeDeliverer{outcome: delivery.Outcome{Kind: delivery.OutcomeSuccess, StatusCode: http.StatusOK}},
		recorder,
	)

	t.Run("sms", func(t *testing.T) {
		summary, err := p.ProcessRaw(context.Background(), broker.RawEvent{
			Type:      broker.RawTypeSMS,
			Body:      "Your OTP is 4821",
			Sender:    "+15550100",
			Timestamp: time.Now(),
		})
		require.NoError(t, err)
		assert.Equal(t, 1, summary.Matched)
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := p.ProcessRaw(context.Background(), broker.RawEvent{Type: "carrier-pigeon"})
		require.Error(t, err)
	})
}
