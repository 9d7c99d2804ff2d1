package pipeline

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relay/internal/delivery"
	"relay/internal/event"
	"relay/internal/history"
	"relay/internal/logger"
	"relay/internal/matching"
	"relay/internal/rules"
)

type fakeRuleSource struct {
	rules []rules.Rule
	err   error
}

func (f *fakeRuleSource) GetActiveRules(_ context.Context, _ event.SourceType) ([]rules.Rule, error) {
	return f.rules, f.err
}

type fakeDeliverer struct {
	mu       sync.Mutex
	outcomes map[string]delivery.Outcome
	panicOn  map[string]bool
	calls    []string
}

func (f *fakeDeliverer) Deliver(_ context.Context, _ *event.InboundEvent, rule rules.Rule) delivery.Outcome {
	f.mu.Lock()
	f.calls = append(f.calls, rule.ID)
	f.mu.Unlock()

	if f.panicOn[rule.ID] {
		panic("delivery blew up")
	}
	if outcome, ok := f.outcomes[rule.ID]; ok {
		return outcome
	}
	return delivery.Outcome{Kind: delivery.OutcomeSuccess, StatusCode: http.StatusOK, Attempts: 1}
}

type fakeRecorder struct {
	mu          sync.Mutex
	received    []string
	unmatched   []string
	rejected    []string
	outcomes    map[string]delivery.Outcome
	completed   map[string]delivery.Outcome
	receivedErr error
	nextID      int
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{
		outcomes:  make(map[string]delivery.Outcome),
		completed: make(map[string]delivery.Outcome),
	}
}

func (f *fakeRecorder) RecordReceived(_ context.Context, _ *event.InboundEvent, rule *rules.Rule) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.receivedErr != nil {
		return "", f.receivedErr
	}
	f.nextID++
	id := rule.ID + "-history"
	f.received = append(f.received, rule.ID)
	return id, nil
}

func (f *fakeRecorder) RecordUnmatched(_ context.Context, _ *event.InboundEvent, reason string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unmatched = append(f.unmatched, reason)
	return "unmatched", nil
}

func (f *fakeRecorder) RecordRejected(_ context.Context, _ *event.InboundEvent, reason string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rejected = append(f.rejected, reason)
	return "rejected", nil
}

func (f *fakeRecorder) RecordOutcome(_ context.Context, historyID string, outcome delivery.Outcome) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes[historyID] = outcome
	return nil
}

func (f *fakeRecorder) RecordCompleted(_ context.Context, _ *event.InboundEvent, rule *rules.Rule, outcome delivery.Outcome) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed[rule.ID] = outcome
	return rule.ID + "-completed", nil
}

func activeRule(id, pattern string) rules.Rule {
	return rules.Rule{
		ID:         id,
		Name:       "rule-" + id,
		Pattern:    pattern,
		SourceType: event.SourceSMS,
		Endpoint:   "https://example.com/" + id,
		Method:     "POST",
		IsActive:   true,
	}
}

func newOrchestrator(source *fakeRuleSource, deliverer *fakeDeliverer, recorder *fakeRecorder) *Orchestrator {
	return NewOrchestrator(source, matching.New(logger.NopLogger()), deliverer, recorder, logger.NopLogger())
}

func inboundSMS(content string) *event.InboundEvent {
	return &event.InboundEvent{
		SourceType:   event.SourceSMS,
		Content:      content,
		SenderNumber: "+15550100",
	}
}

func TestProcessNoActiveRules(t *testing.T) {
	recorder := newFakeRecorder()
	o := newOrchestrator(&fakeRuleSource{}, &fakeDeliverer{}, recorder)

	outcomes, err := o.Process(context.Background(), inboundSMS("anything"))
	require.NoError(t, err)

	assert.Empty(t, outcomes)
	require.Len(t, recorder.unmatched, 1)
	assert.Equal(t, "no active rules configured", recorder.unmatched[0])
}

func TestProcessNoMatch(t *testing.T) {
	recorder := newFakeRecorder()
	source := &fakeRuleSource{rules: []rules.Rule{activeRule("a", "OTP")}}
	o := newOrchestrator(source, &fakeDeliverer{}, recorder)

	outcomes, err := o.Process(context.Background(), inboundSMS("hello there"))
	require.NoError(t, err)

	assert.Empty(t, outcomes)
	require.Len(t, recorder.unmatched, 1)
	assert.Equal(t, "content did not match any rule", recorder.unmatched[0])
}

func TestProcessDeliversPerMatchingRule(t *testing.T) {
	recorder := newFakeRecorder()
	deliverer := &fakeDeliverer{
		outcomes: map[string]delivery.Outcome{
			"a": {Kind: delivery.OutcomeSuccess, StatusCode: http.StatusOK, Attempts: 1},
			"b": {Kind: delivery.OutcomeHTTPError, StatusCode: http.StatusBadGateway, Message: "endpoint returned status 502", Attempts: 1},
		},
	}
	source := &fakeRuleSource{rules: []rules.Rule{activeRule("a", "OTP"), activeRule("b", "otp")}}
	o := newOrchestrator(source, deliverer, recorder)

	outcomes, err := o.Process(context.Background(), inboundSMS("Your OTP is 4821"))
	require.NoError(t, err)

	require.Len(t, outcomes, 2)
	assert.Equal(t, delivery.OutcomeSuccess, outcomes[0].Kind)
	assert.Equal(t, delivery.OutcomeHTTPError, outcomes[1].Kind)

	assert.ElementsMatch(t, []string{"a", "b"}, recorder.received)
	assert.Equal(t, delivery.OutcomeSuccess, recorder.outcomes["a-history"].Kind)
	assert.Equal(t, delivery.OutcomeHTTPError, recorder.outcomes["b-history"].Kind)
}

func TestProcessRulePanicDoesNotCancelSiblings(t *testing.T) {
	recorder := newFakeRecorder()
	deliverer := &fakeDeliverer{panicOn: map[string]bool{"a": true}}
	source := &fakeRuleSource{rules: []rules.Rule{activeRule("a", "OTP"), activeRule("b", "otp")}}
	o := newOrchestrator(source, deliverer, recorder)

	outcomes, err := o.Process(context.Background(), inboundSMS("Your OTP is 4821"))
	require.NoError(t, err)

	require.Len(t, outcomes, 2)
	assert.Equal(t, delivery.OutcomeNetworkError, outcomes[0].Kind)
	assert.Contains(t, outcomes[0].Message, "unexpected delivery failure")
	assert.Equal(t, delivery.OutcomeSuccess, outcomes[1].Kind)

	failed, ok := recorder.outcomes["a-history"]
	require.True(t, ok, "panicking rule still gets a terminal history update")
	assert.Equal(t, delivery.OutcomeNetworkError, failed.Kind)
}

func TestProcessReceivedWriteFailureKeepsRealOutcome(t *testing.T) {
	recorder := newFakeRecorder()
	recorder.receivedErr = errors.New("history db down")
	source := &fakeRuleSource{rules: []rules.Rule{activeRule("a", "OTP")}}
	o := newOrchestrator(source, &fakeDeliverer{}, recorder)

	outcomes, err := o.Process(context.Background(), inboundSMS("Your OTP is 4821"))
	require.NoError(t, err)

	require.Len(t, outcomes, 1)
	assert.Equal(t, delivery.OutcomeSuccess, outcomes[0].Kind)

	completed, ok := recorder.completed["a"]
	require.True(t, ok, "successful delivery still gets a terminal row")
	assert.Equal(t, delivery.OutcomeSuccess, completed.Kind)
	assert.Empty(t, recorder.rejected, "a succeeded delivery must not be written as a rejection")
}

func TestProcessRuleSourceError(t *testing.T) {
	recorder := newFakeRecorder()
	source := &fakeRuleSource{err: errors.New("db down")}
	o := newOrchestrator(source, &fakeDeliverer{}, recorder)

	_, err := o.Process(context.Background(), inboundSMS("anything"))
	require.Error(t, err)
	assert.Empty(t, recorder.unmatched)
}

func TestHandleInvalid(t *testing.T) {
	recorder := newFakeRecorder()
	o := newOrchestrator(&fakeRuleSource{}, &fakeDeliverer{}, recorder)

	err := o.HandleInvalid(context.Background(), &event.InboundEvent{SourceType: event.SourceSMS}, "invalid message")
	require.NoError(t, err)

	require.Len(t, recorder.rejected, 1)
	assert.Equal(t, "invalid message", recorder.rejected[0])
}

var _ history.Recorder = (*fakeRecorder)(nil)
