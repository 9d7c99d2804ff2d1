package delivery

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relay/internal/event"
	"relay/internal/logger"
	"relay/internal/rules"
	"relay/pkg/retry"
)

func testPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts:     3,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		Multiplier:      2.0,
	}
}

func newTestEngine() *Engine {
	return NewEngine(2*time.Second, testPolicy(), logger.NopLogger())
}

func testEvent() *event.InboundEvent {
	return &event.InboundEvent{
		SourceType:   event.SourceSMS,
		Content:      "Your OTP is 4821",
		SenderNumber: "+15550100",
		Timestamp:    time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC),
	}
}

func testRule(endpoint, method string) rules.Rule {
	return rules.Rule{
		ID:         "rule-1",
		Name:       "otp",
		Pattern:    "OTP",
		SourceType: event.SourceSMS,
		Endpoint:   endpoint,
		Method:     method,
		IsActive:   true,
	}
}

func TestDeliverSuccess(t *testing.T) {
	var received struct {
		body    []byte
		headers http.Header
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received.body, _ = io.ReadAll(r.Body)
		received.headers = r.Header.Clone()
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	outcome := newTestEngine().Deliver(context.Background(), testEvent(), testRule(server.URL, "POST"))

	assert.Equal(t, OutcomeSuccess, outcome.Kind)
	assert.Equal(t, http.StatusOK, outcome.StatusCode)
	assert.Equal(t, `{"ok":true}`, outcome.ResponseBody)
	assert.Equal(t, 1, outcome.Attempts)

	assert.Equal(t, "application/json", received.headers.Get("Content-Type"))
	assert.Equal(t, "relay/1.0", received.headers.Get("User-Agent"))
	assert.Equal(t, "SMS", received.headers.Get("X-Source-Type"))

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(received.body, &payload))
	assert.Equal(t, "Your OTP is 4821", payload["messageBody"])
	assert.NotContains(t, string(received.body), "null")
}

func TestDeliverHTTPErrorNotRetried(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer server.Close()

	outcome := newTestEngine().Deliver(context.Background(), testEvent(), testRule(server.URL, "POST"))

	assert.Equal(t, OutcomeHTTPError, outcome.Kind)
	assert.Equal(t, http.StatusInternalServerError, outcome.StatusCode)
	assert.Equal(t, "boom", outcome.ResponseBody)
	assert.Contains(t, outcome.Message, "500")
	assert.Equal(t, 1, outcome.Attempts)
	assert.Equal(t, int32(1), calls.Load(), "HTTP error responses are terminal, not retried")
}

func TestDeliverClientErrorNotRetried(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	outcome := newTestEngine().Deliver(context.Background(), testEvent(), testRule(server.URL, "POST"))

	assert.Equal(t, OutcomeHTTPError, outcome.Kind)
	assert.Equal(t, http.StatusUnauthorized, outcome.StatusCode)
	assert.Equal(t, 1, outcome.Attempts)
}

func TestDeliverNetworkErrorRetriesToExhaustion(t *testing.T) {
	// A closed listener port refuses connections on every attempt.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	endpoint := server.URL
	server.Close()

	outcome := newTestEngine().Deliver(context.Background(), testEvent(), testRule(endpoint, "POST"))

	assert.Equal(t, OutcomeNetworkError, outcome.Kind)
	assert.Equal(t, 3, outcome.Attempts)
	assert.Contains(t, outcome.Message, "delivery failed after 3 attempts")
}

func TestDeliverNetworkErrorThenSuccess(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			hj, ok := w.(http.Hijacker)
			require.True(t, ok)
			conn, _, err := hj.Hijack()
			require.NoError(t, err)
			conn.Close()
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	outcome := newTestEngine().Deliver(context.Background(), testEvent(), testRule(server.URL, "POST"))

	assert.Equal(t, OutcomeSuccess, outcome.Kind)
	assert.Equal(t, 2, outcome.Attempts)
}

func TestDeliverGETSendsQueryParameters(t *testing.T) {
	var received *http.Request

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received = r.Clone(context.Background())
		body, _ := io.ReadAll(r.Body)
		assert.Empty(t, body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	outcome := newTestEngine().Deliver(context.Background(), testEvent(), testRule(server.URL+"?static=1", "GET"))

	assert.Equal(t, OutcomeSuccess, outcome.Kind)
	require.NotNil(t, received)

	query := received.URL.Query()
	assert.Equal(t, "SMS", query.Get("sourceType"))
	assert.Equal(t, "Your OTP is 4821", query.Get("messageBody"))
	assert.Equal(t, "+15550100", query.Get("senderNumber"))
	assert.Equal(t, "1", query.Get("static"), "existing endpoint query parameters are preserved")
}

func TestDeliverUnknownMethodFallsBackToPOST(t *testing.T) {
	var method string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	outcome := newTestEngine().Deliver(context.Background(), testEvent(), testRule(server.URL, "TRACE"))

	assert.Equal(t, OutcomeSuccess, outcome.Kind)
	assert.Equal(t, http.MethodPost, method)
}

func TestDeliverRuleHeadersNotOverridden(t *testing.T) {
	var received http.Header

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received = r.Header.Clone()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	rule := testRule(server.URL, "POST")
	rule.Headers = map[string]string{
		"Content-Type":  "text/plain",
		"Authorization": "Bearer secret",
	}

	outcome := newTestEngine().Deliver(context.Background(), testEvent(), rule)

	assert.Equal(t, OutcomeSuccess, outcome.Kind)
	assert.Equal(t, "text/plain", received.Get("Content-Type"))
	assert.Equal(t, "Bearer secret", received.Get("Authorization"))
	assert.Equal(t, "relay/1.0", received.Get("User-Agent"))
}
