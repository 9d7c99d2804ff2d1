package delivery

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"relay/internal/constants"
	"relay/internal/event"
	"relay/internal/logger"
	"relay/internal/rules"
	"relay/pkg/metrics"
	"relay/pkg/retry"
)

const maxResponseBodyBytes = 64 * 1024

// Deliverer performs one delivery of an event under one rule and reports the
// terminal outcome. Implementations must be safe for concurrent use: the
// orchestrator calls Deliver from one goroutine per matching rule.
type Deliverer interface {
	Deliver(ctx context.Context, ev *event.InboundEvent, rule rules.Rule) Outcome
}

type Engine struct {
	client *http.Client
	policy retry.Policy
	logger logger.Logger
}

func NewEngine(timeout time.Duration, policy retry.Policy, log logger.Logger) *Engine {
	if timeout <= 0 {
		timeout = constants.DefaultHTTPTimeout
	}
	if policy.MaxAttempts <= 0 {
		policy = retry.DefaultPolicy()
	}
	return &Engine{
		client: &http.Client{Timeout: timeout},
		policy: policy,
		logger: log,
	}
}

// Deliver builds the request once, then attempts it under the retry policy.
// Only transport-level failures retry; any HTTP response, success or not, is
// terminal on the attempt that received it.
func (e *Engine) Deliver(ctx context.Context, ev *event.InboundEvent, rule rules.Rule) Outcome {
	start := time.Now()

	outcome := e.deliver(ctx, ev, rule)

	metrics.IncDelivery(normalizeMethod(rule.Method), outcome.Kind.String())
	metrics.ObserveDeliveryDuration(time.Since(start), outcome.Kind.String())

	if outcome.Succeeded() {
		e.logger.InfowCtx(ctx, "Delivery succeeded",
			"rule_id", rule.ID,
			"endpoint", rule.Endpoint,
			"status_code", outcome.StatusCode,
			"attempts", outcome.Attempts,
		)
	} else {
		e.logger.WarnwCtx(ctx, "Delivery failed",
			"rule_id", rule.ID,
			"endpoint", rule.Endpoint,
			"outcome", outcome.Kind.String(),
			"message", outcome.Message,
			"attempts", outcome.Attempts,
		)
	}

	return outcome
}

func (e *Engine) deliver(ctx context.Context, ev *event.InboundEvent, rule rules.Rule) Outcome {
	payload := BuildPayload(ev)
	headers := MergeHeaders(rule.Headers, ev.SourceType)
	method := normalizeMethod(rule.Method)

	requestURL := rule.Endpoint
	var body []byte

	if method == http.MethodGet {
		target, err := appendQuery(rule.Endpoint, payload.QueryValues())
		if err != nil {
			return Outcome{Kind: OutcomeNetworkError, Message: fmt.Sprintf("invalid endpoint: %v", err)}
		}
		requestURL = target
	} else {
		data, err := payload.JSON()
		if err != nil {
			return Outcome{Kind: OutcomeNetworkError, Message: fmt.Sprintf("failed to serialize payload: %v", err)}
		}
		body = data
	}

	endpointHost := hostLabel(rule.Endpoint)

	var (
		attempts int
		terminal Outcome
		haveTerm bool
		lastErr  error
	)

	onRetry := func(attempt int, err error, nextDelay time.Duration) {
		metrics.IncRetryAttempt(endpointHost)
		e.logger.WarnwCtx(ctx, "Delivery attempt failed, retrying",
			"rule_id", rule.ID,
			"endpoint", rule.Endpoint,
			"attempt", attempt,
			"next_delay", nextDelay,
			"error", err,
		)
	}

	err := retry.RetryWithCallback(ctx, e.policy, func() error {
		attempts++

		code, respBody, err := e.attempt(ctx, method, requestURL, headers, body)
		if err != nil {
			metrics.IncDeliveryAttempt("network_error")
			lastErr = err
			return err
		}

		if code >= constants.HTTPStatusOKMin && code < constants.HTTPStatusOKMax {
			metrics.IncDeliveryAttempt("success")
			terminal = successOutcome(code, respBody, attempts)
			haveTerm = true
			return nil
		}

		metrics.IncDeliveryAttempt("http_error")
		terminal = httpErrorOutcome(code, respBody, attempts)
		haveTerm = true
		return retry.NewFatalError(fmt.Errorf("endpoint returned status %d", code))
	}, onRetry)

	if haveTerm {
		return terminal
	}
	if err != nil && lastErr == nil {
		lastErr = err
	}
	return networkErrorOutcome(attempts, lastErr)
}

func (e *Engine) attempt(ctx context.Context, method, requestURL string, headers map[string]string, body []byte) (int, string, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, requestURL, reader)
	if err != nil {
		return 0, "", retry.NewFatalError(fmt.Errorf("failed to build request: %w", err))
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyBytes))
	if err != nil {
		// The endpoint answered; a truncated body does not make this a
		// transport failure.
		data = nil
	}

	return resp.StatusCode, string(data), nil
}

func normalizeMethod(method string) string {
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch:
		return method
	default:
		return http.MethodPost
	}
}

func appendQuery(endpoint string, values url.Values) (string, error) {
	target, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}

	query := target.Query()
	for key, vals := range values {
		for _, v := range vals {
			query.Set(key, v)
		}
	}
	target.RawQuery = query.Encode()

	return target.String(), nil
}

func hostLabel(endpoint string) string {
	target, err := url.Parse(endpoint)
	if err != nil || target.Host == "" {
		return "unknown"
	}
	return target.Host
}
