package delivery

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"relay/internal/event"
	"relay/internal/logger"
	"relay/internal/rules"
	"relay/pkg/circuitbreaker"
)

// BreakerDeliverer decorates a Deliverer with one circuit breaker per endpoint
// host. Only network-error outcomes count as failures: HTTP error responses
// prove the endpoint is reachable, so they never trip the breaker.
type BreakerDeliverer struct {
	next      Deliverer
	newConfig func(name string) circuitbreaker.Config
	logger    logger.Logger

	mu       sync.Mutex
	breakers map[string]*circuitbreaker.Wrapper
}

func NewBreakerDeliverer(next Deliverer, newConfig func(name string) circuitbreaker.Config, log logger.Logger) *BreakerDeliverer {
	if newConfig == nil {
		newConfig = circuitbreaker.DefaultConfig
	}
	return &BreakerDeliverer{
		next:      next,
		newConfig: newConfig,
		logger:    log,
		breakers:  make(map[string]*circuitbreaker.Wrapper),
	}
}

func (d *BreakerDeliverer) Deliver(ctx context.Context, ev *event.InboundEvent, rule rules.Rule) Outcome {
	host := hostLabel(rule.Endpoint)
	breaker := d.breakerFor(host)

	result, err := breaker.Execute(func() (interface{}, error) {
		outcome := d.next.Deliver(ctx, ev, rule)
		if outcome.Kind == OutcomeNetworkError {
			return outcome, errors.New(outcome.Message)
		}
		return outcome, nil
	})

	if circuitbreaker.IsOpen(err) {
		d.logger.WarnwCtx(ctx, "Delivery short-circuited: endpoint host unavailable",
			"rule_id", rule.ID,
			"endpoint_host", host,
		)
		return Outcome{
			Kind:    OutcomeNetworkError,
			Message: fmt.Sprintf("delivery skipped: circuit open for host %s", host),
		}
	}

	if outcome, ok := result.(Outcome); ok {
		return outcome
	}

	return Outcome{Kind: OutcomeNetworkError, Message: err.Error()}
}

func (d *BreakerDeliverer) breakerFor(host string) *circuitbreaker.Wrapper {
	d.mu.Lock()
	defer d.mu.Unlock()

	breaker, ok := d.breakers[host]
	if !ok {
		breaker = circuitbreaker.NewWrapper(d.newConfig("delivery:" + host))
		d.breakers[host] = breaker
	}
	return breaker
}
