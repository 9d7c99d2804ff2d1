package pipeline

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"relay/internal/constants"
	"relay/internal/delivery"
	"relay/internal/event"
	"relay/internal/history"
	"relay/internal/logger"
	"relay/internal/rules"
	"relay/pkg/metrics"
)

// ActiveRuleSource provides the active-rule snapshot for one source type.
type ActiveRuleSource interface {
	GetActiveRules(ctx context.Context, sourceType event.SourceType) ([]rules.Rule, error)
}

// Matcher selects the rules applying to an event out of the active set.
type Matcher interface {
	Match(ctx context.Context, ev *event.InboundEvent, candidates []rules.Rule) []rules.Rule
}

// Orchestrator drives one event through the pipeline: active-rule lookup,
// matching, then one concurrent delivery per matching rule with a history row
// apiece. A failing delivery never cancels its siblings.
type Orchestrator struct {
	rules     ActiveRuleSource
	matcher   Matcher
	deliverer delivery.Deliverer
	recorder  history.Recorder
	logger    logger.Logger
}

func NewOrchestrator(ruleSource ActiveRuleSource, matcher Matcher, deliverer delivery.Deliverer, recorder history.Recorder, log logger.Logger) *Orchestrator {
	return &Orchestrator{
		rules:     ruleSource,
		matcher:   matcher,
		deliverer: deliverer,
		recorder:  recorder,
		logger:    log,
	}
}

// Process handles one normalized event end to end. The returned outcomes are
// for caller statistics only; every result is already persisted to history by
// the time Process returns.
func (o *Orchestrator) Process(ctx context.Context, ev *event.InboundEvent) ([]delivery.Outcome, error) {
	candidates, err := o.rules.GetActiveRules(ctx, ev.SourceType)
	if err != nil {
		o.logger.ErrorwCtx(ctx, "Failed to load active rules", "source_type", ev.SourceType, "error", err)
		return nil, fmt.Errorf("failed to load active rules: %w", err)
	}
	metrics.SetActiveRules(string(ev.SourceType), len(candidates))

	if len(candidates) == 0 {
		metrics.IncMatchResult(string(ev.SourceType), "no_active_rules")
		if _, err := o.recorder.RecordUnmatched(ctx, ev, constants.ReasonNoActiveRules); err != nil {
			return nil, err
		}
		return nil, nil
	}

	matched := o.matcher.Match(ctx, ev, candidates)
	if len(matched) == 0 {
		metrics.IncMatchResult(string(ev.SourceType), "no_match")
		if _, err := o.recorder.RecordUnmatched(ctx, ev, constants.ReasonNoMatch); err != nil {
			return nil, err
		}
		return nil, nil
	}

	metrics.IncMatchResult(string(ev.SourceType), "matched")
	o.logger.InfowCtx(ctx, "Event matched rules", "source_type", ev.SourceType, "matched", len(matched))

	outcomes := make([]delivery.Outcome, len(matched))

	var group errgroup.Group
	for i := range matched {
		i := i
		rule := matched[i]
		group.Go(func() error {
			outcomes[i] = o.processRule(ctx, ev, rule)
			// Errors never propagate: one rule's failure must not cancel
			// the other deliveries.
			return nil
		})
	}
	_ = group.Wait()

	return outcomes, nil
}

func (o *Orchestrator) processRule(ctx context.Context, ev *event.InboundEvent, rule rules.Rule) (outcome delivery.Outcome) {
	var historyID string

	defer func() {
		r := recover()
		if r == nil {
			return
		}
		outcome = delivery.Outcome{
			Kind:    delivery.OutcomeNetworkError,
			Message: fmt.Sprintf("unexpected delivery failure: %v", r),
		}
		o.logger.ErrorwCtx(ctx, "Recovered panic during delivery", "rule_id", rule.ID, "panic", r)
		o.recordTerminal(ctx, ev, rule, historyID, outcome)
	}()

	historyID, err := o.recorder.RecordReceived(ctx, ev, &rule)
	if err != nil {
		// Delivery still proceeds; the audit gap is logged inside the
		// recorder.
		historyID = ""
	}

	outcome = o.deliverer.Deliver(ctx, ev, rule)
	o.recordTerminal(ctx, ev, rule, historyID, outcome)

	return outcome
}

// recordTerminal persists the final state of one delivery. Without a RECEIVED
// row to update, the outcome is written as a fresh terminal row so the real
// result survives the earlier write failure.
func (o *Orchestrator) recordTerminal(ctx context.Context, ev *event.InboundEvent, rule rules.Rule, historyID string, outcome delivery.Outcome) {
	if historyID == "" {
		_, _ = o.recorder.RecordCompleted(ctx, ev, &rule, outcome)
		return
	}
	_ = o.recorder.RecordOutcome(ctx, historyID, outcome)
}

// HandleInvalid records the mandatory history row for an event the normalizer
// refused. Invalid events never reach matching.
func (o *Orchestrator) HandleInvalid(ctx context.Context, ev *event.InboundEvent, reason string) error {
	o.logger.WarnwCtx(ctx, "Rejected invalid event", "source_type", ev.SourceType, "reason", reason)

	_, err := o.recorder.RecordRejected(ctx, ev, reason)
	return err
}
