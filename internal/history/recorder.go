package history

import (
	"context"
	"time"

	"relay/internal/delivery"
	"relay/internal/event"
	"relay/internal/logger"
	"relay/internal/rules"
	"relay/pkg/metrics"
)

// Recorder writes the audit trail. One row per unmatched or rejected event,
// one row per (event, matched rule); matched rows start as RECEIVED and are
// updated in place once the delivery finishes.
type Recorder interface {
	RecordReceived(ctx context.Context, ev *event.InboundEvent, rule *rules.Rule) (string, error)
	RecordUnmatched(ctx context.Context, ev *event.InboundEvent, reason string) (string, error)
	RecordRejected(ctx context.Context, ev *event.InboundEvent, reason string) (string, error)
	RecordOutcome(ctx context.Context, historyID string, outcome delivery.Outcome) error
	RecordCompleted(ctx context.Context, ev *event.InboundEvent, rule *rules.Rule, outcome delivery.Outcome) (string, error)
}

type recorder struct {
	repo   Repository
	logger logger.Logger
}

func NewRecorder(repo Repository, log logger.Logger) Recorder {
	return &recorder{repo: repo, logger: log}
}

func (r *recorder) RecordReceived(ctx context.Context, ev *event.InboundEvent, rule *rules.Rule) (string, error) {
	if rule == nil {
		record := eventSnapshot(ev)
		record.Status = StatusNoRuleMatched
		return r.create(ctx, record)
	}

	record := matchedSnapshot(ev, rule)
	record.Status = StatusReceived
	return r.create(ctx, record)
}

// RecordCompleted writes a terminal row in a single shot. Used when the
// RECEIVED row could not be written but the delivery still ran; the outcome
// must not be lost to the earlier write failure.
func (r *recorder) RecordCompleted(ctx context.Context, ev *event.InboundEvent, rule *rules.Rule, outcome delivery.Outcome) (string, error) {
	record := matchedSnapshot(ev, rule)

	record.Status = StatusFailed
	if outcome.Succeeded() {
		record.Status = StatusSuccess
	}
	record.ResponseBody = outcome.ResponseBody
	record.ErrorMessage = outcome.Message
	if outcome.StatusCode != 0 {
		code := outcome.StatusCode
		record.ResponseCode = &code
	}
	now := time.Now()
	record.ForwardedAt = &now

	return r.create(ctx, record)
}

func (r *recorder) RecordUnmatched(ctx context.Context, ev *event.InboundEvent, reason string) (string, error) {
	record := eventSnapshot(ev)
	record.Status = StatusNoRuleMatched
	record.ErrorMessage = reason
	return r.create(ctx, record)
}

func (r *recorder) RecordRejected(ctx context.Context, ev *event.InboundEvent, reason string) (string, error) {
	record := eventSnapshot(ev)
	record.Status = StatusFailed
	record.ErrorMessage = reason
	return r.create(ctx, record)
}

func (r *recorder) RecordOutcome(ctx context.Context, historyID string, outcome delivery.Outcome) error {
	update := OutcomeUpdate{
		Status:       StatusFailed,
		ResponseBody: outcome.ResponseBody,
		ErrorMessage: outcome.Message,
		ForwardedAt:  time.Now(),
	}
	if outcome.Succeeded() {
		update.Status = StatusSuccess
	}
	if outcome.StatusCode != 0 {
		code := outcome.StatusCode
		update.ResponseCode = &code
	}

	if err := r.repo.UpdateOutcome(ctx, historyID, update); err != nil {
		metrics.IncHistoryWrite("error")
		r.logger.ErrorwCtx(ctx, "Failed to update history record", "history_id", historyID, "error", err)
		return err
	}

	metrics.IncHistoryWrite(string(update.Status))
	return nil
}

func (r *recorder) create(ctx context.Context, record *Record) (string, error) {
	if err := r.repo.Create(ctx, record); err != nil {
		metrics.IncHistoryWrite("error")
		r.logger.ErrorwCtx(ctx, "Failed to create history record", "status", record.Status, "error", err)
		return "", err
	}

	metrics.IncHistoryWrite(string(record.Status))
	return record.ID, nil
}

func matchedSnapshot(ev *event.InboundEvent, rule *rules.Rule) *Record {
	record := eventSnapshot(ev)

	ruleID := rule.ID
	record.RuleID = &ruleID
	record.MatchedRule = true
	record.Endpoint = rule.Endpoint
	record.Method = rule.Method
	record.RequestHeaders = delivery.MergeHeaders(rule.Headers, ev.SourceType)

	// Snapshot the exact body that will go over the wire, so history shows
	// what the endpoint saw rather than a re-rendering.
	if body, err := delivery.BuildPayload(ev).JSON(); err == nil {
		record.RequestBody = string(body)
	}

	return record
}

func eventSnapshot(ev *event.InboundEvent) *Record {
	return &Record{
		SourceType:   ev.SourceType,
		SenderNumber: ev.SenderNumber,
		PackageName:  ev.PackageName,
		AppName:      ev.AppName,
		Title:        ev.Title,
		Text:         ev.Text,
		MessageBody:  ev.Content,
		Timestamp:    eventTimestamp(ev),
	}
}

func eventTimestamp(ev *event.InboundEvent) time.Time {
	if ev.Timestamp.IsZero() {
		return time.Now()
	}
	return ev.Timestamp
}
