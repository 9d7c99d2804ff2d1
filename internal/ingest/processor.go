package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"relay/internal/broker"
	"relay/internal/dedup"
	"relay/internal/delivery"
	"relay/internal/event"
	"relay/internal/logger"
	"relay/internal/pipeline"
	"relay/pkg/metrics"
)

// Summary reports what happened to one inbound event, for the intake response
// and the optional outcome topic. The audit trail lives in history, not here.
type Summary struct {
	Accepted  bool   `json:"accepted"`
	Duplicate bool   `json:"duplicate,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Matched   int    `json:"matched"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
}

// Processor is the shared intake path behind both the HTTP handlers and the
// Kafka consumer: dedup check, normalization, then the pipeline.
type Processor struct {
	guard        dedup.Guard
	orchestrator *pipeline.Orchestrator
	producer     broker.Producer
	outcomeTopic string
	logger       logger.Logger
}

func NewProcessor(guard dedup.Guard, orchestrator *pipeline.Orchestrator, log logger.Logger) *Processor {
	if guard == nil {
		guard = dedup.AllowAll{}
	}
	return &Processor{
		guard:        guard,
		orchestrator: orchestrator,
		logger:       log,
	}
}

// WithOutcomeProducer publishes a summary per processed event to topic.
func (p *Processor) WithOutcomeProducer(producer broker.Producer, topic string) *Processor {
	p.producer = producer
	p.outcomeTopic = topic
	return p
}

func (p *Processor) ProcessSMS(ctx context.Context, body, sender string, timestamp time.Time) (Summary, error) {
	ev, err := event.NormalizeSMS(body, sender, timestamp)
	return p.process(ctx, ev, err)
}

func (p *Processor) ProcessNotification(ctx context.Context, packageName, appLabel, title, text string, postTime time.Time, extras map[string]interface{}) (Summary, error) {
	ev, err := event.NormalizeNotification(packageName, appLabel, title, text, postTime, event.ExtrasFromRaw(extras))
	return p.process(ctx, ev, err)
}

// ProcessRaw adapts broker raw events onto the same path.
func (p *Processor) ProcessRaw(ctx context.Context, raw broker.RawEvent) (Summary, error) {
	switch raw.Type {
	case broker.RawTypeSMS:
		return p.ProcessSMS(ctx, raw.Body, raw.Sender, raw.Timestamp)
	case broker.RawTypeNotification:
		return p.ProcessNotification(ctx, raw.PackageName, raw.AppLabel, raw.Title, raw.Text, raw.Timestamp, raw.Extras)
	default:
		return Summary{Reason: "unknown event type"}, fmt.Errorf("unknown raw event type: %q", raw.Type)
	}
}

func (p *Processor) process(ctx context.Context, ev *event.InboundEvent, normErr error) (Summary, error) {
	sourceType := string(ev.SourceType)

	var invalidErr *event.InvalidEventError
	if errors.As(normErr, &invalidErr) {
		metrics.IncEventReceived(sourceType, "invalid")
		if err := p.orchestrator.HandleInvalid(ctx, ev, invalidErr.Reason); err != nil {
			return Summary{}, err
		}
		return Summary{Reason: invalidErr.Reason}, nil
	}
	if normErr != nil {
		return Summary{}, normErr
	}

	if !p.guard.Allow(ctx, ev) {
		metrics.IncEventReceived(sourceType, "duplicate")
		return Summary{Duplicate: true}, nil
	}

	metrics.IncEventReceived(sourceType, "accepted")

	outcomes, err := p.orchestrator.Process(ctx, ev)
	if err != nil {
		return Summary{}, err
	}

	summary := summarize(outcomes)
	p.publishOutcome(ctx, ev, summary)

	return summary, nil
}

func (p *Processor) publishOutcome(ctx context.Context, ev *event.InboundEvent, summary Summary) {
	if p.producer == nil || p.outcomeTopic == "" {
		return
	}

	outcome := broker.OutcomeEvent{
		EventID:    dedup.Fingerprint(ev),
		SourceType: string(ev.SourceType),
		Matched:    summary.Matched,
		Succeeded:  summary.Succeeded,
		Failed:     summary.Failed,
		Timestamp:  time.Now(),
	}

	if err := p.producer.Publish(ctx, p.outcomeTopic, outcome); err != nil {
		// Outcome publishing is best-effort; history already has the result.
		p.logger.WarnwCtx(ctx, "Failed to publish outcome event", "error", err)
	}
}

func summarize(outcomes []delivery.Outcome) Summary {
	summary := Summary{
		Accepted: true,
		Matched:  len(outcomes),
	}
	for _, outcome := range outcomes {
		if outcome.Succeeded() {
			summary.Succeeded++
		} else {
			summary.Failed++
		}
	}
	return summary
}
