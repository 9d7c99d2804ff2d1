package tracing

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func sampledContext(t *testing.T) (context.Context, trace.TraceID) {
	t.Helper()

	traceID, err := trace.TraceIDFromHex("0102030405060708090a0b0c0d0e0f10")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("0102030405060708")
	require.NoError(t, err)

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	return trace.ContextWithSpanContext(context.Background(), sc), traceID
}

func TestKafkaTraceContextRoundTrip(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})

	ctx, traceID := sampledContext(t)

	headers := InjectTraceContext(ctx, nil)
	require.NotEmpty(t, headers, "injection must add the traceparent header")
	assert.Equal(t, "traceparent", headers[0].Key)

	extracted := trace.SpanContextFromContext(ExtractTraceContext(context.Background(), headers))
	assert.Equal(t, traceID, extracted.TraceID())
}

func TestInjectKeepsExistingHeaders(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})

	ctx, _ := sampledContext(t)

	headers := InjectTraceContext(ctx, []kafka.Header{
		{Key: "event-id", Value: []byte("e1")},
	})

	var keys []string
	for _, h := range headers {
		keys = append(keys, h.Key)
	}
	assert.Contains(t, keys, "event-id")
	assert.Contains(t, keys, "traceparent")
}

func TestStartSpanFromKafkaMessageContinuesTrace(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})

	ctx, traceID := sampledContext(t)
	headers := InjectTraceContext(ctx, nil)

	msgCtx, span := StartSpanFromKafkaMessage(context.Background(), "kafka.consume", headers)
	defer span.End()

	assert.Equal(t, traceID, trace.SpanContextFromContext(msgCtx).TraceID())
}
