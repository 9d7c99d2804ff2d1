package integration

import (
	"time"

	"relay/internal/event"
	"relay/internal/history"
	"relay/internal/logger"
	"relay/internal/rules"
)

const timestampDelay = 10 * time.Millisecond

func createTestLogger() logger.Logger {
	return logger.NopLogger()
}

func createTestRule(name, pattern string, sourceType event.SourceType, active bool) *rules.Rule {
	return &rules.Rule{
		Name:       name,
		Pattern:    pattern,
		SourceType: sourceType,
		Endpoint:   "https://example.com/hook",
		Method:     "POST",
		IsActive:   active,
	}
}

func createTestEvent(content, sender string) *event.InboundEvent {
	return &event.InboundEvent{
		SourceType:   event.SourceSMS,
		Content:      content,
		SenderNumber: sender,
		Timestamp:    time.Now(),
	}
}

func createTestHistoryRecord(status history.Status, matched bool) *history.Record {
	return &history.Record{
		MatchedRule: matched,
		SourceType:  event.SourceSMS,
		MessageBody: "test message body",
		Status:      status,
		Timestamp:   time.Now(),
	}
}
