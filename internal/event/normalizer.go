package event

import (
	"fmt"
	"strings"
	"time"

	"relay/internal/constants"
)

// InvalidEventError reports an event that failed normalization. The partial
// event is still returned alongside it so the caller can record a rejection
// row; failures must never be silent.
type InvalidEventError struct {
	Reason string
}

func (e *InvalidEventError) Error() string {
	return fmt.Sprintf("invalid event: %s", e.Reason)
}

// NormalizeSMS builds the canonical event for one SMS. Blank body or sender
// fails closed: the event never reaches matching.
func NormalizeSMS(body, sender string, timestamp time.Time) (*InboundEvent, error) {
	ev := &InboundEvent{
		SourceType:   SourceSMS,
		Content:      body,
		SenderNumber: sender,
		Timestamp:    timestamp,
	}

	if strings.TrimSpace(body) == "" || strings.TrimSpace(sender) == "" {
		return ev, &InvalidEventError{Reason: constants.ReasonInvalidMessage}
	}

	return ev, nil
}

// NormalizeNotification builds the canonical event for one app notification.
// Content is "{title}: {text}" when both are non-blank, otherwise whichever
// one is; blank-both is rejected the same way as an invalid SMS.
func NormalizeNotification(packageName, appLabel, title, text string, postTime time.Time, extras map[string]ExtraValue) (*InboundEvent, error) {
	ev := &InboundEvent{
		SourceType:  SourceNotification,
		Content:     notificationContent(title, text),
		PackageName: packageName,
		AppName:     appLabel,
		Title:       title,
		Text:        text,
		Extras:      extras,
		Timestamp:   postTime,
	}

	if ev.Content == "" {
		return ev, &InvalidEventError{Reason: constants.ReasonInvalidMessage}
	}

	return ev, nil
}

func notificationContent(title, text string) string {
	title = strings.TrimSpace(title)
	text = strings.TrimSpace(text)

	switch {
	case title != "" && text != "":
		return title + ": " + text
	case title != "":
		return title
	default:
		return text
	}
}
