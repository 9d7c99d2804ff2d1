package event

import "time"

type SourceType string

const (
	SourceSMS          SourceType = "SMS"
	SourceNotification SourceType = "NOTIFICATION"
)

func (s SourceType) Valid() bool {
	return s == SourceSMS || s == SourceNotification
}

// InboundEvent is the canonical representation of one SMS or one notification.
// It is constructed once by the normalizer and never mutated afterwards, so
// concurrent per-rule deliveries can share it without locking.
type InboundEvent struct {
	SourceType SourceType
	// Content is the string rules match against: the SMS body, or
	// "{title}: {text}" for notifications.
	Content      string
	SenderNumber string
	PackageName  string
	AppName      string
	Title        string
	Text         string
	Extras       map[string]ExtraValue
	Timestamp    time.Time
}
