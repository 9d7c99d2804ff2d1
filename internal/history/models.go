package history

import (
	"time"

	"relay/internal/event"
)

type Status string

const (
	StatusReceived      Status = "RECEIVED"
	StatusSuccess       Status = "SUCCESS"
	StatusFailed        Status = "FAILED"
	StatusRetry         Status = "RETRY"
	StatusNoRuleMatched Status = "NO_RULE_MATCHED"
)

// Record is one audit row: an event snapshot plus, when a rule matched, the
// delivery snapshot. Every inbound event produces at least one record, even
// when it is invalid or nothing matches.
type Record struct {
	ID          string  `json:"id"`
	RuleID      *string `json:"rule_id,omitempty"`
	MatchedRule bool    `json:"matched_rule"`

	SourceType   event.SourceType `json:"source_type"`
	SenderNumber string           `json:"sender_number,omitempty"`
	PackageName  string           `json:"package_name,omitempty"`
	AppName      string           `json:"app_name,omitempty"`
	Title        string           `json:"title,omitempty"`
	Text         string           `json:"text,omitempty"`
	MessageBody  string           `json:"message_body"`

	Endpoint       string            `json:"endpoint,omitempty"`
	Method         string            `json:"method,omitempty"`
	RequestHeaders map[string]string `json:"request_headers,omitempty"`
	RequestBody    string            `json:"request_body,omitempty"`
	ResponseCode   *int              `json:"response_code,omitempty"`
	ResponseBody   string            `json:"response_body,omitempty"`
	ErrorMessage   string            `json:"error_message,omitempty"`

	Status      Status     `json:"status"`
	Timestamp   time.Time  `json:"timestamp"`
	ForwardedAt *time.Time `json:"forwarded_at,omitempty"`
}

// OutcomeUpdate carries the terminal delivery result applied to an existing
// RECEIVED row.
type OutcomeUpdate struct {
	Status       Status
	ResponseCode *int
	ResponseBody string
	ErrorMessage string
	ForwardedAt  time.Time
}

// Filter narrows history reads. Zero values mean "no constraint"; Matched is
// a tri-state via pointer.
type Filter struct {
	Limit      int
	Offset     int
	Package    string
	Search     string
	Matched    *bool
	SourceType event.SourceType
}

type Stats struct {
	Total   int64 `json:"total"`
	Matched int64 `json:"matched"`
	Success int64 `json:"success"`
	Failed  int64 `json:"failed"`
}
