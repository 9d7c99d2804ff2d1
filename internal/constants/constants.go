package constants

import "time"

const (
	DefaultHTTPTimeout = 10 * time.Second
	UserAgent          = "relay/1.0"
)

const (
	KafkaBatchTimeout = 10 * time.Millisecond
	KafkaWriteTimeout = 10 * time.Second
)

const (
	CacheKeyPrefixEvent = "relay:event:"
)

const (
	ShutdownTimeout = 5 * time.Second
)

const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

const (
	HTTPStatusOKMin = 200
	HTTPStatusOKMax = 300
)

const (
	FallbackAllow = "allow"
	FallbackDeny  = "deny"
)

const (
	DefaultRetentionKeep = 1000
)

const (
	ReasonInvalidMessage = "invalid message"
	ReasonNoActiveRules  = "no active rules configured"
	ReasonNoMatch        = "content did not match any rule"
)
