package matching

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"relay/internal/event"
	"relay/internal/logger"
	"relay/internal/rules"
)

func newTestMatcher() *Matcher {
	return New(logger.NopLogger())
}

func smsEvent(content string) *event.InboundEvent {
	return &event.InboundEvent{
		SourceType:   event.SourceSMS,
		Content:      content,
		SenderNumber: "+15550100",
	}
}

func notificationEvent(pkg, content string) *event.InboundEvent {
	return &event.InboundEvent{
		SourceType:  event.SourceNotification,
		Content:     content,
		PackageName: pkg,
	}
}

func substringRule(id, pattern string, sourceType event.SourceType) rules.Rule {
	return rules.Rule{
		ID:         id,
		Name:       "rule-" + id,
		Pattern:    pattern,
		SourceType: sourceType,
		Endpoint:   "https://example.com/hook",
		Method:     "POST",
		IsActive:   true,
	}
}

func TestMatchSubstringCaseInsensitive(t *testing.T) {
	m := newTestMatcher()

	matched := m.Match(context.Background(), smsEvent("Your OTP code is 123456"), []rules.Rule{
		substringRule("a", "otp", event.SourceSMS),
	})

	assert.Len(t, matched, 1)
	assert.Equal(t, "a", matched[0].ID)
}

func TestMatchSubstringNoMatch(t *testing.T) {
	m := newTestMatcher()

	matched := m.Match(context.Background(), smsEvent("hello there"), []rules.Rule{
		substringRule("a", "otp", event.SourceSMS),
	})

	assert.Empty(t, matched)
}

func TestMatchRegexCaseInsensitive(t *testing.T) {
	m := newTestMatcher()

	rule := substringRule("a", `code is \d{6}`, event.SourceSMS)
	rule.IsRegex = true

	matched := m.Match(context.Background(), smsEvent("Your CODE IS 123456"), []rules.Rule{rule})

	assert.Len(t, matched, 1)
}

func TestMatchInvalidRegexFallsBackToSubstring(t *testing.T) {
	m := newTestMatcher()

	rule := substringRule("a", "[invalid", event.SourceSMS)
	rule.IsRegex = true

	matched := m.Match(context.Background(), smsEvent("this has [INVALID inside"), []rules.Rule{rule})
	assert.Len(t, matched, 1, "invalid regex should degrade to substring matching")

	matched = m.Match(context.Background(), smsEvent("nothing relevant"), []rules.Rule{rule})
	assert.Empty(t, matched)
}

func TestMatchSMSIgnoresPackageFilter(t *testing.T) {
	m := newTestMatcher()

	filter := "com.example.app"
	rule := substringRule("a", "alert", event.SourceSMS)
	rule.PackageFilter = &filter

	matched := m.Match(context.Background(), smsEvent("alert: something happened"), []rules.Rule{rule})

	assert.Len(t, matched, 1)
}

func TestMatchNotificationPackageFilter(t *testing.T) {
	m := newTestMatcher()

	filter := "com.bank.app"
	filtered := substringRule("a", "payment", event.SourceNotification)
	filtered.PackageFilter = &filter
	anyPackage := substringRule("b", "payment", event.SourceNotification)

	t.Run("exact package match", func(t *testing.T) {
		matched := m.Match(context.Background(), notificationEvent("com.bank.app", "payment received"), []rules.Rule{filtered, anyPackage})
		assert.Len(t, matched, 2)
	})

	t.Run("package mismatch skips filtered rule", func(t *testing.T) {
		matched := m.Match(context.Background(), notificationEvent("com.other.app", "payment received"), []rules.Rule{filtered, anyPackage})
		assert.Len(t, matched, 1)
		assert.Equal(t, "b", matched[0].ID)
	})

	t.Run("nil filter matches any package", func(t *testing.T) {
		matched := m.Match(context.Background(), notificationEvent("com.whatever", "payment received"), []rules.Rule{anyPackage})
		assert.Len(t, matched, 1)
	})
}

func TestMatchResultsOrderedByID(t *testing.T) {
	m := newTestMatcher()

	candidates := []rules.Rule{
		substringRule("c", "alert", event.SourceSMS),
		substringRule("a", "alert", event.SourceSMS),
		substringRule("b", "alert", event.SourceSMS),
	}

	matched := m.Match(context.Background(), smsEvent("alert now"), candidates)

	assert.Len(t, matched, 3)
	assert.Equal(t, "a", matched[0].ID)
	assert.Equal(t, "b", matched[1].ID)
	assert.Equal(t, "c", matched[2].ID)
}

func TestMatchNoCandidates(t *testing.T) {
	m := newTestMatcher()

	matched := m.Match(context.Background(), smsEvent("anything"), nil)

	assert.Empty(t, matched)
}
