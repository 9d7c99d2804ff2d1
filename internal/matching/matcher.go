package matching

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"relay/internal/event"
	"relay/internal/logger"
	"relay/internal/rules"
)

// Matcher selects the subset of candidate rules that apply to one inbound
// event. Candidates are expected to be pre-filtered to active rules of the
// event's source type; each rule is evaluated exactly once.
type Matcher struct {
	logger logger.Logger
}

func New(log logger.Logger) *Matcher {
	return &Matcher{logger: log}
}

// Match returns the applying rules sorted by rule ID, so delivery and history
// ordering are reproducible for a given rule-store snapshot.
func (m *Matcher) Match(ctx context.Context, ev *event.InboundEvent, candidates []rules.Rule) []rules.Rule {
	matched := make([]rules.Rule, 0, len(candidates))

	for _, rule := range candidates {
		if !rule.AppliesToPackage(ev.PackageName) {
			m.logger.DebugwCtx(ctx, "Rule skipped: package filter mismatch",
				"rule_id", rule.ID,
				"package", ev.PackageName,
			)
			continue
		}

		if !m.contentMatches(ctx, rule, ev.Content) {
			continue
		}

		matched = append(matched, rule)
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].ID < matched[j].ID
	})

	return matched
}

// contentMatches applies the rule pattern case-insensitively. Regex rules
// whose pattern no longer compiles degrade to the substring check instead of
// failing the whole evaluation; validation rejects bad patterns at write
// time, so this only covers legacy rows.
func (m *Matcher) contentMatches(ctx context.Context, rule rules.Rule, content string) bool {
	if rule.IsRegex {
		re, err := regexp.Compile("(?i)" + rule.Pattern)
		if err == nil {
			return re.MatchString(content)
		}
		m.logger.WarnwCtx(ctx, "Invalid regex pattern, falling back to substring match",
			"rule_id", rule.ID,
			"pattern", rule.Pattern,
			"error", err,
		)
	}

	return strings.Contains(strings.ToLower(content), strings.ToLower(rule.Pattern))
}
