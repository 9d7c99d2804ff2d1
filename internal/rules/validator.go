package rules

import (
	"fmt"
	"regexp"
	"strings"

	"relay/internal/event"
)

var validMethods = map[string]bool{
	"GET":   true,
	"POST":  true,
	"PUT":   true,
	"PATCH": true,
}

// ValidateRule checks a rule snapshot and returns every problem found as a
// human-readable message. An empty slice means the rule is valid; a write is
// never partially applied on failure.
func ValidateRule(rule *Rule) []string {
	var errs []string

	if strings.TrimSpace(rule.Name) == "" {
		errs = append(errs, "name is required")
	}

	if strings.TrimSpace(rule.Pattern) == "" {
		errs = append(errs, "pattern is required")
	} else if rule.IsRegex {
		if _, err := regexp.Compile("(?i)" + rule.Pattern); err != nil {
			errs = append(errs, fmt.Sprintf("invalid regular expression: %v", err))
		}
	}

	if !rule.SourceType.Valid() {
		errs = append(errs, fmt.Sprintf("invalid source_type: %s. Allowed: SMS, NOTIFICATION", rule.SourceType))
	}

	if strings.TrimSpace(rule.Endpoint) == "" {
		errs = append(errs, "endpoint is required")
	} else if !strings.HasPrefix(rule.Endpoint, "http://") && !strings.HasPrefix(rule.Endpoint, "https://") {
		errs = append(errs, "endpoint must start with http:// or https://")
	}

	if rule.Method == "" {
		errs = append(errs, "method is required")
	} else if !validMethods[rule.Method] {
		errs = append(errs, fmt.Sprintf("invalid method: %s. Allowed: GET, POST, PUT, PATCH", rule.Method))
	}

	// A set filter on a notification rule must name a package; "match any"
	// is expressed by leaving it unset.
	if rule.SourceType == event.SourceNotification && rule.PackageFilter != nil && strings.TrimSpace(*rule.PackageFilter) == "" {
		errs = append(errs, "package_filter must be non-empty when set")
	}

	return errs
}
