package rules

import (
	"time"

	"relay/internal/event"
)

// Rule maps a content pattern (and, for notifications, a package filter) to
// an HTTP delivery target. Rules are value snapshots once handed to the
// delivery engine; nothing mutates them mid-dispatch.
type Rule struct {
	ID      string `json:"id" db:"id"`
	Name    string `json:"name" db:"name"`
	Pattern string `json:"pattern" db:"pattern"`
	IsRegex bool   `json:"is_regex" db:"is_regex"`

	SourceType event.SourceType `json:"source_type" db:"source_type"`
	// PackageFilter is meaningful only for NOTIFICATION rules. Nil matches
	// notifications from any package; non-nil restricts to one exact package.
	PackageFilter *string `json:"package_filter,omitempty" db:"package_filter"`

	Endpoint string            `json:"endpoint" db:"endpoint"`
	Method   string            `json:"method" db:"method"`
	Headers  map[string]string `json:"headers" db:"headers"`

	IsActive  bool      `json:"is_active" db:"is_active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// AppliesToPackage reports whether the rule's package filter accepts the
// given package. SMS rules ignore packages entirely.
func (r *Rule) AppliesToPackage(packageName string) bool {
	if r.SourceType == event.SourceSMS {
		return true
	}
	if r.PackageFilter == nil {
		return true
	}
	return *r.PackageFilter == packageName
}

type CreateRuleRequest struct {
	Name          string            `json:"name" binding:"required"`
	Pattern       string            `json:"pattern" binding:"required"`
	IsRegex       bool              `json:"is_regex"`
	SourceType    event.SourceType  `json:"source_type" binding:"required"`
	PackageFilter *string           `json:"package_filter"`
	Endpoint      string            `json:"endpoint" binding:"required"`
	Method        string            `json:"method"`
	Headers       map[string]string `json:"headers"`
	IsActive      *bool             `json:"is_active"`
}

type UpdateRuleRequest struct {
	Name          *string            `json:"name"`
	Pattern       *string            `json:"pattern"`
	IsRegex       *bool              `json:"is_regex"`
	PackageFilter *string            `json:"package_filter"`
	ClearFilter   bool               `json:"clear_package_filter"`
	Endpoint      *string            `json:"endpoint"`
	Method        *string            `json:"method"`
	Headers       *map[string]string `json:"headers"`
	IsActive      *bool              `json:"is_active"`
}
