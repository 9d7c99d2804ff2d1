package rules

import (
	"context"
	"strings"

	"relay/internal/event"
	pkgerrors "relay/pkg/errors"
)

type Service interface {
	CreateRule(ctx context.Context, req CreateRuleRequest) (*Rule, error)
	ListRules(ctx context.Context) ([]Rule, error)
	GetRule(ctx context.Context, id string) (*Rule, error)
	UpdateRule(ctx context.Context, id string, req UpdateRuleRequest) (*Rule, error)
	DeleteRule(ctx context.Context, id string) error
}

type service struct {
	repo Repository
}

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (s *service) CreateRule(ctx context.Context, req CreateRuleRequest) (*Rule, error) {
	rule := &Rule{
		Name:          req.Name,
		Pattern:       req.Pattern,
		IsRegex:       req.IsRegex,
		SourceType:    req.SourceType,
		PackageFilter: req.PackageFilter,
		Endpoint:      req.Endpoint,
		Method:        strings.ToUpper(req.Method),
		Headers:       req.Headers,
		IsActive:      getActiveValue(req.IsActive),
	}

	normalizeRule(rule)

	if errs := ValidateRule(rule); len(errs) > 0 {
		return nil, pkgerrors.ErrValidation.WithDetail("errors", errs)
	}

	if err := s.repo.Create(ctx, rule); err != nil {
		if pkgerrors.IsConflict(err) {
			return nil, err
		}
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal)
	}

	return copyRule(rule), nil
}

func (s *service) ListRules(ctx context.Context) ([]Rule, error) {
	rules, err := s.repo.List(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal)
	}
	return rules, nil
}

func (s *service) GetRule(ctx context.Context, id string) (*Rule, error) {
	rule, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, s.handleNotFoundError(err, id)
	}
	if rule == nil {
		return nil, pkgerrors.ErrNotFound.WithDetail("id", id)
	}
	return copyRule(rule), nil
}

func (s *service) UpdateRule(ctx context.Context, id string, req UpdateRuleRequest) (*Rule, error) {
	rule, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, s.handleNotFoundError(err, id)
	}
	if rule == nil {
		return nil, pkgerrors.ErrNotFound.WithDetail("id", id)
	}

	applyUpdate(rule, req)
	normalizeRule(rule)

	if errs := ValidateRule(rule); len(errs) > 0 {
		return nil, pkgerrors.ErrValidation.WithDetail("errors", errs)
	}

	if err := s.repo.Update(ctx, rule); err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal)
	}

	return copyRule(rule), nil
}

func (s *service) DeleteRule(ctx context.Context, id string) error {
	rule, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return s.handleNotFoundError(err, id)
	}
	if rule == nil {
		return pkgerrors.ErrNotFound.WithDetail("id", id)
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return pkgerrors.Wrap(err, pkgerrors.ErrInternal)
	}

	return nil
}

func (s *service) handleNotFoundError(err error, id string) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "not found") {
		return pkgerrors.ErrNotFound.WithDetail("id", id)
	}
	return pkgerrors.Wrap(err, pkgerrors.ErrInternal)
}

func applyUpdate(rule *Rule, req UpdateRuleRequest) {
	if req.Name != nil {
		rule.Name = *req.Name
	}
	if req.Pattern != nil {
		rule.Pattern = *req.Pattern
	}
	if req.IsRegex != nil {
		rule.IsRegex = *req.IsRegex
	}
	if req.ClearFilter {
		rule.PackageFilter = nil
	} else if req.PackageFilter != nil {
		rule.PackageFilter = req.PackageFilter
	}
	if req.Endpoint != nil {
		rule.Endpoint = *req.Endpoint
	}
	if req.Method != nil {
		rule.Method = strings.ToUpper(*req.Method)
	}
	if req.Headers != nil {
		rule.Headers = *req.Headers
	}
	if req.IsActive != nil {
		rule.IsActive = *req.IsActive
	}
}

func normalizeRule(rule *Rule) {
	if rule.Method == "" {
		rule.Method = "POST"
	}
	// Package filters only mean something for notification rules.
	if rule.SourceType == event.SourceSMS {
		rule.PackageFilter = nil
	}
}

func copyRule(rule *Rule) *Rule {
	copied := *rule
	if rule.PackageFilter != nil {
		filter := *rule.PackageFilter
		copied.PackageFilter = &filter
	}
	if rule.Headers != nil {
		headers := make(map[string]string, len(rule.Headers))
		for k, v := range rule.Headers {
			headers[k] = v
		}
		copied.Headers = headers
	}
	return &copied
}

func getActiveValue(reqActive *bool) bool {
	if reqActive == nil {
		return true
	}
	return *reqActive
}
