package history

import (
	"context"
	"strings"

	"relay/internal/constants"
	pkgerrors "relay/pkg/errors"
)

type Service interface {
	ListRecords(ctx context.Context, filter Filter) ([]Record, error)
	GetRecord(ctx context.Context, id string) (*Record, error)
	DeleteRecord(ctx context.Context, id string) error
	GetStats(ctx context.Context) (*Stats, error)
	Trim(ctx context.Context, keep int) (int64, error)
}

type service struct {
	repo Repository
}

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (s *service) ListRecords(ctx context.Context, filter Filter) ([]Record, error) {
	records, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal)
	}
	if records == nil {
		records = []Record{}
	}
	return records, nil
}

func (s *service) GetRecord(ctx context.Context, id string) (*Record, error) {
	record, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, s.handleNotFoundError(err, id)
	}
	if record == nil {
		return nil, pkgerrors.ErrNotFound.WithDetail("id", id)
	}
	return record, nil
}

func (s *service) DeleteRecord(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return s.handleNotFoundError(err, id)
	}
	return nil
}

func (s *service) GetStats(ctx context.Context) (*Stats, error) {
	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal)
	}
	return stats, nil
}

func (s *service) Trim(ctx context.Context, keep int) (int64, error) {
	if keep <= 0 {
		keep = constants.DefaultRetentionKeep
	}

	removed, err := s.repo.Trim(ctx, keep)
	if err != nil {
		return 0, pkgerrors.Wrap(err, pkgerrors.ErrInternal)
	}
	return removed, nil
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
