package rules

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"relay/internal/event"
	pkgerrors "relay/pkg/errors"
)

type Repository interface {
	Create(ctx context.Context, rule *Rule) error
	List(ctx context.Context) ([]Rule, error)
	GetByID(ctx context.Context, id string) (*Rule, error)
	Update(ctx context.Context, rule *Rule) error
	Delete(ctx context.Context, id string) error
	GetActiveRules(ctx context.Context, sourceType event.SourceType) ([]Rule, error)
}

type PostgresRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, rule *Rule) error {
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	now := time.Now()
	rule.CreatedAt = now
	rule.UpdatedAt = now

	headers, err := marshalHeaders(rule.Headers)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO forwarding_rules (id, name, pattern, is_regex, source_type, package_filter, endpoint, method, headers, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err = r.db.ExecContext(ctx, query,
		rule.ID, rule.Name, rule.Pattern, rule.IsRegex,
		string(rule.SourceType), nullableFilter(rule.PackageFilter),
		rule.Endpoint, rule.Method, headers, rule.IsActive,
		rule.CreatedAt, rule.UpdatedAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			if pqErr.Code == "23505" {
				return pkgerrors.ErrConflict.WithCause(err).WithDetail("message", fmt.Sprintf("rule with name '%s' already exists", rule.Name))
			}
		}
		if strings.Contains(err.Error(), "duplicate key") || strings.Contains(err.Error(), "unique constraint") {
			return pkgerrors.ErrConflict.WithCause(err).WithDetail("message", fmt.Sprintf("rule with name '%s' already exists", rule.Name))
		}
		return fmt.Errorf("failed to create rule: %w", err)
	}

	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Rule, error) {
	query := `
		SELECT id, name, pattern, is_regex, source_type, package_filter, endpoint, method, headers, is_active, created_at, updated_at
		FROM forwarding_rules
		WHERE id = $1
	`

	rule, err := scanRule(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("rule not found: %w", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}

	return rule, nil
}

func (r *PostgresRepository) List(ctx context.Context) ([]Rule, error) {
	query := `
		SELECT id, name, pattern, is_regex, source_type, package_filter, endpoint, method, headers, is_active, created_at, updated_at
		FROM forwarding_rules
		ORDER BY created_at DESC
	`

	return r.queryRules(ctx, query)
}

func (r *PostgresRepository) GetActiveRules(ctx context.Context, sourceType event.SourceType) ([]Rule, error) {
	query := `
		SELECT id, name, pattern, is_regex, source_type, package_filter, endpoint, method, headers, is_active, created_at, updated_at
		FROM forwarding_rules
		WHERE is_active = true AND source_type = $1
		ORDER BY id ASC
	`

	return r.queryRules(ctx, query, string(sourceType))
}

func (r *PostgresRepository) Update(ctx context.Context, rule *Rule) error {
	rule.UpdatedAt = time.Now()

	headers, err := marshalHeaders(rule.Headers)
	if err != nil {
		return err
	}

	query := `
		UPDATE forwarding_rules
		SET name = $1, pattern = $2, is_regex = $3, package_filter = $4, endpoint = $5, method = $6, headers = $7, is_active = $8, updated_at = $9
		WHERE id = $10
	`

	res, err := r.db.ExecContext(ctx, query,
		rule.Name, rule.Pattern, rule.IsRegex,
		nullableFilter(rule.PackageFilter),
		rule.Endpoint, rule.Method, headers, rule.IsActive,
		rule.UpdatedAt, rule.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("rule not found")
	}

	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM forwarding_rules WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("rule not found")
	}

	return nil
}

func (r *PostgresRepository) queryRules(ctx context.Context, query string, args ...interface{}) ([]Rule, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer rows.Close()

	var rules []Rule
	for rows.Next() {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("context cancelled: %w", ctx.Err())
		default:
		}

		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rules = append(rules, *rule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return rules, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRule(row rowScanner) (*Rule, error) {
	var (
		rule       Rule
		sourceType string
		filter     sql.NullString
		headers    []byte
	)

	if err := row.Scan(
		&rule.ID, &rule.Name, &rule.Pattern, &rule.IsRegex,
		&sourceType, &filter, &rule.Endpoint, &rule.Method,
		&headers, &rule.IsActive, &rule.CreatedAt, &rule.UpdatedAt,
	); err != nil {
		return nil, err
	}

	rule.SourceType = event.SourceType(sourceType)
	if filter.Valid {
		value := filter.String
		rule.PackageFilter = &value
	}

	if len(headers) > 0 {
		if err := json.Unmarshal(headers, &rule.Headers); err != nil {
			return nil, fmt.Errorf("failed to decode headers: %w", err)
		}
	}

	return &rule, nil
}

func marshalHeaders(headers map[string]string) ([]byte, error) {
	if len(headers) == 0 {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(headers)
	if err != nil {
		return nil, fmt.Errorf("failed to encode headers: %w", err)
	}
	return data, nil
}

func nullableFilter(filter *string) sql.NullString {
	if filter == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *filter, Valid: true}
}
