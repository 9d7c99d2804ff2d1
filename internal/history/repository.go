package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"relay/internal/constants"
	"relay/internal/event"
)

type Repository interface {
	Create(ctx context.Context, record *Record) error
	UpdateOutcome(ctx context.Context, id string, update OutcomeUpdate) error
	GetByID(ctx context.Context, id string) (*Record, error)
	List(ctx context.Context, filter Filter) ([]Record, error)
	Stats(ctx context.Context) (*Stats, error)
	Delete(ctx context.Context, id string) error
	Trim(ctx context.Context, keep int) (int64, error)
}

type PostgresRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &PostgresRepository{db: db}
}

const recordColumns = `id, rule_id, matched_rule, source_type, sender_number, package_name, app_name, title, text, message_body,
	endpoint, method, request_headers, request_body, response_code, response_body, error_message, status, timestamp, forwarded_at`

func (r *PostgresRepository) Create(ctx context.Context, record *Record) error {
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}

	headers, err := marshalHeaders(record.RequestHeaders)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO history_records (` + recordColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
	`

	_, err = r.db.ExecContext(ctx, query,
		record.ID, nullableString(record.RuleID), record.MatchedRule,
		string(record.SourceType), record.SenderNumber, record.PackageName,
		record.AppName, record.Title, record.Text, record.MessageBody,
		record.Endpoint, record.Method, headers, record.RequestBody,
		nullableInt(record.ResponseCode), record.ResponseBody, record.ErrorMessage,
		string(record.Status), record.Timestamp, nullableTime(record.ForwardedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create history record: %w", err)
	}

	return nil
}

func (r *PostgresRepository) UpdateOutcome(ctx context.Context, id string, update OutcomeUpdate) error {
	query := `
		UPDATE history_records
		SET status = $1, response_code = $2, response_body = $3, error_message = $4, forwarded_at = $5
		WHERE id = $6
	`

	res, err := r.db.ExecContext(ctx, query,
		string(update.Status), nullableInt(update.ResponseCode),
		update.ResponseBody, update.ErrorMessage, update.ForwardedAt, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update history record: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("history record not found")
	}

	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Record, error) {
	query := `SELECT ` + recordColumns + ` FROM history_records WHERE id = $1`

	record, err := scanRecord(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("history record not found: %w", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get history record: %w", err)
	}

	return record, nil
}

func (r *PostgresRepository) List(ctx context.Context, filter Filter) ([]Record, error) {
	where, args := buildWhere(filter)

	limit := filter.Limit
	if limit <= 0 {
		limit = constants.DefaultLimit
	}
	if limit > constants.MaxLimit {
		limit = constants.MaxLimit
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`
		SELECT `+recordColumns+`
		FROM history_records
		%s
		ORDER BY timestamp DESC
		LIMIT $%d OFFSET $%d
	`, where, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query history records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("context cancelled: %w", ctx.Err())
		default:
		}

		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history record: %w", err)
		}
		records = append(records, *record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return records, nil
}

func (r *PostgresRepository) Stats(ctx context.Context) (*Stats, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE matched_rule),
			COUNT(*) FILTER (WHERE status = 'SUCCESS'),
			COUNT(*) FILTER (WHERE status = 'FAILED')
		FROM history_records
	`

	var stats Stats
	err := r.db.QueryRowContext(ctx, query).Scan(&stats.Total, &stats.Matched, &stats.Success, &stats.Failed)
	if err != nil {
		return nil, fmt.Errorf("failed to query history stats: %w", err)
	}

	return &stats, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM history_records WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete history record: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("history record not found")
	}

	return nil
}

// Trim deletes everything but the most recent keep rows and returns the
// number of rows removed.
func (r *PostgresRepository) Trim(ctx context.Context, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}

	query := `
		DELETE FROM history_records
		WHERE id NOT IN (
			SELECT id FROM history_records
			ORDER BY timestamp DESC
			LIMIT $1
		)
	`

	res, err := r.db.ExecContext(ctx, query, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to trim history records: %w", err)
	}

	return res.RowsAffected()
}

func buildWhere(filter Filter) (string, []interface{}) {
	var (
		clauses []string
		args    []interface{}
	)

	arg := func(value interface{}) string {
		args = append(args, value)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Package != "" {
		clauses = append(clauses, "package_name = "+arg(filter.Package))
	}
	if filter.SourceType != "" {
		clauses = append(clauses, "source_type = "+arg(string(filter.SourceType)))
	}
	if filter.Matched != nil {
		clauses = append(clauses, "matched_rule = "+arg(*filter.Matched))
	}
	if filter.Search != "" {
		pattern := arg("%" + filter.Search + "%")
		clauses = append(clauses, fmt.Sprintf(
			"(sender_number ILIKE %s OR app_name ILIKE %s OR title ILIKE %s OR message_body ILIKE %s)",
			pattern, pattern, pattern, pattern,
		))
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var (
		record       Record
		ruleID       sql.NullString
		sourceType   string
		headers      []byte
		responseCode sql.NullInt64
		status       string
		forwardedAt  sql.NullTime
	)

	if err := row.Scan(
		&record.ID, &ruleID, &record.MatchedRule, &sourceType,
		&record.SenderNumber, &record.PackageName, &record.AppName,
		&record.Title, &record.Text, &record.MessageBody,
		&record.Endpoint, &record.Method, &headers, &record.RequestBody,
		&responseCode, &record.ResponseBody, &record.ErrorMessage,
		&status, &record.Timestamp, &forwardedAt,
	); err != nil {
		return nil, err
	}

	record.SourceType = event.SourceType(sourceType)
	record.Status = Status(status)
	if ruleID.Valid {
		value := ruleID.String
		record.RuleID = &value
	}
	if responseCode.Valid {
		code := int(responseCode.Int64)
		record.ResponseCode = &code
	}
	if forwardedAt.Valid {
		t := forwardedAt.Time
		record.ForwardedAt = &t
	}

	if len(headers) > 0 {
		if err := json.Unmarshal(headers, &record.RequestHeaders); err != nil {
			return nil, fmt.Errorf("failed to decode request headers: %w", err)
		}
	}

	return &record, nil
}

func marshalHeaders(headers map[string]string) ([]byte, error) {
	if len(headers) == 0 {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(headers)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request headers: %w", err)
	}
	return data, nil
}

func nullableString(value *string) sql.NullString {
	if value == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *value, Valid: true}
}

func nullableInt(value *int) sql.NullInt64 {
	if value == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*value), Valid: true}
}

func nullableTime(value *time.Time) sql.NullTime {
	if value == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *value, Valid: true}
}
