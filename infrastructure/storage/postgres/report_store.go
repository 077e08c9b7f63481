package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/felixgeelhaar/itinerary/domain/report"
)

// uniqueViolation is the SQLSTATE of a duplicate primary key.
const uniqueViolation = "23505"

// ReportStore is a PostgreSQL-backed implementation of report.Store.
type ReportStore struct {
	pool   *pgxpool.Pool
	schema string
}

// NewReportStore creates a new PostgreSQL report store.
func NewReportStore(pool *pgxpool.Pool, schema string) *ReportStore {
	if schema == "" {
		schema = "public"
	}
	return &ReportStore{
		pool:   pool,
		schema: schema,
	}
}

// tableName returns the fully qualified table name.
func (s *ReportStore) tableName() string {
	return fmt.Sprintf("%s.reports", s.schema)
}

// Migrate creates the reports table if it doesn't exist.
func (s *ReportStore) Migrate(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			id TEXT PRIMARY KEY,
			agent_id TEXT NOT NULL,
			run_id TEXT NOT NULL,
			short_name TEXT NOT NULL,
			forms JSONB NOT NULL,
			history JSONB NOT NULL,
			processing_error TEXT NOT NULL DEFAULT '',
			move_errors INTEGER NOT NULL DEFAULT 0,
			batch INTEGER NOT NULL DEFAULT 1,
			has_errors BOOLEAN NOT NULL,
			completed_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_reports_completed_at ON %[1]s (completed_at DESC);
	`, s.tableName())

	if _, err := s.pool.Exec(ctx, query); err != nil {
		return s.wrapError(err)
	}
	return nil
}

// Save persists a new report.
func (s *ReportStore) Save(ctx context.Context, r *report.Report) error {
	if r.ID == "" {
		return report.ErrInvalidReportID
	}

	forms, err := json.Marshal(r.Forms)
	if err != nil {
		return fmt.Errorf("marshal forms: %w", err)
	}

	history, err := json.Marshal(r.History)
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, agent_id, run_id, short_name, forms, history, processing_error, move_errors, batch, has_errors, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, s.tableName())

	_, err = s.pool.Exec(ctx, query,
		r.ID,
		r.AgentID,
		r.RunID,
		r.ShortName,
		forms,
		history,
		r.ProcessingError,
		r.MoveErrors,
		r.Batch,
		r.HasErrors(),
		r.CompletedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return report.ErrReportExists
		}
		return s.wrapError(err)
	}

	return nil
}

// Get retrieves a report by ID.
func (s *ReportStore) Get(ctx context.Context, id string) (*report.Report, error) {
	if id == "" {
		return nil, report.ErrInvalidReportID
	}

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, selectColumns, s.tableName())

	r, err := scanReport(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, report.ErrReportNotFound
		}
		return nil, s.wrapError(err)
	}
	return r, nil
}

// Delete removes a report by ID.
func (s *ReportStore) Delete(ctx context.Context, id string) error {
	if id == "" {
		return report.ErrInvalidReportID
	}

	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, s.tableName())

	result, err := s.pool.Exec(ctx, query, id)
	if err != nil {
		return s.wrapError(err)
	}

	if result.RowsAffected() == 0 {
		return report.ErrReportNotFound
	}

	return nil
}

// List returns reports matching the filter, most recent first.
func (s *ReportStore) List(ctx context.Context, filter report.ListFilter) ([]*report.Report, error) {
	query, args := s.buildListQuery(filter)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, s.wrapError(err)
	}
	defer rows.Close()

	var reports []*report.Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, r)
	}

	if err := rows.Err(); err != nil {
		return nil, s.wrapError(err)
	}

	return reports, nil
}

// Count returns the number of reports matching the filter.
func (s *ReportStore) Count(ctx context.Context, filter report.ListFilter) (int64, error) {
	query, args := s.buildCountQuery(filter)

	var count int64
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, s.wrapError(err)
	}

	return count, nil
}

const selectColumns = "id, agent_id, run_id, short_name, forms, history, processing_error, move_errors, batch, completed_at"

// buildListQuery constructs the SELECT query for listing reports.
func (s *ReportStore) buildListQuery(filter report.ListFilter) (string, []any) {
	whereClause, args := s.buildWhereClause(filter)

	query := fmt.Sprintf(`SELECT %s FROM %s%s ORDER BY completed_at DESC, id ASC`, selectColumns, s.tableName(), whereClause)

	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	return query, args
}

// buildCountQuery constructs the COUNT query.
func (s *ReportStore) buildCountQuery(filter report.ListFilter) (string, []any) {
	whereClause, args := s.buildWhereClause(filter)
	return fmt.Sprintf(`SELECT COUNT(*) FROM %s%s`, s.tableName(), whereClause), args
}

// buildWhereClause constructs the WHERE clause from filter.
func (s *ReportStore) buildWhereClause(filter report.ListFilter) (string, []any) {
	var conditions []string
	var args []any

	if filter.ShortNamePrefix != "" {
		args = append(args, filter.ShortNamePrefix)
		conditions = append(conditions, fmt.Sprintf("starts_with(short_name, $%d)", len(args)))
	}

	if filter.ErrorsOnly {
		conditions = append(conditions, "has_errors")
	}

	if len(conditions) == 0 {
		return "", args
	}

	return " WHERE " + strings.Join(conditions, " AND "), args
}

// scanReport scans a row into a Report.
func scanReport(row pgx.Row) (*report.Report, error) {
	var r report.Report
	var forms, history []byte
	var completedAt time.Time

	err := row.Scan(
		&r.ID,
		&r.AgentID,
		&r.RunID,
		&r.ShortName,
		&forms,
		&history,
		&r.ProcessingError,
		&r.MoveErrors,
		&r.Batch,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}
	r.CompletedAt = completedAt.UTC()

	if err := json.Unmarshal(forms, &r.Forms); err != nil {
		return nil, fmt.Errorf("unmarshal forms: %w", err)
	}

	if err := json.Unmarshal(history, &r.History); err != nil {
		return nil, fmt.Errorf("unmarshal history: %w", err)
	}

	return &r, nil
}

// wrapError wraps database errors with domain errors.
func (s *ReportStore) wrapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	return errors.Join(report.ErrConnectionFailed, err)
}

var _ report.Store = (*ReportStore)(nil)
