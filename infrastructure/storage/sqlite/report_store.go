package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"github.com/felixgeelhaar/itinerary/domain/report"
)

// ReportStore is a SQLite-backed implementation of report.Store.
type ReportStore struct {
	db *sql.DB
}

// NewReportStore opens the database described by cfg and creates the
// reports table when it is missing.
func NewReportStore(cfg Config) (*ReportStore, error) {
	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}

	s := &ReportStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewReportStoreFromDB creates a report store from an existing database
// connection.
func NewReportStoreFromDB(db *sql.DB) (*ReportStore, error) {
	s := &ReportStore{db: db}

	if err := s.migrate(); err != nil {
		return nil, err
	}

	return s, nil
}

// migrate creates the reports table if it doesn't exist.
func (s *ReportStore) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS reports (
			id TEXT PRIMARY KEY,
			agent_id TEXT NOT NULL,
			short_name TEXT NOT NULL,
			has_errors INTEGER NOT NULL,
			data BLOB NOT NULL,
			completed_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_reports_completed_at ON reports(completed_at);
		CREATE INDEX IF NOT EXISTS idx_reports_short_name ON reports(short_name);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return errors.Join(ErrMigrationFailed, err)
	}

	return nil
}

// Save persists a new report.
func (s *ReportStore) Save(ctx context.Context, r *report.Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if r.ID == "" {
		return report.ErrInvalidReportID
	}

	data, err := json.Marshal(r)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO reports (id, agent_id, short_name, has_errors, data, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.AgentID, r.ShortName, r.HasErrors(), data, r.CompletedAt.UnixNano(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return report.ErrReportExists
		}
		return err
	}

	return nil
}

// Get retrieves a report by ID.
func (s *ReportStore) Get(ctx context.Context, id string) (*report.Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if id == "" {
		return nil, report.ErrInvalidReportID
	}

	var data []byte
	err := s.db.QueryRowContext(ctx, "SELECT data FROM reports WHERE id = ?", id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, report.ErrReportNotFound
	}
	if err != nil {
		return nil, err
	}

	var r report.Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Delete removes a report by ID.
func (s *ReportStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if id == "" {
		return report.ErrInvalidReportID
	}

	result, err := s.db.ExecContext(ctx, "DELETE FROM reports WHERE id = ?", id)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return report.ErrReportNotFound
	}

	return nil
}

// List returns reports matching the filter, most recent first.
func (s *ReportStore) List(ctx context.Context, filter report.ListFilter) ([]*report.Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	query, args := buildListQuery(filter, false)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var reports []*report.Report
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}

		var r report.Report
		if err := json.Unmarshal(data, &r); err != nil {
			continue // Skip malformed entries
		}
		reports = append(reports, &r)
	}

	return reports, rows.Err()
}

// Count returns the number of reports matching the filter.
func (s *ReportStore) Count(ctx context.Context, filter report.ListFilter) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	query, args := buildListQuery(filter, true)

	var count int64
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&count)
	return count, err
}

// Close closes the database connection.
func (s *ReportStore) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection.
func (s *ReportStore) DB() *sql.DB {
	return s.db
}

// buildListQuery constructs the SELECT or COUNT query for filter.
func buildListQuery(filter report.ListFilter, countOnly bool) (string, []any) {
	where, args := buildWhereClause(filter)

	if countOnly {
		return "SELECT COUNT(*) FROM reports" + where, args
	}

	query := "SELECT data FROM reports" + where + " ORDER BY completed_at DESC, id ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	return query, args
}

// buildWhereClause constructs the WHERE clause from filter.
func buildWhereClause(filter report.ListFilter) (string, []any) {
	var conditions []string
	var args []any

	if filter.ShortNamePrefix != "" {
		conditions = append(conditions, `short_name LIKE ? ESCAPE '\'`)
		args = append(args, escapeLike(filter.ShortNamePrefix)+"%")
	}

	if filter.ErrorsOnly {
		conditions = append(conditions, "has_errors = 1")
	}

	if len(conditions) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// isUniqueViolation checks if the error is a unique constraint violation.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

var _ report.Store = (*ReportStore)(nil)
