package report

import "context"

// Store defines the interface for report persistence.
type Store interface {
	// Save persists a new report.
	Save(ctx context.Context, r *Report) error

	// Get retrieves a report by ID.
	Get(ctx context.Context, id string) (*Report, error)

	// Delete removes a report by ID.
	Delete(ctx context.Context, id string) error

	// List returns reports matching the filter, most recent first.
	List(ctx context.Context, filter ListFilter) ([]*Report, error)

	// Count returns the number of reports matching the filter.
	Count(ctx context.Context, filter ListFilter) (int64, error)
}

// ListFilter specifies criteria for listing reports.
type ListFilter struct {
	// ShortNamePrefix filters by payload short name prefix.
	ShortNamePrefix string

	// ErrorsOnly keeps runs that ended in error.
	ErrorsOnly bool

	// Limit is the maximum number of reports to return (0 = no limit).
	Limit int
}
