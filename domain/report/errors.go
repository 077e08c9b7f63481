package report

import "errors"

// Domain errors for report store operations.
var (
	// ErrReportNotFound is returned when a report does not exist.
	ErrReportNotFound = errors.New("report not found")

	// ErrReportExists is returned when saving a report id twice.
	ErrReportExists = errors.New("report already exists")

	// ErrInvalidReportID is returned when a report id is empty.
	ErrInvalidReportID = errors.New("invalid report ID")

	// ErrConnectionFailed is returned when connection to the store backend fails.
	ErrConnectionFailed = errors.New("store connection failed")

	// ErrUnknownDriver is returned when no store exists for a configured driver.
	ErrUnknownDriver = errors.New("unknown report store driver")
)
