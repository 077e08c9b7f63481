package config

import "errors"

// Loading errors. Callers wrap them with the offending name, so match them
// with errors.Is.
var (
	ErrConfigNotFound    = errors.New("config: no such file")
	ErrInvalidFormat     = errors.New("config: malformed document")
	ErrUnsupportedFormat = errors.New("config: unsupported file type")
	ErrMissingEnvVar     = errors.New("config: unset environment variable")

	// ErrValidationFailed wraps the ValidationErrors of a loaded document.
	ErrValidationFailed = errors.New("config: invalid settings")
)
