package config

import "errors"

// Validation errors returned by Config.Validate. Callers match them with
// errors.Is.
var (
	// ErrConfigNotFound is returned when an explicitly named file is missing.
	ErrConfigNotFound = errors.New("configuration file not found")

	// ErrInvalidVerbosity is returned for a verbosity other than normal or
	// verbose.
	ErrInvalidVerbosity = errors.New("invalid verbosity: must be normal or verbose")

	// ErrInvalidDuration is returned when an engine interval is negative.
	ErrInvalidDuration = errors.New("invalid duration: must be non-negative")

	// ErrInvalidAttempts is returned when a retry budget is negative.
	ErrInvalidAttempts = errors.New("invalid attempts: must be non-negative")

	// ErrInvalidNavigation is returned for an unknown navigation strategy.
	ErrInvalidNavigation = errors.New("invalid navigation: must be poll, hooks or both")

	// ErrBlankKeyword is returned when the blocklist holds an empty entry.
	ErrBlankKeyword = errors.New("invalid blocked keyword: must not be blank")

	// ErrInvalidBodySize is returned when the server body limit is negative.
	ErrInvalidBodySize = errors.New("invalid max body size: must be non-negative")
)
