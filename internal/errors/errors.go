// Package errors consolidates error definitions for the runlog engine.
//
// It provides:
// - Sentinel errors for all error conditions
// - Error category checking functions
// - Error wrapping utilities and contextual constructors
package errors

import (
	"errors"
	"fmt"
)

// ============================================================================
// Sentinel errors for common conditions
// ============================================================================

var (
	// Not found errors
	ErrNotFound        = errors.New("not found")
	ErrRunNotFound     = errors.New("run not found")
	ErrProjectNotFound = errors.New("project not found")

	// Validation errors
	ErrInvalidRecord      = errors.New("invalid record")
	ErrEmptyMetrics       = errors.New("metrics mapping is empty")
	ErrInvalidMetricName  = errors.New("invalid metric name")
	ErrInvalidMetricValue = errors.New("invalid metric value")
	ErrInvalidName        = errors.New("invalid name")

	// Configuration errors
	ErrInvalidConfig  = errors.New("invalid configuration")
	ErrUnknownBackend = errors.New("unknown storage backend")

	// Storage errors
	ErrStorage = errors.New("storage failure")
)

// ============================================================================
// Helper functions for error checking
// ============================================================================

// Is is a convenience wrapper for errors.Is
var Is = errors.Is

// As is a convenience wrapper for errors.As
var As = errors.As

// IsNotFound returns true if err is a not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrRunNotFound) ||
		errors.Is(err, ErrProjectNotFound)
}

// IsValidation returns true if err is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidRecord) ||
		errors.Is(err, ErrEmptyMetrics) ||
		errors.Is(err, ErrInvalidMetricName) ||
		errors.Is(err, ErrInvalidMetricValue) ||
		errors.Is(err, ErrInvalidName)
}

// IsConfig returns true if err is a configuration error.
func IsConfig(err error) bool {
	return errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrUnknownBackend)
}

// IsStorage returns true if err is a storage I/O error.
func IsStorage(err error) bool {
	return errors.Is(err, ErrStorage)
}

// ============================================================================
// Error wrapping utilities
// ============================================================================

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// ============================================================================
// Error constructors with context
// ============================================================================

// NewRunNotFound creates a run-not-found error naming the run.
func NewRunNotFound(project, run string) error {
	return fmt.Errorf("run '%s/%s': %w", project, run, ErrRunNotFound)
}

// NewProjectNotFound creates a project-not-found error naming the project.
func NewProjectNotFound(project string) error {
	return fmt.Errorf("project '%s': %w", project, ErrProjectNotFound)
}

// NewValidation creates a validation error with context.
func NewValidation(field, reason string) error {
	return fmt.Errorf("invalid %s: %s: %w", field, reason, ErrInvalidRecord)
}

// NewInvalidValue creates an invalid metric value error naming the metric.
func NewInvalidValue(metric string, value interface{}, reason string) error {
	return fmt.Errorf("metric '%s' value '%v': %s: %w", metric, value, reason, ErrInvalidMetricValue)
}

// NewUnknownBackend creates a configuration error naming the invalid backend.
func NewUnknownBackend(name string) error {
	return fmt.Errorf("backend '%s': %w", name, ErrUnknownBackend)
}
