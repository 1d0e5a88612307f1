// Package validation provides centralized input validation for runlog.
//
// Project and run names become path components under the data directory, so
// the rules here are the path-safety boundary the storage engine relies on.
package validation

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/xtxerr/runlog/internal/errors"
)

// =============================================================================
// Name Validation
// =============================================================================

// NameRules defines the validation rules for entity names.
type NameRules struct {
	MinLength    int
	MaxLength    int
	AllowDots    bool
	AllowHyphens bool
	AllowUnders  bool
}

// PathNameRules returns the rules for names used as filesystem path
// components (projects and runs).
func PathNameRules() NameRules {
	return NameRules{
		MinLength:    1,
		MaxLength:    255,
		AllowDots:    false,
		AllowHyphens: true,
		AllowUnders:  true,
	}
}

// ValidateName validates a name according to the given rules.
func ValidateName(name string, rules NameRules) error {
	if len(name) < rules.MinLength {
		return fmt.Errorf("name too short: minimum %d characters required", rules.MinLength)
	}
	if len(name) > rules.MaxLength {
		return fmt.Errorf("name too long: maximum %d characters allowed", rules.MaxLength)
	}

	if name == "." || name == ".." {
		return fmt.Errorf("name cannot be '.' or '..'")
	}

	if strings.HasPrefix(name, ".") {
		return fmt.Errorf("name cannot start with '.'")
	}

	for i, r := range name {
		if r < 32 || r == 127 {
			return fmt.Errorf("name cannot contain control characters at position %d", i)
		}
		if r == '/' || r == '\\' {
			return fmt.Errorf("name cannot contain path separators at position %d", i)
		}
		if !isAllowedNameChar(r, rules) {
			return fmt.Errorf("invalid character '%c' at position %d", r, i)
		}
	}

	return nil
}

func isAllowedNameChar(r rune, rules NameRules) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) {
		return true
	}
	switch r {
	case '.':
		return rules.AllowDots
	case '-':
		return rules.AllowHyphens
	case '_':
		return rules.AllowUnders
	}
	return false
}

// =============================================================================
// Domain-specific validators
// =============================================================================

// ValidateProjectName validates a project name as a safe path component.
func ValidateProjectName(name string) error {
	if err := ValidateName(name, PathNameRules()); err != nil {
		return fmt.Errorf("project name: %v: %w", err, errors.ErrInvalidName)
	}
	return nil
}

// ValidateRunName validates a run name as a safe path component.
func ValidateRunName(name string) error {
	if err := ValidateName(name, PathNameRules()); err != nil {
		return fmt.Errorf("run name: %v: %w", err, errors.ErrInvalidName)
	}
	return nil
}

// ValidateMetricName validates a metric name.
func ValidateMetricName(name string) error {
	if name == "" {
		return fmt.Errorf("metric name cannot be empty: %w", errors.ErrInvalidMetricName)
	}
	for i, r := range name {
		if r < 32 || r == 127 {
			return fmt.Errorf("metric name '%s': control character at position %d: %w",
				name, i, errors.ErrInvalidMetricName)
		}
	}
	return nil
}
