// Package record defines the typed records flowing through the storage
// engine: metric records (one logical write) and run status records.
package record

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/xtxerr/runlog/internal/errors"
	"github.com/xtxerr/runlog/internal/validation"
)

// Metric is one logical write: a set of named numeric values captured at a
// timestamp, optionally tagged with a step index and a (project, run)
// identity. Construct with New; the constructor copies and validates its
// input, and a constructed record must not be mutated afterward.
type Metric struct {
	// Timestamp is the capture instant. Never zero for a record built
	// through New.
	Timestamp time.Time

	// Step is an optional monotonic-ish step index; nil means "uncounted".
	Step *int64

	// Metrics maps metric name to value. Non-empty; every key non-empty;
	// every value finite.
	Metrics map[string]float64

	// Run and Project are optional identity tags, used only when multiple
	// runs are interleaved in one physical store.
	Run     string
	Project string
}

// Option configures optional fields on a record under construction.
type Option func(*Metric)

// WithStep tags the record with a step index.
func WithStep(step int64) Option {
	return func(m *Metric) {
		s := step
		m.Step = &s
	}
}

// WithTimestamp overrides the capture timestamp.
func WithTimestamp(ts time.Time) Option {
	return func(m *Metric) {
		m.Timestamp = ts
	}
}

// WithRun tags the record with a run name.
func WithRun(run string) Option {
	return func(m *Metric) {
		m.Run = run
	}
}

// WithProject tags the record with a project name.
func WithProject(project string) Option {
	return func(m *Metric) {
		m.Project = project
	}
}

// New builds a validated Metric from a loosely typed mapping. Numeric values
// (all int and float kinds) are converted to float64 and bools are coerced
// to 0/1; anything else is rejected with a validation error. The metrics
// mapping must be non-empty and every key non-empty.
func New(values map[string]any, opts ...Option) (*Metric, error) {
	if len(values) == 0 {
		return nil, errors.ErrEmptyMetrics
	}

	metrics := make(map[string]float64, len(values))
	for name, v := range values {
		if err := validation.ValidateMetricName(name); err != nil {
			return nil, err
		}
		f, err := coerceValue(name, v)
		if err != nil {
			return nil, err
		}
		metrics[name] = f
	}

	m := &Metric{
		Timestamp: time.Now().UTC(),
		Metrics:   metrics,
	}
	for _, opt := range opts {
		opt(m)
	}

	return m, nil
}

// coerceValue converts a scalar to float64, rejecting non-numeric values.
func coerceValue(name string, v any) (float64, error) {
	var f float64

	switch x := v.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int8:
		f = float64(x)
	case int16:
		f = float64(x)
	case int32:
		f = float64(x)
	case int64:
		f = float64(x)
	case uint:
		f = float64(x)
	case uint8:
		f = float64(x)
	case uint16:
		f = float64(x)
	case uint32:
		f = float64(x)
	case uint64:
		f = float64(x)
	case bool:
		if x {
			f = 1
		}
	default:
		return 0, errors.NewInvalidValue(name, v, "value must be numeric or boolean")
	}

	// NaN and infinities cannot round-trip through the persisted format.
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errors.NewInvalidValue(name, v, "value must be finite")
	}

	return f, nil
}

// Validate re-checks the record invariants. Records built through New always
// pass; this guards records assembled directly by collaborators.
func (m *Metric) Validate() error {
	if m == nil {
		return fmt.Errorf("nil record: %w", errors.ErrInvalidRecord)
	}
	if len(m.Metrics) == 0 {
		return errors.ErrEmptyMetrics
	}
	if m.Timestamp.IsZero() {
		return errors.NewValidation("timestamp", "timestamp must be set")
	}
	for name, v := range m.Metrics {
		if err := validation.ValidateMetricName(name); err != nil {
			return err
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.NewInvalidValue(name, v, "value must be finite")
		}
	}
	return nil
}

// MetricNames returns the record's metric names in sorted order.
func (m *Metric) MetricNames() []string {
	names := make([]string, 0, len(m.Metrics))
	for name := range m.Metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns a deep copy of the record.
func (m *Metric) Clone() *Metric {
	c := &Metric{
		Timestamp: m.Timestamp,
		Run:       m.Run,
		Project:   m.Project,
		Metrics:   make(map[string]float64, len(m.Metrics)),
	}
	if m.Step != nil {
		s := *m.Step
		c.Step = &s
	}
	for k, v := range m.Metrics {
		c.Metrics[k] = v
	}
	return c
}
