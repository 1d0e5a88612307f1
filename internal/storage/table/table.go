// Package table defines the row-and-column result shape returned by load:
// one row per record, one column per distinct metric name, sparse cells.
package table

import (
	"sort"
	"time"

	"github.com/xtxerr/runlog/internal/record"
)

// Row is one loaded record. Values is sparse: a record that never mentioned
// a metric has no entry for it.
type Row struct {
	Timestamp time.Time
	Step      *int64
	Values    map[string]float64
}

// Value returns the cell for a metric and whether it is present.
func (r Row) Value(metric string) (float64, bool) {
	v, ok := r.Values[metric]
	return v, ok
}

// Table is the full reconstructed history of a run.
type Table struct {
	rows    []Row
	columns map[string]struct{}
}

// New returns an empty table.
func New() *Table {
	return &Table{columns: make(map[string]struct{})}
}

// FromRecords builds a table from records in the given order. If
// metricNames is non-nil, only matching metric columns are populated, but
// every record still contributes a row.
func FromRecords(records []*record.Metric, metricNames []string) *Table {
	var filter map[string]struct{}
	if metricNames != nil {
		filter = make(map[string]struct{}, len(metricNames))
		for _, name := range metricNames {
			filter[name] = struct{}{}
		}
	}

	t := New()
	for _, rec := range records {
		row := Row{
			Timestamp: rec.Timestamp,
			Step:      rec.Step,
			Values:    make(map[string]float64, len(rec.Metrics)),
		}
		for name, v := range rec.Metrics {
			if filter != nil {
				if _, ok := filter[name]; !ok {
					continue
				}
			}
			row.Values[name] = v
		}
		t.Append(row)
	}
	return t
}

// Append adds a row, extending the column set with the row's metric names.
func (t *Table) Append(row Row) {
	for name := range row.Values {
		t.columns[name] = struct{}{}
	}
	t.rows = append(t.rows, row)
}

// Rows returns the rows in table order.
func (t *Table) Rows() []Row {
	return t.rows
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.rows)
}

// MetricNames returns the distinct metric names observed across all rows,
// sorted.
func (t *Table) MetricNames() []string {
	names := make([]string, 0, len(t.columns))
	for name := range t.columns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Columns returns the full column set: timestamp and step first, then the
// metric names in sorted order.
func (t *Table) Columns() []string {
	return append([]string{"timestamp", "step"}, t.MetricNames()...)
}

// SortByTimestamp sorts rows ascending by timestamp. The sort is stable and
// breaks timestamp ties by step so that repeated loads return an identical
// order.
func (t *Table) SortByTimestamp() {
	sort.SliceStable(t.rows, func(i, j int) bool {
		ti, tj := t.rows[i].Timestamp, t.rows[j].Timestamp
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		si, sj := t.rows[i].Step, t.rows[j].Step
		switch {
		case si == nil && sj == nil:
			return false
		case si == nil:
			return true
		case sj == nil:
			return false
		default:
			return *si < *sj
		}
	})
}
