// Package summary collapses a loaded run table into per-metric statistics
// for dashboard-style consumers: count, min, max, avg, last value, and
// DDSketch-backed percentiles.
package summary

import (
	"math"
	"sort"

	"github.com/DataDog/sketches-go/ddsketch"
	"github.com/xtxerr/runlog/internal/storage/table"
)

// DefaultAccuracy is the DDSketch relative accuracy (1% error).
const DefaultAccuracy = 0.01

// MetricSummary holds the statistics of one metric across a run.
type MetricSummary struct {
	Name  string
	Count int64
	Min   float64
	Max   float64
	Sum   float64
	Avg   float64

	// Last is the metric's value in the last row that mentions it, in table
	// order; LastStep is that row's step, if any.
	Last     float64
	LastStep *int64

	// Percentiles; nil when the sketch could not produce them.
	P50 *float64
	P90 *float64
	P95 *float64
	P99 *float64
}

// accumulator maintains running statistics for one metric.
type accumulator struct {
	count    int64
	sum      float64
	min      float64
	max      float64
	last     float64
	lastStep *int64
	sketch   *ddsketch.DDSketch
}

func newAccumulator(accuracy float64) *accumulator {
	acc := &accumulator{
		min: math.MaxFloat64,
		max: -math.MaxFloat64,
	}
	// A sketch construction failure only disables percentiles.
	if sketch, err := ddsketch.NewDefaultDDSketch(accuracy); err == nil {
		acc.sketch = sketch
	}
	return acc
}

func (a *accumulator) add(v float64, step *int64) {
	a.count++
	a.sum += v
	if v < a.min {
		a.min = v
	}
	if v > a.max {
		a.max = v
	}
	a.last = v
	a.lastStep = step

	if a.sketch != nil {
		a.sketch.Add(v)
	}
}

func (a *accumulator) quantile(q float64) *float64 {
	if a.sketch == nil {
		return nil
	}
	v, err := a.sketch.GetValueAtQuantile(q)
	if err != nil {
		return nil
	}
	return &v
}

// FromTable summarizes every metric column of a table, sorted by metric
// name. The table's row order determines the Last value, so callers pass
// tables as returned by load.
func FromTable(t *table.Table, accuracy float64) []MetricSummary {
	if accuracy <= 0 {
		accuracy = DefaultAccuracy
	}

	accs := make(map[string]*accumulator)
	for _, row := range t.Rows() {
		for name, v := range row.Values {
			acc, ok := accs[name]
			if !ok {
				acc = newAccumulator(accuracy)
				accs[name] = acc
			}
			acc.add(v, row.Step)
		}
	}

	names := make([]string, 0, len(accs))
	for name := range accs {
		names = append(names, name)
	}
	sort.Strings(names)

	summaries := make([]MetricSummary, 0, len(names))
	for _, name := range names {
		acc := accs[name]
		s := MetricSummary{
			Name:     name,
			Count:    acc.count,
			Min:      acc.min,
			Max:      acc.max,
			Sum:      acc.sum,
			Last:     acc.last,
			LastStep: acc.lastStep,
			P50:      acc.quantile(0.50),
			P90:      acc.quantile(0.90),
			P95:      acc.quantile(0.95),
			P99:      acc.quantile(0.99),
		}
		if acc.count > 0 {
			s.Avg = acc.sum / float64(acc.count)
		}
		summaries = append(summaries, s)
	}

	return summaries
}
