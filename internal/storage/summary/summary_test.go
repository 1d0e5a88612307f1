package summary

import (
	"math"
	"testing"
	"time"

	"github.com/xtxerr/runlog/internal/storage/table"
)

func stepPtr(v int64) *int64 { return &v }

func buildTable(rows []table.Row) *table.Table {
	t := table.New()
	for _, row := range rows {
		t.Append(row)
	}
	return t
}

func TestFromTable_BasicStats(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tab := buildTable([]table.Row{
		{Timestamp: base, Step: stepPtr(0), Values: map[string]float64{"loss": 4.0}},
		{Timestamp: base.Add(time.Second), Step: stepPtr(1), Values: map[string]float64{"loss": 2.0}},
		{Timestamp: base.Add(2 * time.Second), Step: stepPtr(2), Values: map[string]float64{"loss": 1.0}},
	})

	summaries := FromTable(tab, DefaultAccuracy)
	if len(summaries) != 1 {
		t.Fatalf("summaries: got %d, want 1", len(summaries))
	}

	s := summaries[0]
	if s.Name != "loss" {
		t.Errorf("name: got %q", s.Name)
	}
	if s.Count != 3 {
		t.Errorf("count: got %d, want 3", s.Count)
	}
	if s.Min != 1.0 || s.Max != 4.0 {
		t.Errorf("min/max: got %v/%v, want 1/4", s.Min, s.Max)
	}
	if s.Sum != 7.0 {
		t.Errorf("sum: got %v, want 7", s.Sum)
	}
	if math.Abs(s.Avg-7.0/3.0) > 1e-9 {
		t.Errorf("avg: got %v", s.Avg)
	}
	if s.Last != 1.0 {
		t.Errorf("last: got %v, want 1", s.Last)
	}
	if s.LastStep == nil || *s.LastStep != 2 {
		t.Errorf("last step: got %v, want 2", s.LastStep)
	}
}

func TestFromTable_SparseColumns(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tab := buildTable([]table.Row{
		{Timestamp: base, Values: map[string]float64{"loss": 1.0, "acc": 0.5}},
		{Timestamp: base.Add(time.Second), Values: map[string]float64{"loss": 0.5}},
	})

	summaries := FromTable(tab, DefaultAccuracy)
	if len(summaries) != 2 {
		t.Fatalf("summaries: got %d, want 2", len(summaries))
	}

	// Sorted by name: acc first.
	if summaries[0].Name != "acc" || summaries[1].Name != "loss" {
		t.Fatalf("order: got %q, %q", summaries[0].Name, summaries[1].Name)
	}
	if summaries[0].Count != 1 {
		t.Errorf("acc count: got %d, want 1", summaries[0].Count)
	}
	if summaries[1].Count != 2 {
		t.Errorf("loss count: got %d, want 2", summaries[1].Count)
	}
}

func TestFromTable_Percentiles(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tab := table.New()
	for i := 1; i <= 1000; i++ {
		tab.Append(table.Row{
			Timestamp: base.Add(time.Duration(i) * time.Second),
			Values:    map[string]float64{"latency": float64(i)},
		})
	}

	summaries := FromTable(tab, DefaultAccuracy)
	s := summaries[0]

	if s.P50 == nil || s.P99 == nil {
		t.Fatal("percentiles missing")
	}
	// 1% relative accuracy.
	if math.Abs(*s.P50-500) > 500*0.02 {
		t.Errorf("p50: got %v, want ~500", *s.P50)
	}
	if math.Abs(*s.P99-990) > 990*0.02 {
		t.Errorf("p99: got %v, want ~990", *s.P99)
	}
	if *s.P50 > *s.P99 {
		t.Errorf("p50 %v above p99 %v", *s.P50, *s.P99)
	}
}

func TestFromTable_Empty(t *testing.T) {
	summaries := FromTable(table.New(), DefaultAccuracy)
	if len(summaries) != 0 {
		t.Errorf("got %d summaries, want 0", len(summaries))
	}
}

func TestFromTable_InvalidAccuracyFallsBack(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tab := buildTable([]table.Row{
		{Timestamp: base, Values: map[string]float64{"loss": 1.0}},
	})

	summaries := FromTable(tab, -1)
	if len(summaries) != 1 || summaries[0].Count != 1 {
		t.Fatalf("unexpected summaries: %+v", summaries)
	}
}
