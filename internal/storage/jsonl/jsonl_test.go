package jsonl

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/xtxerr/runlog/internal/record"
)

func testRecord(t *testing.T, step int64) *record.Metric {
	t.Helper()
	rec, err := record.New(map[string]any{"loss": 0.25, "acc": 0.9},
		record.WithStep(step),
		record.WithTimestamp(time.Date(2026, 1, 2, 3, 4, 5, 678900000, time.UTC)),
		record.WithRun("run-1"),
		record.WithProject("proj"),
	)
	if err != nil {
		t.Fatalf("record.New: %v", err)
	}
	return rec
}

func TestEncodeDecode(t *testing.T) {
	rec := testRecord(t, 7)

	data, err := EncodeMetric(rec)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !bytes.HasSuffix(data, []byte("\n")) {
		t.Error("encoded unit missing newline terminator")
	}
	if bytes.Count(data, []byte("\n")) != 1 {
		t.Error("encoded unit spans multiple lines")
	}

	decoded, err := DecodeMetric(bytes.TrimSpace(data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if !decoded.Timestamp.Equal(rec.Timestamp) {
		t.Errorf("timestamp: got %v, want %v", decoded.Timestamp, rec.Timestamp)
	}
	if decoded.Step == nil || *decoded.Step != 7 {
		t.Errorf("step: got %v, want 7", decoded.Step)
	}
	if decoded.Metrics["loss"] != 0.25 || decoded.Metrics["acc"] != 0.9 {
		t.Errorf("metrics: got %v", decoded.Metrics)
	}
	if decoded.Run != "run-1" || decoded.Project != "proj" {
		t.Errorf("identity: got %q/%q", decoded.Project, decoded.Run)
	}
}

func TestEncode_OmitsEmptyOptionals(t *testing.T) {
	rec, err := record.New(map[string]any{"loss": 0.5})
	if err != nil {
		t.Fatalf("record.New: %v", err)
	}

	data, err := EncodeMetric(rec)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	s := string(data)
	for _, field := range []string{`"step"`, `"run"`, `"project"`} {
		if strings.Contains(s, field) {
			t.Errorf("encoded unit contains %s for a record without it: %s", field, s)
		}
	}
}

func TestDecode_IgnoresUnknownFields(t *testing.T) {
	line := `{"timestamp":"2026-01-02T03:04:05Z","metrics":{"loss":0.5},"future_field":{"a":1}}`

	rec, err := DecodeMetric([]byte(line))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.Metrics["loss"] != 0.5 {
		t.Errorf("metrics: got %v", rec.Metrics)
	}
}

func TestDecode_RejectsMissingMetrics(t *testing.T) {
	lines := []string{
		`{"timestamp":"2026-01-02T03:04:05Z"}`,
		`{"timestamp":"2026-01-02T03:04:05Z","metrics":{}}`,
	}
	for _, line := range lines {
		if _, err := DecodeMetric([]byte(line)); err == nil {
			t.Errorf("expected error for %s", line)
		}
	}
}

func TestDecodeStream_SkipsCorruptLines(t *testing.T) {
	var buf bytes.Buffer
	good1, _ := EncodeMetric(testRecord(t, 1))
	good2, _ := EncodeMetric(testRecord(t, 2))

	buf.Write(good1)
	buf.WriteString("{\"timestamp\":\"2026-01-02T03:04:05Z\",\"metr\n") // torn mid-write
	buf.WriteString("not json at all\n")
	buf.WriteString("\n") // blank lines are not corruption
	buf.Write(good2)

	records, corrupt, err := DecodeStream(&buf)
	if err != nil {
		t.Fatalf("DecodeStream: %v", err)
	}
	if corrupt != 2 {
		t.Errorf("corrupt count: got %d, want 2", corrupt)
	}
	if len(records) != 2 {
		t.Fatalf("records: got %d, want 2", len(records))
	}
	if *records[0].Step != 1 || *records[1].Step != 2 {
		t.Errorf("record order broken: %v, %v", *records[0].Step, *records[1].Step)
	}
}

func TestDecodeStream_Empty(t *testing.T) {
	records, corrupt, err := DecodeStream(strings.NewReader(""))
	if err != nil {
		t.Fatalf("DecodeStream: %v", err)
	}
	if len(records) != 0 || corrupt != 0 {
		t.Errorf("got %d records, %d corrupt; want 0, 0", len(records), corrupt)
	}
}

func TestDecodeStream_OversizedLine(t *testing.T) {
	// A corrupt run of bytes longer than the line cap is one counted corrupt
	// unit; the units around it survive.
	var buf bytes.Buffer
	good1, _ := EncodeMetric(testRecord(t, 1))
	good2, _ := EncodeMetric(testRecord(t, 2))

	buf.Write(good1)
	buf.Write(bytes.Repeat([]byte("x"), maxLineSize+1))
	buf.WriteString("\n")
	buf.Write(good2)

	records, corrupt, err := DecodeStream(&buf)
	if err != nil {
		t.Fatalf("DecodeStream: %v", err)
	}
	if corrupt != 1 {
		t.Errorf("corrupt count: got %d, want 1", corrupt)
	}
	if len(records) != 2 {
		t.Fatalf("records: got %d, want 2", len(records))
	}
	if *records[0].Step != 1 || *records[1].Step != 2 {
		t.Errorf("record order broken: %v, %v", *records[0].Step, *records[1].Step)
	}
}

func TestDecodeStream_OversizedLineAtEOF(t *testing.T) {
	var buf bytes.Buffer
	good, _ := EncodeMetric(testRecord(t, 1))
	buf.Write(good)
	buf.Write(bytes.Repeat([]byte("x"), maxLineSize+1))

	records, corrupt, err := DecodeStream(&buf)
	if err != nil {
		t.Fatalf("DecodeStream: %v", err)
	}
	if len(records) != 1 || corrupt != 1 {
		t.Errorf("got %d records, %d corrupt; want 1, 1", len(records), corrupt)
	}
}

func TestDecodeStream_TruncatedTail(t *testing.T) {
	// A crash during append leaves a final line without its newline and
	// usually without its closing brace. Everything before it survives.
	var buf bytes.Buffer
	good, _ := EncodeMetric(testRecord(t, 1))
	buf.Write(good)
	buf.WriteString(`{"timestamp":"2026-01-02T03:04:05Z","metrics":{"loss":0.`)

	records, corrupt, err := DecodeStream(&buf)
	if err != nil {
		t.Fatalf("DecodeStream: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("records: got %d, want 1", len(records))
	}
	if corrupt != 1 {
		t.Errorf("corrupt count: got %d, want 1", corrupt)
	}
}
