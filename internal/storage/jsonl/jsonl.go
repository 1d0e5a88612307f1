// Package jsonl implements the self-delimited unit format shared by the
// append-only stream and the hybrid backend's write-ahead log: one JSON
// object per line, matching the MetricRecord shape.
//
// The format is the externally visible contract and must stay readable by
// any consumer that understands the per-unit shape. Unknown extra fields are
// ignored on decode, never rejected.
package jsonl

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/xtxerr/runlog/internal/record"
)

// unit is the wire shape of one line.
type unit struct {
	Timestamp time.Time          `json:"timestamp"`
	Step      *int64             `json:"step,omitempty"`
	Metrics   map[string]float64 `json:"metrics"`
	Run       string             `json:"run,omitempty"`
	Project   string             `json:"project,omitempty"`
}

// maxLineSize bounds a single unit. A record holds metric scalars, so
// anything near this size is corruption, not data.
const maxLineSize = 16 * 1024 * 1024

// EncodeMetric encodes a record as one newline-terminated unit.
func EncodeMetric(m *record.Metric) ([]byte, error) {
	u := unit{
		Timestamp: m.Timestamp,
		Step:      m.Step,
		Metrics:   m.Metrics,
		Run:       m.Run,
		Project:   m.Project,
	}
	data, err := json.Marshal(u)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return append(data, '\n'), nil
}

// DecodeMetric decodes one unit. A unit without a metrics mapping is
// corrupt: the line either lost its tail in a crash or was never a record.
func DecodeMetric(line []byte) (*record.Metric, error) {
	var u unit
	if err := json.Unmarshal(line, &u); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	if len(u.Metrics) == 0 {
		return nil, fmt.Errorf("decode record: no metrics mapping")
	}
	return &record.Metric{
		Timestamp: u.Timestamp,
		Step:      u.Step,
		Metrics:   u.Metrics,
		Run:       u.Run,
		Project:   u.Project,
	}, nil
}

// DecodeStream reads every unit from r, parsing each line independently.
// A line that fails to parse (typically torn by a crash mid-write) is
// skipped and counted, never fatal: partial corruption of one unit must not
// lose the rest of the stream. That includes lines beyond maxLineSize, which
// are drained and counted as one corrupt unit each.
func DecodeStream(r io.Reader) (records []*record.Metric, corrupt int, err error) {
	br := bufio.NewReaderSize(r, 64*1024)

	for {
		line, tooLong, rerr := readUnit(br)
		switch {
		case tooLong:
			corrupt++
		default:
			if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 {
				m, derr := DecodeMetric(trimmed)
				if derr != nil {
					corrupt++
				} else {
					records = append(records, m)
				}
			}
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				return records, corrupt, nil
			}
			return nil, corrupt, fmt.Errorf("read stream: %w", rerr)
		}
	}
}

// readUnit reads one newline-terminated line. A line exceeding maxLineSize is
// drained to its newline and reported as too long instead of aborting the
// stream.
func readUnit(br *bufio.Reader) (line []byte, tooLong bool, err error) {
	var buf []byte
	for {
		chunk, rerr := br.ReadSlice('\n')
		buf = append(buf, chunk...)
		if rerr == nil || errors.Is(rerr, io.EOF) {
			return buf, false, rerr
		}
		if !errors.Is(rerr, bufio.ErrBufferFull) {
			return buf, false, rerr
		}
		if len(buf) > maxLineSize {
			return nil, true, drainLine(br)
		}
	}
}

// drainLine discards bytes up to and including the next newline.
func drainLine(br *bufio.Reader) error {
	for {
		_, err := br.ReadSlice('\n')
		if err == nil || !errors.Is(err, bufio.ErrBufferFull) {
			return err
		}
	}
}
