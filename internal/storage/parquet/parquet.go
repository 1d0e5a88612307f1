// Package parquet reads and writes the hybrid backend's immutable archive
// partitions. Each partition holds the compacted records for one calendar
// date as a columnar Parquet file.
//
// Partitions are published atomically: the file is written under a temporary
// name in the partition directory, forced to stable storage, then renamed
// into place. A concurrent reader sees either the previous partition content
// or the new one, never a half-written file.
package parquet

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"
	"github.com/xtxerr/runlog/internal/record"
	"github.com/xtxerr/runlog/internal/storage/durable"
)

// Options configures partition writes.
type Options struct {
	// Compression algorithm
	Compression CompressionType

	// CompressionLevel for algorithms that support it (zstd: 1-22)
	CompressionLevel int
}

// CompressionType represents a Parquet compression algorithm.
type CompressionType int

const (
	CompressionNone CompressionType = iota
	CompressionSnappy
	CompressionZstd
	CompressionLZ4
	CompressionGzip
)

// DefaultOptions returns default partition write options.
func DefaultOptions() Options {
	return Options{
		Compression:      CompressionZstd,
		CompressionLevel: 3,
	}
}

// ParseCompressionType parses a compression type string.
func ParseCompressionType(s string) CompressionType {
	switch s {
	case "snappy":
		return CompressionSnappy
	case "zstd":
		return CompressionZstd
	case "lz4":
		return CompressionLZ4
	case "gzip":
		return CompressionGzip
	case "none", "":
		return CompressionNone
	default:
		return CompressionZstd
	}
}

// getCompression returns the parquet-go compression codec.
func getCompression(ct CompressionType) compress.Codec {
	switch ct {
	case CompressionSnappy:
		return &parquet.Snappy
	case CompressionZstd:
		return &parquet.Zstd
	case CompressionLZ4:
		return &parquet.Lz4Raw
	case CompressionGzip:
		return &parquet.Gzip
	default:
		return &parquet.Uncompressed
	}
}

// MetricRow is a metric record in Parquet format.
type MetricRow struct {
	TimestampNs int64              `parquet:"timestamp_ns"`
	Step        *int64             `parquet:"step,optional"`
	Run         string             `parquet:"run,optional,zstd"`
	Project     string             `parquet:"project,optional,zstd"`
	Metrics     map[string]float64 `parquet:"metrics"`
}

// RecordToRow converts a Metric to a MetricRow.
func RecordToRow(m *record.Metric) MetricRow {
	return MetricRow{
		TimestampNs: m.Timestamp.UnixNano(),
		Step:        m.Step,
		Run:         m.Run,
		Project:     m.Project,
		Metrics:     m.Metrics,
	}
}

// RowToRecord converts a MetricRow to a Metric.
func RowToRecord(r *MetricRow) *record.Metric {
	return &record.Metric{
		Timestamp: time.Unix(0, r.TimestampNs).UTC(),
		Step:      r.Step,
		Run:       r.Run,
		Project:   r.Project,
		Metrics:   r.Metrics,
	}
}

// WritePartition atomically replaces the partition file at path with the
// given records. On failure the previous partition file, if any, is left
// untouched.
func WritePartition(path string, records []*record.Metric, opts Options) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create partition dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".part-*.parquet.tmp")
	if err != nil {
		return fmt.Errorf("create temp partition: %w", err)
	}
	tmpPath := tmp.Name()

	cleanup := func() {
		tmp.Close()
		os.Remove(tmpPath)
	}

	writer := parquet.NewGenericWriter[MetricRow](tmp,
		parquet.Compression(getCompression(opts.Compression)))

	rows := make([]MetricRow, len(records))
	for i, rec := range records {
		rows[i] = RecordToRow(rec)
	}

	if _, err := writer.Write(rows); err != nil {
		cleanup()
		return fmt.Errorf("write partition rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close partition writer: %w", err)
	}

	if err := durable.SyncData(tmp); err != nil {
		cleanup()
		return fmt.Errorf("sync partition: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		cleanup()
		return fmt.Errorf("chmod partition: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close partition: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("publish partition: %w", err)
	}

	durable.SyncDir(dir)

	return nil
}

// ReadPartition reads all records from a partition file.
func ReadPartition(path string) ([]*record.Metric, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open partition: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat partition: %w", err)
	}
	// ReadBufferSize is a FileOption in parquet-go, so it has to be applied
	// when opening the file rather than passed to NewGenericReader.
	pf, err := parquet.OpenFile(f, info.Size(), parquet.ReadBufferSize(1024*1024))
	if err != nil {
		return nil, fmt.Errorf("open parquet partition: %w", err)
	}

	reader := parquet.NewGenericReader[MetricRow](pf)
	defer reader.Close()

	numRows := reader.NumRows()
	if numRows == 0 {
		return nil, nil
	}

	rows := make([]MetricRow, numRows)
	n, err := reader.Read(rows)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read partition rows: %w", err)
	}

	records := make([]*record.Metric, n)
	for i := 0; i < n; i++ {
		records[i] = RowToRecord(&rows[i])
	}

	return records, nil
}

// ReadPartitionDir reads every partition file in a date partition directory.
// A missing directory reads as empty.
func ReadPartitionDir(dir string) ([]*record.Metric, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read partition dir: %w", err)
	}

	var records []*record.Metric
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".parquet" {
			continue
		}
		recs, err := ReadPartition(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("partition %s: %w", entry.Name(), err)
		}
		records = append(records, recs...)
	}

	return records, nil
}
