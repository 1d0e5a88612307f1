// Package query provides SQL aggregate queries over the hybrid backend's
// columnar archive using DuckDB, so dashboard-style consumers can compute
// statistics for a metric without materializing the full run table.
//
// Only archived data is visible to this service; the live WAL tail is not.
// Consumers that need the exact full table use the backend's Load.
package query

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/marcboeker/go-duckdb"
	"github.com/xtxerr/runlog/internal/errors"
	"github.com/xtxerr/runlog/internal/logging"
	"github.com/xtxerr/runlog/internal/storage/hybrid"
)

// Options configures the query service.
type Options struct {
	// MemoryLimit is the DuckDB memory limit (e.g. "1GB"). Empty leaves the
	// DuckDB default.
	MemoryLimit string

	// Timeout bounds each query. Zero means no timeout.
	Timeout time.Duration
}

// Service runs aggregate queries over archive partitions.
type Service struct {
	mu sync.Mutex

	baseDir string
	db      *sql.DB
	timeout time.Duration

	log *slog.Logger
}

// New opens an in-memory DuckDB database for querying the archives under
// baseDir.
func New(baseDir string, opts Options) (*Service, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	if opts.MemoryLimit != "" {
		if _, err := db.Exec(fmt.Sprintf("SET memory_limit='%s'", opts.MemoryLimit)); err != nil {
			db.Close()
			return nil, fmt.Errorf("set memory limit: %w", err)
		}
	}

	return &Service{
		baseDir: baseDir,
		db:      db,
		timeout: opts.Timeout,
		log:     logging.Component("query"),
	}, nil
}

// Close closes the service.
func (s *Service) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Aggregate holds the statistics of one metric over a time range.
type Aggregate struct {
	Metric string
	Count  int64
	Min    float64
	Max    float64
	Avg    float64
	Sum    float64
	First  time.Time
	Last   time.Time
}

// AggregateMetric computes count/min/max/avg/sum for one metric across a
// run's archive partitions. start/end bound the range when non-zero. A run
// whose archive is empty (all data still in the WAL) yields a zero-count
// aggregate, not an error.
func (s *Service) AggregateMetric(ctx context.Context, project, run, metric string, start, end time.Time) (*Aggregate, error) {
	runDir := filepath.Join(s.baseDir, project, run)
	if _, err := os.Stat(runDir); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errors.NewRunNotFound(project, run)
		}
		return nil, errors.Wrapf(err, "stat %s", runDir)
	}

	glob := filepath.Join(runDir, hybrid.ArchiveDirName, "date=*", "*.parquet")
	matches, err := filepath.Glob(glob)
	if err != nil {
		return nil, errors.Wrapf(err, "glob %s", glob)
	}
	if len(matches) == 0 {
		return &Aggregate{Metric: metric}, nil
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	// The glob path is interpolated (table functions do not take bound
	// parameters); metric name and range bounds are bound.
	q := fmt.Sprintf(`
		SELECT count(v), min(v), max(v), avg(v), sum(v),
		       min(timestamp_ns), max(timestamp_ns)
		FROM (
			SELECT map_extract(metrics, ?)[1] AS v, timestamp_ns
			FROM read_parquet('%s', union_by_name=true)
		)
		WHERE v IS NOT NULL`, escapeSQLString(glob))

	args := []any{metric}
	if !start.IsZero() {
		q += " AND timestamp_ns >= ?"
		args = append(args, start.UnixNano())
	}
	if !end.IsZero() {
		q += " AND timestamp_ns <= ?"
		args = append(args, end.UnixNano())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	var minV, maxV, avgV, sumV sql.NullFloat64
	var firstNs, lastNs sql.NullInt64
	row := s.db.QueryRowContext(ctx, q, args...)
	if err := row.Scan(&count, &minV, &maxV, &avgV, &sumV, &firstNs, &lastNs); err != nil {
		return nil, errors.Wrapf(err, "aggregate %s/%s metric %s", project, run, metric)
	}

	agg := &Aggregate{
		Metric: metric,
		Count:  count,
		Min:    minV.Float64,
		Max:    maxV.Float64,
		Avg:    avgV.Float64,
		Sum:    sumV.Float64,
	}
	if firstNs.Valid {
		agg.First = time.Unix(0, firstNs.Int64).UTC()
	}
	if lastNs.Valid {
		agg.Last = time.Unix(0, lastNs.Int64).UTC()
	}

	s.log.Debug("aggregate query", "project", project, "run", run,
		"metric", metric, "partitions", len(matches), "count", count)

	return agg, nil
}

// escapeSQLString escapes single quotes for interpolation into a SQL string
// literal.
func escapeSQLString(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
