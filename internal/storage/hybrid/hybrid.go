// Package hybrid implements the write-ahead-log-plus-columnar-archive
// backend. Saves append to a JSONL WAL exactly like the append-only backend;
// once the WAL crosses a size threshold the save call compacts it into
// immutable, date-partitioned Parquet files, keeping read latency sub-linear
// in total run size.
//
// Layout for one run:
//
//	base_dir/<project>/<run>/
//	  wal.jsonl
//	  archive/date=YYYY-MM-DD/data.parquet
//
// Compaction ordering is the safety argument: merged partitions are
// published first (temp file + atomic rename), the WAL is truncated last.
// A crash between the two steps leaves records in both places, and load
// de-duplicates by full-row identity; no interleaving leaves a record in
// neither place.
package hybrid

import (
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/xtxerr/runlog/internal/errors"
	"github.com/xtxerr/runlog/internal/logging"
	"github.com/xtxerr/runlog/internal/record"
	"github.com/xtxerr/runlog/internal/storage/durable"
	"github.com/xtxerr/runlog/internal/storage/jsonl"
	"github.com/xtxerr/runlog/internal/storage/parquet"
	"github.com/xtxerr/runlog/internal/storage/table"
)

const (
	// WALName is the live write-ahead buffer file name.
	WALName = "wal.jsonl"
	// ArchiveDirName holds the date partition directories.
	ArchiveDirName = "archive"
	// partitionFile is the single partition file per calendar date; merges
	// rewrite it in place via atomic rename.
	partitionFile = "data.parquet"

	// DefaultArchiveThreshold is the WAL size that triggers compaction.
	DefaultArchiveThreshold = 32 * 1024 * 1024 // 32MB

	// readConcurrency bounds parallel partition reads during load.
	readConcurrency = 4
)

// Options configures a hybrid backend instance.
type Options struct {
	// ArchiveThreshold is the WAL size in bytes at or above which a save
	// triggers compaction. A pathological value (e.g. 1) compacts on every
	// save; that stays correct, only slow, and is used to test the
	// compaction path.
	ArchiveThreshold int64

	// Parquet configures archive partition writes.
	Parquet parquet.Options

	// Logger overrides the component logger.
	Logger *slog.Logger
}

// Backend is a hybrid WAL+archive store for one (project, run) pair.
// Single-writer per process; readers may run concurrently with the writer.
type Backend struct {
	mu sync.Mutex

	project string
	run     string

	dir        string
	walPath    string
	archiveDir string

	threshold int64
	pqOpts    parquet.Options

	log *slog.Logger
}

// New creates a backend handle rooted at base_dir/project/run. The handle is
// lazy: nothing is created until Init or the first Save.
func New(baseDir, project, run string, opts Options) *Backend {
	if opts.ArchiveThreshold <= 0 {
		opts.ArchiveThreshold = DefaultArchiveThreshold
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Component("hybrid")
	}

	dir := filepath.Join(baseDir, project, run)
	return &Backend{
		project:    project,
		run:        run,
		dir:        dir,
		walPath:    filepath.Join(dir, WALName),
		archiveDir: filepath.Join(dir, ArchiveDirName),
		threshold:  opts.ArchiveThreshold,
		pqOpts:     opts.Parquet,
		log:        logger.With("project", project, "run", run),
	}
}

// Dir returns the run directory.
func (b *Backend) Dir() string {
	return b.dir
}

// Init establishes the run's physical presence: the run directory and an
// empty WAL. After Init, Load returns an empty table instead of a not-found
// error.
func (b *Backend) Init() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := os.MkdirAll(b.dir, 0o700); err != nil {
		return errors.Wrap(err, "create run dir")
	}
	f, err := durable.OpenAppend(b.walPath)
	if err != nil {
		return err
	}
	return f.Close()
}

// Save appends the record to the WAL with the durability barrier, then
// compacts synchronously if the WAL has reached the archive threshold. The
// record is durable once the append succeeds, so a compaction failure is
// logged and retried on a later save rather than failing the call.
func (b *Backend) Save(rec *record.Metric) (string, error) {
	if err := rec.Validate(); err != nil {
		return "", err
	}

	line, err := jsonl.EncodeMetric(rec)
	if err != nil {
		return "", err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := os.MkdirAll(b.dir, 0o700); err != nil {
		return "", errors.Wrap(err, "create run dir")
	}

	f, err := durable.OpenAppend(b.walPath)
	if err != nil {
		return "", err
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return "", errors.Wrapf(err, "append %s", b.walPath)
	}
	if err := durable.SyncData(f); err != nil {
		f.Close()
		return "", errors.Wrapf(err, "sync %s", b.walPath)
	}
	if err := f.Close(); err != nil {
		return "", errors.Wrapf(err, "close %s", b.walPath)
	}

	info, err := os.Stat(b.walPath)
	if err != nil {
		return "", errors.Wrapf(err, "stat %s", b.walPath)
	}
	if info.Size() >= b.threshold {
		if err := b.compact(); err != nil {
			b.log.Warn("compaction failed, will retry on a later save", "error", err)
		}
	}

	return "", nil
}

// Load merges archived partitions with the live WAL into one table sorted
// ascending by timestamp. With no archive it behaves exactly like the
// append-only backend over the WAL alone. Returns ErrRunNotFound when the
// run has no physical presence at all.
func (b *Backend) Load(metricNames []string) (*table.Table, error) {
	if _, err := os.Stat(b.dir); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errors.NewRunNotFound(b.project, b.run)
		}
		return nil, errors.Wrapf(err, "stat %s", b.dir)
	}

	archived, err := b.readArchive()
	if err != nil {
		return nil, err
	}

	live, err := b.readWAL()
	if err != nil {
		return nil, err
	}

	if len(archived) == 0 {
		// No archive yet: WAL append order is the table order.
		return table.FromRecords(live, metricNames), nil
	}

	// The archive is a superset of the WAL if a crash interrupted the window
	// between partition publication and WAL truncation; exact-duplicate
	// elimination makes that window invisible to readers.
	merged := dedupe(append(archived, live...))

	t := table.FromRecords(merged, metricNames)
	t.SortByTimestamp()
	return t, nil
}

// Close releases the handle. The backend holds no open files between calls,
// so this is a no-op kept for interface symmetry.
func (b *Backend) Close() error {
	return nil
}

// readWAL tolerantly reads the live WAL. A missing WAL (fresh compaction
// never leaves one missing, but a reader-only handle may race creation)
// reads as empty.
func (b *Backend) readWAL() ([]*record.Metric, error) {
	f, err := os.Open(b.walPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "open %s", b.walPath)
	}
	defer f.Close()

	records, corrupt, err := jsonl.DecodeStream(f)
	if err != nil {
		return nil, err
	}
	if corrupt > 0 {
		b.log.Warn("skipped corrupt records", "count", corrupt, "path", b.walPath)
	}
	return records, nil
}

// readArchive reads every date partition, fanning out across partitions.
func (b *Backend) readArchive() ([]*record.Metric, error) {
	dirs, err := b.partitionDirs()
	if err != nil || len(dirs) == 0 {
		return nil, err
	}

	results := make([][]*record.Metric, len(dirs))

	var g errgroup.Group
	g.SetLimit(readConcurrency)
	for i, dir := range dirs {
		g.Go(func() error {
			recs, err := parquet.ReadPartitionDir(dir)
			if err != nil {
				return err
			}
			results[i] = recs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var records []*record.Metric
	for _, recs := range results {
		records = append(records, recs...)
	}
	return records, nil
}

// partitionDirs lists the archive's date partition directories in name
// (= date) order.
func (b *Backend) partitionDirs() ([]string, error) {
	entries, err := os.ReadDir(b.archiveDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "read %s", b.archiveDir)
	}

	var dirs []string
	for _, entry := range entries {
		if entry.IsDir() && strings.HasPrefix(entry.Name(), "date=") {
			dirs = append(dirs, filepath.Join(b.archiveDir, entry.Name()))
		}
	}
	sort.Strings(dirs)
	return dirs, nil
}

// compact folds the WAL into the archive: group WAL records by UTC calendar
// date, merge each group with its existing partition, publish every
// partition atomically, then truncate the WAL. Caller holds b.mu.
func (b *Backend) compact() error {
	f, err := os.Open(b.walPath)
	if err != nil {
		return errors.Wrapf(err, "open %s", b.walPath)
	}
	records, corrupt, err := jsonl.DecodeStream(f)
	f.Close()
	if err != nil {
		return err
	}
	if corrupt > 0 {
		b.log.Warn("skipped corrupt records during compaction", "count", corrupt)
	}
	if len(records) == 0 {
		return nil
	}

	// Partition by calendar date of each record's timestamp.
	byDate := make(map[string][]*record.Metric)
	for _, rec := range records {
		date := rec.Timestamp.UTC().Format("2006-01-02")
		byDate[date] = append(byDate[date], rec)
	}

	dates := make([]string, 0, len(byDate))
	for date := range byDate {
		dates = append(dates, date)
	}
	sort.Strings(dates)

	for _, date := range dates {
		partDir := filepath.Join(b.archiveDir, "date="+date)

		existing, err := parquet.ReadPartitionDir(partDir)
		if err != nil {
			return err
		}

		merged := dedupe(append(existing, byDate[date]...))
		sortRecords(merged)

		if err := parquet.WritePartition(filepath.Join(partDir, partitionFile), merged, b.pqOpts); err != nil {
			return err
		}
	}

	// All partitions are durably published; only now clear the WAL. The
	// replacement is atomic, so a concurrent reader sees either the full
	// pre-compaction WAL or the empty one.
	if err := durable.WriteFileAtomic(b.walPath, nil); err != nil {
		return errors.Wrap(err, "truncate wal")
	}

	b.log.Info("compacted wal into archive", "records", len(records), "partitions", len(dates))

	return nil
}

// dedupe removes exact duplicate records, preserving first-seen order.
// Records are append-only events: two records sharing (timestamp, step) but
// differing in metrics are both kept. Only full-row identity collapses, which
// is what makes re-compacting the same WAL segment idempotent.
func dedupe(records []*record.Metric) []*record.Metric {
	seen := make(map[string]struct{}, len(records))
	out := records[:0]
	for _, rec := range records {
		k := identityKey(rec)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, rec)
	}
	return out
}

// identityKey builds the full-row identity: timestamp, step, tags, and the
// canonicalized metrics map with exact float bits.
func identityKey(rec *record.Metric) string {
	var sb strings.Builder
	sb.WriteString(strconv.FormatInt(rec.Timestamp.UnixNano(), 10))
	sb.WriteByte('|')
	if rec.Step != nil {
		sb.WriteString(strconv.FormatInt(*rec.Step, 10))
	}
	sb.WriteByte('|')
	sb.WriteString(rec.Run)
	sb.WriteByte('|')
	sb.WriteString(rec.Project)

	names := rec.MetricNames()
	for _, name := range names {
		sb.WriteByte('|')
		sb.WriteString(name)
		sb.WriteByte('=')
		sb.WriteString(strconv.FormatUint(math.Float64bits(rec.Metrics[name]), 16))
	}
	return sb.String()
}

// sortRecords orders records ascending by timestamp, ties by step.
func sortRecords(records []*record.Metric) {
	sort.SliceStable(records, func(i, j int) bool {
		ti, tj := records[i].Timestamp, records[j].Timestamp
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		si, sj := records[i].Step, records[j].Step
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
