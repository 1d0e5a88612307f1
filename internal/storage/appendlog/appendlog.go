// Package appendlog implements the append-only storage backend: one
// physical JSONL stream per run, one line per save, every save forced to
// stable storage before it returns.
package appendlog

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/xtxerr/runlog/internal/errors"
	"github.com/xtxerr/runlog/internal/logging"
	"github.com/xtxerr/runlog/internal/record"
	"github.com/xtxerr/runlog/internal/storage/durable"
	"github.com/xtxerr/runlog/internal/storage/jsonl"
	"github.com/xtxerr/runlog/internal/storage/table"
)

// Ext is the stream file extension.
const Ext = ".jsonl"

// Backend is an append-only store for one (project, run) pair. It is
// intended for a single writer per process; readers may run concurrently
// with the writer.
type Backend struct {
	mu sync.Mutex

	project string
	run     string
	path    string

	log *slog.Logger
}

// New creates a backend handle for base_dir/project/run.jsonl. The handle is
// lazy: no file is created until Init or the first Save.
func New(baseDir, project, run string, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = logging.Component("appendlog")
	}
	return &Backend{
		project: project,
		run:     run,
		path:    filepath.Join(baseDir, project, run+Ext),
		log:     logger.With("project", project, "run", run),
	}
}

// Path returns the stream file path.
func (b *Backend) Path() string {
	return b.path
}

// Init establishes the run's physical presence: an empty stream file. After
// Init, Load returns an empty table instead of a not-found error.
func (b *Backend) Init() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(b.path), 0o700); err != nil {
		return errors.Wrap(err, "create project dir")
	}
	f, err := durable.OpenAppend(b.path)
	if err != nil {
		return err
	}
	return f.Close()
}

// Save serializes the record to one self-delimited unit, appends it, and
// applies the durability barrier before returning. A record that fails
// validation is not written.
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

	if err := os.MkdirAll(filepath.Dir(b.path), 0o700); err != nil {
		return "", errors.Wrap(err, "create project dir")
	}

	f, err := durable.OpenAppend(b.path)
	if err != nil {
		return "", err
	}

	if _, err := f.Write(line); err != nil {
		f.Close()
		return "", errors.Wrapf(err, "append %s", b.path)
	}
	if err := durable.SyncData(f); err != nil {
		f.Close()
		return "", errors.Wrapf(err, "sync %s", b.path)
	}
	if err := f.Close(); err != nil {
		return "", errors.Wrapf(err, "close %s", b.path)
	}

	return "", nil
}

// Load reads the whole stream and reconstructs the run table in append
// order. Corrupt lines are skipped, not raised. Returns ErrRunNotFound when
// the run has no stream file at all; an existing empty stream yields an
// empty table.
func (b *Backend) Load(metricNames []string) (*table.Table, error) {
	f, err := os.Open(b.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errors.NewRunNotFound(b.project, b.run)
		}
		return nil, errors.Wrapf(err, "open %s", b.path)
	}
	defer f.Close()

	records, corrupt, err := jsonl.DecodeStream(f)
	if err != nil {
		return nil, err
	}
	if corrupt > 0 {
		b.log.Warn("skipped corrupt records", "count", corrupt, "path", b.path)
	}

	return table.FromRecords(records, metricNames), nil
}

// Close releases the handle. The backend holds no open files between calls,
// so this is a no-op kept for interface symmetry.
func (b *Backend) Close() error {
	return nil
}
