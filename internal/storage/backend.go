package storage

import (
	"log/slog"
	"os"

	"github.com/xtxerr/runlog/internal/errors"
	"github.com/xtxerr/runlog/internal/record"
	"github.com/xtxerr/runlog/internal/storage/appendlog"
	"github.com/xtxerr/runlog/internal/storage/hybrid"
	"github.com/xtxerr/runlog/internal/storage/parquet"
	"github.com/xtxerr/runlog/internal/storage/table"
	"github.com/xtxerr/runlog/internal/validation"
)

// Backend names accepted by New.
const (
	BackendAppend = "append"
	BackendHybrid = "hybrid"
)

// EnvBackend is the environment override for the backend selection. When
// set, it takes precedence over the explicit argument so a deployment-wide
// setting can force a backend without touching call sites.
const EnvBackend = "RUNLOG_BACKEND"

// Backend is one run's storage handle.
type Backend interface {
	// Init establishes the run's physical presence so that Load on a run
	// with zero records returns an empty table rather than not-found.
	Init() error

	// Save durably appends one record, returning an opaque marker (which
	// may be empty). It fails with a validation error for malformed records
	// and a storage error on I/O failure; it never reports partial success.
	Save(rec *record.Metric) (string, error)

	// Load reconstructs the run's table. If metricNames is non-nil, only
	// matching metric columns are populated, but all rows are returned.
	// Fails with ErrRunNotFound if the run was never initialized.
	Load(metricNames []string) (*table.Table, error)

	// Close releases the handle.
	Close() error
}

// Options configures backend construction.
type Options struct {
	// ArchiveThreshold is the hybrid backend's WAL size trigger in bytes.
	// Zero selects the default.
	ArchiveThreshold int64

	// Compression selects the archive compression algorithm
	// (none/snappy/zstd/lz4/gzip). Empty selects zstd.
	Compression string

	// CompressionLevel for algorithms that support it.
	CompressionLevel int

	// Logger overrides the component logger.
	Logger *slog.Logger
}

// New resolves a backend by name and constructs a handle scoped to one
// (project, run) pair under baseDir. The RUNLOG_BACKEND environment variable
// overrides name when set. An unrecognized name fails here, at construction
// time, with a configuration error naming the invalid value.
func New(name, baseDir, project, run string, opts Options) (Backend, error) {
	if env := os.Getenv(EnvBackend); env != "" {
		name = env
	}

	if err := validation.ValidateProjectName(project); err != nil {
		return nil, err
	}
	if err := validation.ValidateRunName(run); err != nil {
		return nil, err
	}

	switch name {
	case BackendAppend:
		return appendlog.New(baseDir, project, run, opts.Logger), nil
	case BackendHybrid:
		pq := parquet.DefaultOptions()
		if opts.Compression != "" {
			pq.Compression = parquet.ParseCompressionType(opts.Compression)
		}
		if opts.CompressionLevel > 0 {
			pq.CompressionLevel = opts.CompressionLevel
		}
		return hybrid.New(baseDir, project, run, hybrid.Options{
			ArchiveThreshold: opts.ArchiveThreshold,
			Parquet:          pq,
			Logger:           opts.Logger,
		}), nil
	default:
		return nil, errors.NewUnknownBackend(name)
	}
}
