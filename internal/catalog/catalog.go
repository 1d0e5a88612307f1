// Package catalog discovers projects and runs from the persisted layout and
// manages the side-channel files that live beside the metric data: run
// status records and project metadata.
//
// The catalog never touches the metric streams themselves; it only reads the
// directory structure the storage backends produce:
//
//	base_dir/<project>/<run>.jsonl           append-only run
//	base_dir/<project>/<run>/wal.jsonl       hybrid run
//	base_dir/<project>/<run>.status.json     status, append-only run
//	base_dir/<project>/<run>/status.json     status, hybrid run
//	base_dir/<project>/metadata.json         project metadata
package catalog

import (
	"encoding/json"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/xtxerr/runlog/internal/errors"
	"github.com/xtxerr/runlog/internal/logging"
	"github.com/xtxerr/runlog/internal/record"
	"github.com/xtxerr/runlog/internal/storage"
	"github.com/xtxerr/runlog/internal/storage/appendlog"
	"github.com/xtxerr/runlog/internal/storage/durable"
	"github.com/xtxerr/runlog/internal/storage/hybrid"
)

const metadataFile = "metadata.json"

// Catalog lists the runs under one data directory.
type Catalog struct {
	baseDir string
	log     *slog.Logger
}

// New creates a catalog over baseDir.
func New(baseDir string) *Catalog {
	return &Catalog{
		baseDir: baseDir,
		log:     logging.Component("catalog"),
	}
}

// RunInfo describes one discovered run.
type RunInfo struct {
	Project   string
	Name      string
	Backend   string
	Status    record.RunStatus
	UpdatedAt time.Time
}

// Projects lists the project names, sorted. A missing data directory lists
// as empty rather than failing: no project has been created yet.
func (c *Catalog) Projects() ([]string, error) {
	entries, err := os.ReadDir(c.baseDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "read %s", c.baseDir)
	}

	var projects []string
	for _, entry := range entries {
		if entry.IsDir() && !strings.HasPrefix(entry.Name(), ".") {
			projects = append(projects, entry.Name())
		}
	}
	sort.Strings(projects)
	return projects, nil
}

// Runs lists the runs of one project, sorted by name.
func (c *Catalog) Runs(project string) ([]RunInfo, error) {
	dir := filepath.Join(c.baseDir, project)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errors.NewProjectNotFound(project)
		}
		return nil, errors.Wrapf(err, "read %s", dir)
	}

	var runs []RunInfo
	for _, entry := range entries {
		name := entry.Name()

		var info RunInfo
		switch {
		case entry.IsDir() && c.isHybridRun(project, name):
			info = RunInfo{Project: project, Name: name, Backend: storage.BackendHybrid}
		case !entry.IsDir() && strings.HasSuffix(name, appendlog.Ext):
			info = RunInfo{
				Project: project,
				Name:    strings.TrimSuffix(name, appendlog.Ext),
				Backend: storage.BackendAppend,
			}
		default:
			continue
		}

		if fi, err := entry.Info(); err == nil {
			info.UpdatedAt = fi.ModTime()
		}
		if st, err := c.RunStatus(project, info.Name); err == nil {
			info.Status = st.RunStatus()
		} else {
			c.log.Debug("run status unavailable", "project", project, "run", info.Name, "error", err)
		}

		runs = append(runs, info)
	}

	sort.Slice(runs, func(i, j int) bool { return runs[i].Name < runs[j].Name })
	return runs, nil
}

// isHybridRun reports whether a directory entry is a hybrid run: it holds a
// WAL or an archive.
func (c *Catalog) isHybridRun(project, name string) bool {
	dir := filepath.Join(c.baseDir, project, name)
	if _, err := os.Stat(filepath.Join(dir, hybrid.WALName)); err == nil {
		return true
	}
	if _, err := os.Stat(filepath.Join(dir, hybrid.ArchiveDirName)); err == nil {
		return true
	}
	return false
}

// DetectBackend resolves which backend owns a run from its on-disk layout.
func (c *Catalog) DetectBackend(project, run string) (string, error) {
	if _, err := os.Stat(filepath.Join(c.baseDir, project, run+appendlog.Ext)); err == nil {
		return storage.BackendAppend, nil
	}
	if c.isHybridRun(project, run) {
		return storage.BackendHybrid, nil
	}
	// A bare run directory is still a hybrid run that has not saved yet.
	if fi, err := os.Stat(filepath.Join(c.baseDir, project, run)); err == nil && fi.IsDir() {
		return storage.BackendHybrid, nil
	}
	return "", errors.NewRunNotFound(project, run)
}

// statusPath returns the status file location for a run, which depends on
// the backend's layout.
func (c *Catalog) statusPath(project, run string) (string, error) {
	backend, err := c.DetectBackend(project, run)
	if err != nil {
		return "", err
	}
	if backend == storage.BackendHybrid {
		return filepath.Join(c.baseDir, project, run, "status.json"), nil
	}
	return filepath.Join(c.baseDir, project, run+".status.json"), nil
}

// RunStatus reads a run's status record. Absence of a status file means the
// run is still in progress.
func (c *Catalog) RunStatus(project, run string) (*record.Status, error) {
	path, err := c.statusPath(project, run)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return record.NewStatus(project, run, false, nil), nil
		}
		return nil, errors.Wrapf(err, "read %s", path)
	}

	var st record.Status
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}
	return &st, nil
}

// WriteRunStatus atomically replaces a run's status record.
func (c *Catalog) WriteRunStatus(project, run string, st *record.Status) error {
	path, err := c.statusPath(project, run)
	if err != nil {
		return err
	}
	return durable.WriteJSONAtomic(path, st)
}

// ProjectMetadata is the project-level metadata file content.
type ProjectMetadata struct {
	Notes     string    `json:"notes"`
	Tags      []string  `json:"tags"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProjectMetadata reads a project's metadata. A project without a metadata
// file yields a zero-value metadata, not an error.
func (c *Catalog) ProjectMetadata(project string) (*ProjectMetadata, error) {
	if _, err := os.Stat(filepath.Join(c.baseDir, project)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errors.NewProjectNotFound(project)
		}
		return nil, errors.Wrapf(err, "stat project %s", project)
	}

	path := filepath.Join(c.baseDir, project, metadataFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &ProjectMetadata{}, nil
		}
		return nil, errors.Wrapf(err, "read %s", path)
	}

	var md ProjectMetadata
	if err := json.Unmarshal(data, &md); err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}
	return &md, nil
}

// SaveProjectMetadata atomically replaces a project's metadata, maintaining
// the created/updated timestamps.
func (c *Catalog) SaveProjectMetadata(project string, md *ProjectMetadata) error {
	dir := filepath.Join(c.baseDir, project)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return errors.Wrap(err, "create project dir")
	}

	now := time.Now().UTC()
	if md.CreatedAt.IsZero() {
		if existing, err := c.ProjectMetadata(project); err == nil && !existing.CreatedAt.IsZero() {
			md.CreatedAt = existing.CreatedAt
		} else {
			md.CreatedAt = now
		}
	}
	md.UpdatedAt = now

	return durable.WriteJSONAtomic(filepath.Join(dir, metadataFile), md)
}
