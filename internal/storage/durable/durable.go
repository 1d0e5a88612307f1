// Package durable provides the crash-safe file primitives both storage
// backends are built on: atomic whole-file replacement, secure append-create,
// and a data durability barrier.
//
// Atomic replacement writes to a temporary file created in the same directory
// as the target, so the final rename is same-filesystem and therefore atomic:
// a reader observes either the old full content or the new full content,
// never a partial write.
package durable

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// fileMode is owner-only read/write. Run data may contain private
// experiment details, so files are never group- or world-readable.
const fileMode = 0o600

// SyncData forces the file's written bytes to stable storage: fdatasync on
// Linux, a full fsync elsewhere. It is a variable so tests can intercept the
// barrier.
var SyncData = syncData

// WriteFileAtomic atomically replaces the file at path with data. The bytes
// are forced to stable storage before the rename. On any failure before the
// rename the target is left untouched and the temporary file is removed
// (best effort; cleanup failure never masks the original error).
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if err := writeAndSync(tmp, data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}

	if err := tmp.Chmod(fileMode); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("chmod temp file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}

	// Persist the rename itself. Directory sync is unsupported on some
	// platforms, so a failure here is not propagated.
	SyncDir(dir)

	return nil
}

func writeAndSync(f *os.File, data []byte) error {
	if len(data) > 0 {
		if _, err := f.Write(data); err != nil {
			return fmt.Errorf("write temp file: %w", err)
		}
	}
	if err := SyncData(f); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	return nil
}

// WriteJSONAtomic atomically replaces the file at path with the JSON
// encoding of v. Used for metadata and status files, not the high-volume
// metric stream.
func WriteJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return WriteFileAtomic(path, append(data, '\n'))
}

// OpenAppend opens path for appending, creating it with owner-only
// permissions if absent. Open-or-create is a single atomic operation; there
// is no check-then-create race window.
func OpenAppend(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, fileMode)
	if err != nil {
		return nil, fmt.Errorf("open append %s: %w", path, err)
	}
	return f, nil
}

// SyncDir forces a directory's entries to stable storage so that a completed
// rename survives a crash. Errors are returned for callers that care, but
// most treat this as best effort.
func SyncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}
