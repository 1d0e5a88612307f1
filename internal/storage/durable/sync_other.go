//go:build !linux

package durable

import "os"

// Platforms without a data-only sync fall back to a full fsync.
func syncData(f *os.File) error {
	return f.Sync()
}
