// Package stale decides whether generated artifacts are current.
//
// Artifacts are stamped with the logical time of their inputs, the
// maximum modification time across every contributing source file,
// rather than the wall-clock time of generation. An artifact is up to
// date only when its stored mtime equals that logical time exactly.
// The exact-match comparison detects staleness and out-of-band touches
// alike without hashing any content.
package stale

import (
	"fmt"
	"os"
	"time"
)

// LogicalTime returns the maximum modification time across files.
// Every file must exist; a missing contributing source is an error.
func LogicalTime(files []string) (time.Time, error) {
	if len(files) == 0 {
		return time.Time{}, fmt.Errorf("stale: no contributing files")
	}
	var max time.Time
	for _, f := range files {
		fi, err := os.Stat(f)
		if err != nil {
			return time.Time{}, fmt.Errorf("stale: %w", err)
		}
		if mt := fi.ModTime(); mt.After(max) {
			max = mt
		}
	}
	return max, nil
}

// UpToDate reports whether path exists and its mtime equals logical
// exactly. Not a newer-than check: any mismatch means rebuild.
func UpToDate(path string, logical time.Time) bool {
	fi, err := os.Stat(path)
	if err != nil {
		return false
	}
	return fi.ModTime().Equal(logical)
}

// Stamp sets the mtime of path to logical, keeping access time at the
// wall clock. A future UpToDate check against the same logical time
// then succeeds by exact match.
func Stamp(path string, logical time.Time) error {
	return os.Chtimes(path, time.Now(), logical)
}
