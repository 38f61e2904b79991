package queue

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotFound reports that no pending draft matched the requested stem.
var ErrNotFound = errors.New("no matching draft")

// findPending returns the pending-approval file whose stem contains the
// given stem. First match wins; Scan order makes that deterministic.
func findPending(dirs Dirs, stem string) (string, error) {
	if stem == "" {
		return "", ErrNotFound
	}
	files, err := Scan(dirs.PendingApproval)
	if err != nil {
		return "", err
	}
	for _, f := range files {
		if strings.Contains(Stem(f), stem) {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w for %q", ErrNotFound, stem)
}

// Approve moves the pending draft matching stem into approved/, where the
// next loop iteration picks it up for execution. Returns the new path.
func Approve(dirs Dirs, stem string) (string, error) {
	src, err := findPending(dirs, stem)
	if err != nil {
		return "", err
	}
	return Move(src, dirs.Approved)
}

// Reject moves the pending draft matching stem into done/ under a
// rejected_ name, so it stops blocking loop completion but stays on record.
func Reject(dirs Dirs, stem string) (string, error) {
	src, err := findPending(dirs, stem)
	if err != nil {
		return "", err
	}
	dst := filepath.Join(dirs.Done, "rejected_"+filepath.Base(src))
	if err := os.Rename(src, dst); err != nil {
		return "", fmt.Errorf("failed to reject %s: %w", src, err)
	}
	return dst, nil
}
