package queue

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Dirs holds the directory layout of the pipeline. Every directory doubles
// as a queue: which directory holds a file determines how far along the
// pipeline that file is.
type Dirs struct {
	Base            string
	Inbox           string
	NewWork         string
	PendingApproval string
	Approved        string
	Done            string
	ErrorReports    string
	ManualActions   string
	Logs            string
	Briefings       string
}

// NewDirs builds the directory layout rooted at base. An empty base means
// the current working directory.
func NewDirs(base string) Dirs {
	if base == "" {
		base = "."
	}
	return Dirs{
		Base:            base,
		Inbox:           filepath.Join(base, "inbox"),
		NewWork:         filepath.Join(base, "new-work"),
		PendingApproval: filepath.Join(base, "pending-approval"),
		Approved:        filepath.Join(base, "approved"),
		Done:            filepath.Join(base, "done"),
		ErrorReports:    filepath.Join(base, "error-reports"),
		ManualActions:   filepath.Join(base, "manual-action-drafts"),
		Logs:            filepath.Join(base, "logs"),
		Briefings:       filepath.Join(base, "briefings"),
	}
}

// All returns every managed directory.
func (d Dirs) All() []string {
	return []string{
		d.Inbox, d.NewWork, d.PendingApproval, d.Approved, d.Done,
		d.ErrorReports, d.ManualActions, d.Logs, d.Briefings,
	}
}

// EnsureAll creates any missing directories.
func (d Dirs) EnsureAll() error {
	for _, dir := range d.All() {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

// Scan returns the sorted paths of visible regular files in dir. A missing
// directory scans as empty rather than erroring: watchers create queue
// directories lazily.
func Scan(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan %s: %w", dir, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// Move relocates src into dstDir, keeping its name. Rename first, copy and
// remove when src and dstDir are on different filesystems.
func Move(src, dstDir string) (string, error) {
	dst := filepath.Join(dstDir, filepath.Base(src))

	if err := os.Rename(src, dst); err == nil {
		return dst, nil
	}

	in, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("failed to move %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return "", fmt.Errorf("failed to copy %s: %w", src, err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("failed to close %s: %w", dst, err)
	}
	in.Close()

	if err := os.Remove(src); err != nil {
		return "", fmt.Errorf("failed to remove %s after copy: %w", src, err)
	}
	return dst, nil
}

// Stem returns the identity of a queue file: its base name without the
// extension. Drafts and approvals reference their source item by stem.
func Stem(path string) string {
	name := filepath.Base(path)
	return strings.TrimSuffix(name, filepath.Ext(name))
}
