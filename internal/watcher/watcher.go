package watcher

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/fsnotify/fsnotify"

	"github.com/aristath/clerk/internal/queue"
)

// Watcher turns files dropped into inbox/ into work items in new-work/.
// External collaborators (mail fetchers, scrapers, humans) only need to
// write a file; the watcher wraps it in frontmatter the classifier can read.
type Watcher struct {
	dirs    queue.Dirs
	watcher *fsnotify.Watcher
	log     *slog.Logger
	done    chan struct{}

	// Now is injectable for tests; nil means time.Now.
	Now func() time.Time
}

// New creates a watcher over the pipeline's inbox directory.
func New(dirs queue.Dirs, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	return &Watcher{
		dirs:    dirs,
		watcher: fsw,
		log:     logger,
		done:    make(chan struct{}),
	}, nil
}

// Start sweeps files already sitting in the inbox, then begins watching for
// new drops. Runs until Stop.
func (w *Watcher) Start() error {
	if err := os.MkdirAll(w.dirs.Inbox, 0755); err != nil {
		return fmt.Errorf("failed to create inbox: %w", err)
	}
	if err := w.watcher.Add(w.dirs.Inbox); err != nil {
		return fmt.Errorf("failed to watch inbox: %w", err)
	}

	// Files dropped before the watch started still count.
	existing, err := queue.Scan(w.dirs.Inbox)
	if err != nil {
		return err
	}
	for _, path := range existing {
		if err := w.Ingest(path); err != nil {
			w.log.Error("failed to ingest existing file", "path", path, "err", err)
		}
	}

	go w.watch()
	return nil
}

// Stop stops the watcher.
func (w *Watcher) Stop() {
	close(w.done)
	w.watcher.Close()
}

func (w *Watcher) watch() {
	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Create == fsnotify.Create {
				w.handleCreate(event.Name)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Error("watch error", "err", err)
		}
	}
}

func (w *Watcher) handleCreate(path string) {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") {
		return
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return
	}
	if err := w.Ingest(path); err != nil {
		w.log.Error("failed to ingest dropped file", "path", path, "err", err)
	}
}

// Ingest wraps one dropped file as a work item: FILE_<stem>.md in new-work
// with file_drop frontmatter and, for text drops, the payload inlined.
// Ingesting the same file twice is a no-op so a watch restart cannot
// duplicate work.
func (w *Watcher) Ingest(path string) error {
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}

	stem := queue.Stem(path)
	task := filepath.Join(w.dirs.NewWork, "FILE_"+stem+".md")
	if _, err := os.Stat(task); err == nil {
		w.log.Debug("drop already ingested", "path", path)
		return nil
	}

	payload, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read dropped file: %w", err)
	}

	var body string
	if utf8.Valid(payload) {
		body = string(payload)
	} else {
		body = fmt.Sprintf("Binary file dropped (%d bytes). Review it at the source path above.", len(payload))
	}

	content := fmt.Sprintf(`---
type: file_drop
source_file: %s
original_name: %s
created: %s
---

# File dropped: %s

%s
`, path, filepath.Base(path), now().Format(time.RFC3339), filepath.Base(path), body)

	if err := os.MkdirAll(w.dirs.NewWork, 0755); err != nil {
		return fmt.Errorf("failed to create new-work: %w", err)
	}
	if err := os.WriteFile(task, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write work item: %w", err)
	}

	w.log.Info("file ingested", "from", path, "to", task)
	return nil
}
