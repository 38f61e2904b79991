package watcher

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aristath/clerk/internal/queue"
)

func newTestWatcher(t *testing.T) (queue.Dirs, *Watcher) {
	t.Helper()
	dirs := queue.NewDirs(t.TempDir())
	if err := dirs.EnsureAll(); err != nil {
		t.Fatalf("EnsureAll: %v", err)
	}
	w, err := New(dirs, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(w.Stop)
	w.Now = func() time.Time { return time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC) }
	return dirs, w
}

func TestIngestWrapsTextDrop(t *testing.T) {
	dirs, w := newTestWatcher(t)

	drop := filepath.Join(dirs.Inbox, "invoice_042.txt")
	if err := os.WriteFile(drop, []byte("Invoice #42, due friday"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := w.Ingest(drop); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	task := filepath.Join(dirs.NewWork, "FILE_invoice_042.md")
	item, err := queue.Load(task)
	if err != nil {
		t.Fatalf("work item not created: %v", err)
	}
	if item.Meta.Type != "file_drop" {
		t.Errorf("type = %q", item.Meta.Type)
	}
	if item.Meta.Extra["original_name"] != "invoice_042.txt" {
		t.Errorf("original_name = %q", item.Meta.Extra["original_name"])
	}
	if !strings.Contains(item.Body, "Invoice #42") {
		t.Errorf("payload not inlined:\n%s", item.Body)
	}
}

func TestIngestIsIdempotent(t *testing.T) {
	dirs, w := newTestWatcher(t)

	drop := filepath.Join(dirs.Inbox, "note.md")
	if err := os.WriteFile(drop, []byte("first"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := w.Ingest(drop); err != nil {
		t.Fatal(err)
	}

	task := filepath.Join(dirs.NewWork, "FILE_note.md")
	before, err := os.ReadFile(task)
	if err != nil {
		t.Fatal(err)
	}

	// Same drop seen again must not rewrite the work item.
	if err := os.WriteFile(drop, []byte("second"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := w.Ingest(drop); err != nil {
		t.Fatal(err)
	}
	after, err := os.ReadFile(task)
	if err != nil {
		t.Fatal(err)
	}
	if string(before) != string(after) {
		t.Error("re-ingest rewrote the work item")
	}
}

func TestIngestBinaryDropIsReferenced(t *testing.T) {
	dirs, w := newTestWatcher(t)

	drop := filepath.Join(dirs.Inbox, "photo.bin")
	if err := os.WriteFile(drop, []byte{0xff, 0xfe, 0x00, 0x01}, 0644); err != nil {
		t.Fatal(err)
	}
	if err := w.Ingest(drop); err != nil {
		t.Fatal(err)
	}

	item, err := queue.Load(filepath.Join(dirs.NewWork, "FILE_photo.md"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(item.Body, "Binary file dropped") {
		t.Errorf("binary payload not summarized:\n%s", item.Body)
	}
}

func TestStartSweepsExistingDrops(t *testing.T) {
	dirs, w := newTestWatcher(t)

	if err := os.WriteFile(filepath.Join(dirs.Inbox, "early.md"), []byte("dropped before start"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dirs.Inbox, ".hidden"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dirs.NewWork, "FILE_early.md")); err != nil {
		t.Errorf("pre-existing drop not ingested: %v", err)
	}
	files, err := queue.Scan(dirs.NewWork)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 {
		t.Errorf("new-work = %v, hidden file should be skipped", files)
	}
}
