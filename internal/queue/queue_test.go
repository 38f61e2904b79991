package queue

import (
	"os"
	"path/filepath"
	"testing"
)

func TestEnsureAllCreatesLayout(t *testing.T) {
	dirs := NewDirs(t.TempDir())
	if err := dirs.EnsureAll(); err != nil {
		t.Fatalf("EnsureAll: %v", err)
	}

	for _, dir := range dirs.All() {
		info, err := os.Stat(dir)
		if err != nil {
			t.Errorf("missing directory %s: %v", dir, err)
			continue
		}
		if !info.IsDir() {
			t.Errorf("%s is not a directory", dir)
		}
	}
}

func TestScanSkipsHiddenAndSorts(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.md", "a.md", ".hidden", "c.md"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0755); err != nil {
		t.Fatal(err)
	}

	files, err := Scan(dir)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(files) != 3 {
		t.Fatalf("Scan returned %d files, want 3: %v", len(files), files)
	}
	for i, want := range []string{"a.md", "b.md", "c.md"} {
		if filepath.Base(files[i]) != want {
			t.Errorf("files[%d] = %s, want %s", i, filepath.Base(files[i]), want)
		}
	}
}

func TestScanMissingDirIsEmpty(t *testing.T) {
	files, err := Scan(filepath.Join(t.TempDir(), "nope"))
	if err != nil {
		t.Fatalf("Scan of missing dir: %v", err)
	}
	if len(files) != 0 {
		t.Errorf("expected no files, got %v", files)
	}
}

func TestMove(t *testing.T) {
	src := filepath.Join(t.TempDir(), "task.md")
	dstDir := t.TempDir()
	if err := os.WriteFile(src, []byte("payload"), 0644); err != nil {
		t.Fatal(err)
	}

	dst, err := Move(src, dstDir)
	if err != nil {
		t.Fatalf("Move: %v", err)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Errorf("source still exists after move")
	}
	data, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("read moved file: %v", err)
	}
	if string(data) != "payload" {
		t.Errorf("moved content = %q", data)
	}
}

func TestParseFrontmatter(t *testing.T) {
	tests := []struct {
		name       string
		content    string
		wantFields map[string]string
		wantBody   string
	}{
		{
			name:       "no block",
			content:    "just a body\n",
			wantFields: map[string]string{},
			wantBody:   "just a body\n",
		},
		{
			name:       "simple block",
			content:    "---\ntype: twitter_lead\npriority: high\n---\nbody here",
			wantFields: map[string]string{"type": "twitter_lead", "priority": "high"},
			wantBody:   "\nbody here",
		},
		{
			name:       "extra fences stay in body",
			content:    "---\ntype: note\n---\nfirst\n---\nsecond",
			wantFields: map[string]string{"type": "note"},
			wantBody:   "\nfirst\n---\nsecond",
		},
		{
			name:       "unclosed fence is all body",
			content:    "---\ntype: broken\nno closing fence",
			wantFields: map[string]string{},
			wantBody:   "---\ntype: broken\nno closing fence",
		},
		{
			name:       "quoted values and junk lines",
			content:    "---\nsender: \"alice@example.com\"\nnot a field\nkeyword: 'sales'\n---\n",
			wantFields: map[string]string{"sender": "alice@example.com", "keyword": "sales"},
			wantBody:   "\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields, body := ParseFrontmatter(tt.content)
			if body != tt.wantBody {
				t.Errorf("body = %q, want %q", body, tt.wantBody)
			}
			if len(fields) != len(tt.wantFields) {
				t.Errorf("fields = %v, want %v", fields, tt.wantFields)
			}
			for k, v := range tt.wantFields {
				if fields[k] != v {
					t.Errorf("fields[%q] = %q, want %q", k, fields[k], v)
				}
			}
		})
	}
}

func TestMetadataDefaults(t *testing.T) {
	m := MetadataFromFields(map[string]string{})
	if m.Priority != "normal" || m.Platform != "unknown" || m.Keyword != "general" {
		t.Errorf("defaults not applied: %+v", m)
	}
	if m.Type != "" {
		t.Errorf("Type should stay empty when undeclared, got %q", m.Type)
	}

	m = MetadataFromFields(map[string]string{
		"type":     "financial_task",
		"priority": "high",
		"custom":   "value",
	})
	if m.Type != "financial_task" || m.Priority != "high" {
		t.Errorf("declared fields lost: %+v", m)
	}
	if m.Extra["custom"] != "value" {
		t.Errorf("extra fields lost: %+v", m.Extra)
	}
}

func TestLoadItem(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "EMAIL_lead_001.md")
	content := "---\ntype: twitter_lead\nsender: bob\n---\nSales opportunity."
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	item, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if item.Stem != "EMAIL_lead_001" {
		t.Errorf("Stem = %q", item.Stem)
	}
	if item.Meta.Type != "twitter_lead" {
		t.Errorf("Meta.Type = %q", item.Meta.Type)
	}
	if item.Body != "\nSales opportunity." {
		t.Errorf("Body = %q", item.Body)
	}
}

func TestIndexMatchAndLookup(t *testing.T) {
	dirs := NewDirs(t.TempDir())
	if err := dirs.EnsureAll(); err != nil {
		t.Fatal(err)
	}

	write := func(dir, name string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	write(dirs.NewWork, "lead_001.md")
	write(dirs.PendingApproval, "draft_lead_001.md")
	write(dirs.Approved, "draft_lead_002.md")

	ix := NewIndex(dirs)
	if err := ix.Refresh(); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	if !ix.Match(LocPendingApproval, "lead_001") {
		t.Error("expected draft_lead_001 to match lead_001 in pending-approval")
	}
	if ix.Match(LocApproved, "lead_001") {
		t.Error("lead_001 should not match in approved")
	}
	if !ix.Match(LocApproved, "lead_002") {
		t.Error("expected draft_lead_002 to match lead_002 in approved")
	}
	if ix.Match(LocNewWork, "") {
		t.Error("empty stem must never match")
	}

	if loc := ix.Lookup("lead_001"); loc != LocNewWork {
		t.Errorf("Lookup(lead_001) = %v, want new-work", loc)
	}
	if loc := ix.Lookup("ghost"); loc != LocUnknown {
		t.Errorf("Lookup(ghost) = %v, want unknown", loc)
	}
}
