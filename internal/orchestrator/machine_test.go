package orchestrator

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aristath/clerk/internal/audit"
	"github.com/aristath/clerk/internal/queue"
	"github.com/aristath/clerk/internal/recovery"
	"github.com/aristath/clerk/internal/state"
	"github.com/aristath/clerk/internal/workflow"
)

func newTestMachine(t *testing.T) (queue.Dirs, *Machine, *state.RunState, *audit.Store) {
	t.Helper()
	dirs := queue.NewDirs(t.TempDir())
	if err := dirs.EnsureAll(); err != nil {
		t.Fatalf("EnsureAll: %v", err)
	}
	store := audit.NewStore(dirs.Logs, nil)
	rec := recovery.NewCoordinator(dirs, recovery.DefaultPolicy(), nil)
	run := state.NewRunState("test-session")
	return dirs, NewMachine(dirs, store, rec, run, nil), run, store
}

func writeItem(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func loadTask(t *testing.T, path string, stage workflow.Stage) *Task {
	t.Helper()
	item, err := queue.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return &Task{Item: item, Class: workflow.Classify(item.Content, item.Meta), Stage: stage}
}

func refreshedIndex(t *testing.T, dirs queue.Dirs) *queue.Index {
	t.Helper()
	ix := queue.NewIndex(dirs)
	if err := ix.Refresh(); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	return ix
}

func TestAdvanceStagesAreForwardOnly(t *testing.T) {
	dirs, m, _, _ := newTestMachine(t)
	path := writeItem(t, dirs.NewWork, "lead_001.md",
		"---\ntype: twitter_lead\n---\n\nNew lead from Twitter DM.\n")

	ix := refreshedIndex(t, dirs)
	task := loadTask(t, path, workflow.StageAnalysis)

	prev := task.Stage
	for i := 0; i < 10; i++ {
		o := m.Advance(task, ix)
		if task.Stage < prev {
			t.Fatalf("stage moved backward: %s -> %s", prev, task.Stage)
		}
		if o == OutcomeWaiting {
			if task.Stage != workflow.StageHITLApproval {
				t.Fatalf("waiting outside hitl_approval: %s", task.Stage)
			}
			return
		}
		if o == OutcomeDone {
			t.Fatal("task completed without approval")
		}
		prev = task.Stage
	}
	t.Fatal("task never parked at hitl_approval")
}

func TestSkillStageWritesDraftOnce(t *testing.T) {
	dirs, m, _, _ := newTestMachine(t)
	path := writeItem(t, dirs.NewWork, "lead_002.md",
		"---\ntype: twitter_lead\n---\n\nLead content.\n")

	ix := refreshedIndex(t, dirs)
	task := loadTask(t, path, workflow.StageSkillExecution)

	if o := m.Advance(task, ix); o != OutcomeContinue {
		t.Fatalf("skill stage outcome = %s", o)
	}
	if task.Stage != workflow.StageHITLApproval {
		t.Fatalf("stage after draft = %s", task.Stage)
	}

	draft := filepath.Join(dirs.PendingApproval, "draft_lead_002.md")
	first, err := os.ReadFile(draft)
	if err != nil {
		t.Fatalf("draft not written: %v", err)
	}
	if !strings.Contains(string(first), "twitter_post_generator") {
		t.Errorf("draft does not name the skill:\n%s", first)
	}

	// Re-running the stage with the draft already present must not rewrite it.
	if err := os.WriteFile(draft, []byte("edited by a human"), 0644); err != nil {
		t.Fatal(err)
	}
	task2 := loadTask(t, path, workflow.StageSkillExecution)
	m.Advance(task2, refreshedIndex(t, dirs))

	second, err := os.ReadFile(draft)
	if err != nil {
		t.Fatal(err)
	}
	if string(second) != "edited by a human" {
		t.Error("re-entering skill stage clobbered the existing draft")
	}
	if task2.Stage != workflow.StageHITLApproval {
		t.Errorf("stage on re-entry = %s", task2.Stage)
	}
}

func TestSkillStageSkipsUnmappedTypes(t *testing.T) {
	dirs, m, _, _ := newTestMachine(t)
	path := writeItem(t, dirs.NewWork, "note_001.md", "Just a note, nothing urgent.\n")

	ix := refreshedIndex(t, dirs)
	task := loadTask(t, path, workflow.StageSkillExecution)

	m.Advance(task, ix)
	if task.Stage != workflow.StageCompletion {
		t.Fatalf("general task stage = %s, want completion", task.Stage)
	}
	if files, _ := queue.Scan(dirs.PendingApproval); len(files) != 0 {
		t.Errorf("general task produced a draft: %v", files)
	}
}

type failingSkill struct{}

func (failingSkill) Trigger(skill string, item *queue.Item) error {
	return errors.New("skill backend unreachable")
}

func TestSkillFailureDrainsWithArtifacts(t *testing.T) {
	dirs, m, _, _ := newTestMachine(t)
	m.SetSkillRunner(failingSkill{})
	path := writeItem(t, dirs.NewWork, "lead_003.md",
		"---\ntype: twitter_lead\n---\n\nLead content.\n")

	ix := refreshedIndex(t, dirs)
	task := loadTask(t, path, workflow.StageSkillExecution)

	if o := m.Advance(task, ix); o != OutcomeContinue {
		t.Fatalf("outcome = %s", o)
	}
	if task.Stage != workflow.StageCompletion {
		t.Fatalf("stage after failure = %s, want completion", task.Stage)
	}

	reports, err := queue.Scan(dirs.ErrorReports)
	if err != nil || len(reports) == 0 {
		t.Fatalf("no error report written: %v %v", reports, err)
	}
	manual, err := queue.Scan(dirs.ManualActions)
	if err != nil || len(manual) == 0 {
		t.Fatalf("no manual action draft written: %v %v", manual, err)
	}
}

func TestHITLStageWaitsThenApproves(t *testing.T) {
	dirs, m, run, _ := newTestMachine(t)
	writeItem(t, dirs.NewWork, "lead_004.md", "---\ntype: twitter_lead\n---\n\nLead.\n")
	writeItem(t, dirs.PendingApproval, "draft_lead_004.md", "draft body")

	path := filepath.Join(dirs.NewWork, "lead_004.md")
	task := loadTask(t, path, workflow.StageHITLApproval)

	if o := m.Advance(task, refreshedIndex(t, dirs)); o != OutcomeWaiting {
		t.Fatalf("unapproved outcome = %s, want waiting", o)
	}
	if task.Stage != workflow.StageHITLApproval {
		t.Fatalf("waiting must not change stage, got %s", task.Stage)
	}

	// A human moves the draft into approved.
	if _, err := queue.Move(filepath.Join(dirs.PendingApproval, "draft_lead_004.md"), dirs.Approved); err != nil {
		t.Fatal(err)
	}

	if o := m.Advance(task, refreshedIndex(t, dirs)); o != OutcomeContinue {
		t.Fatalf("approved outcome = %s", o)
	}
	if task.Stage != workflow.StageMCPExecution {
		t.Fatalf("stage after approval = %s", task.Stage)
	}
	if run.ByResult()["approved"] != 1 {
		t.Errorf("approval not recorded in history: %v", run.ByResult())
	}
}

type failingExecutor struct{}

func (failingExecutor) Execute(item *queue.Item) error {
	return errors.New("mcp server down")
}

func TestMCPFailureStillAdvances(t *testing.T) {
	dirs, m, run, _ := newTestMachine(t)
	m.SetExecutor(failingExecutor{})
	path := writeItem(t, dirs.Approved, "draft_lead_005.md", "approved draft")

	task := loadTask(t, path, workflow.StageMCPExecution)
	if o := m.Advance(task, refreshedIndex(t, dirs)); o != OutcomeContinue {
		t.Fatalf("outcome = %s", o)
	}
	if task.Stage != workflow.StageAuditLogging {
		t.Fatalf("stage = %s, want audit_logging", task.Stage)
	}
	if run.ByResult()["skipped"] != 1 {
		t.Errorf("failed execution not recorded as skipped: %v", run.ByResult())
	}
}

func TestCompletionStageIsIdempotent(t *testing.T) {
	dirs, m, _, _ := newTestMachine(t)
	path := writeItem(t, dirs.NewWork, "note_002.md", "done soon")

	task := loadTask(t, path, workflow.StageCompletion)
	if o := m.Advance(task, refreshedIndex(t, dirs)); o != OutcomeDone {
		t.Fatalf("first completion outcome = %s", o)
	}
	if _, err := os.Stat(filepath.Join(dirs.Done, "note_002.md")); err != nil {
		t.Fatalf("item not archived: %v", err)
	}

	// Second pass over the same task must be a no-op, not an error.
	if o := m.Advance(task, refreshedIndex(t, dirs)); o != OutcomeDone {
		t.Fatalf("second completion outcome = %s", o)
	}
	files, err := queue.Scan(dirs.Done)
	if err != nil || len(files) != 1 {
		t.Errorf("done dir after double completion: %v %v", files, err)
	}
}
