package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aristath/clerk/internal/audit"
	"github.com/aristath/clerk/internal/queue"
	"github.com/aristath/clerk/internal/recovery"
	"github.com/aristath/clerk/internal/state"
)

func newTestLoop(t *testing.T, maxIterations int) (queue.Dirs, *Loop, *audit.Store) {
	t.Helper()
	dirs := queue.NewDirs(t.TempDir())
	if err := dirs.EnsureAll(); err != nil {
		t.Fatalf("EnsureAll: %v", err)
	}
	store := audit.NewStore(dirs.Logs, nil)
	rec := recovery.NewCoordinator(dirs, recovery.DefaultPolicy(), nil)
	run := state.NewRunState("loop-test")
	m := NewMachine(dirs, store, rec, run, nil)
	return dirs, NewLoop(dirs, m, store, run, maxIterations, nil), store
}

func auditActions(t *testing.T, store *audit.Store) map[string][]audit.Entry {
	t.Helper()
	now := time.Now()
	entries, err := store.Query(now, now)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	byAction := map[string][]audit.Entry{}
	for _, e := range entries {
		byAction[e.ActionType] = append(byAction[e.ActionType], e)
	}
	return byAction
}

func TestLoopEmptyQueuesCompleteImmediately(t *testing.T) {
	_, loop, _ := newTestLoop(t, 5)

	done, err := loop.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !done {
		t.Error("empty queues should complete on the first iteration")
	}
	if loop.RunState().Iterations != 1 {
		t.Errorf("Iterations = %d, want 1", loop.RunState().Iterations)
	}
}

// A lead works end to end: draft created on the first run, parked until a
// human approves, then executed and archived together with its source.
func TestLoopLeadDraftApproveExecute(t *testing.T) {
	dirs, loop, store := newTestLoop(t, 2)
	ctx := context.Background()

	writeItem(t, dirs.NewWork, "lead_007.md",
		"---\ntype: twitter_lead\npriority: high\n---\n\nDM from @prospect asking about pricing.\n")

	// First run: draft appears, then the loop stalls on approval.
	done, err := loop.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if done {
		t.Fatal("run reported complete with an unapproved draft")
	}
	draft := filepath.Join(dirs.PendingApproval, "draft_lead_007.md")
	if _, err := os.Stat(draft); err != nil {
		t.Fatalf("no draft in pending-approval: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dirs.NewWork, "lead_007.md")); err != nil {
		t.Fatalf("source item left new-work before approval: %v", err)
	}

	// Second run without approval: still parked, no duplicate draft.
	if done, err = loop.Run(ctx); err != nil || done {
		t.Fatalf("unapproved rerun: done=%v err=%v", done, err)
	}
	if files, _ := queue.Scan(dirs.PendingApproval); len(files) != 1 {
		t.Fatalf("pending-approval after rerun: %v", files)
	}

	// A human approves by moving the draft.
	if _, err := queue.Move(draft, dirs.Approved); err != nil {
		t.Fatal(err)
	}

	done, err = loop.Run(ctx)
	if err != nil {
		t.Fatalf("Run after approval: %v", err)
	}
	if !done {
		t.Fatal("approved work did not drain")
	}

	archived, err := queue.Scan(dirs.Done)
	if err != nil {
		t.Fatal(err)
	}
	if len(archived) != 2 {
		t.Fatalf("done dir = %v, want draft and source", archived)
	}
	for _, dir := range []string{dirs.NewWork, dirs.PendingApproval, dirs.Approved} {
		if files, _ := queue.Scan(dir); len(files) != 0 {
			t.Errorf("%s not drained: %v", dir, files)
		}
	}

	byAction := auditActions(t, store)
	for _, action := range []string{"task_analyzed", "hitl_approval", "task_completed", "loop_completed"} {
		if len(byAction[action]) == 0 {
			t.Errorf("no %q audit entry", action)
		}
	}
	if got := byAction["hitl_approval"][0].ApprovalStatus; got != "approved" {
		t.Errorf("hitl_approval status = %q", got)
	}
}

func TestLoopBudgetExhaustedIsPartial(t *testing.T) {
	dirs, loop, store := newTestLoop(t, 1)
	writeItem(t, dirs.PendingApproval, "draft_stuck.md", "never approved")

	done, err := loop.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if done {
		t.Fatal("run with a stuck draft reported complete")
	}

	byAction := auditActions(t, store)
	incomplete := byAction["loop_incomplete"]
	if len(incomplete) != 1 {
		t.Fatalf("loop_incomplete entries = %d", len(incomplete))
	}
	if incomplete[0].Result != "partial" {
		t.Errorf("result = %q, want partial", incomplete[0].Result)
	}
	if _, err := os.Stat(filepath.Join(dirs.PendingApproval, "draft_stuck.md")); err != nil {
		t.Errorf("stuck draft was moved: %v", err)
	}
}

func TestLoopGeneralTaskDrainsWithoutApproval(t *testing.T) {
	dirs, loop, _ := newTestLoop(t, 3)
	writeItem(t, dirs.NewWork, "note_010.md", "Remember to water the plants.\n")

	done, err := loop.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !done {
		t.Fatal("general task did not drain")
	}
	if _, err := os.Stat(filepath.Join(dirs.Done, "note_010.md")); err != nil {
		t.Errorf("note not archived: %v", err)
	}
}

func TestLoopUnreadableItemDrainsAsError(t *testing.T) {
	dirs, loop, store := newTestLoop(t, 2)

	// A directory entry that Load cannot read as a file.
	bad := filepath.Join(dirs.NewWork, "bad_item.md")
	if err := os.WriteFile(bad, []byte("x"), 0000); err != nil {
		t.Fatal(err)
	}
	if _, err := os.ReadFile(bad); err == nil {
		t.Skip("running as a user that ignores file modes")
	}

	done, err := loop.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !done {
		t.Fatal("unreadable item did not drain")
	}
	if len(auditActions(t, store)["task_analysis_failed"]) == 0 {
		t.Error("no task_analysis_failed audit entry")
	}
}

func TestLoopHonoursContextCancellation(t *testing.T) {
	dirs, loop, _ := newTestLoop(t, 5)
	writeItem(t, dirs.NewWork, "lead_011.md", "---\ntype: twitter_lead\n---\n\nLead.\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := loop.Run(ctx); err == nil {
		t.Fatal("cancelled context did not abort the run")
	}
}
