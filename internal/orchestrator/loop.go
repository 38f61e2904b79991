package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/aristath/clerk/internal/audit"
	"github.com/aristath/clerk/internal/queue"
	"github.com/aristath/clerk/internal/state"
	"github.com/aristath/clerk/internal/workflow"
)

// DefaultMaxIterations bounds a loop run when the caller does not.
const DefaultMaxIterations = 20

// Loop is the bounded-iteration driver. Each iteration it rescans the
// queue directories in priority order, classifies what it finds, and runs
// every discovered task through the state machine until the task is done
// or waiting. It holds no references to items across iterations: the
// directories are the source of truth.
type Loop struct {
	dirs          queue.Dirs
	machine       *Machine
	audit         *audit.Store
	run           *state.RunState
	maxIterations int
	prompt        string
	log           *slog.Logger
}

// NewLoop wires a loop scheduler. auditStore may be nil; a nil runState
// gets a fresh session.
func NewLoop(dirs queue.Dirs, machine *Machine, auditStore *audit.Store, run *state.RunState, maxIterations int, logger *slog.Logger) *Loop {
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}
	if run == nil {
		run = state.NewRunState(uuid.NewString())
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Loop{
		dirs:          dirs,
		machine:       machine,
		audit:         auditStore,
		run:           run,
		maxIterations: maxIterations,
		log:           logger,
	}
}

// SetPrompt records the caller's free-text prompt. Informational only; it
// shows up in the audit trail but never alters control flow.
func (l *Loop) SetPrompt(prompt string) { l.prompt = prompt }

// RunState exposes the run's history for status surfaces.
func (l *Loop) RunState() *state.RunState { return l.run }

// Run drives iterations until everything drains or the budget runs out.
// Returns true when all work finished; false with a nil error is the
// partial-success outcome (budget exhausted, work remains).
func (l *Loop) Run(ctx context.Context) (bool, error) {
	l.auditLog(func(s *audit.Store) error {
		return s.LogStart("loop_started", "loop_runner", map[string]any{
			"max_iterations": l.maxIterations,
			"session":        l.run.SessionID,
			"prompt":         l.prompt,
		}, "Reasoning loop started")
	})

	for i := 0; i < l.maxIterations; i++ {
		if err := ctx.Err(); err != nil {
			return false, err
		}

		n := l.run.BumpIteration()
		l.log.Info("loop iteration", "iteration", n, "max", l.maxIterations)

		complete, err := l.runIteration(ctx)
		if err != nil {
			return false, err
		}
		if complete {
			l.run.MarkComplete()
			l.auditLog(func(s *audit.Store) error {
				return s.LogEnd("loop_completed", "loop_runner", "success", map[string]any{
					"iterations_run":  l.run.Iterations,
					"tasks_processed": l.run.Processed(),
				}, "All tasks finished")
			})
			l.log.Info("all tasks completed", "iterations", n)
			return true, nil
		}
	}

	l.auditLog(func(s *audit.Store) error {
		return s.LogEnd("loop_incomplete", "loop_runner", "partial", map[string]any{
			"iterations_run":  l.run.Iterations,
			"tasks_processed": l.run.Processed(),
		}, fmt.Sprintf("Loop ended after %d iterations with work remaining", l.maxIterations))
	})
	l.log.Warn("iteration budget exhausted with work remaining", "max", l.maxIterations)
	return false, nil
}

// discovered ties a scanned path to the stage its location implies. The
// location is authoritative: whatever stage an item might compute for
// itself, where it sits decides where processing resumes.
type discovered struct {
	path  string
	stage workflow.Stage
}

// runIteration processes every file currently visible in the three scanned
// queues, highest priority first: execution-ready, then awaiting approval,
// then brand new.
func (l *Loop) runIteration(ctx context.Context) (bool, error) {
	ix := queue.NewIndex(l.dirs)
	if err := ix.Refresh(); err != nil {
		return false, fmt.Errorf("failed to build queue index: %w", err)
	}

	var found []discovered
	for _, scan := range []struct {
		dir   string
		stage workflow.Stage
	}{
		{l.dirs.Approved, workflow.StageMCPExecution},
		{l.dirs.PendingApproval, workflow.StageHITLApproval},
		{l.dirs.NewWork, workflow.StageAnalysis},
	} {
		files, err := queue.Scan(scan.dir)
		if err != nil {
			return false, err
		}
		for _, f := range files {
			found = append(found, discovered{path: f, stage: scan.stage})
		}
	}

	if len(found) == 0 {
		l.log.Info("no files to process")
		return true, nil
	}
	l.log.Info("files discovered", "count", len(found))

	waiting := 0
	completed := 0
	for _, d := range found {
		if err := ctx.Err(); err != nil {
			return false, err
		}

		t := l.buildTask(d)
		switch l.drive(t, ix) {
		case OutcomeWaiting:
			waiting++
		case OutcomeDone:
			completed++
		}
	}

	l.log.Info("iteration summary", "completed", completed, "waiting", waiting)

	if waiting > 0 {
		return false, nil
	}
	return l.queuesEmpty()
}

// drive runs a task through consecutive stages until it is done or parked.
// Each Advance moves at most one stage; the stage set is finite and
// strictly forward, so this terminates.
func (l *Loop) drive(t *Task, ix *queue.Index) Outcome {
	for {
		o := l.machine.Advance(t, ix)
		if o != OutcomeContinue {
			return o
		}
	}
}

// buildTask loads and classifies one discovered file. An unreadable file
// degrades to the error classification so the pipeline drains it instead
// of stalling on it.
func (l *Loop) buildTask(d discovered) *Task {
	item, err := queue.Load(d.path)
	if err != nil {
		l.log.Error("failed to read item, draining as error task", "path", d.path, "err", err)
		l.auditLog(func(s *audit.Store) error {
			return s.LogError("task_analysis_failed", d.path, err.Error(), nil)
		})
		return &Task{
			Item:  &queue.Item{Path: d.path, Name: filepath.Base(d.path), Stem: queue.Stem(d.path)},
			Class: workflow.ErrorClassification(),
			Stage: workflow.StageCompletion,
		}
	}

	class := workflow.Classify(item.Content, item.Meta)
	l.auditLog(func(s *audit.Store) error {
		return s.LogEnd("task_analyzed", d.path, "success", map[string]any{
			"task_type":       class.TaskType,
			"is_multi_step":   class.MultiStep,
			"workflow_stages": len(class.Stages),
		}, fmt.Sprintf("Analyzed %s: %s", item.Name, class.TaskType))
	})

	return &Task{Item: item, Class: class, Stage: d.stage}
}

// queuesEmpty reports whether the three scanned queues drained. Checked
// after processing so freshly created drafts count against completion.
func (l *Loop) queuesEmpty() (bool, error) {
	for _, dir := range []string{l.dirs.Approved, l.dirs.PendingApproval, l.dirs.NewWork} {
		files, err := queue.Scan(dir)
		if err != nil {
			return false, err
		}
		if len(files) > 0 {
			return false, nil
		}
	}
	return true, nil
}

func (l *Loop) auditLog(fn func(*audit.Store) error) {
	if l.audit == nil {
		return
	}
	if err := fn(l.audit); err != nil {
		l.log.Warn("audit write failed", "err", err)
	}
}
