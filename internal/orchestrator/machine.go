package orchestrator

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/aristath/clerk/internal/audit"
	"github.com/aristath/clerk/internal/queue"
	"github.com/aristath/clerk/internal/recovery"
	"github.com/aristath/clerk/internal/state"
	"github.com/aristath/clerk/internal/workflow"
)

// Machine drives a task through its workflow stages. Each Advance call
// moves the task at most one stage; the loop scheduler calls it repeatedly.
// Stage side effects that fail are logged and the task still advances:
// failures must not create stuck items.
type Machine struct {
	dirs     queue.Dirs
	audit    *audit.Store
	recovery *recovery.Coordinator
	run      *state.RunState
	skills   SkillRunner
	exec     Executor
	log      *slog.Logger
}

// NewMachine wires a state machine. auditStore may be nil when auditing is
// disabled; every other dependency is required.
func NewMachine(dirs queue.Dirs, auditStore *audit.Store, rec *recovery.Coordinator, run *state.RunState, logger *slog.Logger) *Machine {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Machine{
		dirs:     dirs,
		audit:    auditStore,
		recovery: rec,
		run:      run,
		skills:   DraftWriter{Dirs: dirs},
		exec:     LogExecutor{Log: logger},
		log:      logger,
	}
}

// SetSkillRunner replaces the built-in draft writer.
func (m *Machine) SetSkillRunner(r SkillRunner) { m.skills = r }

// SetExecutor replaces the built-in executor.
func (m *Machine) SetExecutor(e Executor) { m.exec = e }

// Advance executes the task's current stage and moves it forward at most
// one stage. The index is the caller's scan snapshot; Advance refreshes it
// after side effects that create files.
func (m *Machine) Advance(t *Task, ix *queue.Index) Outcome {
	switch t.Stage {
	case workflow.StageAnalysis:
		return m.analysisStage(t)
	case workflow.StageSkillExecution:
		return m.skillStage(t, ix)
	case workflow.StageHITLApproval:
		return m.hitlStage(t, ix)
	case workflow.StageMCPExecution:
		return m.mcpStage(t)
	case workflow.StageAuditLogging:
		return m.auditStage(t)
	case workflow.StageCompletion:
		return m.completionStage(t)
	default:
		m.log.Warn("unknown stage", "stage", t.Stage, "item", t.Item.Name)
		return OutcomeDone
	}
}

// analysisStage never blocks: record history and hand over to skill
// execution.
func (m *Machine) analysisStage(t *Task) Outcome {
	m.run.AddHistory(t.Item.Name, workflow.StageAnalysis.String(), "complete")
	t.Stage = workflow.StageSkillExecution
	return OutcomeContinue
}

// skillStage triggers the task type's skill and routes by whether a draft
// appeared: draft means HITL approval, no draft means nothing to approve.
func (m *Machine) skillStage(t *Task, ix *queue.Index) Outcome {
	skill, ok := SkillFor(t.Class.TaskType)
	if !ok {
		m.log.Info("no skill for task type, completing", "type", t.Class.TaskType, "item", t.Item.Name)
		t.Stage = workflow.StageCompletion
		return OutcomeContinue
	}

	// At-least-once trigger, de-duplicated by stem: a draft for this item
	// anywhere downstream means a prior pass (or crashed run) already did
	// the work, so re-entering this stage must not draft twice.
	switch {
	case ix.Match(queue.LocPendingApproval, t.Item.Stem), ix.Match(queue.LocApproved, t.Item.Stem):
		// Draft still in flight; pick up at the approval gate.
	case ix.Match(queue.LocDone, "draft_"+t.Item.Stem):
		// Draft was approved, executed and archived on an earlier pass.
		m.run.AddHistory(t.Item.Name, workflow.StageSkillExecution.String(), "already_drafted")
		t.Stage = workflow.StageCompletion
		return OutcomeContinue
	default:
		if err := m.skills.Trigger(skill, t.Item); err != nil {
			m.log.Error("skill trigger failed", "skill", skill, "item", t.Item.Name, "err", err)
			m.auditError("skill_execution_failed", t.Item.Path, err.Error())
			m.recovery.RecordFailure(skill, err, t.Item.Content,
				"Re-run the skill once the underlying issue is fixed",
				"draft", fmt.Sprintf("Generate the %s draft for %s manually", skill, t.Item.Name))
			t.Stage = workflow.StageCompletion
			return OutcomeContinue
		}
		if err := ix.Refresh(); err != nil {
			m.log.Warn("index refresh failed after skill trigger", "err", err)
		}
	}

	if ix.Match(queue.LocPendingApproval, t.Item.Stem) || ix.Match(queue.LocApproved, t.Item.Stem) {
		m.run.AddHistory(t.Item.Name, workflow.StageSkillExecution.String(), "draft_created")
		t.Stage = workflow.StageHITLApproval
		return OutcomeContinue
	}

	m.run.AddHistory(t.Item.Name, workflow.StageSkillExecution.String(), "no_draft")
	t.Stage = workflow.StageCompletion
	return OutcomeContinue
}

// hitlStage is the only wait state: a non-blocking poll of the approved
// directory. No approval means the pass ends here for this task.
func (m *Machine) hitlStage(t *Task, ix *queue.Index) Outcome {
	if !ix.Match(queue.LocApproved, t.Item.Stem) {
		m.run.AddHistory(t.Item.Name, workflow.StageHITLApproval.String(), "pending")
		return OutcomeWaiting
	}

	m.run.AddHistory(t.Item.Name, workflow.StageHITLApproval.String(), "approved")
	if m.audit != nil {
		if err := m.audit.LogApproval("hitl_approval", t.Item.Path, "approved", ""); err != nil {
			m.log.Warn("audit write failed", "err", err)
		}
	}
	t.Stage = workflow.StageMCPExecution
	return OutcomeContinue
}

// mcpStage fires downstream execution and continues regardless of the
// outcome. The trigger being unavailable is an expected condition, not a
// reason to strand the item.
func (m *Machine) mcpStage(t *Task) Outcome {
	if err := m.exec.Execute(t.Item); err != nil {
		m.log.Warn("execution trigger failed, continuing", "item", t.Item.Name, "err", err)
		m.recovery.LogError("mcp_execution", err, map[string]string{"item": t.Item.Name})
		m.run.AddHistory(t.Item.Name, workflow.StageMCPExecution.String(), "skipped")
	} else {
		m.run.AddHistory(t.Item.Name, workflow.StageMCPExecution.String(), "success")
	}

	t.Stage = workflow.StageAuditLogging
	return OutcomeContinue
}

// auditStage writes the completion audit entry. This stage runs even when
// earlier stages degraded.
func (m *Machine) auditStage(t *Task) Outcome {
	if m.audit != nil {
		err := m.audit.LogEnd("task_completed", t.Item.Path, "success", map[string]any{
			"task_type":       t.Class.TaskType,
			"workflow_stages": len(t.Class.Stages),
		}, "Task completed: "+t.Item.Name)
		if err != nil {
			m.log.Warn("audit write failed", "err", err)
		}
	}

	m.run.AddHistory(t.Item.Name, workflow.StageAuditLogging.String(), "logged")
	t.Stage = workflow.StageCompletion
	return OutcomeContinue
}

// completionStage archives the file in done/. A failed move is logged and
// the task is still terminal: retrying a move forever helps nobody.
func (m *Machine) completionStage(t *Task) Outcome {
	if _, err := os.Stat(t.Item.Path); err == nil {
		if _, err := queue.Move(t.Item.Path, m.dirs.Done); err != nil {
			m.log.Error("failed to archive item", "item", t.Item.Name, "err", err)
			m.auditError("task_archive_failed", t.Item.Path, err.Error())
		} else {
			m.auditEnd("task_finalized", t.Item.Path, "Moved to done: "+t.Item.Name)
		}
	} else {
		// Already gone; a second completion pass is a safe no-op.
		m.log.Debug("item already absent at completion", "item", t.Item.Name)
	}

	m.run.AddHistory(t.Item.Name, workflow.StageCompletion.String(), "TASK_COMPLETE")
	return OutcomeDone
}

func (m *Machine) auditEnd(actionType, target, message string) {
	if m.audit == nil {
		return
	}
	if err := m.audit.LogEnd(actionType, target, "success", nil, message); err != nil {
		m.log.Warn("audit write failed", "err", err)
	}
}

func (m *Machine) auditError(actionType, target, message string) {
	if m.audit == nil {
		return
	}
	if err := m.audit.LogError(actionType, target, message, nil); err != nil {
		m.log.Warn("audit write failed", "err", err)
	}
}
