package orchestrator

import (
	"github.com/aristath/clerk/internal/queue"
	"github.com/aristath/clerk/internal/workflow"
)

// Task is one discovered work item in flight through the state machine.
// The scan location decides the starting stage; classification decides the
// task type and expected workflow.
type Task struct {
	Item  *queue.Item
	Class workflow.Classification
	Stage workflow.Stage
}

// Outcome is the result of one Advance call.
type Outcome int

const (
	// OutcomeContinue means the task moved forward one stage and has more
	// stages to run this pass.
	OutcomeContinue Outcome = iota
	// OutcomeWaiting means the task is parked at hitl_approval until a
	// human acts; it will be re-checked next iteration.
	OutcomeWaiting
	// OutcomeDone means the task is terminal: archived in done/ or beyond
	// saving.
	OutcomeDone
)

func (o Outcome) String() string {
	switch o {
	case OutcomeContinue:
		return "continue"
	case OutcomeWaiting:
		return "waiting"
	case OutcomeDone:
		return "done"
	default:
		return "unknown"
	}
}
