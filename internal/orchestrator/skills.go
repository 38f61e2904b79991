package orchestrator

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/aristath/clerk/internal/queue"
	"github.com/aristath/clerk/internal/workflow"
)

// skillForTaskType maps task types to the skill that drafts a response for
// them. Unmapped types trigger nothing and skip straight to completion.
var skillForTaskType = map[string]string{
	workflow.TypeFacebookInstagramLead: "social_summary_generator",
	workflow.TypeTwitterLead:           "twitter_post_generator",
	workflow.TypeLinkedInLead:          "auto_linkedin_poster",
	workflow.TypeSocialMediaLead:       "social_summary_generator",
}

// SkillFor returns the skill responsible for a task type.
func SkillFor(taskType string) (string, bool) {
	skill, ok := skillForTaskType[taskType]
	return skill, ok
}

// SkillRunner generates a draft artifact for an item. Real skills are
// external collaborators; the pipeline only cares that a draft shows up in
// pending-approval.
type SkillRunner interface {
	Trigger(skill string, item *queue.Item) error
}

// DraftWriter is the built-in SkillRunner. It writes a placeholder draft
// into pending-approval, named by the source item's stem so a re-trigger
// after a crash finds the existing draft instead of duplicating it.
type DraftWriter struct {
	Dirs queue.Dirs
	Now  func() time.Time
}

// Trigger writes draft_<stem>.md into pending-approval.
func (w DraftWriter) Trigger(skill string, item *queue.Item) error {
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	ts := now().Format(time.RFC3339)

	content := fmt.Sprintf(`---
type: skill_draft
source_file: %s
skill: %s
status: pending_approval
created: %s
requires_hitl: true
---

# Draft generated by %s

**Source:** %s

## Draft Content

%s

## Action Required

- [ ] Review and edit if needed
- [ ] Run "clerk approve %s" to execute
- [ ] Or "clerk reject %s" if not appropriate
`,
		item.Path, skill, ts, skill, item.Name, item.Body, item.Stem, item.Stem)

	if err := os.MkdirAll(w.Dirs.PendingApproval, 0755); err != nil {
		return fmt.Errorf("failed to create pending-approval: %w", err)
	}

	path := filepath.Join(w.Dirs.PendingApproval, "draft_"+item.Stem+".md")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write draft: %w", err)
	}
	return nil
}

// Executor triggers downstream execution for an approved item, e.g. an MCP
// server actually posting. Best effort by contract: the state machine
// advances whether or not execution succeeds.
type Executor interface {
	Execute(item *queue.Item) error
}

// LogExecutor is the built-in Executor; it records the would-be execution
// and succeeds. Real deployments plug in an MCP-backed implementation.
type LogExecutor struct {
	Log *slog.Logger
}

func (e LogExecutor) Execute(item *queue.Item) error {
	if e.Log != nil {
		e.Log.Info("execution triggered", "item", item.Name, "type", item.Meta.Type)
	}
	return nil
}
