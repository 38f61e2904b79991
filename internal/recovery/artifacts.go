package recovery

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// WriteErrorReport writes a durable failure report into error-reports/ and
// returns its path. The report carries enough context for a human to act
// without reading logs.
func (c *Coordinator) WriteErrorReport(skill string, opErr error, input, recoveryAction string) (string, error) {
	now := c.now()
	path := filepath.Join(c.dirs.ErrorReports,
		fmt.Sprintf("skill_error_%s_%s.md", skill, now.Format("20060102_150405")))

	ts := now.Format("2006-01-02 15:04:05")

	var b strings.Builder
	fmt.Fprintf(&b, "---\ntype: skill_error\nskill: %s\ntimestamp: %s\nstatus: needs_review\n---\n\n", skill, ts)
	fmt.Fprintf(&b, "# Skill Error Report\n\n")
	fmt.Fprintf(&b, "**Skill:** %s\n**Timestamp:** %s\n\n", skill, ts)
	fmt.Fprintf(&b, "## Error Details\n\n```\n%v\n```\n\n", opErr)

	if input != "" {
		fmt.Fprintf(&b, "## Input Data\n\n%s\n\n", truncate(input, 500))
	}
	if recoveryAction != "" {
		fmt.Fprintf(&b, "## Suggested Recovery Action\n\n%s\n\n", recoveryAction)
	}

	b.WriteString("## Manual Review Required\n\n")
	b.WriteString("- [ ] Review error details above\n")
	b.WriteString("- [ ] Check input data for issues\n")
	b.WriteString("- [ ] Retry the operation manually\n")
	b.WriteString("- [ ] Move to done/ after resolution\n")

	if err := c.writeArtifact(path, b.String()); err != nil {
		return "", err
	}
	return path, nil
}

// WriteManualAction writes a human-actionable fallback task into
// manual-action-drafts/ and returns its path.
func (c *Coordinator) WriteManualAction(skill, actionType, description, input string) (string, error) {
	now := c.now()
	path := filepath.Join(c.dirs.ManualActions,
		fmt.Sprintf("manual_action_%s_%s.md", skill, now.Format("20060102_150405")))

	ts := now.Format("2006-01-02 15:04:05")

	var b strings.Builder
	fmt.Fprintf(&b, "---\ntype: manual_action\nskill: %s\naction_type: %s\ncreated: %s\nstatus: pending\npriority: high\n---\n\n",
		skill, actionType, ts)
	fmt.Fprintf(&b, "# Manual Action Required\n\n")
	fmt.Fprintf(&b, "**Skill:** %s\n**Action Type:** %s\n**Created:** %s\n\n", skill, actionType, ts)
	fmt.Fprintf(&b, "## Description\n\n%s\n\n", description)

	b.WriteString("## Original Input\n\n")
	if input != "" {
		b.WriteString(truncate(input, 1000))
		b.WriteString("\n")
	} else {
		b.WriteString("*No original input available*\n")
	}

	fmt.Fprintf(&b, "\n## Manual Execution Steps\n\n")
	fmt.Fprintf(&b, "1. Review the description above\n")
	fmt.Fprintf(&b, "2. Execute the %s manually\n", actionType)
	fmt.Fprintf(&b, "3. Document the outcome\n")
	fmt.Fprintf(&b, "4. Move this file to done/ after completion\n")

	if err := c.writeArtifact(path, b.String()); err != nil {
		return "", err
	}
	return path, nil
}

// RecordFailure emits both durable artifacts for an unrecoverable failure.
// Best effort: a failed write is reported and swallowed, never re-raised,
// because artifact generation must not replace one failure with another.
func (c *Coordinator) RecordFailure(skill string, opErr error, input, recoveryAction, actionType, description string) {
	if _, err := c.WriteErrorReport(skill, opErr, input, recoveryAction); err != nil {
		fmt.Fprintf(os.Stdout, "Failed to write error report: %v\n", err)
		c.log.Error("failed to write error report", "skill", skill, "err", err)
	}
	if _, err := c.WriteManualAction(skill, actionType, description, input); err != nil {
		fmt.Fprintf(os.Stdout, "Failed to write manual action: %v\n", err)
		c.log.Error("failed to write manual action", "skill", skill, "err", err)
	}
}

func (c *Coordinator) writeArtifact(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create artifact directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write artifact: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
