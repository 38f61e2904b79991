package audit

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Summary aggregates a range of audit entries for reporting.
type Summary struct {
	Start            time.Time
	End              time.Time
	TotalActions     int
	ByResult         map[string]int
	ByActionType     map[string]int
	ByApprovalStatus map[string]int
	ByActor          map[string]int
	Errors           []Entry
	Pending          int
	Approved         int
	Rejected         int
}

// Summarize aggregates all entries in [start, end].
func (s *Store) Summarize(start, end time.Time) (*Summary, error) {
	entries, err := s.Query(start, end)
	if err != nil {
		return nil, err
	}

	sum := &Summary{
		Start:            start,
		End:              end,
		TotalActions:     len(entries),
		ByResult:         map[string]int{},
		ByActionType:     map[string]int{},
		ByApprovalStatus: map[string]int{},
		ByActor:          map[string]int{},
	}

	for _, e := range entries {
		sum.ByResult[e.Result]++
		sum.ByActionType[e.ActionType]++
		sum.ByApprovalStatus[e.ApprovalStatus]++
		sum.ByActor[e.Actor]++

		if e.Result == "failed" {
			sum.Errors = append(sum.Errors, e)
		}
		switch e.ApprovalStatus {
		case "pending":
			sum.Pending++
		case "approved":
			sum.Approved++
		case "rejected":
			sum.Rejected++
		}
	}
	return sum, nil
}

// Markdown renders the summary as a briefing section.
func (sum *Summary) Markdown() string {
	var b strings.Builder

	fmt.Fprintf(&b, "## Audit Log Summary\n\n")
	fmt.Fprintf(&b, "**Period:** %s to %s\n\n", sum.Start.Format("2006-01-02"), sum.End.Format("2006-01-02"))
	fmt.Fprintf(&b, "### Activity Overview\n")
	fmt.Fprintf(&b, "- **Total Actions:** %d\n", sum.TotalActions)
	fmt.Fprintf(&b, "- **Successful:** %d\n", sum.ByResult["success"])
	fmt.Fprintf(&b, "- **Failed:** %d\n", sum.ByResult["failed"])
	fmt.Fprintf(&b, "- **Started/In Progress:** %d\n\n", sum.ByResult["started"])

	b.WriteString("### Actions by Type\n")
	type kv struct {
		name  string
		count int
	}
	var actions []kv
	for name, count := range sum.ByActionType {
		actions = append(actions, kv{name, count})
	}
	sort.Slice(actions, func(i, j int) bool {
		if actions[i].count != actions[j].count {
			return actions[i].count > actions[j].count
		}
		return actions[i].name < actions[j].name
	})
	if len(actions) > 10 {
		actions = actions[:10]
	}
	for _, a := range actions {
		fmt.Fprintf(&b, "- **%s:** %d\n", a.name, a.count)
	}

	b.WriteString("\n### Approval Status\n")
	fmt.Fprintf(&b, "- **Pending Approval:** %d\n", sum.Pending)
	fmt.Fprintf(&b, "- **Approved:** %d\n", sum.Approved)
	fmt.Fprintf(&b, "- **Rejected:** %d\n", sum.Rejected)

	if len(sum.Errors) > 0 {
		b.WriteString("\n### Recent Errors\n")
		errs := sum.Errors
		if len(errs) > 5 {
			errs = errs[len(errs)-5:]
		}
		for _, e := range errs {
			msg := e.Message
			if len(msg) > 100 {
				msg = msg[:100]
			}
			fmt.Fprintf(&b, "- [%s] %s: %s\n", e.Timestamp, e.ActionType, msg)
		}
	}

	return b.String()
}

// WriteBriefing renders the summary into a dated markdown briefing file and
// returns its path.
func WriteBriefing(dir string, sum *Summary, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create briefings directory: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("briefing_%s.md", now.Format("20060102")))

	var b strings.Builder
	fmt.Fprintf(&b, "---\ntype: audit_briefing\ngenerated: %s\n---\n\n", now.Format(time.RFC3339))
	fmt.Fprintf(&b, "# Weekly Briefing — %s\n\n", now.Format("2006-01-02"))
	b.WriteString(sum.Markdown())

	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return "", fmt.Errorf("failed to write briefing: %w", err)
	}
	return path, nil
}
