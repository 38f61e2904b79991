package audit

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// DefaultRetentionDays is how long per-day audit containers are kept.
const DefaultRetentionDays = 90

// DefaultActor is recorded when an entry does not name its own actor.
const DefaultActor = "clerk"

// Entry is one immutable audit record. Entries for a calendar date live
// together in one container file and are only ever appended.
type Entry struct {
	Timestamp      string         `json:"timestamp"`
	Date           string         `json:"date"`
	ActionType     string         `json:"action_type"`
	Actor          string         `json:"actor"`
	Target         string         `json:"target"`
	Parameters     map[string]any `json:"parameters"`
	ApprovalStatus string         `json:"approval_status"`
	Result         string         `json:"result"`
	Message        string         `json:"message"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// Store writes and reads date-partitioned audit containers under a logs
// directory. One container per calendar day, stored as a JSON array.
//
// Append is read-modify-rewrite, so the mutex matters: two concurrent
// appends without it would lose entries.
type Store struct {
	logsDir       string
	actor         string
	retentionDays int
	mu            sync.Mutex
	now           func() time.Time
	log           *slog.Logger
}

// NewStore creates a store over logsDir. A nil logger discards warnings.
func NewStore(logsDir string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{
		logsDir:       logsDir,
		actor:         DefaultActor,
		retentionDays: DefaultRetentionDays,
		now:           time.Now,
		log:           logger,
	}
}

// SetRetention overrides the retention window. Values below one day are
// ignored.
func (s *Store) SetRetention(days int) {
	if days >= 1 {
		s.retentionDays = days
	}
}

// containerPath returns the audit container file for a date.
func (s *Store) containerPath(t time.Time) string {
	return filepath.Join(s.logsDir, fmt.Sprintf("audit_%s.json", t.Format("20060102")))
}

// Append records an entry in today's container. Missing timestamp, date,
// actor, approval status and result fields are filled with defaults.
func (s *Store) Append(e Entry) error {
	now := s.now()
	if e.Timestamp == "" {
		e.Timestamp = now.Format(time.RFC3339Nano)
	}
	if e.Date == "" {
		e.Date = now.Format("2006-01-02")
	}
	if e.Actor == "" {
		e.Actor = s.actor
	}
	if e.ApprovalStatus == "" {
		e.ApprovalStatus = "not_required"
	}
	if e.Result == "" {
		e.Result = "success"
	}
	if e.Parameters == nil {
		e.Parameters = map[string]any{}
	}

	if err := os.MkdirAll(s.logsDir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	path := s.containerPath(now)

	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.readContainer(path)
	entries = append(entries, e)

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal audit entries: %w", err)
	}

	// Write the whole container atomically so a failed write never corrupts
	// the entries already on disk.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write audit container: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace audit container: %w", err)
	}

	return nil
}

// readContainer loads a container, treating a missing or unparseable file
// as empty. A corrupt container is logged and then replaced wholesale by
// the next append; its bytes are not recovered.
func (s *Store) readContainer(path string) []Entry {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		s.log.Warn("corrupt audit container replaced", "path", path, "err", err)
		return nil
	}
	return entries
}

// Query returns all entries whose container date falls in [start, end],
// sorted by timestamp ascending.
func (s *Store) Query(start, end time.Time) ([]Entry, error) {
	var all []Entry

	day := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location())
	last := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, end.Location())
	for !day.After(last) {
		all = append(all, s.readContainer(s.containerPath(day))...)
		day = day.AddDate(0, 0, 1)
	}

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Timestamp < all[j].Timestamp
	})
	return all, nil
}

// Cleanup deletes containers older than the retention window and returns
// how many were removed. Files whose names do not parse as audit containers
// are left alone.
func (s *Store) Cleanup() (int, error) {
	cutoff := s.now().AddDate(0, 0, -s.retentionDays)

	files, err := filepath.Glob(filepath.Join(s.logsDir, "audit_*.json"))
	if err != nil {
		return 0, fmt.Errorf("failed to list audit containers: %w", err)
	}

	deleted := 0
	for _, path := range files {
		name := filepath.Base(path)
		dateStr := strings.TrimSuffix(strings.TrimPrefix(name, "audit_"), ".json")
		fileDate, err := time.ParseInLocation("20060102", dateStr, cutoff.Location())
		if err != nil {
			continue
		}
		if fileDate.Before(cutoff) {
			if err := os.Remove(path); err != nil {
				s.log.Warn("failed to delete expired audit container", "path", path, "err", err)
				continue
			}
			deleted++
		}
	}
	return deleted, nil
}

// Rollups fixing the result/approval conventions.

// LogStart records the beginning of an action.
func (s *Store) LogStart(actionType, target string, params map[string]any, message string) error {
	if message == "" {
		message = "Started " + actionType
	}
	return s.Append(Entry{
		ActionType: actionType,
		Target:     target,
		Parameters: params,
		Result:     "started",
		Message:    message,
	})
}

// LogEnd records the outcome of an action; result is one of "success",
// "failed" or "partial".
func (s *Store) LogEnd(actionType, target, result string, params map[string]any, message string) error {
	if message == "" {
		message = "Completed " + actionType
	}
	return s.Append(Entry{
		ActionType: actionType,
		Target:     target,
		Parameters: params,
		Result:     result,
		Message:    message,
	})
}

// LogApproval records an approval decision: "pending", "approved" or
// "rejected".
func (s *Store) LogApproval(actionType, target, approvalStatus, message string) error {
	result := "success"
	if approvalStatus == "pending" {
		result = "pending"
	}
	if message == "" {
		message = fmt.Sprintf("Approval %s for %s", approvalStatus, actionType)
	}
	return s.Append(Entry{
		ActionType:     actionType,
		Target:         target,
		ApprovalStatus: approvalStatus,
		Result:         result,
		Message:        message,
	})
}

// LogError records a failure.
func (s *Store) LogError(actionType, target, errMessage string, metadata map[string]any) error {
	return s.Append(Entry{
		ActionType: actionType,
		Target:     target,
		Result:     "failed",
		Message:    errMessage,
		Metadata:   metadata,
	})
}
