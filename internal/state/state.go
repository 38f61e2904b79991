package state

import (
	"sync"
	"time"
)

// HistoryEntry records one stage transition for one file.
type HistoryEntry struct {
	File   string    `json:"file"`
	Stage  string    `json:"stage"`
	Result string    `json:"result"`
	Time   time.Time `json:"time"`
}

// RunState is the in-memory record of one loop run: every stage transition,
// plus counters the summary and status surfaces read. The filesystem owns
// item state; RunState only observes.
type RunState struct {
	SessionID   string         `json:"session_id"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Iterations  int            `json:"iterations"`
	History     []HistoryEntry `json:"history"`

	mu sync.RWMutex
}

// NewRunState creates the state for a fresh run.
func NewRunState(sessionID string) *RunState {
	return &RunState{
		SessionID: sessionID,
		StartedAt: time.Now(),
		History:   []HistoryEntry{},
	}
}

// AddHistory appends a transition record.
func (s *RunState) AddHistory(file, stage, result string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.History = append(s.History, HistoryEntry{
		File:   file,
		Stage:  stage,
		Result: result,
		Time:   time.Now(),
	})
}

// BumpIteration increments and returns the iteration counter.
func (s *RunState) BumpIteration() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Iterations++
	return s.Iterations
}

// MarkComplete stamps the run as finished.
func (s *RunState) MarkComplete() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.CompletedAt = &now
}

// ByStage returns transition counts grouped by stage name.
func (s *RunState) ByStage() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := map[string]int{}
	for _, h := range s.History {
		counts[h.Stage]++
	}
	return counts
}

// ByResult returns transition counts grouped by result.
func (s *RunState) ByResult() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := map[string]int{}
	for _, h := range s.History {
		counts[h.Result]++
	}
	return counts
}

// Processed returns how many transitions were recorded.
func (s *RunState) Processed() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.History)
}

// RecentHistory returns the n most recent transitions.
func (s *RunState) RecentHistory(n int) []HistoryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.History) <= n {
		result := make([]HistoryEntry, len(s.History))
		copy(result, s.History)
		return result
	}
	result := make([]HistoryEntry, n)
	copy(result, s.History[len(s.History)-n:])
	return result
}
