package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Persistence saves run summaries to the logs directory.
type Persistence struct {
	logsDir string
}

// NewPersistence creates a persistence handler writing under logsDir.
func NewPersistence(logsDir string) *Persistence {
	return &Persistence{logsDir: logsDir}
}

// Save writes the run state as run_<session>.json. Atomic: temp file then
// rename, so a crash mid-write never leaves a torn summary.
func (p *Persistence) Save(s *RunState) error {
	s.mu.RLock()
	data, err := json.MarshalIndent(s, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal run state: %w", err)
	}

	if err := os.MkdirAll(p.logsDir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	path := filepath.Join(p.logsDir, fmt.Sprintf("run_%s.json", s.SessionID))
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write run state: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to rename run state: %w", err)
	}

	return nil
}

// Load reads a saved run summary.
func (p *Persistence) Load(sessionID string) (*RunState, error) {
	path := filepath.Join(p.logsDir, fmt.Sprintf("run_%s.json", sessionID))
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read run state: %w", err)
	}

	var s RunState
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run state: %w", err)
	}
	if s.History == nil {
		s.History = []HistoryEntry{}
	}
	return &s, nil
}
