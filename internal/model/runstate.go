package model

import (
	"strings"
	"time"
)

// ProcessedEntry records that a raw name was fully resolved in some run.
type ProcessedEntry struct {
	RawName     string    `json:"raw_name"`
	HadOverride bool      `json:"had_override"`
	RunID       string    `json:"run_id"`
	ProcessedAt time.Time `json:"processed_at"`
}

// RunState is the persisted memory of previous runs.
type RunState struct {
	Processed map[string]ProcessedEntry `json:"processed"`
	LastRunID string                    `json:"last_run_id,omitempty"`
	LastRunAt *time.Time                `json:"last_run_at,omitempty"`
}

// NewRunState returns an empty run state.
func NewRunState() *RunState {
	return &RunState{Processed: make(map[string]ProcessedEntry)}
}

// Seen reports whether rawName was processed before with the same override
// status. A change in override status makes the name eligible again.
func (s *RunState) Seen(rawName string, hasOverride bool) bool {
	if s == nil {
		return false
	}
	e, ok := s.Processed[strings.TrimSpace(rawName)]
	if !ok {
		return false
	}
	return e.HadOverride == hasOverride
}
