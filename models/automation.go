package models

import "time"

type AutomationType string

const (
	AutomationAdvanceWinner      AutomationType = "advance_winner"
	AutomationRepair             AutomationType = "repair"
	AutomationCompleteTournament AutomationType = "complete_tournament"
)

func (t AutomationType) Valid() bool {
	switch t {
	case AutomationAdvanceWinner, AutomationRepair, AutomationCompleteTournament:
		return true
	}
	return false
}

type AutomationStatus string

const (
	AutomationStatusCompleted AutomationStatus = "completed"
	AutomationStatusFailed    AutomationStatus = "failed"
)

// AutomationLogEntry is an append-only audit row for one automation attempt.
type AutomationLogEntry struct {
	ID           int64            `json:"id" db:"id"`
	TournamentID int              `json:"tournament_id" db:"tournament_id"`
	MatchID      *int             `json:"match_id,omitempty" db:"match_id"`
	Type         AutomationType   `json:"automation_type" db:"automation_type"`
	Status       AutomationStatus `json:"status" db:"status"`
	Detail       *string          `json:"detail,omitempty" db:"detail"`
	RunID        string           `json:"run_id" db:"run_id"`
	CreatedAt    time.Time        `json:"created_at" db:"created_at"`
}

type MonitorState string

const (
	MonitorIdle       MonitorState = "idle"
	MonitorProcessing MonitorState = "processing"
)

// TournamentAutomationStatus backs the per-tournament automation indicator.
type TournamentAutomationStatus struct {
	TournamentID  int        `json:"tournament_id"`
	LastTriggered *time.Time `json:"last_triggered,omitempty"`
	SuccessCount  int64      `json:"success_count"`
	ErrorCount    int64      `json:"error_count"`
	// FallbackRepairs counts successful repairs run after the inline trigger stayed silent or failed.
	FallbackRepairs int64        `json:"fallback_repairs"`
	CurrentState    MonitorState `json:"current_state"`
	ActiveHandles   int          `json:"active_handles"`
}
