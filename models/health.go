package models

import "time"

// EdgeKind tells which result of a match travels along an advancement edge.
type EdgeKind string

const (
	EdgeWinner EdgeKind = "winner"
	EdgeLoser  EdgeKind = "loser"
)

// DriftedMatch is a completed match whose result never reached its downstream slot.
type DriftedMatch struct {
	MatchID  int           `json:"match_id"`
	Position MatchPosition `json:"position"`
	Edge     EdgeKind      `json:"edge"`
	PlayerID int           `json:"player_id"`
	TargetID int           `json:"target_match_id"`
	Target   MatchPosition `json:"target_position"`
	Slot     Slot          `json:"slot"`
}

// SlotConflict is a downstream slot that holds a different player than its feeder produced.
type SlotConflict struct {
	MatchID          int           `json:"match_id"`
	Position         MatchPosition `json:"position"`
	Edge             EdgeKind      `json:"edge"`
	TargetID         int           `json:"target_match_id"`
	Target           MatchPosition `json:"target_position"`
	Slot             Slot          `json:"slot"`
	ExpectedPlayerID int           `json:"expected_player_id"`
	ActualPlayerID   int           `json:"actual_player_id"`
}

type TournamentHealth struct {
	TournamentID      int            `json:"tournament_id"`
	Name              string         `json:"name"`
	BracketType       BracketType    `json:"bracket_type"`
	CheckedMatches    int            `json:"checked_matches"`
	UnadvancedMatches int            `json:"unadvanced_matches"`
	DriftedMatches    []DriftedMatch `json:"drifted_matches"`
	Conflicts         []SlotConflict `json:"conflicts,omitempty"`
	CompletionPending bool           `json:"completion_pending"`
}

func (h *TournamentHealth) Healthy() bool {
	return len(h.DriftedMatches) == 0 && len(h.Conflicts) == 0 && !h.CompletionPending
}

// CountUnadvanced sets UnadvancedMatches to the number of distinct drifted matches.
func (h *TournamentHealth) CountUnadvanced() {
	seen := make(map[int]struct{}, len(h.DriftedMatches))
	for _, d := range h.DriftedMatches {
		seen[d.MatchID] = struct{}{}
	}
	h.UnadvancedMatches = len(seen)
}

// HealthReport is derived on demand and never stored.
type HealthReport struct {
	CheckedAt            time.Time          `json:"checked_at"`
	TotalTournaments     int                `json:"total_tournaments"`
	HealthyTournaments   int                `json:"healthy_tournaments"`
	UnhealthyTournaments int                `json:"unhealthy_tournaments"`
	Tournaments          []TournamentHealth `json:"drifted_tournaments"`
}

type TournamentFix struct {
	TournamentID   int            `json:"tournament_id"`
	DriftBefore    int            `json:"drift_before"`
	Passes         int            `json:"passes"`
	Advanced       int            `json:"advanced"`
	AlreadyApplied int            `json:"already_applied"`
	Repaired       bool           `json:"repaired"`
	Completed      bool           `json:"tournament_completed"`
	Conflicts      []SlotConflict `json:"conflicts,omitempty"`
	Error          string         `json:"error,omitempty"`
}

type FixResult struct {
	RunID              string          `json:"run_id"`
	StartedAt          time.Time       `json:"started_at"`
	FinishedAt         time.Time       `json:"finished_at"`
	TournamentsChecked int             `json:"tournaments_checked"`
	TournamentsFixed   int             `json:"tournaments_fixed"`
	Details            []TournamentFix `json:"details"`
	Success            bool            `json:"success"`
}
