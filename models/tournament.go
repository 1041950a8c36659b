package models

import (
	"fmt"
	"time"
)

// TournamentStatus mirrors the tournament_status enum in the database.
type TournamentStatus string

const (
	StatusRegistrationOpen   TournamentStatus = "registration_open"
	StatusRegistrationClosed TournamentStatus = "registration_closed"
	StatusOngoing            TournamentStatus = "ongoing"
	StatusCompleted          TournamentStatus = "completed"
)

type BracketType string

const (
	BracketSingleElimination BracketType = "single_elimination"
	BracketDoubleElimination BracketType = "double_elimination"
)

type Tournament struct {
	ID               int              `json:"id" db:"id"`
	Name             string           `json:"name" db:"name"`
	BracketType      BracketType      `json:"bracket_type" db:"bracket_type"`
	Status           TournamentStatus `json:"status" db:"status"`
	ParticipantCount int              `json:"participant_count" db:"participant_count"`
	WinnerID         *int             `json:"winner_id,omitempty" db:"winner_id"`
	CreatedAt        time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at" db:"updated_at"`

	Matches []Match `json:"matches,omitempty" db:"-"`
}

var validParticipantCounts = map[BracketType][]int{
	BracketSingleElimination: {4, 8, 16, 32},
	BracketDoubleElimination: {16},
}

func (b BracketType) Valid() bool {
	_, ok := validParticipantCounts[b]
	return ok
}

// ValidateParticipantCount reports whether count is allowed for the bracket type.
func ValidateParticipantCount(b BracketType, count int) error {
	allowed, ok := validParticipantCounts[b]
	if !ok {
		return fmt.Errorf("unknown bracket type %q", b)
	}
	for _, n := range allowed {
		if n == count {
			return nil
		}
	}
	return fmt.Errorf("%s bracket requires one of %v participants, got %d", b, allowed, count)
}

func (s TournamentStatus) Valid() bool {
	switch s {
	case StatusRegistrationOpen, StatusRegistrationClosed, StatusOngoing, StatusCompleted:
		return true
	}
	return false
}

// CanTransitionTo follows the lifecycle registration_open -> registration_closed -> ongoing -> completed.
func (s TournamentStatus) CanTransitionTo(next TournamentStatus) bool {
	if s == next {
		return true
	}
	allowed := map[TournamentStatus]TournamentStatus{
		StatusRegistrationOpen:   StatusRegistrationClosed,
		StatusRegistrationClosed: StatusOngoing,
		StatusOngoing:            StatusCompleted,
	}
	want, ok := allowed[s]
	return ok && want == next
}
