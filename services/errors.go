package services

import (
	"errors"
	"fmt"

	"github.com/Dosada05/bracket-automation/models"
)

var (
	ErrNotFound           = errors.New("requested resource not found")
	ErrTournamentNotFound = errors.New("tournament not found")
	ErrMatchNotFound      = errors.New("match not found")

	ErrValidationFailed                  = errors.New("validation failed")
	ErrInvalidParticipantCount           = errors.New("participant count not allowed for bracket type")
	ErrInvalidSeeds                      = errors.New("invalid seed list")
	ErrTournamentInvalidStatusTransition = errors.New("invalid tournament status transition")
	ErrWinnerNotInMatch                  = errors.New("winner is not a player of the match")
	ErrMatchAlreadyCompleted             = errors.New("match already has a result")
	ErrMatchNotReady                     = errors.New("match is not ready to be played")

	ErrInvalidState        = errors.New("match is not completed with a winner")
	ErrAdvancementConflict = errors.New("downstream slot holds a different player")
	ErrRepairExhausted     = errors.New("drift persists after the last repair pass")

	ErrStoreUnavailable = errors.New("bracket store temporarily unavailable")
	ErrMonitorStopped   = errors.New("automation monitor is shut down")
)

// InvalidStateError is returned when advancement is asked for a match without a result.
type InvalidStateError struct {
	MatchID int
	Status  models.MatchStatus
	Reason  string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("match %d (status %s): %s", e.MatchID, e.Status, e.Reason)
}

func (e *InvalidStateError) Unwrap() error { return ErrInvalidState }

// AdvancementConflictError means upstream data is corrupt: the downstream slot
// already holds another player. It is never resolved automatically.
type AdvancementConflictError struct {
	TournamentID     int
	SourceMatchID    int
	Source           models.MatchPosition
	Edge             models.EdgeKind
	TargetMatchID    int
	Target           models.MatchPosition
	Slot             models.Slot
	ExistingPlayerID int
	AttemptedPlayer  int
}

func (e *AdvancementConflictError) Error() string {
	return fmt.Sprintf(
		"tournament %d: match %d (%s) cannot place player %d into slot %s of match %d (%s): slot holds player %d",
		e.TournamentID, e.SourceMatchID, e.Source, e.AttemptedPlayer, e.Slot, e.TargetMatchID, e.Target, e.ExistingPlayerID,
	)
}

func (e *AdvancementConflictError) Unwrap() error { return ErrAdvancementConflict }

// Conflict converts the error to its report form.
func (e *AdvancementConflictError) Conflict() models.SlotConflict {
	edge := e.Edge
	if edge == "" {
		edge = models.EdgeWinner
	}
	return models.SlotConflict{
		MatchID:          e.SourceMatchID,
		Position:         e.Source,
		Edge:             edge,
		TargetID:         e.TargetMatchID,
		Target:           e.Target,
		Slot:             e.Slot,
		ExpectedPlayerID: e.AttemptedPlayer,
		ActualPlayerID:   e.ExistingPlayerID,
	}
}

// RepairExhaustedError is returned when drift remains after every allowed pass.
type RepairExhaustedError struct {
	TournamentID   int
	Passes         int
	RemainingDrift int
	LastErr        error
}

func (e *RepairExhaustedError) Error() string {
	msg := fmt.Sprintf("tournament %d still has %d drifted matches after %d repair passes", e.TournamentID, e.RemainingDrift, e.Passes)
	if e.LastErr != nil {
		msg += ": last error: " + e.LastErr.Error()
	}
	return msg
}

func (e *RepairExhaustedError) Unwrap() error { return ErrRepairExhausted }
