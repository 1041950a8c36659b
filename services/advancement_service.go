package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/Dosada05/bracket-automation/brackets"
	"github.com/Dosada05/bracket-automation/models"
	"github.com/Dosada05/bracket-automation/repositories"
)

type AdvancementOutcome string

const (
	OutcomeAdvanced       AdvancementOutcome = "advanced"
	OutcomeAlreadyApplied AdvancementOutcome = "already_applied"
)

// SlotWrite is one downstream slot touched by an advancement.
type SlotWrite struct {
	Edge          models.EdgeKind      `json:"edge"`
	PlayerID      int                  `json:"player_id"`
	TargetMatchID int                  `json:"target_match_id"`
	Target        models.MatchPosition `json:"target"`
	Slot          models.Slot          `json:"slot"`
	Outcome       AdvancementOutcome   `json:"outcome"`
	TargetReady   bool                 `json:"target_ready"`
}

type AdvancementResult struct {
	TournamentID int         `json:"tournament_id"`
	MatchID      int         `json:"match_id"`
	Writes       []SlotWrite `json:"writes"`
	// TournamentCompletable is set when this advancement filled the last open slot of the final.
	TournamentCompletable bool `json:"tournament_completable"`
	// Champion is set when the advanced match is the final itself.
	Champion *int `json:"champion,omitempty"`
}

func (r *AdvancementResult) count(outcome AdvancementOutcome) int {
	n := 0
	for _, w := range r.Writes {
		if w.Outcome == outcome {
			n++
		}
	}
	return n
}

func (r *AdvancementResult) Advanced() int { return r.count(OutcomeAdvanced) }

func (r *AdvancementResult) AlreadyApplied() int { return r.count(OutcomeAlreadyApplied) }

type AdvancementService interface {
	// Advance propagates the winner, and in double elimination the winners-bracket
	// loser, of a completed match into the downstream slots.
	Advance(ctx context.Context, match *models.Match) (*AdvancementResult, error)
	AdvanceIn(ctx context.Context, tournament *models.Tournament, match *models.Match) (*AdvancementResult, error)
	// CompleteTournament marks the tournament completed with its champion.
	// It reports false when another caller completed it first.
	CompleteTournament(ctx context.Context, tournamentID int, championID int, runID string) (bool, error)
}

type advancementService struct {
	tournamentRepo repositories.TournamentRepository
	matchRepo      repositories.MatchRepository
	logRepo        repositories.AutomationLogRepository
	notifier       Notifier
	logger         zerolog.Logger
}

func NewAdvancementService(
	tournamentRepo repositories.TournamentRepository,
	matchRepo repositories.MatchRepository,
	logRepo repositories.AutomationLogRepository,
	notifier Notifier,
	logger zerolog.Logger,
) AdvancementService {
	return &advancementService{
		tournamentRepo: tournamentRepo,
		matchRepo:      matchRepo,
		logRepo:        logRepo,
		notifier:       notifierOrNop(notifier),
		logger:         logger.With().Str("component", "advancement").Logger(),
	}
}

func (s *advancementService) Advance(ctx context.Context, match *models.Match) (*AdvancementResult, error) {
	if match == nil {
		return nil, &InvalidStateError{Reason: "no match given"}
	}
	tournament, err := s.tournamentRepo.GetByID(ctx, match.TournamentID)
	if err != nil {
		return nil, mapStoreError(err, ErrTournamentNotFound)
	}
	return s.AdvanceIn(ctx, tournament, match)
}

func (s *advancementService) AdvanceIn(ctx context.Context, tournament *models.Tournament, match *models.Match) (*AdvancementResult, error) {
	if match == nil {
		return nil, &InvalidStateError{Reason: "no match given"}
	}
	if !match.HasResult() {
		return nil, &InvalidStateError{MatchID: match.ID, Status: match.Status, Reason: "advancement requires a completed match with a winner"}
	}
	if !match.HasPlayer(*match.WinnerID) {
		return nil, &InvalidStateError{MatchID: match.ID, Status: match.Status, Reason: fmt.Sprintf("winner %d is not a player of the match", *match.WinnerID)}
	}
	if match.TournamentID != tournament.ID {
		return nil, fmt.Errorf("match %d belongs to tournament %d, not %d: %w", match.ID, match.TournamentID, tournament.ID, ErrValidationFailed)
	}

	topology, err := brackets.TopologyFor(tournament.BracketType, tournament.ParticipantCount)
	if err != nil {
		return nil, fmt.Errorf("tournament %d bracket shape: %w", tournament.ID, err)
	}
	edges, ok := topology.EdgesFrom(match.Position())
	if !ok {
		return nil, &InvalidStateError{MatchID: match.ID, Status: match.Status, Reason: fmt.Sprintf("position %s is not part of the bracket", match.Position())}
	}

	result := &AdvancementResult{TournamentID: tournament.ID, MatchID: match.ID}
	if topology.IsFinal(match.Position()) {
		result.Champion = models.IntPtr(*match.WinnerID)
		return result, nil
	}

	// A conflict on one edge never blocks the other; the slots are independent.
	var conflictErr error
	if edges.Winner != nil {
		w, err := s.fill(ctx, tournament.ID, match, models.EdgeWinner, edges.Winner, *match.WinnerID)
		switch {
		case errors.Is(err, ErrAdvancementConflict):
			conflictErr = err
		case err != nil:
			return result, err
		default:
			result.Writes = append(result.Writes, w)
		}
	}

	if edges.Loser != nil {
		loser := match.LoserID()
		if loser == nil {
			return result, &InvalidStateError{MatchID: match.ID, Status: match.Status, Reason: "loser cannot be determined"}
		}
		w, err := s.fill(ctx, tournament.ID, match, models.EdgeLoser, edges.Loser, *loser)
		switch {
		case errors.Is(err, ErrAdvancementConflict):
			if conflictErr == nil {
				conflictErr = err
			}
		case err != nil:
			return result, err
		default:
			result.Writes = append(result.Writes, w)
		}
	}

	for _, w := range result.Writes {
		if topology.IsFinal(w.Target) && w.TargetReady {
			result.TournamentCompletable = true
		}
	}
	if conflictErr != nil {
		return result, conflictErr
	}

	s.logger.Debug().
		Int("tournament_id", tournament.ID).
		Int("match_id", match.ID).
		Int("advanced", result.Advanced()).
		Int("already_applied", result.AlreadyApplied()).
		Msg("match advanced")
	return result, nil
}

// fill performs the single conditional write for one edge.
func (s *advancementService) fill(ctx context.Context, tournamentID int, source *models.Match, edge models.EdgeKind, ref *brackets.SlotRef, playerID int) (SlotWrite, error) {
	w := SlotWrite{Edge: edge, PlayerID: playerID, Target: ref.Position, Slot: ref.Slot}

	target, err := s.matchRepo.GetByPosition(ctx, tournamentID, ref.Position)
	if err != nil {
		return w, fmt.Errorf("load downstream match %s: %w", ref.Position, mapStoreError(err, ErrMatchNotFound))
	}
	w.TargetMatchID = target.ID

	if existing := target.PlayerIn(ref.Slot); existing != nil {
		return s.compareExisting(w, source, target, *existing)
	}

	updated, err := s.matchRepo.UpdateMatchSlot(ctx, target.ID, ref.Slot, playerID)
	switch {
	case err == nil:
		w.Outcome = OutcomeAdvanced
		w.TargetReady = updated.Player1ID != nil && updated.Player2ID != nil
		return w, nil
	case errors.Is(err, repositories.ErrConflict):
		// Someone filled the slot between our read and write.
		current, getErr := s.matchRepo.GetByID(ctx, target.ID)
		if getErr != nil {
			return w, fmt.Errorf("reload downstream match %d: %w", target.ID, mapStoreError(getErr, ErrMatchNotFound))
		}
		existing := current.PlayerIn(ref.Slot)
		if existing == nil {
			return w, fmt.Errorf("slot %s of match %d reported filled but is empty: %w", ref.Slot, target.ID, ErrStoreUnavailable)
		}
		return s.compareExisting(w, source, current, *existing)
	default:
		return w, fmt.Errorf("fill slot %s of match %d: %w", ref.Slot, target.ID, mapStoreError(err, ErrMatchNotFound))
	}
}

func (s *advancementService) compareExisting(w SlotWrite, source, target *models.Match, existing int) (SlotWrite, error) {
	if existing == w.PlayerID {
		w.Outcome = OutcomeAlreadyApplied
		w.TargetReady = target.Player1ID != nil && target.Player2ID != nil
		return w, nil
	}
	conflict := &AdvancementConflictError{
		TournamentID:     source.TournamentID,
		SourceMatchID:    source.ID,
		Source:           source.Position(),
		Edge:             w.Edge,
		TargetMatchID:    target.ID,
		Target:           target.Position(),
		Slot:             w.Slot,
		ExistingPlayerID: existing,
		AttemptedPlayer:  w.PlayerID,
	}
	s.logger.Error().
		Int("tournament_id", source.TournamentID).
		Int("match_id", source.ID).
		Int("target_match_id", target.ID).
		Str("slot", string(w.Slot)).
		Int("existing_player_id", existing).
		Int("attempted_player_id", w.PlayerID).
		Msg("advancement conflict")
	return w, conflict
}

func (s *advancementService) CompleteTournament(ctx context.Context, tournamentID int, championID int, runID string) (bool, error) {
	err := s.tournamentRepo.Complete(ctx, nil, tournamentID, championID)
	if errors.Is(err, repositories.ErrConflict) {
		current, getErr := s.tournamentRepo.GetByID(ctx, tournamentID)
		if getErr != nil {
			return false, mapStoreError(getErr, ErrTournamentNotFound)
		}
		if current.Status == models.StatusCompleted {
			return false, nil
		}
		return false, fmt.Errorf("complete tournament %d from status %s: %w", tournamentID, current.Status, ErrTournamentInvalidStatusTransition)
	}
	if err != nil {
		s.appendLog(ctx, &models.AutomationLogEntry{
			TournamentID: tournamentID,
			Type:         models.AutomationCompleteTournament,
			Status:       models.AutomationStatusFailed,
			Detail:       detail(err),
			RunID:        runID,
		})
		return false, mapStoreError(err, ErrTournamentNotFound)
	}

	s.appendLog(ctx, &models.AutomationLogEntry{
		TournamentID: tournamentID,
		Type:         models.AutomationCompleteTournament,
		Status:       models.AutomationStatusCompleted,
		RunID:        runID,
	})
	s.notifier.BroadcastToRoom(brackets.RoomForTournament(tournamentID), brackets.WebSocketMessage{
		Type:    brackets.MessageTournamentCompleted,
		Payload: map[string]int{"tournament_id": tournamentID, "winner_id": championID},
		RoomID:  brackets.RoomForTournament(tournamentID),
	})
	s.logger.Info().Int("tournament_id", tournamentID).Int("winner_id", championID).Msg("tournament completed")
	return true, nil
}

func (s *advancementService) appendLog(ctx context.Context, entry *models.AutomationLogEntry) {
	if err := s.logRepo.Append(ctx, entry); err != nil {
		s.logger.Error().Err(err).Int("tournament_id", entry.TournamentID).Str("automation_type", string(entry.Type)).Msg("append automation log")
	}
}
