package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Dosada05/bracket-automation/brackets"
	"github.com/Dosada05/bracket-automation/models"
	"github.com/Dosada05/bracket-automation/repositories"
)

type RecordResultInput struct {
	WinnerID int     `json:"winner_id"`
	Score    *string `json:"score,omitempty"`
}

// RecordResultOutcome reports the stored match and, when the inline trigger
// ran, what it advanced.
type RecordResultOutcome struct {
	Match               *models.Match      `json:"match"`
	Advancement         *AdvancementResult `json:"advancement,omitempty"`
	AdvancementError    string             `json:"advancement_error,omitempty"`
	TournamentCompleted bool               `json:"tournament_completed"`
}

type MatchService interface {
	GetMatch(ctx context.Context, id int) (*models.Match, error)
	ListMatchesByTournament(ctx context.Context, tournamentID int) ([]*models.Match, error)
	StartMatch(ctx context.Context, id int) (*models.Match, error)
	// RecordResult stores the winner once and, unless disabled, advances it inline.
	RecordResult(ctx context.Context, id int, input RecordResultInput) (*RecordResultOutcome, error)
}

type matchService struct {
	matchRepo     repositories.MatchRepository
	logRepo       repositories.AutomationLogRepository
	advancement   AdvancementService
	notifier      Notifier
	inlineEnabled bool
	logger        zerolog.Logger
}

func NewMatchService(
	matchRepo repositories.MatchRepository,
	logRepo repositories.AutomationLogRepository,
	advancement AdvancementService,
	notifier Notifier,
	inlineEnabled bool,
	logger zerolog.Logger,
) MatchService {
	return &matchService{
		matchRepo:     matchRepo,
		logRepo:       logRepo,
		advancement:   advancement,
		notifier:      notifierOrNop(notifier),
		inlineEnabled: inlineEnabled,
		logger:        logger.With().Str("component", "match").Logger(),
	}
}

func (s *matchService) GetMatch(ctx context.Context, id int) (*models.Match, error) {
	m, err := s.matchRepo.GetByID(ctx, id)
	if err != nil {
		return nil, mapStoreError(err, ErrMatchNotFound)
	}
	return m, nil
}

func (s *matchService) ListMatchesByTournament(ctx context.Context, tournamentID int) ([]*models.Match, error) {
	matches, err := s.matchRepo.ListByTournament(ctx, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("matches for tournament %d: %w", tournamentID, mapStoreError(err, ErrTournamentNotFound))
	}
	if matches == nil {
		return []*models.Match{}, nil
	}
	return matches, nil
}

func (s *matchService) StartMatch(ctx context.Context, id int) (*models.Match, error) {
	m, err := s.matchRepo.MarkOngoing(ctx, id)
	if errors.Is(err, repositories.ErrConflict) {
		return nil, fmt.Errorf("%w: match %d", ErrMatchNotReady, id)
	}
	if err != nil {
		return nil, mapStoreError(err, ErrMatchNotFound)
	}
	s.broadcastMatch(m)
	return m, nil
}

func (s *matchService) RecordResult(ctx context.Context, id int, input RecordResultInput) (*RecordResultOutcome, error) {
	if input.WinnerID <= 0 {
		return nil, fmt.Errorf("%w: winner_id is required", ErrValidationFailed)
	}
	if input.Score != nil {
		trimmed := strings.TrimSpace(*input.Score)
		input.Score = &trimmed
	}

	m, err := s.matchRepo.RecordResult(ctx, id, input.WinnerID, input.Score)
	if errors.Is(err, repositories.ErrConflict) {
		return nil, s.explainRejectedResult(ctx, id, input.WinnerID)
	}
	if err != nil {
		return nil, mapStoreError(err, ErrMatchNotFound)
	}
	s.broadcastMatch(m)

	outcome := &RecordResultOutcome{Match: m}
	if !s.inlineEnabled {
		return outcome, nil
	}

	// The result is already stored; advancement must not be lost to a client disconnect.
	actx := context.WithoutCancel(ctx)
	runID := uuid.NewString()
	res, advErr := s.advancement.Advance(actx, m)
	entry := &models.AutomationLogEntry{
		TournamentID: m.TournamentID,
		MatchID:      models.IntPtr(m.ID),
		Type:         models.AutomationAdvanceWinner,
		Status:       models.AutomationStatusCompleted,
		RunID:        runID,
	}
	if advErr != nil {
		entry.Status = models.AutomationStatusFailed
		entry.Detail = detail(advErr)
		outcome.AdvancementError = advErr.Error()
		s.logger.Error().Err(advErr).Int("match_id", m.ID).Int("tournament_id", m.TournamentID).Msg("inline advancement failed")
	}
	if err := s.logRepo.Append(actx, entry); err != nil {
		s.logger.Error().Err(err).Int("match_id", m.ID).Msg("append advance_winner log")
	}
	outcome.Advancement = res

	if advErr == nil && res != nil && res.Champion != nil {
		completed, err := s.advancement.CompleteTournament(actx, m.TournamentID, *res.Champion, runID)
		if err != nil {
			s.logger.Error().Err(err).Int("tournament_id", m.TournamentID).Msg("complete tournament")
		}
		outcome.TournamentCompleted = completed
	}
	return outcome, nil
}

// explainRejectedResult reads the match back to tell why the conditional write was refused.
func (s *matchService) explainRejectedResult(ctx context.Context, id int, winnerID int) error {
	m, err := s.matchRepo.GetByID(ctx, id)
	if err != nil {
		return mapStoreError(err, ErrMatchNotFound)
	}
	switch {
	case m.Status == models.MatchStatusCompleted:
		return fmt.Errorf("%w: match %d", ErrMatchAlreadyCompleted, id)
	case m.Status != models.MatchStatusReady && m.Status != models.MatchStatusOngoing:
		return fmt.Errorf("%w: match %d is %s", ErrMatchNotReady, id, m.Status)
	default:
		return fmt.Errorf("%w: player %d, match %d", ErrWinnerNotInMatch, winnerID, id)
	}
}

func (s *matchService) broadcastMatch(m *models.Match) {
	room := brackets.RoomForTournament(m.TournamentID)
	s.notifier.BroadcastToRoom(room, brackets.WebSocketMessage{
		Type:    brackets.MessageMatchUpdated,
		Payload: m,
		RoomID:  room,
	})
}
