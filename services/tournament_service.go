package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Dosada05/bracket-automation/brackets"
	"github.com/Dosada05/bracket-automation/models"
	"github.com/Dosada05/bracket-automation/repositories"
)

type CreateTournamentInput struct {
	Name             string             `json:"name"`
	BracketType      models.BracketType `json:"bracket_type"`
	ParticipantCount int                `json:"participant_count"`
}

type ListTournamentsInput struct {
	BracketType *models.BracketType
	Status      *models.TournamentStatus
	Limit       int
	Offset      int
}

// BracketView is a tournament with all of its matches in bracket order.
type BracketView struct {
	Tournament *models.Tournament `json:"tournament"`
	Matches    []*models.Match    `json:"matches"`
}

type TournamentService interface {
	CreateTournament(ctx context.Context, input CreateTournamentInput) (*models.Tournament, error)
	GetTournament(ctx context.Context, id int) (*models.Tournament, error)
	ListTournaments(ctx context.Context, input ListTournamentsInput) ([]*models.Tournament, error)
	CloseRegistration(ctx context.Context, id int) (*models.Tournament, error)
	// StartTournament lays out the bracket, seeds round one and moves the tournament to ongoing.
	StartTournament(ctx context.Context, id int, seeds []int) (*BracketView, error)
	GetBracket(ctx context.Context, id int) (*BracketView, error)
}

type tournamentService struct {
	tournamentRepo repositories.TournamentRepository
	matchRepo      repositories.MatchRepository
	tx             repositories.TxRunner
	logger         zerolog.Logger
}

func NewTournamentService(
	tournamentRepo repositories.TournamentRepository,
	matchRepo repositories.MatchRepository,
	tx repositories.TxRunner,
	logger zerolog.Logger,
) TournamentService {
	return &tournamentService{
		tournamentRepo: tournamentRepo,
		matchRepo:      matchRepo,
		tx:             tx,
		logger:         logger.With().Str("component", "tournament").Logger(),
	}
}

func (s *tournamentService) CreateTournament(ctx context.Context, input CreateTournamentInput) (*models.Tournament, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrValidationFailed)
	}
	if !input.BracketType.Valid() {
		return nil, fmt.Errorf("%w: unknown bracket type %q", ErrValidationFailed, input.BracketType)
	}
	if err := models.ValidateParticipantCount(input.BracketType, input.ParticipantCount); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParticipantCount, err)
	}

	t := &models.Tournament{
		Name:             name,
		BracketType:      input.BracketType,
		Status:           models.StatusRegistrationOpen,
		ParticipantCount: input.ParticipantCount,
	}
	if err := s.tournamentRepo.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("create tournament: %w", mapStoreError(err, ErrTournamentNotFound))
	}
	s.logger.Info().Int("tournament_id", t.ID).Str("bracket_type", string(t.BracketType)).Msg("tournament created")
	return t, nil
}

func (s *tournamentService) GetTournament(ctx context.Context, id int) (*models.Tournament, error) {
	t, err := s.tournamentRepo.GetByID(ctx, id)
	if err != nil {
		return nil, mapStoreError(err, ErrTournamentNotFound)
	}
	return t, nil
}

func (s *tournamentService) ListTournaments(ctx context.Context, input ListTournamentsInput) ([]*models.Tournament, error) {
	filter := repositories.ListTournamentsFilter{
		BracketType: input.BracketType,
		Limit:       input.Limit,
		Offset:      input.Offset,
	}
	if input.Status != nil {
		filter.Statuses = []models.TournamentStatus{*input.Status}
	}
	list, err := s.tournamentRepo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list tournaments: %w", mapStoreError(err, ErrNotFound))
	}
	if list == nil {
		return []*models.Tournament{}, nil
	}
	return list, nil
}

func (s *tournamentService) CloseRegistration(ctx context.Context, id int) (*models.Tournament, error) {
	if err := s.transition(ctx, nil, id, models.StatusRegistrationOpen, models.StatusRegistrationClosed); err != nil {
		return nil, err
	}
	return s.GetTournament(ctx, id)
}

func (s *tournamentService) StartTournament(ctx context.Context, id int, seeds []int) (*BracketView, error) {
	t, err := s.GetTournament(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.Status != models.StatusRegistrationClosed {
		return nil, fmt.Errorf("%w: tournament %d is %s, start requires %s",
			ErrTournamentInvalidStatusTransition, id, t.Status, models.StatusRegistrationClosed)
	}

	generator, err := brackets.GeneratorFor(t.BracketType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}
	layout, err := generator.GenerateBracket(ctx, brackets.GenerateBracketParams{Tournament: t, Seeds: seeds})
	if err != nil {
		if errors.Is(err, brackets.ErrSeedCountMismatch) || errors.Is(err, brackets.ErrDuplicateSeed) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSeeds, err)
		}
		return nil, fmt.Errorf("generate %s bracket for tournament %d: %w", generator.GetName(), id, err)
	}

	matches := make([]*models.Match, 0, len(layout))
	for _, bm := range layout {
		m := &models.Match{
			TournamentID: t.ID,
			Round:        bm.Position.Round,
			MatchNumber:  bm.Position.MatchNumber,
			Branch:       bm.Position.Branch,
			Player1ID:    bm.Participant1ID,
			Player2ID:    bm.Participant2ID,
			Status:       models.MatchStatusPending,
		}
		if m.Player1ID != nil && m.Player2ID != nil {
			m.Status = models.MatchStatusReady
		}
		matches = append(matches, m)
	}

	err = s.tx.RunInTx(ctx, func(exec repositories.SQLExecutor) error {
		if err := s.matchRepo.CreateBatch(ctx, exec, matches); err != nil {
			return fmt.Errorf("create bracket matches: %w", mapStoreError(err, ErrMatchNotFound))
		}
		return s.transition(ctx, exec, id, models.StatusRegistrationClosed, models.StatusOngoing)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Int("tournament_id", id).
		Int("matches", len(matches)).
		Str("generator", generator.GetName()).
		Msg("tournament started")
	return s.GetBracket(ctx, id)
}

func (s *tournamentService) GetBracket(ctx context.Context, id int) (*BracketView, error) {
	view := &BracketView{}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		t, err := s.tournamentRepo.GetByID(gctx, id)
		if err != nil {
			return mapStoreError(err, ErrTournamentNotFound)
		}
		view.Tournament = t
		return nil
	})
	g.Go(func() error {
		matches, err := s.matchRepo.ListByTournament(gctx, id)
		if err != nil {
			return fmt.Errorf("list matches of tournament %d: %w", id, mapStoreError(err, ErrMatchNotFound))
		}
		view.Matches = matches
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if view.Matches == nil {
		view.Matches = []*models.Match{}
	}
	sort.SliceStable(view.Matches, func(i, j int) bool {
		a, b := view.Matches[i], view.Matches[j]
		if a.Branch.Rank() != b.Branch.Rank() {
			return a.Branch.Rank() < b.Branch.Rank()
		}
		if a.Round != b.Round {
			return a.Round < b.Round
		}
		return a.MatchNumber < b.MatchNumber
	})
	return view, nil
}

func (s *tournamentService) transition(ctx context.Context, exec repositories.SQLExecutor, id int, from, to models.TournamentStatus) error {
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s -> %s", ErrTournamentInvalidStatusTransition, from, to)
	}
	err := s.tournamentRepo.UpdateTournamentStatus(ctx, exec, id, from, to)
	if errors.Is(err, repositories.ErrConflict) {
		return fmt.Errorf("%w: tournament %d is not %s", ErrTournamentInvalidStatusTransition, id, from)
	}
	if err != nil {
		return mapStoreError(err, ErrTournamentNotFound)
	}
	return nil
}
