package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/Dosada05/bracket-automation/brackets"
	"github.com/Dosada05/bracket-automation/models"
	"github.com/Dosada05/bracket-automation/repositories"
)

type HealthService interface {
	// Audit checks every ongoing double-elimination tournament.
	Audit(ctx context.Context) (*models.HealthReport, error)
	// AuditTournament checks one tournament of any bracket type.
	AuditTournament(ctx context.Context, tournamentID int) (*models.TournamentHealth, error)
}

type healthService struct {
	tournamentRepo repositories.TournamentRepository
	matchRepo      repositories.MatchRepository
	logger         zerolog.Logger
	now            func() time.Time
}

func NewHealthService(tournamentRepo repositories.TournamentRepository, matchRepo repositories.MatchRepository, logger zerolog.Logger) HealthService {
	return &healthService{
		tournamentRepo: tournamentRepo,
		matchRepo:      matchRepo,
		logger:         logger.With().Str("component", "health").Logger(),
		now:            time.Now,
	}
}

func (s *healthService) Audit(ctx context.Context) (*models.HealthReport, error) {
	bt := models.BracketDoubleElimination
	tournaments, err := s.tournamentRepo.List(ctx, repositories.ListTournamentsFilter{
		BracketType: &bt,
		Statuses:    []models.TournamentStatus{models.StatusOngoing},
	})
	if err != nil {
		return nil, fmt.Errorf("list ongoing tournaments: %w", mapStoreError(err, ErrTournamentNotFound))
	}

	report := &models.HealthReport{
		CheckedAt:        s.now().UTC(),
		TotalTournaments: len(tournaments),
		Tournaments:      []models.TournamentHealth{},
	}
	if len(tournaments) == 0 {
		return report, nil
	}

	ids := make([]int, len(tournaments))
	for i, t := range tournaments {
		ids[i] = t.ID
	}
	matchesByTournament, err := s.matchRepo.ListByTournaments(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("list matches for audit: %w", mapStoreError(err, ErrMatchNotFound))
	}

	for _, t := range tournaments {
		health, err := inspectTournament(t, matchesByTournament[t.ID])
		if err != nil {
			// A malformed tournament must not hide the others.
			s.logger.Error().Err(err).Int("tournament_id", t.ID).Msg("skip tournament in audit")
			continue
		}
		if health.Healthy() {
			report.HealthyTournaments++
			continue
		}
		report.UnhealthyTournaments++
		report.Tournaments = append(report.Tournaments, *health)
	}

	s.logger.Info().
		Int("total", report.TotalTournaments).
		Int("unhealthy", report.UnhealthyTournaments).
		Msg("health audit finished")
	return report, nil
}

func (s *healthService) AuditTournament(ctx context.Context, tournamentID int) (*models.TournamentHealth, error) {
	tournament, err := s.tournamentRepo.GetByID(ctx, tournamentID)
	if err != nil {
		return nil, mapStoreError(err, ErrTournamentNotFound)
	}
	matches, err := s.matchRepo.ListByTournament(ctx, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("list matches of tournament %d: %w", tournamentID, mapStoreError(err, ErrMatchNotFound))
	}
	return inspectTournament(tournament, matches)
}

// inspectTournament compares every decided match against the slots its edges feed.
func inspectTournament(t *models.Tournament, matches []*models.Match) (*models.TournamentHealth, error) {
	topology, err := brackets.TopologyFor(t.BracketType, t.ParticipantCount)
	if err != nil {
		return nil, fmt.Errorf("tournament %d bracket shape: %w", t.ID, err)
	}

	health := &models.TournamentHealth{
		TournamentID:   t.ID,
		Name:           t.Name,
		BracketType:    t.BracketType,
		DriftedMatches: []models.DriftedMatch{},
	}

	index := make(map[models.MatchPosition]*models.Match, len(matches))
	for _, m := range matches {
		index[m.Position()] = m
	}

	sorted := make([]*models.Match, len(matches))
	copy(sorted, matches)
	sortByBracketOrder(sorted)

	for _, m := range sorted {
		if !m.HasResult() {
			continue
		}
		health.CheckedMatches++

		if topology.IsFinal(m.Position()) {
			if t.Status != models.StatusCompleted {
				health.CompletionPending = true
			}
			continue
		}

		edges, ok := topology.EdgesFrom(m.Position())
		if !ok {
			continue
		}
		checkEdge(health, index, m, models.EdgeWinner, edges.Winner, m.WinnerID)
		checkEdge(health, index, m, models.EdgeLoser, edges.Loser, m.LoserID())
	}

	health.CountUnadvanced()
	return health, nil
}

func checkEdge(health *models.TournamentHealth, index map[models.MatchPosition]*models.Match, m *models.Match, edge models.EdgeKind, ref *brackets.SlotRef, playerID *int) {
	if ref == nil || playerID == nil {
		return
	}
	target, ok := index[ref.Position]
	if !ok {
		return
	}
	actual := target.PlayerIn(ref.Slot)
	switch {
	case actual == nil:
		health.DriftedMatches = append(health.DriftedMatches, models.DriftedMatch{
			MatchID:  m.ID,
			Position: m.Position(),
			Edge:     edge,
			PlayerID: *playerID,
			TargetID: target.ID,
			Target:   ref.Position,
			Slot:     ref.Slot,
		})
	case *actual != *playerID:
		health.Conflicts = append(health.Conflicts, models.SlotConflict{
			MatchID:          m.ID,
			Position:         m.Position(),
			Edge:             edge,
			TargetID:         target.ID,
			Target:           ref.Position,
			Slot:             ref.Slot,
			ExpectedPlayerID: *playerID,
			ActualPlayerID:   *actual,
		})
	}
}

// sortByBracketOrder orders matches by round, then winners before losers
// before the grand final, then match number.
func sortByBracketOrder(matches []*models.Match) {
	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.Round != b.Round {
			return a.Round < b.Round
		}
		if a.Branch.Rank() != b.Branch.Rank() {
			return a.Branch.Rank() < b.Branch.Rank()
		}
		return a.MatchNumber < b.MatchNumber
	})
}
