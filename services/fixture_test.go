package services

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/Dosada05/bracket-automation/models"
	"github.com/Dosada05/bracket-automation/repositories"
)

type fixture struct {
	store       *repositories.MemoryStore
	advancement AdvancementService
	health      HealthService
	repair      RepairService
	matches     MatchService
	tournaments TournamentService
}

func newFixture(t *testing.T, inline bool) *fixture {
	t.Helper()
	logger := zerolog.Nop()
	store := repositories.NewMemoryStore()

	advancement := NewAdvancementService(store.Tournaments(), store.Matches(), store.AutomationLog(), nil, logger)
	health := NewHealthService(store.Tournaments(), store.Matches(), logger)
	repair := NewRepairService(health, advancement, store.Tournaments(), store.Matches(), store.AutomationLog(),
		RepairConfig{MaxPasses: 3, PassBackoff: time.Millisecond, Concurrency: 2}, logger)

	return &fixture{
		store:       store,
		advancement: advancement,
		health:      health,
		repair:      repair,
		matches:     NewMatchService(store.Matches(), store.AutomationLog(), advancement, nil, inline, logger),
		tournaments: NewTournamentService(store.Tournaments(), store.Matches(), store, logger),
	}
}

// seeds returns n player ids starting at 101.
func seeds(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = 101 + i
	}
	return out
}

func (f *fixture) startTournament(t *testing.T, bt models.BracketType, n int) *models.Tournament {
	t.Helper()
	ctx := context.Background()
	created, err := f.tournaments.CreateTournament(ctx, CreateTournamentInput{Name: "cup", BracketType: bt, ParticipantCount: n})
	require.NoError(t, err)
	_, err = f.tournaments.CloseRegistration(ctx, created.ID)
	require.NoError(t, err)
	view, err := f.tournaments.StartTournament(ctx, created.ID, seeds(n))
	require.NoError(t, err)
	return view.Tournament
}

func (f *fixture) matchAt(t *testing.T, tournamentID int, pos models.MatchPosition) *models.Match {
	t.Helper()
	m, err := f.store.Matches().GetByPosition(context.Background(), tournamentID, pos)
	require.NoError(t, err)
	return m
}

// play records slot A's player as the winner.
func (f *fixture) play(t *testing.T, tournamentID int, pos models.MatchPosition) *models.Match {
	t.Helper()
	m := f.matchAt(t, tournamentID, pos)
	require.NotNil(t, m.Player1ID, "match %s has no player in slot A", pos)
	out, err := f.matches.RecordResult(context.Background(), m.ID, RecordResultInput{WinnerID: *m.Player1ID})
	require.NoError(t, err)
	return out.Match
}

func wr(round, number int) models.MatchPosition {
	return models.MatchPosition{Branch: models.BranchWinner, Round: round, MatchNumber: number}
}

func lr(round, number int) models.MatchPosition {
	return models.MatchPosition{Branch: models.BranchLoser, Round: round, MatchNumber: number}
}

func grandFinal() models.MatchPosition {
	return models.MatchPosition{Branch: models.BranchGrandFinal, Round: 1, MatchNumber: 1}
}
