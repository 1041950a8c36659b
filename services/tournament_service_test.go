package services

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dosada05/bracket-automation/models"
	"github.com/Dosada05/bracket-automation/storage"
)

func TestCreateTournament_Validation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)

	_, err := f.tournaments.CreateTournament(ctx, CreateTournamentInput{Name: "x", BracketType: models.BracketDoubleElimination, ParticipantCount: 8})
	assert.ErrorIs(t, err, ErrInvalidParticipantCount)

	_, err = f.tournaments.CreateTournament(ctx, CreateTournamentInput{Name: "  ", BracketType: models.BracketSingleElimination, ParticipantCount: 8})
	assert.ErrorIs(t, err, ErrValidationFailed)

	_, err = f.tournaments.CreateTournament(ctx, CreateTournamentInput{Name: "x", BracketType: "swiss", ParticipantCount: 8})
	assert.ErrorIs(t, err, ErrValidationFailed)

	created, err := f.tournaments.CreateTournament(ctx, CreateTournamentInput{Name: " Spring Cup ", BracketType: models.BracketSingleElimination, ParticipantCount: 8})
	require.NoError(t, err)
	assert.Equal(t, "Spring Cup", created.Name)
	assert.Equal(t, models.StatusRegistrationOpen, created.Status)
}

func TestStartTournament_LifecycleAndSeeds(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)
	created, err := f.tournaments.CreateTournament(ctx, CreateTournamentInput{Name: "cup", BracketType: models.BracketDoubleElimination, ParticipantCount: 16})
	require.NoError(t, err)

	_, err = f.tournaments.StartTournament(ctx, created.ID, seeds(16))
	assert.ErrorIs(t, err, ErrTournamentInvalidStatusTransition, "registration still open")

	_, err = f.tournaments.CloseRegistration(ctx, created.ID)
	require.NoError(t, err)
	_, err = f.tournaments.CloseRegistration(ctx, created.ID)
	assert.ErrorIs(t, err, ErrTournamentInvalidStatusTransition)

	_, err = f.tournaments.StartTournament(ctx, created.ID, seeds(15))
	assert.ErrorIs(t, err, ErrInvalidSeeds)
	dup := seeds(16)
	dup[3] = dup[0]
	_, err = f.tournaments.StartTournament(ctx, created.ID, dup)
	assert.ErrorIs(t, err, ErrInvalidSeeds)

	view, err := f.tournaments.StartTournament(ctx, created.ID, seeds(16))
	require.NoError(t, err)
	assert.Equal(t, models.StatusOngoing, view.Tournament.Status)
	require.Len(t, view.Matches, 30)

	ready := 0
	for _, m := range view.Matches {
		if m.Status == models.MatchStatusReady {
			ready++
			assert.Equal(t, models.BranchWinner, m.Branch)
			assert.Equal(t, 1, m.Round)
		}
	}
	assert.Equal(t, 8, ready)
	assert.Equal(t, wr(1, 1), view.Matches[0].Position())
	assert.Equal(t, grandFinal(), view.Matches[len(view.Matches)-1].Position())

	_, err = f.tournaments.StartTournament(ctx, created.ID, seeds(16))
	assert.ErrorIs(t, err, ErrTournamentInvalidStatusTransition)
}

func TestRecordResult_RejectsInvalidResults(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)
	tour := f.startTournament(t, models.BracketSingleElimination, 4)

	m := f.matchAt(t, tour.ID, wr(1, 1))
	_, err := f.matches.RecordResult(ctx, m.ID, RecordResultInput{WinnerID: 104})
	assert.ErrorIs(t, err, ErrWinnerNotInMatch)

	_, err = f.matches.RecordResult(ctx, f.matchAt(t, tour.ID, wr(2, 1)).ID, RecordResultInput{WinnerID: 101})
	assert.ErrorIs(t, err, ErrMatchNotReady)

	_, err = f.matches.RecordResult(ctx, 99999, RecordResultInput{WinnerID: 101})
	assert.ErrorIs(t, err, ErrMatchNotFound)

	started, err := f.matches.StartMatch(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MatchStatusOngoing, started.Status)
	_, err = f.matches.StartMatch(ctx, m.ID)
	assert.ErrorIs(t, err, ErrMatchNotReady)

	score := " 2-1 "
	out, err := f.matches.RecordResult(ctx, m.ID, RecordResultInput{WinnerID: 102, Score: &score})
	require.NoError(t, err)
	assert.Equal(t, "2-1", *out.Match.Score)
	assert.Empty(t, out.AdvancementError)

	_, err = f.matches.RecordResult(ctx, m.ID, RecordResultInput{WinnerID: 102})
	assert.ErrorIs(t, err, ErrMatchAlreadyCompleted)

	entries, err := f.store.AutomationLog().Query(ctx, tour.ID, models.AutomationAdvanceWinner, tour.CreatedAt)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, m.ID, *entries[0].MatchID)
	assert.Equal(t, models.AutomationStatusCompleted, entries[0].Status)
}

// Every player in the losers bracket has exactly one winners-bracket loss and
// no player with two losses is still in play.
func TestDoubleElimination_FullTournamentKeepsLoserInvariant(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)
	tour := f.startTournament(t, models.BracketDoubleElimination, 16)

	played := 0
	for {
		matches, err := f.store.Matches().ListByTournament(ctx, tour.ID)
		require.NoError(t, err)
		sortByBracketOrder(matches)

		var next *models.Match
		for _, m := range matches {
			if m.Status == models.MatchStatusReady {
				next = m
				break
			}
		}
		if next == nil {
			break
		}

		winner := *next.Player1ID
		if next.MatchNumber%2 == 0 {
			winner = *next.Player2ID
		}
		_, err = f.matches.RecordResult(ctx, next.ID, RecordResultInput{WinnerID: winner})
		require.NoError(t, err)
		played++

		matches, err = f.store.Matches().ListByTournament(ctx, tour.ID)
		require.NoError(t, err)
		assertLoserInvariant(t, matches)
		require.LessOrEqual(t, played, 30)
	}

	assert.Equal(t, 30, played)
	got, err := f.tournaments.GetTournament(ctx, tour.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status)
	final := f.matchAt(t, tour.ID, grandFinal())
	assert.Equal(t, *final.WinnerID, *got.WinnerID)

	health, err := f.health.AuditTournament(ctx, tour.ID)
	require.NoError(t, err)
	assert.True(t, health.Healthy())
}

func assertLoserInvariant(t *testing.T, matches []*models.Match) {
	t.Helper()
	winnerLosses := map[int]int{}
	totalLosses := map[int]int{}
	inPlay := map[int]models.Branch{}
	champion := 0
	for _, m := range matches {
		if m.HasResult() && m.Branch == models.BranchGrandFinal {
			champion = *m.WinnerID
		}
		if m.HasResult() {
			loser := m.LoserID()
			require.NotNil(t, loser)
			totalLosses[*loser]++
			if m.Branch == models.BranchWinner {
				winnerLosses[*loser]++
			}
			continue
		}
		for _, p := range []*int{m.Player1ID, m.Player2ID} {
			if p != nil {
				inPlay[*p] = m.Branch
			}
		}
	}

	for player, branch := range inPlay {
		assert.Less(t, totalLosses[player], 2, "player %d has two losses but is still in play", player)
		if branch == models.BranchLoser {
			assert.Equal(t, 1, winnerLosses[player], "player %d in losers bracket", player)
		}
	}
	for player, losses := range totalLosses {
		if losses != 1 || winnerLosses[player] != 1 || player == champion {
			continue
		}
		_, present := inPlay[player]
		assert.True(t, present, "player %d dropped from the winners bracket but is missing", player)
	}
}

func TestSupervisor_ReconcileFollowsOngoingTournaments(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)
	first := f.startTournament(t, models.BracketSingleElimination, 4)
	second := f.startTournament(t, models.BracketDoubleElimination, 16)
	created, err := f.tournaments.CreateTournament(ctx, CreateTournamentInput{Name: "later", BracketType: models.BracketSingleElimination, ParticipantCount: 4})
	require.NoError(t, err)

	monitor := newTestMonitor(f, nil, AutomationDelay)
	defer monitor.Shutdown()
	health := f.health
	automation := NewAutomationService(f.store.Tournaments(), f.store.AutomationLog(), health, f.repair, monitor, storage.NewReportArchive(storage.NewMemoryObjectStore()), zerolog.Nop())

	sup, err := NewSupervisor(f.store.Tournaments(), monitor, automation, SupervisorConfig{}, zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, sup.Reconcile(ctx))
	assert.ElementsMatch(t, []int{first.ID, second.ID}, sup.Watched())
	assert.Equal(t, 1, f.store.SubscriberCount(first.ID))
	assert.Equal(t, 0, f.store.SubscriberCount(created.ID))

	completed, err := f.advancement.CompleteTournament(ctx, first.ID, 101, "")
	require.NoError(t, err)
	require.True(t, completed)

	require.NoError(t, sup.Reconcile(ctx))
	assert.Equal(t, []int{second.ID}, sup.Watched())
	assert.Equal(t, 0, f.store.SubscriberCount(first.ID))

	require.NoError(t, sup.Reconcile(ctx))
	assert.Equal(t, 1, f.store.SubscriberCount(second.ID), "reconcile is idempotent")

	require.NoError(t, sup.Stop())
	assert.Empty(t, sup.Watched())
	assert.Equal(t, 0, f.store.SubscriberCount(second.ID))
}
