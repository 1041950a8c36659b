package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dosada05/bracket-automation/models"
)

func TestAdvance_DoubleEliminationOpeningMatch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	tour := f.startTournament(t, models.BracketDoubleElimination, 16)

	m := f.matchAt(t, tour.ID, wr(1, 1))
	done, err := f.store.Matches().RecordResult(ctx, m.ID, 101, nil)
	require.NoError(t, err)

	res, err := f.advancement.Advance(ctx, done)
	require.NoError(t, err)
	require.Len(t, res.Writes, 2)
	assert.Equal(t, 2, res.Advanced())
	assert.Nil(t, res.Champion)

	next := f.matchAt(t, tour.ID, wr(2, 1))
	require.NotNil(t, next.Player1ID)
	assert.Equal(t, 101, *next.Player1ID)
	assert.Nil(t, next.Player2ID)
	assert.Equal(t, models.MatchStatusPending, next.Status)

	losers := f.matchAt(t, tour.ID, lr(1, 1))
	require.NotNil(t, losers.Player1ID)
	assert.Equal(t, 102, *losers.Player1ID)

	health, err := f.health.AuditTournament(ctx, tour.ID)
	require.NoError(t, err)
	assert.Empty(t, health.DriftedMatches)
	assert.Empty(t, health.Conflicts)
	assert.True(t, health.Healthy())
}

func TestAdvance_SecondRunIsNoOp(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	tour := f.startTournament(t, models.BracketDoubleElimination, 16)

	m := f.matchAt(t, tour.ID, wr(1, 2))
	done, err := f.store.Matches().RecordResult(ctx, m.ID, *m.Player2ID, nil)
	require.NoError(t, err)

	first, err := f.advancement.Advance(ctx, done)
	require.NoError(t, err)
	before, err := f.store.Matches().ListByTournament(ctx, tour.ID)
	require.NoError(t, err)

	second, err := f.advancement.Advance(ctx, done)
	require.NoError(t, err)
	after, err := f.store.Matches().ListByTournament(ctx, tour.ID)
	require.NoError(t, err)

	assert.Equal(t, 2, first.Advanced())
	assert.Equal(t, 0, second.Advanced())
	assert.Equal(t, 2, second.AlreadyApplied())
	assert.Equal(t, before, after)

	// Match 2 is even: winner goes to slot B, loser to LR1 match 1 slot B.
	assert.Equal(t, 104, *f.matchAt(t, tour.ID, wr(2, 1)).Player2ID)
	assert.Equal(t, 103, *f.matchAt(t, tour.ID, lr(1, 1)).Player2ID)
}

func TestAdvance_ConflictingSlotIsNeverOverwritten(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	tour := f.startTournament(t, models.BracketSingleElimination, 8)

	target := f.matchAt(t, tour.ID, wr(2, 1))
	require.NoError(t, f.store.ForceSlot(target.ID, models.SlotA, 999))

	m := f.matchAt(t, tour.ID, wr(1, 1))
	done, err := f.store.Matches().RecordResult(ctx, m.ID, 101, nil)
	require.NoError(t, err)

	_, err = f.advancement.Advance(ctx, done)
	require.ErrorIs(t, err, ErrAdvancementConflict)

	var conflict *AdvancementConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, done.ID, conflict.SourceMatchID)
	assert.Equal(t, target.ID, conflict.TargetMatchID)
	assert.Equal(t, models.SlotA, conflict.Slot)
	assert.Equal(t, 999, conflict.ExistingPlayerID)
	assert.Equal(t, 101, conflict.AttemptedPlayer)

	assert.Equal(t, 999, *f.matchAt(t, tour.ID, wr(2, 1)).Player1ID)
}

func TestAdvance_ConflictOnWinnerEdgeStillPlacesLoser(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	tour := f.startTournament(t, models.BracketDoubleElimination, 16)

	require.NoError(t, f.store.ForceSlot(f.matchAt(t, tour.ID, wr(2, 1)).ID, models.SlotA, 999))
	m := f.matchAt(t, tour.ID, wr(1, 1))
	done, err := f.store.Matches().RecordResult(ctx, m.ID, *m.Player1ID, nil)
	require.NoError(t, err)

	res, err := f.advancement.Advance(ctx, done)
	require.ErrorIs(t, err, ErrAdvancementConflict)
	var conflict *AdvancementConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, models.EdgeWinner, conflict.Edge)

	require.NotNil(t, res)
	assert.Equal(t, 1, res.Advanced())
	loserSlot := f.matchAt(t, tour.ID, lr(1, 1)).Player1ID
	require.NotNil(t, loserSlot)
	assert.Equal(t, *m.Player2ID, *loserSlot)
	assert.Equal(t, 999, *f.matchAt(t, tour.ID, wr(2, 1)).Player1ID)
}

func TestAdvance_RequiresCompletedMatch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	tour := f.startTournament(t, models.BracketSingleElimination, 4)

	m := f.matchAt(t, tour.ID, wr(1, 1))
	_, err := f.advancement.Advance(ctx, m)
	require.ErrorIs(t, err, ErrInvalidState)

	var invalid *InvalidStateError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, m.ID, invalid.MatchID)
	assert.Equal(t, models.MatchStatusReady, invalid.Status)
}

func TestAdvance_FinalYieldsChampion(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)
	tour := f.startTournament(t, models.BracketSingleElimination, 4)

	f.play(t, tour.ID, wr(1, 1))
	m := f.matchAt(t, tour.ID, wr(1, 2))
	out, err := f.matches.RecordResult(ctx, m.ID, RecordResultInput{WinnerID: 103})
	require.NoError(t, err)
	require.NotNil(t, out.Advancement)
	assert.True(t, out.Advancement.TournamentCompletable)

	final := f.matchAt(t, tour.ID, wr(2, 1))
	assert.Equal(t, models.MatchStatusReady, final.Status)

	out, err = f.matches.RecordResult(ctx, final.ID, RecordResultInput{WinnerID: 103})
	require.NoError(t, err)
	require.NotNil(t, out.Advancement.Champion)
	assert.Equal(t, 103, *out.Advancement.Champion)
	assert.True(t, out.TournamentCompleted)

	got, err := f.tournaments.GetTournament(ctx, tour.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status)
	assert.Equal(t, 103, *got.WinnerID)

	completed, err := f.advancement.CompleteTournament(ctx, tour.ID, 103, "again")
	require.NoError(t, err)
	assert.False(t, completed, "second completion is a no-op")

	entries, err := f.store.AutomationLog().Query(ctx, tour.ID, models.AutomationCompleteTournament, got.CreatedAt)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
