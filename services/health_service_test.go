package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dosada05/bracket-automation/models"
)

func TestAudit_FreshBracketHasNoDrift(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)
	f.startTournament(t, models.BracketDoubleElimination, 16)
	f.startTournament(t, models.BracketSingleElimination, 8) // out of audit scope

	report, err := f.health.Audit(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.TotalTournaments)
	assert.Equal(t, 1, report.HealthyTournaments)
	assert.Empty(t, report.Tournaments)
}

func TestAudit_ClearedSlotIsExactlyOneDriftedMatch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)
	tour := f.startTournament(t, models.BracketDoubleElimination, 16)

	f.play(t, tour.ID, wr(1, 1))
	f.play(t, tour.ID, wr(1, 2))
	f.play(t, tour.ID, wr(1, 3))

	report, err := f.health.Audit(ctx)
	require.NoError(t, err)
	require.Empty(t, report.Tournaments)

	wr2 := f.matchAt(t, tour.ID, wr(2, 1))
	require.NoError(t, f.store.ClearSlot(wr2.ID, models.SlotB))

	report, err = f.health.Audit(ctx)
	require.NoError(t, err)
	require.Len(t, report.Tournaments, 1)
	assert.Equal(t, 1, report.UnhealthyTournaments)

	health := report.Tournaments[0]
	assert.Equal(t, tour.ID, health.TournamentID)
	assert.Equal(t, 1, health.UnadvancedMatches)
	require.Len(t, health.DriftedMatches, 1)

	drift := health.DriftedMatches[0]
	source := f.matchAt(t, tour.ID, wr(1, 2))
	assert.Equal(t, source.ID, drift.MatchID)
	assert.Equal(t, models.EdgeWinner, drift.Edge)
	assert.Equal(t, wr(2, 1), drift.Target)
	assert.Equal(t, models.SlotB, drift.Slot)
	assert.Equal(t, *source.WinnerID, drift.PlayerID)
}

func TestAuditTournament_ReportsConflictsAndPendingCompletion(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	tour := f.startTournament(t, models.BracketSingleElimination, 4)

	m := f.matchAt(t, tour.ID, wr(1, 1))
	_, err := f.store.Matches().RecordResult(ctx, m.ID, 101, nil)
	require.NoError(t, err)
	require.NoError(t, f.store.ForceSlot(f.matchAt(t, tour.ID, wr(2, 1)).ID, models.SlotA, 555))

	health, err := f.health.AuditTournament(ctx, tour.ID)
	require.NoError(t, err)
	assert.Empty(t, health.DriftedMatches)
	require.Len(t, health.Conflicts, 1)
	assert.Equal(t, 101, health.Conflicts[0].ExpectedPlayerID)
	assert.Equal(t, 555, health.Conflicts[0].ActualPlayerID)
	assert.False(t, health.Healthy())

	_, err = f.health.AuditTournament(ctx, 9999)
	assert.ErrorIs(t, err, ErrTournamentNotFound)
}

func TestAuditTournament_DecidedFinalWithoutCompletion(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	tour := f.startTournament(t, models.BracketSingleElimination, 4)

	for _, pos := range []models.MatchPosition{wr(1, 1), wr(1, 2)} {
		m := f.matchAt(t, tour.ID, pos)
		done, err := f.store.Matches().RecordResult(ctx, m.ID, *m.Player1ID, nil)
		require.NoError(t, err)
		_, err = f.advancement.Advance(ctx, done)
		require.NoError(t, err)
	}
	final := f.matchAt(t, tour.ID, wr(2, 1))
	_, err := f.store.Matches().RecordResult(ctx, final.ID, 101, nil)
	require.NoError(t, err)

	health, err := f.health.AuditTournament(ctx, tour.ID)
	require.NoError(t, err)
	assert.Empty(t, health.DriftedMatches)
	assert.True(t, health.CompletionPending)
	assert.Equal(t, 3, health.CheckedMatches)
}
