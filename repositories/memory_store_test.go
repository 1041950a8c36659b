package repositories

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dosada05/bracket-automation/models"
)

func seedMatch(t *testing.T, store *MemoryStore, m *models.Match) *models.Match {
	t.Helper()
	require.NoError(t, store.Matches().CreateBatch(context.Background(), nil, []*models.Match{m}))
	return m
}

func TestMemoryStore_UpdateMatchSlotIsConditional(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	m := seedMatch(t, store, &models.Match{TournamentID: 1, Round: 2, MatchNumber: 1, Branch: models.BranchWinner, Status: models.MatchStatusPending})

	updated, err := store.Matches().UpdateMatchSlot(ctx, m.ID, models.SlotA, 7)
	require.NoError(t, err)
	assert.Equal(t, 7, *updated.Player1ID)
	assert.Equal(t, models.MatchStatusPending, updated.Status)

	_, err = store.Matches().UpdateMatchSlot(ctx, m.ID, models.SlotA, 8)
	assert.ErrorIs(t, err, ErrConflict)

	updated, err = store.Matches().UpdateMatchSlot(ctx, m.ID, models.SlotB, 9)
	require.NoError(t, err)
	assert.Equal(t, models.MatchStatusReady, updated.Status, "both slots filled")

	_, err = store.Matches().UpdateMatchSlot(ctx, 999, models.SlotA, 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_ConcurrentSlotWritesFillOnce(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	m := seedMatch(t, store, &models.Match{TournamentID: 1, Round: 2, MatchNumber: 1, Branch: models.BranchWinner, Status: models.MatchStatusPending})

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 1; i <= 10; i++ {
		wg.Add(1)
		go func(player int) {
			defer wg.Done()
			if _, err := store.Matches().UpdateMatchSlot(ctx, m.ID, models.SlotA, player); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
}

func TestMemoryStore_RecordResultOnce(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	m := seedMatch(t, store, &models.Match{
		TournamentID: 1, Round: 1, MatchNumber: 1, Branch: models.BranchWinner,
		Player1ID: models.IntPtr(1), Player2ID: models.IntPtr(2), Status: models.MatchStatusReady,
	})

	_, err := store.Matches().RecordResult(ctx, m.ID, 3, nil)
	assert.ErrorIs(t, err, ErrConflict, "winner must be one of the players")

	done, err := store.Matches().RecordResult(ctx, m.ID, 2, nil)
	require.NoError(t, err)
	assert.Equal(t, models.MatchStatusCompleted, done.Status)
	assert.Equal(t, 2, *done.WinnerID)

	_, err = store.Matches().RecordResult(ctx, m.ID, 1, nil)
	assert.ErrorIs(t, err, ErrConflict, "a match completes exactly once")
}

func TestMemoryStore_GetCompletedMatchesOrdered(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	ready := func(tournamentID, round, number int) *models.Match {
		return seedMatch(t, store, &models.Match{
			TournamentID: tournamentID, Round: round, MatchNumber: number, Branch: models.BranchWinner,
			Player1ID: models.IntPtr(round*10 + number), Player2ID: models.IntPtr(round*100 + number), Status: models.MatchStatusReady,
		})
	}
	late := ready(1, 2, 1)
	second := ready(1, 1, 2)
	first := ready(1, 1, 1)
	ready(1, 1, 3)
	other := ready(2, 1, 1)

	for _, m := range []*models.Match{late, second, first, other} {
		_, err := store.Matches().RecordResult(ctx, m.ID, *m.Player1ID, nil)
		require.NoError(t, err)
	}

	got, err := store.Matches().GetCompletedMatches(ctx, 1)
	require.NoError(t, err)
	require.Len(t, got, 3, "undecided and foreign matches are excluded")
	assert.Equal(t, []int{first.ID, second.ID, late.ID}, []int{got[0].ID, got[1].ID, got[2].ID})
	for _, m := range got {
		assert.NotNil(t, m.WinnerID)
	}
}

func TestMemoryStore_FeedDeliversOldAndNew(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	m := seedMatch(t, store, &models.Match{
		TournamentID: 4, Round: 1, MatchNumber: 1, Branch: models.BranchWinner,
		Player1ID: models.IntPtr(1), Player2ID: models.IntPtr(2), Status: models.MatchStatusReady,
	})

	var got []models.MatchUpdate
	sub, err := store.Feed().SubscribeToMatchUpdates(ctx, 4, func(u models.MatchUpdate) { got = append(got, u) })
	require.NoError(t, err)

	other, err := store.Feed().SubscribeToMatchUpdates(ctx, 5, func(u models.MatchUpdate) { t.Errorf("unexpected update for tournament 5") })
	require.NoError(t, err)
	defer other.Close()

	_, err = store.Matches().RecordResult(ctx, m.ID, 1, nil)
	require.NoError(t, err)

	require.Len(t, got, 1)
	assert.Equal(t, models.MatchStatusReady, got[0].Old.Status)
	assert.Equal(t, models.MatchStatusCompleted, got[0].New.Status)
	assert.True(t, got[0].BecameCompleted())

	sub.Close()
	sub.Close()
	assert.Equal(t, 0, store.SubscriberCount(4))
}

func TestMemoryStore_RunInTxRollsBack(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	tournament := &models.Tournament{Name: "cup", BracketType: models.BracketSingleElimination, Status: models.StatusRegistrationClosed, ParticipantCount: 4}
	require.NoError(t, store.Tournaments().Create(ctx, tournament))

	boom := errors.New("boom")
	err := store.RunInTx(ctx, func(exec SQLExecutor) error {
		require.NoError(t, store.Tournaments().UpdateTournamentStatus(ctx, exec, tournament.ID, models.StatusRegistrationClosed, models.StatusOngoing))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := store.Tournaments().GetByID(ctx, tournament.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRegistrationClosed, got.Status)
}

func TestMemoryStore_AutomationLogQuery(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	clock := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return clock }

	log := store.AutomationLog()
	require.NoError(t, log.Append(ctx, &models.AutomationLogEntry{TournamentID: 1, Type: models.AutomationAdvanceWinner, Status: models.AutomationStatusCompleted}))
	clock = clock.Add(time.Second)
	require.NoError(t, log.Append(ctx, &models.AutomationLogEntry{TournamentID: 1, Type: models.AutomationRepair, Status: models.AutomationStatusFailed}))
	require.NoError(t, log.Append(ctx, &models.AutomationLogEntry{TournamentID: 2, Type: models.AutomationRepair, Status: models.AutomationStatusCompleted}))

	all, err := log.Query(ctx, 1, "", time.Time{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	repairs, err := log.Query(ctx, 1, models.AutomationRepair, clock)
	require.NoError(t, err)
	require.Len(t, repairs, 1)
	assert.Equal(t, models.AutomationStatusFailed, repairs[0].Status)

	none, err := log.Query(ctx, 1, models.AutomationAdvanceWinner, clock)
	require.NoError(t, err)
	assert.Empty(t, none)
}
