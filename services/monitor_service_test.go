package services

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dosada05/bracket-automation/brackets"
	"github.com/Dosada05/bracket-automation/models"
)

type recordingNotifier struct {
	mu       sync.Mutex
	messages []brackets.WebSocketMessage
}

func (n *recordingNotifier) BroadcastToRoom(roomID string, message interface{}) {
	msg, ok := message.(brackets.WebSocketMessage)
	if !ok {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, msg)
}

func (n *recordingNotifier) ofType(kind string) []brackets.WebSocketMessage {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []brackets.WebSocketMessage
	for _, m := range n.messages {
		if m.Type == kind {
			out = append(out, m)
		}
	}
	return out
}

func newTestMonitor(f *fixture, notifier Notifier, delay time.Duration) *monitorService {
	return newMonitorService(f.store.Tournaments(), f.store.Feed(), f.store.AutomationLog(), f.repair, notifier, zerolog.Nop(), delay)
}

func repairEntries(t *testing.T, f *fixture, tournamentID int) []*models.AutomationLogEntry {
	t.Helper()
	entries, err := f.store.AutomationLog().Query(context.Background(), tournamentID, models.AutomationRepair, time.Time{})
	require.NoError(t, err)
	return entries
}

func TestMonitor_SilenceTriggersExactlyOneRepair(t *testing.T) {
	f := newFixture(t, false)
	tour := f.startTournament(t, models.BracketDoubleElimination, 16)
	monitor := newTestMonitor(f, nil, 20*time.Millisecond)
	defer monitor.Shutdown()

	h, err := monitor.StartMonitoring(context.Background(), tour.ID)
	require.NoError(t, err)
	defer h.Stop()

	f.play(t, tour.ID, wr(1, 1))

	require.Eventually(t, func() bool { return len(repairEntries(t, f, tour.ID)) == 1 }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return monitor.Status(tour.ID).CurrentState == models.MonitorIdle }, time.Second, 10*time.Millisecond)
	time.Sleep(60 * time.Millisecond)

	entries := repairEntries(t, f, tour.ID)
	require.Len(t, entries, 1)
	assert.Equal(t, models.AutomationStatusCompleted, entries[0].Status)

	assert.Equal(t, 101, *f.matchAt(t, tour.ID, wr(2, 1)).Player1ID)
	assert.Equal(t, 102, *f.matchAt(t, tour.ID, lr(1, 1)).Player1ID)

	status := monitor.Status(tour.ID)
	assert.Equal(t, int64(1), status.FallbackRepairs)
	assert.Equal(t, int64(0), status.SuccessCount)
	assert.Equal(t, int64(0), status.ErrorCount)
	assert.NotNil(t, status.LastTriggered)
	assert.Equal(t, 1, status.ActiveHandles)
}

func TestMonitor_InlineAdvancementCountsAsSuccess(t *testing.T) {
	f := newFixture(t, true)
	tour := f.startTournament(t, models.BracketSingleElimination, 8)
	notifier := &recordingNotifier{}
	monitor := newTestMonitor(f, notifier, 20*time.Millisecond)
	defer monitor.Shutdown()

	h, err := monitor.StartMonitoring(context.Background(), tour.ID)
	require.NoError(t, err)
	defer h.Stop()

	f.play(t, tour.ID, wr(1, 1))
	f.play(t, tour.ID, wr(1, 2))

	require.Eventually(t, func() bool { return monitor.Status(tour.ID).SuccessCount == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, repairEntries(t, f, tour.ID))
	assert.Equal(t, int64(0), monitor.Status(tour.ID).FallbackRepairs)
	assert.NotEmpty(t, notifier.ofType(brackets.MessageAutomationStatus))
}

func TestMonitor_FailedRepairWarnsAndCounts(t *testing.T) {
	f := newFixture(t, false)
	tour := f.startTournament(t, models.BracketSingleElimination, 8)
	require.NoError(t, f.store.ForceSlot(f.matchAt(t, tour.ID, wr(2, 1)).ID, models.SlotA, 999))

	notifier := &recordingNotifier{}
	monitor := newTestMonitor(f, notifier, 20*time.Millisecond)
	defer monitor.Shutdown()

	h, err := monitor.StartMonitoring(context.Background(), tour.ID)
	require.NoError(t, err)
	defer h.Stop()

	f.play(t, tour.ID, wr(1, 1))

	require.Eventually(t, func() bool { return monitor.Status(tour.ID).ErrorCount == 1 }, 2*time.Second, 10*time.Millisecond)
	warnings := notifier.ofType(brackets.MessageAutomationWarning)
	require.Len(t, warnings, 1)
	payload, ok := warnings[0].Payload.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, tour.ID, payload["tournament_id"])
	assert.Contains(t, payload["reason"], "repair failed")
	assert.Equal(t, "/api/tournaments/"+strconv.Itoa(tour.ID)+"/repair", payload["repair_action"])

	entries := repairEntries(t, f, tour.ID)
	require.Len(t, entries, 1)
	assert.Equal(t, models.AutomationStatusFailed, entries[0].Status)
}

func TestMonitor_StopAbandonsPendingWindow(t *testing.T) {
	f := newFixture(t, false)
	tour := f.startTournament(t, models.BracketSingleElimination, 4)
	monitor := newTestMonitor(f, nil, 150*time.Millisecond)
	defer monitor.Shutdown()

	h, err := monitor.StartMonitoring(context.Background(), tour.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, f.store.SubscriberCount(tour.ID))

	f.play(t, tour.ID, wr(1, 1))
	assert.Equal(t, models.MonitorProcessing, monitor.Status(tour.ID).CurrentState)

	h.Stop()
	h.Stop()
	assert.Equal(t, 0, f.store.SubscriberCount(tour.ID))

	time.Sleep(300 * time.Millisecond)
	assert.Empty(t, repairEntries(t, f, tour.ID))
	assert.Equal(t, models.MonitorIdle, monitor.Status(tour.ID).CurrentState)
}

func TestMonitor_HandlesShareOneWatcher(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)
	tour := f.startTournament(t, models.BracketSingleElimination, 4)
	monitor := newTestMonitor(f, nil, 20*time.Millisecond)

	first, err := monitor.StartMonitoring(ctx, tour.ID)
	require.NoError(t, err)
	second, err := monitor.StartMonitoring(ctx, tour.ID)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID(), second.ID())
	assert.Equal(t, 1, f.store.SubscriberCount(tour.ID))
	assert.Equal(t, 2, monitor.Status(tour.ID).ActiveHandles)

	first.Stop()
	assert.Equal(t, 1, f.store.SubscriberCount(tour.ID))
	assert.Equal(t, 1, monitor.Status(tour.ID).ActiveHandles)

	second.Stop()
	assert.Equal(t, 0, f.store.SubscriberCount(tour.ID))

	_, err = monitor.StartMonitoring(ctx, 4242)
	assert.ErrorIs(t, err, ErrTournamentNotFound)

	monitor.Shutdown()
	_, err = monitor.StartMonitoring(ctx, tour.ID)
	assert.ErrorIs(t, err, ErrMonitorStopped)
}
