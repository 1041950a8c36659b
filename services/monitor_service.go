package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Dosada05/bracket-automation/brackets"
	"github.com/Dosada05/bracket-automation/models"
	"github.com/Dosada05/bracket-automation/repositories"
)

// AutomationDelay is how long the monitor waits for the inline trigger to
// log an advancement before it falls back to a repair.
const AutomationDelay = 3 * time.Second

type MonitorService interface {
	// StartMonitoring watches a tournament until every returned handle is stopped.
	StartMonitoring(ctx context.Context, tournamentID int) (*Handle, error)
	Status(tournamentID int) models.TournamentAutomationStatus
	// Shutdown stops every watcher and rejects new handles.
	Shutdown()
}

// Handle keeps a tournament watched. Stop is safe to call more than once.
type Handle struct {
	id           string
	tournamentID int
	release      func(*Handle)
	once         sync.Once
}

func (h *Handle) ID() string { return h.id }

func (h *Handle) TournamentID() int { return h.tournamentID }

func (h *Handle) Stop() {
	h.once.Do(func() { h.release(h) })
}

type watcher struct {
	tournamentID int
	handles      map[string]struct{}
	sub          repositories.Subscription
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup

	mu      sync.Mutex
	pending map[int]struct{}
}

// stop releases the subscription, abandons pending windows and waits for them to unwind.
func (w *watcher) stop() {
	w.sub.Close()
	w.mu.Lock()
	w.cancel()
	w.mu.Unlock()
	w.wg.Wait()
}

func (w *watcher) pendingCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

type monitorService struct {
	tournamentRepo repositories.TournamentRepository
	feed           repositories.MatchFeed
	logRepo        repositories.AutomationLogRepository
	repair         RepairService
	notifier       Notifier
	logger         zerolog.Logger
	delay          time.Duration
	now            func() time.Time

	mu       sync.Mutex
	closed   bool
	watchers map[int]*watcher
	stats    map[int]*models.TournamentAutomationStatus
}

func NewMonitorService(
	tournamentRepo repositories.TournamentRepository,
	feed repositories.MatchFeed,
	logRepo repositories.AutomationLogRepository,
	repair RepairService,
	notifier Notifier,
	logger zerolog.Logger,
) MonitorService {
	return newMonitorService(tournamentRepo, feed, logRepo, repair, notifier, logger, AutomationDelay)
}

func newMonitorService(
	tournamentRepo repositories.TournamentRepository,
	feed repositories.MatchFeed,
	logRepo repositories.AutomationLogRepository,
	repair RepairService,
	notifier Notifier,
	logger zerolog.Logger,
	delay time.Duration,
) *monitorService {
	return &monitorService{
		tournamentRepo: tournamentRepo,
		feed:           feed,
		logRepo:        logRepo,
		repair:         repair,
		notifier:       notifierOrNop(notifier),
		logger:         logger.With().Str("component", "monitor").Logger(),
		delay:          delay,
		now:            time.Now,
		watchers:       make(map[int]*watcher),
		stats:          make(map[int]*models.TournamentAutomationStatus),
	}
}

func (m *monitorService) StartMonitoring(ctx context.Context, tournamentID int) (*Handle, error) {
	if _, err := m.tournamentRepo.GetByID(ctx, tournamentID); err != nil {
		return nil, mapStoreError(err, ErrTournamentNotFound)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrMonitorStopped
	}

	w, ok := m.watchers[tournamentID]
	if !ok {
		wctx, cancel := context.WithCancel(context.Background())
		w = &watcher{
			tournamentID: tournamentID,
			handles:      make(map[string]struct{}),
			ctx:          wctx,
			cancel:       cancel,
			pending:      make(map[int]struct{}),
		}
		sub, err := m.feed.SubscribeToMatchUpdates(ctx, tournamentID, func(u models.MatchUpdate) { m.onUpdate(w, u) })
		if err != nil {
			cancel()
			return nil, fmt.Errorf("subscribe to tournament %d: %w", tournamentID, mapStoreError(err, ErrTournamentNotFound))
		}
		w.sub = sub
		m.watchers[tournamentID] = w
		m.statsLocked(tournamentID)
		m.logger.Info().Int("tournament_id", tournamentID).Msg("monitoring started")
	}

	h := &Handle{id: uuid.NewString(), tournamentID: tournamentID, release: m.release}
	w.handles[h.id] = struct{}{}
	return h, nil
}

func (m *monitorService) release(h *Handle) {
	m.mu.Lock()
	w, ok := m.watchers[h.tournamentID]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(w.handles, h.id)
	if len(w.handles) > 0 {
		m.mu.Unlock()
		return
	}
	delete(m.watchers, h.tournamentID)
	m.mu.Unlock()

	w.stop()
	m.logger.Info().Int("tournament_id", h.tournamentID).Msg("monitoring stopped")
}

func (m *monitorService) Shutdown() {
	m.mu.Lock()
	m.closed = true
	watchers := make([]*watcher, 0, len(m.watchers))
	for id, w := range m.watchers {
		watchers = append(watchers, w)
		delete(m.watchers, id)
	}
	m.mu.Unlock()

	for _, w := range watchers {
		w.stop()
	}
}

func (m *monitorService) Status(tournamentID int) models.TournamentAutomationStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	status := models.TournamentAutomationStatus{TournamentID: tournamentID, CurrentState: models.MonitorIdle}
	if st, ok := m.stats[tournamentID]; ok {
		status = *st
	}
	if w, ok := m.watchers[tournamentID]; ok {
		status.ActiveHandles = len(w.handles)
		if w.pendingCount() > 0 {
			status.CurrentState = models.MonitorProcessing
		}
	} else {
		status.CurrentState = models.MonitorIdle
	}
	return status
}

// onUpdate runs on the feed's goroutine and must not block.
func (m *monitorService) onUpdate(w *watcher, update models.MatchUpdate) {
	if !update.BecameCompleted() {
		return
	}
	match := update.New

	w.mu.Lock()
	if w.ctx.Err() != nil {
		w.mu.Unlock()
		return
	}
	if _, armed := w.pending[match.ID]; armed {
		w.mu.Unlock()
		return
	}
	w.pending[match.ID] = struct{}{}
	w.wg.Add(1)
	w.mu.Unlock()

	windowStart := match.UpdatedAt
	if windowStart.IsZero() {
		windowStart = m.now()
	}
	m.withStats(w.tournamentID, func(st *models.TournamentAutomationStatus) {
		t := m.now().UTC()
		st.LastTriggered = &t
		st.CurrentState = models.MonitorProcessing
	})

	go m.process(w, match.Clone(), windowStart)
}

func (m *monitorService) process(w *watcher, match *models.Match, windowStart time.Time) {
	defer w.wg.Done()
	defer func() {
		w.mu.Lock()
		delete(w.pending, match.ID)
		idle := len(w.pending) == 0
		w.mu.Unlock()
		if idle {
			m.withStats(w.tournamentID, func(st *models.TournamentAutomationStatus) { st.CurrentState = models.MonitorIdle })
		}
		m.broadcastStatus(w.tournamentID)
	}()

	timer := time.NewTimer(m.delay)
	defer timer.Stop()
	select {
	case <-w.ctx.Done():
		return
	case <-timer.C:
	}

	m.evaluate(w.ctx, match, windowStart)
}

// evaluate checks whether the inline trigger logged the advancement and repairs otherwise.
func (m *monitorService) evaluate(ctx context.Context, match *models.Match, windowStart time.Time) {
	log := m.logger.With().Int("tournament_id", match.TournamentID).Int("match_id", match.ID).Logger()
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("automation fallback panicked")
			m.withStats(match.TournamentID, func(st *models.TournamentAutomationStatus) { st.ErrorCount++ })
		}
	}()

	entries, err := m.logRepo.Query(ctx, match.TournamentID, models.AutomationAdvanceWinner, windowStart)
	if err != nil {
		log.Warn().Err(err).Msg("query automation log, falling back to repair")
	}
	reason := "no advancement was logged within the automation window"
	for _, e := range entries {
		if e.MatchID == nil || *e.MatchID != match.ID {
			continue
		}
		if e.Status == models.AutomationStatusCompleted {
			m.withStats(match.TournamentID, func(st *models.TournamentAutomationStatus) { st.SuccessCount++ })
			log.Debug().Msg("inline advancement confirmed")
			return
		}
		reason = "inline advancement failed"
		if e.Detail != nil {
			reason += ": " + *e.Detail
		}
	}

	log.Warn().Str("reason", reason).Msg("running fallback repair")
	fix, err := m.repair.RepairTournament(ctx, match.TournamentID)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		m.withStats(match.TournamentID, func(st *models.TournamentAutomationStatus) { st.ErrorCount++ })
		log.Error().Err(err).Msg("fallback repair failed")
		m.notifier.BroadcastToRoom(brackets.RoomForTournament(match.TournamentID), brackets.WebSocketMessage{
			Type: brackets.MessageAutomationWarning,
			Payload: map[string]interface{}{
				"tournament_id": match.TournamentID,
				"match_id":      match.ID,
				"reason":        fmt.Sprintf("%s; repair failed: %v", reason, err),
				"repair_action": fmt.Sprintf("/api/tournaments/%d/repair", match.TournamentID),
			},
			RoomID: brackets.RoomForTournament(match.TournamentID),
		})
		return
	}
	m.withStats(match.TournamentID, func(st *models.TournamentAutomationStatus) { st.FallbackRepairs++ })
	log.Info().Int("passes", fix.Passes).Int("advanced", fix.Advanced).Msg("fallback repair succeeded")
}

func (m *monitorService) broadcastStatus(tournamentID int) {
	status := m.Status(tournamentID)
	m.notifier.BroadcastToRoom(brackets.RoomForTournament(tournamentID), brackets.WebSocketMessage{
		Type:    brackets.MessageAutomationStatus,
		Payload: status,
		RoomID:  brackets.RoomForTournament(tournamentID),
	})
}

func (m *monitorService) withStats(tournamentID int, fn func(*models.TournamentAutomationStatus)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m.statsLocked(tournamentID))
}

func (m *monitorService) statsLocked(tournamentID int) *models.TournamentAutomationStatus {
	st, ok := m.stats[tournamentID]
	if !ok {
		st = &models.TournamentAutomationStatus{TournamentID: tournamentID, CurrentState: models.MonitorIdle}
		m.stats[tournamentID] = st
	}
	return st
}
