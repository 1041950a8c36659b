package repositories

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/Dosada05/bracket-automation/models"
)

// MemoryStore keeps tournaments, matches and the automation log in process.
// It honours the same conditional-write contract as the Postgres repositories
// and publishes a change event after every match write.
type MemoryStore struct {
	mu          sync.Mutex
	tournaments map[int]*models.Tournament
	matches     map[int]*models.Match
	logs        []*models.AutomationLogEntry

	nextTournamentID int
	nextMatchID      int
	nextLogID        int64

	failSlotWrites int
	now            func() time.Time
	subs           *subscriberSet
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tournaments: make(map[int]*models.Tournament),
		matches:     make(map[int]*models.Match),
		now:         time.Now,
		subs:        newSubscriberSet(),
	}
}

func (s *MemoryStore) Tournaments() TournamentRepository { return memoryTournaments{s} }

func (s *MemoryStore) Matches() MatchRepository { return memoryMatches{s} }

func (s *MemoryStore) AutomationLog() AutomationLogRepository { return memoryAutomationLog{s} }

func (s *MemoryStore) Feed() MatchFeed { return memoryFeed{s} }

// SubscriberCount reports live subscriptions for a tournament.
func (s *MemoryStore) SubscriberCount(tournamentID int) int {
	return s.subs.count(tournamentID)
}

// FailSlotWrites makes the next n slot writes fail with a transient error.
func (s *MemoryStore) FailSlotWrites(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failSlotWrites = n
}

// ClearSlot empties a player slot without any precondition, the way an
// operator correcting data by hand would.
func (s *MemoryStore) ClearSlot(matchID int, slot models.Slot) error {
	s.mu.Lock()
	m, ok := s.matches[matchID]
	if !ok {
		s.mu.Unlock()
		return newStoreError(KindNotFound, "clear slot", nil)
	}
	old := m.Clone()
	m.SetPlayer(slot, nil)
	if m.Status == models.MatchStatusReady {
		m.Status = models.MatchStatusPending
	}
	m.UpdatedAt = s.now()
	update := models.MatchUpdate{TournamentID: m.TournamentID, Old: old, New: m.Clone()}
	s.mu.Unlock()

	s.subs.publish(update)
	return nil
}

// ForceSlot overwrites a slot regardless of its content.
func (s *MemoryStore) ForceSlot(matchID int, slot models.Slot, playerID int) error {
	s.mu.Lock()
	m, ok := s.matches[matchID]
	if !ok {
		s.mu.Unlock()
		return newStoreError(KindNotFound, "force slot", nil)
	}
	old := m.Clone()
	m.SetPlayer(slot, models.IntPtr(playerID))
	m.UpdatedAt = s.now()
	update := models.MatchUpdate{TournamentID: m.TournamentID, Old: old, New: m.Clone()}
	s.mu.Unlock()

	s.subs.publish(update)
	return nil
}

// RunInTx restores the previous tournaments and matches when fn fails.
func (s *MemoryStore) RunInTx(ctx context.Context, fn func(exec SQLExecutor) error) error {
	if err := ctx.Err(); err != nil {
		return decodeError("begin tx", err)
	}

	s.mu.Lock()
	tournaments := make(map[int]*models.Tournament, len(s.tournaments))
	for id, t := range s.tournaments {
		c := *t
		tournaments[id] = &c
	}
	matches := make(map[int]*models.Match, len(s.matches))
	for id, m := range s.matches {
		matches[id] = m.Clone()
	}
	s.mu.Unlock()

	if err := fn(nil); err != nil {
		s.mu.Lock()
		s.tournaments = tournaments
		s.matches = matches
		s.mu.Unlock()
		return err
	}
	return nil
}

type memoryTournaments struct{ s *MemoryStore }

func (r memoryTournaments) Create(ctx context.Context, t *models.Tournament) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextTournamentID++
	t.ID = s.nextTournamentID
	t.CreatedAt = s.now()
	t.UpdatedAt = t.CreatedAt
	c := *t
	c.Matches = nil
	s.tournaments[t.ID] = &c
	return nil
}

func (r memoryTournaments) GetByID(ctx context.Context, id int) (*models.Tournament, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tournaments[id]
	if !ok {
		return nil, newStoreError(KindNotFound, "get tournament "+strconv.Itoa(id), nil)
	}
	c := *t
	return &c, nil
}

func (r memoryTournaments) List(ctx context.Context, filter ListTournamentsFilter) ([]*models.Tournament, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*models.Tournament, 0, len(s.tournaments))
	for _, t := range s.tournaments {
		if filter.BracketType != nil && t.BracketType != *filter.BracketType {
			continue
		}
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, t.Status) {
			continue
		}
		c := *t
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return []*models.Tournament{}, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r memoryTournaments) UpdateTournamentStatus(ctx context.Context, exec SQLExecutor, id int, from, to models.TournamentStatus) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	op := "update tournament " + strconv.Itoa(id) + " status"
	t, ok := s.tournaments[id]
	if !ok {
		return newStoreError(KindNotFound, op, nil)
	}
	if t.Status != from {
		return newStoreError(KindConflict, op, nil)
	}
	t.Status = to
	t.UpdatedAt = s.now()
	return nil
}

func (r memoryTournaments) Complete(ctx context.Context, exec SQLExecutor, id int, winnerID int) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	op := "complete tournament " + strconv.Itoa(id)
	t, ok := s.tournaments[id]
	if !ok {
		return newStoreError(KindNotFound, op, nil)
	}
	if t.Status != models.StatusOngoing {
		return newStoreError(KindConflict, op, nil)
	}
	t.Status = models.StatusCompleted
	t.WinnerID = models.IntPtr(winnerID)
	t.UpdatedAt = s.now()
	return nil
}

func containsStatus(list []models.TournamentStatus, s models.TournamentStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

type memoryMatches struct{ s *MemoryStore }

func (r memoryMatches) CreateBatch(ctx context.Context, exec SQLExecutor, matches []*models.Match) error {
	s := r.s
	s.mu.Lock()
	updates := make([]models.MatchUpdate, 0, len(matches))
	for _, m := range matches {
		for _, existing := range s.matches {
			if existing.TournamentID == m.TournamentID && existing.Position() == m.Position() {
				s.mu.Unlock()
				return newStoreError(KindConflict, "create match "+m.Position().String(), nil)
			}
		}
		s.nextMatchID++
		m.ID = s.nextMatchID
		m.CreatedAt = s.now()
		m.UpdatedAt = m.CreatedAt
		s.matches[m.ID] = m.Clone()
		updates = append(updates, models.MatchUpdate{TournamentID: m.TournamentID, New: m.Clone()})
	}
	s.mu.Unlock()

	for _, u := range updates {
		s.subs.publish(u)
	}
	return nil
}

func (r memoryMatches) GetByID(ctx context.Context, id int) (*models.Match, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[id]
	if !ok {
		return nil, newStoreError(KindNotFound, "get match "+strconv.Itoa(id), nil)
	}
	return m.Clone(), nil
}

func (r memoryMatches) GetByPosition(ctx context.Context, tournamentID int, pos models.MatchPosition) (*models.Match, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.matches {
		if m.TournamentID == tournamentID && m.Position() == pos {
			return m.Clone(), nil
		}
	}
	return nil, newStoreError(KindNotFound, fmt.Sprintf("get match %s of tournament %d", pos, tournamentID), nil)
}

func (r memoryMatches) ListByTournament(ctx context.Context, tournamentID int) ([]*models.Match, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filterMatchesLocked(func(m *models.Match) bool { return m.TournamentID == tournamentID }), nil
}

func (r memoryMatches) ListByTournaments(ctx context.Context, tournamentIDs []int) (map[int][]*models.Match, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	wanted := make(map[int]struct{}, len(tournamentIDs))
	for _, id := range tournamentIDs {
		wanted[id] = struct{}{}
	}
	byTournament := make(map[int][]*models.Match, len(tournamentIDs))
	matches := s.filterMatchesLocked(func(m *models.Match) bool {
		_, ok := wanted[m.TournamentID]
		return ok
	})
	for _, m := range matches {
		byTournament[m.TournamentID] = append(byTournament[m.TournamentID], m)
	}
	return byTournament, nil
}

func (r memoryMatches) GetCompletedMatches(ctx context.Context, tournamentID int) ([]*models.Match, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filterMatchesLocked(func(m *models.Match) bool {
		return m.TournamentID == tournamentID && m.HasResult()
	}), nil
}

func (s *MemoryStore) filterMatchesLocked(keep func(*models.Match) bool) []*models.Match {
	out := make([]*models.Match, 0)
	for _, m := range s.matches {
		if keep(m) {
			out = append(out, m.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Round != out[j].Round {
			return out[i].Round < out[j].Round
		}
		if out[i].MatchNumber != out[j].MatchNumber {
			return out[i].MatchNumber < out[j].MatchNumber
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (r memoryMatches) UpdateMatchSlot(ctx context.Context, matchID int, slot models.Slot, playerID int) (*models.Match, error) {
	op := fmt.Sprintf("fill slot %s of match %d", slot, matchID)
	if !slot.Valid() {
		return nil, newStoreError(KindInvalid, op, fmt.Errorf("unknown slot %q", slot))
	}
	return r.s.mutateMatch(ctx, op, matchID, func(m *models.Match) error {
		if r.s.failSlotWrites > 0 {
			r.s.failSlotWrites--
			return newStoreError(KindTransient, op, context.DeadlineExceeded)
		}
		if m.PlayerIn(slot) != nil {
			return newStoreError(KindConflict, op, nil)
		}
		m.SetPlayer(slot, models.IntPtr(playerID))
		if m.Status == models.MatchStatusPending && m.Player1ID != nil && m.Player2ID != nil {
			m.Status = models.MatchStatusReady
		}
		return nil
	})
}

func (r memoryMatches) RecordResult(ctx context.Context, matchID int, winnerID int, score *string) (*models.Match, error) {
	op := "record result of match " + strconv.Itoa(matchID)
	return r.s.mutateMatch(ctx, op, matchID, func(m *models.Match) error {
		if m.Status != models.MatchStatusReady && m.Status != models.MatchStatusOngoing {
			return newStoreError(KindConflict, op, nil)
		}
		if m.WinnerID != nil || !m.HasPlayer(winnerID) {
			return newStoreError(KindConflict, op, nil)
		}
		m.WinnerID = models.IntPtr(winnerID)
		m.Score = score
		m.Status = models.MatchStatusCompleted
		return nil
	})
}

func (r memoryMatches) MarkOngoing(ctx context.Context, matchID int) (*models.Match, error) {
	op := "start match " + strconv.Itoa(matchID)
	return r.s.mutateMatch(ctx, op, matchID, func(m *models.Match) error {
		if m.Status != models.MatchStatusReady {
			return newStoreError(KindConflict, op, nil)
		}
		m.Status = models.MatchStatusOngoing
		return nil
	})
}

// mutateMatch applies fn under the store lock and publishes the change after
// releasing it. fn returning an error leaves the match untouched.
func (s *MemoryStore) mutateMatch(ctx context.Context, op string, matchID int, fn func(m *models.Match) error) (*models.Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, decodeError(op, err)
	}

	s.mu.Lock()
	m, ok := s.matches[matchID]
	if !ok {
		s.mu.Unlock()
		return nil, newStoreError(KindNotFound, op, nil)
	}
	old := m.Clone()
	working := m.Clone()
	if err := fn(working); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	working.UpdatedAt = s.now()
	s.matches[matchID] = working
	update := models.MatchUpdate{TournamentID: working.TournamentID, Old: old, New: working.Clone()}
	result := working.Clone()
	s.mu.Unlock()

	s.subs.publish(update)
	return result, nil
}

type memoryAutomationLog struct{ s *MemoryStore }

func (r memoryAutomationLog) Append(ctx context.Context, entry *models.AutomationLogEntry) error {
	if err := ctx.Err(); err != nil {
		return decodeError("append automation log", err)
	}
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextLogID++
	entry.ID = s.nextLogID
	entry.CreatedAt = s.now()
	c := *entry
	s.logs = append(s.logs, &c)
	return nil
}

func (r memoryAutomationLog) Query(ctx context.Context, tournamentID int, automationType models.AutomationType, since time.Time) ([]*models.AutomationLogEntry, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.AutomationLogEntry, 0)
	for _, e := range s.logs {
		if e.TournamentID != tournamentID || e.CreatedAt.Before(since) {
			continue
		}
		if automationType != "" && e.Type != automationType {
			continue
		}
		c := *e
		out = append(out, &c)
	}
	return out, nil
}

type memoryFeed struct{ s *MemoryStore }

func (f memoryFeed) SubscribeToMatchUpdates(ctx context.Context, tournamentID int, callback func(models.MatchUpdate)) (Subscription, error) {
	if callback == nil {
		return nil, newStoreError(KindInvalid, "subscribe to match updates", fmt.Errorf("nil callback"))
	}
	if err := ctx.Err(); err != nil {
		return nil, decodeError("subscribe to match updates", err)
	}
	return f.s.subs.add(tournamentID, callback), nil
}
