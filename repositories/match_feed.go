package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog"

	"github.com/Dosada05/bracket-automation/models"
)

// MatchUpdatesChannel is the NOTIFY channel written by the matches row trigger.
const MatchUpdatesChannel = "match_updates"

type Subscription interface {
	Close()
}

// MatchFeed pushes match row changes of one tournament to a callback.
// Callbacks run on the feed goroutine and must not block.
type MatchFeed interface {
	SubscribeToMatchUpdates(ctx context.Context, tournamentID int, callback func(models.MatchUpdate)) (Subscription, error)
}

// subscriberSet fans events out to per-tournament callbacks.
type subscriberSet struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[int]map[uint64]func(models.MatchUpdate)
}

func newSubscriberSet() *subscriberSet {
	return &subscriberSet{subs: make(map[int]map[uint64]func(models.MatchUpdate))}
}

func (s *subscriberSet) add(tournamentID int, callback func(models.MatchUpdate)) Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	if s.subs[tournamentID] == nil {
		s.subs[tournamentID] = make(map[uint64]func(models.MatchUpdate))
	}
	s.subs[tournamentID][id] = callback
	return &subscription{set: s, tournamentID: tournamentID, id: id}
}

func (s *subscriberSet) remove(tournamentID int, id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs[tournamentID], id)
	if len(s.subs[tournamentID]) == 0 {
		delete(s.subs, tournamentID)
	}
}

func (s *subscriberSet) publish(update models.MatchUpdate) {
	s.mu.RLock()
	callbacks := make([]func(models.MatchUpdate), 0, len(s.subs[update.TournamentID]))
	for _, cb := range s.subs[update.TournamentID] {
		callbacks = append(callbacks, cb)
	}
	s.mu.RUnlock()

	for _, cb := range callbacks {
		cb(update)
	}
}

func (s *subscriberSet) count(tournamentID int) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs[tournamentID])
}

type subscription struct {
	set          *subscriberSet
	tournamentID int
	id           uint64
	once         sync.Once
}

func (s *subscription) Close() {
	s.once.Do(func() { s.set.remove(s.tournamentID, s.id) })
}

// PostgresMatchFeed listens on MatchUpdatesChannel and dispatches every
// notification to the subscribers of its tournament.
type PostgresMatchFeed struct {
	listener *pq.Listener
	subs     *subscriberSet
	logger   zerolog.Logger
}

func NewPostgresMatchFeed(dsn string, logger zerolog.Logger) (*PostgresMatchFeed, error) {
	feedLogger := logger.With().Str("component", "match_feed").Logger()

	listener := pq.NewListener(dsn, 2*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		switch ev {
		case pq.ListenerEventConnectionAttemptFailed:
			feedLogger.Warn().Err(err).Msg("match feed connection attempt failed")
		case pq.ListenerEventDisconnected:
			feedLogger.Warn().Err(err).Msg("match feed disconnected")
		case pq.ListenerEventReconnected:
			feedLogger.Info().Msg("match feed reconnected")
		}
	})
	if err := listener.Listen(MatchUpdatesChannel); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("listen on %s: %w", MatchUpdatesChannel, err)
	}

	return &PostgresMatchFeed{
		listener: listener,
		subs:     newSubscriberSet(),
		logger:   feedLogger,
	}, nil
}

func (f *PostgresMatchFeed) SubscribeToMatchUpdates(ctx context.Context, tournamentID int, callback func(models.MatchUpdate)) (Subscription, error) {
	if callback == nil {
		return nil, newStoreError(KindInvalid, "subscribe to match updates", fmt.Errorf("nil callback"))
	}
	if err := ctx.Err(); err != nil {
		return nil, decodeError("subscribe to match updates", err)
	}
	return f.subs.add(tournamentID, callback), nil
}

// Run dispatches notifications until ctx is cancelled, then closes the listener.
func (f *PostgresMatchFeed) Run(ctx context.Context) {
	defer func() {
		if err := f.listener.Close(); err != nil {
			f.logger.Error().Err(err).Msg("close match feed listener")
		}
	}()

	ping := time.NewTicker(90 * time.Second)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case n := <-f.listener.Notify:
			// A nil notification follows a reconnect; events in the gap are lost,
			// which the health sweep covers.
			if n == nil {
				continue
			}
			var update models.MatchUpdate
			if err := json.Unmarshal([]byte(n.Extra), &update); err != nil {
				f.logger.Error().Err(err).Str("payload", n.Extra).Msg("decode match update")
				continue
			}
			f.subs.publish(update)
		case <-ping.C:
			if err := f.listener.Ping(); err != nil {
				f.logger.Warn().Err(err).Msg("match feed ping failed")
			}
		}
	}
}
