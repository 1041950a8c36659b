package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Dosada05/bracket-automation/models"
	"github.com/Dosada05/bracket-automation/repositories"
)

const (
	jobMonitorReconcile = "monitor_reconcile"
	jobHealthSweep      = "health_sweep"
)

type SupervisorConfig struct {
	ReconcileInterval   time.Duration
	HealthSweepInterval time.Duration
	JobTimeout          time.Duration
}

// Supervisor keeps one monitor handle for every ongoing tournament and
// periodically heals drift, so automation does not depend on an open view.
type Supervisor struct {
	tournamentRepo repositories.TournamentRepository
	monitor        MonitorService
	automation     AutomationService
	cfg            SupervisorConfig
	logger         zerolog.Logger

	scheduler gocron.Scheduler
	started   bool
	stopOnce  sync.Once
	stopErr   error

	mu      sync.Mutex
	handles map[int]*Handle
}

func NewSupervisor(
	tournamentRepo repositories.TournamentRepository,
	monitor MonitorService,
	automation AutomationService,
	cfg SupervisorConfig,
	logger zerolog.Logger,
) (*Supervisor, error) {
	if cfg.ReconcileInterval <= 0 {
		cfg.ReconcileInterval = 30 * time.Second
	}
	if cfg.HealthSweepInterval <= 0 {
		cfg.HealthSweepInterval = 5 * time.Minute
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 2 * time.Minute
	}
	s := &Supervisor{
		tournamentRepo: tournamentRepo,
		monitor:        monitor,
		automation:     automation,
		cfg:            cfg,
		logger:         logger.With().Str("component", "supervisor").Logger(),
		handles:        make(map[int]*Handle),
	}

	sched, err := gocron.NewScheduler(
		gocron.WithGlobalJobOptions(
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
			gocron.WithEventListeners(
				gocron.AfterJobRunsWithPanic(func(jobID uuid.UUID, jobName string, recoverData any) {
					s.logger.Error().
						Str("job_id", jobID.String()).
						Str("job_name", jobName).
						Interface("panic", recoverData).
						Msg("supervisor job panicked")
				}),
			),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	s.scheduler = sched

	if _, err := sched.NewJob(
		gocron.DurationJob(cfg.ReconcileInterval),
		gocron.NewTask(s.runJob(jobMonitorReconcile, s.Reconcile)),
		gocron.WithName(jobMonitorReconcile),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	); err != nil {
		return nil, fmt.Errorf("register %s job: %w", jobMonitorReconcile, err)
	}
	if _, err := sched.NewJob(
		gocron.DurationJob(cfg.HealthSweepInterval),
		gocron.NewTask(s.runJob(jobHealthSweep, s.sweep)),
		gocron.WithName(jobHealthSweep),
	); err != nil {
		return nil, fmt.Errorf("register %s job: %w", jobHealthSweep, err)
	}
	return s, nil
}

func (s *Supervisor) Start() {
	s.logger.Info().
		Dur("reconcile_interval", s.cfg.ReconcileInterval).
		Dur("health_sweep_interval", s.cfg.HealthSweepInterval).
		Msg("supervisor starting")
	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
	s.scheduler.Start()
}

// Stop shuts the scheduler down and releases every handle the supervisor holds.
func (s *Supervisor) Stop() error {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		started := s.started
		s.mu.Unlock()
		if started {
			s.stopErr = s.scheduler.Shutdown()
		}
		s.mu.Lock()
		handles := s.handles
		s.handles = make(map[int]*Handle)
		s.mu.Unlock()
		for _, h := range handles {
			h.Stop()
		}
		s.logger.Info().Msg("supervisor stopped")
	})
	return s.stopErr
}

// Reconcile takes a handle for every ongoing tournament and drops handles of
// tournaments that are no longer ongoing.
func (s *Supervisor) Reconcile(ctx context.Context) error {
	ongoing, err := s.tournamentRepo.List(ctx, repositories.ListTournamentsFilter{
		Statuses: []models.TournamentStatus{models.StatusOngoing},
	})
	if err != nil {
		return fmt.Errorf("list ongoing tournaments: %w", mapStoreError(err, ErrTournamentNotFound))
	}
	want := make(map[int]struct{}, len(ongoing))
	for _, t := range ongoing {
		want[t.ID] = struct{}{}
	}

	s.mu.Lock()
	var stale []*Handle
	for id, h := range s.handles {
		if _, ok := want[id]; !ok {
			stale = append(stale, h)
			delete(s.handles, id)
		}
	}
	var missing []int
	for id := range want {
		if _, ok := s.handles[id]; !ok {
			missing = append(missing, id)
		}
	}
	s.mu.Unlock()

	for _, h := range stale {
		h.Stop()
	}

	var firstErr error
	for _, id := range missing {
		h, err := s.monitor.StartMonitoring(ctx, id)
		if err != nil {
			s.logger.Error().Err(err).Int("tournament_id", id).Msg("start monitoring")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		s.mu.Lock()
		if _, dup := s.handles[id]; dup {
			s.mu.Unlock()
			h.Stop()
			continue
		}
		s.handles[id] = h
		s.mu.Unlock()
	}

	if len(stale) > 0 || len(missing) > 0 {
		s.logger.Info().Int("started", len(missing)).Int("released", len(stale)).Msg("monitors reconciled")
	}
	return firstErr
}

// Watched returns the tournaments the supervisor currently holds handles for.
func (s *Supervisor) Watched() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int, 0, len(s.handles))
	for id := range s.handles {
		ids = append(ids, id)
	}
	return ids
}

func (s *Supervisor) sweep(ctx context.Context) error {
	result, err := s.automation.RunRepair(ctx)
	if err != nil {
		return err
	}
	if !result.Success {
		s.logger.Warn().Str("run_id", result.RunID).Int("fixed", result.TournamentsFixed).Int("unhealthy", len(result.Details)).Msg("health sweep left drift behind")
	}
	return nil
}

func (s *Supervisor) runJob(name string, fn func(context.Context) error) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.JobTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			s.logger.Error().Err(err).Str("job_name", name).Msg("supervisor job failed")
		}
	}
}
