package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Dosada05/bracket-automation/brackets"
	"github.com/Dosada05/bracket-automation/models"
	"github.com/Dosada05/bracket-automation/repositories"
)

const DefaultRepairMaxPasses = 3

type RepairConfig struct {
	MaxPasses   int
	PassBackoff time.Duration
	Concurrency int
}

func (c RepairConfig) withDefaults() RepairConfig {
	if c.MaxPasses <= 0 {
		c.MaxPasses = DefaultRepairMaxPasses
	}
	if c.PassBackoff < 0 {
		c.PassBackoff = 0
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	return c
}

type RepairService interface {
	// RepairAll audits every ongoing double-elimination tournament and repairs the unhealthy ones.
	RepairAll(ctx context.Context) (*models.FixResult, error)
	RepairTournament(ctx context.Context, tournamentID int) (*models.TournamentFix, error)
}

type repairService struct {
	health      HealthService
	advancement AdvancementService
	matchRepo   repositories.MatchRepository
	tournaments repositories.TournamentRepository
	logRepo     repositories.AutomationLogRepository
	cfg         RepairConfig
	logger      zerolog.Logger
	now         func() time.Time
}

func NewRepairService(
	health HealthService,
	advancement AdvancementService,
	tournamentRepo repositories.TournamentRepository,
	matchRepo repositories.MatchRepository,
	logRepo repositories.AutomationLogRepository,
	cfg RepairConfig,
	logger zerolog.Logger,
) RepairService {
	return &repairService{
		health:      health,
		advancement: advancement,
		matchRepo:   matchRepo,
		tournaments: tournamentRepo,
		logRepo:     logRepo,
		cfg:         cfg.withDefaults(),
		logger:      logger.With().Str("component", "repair").Logger(),
		now:         time.Now,
	}
}

func (s *repairService) RepairAll(ctx context.Context) (*models.FixResult, error) {
	runID := uuid.NewString()
	result := &models.FixResult{
		RunID:     runID,
		StartedAt: s.now().UTC(),
		Details:   []models.TournamentFix{},
	}

	report, err := s.health.Audit(ctx)
	if err != nil {
		return nil, fmt.Errorf("audit before repair: %w", err)
	}
	result.TournamentsChecked = report.TotalTournaments

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for _, th := range report.Tournaments {
		tournamentID := th.TournamentID
		g.Go(func() error {
			fix, err := s.repair(gctx, tournamentID, runID)
			if fix == nil {
				fix = &models.TournamentFix{TournamentID: tournamentID}
			}
			if err != nil && fix.Error == "" {
				fix.Error = err.Error()
			}
			mu.Lock()
			result.Details = append(result.Details, *fix)
			if fix.Repaired {
				result.TournamentsFixed++
			}
			mu.Unlock()
			// Per-tournament failures are reported in the details, never abort the run.
			return nil
		})
	}
	_ = g.Wait()

	result.FinishedAt = s.now().UTC()
	result.Success = result.TournamentsFixed == len(report.Tournaments)
	s.logger.Info().
		Str("run_id", runID).
		Int("checked", result.TournamentsChecked).
		Int("fixed", result.TournamentsFixed).
		Int("unhealthy", len(report.Tournaments)).
		Msg("repair run finished")
	return result, nil
}

func (s *repairService) RepairTournament(ctx context.Context, tournamentID int) (*models.TournamentFix, error) {
	return s.repair(ctx, tournamentID, uuid.NewString())
}

func (s *repairService) repair(ctx context.Context, tournamentID int, runID string) (*models.TournamentFix, error) {
	log := s.logger.With().Int("tournament_id", tournamentID).Str("run_id", runID).Logger()

	health, err := s.health.AuditTournament(ctx, tournamentID)
	if err != nil {
		if errors.Is(err, ErrTournamentNotFound) {
			return nil, err
		}
		fix := &models.TournamentFix{TournamentID: tournamentID, Error: err.Error()}
		s.appendRepairLog(ctx, tournamentID, runID, err)
		return fix, err
	}

	fix := &models.TournamentFix{
		TournamentID: tournamentID,
		DriftBefore:  health.UnadvancedMatches,
		Conflicts:    mergeConflicts(nil, health.Conflicts),
	}

	// Conflicting slots are left alone; every other drifted edge keeps being repaired.
	var lastErr error
	for fix.Passes < s.cfg.MaxPasses && hasRepairableWork(health) {
		if fix.Passes > 0 {
			if err := sleepCtx(ctx, s.cfg.PassBackoff); err != nil {
				lastErr = err
				break
			}
		}
		fix.Passes++

		lastErr = s.runPass(ctx, health, fix, runID)

		next, err := s.health.AuditTournament(ctx, tournamentID)
		if err != nil {
			lastErr = err
			log.Warn().Err(err).Int("pass", fix.Passes).Msg("re-audit failed")
			continue
		}
		health = next
		fix.Conflicts = mergeConflicts(fix.Conflicts, health.Conflicts)
	}

	var resultErr error
	switch {
	case len(fix.Conflicts) > 0:
		c := fix.Conflicts[0]
		resultErr = &AdvancementConflictError{
			TournamentID:     tournamentID,
			SourceMatchID:    c.MatchID,
			Source:           c.Position,
			Edge:             c.Edge,
			TargetMatchID:    c.TargetID,
			Target:           c.Target,
			Slot:             c.Slot,
			ExistingPlayerID: c.ActualPlayerID,
			AttemptedPlayer:  c.ExpectedPlayerID,
		}
	case len(health.DriftedMatches) > 0 || health.CompletionPending:
		resultErr = &RepairExhaustedError{
			TournamentID:   tournamentID,
			Passes:         fix.Passes,
			RemainingDrift: health.UnadvancedMatches,
			LastErr:        lastErr,
		}
	default:
		fix.Repaired = true
	}
	if resultErr != nil {
		fix.Error = resultErr.Error()
	}

	s.appendRepairLog(ctx, tournamentID, runID, resultErr)
	log.Info().
		Int("drift_before", fix.DriftBefore).
		Int("passes", fix.Passes).
		Int("advanced", fix.Advanced).
		Int("already_applied", fix.AlreadyApplied).
		Bool("repaired", fix.Repaired).
		Msg("tournament repair finished")
	return fix, resultErr
}

// runPass advances every drifted match once, in bracket order, and finalizes
// the tournament when the final is decided. Conflicts are recorded on fix.
func (s *repairService) runPass(ctx context.Context, health *models.TournamentHealth, fix *models.TournamentFix, runID string) error {
	tournament, err := s.tournaments.GetByID(ctx, health.TournamentID)
	if err != nil {
		return mapStoreError(err, ErrTournamentNotFound)
	}

	completed, err := s.matchRepo.GetCompletedMatches(ctx, tournament.ID)
	if err != nil {
		return fmt.Errorf("load decided matches of tournament %d: %w", tournament.ID, mapStoreError(err, ErrMatchNotFound))
	}
	decided := make(map[int]*models.Match, len(completed))
	for _, m := range completed {
		decided[m.ID] = m
	}

	var lastErr error
	for _, matchID := range driftOrder(health.DriftedMatches) {
		if err := ctx.Err(); err != nil {
			return err
		}
		match, ok := decided[matchID]
		if !ok {
			lastErr = fmt.Errorf("drifted match %d has no result: %w", matchID, ErrMatchNotFound)
			continue
		}
		res, err := s.advancement.AdvanceIn(ctx, tournament, match)
		if res != nil {
			fix.Advanced += res.Advanced()
			fix.AlreadyApplied += res.AlreadyApplied()
		}
		var conflict *AdvancementConflictError
		if errors.As(err, &conflict) {
			fix.Conflicts = mergeConflicts(fix.Conflicts, []models.SlotConflict{conflict.Conflict()})
			continue
		}
		if err != nil {
			// Transient failures are retried by the next pass.
			lastErr = err
			continue
		}
	}

	if health.CompletionPending && tournament.Status != models.StatusCompleted {
		if err := s.finalize(ctx, tournament, fix, runID); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// finalize completes the tournament from its decided final.
func (s *repairService) finalize(ctx context.Context, tournament *models.Tournament, fix *models.TournamentFix, runID string) error {
	topology, err := brackets.TopologyFor(tournament.BracketType, tournament.ParticipantCount)
	if err != nil {
		return err
	}
	final, err := s.matchRepo.GetByPosition(ctx, tournament.ID, topology.Final())
	if err != nil {
		return mapStoreError(err, ErrMatchNotFound)
	}
	if !final.HasResult() {
		return nil
	}
	completed, err := s.advancement.CompleteTournament(ctx, tournament.ID, *final.WinnerID, runID)
	if err != nil {
		return err
	}
	fix.Completed = completed
	return nil
}

func (s *repairService) appendRepairLog(ctx context.Context, tournamentID int, runID string, err error) {
	entry := &models.AutomationLogEntry{
		TournamentID: tournamentID,
		Type:         models.AutomationRepair,
		Status:       models.AutomationStatusCompleted,
		RunID:        runID,
	}
	if err != nil {
		entry.Status = models.AutomationStatusFailed
		entry.Detail = detail(err)
	}
	if appendErr := s.logRepo.Append(context.WithoutCancel(ctx), entry); appendErr != nil {
		s.logger.Error().Err(appendErr).Int("tournament_id", tournamentID).Msg("append repair log")
	}
}

// driftOrder returns the distinct drifted match ids, keeping the audit's bracket order.
func driftOrder(drifted []models.DriftedMatch) []int {
	seen := make(map[int]struct{}, len(drifted))
	ids := make([]int, 0, len(drifted))
	for _, d := range drifted {
		if _, ok := seen[d.MatchID]; ok {
			continue
		}
		seen[d.MatchID] = struct{}{}
		ids = append(ids, d.MatchID)
	}
	return ids
}

// hasRepairableWork reports drift or a pending completion. Conflicts alone are not repairable.
func hasRepairableWork(health *models.TournamentHealth) bool {
	return len(health.DriftedMatches) > 0 || health.CompletionPending
}

// mergeConflicts appends the conflicts not yet listed, keyed by target slot.
func mergeConflicts(into, found []models.SlotConflict) []models.SlotConflict {
	for _, c := range found {
		dup := false
		for _, have := range into {
			if have.TargetID == c.TargetID && have.Slot == c.Slot && have.MatchID == c.MatchID {
				dup = true
				break
			}
		}
		if !dup {
			into = append(into, c)
		}
	}
	return into
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
