package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Dosada05/bracket-automation/models"
	"github.com/Dosada05/bracket-automation/repositories"
	"github.com/Dosada05/bracket-automation/storage"
)

// AutomationService is the operator surface for bracket automation.
type AutomationService interface {
	RunHealthCheck(ctx context.Context) (*models.HealthReport, error)
	RunRepair(ctx context.Context) (*models.FixResult, error)
	RepairTournament(ctx context.Context, tournamentID int) (*models.TournamentFix, error)
	GetAutomationStatus(ctx context.Context, tournamentID int) (*models.TournamentAutomationStatus, error)
	ListAutomationLog(ctx context.Context, tournamentID int, automationType models.AutomationType, since time.Time) ([]*models.AutomationLogEntry, error)
}

type automationService struct {
	tournamentRepo repositories.TournamentRepository
	logRepo        repositories.AutomationLogRepository
	health         HealthService
	repair         RepairService
	monitor        MonitorService
	archive        storage.ReportArchive
	logger         zerolog.Logger
}

func NewAutomationService(
	tournamentRepo repositories.TournamentRepository,
	logRepo repositories.AutomationLogRepository,
	health HealthService,
	repair RepairService,
	monitor MonitorService,
	archive storage.ReportArchive,
	logger zerolog.Logger,
) AutomationService {
	return &automationService{
		tournamentRepo: tournamentRepo,
		logRepo:        logRepo,
		health:         health,
		repair:         repair,
		monitor:        monitor,
		archive:        archive,
		logger:         logger.With().Str("component", "automation").Logger(),
	}
}

func (s *automationService) RunHealthCheck(ctx context.Context) (*models.HealthReport, error) {
	report, err := s.health.Audit(ctx)
	if err != nil {
		return nil, err
	}
	s.store(ctx, storage.ReportHealth, uuid.NewString(), report.CheckedAt, report)
	return report, nil
}

func (s *automationService) RunRepair(ctx context.Context) (*models.FixResult, error) {
	result, err := s.repair.RepairAll(ctx)
	if err != nil {
		return nil, err
	}
	s.store(ctx, storage.ReportRepair, result.RunID, result.StartedAt, result)
	return result, nil
}

// RepairTournament returns the fix report together with the failure, if any,
// so callers can show what was attempted.
func (s *automationService) RepairTournament(ctx context.Context, tournamentID int) (*models.TournamentFix, error) {
	return s.repair.RepairTournament(ctx, tournamentID)
}

func (s *automationService) GetAutomationStatus(ctx context.Context, tournamentID int) (*models.TournamentAutomationStatus, error) {
	if _, err := s.tournamentRepo.GetByID(ctx, tournamentID); err != nil {
		return nil, mapStoreError(err, ErrTournamentNotFound)
	}
	status := s.monitor.Status(tournamentID)
	return &status, nil
}

func (s *automationService) ListAutomationLog(ctx context.Context, tournamentID int, automationType models.AutomationType, since time.Time) ([]*models.AutomationLogEntry, error) {
	if automationType != "" && !automationType.Valid() {
		return nil, fmt.Errorf("%w: unknown automation type %q", ErrValidationFailed, automationType)
	}
	if _, err := s.tournamentRepo.GetByID(ctx, tournamentID); err != nil {
		return nil, mapStoreError(err, ErrTournamentNotFound)
	}
	entries, err := s.logRepo.Query(ctx, tournamentID, automationType, since)
	if err != nil {
		return nil, fmt.Errorf("query automation log: %w", mapStoreError(err, ErrNotFound))
	}
	return entries, nil
}

func (s *automationService) store(ctx context.Context, kind storage.ReportKind, runID string, at time.Time, report interface{}) {
	if s.archive == nil {
		return
	}
	key, err := s.archive.Archive(context.WithoutCancel(ctx), kind, runID, at, report)
	if err != nil {
		s.logger.Error().Err(err).Str("kind", string(kind)).Str("run_id", runID).Msg("archive report")
		return
	}
	s.logger.Debug().Str("key", key).Msg("report archived")
}
