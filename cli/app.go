package cli

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Dosada05/bracket-automation/brackets"
	"github.com/Dosada05/bracket-automation/config"
	"github.com/Dosada05/bracket-automation/db"
	"github.com/Dosada05/bracket-automation/repositories"
	"github.com/Dosada05/bracket-automation/services"
	"github.com/Dosada05/bracket-automation/storage"
)

// app is the wired service graph shared by every command.
type app struct {
	cfg    *config.Config
	logger zerolog.Logger

	db      *sql.DB
	pgFeed  *repositories.PostgresMatchFeed
	hub     *brackets.Hub
	monitor services.MonitorService

	tournamentRepo repositories.TournamentRepository

	tournaments services.TournamentService
	matches     services.MatchService
	automation  services.AutomationService

	cancel context.CancelFunc
}

type stores struct {
	tournaments repositories.TournamentRepository
	matches     repositories.MatchRepository
	logs        repositories.AutomationLogRepository
	feed        repositories.MatchFeed
	tx          repositories.TxRunner
}

func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	archive, err := newArchive(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	var st stores
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		mem := repositories.NewMemoryStore()
		st = stores{tournaments: mem.Tournaments(), matches: mem.Matches(), logs: mem.AutomationLog(), feed: mem.Feed(), tx: mem}
		logger.Warn().Msg("using the in-memory bracket store; state is lost on exit")
	default:
		conn, err := db.Connect(cfg.DatabaseURL, 5*time.Second, logger)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		a.db = conn
		feed, err := repositories.NewPostgresMatchFeed(cfg.DatabaseURL, logger)
		if err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("start match feed: %w", err)
		}
		a.pgFeed = feed
		st = stores{
			tournaments: repositories.NewPostgresTournamentRepository(conn),
			matches:     repositories.NewPostgresMatchRepository(conn),
			logs:        repositories.NewPostgresAutomationLogRepository(conn),
			feed:        feed,
			tx:          repositories.NewPostgresTxRunner(conn),
		}
	}

	a.tournamentRepo = st.tournaments
	a.hub = brackets.NewHub(logger)
	advancement := services.NewAdvancementService(st.tournaments, st.matches, st.logs, a.hub, logger)
	health := services.NewHealthService(st.tournaments, st.matches, logger)
	repair := services.NewRepairService(health, advancement, st.tournaments, st.matches, st.logs, services.RepairConfig{
		MaxPasses:   cfg.RepairMaxPasses,
		PassBackoff: cfg.RepairPassBackoff,
		Concurrency: cfg.RepairConcurrency,
	}, logger)
	a.monitor = services.NewMonitorService(st.tournaments, st.feed, st.logs, repair, a.hub, logger)
	a.automation = services.NewAutomationService(st.tournaments, st.logs, health, repair, a.monitor, archive, logger)
	a.matches = services.NewMatchService(st.matches, st.logs, advancement, a.hub, cfg.InlineTriggerEnabled, logger)
	a.tournaments = services.NewTournamentService(st.tournaments, st.matches, st.tx, logger)

	runCtx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	go a.hub.Run(runCtx)
	if a.pgFeed != nil {
		go a.pgFeed.Run(runCtx)
	}
	return a, nil
}

func newArchive(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (storage.ReportArchive, error) {
	r2 := storage.CloudflareR2Config{
		AccountID:       cfg.R2AccountID,
		AccessKeyID:     cfg.R2AccessKeyID,
		SecretAccessKey: cfg.R2SecretAccessKey,
		BucketName:      cfg.R2BucketName,
		PublicBaseURL:   cfg.R2PublicBaseURL,
	}
	if !r2.Enabled() {
		logger.Info().Msg("R2 not configured, reports are kept in memory")
		return storage.NewReportArchive(storage.NewMemoryObjectStore()), nil
	}
	store, err := storage.NewCloudflareR2Store(ctx, r2)
	if err != nil {
		return nil, fmt.Errorf("initialize report archive: %w", err)
	}
	logger.Info().Str("bucket", r2.BucketName).Msg("reports are archived to Cloudflare R2")
	return storage.NewReportArchive(store), nil
}

func (a *app) close() {
	if a.monitor != nil {
		a.monitor.Shutdown()
	}
	if a.cancel != nil {
		a.cancel()
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Error().Err(err).Msg("failed to close database connection")
		} else {
			a.logger.Info().Msg("database connection closed")
		}
	}
}
