package cli

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Dosada05/bracket-automation/models"
)

func NewHealthCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Audit in-progress tournaments for results that never advanced",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withApp(cmd.Context(), func(a *app) error {
				report, err := a.automation.RunHealthCheck(cmd.Context())
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), rootOpts.Format, report, func(tw *tabwriter.Writer) {
					line(tw, "checked at\t%s", report.CheckedAt.Format(time.RFC3339))
					line(tw, "tournaments\t%d", report.TotalTournaments)
					line(tw, "healthy\t%d", report.HealthyTournaments)
					line(tw, "unhealthy\t%d", report.UnhealthyTournaments)
					for _, t := range report.Tournaments {
						line(tw, "")
						line(tw, "tournament %d\t%s (%s)", t.TournamentID, t.Name, t.BracketType)
						line(tw, "  unadvanced\t%d", t.UnadvancedMatches)
						line(tw, "  completion pending\t%s", yesNo(t.CompletionPending))
						for _, d := range t.DriftedMatches {
							line(tw, "  %s %s\t-> %s slot %s (player %d)", d.Position, d.Edge, d.Target, d.Slot, d.PlayerID)
						}
						for _, c := range t.Conflicts {
							line(tw, "  conflict %s\t%s holds %d, expected %d", c.Target, c.Slot, c.ActualPlayerID, c.ExpectedPlayerID)
						}
					}
				})
			})
		},
	}
}

func NewRepairCommand(rootOpts *RootOptions) *cobra.Command {
	var tournamentID int
	cmd := &cobra.Command{
		Use:   "repair",
		Short: "Re-run advancement for every drifted tournament",
		Long: `Runs the repair pass over all in-progress tournaments, or over a single
tournament with --tournament. Conflicting slots are reported and left untouched.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withApp(cmd.Context(), func(a *app) error {
				if tournamentID > 0 {
					return repairOne(cmd, rootOpts, a, tournamentID)
				}
				result, err := a.automation.RunRepair(cmd.Context())
				if err != nil {
					return err
				}
				if err := render(cmd.OutOrStdout(), rootOpts.Format, result, func(tw *tabwriter.Writer) {
					line(tw, "run\t%s", result.RunID)
					line(tw, "checked\t%d", result.TournamentsChecked)
					line(tw, "fixed\t%d", result.TournamentsFixed)
					line(tw, "success\t%s", yesNo(result.Success))
					for i := range result.Details {
						writeFix(tw, &result.Details[i])
					}
				}); err != nil {
					return err
				}
				if !result.Success {
					return errors.New("repair finished with failures")
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&tournamentID, "tournament", 0, "repair only this tournament")
	return cmd
}

func repairOne(cmd *cobra.Command, opts *RootOptions, a *app, tournamentID int) error {
	fix, repairErr := a.automation.RepairTournament(cmd.Context(), tournamentID)
	if fix == nil {
		return repairErr
	}
	if err := render(cmd.OutOrStdout(), opts.Format, fix, func(tw *tabwriter.Writer) {
		writeFix(tw, fix)
	}); err != nil {
		return err
	}
	return repairErr
}

func writeFix(tw *tabwriter.Writer, fix *models.TournamentFix) {
	line(tw, "tournament %d\tdrift %d, passes %d, advanced %d, already applied %d",
		fix.TournamentID, fix.DriftBefore, fix.Passes, fix.Advanced, fix.AlreadyApplied)
	line(tw, "  repaired\t%s", yesNo(fix.Repaired))
	if fix.Completed {
		line(tw, "  tournament completed\tyes")
	}
	for _, c := range fix.Conflicts {
		line(tw, "  conflict %s\t%s holds %d, expected %d", c.Target, c.Slot, c.ActualPlayerID, c.ExpectedPlayerID)
	}
	if fix.Error != "" {
		line(tw, "  error\t%s", fix.Error)
	}
}

// statusSummary is what the status command prints for one tournament.
type statusSummary struct {
	Status    *models.TournamentAutomationStatus `json:"status"`
	Since     time.Time                          `json:"since"`
	Succeeded map[models.AutomationType]int      `json:"succeeded"`
	Failed    map[models.AutomationType]int      `json:"failed"`
	LastEntry *models.AutomationLogEntry         `json:"last_entry,omitempty"`
}

func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	var window time.Duration
	cmd := &cobra.Command{
		Use:   "status <tournament-id>",
		Short: "Show automation status and recent automation log totals for a tournament",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var tournamentID int
			if _, err := fmt.Sscan(args[0], &tournamentID); err != nil || tournamentID <= 0 {
				return fmt.Errorf("invalid tournament id %q", args[0])
			}
			return rootOpts.withApp(cmd.Context(), func(a *app) error {
				summary, err := summarizeStatus(cmd.Context(), a, tournamentID, time.Now().Add(-window))
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), rootOpts.Format, summary, func(tw *tabwriter.Writer) {
					line(tw, "tournament\t%d", tournamentID)
					line(tw, "since\t%s", summary.Since.Format(time.RFC3339))
					for _, t := range []models.AutomationType{models.AutomationAdvanceWinner, models.AutomationRepair, models.AutomationCompleteTournament} {
						line(tw, "%s\t%d ok, %d failed", t, summary.Succeeded[t], summary.Failed[t])
					}
					if summary.LastEntry != nil {
						line(tw, "last run\t%s %s at %s", summary.LastEntry.Type, summary.LastEntry.Status,
							summary.LastEntry.CreatedAt.Format(time.RFC3339))
					}
				})
			})
		},
	}
	cmd.Flags().DurationVar(&window, "window", 24*time.Hour, "how far back to read the automation log")
	return cmd
}

func summarizeStatus(ctx context.Context, a *app, tournamentID int, since time.Time) (*statusSummary, error) {
	status, err := a.automation.GetAutomationStatus(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	entries, err := a.automation.ListAutomationLog(ctx, tournamentID, "", since)
	if err != nil {
		return nil, err
	}
	summary := &statusSummary{
		Status:    status,
		Since:     since.UTC(),
		Succeeded: make(map[models.AutomationType]int),
		Failed:    make(map[models.AutomationType]int),
	}
	for _, e := range entries {
		if e.Status == models.AutomationStatusCompleted {
			summary.Succeeded[e.Type]++
		} else {
			summary.Failed[e.Type]++
		}
		if summary.LastEntry == nil || e.CreatedAt.After(summary.LastEntry.CreatedAt) {
			summary.LastEntry = e
		}
	}
	return summary, nil
}
