package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Dosada05/bracket-automation/config"
	"github.com/Dosada05/bracket-automation/db"
)

func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	var steps int
	cmd := &cobra.Command{
		Use:   "migrate [up|down]",
		Short: "Apply or roll back the database schema",
		Long: `Applies the embedded migrations to DATABASE_URL.

"up" applies every pending migration unless --steps is set; "down" rolls back
--steps migrations (default 1).`,
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down"},
		RunE: func(cmd *cobra.Command, args []string) error {
			direction := "up"
			if len(args) == 1 {
				direction = args[0]
			}
			n, err := migrationSteps(direction, steps)
			if err != nil {
				return err
			}

			cfg, logger, err := rootOpts.setup()
			if err != nil {
				return err
			}
			if cfg.StoreDriver != config.StoreDriverPostgres {
				return fmt.Errorf("migrate needs STORE_DRIVER=%s, got %s", config.StoreDriverPostgres, cfg.StoreDriver)
			}

			conn, err := db.Connect(cfg.DatabaseURL, 5*time.Second, logger)
			if err != nil {
				return err
			}
			defer conn.Close()

			version, err := db.Migrate(conn, n)
			if err != nil {
				return err
			}
			line(cmd.OutOrStdout(), "schema at version %d", version)
			return nil
		},
	}
	cmd.Flags().IntVar(&steps, "steps", 0, "number of migrations to apply or roll back")
	return cmd
}

// migrationSteps converts a direction and a step count into db.Migrate's argument.
func migrationSteps(direction string, steps int) (int, error) {
	if steps < 0 {
		return 0, fmt.Errorf("--steps must not be negative")
	}
	switch direction {
	case "up":
		return steps, nil
	case "down":
		if steps == 0 {
			steps = 1
		}
		return -steps, nil
	default:
		return 0, fmt.Errorf("unknown direction %q", direction)
	}
}
