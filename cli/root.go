package cli

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Dosada05/bracket-automation/config"
	"github.com/Dosada05/bracket-automation/logger"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Format string // "json" | "text"

	// loadConfig is replaced in tests.
	loadConfig func() (*config.Config, error)
}

var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command of the bracket automation service.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{loadConfig: config.Load})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "brackets",
		Short: "Tournament bracket progression automation",
		Long: `Advances winners and losers through single and double elimination brackets,
detects silently failed advancement and repairs the bracket state.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewHealthCommand(opts))
	cmd.AddCommand(NewRepairCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewTokenCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// setup loads the configuration and builds the root logger.
func (o *RootOptions) setup() (*config.Config, zerolog.Logger, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("load configuration: %w", err)
	}
	return cfg, logger.New(cfg.LogLevel, cfg.IsDevelopment()), nil
}

// withApp runs fn against a freshly wired app and tears it down afterwards.
func (o *RootOptions) withApp(ctx context.Context, fn func(*app) error) error {
	cfg, log, err := o.setup()
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.close()
	return fn(a)
}
