// Package cli implements the agenda command line.
package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"agenda/internal/config"
	appLog "agenda/internal/log"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Verbose    bool
	Format     string // "json" | "text"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command of the agenda CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "agenda",
		Short: "Recurring schedules with alarms",
		Long: `agenda evaluates recurrence rules: it lists the occurrences touching a
time window, finds the next alarm and fires alarms as they come due.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "config.yaml", "path to config file")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewRangeCommand(opts))
	cmd.AddCommand(NewNextCommand(opts))
	cmd.AddCommand(NewImportCommand(opts))

	return cmd
}

// loadConfig loads and validates the config and applies its log level.
func loadConfig(opts *RootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", opts.ConfigPath, err)
	}
	level := appLog.ParseLevel(cfg.LogLevel)
	if opts.Verbose {
		level = appLog.LevelDebug
	}
	appLog.SetLevel(level)
	return cfg, nil
}
