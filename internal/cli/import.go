package cli

import (
	"time"

	"github.com/spf13/cobra"

	"agenda/internal/ics"
)

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	var id string

	cmd := &cobra.Command{
		Use:   "import <url-or-path>",
		Short: "Import an iCalendar feed into the agenda",
		Long: `Import the VEVENTs of an iCalendar feed as items. Recurring events
become native rules when their pattern allows it and are expanded into
single occurrences otherwise. Re-importing a feed replaces its items.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd, rootOpts, ics.Source{ID: id, URL: args[0]})
		},
	}
	cmd.Flags().StringVar(&id, "id", "cli", "source name used in logs and for the fetch cache")

	return cmd
}

func runImport(cmd *cobra.Command, opts *RootOptions, src ics.Source) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	e, err := openEnv(ctx, cfg)
	if err != nil {
		return err
	}
	defer e.close()

	e.reg.Lock()
	res, err := ics.Import(ctx, ics.NewFetcher(cfg.CacheDir), src, e.doc, e.importConfig(time.Now()))
	e.reg.Unlock()
	if err != nil {
		return err
	}
	return newPrinter(cmd, opts, e.zone.Location(), nil).imported(e.doc.ID(), res)
}
