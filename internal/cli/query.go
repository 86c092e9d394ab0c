package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"agenda/internal/occur"
	"agenda/internal/search"
	"agenda/internal/store"
)

type queryOptions struct {
	offline bool
}

func (q *queryOptions) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&q.offline, "offline", false, "skip importing the configured calendars")
}

// NewRangeCommand creates the range command.
func NewRangeCommand(rootOpts *RootOptions) *cobra.Command {
	var q queryOptions
	var ics bool

	cmd := &cobra.Command{
		Use:   "range <from> <to>",
		Short: "List the occurrences touching a time window",
		Long: `List the occurrences touching [from, to]: the ones starting inside it,
the ones still running at from and the ones whose alarm fires inside it.
Instants are RFC 3339; plain dates are taken in the configured zone.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRange(cmd, rootOpts, q, ics, args[0], args[1])
		},
	}
	q.register(cmd)
	cmd.Flags().BoolVar(&ics, "ics", false, "write an iCalendar feed instead")

	return cmd
}

func runRange(cmd *cobra.Command, opts *RootOptions, q queryOptions, asICS bool, fromArg, toArg string) error {
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

	loc := e.zone.Location()
	from, err := parseWhen(fromArg, loc)
	if err != nil {
		return err
	}
	to, err := parseWhen(toArg, loc)
	if err != nil {
		return err
	}
	if to.Before(from) {
		return fmt.Errorf("to %s is before from %s", to, from)
	}
	if !q.offline {
		e.importCalendars(ctx, from)
	}

	col := occur.NewRange(from, to)
	texts := e.search(ctx, func(ctx context.Context) {
		search.DocumentsRange(ctx, e.reg.Documents(), e.zone, col)
	})
	out := newPrinter(cmd, opts, loc, texts)
	if asICS {
		return out.ics(col.Occurrences())
	}
	return out.occurrences(col.Occurrences(), occur.Allocate(col.Occurrences(), from, to))
}

// NewNextCommand creates the next command.
func NewNextCommand(rootOpts *RootOptions) *cobra.Command {
	var q queryOptions
	var after string

	cmd := &cobra.Command{
		Use:   "next",
		Short: "Show the occurrences due next",
		Long: `Show the occurrences due earliest after a base instant (now by default).
An occurrence is due at its alarm, or at its start when it has none.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNext(cmd, rootOpts, q, after)
		},
	}
	q.register(cmd)
	cmd.Flags().StringVar(&after, "after", "", "base instant (RFC 3339 or date); default now")

	return cmd
}

func runNext(cmd *cobra.Command, opts *RootOptions, q queryOptions, after string) error {
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

	base := time.Now()
	if after != "" {
		if base, err = parseWhen(after, e.zone.Location()); err != nil {
			return err
		}
	}
	if !q.offline {
		e.importCalendars(ctx, base)
	}

	next := occur.NewNext(base)
	texts := e.search(ctx, func(ctx context.Context) {
		search.DocumentsNext(ctx, e.reg.Documents(), e.zone, next)
	})
	return newPrinter(cmd, opts, e.zone.Location(), texts).next(next)
}

// search runs fn with the registry locked and returns the item texts of the
// open documents.
func (e *env) search(ctx context.Context, fn func(ctx context.Context)) map[store.ItemRef]string {
	e.reg.Lock()
	defer e.reg.Unlock()
	fn(ctx)
	return store.ItemTexts(ctx, e.reg.Documents())
}
