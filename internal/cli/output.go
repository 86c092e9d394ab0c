package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"agenda/internal/ics"
	"agenda/internal/model"
	"agenda/internal/occur"
	"agenda/internal/store"
)

// printer writes command results as text tables or JSON.
type printer struct {
	w     io.Writer
	json  bool
	loc   *time.Location
	texts map[store.ItemRef]string
}

func newPrinter(cmd *cobra.Command, opts *RootOptions, loc *time.Location, texts map[store.ItemRef]string) *printer {
	return &printer{w: cmd.OutOrStdout(), json: opts.Format == "json", loc: loc, texts: texts}
}

type occurrenceJSON struct {
	Document string     `json:"document"`
	Item     string     `json:"item"`
	Text     string     `json:"text,omitempty"`
	Start    time.Time  `json:"start"`
	End      *time.Time `json:"end,omitempty"`
	Alarm    *time.Time `json:"alarm,omitempty"`
}

func (p *printer) toJSON(list []model.Occurrence) []occurrenceJSON {
	out := make([]occurrenceJSON, 0, len(list))
	for _, o := range list {
		o = o.In(p.loc)
		j := occurrenceJSON{Document: o.ContainerID, Item: o.ItemID, Text: p.text(o), Start: o.Start}
		if end, ok := o.End.Get(); ok {
			j.End = &end
		}
		if at, ok := o.Alarm.Get(); ok {
			j.Alarm = &at
		}
		out = append(out, j)
	}
	return out
}

func (p *printer) text(o model.Occurrence) string {
	return p.texts[store.ItemRef{Document: o.ContainerID, Item: o.ItemID}]
}

func (p *printer) encode(v any) error {
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (p *printer) occurrences(list []model.Occurrence, alloc occur.Allocation) error {
	if p.json {
		return p.encode(struct {
			Occurrences []occurrenceJSON `json:"occurrences"`
			Gaps        []occur.Span     `json:"gaps"`
			Overlaps    []occur.Span     `json:"overlaps"`
		}{p.toJSON(list), alloc.Gaps, alloc.Overlaps})
	}
	if err := p.table(list); err != nil {
		return err
	}
	for _, s := range alloc.Overlaps {
		fmt.Fprintf(p.w, "overlap %s - %s\n", p.format(s.Start), p.format(s.End))
	}
	return nil
}

func (p *printer) next(n *occur.Next) error {
	list := n.Occurrences()
	if p.json {
		var at *time.Time
		if t, ok := n.Time(); ok {
			t = t.In(p.loc)
			at = &t
		}
		return p.encode(struct {
			At          *time.Time       `json:"at,omitempty"`
			Occurrences []occurrenceJSON `json:"occurrences"`
		}{at, p.toJSON(list)})
	}
	t, ok := n.Time()
	if !ok {
		_, err := fmt.Fprintln(p.w, "nothing due")
		return err
	}
	fmt.Fprintf(p.w, "due %s\n", p.format(t))
	return p.table(list)
}

func (p *printer) ics(list []model.Occurrence) error {
	summary := func(doc, item string) string {
		if t := p.texts[store.ItemRef{Document: doc, Item: item}]; t != "" {
			return t
		}
		return item
	}
	return ics.Export(p.w, list, summary, time.Now())
}

func (p *printer) imported(doc string, res ics.ImportResult) error {
	if p.json {
		return p.encode(struct {
			Document  string   `json:"document"`
			Items     int      `json:"items"`
			Expanded  []string `json:"expanded,omitempty"`
			Truncated []string `json:"truncated,omitempty"`
		}{doc, len(res.Items), res.Expanded, res.Truncated})
	}
	fmt.Fprintf(p.w, "imported %d items into %s\n", len(res.Items), doc)
	for _, uid := range res.Truncated {
		fmt.Fprintf(p.w, "truncated %s\n", uid)
	}
	return nil
}

func (p *printer) table(list []model.Occurrence) error {
	tw := tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "START\tEND\tALARM\tITEM\tTEXT")
	for _, o := range list {
		end, alarm := "-", "-"
		if t, ok := o.End.Get(); ok {
			end = p.format(t)
		}
		if t, ok := o.Alarm.Get(); ok {
			alarm = p.format(t)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", p.format(o.Start), end, alarm, o.ItemID, p.text(o))
	}
	return tw.Flush()
}

func (p *printer) format(t time.Time) string {
	return t.In(p.loc).Format("2006-01-02 15:04 MST")
}
