package commands

import (
	"fmt"
	"slices"
	"text/tabwriter"
	"time"

	"git.home.luguber.info/inful/buildbot-exporter/internal/anomaly"
	"git.home.luguber.info/inful/buildbot-exporter/internal/config"
	"git.home.luguber.info/inful/buildbot-exporter/internal/eventstore"
	ferrors "git.home.luguber.info/inful/buildbot-exporter/internal/foundation/errors"
)

// AnomaliesCmd implements the 'anomalies' command.
type AnomaliesCmd struct {
	Journal string        `help:"Journal database path (defaults to journal.path from the configuration)"`
	Limit   int           `short:"n" help:"Maximum number of entries to list (0 lists all)" default:"50"`
	Since   time.Duration `help:"Only list anomalies from this far back (overrides --limit)"`
	Counts  bool          `help:"Print totals per anomaly kind instead of entries"`
}

func (a *AnomaliesCmd) Run(g *Global, root *CLI) error {
	path := a.Journal
	if path == "" {
		cfg, err := config.Load(root.Config, false)
		if err != nil {
			return err
		}
		path = cfg.Journal.Path
	}
	if path == eventstore.MemoryPath {
		return ferrors.ValidationError("an in-memory journal cannot be listed").Build()
	}

	store, err := eventstore.NewSQLiteStore(path, eventstore.WithLogger(g.Logger))
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	ctx := cmdContext()
	if a.Counts {
		counts, err := store.CountByKind(ctx)
		if err != nil {
			return err
		}
		return writeCounts(g, counts)
	}

	var entries []eventstore.Entry
	if a.Since > 0 {
		now := time.Now()
		entries, err = store.Range(ctx, now.Add(-a.Since), now)
	} else {
		entries, err = store.Recent(ctx, a.Limit)
	}
	if err != nil {
		return err
	}
	return writeEntries(g, entries)
}

func writeEntries(g *Global, entries []eventstore.Entry) error {
	tw := tabwriter.NewWriter(g.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tKIND\tENTITY\tIDENTITY\tDETAIL")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			e.At.Format(time.RFC3339), e.Kind, dash(e.Entity), dash(e.Identity), e.Detail)
	}
	return tw.Flush()
}

func writeCounts(g *Global, counts map[anomaly.Kind]int) error {
	kinds := make([]anomaly.Kind, 0, len(counts))
	for k := range counts {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)

	tw := tabwriter.NewWriter(g.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tCOUNT")
	for _, k := range kinds {
		fmt.Fprintf(tw, "%s\t%d\n", k, counts[k])
	}
	return tw.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
