package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/thinkscotty/prophet/internal/models"
	"github.com/thinkscotty/prophet/internal/scheduler"
	"github.com/thinkscotty/prophet/internal/scraper"
)

func newTable(out io.Writer, header table.Row) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(header)
	return t
}

func scrapeCommand() *cobra.Command {
	var (
		daysBack int
		only     []string
	)
	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Run one ingestion cycle and store the posts",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := scraper.Options{DaysBack: daysBack}
			if len(only) > 0 {
				selected, err := parseSources(only)
				if err != nil {
					return err
				}
				opts.Sources = &selected
			}

			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.sched.Scrape(cmd.Context(), opts)
			if err != nil {
				return err
			}

			t := newTable(cmd.OutOrStdout(), table.Row{"Source", "Enabled", "Configs", "Failed", "Posts", "Error"})
			for _, src := range models.AllSources {
				o := result.Sources[src]
				t.AppendRow(table.Row{src, o.Enabled, o.Configs, o.Failed, o.Posts, o.Error})
			}
			t.AppendFooter(table.Row{"Total", "", "", "", result.Stats.Total, len(result.Errors)})
			t.Render()
			return nil
		},
	}
	cmd.Flags().IntVar(&daysBack, "days-back", 0, "Look-back window in days (default from config)")
	cmd.Flags().StringSliceVar(&only, "sources", nil, "Comma-separated sources to run (telegram,polymarket,twitter,rss)")
	return cmd
}

func parseSources(names []string) (scraper.Sources, error) {
	var s scraper.Sources
	for _, name := range names {
		switch models.SourceType(strings.ToLower(strings.TrimSpace(name))) {
		case models.SourceTelegram:
			s.Telegram = true
		case models.SourcePolymarket:
			s.Polymarket = true
		case models.SourceTwitter:
			s.Twitter = true
		case models.SourceRSS:
			s.RSS = true
		default:
			return s, fmt.Errorf("unknown source %q", name)
		}
	}
	return s, nil
}

func generateCommand() *cobra.Command {
	var mock bool
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate prediction questions from the stored posts",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			var gen *scheduler.Generation
			if mock {
				gen, err = a.sched.GenerateMock()
			} else {
				gen, err = a.sched.Generate(cmd.Context())
			}
			if err != nil {
				return err
			}

			t := newTable(cmd.OutOrStdout(), table.Row{"#", "Question", "Sources"})
			for i, q := range gen.Result.Questions {
				t.AppendRow(table.Row{i + 1, q.Question, strings.Join(q.SourceIDs, ", ")})
			}
			t.Render()
			fmt.Fprintf(cmd.OutOrStdout(), "%d questions from %d eligible posts", len(gen.Result.Questions), gen.Result.Eligible)
			if gen.Snapshot != "" {
				fmt.Fprintf(cmd.OutOrStdout(), ", saved to %s", gen.Snapshot)
			}
			fmt.Fprintln(cmd.OutOrStdout())
			return nil
		},
	}
	cmd.Flags().BoolVar(&mock, "mock", false, "Use template questions instead of the model")
	return cmd
}

func sourcesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "List configured sources",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			catalog, err := a.db.Sources()
			if err != nil {
				return err
			}
			t := newTable(cmd.OutOrStdout(), table.Row{"Kind", "ID", "Name", "Target", "Enabled"})
			for _, c := range catalog.Telegram {
				t.AppendRow(table.Row{models.SourceTelegram, c.ID, c.Username, c.URL, c.Enabled})
			}
			for _, p := range catalog.Polymarket {
				t.AppendRow(table.Row{models.SourcePolymarket, p.ID, p.Name, strings.Join(p.Keywords, ", "), p.Enabled})
			}
			for _, tw := range catalog.Twitter {
				t.AppendRow(table.Row{models.SourceTwitter, tw.ID, tw.DisplayName, "@" + tw.Username, tw.Enabled})
			}
			for _, f := range catalog.RSS {
				t.AppendRow(table.Row{models.SourceRSS, f.ID, f.Name, f.URL, f.Enabled})
			}
			t.Render()
			return nil
		},
	}
}

func snapshotsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshots",
		Short: "List saved question snapshots",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			names, err := a.snapshots.List()
			if err != nil {
				return err
			}
			t := newTable(cmd.OutOrStdout(), table.Row{"File", "Generated", "Questions"})
			for _, name := range names {
				snap, err := a.snapshots.Load(name)
				if err != nil {
					t.AppendRow(table.Row{name, "unreadable", err.Error()})
					continue
				}
				t.AppendRow(table.Row{name, snap.GeneratedAt, snap.Count})
			}
			t.Render()
			return nil
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show NAME",
		Short: "Print the questions in one snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			snap, err := a.snapshots.Load(args[0])
			if err != nil {
				return err
			}
			t := newTable(cmd.OutOrStdout(), table.Row{"ID", "Question", "Selected"})
			for _, q := range snap.Questions {
				t.AppendRow(table.Row{q.ID, q.Question, q.Selected})
			}
			t.Render()
			return nil
		},
	})
	return cmd
}
