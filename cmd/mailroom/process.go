package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/phrazzld/mailroom/internal/domain"
	"github.com/phrazzld/mailroom/internal/platform/provider"
	"github.com/phrazzld/mailroom/internal/render"
	"github.com/phrazzld/mailroom/internal/session"
	"github.com/phrazzld/mailroom/internal/source"
	"github.com/phrazzld/mailroom/internal/triage"
	"github.com/spf13/cobra"
)

type processOptions struct {
	decisions string
	out       string
	search    string
}

func newProcessCmd(root *rootOptions) *cobra.Command {
	opts := &processOptions{}
	cmd := &cobra.Command{
		Use:   "process",
		Short: "Generate summaries and drafts for unread mail and write a review report",
		Long: `process lists unread items from the configured source, generates a summary
for each and a reply draft for those that need one, then writes a JSON report.

With --decisions, a YAML file of review steps (accept, skip, edit, refine) is
applied before the report is written. Nothing is accepted otherwise.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := initializeApp(root, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			return a.process(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&opts.decisions, "decisions", "", "YAML file of review decisions to apply")
	cmd.Flags().StringVarP(&opts.out, "out", "o", "", "Write the report to this file instead of stdout")
	cmd.Flags().StringVar(&opts.search, "search", "", "Only process items whose sender, subject or body match")
	return cmd
}

func (a *app) process(ctx context.Context, opts *processOptions, stdout io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	var decisions []triage.Decision
	if opts.decisions != "" {
		d, err := triage.LoadDecisions(opts.decisions)
		if err != nil {
			return err
		}
		decisions = d
	}

	src, closeSource, err := a.openSource(ctx)
	if err != nil {
		return err
	}
	defer closeSource()

	items, err := a.listItems(ctx, src, opts.search)
	if err != nil {
		return err
	}
	a.logger.Info("items loaded", "count", len(items))

	gen, err := provider.New(ctx, a.cfg.LLM, a.logger)
	if err != nil {
		return err
	}
	sessions := session.NewTracker(session.NewFileStore(a.cfg.Session.Path), a.logger)

	coord := triage.New(ctx, items, gen, sessions, src, triage.Config{
		MaxConcurrent: a.cfg.Scheduler.MaxConcurrent,
		MaxTurns:      a.cfg.Scheduler.MaxTurns,
	}, a.logger)
	if err := coord.Start(); err != nil {
		a.logger.Warn("some items were rejected by the generation scheduler", "error", err)
	}
	coord.WaitForGeneration()

	var applyErr error
	if len(decisions) > 0 {
		applyErr = coord.Apply(ctx, decisions)
	}

	tracker := coord.Tracker()
	report := render.Report{
		GeneratedAt: time.Now().UTC(),
		Status:      tracker.Status(),
		Stats:       tracker.Stats(),
		TotalCost:   coord.TotalCost(),
		Items:       tracker.Items(),
	}
	coord.Shutdown()

	if err := a.writeReport(report, opts.out, stdout); err != nil {
		return err
	}

	a.logger.Info("processing finished",
		"total", report.Stats.Total,
		"accepted", report.Stats.Accepted,
		"skipped", report.Stats.Skipped,
		"refinements", report.Stats.Refinements,
		"total_cost", report.TotalCost)
	if applyErr != nil {
		return fmt.Errorf("some decisions were not applied: %w", applyErr)
	}
	return nil
}

func (a *app) listItems(ctx context.Context, src source.Source, query string) ([]domain.Item, error) {
	if query == "" {
		items, err := src.ListUnprocessed(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list unread items: %w", err)
		}
		return items, nil
	}
	items, err := src.Search(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to search items: %w", err)
	}
	return items, nil
}

func (a *app) writeReport(report render.Report, path string, stdout io.Writer) (err error) {
	if path == "" {
		return render.WriteReport(stdout, report)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	defer func() {
		err = errors.Join(err, f.Close())
	}()
	a.logger.Info("writing report", "path", path)
	return render.WriteReport(f, report)
}
