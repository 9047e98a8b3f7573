package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/phrazzld/mailroom/internal/config"
	"github.com/phrazzld/mailroom/internal/platform/logger"
	"github.com/phrazzld/mailroom/internal/source"
	"github.com/phrazzld/mailroom/internal/store"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:          "mailroom",
		Short:        "Summarize unread mail and draft replies for review",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "",
		"Path to a mailroom.yaml config file (default: ./mailroom.yaml or ~/.config/mailroom/mailroom.yaml)")

	cmd.AddCommand(
		newProcessCmd(opts),
		newImportCmd(opts),
		newSessionsCmd(opts),
		newExportCmd(),
	)
	return cmd
}

// app bundles what every command needs after startup.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
}

func initializeApp(opts *rootOptions, stderr io.Writer) (*app, error) {
	cfg, err := config.LoadFile(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	log, err := logger.SetupWithWriter(cfg.Log, stderr)
	if err != nil {
		return nil, fmt.Errorf("failed to set up logger: %w", err)
	}
	log.Debug("configuration loaded",
		"source_kind", cfg.Source.Kind,
		"llm_provider", cfg.LLM.Provider,
		"max_concurrent", cfg.Scheduler.MaxConcurrent,
		"max_turns", cfg.Scheduler.MaxTurns)
	return &app{cfg: cfg, logger: log}, nil
}

// openSource returns the configured mailbox and a function releasing it.
func (a *app) openSource(ctx context.Context) (source.Source, func(), error) {
	switch a.cfg.Source.Kind {
	case "file":
		src, err := source.LoadFile(a.cfg.Source.Path, a.logger)
		if err != nil {
			return nil, nil, err
		}
		return src, func() {}, nil
	default:
		s, err := a.openStore(ctx)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {
			if err := s.Close(); err != nil {
				a.logger.Error("failed to close store", "error", err)
			}
		}, nil
	}
}

func (a *app) openStore(ctx context.Context) (*store.SQLStore, error) {
	s, err := store.Open(ctx, store.Driver(a.cfg.Source.Kind), a.cfg.Source.DSN, a.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", a.cfg.Source.Kind, err)
	}
	return s, nil
}
