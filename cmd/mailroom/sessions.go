package main

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/phrazzld/mailroom/internal/session"
	"github.com/spf13/cobra"
)

type sessionsReport struct {
	Sessions     []session.Snapshot `json:"sessions"`
	TotalTurns   int                `json:"totalTurns"`
	TotalCost    float64            `json:"totalCost"`
	SnapshotPath string             `json:"snapshotPath"`
}

func newSessionsCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "Print persisted refinement session metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := initializeApp(root, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			snaps, err := session.NewFileStore(a.cfg.Session.Path).All()
			if err != nil {
				return fmt.Errorf("failed to read session snapshots: %w", err)
			}

			report := sessionsReport{
				Sessions:     make([]session.Snapshot, 0, len(snaps)),
				SnapshotPath: a.cfg.Session.Path,
			}
			for _, snap := range snaps {
				report.Sessions = append(report.Sessions, snap)
				report.TotalTurns += snap.TurnCount
				report.TotalCost += snap.TotalCost
			}
			sort.Slice(report.Sessions, func(i, j int) bool {
				return report.Sessions[i].ItemID < report.Sessions[j].ItemID
			})

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}
}
