package main

import (
	"fmt"

	"github.com/phrazzld/mailroom/internal/source"
	"github.com/spf13/cobra"
)

func newImportCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <mailbox.yaml>",
		Short: "Copy unread items from a YAML mailbox into the SQL store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := initializeApp(root, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if a.cfg.Source.Kind == "file" {
				return fmt.Errorf("import needs a sqlite or postgres source, configured source is %q", a.cfg.Source.Kind)
			}

			ctx := cmd.Context()
			mailbox, err := source.LoadFile(args[0], a.logger)
			if err != nil {
				return err
			}
			items, err := mailbox.ListUnprocessed(ctx)
			if err != nil {
				return err
			}

			s, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			n, err := s.Insert(ctx, items...)
			if err != nil {
				return fmt.Errorf("failed to import items: %w", err)
			}
			a.logger.Info("mailbox imported", "read", len(items), "inserted", n)
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d of %d items\n", n, len(items))
			return nil
		},
	}
}
