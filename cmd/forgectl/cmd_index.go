package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"campaign-forge-api/internal/wire"
)

func newIndexCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Maintain the passage collection",
	}

	rebuild := &cobra.Command{
		Use:   "rebuild",
		Short: "Drop and recreate the HNSW index on the passage collection",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			tools, cleanup, err := wire.InitializeIndexTools(ctx, opts.cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := tools.Vectors.RebuildIndex(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "index rebuilt")
			return nil
		},
	}

	cmd.AddCommand(rebuild)
	return cmd
}
