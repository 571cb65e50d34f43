package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"campaign-forge-api/internal/application/grounding"
	"campaign-forge-api/internal/wire"
)

func newGroundCmd(opts *rootOptions) *cobra.Command {
	var campaignID string

	cmd := &cobra.Command{
		Use:   "ground [file|-]",
		Short: "Ground a text against the indexed sources and print citations as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readInput(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			tools, cleanup, err := wire.InitializeIndexTools(ctx, opts.cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			grounder := grounding.NewCombinedGrounder(
				grounding.NewRulebookLinker(tools.Engine),
				grounding.NewFlavourSearcher(tools.Engine),
				nil,
			)
			grounded, err := grounder.Ground(ctx, text, campaignID)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(grounded)
		},
	}
	cmd.Flags().StringVar(&campaignID, "campaign", "", "campaign id used for campaign-scoped passages")
	return cmd
}

func readInput(stdin io.Reader, name string) (string, error) {
	var (
		data []byte
		err  error
	)
	if name == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(name)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return string(data), nil
}
