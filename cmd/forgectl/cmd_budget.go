package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"campaign-forge-api/internal/application/generation"
	"campaign-forge-api/internal/wire"
)

func newBudgetCmd(opts *rootOptions) *cobra.Command {
	var (
		genType  string
		freeText string
		vars     map[string]string
	)

	cmd := &cobra.Command{
		Use:   "budget",
		Short: "Preview how the configured token budget is split across context sections",
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg, err := generation.LoadTemplateRegistry(opts.cfg.Generation.TemplateDir)
			if err != nil {
				return err
			}
			tpl, err := reg.Get(generation.Type(genType))
			if err != nil {
				return err
			}
			rendered, err := tpl.Render(vars)
			if err != nil {
				return err
			}

			budget := wire.OrchestratorConfig(&opts.cfg.Generation).Budget
			assembled, err := generation.NewContextAssembler().Assemble(generation.AssembleInput{
				Template: rendered,
				Request: &generation.Request{
					Type:     generation.Type(genType),
					FreeText: freeText,
				},
				Budget: budget,
			})
			if err != nil {
				return err
			}
			return printBudget(cmd.OutOrStdout(), assembled)
		},
	}
	cmd.Flags().StringVar(&genType, "type", "npc", "generation type (character, npc, session, party, arc)")
	cmd.Flags().StringVar(&freeText, "text", "", "free text context for the request section")
	cmd.Flags().StringToStringVar(&vars, "var", nil, "template variable, repeatable (key=value)")
	return cmd
}

func printBudget(w io.Writer, c *generation.AssembledContext) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SECTION\tPRIORITY\tTOKENS\tHEADER\tTRUNCATED")
	for _, s := range c.Sections {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%t\n", s.Kind, s.Priority, s.TokenCount, s.HeaderTokens, s.Truncated)
	}
	for _, kind := range c.Dropped {
		fmt.Fprintf(tw, "%s\t-\t0\t0\tdropped\n", kind)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\ntotal %d of %d available (%d reserved for completion)\n",
		c.TotalTokens, c.Budget.MaxTotalTokens-c.Budget.ReservedForCompletion, c.Budget.ReservedForCompletion)
	return err
}
