package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"campaign-forge-api/internal/application/generation"
)

func newTemplatesCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "templates",
		Short: "Inspect generation templates",
	}

	check := &cobra.Command{
		Use:   "check [dir]",
		Short: "Parse and validate every template in a directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := opts.cfg.Generation.TemplateDir
			if len(args) == 1 {
				dir = args[0]
			}
			reg, err := generation.LoadTemplateRegistry(dir)
			if err != nil {
				return err
			}
			return printTemplates(cmd.OutOrStdout(), reg.List())
		},
	}

	cmd.AddCommand(check)
	return cmd
}

func printTemplates(w io.Writer, templates []*generation.Template) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TYPE\tID\tVERSION\tMAX TOKENS\tREQUIRED")
	for _, t := range templates {
		maxTokens := "-"
		if t.MaxTokens != nil {
			maxTokens = fmt.Sprintf("%d", *t.MaxTokens)
		}
		required := strings.Join(t.RequiredVariables(), ",")
		if required == "" {
			required = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", t.Type, t.ID, t.Version, maxTokens, required)
	}
	return tw.Flush()
}
