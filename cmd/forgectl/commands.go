package main

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"campaign-forge-api/internal/config"
	"campaign-forge-api/pkg/logger"
)

type rootOptions struct {
	configDir string
	cfg       *config.Config
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "forgectl",
		Short:         "Operational tooling for the campaign forge API",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			_ = godotenv.Load()
			var (
				cfg *config.Config
				err error
			)
			if opts.configDir != "" {
				cfg, err = config.LoadFrom(opts.configDir)
			} else {
				cfg, err = config.Load()
			}
			if err != nil {
				return err
			}
			logger.InitWithWriter(cmd.ErrOrStderr(), cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)
			opts.cfg = cfg
			return nil
		},
	}
	root.PersistentFlags().StringVar(&opts.configDir, "config-dir", "", "directory containing config.yaml (defaults to ./configs)")

	root.AddCommand(
		newTemplatesCmd(opts),
		newGroundCmd(opts),
		newBudgetCmd(opts),
		newSourcesCmd(opts),
		newIndexCmd(opts),
	)
	return root
}
