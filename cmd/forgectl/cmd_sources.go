package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"campaign-forge-api/internal/application/retrieval"
	"campaign-forge-api/internal/wire"
	"campaign-forge-api/pkg/logger"
)

func newSourcesCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sources",
		Short: "Manage rulebook and lore sources in the vector index",
	}

	ingest := &cobra.Command{
		Use:   "ingest <file.yaml>...",
		Short: "Chunk, embed and index source documents described in YAML",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			docs := make([]*retrieval.SourceDocument, 0, len(args))
			for _, path := range args {
				doc, err := loadSourceDocument(path)
				if err != nil {
					return err
				}
				docs = append(docs, doc)
			}

			ctx := cmd.Context()
			tools, cleanup, err := wire.InitializeIndexTools(ctx, opts.cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			for _, doc := range docs {
				stats, err := tools.Indexer.IndexDocument(ctx, doc)
				if err != nil {
					return fmt.Errorf("failed to index %s: %w", doc.SourceID, err)
				}
				logger.Info(ctx, "source indexed", "source_id", doc.SourceID, "doc_id", stats.DocID, "passages", stats.Passages)
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d passages\n", doc.SourceID, stats.Passages)
			}
			return nil
		},
	}

	cmd.AddCommand(ingest)
	return cmd
}

func loadSourceDocument(path string) (*retrieval.SourceDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	var doc retrieval.SourceDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if doc.SourceID == "" {
		return nil, fmt.Errorf("%s: source_id is required", path)
	}
	if len(doc.Sections) == 0 {
		return nil, fmt.Errorf("%s: at least one section is required", path)
	}
	return &doc, nil
}
