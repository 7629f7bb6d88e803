package main

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/david/funding-monitor/internal/crawl"
	"github.com/david/funding-monitor/internal/models"
)

var seedFile string

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Inspect and seed crawl sources",
}

var sourcesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all sources",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := openEnvironment(cmd.Context())
		if err != nil {
			return err
		}
		defer env.close()

		list, err := env.db.ListSources(cmd.Context())
		if err != nil {
			return err
		}
		renderSources(cmd.OutOrStdout(), list)
		return nil
	},
}

var sourcesSeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Insert the registry sources that are not in the database yet",
	Long:  "Reads the sources registry (the embedded default or --file), expands ${VARS} and inserts every source whose url is unknown.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := crawl.LoadRegistry(seedFile)
		if err != nil {
			return err
		}
		inserts := reg.Inserts()

		env, err := openEnvironment(cmd.Context())
		if err != nil {
			return err
		}
		defer env.close()

		added, err := env.db.SeedSources(cmd.Context(), inserts)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d of %d sources\n", added, len(inserts))
		return nil
	},
}

func init() {
	sourcesSeedCmd.Flags().StringVar(&seedFile, "file", "", "YAML registry to seed from")
	sourcesCmd.AddCommand(sourcesListCmd, sourcesSeedCmd)
	rootCmd.AddCommand(sourcesCmd)
}

func renderSources(w io.Writer, list []models.Source) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"ID", "Name", "Type", "Active", "Last Crawl", "URL"})
	for _, src := range list {
		sourceType := crawl.SourceType(src)
		lastCrawl := "never"
		if src.LastCrawledAt != nil {
			lastCrawl = src.LastCrawledAt.Local().Format("2006-01-02 15:04")
		}
		t.AppendRow(table.Row{src.ID, src.Name, sourceType, src.IsActive, lastCrawl, src.URL})
	}
	t.AppendFooter(table.Row{"", fmt.Sprintf("%d sources", len(list))})
	t.Render()
}
