package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show row counts and the last crawl time",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := openEnvironment(cmd.Context())
		if err != nil {
			return err
		}
		defer env.close()

		stats, err := env.db.GetStats(cmd.Context())
		if err != nil {
			return err
		}

		keys := make([]string, 0, len(stats))
		for k := range stats {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		t := table.NewWriter()
		t.SetOutputMirror(cmd.OutOrStdout())
		t.AppendHeader(table.Row{"Metric", "Value"})
		for _, k := range keys {
			t.AppendRow(table.Row{k, statValue(stats[k])})
		}
		t.Render()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func statValue(v interface{}) string {
	switch val := v.(type) {
	case *time.Time:
		if val == nil {
			return "never"
		}
		return val.Local().Format("2006-01-02 15:04")
	case nil:
		return "-"
	default:
		return fmt.Sprint(val)
	}
}
