package main

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/david/funding-monitor/internal/fundingcalls"
)

var (
	callsAll   bool
	callsLimit int
)

var callsCmd = &cobra.Command{
	Use:   "calls",
	Short: "Inspect funding calls",
}

var callsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List funding calls the way the dashboard shows them",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := openEnvironment(cmd.Context())
		if err != nil {
			return err
		}
		defer env.close()

		rows, err := env.db.ListFundingCalls(cmd.Context())
		if err != nil {
			return err
		}
		calls := fundingcalls.NormalizeAll(rows)
		fundingcalls.Sort(calls)

		view := fundingcalls.BuildView(calls, fundingcalls.NewOverrides(), !callsAll)
		renderCalls(cmd.OutOrStdout(), view, callsLimit, time.Now())
		return nil
	},
}

func init() {
	callsListCmd.Flags().BoolVar(&callsAll, "all", false, "Include calls that are not relevant")
	callsListCmd.Flags().IntVar(&callsLimit, "limit", 50, "Maximum rows to print (0 for all)")
	callsCmd.AddCommand(callsListCmd)
	rootCmd.AddCommand(callsCmd)
}

func renderCalls(w io.Writer, view fundingcalls.View, limit int, now time.Time) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"ID", "Title", "Deadline", "Amount", "Score", "Relevant"})

	rows := view.Rows
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	for _, row := range rows {
		deadline := fundingcalls.FormatDeadline(row.DisplayDeadline, now)
		deadlineText := deadline.Text
		if deadline.Caption != "" {
			deadlineText += " (" + deadline.Caption + ")"
		}
		amount := "-"
		if row.FundingAmount != nil {
			amount = *row.FundingAmount
		}
		score := "-"
		if row.RelevanceInfo.Score != nil {
			score = fmt.Sprintf("%.2f", *row.RelevanceInfo.Score)
		}
		t.AppendRow(table.Row{row.ID, shorten(row.Title, 60), deadlineText, amount, score, row.EffectiveRelevant})
	}
	t.AppendFooter(table.Row{"", fmt.Sprintf("%d of %d shown", len(rows), view.Total)})
	t.Render()
}

func shorten(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
