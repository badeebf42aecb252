package main

import (
	"fmt"
	"time"

	"modupdater/internal/config"
	"modupdater/internal/history"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newHistoryCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent update attempts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			if !config.GetBool(config.KeyHistoryEnabled) {
				_, _ = fmt.Fprintln(out, "Update history is disabled.")
				return nil
			}
			store, err := history.Open(cmd.Context(), config.GetString(config.KeyHistoryPath))
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if !cmd.Flags().Changed("limit") {
				limit = config.GetInt(config.KeyHistoryLimit)
			}
			attempts, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(attempts) == 0 {
				_, _ = fmt.Fprintf(out, "No update attempts recorded in %s.\n", store.Path())
				return nil
			}
			_, _ = fmt.Fprintln(out, renderHistory(attempts))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", config.DefaultHistoryLimit, "Number of attempts to show (default: history.limit)")
	return cmd
}

func renderHistory(attempts []history.Attempt) string {
	rows := make([][]string, 0, len(attempts))
	for _, a := range attempts {
		size := "-"
		if a.Bytes > 0 {
			size = humanize.Bytes(uint64(a.Bytes))
		}
		rows = append(rows, []string{
			humanize.Time(a.FinishedAt),
			a.Name,
			fmt.Sprintf("%s > %s", a.FromVersion, a.ToVersion),
			a.Result,
			size,
			a.Duration().Round(10 * time.Millisecond).String(),
			a.Error,
		})
	}
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(styleTableBorder).
		Headers("WHEN", "MOD", "VERSION", "RESULT", "SIZE", "TOOK", "ERROR").
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return styleTableHeader
			}
			return styleTableCell
		}).
		Render()
}
