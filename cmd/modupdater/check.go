package main

import (
	"fmt"
	"io"
	"strings"

	"modupdater/internal/session"
	"modupdater/internal/update"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

const markdownWrap = 100

var (
	styleTableHeader = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	styleTableCell   = lipgloss.NewStyle().Padding(0, 1)
	styleTableBorder = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

func newCheckCmd() *cobra.Command {
	var (
		markdown bool
		style    string
	)
	cmd := &cobra.Command{
		Use:   "check",
		Short: "List installed mods with a newer catalog version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env := newEnvironment(cmd.Context())
			defer env.Close()

			outcome, entries, err := env.refresh(cmd.Context())
			if outcome == session.OutcomeError || err != nil {
				return fmt.Errorf("check for updates: %w", err)
			}

			out := cmd.OutOrStdout()
			if outcome == session.OutcomeNoUpdates {
				_, _ = fmt.Fprintln(out, "No updates available.")
				return nil
			}
			candidates := make([]update.Candidate, 0, len(entries))
			for _, e := range entries {
				candidates = append(candidates, e.Candidate())
			}
			if markdown {
				return renderMarkdown(out, candidates, style)
			}
			_, _ = fmt.Fprintln(out, renderTable(candidates))
			return nil
		},
	}
	cmd.Flags().BoolVar(&markdown, "markdown", false, "Render the list as markdown")
	cmd.Flags().StringVar(&style, "style", "dark", "Markdown style (dark, light, notty, ascii)")
	return cmd
}

func renderTable(candidates []update.Candidate) string {
	rows := make([][]string, 0, len(candidates))
	for _, c := range candidates {
		rows = append(rows, []string{
			c.Name(),
			c.Installed.Version,
			c.Metadata.Version,
			c.Metadata.LastUpdateTime().Format("2006-01-02"),
			c.Change().String(),
			formatSize(c.Metadata.Size),
			updateMode(c),
		})
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(styleTableBorder).
		Headers("MOD", "INSTALLED", "LATEST", "RELEASED", "CHANGE", "SIZE", "UPDATE").
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return styleTableHeader
			}
			return styleTableCell
		})
	return t.Render()
}

func renderMarkdown(w io.Writer, candidates []update.Candidate, style string) error {
	var b strings.Builder
	b.WriteString("# Available updates\n\n")
	b.WriteString("| Mod | Installed | Latest | Released | Update |\n")
	b.WriteString("|---|---|---|---|---|\n")
	for _, c := range candidates {
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n",
			c.Name(),
			c.Installed.Version,
			c.Metadata.Version,
			humanize.Time(c.Metadata.LastUpdateTime()),
			updateMode(c),
		)
	}
	for _, c := range candidates {
		if !c.SingleHash() {
			fmt.Fprintf(&b, "\n- **%s** must be updated by hand: <%s>\n", c.Name(), c.Metadata.URL)
		}
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(markdownWrap),
	)
	if err != nil {
		return fmt.Errorf("create markdown renderer: %w", err)
	}
	rendered, err := renderer.Render(b.String())
	if err != nil {
		return fmt.Errorf("render markdown: %w", err)
	}
	_, err = io.WriteString(w, rendered)
	return err
}

func updateMode(c update.Candidate) string {
	if c.SingleHash() {
		return "auto"
	}
	return fmt.Sprintf("manual (%d downloads)", len(c.Metadata.Hashes))
}

func formatSize(size int64) string {
	if size <= 0 {
		return "-"
	}
	return humanize.Bytes(uint64(size))
}
