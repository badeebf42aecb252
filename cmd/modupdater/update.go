package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	apperrors "modupdater/internal/errors"
	"modupdater/internal/session"

	"github.com/cheggaaa/pb/v3"
	"github.com/spf13/cobra"
)

const pollInterval = 100 * time.Millisecond

func newUpdateCmd() *cobra.Command {
	var (
		all        bool
		noProgress bool
		restart    bool
	)
	cmd := &cobra.Command{
		Use:   "update [mod...]",
		Short: "Download, verify and install updates",
		Long: `Update the named mods, or every mod with a single download when --all
is given. Mods published with several downloads are skipped and their URL is
printed so they can be fetched by hand.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && !all {
				return errors.New("name at least one mod or pass --all")
			}
			ctx := cmd.Context()
			env := newEnvironment(ctx)
			defer env.Close()

			outcome, entries, err := env.refresh(ctx)
			if outcome == session.OutcomeError || err != nil {
				return fmt.Errorf("check for updates: %w", err)
			}

			out := cmd.OutOrStdout()
			targets, missing := selectEntries(entries, args, all)
			for _, name := range missing {
				_, _ = fmt.Fprintf(out, "%s: no update available\n", name)
			}
			if len(targets) == 0 {
				_, _ = fmt.Fprintln(out, "Nothing to update.")
				return nil
			}

			var progressOut io.Writer = cmd.ErrOrStderr()
			if noProgress {
				progressOut = nil
			}
			failed := 0
			for _, entry := range targets {
				if !entry.Candidate().SingleHash() {
					_, _ = fmt.Fprintf(out, "%s: several downloads published, update by hand from %s\n",
						entry.Name(), entry.Candidate().Metadata.URL)
					continue
				}
				if err := runUpdate(ctx, env.orch, entry, progressOut); err != nil {
					failed++
					hint := ""
					if apperrors.Transient(err) {
						hint = " (try again later)"
					}
					_, _ = fmt.Fprintf(out, "%s: failed: %v%s\n", entry.Name(), err, hint)
					continue
				}
				_, _ = fmt.Fprintf(out, "%s: updated to %s\n", entry.Name(), entry.Candidate().Metadata.Version)
			}

			if env.orch.RestartRequired() {
				if restart {
					if err := restartGame(out, env.restarter); err != nil {
						return err
					}
				} else {
					_, _ = fmt.Fprintln(out, "Restart the game to load the updated mods.")
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d update(s) failed", failed)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Update every mod that can be updated automatically")
	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "Hide the progress bar")
	cmd.Flags().BoolVar(&restart, "restart", false, "Relaunch the game afterwards")
	return cmd
}

// selectEntries returns the entries to update and the requested names that
// have no update.
func selectEntries(entries []*session.Entry, names []string, all bool) ([]*session.Entry, []string) {
	if all {
		return entries, nil
	}
	byName := make(map[string]*session.Entry, len(entries))
	for _, e := range entries {
		byName[e.Name()] = e
	}
	var (
		selected []*session.Entry
		missing  []string
	)
	seen := map[string]bool{}
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true
		if e, ok := byName[name]; ok {
			selected = append(selected, e)
		} else {
			missing = append(missing, name)
		}
	}
	return selected, missing
}

// runUpdate starts the pipeline for entry and polls it until done, mirroring
// the download progress onto a terminal bar when out is non-nil.
func runUpdate(ctx context.Context, orch *session.Orchestrator, entry *session.Entry, out io.Writer) error {
	task, err := orch.StartUpdate(ctx, entry.Name())
	if err != nil {
		return err
	}

	var bar *pb.ProgressBar
	if out != nil {
		bar = pb.Full.New(0)
		bar.SetWriter(out)
		bar.Set(pb.Bytes, true)
		bar.Set("prefix", entry.Name()+" ")
		bar.Start()
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for !task.IsDone() {
		select {
		case <-ticker.C:
		case <-task.Done():
		}
		if bar == nil {
			continue
		}
		if p, ok := entry.Progress(); ok {
			if p.LengthKnown() {
				bar.SetTotal(p.Total)
			}
			bar.SetCurrent(p.Written)
		}
	}
	if bar != nil {
		bar.Finish()
	}
	return task.Err()
}
