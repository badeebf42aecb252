package main

import (
	"context"
	"fmt"

	"modupdater/internal/config"
	"modupdater/internal/logging"
	"modupdater/internal/ui"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

type programRunner interface {
	Run() (tea.Model, error)
}

type programFactory func(*ui.App) programRunner

func defaultProgramFactory(app *ui.App) programRunner {
	return tea.NewProgram(app, tea.WithAltScreen())
}

// runInteractive shows the update list. Logs move to a file while the
// program owns the terminal.
func runInteractive(cmd *cobra.Command, factory programFactory) error {
	if err := logging.Init(logging.Options{
		Level: logLevel(cmd.Flags()),
		File:  config.GetString(config.KeyLogFile),
	}); err != nil {
		return err
	}
	defer logging.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	env := newEnvironment(ctx)
	defer env.Close()

	app, err := ui.NewApp(ui.Config{
		Orchestrator: env.orch,
		Version:      Version,
		Context:      ctx,
	})
	if err != nil {
		return fmt.Errorf("initialize UI: %w", err)
	}
	runErr := runProgram(app, factory)

	// The program may end while an update is still installing. Abandon any
	// refresh, then let the install finish before the registry and the
	// history store are closed.
	cancel()
	if env.orch.Busy() {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Waiting for the running update to finish...")
	}
	env.orch.Wait()

	if runErr != nil {
		return runErr
	}
	if app.RestartRequested() {
		return restartGame(cmd.OutOrStdout(), env.restarter)
	}
	return nil
}

func runProgram(app *ui.App, factory programFactory) error {
	if factory == nil {
		return fmt.Errorf("program factory is nil")
	}
	prog := factory(app)
	if prog == nil {
		return fmt.Errorf("program is nil")
	}
	if _, err := prog.Run(); err != nil {
		return fmt.Errorf("run UI: %w", err)
	}
	return nil
}
