package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"modupdater/internal/catalog"
	"modupdater/internal/config"
	apperrors "modupdater/internal/errors"
	"modupdater/internal/history"
	"modupdater/internal/host"
	"modupdater/internal/logging"
	"modupdater/internal/session"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var log = logging.L("cli")

// flagKeys maps persistent flags onto configuration keys. A flag only
// overrides configuration when it was set on the command line.
var flagKeys = map[string]string{
	"catalog-url":     config.KeyCatalogURL,
	"game-dir":        config.KeyGameDir,
	"mods-dir":        config.KeyModsDir,
	"history-path":    config.KeyHistoryPath,
	"log-level":       config.KeyLogLevel,
	"restart-command": config.KeyRestartCommand,
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "modupdater",
		Short: "Check installed mods for updates and install them",
		Long: `modupdater compares the mod archives installed in the game's Mods
directory against the community update catalog, then downloads, verifies and
installs newer archives.

Run without a subcommand for the interactive list.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.Initialize(); err != nil {
				return apperrors.New(apperrors.CodeConfigurationError, fmt.Sprintf("initialize config: %v", err), err)
			}
			if err := config.ApplyOverrides(collectOverrides(cmd.Flags())); err != nil {
				return apperrors.New(apperrors.CodeConfigurationError, fmt.Sprintf("apply flags: %v", err), err)
			}
			return logging.Init(logging.Options{
				Level:  logLevel(cmd.Flags()),
				Output: cmd.ErrOrStderr(),
			})
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInteractive(cmd, defaultProgramFactory)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.String("catalog-url", config.DefaultCatalogURL, "Update catalog URL")
	flags.String("game-dir", "", "Game directory (default: working directory)")
	flags.String("mods-dir", "", "Mods directory (default: <game-dir>/Mods)")
	flags.String("history-path", "", "Update history database")
	flags.Bool("no-history", false, "Do not record update attempts")
	flags.String("restart-command", "", "Command used to relaunch the game")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.BoolP("verbose", "v", false, "Enable verbose logging")

	rootCmd.AddCommand(newCheckCmd(), newUpdateCmd(), newHistoryCmd(), newVersionCmd())
	return rootCmd
}

func collectOverrides(fs *pflag.FlagSet) map[string]any {
	overrides := map[string]any{}
	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil || !f.Changed {
			continue
		}
		overrides[key] = strings.TrimSpace(f.Value.String())
	}
	if noHistory, err := fs.GetBool("no-history"); err == nil && noHistory {
		overrides[config.KeyHistoryEnabled] = false
	}
	return overrides
}

func logLevel(fs *pflag.FlagSet) string {
	if verbose, err := fs.GetBool("verbose"); err == nil && verbose {
		return "debug"
	}
	return config.GetString(config.KeyLogLevel)
}

// environment is the set of collaborators every command works with.
type environment struct {
	orch      *session.Orchestrator
	registry  *host.DirRegistry
	history   *history.Store
	restarter *host.Restarter
}

func newEnvironment(ctx context.Context) *environment {
	client := catalog.NewClient(
		config.GetString(config.KeyCatalogURL),
		catalog.WithTimeout(config.CatalogTimeout()),
	)
	registry := host.NewDirRegistry(config.ModsDir())

	env := &environment{
		registry:  registry,
		restarter: host.NewRestarter(config.GetString(config.KeyRestartCommand), config.GameDir()),
	}

	var opts []session.Option
	if config.GetBool(config.KeyHistoryEnabled) {
		store, err := history.Open(ctx, config.GetString(config.KeyHistoryPath))
		if err != nil {
			log.WithError(err).Warn("update history unavailable")
		} else {
			env.history = store
			opts = append(opts, session.WithRecorder(store))
		}
	}

	env.orch = session.New(client, registry, config.GameDir(), opts...)
	log.WithField("mods", registry.Dir()).WithField("catalog", client.URL()).Debug("environment ready")
	return env
}

func (e *environment) Close() {
	if e.history != nil {
		_ = e.history.Close()
	}
	_ = e.registry.Close()
}

// refresh runs a refresh to completion.
func (e *environment) refresh(ctx context.Context) (session.Outcome, []*session.Entry, error) {
	task, err := e.orch.Refresh(ctx)
	if err != nil {
		return session.OutcomePending, nil, err
	}
	err = task.Wait()
	outcome, entries := e.orch.Result()
	return outcome, entries, err
}

// restartGame relaunches the game, or tells the user to when no command is set.
func restartGame(w io.Writer, r *host.Restarter) error {
	if !r.Configured() {
		_, _ = fmt.Fprintln(w, "Restart the game to load the updated mods.")
		return nil
	}
	_, _ = fmt.Fprintln(w, "Restarting the game...")
	return r.Restart()
}
