package host

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// ErrNoRestartCommand is returned when no game command is configured.
var ErrNoRestartCommand = errors.New("no restart command configured")

// Restarter relaunches the game so replaced archives get loaded.
type Restarter struct {
	command string
	dir     string
	start   func(*exec.Cmd) error
}

// NewRestarter creates a restarter running command (split on whitespace) from dir.
func NewRestarter(command, dir string) *Restarter {
	return &Restarter{
		command: strings.TrimSpace(command),
		dir:     dir,
		start:   func(cmd *exec.Cmd) error { return cmd.Start() },
	}
}

// Configured reports whether a command is available.
func (r *Restarter) Configured() bool {
	return r != nil && r.command != ""
}

// Restart launches the game detached from this process.
func (r *Restarter) Restart() error {
	if !r.Configured() {
		return ErrNoRestartCommand
	}
	fields := strings.Fields(r.command)
	//nolint:gosec // G204: command comes from the user's own configuration
	cmd := exec.Command(fields[0], fields[1:]...)
	cmd.Dir = r.dir
	cmd.Env = os.Environ()
	if err := r.start(cmd); err != nil {
		return fmt.Errorf("start %s: %w", fields[0], err)
	}
	if cmd.Process != nil {
		_ = cmd.Process.Release()
	}
	log.WithField("command", r.command).Info("restarted game")
	return nil
}
