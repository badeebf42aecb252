package session

import (
	"fmt"
	"sync/atomic"

	"modupdater/internal/update"
)

// State is the position of a candidate in the update pipeline.
type State int32

const (
	StateIdle State = iota
	StateDownloading
	StateVerifying
	StateInstalling
	StateUpdated
	StateFailed
)

// String returns the lower-case label used in row statuses.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDownloading:
		return "downloading"
	case StateVerifying:
		return "verifying"
	case StateInstalling:
		return "installing"
	case StateUpdated:
		return "updated"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Active reports whether a task is working on the candidate.
func (s State) Active() bool {
	return s == StateDownloading || s == StateVerifying || s == StateInstalling
}

// Outcome summarises the last refresh.
type Outcome int

const (
	// OutcomePending means no refresh has completed yet.
	OutcomePending Outcome = iota
	// OutcomeError means the catalog or installed list could not be loaded.
	OutcomeError
	// OutcomeNoUpdates means every installed mod matches the catalog.
	OutcomeNoUpdates
	// OutcomeUpdates means at least one candidate exists.
	OutcomeUpdates
)

func (o Outcome) String() string {
	switch o {
	case OutcomeError:
		return "error"
	case OutcomeNoUpdates:
		return "no-updates"
	case OutcomeUpdates:
		return "updates"
	default:
		return "pending"
	}
}

// RestartFlag records that an archive was touched and the game must restart.
// Once set it never clears.
type RestartFlag struct {
	set atomic.Bool
}

// Set raises the flag.
func (f *RestartFlag) Set() {
	f.set.Store(true)
}

// IsSet reports whether the flag has been raised.
func (f *RestartFlag) IsSet() bool {
	return f.set.Load()
}

// Entry is one update candidate plus its live pipeline state. State and
// Status may be read from any goroutine while a task runs.
type Entry struct {
	candidate update.Candidate
	state     atomic.Int32
	status    atomic.Pointer[string]
	progress  atomic.Pointer[update.Progress]
}

func newEntry(c update.Candidate) *Entry {
	e := &Entry{candidate: c}
	e.set(StateIdle, "")
	return e
}

// Candidate returns the detected update.
func (e *Entry) Candidate() update.Candidate {
	return e.candidate
}

// Name returns the mod name.
func (e *Entry) Name() string {
	return e.candidate.Name()
}

// State returns the current pipeline state.
func (e *Entry) State() State {
	return State(e.state.Load())
}

// Status returns the live status text, or the candidate label when idle.
func (e *Entry) Status() string {
	if s := e.status.Load(); s != nil && *s != "" {
		return *s
	}
	return e.candidate.Label()
}

// Progress returns the latest download snapshot while downloading.
func (e *Entry) Progress() (update.Progress, bool) {
	p := e.progress.Load()
	if p == nil || e.State() != StateDownloading {
		return update.Progress{}, false
	}
	return *p, true
}

// Triggerable reports whether a guided update can start for this entry.
func (e *Entry) Triggerable() bool {
	if !e.candidate.SingleHash() {
		return false
	}
	state := e.State()
	return state == StateIdle || state == StateFailed
}

func (e *Entry) set(state State, status string) {
	if state != StateDownloading {
		e.progress.Store(nil)
	}
	e.setStatus(status)
	e.state.Store(int32(state))
}

func (e *Entry) setProgress(p update.Progress) {
	e.progress.Store(&p)
	e.setStatus(fmt.Sprintf("%s (%s)", e.Name(), p))
}

func (e *Entry) setStatus(status string) {
	e.status.Store(&status)
}

func (e *Entry) statusFor(state State) string {
	return fmt.Sprintf("%s (%s)", e.Name(), state)
}
