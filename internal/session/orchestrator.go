// Package session runs the mod update workflow in the background while a
// foreground loop polls it. At most one task (a refresh or an update) runs at
// a time; its results are published before the task reports done.
package session

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"modupdater/internal/catalog"
	apperrors "modupdater/internal/errors"
	"modupdater/internal/history"
	"modupdater/internal/host"
	"modupdater/internal/logging"
	"modupdater/internal/update"
)

// TempFileName is the fixed name of the download target inside the game dir.
const TempFileName = "mod-update.zip"

// Error variables for rejected requests.
var (
	ErrBusy        = fmt.Errorf("another task is running")
	ErrNotEligible = fmt.Errorf("update cannot be started for this mod")
	ErrUnknownMod  = fmt.Errorf("mod is not an update candidate")
)

var log = logging.L("session")

// CatalogSource fetches the remote catalog.
type CatalogSource interface {
	Fetch(ctx context.Context) (catalog.Catalog, error)
}

// Downloader streams an archive to a local path.
type Downloader interface {
	Download(ctx context.Context, url, dest string, onProgress update.ProgressFunc) (int64, error)
}

// Installer verifies and swaps archives.
type Installer interface {
	Verify(expected, path string) error
	Replace(downloaded, target, owner string) error
}

// Recorder stores update attempts.
type Recorder interface {
	Record(ctx context.Context, a history.Attempt) error
}

// Orchestrator owns the candidate list, the single background task and the
// restart flag.
type Orchestrator struct {
	source     CatalogSource
	registry   host.Registry
	downloader Downloader
	installer  Installer
	recorder   Recorder
	tempPath   string
	now        func() time.Time

	restart RestartFlag

	mu      sync.Mutex
	busy    *Task
	outcome Outcome
	entries []*Entry
	cat     catalog.Catalog
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithDownloader replaces the default HTTP downloader.
func WithDownloader(d Downloader) Option {
	return func(o *Orchestrator) {
		o.downloader = d
	}
}

// WithInstaller replaces the default installer.
func WithInstaller(i Installer) Option {
	return func(o *Orchestrator) {
		o.installer = i
	}
}

// WithRecorder enables history recording.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) {
		o.recorder = r
	}
}

// WithNow overrides the clock used for attempt timestamps.
func WithNow(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// New creates an orchestrator downloading into gameDir/mod-update.zip.
// When registry also releases handles it is used by the default installer.
func New(source CatalogSource, registry host.Registry, gameDir string, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		source:     source,
		registry:   registry,
		downloader: update.NewDownloader(),
		tempPath:   filepath.Join(gameDir, TempFileName),
		now:        time.Now,
	}
	var releaser host.HandleReleaser
	if r, ok := registry.(host.HandleReleaser); ok {
		releaser = r
	}
	o.installer = update.NewInstaller(releaser)
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// TempPath returns where downloads are written before install.
func (o *Orchestrator) TempPath() string {
	return o.tempPath
}

// RestartRequired reports whether any archive has been touched.
func (o *Orchestrator) RestartRequired() bool {
	return o.restart.IsSet()
}

// Busy reports whether a task is running.
func (o *Orchestrator) Busy() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.busy != nil
}

// Wait blocks until the running task, if any, has finished. Callers must
// wait before tearing down the registry or the recorder: an update started
// with StartUpdate keeps writing to both until it completes.
func (o *Orchestrator) Wait() {
	o.mu.Lock()
	task := o.busy
	o.mu.Unlock()
	if task != nil {
		<-task.Done()
	}
}

// Result returns the outcome of the last refresh and its entries.
func (o *Orchestrator) Result() (Outcome, []*Entry) {
	o.mu.Lock()
	defer o.mu.Unlock()
	entries := make([]*Entry, len(o.entries))
	copy(entries, o.entries)
	return o.outcome, entries
}

// Catalog returns the last fetched catalog, or nil.
func (o *Orchestrator) Catalog() catalog.Catalog {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.cat
}

// Entry looks up a candidate by mod name.
func (o *Orchestrator) Entry(name string) (*Entry, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	e := o.lookupLocked(name)
	return e, e != nil
}

// Refresh starts a background task that fetches the catalog, lists installed
// mods and recomputes the candidates. The previous result is discarded.
func (o *Orchestrator) Refresh(ctx context.Context) (*Task, error) {
	o.mu.Lock()
	if o.busy != nil {
		o.mu.Unlock()
		return nil, apperrors.New(apperrors.CodeBusy, ErrBusy.Error(), ErrBusy)
	}
	task := newTask()
	o.busy = task
	o.outcome = OutcomePending
	o.entries = nil
	o.cat = nil
	o.mu.Unlock()

	go o.run(task, func() error { return o.refresh(ctx) })
	return task, nil
}

// StartUpdate starts the download, verify and install pipeline for name.
// The pipeline runs to completion even if ctx is cancelled.
func (o *Orchestrator) StartUpdate(ctx context.Context, name string) (*Task, error) {
	o.mu.Lock()
	if o.busy != nil {
		o.mu.Unlock()
		return nil, apperrors.New(apperrors.CodeBusy, ErrBusy.Error(), ErrBusy)
	}
	entry := o.lookupLocked(name)
	if entry == nil {
		o.mu.Unlock()
		return nil, apperrors.New(apperrors.CodeNotFound, fmt.Sprintf("%v: %s", ErrUnknownMod, name), ErrUnknownMod)
	}
	if !entry.Triggerable() {
		o.mu.Unlock()
		return nil, apperrors.New(apperrors.CodeNotEligible, fmt.Sprintf("%v: %s", ErrNotEligible, name), ErrNotEligible)
	}
	task := newTask()
	o.busy = task
	entry.set(StateDownloading, entry.statusFor(StateDownloading))
	o.mu.Unlock()

	bg := context.WithoutCancel(ctx)
	go o.run(task, func() error { return o.update(bg, entry) })
	return task, nil
}

func (o *Orchestrator) run(task *Task, fn func() error) {
	err := fn()
	o.mu.Lock()
	o.busy = nil
	o.mu.Unlock()
	task.finish(err)
}

func (o *Orchestrator) lookupLocked(name string) *Entry {
	for _, e := range o.entries {
		if e.Name() == name {
			return e
		}
	}
	return nil
}

func (o *Orchestrator) refresh(ctx context.Context) error {
	log.Info("downloading catalog")
	cat, err := o.source.Fetch(ctx)
	if err != nil {
		log.WithError(err).Error("catalog download failed")
		o.publish(OutcomeError, nil, nil)
		return err
	}
	log.WithField("count", len(cat)).Info("catalog downloaded")

	installed, err := o.registry.Installed(ctx)
	if err != nil {
		log.WithError(err).Error("listing installed mods failed")
		o.publish(OutcomeError, cat, nil)
		return err
	}

	candidates := update.Detect(cat, installed)
	entries := make([]*Entry, 0, len(candidates))
	for _, c := range candidates {
		entries = append(entries, newEntry(c))
	}
	outcome := OutcomeUpdates
	if len(entries) == 0 {
		outcome = OutcomeNoUpdates
	}
	o.publish(outcome, cat, entries)
	return nil
}

func (o *Orchestrator) publish(outcome Outcome, cat catalog.Catalog, entries []*Entry) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcome = outcome
	o.cat = cat
	o.entries = entries
}

func (o *Orchestrator) update(ctx context.Context, entry *Entry) error {
	c := entry.Candidate()
	name := c.Name()
	entryLog := log.WithField(logging.KeyPackage, name)

	attempt := history.Attempt{
		Name:         name,
		FromVersion:  c.Installed.Version,
		ToVersion:    c.Metadata.Version,
		ExpectedHash: c.ExpectedHash(),
		URL:          c.Metadata.URL,
		StartedAt:    o.now(),
	}

	written, err := o.apply(ctx, entry)
	attempt.FinishedAt = o.now()
	attempt.Bytes = written

	if err != nil {
		entryLog.WithError(err).WithField("code", apperrors.CodeOf(err)).Error("update failed")
		entry.set(StateFailed, entry.statusFor(StateFailed))
		o.removeTemp()
		attempt.Result = history.ResultFailed
		attempt.Error = err.Error()
	} else {
		entry.set(StateUpdated, entry.statusFor(StateUpdated))
		attempt.Result = history.ResultUpdated
		entryLog.Info("update installed")
	}

	o.record(ctx, attempt)
	return err
}

// apply moves entry through Downloading, Verifying and Installing.
func (o *Orchestrator) apply(ctx context.Context, entry *Entry) (int64, error) {
	c := entry.Candidate()
	name := c.Name()

	entry.set(StateDownloading, entry.statusFor(StateDownloading))
	written, err := o.downloader.Download(ctx, c.Metadata.URL, o.tempPath, entry.setProgress)
	if err != nil {
		return written, err
	}

	entry.set(StateVerifying, entry.statusFor(StateVerifying))
	log.WithField(logging.KeyPackage, name).
		WithField("expected", c.ExpectedHash()).
		Info("verifying checksum")
	if err := o.installer.Verify(c.ExpectedHash(), o.tempPath); err != nil {
		return written, err
	}

	// Handles get closed from here on, so the running game is no longer consistent.
	o.restart.Set()
	entry.set(StateInstalling, entry.statusFor(StateInstalling))
	return written, o.installer.Replace(o.tempPath, c.Installed.ArchivePath, name)
}

func (o *Orchestrator) removeTemp() {
	if err := os.Remove(o.tempPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.WithError(err).WithField("path", o.tempPath).Warn("removing temp file failed")
	}
}

func (o *Orchestrator) record(ctx context.Context, a history.Attempt) {
	if o.recorder == nil {
		return
	}
	if err := o.recorder.Record(ctx, a); err != nil {
		log.WithError(err).WithField(logging.KeyPackage, a.Name).Warn("recording history failed")
	}
}
