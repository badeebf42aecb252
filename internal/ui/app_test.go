package ui

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"modupdater/internal/catalog"
	"modupdater/internal/host"
	"modupdater/internal/session"
	"modupdater/internal/update"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/muesli/termenv"
)

type stubSource struct {
	cat catalog.Catalog
	err error
}

func (s stubSource) Fetch(context.Context) (catalog.Catalog, error) {
	return s.cat, s.err
}

type stubRegistry struct {
	pkgs []host.InstalledPackage
}

func (s stubRegistry) Installed(context.Context) ([]host.InstalledPackage, error) {
	return s.pkgs, nil
}

type stubDownloader struct {
	body []byte
	gate chan struct{}
}

func (d *stubDownloader) Download(_ context.Context, _, dest string, onProgress update.ProgressFunc) (int64, error) {
	if d.gate != nil {
		<-d.gate
	}
	if err := os.WriteFile(dest, d.body, 0o644); err != nil {
		return 0, err
	}
	onProgress(update.Progress{Written: int64(len(d.body)), Total: int64(len(d.body))})
	return int64(len(d.body)), nil
}

type harness struct {
	app        *App
	target     string
	downloader *stubDownloader
	copied     []string
}

func newHarness(t *testing.T, src stubSource) *harness {
	t.Helper()
	lipgloss.SetColorProfile(termenv.Ascii)

	gameDir := t.TempDir()
	target := filepath.Join(gameDir, "ModA.zip")
	if err := os.WriteFile(target, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}
	body := []byte("new archive")
	sumPath := filepath.Join(t.TempDir(), "sum")
	if err := os.WriteFile(sumPath, body, 0o644); err != nil {
		t.Fatal(err)
	}
	sum, err := host.ChecksumHex(sumPath)
	if err != nil {
		t.Fatal(err)
	}
	if src.cat != nil {
		meta := src.cat["ModA"]
		meta.Hashes = []string{sum}
		src.cat["ModA"] = meta
	}

	h := &harness{target: target, downloader: &stubDownloader{body: body}}
	registry := stubRegistry{pkgs: []host.InstalledPackage{
		{Name: "ModA", Version: "1.0.0", ArchivePath: target, Hash: []byte{0x01}},
		{Name: "ModB", Version: "0.9.0", ArchivePath: filepath.Join(gameDir, "ModB.zip"), Hash: []byte{0x02}},
	}}
	orch := session.New(src, registry, gameDir, session.WithDownloader(h.downloader))
	app, err := NewApp(Config{
		Orchestrator: orch,
		Clipboard: func(s string) error {
			h.copied = append(h.copied, s)
			return nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	app.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	h.app = app
	return h
}

func defaultCatalog() catalog.Catalog {
	return catalog.Catalog{
		"ModA": {Name: "ModA", Version: "1.1.0", LastUpdate: 1709294400, URL: "https://example.com/ModA.zip"},
		"ModB": {Name: "ModB", Version: "1.0.0", LastUpdate: 1700000000, URL: "https://example.com/ModB.zip", Hashes: []string{"aa", "bb"}},
	}
}

// settle waits for the running task and delivers one frame tick.
func (h *harness) settle(t *testing.T) {
	t.Helper()
	if h.app.task != nil {
		_ = h.app.task.Wait()
	}
	h.app.Update(tickMsg{})
}

func (h *harness) view() string {
	return ansi.Strip(h.app.View())
}

func keyMsg(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "ctrl+c":
		return tea.KeyMsg{Type: tea.KeyCtrlC}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func isQuit(cmd tea.Cmd) bool {
	if cmd == nil {
		return false
	}
	_, ok := cmd().(tea.QuitMsg)
	return ok
}

func TestNewAppRequiresOrchestrator(t *testing.T) {
	if _, err := NewApp(Config{}); err == nil {
		t.Error("expected error without orchestrator")
	}
}

func TestInitShowsFetchingThenRows(t *testing.T) {
	h := newHarness(t, stubSource{cat: defaultCatalog()})
	h.app.Init()

	if !strings.Contains(h.view(), fetchingText) {
		t.Fatalf("expected fetching row, got:\n%s", h.view())
	}

	h.settle(t)
	view := h.view()
	if strings.Contains(view, fetchingText) {
		t.Error("fetching row should be gone after the task completes")
	}
	if !strings.Contains(view, "ModA | v. 1.0.0 > 1.1.0 (2024-03-01)") {
		t.Errorf("missing ModA row:\n%s", view)
	}
	if !strings.Contains(view, "ModB | v. 0.9.0 > 1.0.0") {
		t.Errorf("missing ModB row:\n%s", view)
	}
	if h.app.cursor != 0 {
		t.Errorf("cursor = %d, want first triggerable row", h.app.cursor)
	}
}

func TestErrorRow(t *testing.T) {
	h := newHarness(t, stubSource{err: errors.New("offline")})
	h.app.Init()
	h.settle(t)

	view := h.view()
	if !strings.Contains(view, errorText) || !strings.Contains(view, "offline") {
		t.Errorf("expected error row, got:\n%s", view)
	}
}

func TestNoUpdatesRow(t *testing.T) {
	h := newHarness(t, stubSource{cat: catalog.Catalog{}})
	h.app.Init()
	h.settle(t)

	if !strings.Contains(h.view(), noUpdateText) {
		t.Errorf("expected no-updates row, got:\n%s", h.view())
	}
}

func TestMultiHashRowCannotStart(t *testing.T) {
	h := newHarness(t, stubSource{cat: defaultCatalog()})
	h.app.Init()
	h.settle(t)

	h.app.Update(keyMsg("down"))
	h.app.Update(keyMsg("enter"))
	if h.app.busy() {
		t.Fatal("multi-hash row must not start an update")
	}
	if !strings.Contains(h.view(), "copy its URL") {
		t.Errorf("expected manual-update hint, got:\n%s", h.view())
	}

	h.app.Update(keyMsg("c"))
	if len(h.copied) != 1 || h.copied[0] != "https://example.com/ModB.zip" {
		t.Errorf("copied = %v", h.copied)
	}
}

func TestUpdateFlowAndRestartOnLeave(t *testing.T) {
	h := newHarness(t, stubSource{cat: defaultCatalog()})
	h.app.Init()
	h.settle(t)

	h.downloader.gate = make(chan struct{})
	h.app.Update(keyMsg("enter"))
	if !h.app.busy() {
		t.Fatal("enter should start the update")
	}
	if !strings.Contains(h.view(), "ModA (downloading)") {
		t.Errorf("expected downloading status, got:\n%s", h.view())
	}

	// Navigation and leaving are ignored while busy.
	h.app.Update(keyMsg("down"))
	if h.app.cursor != 0 {
		t.Error("cursor moved while busy")
	}
	if _, cmd := h.app.Update(keyMsg("q")); isQuit(cmd) {
		t.Error("q should be ignored while busy")
	}

	close(h.downloader.gate)
	h.settle(t)

	view := h.view()
	if !strings.Contains(view, "ModA (updated)") {
		t.Errorf("expected updated status, got:\n%s", view)
	}
	if !strings.Contains(view, headerTitle+restartSuffix) {
		t.Errorf("expected restart header, got:\n%s", view)
	}
	if h.app.cursor != 1 {
		t.Errorf("cursor = %d, want next row", h.app.cursor)
	}
	if got, _ := os.ReadFile(h.target); string(got) != "new archive" {
		t.Errorf("target = %q", got)
	}

	_, cmd := h.app.Update(keyMsg("esc"))
	if !isQuit(cmd) {
		t.Fatal("esc should quit when idle")
	}
	if !h.app.RestartRequested() {
		t.Error("leaving after an install should request a restart")
	}
}

func TestLeaveWithoutChanges(t *testing.T) {
	h := newHarness(t, stubSource{cat: defaultCatalog()})
	h.app.Init()
	h.settle(t)

	_, cmd := h.app.Update(keyMsg("q"))
	if !isQuit(cmd) {
		t.Fatal("q should quit")
	}
	if h.app.RestartRequested() {
		t.Error("no restart expected")
	}
}

func TestCtrlCWaitsForRunningUpdate(t *testing.T) {
	h := newHarness(t, stubSource{cat: defaultCatalog()})
	h.app.Init()
	h.settle(t)

	h.downloader.gate = make(chan struct{})
	h.app.Update(keyMsg("enter"))
	_, cmd := h.app.Update(keyMsg("ctrl+c"))
	if isQuit(cmd) {
		t.Fatal("ctrl+c must not quit while an update runs")
	}
	if !strings.Contains(h.view(), finishingText) {
		t.Errorf("footer should announce the pending exit:\n%s", h.view())
	}
	_, cmd = h.app.Update(tickMsg{})
	if isQuit(cmd) {
		t.Fatal("quit before the update finished")
	}

	close(h.downloader.gate)
	if err := h.app.task.Wait(); err != nil {
		t.Fatalf("update: %v", err)
	}
	_, cmd = h.app.Update(tickMsg{})
	if !isQuit(cmd) {
		t.Fatal("should quit once the update finished")
	}
	got, err := os.ReadFile(h.target)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "new archive" {
		t.Errorf("target = %q, want the new archive", got)
	}
}

func TestCtrlCQuitsDuringRefresh(t *testing.T) {
	h := newHarness(t, stubSource{cat: defaultCatalog()})
	h.app.Init()

	_, cmd := h.app.Update(keyMsg("ctrl+c"))
	if !isQuit(cmd) {
		t.Error("ctrl+c should quit while only a refresh runs")
	}
	h.settle(t)
}

func TestHelpToggle(t *testing.T) {
	h := newHarness(t, stubSource{cat: defaultCatalog()})
	h.app.Init()
	h.settle(t)

	h.app.Update(keyMsg("?"))
	if !h.app.showHelp || !strings.Contains(h.view(), "copy URL") {
		t.Errorf("help not shown:\n%s", h.view())
	}
	h.app.Update(keyMsg("?"))
	if h.app.showHelp {
		t.Error("help should close")
	}
}

func TestClipTruncatesLongStatus(t *testing.T) {
	h := newHarness(t, stubSource{cat: defaultCatalog()})
	h.app.Update(tea.WindowSizeMsg{Width: 30, Height: 10})

	got := h.app.clip(strings.Repeat("x", 80), 0)
	if w := lipgloss.Width(got); w > 30-containerMargin-len(rowIndent) {
		t.Errorf("width = %d", w)
	}
	if !strings.HasSuffix(got, "…") {
		t.Errorf("expected ellipsis, got %q", got)
	}
}
