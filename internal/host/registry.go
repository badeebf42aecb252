// Package host models the game installation the updater works against: the
// installed mod archives, the archive handles the game keeps open while it
// runs, and the means to restart the game once archives have been replaced.
package host

import (
	"bufio"
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"modupdater/internal/logging"

	"github.com/klauspost/compress/zip"
	"gopkg.in/yaml.v3"
)

const (
	// BlacklistFile lists archive names the registry ignores.
	BlacklistFile = "blacklist.txt"

	maxManifestBytes = 1 << 20
)

var manifestNames = []string{"everest.yaml", "everest.yml"}

var log = logging.L("host")

// InstalledPackage is one mod module loaded from an archive.
type InstalledPackage struct {
	Name        string
	Version     string
	ArchivePath string
	Hash        []byte
}

// HashString returns the content hash as lower-case hex.
func (p InstalledPackage) HashString() string {
	return hex.EncodeToString(p.Hash)
}

// Registry enumerates installed mods.
type Registry interface {
	Installed(ctx context.Context) ([]InstalledPackage, error)
}

// HandleReleaser force-closes in-process handles on a mod's archive.
type HandleReleaser interface {
	Release(owner string) error
}

type moduleManifest struct {
	Name    string `yaml:"Name"`
	Version string `yaml:"Version"`
}

type mount struct {
	path   string
	reader *zip.ReadCloser
	closed bool
}

func (m *mount) close() error {
	if m.closed {
		return nil
	}
	m.closed = true
	return m.reader.Close()
}

// DirRegistry scans a Mods directory for zip archives and keeps each scanned
// archive open, the way the running game does.
type DirRegistry struct {
	dir string

	mu     sync.Mutex
	mounts map[string]*mount // keyed by module name
}

// NewDirRegistry creates a registry for the given Mods directory.
func NewDirRegistry(dir string) *DirRegistry {
	return &DirRegistry{
		dir:    dir,
		mounts: make(map[string]*mount),
	}
}

// Dir returns the scanned directory.
func (r *DirRegistry) Dir() string {
	return r.dir
}

// Installed rescans the Mods directory. Previously mounted archives are closed
// and the fresh scan is mounted in their place. Archives that cannot be read
// are logged and skipped.
func (r *DirRegistry) Installed(ctx context.Context) ([]InstalledPackage, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("read mods directory: %w", err)
	}
	blacklist, err := readBlacklist(filepath.Join(r.dir, BlacklistFile))
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	_ = r.closeAllLocked()

	var installed []InstalledPackage
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := entry.Name()
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(name), ".zip") {
			continue
		}
		if _, skip := blacklist[name]; skip {
			log.WithField("archive", name).Debug("skipping blacklisted archive")
			continue
		}

		path := filepath.Join(r.dir, name)
		pkgs, m, err := loadArchive(path)
		if err != nil {
			log.WithError(err).WithField("archive", name).Warn("skipping unreadable archive")
			continue
		}
		for _, pkg := range pkgs {
			r.mounts[pkg.Name] = m
		}
		installed = append(installed, pkgs...)
	}

	sort.SliceStable(installed, func(i, j int) bool {
		return installed[i].Name < installed[j].Name
	})
	log.WithField("count", len(installed)).Debug("scanned installed mods")
	return installed, nil
}

// Release closes the archive handle mounted for owner. Unknown owners are a no-op.
func (r *DirRegistry) Release(owner string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.mounts[owner]
	if !ok {
		return nil
	}
	// An archive may carry several modules; drop every alias of this mount.
	for name, other := range r.mounts {
		if other == m {
			delete(r.mounts, name)
		}
	}
	log.WithField(logging.KeyPackage, owner).WithField("archive", m.path).Info("closing mod archive")
	if err := m.close(); err != nil {
		return fmt.Errorf("close %s: %w", m.path, err)
	}
	return nil
}

// Mounted reports whether an archive handle is open for owner.
func (r *DirRegistry) Mounted(owner string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.mounts[owner]
	return ok && !m.closed
}

// Close releases every mounted archive.
func (r *DirRegistry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closeAllLocked()
}

func (r *DirRegistry) closeAllLocked() error {
	var errs []error
	for name, m := range r.mounts {
		if err := m.close(); err != nil {
			errs = append(errs, err)
		}
		delete(r.mounts, name)
	}
	return errors.Join(errs...)
}

func loadArchive(path string) ([]InstalledPackage, *mount, error) {
	sum, err := Checksum(path)
	if err != nil {
		return nil, nil, err
	}

	rc, err := zip.OpenReader(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open archive: %w", err)
	}

	modules, err := readManifest(&rc.Reader)
	if err != nil {
		_ = rc.Close()
		return nil, nil, err
	}

	pkgs := make([]InstalledPackage, 0, len(modules))
	for _, mod := range modules {
		pkgs = append(pkgs, InstalledPackage{
			Name:        mod.Name,
			Version:     mod.Version,
			ArchivePath: path,
			Hash:        sum,
		})
	}
	return pkgs, &mount{path: path, reader: rc}, nil
}

func readManifest(zr *zip.Reader) ([]moduleManifest, error) {
	var file *zip.File
	for _, want := range manifestNames {
		for _, f := range zr.File {
			if f.Name == want {
				file = f
				break
			}
		}
		if file != nil {
			break
		}
	}
	if file == nil {
		return nil, fmt.Errorf("archive has no everest.yaml")
	}

	r, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer func() { _ = r.Close() }()

	data, err := io.ReadAll(io.LimitReader(r, maxManifestBytes))
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	var modules []moduleManifest
	if err := yaml.Unmarshal(data, &modules); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}

	valid := modules[:0]
	for _, mod := range modules {
		mod.Name = strings.TrimSpace(mod.Name)
		if mod.Name == "" {
			continue
		}
		valid = append(valid, mod)
	}
	if len(valid) == 0 {
		return nil, fmt.Errorf("manifest declares no modules")
	}
	return valid, nil
}

func readBlacklist(path string) (map[string]struct{}, error) {
	//nolint:gosec // G304: blacklist lives in the configured Mods directory
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]struct{}{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open blacklist: %w", err)
	}
	defer func() { _ = f.Close() }()

	list := make(map[string]struct{})
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		list[line] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read blacklist: %w", err)
	}
	return list, nil
}
