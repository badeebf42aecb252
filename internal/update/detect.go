package update

import (
	"fmt"
	"sort"
	"strings"

	"modupdater/internal/catalog"
	"modupdater/internal/host"
	"modupdater/internal/logging"

	"github.com/Masterminds/semver"
)

var log = logging.L("update")

// Change classifies how a candidate's remote version relates to the installed one.
type Change int

const (
	// ChangeUnknown means either version string is not a parseable version.
	ChangeUnknown Change = iota
	// ChangeUpgrade means the remote version is newer.
	ChangeUpgrade
	// ChangeDowngrade means the remote version is older.
	ChangeDowngrade
	// ChangeRebuild means the versions match but the archive contents differ.
	ChangeRebuild
)

// String returns the string representation of a Change.
func (c Change) String() string {
	switch c {
	case ChangeUpgrade:
		return "upgrade"
	case ChangeDowngrade:
		return "downgrade"
	case ChangeRebuild:
		return "rebuild"
	default:
		return "unknown"
	}
}

// Candidate pairs an installed mod with the catalog entry it is out of date against.
type Candidate struct {
	Metadata  catalog.PackageMetadata
	Installed host.InstalledPackage
}

// Name returns the mod name.
func (c Candidate) Name() string {
	return c.Metadata.Name
}

// SingleHash reports whether the catalog lists exactly one accepted hash.
// Mods with several hashes ship per-platform builds, so there is no single
// expected checksum and the guided update is unavailable.
func (c Candidate) SingleHash() bool {
	return len(c.Metadata.Hashes) == 1
}

// ExpectedHash returns the accepted hash when there is exactly one.
func (c Candidate) ExpectedHash() string {
	if !c.SingleHash() {
		return ""
	}
	return c.Metadata.Hashes[0]
}

// Change compares installed and remote versions.
func (c Candidate) Change() Change {
	installed, err := semver.NewVersion(strings.TrimSpace(c.Installed.Version))
	if err != nil {
		return ChangeUnknown
	}
	remote, err := semver.NewVersion(strings.TrimSpace(c.Metadata.Version))
	if err != nil {
		return ChangeUnknown
	}
	switch {
	case remote.GreaterThan(installed):
		return ChangeUpgrade
	case remote.LessThan(installed):
		return ChangeDowngrade
	default:
		return ChangeRebuild
	}
}

// Label renders the row text shown for a candidate, e.g.
// "ModA | v. 1.0.0 > 1.1.0 (2024-03-01)".
func (c Candidate) Label() string {
	return fmt.Sprintf("%s | v. %s > %s (%s)",
		c.Installed.Name,
		c.Installed.Version,
		c.Metadata.Version,
		c.Metadata.LastUpdateTime().Format("2006-01-02"),
	)
}

// Detect returns the installed mods whose archive hash is not accepted by
// their catalog entry, newest catalog update first and then by name.
// Mods absent from the catalog or not backed by an archive are ignored.
// The result is empty, never nil, when nothing qualifies.
func Detect(cat catalog.Catalog, installed []host.InstalledPackage) []Candidate {
	candidates := []Candidate{}
	for _, pkg := range installed {
		if pkg.ArchivePath == "" {
			continue
		}
		meta, ok := cat[pkg.Name]
		if !ok {
			continue
		}
		hash := strings.ToLower(pkg.HashString())
		log.WithField(logging.KeyPackage, pkg.Name).
			WithField("installed", hash).
			WithField("latest", strings.Join(meta.Hashes, ", ")).
			Debug("comparing hashes")
		if meta.Accepts(hash) {
			continue
		}
		candidates = append(candidates, Candidate{Metadata: meta, Installed: pkg})
	}

	sortCandidates(candidates)
	log.WithField("count", len(candidates)).Info("update(s) available")
	return candidates
}

func sortCandidates(candidates []Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i].Metadata, candidates[j].Metadata
		if a.LastUpdate != b.LastUpdate {
			return a.LastUpdate > b.LastUpdate
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return candidates[i].Installed.ArchivePath < candidates[j].Installed.ArchivePath
	})
}
