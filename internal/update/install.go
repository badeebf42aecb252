package update

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	apperrors "modupdater/internal/errors"
	"modupdater/internal/host"
	"modupdater/internal/logging"
)

// ErrChecksumMismatch is the sentinel wrapped by every *ChecksumError.
var ErrChecksumMismatch = fmt.Errorf("checksum verification failed")

// ChecksumError reports a downloaded archive whose hash differs from the catalog.
type ChecksumError struct {
	Expected string
	Actual   string
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("%v: expected %s, got %s", ErrChecksumMismatch, e.Expected, e.Actual)
}

func (e *ChecksumError) Unwrap() error {
	return ErrChecksumMismatch
}

// Installer verifies downloaded archives and swaps them into place.
type Installer struct {
	releaser host.HandleReleaser
	checksum func(path string) (string, error)
}

// InstallerOption configures an Installer.
type InstallerOption func(*Installer)

// WithChecksumFunc replaces the hash function used by Verify.
func WithChecksumFunc(fn func(path string) (string, error)) InstallerOption {
	return func(i *Installer) {
		i.checksum = fn
	}
}

// NewInstaller creates an installer that releases handles through releaser.
// A nil releaser skips the release step.
func NewInstaller(releaser host.HandleReleaser, opts ...InstallerOption) *Installer {
	i := &Installer{
		releaser: releaser,
		checksum: host.ChecksumHex,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Verify hashes path and compares it to expected, ignoring case.
func (i *Installer) Verify(expected, path string) error {
	actual, err := i.checksum(path)
	if err != nil {
		return apperrors.New(apperrors.CodeIO, fmt.Sprintf("hash %s: %v", path, err), err)
	}
	if !strings.EqualFold(strings.TrimSpace(expected), actual) {
		mismatch := &ChecksumError{Expected: strings.ToLower(strings.TrimSpace(expected)), Actual: strings.ToLower(actual)}
		return apperrors.New(apperrors.CodeChecksum, mismatch.Error(), mismatch)
	}
	return nil
}

// Replace releases owner's handle, deletes target and moves downloaded onto
// its path. There is a window between the delete and the move where neither
// file exists at target; a failure there leaves the mod missing.
func (i *Installer) Replace(downloaded, target, owner string) error {
	entry := log.WithField(logging.KeyPackage, owner).WithField("target", target)

	if i.releaser != nil {
		if err := i.releaser.Release(owner); err != nil {
			return apperrors.New(apperrors.CodeIO, fmt.Sprintf("release %s: %v", owner, err), err)
		}
	}

	if err := os.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return apperrors.New(apperrors.CodeIO, fmt.Sprintf("delete %s: %v", target, err), err)
	}

	if err := os.Rename(downloaded, target); err != nil {
		entry.WithError(err).Debug("rename failed, falling back to copy")
		if cerr := copyFile(downloaded, target); cerr != nil {
			return apperrors.New(apperrors.CodeIO, fmt.Sprintf("move %s to %s: %v", downloaded, target, cerr), cerr)
		}
		_ = os.Remove(downloaded)
	}

	entry.Info("archive replaced")
	return nil
}

// Install verifies downloaded against expected and, on success, replaces target.
// On a mismatch target is left untouched.
func (i *Installer) Install(expected, downloaded, target, owner string) error {
	if err := i.Verify(expected, downloaded); err != nil {
		return err
	}
	return i.Replace(downloaded, target, owner)
}

// copyFile covers moves across filesystems, where rename is not possible.
func copyFile(src, dst string) error {
	//nolint:gosec // G304: paths are chosen by the installer
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	//nolint:gosec // G304: paths are chosen by the installer
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
