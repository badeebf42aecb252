// Package update detects and applies mod updates.
//
// This package handles:
//   - Diffing installed archives against the catalog by content hash (Detect)
//   - Streaming a remote archive to disk with progress reporting (Downloader)
//   - Verifying the download and replacing the installed archive (Installer)
//
// The package is isolated from UI concerns. Progress is reported through a
// callback carrying a Progress value that the caller can render however it
// wants.
//
// Example usage:
//
//	candidates := update.Detect(cat, installed)
//	n, err := update.NewDownloader().Download(ctx, c.Metadata.URL, tmp, onProgress)
//	if err == nil {
//	    err = update.NewInstaller(registry).Install(c.ExpectedHash(), tmp, c.Installed.ArchivePath, c.Installed.Name)
//	}
package update
