package update

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"time"

	apperrors "modupdater/internal/errors"
)

// Design constants of the copy loop; not tunable per call.
const (
	ChunkSize           = 4096
	SpeedSampleInterval = 100 * time.Millisecond
)

// Error variables for download failures.
var (
	ErrDownloadFailed = fmt.Errorf("download failed")
	ErrShortBody      = fmt.Errorf("body shorter than announced length")
)

// Progress is a snapshot of a running download.
type Progress struct {
	Written int64
	// Total is the expected size, or zero when the length is unknown.
	Total int64
	// SpeedKiB is the latest throughput sample in KiB/s.
	SpeedKiB int64
}

// LengthKnown reports whether Total is meaningful.
func (p Progress) LengthKnown() bool {
	return p.Total > 0
}

// Percent returns the floored completion percentage, or -1 when unknown.
func (p Progress) Percent() int {
	if !p.LengthKnown() {
		return -1
	}
	return int(p.Written * 100 / p.Total)
}

// String renders "42% @ 120 KiB/s", or "12 KiB @ 120 KiB/s" when the length is unknown.
func (p Progress) String() string {
	if p.LengthKnown() {
		return fmt.Sprintf("%d%% @ %d KiB/s", p.Percent(), p.SpeedKiB)
	}
	return fmt.Sprintf("%d KiB @ %d KiB/s", p.Written/1024, p.SpeedKiB)
}

// ProgressFunc receives a snapshot after every chunk.
type ProgressFunc func(Progress)

// Downloader streams remote archives to disk.
type Downloader struct {
	httpClient *http.Client
	userAgent  string
	now        func() time.Time
}

// DownloaderOption configures a Downloader.
type DownloaderOption func(*Downloader)

// WithDownloadHTTPClient sets a custom HTTP client for the downloader.
func WithDownloadHTTPClient(client *http.Client) DownloaderOption {
	return func(d *Downloader) {
		d.httpClient = client
	}
}

// WithClock overrides the time source used for speed sampling.
func WithClock(now func() time.Time) DownloaderOption {
	return func(d *Downloader) {
		d.now = now
	}
}

// NewDownloader creates a downloader.
func NewDownloader(opts ...DownloaderOption) *Downloader {
	d := &Downloader{
		httpClient: &http.Client{
			Timeout: 0, // No timeout for downloads
		},
		userAgent: "modupdater-downloader",
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Download deletes any file at dest, then streams url into it. When the
// response carries no length, a HEAD request is tried; failing that the copy
// runs in unknown-length mode. It returns the number of bytes written.
func (d *Downloader) Download(ctx context.Context, url, dest string, onProgress ProgressFunc) (int64, error) {
	entry := log.WithField("url", url).WithField("dest", dest)
	entry.Info("downloading")

	if err := os.Remove(dest); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return 0, apperrors.New(apperrors.CodeIO, fmt.Sprintf("remove stale download: %v", err), err)
	}

	resp, err := d.get(ctx, http.MethodGet, url)
	if err != nil {
		return 0, networkError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return 0, networkError(fmt.Errorf("%w: status %d", ErrDownloadFailed, resp.StatusCode))
	}

	length := resp.ContentLength
	if length <= 0 {
		length = d.contentLength(ctx, url)
		entry.WithField("length", length).Debug("probed content length")
	}

	//nolint:gosec // G304: destination is chosen by the orchestrator
	out, err := os.Create(dest)
	if err != nil {
		return 0, apperrors.New(apperrors.CodeIO, fmt.Sprintf("create %s: %v", dest, err), err)
	}

	written, copyErr := d.copy(out, resp.Body, length, onProgress)
	closeErr := out.Close()
	if copyErr != nil {
		return written, copyErr
	}
	if closeErr != nil {
		return written, apperrors.New(apperrors.CodeIO, fmt.Sprintf("close %s: %v", dest, closeErr), closeErr)
	}

	entry.WithField("bytes", written).Info("download complete")
	return written, nil
}

func (d *Downloader) copy(out io.Writer, body io.Reader, length int64, onProgress ProgressFunc) (int64, error) {
	buf := make([]byte, ChunkSize)
	lastSample := d.now()
	var written, sinceSample, speed int64

	for {
		count := ChunkSize
		if length > 0 {
			remaining := length - written
			if remaining <= 0 {
				return written, nil
			}
			if remaining < int64(count) {
				count = int(remaining)
			}
		}

		n, readErr := body.Read(buf[:count])
		if n > 0 {
			if _, err := out.Write(buf[:n]); err != nil {
				return written, apperrors.New(apperrors.CodeIO, fmt.Sprintf("write download: %v", err), err)
			}
			written += int64(n)
			sinceSample += int64(n)
		}

		now := d.now()
		if elapsed := now.Sub(lastSample); elapsed >= SpeedSampleInterval {
			speed = int64(float64(sinceSample) / 1024 / elapsed.Seconds())
			sinceSample = 0
			lastSample = now
		}

		if n > 0 && onProgress != nil {
			onProgress(Progress{Written: written, Total: length, SpeedKiB: speed})
		}

		if errors.Is(readErr, io.EOF) {
			if length > 0 && written < length {
				return written, networkError(fmt.Errorf("%w: %w: got %d of %d bytes", ErrDownloadFailed, ErrShortBody, written, length))
			}
			return written, nil
		}
		if readErr != nil {
			return written, networkError(fmt.Errorf("%w: %v", ErrDownloadFailed, readErr))
		}
	}
}

// contentLength asks the server for the size with a HEAD request.
// Any failure yields zero, meaning unknown.
func (d *Downloader) contentLength(ctx context.Context, url string) int64 {
	resp, err := d.get(ctx, http.MethodHead, url)
	if err != nil {
		return 0
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK || resp.ContentLength <= 0 {
		return 0
	}
	return resp.ContentLength
}

func (d *Downloader) get(ctx context.Context, method, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", ErrDownloadFailed, err)
	}
	req.Header.Set("User-Agent", d.userAgent)
	// Lengths must describe the bytes we write, so ask for the raw archive.
	req.Header.Set("Accept-Encoding", "identity")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	return resp, nil
}

func networkError(err error) error {
	return apperrors.New(apperrors.CodeNetwork, err.Error(), err)
}
