package update

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	apperrors "modupdater/internal/errors"
)

func payload(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i % 251)
	}
	return b
}

// chunkedHandler streams body without a Content-Length.
func chunkedHandler(body []byte, headLength bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			if !headLength {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			w.Header().Set("Content-Length", strconv.Itoa(len(body)))
			w.WriteHeader(http.StatusOK)
			return
		}
		flusher := w.(http.Flusher)
		for off := 0; off < len(body); off += 1000 {
			end := off + 1000
			if end > len(body) {
				end = len(body)
			}
			_, _ = w.Write(body[off:end])
			flusher.Flush()
		}
	}
}

func TestDownloadKnownLength(t *testing.T) {
	body := payload(10000)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Accept-Encoding"); got != "identity" {
			t.Errorf("Accept-Encoding = %q", got)
		}
		http.ServeContent(w, r, "mod.zip", time.Time{}, bytes.NewReader(body))
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "mod-update.zip")
	var updates []Progress
	n, err := NewDownloader().Download(context.Background(), server.URL, dest, func(p Progress) {
		updates = append(updates, p)
	})
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if n != int64(len(body)) {
		t.Errorf("written = %d, want %d", n, len(body))
	}

	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, body) {
		t.Error("downloaded content differs")
	}

	if len(updates) == 0 {
		t.Fatal("expected progress callbacks")
	}
	last := updates[len(updates)-1]
	if last.Total != int64(len(body)) || last.Percent() != 100 {
		t.Errorf("last progress = %+v", last)
	}
	if !strings.HasPrefix(last.String(), "100% @ ") {
		t.Errorf("status = %q", last.String())
	}
}

func TestDownloadUnknownLength(t *testing.T) {
	body := payload(10000)
	server := httptest.NewServer(chunkedHandler(body, false))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "mod-update.zip")
	var updates []Progress
	n, err := NewDownloader().Download(context.Background(), server.URL, dest, func(p Progress) {
		updates = append(updates, p)
	})
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if n != 10000 {
		t.Errorf("written = %d, want 10000", n)
	}

	var prev int64
	for _, p := range updates {
		if p.LengthKnown() {
			t.Fatalf("length should be unknown, got %+v", p)
		}
		if p.Written <= prev {
			t.Fatalf("progress not increasing: %d after %d", p.Written, prev)
		}
		prev = p.Written
	}
	last := updates[len(updates)-1]
	if !strings.HasPrefix(last.String(), "9 KiB @ ") {
		t.Errorf("status = %q", last.String())
	}

	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, body) {
		t.Error("downloaded content differs")
	}
}

func TestDownloadHeadProbe(t *testing.T) {
	body := payload(10000)
	server := httptest.NewServer(chunkedHandler(body, true))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "mod-update.zip")
	var last Progress
	if _, err := NewDownloader().Download(context.Background(), server.URL, dest, func(p Progress) { last = p }); err != nil {
		t.Fatalf("Download: %v", err)
	}
	if last.Total != 10000 {
		t.Errorf("probed total = %d, want 10000", last.Total)
	}
	if last.Percent() != 100 {
		t.Errorf("percent = %d", last.Percent())
	}
}

func TestDownloadRemovesStaleFile(t *testing.T) {
	body := payload(100)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, "mod.zip", time.Time{}, bytes.NewReader(body))
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "mod-update.zip")
	if err := os.WriteFile(dest, payload(5000), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewDownloader().Download(context.Background(), server.URL, dest, nil); err != nil {
		t.Fatalf("Download: %v", err)
	}
	info, err := os.Stat(dest)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() != 100 {
		t.Errorf("size = %d, want 100", info.Size())
	}
}

func TestDownloadHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "mod-update.zip")
	_, err := NewDownloader().Download(context.Background(), server.URL, dest, nil)
	if !errors.Is(err, ErrDownloadFailed) {
		t.Fatalf("expected ErrDownloadFailed, got %v", err)
	}
	if !apperrors.IsCode(err, apperrors.CodeNetwork) {
		t.Errorf("code = %s, want network", apperrors.CodeOf(err))
	}
}

func TestDownloadCancelled(t *testing.T) {
	server := httptest.NewServer(chunkedHandler(payload(10), false))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewDownloader().Download(ctx, server.URL, filepath.Join(t.TempDir(), "x.zip"), nil)
	if err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func TestCopyChunksAndSpeed(t *testing.T) {
	base := time.Unix(0, 0)
	calls := 0
	d := NewDownloader(WithClock(func() time.Time {
		now := base.Add(time.Duration(calls) * 250 * time.Millisecond)
		calls++
		return now
	}))

	var out bytes.Buffer
	var updates []Progress
	n, err := d.copy(&out, bytes.NewReader(payload(10000)), 10000, func(p Progress) {
		updates = append(updates, p)
	})
	if err != nil {
		t.Fatalf("copy: %v", err)
	}
	if n != 10000 || out.Len() != 10000 {
		t.Fatalf("written = %d, buffered = %d", n, out.Len())
	}

	wantWritten := []int64{4096, 8192, 10000}
	wantSpeed := []int64{16, 16, 7}
	if len(updates) != len(wantWritten) {
		t.Fatalf("updates = %+v", updates)
	}
	for i, p := range updates {
		if p.Written != wantWritten[i] || p.SpeedKiB != wantSpeed[i] {
			t.Errorf("update %d = %+v, want written %d speed %d", i, p, wantWritten[i], wantSpeed[i])
		}
	}
	if got := updates[0].String(); got != "40% @ 16 KiB/s" {
		t.Errorf("status = %q", got)
	}
}

func TestCopySamplesSpeedAtExactInterval(t *testing.T) {
	base := time.Unix(0, 0)
	calls := 0
	d := NewDownloader(WithClock(func() time.Time {
		now := base.Add(time.Duration(calls) * SpeedSampleInterval)
		calls++
		return now
	}))

	var updates []Progress
	_, err := d.copy(&bytes.Buffer{}, bytes.NewReader(payload(ChunkSize)), ChunkSize, func(p Progress) {
		updates = append(updates, p)
	})
	if err != nil {
		t.Fatalf("copy: %v", err)
	}
	if len(updates) != 1 {
		t.Fatalf("updates = %+v", updates)
	}
	// 4 KiB in 100ms is 40 KiB/s; allow for float rounding.
	if got := updates[0].SpeedKiB; got < 39 || got > 40 {
		t.Errorf("speed = %d KiB/s, want a sample after exactly one interval", got)
	}
}

func TestCopyStopsAtKnownLength(t *testing.T) {
	var out bytes.Buffer
	n, err := NewDownloader().copy(&out, bytes.NewReader(payload(6000)), 5000, nil)
	if err != nil {
		t.Fatalf("copy: %v", err)
	}
	if n != 5000 || out.Len() != 5000 {
		t.Errorf("written = %d, want 5000", n)
	}
}

func TestCopyShortBody(t *testing.T) {
	var out bytes.Buffer
	_, err := NewDownloader().copy(&out, bytes.NewReader(payload(3000)), 5000, nil)
	if !errors.Is(err, ErrShortBody) {
		t.Fatalf("expected ErrShortBody, got %v", err)
	}
}

func TestProgressString(t *testing.T) {
	tests := []struct {
		p    Progress
		want string
	}{
		{Progress{Written: 512, Total: 1024, SpeedKiB: 3}, "50% @ 3 KiB/s"},
		{Progress{Written: 1023, Total: 1024}, "99% @ 0 KiB/s"},
		{Progress{Written: 5 * 1024, SpeedKiB: 12}, "5 KiB @ 12 KiB/s"},
	}
	for _, tt := range tests {
		if got := tt.p.String(); got != tt.want {
			t.Errorf("String(%+v) = %q, want %q", tt.p, got, tt.want)
		}
	}
}
