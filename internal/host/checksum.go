package host

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/cespare/xxhash/v2"
)

// Checksum returns the xxHash64 digest of the file at path as 8 big-endian bytes,
// the same digest the catalog publishes in its xxHash lists.
func Checksum(path string) ([]byte, error) {
	//nolint:gosec // G304: path refers to a mod archive chosen by the caller
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = f.Close() }()

	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return nil, fmt.Errorf("hash file: %w", err)
	}
	return h.Sum(nil), nil
}

// ChecksumHex returns Checksum as lower-case hex.
func ChecksumHex(path string) (string, error) {
	sum, err := Checksum(path)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(sum), nil
}
