// Package catalog fetches the remote mod update catalog: a YAML mapping of
// mod name to the latest known build of that mod.
//
// A fetch either yields a complete catalog or an error. Callers treat a nil
// catalog as "updates cannot be determined", which is distinct from a catalog
// in which nothing needs updating.
//
// Example usage:
//
//	client := catalog.NewClient(catalog.DefaultURL)
//	cat, err := client.Fetch(ctx)
//	if err != nil {
//	    // show the error row
//	}
package catalog

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	apperrors "modupdater/internal/errors"
	"modupdater/internal/logging"

	"gopkg.in/yaml.v3"
)

// Default configuration values.
const (
	DefaultURL       = "https://max480-random-stuff.appspot.com/celeste/everest_update.yaml"
	DefaultTimeout   = 30 * time.Second
	DefaultUserAgent = "modupdater-catalog"

	// maxCatalogBytes bounds how much of the remote document is read.
	maxCatalogBytes = 32 << 20
)

// Error variables for specific error conditions.
var (
	ErrNetworkFailure = fmt.Errorf("catalog request failed")
	ErrParse          = fmt.Errorf("catalog document malformed")
)

var log = logging.L("catalog")

// PackageMetadata describes the latest published build of one mod.
type PackageMetadata struct {
	// Name is not part of the wire value; it is back-filled from the map key.
	Name       string   `yaml:"-"`
	Version    string   `yaml:"Version"`
	LastUpdate int64    `yaml:"LastUpdate"`
	URL        string   `yaml:"URL"`
	Hashes     []string `yaml:"xxHash"`

	GameBananaType string `yaml:"GameBananaType,omitempty"`
	GameBananaID   int64  `yaml:"GameBananaId,omitempty"`
	Size           int64  `yaml:"Size,omitempty"`
}

// LastUpdateTime returns LastUpdate as a UTC time.
func (m PackageMetadata) LastUpdateTime() time.Time {
	return time.Unix(m.LastUpdate, 0).UTC()
}

// Accepts reports whether hash is one of the accepted content hashes.
func (m PackageMetadata) Accepts(hash string) bool {
	hash = strings.TrimSpace(hash)
	for _, h := range m.Hashes {
		if strings.EqualFold(h, hash) {
			return true
		}
	}
	return false
}

// Catalog maps mod names to their latest metadata.
type Catalog map[string]PackageMetadata

// Client fetches the catalog document.
type Client struct {
	url        string
	userAgent  string
	httpClient *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client for the catalog client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// NewClient creates a catalog client for the given URL.
func NewClient(url string, opts ...ClientOption) *Client {
	if strings.TrimSpace(url) == "" {
		url = DefaultURL
	}
	c := &Client{
		url:       url,
		userAgent: DefaultUserAgent,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// URL returns the catalog location.
func (c *Client) URL() string {
	return c.url
}

// Fetch downloads and parses the catalog. It never returns a partial catalog:
// any failure yields a nil catalog and an error coded network or parse.
func (c *Client) Fetch(ctx context.Context) (Catalog, error) {
	log.WithField("url", c.url).Info("downloading latest versions list")

	data, err := c.download(ctx)
	if err != nil {
		return nil, apperrors.New(apperrors.CodeNetwork, err.Error(), err)
	}

	cat, err := Parse(data)
	if err != nil {
		return nil, apperrors.New(apperrors.CodeParse, err.Error(), err)
	}

	log.WithField("count", len(cat)).Info("downloaded catalog")
	return cat, nil
}

func (c *Client) download(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", ErrNetworkFailure, err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/yaml, text/yaml, */*")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetworkFailure, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrNetworkFailure, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxCatalogBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrNetworkFailure, err)
	}
	if len(data) > maxCatalogBytes {
		return nil, fmt.Errorf("%w: document exceeds %d bytes", ErrNetworkFailure, maxCatalogBytes)
	}
	return data, nil
}

// Parse decodes a catalog document and back-fills each entry's Name from its key.
func Parse(data []byte) (Catalog, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrParse)
	}

	var raw map[string]*PackageMetadata
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: document is not a mapping", ErrParse)
	}

	cat := make(Catalog, len(raw))
	for name, entry := range raw {
		if entry == nil {
			return nil, fmt.Errorf("%w: entry %q is empty", ErrParse, name)
		}
		meta := *entry
		meta.Name = name
		meta.Hashes = normalizeHashes(entry.Hashes)
		cat[name] = meta
	}
	return cat, nil
}

func normalizeHashes(in []string) []string {
	out := make([]string, 0, len(in))
	for _, h := range in {
		h = strings.ToLower(strings.TrimSpace(h))
		if h != "" {
			out = append(out, h)
		}
	}
	return out
}
