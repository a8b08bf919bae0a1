package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"molt/internal/manifest"
	"molt/internal/molt"
)

const defaultTimeout = 30 * time.Second

// defaultUserAgent identifies molt to registries that rate-limit
// anonymous clients.
const defaultUserAgent = "molt-updater"

// HTTPRegistry talks to a release registry over HTTPS. The registry
// lists releases for a repository as a JSON array; private repositories
// present an empty list to anonymous callers, so an empty answer is
// reported as molt.ErrRegistryEmpty and never invented into a 404.
type HTTPRegistry struct {
	baseURL    string
	token      string
	userAgent  string
	httpClient *http.Client
}

// Option configures an HTTPRegistry.
type Option func(*HTTPRegistry)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(r *HTTPRegistry) { r.httpClient = c }
}

// WithToken sets the bearer token sent on every request.
func WithToken(token string) Option {
	return func(r *HTTPRegistry) { r.token = token }
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(r *HTTPRegistry) { r.userAgent = ua }
}

// NewHTTPRegistry creates a registry client for the given base URL.
func NewHTTPRegistry(baseURL string, opts ...Option) *HTTPRegistry {
	r := &HTTPRegistry{
		baseURL:    strings.TrimRight(baseURL, "/"),
		userAgent:  defaultUserAgent,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// releaseEntry is the wire form of one published release.
type releaseEntry struct {
	Version       string    `json:"version"`
	ArchiveURL    string    `json:"archive_url"`
	ManifestURL   string    `json:"manifest_url"`
	Notes         string    `json:"notes,omitempty"`
	PublishedAt   time.Time `json:"published_at,omitempty"`
	ArchiveSHA256 string    `json:"archive_sha256,omitempty"`
	Encrypted     bool      `json:"encrypted,omitempty"`
}

// Latest returns the highest-versioned release for the repository.
func (r *HTTPRegistry) Latest(ctx context.Context, repository string) (*molt.ReleaseDescriptor, error) {
	if repository == "" {
		return nil, fmt.Errorf("no repository configured")
	}

	endpoint := fmt.Sprintf("%s/v1/repos/%s/releases", r.baseURL, url.PathEscape(repository))
	body, err := r.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var entries []releaseEntry
	if err := json.NewDecoder(body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decoding release list: %w", err)
	}

	var best *releaseEntry
	for i := range entries {
		e := &entries[i]
		if !molt.ValidVersion(e.Version) {
			continue
		}
		if best == nil || molt.CompareVersions(e.Version, best.Version) > 0 {
			best = e
		}
	}
	if best == nil {
		return nil, fmt.Errorf("%w: repository %q", molt.ErrRegistryEmpty, repository)
	}

	return &molt.ReleaseDescriptor{
		Version:       best.Version,
		ArchiveURL:    r.resolve(best.ArchiveURL),
		ManifestURL:   r.resolve(best.ManifestURL),
		Notes:         best.Notes,
		PublishedAt:   best.PublishedAt,
		ArchiveSHA256: best.ArchiveSHA256,
		Encrypted:     best.Encrypted,
	}, nil
}

// Manifest fetches and validates the release's remote manifest.
func (r *HTTPRegistry) Manifest(ctx context.Context, desc *molt.ReleaseDescriptor) (*manifest.Manifest, error) {
	body, err := r.get(ctx, desc.ManifestURL)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	m, err := manifest.Decode(body)
	if err != nil {
		return nil, fmt.Errorf("remote manifest for %s: %w", desc.Version, err)
	}
	if len(m.Files) == 0 {
		return nil, fmt.Errorf("%w: release %s manifest lists no files", molt.ErrRegistryEmpty, desc.Version)
	}
	return m, nil
}

// get performs an authenticated GET and maps status codes onto the
// error taxonomy. The caller closes the returned body.
func (r *HTTPRegistry) get(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", r.userAgent)
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", molt.ErrNetwork, err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return resp.Body, nil
	case http.StatusUnauthorized, http.StatusForbidden:
		resp.Body.Close()
		return nil, fmt.Errorf("%w (status %d)", molt.ErrUnauthorized, resp.StatusCode)
	case http.StatusNotFound:
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %s not found", molt.ErrRegistryEmpty, rawURL)
	default:
		resp.Body.Close()
		return nil, fmt.Errorf("registry returned status %d for %s", resp.StatusCode, rawURL)
	}
}

// resolve turns a possibly relative artifact URL into an absolute one
// against the registry base.
func (r *HTTPRegistry) resolve(rawURL string) string {
	if rawURL == "" || strings.Contains(rawURL, "://") {
		return rawURL
	}
	return r.baseURL + "/" + strings.TrimLeft(rawURL, "/")
}

// Compile-time check that HTTPRegistry implements molt.Registry
var _ molt.Registry = (*HTTPRegistry)(nil)
