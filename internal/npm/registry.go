package npm

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha1" //nolint:gosec // npm publishes sha1 shasums
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	// DefaultRegistry is the public npm registry
	DefaultRegistry = "https://registry.npmjs.org"
	// maxFileSize bounds a single extracted file
	maxFileSize = 8 << 20
)

// Packument is the registry metadata document for one package
type Packument struct {
	Name     string                    `json:"name"`
	DistTags map[string]string         `json:"dist-tags"`
	Versions map[string]PackageVersion `json:"versions"`
}

// PackageVersion is one published version inside a Packument
type PackageVersion struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Dist    Dist   `json:"dist"`
}

// Dist locates the tarball of a version
type Dist struct {
	Tarball   string `json:"tarball"`
	Shasum    string `json:"shasum"`
	Integrity string `json:"integrity,omitempty"`
}

// RegistryClient talks to an npm-compatible registry
type RegistryClient struct {
	// BaseURL is the registry root
	BaseURL string

	// HTTPClient is the underlying HTTP client
	HTTPClient *http.Client

	// UserAgent to use for requests
	UserAgent string

	// AuthToken is sent as a bearer token when set
	AuthToken string

	cache   *Cache
	limiter *rate.Limiter
}

// RegistryOption configures the client
type RegistryOption func(*RegistryClient)

// NewRegistryClient creates a registry client
func NewRegistryClient(baseURL string, opts ...RegistryOption) *RegistryClient {
	if baseURL == "" {
		baseURL = DefaultRegistry
	}
	c := &RegistryClient{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		UserAgent: "outpack/1.0",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithTimeout sets the HTTP timeout
func WithTimeout(timeout time.Duration) RegistryOption {
	return func(c *RegistryClient) {
		c.HTTPClient.Timeout = timeout
	}
}

// WithUserAgent overrides the User-Agent header
func WithUserAgent(ua string) RegistryOption {
	return func(c *RegistryClient) {
		if ua != "" {
			c.UserAgent = ua
		}
	}
}

// WithAuthToken sets a registry bearer token
func WithAuthToken(token string) RegistryOption {
	return func(c *RegistryClient) {
		c.AuthToken = token
	}
}

// WithCache enables metadata caching
func WithCache(cache *Cache) RegistryOption {
	return func(c *RegistryClient) {
		c.cache = cache
	}
}

// WithRateLimit caps requests per second; zero or less leaves them unlimited
func WithRateLimit(perSecond float64) RegistryOption {
	return func(c *RegistryClient) {
		if perSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// Metadata returns the packument for name, from cache when fresh
func (c *RegistryClient) Metadata(ctx context.Context, name string) (*Packument, error) {
	cacheKey := "packument:" + c.BaseURL + ":" + name
	if c.cache != nil {
		if data, ok, err := c.cache.Get(cacheKey); err != nil {
			log.Warn().Err(err).Str("package", name).Msg("Package cache read failed")
		} else if ok {
			var doc Packument
			if err := json.Unmarshal(data, &doc); err == nil {
				log.Debug().Str("package", name).Msg("Using cached metadata")
				return &doc, nil
			}
		}
	}

	u := c.BaseURL + "/" + escapeName(name)
	log.Debug().Str("url", u).Msg("Fetching package metadata")

	data, err := c.get(ctx, u, "application/json")
	if err != nil {
		if errors.Is(err, errNotFound) {
			return nil, fmt.Errorf("%s: %w", name, ErrPackageNotFound)
		}
		return nil, fmt.Errorf("failed to fetch metadata for %s: %w", name, err)
	}

	var doc Packument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse metadata for %s: %w", name, err)
	}

	if c.cache != nil {
		if err := c.cache.Set(cacheKey, data); err != nil {
			log.Warn().Err(err).Str("package", name).Msg("Package cache write failed")
		}
	}
	return &doc, nil
}

// ResolveVersion picks a published version: an exact version, a dist-tag,
// or the highest version satisfying a semver range.
func ResolveVersion(doc *Packument, want string) (string, error) {
	if want == "" || want == "*" {
		want = "latest"
	}
	if _, ok := doc.Versions[want]; ok {
		return want, nil
	}
	if tagged, ok := doc.DistTags[want]; ok {
		return tagged, nil
	}

	constraint, err := semver.NewConstraint(want)
	if err != nil {
		return "", fmt.Errorf("%s@%s: %w", doc.Name, want, ErrVersionNotFound)
	}

	var candidates []*semver.Version
	for raw := range doc.Versions {
		v, err := semver.NewVersion(raw)
		if err != nil {
			continue
		}
		if constraint.Check(v) {
			candidates = append(candidates, v)
		}
	}
	if len(candidates) == 0 {
		return "", fmt.Errorf("%s@%s: %w", doc.Name, want, ErrVersionNotFound)
	}
	sort.Sort(semver.Collection(candidates))
	return candidates[len(candidates)-1].Original(), nil
}

// Fetch resolves a version, downloads its tarball and extracts it in memory
func (c *RegistryClient) Fetch(ctx context.Context, name, version string) (*Package, error) {
	doc, err := c.Metadata(ctx, name)
	if err != nil {
		return nil, err
	}
	resolved, err := ResolveVersion(doc, version)
	if err != nil {
		return nil, err
	}
	info, ok := doc.Versions[resolved]
	if !ok {
		return nil, fmt.Errorf("%s@%s: %w", name, resolved, ErrVersionNotFound)
	}

	log.Info().Str("package", name).Str("version", resolved).Msg("Downloading package")
	tarball, err := c.get(ctx, info.Dist.Tarball, "application/octet-stream")
	if err != nil {
		return nil, fmt.Errorf("failed to download %s@%s: %w", name, resolved, err)
	}

	if info.Dist.Shasum != "" {
		sum := sha1.Sum(tarball) //nolint:gosec
		if !strings.EqualFold(hex.EncodeToString(sum[:]), info.Dist.Shasum) {
			return nil, fmt.Errorf("%s@%s: %w", name, resolved, ErrIntegrity)
		}
	}

	files, err := ExtractTarball(bytes.NewReader(tarball))
	if err != nil {
		return nil, fmt.Errorf("failed to extract %s@%s: %w", name, resolved, err)
	}

	pkg, err := newPackage(files, name)
	if err != nil {
		return nil, err
	}
	if pkg.Version == "" {
		pkg.Version = resolved
	}
	pkg.TarballSize = len(tarball)

	log.Debug().
		Str("package", name).
		Str("version", resolved).
		Int("files", len(files)).
		Msg("Package extracted")
	return pkg, nil
}

var errNotFound = errors.New("not found")

func (c *RegistryClient) get(ctx context.Context, u, accept string) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("User-Agent", c.UserAgent)
	if c.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.AuthToken)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, errNotFound
	}
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("registry returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return data, nil
}

// escapeName keeps the scope separator encoded the way the registry expects
func escapeName(name string) string {
	if strings.HasPrefix(name, "@") {
		return "@" + url.PathEscape(name[1:])
	}
	return url.PathEscape(name)
}

// ExtractTarball reads a gzipped npm tarball, dropping the leading `package/`
// directory and anything ShouldSkip rejects
func ExtractTarball(r io.Reader) (map[string]string, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("invalid gzip stream: %w", err)
	}
	defer func() { _ = gz.Close() }()

	files := make(map[string]string)
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("invalid tar stream: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}

		name := hdr.Name
		if i := strings.IndexByte(name, '/'); i >= 0 {
			name = name[i+1:]
		}
		name = CleanPath(name)
		if name == "" || name == "." || strings.HasPrefix(name, "..") || ShouldSkip(name) {
			continue
		}
		if hdr.Size > maxFileSize {
			log.Debug().Str("file", name).Int64("size", hdr.Size).Msg("Skipping oversized file")
			continue
		}

		data, err := io.ReadAll(io.LimitReader(tr, maxFileSize))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}
		files[name] = string(data)
	}
	return files, nil
}
