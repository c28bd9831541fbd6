package npm

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha1" //nolint:gosec
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildTarball(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, content := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     "package/" + name,
			Mode:     0644,
			Size:     int64(len(content)),
			Typeflag: tar.TypeReg,
		}))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func TestParseSpec(t *testing.T) {
	tests := []struct {
		spec        string
		wantName    string
		wantVersion string
		wantErr     bool
	}{
		{"lodash", "lodash", "latest", false},
		{"lodash@4.17.21", "lodash", "4.17.21", false},
		{"lodash@^4.0.0", "lodash", "^4.0.0", false},
		{"@types/node", "@types/node", "latest", false},
		{"@types/node@18.0.0", "@types/node", "18.0.0", false},
		{"@scope/pkg@next", "@scope/pkg", "next", false},
		{"", "", "", true},
		{"@scope", "", "", true},
		{"@/x", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			name, version, err := ParseSpec(tt.spec)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, name)
			assert.Equal(t, tt.wantVersion, version)
		})
	}
}

func TestSplitSpecifier(t *testing.T) {
	tests := []struct {
		in, name, sub string
	}{
		{"lodash", "lodash", ""},
		{"lodash/fp/map", "lodash", "fp/map"},
		{"@scope/pkg", "@scope/pkg", ""},
		{"@scope/pkg/lib/x", "@scope/pkg", "lib/x"},
	}
	for _, tt := range tests {
		name, sub := SplitSpecifier(tt.in)
		assert.Equal(t, tt.name, name, tt.in)
		assert.Equal(t, tt.sub, sub, tt.in)
	}
}

func TestManifest(t *testing.T) {
	m, err := ParseManifest([]byte(`{
		"name": "demo",
		"version": "1.2.3",
		"main": "./lib/index.js",
		"module": "es/index.js",
		"browser": {"./lib/index.js": "./lib/browser.js", "fs": false},
		"license": {"type": "MIT"}
	}`))
	require.NoError(t, err)

	assert.Equal(t, []string{"./lib/index.js", "es/index.js", "./lib/browser.js"}, m.EntryPoints())
	assert.Equal(t, "lib/browser.js", m.BrowserMain())
	assert.Equal(t, "MIT", m.LicenseName())
	assert.Equal(t, map[string]string{"./lib/index.js": "./lib/browser.js", "fs": ""}, m.BrowserMap())

	plain, err := ParseManifest([]byte(`{"name": "x", "browser": "dist/x.browser.js", "license": "ISC"}`))
	require.NoError(t, err)
	assert.Equal(t, "dist/x.browser.js", plain.BrowserMain())
	assert.Equal(t, []string{"dist/x.browser.js"}, plain.EntryPoints())
	assert.Equal(t, "ISC", plain.LicenseName())

	empty, err := ParseManifest([]byte(`{"name": "y"}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"index.js"}, empty.EntryPoints())
	assert.Equal(t, "index.js", empty.BrowserMain())

	_, err = ParseManifest([]byte(`{`))
	assert.Error(t, err)
}

func TestShouldSkip(t *testing.T) {
	assert.True(t, ShouldSkip("README.md"))
	assert.True(t, ShouldSkip("test/index.js"))
	assert.True(t, ShouldSkip("lib/__tests__/a.js"))
	assert.True(t, ShouldSkip("LICENSE"))
	assert.True(t, ShouldSkip("src/a.spec.js"))
	assert.True(t, ShouldSkip("types/index.d.ts"))
	assert.False(t, ShouldSkip("src/index.js"))
	assert.False(t, ShouldSkip("lib/attest.js"))
	assert.False(t, ShouldSkip("package.json"))
}

func TestResolveVersion(t *testing.T) {
	doc := &Packument{
		Name:     "demo",
		DistTags: map[string]string{"latest": "1.2.0", "next": "2.0.0-beta.1"},
		Versions: map[string]PackageVersion{
			"1.0.0":        {},
			"1.2.0":        {},
			"1.10.1":       {},
			"2.0.0-beta.1": {},
		},
	}

	tests := []struct {
		want    string
		result  string
		wantErr bool
	}{
		{"1.0.0", "1.0.0", false},
		{"latest", "1.2.0", false},
		{"", "1.2.0", false},
		{"next", "2.0.0-beta.1", false},
		{"^1.0.0", "1.10.1", false},
		{"~1.2.0", "1.2.0", false},
		{">=3.0.0", "", true},
		{"not-a-range", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			got, err := ResolveVersion(doc, tt.want)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrVersionNotFound)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.result, got)
		})
	}
}

func newRegistry(t *testing.T, tarball []byte, shasum string, hits *int32) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/demo":
			if hits != nil {
				atomic.AddInt32(hits, 1)
			}
			doc := Packument{
				Name:     "demo",
				DistTags: map[string]string{"latest": "1.0.0"},
				Versions: map[string]PackageVersion{
					"1.0.0": {Name: "demo", Version: "1.0.0", Dist: Dist{
						Tarball: srv.URL + "/demo/-/demo-1.0.0.tgz",
						Shasum:  shasum,
					}},
				},
			}
			_ = json.NewEncoder(w).Encode(doc)
		case "/demo/-/demo-1.0.0.tgz":
			_, _ = w.Write(tarball)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRegistryClient_Fetch(t *testing.T) {
	tarball := buildTarball(t, map[string]string{
		"package.json": `{"name": "demo", "version": "1.0.0", "main": "index.js"}`,
		"index.js":     "module.exports = 1;",
		"README.md":    "# demo",
		"test/a.js":    "require('assert')",
	})
	sum := sha1.Sum(tarball) //nolint:gosec
	srv := newRegistry(t, tarball, hex.EncodeToString(sum[:]), nil)

	client := NewRegistryClient(srv.URL, WithTimeout(5*time.Second))
	pkg, err := client.Fetch(context.Background(), "demo", "^1.0.0")
	require.NoError(t, err)

	assert.Equal(t, "demo", pkg.Name)
	assert.Equal(t, "1.0.0", pkg.Version)
	assert.Equal(t, len(tarball), pkg.TarballSize)
	assert.Equal(t, "module.exports = 1;", pkg.Files["index.js"])
	assert.NotContains(t, pkg.Files, "README.md")
	assert.NotContains(t, pkg.Files, "test/a.js")
}

func TestRegistryClient_Errors(t *testing.T) {
	tarball := buildTarball(t, map[string]string{"package.json": `{"name": "demo"}`})
	srv := newRegistry(t, tarball, "0000", nil)
	client := NewRegistryClient(srv.URL)

	_, err := client.Fetch(context.Background(), "demo", "latest")
	assert.ErrorIs(t, err, ErrIntegrity)

	_, err = client.Fetch(context.Background(), "missing", "latest")
	assert.ErrorIs(t, err, ErrPackageNotFound)

	_, err = client.Fetch(context.Background(), "demo", "^9.0.0")
	assert.ErrorIs(t, err, ErrVersionNotFound)
}

func TestRegistryClient_RateLimit(t *testing.T) {
	tarball := buildTarball(t, map[string]string{"package.json": `{"name": "demo"}`})
	srv := newRegistry(t, tarball, "", nil)

	assert.Nil(t, NewRegistryClient(srv.URL, WithRateLimit(0)).limiter)

	client := NewRegistryClient(srv.URL, WithRateLimit(50))
	_, err := client.Metadata(context.Background(), "demo")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = client.Metadata(ctx, "demo")
	assert.ErrorContains(t, err, "rate limit wait")
}

func TestRegistryClient_Cache(t *testing.T) {
	var hits int32
	tarball := buildTarball(t, map[string]string{"package.json": `{"name": "demo"}`})
	srv := newRegistry(t, tarball, "", &hits)

	cache, err := OpenCache("", time.Hour)
	require.NoError(t, err)
	defer func() { _ = cache.Close() }()

	client := NewRegistryClient(srv.URL, WithCache(cache))
	_, err = client.Metadata(context.Background(), "demo")
	require.NoError(t, err)
	doc, err := client.Metadata(context.Background(), "demo")
	require.NoError(t, err)

	assert.Equal(t, "demo", doc.Name)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestCache(t *testing.T) {
	cache, err := OpenCache(filepath.Join(t.TempDir(), "cache"), time.Hour)
	require.NoError(t, err)
	defer func() { _ = cache.Close() }()

	_, ok, err := cache.Get("k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cache.Set("k", []byte("v")))
	v, ok, err := cache.Get("k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), v)
}

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0750))
		require.NoError(t, os.WriteFile(p, []byte(content), 0600))
	}
}

func TestDirLoader(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"package.json":                  `{"name": "local-pkg", "version": "0.1.0"}`,
		"index.js":                      "module.exports = require('./lib/a');",
		"lib/a.js":                      "module.exports = 1;",
		"node_modules/dep/index.js":     "x",
		"node_modules/dep/package.json": `{"name": "dep"}`,
		".git/HEAD":                     "ref",
	})

	pkg, err := DirLoader{}.Load(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, "local-pkg", pkg.Name)
	assert.Equal(t, "0.1.0", pkg.Version)
	assert.Len(t, pkg.Files, 3)
	assert.Contains(t, pkg.Files, "lib/a.js")

	dep, err := NodeModules{Dir: filepath.Join(dir, "node_modules")}.Fetch(context.Background(), "dep", "*")
	require.NoError(t, err)
	assert.Equal(t, "dep", dep.Name)

	_, err = NodeModules{Dir: filepath.Join(dir, "node_modules")}.Fetch(context.Background(), "nope", "*")
	assert.ErrorIs(t, err, ErrPackageNotFound)
}

type stubFetcher struct {
	pkg *Package
}

func (s stubFetcher) Fetch(_ context.Context, name, _ string) (*Package, error) {
	if s.pkg != nil && s.pkg.Name == name {
		return s.pkg, nil
	}
	return nil, ErrPackageNotFound
}

func TestChainAndSource(t *testing.T) {
	want := &Package{Name: "b"}
	chain := Chain{stubFetcher{}, stubFetcher{pkg: want}}

	got, err := chain.Fetch(context.Background(), "b", "latest")
	require.NoError(t, err)
	assert.Same(t, want, got)

	_, err = chain.Fetch(context.Background(), "c", "latest")
	assert.ErrorIs(t, err, ErrPackageNotFound)

	src := Source{Registry: chain}
	got, err = src.Load(context.Background(), "b@1.0.0")
	require.NoError(t, err)
	assert.Same(t, want, got)

	assert.True(t, IsLocal("./pkg"))
	assert.True(t, IsLocal(t.TempDir()))
	assert.False(t, IsLocal("lodash"))
}
