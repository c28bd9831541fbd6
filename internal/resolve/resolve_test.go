package resolve

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxbase-eu/outpack/internal/npm"
)

type fakeFetcher struct {
	packages map[string]*npm.Package
	calls    map[string]int
	versions map[string]string
}

func (f *fakeFetcher) Fetch(_ context.Context, name, version string) (*npm.Package, error) {
	if f.calls == nil {
		f.calls = make(map[string]int)
		f.versions = make(map[string]string)
	}
	f.calls[name]++
	f.versions[name] = version
	pkg, ok := f.packages[name]
	if !ok {
		return nil, npm.ErrPackageNotFound
	}
	return pkg, nil
}

func pkg(t *testing.T, manifest string, files map[string]string) *npm.Package {
	t.Helper()
	m, err := npm.ParseManifest([]byte(manifest))
	require.NoError(t, err)
	files["package.json"] = manifest
	return &npm.Package{Name: m.Name, Version: m.Version, Manifest: m, Files: files}
}

func TestProbeAndJoin(t *testing.T) {
	files := map[string]string{
		"lib/a.js":       "",
		"lib/b/index.js": "",
		"data.json":      "",
	}

	tests := []struct {
		target string
		want   string
		ok     bool
	}{
		{"lib/a", "lib/a.js", true},
		{"lib/a.js", "lib/a.js", true},
		{"./lib/b", "lib/b/index.js", true},
		{"data", "data.json", true},
		{"lib/c", "", false},
	}
	for _, tt := range tests {
		got, ok := Probe(files, tt.target)
		assert.Equal(t, tt.ok, ok, tt.target)
		assert.Equal(t, tt.want, got, tt.target)
	}

	assert.Equal(t, "lib/util.js", Join("lib/index.js", "./util.js"))
	assert.Equal(t, "util", Join("lib/index.js", "../util"))
	assert.Equal(t, "x/y", Join("lib/index.js", "/x/y"))
}

func TestFilesResolver(t *testing.T) {
	r := &FilesResolver{Files: map[string]string{
		"index.js":      "require('./lib/helper')",
		"lib/helper.js": "module.exports = 1;",
		"config.json":   `{"a": 1}`,
	}}
	root := r.Module("index.js")
	assert.Equal(t, "./index.js", root.Name)

	mod, err := r.Resolve(context.Background(), "./lib/helper", root)
	require.NoError(t, err)
	assert.Equal(t, "./lib/helper.js", mod.Name)
	assert.Equal(t, "lib/helper.js", mod.Path)

	cfg, err := r.Resolve(context.Background(), "./config.json", root)
	require.NoError(t, err)
	assert.Equal(t, `module.exports = {"a": 1};`, cfg.Code)

	_, err = r.Resolve(context.Background(), "./missing", root)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = r.Resolve(context.Background(), "lodash", root)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPackageResolver(t *testing.T) {
	fetcher := &fakeFetcher{packages: map[string]*npm.Package{
		"lodash": pkg(t, `{"name": "lodash", "version": "4.17.21", "main": "lodash.js"}`, map[string]string{
			"lodash.js": "module.exports = require('./map');",
			"map.js":    "module.exports = function map() {};",
			"fp/map.js": "module.exports = 2;",
		}),
		"@scope/ui": pkg(t, `{"name": "@scope/ui", "version": "1.0.0", "browser": "dist/ui.browser.js", "dependencies": {"lodash": "^3.0.0"}}`, map[string]string{
			"dist/ui.browser.js": "require('lodash')",
		}),
	}}
	r := NewPackageResolver(fetcher, map[string]string{"lodash": "^4.0.0"})
	root := &Module{Name: "./index.js", Path: "index.js"}

	mod, err := r.Resolve(context.Background(), "lodash", root)
	require.NoError(t, err)
	assert.Equal(t, "lodash", mod.Name)
	assert.Equal(t, "lodash", mod.Package)
	assert.Equal(t, "4.17.21", mod.Version)
	assert.Equal(t, "lodash.js", mod.Path)
	assert.Equal(t, "^4.0.0", fetcher.versions["lodash"])

	inner, err := r.Resolve(context.Background(), "./map", mod)
	require.NoError(t, err)
	assert.Equal(t, "lodash/map.js", inner.Name)

	sub, err := r.Resolve(context.Background(), "lodash/fp/map", root)
	require.NoError(t, err)
	assert.Equal(t, "lodash/fp/map", sub.Name)
	assert.Equal(t, "fp/map.js", sub.Path)
	assert.Equal(t, 1, fetcher.calls["lodash"])

	ui, err := r.Resolve(context.Background(), "@scope/ui", root)
	require.NoError(t, err)
	assert.Equal(t, "dist/ui.browser.js", ui.Path)

	_, err = r.Resolve(context.Background(), "nope", root)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = r.Resolve(context.Background(), "nope", root)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, fetcher.calls["nope"])
}

func TestPackageResolver_NestedRange(t *testing.T) {
	fetcher := &fakeFetcher{packages: map[string]*npm.Package{
		"ui": pkg(t, `{"name": "ui", "version": "1.0.0", "dependencies": {"dep": "~2.1.0"}}`, map[string]string{
			"index.js": "require('dep')",
		}),
		"dep": pkg(t, `{"name": "dep", "version": "2.1.3"}`, map[string]string{"index.js": ""}),
	}}
	r := NewPackageResolver(fetcher, nil)

	ui, err := r.Resolve(context.Background(), "ui", nil)
	require.NoError(t, err)
	assert.Equal(t, "latest", fetcher.versions["ui"])

	_, err = r.Resolve(context.Background(), "dep", ui)
	require.NoError(t, err)
	assert.Equal(t, "~2.1.0", fetcher.versions["dep"])
}

type failingResolver struct{ err error }

func (f failingResolver) Resolve(context.Context, string, *Module) (*Module, error) {
	return nil, f.err
}

func TestChain(t *testing.T) {
	chain := Chain{MapResolver{}, MapResolver{"a": "module.exports = 1;"}}
	mod, err := chain.Resolve(context.Background(), "a", nil)
	require.NoError(t, err)
	assert.Equal(t, "a", mod.Name)

	_, err = chain.Resolve(context.Background(), "b", nil)
	assert.ErrorIs(t, err, ErrNotFound)

	boom := errors.New("boom")
	_, err = Chain{failingResolver{boom}, MapResolver{"a": ""}}.Resolve(context.Background(), "a", nil)
	assert.ErrorIs(t, err, boom)

	_, err = Chain{}.Resolve(context.Background(), "a", nil)
	assert.ErrorIs(t, err, ErrNotFound)
}
