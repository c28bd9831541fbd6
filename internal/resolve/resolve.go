// Package resolve maps module specifiers to in-memory source text.
//
// Resolvers never transform code; they only locate it. Relative
// specifiers resolve inside the importing package, bare specifiers through
// an npm.Fetcher.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/fluxbase-eu/outpack/internal/npm"
)

// ErrNotFound is returned when no resolver can locate a specifier
var ErrNotFound = errors.New("module not found")

// Module is one resolved source file
type Module struct {
	// Name is the canonical node name: `./<path>` inside the root package,
	// the bare specifier for a package entry, `<package>/<path>` otherwise
	Name string
	// Package owns the file; empty for the root package
	Package string
	Version string
	// Path is relative to the package root
	Path string
	Code string
	// Exports lists declared export names when known; nil when unknown
	Exports []string
}

// Resolver locates the module a specifier refers to from an importer
type Resolver interface {
	Resolve(ctx context.Context, specifier string, importer *Module) (*Module, error)
}

// IsRelative reports specifiers that address files rather than packages
func IsRelative(specifier string) bool {
	return strings.HasPrefix(specifier, ".") || strings.HasPrefix(specifier, "/")
}

// probeSuffixes are tried in order after the literal path
var probeSuffixes = []string{"", ".js", ".cjs", ".mjs", ".ts", ".tsx", ".jsx", ".json", "/index.js", "/index.ts", "/index.cjs", "/index.mjs"}

// Probe finds target in files, trying extensions and index files
func Probe(files map[string]string, target string) (string, bool) {
	target = npm.CleanPath(target)
	for _, suffix := range probeSuffixes {
		candidate := target + suffix
		if _, ok := files[candidate]; ok {
			return candidate, true
		}
	}
	return "", false
}

// Join resolves a relative specifier against the importer's directory
func Join(importerPath, specifier string) string {
	if strings.HasPrefix(specifier, "/") {
		return npm.CleanPath(specifier)
	}
	return npm.CleanPath(path.Join(path.Dir(importerPath), specifier))
}

// NodeName builds the canonical graph name of a package file
func NodeName(pkg, filePath string) string {
	if pkg == "" {
		return "./" + filePath
	}
	return pkg + "/" + filePath
}

// FilesResolver resolves relative specifiers inside one package's files
type FilesResolver struct {
	Package string
	Version string
	Files   map[string]string
}

// Resolve handles relative specifiers from modules of the same package
func (r *FilesResolver) Resolve(_ context.Context, specifier string, importer *Module) (*Module, error) {
	if !IsRelative(specifier) || importer == nil || importer.Package != r.Package {
		return nil, ErrNotFound
	}
	p, ok := Probe(r.Files, Join(importer.Path, specifier))
	if !ok {
		return nil, fmt.Errorf("%s from %s: %w", specifier, importer.Name, ErrNotFound)
	}
	return r.Module(p), nil
}

// Module returns the file at p as a Module
func (r *FilesResolver) Module(p string) *Module {
	code := r.Files[p]
	if strings.HasSuffix(p, ".json") {
		code = "module.exports = " + code + ";"
	}
	return &Module{
		Name:    NodeName(r.Package, p),
		Package: r.Package,
		Version: r.Version,
		Path:    p,
		Code:    code,
	}
}

// PackageResolver resolves bare specifiers by fetching packages, and relative
// specifiers inside packages it fetched
type PackageResolver struct {
	Fetcher npm.Fetcher
	// Ranges holds the root package's declared dependency ranges
	Ranges map[string]string

	mu       sync.Mutex
	packages map[string]*npm.Package
	failed   map[string]error
}

// NewPackageResolver creates a resolver over fetcher
func NewPackageResolver(fetcher npm.Fetcher, ranges map[string]string) *PackageResolver {
	return &PackageResolver{
		Fetcher:  fetcher,
		Ranges:   ranges,
		packages: make(map[string]*npm.Package),
		failed:   make(map[string]error),
	}
}

// Resolve handles bare specifiers and relative specifiers from fetched packages
func (r *PackageResolver) Resolve(ctx context.Context, specifier string, importer *Module) (*Module, error) {
	if IsRelative(specifier) {
		if importer == nil || importer.Package == "" {
			return nil, ErrNotFound
		}
		r.mu.Lock()
		pkg := r.packages[importer.Package]
		r.mu.Unlock()
		if pkg == nil {
			return nil, ErrNotFound
		}
		files := &FilesResolver{Package: pkg.Name, Version: pkg.Version, Files: pkg.Files}
		return files.Resolve(ctx, specifier, importer)
	}

	name, sub := npm.SplitSpecifier(specifier)
	pkg, err := r.fetch(ctx, name, r.rangeFor(name, importer))
	if err != nil {
		return nil, err
	}

	entry := pkg.Manifest.BrowserMain()
	if sub != "" {
		entry = sub
	}
	p, ok := Probe(pkg.Files, entry)
	if !ok {
		return nil, fmt.Errorf("%s: entry %s: %w", specifier, entry, ErrNotFound)
	}

	files := &FilesResolver{Package: pkg.Name, Version: pkg.Version, Files: pkg.Files}
	mod := files.Module(p)
	mod.Name = specifier
	return mod, nil
}

func (r *PackageResolver) rangeFor(name string, importer *Module) string {
	if importer != nil && importer.Package != "" {
		r.mu.Lock()
		parent := r.packages[importer.Package]
		r.mu.Unlock()
		if parent != nil && parent.Manifest != nil {
			if v, ok := parent.Manifest.Dependencies[name]; ok {
				return v
			}
		}
	}
	if v, ok := r.Ranges[name]; ok {
		return v
	}
	return "latest"
}

func (r *PackageResolver) fetch(ctx context.Context, name, version string) (*npm.Package, error) {
	r.mu.Lock()
	if pkg, ok := r.packages[name]; ok {
		r.mu.Unlock()
		return pkg, nil
	}
	if err, ok := r.failed[name]; ok {
		r.mu.Unlock()
		return nil, err
	}
	r.mu.Unlock()

	pkg, err := r.Fetcher.Fetch(ctx, name, version)
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		err = fmt.Errorf("%s: %w: %w", name, ErrNotFound, err)
		r.failed[name] = err
		return nil, err
	}
	r.packages[name] = pkg
	if pkg.Name != name {
		r.packages[pkg.Name] = pkg
	}
	return pkg, nil
}

// Chain tries resolvers in order; the first non-ErrNotFound answer wins
type Chain []Resolver

// Resolve returns the first module found
func (c Chain) Resolve(ctx context.Context, specifier string, importer *Module) (*Module, error) {
	var lastErr error
	for _, r := range c {
		mod, err := r.Resolve(ctx, specifier, importer)
		if err == nil {
			return mod, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("%s: %w", specifier, ErrNotFound)
	}
	return nil, lastErr
}

// MapResolver serves bare specifiers from a fixed map of module code
type MapResolver map[string]string

// Resolve looks the specifier up verbatim
func (m MapResolver) Resolve(_ context.Context, specifier string, _ *Module) (*Module, error) {
	code, ok := m[specifier]
	if !ok {
		return nil, fmt.Errorf("%s: %w", specifier, ErrNotFound)
	}
	return &Module{Name: specifier, Package: specifier, Path: "index.js", Code: code}, nil
}
