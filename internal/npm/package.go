package npm

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
)

var (
	// ErrPackageNotFound is returned when the registry has no such package
	ErrPackageNotFound = errors.New("package not found")
	// ErrVersionNotFound is returned when no published version satisfies the request
	ErrVersionNotFound = errors.New("version not found")
	// ErrIntegrity is returned when a tarball does not match its published checksum
	ErrIntegrity = errors.New("tarball checksum mismatch")
)

// Package is a fetched package held in memory
type Package struct {
	Name     string
	Version  string
	Manifest *Manifest
	// Files maps package-relative paths to source text; package.json included
	Files map[string]string
	// TarballSize is the compressed download size, zero for local packages
	TarballSize int
}

// Fetcher loads a package by name and version range
type Fetcher interface {
	Fetch(ctx context.Context, name, version string) (*Package, error)
}

// TotalSize sums the byte length of every file
func (p *Package) TotalSize() int {
	total := 0
	for _, content := range p.Files {
		total += len(content)
	}
	return total
}

// newPackage builds a Package from extracted files, reading package.json
func newPackage(files map[string]string, fallbackName string) (*Package, error) {
	raw, ok := files["package.json"]
	if !ok {
		return nil, fmt.Errorf("%s: package.json not found", fallbackName)
	}
	manifest, err := ParseManifest([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fallbackName, err)
	}
	name := manifest.Name
	if name == "" {
		name = fallbackName
	}
	return &Package{
		Name:     name,
		Version:  manifest.Version,
		Manifest: manifest,
		Files:    files,
	}, nil
}

// skippedDirs are directory names never extracted or loaded
var skippedDirs = map[string]bool{
	"node_modules": true,
	".git":         true,
	"test":         true,
	"tests":        true,
	"__tests__":    true,
	"spec":         true,
	"example":      true,
	"examples":     true,
	"demo":         true,
	"docs":         true,
}

var skippedExts = map[string]bool{
	".md":   true,
	".txt":  true,
	".yml":  true,
	".yaml": true,
	".map":  true,
	".png":  true,
	".jpg":  true,
	".gif":  true,
	".ico":  true,
}

var skippedBases = map[string]bool{
	"license":      true,
	"licence":      true,
	"readme":       true,
	"changelog":    true,
	"contributing": true,
}

// ShouldSkip reports whether a package-relative file is irrelevant to conversion
func ShouldSkip(p string) bool {
	lower := strings.ToLower(CleanPath(p))
	segments := strings.Split(lower, "/")
	for _, dir := range segments[:len(segments)-1] {
		if skippedDirs[dir] {
			return true
		}
	}
	base := segments[len(segments)-1]
	if skippedExts[path.Ext(base)] || skippedBases[base] {
		return true
	}
	return strings.HasSuffix(base, ".test.js") || strings.HasSuffix(base, ".spec.js") ||
		strings.HasSuffix(base, ".test.ts") || strings.HasSuffix(base, ".spec.ts") ||
		strings.HasSuffix(base, ".d.ts")
}

// ParseSpec splits `name@version` into its parts, handling scoped names.
// An absent version is returned as "latest".
func ParseSpec(spec string) (string, string, error) {
	if spec == "" {
		return "", "", fmt.Errorf("invalid package name: %q", spec)
	}
	rest := spec
	scope := ""
	if strings.HasPrefix(spec, "@") {
		slash := strings.IndexByte(spec, '/')
		if slash <= 1 || slash == len(spec)-1 {
			return "", "", fmt.Errorf("invalid package name: %q", spec)
		}
		scope = spec[:slash+1]
		rest = spec[slash+1:]
	}
	name, version, found := strings.Cut(rest, "@")
	if name == "" {
		return "", "", fmt.Errorf("invalid package name: %q", spec)
	}
	if !found || version == "" {
		version = "latest"
	}
	return scope + name, version, nil
}

// SplitSpecifier splits a bare module specifier into package name and sub-path:
// `lodash/fp/map` → (`lodash`, `fp/map`), `@scope/pkg/x` → (`@scope/pkg`, `x`).
func SplitSpecifier(specifier string) (string, string) {
	parts := strings.SplitN(specifier, "/", 3)
	if strings.HasPrefix(specifier, "@") && len(parts) >= 2 {
		name := parts[0] + "/" + parts[1]
		if len(parts) == 3 {
			return name, parts[2]
		}
		return name, ""
	}
	name, sub, _ := strings.Cut(specifier, "/")
	return name, sub
}
