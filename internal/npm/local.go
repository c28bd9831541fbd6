package npm

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// DirLoader reads a package from a local directory
type DirLoader struct{}

// Load walks dir and returns its package, skipping node_modules and .git
func (DirLoader) Load(ctx context.Context, dir string) (*Package, error) {
	files := make(map[string]string)
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if rel != "." && skippedDirs[strings.ToLower(d.Name())] {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || ShouldSkip(rel) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.Size() > maxFileSize {
			return nil
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", rel, err)
		}
		files[rel] = string(data)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load package from %s: %w", dir, err)
	}

	pkg, err := newPackage(files, filepath.Base(dir))
	if err != nil {
		return nil, err
	}
	log.Debug().Str("dir", dir).Int("files", len(files)).Msg("Loaded local package")
	return pkg, nil
}

// NodeModules fetches dependencies from an installed node_modules directory
type NodeModules struct {
	Dir string
}

// Fetch loads node_modules/<name>; the version range is not checked
func (n NodeModules) Fetch(ctx context.Context, name, _ string) (*Package, error) {
	dir := filepath.Join(n.Dir, filepath.FromSlash(name))
	if _, err := os.Stat(filepath.Join(dir, "package.json")); err != nil {
		return nil, fmt.Errorf("%s: %w", name, ErrPackageNotFound)
	}
	return DirLoader{}.Load(ctx, dir)
}

// Chain tries each fetcher in order until one finds the package
type Chain []Fetcher

// Fetch returns the first package found
func (c Chain) Fetch(ctx context.Context, name, version string) (*Package, error) {
	var lastErr error = fmt.Errorf("%s: %w", name, ErrPackageNotFound)
	for _, f := range c {
		pkg, err := f.Fetch(ctx, name, version)
		if err == nil {
			return pkg, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// Source loads the package a user names on the command line: a local
// directory when the argument is a path, otherwise a registry spec.
type Source struct {
	Registry Fetcher
}

// IsLocal reports whether the argument refers to a directory on disk
func IsLocal(arg string) bool {
	if strings.HasPrefix(arg, ".") || strings.HasPrefix(arg, "/") || filepath.IsAbs(arg) {
		return true
	}
	info, err := os.Stat(arg)
	return err == nil && info.IsDir()
}

// Load resolves arg to a package
func (s Source) Load(ctx context.Context, arg string) (*Package, error) {
	if IsLocal(arg) {
		return DirLoader{}.Load(ctx, arg)
	}
	name, version, err := ParseSpec(arg)
	if err != nil {
		return nil, err
	}
	if s.Registry == nil {
		return nil, fmt.Errorf("no registry configured for %s", arg)
	}
	return s.Registry.Fetch(ctx, name, version)
}
