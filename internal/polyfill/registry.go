// Package polyfill holds the browser polyfill sources and inserts them into
// assembled bundles.
package polyfill

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

//go:embed polyfills/*.js
var builtinFS embed.FS

// Descriptor is one registered polyfill
type Descriptor struct {
	// Name is the Node module the polyfill stands in for
	Name   string `json:"name" yaml:"name"`
	Source string `json:"-" yaml:"-"`
	Size   int    `json:"size" yaml:"size"`
	// Custom is set for polyfills loaded from a custom directory
	Custom bool `json:"custom,omitempty" yaml:"custom,omitempty"`
}

// Registry maps module names to polyfill sources. It is filled once at
// start-up and only read afterwards, so it is safe for concurrent use.
type Registry struct {
	polyfills map[string]Descriptor
}

// Builtin returns a registry holding the embedded polyfills
func Builtin() *Registry {
	r := &Registry{polyfills: make(map[string]Descriptor)}
	if err := r.load(builtinFS, "polyfills", false); err != nil {
		// the embedded directory is part of the binary
		panic(fmt.Sprintf("polyfill: embedded sources: %v", err))
	}
	return r
}

// Load returns the built-in registry extended by the `<name>.js` files in
// customDir. Custom files replace built-ins of the same name. An empty
// customDir loads only the built-ins.
func Load(customDir string) (*Registry, error) {
	r := Builtin()
	if customDir == "" {
		return r, nil
	}
	info, err := os.Stat(customDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read custom polyfill directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("custom polyfill path %s is not a directory", customDir)
	}
	if err := r.load(os.DirFS(customDir), ".", true); err != nil {
		return nil, fmt.Errorf("failed to load custom polyfills from %s: %w", customDir, err)
	}
	log.Debug().Str("dir", filepath.Clean(customDir)).Int("polyfills", len(r.polyfills)).Msg("Loaded custom polyfills")
	return r, nil
}

func (r *Registry) load(fsys fs.FS, dir string, custom bool) error {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || path.Ext(entry.Name()) != ".js" {
			continue
		}
		data, err := fs.ReadFile(fsys, path.Join(dir, entry.Name()))
		if err != nil {
			return err
		}
		name := strings.TrimSuffix(entry.Name(), ".js")
		r.polyfills[name] = Descriptor{Name: name, Source: string(data), Size: len(data), Custom: custom}
	}
	return nil
}

// Get returns the polyfill for a module name
func (r *Registry) Get(name string) (Descriptor, bool) {
	d, ok := r.polyfills[name]
	return d, ok
}

// Has reports whether a polyfill is registered
func (r *Registry) Has(name string) bool {
	_, ok := r.polyfills[name]
	return ok
}

// Names lists the registered polyfills in sorted order
func (r *Registry) Names() []string {
	names := lo.Keys(r.polyfills)
	sort.Strings(names)
	return names
}

// Descriptors lists every registered polyfill sorted by name
func (r *Registry) Descriptors() []Descriptor {
	return lo.Map(r.Names(), func(name string, _ int) Descriptor { return r.polyfills[name] })
}
