// Package npm fetches packages from an npm registry or a local directory.
//
// Fetched packages are held entirely in memory as path → source text maps.
// Registry metadata is cached in badger with a TTL.
package npm

import (
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strings"
)

// Manifest is the subset of package.json the converter reads
type Manifest struct {
	Name            string            `json:"name"`
	Version         string            `json:"version"`
	Description     string            `json:"description,omitempty"`
	Main            string            `json:"main,omitempty"`
	Module          string            `json:"module,omitempty"`
	Browser         json.RawMessage   `json:"browser,omitempty"`
	Dependencies    map[string]string `json:"dependencies,omitempty"`
	DevDependencies map[string]string `json:"devDependencies,omitempty"`
	Keywords        []string          `json:"keywords,omitempty"`
	License         json.RawMessage   `json:"license,omitempty"`
}

// ParseManifest decodes package.json bytes
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("invalid package.json: %w", err)
	}
	return &m, nil
}

// BrowserEntry returns the browser field when it is a plain path
func (m *Manifest) BrowserEntry() string {
	var s string
	if len(m.Browser) > 0 && json.Unmarshal(m.Browser, &s) == nil {
		return s
	}
	return ""
}

// BrowserMap returns the browser field when it is an object. A false value
// is reported as an empty replacement.
func (m *Manifest) BrowserMap() map[string]string {
	var raw map[string]json.RawMessage
	if len(m.Browser) == 0 || json.Unmarshal(m.Browser, &raw) != nil {
		return nil
	}
	out := make(map[string]string, len(raw))
	for from, to := range raw {
		var s string
		if json.Unmarshal(to, &s) == nil {
			out[from] = s
		} else {
			out[from] = ""
		}
	}
	return out
}

// LicenseName returns the license as a string, reading the legacy object form too
func (m *Manifest) LicenseName() string {
	if len(m.License) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(m.License, &s) == nil {
		return s
	}
	var obj struct {
		Type string `json:"type"`
	}
	if json.Unmarshal(m.License, &obj) == nil {
		return obj.Type
	}
	return ""
}

// EntryPoints lists main, module and browser entries in that order, falling
// back to index.js
func (m *Manifest) EntryPoints() []string {
	var entries []string
	if m.Main != "" {
		entries = append(entries, m.Main)
	}
	if m.Module != "" {
		entries = append(entries, m.Module)
	}
	if b := m.BrowserEntry(); b != "" {
		entries = append(entries, b)
	} else {
		browser := m.BrowserMap()
		keys := make([]string, 0, len(browser))
		for k := range browser {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if v := browser[k]; v != "" && v != "false" {
				entries = append(entries, v)
			}
		}
	}
	if len(entries) == 0 {
		entries = append(entries, "index.js")
	}
	return entries
}

// BrowserMain picks the file a browser build should load: the browser
// string, then main, then index.js. A browser map may redirect main.
func (m *Manifest) BrowserMain() string {
	if b := m.BrowserEntry(); b != "" {
		return CleanPath(b)
	}
	entry := "index.js"
	if m.Main != "" {
		entry = m.Main
	}
	entry = CleanPath(entry)
	for from, to := range m.BrowserMap() {
		if to != "" && CleanPath(from) == entry {
			return CleanPath(to)
		}
	}
	return entry
}

// CleanPath normalizes a package-relative path: no leading ./ or /
func CleanPath(p string) string {
	p = path.Clean(strings.TrimPrefix(p, "/"))
	return strings.TrimPrefix(p, "./")
}
