// Package nodeapi classifies Node.js core modules by how a browser build can treat them.
package nodeapi

import (
	"sort"
	"strings"

	"github.com/samber/lo"
)

// Class describes the browser remediation available for a module
type Class int

const (
	// ClassNone is anything that is not a classified Node API
	ClassNone Class = iota
	// ClassIncompatible has no browser equivalent
	ClassIncompatible
	// ClassPolyfillable can be replaced by a bundled polyfill
	ClassPolyfillable
)

var incompatible = map[string]bool{
	"fs":             true,
	"child_process":  true,
	"cluster":        true,
	"worker_threads": true,
	"os":             true,
	"net":            true,
	"http":           true,
	"https":          true,
}

var polyfillable = map[string]bool{
	"crypto":  true,
	"buffer":  true,
	"events":  true,
	"process": true,
	"util":    true,
	"path":    true,
}

// identifiers maps a polyfillable module to the global its polyfill defines
var identifiers = map[string]string{
	"crypto":  "cryptoPolyfill",
	"buffer":  "BufferPolyfill",
	"events":  "EventEmitterPolyfill",
	"process": "processPolyfill",
	"util":    "utilPolyfill",
	"path":    "pathPolyfill",
}

var suggestions = map[string]string{
	"crypto": "Use Web Crypto API",
	"fs":     "File system operations not available in browser",
}

// builtins is module.builtinModules without private and subpath entries
var builtins = map[string]bool{
	"assert": true, "async_hooks": true, "buffer": true, "child_process": true,
	"cluster": true, "console": true, "constants": true, "crypto": true,
	"dgram": true, "diagnostics_channel": true, "dns": true, "domain": true,
	"events": true, "fs": true, "http": true, "http2": true,
	"https": true, "inspector": true, "module": true, "net": true,
	"os": true, "path": true, "perf_hooks": true, "process": true,
	"punycode": true, "querystring": true, "readline": true, "repl": true,
	"stream": true, "string_decoder": true, "sys": true, "timers": true,
	"tls": true, "trace_events": true, "tty": true, "url": true,
	"util": true, "v8": true, "vm": true, "wasi": true,
	"worker_threads": true, "zlib": true,
}

// Normalize strips the node: scheme
func Normalize(specifier string) string {
	return strings.TrimPrefix(specifier, "node:")
}

// Classify returns the class of a module specifier. `node:fs` classifies as fs.
func Classify(specifier string) Class {
	name := Normalize(specifier)
	switch {
	case incompatible[name]:
		return ClassIncompatible
	case polyfillable[name]:
		return ClassPolyfillable
	default:
		return ClassNone
	}
}

// IsNodeAPI reports whether the specifier is a classified Node API
func IsNodeAPI(specifier string) bool {
	return Classify(specifier) != ClassNone
}

// IsBuiltin reports whether the specifier names a Node core module,
// including node: prefixed names and sub-paths such as fs/promises.
func IsBuiltin(specifier string) bool {
	name := Normalize(specifier)
	if i := strings.IndexByte(name, '/'); i >= 0 {
		name = name[:i]
	}
	return builtins[name]
}

// Identifier returns the polyfill global substituted for a module, if any
func Identifier(specifier string) (string, bool) {
	id, ok := identifiers[Normalize(specifier)]
	return id, ok
}

// Suggestion returns a remediation hint for an API
func Suggestion(api string) string {
	if s, ok := suggestions[Normalize(api)]; ok {
		return s
	}
	return "Consider using browser-compatible alternatives"
}

// Incompatible lists the incompatible module names in sorted order
func Incompatible() []string {
	return sortedKeys(incompatible)
}

// Polyfillable lists the polyfillable module names in sorted order
func Polyfillable() []string {
	return sortedKeys(polyfillable)
}

func sortedKeys(m map[string]bool) []string {
	out := lo.Keys(m)
	sort.Strings(out)
	return out
}
