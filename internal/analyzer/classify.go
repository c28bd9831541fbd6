package analyzer

import (
	"sort"
	"strings"

	"github.com/gobwas/glob"
	"github.com/samber/lo"
)

// problematicPatterns match packages bound to native code or Node internals
var problematicPatterns = lo.Map([]string{
	"fsevents",
	"node-gyp",
	"sqlite3",
	"canvas",
	"sharp",
	"puppeteer",
	"electron",
	"*native*",
	"*gyp*",
}, func(p string, _ int) glob.Glob { return glob.MustCompile(p) })

var browserCompatible = map[string]bool{
	"lodash":     true,
	"moment":     true,
	"axios":      true,
	"uuid":       true,
	"ramda":      true,
	"bluebird":   true,
	"rxjs":       true,
	"immutable":  true,
	"classnames": true,
}

// IsProblematicDependency reports packages a conversion cannot remediate
func IsProblematicDependency(name string) bool {
	for _, p := range problematicPatterns {
		if p.Match(name) {
			return true
		}
	}
	return false
}

// IsBrowserCompatible reports allowlisted packages that need no polyfill
func IsBrowserCompatible(name string) bool {
	return browserCompatible[name]
}

// NeedsPolyfill reports packages whose names suggest Node stream/crypto reliance
func NeedsPolyfill(name string) bool {
	return strings.HasPrefix(name, "crypto") ||
		strings.HasPrefix(name, "buffer") ||
		strings.Contains(name, "stream") ||
		strings.Contains(name, "util")
}

// ClassifyDependencies buckets declared dependencies. Each name lands in at
// most one bucket, checked in problematic, compatible, polyfill order.
func ClassifyDependencies(deps map[string]string) DependencyAnalysis {
	names := lo.Keys(deps)
	sort.Strings(names)

	out := DependencyAnalysis{
		Total:             len(names),
		Problematic:       []string{},
		BrowserCompatible: []string{},
		NeedsPolyfill:     []string{},
		Circular:          [][]string{},
	}
	for _, name := range names {
		switch {
		case IsProblematicDependency(name):
			out.Problematic = append(out.Problematic, name)
		case IsBrowserCompatible(name):
			out.BrowserCompatible = append(out.BrowserCompatible, name)
		case NeedsPolyfill(name):
			out.NeedsPolyfill = append(out.NeedsPolyfill, name)
		}
	}
	return out
}

// DetectModuleType applies fixed text-marker precedence: CommonJS markers win
// over ES syntax, which wins over the UMD and IIFE wrapper shapes.
func DetectModuleType(content string) ModuleType {
	switch {
	case strings.Contains(content, "module.exports") || strings.Contains(content, "exports."):
		return ModuleCommonJS
	case strings.Contains(content, "import ") || strings.Contains(content, "export "):
		return ModuleESM
	case strings.Contains(content, "(function (global, factory)"):
		return ModuleUMD
	case strings.Contains(content, "(function()") || strings.Contains(content, "(function ()"):
		return ModuleIIFE
	default:
		return ModuleUnknown
	}
}
