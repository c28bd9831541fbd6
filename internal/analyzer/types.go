// Package analyzer inspects package sources for Node.js APIs a browser cannot
// provide and decides whether a conversion is feasible.
package analyzer

import (
	"fmt"
	"strings"

	"github.com/fluxbase-eu/outpack/internal/diagnostic"
	"github.com/fluxbase-eu/outpack/internal/jsast"
)

// ModuleType is the module system a file is written for
type ModuleType int

const (
	ModuleUnknown ModuleType = iota
	ModuleCommonJS
	ModuleESM
	ModuleUMD
	ModuleIIFE
)

// String returns the module type name
func (m ModuleType) String() string {
	switch m {
	case ModuleCommonJS:
		return "commonjs"
	case ModuleESM:
		return "esm"
	case ModuleUMD:
		return "umd"
	case ModuleIIFE:
		return "iife"
	default:
		return "unknown"
	}
}

// MarshalText serializes the module type by name
func (m ModuleType) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UsageKind tells how a Node API was reached
type UsageKind int

const (
	UsageRequire UsageKind = iota
	UsageImport
	UsagePropertyAccess
)

// String returns the usage kind name
func (k UsageKind) String() string {
	switch k {
	case UsageRequire:
		return "require"
	case UsageImport:
		return "import"
	case UsagePropertyAccess:
		return "property-access"
	default:
		return "unknown"
	}
}

// MarshalText serializes the usage kind by name
func (k UsageKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// SourceFile is one input file; syntax is detected from path and content
type SourceFile struct {
	Path    string
	Content string
}

// Syntax returns the detected dialect
func (f SourceFile) Syntax() jsast.Syntax {
	return jsast.DetectSyntax(f.Path, f.Content)
}

// ImportEdge is one literal module reference
type ImportEdge struct {
	Specifier string   `json:"specifier" yaml:"specifier"`
	Kind      string   `json:"kind" yaml:"kind"`
	Names     []string `json:"names,omitempty" yaml:"names,omitempty"`
	Line      int      `json:"line,omitempty" yaml:"line,omitempty"`
}

// APIUsage records one reference to a classified Node API
type APIUsage struct {
	API      string               `json:"api" yaml:"api"`
	Kind     UsageKind            `json:"kind" yaml:"kind"`
	Location *diagnostic.Location `json:"location,omitempty" yaml:"location,omitempty"`
}

// ModuleDescriptor is the analysis of one file; it is not modified after creation
type ModuleDescriptor struct {
	Path       string       `json:"path" yaml:"path"`
	Syntax     jsast.Syntax `json:"syntax" yaml:"syntax"`
	ModuleType ModuleType   `json:"module_type" yaml:"module_type"`
	Imports    []ImportEdge `json:"imports,omitempty" yaml:"imports,omitempty"`
	Exports    []string     `json:"exports,omitempty" yaml:"exports,omitempty"`
	Usages     []APIUsage   `json:"node_api_usages,omitempty" yaml:"node_api_usages,omitempty"`
	Size       int          `json:"size" yaml:"size"`
	// Degraded is set when the file was scanned with patterns instead of parsed
	Degraded bool `json:"degraded,omitempty" yaml:"degraded,omitempty"`
}

// PackageInfo is the package metadata the analysis reports
type PackageInfo struct {
	Name            string            `json:"name" yaml:"name"`
	Version         string            `json:"version" yaml:"version"`
	Description     string            `json:"description,omitempty" yaml:"description,omitempty"`
	Main            string            `json:"main,omitempty" yaml:"main,omitempty"`
	EntryPoints     []string          `json:"entry_points" yaml:"entry_points"`
	Dependencies    map[string]string `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	DevDependencies map[string]string `json:"dev_dependencies,omitempty" yaml:"dev_dependencies,omitempty"`
	Keywords        []string          `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	License         string            `json:"license,omitempty" yaml:"license,omitempty"`
}

// DependencyAnalysis classifies the declared dependencies
type DependencyAnalysis struct {
	Total             int        `json:"total_dependencies" yaml:"total_dependencies"`
	Problematic       []string   `json:"problematic_dependencies" yaml:"problematic_dependencies"`
	BrowserCompatible []string   `json:"browser_compatible" yaml:"browser_compatible"`
	NeedsPolyfill     []string   `json:"needs_polyfills" yaml:"needs_polyfills"`
	Circular          [][]string `json:"circular_dependencies" yaml:"circular_dependencies"`
}

// SizeEstimate bounds the output size in bytes
type SizeEstimate struct {
	Min           int `json:"min_size" yaml:"min_size"`
	Max           int `json:"max_size" yaml:"max_size"`
	WithPolyfills int `json:"with_polyfills" yaml:"with_polyfills"`
	Minified      int `json:"minified" yaml:"minified"`
}

// AnalysisResult is the analysis of a whole package and the dry-run payload
type AnalysisResult struct {
	Package            PackageInfo         `json:"package_info" yaml:"package_info"`
	Issues             []diagnostic.Issue  `json:"compatibility_issues" yaml:"compatibility_issues"`
	RequiredPolyfills  []string            `json:"required_polyfills" yaml:"required_polyfills"`
	Dependencies       DependencyAnalysis  `json:"dependency_analysis" yaml:"dependency_analysis"`
	EstimatedSize      SizeEstimate        `json:"estimated_size" yaml:"estimated_size"`
	CompatibilityScore float64             `json:"compatibility_score" yaml:"compatibility_score"`
	Feasible           bool                `json:"feasible" yaml:"feasible"`
	Modules            []*ModuleDescriptor `json:"-" yaml:"-"`
}

// ErrorCount returns the number of error-level issues
func (r *AnalysisResult) ErrorCount() int {
	return diagnostic.Count(r.Issues, diagnostic.LevelError)
}

// WarningCount returns the number of warning-level issues
func (r *AnalysisResult) WarningCount() int {
	return diagnostic.Count(r.Issues, diagnostic.LevelWarning)
}

// Verdict summarizes why a conversion is or is not feasible
func (r *AnalysisResult) Verdict() string {
	if r.Feasible {
		return "conversion is feasible"
	}
	var reasons []string
	if n := r.ErrorCount(); n >= maxErrors {
		reasons = append(reasons, fmt.Sprintf("%d incompatible API uses (limit %d)", n, maxErrors-1))
	}
	deps := r.Dependencies
	if deps.Total > 0 && len(deps.Problematic)*2 > deps.Total {
		reasons = append(reasons, fmt.Sprintf("%d of %d dependencies are problematic", len(deps.Problematic), deps.Total))
	}
	return "conversion is not feasible: " + strings.Join(reasons, "; ")
}
