// Package jsast is the syntax-tree interface shared by every pipeline stage.
//
// It wraps tree-sitter parsing for JavaScript, TypeScript, JSX and TSX,
// read-only queries over the resulting tree (require calls, imports,
// exports, CommonJS markers), and byte-range edits that produce new source.
// Analysis code only queries; rewriting code builds edits and reparses.
package jsast

import (
	"path/filepath"
	"strings"
)

// Syntax is the detected source dialect of a file
type Syntax int

const (
	SyntaxJS Syntax = iota
	SyntaxTS
	SyntaxJSX
	SyntaxTSX
)

// String returns the dialect name
func (s Syntax) String() string {
	switch s {
	case SyntaxJS:
		return "js"
	case SyntaxTS:
		return "ts"
	case SyntaxJSX:
		return "jsx"
	case SyntaxTSX:
		return "tsx"
	default:
		return "unknown"
	}
}

// MarshalText serializes the dialect by name
func (s Syntax) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// IsTypeScript reports whether the dialect carries type syntax
func (s Syntax) IsTypeScript() bool {
	return s == SyntaxTS || s == SyntaxTSX
}

// sourceExtensions lists the file extensions the pipeline analyzes and transforms
var sourceExtensions = map[string]bool{
	".js":  true,
	".ts":  true,
	".jsx": true,
	".tsx": true,
	".mjs": true,
	".cjs": true,
}

// IsSourceFile reports whether a path has an analyzable extension
func IsSourceFile(path string) bool {
	return sourceExtensions[strings.ToLower(filepath.Ext(path))]
}

// DetectSyntax picks the dialect from the extension, sniffing plain .js files for JSX
func DetectSyntax(path, content string) Syntax {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ts", ".mts", ".cts":
		return SyntaxTS
	case ".tsx":
		return SyntaxTSX
	case ".jsx":
		return SyntaxJSX
	case ".js", ".mjs", ".cjs":
		if strings.Contains(content, "<") && strings.Contains(content, "/>") {
			return SyntaxJSX
		}
		return SyntaxJS
	default:
		return SyntaxJS
	}
}
