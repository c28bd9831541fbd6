package jsast

import (
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// SyntaxError reports the first error node tree-sitter recovered from
type SyntaxError struct {
	Path   string
	Line   int
	Column int
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error in %s at line %d, column %d", e.Path, e.Line, e.Column)
}

// File is a parsed source file. Source is immutable; rewrites produce a new File.
type File struct {
	Path   string
	Syntax Syntax
	Source []byte
	Root   *sitter.Node

	tree *sitter.Tree
}

func languageFor(syntax Syntax) *sitter.Language {
	switch syntax {
	case SyntaxTS:
		return typescript.GetLanguage()
	case SyntaxTSX:
		return tsx.GetLanguage()
	default:
		// the javascript grammar includes JSX
		return javascript.GetLanguage()
	}
}

// Parse builds the syntax tree for one file. Each call uses its own parser,
// so concurrent calls are safe. A tree containing error nodes is rejected
// with a *SyntaxError; callers decide how to degrade.
func Parse(ctx context.Context, path, content string, syntax Syntax) (*File, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(languageFor(syntax))

	source := []byte(content)
	tree, err := parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	root := tree.RootNode()
	if root.HasError() {
		serr := &SyntaxError{Path: path, Line: 1, Column: 1}
		if bad := firstError(root); bad != nil {
			serr.Line, serr.Column = Position(bad)
		}
		tree.Close()
		return nil, serr
	}

	return &File{
		Path:   path,
		Syntax: syntax,
		Source: source,
		Root:   root,
		tree:   tree,
	}, nil
}

// Close releases the underlying tree
func (f *File) Close() {
	if f != nil && f.tree != nil {
		f.tree.Close()
		f.tree = nil
	}
}

// Text returns the source text covered by n
func (f *File) Text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return n.Content(f.Source)
}

// Code returns the whole source as a string
func (f *File) Code() string {
	return string(f.Source)
}

// Position returns the 1-based line and column of a node
func Position(n *sitter.Node) (int, int) {
	p := n.StartPoint()
	return int(p.Row) + 1, int(p.Column) + 1
}

func firstError(n *sitter.Node) *sitter.Node {
	var found *sitter.Node
	Walk(n, func(c *sitter.Node) bool {
		if found != nil {
			return false
		}
		if c.IsError() || c.IsMissing() {
			found = c
			return false
		}
		return c.HasError()
	})
	return found
}

// Walk visits n and its descendants in source order. Returning false from
// visit skips the children of the node just visited.
func Walk(n *sitter.Node, visit func(*sitter.Node) bool) {
	if n == nil {
		return
	}
	if !visit(n) {
		return
	}
	count := int(n.ChildCount())
	for i := 0; i < count; i++ {
		Walk(n.Child(i), visit)
	}
}

// TopLevel returns the named statements directly under the program node
func (f *File) TopLevel() []*sitter.Node {
	var out []*sitter.Node
	count := int(f.Root.NamedChildCount())
	for i := 0; i < count; i++ {
		child := f.Root.NamedChild(i)
		if child.Type() == "comment" || child.Type() == "hash_bang_line" {
			continue
		}
		out = append(out, child)
	}
	return out
}
