package jsast

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// ImportKind tells how a module specifier was referenced
type ImportKind int

const (
	KindRequire ImportKind = iota
	KindImport
	KindReExport
	KindDynamic
)

// String returns the kind name
func (k ImportKind) String() string {
	switch k {
	case KindRequire:
		return "require"
	case KindImport:
		return "import"
	case KindReExport:
		return "re-export"
	case KindDynamic:
		return "dynamic-import"
	default:
		return "unknown"
	}
}

// ImportRef is one literal module reference found in a file
type ImportRef struct {
	Specifier string
	Kind      ImportKind
	Line      int
	Column    int
	// Names lists the bindings an import declaration introduces, when known
	Names []string
	// TypeOnly marks TypeScript `import type` declarations
	TypeOnly bool
	Node     *sitter.Node
}

// StringValue returns the value of a string literal, or of a template literal
// without substitutions. Escape sequences are kept as written.
func (f *File) StringValue(n *sitter.Node) (string, bool) {
	if n == nil {
		return "", false
	}
	switch n.Type() {
	case "string":
		text := f.Text(n)
		if len(text) < 2 {
			return "", false
		}
		return text[1 : len(text)-1], true
	case "template_string":
		count := int(n.NamedChildCount())
		for i := 0; i < count; i++ {
			if n.NamedChild(i).Type() == "template_substitution" {
				return "", false
			}
		}
		text := f.Text(n)
		if len(text) < 2 {
			return "", false
		}
		return text[1 : len(text)-1], true
	}
	return "", false
}

// RequireSpecifier matches `require(<literal>)` and returns the literal
func (f *File) RequireSpecifier(n *sitter.Node) (string, bool) {
	if n == nil || n.Type() != "call_expression" {
		return "", false
	}
	fn := n.ChildByFieldName("function")
	if fn == nil || fn.Type() != "identifier" || f.Text(fn) != "require" {
		return "", false
	}
	return f.firstArgumentString(n)
}

// DynamicImportSpecifier matches `import(<literal>)`
func (f *File) DynamicImportSpecifier(n *sitter.Node) (string, bool) {
	if n == nil || n.Type() != "call_expression" {
		return "", false
	}
	fn := n.ChildByFieldName("function")
	if fn == nil || fn.Type() != "import" {
		return "", false
	}
	return f.firstArgumentString(n)
}

func (f *File) firstArgumentString(call *sitter.Node) (string, bool) {
	args := call.ChildByFieldName("arguments")
	if args == nil || args.NamedChildCount() == 0 {
		return "", false
	}
	return f.StringValue(args.NamedChild(0))
}

// ImportSource returns the `from` literal of an import or re-export statement
func (f *File) ImportSource(n *sitter.Node) (string, bool) {
	if n == nil || (n.Type() != "import_statement" && n.Type() != "export_statement") {
		return "", false
	}
	return f.StringValue(n.ChildByFieldName("source"))
}

// IsTypeOnly reports TypeScript `import type` / `export type` statements
func (f *File) IsTypeOnly(n *sitter.Node) bool {
	count := int(n.ChildCount())
	for i := 0; i < count; i++ {
		child := n.Child(i)
		if !child.IsNamed() && child.Type() == "type" {
			return true
		}
	}
	if n.Type() == "export_statement" {
		if decl := n.ChildByFieldName("declaration"); decl != nil {
			switch decl.Type() {
			case "type_alias_declaration", "interface_declaration":
				return true
			}
		}
	}
	return false
}

// ImportBindings lists the local names an import_statement introduces
func (f *File) ImportBindings(n *sitter.Node) []string {
	var names []string
	Walk(n, func(c *sitter.Node) bool {
		switch c.Type() {
		case "import_specifier":
			if alias := c.ChildByFieldName("alias"); alias != nil {
				names = append(names, f.Text(alias))
			} else if name := c.ChildByFieldName("name"); name != nil {
				names = append(names, f.Text(name))
			}
			return false
		case "namespace_import":
			if id := FirstNamed(c, "identifier"); id != nil {
				names = append(names, f.Text(id))
			}
			return false
		case "import_clause", "named_imports":
			return true
		case "identifier":
			if p := c.Parent(); p != nil && p.Type() == "import_clause" {
				names = append(names, f.Text(c))
			}
			return false
		}
		return c.Type() == "import_statement"
	})
	return names
}

// ImportBinding is one local name introduced by an import declaration
type ImportBinding struct {
	Local string
	// Imported is the exported name, "default", or "*" for a namespace import
	Imported string
}

// ImportSpecifiers lists the value bindings of an import_statement.
// TypeScript `type` specifiers are left out.
func (f *File) ImportSpecifiers(n *sitter.Node) []ImportBinding {
	clause := FirstNamed(n, "import_clause")
	if clause == nil {
		return nil
	}
	var out []ImportBinding
	count := int(clause.NamedChildCount())
	for i := 0; i < count; i++ {
		c := clause.NamedChild(i)
		switch c.Type() {
		case "identifier":
			out = append(out, ImportBinding{Local: f.Text(c), Imported: "default"})
		case "namespace_import":
			if id := FirstNamed(c, "identifier"); id != nil {
				out = append(out, ImportBinding{Local: f.Text(id), Imported: "*"})
			}
		case "named_imports":
			specs := int(c.NamedChildCount())
			for j := 0; j < specs; j++ {
				spec := c.NamedChild(j)
				if spec.Type() != "import_specifier" || HasToken(spec, "type") {
					continue
				}
				name := f.exportName(spec.ChildByFieldName("name"))
				local := name
				if alias := spec.ChildByFieldName("alias"); alias != nil {
					local = f.Text(alias)
				}
				out = append(out, ImportBinding{Local: local, Imported: name})
			}
		}
	}
	return out
}

// ExportBinding is one entry of an export clause
type ExportBinding struct {
	Local    string
	Exported string
}

// ExportSpecifiers lists the entries of an export statement's clause
func (f *File) ExportSpecifiers(n *sitter.Node) []ExportBinding {
	clause := FirstNamed(n, "export_clause")
	if clause == nil {
		return nil
	}
	var out []ExportBinding
	count := int(clause.NamedChildCount())
	for i := 0; i < count; i++ {
		spec := clause.NamedChild(i)
		if spec.Type() != "export_specifier" || HasToken(spec, "type") {
			continue
		}
		local := f.exportName(spec.ChildByFieldName("name"))
		exported := local
		if alias := spec.ChildByFieldName("alias"); alias != nil {
			exported = f.exportName(alias)
		}
		out = append(out, ExportBinding{Local: local, Exported: exported})
	}
	return out
}

// exportName reads an identifier or a string module export name
func (f *File) exportName(n *sitter.Node) string {
	if s, ok := f.StringValue(n); ok {
		return s
	}
	return f.Text(n)
}

// Imports collects every literal module reference in source order
func (f *File) Imports() []ImportRef {
	var refs []ImportRef
	Walk(f.Root, func(n *sitter.Node) bool {
		switch n.Type() {
		case "comment":
			return false
		case "import_statement":
			if spec, ok := f.ImportSource(n); ok {
				line, col := Position(n)
				refs = append(refs, ImportRef{
					Specifier: spec,
					Kind:      KindImport,
					Line:      line,
					Column:    col,
					Names:     f.ImportBindings(n),
					TypeOnly:  f.IsTypeOnly(n),
					Node:      n,
				})
			}
			return false
		case "export_statement":
			if spec, ok := f.ImportSource(n); ok {
				line, col := Position(n)
				refs = append(refs, ImportRef{Specifier: spec, Kind: KindReExport, Line: line, Column: col, TypeOnly: f.IsTypeOnly(n), Node: n})
				return false
			}
		case "call_expression":
			if spec, ok := f.RequireSpecifier(n); ok {
				line, col := Position(n)
				refs = append(refs, ImportRef{Specifier: spec, Kind: KindRequire, Line: line, Column: col, Node: n})
			} else if spec, ok := f.DynamicImportSpecifier(n); ok {
				line, col := Position(n)
				refs = append(refs, ImportRef{Specifier: spec, Kind: KindDynamic, Line: line, Column: col, Node: n})
			}
		}
		return true
	})
	return refs
}

// IsMember matches `<object>.<property>` where object is a plain identifier
func (f *File) IsMember(n *sitter.Node, object, property string) bool {
	if n == nil || n.Type() != "member_expression" {
		return false
	}
	obj := n.ChildByFieldName("object")
	prop := n.ChildByFieldName("property")
	if obj == nil || prop == nil || obj.Type() != "identifier" {
		return false
	}
	return f.Text(obj) == object && f.Text(prop) == property
}

// ProcessEnvAccesses returns every `process.env` member expression
func (f *File) ProcessEnvAccesses() []*sitter.Node {
	var out []*sitter.Node
	Walk(f.Root, func(n *sitter.Node) bool {
		if n.Type() == "comment" {
			return false
		}
		if f.IsMember(n, "process", "env") {
			out = append(out, n)
			return false
		}
		return true
	})
	return out
}

// HasCommonJSMarkers reports `module.exports` or `exports.<name>` usage
func (f *File) HasCommonJSMarkers() bool {
	found := false
	Walk(f.Root, func(n *sitter.Node) bool {
		if found || n.Type() == "comment" {
			return false
		}
		if n.Type() == "member_expression" {
			if f.IsMember(n, "module", "exports") {
				found = true
				return false
			}
			if obj := n.ChildByFieldName("object"); obj != nil && obj.Type() == "identifier" && f.Text(obj) == "exports" {
				found = true
				return false
			}
		}
		return true
	})
	return found
}

// HasModuleSyntax reports top-level import or export statements
func (f *File) HasModuleSyntax() bool {
	for _, n := range f.TopLevel() {
		if n.Type() == "import_statement" || n.Type() == "export_statement" {
			return true
		}
	}
	return false
}

// Exports lists exported names: ES export declarations and clauses, CommonJS
// `exports.x =` / `module.exports.x =` assignments, and the keys of an object
// literal assigned to `module.exports`.
func (f *File) Exports() []string {
	seen := make(map[string]bool)
	var names []string
	add := func(name string) {
		if name != "" && !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}

	for _, n := range f.TopLevel() {
		if n.Type() != "export_statement" || f.IsTypeOnly(n) {
			continue
		}
		if decl := n.ChildByFieldName("declaration"); decl != nil {
			if HasToken(n, "default") {
				add("default")
				continue
			}
			for _, name := range f.DeclaredNames(decl) {
				add(name)
			}
			continue
		}
		if HasToken(n, "default") {
			add("default")
			continue
		}
		for _, spec := range f.ExportSpecifiers(n) {
			add(spec.Exported)
		}
	}

	Walk(f.Root, func(n *sitter.Node) bool {
		if n.Type() == "comment" {
			return false
		}
		if n.Type() != "assignment_expression" {
			return true
		}
		left := n.ChildByFieldName("left")
		if left == nil || left.Type() != "member_expression" {
			return true
		}
		obj := left.ChildByFieldName("object")
		prop := left.ChildByFieldName("property")
		switch {
		case obj != nil && obj.Type() == "identifier" && f.Text(obj) == "exports":
			add(f.Text(prop))
		case obj != nil && f.IsMember(obj, "module", "exports"):
			add(f.Text(prop))
		case f.IsMember(left, "module", "exports"):
			for _, key := range f.ObjectKeys(n.ChildByFieldName("right")) {
				add(key)
			}
		}
		return true
	})

	return names
}

// DeclaredNames lists the identifiers a declaration binds
func (f *File) DeclaredNames(decl *sitter.Node) []string {
	switch decl.Type() {
	case "function_declaration", "generator_function_declaration", "class_declaration",
		"abstract_class_declaration", "enum_declaration":
		if name := decl.ChildByFieldName("name"); name != nil {
			return []string{f.Text(name)}
		}
	case "lexical_declaration", "variable_declaration":
		var names []string
		count := int(decl.NamedChildCount())
		for i := 0; i < count; i++ {
			d := decl.NamedChild(i)
			if d.Type() != "variable_declarator" {
				continue
			}
			if name := d.ChildByFieldName("name"); name != nil && name.Type() == "identifier" {
				names = append(names, f.Text(name))
			}
		}
		return names
	}
	return nil
}

// ObjectKeys returns the static keys of an object literal
func (f *File) ObjectKeys(n *sitter.Node) []string {
	if n == nil || n.Type() != "object" {
		return nil
	}
	var keys []string
	count := int(n.NamedChildCount())
	for i := 0; i < count; i++ {
		c := n.NamedChild(i)
		switch c.Type() {
		case "shorthand_property_identifier":
			keys = append(keys, f.Text(c))
		case "pair":
			if key := c.ChildByFieldName("key"); key != nil {
				if s, ok := f.StringValue(key); ok {
					keys = append(keys, s)
				} else if key.Type() == "property_identifier" {
					keys = append(keys, f.Text(key))
				}
			}
		case "method_definition":
			if name := c.ChildByFieldName("name"); name != nil && name.Type() == "property_identifier" {
				keys = append(keys, f.Text(name))
			}
		}
	}
	return keys
}

// PatternKeys returns the property names an object destructuring pattern reads
func (f *File) PatternKeys(n *sitter.Node) []string {
	if n == nil || n.Type() != "object_pattern" {
		return nil
	}
	var keys []string
	count := int(n.NamedChildCount())
	for i := 0; i < count; i++ {
		c := n.NamedChild(i)
		switch c.Type() {
		case "shorthand_property_identifier_pattern":
			keys = append(keys, f.Text(c))
		case "pair_pattern":
			if key := c.ChildByFieldName("key"); key != nil && key.Type() == "property_identifier" {
				keys = append(keys, f.Text(key))
			}
		case "object_assignment_pattern":
			if left := c.ChildByFieldName("left"); left != nil && left.Type() == "shorthand_property_identifier_pattern" {
				keys = append(keys, f.Text(left))
			}
		}
	}
	return keys
}

// EnclosingStatement climbs to the nearest statement or declaration holding n.
// A declaration directly under an export statement yields the export statement.
func EnclosingStatement(n *sitter.Node) *sitter.Node {
	for cur := n; cur != nil; cur = cur.Parent() {
		t := cur.Type()
		if strings.HasSuffix(t, "_statement") || strings.HasSuffix(t, "_declaration") {
			if p := cur.Parent(); p != nil && p.Type() == "export_statement" {
				return p
			}
			return cur
		}
	}
	return nil
}

// FirstNamed returns the first named child of n with the given type
func FirstNamed(n *sitter.Node, typ string) *sitter.Node {
	count := int(n.NamedChildCount())
	for i := 0; i < count; i++ {
		if c := n.NamedChild(i); c.Type() == typ {
			return c
		}
	}
	return nil
}

// HasToken reports an anonymous child token such as `default` or `*`
func HasToken(n *sitter.Node, typ string) bool {
	count := int(n.ChildCount())
	for i := 0; i < count; i++ {
		c := n.Child(i)
		if !c.IsNamed() && c.Type() == typ {
			return true
		}
	}
	return false
}
