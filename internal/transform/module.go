package transform

import (
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/fluxbase-eu/outpack/internal/jsast"
)

const (
	esModuleMarker = "Object.defineProperty(exports, '__esModule', { value: true });"
	factoryOpen    = "module.exports = (function (module, exports) { "
	factoryClose   = "})(module, exports);\n"
)

// lowerModuleSyntax turns top-level import and export statements into
// require calls and exports assignments. Every replacement spans the same
// lines as the statement it replaces.
func lowerModuleSyntax(f *jsast.File) []jsast.Edit {
	var edits []jsast.Edit
	temp := 0
	tempName := func(prefix string) string {
		name := fmt.Sprintf("__%s_%d", prefix, temp)
		temp++
		return name
	}
	marked := false

	for _, n := range f.TopLevel() {
		text := f.Text(n)
		var code string

		switch n.Type() {
		case "import_statement":
			if f.IsTypeOnly(n) {
				code = ""
				break
			}
			source := n.ChildByFieldName("source")
			if source == nil {
				// import x = require('y') is already CommonJS
				continue
			}
			code = lowerImport(f, n, "require("+f.Text(source)+")", tempName)

		case "export_statement":
			if f.IsTypeOnly(n) {
				code = ""
				break
			}
			code = lowerExport(f, n, tempName)
			if !marked && !strings.HasPrefix(code, "module.exports") {
				code = esModuleMarker + " " + code
				marked = true
			}

		default:
			continue
		}
		edits = append(edits, jsast.Replace(n, jsast.PadLines(text, code)))
	}
	return edits
}

func lowerImport(f *jsast.File, n *sitter.Node, require string, tempName func(string) string) string {
	bindings := f.ImportSpecifiers(n)
	switch len(bindings) {
	case 0:
		return require + ";"
	case 1:
		return bindingCode(bindings, require, true)
	}
	temp := tempName("import")
	return "var " + temp + " = " + require + "; " + bindingCode(bindings, temp, true)
}

func lowerExport(f *jsast.File, n *sitter.Node, tempName func(string) string) string {
	text := f.Text(n)

	// TypeScript `export = value`
	if rest := strings.TrimSpace(strings.TrimPrefix(text, "export")); strings.HasPrefix(rest, "=") {
		return "module.exports " + rest
	}

	if source := n.ChildByFieldName("source"); source != nil {
		require := "require(" + f.Text(source) + ")"
		if ns := jsast.FirstNamed(n, "namespace_export"); ns != nil {
			name := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(strings.TrimPrefix(f.Text(ns), "*")), "as"))
			name = strings.Trim(name, `'"`)
			return "exports" + memberAccess(name) + " = " + require + ";"
		}
		specs := f.ExportSpecifiers(n)
		if len(specs) == 0 {
			return exportStar(require)
		}
		temp := tempName("reexport")
		var b strings.Builder
		b.WriteString("var " + temp + " = " + require + ";")
		for _, spec := range specs {
			fmt.Fprintf(&b, " exports%s = %s%s;", memberAccess(spec.Exported), temp, memberAccess(spec.Local))
		}
		return b.String()
	}

	isDefault := jsast.HasToken(n, "default")
	if decl := n.ChildByFieldName("declaration"); decl != nil {
		declText := f.Text(decl)
		names := f.DeclaredNames(decl)
		if isDefault {
			if len(names) == 0 {
				return "exports.default = " + declText + ";"
			}
			return declText + " exports.default = " + names[0] + ";"
		}
		var b strings.Builder
		b.WriteString(declText)
		for _, name := range names {
			fmt.Fprintf(&b, " exports.%s = %s;", name, name)
		}
		return b.String()
	}

	if value := n.ChildByFieldName("value"); value != nil {
		return "exports.default = " + f.Text(value) + ";"
	}

	var b strings.Builder
	for i, spec := range f.ExportSpecifiers(n) {
		if i > 0 {
			b.WriteString(" ")
		}
		fmt.Fprintf(&b, "exports%s = %s;", memberAccess(spec.Exported), spec.Local)
	}
	return b.String()
}

// exportStar copies every named export of a module onto exports
func exportStar(require string) string {
	return "(function (m) { for (var k in m) { if (k !== 'default' && !Object.prototype.hasOwnProperty.call(exports, k)) { exports[k] = m[k]; } } })(" + require + ");"
}

// trailingExport finds a final top-level `module.exports = value;` statement
// and returns it with its value
func trailingExport(f *jsast.File) (*sitter.Node, *sitter.Node) {
	top := f.TopLevel()
	if len(top) == 0 {
		return nil, nil
	}
	last := top[len(top)-1]
	if last.Type() != "expression_statement" || last.NamedChildCount() == 0 {
		return nil, nil
	}
	assign := last.NamedChild(0)
	if assign.Type() != "assignment_expression" || !f.IsMember(assign.ChildByFieldName("left"), "module", "exports") {
		return nil, nil
	}
	return last, assign.ChildByFieldName("right")
}

// wrapFactory wraps a CommonJS body in a factory taking (module, exports).
// The factory result is stored back on module.exports, so a trailing
// `module.exports = value` becomes `return value` inside the factory. The
// opening shares the first source line so line numbers are kept.
func wrapFactory(f *jsast.File) []jsast.Edit {
	var edits []jsast.Edit
	if first := f.Root.Child(0); first != nil && first.Type() == "hash_bang_line" {
		edits = append(edits, jsast.Replace(first, ""))
	}

	start := uint32(0)
	if len(edits) > 0 {
		start = edits[0].End
	}
	edits = append(edits, jsast.InsertAt(start, factoryOpen))

	closing := "\nreturn module.exports;\n" + factoryClose
	if stmt, value := trailingExport(f); stmt != nil && value != nil {
		edits = append(edits, jsast.Replace(stmt, "return "+f.Text(value)+";"))
		closing = "\n" + factoryClose
	}
	edits = append(edits, jsast.InsertAt(uint32(len(f.Source)), closing))
	return edits
}
