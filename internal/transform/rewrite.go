package transform

import (
	"fmt"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/fluxbase-eu/outpack/internal/jsast"
	"github.com/fluxbase-eu/outpack/internal/nodeapi"
)

// neutralizedNote prefixes commented-out statements. @preserve keeps the
// comment through downleveling.
const neutralizedNote = "@preserve incompatible Node.js API"

// substituteModules replaces references to polyfillable modules with their
// polyfill identifiers and records the modules it touched. Re-exports are
// left to the module-system pass, which turns them into require calls.
func substituteModules(f *jsast.File, used map[string]bool) []jsast.Edit {
	var edits []jsast.Edit
	for _, ref := range f.Imports() {
		if ref.TypeOnly {
			continue
		}
		api := nodeapi.Normalize(ref.Specifier)
		if nodeapi.Classify(api) != nodeapi.ClassPolyfillable {
			continue
		}
		id, ok := nodeapi.Identifier(api)
		if !ok {
			continue
		}

		switch ref.Kind {
		case jsast.KindRequire:
			edits = append(edits, jsast.Replace(ref.Node, id))
		case jsast.KindDynamic:
			edits = append(edits, jsast.Replace(ref.Node, "Promise.resolve("+id+")"))
		case jsast.KindImport:
			text := f.Text(ref.Node)
			code := bindingCode(f.ImportSpecifiers(ref.Node), id, false)
			if code == "" {
				code = jsast.CommentOut(text, "polyfilled")
			}
			edits = append(edits, jsast.Replace(ref.Node, jsast.PadLines(text, code)))
		default:
			continue
		}
		used[api] = true
	}
	return edits
}

// substituteEnv rewrites process.env to processPolyfill.env
func substituteEnv(f *jsast.File, used map[string]bool) []jsast.Edit {
	var edits []jsast.Edit
	id, _ := nodeapi.Identifier("process")
	for _, n := range f.ProcessEnvAccesses() {
		edits = append(edits, jsast.Replace(n, id+".env"))
		used["process"] = true
	}
	return edits
}

// neutralize comments out every statement that requires an incompatible
// module. Line counts are kept. Nested hits collapse into the outermost
// statement.
func neutralize(f *jsast.File) ([]jsast.Edit, []string) {
	var stmts []*sitter.Node
	var apis []string
	for _, ref := range f.Imports() {
		if ref.TypeOnly || nodeapi.Classify(ref.Specifier) != nodeapi.ClassIncompatible {
			continue
		}
		stmt := jsast.EnclosingStatement(ref.Node)
		if stmt == nil {
			continue
		}
		stmts = append(stmts, stmt)
		apis = append(apis, nodeapi.Normalize(ref.Specifier))
	}
	sort.SliceStable(stmts, func(i, j int) bool { return stmts[i].StartByte() < stmts[j].StartByte() })

	var edits []jsast.Edit
	end := uint32(0)
	for _, stmt := range stmts {
		if len(edits) > 0 && stmt.StartByte() < end {
			continue
		}
		text := f.Text(stmt)
		replacement := jsast.CommentOut(text, neutralizedNote)
		if needsEmptyStatement(stmt) {
			replacement += ";"
		}
		edits = append(edits, jsast.Replace(stmt, replacement))
		end = stmt.EndByte()
	}
	return edits, apis
}

// needsEmptyStatement reports statements in a position that requires one,
// such as the body of an if without braces
func needsEmptyStatement(stmt *sitter.Node) bool {
	parent := stmt.Parent()
	if parent == nil {
		return false
	}
	switch parent.Type() {
	case "program", "statement_block", "switch_case", "switch_default", "class_static_block":
		return false
	}
	return true
}

// bindingCode declares each import binding from source. interop applies the
// __esModule default convention to default imports; it reads with brackets so
// usage scans do not count the check as a member access.
func bindingCode(bindings []jsast.ImportBinding, source string, interop bool) string {
	if len(bindings) == 0 {
		return ""
	}
	var b strings.Builder
	for i, binding := range bindings {
		if i > 0 {
			b.WriteString(" ")
		}
		switch binding.Imported {
		case "*":
			fmt.Fprintf(&b, "var %s = %s;", binding.Local, source)
		case "default":
			fmt.Fprintf(&b, "var %s = %s;", binding.Local, source)
			if interop {
				fmt.Fprintf(&b, " %[1]s = %[1]s && %[1]s[\"__esModule\"] ? %[1]s[\"default\"] : %[1]s;", binding.Local)
			}
		default:
			fmt.Fprintf(&b, "var %s = %s%s;", binding.Local, source, memberAccess(binding.Imported))
		}
	}
	return b.String()
}

// memberAccess renders .name, or a bracket access for names that are not identifiers
func memberAccess(name string) string {
	if isIdentifier(name) {
		return "." + name
	}
	return "[" + quote(name) + "]"
}

func isIdentifier(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_' || r == '$':
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(strings.ReplaceAll(s, `\`, `\\`), "'", `\'`) + "'"
}
