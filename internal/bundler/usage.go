package bundler

import (
	"context"
	"regexp"
	"sort"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/fluxbase-eu/outpack/internal/jsast"
)

// usageScan finds the properties one module reads from the dependencies it
// requires. targets maps each literal specifier the module uses to a graph
// node; the result maps graph nodes to sorted property names.
type usageScan struct {
	targets map[string]string
	// names maps a sanitized dependency name to its node, so code that refers
	// to a dependency by that name is counted too
	names map[string]string
}

func (u usageScan) run(ctx context.Context, path, code string) map[string][]string {
	f, err := jsast.Parse(ctx, path, code, jsast.DetectSyntax(path, code))
	if err != nil {
		return u.scanText(code)
	}
	defer f.Close()

	found := make(map[string]map[string]bool)
	add := func(target string, props ...string) {
		if found[target] == nil {
			found[target] = make(map[string]bool)
		}
		for _, p := range props {
			found[target][p] = true
		}
	}

	aliases := make(map[string]string, len(u.names))
	for name, target := range u.names {
		aliases[name] = target
	}

	// bindings of require calls
	jsast.Walk(f.Root, func(n *sitter.Node) bool {
		if n.Type() == "comment" {
			return false
		}
		var left, right *sitter.Node
		switch n.Type() {
		case "variable_declarator":
			left, right = n.ChildByFieldName("name"), n.ChildByFieldName("value")
		case "assignment_expression":
			left, right = n.ChildByFieldName("left"), n.ChildByFieldName("right")
		default:
			return true
		}
		target, ok := u.required(f, right)
		if !ok || left == nil {
			return true
		}
		switch left.Type() {
		case "identifier":
			aliases[f.Text(left)] = target
		case "object_pattern":
			add(target, f.PatternKeys(left)...)
		}
		return true
	})

	// reads through the bindings
	jsast.Walk(f.Root, func(n *sitter.Node) bool {
		switch n.Type() {
		case "comment":
			return false
		case "member_expression":
			obj, prop := n.ChildByFieldName("object"), n.ChildByFieldName("property")
			if obj == nil || prop == nil || prop.Type() != "property_identifier" {
				return true
			}
			if target, ok := u.required(f, obj); ok {
				add(target, f.Text(prop))
			} else if obj.Type() == "identifier" {
				if target, ok := aliases[f.Text(obj)]; ok {
					add(target, f.Text(prop))
				}
			}
		case "variable_declarator", "assignment_expression":
			pattern, value := n.ChildByFieldName("name"), n.ChildByFieldName("value")
			if n.Type() == "assignment_expression" {
				pattern, value = n.ChildByFieldName("left"), n.ChildByFieldName("right")
			}
			if pattern != nil && value != nil && pattern.Type() == "object_pattern" && value.Type() == "identifier" {
				if target, ok := aliases[f.Text(value)]; ok {
					add(target, f.PatternKeys(pattern)...)
				}
			}
		}
		return true
	})

	return sortedProps(found)
}

// required resolves `require('<spec>')` to its graph node
func (u usageScan) required(f *jsast.File, n *sitter.Node) (string, bool) {
	spec, ok := f.RequireSpecifier(n)
	if !ok {
		return "", false
	}
	target, ok := u.targets[spec]
	return target, ok
}

var (
	aliasPattern  = regexp.MustCompile(`(?:var|let|const)\s+([A-Za-z_$][\w$]*)\s*=\s*require\s*\(\s*['"]([^'"]+)['"]\s*\)`)
	memberPattern = regexp.MustCompile(`([A-Za-z_$][\w$]*)\.([A-Za-z_$][\w$]*)`)
)

// scanText is the pattern-matching fallback for code that does not parse
func (u usageScan) scanText(code string) map[string][]string {
	aliases := make(map[string]string, len(u.names))
	for name, target := range u.names {
		aliases[name] = target
	}
	for _, m := range aliasPattern.FindAllStringSubmatch(code, -1) {
		if target, ok := u.targets[m[2]]; ok {
			aliases[m[1]] = target
		}
	}
	found := make(map[string]map[string]bool)
	for _, m := range memberPattern.FindAllStringSubmatch(code, -1) {
		target, ok := aliases[m[1]]
		if !ok {
			continue
		}
		if found[target] == nil {
			found[target] = make(map[string]bool)
		}
		found[target][m[2]] = true
	}
	return sortedProps(found)
}

func sortedProps(found map[string]map[string]bool) map[string][]string {
	out := make(map[string][]string, len(found))
	for target, props := range found {
		if len(props) == 0 {
			continue
		}
		names := make([]string, 0, len(props))
		for p := range props {
			names = append(names, p)
		}
		sort.Strings(names)
		out[target] = names
	}
	return out
}
