package bundler

import (
	"context"
	"regexp"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/fluxbase-eu/outpack/internal/jsast"
)

const (
	scopeOpen  = "(function () {\n"
	scopeClose = "\n})"
)

// Optimize removes repeated top-level function declarations (the first one
// with a given signature is kept), optionally strips comments that are not
// legal notices or section markers, and normalizes whitespace. Code that does
// not parse only gets the whitespace pass.
func Optimize(ctx context.Context, code string, stripComments bool) string {
	wrapped := scopeOpen + code + scopeClose
	f, err := jsast.Parse(ctx, "bundle.js", wrapped, jsast.SyntaxJS)
	if err == nil {
		edits := optimizationEdits(f, stripComments)
		if out, err := jsast.Apply(f.Source, edits); err == nil {
			code = out[len(scopeOpen) : len(out)-len(scopeClose)]
		}
		f.Close()
	}
	return cleanWhitespace(code)
}

func optimizationEdits(f *jsast.File, stripComments bool) []jsast.Edit {
	var body *sitter.Node
	jsast.Walk(f.Root, func(n *sitter.Node) bool {
		if body != nil {
			return false
		}
		if n.Type() == "statement_block" {
			body = n
			return false
		}
		return true
	})
	if body == nil {
		return nil
	}

	var edits []jsast.Edit
	var removed [][2]uint32
	seen := make(map[string]bool)
	count := int(body.NamedChildCount())
	for i := 0; i < count; i++ {
		n := body.NamedChild(i)
		if n.Type() != "function_declaration" && n.Type() != "generator_function_declaration" {
			continue
		}
		sig := signature(f, n)
		if !seen[sig] {
			seen[sig] = true
			continue
		}
		edits = append(edits, jsast.Replace(n, ""))
		removed = append(removed, [2]uint32{n.StartByte(), n.EndByte()})
	}

	if stripComments {
		jsast.Walk(body, func(n *sitter.Node) bool {
			if n.Type() != "comment" {
				return true
			}
			for _, r := range removed {
				if n.StartByte() >= r[0] && n.EndByte() <= r[1] {
					return false
				}
			}
			if text := f.Text(n); !essentialComment(text) {
				replacement := ""
				if strings.HasPrefix(text, "/*") {
					replacement = " "
				}
				edits = append(edits, jsast.Replace(n, replacement))
			}
			return false
		})
	}
	return edits
}

// signature is the declaration head up to its body, without whitespace
func signature(f *jsast.File, decl *sitter.Node) string {
	head := f.Text(decl)
	if body := decl.ChildByFieldName("body"); body != nil {
		head = string(f.Source[decl.StartByte():body.StartByte()])
	}
	return strings.Join(strings.Fields(head), "")
}

// essentialComment keeps legal notices, preserved notes and section markers
func essentialComment(text string) bool {
	return strings.HasPrefix(text, "/*!") ||
		strings.Contains(text, "@license") ||
		strings.Contains(text, "@preserve") ||
		strings.HasPrefix(text, "// ===")
}

var blankRuns = regexp.MustCompile(`\n{3,}`)

// cleanWhitespace trims trailing whitespace and collapses blank-line runs
func cleanWhitespace(code string) string {
	lines := strings.Split(code, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t\r")
	}
	out := blankRuns.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")
	return strings.TrimRight(out, "\n") + "\n"
}

// Validate checks that braces and parentheses balance and that the code fits
// within max bytes (zero disables the size check)
func Validate(code string, max int) error {
	braces, parens := Balance(code)
	if braces != 0 || parens != 0 {
		return &AssemblyImbalanceError{Braces: braces, Parens: parens}
	}
	if max > 0 && len(code) > max {
		return &BundleTooLargeError{Size: len(code), Max: max}
	}
	return nil
}

// Balance counts opening minus closing braces and parentheses in code,
// skipping strings, template text, comments and regular expression literals
func Balance(code string) (braces, parens int) {
	var (
		// templates holds the brace depth of each open ${ } substitution
		templates  []int
		inTemplate bool
		// prev is the last significant byte and word the identifier ending there
		prev byte
		word strings.Builder
		gap  bool
		// incDec is set when prev ends a ++ or -- operator
		incDec bool
	)
	regexAllowed := func() bool {
		if isWordByte(prev) {
			return regexKeywords[word.String()]
		}
		return prev == 0 || strings.IndexByte("(,=:[!&|?{};+-*%<>~^", prev) >= 0
	}

	for i := 0; i < len(code); i++ {
		c := code[i]

		if inTemplate {
			switch {
			case c == '\\':
				i++
			case c == '`':
				inTemplate = false
				prev, gap = '`', false
			case c == '$' && i+1 < len(code) && code[i+1] == '{':
				i++
				templates = append(templates, 0)
				inTemplate = false
				prev, gap = '{', false
			}
			continue
		}

		if c == ' ' || c == '\t' || c == '\n' || c == '\r' {
			gap = true
			continue
		}
		if isWordByte(c) {
			if !isWordByte(prev) || gap {
				word.Reset()
			}
			word.WriteByte(c)
			prev, gap, incDec = c, false, false
			continue
		}

		wasIncDec := incDec
		incDec = false
		switch c {
		case '/':
			if i+1 < len(code) && code[i+1] == '/' {
				for i < len(code) && code[i] != '\n' {
					i++
				}
				gap = true
				continue
			}
			if i+1 < len(code) && code[i+1] == '*' {
				end := strings.Index(code[i+2:], "*/")
				if end < 0 {
					return braces, parens
				}
				i += end + 3
				gap = true
				continue
			}
			if !wasIncDec && regexAllowed() {
				i = skipRegex(code, i)
			}
		case '\'', '"':
			i = skipString(code, i)
		case '`':
			inTemplate = true
		case '{':
			braces++
			if len(templates) > 0 {
				templates[len(templates)-1]++
			}
		case '}':
			if len(templates) > 0 {
				if templates[len(templates)-1] == 0 {
					templates = templates[:len(templates)-1]
					inTemplate = true
					continue
				}
				templates[len(templates)-1]--
			}
			braces--
		case '(':
			parens++
		case ')':
			parens--
		case '+', '-':
			incDec = prev == c && !gap && !wasIncDec
		}
		prev, gap = c, false
	}
	return braces, parens
}

var regexKeywords = map[string]bool{
	"return": true, "typeof": true, "case": true, "do": true, "else": true,
	"in": true, "of": true, "new": true, "delete": true, "void": true,
	"throw": true, "instanceof": true, "yield": true, "await": true,
}

func isWordByte(c byte) bool {
	return c == '_' || c == '$' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c >= 0x80
}

// skipString returns the index of the closing quote of the string at i
func skipString(code string, i int) int {
	quote := code[i]
	for i++; i < len(code); i++ {
		switch code[i] {
		case '\\':
			i++
		case quote, '\n':
			return i
		}
	}
	return len(code)
}

// skipRegex returns the index of the closing slash of the regex at i
func skipRegex(code string, i int) int {
	inClass := false
	for i++; i < len(code); i++ {
		switch code[i] {
		case '\\':
			i++
		case '[':
			inClass = true
		case ']':
			inClass = false
		case '/':
			if !inClass {
				return i
			}
		case '\n':
			return i
		}
	}
	return len(code)
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
