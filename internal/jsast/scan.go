package jsast

import (
	"regexp"
	"sort"
	"strings"
)

var (
	requirePattern = regexp.MustCompile("require\\s*\\(\\s*['\"`]([^'\"`]+)['\"`]\\s*\\)")
	importPattern  = regexp.MustCompile("import\\s+(?:.*?\\s+from\\s+)?['\"`]([^'\"`]+)['\"`]")
)

// ScanImports finds require and import specifiers with regular expressions.
// It is the fallback for files tree-sitter cannot parse, so it reads comments
// and strings too.
func ScanImports(content string) []ImportRef {
	type hit struct {
		offset int
		ref    ImportRef
	}
	var hits []hit
	for _, m := range requirePattern.FindAllStringSubmatchIndex(content, -1) {
		hits = append(hits, hit{m[0], ImportRef{Specifier: content[m[2]:m[3]], Kind: KindRequire}})
	}
	for _, m := range importPattern.FindAllStringSubmatchIndex(content, -1) {
		hits = append(hits, hit{m[0], ImportRef{Specifier: content[m[2]:m[3]], Kind: KindImport}})
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].offset < hits[j].offset })

	refs := make([]ImportRef, 0, len(hits))
	for _, h := range hits {
		h.ref.Line, h.ref.Column = offsetPosition(content, h.offset)
		refs = append(refs, h.ref)
	}
	return refs
}

func offsetPosition(content string, offset int) (int, int) {
	before := content[:offset]
	line := strings.Count(before, "\n") + 1
	col := offset - strings.LastIndex(before, "\n")
	return line, col
}
