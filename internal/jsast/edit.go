package jsast

import (
	"context"
	"fmt"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// Edit replaces the source bytes [Start, End) with Text
type Edit struct {
	Start uint32
	End   uint32
	Text  string
}

// Replace builds an edit covering node n
func Replace(n *sitter.Node, text string) Edit {
	return Edit{Start: n.StartByte(), End: n.EndByte(), Text: text}
}

// InsertAt builds a zero-width edit
func InsertAt(offset uint32, text string) Edit {
	return Edit{Start: offset, End: offset, Text: text}
}

// Apply returns source with every edit applied. Edits may be given in any
// order but must not overlap.
func Apply(source []byte, edits []Edit) (string, error) {
	if len(edits) == 0 {
		return string(source), nil
	}
	sorted := make([]Edit, len(edits))
	copy(sorted, edits)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Start < sorted[j].Start
	})

	var b strings.Builder
	b.Grow(len(source))
	cursor := uint32(0)
	for _, e := range sorted {
		if e.Start < cursor {
			return "", fmt.Errorf("overlapping edit at byte %d", e.Start)
		}
		if e.End < e.Start || int(e.End) > len(source) {
			return "", fmt.Errorf("edit range %d-%d out of bounds", e.Start, e.End)
		}
		b.Write(source[cursor:e.Start])
		b.WriteString(e.Text)
		cursor = e.End
	}
	b.Write(source[cursor:])
	return b.String(), nil
}

// Rewrite applies edits to f and parses the result with the same syntax.
// With no edits it returns f unchanged.
func (f *File) Rewrite(ctx context.Context, edits []Edit) (*File, error) {
	if len(edits) == 0 {
		return f, nil
	}
	code, err := Apply(f.Source, edits)
	if err != nil {
		return nil, err
	}
	return Parse(ctx, f.Path, code, f.Syntax)
}

// PadLines appends newlines to replacement so it spans as many lines as original
func PadLines(original, replacement string) string {
	missing := strings.Count(original, "\n") - strings.Count(replacement, "\n")
	if missing <= 0 {
		return replacement
	}
	return replacement + strings.Repeat("\n", missing)
}

// CommentOut turns text into a comment that keeps its line count. A block
// comment is used unless the text itself contains a block terminator.
func CommentOut(text, note string) string {
	if !strings.Contains(text, "*/") {
		return "/* " + note + ": " + text + " */"
	}
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = "// " + line
	}
	lines[0] = "// " + note + ": " + strings.TrimPrefix(lines[0], "// ")
	return strings.Join(lines, "\n")
}
