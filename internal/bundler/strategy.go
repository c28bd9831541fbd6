package bundler

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Strategy selects how dependencies end up in the bundle
type Strategy int

const (
	// Inline includes every dependency in full
	Inline Strategy = iota
	// Selective includes only the exports the package uses
	Selective
	// External leaves dependencies to globals provided by the host
	External
	// Hybrid inlines small and forced dependencies and externalizes the rest
	Hybrid
)

var strategyNames = map[Strategy]string{
	Inline:    "inline",
	Selective: "selective",
	External:  "external",
	Hybrid:    "hybrid",
}

// String returns the strategy name
func (s Strategy) String() string {
	if name, ok := strategyNames[s]; ok {
		return name
	}
	return "unknown"
}

// MarshalText serializes the strategy by name
func (s Strategy) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a strategy name
func (s *Strategy) UnmarshalText(text []byte) error {
	parsed, err := ParseStrategy(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseStrategy accepts inline, selective, external and hybrid
func ParseStrategy(name string) (Strategy, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	for s, n := range strategyNames {
		if n == normalized {
			return s, nil
		}
	}
	return Inline, fmt.Errorf("%w: %q (valid: %s)", ErrUnknownStrategy, name, strings.Join(StrategyNames(), ", "))
}

// StrategyNames lists the strategy names in declaration order
func StrategyNames() []string {
	return []string{Inline.String(), Selective.String(), External.String(), Hybrid.String()}
}

// Sanitize derives a JavaScript-safe name from a dependency name: path,
// scope, dash and dot characters become underscores and everything else that
// is not a letter, digit or underscore is dropped. Sanitize is idempotent.
func Sanitize(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r == '/' || r == '-' || r == '.' || r == '@':
			b.WriteByte('_')
		case r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		}
	}
	return b.String()
}

// wellKnownGlobals are the globals popular libraries install in browsers
var wellKnownGlobals = map[string]string{
	"lodash":     "_",
	"underscore": "_",
	"jquery":     "$",
}

// GlobalName returns the global a host is expected to provide for an
// external dependency: an explicit mapping first, then the well-known
// library globals, then the sanitized name
func GlobalName(dependency string, globals map[string]string) string {
	if g, ok := globals[dependency]; ok && g != "" {
		return g
	}
	if g, ok := wellKnownGlobals[dependency]; ok {
		return g
	}
	return identifierFor(dependency)
}

// identifierFor sanitizes a name into a valid identifier
func identifierFor(name string) string {
	id := Sanitize(name)
	if id == "" || unicode.IsDigit([]rune(id)[0]) {
		id = "_" + id
	}
	return id
}

// bindings hands out one unique binding per dependency name
type bindings struct {
	byName map[string]string
	taken  map[string]bool
}

func newBindings() *bindings {
	return &bindings{byName: make(map[string]string), taken: make(map[string]bool)}
}

// assign returns the binding of name, allocating a numbered variant when the
// sanitized form is already used by another name
func (b *bindings) assign(name string) string {
	if id, ok := b.byName[name]; ok {
		return id
	}
	base := identifierFor(name)
	id := base
	for n := 2; b.taken[id]; n++ {
		id = base + "_" + strconv.Itoa(n)
	}
	b.taken[id] = true
	b.byName[name] = id
	return id
}

func (b *bindings) lookup(name string) (string, bool) {
	id, ok := b.byName[name]
	return id, ok
}
