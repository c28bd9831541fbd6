package polyfill

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/fluxbase-eu/outpack/internal/diagnostic"
)

const (
	// BeginMarker opens the injected polyfill section
	BeginMarker = "// === Polyfills ==="
	// EndMarker closes the injected polyfill section
	EndMarker = "// === End Polyfills ==="
)

// Injector inserts polyfill sources into an assembled body
type Injector struct {
	registry *Registry
}

// NewInjector creates an injector over a registry
func NewInjector(registry *Registry) *Injector {
	return &Injector{registry: registry}
}

// Select computes the polyfill set for injection: the names a rewrite used
// plus includes, minus excludes, sorted and unique
func Select(used, includes, excludes []string) []string {
	names := lo.Uniq(append(append([]string{}, used...), includes...))
	names = lo.Without(names, excludes...)
	sort.Strings(names)
	return names
}

// Inject places the named polyfills right after the body's opening
// strict-mode directive, between BeginMarker and EndMarker. Names without a
// registered polyfill are skipped with a warning.
func (i *Injector) Inject(body string, names []string) (string, []diagnostic.Issue) {
	var issues []diagnostic.Issue
	var section strings.Builder
	injected := 0

	sorted := lo.Uniq(names)
	sort.Strings(sorted)
	for _, name := range sorted {
		p, ok := i.registry.Get(name)
		if !ok {
			log.Warn().Str("polyfill", name).Msg("Polyfill not registered")
			issues = append(issues, diagnostic.Warning(fmt.Sprintf("polyfill %q is not registered", name)).
				ForAPI(name).
				WithSuggestion("Add "+name+".js to the custom polyfill directory"))
			continue
		}
		fmt.Fprintf(&section, "// Polyfill: %s\n%s\n\n", name, strings.TrimRight(p.Source, "\n"))
		injected++
	}
	if injected == 0 {
		return body, issues
	}

	block := BeginMarker + "\n" + section.String() + EndMarker + "\n"
	at := injectionPoint(body)
	log.Debug().Int("polyfills", injected).Int("offset", at).Msg("Injecting polyfills")
	return body[:at] + block + body[at:], issues
}

// injectionPoint is the offset just past the line holding the first
// strict-mode directive, or 0 when there is none
func injectionPoint(body string) int {
	offset := 0
	for _, line := range strings.SplitAfter(body, "\n") {
		trimmed := strings.TrimSpace(line)
		offset += len(line)
		if trimmed == "'use strict';" || trimmed == `"use strict";` {
			if !strings.HasSuffix(line, "\n") {
				return len(body)
			}
			return offset
		}
	}
	return 0
}

// Split separates an injected polyfill section from the rest of the code.
// Without markers the whole input is main code.
func Split(code string) (polyfills, main string) {
	start := strings.Index(code, BeginMarker)
	if start < 0 {
		return "", code
	}
	end := strings.Index(code[start:], EndMarker)
	if end < 0 {
		return "", code
	}
	end += start
	polyfills = strings.TrimSpace(code[start+len(BeginMarker) : end])
	rest := code[end+len(EndMarker):]
	rest = strings.TrimPrefix(rest, "\n")
	return polyfills, code[:start] + rest
}
