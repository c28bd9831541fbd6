package transform

import (
	"fmt"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
)

// Target is the ECMAScript version emitted code must run on
type Target int

const (
	ES5 Target = iota
	ES2015
	ES2016
	ES2017
	ES2018
	ES2019
	ES2020
	ES2021
	ES2022
	ESNext
)

var targetNames = map[Target]string{
	ES5:    "es5",
	ES2015: "es2015",
	ES2016: "es2016",
	ES2017: "es2017",
	ES2018: "es2018",
	ES2019: "es2019",
	ES2020: "es2020",
	ES2021: "es2021",
	ES2022: "es2022",
	ESNext: "esnext",
}

var esbuildTargets = map[Target]api.Target{
	ES5:    api.ES5,
	ES2015: api.ES2015,
	ES2016: api.ES2016,
	ES2017: api.ES2017,
	ES2018: api.ES2018,
	ES2019: api.ES2019,
	ES2020: api.ES2020,
	ES2021: api.ES2021,
	ES2022: api.ES2022,
	ESNext: api.ESNext,
}

// String returns the target name
func (t Target) String() string {
	if name, ok := targetNames[t]; ok {
		return name
	}
	return "unknown"
}

// MarshalText serializes the target by name
func (t Target) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText parses a target name
func (t *Target) UnmarshalText(text []byte) error {
	parsed, err := ParseTarget(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ParseTarget accepts es5, es6, es2015 through es2022, and esnext
func ParseTarget(s string) (Target, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "es6" {
		return ES2015, nil
	}
	for t, n := range targetNames {
		if n == name {
			return t, nil
		}
	}
	return ES5, fmt.Errorf("unknown target %q (valid: %s)", s, strings.Join(TargetNames(), ", "))
}

// TargetNames lists the accepted target names in version order
func TargetNames() []string {
	names := make([]string, 0, len(targetNames))
	for t := ES5; t <= ESNext; t++ {
		names = append(names, targetNames[t])
	}
	return names
}

// Esbuild returns the matching esbuild target
func (t Target) Esbuild() api.Target {
	if target, ok := esbuildTargets[t]; ok {
		return target
	}
	return api.ESNext
}
