// Package diagnostic holds the compatibility issues every pipeline stage reports.
//
// Issues are values, not errors: recoverable problems (unparseable files,
// failed rewrites, unregistered polyfills) are recorded here and the run
// continues. Fatal conditions are returned as errors by the stage itself.
package diagnostic

import (
	"fmt"
	"strings"
)

// Level is the severity of an Issue
type Level int

const (
	LevelInfo Level = iota
	LevelWarning
	LevelError
)

// String returns the lowercase level name
func (l Level) String() string {
	switch l {
	case LevelInfo:
		return "info"
	case LevelWarning:
		return "warning"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

// MarshalText keeps the serialized AnalysisResult readable
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText parses a level name
func (l *Level) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "info":
		*l = LevelInfo
	case "warning":
		*l = LevelWarning
	case "error":
		*l = LevelError
	default:
		return fmt.Errorf("unknown issue level: %s", text)
	}
	return nil
}

// Location points at a file and optionally a 1-based line and column
type Location struct {
	File   string `json:"file" yaml:"file"`
	Line   int    `json:"line,omitempty" yaml:"line,omitempty"`
	Column int    `json:"column,omitempty" yaml:"column,omitempty"`
}

// String formats the location as file[:line[:column]]
func (l Location) String() string {
	if l.Line == 0 {
		return l.File
	}
	if l.Column == 0 {
		return fmt.Sprintf("%s:%d", l.File, l.Line)
	}
	return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Column)
}

// Issue is a single compatibility finding
type Issue struct {
	Level      Level     `json:"level" yaml:"level"`
	Message    string    `json:"message" yaml:"message"`
	Location   *Location `json:"location,omitempty" yaml:"location,omitempty"`
	Suggestion string    `json:"suggestion,omitempty" yaml:"suggestion,omitempty"`
	API        string    `json:"api,omitempty" yaml:"api,omitempty"`
}

// Error creates an error-level issue
func Error(message string) Issue {
	return Issue{Level: LevelError, Message: message}
}

// Warning creates a warning-level issue
func Warning(message string) Issue {
	return Issue{Level: LevelWarning, Message: message}
}

// Info creates an info-level issue
func Info(message string) Issue {
	return Issue{Level: LevelInfo, Message: message}
}

// At attaches a location
func (i Issue) At(file string, line, column int) Issue {
	i.Location = &Location{File: file, Line: line, Column: column}
	return i
}

// InFile attaches a file-only location
func (i Issue) InFile(file string) Issue {
	i.Location = &Location{File: file}
	return i
}

// WithSuggestion attaches a remediation hint
func (i Issue) WithSuggestion(suggestion string) Issue {
	i.Suggestion = suggestion
	return i
}

// ForAPI tags the issue with the Node API it concerns
func (i Issue) ForAPI(api string) Issue {
	i.API = api
	return i
}

// String renders the issue on one line
func (i Issue) String() string {
	var b strings.Builder
	b.WriteString(i.Level.String())
	if i.Location != nil {
		b.WriteString(" ")
		b.WriteString(i.Location.String())
	}
	b.WriteString(": ")
	b.WriteString(i.Message)
	return b.String()
}

// Count returns how many issues have the given level
func Count(issues []Issue, level Level) int {
	n := 0
	for _, issue := range issues {
		if issue.Level == level {
			n++
		}
	}
	return n
}
