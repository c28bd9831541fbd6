package transform

import (
	"context"
	"fmt"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/fluxbase-eu/outpack/internal/jsast"
)

// Downleveler lowers code to an ECMAScript target, stripping TypeScript and
// JSX on the way. The output is always plain JavaScript.
type Downleveler interface {
	Downlevel(ctx context.Context, path, code string, syntax jsast.Syntax, target Target) (string, error)
}

// EsbuildDownleveler lowers code with esbuild's transform API
type EsbuildDownleveler struct{}

// Downlevel runs one esbuild transform. Statement-level comments carrying
// @preserve or @license survive it.
func (EsbuildDownleveler) Downlevel(ctx context.Context, path, code string, syntax jsast.Syntax, target Target) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	result := api.Transform(code, api.TransformOptions{
		Loader:        loaderFor(syntax),
		Target:        target.Esbuild(),
		Format:        api.FormatDefault,
		Sourcefile:    path,
		LegalComments: api.LegalCommentsInline,
		LogLevel:      api.LogLevelSilent,
	})

	if len(result.Errors) > 0 {
		msg := result.Errors[0]
		loc := ""
		if msg.Location != nil {
			loc = fmt.Sprintf(" at line %d, column %d", msg.Location.Line, msg.Location.Column)
		}
		return "", fmt.Errorf("cannot lower %s to %s%s: %s", path, target, loc, msg.Text)
	}

	return string(result.Code), nil
}

func loaderFor(syntax jsast.Syntax) api.Loader {
	switch syntax {
	case jsast.SyntaxTS:
		return api.LoaderTS
	case jsast.SyntaxTSX:
		return api.LoaderTSX
	case jsast.SyntaxJSX:
		return api.LoaderJSX
	default:
		return api.LoaderJS
	}
}
