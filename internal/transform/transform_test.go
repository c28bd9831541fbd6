package transform

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxbase-eu/outpack/internal/analyzer"
	"github.com/fluxbase-eu/outpack/internal/diagnostic"
	"github.com/fluxbase-eu/outpack/internal/jsast"
)

// passthrough returns plain JavaScript unchanged
type passthrough struct{}

func (passthrough) Downlevel(_ context.Context, _, code string, _ jsast.Syntax, _ Target) (string, error) {
	return code, nil
}

type failing struct{}

func (failing) Downlevel(context.Context, string, string, jsast.Syntax, Target) (string, error) {
	return "", errors.New("boom")
}

func transformFile(t *testing.T, path, code string) *Result {
	t.Helper()
	tr := New(Options{Target: ES5, Downleveler: passthrough{}})
	result, issues, err := tr.TransformFile(context.Background(), analyzer.SourceFile{Path: path, Content: code})
	require.NoError(t, err)
	assert.Empty(t, issues)
	return result
}

func TestTransformFile_PolyfillRequire(t *testing.T) {
	result := transformFile(t, "index.js", "const crypto = require('crypto');\nmodule.exports = crypto.randomBytes;\n")

	want := "module.exports = (function (module, exports) { const crypto = cryptoPolyfill;\n" +
		"return crypto.randomBytes;\n" +
		"\n})(module, exports);\n"
	assert.Equal(t, want, result.Code)
	assert.Equal(t, []string{"crypto"}, result.Polyfills)
	assert.True(t, result.Wrapped)
	assert.False(t, result.Original)
}

func TestTransformFile_NodeScheme(t *testing.T) {
	result := transformFile(t, "index.js", "var B = require('node:buffer').Buffer;\n")
	assert.Equal(t, "var B = BufferPolyfill.Buffer;\n", result.Code)
	assert.Equal(t, []string{"buffer"}, result.Polyfills)
	assert.False(t, result.Wrapped)
}

func TestTransformFile_ProcessEnv(t *testing.T) {
	result := transformFile(t, "config.js", "var url = process.env.API_URL || 'x';\n")
	assert.Equal(t, "var url = processPolyfill.env.API_URL || 'x';\n", result.Code)
	assert.Equal(t, []string{"process"}, result.Polyfills)
}

func TestTransformFile_NeutralizesIncompatible(t *testing.T) {
	code := "const fs = require('fs');\nconst x = 1;\nif (x) require('child_process');\n"
	result := transformFile(t, "index.js", code)

	lines := strings.Split(result.Code, "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "/* @preserve incompatible Node.js API: const fs = require('fs'); */", lines[0])
	assert.Equal(t, "const x = 1;", lines[1])
	assert.Equal(t, "if (x) /* @preserve incompatible Node.js API: require('child_process'); */;", lines[2])
	assert.Empty(t, result.Polyfills)
}

func TestTransformFile_NeutralizeKeepsLineCount(t *testing.T) {
	code := "const a = 1;\nconst fs = require(\n  'fs'\n);\nmodule.exports = a;\n"
	f, err := jsast.Parse(context.Background(), "a.js", code, jsast.SyntaxJS)
	require.NoError(t, err)
	defer f.Close()

	edits, apis := neutralize(f)
	assert.Equal(t, []string{"fs"}, apis)
	out, err := jsast.Apply(f.Source, edits)
	require.NoError(t, err)
	assert.Equal(t, strings.Count(code, "\n"), strings.Count(out, "\n"))
}

func TestTransformFile_LowersESM(t *testing.T) {
	code := `import { EventEmitter } from 'events';
import _ from 'lodash';
import { map, filter as keep } from 'lodash';
import './side-effect';
export const version = '1.0';
export default function main() {}
export { keep };
`
	result := transformFile(t, "index.js", code)

	assert.True(t, result.Wrapped)
	assert.Equal(t, []string{"events"}, result.Polyfills)
	for _, want := range []string{
		"module.exports = (function (module, exports) { var EventEmitter = EventEmitterPolyfill.EventEmitter;",
		"var _ = require('lodash'); _ = _ && _[\"__esModule\"] ? _[\"default\"] : _;",
		"var __import_0 = require('lodash'); var map = __import_0.map; var keep = __import_0.filter;",
		"require('./side-effect');",
		"Object.defineProperty(exports, '__esModule', { value: true }); const version = '1.0'; exports.version = version;",
		"exports.keep = keep;",
		"return module.exports;",
	} {
		assert.Contains(t, result.Code, want)
	}
	assert.Regexp(t, `exports\.default = (main|function main\(\) \{\})`, result.Code)
	assert.Equal(t, strings.Count(code, "\n")+3, strings.Count(result.Code, "\n"))
}

func TestTransformFile_ReExports(t *testing.T) {
	code := "export * from './a';\nexport { x as y } from './b';\nexport * as ns from './c';\nexport { randomBytes } from 'crypto';\n"
	result := transformFile(t, "index.js", code)

	assert.Contains(t, result.Code, "exports[k] = m[k]; } } })(require('./a'));")
	assert.Contains(t, result.Code, "var __reexport_0 = require('./b'); exports.y = __reexport_0.x;")
	assert.Contains(t, result.Code, "exports.ns = require('./c');")
	// the re-export of a polyfillable module is substituted after lowering
	assert.Contains(t, result.Code, "exports.randomBytes = __reexport_1.randomBytes;")
	assert.Contains(t, result.Code, "var __reexport_1 = cryptoPolyfill;")
	assert.Equal(t, []string{"crypto"}, result.Polyfills)
}

func TestTransformFile_DefaultExpression(t *testing.T) {
	result := transformFile(t, "index.js", "export default { a: 1 };\n")
	assert.Contains(t, result.Code, "exports.default = { a: 1 };")
}

func TestTransformFile_UnwrappedScript(t *testing.T) {
	result := transformFile(t, "lib.js", "(function () { window.x = 1; })();\n")
	assert.Equal(t, "(function () { window.x = 1; })();\n", result.Code)
	assert.False(t, result.Wrapped)
	assert.Empty(t, result.Polyfills)
}

func TestTransformFile_Shebang(t *testing.T) {
	result := transformFile(t, "cli.js", "#!/usr/bin/env node\nexports.run = function () {};\n")
	assert.True(t, strings.HasPrefix(result.Code, "module.exports = (function (module, exports) { \nexports.run"))
}

func TestTransformFile_TypeScript(t *testing.T) {
	code := `import type { Options } from './types';
import { createHash } from 'crypto';
export type Id = string;
export interface Shape { id: Id }
export function hash(input: string): string {
  return createHash('sha256').update(input).digest('hex');
}
`
	tr := New(Options{Target: ES2020})
	result, issues, err := tr.TransformFile(context.Background(), analyzer.SourceFile{Path: "src/hash.ts", Content: code})
	require.NoError(t, err)
	assert.Empty(t, issues)

	assert.Equal(t, []string{"crypto"}, result.Polyfills)
	assert.Contains(t, result.Code, "cryptoPolyfill.createHash")
	// esbuild may rename the factory parameters, so match any suffix
	assert.Regexp(t, `exports\d*\.hash = hash;`, result.Code)
	assert.True(t, result.Wrapped)
	assert.NotContains(t, result.Code, "interface")
	assert.NotContains(t, result.Code, ": string")
	assert.NotContains(t, result.Code, "./types")
}

// failsBelow fails every target under min
type failsBelow struct {
	min   Target
	calls []Target
}

func (d *failsBelow) Downlevel(_ context.Context, _, code string, _ jsast.Syntax, target Target) (string, error) {
	d.calls = append(d.calls, target)
	if target < d.min {
		return "", errors.New("unsupported syntax")
	}
	return code, nil
}

func TestTransformFile_DownlevelRetry(t *testing.T) {
	tests := []struct {
		name      string
		target    Target
		min       Target
		wantCalls []Target
		emitted   Target
		warning   string
	}{
		{name: "target supported", target: ES5, min: ES5, wantCalls: []Target{ES5}, emitted: ES5},
		{name: "es5 falls back to es2015", target: ES5, min: ES2015, wantCalls: []Target{ES5, ES2015}, emitted: ES2015, warning: "Could not lower to es5, emitted es2015"},
		{name: "es5 falls back to esnext", target: ES5, min: ESNext, wantCalls: []Target{ES5, ES2015, ESNext}, emitted: ESNext, warning: "Could not lower to es5, emitted esnext"},
		{name: "es2017 skips es2015", target: ES2017, min: ESNext, wantCalls: []Target{ES2017, ESNext}, emitted: ESNext, warning: "Could not lower to es2017, emitted esnext"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &failsBelow{min: tt.min}
			tr := New(Options{Target: tt.target, Downleveler: d})
			result, issues, err := tr.TransformFile(context.Background(), analyzer.SourceFile{Path: "a.js", Content: "const a = () => 1;\n"})
			require.NoError(t, err)

			assert.Equal(t, tt.wantCalls, d.calls)
			assert.Equal(t, "const a = () => 1;\n", result.Code)
			assert.Equal(t, tt.emitted, result.Target)
			if tt.warning == "" {
				assert.Empty(t, issues)
				return
			}
			require.Len(t, issues, 1)
			assert.Equal(t, diagnostic.LevelWarning, issues[0].Level)
			assert.Contains(t, issues[0].Message, tt.warning)
		})
	}
}

func TestTransformFile_ES5WithEsbuild(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		emitted Target
	}{
		{name: "arrow functions lower to es5", code: "var f = function (xs) { return xs.map(x => x * 2); };\n", emitted: ES5},
		{name: "block scoping needs es2015", code: "const a = 1;\nlet b = a + 1;\n", emitted: ES2015},
		{name: "classes need es2015", code: "class Point { constructor(x) { this.x = x; } }\n", emitted: ES2015},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := New(Options{Target: ES5})
			result, _, err := tr.TransformFile(context.Background(), analyzer.SourceFile{Path: "a.js", Content: tt.code})
			require.NoError(t, err)
			assert.Equal(t, tt.emitted, result.Target)
			assert.NotContains(t, result.Code, "=>")
		})
	}
}

func TestApply_FallsBack(t *testing.T) {
	tests := []struct {
		name string
		file analyzer.SourceFile
		down Downleveler
	}{
		{"syntax error", analyzer.SourceFile{Path: "bad.js", Content: "function (\n"}, passthrough{}},
		{"downlevel failure", analyzer.SourceFile{Path: "ok.js", Content: "var a = require('crypto');\n"}, failing{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := New(Options{Downleveler: tt.down})
			result, issues := tr.Apply(context.Background(), tt.file)

			assert.True(t, result.Original)
			assert.Equal(t, tt.file.Content, result.Code)
			assert.Empty(t, result.Polyfills)
			require.Len(t, issues, 1)
			assert.Equal(t, diagnostic.LevelWarning, issues[0].Level)
			assert.Contains(t, issues[0].Message, "included untransformed")
			assert.Equal(t, tt.file.Path, issues[0].Location.File)
		})
	}
}

func TestTransform_Batch(t *testing.T) {
	files := []analyzer.SourceFile{
		{Path: "a.js", Content: "var e = require('events');\n"},
		{Path: "b.js", Content: "var c = require('crypto'); var x = process.env.X;\n"},
		{Path: "broken.js", Content: "function (\n"},
		{Path: "skipped.js", Content: "var b = require('buffer');\n"},
		{Path: "README.md", Content: "require('buffer')"},
	}
	analysis := &analyzer.AnalysisResult{Modules: []*analyzer.ModuleDescriptor{
		{Path: "skipped.js", Degraded: true},
	}}

	tr := New(Options{Workers: 2, Downleveler: passthrough{}})
	batch, err := tr.Transform(context.Background(), files, analysis)
	require.NoError(t, err)

	require.Len(t, batch.Files, 4)
	assert.Equal(t, "a.js", batch.Files[0].Path)
	assert.Equal(t, "skipped.js", batch.Files[3].Path)
	assert.True(t, batch.Files[2].Original)
	assert.True(t, batch.Files[3].Original)
	assert.Equal(t, ES5, batch.Files[0].Target)
	assert.Equal(t, ESNext, batch.Target, "untransformed files raise the batch target")
	assert.Equal(t, []string{"crypto", "events", "process"}, batch.Polyfills)
	assert.Len(t, batch.Issues, 2)
	assert.Equal(t, "var e = EventEmitterPolyfill;\n", batch.Code()["a.js"])
}

func TestTransform_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(Options{Downleveler: passthrough{}}).Transform(ctx, []analyzer.SourceFile{{Path: "a.js", Content: "1"}}, nil)
	assert.Error(t, err)
}

func TestParseTarget(t *testing.T) {
	tests := []struct {
		in      string
		want    Target
		wantErr bool
	}{
		{"es5", ES5, false},
		{"ES2015", ES2015, false},
		{"es6", ES2015, false},
		{" es2020 ", ES2020, false},
		{"esnext", ESNext, false},
		{"es3", ES5, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTarget(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
	assert.Equal(t, "es5", TargetNames()[0])
	assert.Equal(t, "esnext", TargetNames()[len(TargetNames())-1])
}

func TestEsbuildDownleveler(t *testing.T) {
	out, err := EsbuildDownleveler{}.Downlevel(context.Background(), "a.ts", "const n: number = 1;\nexport {};\n", jsast.SyntaxTS, ESNext)
	require.NoError(t, err)
	assert.Contains(t, out, "const n = 1;")

	_, err = EsbuildDownleveler{}.Downlevel(context.Background(), "bad.js", "const = ;", jsast.SyntaxJS, ESNext)
	assert.Error(t, err)
}
