// Package output renders a converted bundle as a single OutSystems-ready
// script: a UMD wrapper around the bundle's factory body, with a descriptive
// header and a size footer.
package output

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"text/template"
	"time"
	"unicode"

	"github.com/Masterminds/sprig/v3"
	"github.com/evanw/esbuild/pkg/api"
	"github.com/rs/zerolog/log"

	"github.com/fluxbase-eu/outpack/internal/analyzer"
	"github.com/fluxbase-eu/outpack/internal/bundler"
	"github.com/fluxbase-eu/outpack/internal/polyfill"
	"github.com/fluxbase-eu/outpack/internal/transform"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// ErrInvalidNamespace is returned for namespaces that are not JavaScript identifiers
var ErrInvalidNamespace = errors.New("namespace must be a JavaScript identifier")

// Options configure a Generator
type Options struct {
	// Name overrides the package name used for the global binding
	Name string
	// Namespace nests the global binding under global.<Namespace>
	Namespace string
	Target    transform.Target
	Minify    bool
	// Version is the generator version written in the header
	Version string
	// Now defaults to time.Now
	Now func() time.Time
}

// Input is what a conversion hands to the generator
type Input struct {
	Package analyzer.PackageInfo
	// Code is the bundle body with polyfills injected
	Code string
	// UnminifiedSize is the assembled body size before optimization
	UnminifiedSize int
	// Target is the level the body was emitted at. The header reports the
	// higher of it and the configured target.
	Target transform.Target
}

// Output is the rendered script
type Output struct {
	Code       string `json:"-" yaml:"-"`
	GlobalName string `json:"global_name" yaml:"global_name"`
	Size       int    `json:"size" yaml:"size"`
	Minified   bool   `json:"minified" yaml:"minified"`
}

type templateData struct {
	Name             string
	Version          string
	Description      string
	GeneratorVersion string
	GeneratedAt      time.Time
	Target           string
	Namespace        string
	GlobalName       string
	Polyfills        string
	Code             string
	OriginalSize     int
	BundleSize       int
	Minified         bool
}

// Generator renders bundles through the embedded template
type Generator struct {
	opts Options
	tmpl *template.Template
}

var identifier = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

// NewGenerator parses the template and checks the namespace
func NewGenerator(opts Options) (*Generator, error) {
	if opts.Namespace != "" && !identifier.MatchString(opts.Namespace) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidNamespace, opts.Namespace)
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	funcs := sprig.TxtFuncMap()
	funcs["comment"] = blockCommentSafe
	tmpl, err := template.New("outsystems").Funcs(funcs).ParseFS(templateFS, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("failed to parse output template: %w", err)
	}
	return &Generator{opts: opts, tmpl: tmpl}, nil
}

// Generate wraps the bundle body. The polyfill section is lifted out of the
// body and placed first inside the factory. A minify failure keeps the
// readable output.
func (g *Generator) Generate(ctx context.Context, in Input) (*Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name := g.opts.Name
	if name == "" {
		name = in.Package.Name
	}
	target := max(g.opts.Target, in.Target)
	polyfills, main := polyfill.Split(in.Code)
	data := templateData{
		Name:             in.Package.Name,
		Version:          in.Package.Version,
		Description:      strings.TrimSpace(in.Package.Description),
		GeneratorVersion: g.opts.Version,
		GeneratedAt:      g.opts.Now(),
		Target:           target.String(),
		Namespace:        g.opts.Namespace,
		GlobalName:       GlobalName(name),
		Polyfills:        polyfills,
		Code:             strings.TrimPrefix(strings.TrimLeft(main, "\n"), bundler.StrictDirective+"\n"),
		OriginalSize:     in.UnminifiedSize,
		BundleSize:       len(in.Code),
	}
	log.Info().Str("global", data.GlobalName).Str("namespace", data.Namespace).Bool("minify", g.opts.Minify).Msg("Generating output")

	module, err := g.render("module", data)
	if err != nil {
		return nil, err
	}
	if g.opts.Minify {
		minified, err := Minify(module, target)
		if err != nil {
			log.Warn().Err(err).Msg("Minification failed, keeping readable output")
		} else {
			module = minified
			data.Minified = true
		}
	}
	if braces, parens := bundler.Balance(module); braces != 0 || parens != 0 {
		return nil, &bundler.AssemblyImbalanceError{Braces: braces, Parens: parens}
	}

	header, err := g.render("header", data)
	if err != nil {
		return nil, err
	}
	footer, err := g.render("footer", data)
	if err != nil {
		return nil, err
	}

	code := cleanWhitespace(header + module + "\n" + footer)
	return &Output{
		Code:       code,
		GlobalName: data.GlobalName,
		Size:       len(code),
		Minified:   data.Minified,
	}, nil
}

func (g *Generator) render(name string, data templateData) (string, error) {
	var buf bytes.Buffer
	if err := g.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("failed to render %s template: %w", name, err)
	}
	return buf.String(), nil
}

// Minify compresses whitespace and syntax without raising the language level
// above target. Legal comments are kept.
func Minify(code string, target transform.Target) (string, error) {
	result := api.Transform(code, api.TransformOptions{
		Loader:           api.LoaderJS,
		Target:           target.Esbuild(),
		MinifyWhitespace: true,
		MinifySyntax:     true,
		LegalComments:    api.LegalCommentsInline,
		LogLevel:         api.LogLevelSilent,
		Sourcefile:       "bundle.js",
	})
	if len(result.Errors) > 0 {
		return "", fmt.Errorf("minify: %s", result.Errors[0].Text)
	}
	return string(result.Code), nil
}

// GlobalName turns a package name into a PascalCase JavaScript identifier:
// `my-package` becomes `MyPackage`, `@types/node` becomes `TypesNode`.
func GlobalName(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool {
		return r > unicode.MaxASCII || !(unicode.IsLetter(r) || unicode.IsDigit(r))
	})
	var b strings.Builder
	for _, part := range parts {
		b.WriteString(strings.ToUpper(part[:1]))
		b.WriteString(strings.ToLower(part[1:]))
	}
	out := b.String()
	if out == "" {
		return "Module"
	}
	if out[0] >= '0' && out[0] <= '9' {
		out = "_" + out
	}
	return out
}

// FileName expands {name} and {version} in a naming pattern. Scoped names
// lose the @ and use a dash for the slash.
func FileName(pattern string, pkg analyzer.PackageInfo) string {
	name := strings.NewReplacer("@", "", "/", "-").Replace(pkg.Name)
	return strings.NewReplacer("{name}", name, "{version}", pkg.Version).Replace(pattern)
}

func blockCommentSafe(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "*/", "* /"), "\n", " ")
}

var blankRuns = regexp.MustCompile(`\n{3,}`)

func cleanWhitespace(code string) string {
	lines := strings.Split(code, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t\r")
	}
	return strings.TrimRight(blankRuns.ReplaceAllString(strings.Join(lines, "\n"), "\n\n"), "\n") + "\n"
}
