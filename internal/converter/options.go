package converter

import (
	"github.com/fluxbase-eu/outpack/internal/bundler"
	"github.com/fluxbase-eu/outpack/internal/config"
	"github.com/fluxbase-eu/outpack/internal/output"
	"github.com/fluxbase-eu/outpack/internal/transform"
)

// Options configure every stage of a conversion
type Options struct {
	Strategy bundler.Strategy
	Target   transform.Target
	// MaxSize is the byte budget of the bundle body with polyfills
	MaxSize         int
	Exclude         []string
	ForceInline     []string
	SmallUtilities  []string
	InlineThreshold int
	Globals         map[string]string
	StripComments   bool

	PolyfillIncludes []string
	PolyfillExcludes []string

	// Name overrides the package name for the global binding
	Name      string
	Namespace string
	Minify    bool
	// Workers bounds per-file parallelism; zero uses GOMAXPROCS
	Workers int
	// Version is the tool version written into output headers
	Version string
}

// FromConfig derives options from a validated configuration
func FromConfig(cfg *config.Config) (Options, error) {
	strategy, err := bundler.ParseStrategy(cfg.Bundle.Strategy)
	if err != nil {
		return Options{}, err
	}
	target, err := transform.ParseTarget(cfg.Output.Target)
	if err != nil {
		return Options{}, err
	}
	return Options{
		Strategy:         strategy,
		Target:           target,
		MaxSize:          cfg.Bundle.MaxSize,
		Exclude:          cfg.Bundle.ExcludeDependencies,
		ForceInline:      cfg.Bundle.ForceInline,
		SmallUtilities:   cfg.Bundle.SmallUtilities,
		InlineThreshold:  cfg.Bundle.InlineThreshold,
		Globals:          cfg.Bundle.Globals,
		StripComments:    cfg.Bundle.StripComments,
		PolyfillIncludes: cfg.Polyfills.DefaultIncludes,
		PolyfillExcludes: cfg.Polyfills.DefaultExcludes,
		Namespace:        cfg.Output.Namespace,
		Minify:           cfg.Output.Minify,
		Workers:          cfg.Analysis.Workers,
	}, nil
}

func (o Options) bundlerOptions() bundler.Options {
	return bundler.Options{
		Strategy:        o.Strategy,
		MaxSize:         o.MaxSize,
		Exclude:         o.Exclude,
		ForceInline:     o.ForceInline,
		SmallUtilities:  o.SmallUtilities,
		InlineThreshold: o.InlineThreshold,
		Globals:         o.Globals,
		StripComments:   o.StripComments,
	}
}

func (o Options) transformOptions() transform.Options {
	return transform.Options{Target: o.Target, Name: o.Name, Workers: o.Workers}
}

func (o Options) outputOptions() output.Options {
	return output.Options{
		Name:      o.Name,
		Namespace: o.Namespace,
		Target:    o.Target,
		Minify:    o.Minify,
		Version:   o.Version,
	}
}
