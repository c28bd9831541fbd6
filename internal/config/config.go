package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gobwas/glob"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/fluxbase-eu/outpack/internal/bundler"
	"github.com/fluxbase-eu/outpack/internal/transform"
)

// FileName is the configuration file looked up without an explicit path
const FileName = "outpack.yaml"

// Config represents the converter configuration
type Config struct {
	NPM       NPMConfig      `mapstructure:"npm" yaml:"npm"`
	Output    OutputConfig   `mapstructure:"output" yaml:"output"`
	Polyfills PolyfillConfig `mapstructure:"polyfills" yaml:"polyfills"`
	Bundle    BundleConfig   `mapstructure:"bundle" yaml:"bundle"`
	Cache     CacheConfig    `mapstructure:"cache" yaml:"cache"`
	Analysis  AnalysisConfig `mapstructure:"analysis" yaml:"analysis"`
	Debug     bool           `mapstructure:"debug" yaml:"debug"`
}

// NPMConfig contains registry client settings
type NPMConfig struct {
	Registry  string        `mapstructure:"registry" yaml:"registry"`
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout"`
	UserAgent string        `mapstructure:"user_agent" yaml:"user_agent"`
	AuthToken string        `mapstructure:"auth_token" yaml:"auth_token,omitempty"`
	// RateLimit caps registry requests per second; 0 is unlimited
	RateLimit float64 `mapstructure:"rate_limit" yaml:"rate_limit"`
}

// OutputConfig contains settings for the generated file
type OutputConfig struct {
	Directory     string `mapstructure:"directory" yaml:"directory"`
	NamingPattern string `mapstructure:"naming_pattern" yaml:"naming_pattern"`
	Minify        bool   `mapstructure:"minify" yaml:"minify"`
	Target        string `mapstructure:"target" yaml:"target"`
	Namespace     string `mapstructure:"namespace" yaml:"namespace,omitempty"`
}

// PolyfillConfig adjusts which polyfills are injected
type PolyfillConfig struct {
	DefaultIncludes []string `mapstructure:"default_includes" yaml:"default_includes"`
	DefaultExcludes []string `mapstructure:"default_excludes" yaml:"default_excludes"`
	// CustomDir holds <api>.js files extending or overriding the built-ins
	CustomDir string `mapstructure:"custom_dir" yaml:"custom_dir,omitempty"`
}

// BundleConfig contains dependency bundling settings
type BundleConfig struct {
	Strategy            string            `mapstructure:"strategy" yaml:"strategy"`
	MaxSize             int               `mapstructure:"max_size" yaml:"max_size"`
	ExcludeDependencies []string          `mapstructure:"exclude_dependencies" yaml:"exclude_dependencies"`
	ForceInline         []string          `mapstructure:"force_inline" yaml:"force_inline"`
	InlineThreshold     int               `mapstructure:"inline_threshold" yaml:"inline_threshold"`
	SmallUtilities      []string          `mapstructure:"small_utilities" yaml:"small_utilities"`
	Globals             map[string]string `mapstructure:"globals" yaml:"globals"`
	StripComments       bool              `mapstructure:"strip_comments" yaml:"strip_comments"`
}

// CacheConfig contains registry metadata cache settings
type CacheConfig struct {
	Directory string        `mapstructure:"directory" yaml:"directory"`
	TTL       time.Duration `mapstructure:"ttl" yaml:"ttl"`
	Enabled   bool          `mapstructure:"enabled" yaml:"enabled"`
}

// AnalysisConfig contains analysis and transform settings
type AnalysisConfig struct {
	// Workers bounds per-file parallelism; zero uses GOMAXPROCS
	Workers int `mapstructure:"workers" yaml:"workers"`
}

// Load loads configuration from path, or from outpack.yaml in the usual
// places when path is empty, then overlays OUTPACK_* environment variables
func Load(path string) (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := loadEnvFile(); err != nil {
		log.Debug().Err(err).Msg("No .env file loaded")
	}

	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(strings.TrimSuffix(FileName, filepath.Ext(FileName)))
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".outpack"))
		}
	}

	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvPrefix("OUTPACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		log.Debug().Msg("No config file found, using environment variables and defaults")
	} else {
		log.Debug().Str("file", v.ConfigFileUsed()).Msg("Config file loaded")
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// loadEnvFile loads environment variables from .env file
func loadEnvFile() error {
	for _, location := range []string{".env", ".env.local"} {
		if _, err := os.Stat(location); err == nil {
			if err := godotenv.Load(location); err != nil {
				return fmt.Errorf("error loading .env file from %s: %w", location, err)
			}
			log.Debug().Str("file", location).Msg(".env file loaded")
			return nil
		}
	}

	return fmt.Errorf("no .env file found")
}

// defaultCacheDir is the per-user cache location
func defaultCacheDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "outpack")
	}
	return ".outpack-cache"
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// NPM defaults
	v.SetDefault("npm.registry", "https://registry.npmjs.org")
	v.SetDefault("npm.timeout", "30s")
	v.SetDefault("npm.user_agent", "outpack")
	v.SetDefault("npm.auth_token", "")
	v.SetDefault("npm.rate_limit", 0.0)

	// Output defaults
	v.SetDefault("output.directory", "./dist")
	v.SetDefault("output.naming_pattern", "{name}-outsystems.js")
	v.SetDefault("output.minify", false)
	v.SetDefault("output.target", transform.ES2015.String())
	v.SetDefault("output.namespace", "")

	// Polyfill defaults
	v.SetDefault("polyfills.default_includes", []string{})
	v.SetDefault("polyfills.default_excludes", []string{"fs", "child_process"})
	v.SetDefault("polyfills.custom_dir", "")

	// Bundle defaults
	v.SetDefault("bundle.strategy", bundler.Inline.String())
	v.SetDefault("bundle.max_size", 5*1024*1024) // 5MB
	v.SetDefault("bundle.exclude_dependencies", []string{"fsevents", "node-gyp"})
	v.SetDefault("bundle.force_inline", []string{})
	v.SetDefault("bundle.inline_threshold", 0) // max_size/10
	v.SetDefault("bundle.small_utilities", bundler.DefaultSmallUtilities)
	v.SetDefault("bundle.globals", map[string]string{})
	v.SetDefault("bundle.strip_comments", false)

	// Cache defaults
	v.SetDefault("cache.directory", defaultCacheDir())
	v.SetDefault("cache.ttl", "24h")
	v.SetDefault("cache.enabled", true)

	v.SetDefault("analysis.workers", 0)
	v.SetDefault("debug", false)
}

// Default returns the configuration used when nothing is configured
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		// defaults always decode
		panic(err)
	}
	return &config
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := c.NPM.Validate(); err != nil {
		return fmt.Errorf("npm configuration error: %w", err)
	}
	if err := c.Output.Validate(); err != nil {
		return fmt.Errorf("output configuration error: %w", err)
	}
	if err := c.Bundle.Validate(); err != nil {
		return fmt.Errorf("bundle configuration error: %w", err)
	}
	if c.Cache.Enabled && c.Cache.TTL < 0 {
		return fmt.Errorf("cache ttl cannot be negative")
	}
	if c.Analysis.Workers < 0 {
		return fmt.Errorf("analysis workers cannot be negative")
	}
	return nil
}

// Validate validates registry settings
func (nc *NPMConfig) Validate() error {
	u, err := url.Parse(nc.Registry)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("registry must be an http(s) URL, got %q", nc.Registry)
	}
	if nc.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if nc.RateLimit < 0 {
		return fmt.Errorf("rate_limit cannot be negative")
	}
	return nil
}

// Validate validates output settings
func (oc *OutputConfig) Validate() error {
	if oc.NamingPattern == "" {
		return fmt.Errorf("naming_pattern cannot be empty")
	}
	if _, err := transform.ParseTarget(oc.Target); err != nil {
		return err
	}
	return nil
}

// Validate validates bundling settings
func (bc *BundleConfig) Validate() error {
	if bc.MaxSize <= 0 {
		return fmt.Errorf("max_size must be positive")
	}
	if bc.InlineThreshold < 0 {
		return fmt.Errorf("inline_threshold cannot be negative")
	}
	if _, err := bundler.ParseStrategy(bc.Strategy); err != nil {
		return err
	}
	for _, pattern := range bc.ExcludeDependencies {
		if _, err := glob.Compile(pattern); err != nil {
			return fmt.Errorf("invalid exclude pattern %q: %w", pattern, err)
		}
	}
	return nil
}
