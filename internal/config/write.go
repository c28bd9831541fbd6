package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ErrConfigExists is returned by WriteDefault when it would overwrite a file
var ErrConfigExists = errors.New("configuration file already exists")

var sectionComments = map[string]string{
	"npm":       "Registry used to fetch packages and their dependencies; rate_limit is requests per second, 0 for none.\nauth_token may instead be stored with `outpack login`.",
	"output":    "Generated file settings; target is one of es5, es2015 ... es2022, esnext.\nes5 is partial: files using block scoping, classes or other ES2015 syntax are emitted at es2015.",
	"polyfills": "Polyfills added to or removed from what the conversion detects",
	"bundle":    "Dependency bundling; strategy is one of inline, selective, external, hybrid.\nexclude_dependencies holds glob patterns. inline_threshold 0 means max_size/10.",
	"cache":     "Registry metadata cache",
	"analysis":  "Per-file parallelism; 0 uses all CPUs",
}

// Marshal renders cfg as commented YAML
func Marshal(cfg *Config) ([]byte, error) {
	var root yaml.Node
	if err := root.Encode(cfg); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	for i := 0; i+1 < len(root.Content); i += 2 {
		key := root.Content[i]
		if comment, ok := sectionComments[key.Value]; ok {
			key.HeadComment = comment
		}
	}

	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(&root); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteDefault writes the default configuration to dir/outpack.yaml. An
// existing file is kept unless force is set.
func WriteDefault(dir string, force bool) (string, error) {
	path := filepath.Join(dir, FileName)
	if _, err := os.Stat(path); err == nil && !force {
		return path, fmt.Errorf("%w: %s", ErrConfigExists, path)
	}

	data, err := Marshal(Default())
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dir, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}
