package analyzer

import (
	"errors"
	"fmt"

	"github.com/fluxbase-eu/outpack/internal/npm"
)

// ErrMissingName is returned for a package.json without a usable name
var ErrMissingName = errors.New("missing or invalid 'name' field")

// ParsePackageInfo reads package.json bytes
func ParsePackageInfo(data []byte) (*PackageInfo, error) {
	m, err := npm.ParseManifest(data)
	if err != nil {
		return nil, err
	}
	return PackageInfoFrom(m)
}

// PackageInfoFrom converts a parsed manifest, applying defaults
func PackageInfoFrom(m *npm.Manifest) (*PackageInfo, error) {
	if m.Name == "" {
		return nil, fmt.Errorf("package.json: %w", ErrMissingName)
	}
	version := m.Version
	if version == "" {
		version = "0.0.0"
	}
	deps := m.Dependencies
	if deps == nil {
		deps = map[string]string{}
	}
	return &PackageInfo{
		Name:            m.Name,
		Version:         version,
		Description:     m.Description,
		Main:            m.Main,
		EntryPoints:     m.EntryPoints(),
		Dependencies:    deps,
		DevDependencies: m.DevDependencies,
		Keywords:        m.Keywords,
		License:         m.LicenseName(),
	}, nil
}
