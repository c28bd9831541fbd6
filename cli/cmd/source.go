package cmd

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/fluxbase-eu/outpack/internal/config"
	"github.com/fluxbase-eu/outpack/internal/npm"
	"github.com/fluxbase-eu/outpack/internal/resolve"
)

// packageSource bundles the fetchers a command needs and releases the cache
type packageSource struct {
	registry *npm.RegistryClient
	cache    *npm.Cache
}

func newPackageSource(c *config.Config, useCache bool) *packageSource {
	src := &packageSource{}
	token := c.NPM.AuthToken
	if token == "" {
		stored, err := npm.NewTokenStore().Load(c.NPM.Registry)
		if err != nil {
			log.Debug().Err(err).Msg("Keychain unavailable, using anonymous registry access")
		}
		token = stored
	}
	opts := []npm.RegistryOption{
		npm.WithTimeout(c.NPM.Timeout),
		npm.WithUserAgent(c.NPM.UserAgent),
		npm.WithAuthToken(token),
		npm.WithRateLimit(c.NPM.RateLimit),
	}
	if useCache && c.Cache.Enabled {
		cache, err := npm.OpenCache(c.Cache.Directory, c.Cache.TTL)
		if err != nil {
			// another outpack process may hold the lock
			log.Warn().Err(err).Str("dir", c.Cache.Directory).Msg("Package cache unavailable, continuing without it")
		} else {
			src.cache = cache
			opts = append(opts, npm.WithCache(cache))
		}
	}
	src.registry = npm.NewRegistryClient(c.NPM.Registry, opts...)
	return src
}

// Load resolves a directory or registry spec to a package
func (s *packageSource) Load(ctx context.Context, arg string) (*npm.Package, error) {
	return npm.Source{Registry: s.registry}.Load(ctx, arg)
}

// Dependencies returns a resolver for the package's bare imports. Local
// packages resolve from their node_modules first when one is installed.
func (s *packageSource) Dependencies(arg, nodeModules string, pkg *npm.Package) resolve.Resolver {
	if nodeModules == "" && npm.IsLocal(arg) {
		nodeModules = filepath.Join(arg, "node_modules")
	}
	var fetcher npm.Fetcher = s.registry
	if nodeModules != "" {
		if info, err := os.Stat(nodeModules); err == nil && info.IsDir() {
			log.Debug().Str("dir", nodeModules).Msg("Resolving dependencies from node_modules first")
			fetcher = npm.Chain{npm.NodeModules{Dir: nodeModules}, s.registry}
		}
	}
	return resolve.NewPackageResolver(fetcher, pkg.Manifest.Dependencies)
}

// Close releases the metadata cache
func (s *packageSource) Close() {
	if s.cache == nil {
		return
	}
	if err := s.cache.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close package cache")
	}
}
