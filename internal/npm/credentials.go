package npm

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/zalando/go-keyring"
)

// KeychainService is the system keychain service registry tokens are saved under
const KeychainService = "outpack"

// TokenStore keeps registry auth tokens in the system keychain, keyed by
// registry host
type TokenStore struct {
	service string
}

// NewTokenStore creates a keychain-backed token store
func NewTokenStore() *TokenStore {
	return &TokenStore{service: KeychainService}
}

// Save stores the token for registry
func (s *TokenStore) Save(registry, token string) error {
	key, err := registryKey(registry)
	if err != nil {
		return err
	}
	if strings.TrimSpace(token) == "" {
		return fmt.Errorf("token cannot be empty")
	}
	if err := keyring.Set(s.service, key, token); err != nil {
		return fmt.Errorf("failed to save to keychain: %w", err)
	}
	return nil
}

// Load returns the token for registry; a missing entry is not an error
func (s *TokenStore) Load(registry string) (string, error) {
	key, err := registryKey(registry)
	if err != nil {
		return "", err
	}
	token, err := keyring.Get(s.service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load from keychain: %w", err)
	}
	return token, nil
}

// Delete removes the token for registry, if any
func (s *TokenStore) Delete(registry string) error {
	key, err := registryKey(registry)
	if err != nil {
		return err
	}
	if err := keyring.Delete(s.service, key); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("failed to delete from keychain: %w", err)
	}
	return nil
}

// registryKey reduces a registry URL to host[/path] so trailing slashes and
// schemes do not split entries
func registryKey(registry string) (string, error) {
	u, err := url.Parse(registry)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid registry URL %q", registry)
	}
	return strings.ToLower(u.Host) + strings.TrimSuffix(u.Path, "/"), nil
}
