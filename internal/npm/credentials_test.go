package npm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func TestTokenStore(t *testing.T) {
	keyring.MockInit()
	store := NewTokenStore()

	token, err := store.Load("https://registry.npmjs.org")
	require.NoError(t, err)
	assert.Empty(t, token)

	require.NoError(t, store.Save("https://registry.npmjs.org/", "npm_abc"))

	token, err = store.Load("http://REGISTRY.npmjs.org")
	require.NoError(t, err)
	assert.Equal(t, "npm_abc", token)

	token, err = store.Load("https://npm.pkg.github.com")
	require.NoError(t, err)
	assert.Empty(t, token)

	require.NoError(t, store.Delete("https://registry.npmjs.org"))
	require.NoError(t, store.Delete("https://registry.npmjs.org"))
	token, err = store.Load("https://registry.npmjs.org")
	require.NoError(t, err)
	assert.Empty(t, token)
}

func TestTokenStore_Errors(t *testing.T) {
	keyring.MockInit()
	store := NewTokenStore()

	assert.ErrorContains(t, store.Save("registry.npmjs.org", "x"), "invalid registry URL")
	assert.ErrorContains(t, store.Save("https://registry.npmjs.org", "  "), "token cannot be empty")
	_, err := store.Load("::")
	assert.ErrorContains(t, err, "invalid registry URL")
}

func TestRegistryKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "https://registry.npmjs.org", want: "registry.npmjs.org"},
		{in: "https://registry.npmjs.org/", want: "registry.npmjs.org"},
		{in: "http://Localhost:4873", want: "localhost:4873"},
		{in: "https://nexus.example.com/repository/npm/", want: "nexus.example.com/repository/npm"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := registryKey(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
