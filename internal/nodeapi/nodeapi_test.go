package nodeapi

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		specifier string
		want      Class
	}{
		{"fs", ClassIncompatible},
		{"node:fs", ClassIncompatible},
		{"child_process", ClassIncompatible},
		{"os", ClassIncompatible},
		{"crypto", ClassPolyfillable},
		{"node:buffer", ClassPolyfillable},
		{"path", ClassPolyfillable},
		{"lodash", ClassNone},
		{"stream", ClassNone},
		{"./fs", ClassNone},
	}

	for _, tt := range tests {
		t.Run(tt.specifier, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.specifier))
		})
	}
}

func TestIsBuiltin(t *testing.T) {
	assert.True(t, IsBuiltin("fs"))
	assert.True(t, IsBuiltin("fs/promises"))
	assert.True(t, IsBuiltin("node:stream"))
	assert.True(t, IsBuiltin("zlib"))
	assert.False(t, IsBuiltin("lodash"))
	assert.False(t, IsBuiltin("./path"))
}

func TestIdentifier(t *testing.T) {
	id, ok := Identifier("crypto")
	assert.True(t, ok)
	assert.Equal(t, "cryptoPolyfill", id)

	id, ok = Identifier("node:events")
	assert.True(t, ok)
	assert.Equal(t, "EventEmitterPolyfill", id)

	id, ok = Identifier("path")
	assert.True(t, ok)
	assert.Equal(t, "pathPolyfill", id)

	_, ok = Identifier("fs")
	assert.False(t, ok)
}

func TestSuggestion(t *testing.T) {
	assert.Equal(t, "Use Web Crypto API", Suggestion("crypto"))
	assert.Equal(t, "File system operations not available in browser", Suggestion("node:fs"))
	assert.NotEmpty(t, Suggestion("net"))
}

func TestLists(t *testing.T) {
	assert.Equal(t, []string{"child_process", "cluster", "fs", "http", "https", "net", "os", "worker_threads"}, Incompatible())
	assert.Equal(t, []string{"buffer", "crypto", "events", "path", "process", "util"}, Polyfillable())
}
