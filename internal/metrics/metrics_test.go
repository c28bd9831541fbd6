package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxbase-eu/outpack/internal/diagnostic"
)

func TestRecord(t *testing.T) {
	m := New()

	m.Record(Conversion{
		Package:      "demo",
		Strategy:     "inline",
		Duration:     300 * time.Millisecond,
		Size:         4096,
		Issues:       []diagnostic.Issue{diagnostic.Warning("a"), diagnostic.Warning("b"), diagnostic.Info("c")},
		Polyfills:    []string{"buffer", "crypto"},
		Dependencies: 3,
	})
	m.Record(Conversion{
		Package:  "server-only",
		Strategy: "inline",
		Issues:   []diagnostic.Issue{diagnostic.Error("fs")},
		Err:      errors.New("conversion is not feasible"),
	})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.conversionsTotal.WithLabelValues("inline", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.conversionsTotal.WithLabelValues("inline", "failure")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.issuesTotal.WithLabelValues("warning")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.issuesTotal.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.polyfillsInjected.WithLabelValues("crypto")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.dependencies.WithLabelValues("demo")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.bundleSize))
}

func TestRecord_NilReceiver(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() { m.Record(Conversion{Strategy: "inline"}) })
}

func TestWriteFile(t *testing.T) {
	m := New()
	m.Record(Conversion{Package: "demo", Strategy: "hybrid", Size: 10})

	path := filepath.Join(t.TempDir(), "outpack.prom")
	require.NoError(t, m.WriteFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `outpack_conversions_total{outcome="success",strategy="hybrid"} 1`)
	assert.Contains(t, string(data), "# TYPE outpack_bundle_size_bytes histogram")

	assert.Error(t, m.WriteFile(filepath.Join(t.TempDir(), "missing", "outpack.prom")))
}
