package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"github.com/fluxbase-eu/outpack/internal/config"
	"github.com/fluxbase-eu/outpack/internal/converter"
	"github.com/fluxbase-eu/outpack/internal/npm"
)

func TestMain(m *testing.M) {
	keyring.MockInit()
	os.Exit(m.Run())
}

// run executes the root command and restores every flag it set
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		reset := func(f *pflag.Flag) {
			if f.Changed {
				_ = f.Value.Set(f.DefValue)
				f.Changed = false
			}
		}
		rootCmd.PersistentFlags().VisitAll(reset)
		for _, c := range rootCmd.Commands() {
			c.Flags().VisitAll(reset)
		}
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		cfg, formatter = nil, nil
	})
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writePackage(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return dir
}

// isolatedConfig keeps tests away from the user's cache and config files
func isolatedConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "outpack.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cache:\n  enabled: false\n"), 0o644))
	return path
}

var padPackage = map[string]string{
	"package.json": `{"name": "left-pad-lite", "version": "1.2.0", "main": "index.js"}`,
	"index.js": `var pad = require('./lib/pad');
module.exports = function leftPad(s, n) { return pad(String(s), n); };
`,
	"lib/pad.js": `module.exports = function (s, n) { while (s.length < n) { s = ' ' + s; } return s; };
`,
}

func TestConvertCommand(t *testing.T) {
	pkgDir := writePackage(t, padPackage)
	outDir := t.TempDir()

	out, err := run(t, "convert", pkgDir, "--config", isolatedConfig(t), "--out-dir", outDir, "--namespace", "Vendor")
	require.NoError(t, err)
	assert.Contains(t, out, "Converted left-pad-lite@1.2.0")
	assert.Contains(t, out, "LeftPadLite")

	code, err := os.ReadFile(filepath.Join(outDir, "left-pad-lite-outsystems.js"))
	require.NoError(t, err)
	assert.Contains(t, string(code), "left-pad-lite v1.2.0 - OutSystems Compatible")
	assert.Contains(t, string(code), "global.Vendor.LeftPadLite = factory();")
}

func TestConvertCommand_JSON(t *testing.T) {
	pkgDir := writePackage(t, padPackage)
	outDir := t.TempDir()

	out, err := run(t, "convert", pkgDir, "--config", isolatedConfig(t), "--out-dir", outDir, "-o", "json")
	require.NoError(t, err)

	var report struct {
		File      string   `json:"file"`
		RunID     string   `json:"run_id"`
		Polyfills []string `json:"polyfills"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, filepath.Join(outDir, "left-pad-lite-outsystems.js"), report.File)
	assert.NotEmpty(t, report.RunID)
	assert.Empty(t, report.Polyfills)
}

func TestConvertCommand_DryRun(t *testing.T) {
	pkgDir := writePackage(t, padPackage)
	outDir := t.TempDir()

	out, err := run(t, "convert", pkgDir, "--config", isolatedConfig(t), "--out-dir", outDir, "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "=== Compatibility Analysis: left-pad-lite@1.2.0 ===")
	assert.Contains(t, out, "Verdict: conversion is feasible")

	entries, err := os.ReadDir(outDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestConvertCommand_Infeasible(t *testing.T) {
	pkgDir := writePackage(t, map[string]string{
		"package.json": `{"name": "server-only", "version": "0.1.0"}`,
		"index.js": `var fs = require('fs');
var net = require('net');
var cp = require('child_process');
var http = require('http');
var os = require('os');
module.exports = { fs: fs, net: net, cp: cp, http: http, os: os };
`,
	})

	out, err := run(t, "convert", pkgDir, "--config", isolatedConfig(t), "--out-dir", t.TempDir())
	require.Error(t, err)
	assert.ErrorIs(t, err, converter.ErrInfeasible)
	assert.Contains(t, out, "Verdict: conversion is not feasible")
}

func TestConvertCommand_InvalidFlag(t *testing.T) {
	pkgDir := writePackage(t, padPackage)

	_, err := run(t, "convert", pkgDir, "--config", isolatedConfig(t), "--strategy", "webpack")
	assert.ErrorContains(t, err, "unknown bundle strategy")
}

func TestAnalyzeCommand_YAML(t *testing.T) {
	pkgDir := writePackage(t, map[string]string{
		"package.json": `{"name": "hasher", "version": "2.0.0"}`,
		"index.js":     "var crypto = require('crypto');\nmodule.exports = crypto.createHash;\n",
	})

	out, err := run(t, "analyze", pkgDir, "--config", isolatedConfig(t), "-o", "yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "name: hasher")
	assert.Contains(t, out, "feasible: true")
	assert.Contains(t, out, "- crypto")
}

func TestInitCommand(t *testing.T) {
	dir := t.TempDir()

	out, err := run(t, "init", dir)
	require.NoError(t, err)
	assert.Contains(t, out, filepath.Join(dir, config.FileName))

	_, err = run(t, "init", dir)
	assert.ErrorIs(t, err, config.ErrConfigExists)

	_, err = run(t, "init", dir, "--force")
	assert.NoError(t, err)
}

func TestLoginLogout(t *testing.T) {
	configPath := isolatedConfig(t)

	rootCmd.SetIn(bytes.NewBufferString("npm_secret\n"))
	t.Cleanup(func() { rootCmd.SetIn(nil) })
	out, err := run(t, "login", "--config", configPath, "--registry", "https://npm.example.com")
	require.NoError(t, err)
	assert.Contains(t, out, "Token stored for https://npm.example.com")

	token, err := npm.NewTokenStore().Load("https://npm.example.com")
	require.NoError(t, err)
	assert.Equal(t, "npm_secret", token)

	_, err = run(t, "logout", "--config", configPath, "--registry", "https://npm.example.com")
	require.NoError(t, err)
	token, err = npm.NewTokenStore().Load("https://npm.example.com")
	require.NoError(t, err)
	assert.Empty(t, token)
}

func TestConvertCommand_MetricsFile(t *testing.T) {
	pkgDir := writePackage(t, padPackage)
	metricsPath := filepath.Join(t.TempDir(), "outpack.prom")

	_, err := run(t, "convert", pkgDir, "--config", isolatedConfig(t), "--out-dir", t.TempDir(), "--metrics-file", metricsPath)
	require.NoError(t, err)

	data, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `outpack_conversions_total{outcome="success",strategy="inline"} 1`)
}

func TestPolyfillsCommand(t *testing.T) {
	custom := writePackage(t, map[string]string{"events.js": "var eventsPolyfill = {};\n"})
	path := filepath.Join(t.TempDir(), "outpack.yaml")
	require.NoError(t, os.WriteFile(path, []byte("polyfills:\n  custom_dir: "+custom+"\n"), 0o644))

	out, err := run(t, "polyfills", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "crypto")
	assert.Contains(t, out, "builtin")
	assert.Contains(t, out, "events")
	assert.Contains(t, out, "custom")
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version", "-o", "json")
	require.NoError(t, err)

	var info versionInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, Version, info.Version)
	assert.NotEmpty(t, info.GoVersion)
}

func TestCompletionCommand(t *testing.T) {
	out, err := run(t, "completion", "bash")
	require.NoError(t, err)
	assert.Contains(t, out, "outpack")
}
