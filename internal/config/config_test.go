package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolateHome(t *testing.T) string {
	t.Helper()
	tmpDir := t.TempDir()
	oldHome := os.Getenv("HOME")
	os.Setenv("HOME", tmpDir)
	oldXDGConfig := os.Getenv("XDG_CONFIG_HOME")
	os.Unsetenv("XDG_CONFIG_HOME")
	t.Cleanup(func() {
		os.Setenv("HOME", oldHome)
		if oldXDGConfig != "" {
			os.Setenv("XDG_CONFIG_HOME", oldXDGConfig)
		}
	})
	return tmpDir
}

func TestLoad_AppliesBuiltInDefaults(t *testing.T) {
	isolateHome(t)
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, defaultMaxIterations, cfg.DefaultMaxIterations)
	assert.Equal(t, defaultQuietDelayMs, cfg.DefaultQuietDelayMs)
	assert.Equal(t, defaultSynthesisN, cfg.DefaultSynthesisN)
	assert.ElementsMatch(t, defaultAllowedCLITypes, cfg.AllowedCLITypes)
	assert.Equal(t, 4096, cfg.HTTP.Port)
}

func TestLoad_ProjectConfigOverridesDefaults(t *testing.T) {
	isolateHome(t)
	dir := t.TempDir()

	projectCfg := `{
		"defaultMaxIterations": 8,
		"defaultSynthesisN": 3,
		"cliBinaries": {"claude": "/opt/claude/bin/claude"}
	}`
	path := filepath.Join(dir, ".forge", "forge.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(projectCfg), 0644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.DefaultMaxIterations)
	assert.Equal(t, 3, cfg.DefaultSynthesisN)
	assert.Equal(t, "/opt/claude/bin/claude", cfg.CLIBinaries["claude"])
	// untouched defaults survive the merge
	assert.Equal(t, defaultQuietDelayMs, cfg.DefaultQuietDelayMs)
}

func TestLoad_AcceptsJSONCComments(t *testing.T) {
	isolateHome(t)
	dir := t.TempDir()

	projectCfg := `{
		// iteration cap for this project's long-running loops
		"defaultMaxIterations": 12,
		/* synthesis fan-out */
		"defaultSynthesisN": 7
	}`
	path := filepath.Join(dir, ".forge", "forge.jsonc")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(projectCfg), 0644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.DefaultMaxIterations)
	assert.Equal(t, 7, cfg.DefaultSynthesisN)
}

func TestLoad_EnvOverridesBeatFiles(t *testing.T) {
	isolateHome(t)
	dir := t.TempDir()

	projectCfg := `{"http": {"port": 8000}, "cliBinaries": {"claude": "/opt/claude/bin/claude"}}`
	path := filepath.Join(dir, ".forge", "forge.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(projectCfg), 0644))

	os.Setenv("FORGE_HTTP_PORT", "9001")
	os.Setenv("FORGE_CLI_CLAUDE", "/usr/local/bin/claude")
	defer os.Unsetenv("FORGE_HTTP_PORT")
	defer os.Unsetenv("FORGE_CLI_CLAUDE")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 9001, cfg.HTTP.Port)
	assert.Equal(t, "/usr/local/bin/claude", cfg.CLIBinaries["claude"])
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	isolateHome(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "forge.json")

	cfg, err := Load(dir)
	require.NoError(t, err)
	cfg.DefaultSynthesisN = 9

	require.NoError(t, Save(cfg, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"defaultSynthesisN": 9`)
}
