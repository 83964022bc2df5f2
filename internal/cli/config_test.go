package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindConfigFile_ExplicitPath(t *testing.T) {
	tmpDir := t.TempDir()
	tmpFile := filepath.Join(tmpDir, "custom.yaml")
	err := os.WriteFile(tmpFile, []byte("policy_dir: policies"), 0o644)
	require.NoError(t, err)

	path, err := findConfigFile(tmpFile)
	require.NoError(t, err)
	assert.Equal(t, tmpFile, path)
}

func TestFindConfigFile_ExplicitPathNotFound(t *testing.T) {
	_, err := findConfigFile("/nonexistent/path/config.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config file not found")
}

func TestFindConfigFile_AutoDiscovery(t *testing.T) {
	root := t.TempDir()
	err := os.Mkdir(filepath.Join(root, ".git"), 0o755)
	require.NoError(t, err)

	configPath := filepath.Join(root, "rlsguard.yaml")
	err = os.WriteFile(configPath, []byte("policy_dir: policies"), 0o644)
	require.NoError(t, err)

	nested := filepath.Join(root, "deep", "nested")
	err = os.MkdirAll(nested, 0o755)
	require.NoError(t, err)

	oldCwd, err := os.Getwd()
	require.NoError(t, err)
	defer func() { _ = os.Chdir(oldCwd) }()
	err = os.Chdir(nested)
	require.NoError(t, err)

	path, err := findConfigFile("")
	require.NoError(t, err)

	expectedPath, _ := filepath.EvalSymlinks(configPath)
	actualPath, _ := filepath.EvalSymlinks(path)
	assert.Equal(t, expectedPath, actualPath)
}

func TestFindConfigFile_StopsAtFilesystemRootWithoutGit(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	oldCwd, err := os.Getwd()
	require.NoError(t, err)
	defer func() { _ = os.Chdir(oldCwd) }()
	require.NoError(t, os.Chdir(nested))

	path, err := findConfigFile("")
	require.NoError(t, err)
	assert.Empty(t, path)
}

func TestLoadConfig_Defaults(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, ".git"), 0o755))

	oldCwd, err := os.Getwd()
	require.NoError(t, err)
	defer func() { _ = os.Chdir(oldCwd) }()
	require.NoError(t, os.Chdir(root))

	cfg, configPath, err := LoadConfig("")
	require.NoError(t, err)
	assert.Empty(t, configPath)
	assert.Equal(t, "policies", cfg.PolicyDir)
	assert.Equal(t, "text", cfg.Format)
	assert.Equal(t, 2, cfg.TraversalDepth)
	assert.Equal(t, 5000, cfg.Proof.TimeoutMs)
	assert.False(t, cfg.Apply.DryRun)
	assert.False(t, cfg.Monitor.Reconcile)
}

func TestLoadConfig_FileOverridesDefaults(t *testing.T) {
	root := t.TempDir()
	configPath := filepath.Join(root, "rlsguard.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(`
policy_dir: custom-policies
target: postgres://localhost/app
traversal_depth: 3
proof:
  disabled: ["policy_equivalence"]
  timeout_ms: 10000
monitor:
  reconcile: true
`), 0o644))

	cfg, loadedPath, err := LoadConfig(configPath)
	require.NoError(t, err)
	assert.Equal(t, configPath, loadedPath)
	assert.Equal(t, "custom-policies", cfg.PolicyDir)
	assert.Equal(t, "postgres://localhost/app", cfg.Target)
	assert.Equal(t, 3, cfg.TraversalDepth)
	assert.Equal(t, []string{"policy_equivalence"}, cfg.Proof.Disabled)
	assert.Equal(t, 10000, cfg.Proof.TimeoutMs)
	assert.True(t, cfg.Monitor.Reconcile)
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	root := t.TempDir()
	configPath := filepath.Join(root, "rlsguard.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("target: postgres://localhost/file\n"), 0o644))

	t.Setenv("RLSGUARD_TARGET", "postgres://localhost/env")

	cfg, _, err := LoadConfig(configPath)
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/env", cfg.Target)
}
