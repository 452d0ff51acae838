package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	assert.Equal(t, "formocr", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
	assert.Same(t, rootCmd, GetRootCommand())

	names := make([]string, 0, len(rootCmd.Commands()))
	for _, c := range rootCmd.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"image", "pdf", "batch", "bench", "serve", "config", "cache", "version"} {
		assert.Contains(t, names, want)
	}
}

func TestRootCommandHelp(t *testing.T) {
	stdout, _, err := executeCommand(t, "--help")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Available Commands:")
	assert.Contains(t, stdout, "formocr image form.png")
}

func TestVersion(t *testing.T) {
	stdout, _, err := executeCommand(t, "version")
	require.NoError(t, err)
	assert.Contains(t, stdout, "formocr dev")

	stdout, _, err = executeCommand(t, "--version")
	require.NoError(t, err)
	assert.Contains(t, stdout, "formocr dev")
}

func TestInvalidFlag(t *testing.T) {
	_, _, err := executeCommand(t, "--no-such-flag")
	assert.Error(t, err)
}

func TestInvalidConfigFile(t *testing.T) {
	_, _, err := executeCommand(t, "config", "show", "--config", "/does/not/exist.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config file does not exist")
}

func TestFlagsOverrideConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "formocr.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: warn\nmodels_dir: /from/file\n"), 0o600))

	stdout, _, err := executeCommand(t, "config", "show", "--config", path, "--models-dir", "/from/flag")
	require.NoError(t, err)
	assert.Contains(t, stdout, "log_level: warn")
	assert.Contains(t, stdout, "models_dir: /from/flag")
}

func TestUnchangedFlagsDoNotMaskEnvironment(t *testing.T) {
	t.Setenv("FORMOCR_LOG_LEVEL", "error")
	stdout, _, err := executeCommand(t, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, stdout, "log_level: error")
}

func TestEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds.env")
	require.NoError(t, os.WriteFile(path, []byte("FORMOCR_SERVER_PORT=9876\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("FORMOCR_SERVER_PORT") })

	stdout, _, err := executeCommand(t, "config", "show", "--env-file", path)
	require.NoError(t, err)
	assert.Contains(t, stdout, "port: 9876")
}

func TestMissingExplicitEnvFile(t *testing.T) {
	_, _, err := executeCommand(t, "config", "show", "--env-file", "/does/not/exist.env")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load env file")
}
