package models

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetModelsDir(t *testing.T) {
	assert.Equal(t, "/explicit", GetModelsDir("/explicit"))

	t.Setenv(EnvModelsDir, "/from/env")
	assert.Equal(t, "/from/env", GetModelsDir(""))

	t.Setenv(EnvModelsDir, "")
	dir := GetModelsDir("")
	assert.Equal(t, DefaultModelsDir, filepath.Base(dir))
}

func TestGetDetectionModelPath(t *testing.T) {
	assert.Equal(t, "/w/custom.onnx", GetDetectionModelPath("/models", "/w/custom.onnx"))
	assert.Equal(t, filepath.Join("/models", DetectionModel), GetDetectionModelPath("/models", ""))
}

func TestValidateModelExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, DetectionModel)

	err := ValidateModelExists(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model file not found")

	require.NoError(t, os.WriteFile(path, []byte("onnx"), 0o600))
	require.NoError(t, ValidateModelExists(path))

	require.Error(t, ValidateModelExists(dir))
}
