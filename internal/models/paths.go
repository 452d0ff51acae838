package models

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Model file names.
const (
	// DetectionModel is the ONNX export of the form-region grid CNN.
	DetectionModel = "form_detector.onnx"
)

// Default models directory, relative to the project root.
const DefaultModelsDir = "model_state"

// EnvModelsDir overrides the models directory.
const EnvModelsDir = "FORMOCR_MODELS_DIR"

// findProjectRoot finds the project root by looking for go.mod.
func findProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", errors.New("could not find project root (go.mod not found)")
}

// GetModelsDir returns the models directory.
// Priority: 1. explicit modelsDir, 2. environment variable, 3. project root + default.
func GetModelsDir(modelsDir string) string {
	if modelsDir != "" {
		return modelsDir
	}
	if envDir := os.Getenv(EnvModelsDir); envDir != "" {
		return envDir
	}
	if projectRoot, err := findProjectRoot(); err == nil {
		return filepath.Join(projectRoot, DefaultModelsDir)
	}
	return DefaultModelsDir
}

// GetDetectionModelPath resolves the detector weights. An explicit modelPath wins
// over the models directory.
func GetDetectionModelPath(modelsDir, modelPath string) string {
	if modelPath != "" {
		return modelPath
	}
	return filepath.Join(GetModelsDir(modelsDir), DetectionModel)
}

// ValidateModelExists checks that a model file exists and is a regular file.
func ValidateModelExists(modelPath string) error {
	info, err := os.Stat(modelPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("model file not found: %s", modelPath)
		}
		return fmt.Errorf("cannot stat model file %s: %w", modelPath, err)
	}
	if info.IsDir() {
		return fmt.Errorf("model path is a directory: %s", modelPath)
	}
	return nil
}
