package onnx

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"

	"github.com/yalue/onnxruntime_go"
)

const (
	osLinux    = "linux"
	osDarwin   = "darwin"
	osWindows  = "windows"
	libLinux   = "libonnxruntime.so"
	libDarwin  = "libonnxruntime.dylib"
	libWindows = "onnxruntime.dll"

	// EnvLibraryPath overrides the ONNX Runtime shared library location.
	EnvLibraryPath = "FORMOCR_ONNXRUNTIME_LIB"
)

// GPUConfig holds configuration for GPU acceleration using CUDA.
type GPUConfig struct {
	UseGPU                bool   `mapstructure:"use_gpu"                   yaml:"use_gpu"                   json:"use_gpu"`
	DeviceID              int    `mapstructure:"device_id"                 yaml:"device_id"                 json:"device_id"`
	GPUMemLimit           uint64 `mapstructure:"gpu_mem_limit"             yaml:"gpu_mem_limit"             json:"gpu_mem_limit"`
	ArenaExtendStrategy   string `mapstructure:"arena_extend_strategy"     yaml:"arena_extend_strategy"     json:"arena_extend_strategy"`
	CUDNNConvAlgoSearch   string `mapstructure:"cudnn_conv_algo_search"    yaml:"cudnn_conv_algo_search"    json:"cudnn_conv_algo_search"`
	DoCopyInDefaultStream bool   `mapstructure:"do_copy_in_default_stream" yaml:"do_copy_in_default_stream" json:"do_copy_in_default_stream"`
}

// DefaultGPUConfig returns default GPU configuration.
func DefaultGPUConfig() GPUConfig {
	return GPUConfig{
		UseGPU:                false,
		DeviceID:              0,
		GPUMemLimit:           0, // unlimited
		ArenaExtendStrategy:   "kNextPowerOfTwo",
		CUDNNConvAlgoSearch:   "DEFAULT",
		DoCopyInDefaultStream: true,
	}
}

// cudaSettings renders the provider option map handed to ONNX Runtime.
func cudaSettings(cfg GPUConfig) map[string]string {
	settings := map[string]string{
		"device_id": strconv.Itoa(cfg.DeviceID),
	}
	if cfg.GPUMemLimit > 0 {
		settings["gpu_mem_limit"] = strconv.FormatUint(cfg.GPUMemLimit, 10)
	}
	if cfg.ArenaExtendStrategy != "" {
		settings["arena_extend_strategy"] = cfg.ArenaExtendStrategy
	}
	if cfg.CUDNNConvAlgoSearch != "" {
		settings["cudnn_conv_algo_search"] = cfg.CUDNNConvAlgoSearch
	}
	if cfg.DoCopyInDefaultStream {
		settings["do_copy_in_default_stream"] = "1"
	} else {
		settings["do_copy_in_default_stream"] = "0"
	}
	return settings
}

// ConfigureSessionForGPU appends the CUDA execution provider when GPU use is requested.
// Callers fall back to CPU execution when this returns an error.
func ConfigureSessionForGPU(sessionOptions *onnxruntime_go.SessionOptions, gpuConfig GPUConfig) error {
	if !gpuConfig.UseGPU {
		return nil
	}

	cudaOpts, err := onnxruntime_go.NewCUDAProviderOptions()
	if err != nil {
		return fmt.Errorf("failed to create CUDA provider options (GPU may not be available): %w", err)
	}
	defer func() {
		if destroyErr := cudaOpts.Destroy(); destroyErr != nil {
			slog.Warn("failed to destroy CUDA provider options", "error", destroyErr)
		}
	}()

	if err := cudaOpts.Update(cudaSettings(gpuConfig)); err != nil {
		return fmt.Errorf("failed to update CUDA provider options: %w", err)
	}
	if err := sessionOptions.AppendExecutionProviderCUDA(cudaOpts); err != nil {
		return fmt.Errorf("failed to append CUDA execution provider: %w", err)
	}
	return nil
}

// ValidateGPUConfig checks if the GPU configuration is valid.
func ValidateGPUConfig(config GPUConfig) error {
	if !config.UseGPU {
		return nil
	}

	if config.DeviceID < 0 {
		return fmt.Errorf("device ID must be non-negative, got %d", config.DeviceID)
	}

	validStrategies := map[string]bool{
		"kNextPowerOfTwo":  true,
		"kSameAsRequested": true,
	}
	if config.ArenaExtendStrategy != "" && !validStrategies[config.ArenaExtendStrategy] {
		return fmt.Errorf("invalid arena extend strategy: %s (must be 'kNextPowerOfTwo' or "+
			"'kSameAsRequested')", config.ArenaExtendStrategy)
	}

	validAlgoSearch := map[string]bool{
		"EXHAUSTIVE": true,
		"HEURISTIC":  true,
		"DEFAULT":    true,
	}
	if config.CUDNNConvAlgoSearch != "" && !validAlgoSearch[config.CUDNNConvAlgoSearch] {
		return fmt.Errorf("invalid CUDNN conv algo search: %s (must be 'EXHAUSTIVE', 'HEURISTIC', or "+
			"'DEFAULT')", config.CUDNNConvAlgoSearch)
	}

	return nil
}

// libraryCandidates lists the shared library locations to probe, in order.
func libraryCandidates(useGPU bool, projectRoot, libName string) []string {
	var paths []string
	if env := os.Getenv(EnvLibraryPath); env != "" {
		paths = append(paths, env)
	}
	if useGPU {
		paths = append(paths, "/opt/onnxruntime/gpu/lib/"+libLinux)
	}
	paths = append(paths,
		"/usr/local/lib/"+libLinux,
		"/usr/lib/"+libLinux,
		"/opt/onnxruntime/cpu/lib/"+libLinux,
	)
	if projectRoot != "" && libName != "" {
		if useGPU {
			paths = append(paths, filepath.Join(projectRoot, "onnxruntime", "gpu", "lib", libName))
		}
		paths = append(paths, filepath.Join(projectRoot, "onnxruntime", "lib", libName))
	}
	return paths
}

// findProjectRoot walks up from the working directory to the nearest go.mod.
func findProjectRoot() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current directory: %w", err)
	}

	projectRoot := cwd
	for {
		if _, err := os.Stat(filepath.Join(projectRoot, "go.mod")); err == nil {
			return projectRoot, nil
		}
		parent := filepath.Dir(projectRoot)
		if parent == projectRoot {
			return "", errors.New("could not find project root")
		}
		projectRoot = parent
	}
}

// getLibraryName returns the appropriate library filename for the current OS.
func getLibraryName() (string, error) {
	switch runtime.GOOS {
	case osLinux:
		return libLinux, nil
	case osDarwin:
		return libDarwin, nil
	case osWindows:
		return libWindows, nil
	default:
		return "", fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
	}
}

// SetONNXLibraryPath points onnxruntime_go at the first shared library found.
// If useGPU is true, GPU builds are preferred.
func SetONNXLibraryPath(useGPU bool) error {
	projectRoot, _ := findProjectRoot()
	libName, err := getLibraryName()
	if err != nil {
		return err
	}

	candidates := libraryCandidates(useGPU, projectRoot, libName)
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			onnxruntime_go.SetSharedLibraryPath(path)
			slog.Debug("using ONNX Runtime library", "path", path)
			return nil
		}
	}
	return fmt.Errorf("ONNX Runtime library not found (tried %d locations, set %s to override)",
		len(candidates), EnvLibraryPath)
}

var envMu sync.Mutex

// EnsureEnvironment initializes the ONNX Runtime environment once per process.
func EnsureEnvironment(useGPU bool) error {
	envMu.Lock()
	defer envMu.Unlock()

	if onnxruntime_go.IsInitialized() {
		return nil
	}
	if err := SetONNXLibraryPath(useGPU); err != nil {
		return fmt.Errorf("failed to set ONNX Runtime library path: %w", err)
	}
	if err := onnxruntime_go.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize ONNX Runtime: %w", err)
	}
	return nil
}
