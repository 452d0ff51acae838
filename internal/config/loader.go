package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	// ConfigFileName is the base name for configuration files (without extension).
	ConfigFileName = "formocr"

	// EnvPrefix is the prefix for environment variables.
	EnvPrefix = "FORMOCR"
)

// Loader handles loading configuration from various sources.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	// Use the global viper instance to ensure flag bindings work
	return &Loader{v: viper.GetViper()}
}

// NewLoaderWithViper creates a loader around a caller-owned viper instance.
func NewLoaderWithViper(v *viper.Viper) *Loader {
	return &Loader{v: v}
}

// Load loads configuration from files, environment variables, and sets defaults.
// It returns the loaded configuration and any error encountered.
func (l *Loader) Load() (*Config, error) {
	return l.load("", true)
}

// LoadWithoutValidation is Load without the final Validate call.
func (l *Loader) LoadWithoutValidation() (*Config, error) {
	return l.load("", false)
}

// LoadWithFile loads configuration from a specific file path.
// An empty path falls back to the standard search paths.
func (l *Loader) LoadWithFile(configFile string) (*Config, error) {
	return l.load(configFile, true)
}

// LoadWithFileWithoutValidation loads configuration from a specific file path without validation.
func (l *Loader) LoadWithFileWithoutValidation(configFile string) (*Config, error) {
	return l.load(configFile, false)
}

func (l *Loader) load(configFile string, validate bool) (*Config, error) {
	if configFile != "" {
		if _, err := os.Stat(configFile); os.IsNotExist(err) {
			return nil, fmt.Errorf("config file does not exist: %s", configFile)
		}
		l.v.SetConfigFile(configFile)
	} else {
		l.v.SetConfigName(ConfigFileName)
		l.v.SetConfigType("yaml")
		l.addConfigPaths()
	}

	l.setupEnvironmentVariables()
	l.setDefaults()

	if err := l.v.ReadInConfig(); err != nil {
		// A missing file is fine when searching; defaults and env vars still apply
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := l.v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if validate {
		if err := config.Validate(); err != nil {
			return nil, fmt.Errorf("configuration validation failed: %w", err)
		}
	}
	return &config, nil
}

// Get returns a value from the configuration.
func (l *Loader) Get(key string) interface{} {
	return l.v.Get(key)
}

// GetString returns a string value from the configuration.
func (l *Loader) GetString(key string) string {
	return l.v.GetString(key)
}

// Set sets a value in the configuration.
func (l *Loader) Set(key string, value interface{}) {
	l.v.Set(key, value)
}

// GetConfigFileUsed returns the path of the config file used.
func (l *Loader) GetConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// GetViper returns the underlying viper instance for advanced usage.
func (l *Loader) GetViper() *viper.Viper {
	return l.v
}

// addConfigPaths adds the standard configuration search paths.
func (l *Loader) addConfigPaths() {
	for _, p := range GetConfigSearchPaths() {
		l.v.AddConfigPath(p)
	}
}

// setupEnvironmentVariables configures environment variable handling.
// FORMOCR_SERVER_PORT maps to server.port.
func (l *Loader) setupEnvironmentVariables() {
	l.v.SetEnvPrefix(EnvPrefix)
	l.v.AutomaticEnv()
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
}

// setDefaults registers every key so AutomaticEnv can resolve it during Unmarshal.
func (l *Loader) setDefaults() {
	d := DefaultConfig()

	l.v.SetDefault("models_dir", d.ModelsDir)
	l.v.SetDefault("log_level", d.LogLevel)
	l.v.SetDefault("verbose", d.Verbose)

	l.v.SetDefault("detector.model_path", d.Detector.ModelPath)
	l.v.SetDefault("detector.objectness_threshold", d.Detector.ObjectnessThreshold)
	l.v.SetDefault("detector.nms_threshold", d.Detector.NMSThreshold)
	l.v.SetDefault("detector.max_detections", d.Detector.MaxDetections)
	l.v.SetDefault("detector.min_width", d.Detector.MinWidth)
	l.v.SetDefault("detector.min_height", d.Detector.MinHeight)
	l.v.SetDefault("detector.num_threads", d.Detector.NumThreads)
	l.v.SetDefault("detector.warmup_iterations", d.Detector.WarmupIterations)
	l.v.SetDefault("detector.coverage.max_coverage", d.Detector.Coverage.MaxCoverage)
	l.v.SetDefault("detector.coverage.crowded_count", d.Detector.Coverage.CrowdedCount)
	l.v.SetDefault("detector.coverage.crowded_coverage", d.Detector.Coverage.CrowdedCoverage)

	l.v.SetDefault("ocr.backend", d.OCR.Backend)
	l.v.SetDefault("ocr.endpoint", d.OCR.Endpoint)
	l.v.SetDefault("ocr.timeout_sec", d.OCR.TimeoutSec)
	l.v.SetDefault("ocr.credentials_file", d.OCR.CredentialsFile)
	l.v.SetDefault("ocr.project_id", d.OCR.ProjectID)
	l.v.SetDefault("ocr.location", d.OCR.Location)
	l.v.SetDefault("ocr.processor_id", d.OCR.ProcessorID)
	l.v.SetDefault("ocr.processor_version", d.OCR.ProcessorVersion)
	l.v.SetDefault("ocr.normalize", d.OCR.Normalize)

	l.v.SetDefault("cache.enabled", d.Cache.Enabled)
	l.v.SetDefault("cache.backend", d.Cache.Backend)
	l.v.SetDefault("cache.redis_addr", d.Cache.RedisAddr)
	l.v.SetDefault("cache.redis_password", d.Cache.RedisPassword)
	l.v.SetDefault("cache.redis_db", d.Cache.RedisDB)
	l.v.SetDefault("cache.pool_size", d.Cache.PoolSize)
	l.v.SetDefault("cache.ttl_sec", d.Cache.TTLSec)
	l.v.SetDefault("cache.prefix", d.Cache.Prefix)
	l.v.SetDefault("cache.max_entries", d.Cache.MaxEntries)

	l.v.SetDefault("output.format", d.Output.Format)
	l.v.SetDefault("output.file", d.Output.File)
	l.v.SetDefault("output.overlay_dir", d.Output.OverlayDir)
	l.v.SetDefault("output.debug_dir", d.Output.DebugDir)

	l.v.SetDefault("server.host", d.Server.Host)
	l.v.SetDefault("server.port", d.Server.Port)
	l.v.SetDefault("server.cors_origin", d.Server.CORSOrigin)
	l.v.SetDefault("server.max_upload_mb", d.Server.MaxUploadMB)
	l.v.SetDefault("server.timeout_sec", d.Server.TimeoutSec)
	l.v.SetDefault("server.shutdown_timeout_sec", d.Server.ShutdownSec)
	l.v.SetDefault("server.overlay_enabled", d.Server.OverlayEnabled)
	l.v.SetDefault("server.rate_limit.enabled", d.Server.RateLimit.Enabled)
	l.v.SetDefault("server.rate_limit.requests_per_minute", d.Server.RateLimit.RequestsPerMinute)
	l.v.SetDefault("server.rate_limit.requests_per_hour", d.Server.RateLimit.RequestsPerHour)
	l.v.SetDefault("server.rate_limit.max_requests_per_day", d.Server.RateLimit.MaxRequestsPerDay)
	l.v.SetDefault("server.rate_limit.max_data_per_day", d.Server.RateLimit.MaxDataPerDay)

	l.v.SetDefault("batch.workers", d.Batch.Workers)
	l.v.SetDefault("batch.document_timeout_sec", d.Batch.DocumentTimeoutSec)
	l.v.SetDefault("batch.continue_on_error", d.Batch.ContinueOnError)
	l.v.SetDefault("batch.recursive", d.Batch.Recursive)

	l.v.SetDefault("gpu.enabled", d.GPU.Enabled)
	l.v.SetDefault("gpu.device", d.GPU.Device)
	l.v.SetDefault("gpu.memory_limit", d.GPU.MemoryLimit)
}

// GetResolvedConfig returns the current resolved configuration for debugging.
func (l *Loader) GetResolvedConfig() map[string]interface{} {
	return l.v.AllSettings()
}

// WriteConfigToFile writes the current configuration to a file.
func (l *Loader) WriteConfigToFile(filename string) error {
	return l.v.WriteConfigAs(filename)
}

// WriteYAML encodes cfg as YAML to w.
func WriteYAML(w io.Writer, cfg *Config) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return enc.Close()
}

// GenerateDefaultConfigFile writes the default configuration as YAML.
// It refuses to overwrite an existing file.
func GenerateDefaultConfigFile(filename string) error {
	if filename == "" {
		filename = ConfigFileName + ".yaml"
	}

	f, err := os.OpenFile(filename, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600) //nolint:gosec // G304: user-chosen output path
	if err != nil {
		return fmt.Errorf("create config file: %w", err)
	}
	defaults := DefaultConfig()
	if err := WriteYAML(f, &defaults); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// GetConfigSearchPaths returns the paths where configuration files are searched.
func GetConfigSearchPaths() []string {
	paths := []string{"."}

	home, homeErr := os.UserHomeDir()
	if homeErr == nil {
		paths = append(paths, home)
	}

	if configDir, exists := os.LookupEnv("XDG_CONFIG_HOME"); exists {
		paths = append(paths, filepath.Join(configDir, ConfigFileName))
	} else if homeErr == nil {
		paths = append(paths, filepath.Join(home, ".config", ConfigFileName))
	}

	return append(paths, "/etc/"+ConfigFileName)
}

// PrintConfigInfo prints information about configuration loading for debugging.
func (l *Loader) PrintConfigInfo(w io.Writer) {
	_, _ = fmt.Fprintf(w, "Configuration file used: %s\n", l.GetConfigFileUsed())
	_, _ = fmt.Fprintf(w, "Configuration search paths: %v\n", GetConfigSearchPaths())
	_, _ = fmt.Fprintf(w, "Environment prefix: %s\n", EnvPrefix)
}
