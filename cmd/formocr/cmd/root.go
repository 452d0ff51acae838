package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/MeKo-Tech/formocr/internal/config"
	"github.com/MeKo-Tech/formocr/internal/models"
	"github.com/MeKo-Tech/formocr/internal/version"
)

// configKeyAnnotation marks a flag with the viper key it overrides.
const configKeyAnnotation = "formocr/config-key"

var (
	// Global configuration loader.
	configLoader *config.Loader
	// Global configuration.
	globalConfig *config.Config
	// Configuration file path.
	cfgFile string
	// Optional dotenv file with credentials.
	envFile string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "formocr",
	Short: "Form region detection and OCR for scanned documents",
	Long: `formocr finds the fields of a scanned form with a grid CNN detector and
reads each region with an OCR engine (docTR, Google Vision or Document AI).

This tool provides:
- Form region detection with ONNX Runtime
- Per-region OCR with failures isolated to the region
- PDF input through embedded page images
- Parallel batch processing
- An HTTP and WebSocket API

Examples:
  formocr image form.png
  formocr pdf scans.pdf --pages 1-3 --format json
  formocr batch scans/ --recursive --workers 4
  formocr serve --port 8080`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if err := loadEnvFile(cmd); err != nil {
			return err
		}
		if err := bindConfigFlags(cmd); err != nil {
			return err
		}
		if err := initConfig(); err != nil {
			return err
		}
		setupLogging(globalConfig)
		return nil
	},
	RunE: func(cmd *cobra.Command, _ []string) error {
		return cmd.Help()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// GetRootCommand returns the root command for testing purposes.
func GetRootCommand() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.Version = version.String()
	rootCmd.SetVersionTemplate("{{.Version}}\n")

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is search in ., $HOME, $HOME/.config/formocr, /etc/formocr)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file with credentials")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output (equivalent to --log-level=debug)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("models-dir", models.DefaultModelsDir,
		"directory containing ONNX models (can also be set via "+models.EnvModelsDir+")")

	bindConfigFlag(rootCmd.PersistentFlags(), "verbose", "verbose")
	bindConfigFlag(rootCmd.PersistentFlags(), "log-level", "log_level")
	bindConfigFlag(rootCmd.PersistentFlags(), "models-dir", "models_dir")
}

// bindConfigFlag records which config key a flag overrides. The binding to
// viper happens when the command runs, so commands may share keys.
func bindConfigFlag(fs *pflag.FlagSet, name, key string) {
	if err := fs.SetAnnotation(name, configKeyAnnotation, []string{key}); err != nil {
		panic(fmt.Sprintf("annotate flag %q: %v", name, err))
	}
}

// bindConfigFlags binds the annotated flags of the executing command to viper.
// Only flags set on the command line are bound so config files and env vars keep
// precedence over flag defaults.
func bindConfigFlags(cmd *cobra.Command) error {
	var bindErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		keys := f.Annotations[configKeyAnnotation]
		if len(keys) == 0 || bindErr != nil {
			return
		}
		if !f.Changed {
			return
		}
		bindErr = viper.BindPFlag(keys[0], f)
	})
	return bindErr
}

// loadEnvFile loads credentials from the dotenv file. A missing default file is not an error.
func loadEnvFile(cmd *cobra.Command) error {
	if envFile == "" {
		return nil
	}
	err := godotenv.Load(envFile)
	if err == nil {
		return nil
	}
	if !cmd.Flags().Changed("env-file") && errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("failed to load env file %s: %w", envFile, err)
}

// initConfig reads in config file and ENV variables if set.
func initConfig() error {
	configLoader = config.NewLoader()

	var err error
	if cfgFile != "" {
		globalConfig, err = configLoader.LoadWithFile(cfgFile)
	} else {
		globalConfig, err = configLoader.Load()
	}
	if err != nil {
		return fmt.Errorf("error loading configuration: %w", err)
	}
	return nil
}

func setupLogging(cfg *config.Config) {
	var level slog.Level
	switch {
	case cfg.Verbose:
		level = slog.LevelDebug
	case cfg.LogLevel == "debug":
		level = slog.LevelDebug
	case cfg.LogLevel == "warn":
		level = slog.LevelWarn
	case cfg.LogLevel == "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	// Logs go to stderr so extraction output on stdout stays machine-readable
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// GetConfig returns the global configuration.
func GetConfig() (*config.Config, error) {
	if globalConfig == nil {
		if err := initConfig(); err != nil {
			return nil, err
		}
	}
	return globalConfig, nil
}

// GetConfigLoader returns the global configuration loader.
func GetConfigLoader() *config.Loader {
	if configLoader == nil {
		configLoader = config.NewLoader()
	}
	return configLoader
}
