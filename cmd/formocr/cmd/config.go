package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/formocr/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and create configuration files",
	Long: `Inspect the resolved configuration or write a default configuration file.

Settings are merged from defaults, the config file, FORMOCR_* environment
variables and command-line flags, in increasing order of precedence.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the resolved configuration as YAML",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		if sources, _ := cmd.Flags().GetBool("sources"); sources {
			GetConfigLoader().PrintConfigInfo(cmd.ErrOrStderr())
		}
		return config.WriteYAML(cmd.OutOrStdout(), cfg)
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init [file]",
	Short: "Write a default configuration file",
	Long: `Write the default configuration as YAML. The file defaults to formocr.yaml
in the current directory; an existing file is never overwritten.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		filename := config.ConfigFileName + ".yaml"
		if len(args) == 1 {
			filename = args[0]
		}
		if err := config.GenerateDefaultConfigFile(filename); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Wrote default configuration to %s\n", filename)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd, configInitCmd)
	configShowCmd.Flags().Bool("sources", false, "also print the config file and search paths")
}
