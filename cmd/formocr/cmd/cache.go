package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the extraction result cache",
}

var cachePurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Drop every cached extraction result",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		if !cfg.Cache.Enabled {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "Result cache is disabled")
			return err
		}

		p, err := newPipeline(cfg)
		if err != nil {
			return err
		}
		defer closePipeline(p)

		if err := p.PurgeCache(cmd.Context()); err != nil {
			return fmt.Errorf("failed to purge cache: %w", err)
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "Purged cached extractions (%s backend)\n", cfg.Cache.Backend)
		return err
	},
}

func init() {
	cacheCmd.AddCommand(cachePurgeCmd)
	rootCmd.AddCommand(cacheCmd)
}
