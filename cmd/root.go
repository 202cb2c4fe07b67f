package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/trailmix-app/trailgeo/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "trailgeo",
	Short: "Location autocomplete and trail map backend",
	Long:  "Resolves free-text location queries through a chain of geocoding providers with caching and ranking, fetches place details, and assembles hiking trail map data.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
