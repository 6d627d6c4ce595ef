package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/sheriff-sales/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "sheriff-sales",
	Short: "Sheriff-sale listing pipeline",
	Long:  "Downloads the county sheriff-sale bid list and postponement PDFs, parses them into listings, enriches them with valuations, judgments, law firms and coordinates, and renders the auction map.",
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
