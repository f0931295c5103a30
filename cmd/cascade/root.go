package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/aretw0/cascade"
	"github.com/aretw0/cascade/internal/config"
	"github.com/aretw0/cascade/internal/logging"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "cascade",
	Short: "Cascade executes trees of prompts against a language model",
	Long: `Cascade runs prompt trees depth-first. Each node's response feeds later
prompts, question nodes can ask you for input, and action nodes grow the tree
from structured model output.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to the config file (default ./"+config.DefaultFile+")")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn or error")
	rootCmd.PersistentFlags().String("log-format", "", "Log format: text or json")
	rootCmd.PersistentFlags().String("store", "", "Override the store kind: memory, loam or redis")
	rootCmd.PersistentFlags().String("dir", "", "Directory of the loam store")
}

// loadConfig merges the config file, the environment and the global flags.
func loadConfig(cmd *cobra.Command) (config.Config, *slog.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, nil, err
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.Log.Level = v
	}
	if v, _ := cmd.Flags().GetString("log-format"); v != "" {
		cfg.Log.Format = v
	}
	if v, _ := cmd.Flags().GetString("dir"); v != "" {
		cfg.Store.Dir = v
		if !cmd.Flags().Changed("store") {
			cfg.Store.Kind = config.StoreLoam
		}
	}
	if v, _ := cmd.Flags().GetString("store"); v != "" {
		cfg.Store.Kind = v
	}
	if err := cfg.Validate(); err != nil {
		return cfg, nil, err
	}
	logger := logging.NewWithFormat(os.Stderr, logging.ParseLevel(cfg.Log.Level), cfg.Log.Format)
	return cfg, logger, nil
}

// openSystem loads the configuration and opens the configured adapters.
func openSystem(cmd *cobra.Command, opts ...cascade.Option) (*cascade.System, config.Config, *slog.Logger, error) {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return nil, cfg, nil, err
	}
	sys, err := cascade.Open(cfg, append([]cascade.Option{cascade.WithLogger(logger)}, opts...)...)
	if err != nil {
		return nil, cfg, nil, fmt.Errorf("failed to open store: %w", err)
	}
	return sys, cfg, logger, nil
}
