package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"feedguard/internal/config"
	"feedguard/pkg/logger"
)

// NewRootCmd creates the feedguard command tree.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feedguard",
		Short: "Hide sponsored and unwanted posts from social feed pages",
		Long: `feedguard classifies the items of a social feed page and hides the ones
matching the enabled rules: sponsored posts, suggestions, reels, GIFs and
blocked keywords.

Settings and engine timings are read from .feedguard.yaml in the working or
home directory unless --config is given.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().StringP("config", "c", "", "Configuration file path")

	cmd.AddCommand(NewScanCmd())
	cmd.AddCommand(NewWatchCmd())
	cmd.AddCommand(NewSuggestCmd())
	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads the configuration and builds the logger. --verbose also
// switches the settings to verbose diagnostics.
func setup(cmd *cobra.Command, stderr io.Writer) (*config.Config, *slog.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	found := config.Find(path)
	if path != "" && found == "" {
		return nil, nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, path)
	}
	cfg, err := config.Load(found)
	if err != nil {
		return nil, nil, err
	}
	verbose, _ := cmd.Flags().GetBool("verbose")
	if verbose {
		cfg.Settings.Verbosity = "verbose"
	}
	return cfg, logger.New(stderr, cfg.Settings.Verbose()), nil
}
