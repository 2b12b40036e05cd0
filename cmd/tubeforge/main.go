// Package main provides the tubeforge command: a Playwright-driven browser
// session with YouTube customizations, plus offline feature management.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/entrhq/tubeforge/pkg/config"
	"github.com/entrhq/tubeforge/pkg/features"
)

const version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:           "tubeforge",
	Short:         "Customize YouTube in a browser you control",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadDotEnv()
	},
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "Config file (default ~/.tubeforge/config.yaml)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}
}

// loadDotEnv reads ./.env into the environment when it exists. Variables
// already set win.
func loadDotEnv() error {
	if _, err := os.Stat(".env"); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(); err != nil {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

// loadConfig honours --config; without it the default file is optional.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path != "" {
		return config.Load(path, false)
	}
	def, err := config.DefaultPath()
	if err != nil {
		return nil, err
	}
	return config.Load(def, true)
}

func featureOptions(cfg *config.Config) features.Options {
	f := cfg.Features
	return features.Options{
		RelinkPatterns: f.RelinkPatterns,
		WatchPattern:   f.WatchPattern,
		VideoSelector:  f.VideoSelector,
		ScreenshotDir:  f.ScreenshotDir,
		HotkeyKey:      f.HotkeyKey,
		SkipInterval:   f.SkipInterval,
		DefaultSpeed:   f.DefaultSpeed,
	}
}
