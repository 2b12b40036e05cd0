// Package config loads tubeforge's run configuration from a YAML file with
// TUBEFORGE_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config is the full run configuration.
type Config struct {
	// StartURL is opened when the browser starts
	StartURL string `yaml:"start_url" env:"TUBEFORGE_START_URL"`

	// PreferencesPath is the feature flag file (default ~/.tubeforge/preferences.json)
	PreferencesPath string `yaml:"preferences_path" env:"TUBEFORGE_PREFERENCES"`

	Browser  BrowserConfig  `yaml:"browser" envPrefix:"TUBEFORGE_BROWSER_"`
	Segments SegmentsConfig `yaml:"segments" envPrefix:"TUBEFORGE_SEGMENTS_"`
	Features FeaturesConfig `yaml:"features" envPrefix:"TUBEFORGE_FEATURES_"`
	Logging  LoggingConfig  `yaml:"logging" envPrefix:"TUBEFORGE_LOG_"`
}

// BrowserConfig controls the Playwright session.
type BrowserConfig struct {
	Headless    bool          `yaml:"headless" env:"HEADLESS"`
	UserDataDir string        `yaml:"user_data_dir" env:"USER_DATA_DIR"`
	Width       int           `yaml:"width" env:"WIDTH"`
	Height      int           `yaml:"height" env:"HEIGHT"`
	Timeout     time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// SegmentsConfig points the segment skipper at a segment database.
type SegmentsConfig struct {
	BaseURL    string        `yaml:"base_url" env:"BASE_URL"`
	Categories []string      `yaml:"categories" env:"CATEGORIES" envSeparator:","`
	CacheTTL   time.Duration `yaml:"cache_ttl" env:"CACHE_TTL"`
}

// FeaturesConfig tunes individual features.
type FeaturesConfig struct {
	RelinkPatterns []string      `yaml:"relink_patterns" env:"RELINK_PATTERNS" envSeparator:","`
	WatchPattern   string        `yaml:"watch_pattern" env:"WATCH_PATTERN"`
	VideoSelector  string        `yaml:"video_selector" env:"VIDEO_SELECTOR"`
	ScreenshotDir  string        `yaml:"screenshot_dir" env:"SCREENSHOT_DIR"`
	HotkeyKey      string        `yaml:"hotkey_key" env:"HOTKEY_KEY"`
	SkipInterval   time.Duration `yaml:"skip_interval" env:"SKIP_INTERVAL"`
	DefaultSpeed   string        `yaml:"default_speed" env:"DEFAULT_SPEED"`
}

// LoggingConfig defines where logs go.
type LoggingConfig struct {
	// Directory overrides ~/.tubeforge/logs
	Directory string `yaml:"directory" env:"DIR"`
}

// Default returns the stock configuration.
func Default() *Config {
	return &Config{
		StartURL: "https://www.youtube.com/",
		Browser: BrowserConfig{
			Width:   1280,
			Height:  720,
			Timeout: 30 * time.Second,
		},
		Segments: SegmentsConfig{
			BaseURL:  "https://sponsor.ajay.app",
			CacheTTL: 30 * time.Minute,
		},
		Features: FeaturesConfig{
			RelinkPatterns: []string{"/shorts/*"},
			WatchPattern:   "/watch",
			VideoSelector:  "video.html5-main-video, #movie_player video",
			HotkeyKey:      "s",
			SkipInterval:   200 * time.Millisecond,
			DefaultSpeed:   "1.5",
		},
	}
}

// Dir returns ~/.tubeforge.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".tubeforge"), nil
}

// DefaultPath returns ~/.tubeforge/config.yaml.
func DefaultPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load reads path over Default, applies environment overrides and validates.
// A missing file is not an error when optional is true.
func Load(path string, optional bool) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		case errors.Is(err, os.ErrNotExist) && optional:
		default:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration and fills derived defaults.
func (c *Config) Validate() error {
	if err := checkURL("start_url", c.StartURL); err != nil {
		return err
	}
	if err := checkURL("segments.base_url", c.Segments.BaseURL); err != nil {
		return err
	}

	if c.Browser.Width <= 0 || c.Browser.Height <= 0 {
		return fmt.Errorf("browser viewport must be positive, got %dx%d", c.Browser.Width, c.Browser.Height)
	}
	if c.Browser.Timeout < 0 {
		return fmt.Errorf("browser timeout cannot be negative")
	}
	if c.Segments.CacheTTL < 0 {
		return fmt.Errorf("segments cache_ttl cannot be negative")
	}
	if c.Features.SkipInterval < 50*time.Millisecond {
		return fmt.Errorf("features skip_interval must be at least 50ms, got %s", c.Features.SkipInterval)
	}
	if len(c.Features.HotkeyKey) != 1 {
		return fmt.Errorf("features hotkey_key must be a single character, got %q", c.Features.HotkeyKey)
	}

	if c.Features.ScreenshotDir == "" || c.PreferencesPath == "" || c.Logging.Directory == "" {
		dir, err := Dir()
		if err != nil {
			return err
		}
		if c.Features.ScreenshotDir == "" {
			c.Features.ScreenshotDir = filepath.Join(dir, "screenshots")
		}
		if c.PreferencesPath == "" {
			c.PreferencesPath = filepath.Join(dir, "preferences.json")
		}
		if c.Logging.Directory == "" {
			c.Logging.Directory = filepath.Join(dir, "logs")
		}
	}
	return nil
}

func checkURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", field, raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return fmt.Errorf("invalid %s %q: must be an absolute http(s) URL", field, raw)
	}
	return nil
}
