package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. BLINKCHECK_TARGET_BASE_URL.
const EnvPrefix = "BLINKCHECK"

// Config represents the verifier configuration
type Config struct {
	Target  TargetConfig  `mapstructure:"target"`
	Browser BrowserConfig `mapstructure:"browser"`
	Checks  ChecksConfig  `mapstructure:"checks"`
}

// TargetConfig describes the page under test and how its widgets are found.
type TargetConfig struct {
	BaseURL         string `mapstructure:"base_url"`
	MarkerSelector  string `mapstructure:"marker_selector"`
	ClockSelector   string `mapstructure:"clock_selector"`
	ExpectedMarkers int    `mapstructure:"expected_markers"`
}

type BrowserConfig struct {
	Headless       bool          `mapstructure:"headless"`
	SlowMo         int           `mapstructure:"slow_mo"`
	Timeout        time.Duration `mapstructure:"timeout"`
	Preinstalled   bool          `mapstructure:"preinstalled"`
	ScreenshotDir  string        `mapstructure:"screenshot_dir"`
	ViewportWidth  int           `mapstructure:"viewport_width"`
	ViewportHeight int           `mapstructure:"viewport_height"`
}

type ChecksConfig struct {
	Samples        int           `mapstructure:"samples"`
	SampleInterval time.Duration `mapstructure:"sample_interval"`
	StrictParity   bool          `mapstructure:"strict_parity"`
	Sync           bool          `mapstructure:"sync"`
	FixedWidth     bool          `mapstructure:"fixed_width"`
	LayoutShift    bool          `mapstructure:"layout_shift"`
	MaxShiftPx     float64       `mapstructure:"max_shift_px"`
}

// New returns a viper instance with defaults and environment overrides applied.
// Callers may bind flags to it before calling Load.
func New() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("target.base_url", "http://localhost:3000")
	v.SetDefault("target.marker_selector", `[data-testid="clock-colon"]`)
	v.SetDefault("target.clock_selector", `a[aria-label="Visit NBA.com"]`)
	v.SetDefault("target.expected_markers", 2)

	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.slow_mo", 0)
	v.SetDefault("browser.timeout", 30*time.Second)
	v.SetDefault("browser.preinstalled", false)
	v.SetDefault("browser.screenshot_dir", "")
	v.SetDefault("browser.viewport_width", 1280)
	v.SetDefault("browser.viewport_height", 720)

	v.SetDefault("checks.samples", 4)
	v.SetDefault("checks.sample_interval", 1100*time.Millisecond)
	v.SetDefault("checks.strict_parity", false)
	v.SetDefault("checks.sync", true)
	v.SetDefault("checks.fixed_width", true)
	v.SetDefault("checks.layout_shift", true)
	v.SetDefault("checks.max_shift_px", 2.0)
}

// Load reads an optional YAML file into v and unmarshals the result.
// With an empty configFile, blinkcheck.yaml in the working directory is
// merged when present.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		v.SetConfigName("blinkcheck")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in configuration without consulting files or the environment.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg := &Config{}
	_ = v.Unmarshal(cfg)
	return cfg
}

// Validate rejects settings the verifier cannot run with.
func (c *Config) Validate() error {
	var errs []error

	u, err := url.Parse(c.Target.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("target.base_url must be an absolute http(s) URL, got %q", c.Target.BaseURL))
	}
	if strings.TrimSpace(c.Target.MarkerSelector) == "" {
		errs = append(errs, errors.New("target.marker_selector must not be empty"))
	}
	if strings.TrimSpace(c.Target.ClockSelector) == "" {
		errs = append(errs, errors.New("target.clock_selector must not be empty"))
	}
	if c.Target.ExpectedMarkers < 1 {
		errs = append(errs, fmt.Errorf("target.expected_markers must be at least 1, got %d", c.Target.ExpectedMarkers))
	}
	if c.Browser.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("browser.timeout must be positive, got %s", c.Browser.Timeout))
	}
	if c.Browser.SlowMo < 0 {
		errs = append(errs, fmt.Errorf("browser.slow_mo must not be negative, got %d", c.Browser.SlowMo))
	}
	if c.Browser.ViewportWidth <= 0 || c.Browser.ViewportHeight <= 0 {
		errs = append(errs, fmt.Errorf("browser viewport must be positive, got %dx%d", c.Browser.ViewportWidth, c.Browser.ViewportHeight))
	}
	if c.Checks.Samples < 2 {
		errs = append(errs, fmt.Errorf("checks.samples must be at least 2, got %d", c.Checks.Samples))
	}
	if c.Checks.SampleInterval <= 0 {
		errs = append(errs, fmt.Errorf("checks.sample_interval must be positive, got %s", c.Checks.SampleInterval))
	}
	if c.Checks.MaxShiftPx <= 0 {
		errs = append(errs, fmt.Errorf("checks.max_shift_px must be positive, got %v", c.Checks.MaxShiftPx))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}
