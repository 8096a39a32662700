package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/gotrs-io/blinkcheck/internal/blink"
	"github.com/gotrs-io/blinkcheck/internal/browser"
	"github.com/gotrs-io/blinkcheck/internal/config"
	"github.com/gotrs-io/blinkcheck/internal/fixture"
	"github.com/gotrs-io/blinkcheck/internal/version"
	"github.com/spf13/cobra"
)

var v = config.New()

var rootCmd = &cobra.Command{
	Use:   "blinkcheck",
	Short: "Verify a clock widget's blinking colons in a real browser",
	Long: `blinkcheck opens the clock page in headless Chromium and checks that
the two colon markers exist, use CSS visibility, blink once per second and
agree with the seconds shown on the clock.`,
	Version:      version.String(),
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the blinking colon checks against the clock page",
	Long: `Run loads the configured page, waits for network idle and runs every
check in order. The first failing check stops the run with a non-zero exit
status. Settings come from flags, BLINKCHECK_* environment variables and an
optional blinkcheck.yaml.`,
	Args: cobra.NoArgs,
	RunE: runChecks,
}

var serveFixtureCmd = &cobra.Command{
	Use:   "serve-fixture",
	Short: "Serve a reference clock page for local runs",
	Args:  cobra.NoArgs,
	RunE:  runServeFixture,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "blinkcheck %s\n", rootCmd.Version)
	},
}

var (
	configFileFlag string
	fixtureAddr    string
	fixtureFrozen  bool
)

func init() {
	flags := runCmd.Flags()
	flags.StringVar(&configFileFlag, "config", "", "Path to a YAML config file (default: ./blinkcheck.yaml if present)")
	flags.String("base-url", "", "URL of the page containing the clock")
	flags.String("marker-selector", "", "Selector matching the colon markers")
	flags.String("clock-selector", "", "Selector matching the clock display")
	flags.Bool("headless", true, "Run Chromium without a window")
	flags.Duration("timeout", 0, "Default wait timeout for navigation and reads")
	flags.String("screenshot-dir", "", "Directory for a screenshot taken when a check fails")
	flags.Int("samples", 0, "Number of visibility samples taken while watching the blink")
	flags.Duration("interval", 0, "Pause between visibility samples")
	flags.Bool("strict-parity", false, "Fail instead of skipping when the clock seconds cannot be parsed")

	bindings := map[string]string{
		"target.base_url":        "base-url",
		"target.marker_selector": "marker-selector",
		"target.clock_selector":  "clock-selector",
		"browser.headless":       "headless",
		"browser.timeout":        "timeout",
		"browser.screenshot_dir": "screenshot-dir",
		"checks.samples":         "samples",
		"checks.sample_interval": "interval",
		"checks.strict_parity":   "strict-parity",
	}
	for key, name := range bindings {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", name, err))
		}
	}

	serveFixtureCmd.Flags().StringVar(&fixtureAddr, "addr", ":3000", "Listen address")
	serveFixtureCmd.Flags().BoolVar(&fixtureFrozen, "frozen", false, "Serve a clock whose colons never blink")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveFixtureCmd)
	rootCmd.AddCommand(versionCmd)
}

func runChecks(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(v, configFileFlag)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !config.Reachable(cfg.Target.BaseURL) {
		log.Printf("[blinkcheck] %s did not answer a pre-flight probe; the load check will wait up to %s", cfg.Target.BaseURL, cfg.Browser.Timeout)
	}

	if _, err := blink.Run(ctx, cfg, launchBrowser, cmd.OutOrStdout()); err != nil {
		if browser.IsTimeout(err) {
			return fmt.Errorf("%s check timed out: %w", blink.Kind(err), err)
		}
		return fmt.Errorf("%s check failed: %w", blink.Kind(err), err)
	}
	return nil
}

func launchBrowser(cfg config.BrowserConfig) (blink.Session, error) {
	s, err := browser.Launch(cfg)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func runServeFixture(cmd *cobra.Command, args []string) error {
	gin.SetMode(gin.ReleaseMode)
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return fixture.Serve(ctx, fixtureAddr, fixture.Options{Frozen: fixtureFrozen})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
