// Package browser drives a headless Chromium through playwright-go and
// exposes the handful of page reads the clock verifier needs.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gotrs-io/blinkcheck/internal/config"
	"github.com/playwright-community/playwright-go"
)

const (
	styleScript = `(el, prop) => window.getComputedStyle(el).getPropertyValue(prop)`
	widthScript = `el => el.getBoundingClientRect().width`
	visScript   = `els => els.map(el => window.getComputedStyle(el).visibility)`

	// pauseSlice bounds how long a Pause can overrun a cancelled context.
	pauseSlice = 100 * time.Millisecond
)

// Session owns one playwright driver, browser, context and page.
type Session struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	page    playwright.Page
	cfg     config.BrowserConfig

	// pageClosed is set once a cancelled navigation has closed the page.
	pageClosed bool
}

// Launch starts playwright, opens Chromium and creates a fresh page.
// Anything opened before a failing step is released before returning.
func Launch(cfg config.BrowserConfig) (*Session, error) {
	s := &Session{cfg: cfg}

	if !cfg.Preinstalled && os.Getenv("PLAYWRIGHT_PREINSTALLED") != "1" {
		if err := playwright.Install(&playwright.RunOptions{Browsers: []string{"chromium"}}); err != nil {
			return nil, fmt.Errorf("could not install playwright browsers: %w", err)
		}
	}
	pw, err := playwright.Run()
	if err != nil {
		// Fallback: install the driver explicitly then retry once
		_ = playwright.Install(&playwright.RunOptions{Browsers: []string{"chromium"}})
		pw, err = playwright.Run()
		if err != nil {
			return nil, fmt.Errorf("could not start playwright after retry: %w", err)
		}
	}
	s.pw = pw

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(cfg.Headless),
		SlowMo:   playwright.Float(float64(cfg.SlowMo)),
	})
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("could not launch browser: %w", err)
	}
	s.browser = browser

	bctx, err := browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  cfg.ViewportWidth,
			Height: cfg.ViewportHeight,
		},
	})
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("could not create context: %w", err)
	}
	s.context = bctx

	page, err := bctx.NewPage()
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("could not create page: %w", err)
	}
	s.page = page

	timeout := float64(cfg.Timeout.Milliseconds())
	page.SetDefaultTimeout(timeout)
	page.SetDefaultNavigationTimeout(timeout)

	return s, nil
}

// Navigate loads url and blocks until the page reports network idle.
// Cancelling ctx closes the page, which aborts a pending navigation or
// network-idle wait; ctx.Err() is returned in that case.
func (s *Session) Navigate(ctx context.Context, url string) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	done := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		defer close(done)
		_ = s.page.Close()
	})
	defer func() {
		if !stop() {
			<-done
			s.pageClosed = true
			err = ctx.Err()
		}
	}()

	if _, err := s.page.Goto(url); err != nil {
		if strings.Contains(err.Error(), "ERR_CONNECTION_REFUSED") {
			return fmt.Errorf("connection refused navigating to %s (is the clock server running?): %w", url, err)
		}
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	if err := s.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State: playwright.LoadStateNetworkidle,
	}); err != nil {
		return fmt.Errorf("wait for network idle on %s: %w", url, err)
	}
	return nil
}

// Count returns the number of elements matching selector.
func (s *Session) Count(selector string) (int, error) {
	n, err := s.page.Locator(selector).Count()
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", selector, err)
	}
	return n, nil
}

// ComputedStyle reads a resolved CSS property of the index-th match of selector.
func (s *Session) ComputedStyle(selector string, index int, property string) (string, error) {
	raw, err := s.page.Locator(selector).Nth(index).Evaluate(styleScript, property)
	if err != nil {
		return "", fmt.Errorf("computed %s of %s[%d]: %w", property, selector, index, err)
	}
	value, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("computed %s of %s[%d]: unexpected result type %T", property, selector, index, raw)
	}
	return value, nil
}

// InnerText returns the rendered text of the first match of selector.
func (s *Session) InnerText(selector string) (string, error) {
	text, err := s.page.Locator(selector).First().InnerText()
	if err != nil {
		return "", fmt.Errorf("inner text of %s: %w", selector, err)
	}
	return text, nil
}

// BoundingWidth returns the layout width in CSS pixels of the index-th match of selector.
func (s *Session) BoundingWidth(selector string, index int) (float64, error) {
	raw, err := s.page.Locator(selector).Nth(index).Evaluate(widthScript, nil)
	if err != nil {
		return 0, fmt.Errorf("bounding width of %s[%d]: %w", selector, index, err)
	}
	width, err := toFloat(raw)
	if err != nil {
		return 0, fmt.Errorf("bounding width of %s[%d]: %w", selector, index, err)
	}
	return width, nil
}

// Visibilities returns the computed visibility of every match of selector,
// all read in the same page-side evaluation.
func (s *Session) Visibilities(selector string) ([]string, error) {
	raw, err := s.page.Locator(selector).EvaluateAll(visScript)
	if err != nil {
		return nil, fmt.Errorf("visibilities of %s: %w", selector, err)
	}
	states, err := toStrings(raw)
	if err != nil {
		return nil, fmt.Errorf("visibilities of %s: %w", selector, err)
	}
	return states, nil
}

// Pause blocks for d using the page clock, in slices so that a cancelled
// ctx ends the wait early with ctx.Err().
func (s *Session) Pause(ctx context.Context, d time.Duration) error {
	deadline := time.Now().Add(d)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		left := time.Until(deadline)
		if left <= 0 {
			return nil
		}
		s.page.WaitForTimeout(float64(min(left, pauseSlice).Milliseconds()))
	}
}

// Screenshot writes a full-page PNG named after name into the configured
// screenshot directory and returns its path. It is a no-op without a directory.
func (s *Session) Screenshot(name string) (string, error) {
	if s.cfg.ScreenshotDir == "" || s.page == nil || s.pageClosed {
		return "", nil
	}
	if err := os.MkdirAll(s.cfg.ScreenshotDir, 0o755); err != nil {
		return "", fmt.Errorf("create screenshot dir: %w", err)
	}
	path := filepath.Join(s.cfg.ScreenshotDir, fmt.Sprintf("%s_%d.png", name, time.Now().Unix()))
	if _, err := s.page.Screenshot(playwright.PageScreenshotOptions{
		Path:     playwright.String(path),
		FullPage: playwright.Bool(true),
	}); err != nil {
		return "", fmt.Errorf("screenshot: %w", err)
	}
	return path, nil
}

// Close releases the page, context, browser and driver in that order.
// It is safe to call on a partially launched session.
func (s *Session) Close() error {
	var errs []error
	if s.page != nil && !s.pageClosed {
		if err := s.page.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close page: %w", err))
		}
		s.page = nil
	}
	if s.context != nil {
		if err := s.context.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close context: %w", err))
		}
		s.context = nil
	}
	if s.browser != nil {
		if err := s.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close browser: %w", err))
		}
		s.browser = nil
	}
	if s.pw != nil {
		if err := s.pw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop playwright: %w", err))
		}
		s.pw = nil
	}
	if len(errs) > 0 {
		log.Printf("[browser] teardown finished with %d error(s)", len(errs))
	}
	return errors.Join(errs...)
}

// IsTimeout reports whether err came from a playwright wait running out of time.
func IsTimeout(err error) bool {
	return errors.Is(err, playwright.ErrTimeout)
}

func toStrings(v interface{}) ([]string, error) {
	items, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected result type %T", v)
	}
	out := make([]string, 0, len(items))
	for i, item := range items {
		str, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("item %d has unexpected type %T", i, item)
		}
		out = append(out, str)
	}
	return out, nil
}

func toFloat(v interface{}) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("unexpected numeric type %T", v)
	}
}
