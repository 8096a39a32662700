package blink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/gotrs-io/blinkcheck/internal/config"
)

// Session is a Page that owns browser resources.
type Session interface {
	Page
	Screenshot(name string) (string, error)
	Close() error
}

// Launcher opens a browser session.
type Launcher func(cfg config.BrowserConfig) (Session, error)

// Run launches a session, verifies the target and always closes the session.
// A failing run captures a screenshot when the launcher's session supports it.
// The returned report is never nil.
func Run(ctx context.Context, cfg *config.Config, launch Launcher, out io.Writer) (report *Report, err error) {
	runID := uuid.New().String()
	start := time.Now()
	log.Printf("[blinkcheck] run %s starting against %s", runID, cfg.Target.BaseURL)

	session, err := launch(cfg.Browser)
	if err != nil {
		return &Report{RunID: runID, URL: cfg.Target.BaseURL, Started: start, Finished: time.Now()},
			fmt.Errorf("launch browser: %w", err)
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			log.Printf("[blinkcheck] run %s: %v", runID, cerr)
			if err == nil {
				err = fmt.Errorf("close browser: %w", cerr)
			}
		}
	}()

	v := NewVerifier(session, cfg, out)
	v.report.RunID = runID
	report = v.report

	if err = v.Run(ctx); err != nil {
		if path, serr := session.Screenshot("blinkcheck_" + runID); serr != nil {
			log.Printf("[blinkcheck] run %s: %v", runID, serr)
		} else if path != "" {
			log.Printf("[blinkcheck] run %s: failure screenshot saved to %s", runID, path)
		}
		log.Printf("[blinkcheck] run %s failed after %s: %v", runID, time.Since(start).Round(time.Millisecond), err)
		return report, err
	}

	log.Printf("[blinkcheck] run %s passed in %s", runID, time.Since(start).Round(time.Millisecond))
	return report, nil
}

// Kind returns a short label for the failure class of err, or "error" for
// errors that did not come from a check.
func Kind(err error) string {
	kinds := []struct {
		target error
		label  string
	}{
		{ErrLoad, "load"},
		{ErrMarkerCount, "markers"},
		{ErrInvalidVisibility, "visibility"},
		{ErrOutOfSync, "sync"},
		{ErrLayout, "fixed-width"},
		{ErrNoBlink, "blink"},
		{ErrPhaseMismatch, "parity"},
		{ErrUnparseableClock, "parity"},
		{ErrLayoutShift, "layout-shift"},
	}
	for _, k := range kinds {
		if errors.Is(err, k.target) {
			return k.label
		}
	}
	return "error"
}
