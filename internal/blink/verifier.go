// Package blink verifies a clock widget's blinking colons by sampling the
// rendered page: marker count, CSS visibility technique, toggling over time
// and agreement between visibility and the displayed seconds.
package blink

import (
	"context"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/gotrs-io/blinkcheck/internal/config"
)

// Page is the slice of browser automation the verifier depends on.
type Page interface {
	Navigate(ctx context.Context, url string) error
	Count(selector string) (int, error)
	ComputedStyle(selector string, index int, property string) (string, error)
	InnerText(selector string) (string, error)
	BoundingWidth(selector string, index int) (float64, error)
	// Visibilities reads the computed visibility of every match of selector
	// in a single page-side evaluation.
	Visibilities(selector string) ([]string, error)
	// Pause blocks for d, returning ctx.Err() early if ctx is done.
	Pause(ctx context.Context, d time.Duration) error
}

type Status string

const (
	StatusPass Status = "PASS"
	StatusSkip Status = "SKIP"
)

// Result is the outcome of one check that did not fail.
type Result struct {
	Check  string
	Status Status
	Detail string
}

// Report collects what a run observed. On failure it holds everything up to
// the failing check.
type Report struct {
	RunID    string
	URL      string
	Results  []Result
	Samples  []string
	Started  time.Time
	Finished time.Time
}

// Passed returns the number of checks that passed.
func (r *Report) Passed() int {
	n := 0
	for _, res := range r.Results {
		if res.Status == StatusPass {
			n++
		}
	}
	return n
}

// Verifier runs the colon checks against a single page.
type Verifier struct {
	page   Page
	target config.TargetConfig
	checks config.ChecksConfig
	out    io.Writer
	report *Report

	// markers is the count observed by LocateMarkers.
	markers int
}

// NewVerifier returns a verifier that prints progress lines to out.
func NewVerifier(page Page, cfg *config.Config, out io.Writer) *Verifier {
	if out == nil {
		out = io.Discard
	}
	return &Verifier{
		page:   page,
		target: cfg.Target,
		checks: cfg.Checks,
		out:    out,
		report: &Report{URL: cfg.Target.BaseURL},
	}
}

// Report returns the results gathered so far.
func (v *Verifier) Report() *Report {
	return v.report
}

// Run executes every check in order and stops at the first failure.
func (v *Verifier) Run(ctx context.Context) error {
	v.report.Started = time.Now()
	defer func() { v.report.Finished = time.Now() }()

	steps := []func(context.Context) error{
		v.Load,
		v.LocateMarkers,
		v.CheckRenderingTechnique,
	}
	if v.checks.Sync {
		steps = append(steps, v.CheckSync)
	}
	if v.checks.FixedWidth {
		steps = append(steps, v.CheckFixedWidth)
	}
	steps = append(steps, v.SampleBlink, v.CheckPhaseParity)
	if v.checks.LayoutShift {
		steps = append(steps, v.CheckLayoutShift)
	}

	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := step(ctx); err != nil {
			return err
		}
	}

	fmt.Fprintf(v.out, "\nAll %d checks passed for %s\n", v.report.Passed(), v.target.BaseURL)
	return nil
}

// Load navigates to the target and waits for network idle.
func (v *Verifier) Load(ctx context.Context) error {
	if err := v.page.Navigate(ctx, v.target.BaseURL); err != nil {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		return fmt.Errorf("%w: %s: %w", ErrLoad, v.target.BaseURL, err)
	}
	v.pass("load", fmt.Sprintf("Loaded %s (network idle)", v.target.BaseURL))
	return nil
}

// LocateMarkers requires exactly the configured number of colon markers.
func (v *Verifier) LocateMarkers(ctx context.Context) error {
	n, err := v.page.Count(v.target.MarkerSelector)
	if err != nil {
		return err
	}
	if n != v.target.ExpectedMarkers {
		return fmt.Errorf("%w: expected %d colon spans, got %d", ErrMarkerCount, v.target.ExpectedMarkers, n)
	}
	v.markers = n
	v.pass("markers", fmt.Sprintf("Found %d colon spans with %s", n, v.target.MarkerSelector))
	return nil
}

// CheckRenderingTechnique requires each marker's computed visibility to be
// visible or hidden. It does not on its own rule out display toggling.
func (v *Verifier) CheckRenderingTechnique(ctx context.Context) error {
	for i := 0; i < v.markerCount(); i++ {
		vis, err := v.visibility(i)
		if err != nil {
			return err
		}
		v.pass("visibility", fmt.Sprintf("Colon %d uses CSS visibility ('%s'), not display:none", i, vis))
	}
	return nil
}

// CheckSync requires every marker to report the same visibility. All states
// come from one page-side read so a timer tick cannot split them.
func (v *Verifier) CheckSync(ctx context.Context) error {
	states, err := v.page.Visibilities(v.target.MarkerSelector)
	if err != nil {
		return err
	}
	if len(states) == 0 {
		return fmt.Errorf("%w: expected %d colon spans, got 0", ErrMarkerCount, v.markerCount())
	}
	for i, vis := range states {
		if !ValidVisibility(vis) {
			return fmt.Errorf("%w: colon %d has unexpected visibility '%s'", ErrInvalidVisibility, i, vis)
		}
		if vis != states[0] {
			return fmt.Errorf("%w: colon 0 is '%s' but colon %d is '%s'", ErrOutOfSync, states[0], i, vis)
		}
	}
	v.pass("sync", fmt.Sprintf("All %d colons share visibility '%s'", len(states), states[0]))
	return nil
}

// CheckFixedWidth requires markers to be boxes with a resolved, non-zero
// width so hiding them cannot collapse the clock.
func (v *Verifier) CheckFixedWidth(ctx context.Context) error {
	for i := 0; i < v.markerCount(); i++ {
		display, err := v.page.ComputedStyle(v.target.MarkerSelector, i, "display")
		if err != nil {
			return err
		}
		if display != "inline-block" && display != "block" {
			return fmt.Errorf("%w: colon %d has display '%s', want inline-block or block", ErrLayout, i, display)
		}
		raw, err := v.page.ComputedStyle(v.target.MarkerSelector, i, "width")
		if err != nil {
			return err
		}
		width, ok := parsePixels(raw)
		if !ok || width <= 0 {
			return fmt.Errorf("%w: colon %d has width '%s', want a positive pixel value", ErrLayout, i, raw)
		}
		v.pass("fixed-width", fmt.Sprintf("Colon %d is %s with width %s", i, display, raw))
	}
	return nil
}

// SampleBlink reads the first marker's visibility the configured number of
// times, pausing between reads, and requires at least two distinct values.
func (v *Verifier) SampleBlink(ctx context.Context) error {
	states := make([]string, 0, v.checks.Samples)
	for i := 0; i < v.checks.Samples; i++ {
		vis, err := v.visibility(0)
		if err != nil {
			return err
		}
		states = append(states, vis)
		v.report.Samples = append(v.report.Samples, vis)
		fmt.Fprintf(v.out, "Check %d: colon visibility = %s\n", i, vis)
		if i < v.checks.Samples-1 {
			if err := v.page.Pause(ctx, v.checks.SampleInterval); err != nil {
				return err
			}
		}
	}

	if countDistinct(states) < 2 {
		return fmt.Errorf("%w: all states were %v", ErrNoBlink, states)
	}
	v.pass("blink", fmt.Sprintf("Colons toggled between states: %v", states))
	return nil
}

// CheckPhaseParity compares one more visibility sample against the seconds
// shown by the clock. Unparseable clock text skips the check unless strict
// parity is configured.
func (v *Verifier) CheckPhaseParity(ctx context.Context) error {
	vis, err := v.visibility(0)
	if err != nil {
		return err
	}
	text, err := v.page.InnerText(v.target.ClockSelector)
	if err != nil {
		return err
	}
	fmt.Fprintf(v.out, "Clock text: '%s'\n", text)

	seconds, ok := ParseSeconds(text)
	if !ok {
		tail := trailing(text, 2)
		if v.checks.StrictParity {
			return fmt.Errorf("%w: trailing characters '%s' of '%s'", ErrUnparseableClock, tail, text)
		}
		v.skip("parity", fmt.Sprintf("Could not parse seconds from '%s', skipping parity check", tail))
		return nil
	}

	want := ExpectedVisibility(seconds)
	if vis != want {
		return fmt.Errorf("%w: at second %d, expected visibility '%s' but got '%s'", ErrPhaseMismatch, seconds, want, vis)
	}
	v.pass("parity", fmt.Sprintf("At second %d (even=%t), colon visibility is '%s'", seconds, seconds%2 == 0, vis))
	return nil
}

// CheckLayoutShift measures the clock and first marker, waits one sample
// interval, and requires both widths to stay within the configured drift.
func (v *Verifier) CheckLayoutShift(ctx context.Context) error {
	clockBefore, err := v.page.BoundingWidth(v.target.ClockSelector, 0)
	if err != nil {
		return err
	}
	colonBefore, err := v.page.BoundingWidth(v.target.MarkerSelector, 0)
	if err != nil {
		return err
	}
	if err := v.page.Pause(ctx, v.checks.SampleInterval); err != nil {
		return err
	}
	clockAfter, err := v.page.BoundingWidth(v.target.ClockSelector, 0)
	if err != nil {
		return err
	}
	colonAfter, err := v.page.BoundingWidth(v.target.MarkerSelector, 0)
	if err != nil {
		return err
	}

	if d := math.Abs(clockAfter - clockBefore); d >= v.checks.MaxShiftPx {
		return fmt.Errorf("%w: clock width changed %.2fpx -> %.2fpx", ErrLayoutShift, clockBefore, clockAfter)
	}
	if d := math.Abs(colonAfter - colonBefore); d >= v.checks.MaxShiftPx {
		return fmt.Errorf("%w: colon width changed %.2fpx -> %.2fpx", ErrLayoutShift, colonBefore, colonAfter)
	}
	v.pass("layout-shift", fmt.Sprintf("Clock width stable at %.2fpx across a tick", clockAfter))
	return nil
}

// markerCount is the number of markers LocateMarkers found, or the expected
// count when a check is called on its own.
func (v *Verifier) markerCount() int {
	if v.markers > 0 {
		return v.markers
	}
	return v.target.ExpectedMarkers
}

func (v *Verifier) visibility(index int) (string, error) {
	vis, err := v.page.ComputedStyle(v.target.MarkerSelector, index, "visibility")
	if err != nil {
		return "", err
	}
	if !ValidVisibility(vis) {
		return "", fmt.Errorf("%w: colon %d has unexpected visibility '%s'", ErrInvalidVisibility, index, vis)
	}
	return vis, nil
}

func (v *Verifier) pass(check, detail string) {
	v.report.Results = append(v.report.Results, Result{Check: check, Status: StatusPass, Detail: detail})
	fmt.Fprintf(v.out, "PASS: %s\n", detail)
}

func (v *Verifier) skip(check, detail string) {
	v.report.Results = append(v.report.Results, Result{Check: check, Status: StatusSkip, Detail: detail})
	fmt.Fprintf(v.out, "SKIP: %s\n", detail)
}

func countDistinct(states []string) int {
	seen := make(map[string]struct{}, len(states))
	for _, s := range states {
		seen[s] = struct{}{}
	}
	return len(seen)
}

func parsePixels(raw string) (float64, bool) {
	s := strings.TrimSpace(raw)
	if !strings.HasSuffix(s, "px") {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSuffix(s, "px"), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func trailing(text string, n int) string {
	r := []rune(strings.TrimSpace(text))
	if len(r) <= n {
		return string(r)
	}
	return string(r[len(r)-n:])
}
