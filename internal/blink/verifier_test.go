package blink

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/gotrs-io/blinkcheck/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePage models a clock whose colons follow the current second. Every
// Pause advances the clock by one second, which is what a 1.1s pause
// against a 1s timer amounts to.
type fakePage struct {
	second int

	navigateErr error
	markers     int
	style       func(index int, prop string, second int) string
	text        func(second int) string
	width       func(selector string, second int) float64

	onNavigate func()
	onPause    func(n int)

	navigated    []string
	countCalls   int
	pauses       []time.Duration
	styleIndexes []int
	visCalls     int
}

func newFakePage(start int) *fakePage {
	return &fakePage{second: start, markers: 2}
}

func (f *fakePage) Navigate(ctx context.Context, url string) error {
	f.navigated = append(f.navigated, url)
	if f.onNavigate != nil {
		f.onNavigate()
	}
	return f.navigateErr
}

func (f *fakePage) Count(selector string) (int, error) {
	f.countCalls++
	return f.markers, nil
}

func (f *fakePage) ComputedStyle(selector string, index int, prop string) (string, error) {
	f.styleIndexes = append(f.styleIndexes, index)
	if f.style != nil {
		if v := f.style(index, prop, f.second); v != "" {
			return v, nil
		}
	}
	switch prop {
	case "visibility":
		return ExpectedVisibility(f.second), nil
	case "display":
		return "inline-block", nil
	case "width":
		return "7.2px", nil
	}
	return "", fmt.Errorf("unexpected property %s", prop)
}

func (f *fakePage) InnerText(selector string) (string, error) {
	if f.text != nil {
		return f.text(f.second), nil
	}
	return fmt.Sprintf("12:34:%02d", f.second%60), nil
}

func (f *fakePage) BoundingWidth(selector string, index int) (float64, error) {
	if f.width != nil {
		return f.width(selector, f.second), nil
	}
	return 96, nil
}

func (f *fakePage) Visibilities(selector string) ([]string, error) {
	f.visCalls++
	states := make([]string, 0, f.markers)
	for i := 0; i < f.markers; i++ {
		vis := ExpectedVisibility(f.second)
		if f.style != nil {
			if v := f.style(i, "visibility", f.second); v != "" {
				vis = v
			}
		}
		states = append(states, vis)
	}
	return states, nil
}

func (f *fakePage) Pause(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.pauses = append(f.pauses, d)
	f.second++
	if f.onPause != nil {
		f.onPause(len(f.pauses))
	}
	return nil
}

func runVerifier(t *testing.T, page *fakePage, mutate func(*config.Config)) (*Verifier, string, error) {
	t.Helper()
	cfg := config.Default()
	if mutate != nil {
		mutate(cfg)
	}
	var out bytes.Buffer
	v := NewVerifier(page, cfg, &out)
	err := v.Run(context.Background())
	return v, out.String(), err
}

func TestVerifierPassesOnBlinkingClock(t *testing.T) {
	page := newFakePage(1)
	v, out, err := runVerifier(t, page, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"http://localhost:3000"}, page.navigated)
	// three pauses between four samples, one for the layout shift check
	assert.Equal(t, []time.Duration{1100 * time.Millisecond, 1100 * time.Millisecond, 1100 * time.Millisecond, 1100 * time.Millisecond}, page.pauses)

	report := v.Report()
	assert.Equal(t, []string{"hidden", "visible", "hidden", "visible"}, report.Samples)
	assert.Equal(t, 10, report.Passed())
	assert.False(t, report.Finished.Before(report.Started))

	assert.Contains(t, out, "PASS: Found 2 colon spans")
	assert.Contains(t, out, "PASS: Colon 0 uses CSS visibility ('hidden'), not display:none")
	assert.Contains(t, out, "Check 3: colon visibility = visible")
	assert.Contains(t, out, "PASS: At second 4 (even=true), colon visibility is 'visible'")
	assert.Contains(t, out, "All 10 checks passed")
}

func TestVerifierLoadFailure(t *testing.T) {
	// Scenario A: nothing after the load step runs
	page := newFakePage(0)
	page.navigateErr = errors.New("Timeout 30000ms exceeded")

	_, out, err := runVerifier(t, page, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLoad)
	assert.Contains(t, err.Error(), "Timeout 30000ms exceeded")
	assert.Equal(t, 0, page.countCalls)
	assert.Empty(t, page.pauses)
	assert.NotContains(t, out, "PASS")
}

func TestVerifierMarkerCount(t *testing.T) {
	for _, n := range []int{0, 1, 3} {
		t.Run(fmt.Sprintf("%d markers", n), func(t *testing.T) {
			page := newFakePage(0)
			page.markers = n

			_, _, err := runVerifier(t, page, nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMarkerCount)
			assert.Contains(t, err.Error(), fmt.Sprintf("got %d", n))
		})
	}

	t.Run("configured count", func(t *testing.T) {
		page := newFakePage(1)
		page.markers = 3
		_, _, err := runVerifier(t, page, func(c *config.Config) { c.Target.ExpectedMarkers = 3 })
		require.NoError(t, err)
	})
}

func TestVerifierInvalidVisibility(t *testing.T) {
	for _, value := range []string{"collapse", "inherit"} {
		t.Run(value, func(t *testing.T) {
			page := newFakePage(0)
			page.style = func(index int, prop string, _ int) string {
				if prop == "visibility" && index == 1 {
					return value
				}
				return ""
			}

			_, out, err := runVerifier(t, page, nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidVisibility)
			assert.Contains(t, err.Error(), "colon 1")
			assert.Contains(t, err.Error(), value)
			assert.Contains(t, out, "PASS: Colon 0")
		})
	}
}

func TestVerifierOutOfSync(t *testing.T) {
	page := newFakePage(0)
	page.style = func(index int, prop string, second int) string {
		if prop == "visibility" && index == 1 {
			return ExpectedVisibility(second + 1)
		}
		return ""
	}

	_, _, err := runVerifier(t, page, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOutOfSync)

	t.Run("disabled", func(t *testing.T) {
		page := newFakePage(1)
		page.style = func(index int, prop string, second int) string {
			if prop == "visibility" && index == 1 {
				return ExpectedVisibility(second + 1)
			}
			return ""
		}
		_, _, err := runVerifier(t, page, func(c *config.Config) { c.Checks.Sync = false })
		require.NoError(t, err)
	})
}

func TestVerifierFixedWidth(t *testing.T) {
	testCases := []struct {
		name  string
		prop  string
		value string
	}{
		{"inline display", "display", "inline"},
		{"display none", "display", "none"},
		{"auto width", "width", "auto"},
		{"zero width", "width", "0px"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			page := newFakePage(0)
			page.style = func(_ int, prop string, _ int) string {
				if prop == tc.prop {
					return tc.value
				}
				return ""
			}

			_, _, err := runVerifier(t, page, nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrLayout)
			assert.Contains(t, err.Error(), tc.value)
			assert.Empty(t, page.pauses)
		})
	}

	t.Run("block display passes", func(t *testing.T) {
		page := newFakePage(1)
		page.style = func(_ int, prop string, _ int) string {
			if prop == "display" {
				return "block"
			}
			return ""
		}
		_, _, err := runVerifier(t, page, nil)
		require.NoError(t, err)
	})
}

func TestVerifierSampleBlink(t *testing.T) {
	t.Run("alternating states pass", func(t *testing.T) {
		// Scenario B
		page := newFakePage(0)
		var out bytes.Buffer
		v := NewVerifier(page, config.Default(), &out)

		require.NoError(t, v.SampleBlink(context.Background()))
		assert.Equal(t, []string{"visible", "hidden", "visible", "hidden"}, v.Report().Samples)
		assert.Len(t, page.pauses, 3)
		assert.Contains(t, out.String(), "PASS: Colons toggled between states: [visible hidden visible hidden]")
	})

	t.Run("frozen colons fail", func(t *testing.T) {
		page := newFakePage(0)
		page.style = func(_ int, prop string, _ int) string {
			if prop == "visibility" {
				return Visible
			}
			return ""
		}

		_, _, err := runVerifier(t, page, nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrNoBlink)
		assert.Contains(t, err.Error(), "[visible visible visible visible]")
	})

	t.Run("a single change is enough", func(t *testing.T) {
		page := newFakePage(0)
		page.style = func(_ int, prop string, second int) string {
			if prop == "visibility" && second < 3 {
				return Visible
			}
			return ""
		}
		v := NewVerifier(page, config.Default(), nil)
		require.NoError(t, v.SampleBlink(context.Background()))
		assert.Equal(t, []string{"visible", "visible", "visible", "hidden"}, v.Report().Samples)
	})

	t.Run("sample count is configurable", func(t *testing.T) {
		page := newFakePage(0)
		cfg := config.Default()
		cfg.Checks.Samples = 6
		cfg.Checks.SampleInterval = 1500 * time.Millisecond
		v := NewVerifier(page, cfg, nil)
		require.NoError(t, v.SampleBlink(context.Background()))
		assert.Len(t, v.Report().Samples, 6)
		assert.Len(t, page.pauses, 5)
		assert.Equal(t, 1500*time.Millisecond, page.pauses[0])
	})
}

func TestVerifierPhaseParity(t *testing.T) {
	t.Run("even second visible passes", func(t *testing.T) {
		// Scenario C
		page := newFakePage(4)
		page.text = func(int) string { return "12:34:04" }
		var out bytes.Buffer
		v := NewVerifier(page, config.Default(), &out)

		require.NoError(t, v.CheckPhaseParity(context.Background()))
		assert.Contains(t, out.String(), "PASS: At second 4 (even=true), colon visibility is 'visible'")
	})

	t.Run("odd second visible fails", func(t *testing.T) {
		// Scenario D
		page := newFakePage(4)
		page.text = func(int) string { return "12:34:05" }
		v := NewVerifier(page, config.Default(), nil)

		err := v.CheckPhaseParity(context.Background())
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrPhaseMismatch)
		assert.Contains(t, err.Error(), "at second 5")
		assert.Contains(t, err.Error(), "expected visibility 'hidden' but got 'visible'")
	})

	t.Run("unparseable text is skipped", func(t *testing.T) {
		// Scenario E
		page := newFakePage(1)
		page.text = func(int) string { return "12 34 0 5" }

		v, out, err := runVerifier(t, page, nil)
		require.NoError(t, err)
		assert.Contains(t, out, "SKIP: Could not parse seconds from ' 5', skipping parity check")

		var parity Result
		for _, r := range v.Report().Results {
			if r.Check == "parity" {
				parity = r
			}
		}
		assert.Equal(t, StatusSkip, parity.Status)
	})

	t.Run("strict parity rejects unparseable text", func(t *testing.T) {
		page := newFakePage(1)
		page.text = func(int) string { return "12:34 PM" }

		_, _, err := runVerifier(t, page, func(c *config.Config) { c.Checks.StrictParity = true })
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrUnparseableClock)
		assert.Contains(t, err.Error(), "'PM'")
	})
}

func TestVerifierLayoutShift(t *testing.T) {
	growing := func(selector string, second int) float64 {
		if selector == `a[aria-label="Visit NBA.com"]` {
			return 90 + float64(second%2)*8
		}
		return 7.2
	}

	t.Run("clock width change fails", func(t *testing.T) {
		page := newFakePage(1)
		page.width = growing

		_, _, err := runVerifier(t, page, nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrLayoutShift)
		assert.Contains(t, err.Error(), "clock width changed")
	})

	t.Run("colon width change fails", func(t *testing.T) {
		page := newFakePage(1)
		page.width = func(selector string, second int) float64 {
			if selector == `[data-testid="clock-colon"]` && second%2 == 1 {
				return 0
			}
			return 7.2
		}

		_, _, err := runVerifier(t, page, nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrLayoutShift)
		assert.Contains(t, err.Error(), "colon width changed")
	})

	t.Run("sub-threshold drift passes", func(t *testing.T) {
		page := newFakePage(1)
		page.width = func(selector string, second int) float64 {
			return 96 + float64(second%2)*1.5
		}
		_, _, err := runVerifier(t, page, nil)
		require.NoError(t, err)
	})

	t.Run("disabled", func(t *testing.T) {
		page := newFakePage(1)
		page.width = growing
		v, _, err := runVerifier(t, page, func(c *config.Config) { c.Checks.LayoutShift = false })
		require.NoError(t, err)
		assert.Len(t, page.pauses, 3)
		assert.Equal(t, 9, v.Report().Passed())
	})
}

func TestVerifierStopsWhenCancelled(t *testing.T) {
	t.Run("cancelled after load", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		page := newFakePage(1)
		page.onNavigate = cancel

		var out bytes.Buffer
		v := NewVerifier(page, config.Default(), &out)
		err := v.Run(ctx)
		require.Error(t, err)
		assert.True(t, errors.Is(err, context.Canceled))
		assert.Equal(t, 0, page.countCalls)
		assert.Empty(t, page.pauses)
		assert.Equal(t, 1, v.Report().Passed())
		assert.NotContains(t, out.String(), "checks passed")
	})

	t.Run("cancelled while sampling", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		page := newFakePage(1)
		page.onPause = func(n int) {
			if n == 1 {
				cancel()
			}
		}

		v := NewVerifier(page, config.Default(), nil)
		err := v.Run(ctx)
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Len(t, page.pauses, 1)
		assert.Len(t, v.Report().Samples, 2)
	})

	t.Run("cancelled navigation is not a load failure", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		page := newFakePage(0)
		page.onNavigate = cancel
		page.navigateErr = errors.New("Target page, context or browser has been closed")

		v := NewVerifier(page, config.Default(), nil)
		err := v.Run(ctx)
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
		assert.NotErrorIs(t, err, ErrLoad)
	})
}

func TestCheckSyncReadsAllMarkersAtOnce(t *testing.T) {
	page := newFakePage(0)
	page.markers = 3
	cfg := config.Default()
	cfg.Target.ExpectedMarkers = 3
	var out bytes.Buffer
	v := NewVerifier(page, cfg, &out)

	require.NoError(t, v.CheckSync(context.Background()))
	assert.Equal(t, 1, page.visCalls)
	assert.Empty(t, page.styleIndexes)
	assert.Contains(t, out.String(), "PASS: All 3 colons share visibility 'visible'")

	t.Run("invalid state", func(t *testing.T) {
		page := newFakePage(0)
		page.style = func(index int, prop string, _ int) string {
			if index == 1 {
				return "collapse"
			}
			return ""
		}
		err := NewVerifier(page, config.Default(), nil).CheckSync(context.Background())
		assert.ErrorIs(t, err, ErrInvalidVisibility)
	})

	t.Run("no markers", func(t *testing.T) {
		page := newFakePage(0)
		page.markers = 0
		err := NewVerifier(page, config.Default(), nil).CheckSync(context.Background())
		assert.ErrorIs(t, err, ErrMarkerCount)
	})
}

func TestChecksIterateLocatedMarkers(t *testing.T) {
	page := newFakePage(0)
	v := NewVerifier(page, config.Default(), nil)
	require.NoError(t, v.LocateMarkers(context.Background()))

	// a later change to the expected count must not widen the loops
	v.target.ExpectedMarkers = 5
	require.NoError(t, v.CheckRenderingTechnique(context.Background()))
	require.NoError(t, v.CheckFixedWidth(context.Background()))

	for _, idx := range page.styleIndexes {
		assert.Less(t, idx, 2)
	}
	assert.Len(t, page.styleIndexes, 2+2*2)
}
