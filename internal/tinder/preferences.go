package tinder

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"

	"go.uber.org/zap"

	"github.com/ibeckermayer/uibot/internal/browser"
	"github.com/ibeckermayer/uibot/internal/verify"
)

const (
	// maxDistanceKm is the right end of the distance slider.
	maxDistanceKm = 160
	// minAgeSpan is the narrowest age range the app accepts.
	minAgeSpan = 5

	distanceStep    = 3.0 // px per drag
	ageStep         = 5.0
	sliderTolerance = 1.0 // percent
	maxSliderSteps  = 200
)

// ErrSliderStuck means a slider did not reach its target within
// maxSliderSteps drags.
var ErrSliderStuck = errors.New("slider did not reach target")

var percentRe = regexp.MustCompile(`(-?\d+(?:\.\d+)?)%`)

// parsePercent reads the handle position from a style such as "left: 42.5%;".
func parsePercent(style string) (float64, error) {
	m := percentRe.FindStringSubmatch(style)
	if m == nil {
		return 0, fmt.Errorf("no percentage in style %q", style)
	}
	return strconv.ParseFloat(m[1], 64)
}

// DistancePercent maps km to the slider position, clamped to [0, 100].
func DistancePercent(km int) float64 {
	switch {
	case km > maxDistanceKm:
		return 100
	case km < 2:
		return 0
	}
	return float64(km) / maxDistanceKm * 100
}

// AgeRange clamps [minAge, maxAge] into the slider bounds [lo, hi] and widens
// it to at least minAgeSpan years.
func AgeRange(minAge, maxAge, lo, hi int) (int, int) {
	minAge, maxAge = max(minAge, lo), min(maxAge, hi)
	for maxAge-minAge < minAgeSpan && (minAge > lo || maxAge < hi) {
		minAge, maxAge = max(minAge-1, lo), min(maxAge+1, hi)
	}
	return minAge, maxAge
}

func (b *Bot) openProfile(ctx context.Context) error {
	if ok, _ := b.page.Visible(ctx, ProfileLink, b.delay); ok {
		return b.page.Click(ctx, ProfileLink)
	}
	return b.page.Navigate(ctx, ProfileURL)
}

func (b *Bot) handlePercent(ctx context.Context, sel string) (float64, error) {
	style, err := b.page.Attribute(ctx, sel, "style")
	if err != nil {
		return 0, err
	}
	return parsePercent(style)
}

func (b *Bot) firstVisible(ctx context.Context, sels []string) (string, error) {
	for _, sel := range sels {
		ok, err := b.page.Visible(ctx, sel, b.delay)
		if err != nil {
			return "", err
		}
		if ok {
			return sel, nil
		}
	}
	return "", fmt.Errorf("%w: %s", browser.ErrNotFound, sels[0])
}

// SetDistance drags the distance slider in small steps until its read-back
// position is within one percent of km.
func (b *Bot) SetDistance(ctx context.Context, km int) error {
	if err := b.openProfile(ctx); err != nil {
		return err
	}
	handle, err := b.firstVisible(ctx, distanceHandles)
	if err != nil {
		return fmt.Errorf("distance slider: %w", err)
	}

	target := DistancePercent(km)
	current, err := b.handlePercent(ctx, handle)
	if err != nil {
		return err
	}
	b.logger.Info("adjusting distance slider",
		zap.Float64("from_pct", current), zap.Float64("to_pct", target), zap.Int("km", km))

	for step := 0; math.Abs(target-current) > sliderTolerance; step++ {
		if step >= maxSliderSteps {
			return fmt.Errorf("%w: distance at %.1f%%, want %.1f%%", ErrSliderStuck, current, target)
		}
		dx := distanceStep
		if current > target {
			dx = -dx
		}
		if err := b.page.Drag(ctx, handle, dx); err != nil {
			return err
		}
		if current, err = b.handlePercent(ctx, handle); err != nil {
			return err
		}
	}

	b.logger.Info("distance set", zap.Bool("ok", true), zap.Float64("pct", current), zap.Float64("km", current*maxDistanceKm/100))
	return verify.Sleep(ctx, b.settle)
}

// SetAgeRange drags both age handles until they are within one percent of
// the clamped range.
func (b *Bot) SetAgeRange(ctx context.Context, minAge, maxAge int) error {
	if err := b.openProfile(ctx); err != nil {
		return err
	}
	for _, sel := range []string{MinAgeHandle, MaxAgeHandle} {
		ok, err := b.page.Visible(ctx, sel, b.delay)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s", browser.ErrNotFound, sel)
		}
	}

	lo, err := b.intAttr(ctx, MaxAgeHandle, "aria-valuemin")
	if err != nil {
		return err
	}
	hi, err := b.intAttr(ctx, MaxAgeHandle, "aria-valuemax")
	if err != nil {
		return err
	}
	if hi <= lo {
		return fmt.Errorf("invalid age slider bounds %d..%d", lo, hi)
	}

	minAge, maxAge = AgeRange(minAge, maxAge, lo, hi)
	perYear := 100 / float64(hi-lo)
	handles := []struct {
		sel    string
		target float64
	}{
		{MinAgeHandle, float64(minAge-lo) * perYear},
		{MaxAgeHandle, float64(maxAge-lo) * perYear},
	}
	b.logger.Info("adjusting age slider", zap.Int("min", minAge), zap.Int("max", maxAge))

	for step := 0; ; step++ {
		done := true
		for _, h := range handles {
			current, err := b.handlePercent(ctx, h.sel)
			if err != nil {
				return err
			}
			if math.Abs(h.target-current) <= sliderTolerance {
				continue
			}
			done = false
			if step >= maxSliderSteps {
				return fmt.Errorf("%w: %s at %.1f%%, want %.1f%%", ErrSliderStuck, h.sel, current, h.target)
			}
			dx := ageStep
			if current > h.target {
				dx = -dx
			}
			if err := b.page.Drag(ctx, h.sel, dx); err != nil {
				return err
			}
		}
		if done {
			break
		}
	}

	b.logger.Info("age range set", zap.Bool("ok", true), zap.Int("min", minAge), zap.Int("max", maxAge))
	return verify.Sleep(ctx, b.settle)
}

func (b *Bot) intAttr(ctx context.Context, sel, name string) (int, error) {
	v, err := b.page.Attribute(ctx, sel, name)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s of %s: %w", name, sel, err)
	}
	return n, nil
}

// SetGlobal turns global mode on or off. Global mode is on when the
// preferred-languages link is shown.
func (b *Bot) SetGlobal(ctx context.Context, on bool) error {
	if err := b.openProfile(ctx); err != nil {
		return err
	}
	active, err := b.page.Visible(ctx, GlobalLanguages, b.delay)
	if err != nil {
		return err
	}
	if active == on {
		b.logger.Info("global mode unchanged", zap.Bool("on", on))
		return nil
	}

	_, err = verify.Run(ctx, verify.Spec[bool]{
		Action: func(ctx context.Context) error { return b.page.Click(ctx, GlobalToggle) },
		Observe: func(ctx context.Context) (bool, error) {
			return b.page.Visible(ctx, GlobalLanguages, 0)
		},
		Target:   on,
		Timeout:  b.delay,
		Interval: pollInterval,
	})
	if err != nil {
		return fmt.Errorf("global mode: %w", err)
	}
	b.logger.Info("global mode set", zap.Bool("ok", true), zap.Bool("on", on))
	return nil
}
