package features

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/entrhq/tubeforge/pkg/page"
	"github.com/entrhq/tubeforge/pkg/signal"
)

const maxPlaybackRate = 16

// speed applies the configured playback rate once the video element exists,
// again after every navigation.
type speed struct {
	env      *Env
	selector string

	active     bool
	rate       float64
	cancelWait func()
}

func newSpeed(env *Env, selector string) *speed {
	return &speed{env: env, selector: selector}
}

// ParseRate validates a playback speed setting.
func ParseRate(s string) (float64, error) {
	rate, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(s), "x"), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid playback speed %q", s)
	}
	if rate <= 0 || rate > maxPlaybackRate {
		return 0, fmt.Errorf("playback speed %v out of range (0, %d]", rate, maxPlaybackRate)
	}
	return rate, nil
}

func (f *speed) Activate(ctx context.Context) error {
	if f.active {
		return nil
	}
	rate, err := ParseRate(f.env.value(IDPlaybackSpeed))
	if err != nil {
		return err
	}
	f.rate = rate

	err = f.env.NavFinish.Subscribe(ctx, IDPlaybackSpeed, func(ctx context.Context, _ signal.NavigationEvent) error {
		f.apply(ctx)
		return nil
	})
	if err != nil {
		return err
	}
	f.active = true
	return nil
}

func (f *speed) apply(ctx context.Context) {
	if f.cancelWait != nil {
		f.cancelWait()
	}
	rate := f.rate
	// The wait outlives the navigation callback; its own timeout bounds it.
	wctx := context.WithoutCancel(ctx)
	f.cancelWait = f.env.Waiter.WaitFor(wctx, f.selector, func(page.Element) {
		if err := f.env.Player.SetPlaybackRate(wctx, rate); err != nil {
			f.env.logger().Warnf("set playback rate %v: %v", rate, err)
		}
	}, 0)
}

func (f *speed) Deactivate(ctx context.Context) error {
	if !f.active {
		return nil
	}
	f.active = false
	f.env.NavFinish.Unsubscribe(IDPlaybackSpeed)
	if f.cancelWait != nil {
		f.cancelWait()
		f.cancelWait = nil
	}
	return f.env.Player.SetPlaybackRate(ctx, 1)
}
