package features

import (
	"context"
	"net/url"
	"time"

	"github.com/gobwas/glob"

	"github.com/entrhq/tubeforge/pkg/signal"
	"github.com/entrhq/tubeforge/pkg/skip"
)

// segmentSkip drives a skip.Skipper from the player clock. Navigation start
// resets it, as does a navigation finish (including a full page load) that
// lands on a different video. Segments arrive asynchronously and are applied
// on the loop.
type segmentSkip struct {
	env      *Env
	watch    glob.Glob
	interval time.Duration

	active   bool
	skipper  *skip.Skipper
	stopTick func()
	muted    bool
}

func newSegmentSkip(env *Env, watch glob.Glob, interval time.Duration) *segmentSkip {
	return &segmentSkip{env: env, watch: watch, interval: interval, skipper: skip.New()}
}

func (f *segmentSkip) Activate(ctx context.Context) error {
	if f.active {
		return nil
	}
	f.active = true
	err := f.env.NavStart.Subscribe(ctx, IDSegmentSkip, func(ctx context.Context, ev signal.NavigationEvent) error {
		f.reset(ctx, ev.URL)
		return nil
	})
	if err != nil {
		f.active = false
		return err
	}
	err = f.env.NavFinish.Subscribe(ctx, IDSegmentSkip, func(ctx context.Context, ev signal.NavigationEvent) error {
		if VideoID(f.watch, ev.URL) != f.skipper.VideoID() {
			f.reset(ctx, ev.URL)
		}
		return nil
	})
	if err != nil {
		f.env.NavStart.Unsubscribe(IDSegmentSkip)
		f.active = false
		return err
	}
	f.stopTick = f.env.Loop.Every(f.interval, func() { f.tick(context.Background()) })
	return nil
}

func (f *segmentSkip) Deactivate(ctx context.Context) error {
	if !f.active {
		return nil
	}
	f.active = false
	f.env.NavStart.Unsubscribe(IDSegmentSkip)
	f.env.NavFinish.Unsubscribe(IDSegmentSkip)
	if f.stopTick != nil {
		f.stopTick()
		f.stopTick = nil
	}
	f.skipper.Reset("")
	return f.unmute(ctx)
}

// VideoID extracts the video id from a watch page URL.
func VideoID(watch glob.Glob, raw string) string {
	u, err := url.Parse(raw)
	if err != nil || !watch.Match(u.Path) {
		return ""
	}
	return u.Query().Get("v")
}

func (f *segmentSkip) reset(ctx context.Context, rawURL string) {
	if err := f.unmute(ctx); err != nil {
		f.env.logger().Warnf("unmute on navigation: %v", err)
	}

	id := VideoID(f.watch, rawURL)
	f.skipper.Reset(id)
	if id == "" || f.env.Segments == nil {
		return
	}

	go func() {
		segs, err := f.env.Segments.Fetch(context.WithoutCancel(ctx), id)
		f.env.Loop.Post(func() {
			if err != nil {
				f.env.logger().Warnf("fetch segments for %s: %v", id, err)
				return
			}
			f.load(id, segs)
		})
	}()
}

func (f *segmentSkip) load(id string, segs []skip.Segment) {
	if !f.active || !f.skipper.Load(id, segs) {
		f.env.logger().Debugf("dropping stale segments for %s", id)
		return
	}
	f.env.logger().Debugf("loaded %d segments for %s", f.skipper.Pending(), id)
	if hl, ok := f.skipper.Highlight(); ok {
		f.env.logger().Infof("video %s highlight at %.1fs", id, hl.Start)
	}
	if label, ok := f.skipper.Label(); ok {
		f.env.logger().Infof("video %s is labeled %q", id, label.Category)
	}
}

func (f *segmentSkip) tick(ctx context.Context) {
	if !f.active || f.skipper.VideoID() == "" || f.skipper.Pending() == 0 && !f.muted {
		return
	}
	t, err := f.env.Player.CurrentTime(ctx)
	if err != nil {
		return
	}

	res := f.skipper.Tick(t)
	if res.Seek {
		if err := f.env.Player.Seek(ctx, res.SeekTo); err != nil {
			f.env.logger().Warnf("seek to %.2f: %v", res.SeekTo, err)
		}
	}
	switch res.Mute {
	case skip.MuteOn:
		if err := f.env.Player.SetMuted(ctx, true); err != nil {
			f.env.logger().Warnf("mute: %v", err)
		} else {
			f.muted = true
		}
	case skip.MuteOff:
		if err := f.unmute(ctx); err != nil {
			f.env.logger().Warnf("unmute: %v", err)
		}
	}
	for _, uuid := range res.Viewed {
		f.report(uuid)
	}
}

func (f *segmentSkip) report(uuid string) {
	if f.env.Segments == nil {
		return
	}
	go func() {
		if err := f.env.Segments.ReportViewed(context.Background(), uuid); err != nil {
			f.env.logger().Warnf("report segment %s: %v", uuid, err)
		}
	}()
}

func (f *segmentSkip) unmute(ctx context.Context) error {
	if !f.muted {
		return nil
	}
	f.muted = false
	return f.env.Player.SetMuted(ctx, false)
}
