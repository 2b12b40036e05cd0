package features

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gobwas/glob"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/tubeforge/pkg/skip"
)

func skipperOf(t *testing.T, h *harness) *segmentSkip {
	t.Helper()
	f, ok := h.lifecycle(t, IDSegmentSkip).(*segmentSkip)
	require.True(t, ok)
	return f
}

// waitLoaded drains the loop until the driver holds n pending segments.
func waitLoaded(t *testing.T, h *harness, f *segmentSkip, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		h.loop.Drain()
		return f.skipper.Pending() == n
	}, time.Second, 5*time.Millisecond)
}

func TestSegmentSkip_CascadeAndReport(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, watchURL, playerMarkup, Options{})
	h.segments.byVideo["abc"] = []skip.Segment{
		{UUID: "a", Start: 10, End: 12, Action: skip.ActionSkip},
		{UUID: "b", Start: 12.05, End: 15, Action: skip.ActionSkip},
	}
	f := skipperOf(t, h)

	require.NoError(t, f.Activate(ctx))
	waitLoaded(t, h, f, 2)

	h.player.SetTime(10.1)
	h.loop.Tick()

	assert.Equal(t, []float64{15}, h.player.Seeks())
	require.Eventually(t, func() bool { return len(h.segments.Reported()) == 2 }, time.Second, 5*time.Millisecond)
	assert.ElementsMatch(t, []string{"a", "b"}, h.segments.Reported())

	h.loop.Tick()
	assert.Len(t, h.player.Seeks(), 1)
}

func TestSegmentSkip_NavigationResets(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, watchURL, playerMarkup, Options{})
	h.segments.byVideo["abc"] = []skip.Segment{{UUID: "a", Start: 10, End: 12}}
	h.segments.byVideo["def"] = []skip.Segment{
		{UUID: "d1", Start: 1, End: 2},
		{UUID: "d2", Start: 5, End: 6},
	}
	f := skipperOf(t, h)

	require.NoError(t, f.Activate(ctx))
	waitLoaded(t, h, f, 1)

	h.nav.Fire("yt-navigate-start", "https://www.youtube.com/watch?v=def&t=3")
	assert.Equal(t, "def", f.skipper.VideoID())
	waitLoaded(t, h, f, 2)

	// Results for the previous video are dropped.
	f.load("abc", h.segments.byVideo["abc"])
	assert.Equal(t, 2, f.skipper.Pending())

	h.nav.Fire("yt-navigate-start", homeURL)
	assert.Equal(t, "", f.skipper.VideoID())
	assert.Equal(t, 0, f.skipper.Pending())
	assert.Equal(t, []string{"abc", "def"}, h.segments.Fetched(), "no fetch off watch pages")
}

func TestSegmentSkip_FinishOnOtherVideoResets(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, watchURL, playerMarkup, Options{})
	h.segments.byVideo["abc"] = []skip.Segment{{UUID: "a", Start: 10, End: 12}}
	h.segments.byVideo["def"] = []skip.Segment{
		{UUID: "d1", Start: 1, End: 2},
		{UUID: "d2", Start: 5, End: 6},
	}
	f := skipperOf(t, h)

	require.NoError(t, f.Activate(ctx))
	waitLoaded(t, h, f, 1)
	assert.Equal(t, []string{"abc"}, h.segments.Fetched(), "initial finish on the same video does not refetch")

	// A full load reaches the next video without a navigate-start.
	h.nav.Fire("yt-navigate-finish", "https://www.youtube.com/watch?v=def")
	assert.Equal(t, "def", f.skipper.VideoID())
	waitLoaded(t, h, f, 2)

	h.nav.Fire("yt-navigate-finish", "https://www.youtube.com/watch?v=def&t=40")
	assert.Equal(t, 2, f.skipper.Pending(), "same video keeps its segments")
	assert.Equal(t, []string{"abc", "def"}, h.segments.Fetched())

	require.NoError(t, f.Deactivate(ctx))
	assert.Equal(t, 0, h.env.NavFinish.Len())
	assert.Equal(t, 0, h.env.NavStart.Len())
}

func TestSegmentSkip_MuteAndDeactivate(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, watchURL, playerMarkup, Options{})
	h.segments.byVideo["abc"] = []skip.Segment{{UUID: "m", Start: 30, End: 40, Action: skip.ActionMute}}
	f := skipperOf(t, h)

	require.NoError(t, f.Deactivate(ctx), "deactivate before any activate")

	require.NoError(t, f.Activate(ctx))
	require.NoError(t, f.Activate(ctx))
	assert.Equal(t, 1, h.loop.Jobs())
	waitLoaded(t, h, f, 1)

	h.player.SetTime(31)
	h.loop.Tick()
	assert.True(t, h.player.Muted())

	require.NoError(t, f.Deactivate(ctx))
	require.NoError(t, f.Deactivate(ctx))
	assert.False(t, h.player.Muted())
	assert.Equal(t, 0, h.loop.Jobs())
	assert.Equal(t, 0, h.env.NavStart.Len())
}

func TestSegmentSkip_FetchFailureDegrades(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, watchURL, playerMarkup, Options{})
	h.segments.err = errors.New("offline")
	f := skipperOf(t, h)

	require.NoError(t, f.Activate(ctx))
	require.Eventually(t, func() bool {
		h.loop.Drain()
		return len(h.segments.Fetched()) == 1
	}, time.Second, 5*time.Millisecond)
	h.loop.Drain()

	h.player.SetTime(10)
	h.loop.Tick()
	assert.Empty(t, h.player.Seeks())
	assert.Equal(t, "abc", f.skipper.VideoID())
}

func TestVideoID(t *testing.T) {
	watch := glob.MustCompile("/watch", '/')
	tests := []struct {
		url  string
		want string
	}{
		{"https://www.youtube.com/watch?v=abc", "abc"},
		{"https://www.youtube.com/watch?list=x&v=def", "def"},
		{"https://www.youtube.com/shorts/abc", ""},
		{"https://www.youtube.com/", ""},
		{"://bad", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, VideoID(watch, tt.url), tt.url)
	}
}
