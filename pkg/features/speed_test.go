package features

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const watchURL = "https://www.youtube.com/watch?v=abc"

const playerMarkup = `<html><head></head><body>
<div id="movie_player"><video class="html5-main-video"></video></div>
</body></html>`

func TestSpeed_AppliesWhenVideoAppears(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, watchURL, "<html><head></head><body><div id=\"root\"></div></body></html>", Options{})
	h.values[IDPlaybackSpeed] = "2"
	lc := h.lifecycle(t, IDPlaybackSpeed)

	require.NoError(t, lc.Activate(ctx))
	h.loop.Tick()
	assert.Equal(t, 1.0, h.player.Rate(), "no video yet")
	assert.Equal(t, 1, h.loop.Jobs())

	require.NoError(t, h.doc.AppendHTML("#root", `<div id="movie_player"><video class="html5-main-video"></video></div>`))
	h.loop.Tick()
	assert.Equal(t, 2.0, h.player.Rate())
	assert.Equal(t, 0, h.loop.Jobs(), "wait finished")

	h.player.SetPlaybackRate(ctx, 1)
	h.nav.Fire("yt-navigate-finish", watchURL)
	h.loop.Tick()
	assert.Equal(t, 2.0, h.player.Rate(), "re-applied after navigation")

	require.NoError(t, lc.Deactivate(ctx))
	assert.Equal(t, 1.0, h.player.Rate())
	assert.Equal(t, 0, h.env.NavFinish.Len())
}

func TestSpeed_DeactivateCancelsPendingWait(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, watchURL, "<html><head></head><body></body></html>", Options{})
	h.values[IDPlaybackSpeed] = "1.25x"
	lc := h.lifecycle(t, IDPlaybackSpeed)

	require.NoError(t, lc.Deactivate(ctx), "deactivate before any activate")

	require.NoError(t, lc.Activate(ctx))
	require.NoError(t, lc.Activate(ctx))
	assert.Equal(t, 1, h.loop.Jobs())

	require.NoError(t, lc.Deactivate(ctx))
	require.NoError(t, lc.Deactivate(ctx))
	assert.Equal(t, 0, h.loop.Jobs())
}

func TestSpeed_InvalidValue(t *testing.T) {
	h := newHarness(t, watchURL, playerMarkup, Options{})
	h.values[IDPlaybackSpeed] = "fast"

	err := h.lifecycle(t, IDPlaybackSpeed).Activate(context.Background())
	assert.ErrorContains(t, err, "invalid playback speed")
	assert.Equal(t, 0, h.env.NavFinish.Len())
}

func TestParseRate(t *testing.T) {
	tests := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{"1.5", 1.5, false},
		{" 2x ", 2, false},
		{"0", 0, true},
		{"-1", 0, true},
		{"17", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRate(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
