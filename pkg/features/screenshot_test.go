package features

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type evalLog struct {
	mu      sync.Mutex
	scripts []string
}

func (l *evalLog) record(script string, _ any) (any, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.scripts = append(l.scripts, script)
	return nil, nil
}

func (l *evalLog) count(script string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, s := range l.scripts {
		if s == script {
			n++
		}
	}
	return n
}

func TestScreenshot_HotkeyCapturesFrame(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	opts := DefaultOptions()
	opts.ScreenshotDir = dir
	h := newHarness(t, watchURL, playerMarkup, opts)

	var evals evalLog
	h.doc.OnEvaluate(evals.record)
	h.doc.SetScreenshot(opts.VideoSelector, []byte("png-bytes"))
	lc := h.lifecycle(t, IDScreenshot)

	require.NoError(t, lc.Activate(ctx))
	assert.Equal(t, 1, evals.count(armHotkeyScript))

	require.True(t, h.doc.CallBinding(screenshotBinding))
	h.loop.Drain()

	want := filepath.Join(dir, "tubeforge-20260102-030405.000.png")
	data, err := os.ReadFile(want)
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), data)
	require.Len(t, h.copied, 1)
	assert.Equal(t, want, h.copied[0])

	h.nav.Fire("yt-navigate-finish", watchURL)
	assert.Equal(t, 2, evals.count(armHotkeyScript), "re-armed after navigation")

	require.NoError(t, lc.Deactivate(ctx))
	assert.Equal(t, 1, evals.count(disarmHotkeyScript))

	// A press queued after disarming is ignored.
	require.NoError(t, os.Remove(want))
	h.doc.CallBinding(screenshotBinding)
	h.loop.Drain()
	_, err = os.Stat(want)
	assert.True(t, os.IsNotExist(err))
}

func TestScreenshot_Idempotent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, watchURL, playerMarkup, Options{ScreenshotDir: t.TempDir()})
	var evals evalLog
	h.doc.OnEvaluate(evals.record)
	lc := h.lifecycle(t, IDScreenshot)

	require.NoError(t, lc.Deactivate(ctx), "deactivate before any activate")
	assert.Equal(t, 0, evals.count(disarmHotkeyScript))

	require.NoError(t, lc.Activate(ctx))
	require.NoError(t, lc.Activate(ctx))
	assert.Equal(t, 1, evals.count(armHotkeyScript))

	require.NoError(t, lc.Deactivate(ctx))
	require.NoError(t, lc.Deactivate(ctx))
	assert.Equal(t, 1, evals.count(disarmHotkeyScript))
}

func TestScreenshot_MissingVideo(t *testing.T) {
	h := newHarness(t, homeURL, "<html><head></head><body></body></html>", Options{ScreenshotDir: t.TempDir()})
	shot := h.lifecycle(t, IDScreenshot).(*screenshot)

	_, err := shot.Capture(context.Background())
	assert.Error(t, err)
	assert.Empty(t, h.copied)
}
