package browser

import (
	"context"
	"errors"
	"fmt"
)

// DefaultVideoSelector matches the host's main video element.
const DefaultVideoSelector = "video.html5-main-video, #movie_player video, video"

// ErrNoMedia is returned when the page has no video element yet.
var ErrNoMedia = errors.New("browser: no media element")

const playerScript = `(a) => {
  const v = document.querySelector(a.selector);
  if (!v) return null;
  switch (a.op) {
    case 'time': return v.currentTime;
    case 'seek': v.currentTime = a.value; return v.currentTime;
    case 'mute': v.muted = a.value; return v.muted;
    case 'rate': v.playbackRate = a.value; return v.playbackRate;
  }
  return null;
}`

// Player drives the page's main video element through script evaluation.
type Player struct {
	doc      *Document
	selector string
}

// NewPlayer returns a Player for the first element matching selector, or
// DefaultVideoSelector when selector is empty.
func NewPlayer(doc *Document, selector string) *Player {
	if selector == "" {
		selector = DefaultVideoSelector
	}
	return &Player{doc: doc, selector: selector}
}

func (p *Player) do(ctx context.Context, op string, value any) (any, error) {
	res, err := p.doc.Evaluate(ctx, playerScript, map[string]any{
		"selector": p.selector,
		"op":       op,
		"value":    value,
	})
	if err != nil {
		return nil, fmt.Errorf("player %s: %w", op, err)
	}
	if res == nil {
		return nil, ErrNoMedia
	}
	return res, nil
}

// CurrentTime returns the playback position in seconds.
func (p *Player) CurrentTime(ctx context.Context) (float64, error) {
	res, err := p.do(ctx, "time", nil)
	if err != nil {
		return 0, err
	}
	switch t := res.(type) {
	case float64:
		return t, nil
	case int:
		return float64(t), nil
	default:
		return 0, fmt.Errorf("player time: unexpected %T", res)
	}
}

func (p *Player) Seek(ctx context.Context, seconds float64) error {
	_, err := p.do(ctx, "seek", seconds)
	return err
}

func (p *Player) SetMuted(ctx context.Context, muted bool) error {
	_, err := p.do(ctx, "mute", muted)
	return err
}

func (p *Player) SetPlaybackRate(ctx context.Context, rate float64) error {
	_, err := p.do(ctx, "rate", rate)
	return err
}
