// Package features is tubeforge's feature catalog: the descriptors the
// registry drives and the lifecycles behind them.
package features

import (
	"context"
	"fmt"
	"time"

	"github.com/atotto/clipboard"
	"github.com/gobwas/glob"

	"github.com/entrhq/tubeforge/pkg/feature"
	"github.com/entrhq/tubeforge/pkg/logging"
	"github.com/entrhq/tubeforge/pkg/page"
	"github.com/entrhq/tubeforge/pkg/signal"
	"github.com/entrhq/tubeforge/pkg/skip"
	"github.com/entrhq/tubeforge/pkg/waiter"
)

// Feature ids.
const (
	IDHideShortsShelf = "hideShortsShelf"
	IDHideComments    = "hideComments"
	IDHideEndCards    = "hideEndCards"
	IDCleanHome       = "cleanHome"
	IDHideHomeChips   = "hideHomeChips"
	IDHideHomeShelves = "hideHomeShelves"
	IDHideSidebar     = "hideSidebar"
	IDCustomCSS       = "customCSS"
	IDShortsRelink    = "shortsRelink"
	IDPlaybackSpeed   = "playbackSpeed"
	IDScreenshot      = "screenshot"
	IDSegmentSkip     = "segmentSkip"
)

// Groups shown by the CLI listing.
const (
	GroupHome     = "Home"
	GroupWatch    = "Watch"
	GroupShorts   = "Shorts"
	GroupAdvanced = "Advanced"
)

// Scheduler is the slice of eventloop.Loop features use.
type Scheduler interface {
	Post(fn func()) bool
	Every(d time.Duration, fn func()) (stop func())
}

// SegmentSource fetches and reports skippable segments. segments.Client
// satisfies it.
type SegmentSource interface {
	Fetch(ctx context.Context, videoID string) ([]skip.Segment, error)
	ReportViewed(ctx context.Context, uuid string) error
}

// Env is everything a feature may touch. All fields are set by the engine;
// feature code runs on Loop.
type Env struct {
	Doc       page.Document
	Player    page.Player
	NavFinish *signal.Navigation
	NavStart  *signal.Navigation
	Mutations *signal.Mutation
	Waiter    *waiter.Waiter
	Loop      Scheduler
	Segments  SegmentSource
	Logger    *logging.Logger

	// Value returns a textarea feature's current text.
	Value func(id string) string

	// Clipboard defaults to atotto/clipboard.
	Clipboard func(text string) error
	// Now defaults to time.Now.
	Now func() time.Time
}

// Options tunes the catalog.
type Options struct {
	// RelinkPatterns are path globs whose links are rewritten to the watch page.
	RelinkPatterns []string
	// WatchPattern is the path glob of pages carrying a "v" video id.
	WatchPattern string
	// VideoSelector locates the main video element.
	VideoSelector string
	// ScreenshotDir receives captured PNGs.
	ScreenshotDir string
	// HotkeyKey is pressed with Alt to capture a screenshot.
	HotkeyKey string
	// SkipInterval is how often the segment skipper samples playback.
	SkipInterval time.Duration
	// DefaultSpeed is the playbackSpeed default text.
	DefaultSpeed string
}

// DefaultOptions returns the stock catalog options.
func DefaultOptions() Options {
	return Options{
		RelinkPatterns: []string{"/shorts/*"},
		WatchPattern:   "/watch",
		VideoSelector:  "video.html5-main-video, #movie_player video",
		ScreenshotDir:  "screenshots",
		HotkeyKey:      "s",
		SkipInterval:   200 * time.Millisecond,
		DefaultSpeed:   "1.5",
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if len(o.RelinkPatterns) == 0 {
		o.RelinkPatterns = d.RelinkPatterns
	}
	if o.WatchPattern == "" {
		o.WatchPattern = d.WatchPattern
	}
	if o.VideoSelector == "" {
		o.VideoSelector = d.VideoSelector
	}
	if o.ScreenshotDir == "" {
		o.ScreenshotDir = d.ScreenshotDir
	}
	if o.HotkeyKey == "" {
		o.HotkeyKey = d.HotkeyKey
	}
	if o.SkipInterval <= 0 {
		o.SkipInterval = d.SkipInterval
	}
	if o.DefaultSpeed == "" {
		o.DefaultSpeed = d.DefaultSpeed
	}
	return o
}

func (e *Env) logger() *logging.Logger {
	if e.Logger == nil {
		return logging.Discard()
	}
	return e.Logger
}

func (e *Env) value(id string) string {
	if e.Value == nil {
		return ""
	}
	return e.Value(id)
}

func (e *Env) now() time.Time {
	if e.Now == nil {
		return time.Now()
	}
	return e.Now()
}

func (e *Env) copyText(text string) error {
	if e.Clipboard != nil {
		return e.Clipboard(text)
	}
	if clipboard.Unsupported {
		return fmt.Errorf("clipboard unsupported on this system")
	}
	return clipboard.WriteAll(text)
}

// Catalog returns every descriptor with its lifecycle bound to env, plus the
// management dependency map.
func Catalog(env *Env, opts Options) ([]feature.Descriptor, feature.Dependents, error) {
	opts = opts.withDefaults()

	relinks := make([]glob.Glob, 0, len(opts.RelinkPatterns))
	for _, p := range opts.RelinkPatterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, nil, fmt.Errorf("relink pattern %q: %w", p, err)
		}
		relinks = append(relinks, g)
	}
	watch, err := glob.Compile(opts.WatchPattern, '/')
	if err != nil {
		return nil, nil, fmt.Errorf("watch pattern %q: %w", opts.WatchPattern, err)
	}

	descs := cosmetics(env)
	descs = append(descs,
		feature.Descriptor{
			ID:          IDCustomCSS,
			Name:        "Custom CSS",
			Description: "Inject your own stylesheet",
			Group:       GroupAdvanced,
			Type:        feature.TypeTextarea,
			Default:     "",
			Lifecycle:   newStyleFeature(env, IDCustomCSS, func() string { return env.value(IDCustomCSS) }),
		},
		feature.Descriptor{
			ID:          IDShortsRelink,
			Name:        "Open Shorts as videos",
			Description: "Rewrite Shorts links to the regular watch page",
			Group:       GroupShorts,
			Default:     false,
			Lifecycle:   newRelink(env, relinks),
		},
		feature.Descriptor{
			ID:          IDPlaybackSpeed,
			Name:        "Default playback speed",
			Description: "Playback rate applied to every video",
			Group:       GroupWatch,
			Type:        feature.TypeTextarea,
			Default:     opts.DefaultSpeed,
			Lifecycle:   newSpeed(env, opts.VideoSelector),
		},
		feature.Descriptor{
			ID:          IDScreenshot,
			Name:        "Screenshot hotkey",
			Description: "Alt+" + opts.HotkeyKey + " saves the current frame and copies its path",
			Group:       GroupWatch,
			Default:     false,
			Lifecycle:   newScreenshot(env, opts.VideoSelector, opts.ScreenshotDir, opts.HotkeyKey),
		},
		feature.Descriptor{
			ID:          IDSegmentSkip,
			Name:        "Skip sponsor segments",
			Description: "Skip or mute community-submitted segments",
			Group:       GroupWatch,
			Default:     false,
			Lifecycle:   newSegmentSkip(env, watch, opts.SkipInterval),
		},
	)

	deps := feature.Dependents{
		IDCleanHome: {IDHideHomeChips, IDHideHomeShelves},
	}
	return descs, deps, nil
}
