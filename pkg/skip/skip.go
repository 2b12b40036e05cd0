// Package skip decides, tick by tick, when playback should jump over or mute
// a known segment of the current video.
//
// The Skipper holds no clock and touches no player. The caller feeds it the
// playback position and applies the returned Result.
package skip

import (
	"sort"
)

// Action is what the player should do with a segment.
type Action string

const (
	ActionSkip Action = "skip"
	ActionMute Action = "mute"
	// ActionFull labels the whole video; it never triggers playback changes.
	ActionFull Action = "full"
	// ActionPOI marks a point of interest; only its start is meaningful.
	ActionPOI Action = "poi"
)

// Trigger tolerances in seconds. A segment fires when the position is at most
// LeadTolerance before its start or at most LateTolerance past it.
const (
	LeadTolerance = 0.1
	LateTolerance = 1.0
	// CascadeGap lets a skip landing this close before another pending skip
	// consume it in the same tick. Only skips starting at or after the
	// triggering one cascade.
	CascadeGap = 0.5
)

// Segment is one server-known time range.
type Segment struct {
	UUID     string
	Start    float64
	End      float64
	Action   Action
	Category string
}

// MuteChange tells the caller whether to touch the mute state.
type MuteChange int

const (
	MuteUnchanged MuteChange = iota
	MuteOn
	MuteOff
)

// Result is the outcome of one Tick.
type Result struct {
	// Seek is true when the player must jump to SeekTo.
	Seek   bool
	SeekTo float64

	Mute MuteChange

	// Viewed lists segment UUIDs consumed for the first time in this tick.
	Viewed []string
}

// Skipper is the per-video skip state. It is not safe for concurrent use;
// the driver runs it on the event loop.
type Skipper struct {
	videoID string

	skips []*entry
	mutes []*entry

	reported map[string]bool

	// muting is the index into mutes of the window currently muted, or -1.
	muting int

	highlight *Segment
	label     *Segment
}

// New returns an empty Skipper.
func New() *Skipper {
	s := &Skipper{}
	s.Reset("")
	return s
}

// Reset drops every segment and remembers videoID as the current media.
func (s *Skipper) Reset(videoID string) {
	s.videoID = videoID
	s.skips = nil
	s.mutes = nil
	s.reported = make(map[string]bool)
	s.muting = -1
	s.highlight = nil
	s.label = nil
}

// VideoID returns the media identity the state belongs to.
func (s *Skipper) VideoID() string {
	return s.videoID
}

// Load installs segments for videoID. It returns false and changes nothing
// when videoID is not the current media, so late fetch results are dropped.
// Segments with the same start offset in one collection keep the first seen.
func (s *Skipper) Load(videoID string, segs []Segment) bool {
	if videoID != s.videoID {
		return false
	}

	s.highlight = nil
	s.label = nil
	skips := make(map[float64]Segment)
	mutes := make(map[float64]Segment)
	for _, seg := range segs {
		switch seg.Action {
		case ActionSkip, "":
			if seg.End > seg.Start {
				if _, dup := skips[seg.Start]; !dup {
					seg.Action = ActionSkip
					skips[seg.Start] = seg
				}
			}
		case ActionMute:
			if seg.End > seg.Start {
				if _, dup := mutes[seg.Start]; !dup {
					mutes[seg.Start] = seg
				}
			}
		case ActionPOI:
			if s.highlight == nil {
				seg := seg
				s.highlight = &seg
			}
		case ActionFull:
			if s.label == nil {
				seg := seg
				s.label = &seg
			}
		}
	}

	s.skips = ordered(skips)
	s.mutes = ordered(mutes)
	s.muting = -1
	return true
}

// entry is a segment plus whether it can still fire for this video.
type entry struct {
	Segment
	consumed bool
}

func ordered(m map[float64]Segment) []*entry {
	out := make([]*entry, 0, len(m))
	for _, seg := range m {
		out = append(out, &entry{Segment: seg})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

// Highlight returns the point-of-interest segment, if the video has one.
func (s *Skipper) Highlight() (Segment, bool) {
	if s.highlight == nil {
		return Segment{}, false
	}
	return *s.highlight, true
}

// Label returns the whole-video label segment, if the video has one.
func (s *Skipper) Label() (Segment, bool) {
	if s.label == nil {
		return Segment{}, false
	}
	return *s.label, true
}

// Pending returns how many skip and mute segments can still fire.
func (s *Skipper) Pending() int {
	n := 0
	for _, e := range s.skips {
		if !e.consumed {
			n++
		}
	}
	for _, e := range s.mutes {
		if !e.consumed {
			n++
		}
	}
	return n
}

// Tick evaluates playback position t.
func (s *Skipper) Tick(t float64) Result {
	var res Result

	pos := t
	if landing, ok := s.skip(t, &res); ok {
		res.Seek = true
		res.SeekTo = landing
		pos = landing
	}
	s.mute(pos, &res)
	return res
}

func (s *Skipper) skip(t float64, res *Result) (float64, bool) {
	first := -1
	for i, e := range s.skips {
		if e.consumed {
			continue
		}
		if e.Start-LeadTolerance <= t && t <= e.Start+LateTolerance {
			first = i
			break
		}
	}
	if first < 0 {
		return 0, false
	}

	from := s.skips[first].Start
	landing := s.skips[first].End
	s.consume(s.skips[first], res)

	// Landing only grows, so repeat until a pass consumes nothing. Segments
	// starting before the trigger are ones playback was already inside of.
	for changed := true; changed; {
		changed = false
		for _, e := range s.skips {
			if e.consumed || e.Start < from {
				continue
			}
			if e.Start-CascadeGap <= landing && e.End > t {
				s.consume(e, res)
				if e.End > landing {
					landing = e.End
				}
				changed = true
			}
		}
	}
	return landing, true
}

func (s *Skipper) mute(t float64, res *Result) {
	if s.muting >= 0 {
		e := s.mutes[s.muting]
		switch {
		case t >= e.End:
			s.muting = -1
			e.consumed = true
			res.Mute = MuteOff
		case t < e.Start-LeadTolerance:
			// Seeked back before the window: unmute, keep it pending.
			s.muting = -1
			res.Mute = MuteOff
		default:
			return
		}
	}

	for i, e := range s.mutes {
		if e.consumed {
			continue
		}
		if e.Start-LeadTolerance <= t && t < e.End {
			s.muting = i
			if res.Mute == MuteOff {
				// Leaving one window straight into the next keeps sound off.
				res.Mute = MuteUnchanged
			} else {
				res.Mute = MuteOn
			}
			s.report(e.Segment, res)
			return
		}
	}
}

func (s *Skipper) consume(e *entry, res *Result) {
	e.consumed = true
	s.report(e.Segment, res)
}

func (s *Skipper) report(seg Segment, res *Result) {
	if seg.UUID == "" || s.reported[seg.UUID] {
		return
	}
	s.reported[seg.UUID] = true
	res.Viewed = append(res.Viewed, seg.UUID)
}
