// Package segments talks to a SponsorBlock-compatible segment database.
package segments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/entrhq/tubeforge/pkg/cache"
	"github.com/entrhq/tubeforge/pkg/logging"
	"github.com/entrhq/tubeforge/pkg/skip"
)

const (
	// DefaultBaseURL is the public SponsorBlock server.
	DefaultBaseURL = "https://sponsor.ajay.app"
	// DefaultTTL bounds how long a video's segment list is reused.
	DefaultTTL = 30 * time.Minute
)

// DefaultCategories are requested when none are configured.
var DefaultCategories = []string{"sponsor", "selfpromo", "interaction", "intro", "outro", "preview", "music_offtopic", "poi_highlight"}

// DefaultActionTypes are every action the skipper understands.
var DefaultActionTypes = []string{string(skip.ActionSkip), string(skip.ActionMute), string(skip.ActionFull), string(skip.ActionPOI)}

// ErrBadStatus is returned for unexpected HTTP status codes.
var ErrBadStatus = errors.New("segments: unexpected status")

// Client fetches segment lists and reports viewed segments.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	categories  []string
	actionTypes []string
	ttl         time.Duration
	cache       *cache.Cache[[]skip.Segment]
	group       singleflight.Group
	logger      *logging.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default 15s-timeout client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithCategories limits which segment categories are requested.
func WithCategories(categories []string) Option {
	return func(c *Client) {
		if len(categories) > 0 {
			c.categories = categories
		}
	}
}

// WithTTL sets the segment list cache lifetime. Zero disables caching.
func WithTTL(ttl time.Duration) Option {
	return func(c *Client) { c.ttl = ttl }
}

func WithLogger(logger *logging.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// New creates a client for baseURL, or DefaultBaseURL when empty.
func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  &http.Client{Timeout: 15 * time.Second},
		categories:  DefaultCategories,
		actionTypes: DefaultActionTypes,
		ttl:         DefaultTTL,
		cache:       cache.New[[]skip.Segment](),
		logger:      logging.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type wireSegment struct {
	Segment    []float64 `json:"segment"`
	UUID       string    `json:"UUID"`
	Category   string    `json:"category"`
	ActionType string    `json:"actionType"`
}

// Fetch returns the known segments for videoID. A video the server has no
// segments for yields an empty list, not an error. Concurrent calls for one
// video share a single request.
func (c *Client) Fetch(ctx context.Context, videoID string) ([]skip.Segment, error) {
	if videoID == "" {
		return nil, errors.New("segments: empty video id")
	}
	if segs, ok := c.cache.Get(videoID); ok {
		return segs, nil
	}

	v, err, shared := c.group.Do(videoID, func() (interface{}, error) {
		segs, err := c.fetch(ctx, videoID)
		if err != nil {
			return nil, err
		}
		if c.ttl > 0 {
			c.cache.Set(videoID, segs, c.ttl)
		}
		return segs, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		c.logger.Debugf("segment fetch for %s shared", videoID)
	}
	return v.([]skip.Segment), nil
}

func (c *Client) fetch(ctx context.Context, videoID string) ([]skip.Segment, error) {
	categories, err := json.Marshal(c.categories)
	if err != nil {
		return nil, err
	}
	actions, err := json.Marshal(c.actionTypes)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("videoID", videoID)
	q.Set("categories", string(categories))
	q.Set("actionTypes", string(actions))
	endpoint := c.baseURL + "/api/skipSegments?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch segments for %s: %w", videoID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return []skip.Segment{}, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("%w: %s (%s)", ErrBadStatus, resp.Status, strings.TrimSpace(string(body)))
	}

	var wire []wireSegment
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("decode segments for %s: %w", videoID, err)
	}

	out := make([]skip.Segment, 0, len(wire))
	for _, w := range wire {
		if len(w.Segment) != 2 {
			c.logger.Warnf("segment %s for %s has %d bounds, skipping", w.UUID, videoID, len(w.Segment))
			continue
		}
		out = append(out, skip.Segment{
			UUID:     w.UUID,
			Start:    w.Segment[0],
			End:      w.Segment[1],
			Action:   skip.Action(w.ActionType),
			Category: w.Category,
		})
	}
	return out, nil
}

// ReportViewed tells the server a segment was skipped or muted.
func (c *Client) ReportViewed(ctx context.Context, uuid string) error {
	q := url.Values{}
	q.Set("UUID", uuid)
	endpoint := c.baseURL + "/api/viewedVideoSponsorTime?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("report segment %s: %w", uuid, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("report segment %s: %w: %s", uuid, ErrBadStatus, resp.Status)
	}
	return nil
}
