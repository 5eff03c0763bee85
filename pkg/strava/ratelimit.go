package strava

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimit is the usage snapshot parsed from Strava response headers.
// Strava publishes two limit pairs: the overall X-RateLimit-* pair and
// the stricter non-upload X-ReadRateLimit-* pair. The read pair is the
// limiting factor for activity fetches and renames, so it takes
// precedence when present.
type RateLimit struct {
	ShortUsage int
	ShortLimit int
	DailyUsage int
	DailyLimit int
}

func (rl *RateLimit) ShortExhausted() bool {
	return rl.ShortLimit > 0 && rl.ShortUsage >= rl.ShortLimit
}

func (rl *RateLimit) DailyExhausted() bool {
	return rl.DailyLimit > 0 && rl.DailyUsage >= rl.DailyLimit
}

// ParseRateLimit extracts rate-limit state from response headers.
// Returns nil when the response carries no usable limit headers
// (e.g. error pages served before the API layer).
func ParseRateLimit(h http.Header) *RateLimit {
	limitHeader := h.Get("X-ReadRateLimit-Limit")
	usageHeader := h.Get("X-ReadRateLimit-Usage")
	if limitHeader == "" || usageHeader == "" {
		limitHeader = h.Get("X-RateLimit-Limit")
		usageHeader = h.Get("X-RateLimit-Usage")
	}
	if limitHeader == "" || usageHeader == "" {
		return nil
	}

	shortLimit, dailyLimit, ok := parsePair(limitHeader)
	if !ok {
		return nil
	}
	shortUsage, dailyUsage, ok := parsePair(usageHeader)
	if !ok {
		return nil
	}

	return &RateLimit{
		ShortUsage: shortUsage,
		ShortLimit: shortLimit,
		DailyUsage: dailyUsage,
		DailyLimit: dailyLimit,
	}
}

// parsePair splits a "105,408" style header value.
func parsePair(v string) (short, daily int, ok bool) {
	parts := strings.SplitN(v, ",", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	short, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, false
	}
	daily, err = strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, false
	}
	return short, daily, true
}

// NextShortReset returns the next 15-minute window boundary. Strava
// resets the short window at :00, :15, :30 and :45 past each hour.
// Computed from wall-clock components so half-hour-offset zones land
// on the real boundary.
func NextShortReset(now time.Time) time.Time {
	next := 15 * (now.Minute()/15 + 1)
	hour := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), 0, 0, 0, now.Location())
	return hour.Add(time.Duration(next) * time.Minute)
}

// NextDailyReset returns the next daily window boundary (midnight UTC).
func NextDailyReset(now time.Time) time.Time {
	u := now.UTC()
	return time.Date(u.Year(), u.Month(), u.Day()+1, 0, 0, 0, 0, time.UTC)
}

// DailyLimitError means the daily request budget is spent. Waiting it
// out in-process would mean sleeping for hours, so it is fatal for the
// current run and reported with the reset time.
type DailyLimitError struct {
	Usage   int
	Limit   int
	ResetAt time.Time
}

func (e *DailyLimitError) Error() string {
	return fmt.Sprintf("daily rate limit exhausted (%d/%d), resets at %s",
		e.Usage, e.Limit, e.ResetAt.Format(time.RFC3339))
}

// Gate is an http.RoundTripper that keeps request cadence inside
// Strava's published limits. It records the limit headers of every
// response passing through it, suspends cooperatively until the next
// quarter-hour boundary when the short window is spent, retries 429s a
// bounded number of times, and fails fast when the daily window is
// spent. Clock and sleep are injectable for deterministic tests.
type Gate struct {
	// Base is the RoundTripper used for the actual requests.
	// If nil, http.DefaultTransport is used.
	Base http.RoundTripper

	// Now and Sleep default to the real clock.
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error

	// Buffer is added to every wait so the window has actually
	// rolled over when the next request goes out.
	Buffer time.Duration

	// MaxAttempts bounds 429 retries for a single request.
	MaxAttempts int

	Logger *slog.Logger

	mu   sync.Mutex
	last *RateLimit
}

func NewGate(base http.RoundTripper, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		Base:        base,
		Now:         time.Now,
		Sleep:       sleepContext,
		Buffer:      5 * time.Second,
		MaxAttempts: 3,
		Logger:      logger,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Snapshot returns a copy of the most recently observed rate-limit
// state, or nil if no response has been seen yet.
func (g *Gate) Snapshot() *RateLimit {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.last == nil {
		return nil
	}
	cp := *g.last
	return &cp
}

func (g *Gate) RoundTrip(req *http.Request) (*http.Response, error) {
	base := g.Base
	if base == nil {
		base = http.DefaultTransport
	}

	attempts := g.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var resp *http.Response
	for attempt := 1; ; attempt++ {
		if err := g.wait(req.Context()); err != nil {
			return nil, err
		}

		if attempt > 1 && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, fmt.Errorf("rewind request body: %w", err)
			}
			req.Body = body
		}

		var err error
		resp, err = base.RoundTrip(req)
		if err != nil {
			return nil, err
		}

		g.record(resp)

		if resp.StatusCode != http.StatusTooManyRequests || attempt >= attempts {
			return resp, nil
		}

		resp.Body.Close()
		g.Logger.Warn("Rate limited (429), waiting for window reset",
			"attempt", attempt, "max_attempts", attempts, "url", req.URL.Path)
	}
}

// wait blocks until the request may be issued. Daily exhaustion is
// returned as an error rather than waited out.
func (g *Gate) wait(ctx context.Context) error {
	g.mu.Lock()
	last := g.last
	g.mu.Unlock()

	if last == nil {
		return nil
	}

	if last.DailyExhausted() {
		return &DailyLimitError{
			Usage:   last.DailyUsage,
			Limit:   last.DailyLimit,
			ResetAt: NextDailyReset(g.Now()),
		}
	}

	if last.ShortExhausted() {
		now := g.Now()
		reset := NextShortReset(now)
		wait := reset.Sub(now) + g.Buffer
		g.Logger.Info("Short rate-limit window exhausted, suspending",
			"usage", last.ShortUsage, "limit", last.ShortLimit,
			"reset_at", reset.Format(time.RFC3339), "wait", wait.String())
		if err := g.Sleep(ctx, wait); err != nil {
			return err
		}
		g.mu.Lock()
		if g.last != nil {
			g.last.ShortUsage = 0
		}
		g.mu.Unlock()
	}

	return nil
}

// record captures the rate-limit headers of a response. A 429 without
// usable headers still marks the short window as spent so the next
// call waits for the boundary.
func (g *Gate) record(resp *http.Response) {
	rl := ParseRateLimit(resp.Header)

	g.mu.Lock()
	defer g.mu.Unlock()

	if rl != nil {
		g.last = rl
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		if g.last == nil || g.last.ShortLimit == 0 {
			g.last = &RateLimit{ShortUsage: 1, ShortLimit: 1}
		} else if !g.last.DailyExhausted() {
			g.last.ShortUsage = g.last.ShortLimit
		}
	}
}
