package strava

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRateLimit(t *testing.T) {
	h := http.Header{}
	h.Set("X-ReadRateLimit-Limit", "100,1000")
	h.Set("X-ReadRateLimit-Usage", "42,408")

	rl := ParseRateLimit(h)
	require.NotNil(t, rl)
	assert.Equal(t, 42, rl.ShortUsage)
	assert.Equal(t, 100, rl.ShortLimit)
	assert.Equal(t, 408, rl.DailyUsage)
	assert.Equal(t, 1000, rl.DailyLimit)
	assert.False(t, rl.ShortExhausted())
	assert.False(t, rl.DailyExhausted())
}

func TestParseRateLimitPrefersReadHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("X-RateLimit-Limit", "200,2000")
	h.Set("X-RateLimit-Usage", "10,20")
	h.Set("X-ReadRateLimit-Limit", "100,1000")
	h.Set("X-ReadRateLimit-Usage", "99,500")

	rl := ParseRateLimit(h)
	require.NotNil(t, rl)
	assert.Equal(t, 100, rl.ShortLimit)
	assert.Equal(t, 99, rl.ShortUsage)
}

func TestParseRateLimitFallsBackToOverall(t *testing.T) {
	h := http.Header{}
	h.Set("X-RateLimit-Limit", "200,2000")
	h.Set("X-RateLimit-Usage", "150,300")

	rl := ParseRateLimit(h)
	require.NotNil(t, rl)
	assert.Equal(t, 200, rl.ShortLimit)
	assert.Equal(t, 150, rl.ShortUsage)
	assert.Equal(t, 2000, rl.DailyLimit)
	assert.Equal(t, 300, rl.DailyUsage)
}

func TestParseRateLimitMissingOrMalformed(t *testing.T) {
	assert.Nil(t, ParseRateLimit(http.Header{}))

	h := http.Header{}
	h.Set("X-ReadRateLimit-Limit", "nonsense")
	h.Set("X-ReadRateLimit-Usage", "1,2")
	assert.Nil(t, ParseRateLimit(h))
}

func TestNextShortReset(t *testing.T) {
	tests := []struct {
		now  string
		want string
	}{
		{"2025-06-01T10:00:00Z", "2025-06-01T10:15:00Z"},
		{"2025-06-01T10:07:12Z", "2025-06-01T10:15:00Z"},
		{"2025-06-01T10:15:00Z", "2025-06-01T10:30:00Z"},
		{"2025-06-01T10:44:59Z", "2025-06-01T10:45:00Z"},
		{"2025-06-01T10:59:30Z", "2025-06-01T11:00:00Z"},
		{"2025-06-01T23:50:00Z", "2025-06-02T00:00:00Z"},
	}
	for _, tt := range tests {
		now, err := time.Parse(time.RFC3339, tt.now)
		require.NoError(t, err)
		assert.Equal(t, tt.want, NextShortReset(now).Format(time.RFC3339), "now=%s", tt.now)
	}
}

func TestNextShortResetHalfHourZone(t *testing.T) {
	// Quarter-hour boundaries are wall-clock; a zone offset that is
	// not a whole hour must not shift them.
	ist := time.FixedZone("IST", 5*3600+1800)
	now := time.Date(2025, 6, 1, 10, 7, 0, 0, ist)
	want := time.Date(2025, 6, 1, 10, 15, 0, 0, ist)
	got := NextShortReset(now)
	assert.True(t, got.Equal(want), "got %s, want %s", got, want)
}

func TestNextDailyReset(t *testing.T) {
	now, _ := time.Parse(time.RFC3339, "2025-06-01T18:30:00Z")
	assert.Equal(t, "2025-06-02T00:00:00Z", NextDailyReset(now).Format(time.RFC3339))
}

// headerTransport serves a scripted sequence of responses and records
// how many requests reached it.
type headerTransport struct {
	responses []*http.Response
	calls     int
}

func (h *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	i := h.calls
	if i >= len(h.responses) {
		i = len(h.responses) - 1
	}
	h.calls++
	resp := h.responses[i]
	resp.Request = req
	return resp, nil
}

func limitedResponse(status int, usage, limit string) *http.Response {
	h := http.Header{}
	if limit != "" {
		h.Set("X-ReadRateLimit-Limit", limit)
		h.Set("X-ReadRateLimit-Usage", usage)
	}
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Header:     h,
		Body:       io.NopCloser(strings.NewReader("{}")),
	}
}

func testGate(base http.RoundTripper, now time.Time, slept *[]time.Duration) *Gate {
	g := NewGate(base, slog.New(slog.NewTextHandler(io.Discard, nil)))
	g.Now = func() time.Time { return now }
	g.Sleep = func(ctx context.Context, d time.Duration) error {
		*slept = append(*slept, d)
		return nil
	}
	return g
}

func TestGateRecordsUsage(t *testing.T) {
	base := &headerTransport{responses: []*http.Response{
		limitedResponse(200, "42,408", "100,1000"),
	}}
	var slept []time.Duration
	now, _ := time.Parse(time.RFC3339, "2025-06-01T10:07:00Z")
	gate := testGate(base, now, &slept)

	req, _ := http.NewRequest("GET", "https://www.strava.com/api/v3/athlete/activities", nil)
	resp, err := gate.RoundTrip(req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Empty(t, slept)

	snap := gate.Snapshot()
	require.NotNil(t, snap)
	assert.Equal(t, 42, snap.ShortUsage)
	assert.Equal(t, 408, snap.DailyUsage)
}

func TestGateSuspendsOnShortExhaustion(t *testing.T) {
	base := &headerTransport{responses: []*http.Response{
		limitedResponse(200, "100,408", "100,1000"),
		limitedResponse(200, "1,409", "100,1000"),
	}}
	var slept []time.Duration
	now, _ := time.Parse(time.RFC3339, "2025-06-01T10:07:00Z")
	gate := testGate(base, now, &slept)

	req, _ := http.NewRequest("GET", "https://www.strava.com/api/v3/activities/1", nil)
	_, err := gate.RoundTrip(req)
	require.NoError(t, err)
	assert.Empty(t, slept, "first request goes straight through")

	// Second request sees the spent window: it must wait until the
	// next quarter-hour boundary (10:15) plus the safety buffer.
	req2, _ := http.NewRequest("GET", "https://www.strava.com/api/v3/activities/2", nil)
	_, err = gate.RoundTrip(req2)
	require.NoError(t, err)
	require.Len(t, slept, 1)
	assert.Equal(t, 8*time.Minute+gate.Buffer, slept[0])
}

func TestGateDailyExhaustionIsFatal(t *testing.T) {
	base := &headerTransport{responses: []*http.Response{
		limitedResponse(200, "42,1000", "100,1000"),
	}}
	var slept []time.Duration
	now, _ := time.Parse(time.RFC3339, "2025-06-01T18:30:00Z")
	gate := testGate(base, now, &slept)

	req, _ := http.NewRequest("GET", "https://www.strava.com/api/v3/activities/1", nil)
	_, err := gate.RoundTrip(req)
	require.NoError(t, err)

	req2, _ := http.NewRequest("GET", "https://www.strava.com/api/v3/activities/2", nil)
	_, err = gate.RoundTrip(req2)
	require.Error(t, err)

	var dailyErr *DailyLimitError
	require.ErrorAs(t, err, &dailyErr)
	assert.Equal(t, 1000, dailyErr.Usage)
	assert.Equal(t, 1000, dailyErr.Limit)
	assert.Equal(t, "2025-06-02T00:00:00Z", dailyErr.ResetAt.Format(time.RFC3339))
	assert.Empty(t, slept, "daily exhaustion never sleeps")
	assert.Equal(t, 1, base.calls, "no second request goes out")
}

func TestGateRetriesAfter429(t *testing.T) {
	base := &headerTransport{responses: []*http.Response{
		limitedResponse(429, "100,408", "100,1000"),
		limitedResponse(200, "1,409", "100,1000"),
	}}
	var slept []time.Duration
	now, _ := time.Parse(time.RFC3339, "2025-06-01T10:07:00Z")
	gate := testGate(base, now, &slept)

	req, _ := http.NewRequest("GET", "https://www.strava.com/api/v3/activities/1", nil)
	resp, err := gate.RoundTrip(req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	require.Len(t, slept, 1, "waits for the window before retrying")
}

func TestGate429WithoutHeadersStillSuspends(t *testing.T) {
	base := &headerTransport{responses: []*http.Response{
		limitedResponse(429, "", ""),
		limitedResponse(200, "1,10", "100,1000"),
	}}
	var slept []time.Duration
	now, _ := time.Parse(time.RFC3339, "2025-06-01T10:07:00Z")
	gate := testGate(base, now, &slept)

	req, _ := http.NewRequest("GET", "https://www.strava.com/api/v3/activities/1", nil)
	resp, err := gate.RoundTrip(req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	require.Len(t, slept, 1)
}
