// Package naming decides what an outdoor walk should be called based
// on its local start time. Pure logic, no I/O.
package naming

import (
	"fmt"
	"strings"
	"time"

	"github.com/dogpatrol/server/pkg/strava"
)

const (
	MorningName = "Morning Shakeout 🐕‍🦺"
	LunchName   = "Lunch Break Sniffari 👃🐕‍🦺"
	EveningName = "Evening Patrol 🐕‍🦺"
)

// Decision is the outcome of classifying one activity.
type Decision struct {
	Rename  bool
	NewName string
	// Reason explains a skip for logging; empty on rename.
	Reason string
	// AlreadyNamed marks the idempotent skip: the activity carries
	// the target name for its bucket.
	AlreadyNamed bool
}

func skip(format string, args ...interface{}) Decision {
	return Decision{Reason: fmt.Sprintf(format, args...)}
}

// Classify decides whether the activity should be renamed and to
// what. Eligible activities are outdoor walks; everything else is
// skipped. An activity already carrying the target name is skipped,
// which is what makes webhook "update" loops and repeated backfill
// runs harmless.
func Classify(a *strava.Activity, loc *time.Location) (Decision, error) {
	if a.Type != strava.TypeWalk {
		return skip("type=%s (not %s)", a.Type, strava.TypeWalk), nil
	}
	if a.Trainer {
		return skip("trainer=true (indoor activity)"), nil
	}
	if a.StartDateLocal == "" {
		return Decision{}, fmt.Errorf("activity %d missing start_date_local", a.ID)
	}

	start, err := ParseStartLocal(a.StartDateLocal, loc)
	if err != nil {
		return Decision{}, fmt.Errorf("activity %d: %w", a.ID, err)
	}

	target := NameForTime(start)
	if a.Name == target {
		d := skip("already named %q", target)
		d.AlreadyNamed = true
		return d, nil
	}

	return Decision{Rename: true, NewName: target}, nil
}

// ParseStartLocal parses Strava's start_date_local field. The value
// is already local wall-clock time but carries a literal Z suffix, so
// it must be interpreted in the configured zone, not UTC.
func ParseStartLocal(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	trimmed := strings.TrimSuffix(s, "Z")
	t, err := time.ParseInLocation("2006-01-02T15:04:05", trimmed, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse start_date_local %q: %w", s, err)
	}
	return t, nil
}

// NameForTime maps a local start time to its bucket name:
//
//	[04:00, 11:00) morning
//	[11:00, 14:00) lunch
//	[14:00, 04:00) evening (wraps midnight)
//
// The three buckets cover the full 24-hour cycle with no gap.
func NameForTime(t time.Time) string {
	hour := t.Hour()
	switch {
	case hour >= 4 && hour < 11:
		return MorningName
	case hour >= 11 && hour < 14:
		return LunchName
	default:
		return EveningName
	}
}
