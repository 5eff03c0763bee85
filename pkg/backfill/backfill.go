// Package backfill applies the walk-naming logic to historical
// activities, page by page, inside the vendor's rate limits.
package backfill

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dogpatrol/server/pkg/domain/naming"
	"github.com/dogpatrol/server/pkg/strava"
)

// PerPage is the vendor-defined page size used for listing.
const PerPage = 100

// requestDelay spaces consecutive vendor calls (safe margin under the
// 100-requests-per-15-min read limit).
const requestDelay = 200 * time.Millisecond

// API is the slice of the Strava client the driver needs.
type API interface {
	ListActivities(ctx context.Context, params strava.ListActivitiesParams) ([]strava.Activity, error)
	UpdateActivityName(ctx context.Context, activityID int64, name string) error
}

// Stats counts what a run saw and did.
type Stats struct {
	Fetched      int
	Walks        int
	AlreadyNamed int
	ToRename     int
	Renamed      int
	Errors       int
}

// Driver scans the athlete's history inside a time window and renames
// eligible walks. A run keeps no checkpoint; the classifier's
// idempotence makes re-runs over the same window safe and cheap.
type Driver struct {
	API      API
	Timezone *time.Location
	After    time.Time
	DryRun   bool
	Logger   *slog.Logger

	// Sleep is injectable for tests; defaults to a context-aware
	// real sleep.
	Sleep func(ctx context.Context, d time.Duration) error

	Stats Stats
}

func (d *Driver) sleep(ctx context.Context, dur time.Duration) error {
	if d.Sleep != nil {
		return d.Sleep(ctx, dur)
	}
	timer := time.NewTimer(dur)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Run scans and processes the window. Per-activity failures are
// counted and skipped; daily rate-limit exhaustion and page fetch
// failures abort the run.
func (d *Driver) Run(ctx context.Context) error {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("Fetching activities", "after", d.After.Format("2006-01-02"), "dry_run", d.DryRun)

	for page := 1; ; page++ {
		activities, err := d.API.ListActivities(ctx, strava.ListActivitiesParams{
			After:   d.After,
			Page:    page,
			PerPage: PerPage,
		})
		if err != nil {
			return fmt.Errorf("list activities page %d: %w", page, err)
		}
		if len(activities) == 0 {
			break
		}

		d.Stats.Fetched += len(activities)
		logger.Info("Fetched page", "page", page, "count", len(activities))

		for i := range activities {
			stop, err := d.processActivity(ctx, logger, &activities[i])
			if err != nil {
				return err
			}
			if stop {
				d.logSummary(logger)
				return nil
			}
		}

		if err := d.sleep(ctx, requestDelay); err != nil {
			return err
		}
	}

	d.logSummary(logger)
	return nil
}

// processActivity classifies and (outside dry-run) renames one
// activity. The returned stop flag is set once an activity starts
// before the window's lower bound; pages are most-recent-first so
// nothing older can be eligible.
func (d *Driver) processActivity(ctx context.Context, logger *slog.Logger, a *strava.Activity) (stop bool, err error) {
	if a.StartDateLocal != "" {
		start, perr := naming.ParseStartLocal(a.StartDateLocal, d.Timezone)
		if perr == nil && start.Before(d.After) {
			return true, nil
		}
	}

	if a.Type == strava.TypeWalk {
		d.Stats.Walks++
	}

	decision, err := naming.Classify(a, d.Timezone)
	if err != nil {
		logger.Warn("Skipping unclassifiable activity", "activity_id", a.ID, "error", err)
		d.Stats.Errors++
		return false, nil
	}
	if !decision.Rename {
		if decision.AlreadyNamed {
			d.Stats.AlreadyNamed++
			logger.Info("Already correct", "activity_id", a.ID, "name", a.Name)
		}
		return false, nil
	}

	d.Stats.ToRename++

	if d.DryRun {
		logger.Info("[DRY RUN] Would rename activity",
			"activity_id", a.ID, "old_name", a.Name, "new_name", decision.NewName)
		return false, nil
	}

	if err := d.API.UpdateActivityName(ctx, a.ID, decision.NewName); err != nil {
		var dailyErr *strava.DailyLimitError
		if errors.As(err, &dailyErr) {
			return false, dailyErr
		}
		logger.Error("Failed to rename activity", "activity_id", a.ID, "error", err)
		d.Stats.Errors++
		return false, nil
	}

	d.Stats.Renamed++
	logger.Info("Renamed activity",
		"activity_id", a.ID, "old_name", a.Name, "new_name", decision.NewName)

	return false, d.sleep(ctx, requestDelay)
}

func (d *Driver) logSummary(logger *slog.Logger) {
	logger.Info("Backfill summary",
		"fetched", d.Stats.Fetched,
		"walks", d.Stats.Walks,
		"already_named", d.Stats.AlreadyNamed,
		"to_rename", d.Stats.ToRename,
		"renamed", d.Stats.Renamed,
		"errors", d.Stats.Errors,
		"dry_run", d.DryRun,
	)
}
