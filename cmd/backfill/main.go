// Command backfill renames historical outdoor walks using the same
// time-of-day logic as the webhook function.
//
// Usage:
//
//	# Preview the last 30 days without changing anything
//	backfill --dry-run --days 30
//
//	# Rename the last 6 months (default window)
//	backfill
//
//	# Standalone mode: skip Firestore, supply the token directly
//	backfill --months 6 --refresh-token YOUR_TOKEN
//
// Credentials come from STRAVA_CLIENT_ID and STRAVA_CLIENT_SECRET.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/dogpatrol/server/pkg/backfill"
	"github.com/dogpatrol/server/pkg/bootstrap"
	"github.com/dogpatrol/server/pkg/infrastructure/database"
	"github.com/dogpatrol/server/pkg/infrastructure/oauth"
	"github.com/dogpatrol/server/pkg/strava"
)

const tokenRetries = 3

func main() {
	os.Exit(run())
}

func run() int {
	dryRun := flag.Bool("dry-run", false, "Preview changes without renaming")
	days := flag.Int("days", 0, "Number of days to look back")
	months := flag.Int("months", 0, "Number of months to look back (mutually exclusive with --days)")
	timezone := flag.String("timezone", "", "Timezone for activity times (overrides TIMEZONE env)")
	refreshToken := flag.String("refresh-token", "", "Strava refresh token (standalone mode, skips Firestore)")
	flag.Parse()

	bootstrap.InitLogger()
	logger := bootstrap.NewLogger("backfill")

	if *days != 0 && *months != 0 {
		fmt.Fprintln(os.Stderr, "--days and --months are mutually exclusive")
		return 2
	}

	if *timezone != "" {
		os.Setenv("TIMEZONE", *timezone)
	}
	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		logger.Error("Config load failed", "error", err)
		return 1
	}
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		logger.Error("STRAVA_CLIENT_ID and STRAVA_CLIENT_SECRET must be set")
		return 1
	}

	lookback := 180 // default: 6 months
	switch {
	case *days != 0:
		lookback = *days
	case *months != 0:
		lookback = *months * 30
	}
	// The window bound lives in the activities' zone so the lower-bound
	// comparison against wall-clock start times is exact regardless of
	// where the process runs.
	after := time.Now().In(cfg.Timezone).AddDate(0, 0, -lookback)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// Every vendor call, token refreshes included, goes through the
	// gate so the window accounting stays exact.
	gate := strava.NewGate(nil, logger)
	refreshClient := &http.Client{Transport: gate, Timeout: 30 * time.Second}

	var tokenSource oauth.TokenSource
	if *refreshToken != "" {
		logger.Info("Using provided refresh token (standalone mode)")
		tokenSource = oauth.NewStaticTokenSource(*refreshToken, cfg.ClientID, cfg.ClientSecret, refreshClient)
	} else {
		fsClient, err := firestore.NewClient(ctx, cfg.ProjectID)
		if err != nil {
			logger.Error("Firestore init failed", "error", err)
			return 1
		}
		defer fsClient.Close()
		tokenSource = oauth.NewConfigTokenSource(database.NewFirestoreAdapter(fsClient), cfg.ClientID, cfg.ClientSecret, refreshClient)
	}

	logger.Info("Getting access token")
	if err := warmUpToken(ctx, tokenSource, logger); err != nil {
		logger.Error("Failed to get access token", "error", err)
		return 1
	}

	driver := &backfill.Driver{
		API:      strava.NewClient(oauth.NewHTTPClientWithBase(tokenSource, gate)),
		Timezone: cfg.Timezone,
		After:    after,
		DryRun:   *dryRun,
		Logger:   logger,
	}

	if err := driver.Run(ctx); err != nil {
		var dailyErr *strava.DailyLimitError
		if errors.As(err, &dailyErr) {
			logger.Error("Daily rate limit exhausted, aborting run",
				"usage", dailyErr.Usage, "limit", dailyErr.Limit,
				"reset_at", dailyErr.ResetAt.Format(time.RFC3339))
			return 1
		}
		logger.Error("Backfill failed", "error", err)
		return 1
	}

	if *dryRun {
		logger.Info("Dry run complete - no changes were made")
	}
	return 0
}

// warmUpToken obtains the first access token with bounded retries on
// transient failures. An AuthError is surfaced immediately: a rejected
// refresh token never recovers by retrying.
func warmUpToken(ctx context.Context, source oauth.TokenSource, logger *slog.Logger) error {
	var lastErr error
	for attempt := 1; attempt <= tokenRetries; attempt++ {
		_, err := source.Token(ctx)
		if err == nil {
			return nil
		}

		var authErr *oauth.AuthError
		if errors.As(err, &authErr) {
			return err
		}

		lastErr = err
		if attempt < tokenRetries {
			logger.Warn("Token refresh failed, retrying",
				"attempt", attempt, "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * 2 * time.Second):
			}
		}
	}
	return lastErr
}
