package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"

	shared "github.com/dogpatrol/server/pkg"
	"github.com/dogpatrol/server/pkg/bootstrap"
	"github.com/dogpatrol/server/pkg/domain/naming"
	"github.com/dogpatrol/server/pkg/framework"
	"github.com/dogpatrol/server/pkg/infrastructure/oauth"
	"github.com/dogpatrol/server/pkg/infrastructure/sentry"
	"github.com/dogpatrol/server/pkg/strava"
)

var (
	svc     *bootstrap.Service
	svcOnce sync.Once
	svcErr  error
)

func init() {
	functions.HTTP("StravaWebhook", StravaWebhook)
}

func initService(ctx context.Context) (*bootstrap.Service, error) {
	if svc != nil {
		return svc, nil
	}
	svcOnce.Do(func() {
		baseSvc, err := bootstrap.NewService(ctx)
		if err != nil {
			slog.Error("Failed to initialize service", "error", err)
			svcErr = err
			return
		}
		if err := sentry.Init("strava-webhook", slog.Default()); err != nil {
			slog.Warn("Sentry init failed, continuing without it", "error", err)
		}
		svc = baseSvc
	})
	return svc, svcErr
}

// RenameEvent is the audit record published after a successful rename.
type RenameEvent struct {
	ActivityID  int64  `json:"activity_id"`
	OldName     string `json:"old_name"`
	NewName     string `json:"new_name"`
	ExecutionID string `json:"execution_id"`
}

// StravaWebhook is the HTTP entry point for the Strava webhook.
// GET handles the subscription verification handshake, POST handles
// event deliveries.
func StravaWebhook(w http.ResponseWriter, r *http.Request) {
	svc, err := initService(r.Context())
	if err != nil {
		slog.Error("Service init failed", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	framework.WrapHTTP("strava-webhook", svc, webhookHandler(nil))(w, r)
}

// webhookHandler contains the request dispatch.
// httpClient can be injected for testing; if nil, an OAuth client is
// built per event.
func webhookHandler(httpClient *http.Client) framework.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, fwCtx *framework.FrameworkContext) {
		switch r.Method {
		case http.MethodGet:
			handleVerification(w, r, fwCtx)
		case http.MethodPost:
			handleEvent(w, r, fwCtx, httpClient)
		default:
			fwCtx.Logger.Warn("Unsupported method", "method", r.Method)
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		}
	}
}

// handleVerification answers the subscription handshake: echo the
// challenge back if the supplied verify token matches the stored one.
// No vendor calls happen on this path.
func handleVerification(w http.ResponseWriter, r *http.Request, fwCtx *framework.FrameworkContext) {
	q := r.URL.Query()
	mode := q.Get("hub.mode")
	challenge := q.Get("hub.challenge")
	verifyToken := q.Get("hub.verify_token")

	fwCtx.Logger.Info("Webhook verification request", "mode", mode, "challenge", challenge)

	if mode == "" || challenge == "" || verifyToken == "" {
		fwCtx.Logger.Warn("Missing required verification parameters")
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	cfg, err := fwCtx.Service.DB.GetStravaConfig(r.Context())
	if err != nil {
		fwCtx.Logger.Error("Failed to read strava config", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if cfg.VerifyToken == "" {
		fwCtx.Logger.Error("verify_token not found in strava config")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	if verifyToken != cfg.VerifyToken {
		fwCtx.Logger.Warn("Verify token mismatch")
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	fwCtx.Logger.Info("Webhook verification successful")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"hub.challenge": challenge})
}

// handleEvent ingests one event delivery. Strava expects a fast 200
// acknowledgment and retries on anything else, so every failure past
// body parsing is logged and captured but still answered with 200.
func handleEvent(w http.ResponseWriter, r *http.Request, fwCtx *framework.FrameworkContext, httpClient *http.Client) {
	var ev strava.WebhookEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		fwCtx.Logger.Warn("Malformed event body", "error", err)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	fwCtx.Logger.Info("Received event",
		"object_type", ev.ObjectType, "aspect_type", ev.AspectType, "object_id", ev.ObjectID)

	if ev.ObjectType != strava.ObjectTypeActivity || ev.AspectType != strava.AspectCreate {
		// Delete/update events are ignored on purpose: renaming on
		// update would loop with our own rename writes.
		fwCtx.Logger.Info("Skipping event",
			"object_type", ev.ObjectType, "aspect_type", ev.AspectType)
		ack(w)
		return
	}

	if err := processCreateEvent(r.Context(), fwCtx, httpClient, &ev); err != nil {
		fwCtx.Logger.Error("Failed to process event", "object_id", ev.ObjectID, "error", err)
		sentry.CaptureException(err, map[string]interface{}{
			"object_id":    ev.ObjectID,
			"execution_id": fwCtx.ExecutionID,
		}, fwCtx.Logger)
		sentry.Flush(2 * time.Second)
	}

	ack(w)
}

func processCreateEvent(ctx context.Context, fwCtx *framework.FrameworkContext, httpClient *http.Client, ev *strava.WebhookEvent) error {
	cfg := fwCtx.Service.Config

	if httpClient == nil {
		tokenSource := oauth.NewConfigTokenSource(fwCtx.Service.DB, cfg.ClientID, cfg.ClientSecret, nil)
		httpClient = oauth.NewHTTPClient(tokenSource)
	}
	api := strava.NewClient(httpClient)

	activity, err := api.GetActivity(ctx, ev.ObjectID)
	if err != nil {
		return fmt.Errorf("fetch activity %d: %w", ev.ObjectID, err)
	}

	decision, err := naming.Classify(activity, cfg.Timezone)
	if err != nil {
		return fmt.Errorf("classify activity %d: %w", ev.ObjectID, err)
	}
	if !decision.Rename {
		fwCtx.Logger.Info("Skipping activity", "object_id", ev.ObjectID, "reason", decision.Reason)
		return nil
	}

	if err := api.UpdateActivityName(ctx, ev.ObjectID, decision.NewName); err != nil {
		return fmt.Errorf("rename activity %d: %w", ev.ObjectID, err)
	}

	fwCtx.Logger.Info("Renamed activity",
		"object_id", ev.ObjectID, "old_name", activity.Name, "new_name", decision.NewName)

	publishRenameEvent(ctx, fwCtx, &RenameEvent{
		ActivityID:  ev.ObjectID,
		OldName:     activity.Name,
		NewName:     decision.NewName,
		ExecutionID: fwCtx.ExecutionID,
	})

	return nil
}

// publishRenameEvent emits the audit record. Failures are
// observability-only and never fail the event.
func publishRenameEvent(ctx context.Context, fwCtx *framework.FrameworkContext, ev *RenameEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		fwCtx.Logger.Warn("Failed to marshal rename event", "error", err)
		return
	}
	if _, err := fwCtx.Service.Pub.Publish(ctx, shared.TopicRenameEvents, data); err != nil {
		fwCtx.Logger.Warn("Failed to publish rename event", "error", err)
	}
}

func ack(w http.ResponseWriter) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}
