package framework

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/dogpatrol/server/pkg/bootstrap"
	"github.com/dogpatrol/server/pkg/infrastructure/sentry"
)

// FrameworkContext contains dependencies injected by the framework
type FrameworkContext struct {
	Service     *bootstrap.Service
	Logger      *slog.Logger
	ExecutionID string
}

// HandlerFunc is the signature for an HTTP cloud function handler
type HandlerFunc func(w http.ResponseWriter, r *http.Request, fwCtx *FrameworkContext)

// WrapHTTP wraps a handler with a per-invocation execution ID, a
// request-scoped logger and panic capture.
func WrapHTTP(serviceName string, svc *bootstrap.Service, handler HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		execID := uuid.NewString()

		logger := bootstrap.NewLogger(serviceName).With("execution_id", execID)
		defer sentry.RecoverAndCapture(logger)

		logger.Info("Function started", "method", r.Method, "path", r.URL.Path)

		fwCtx := &FrameworkContext{
			Service:     svc,
			Logger:      logger,
			ExecutionID: execID,
		}

		handler(w, r, fwCtx)

		logger.Info("Function completed")
	}
}
