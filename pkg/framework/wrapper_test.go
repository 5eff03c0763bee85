package framework

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dogpatrol/server/pkg/bootstrap"
	"github.com/dogpatrol/server/pkg/testing/mocks"
)

func TestWrapHTTP(t *testing.T) {
	svc := &bootstrap.Service{
		DB:     &mocks.MockDatabase{},
		Pub:    &mocks.MockPublisher{},
		Config: &bootstrap.Config{},
	}

	var seen *FrameworkContext
	handler := func(w http.ResponseWriter, r *http.Request, fwCtx *FrameworkContext) {
		seen = fwCtx
		w.WriteHeader(http.StatusNoContent)
	}

	wrapped := WrapHTTP("test-service", svc, handler)

	w := httptest.NewRecorder()
	wrapped(w, httptest.NewRequest("GET", "/", nil))

	if w.Code != http.StatusNoContent {
		t.Errorf("handler response not passed through, got %d", w.Code)
	}
	if seen == nil {
		t.Fatal("handler not invoked")
	}
	if seen.Service != svc {
		t.Error("Service not injected correctly")
	}
	if seen.ExecutionID == "" {
		t.Error("ExecutionID not generated")
	}
	if seen.Logger == nil {
		t.Error("Logger not injected")
	}
}

func TestWrapHTTPExecutionIDsAreUnique(t *testing.T) {
	svc := &bootstrap.Service{Config: &bootstrap.Config{}}

	ids := map[string]bool{}
	wrapped := WrapHTTP("test-service", svc, func(w http.ResponseWriter, r *http.Request, fwCtx *FrameworkContext) {
		ids[fwCtx.ExecutionID] = true
	})

	for i := 0; i < 3; i++ {
		wrapped(httptest.NewRecorder(), httptest.NewRequest("POST", "/", nil))
	}
	if len(ids) != 3 {
		t.Errorf("expected 3 distinct execution IDs, got %d", len(ids))
	}
}
