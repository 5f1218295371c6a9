package audit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docflow/edms/pkg/authn"
	"github.com/docflow/edms/pkg/lifecycle"
)

type memRecorder struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (m *memRecorder) Record(_ context.Context, e Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, e)
	return nil
}

func statusHandler(code int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(code)
	})
}

func TestMiddleware_RecordsMutatingRequest(t *testing.T) {
	rec := &memRecorder{}
	handler := Middleware(rec, DefaultConfig(), nil)(statusHandler(http.StatusOK))

	req := httptest.NewRequest(http.MethodPut, "/documents/doc-7/status", nil)
	req = req.WithContext(authn.WithActor(req.Context(), lifecycle.Actor{ID: "bob", Department: "quality"}))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	require.Len(t, rec.events, 1)
	e := rec.events[0]
	assert.Equal(t, KindRequest, e.Kind)
	assert.Equal(t, "doc-7", e.DocumentID)
	assert.Equal(t, "bob", e.Actor)
	assert.Equal(t, "quality", e.ActorDepartment)
	assert.Equal(t, "change-status", e.Action)
	assert.Equal(t, OutcomeSuccess, e.Outcome)
	assert.Equal(t, http.StatusOK, e.StatusCode)
	assert.Equal(t, "PUT", e.Metadata["method"])
}

func TestMiddleware_Skips(t *testing.T) {
	tests := []struct {
		name   string
		cfg    Config
		method string
		path   string
		code   int
	}{
		{"reads", DefaultConfig(), http.MethodGet, "/documents/doc-1", http.StatusOK},
		{"health", DefaultConfig(), http.MethodPost, "/healthz", http.StatusOK},
		{"disabled", Config{Enabled: false, LogDenied: true}, http.MethodPost, "/documents", http.StatusCreated},
		{"denied not logged", Config{Enabled: true, LogDenied: false}, http.MethodPut, "/documents/doc-1/status", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &memRecorder{}
			w := httptest.NewRecorder()
			Middleware(rec, tt.cfg, nil)(statusHandler(tt.code)).ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.code, w.Code)
			assert.Empty(t, rec.events)
		})
	}
}

func TestMiddleware_DeniedAndAnonymous(t *testing.T) {
	rec := &memRecorder{}
	handler := Middleware(rec, DefaultConfig(), nil)(statusHandler(http.StatusForbidden))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/documents/doc-2/versions", nil))

	require.Len(t, rec.events, 1)
	assert.Equal(t, "anonymous", rec.events[0].Actor)
	assert.Equal(t, OutcomeDenied, rec.events[0].Outcome)
	assert.Equal(t, "create-version", rec.events[0].Action)
}

func TestMiddleware_RecorderFailureDoesNotFailRequest(t *testing.T) {
	rec := &memRecorder{err: errors.New("disk full")}
	w := httptest.NewRecorder()
	Middleware(rec, DefaultConfig(), nil)(statusHandler(http.StatusCreated)).
		ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/documents", nil))
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestOutcomeFromStatus(t *testing.T) {
	assert.Equal(t, OutcomeSuccess, outcomeFromStatus(http.StatusNoContent))
	assert.Equal(t, OutcomeDenied, outcomeFromStatus(http.StatusForbidden))
	assert.Equal(t, OutcomeFailure, outcomeFromStatus(http.StatusConflict))
}

func TestHelpers(t *testing.T) {
	assert.Equal(t, "doc-1", documentIDFromPath("/documents/doc-1/versions/compare"))
	assert.Equal(t, "doc-1", documentIDFromPath("/api/v1/documents/doc-1"))
	assert.Equal(t, "", documentIDFromPath("/documents"))

	assert.Equal(t, "create-document", actionFromRequest("POST", "/documents"))
	assert.Equal(t, "create-version", actionFromRequest("POST", "/documents/x/versions"))
	assert.Equal(t, "change-status", actionFromRequest("PUT", "/documents/x/status"))
	assert.Equal(t, "delete", actionFromRequest("DELETE", "/documents/x"))
	assert.Equal(t, "get", actionFromRequest("GET", "/documents/x"))

	assert.True(t, isAudited("PATCH", "/documents/x"))
	assert.False(t, isAudited("GET", "/documents/x"))
	assert.False(t, isAudited("POST", "/readyz"))
}
