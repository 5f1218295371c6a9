package audit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouter_ListAndGet(t *testing.T) {
	rec := newTestRecorder(t)
	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, rec.Record(ctx, Event{ID: "e1", Kind: KindStatusChanged, DocumentID: "doc-1", Actor: "alice", Outcome: OutcomeSuccess, CreatedAt: now.Add(-time.Minute)}))
	require.NoError(t, rec.Record(ctx, Event{ID: "e2", Kind: KindRequest, DocumentID: "doc-1", Actor: "eve", Outcome: OutcomeDenied, CreatedAt: now}))

	router := Router(rec, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/events?outcome=denied", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Events    []Event `json:"events"`
		TotalSize int     `json:"totalSize"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, 1, body.TotalSize)
	require.Len(t, body.Events, 1)
	assert.Equal(t, "eve", body.Events[0].Actor)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/events/e1", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var ev Event
	require.NoError(t, json.NewDecoder(w.Body).Decode(&ev))
	assert.Equal(t, KindStatusChanged, ev.Kind)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/events/nope", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/events?pageToken=garbage", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestRouter_Guard(t *testing.T) {
	deny := func(http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		})
	}
	w := httptest.NewRecorder()
	Router(newTestRecorder(t), deny).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/events", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)
}
