package audit

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// Lister is the read side of the audit log.
type Lister interface {
	List(ctx context.Context, filter ListFilter, pageSize int, pageToken string) ([]Event, string, int, error)
	GetByID(ctx context.Context, id string) (Event, error)
}

// ListEventsHandler handles GET /audit/events
// Query params: documentId, actor, kind, outcome, pageSize, pageToken
func ListEventsHandler(store Lister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filter := ListFilter{
			DocumentID: q.Get("documentId"),
			Actor:      q.Get("actor"),
			Kind:       Kind(q.Get("kind")),
			Outcome:    Outcome(q.Get("outcome")),
		}

		pageSize := 20
		if ps := q.Get("pageSize"); ps != "" {
			if v, err := strconv.Atoi(ps); err == nil && v > 0 {
				pageSize = v
			}
		}

		events, nextToken, total, err := store.List(r.Context(), filter, pageSize, q.Get("pageToken"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to list audit events: "+err.Error())
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"events":        events,
			"nextPageToken": nextToken,
			"totalSize":     total,
		})
	}
}

// GetEventHandler handles GET /audit/events/{eventId}
func GetEventHandler(store Lister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		eventID := chi.URLParam(r, "eventId")
		event, err := store.GetByID(r.Context(), eventID)
		if errors.Is(err, ErrEventNotFound) {
			writeError(w, http.StatusNotFound, "audit event "+strconv.Quote(eventID)+" not found")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to get audit event: "+err.Error())
			return
		}
		writeJSON(w, http.StatusOK, event)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
