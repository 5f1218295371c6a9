package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/docflow/edms/pkg/authn"
	"github.com/docflow/edms/pkg/lifecycle"
	"github.com/docflow/edms/pkg/store"
)

const defaultPageSize = 20

type handlers struct {
	docs   Documents
	logger *slog.Logger
}

// StatusChangeRequest is the body of PUT /documents/{id}/status.
type StatusChangeRequest struct {
	Status  lifecycle.Status `json:"status"`
	Comment string           `json:"comment,omitempty"`
}

// IntegrityResponse reports whether the stored history replays cleanly.
type IntegrityResponse struct {
	Consistent bool   `json:"consistent"`
	Detail     string `json:"detail,omitempty"`
}

func actorOf(w http.ResponseWriter, r *http.Request) (lifecycle.Actor, bool) {
	actor, ok := authn.ActorFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthenticated", Message: "no actor on request"})
	}
	return actor, ok
}

func clientInfo(r *http.Request) lifecycle.ClientInfo {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	return lifecycle.ClientInfo{IPAddress: ip, UserAgent: r.UserAgent()}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		badRequest(w, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

func pageSize(r *http.Request) int {
	if ps := r.URL.Query().Get("pageSize"); ps != "" {
		if v, err := strconv.Atoi(ps); err == nil && v > 0 {
			return v
		}
	}
	return defaultPageSize
}

func (h *handlers) create(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOf(w, r)
	if !ok {
		return
	}
	var draft lifecycle.DocumentDraft
	if !decode(w, r, &draft) {
		return
	}
	c, err := h.docs.Create(r.Context(), actor, draft, clientInfo(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Location", "/documents/"+c.Document.ID)
	writeJSON(w, http.StatusCreated, c)
}

// list handles GET /documents
// Query params: department, status, authorId, pageSize, pageToken
func (h *handlers) list(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOf(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	filter := store.ListFilter{
		Department: q.Get("department"),
		Status:     lifecycle.Status(q.Get("status")),
		AuthorID:   q.Get("authorId"),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		badRequest(w, "unknown status "+strconv.Quote(string(filter.Status)))
		return
	}
	docs, next, err := h.docs.List(r.Context(), actor, filter, pageSize(r), q.Get("pageToken"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"documents":     docs,
		"nextPageToken": next,
	})
}

func (h *handlers) get(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOf(w, r)
	if !ok {
		return
	}
	doc, err := h.docs.Get(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *handlers) changeStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOf(w, r)
	if !ok {
		return
	}
	var req StatusChangeRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Status == "" {
		badRequest(w, "status is required")
		return
	}
	if !req.Status.Valid() {
		badRequest(w, "unknown status "+strconv.Quote(string(req.Status)))
		return
	}
	change, err := h.docs.ChangeStatus(r.Context(), actor, chi.URLParam(r, "id"), req.Status, req.Comment, clientInfo(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, change)
}

func (h *handlers) newVersion(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOf(w, r)
	if !ok {
		return
	}
	var req lifecycle.NewVersionRequest
	if !decode(w, r, &req) {
		return
	}
	nv, err := h.docs.NewVersion(r.Context(), actor, chi.URLParam(r, "id"), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, nv)
}

func (h *handlers) versions(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOf(w, r)
	if !ok {
		return
	}
	versions, err := h.docs.Versions(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"versions": versions})
}

// compare handles GET /documents/{id}/versions/compare?left=&right=
func (h *handlers) compare(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOf(w, r)
	if !ok {
		return
	}
	left, right := r.URL.Query().Get("left"), r.URL.Query().Get("right")
	if left == "" || right == "" {
		badRequest(w, "left and right version ids are required")
		return
	}
	cmp, err := h.docs.Compare(r.Context(), actor, chi.URLParam(r, "id"), left, right)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cmp)
}

func (h *handlers) transitions(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOf(w, r)
	if !ok {
		return
	}
	transitions, err := h.docs.Transitions(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transitions": transitions})
}

func (h *handlers) permissions(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOf(w, r)
	if !ok {
		return
	}
	set, err := h.docs.Permissions(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, set)
}

func (h *handlers) history(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOf(w, r)
	if !ok {
		return
	}
	events, next, total, err := h.docs.History(r.Context(), actor, chi.URLParam(r, "id"), pageSize(r), r.URL.Query().Get("pageToken"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"events":        events,
		"nextPageToken": next,
		"totalSize":     total,
	})
}

// integrity replays the stored history. A broken history is a finding, not
// a failed request, so it is reported with 200.
func (h *handlers) integrity(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOf(w, r)
	if !ok {
		return
	}
	err := h.docs.Verify(r.Context(), actor, chi.URLParam(r, "id"))
	var inconsist *lifecycle.InconsistentHistoryError
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, IntegrityResponse{Consistent: true})
	case errors.As(err, &inconsist):
		writeJSON(w, http.StatusOK, IntegrityResponse{Detail: inconsist.Detail})
	default:
		h.fail(w, r, err)
	}
}
