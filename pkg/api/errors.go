package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/docflow/edms/pkg/lifecycle"
	"github.com/docflow/edms/pkg/store"
)

// Error codes for failures that do not come from the engine.
const (
	CodeInvalidRequest         = "INVALID_REQUEST"
	CodeNotFound               = "NOT_FOUND"
	CodeConcurrentModification = "CONCURRENT_MODIFICATION"
	CodeDuplicateCode          = "DUPLICATE_DOCUMENT_CODE"
	CodeInternal               = "INTERNAL"
)

// ErrorResponse is the JSON body of every non-2xx reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`

	Reason lifecycle.Reason `json:"reason,omitempty"`
	Field  string           `json:"field,omitempty"`
	Rule   string           `json:"rule,omitempty"`
	Min    int              `json:"min,omitempty"`
	From   lifecycle.Status `json:"from,omitempty"`
	To     lifecycle.Status `json:"to,omitempty"`
	Status lifecycle.Status `json:"status,omitempty"`
}

// statusFor maps an error to its HTTP status and response body.
func statusFor(err error) (int, ErrorResponse) {
	var (
		terminal  *lifecycle.TerminalStateError
		illegal   *lifecycle.IllegalTransitionError
		denied    *lifecycle.PermissionDeniedError
		invalid   *lifecycle.ValidationError
		overflow  *lifecycle.VersionOverflowError
		inconsist *lifecycle.InconsistentHistoryError
	)
	switch {
	case errors.As(err, &terminal):
		return http.StatusConflict, ErrorResponse{Error: terminal.Code(), Message: terminal.Error(), Status: terminal.Status}
	case errors.As(err, &illegal):
		return http.StatusBadRequest, ErrorResponse{Error: illegal.Code(), Message: illegal.Error(), From: illegal.From, To: illegal.To}
	case errors.As(err, &denied):
		return http.StatusForbidden, ErrorResponse{Error: denied.Code(), Message: denied.Error(), Reason: denied.Reason}
	case errors.As(err, &invalid):
		return http.StatusUnprocessableEntity, ErrorResponse{Error: invalid.Code(), Message: invalid.Error(), Field: invalid.Field, Rule: invalid.Rule, Min: invalid.Min}
	case errors.As(err, &overflow):
		return http.StatusInternalServerError, ErrorResponse{Error: overflow.Code(), Message: overflow.Error()}
	case errors.As(err, &inconsist):
		return http.StatusInternalServerError, ErrorResponse{Error: inconsist.Code(), Message: inconsist.Error()}
	case errors.Is(err, store.ErrConcurrentModification):
		return http.StatusConflict, ErrorResponse{Error: CodeConcurrentModification, Message: "the document was modified concurrently; reload and retry"}
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, ErrorResponse{Error: CodeNotFound, Message: err.Error()}
	case errors.Is(err, store.ErrDuplicateCode):
		return http.StatusConflict, ErrorResponse{Error: CodeDuplicateCode, Message: err.Error()}
	}
	return http.StatusInternalServerError, ErrorResponse{Error: CodeInternal, Message: "internal error"}
}

func (h *handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, body := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, body)
}

func badRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: CodeInvalidRequest, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
