package audit

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/docflow/edms/pkg/authn"
)

// responseCapture wraps http.ResponseWriter to capture the status code.
type responseCapture struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rc *responseCapture) WriteHeader(code int) {
	if !rc.written {
		rc.statusCode = code
		rc.written = true
	}
	rc.ResponseWriter.WriteHeader(code)
}

func (rc *responseCapture) Write(b []byte) (int, error) {
	if !rc.written {
		rc.statusCode = http.StatusOK
		rc.written = true
	}
	return rc.ResponseWriter.Write(b)
}

// Middleware records a request event for every mutating request once the
// handler completes. Lifecycle events for successful commits are written by
// the document service; this captures the attempts, including denials.
func Middleware(rec Recorder, cfg Config, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.Enabled || rec == nil || !isAudited(r.Method, r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			startTime := time.Now()
			capture := &responseCapture{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(capture, r)

			outcome := outcomeFromStatus(capture.statusCode)
			if outcome == OutcomeDenied && !cfg.LogDenied {
				return
			}

			ctx := r.Context()
			actor := "anonymous"
			var department string
			if a, ok := authn.ActorFromContext(ctx); ok {
				actor = a.ID
				department = a.Department
			}
			requestID := middleware.GetReqID(ctx)

			event := Event{
				ID:              uuid.New().String(),
				Kind:            KindRequest,
				DocumentID:      documentIDFromPath(r.URL.Path),
				Actor:           actor,
				ActorDepartment: department,
				Outcome:         outcome,
				Action:          actionFromRequest(r.Method, r.URL.Path),
				StatusCode:      capture.statusCode,
				RequestID:       requestID,
				IPAddress:       r.RemoteAddr,
				UserAgent:       r.UserAgent(),
				CreatedAt:       startTime,
				Metadata: map[string]any{
					"method":   r.Method,
					"path":     r.URL.Path,
					"duration": time.Since(startTime).String(),
				},
			}

			// Best-effort write: don't fail the request if audit write fails.
			if err := rec.Record(ctx, event); err != nil {
				logger.Error("failed to write audit event", "error", err, "requestID", requestID)
			}
		})
	}
}

// outcomeFromStatus maps HTTP status codes to audit outcomes.
func outcomeFromStatus(code int) Outcome {
	switch {
	case code >= 200 && code < 300:
		return OutcomeSuccess
	case code == http.StatusForbidden:
		return OutcomeDenied
	default:
		return OutcomeFailure
	}
}
