package documents

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/docflow/edms/pkg/lifecycle"
	"github.com/docflow/edms/pkg/store"
)

// Metrics holds the Prometheus collectors for document operations.
type Metrics struct {
	TransitionsTotal  *prometheus.CounterVec
	VersionsTotal     *prometheus.CounterVec
	DocumentsCreated  *prometheus.CounterVec
	CommitConflicts   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		TransitionsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "edms_transitions_total",
				Help: "Status change requests by source status, target status and outcome",
			},
			[]string{"from", "to", "outcome"},
		),
		VersionsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "edms_versions_total",
				Help: "New version requests by change type and outcome",
			},
			[]string{"change_type", "outcome"},
		),
		DocumentsCreated: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "edms_documents_created_total",
				Help: "Document creation requests by outcome",
			},
			[]string{"outcome"},
		),
		CommitConflicts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "edms_commit_conflicts_total",
				Help: "Commits that lost a compare-and-swap race",
			},
			[]string{"operation"},
		),
		OperationDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "edms_operation_duration_seconds",
				Help:    "Duration of document operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// outcomeLabel collapses an operation result into a bounded label value.
func outcomeLabel(err error) string {
	if err == nil {
		return "committed"
	}
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
		return "terminal"
	case errors.As(err, &illegal):
		return "illegal"
	case errors.As(err, &denied):
		return "denied"
	case errors.As(err, &invalid):
		return "invalid"
	case errors.As(err, &overflow):
		return "overflow"
	case errors.As(err, &inconsist):
		return "inconsistent"
	case errors.Is(err, store.ErrConcurrentModification):
		return "conflict"
	case errors.Is(err, store.ErrNotFound):
		return "not_found"
	}
	return "error"
}

// statusLabel keeps caller-supplied statuses from minting new series.
func statusLabel(s lifecycle.Status) string {
	if !s.Valid() {
		return "invalid"
	}
	return string(s)
}

func changeTypeLabel(c lifecycle.ChangeType) string {
	if !c.Valid() {
		return "invalid"
	}
	return string(c)
}
