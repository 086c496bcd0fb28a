package observability

import (
	"context"
	"errors"
	"log/slog"

	"github.com/aretw0/flowstate/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collectors fed by the dispatcher hooks.
type Metrics struct {
	outcomes *prometheus.CounterVec
	storeOps *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer, namespace string) (*Metrics, error) {
	m := &Metrics{
		outcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "flow_outcomes_total",
				Help:      "Dispatched requests by flow and outcome.",
			},
			[]string{"flow", "outcome"},
		),
		storeOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "store_operations_total",
				Help:      "StateStore calls by operation and result.",
			},
			[]string{"op", "result"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "dispatch_duration_seconds",
				Help:      "Time spent dispatching a request through its flow.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"flow"},
		),
	}

	for _, c := range []prometheus.Collector{m.outcomes, m.storeOps, m.duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Hooks returns dispatcher hooks recording into m.
func (m *Metrics) Hooks() domain.Hooks {
	return domain.Hooks{
		OnStoreOp: func(ctx context.Context, e *domain.StoreEvent) {
			m.storeOps.WithLabelValues(e.Op, storeResult(e.Err)).Inc()
		},
		OnOutcome: func(ctx context.Context, e *domain.OutcomeEvent) {
			m.outcomes.WithLabelValues(e.Flow, string(e.Outcome)).Inc()
			m.duration.WithLabelValues(e.Flow).Observe(e.Duration.Seconds())
		},
	}
}

func storeResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}

// LogHooks returns hooks that write one structured line per outcome.
func LogHooks(logger *slog.Logger) domain.Hooks {
	return domain.Hooks{
		OnOutcome: func(ctx context.Context, e *domain.OutcomeEvent) {
			attrs := []any{
				"flow", e.Flow,
				"outcome", e.Outcome,
				"duration", e.Duration,
			}
			if e.Handle != "" {
				attrs = append(attrs, "handle", e.Handle)
			}
			if e.Location != "" {
				attrs = append(attrs, "location", e.Location)
			}
			if e.Err != nil {
				attrs = append(attrs, "err", e.Err)
				logger.WarnContext(ctx, "flow_outcome", attrs...)
				return
			}
			logger.InfoContext(ctx, "flow_outcome", attrs...)
		},
	}
}

// Combine fans every event out to all hooks, in order.
func Combine(hooks ...domain.Hooks) domain.Hooks {
	var combined domain.Hooks
	for _, h := range hooks {
		h := h
		if h.OnStoreOp != nil {
			prev := combined.OnStoreOp
			combined.OnStoreOp = func(ctx context.Context, e *domain.StoreEvent) {
				if prev != nil {
					prev(ctx, e)
				}
				h.OnStoreOp(ctx, e)
			}
		}
		if h.OnOutcome != nil {
			prev := combined.OnOutcome
			combined.OnOutcome = func(ctx context.Context, e *domain.OutcomeEvent) {
				if prev != nil {
					prev(ctx, e)
				}
				h.OnOutcome(ctx, e)
			}
		}
	}
	return combined
}
