// Package metrics provides Prometheus metrics for the market engine.
package metrics

import (
	"context"
	"strconv"
	"time"

	"github.com/alejandrodnm/predictbot/internal/domain"
	"github.com/alejandrodnm/predictbot/internal/ports"
	"github.com/prometheus/client_golang/prometheus"
)

// MarketMetrics collects engine calls, events and scheduler activity on a
// private registry.
type MarketMetrics struct {
	registry *prometheus.Registry

	CallsTotal   *prometheus.CounterVec
	CallDuration *prometheus.HistogramVec
	EventsTotal  *prometheus.CounterVec
	StakeTotal   *prometheus.CounterVec
	ClaimedTotal prometheus.Counter
	FiresTotal   *prometheus.CounterVec
	CurrentEpoch prometheus.Gauge
	TreasuryCut  prometheus.Counter
}

var _ ports.EventSink = (*MarketMetrics)(nil)

// New creates and registers the market collectors.
func New() *MarketMetrics {
	m := &MarketMetrics{
		registry: prometheus.NewRegistry(),

		CallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "predictbot_calls_total",
				Help: "Market calls by operation and result code",
			},
			[]string{"op", "code"},
		),
		CallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "predictbot_call_duration_seconds",
				Help:    "Wall time of market calls",
				Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~4s
			},
			[]string{"op"},
		),
		EventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "predictbot_events_total",
				Help: "Committed market events by name",
			},
			[]string{"event"},
		),
		StakeTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "predictbot_stake_total",
				Help: "Native units wagered by direction",
			},
			[]string{"direction"},
		),
		ClaimedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "predictbot_claimed_total",
			Help: "Native units paid out to winners",
		}),
		FiresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "predictbot_scheduled_fires_total",
				Help: "Scheduled calls dispatched by operation and outcome",
			},
			[]string{"op", "result"},
		),
		CurrentEpoch: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "predictbot_current_epoch",
			Help: "Epoch of the most recently started round",
		}),
		TreasuryCut: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "predictbot_treasury_cut_total",
			Help: "Native units credited to the treasury at settlement",
		}),
	}

	m.registry.MustRegister(
		m.CallsTotal,
		m.CallDuration,
		m.EventsTotal,
		m.StakeTotal,
		m.ClaimedTotal,
		m.FiresTotal,
		m.CurrentEpoch,
		m.TreasuryCut,
	)
	return m
}

// Registry returns the registry for the /metrics handler.
func (m *MarketMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveCall records a finished market call. Rejections are labelled with
// their error code.
func (m *MarketMetrics) ObserveCall(op string, err error, elapsed time.Duration) {
	code := "OK"
	if err != nil {
		code = domain.CodeOf(err)
		if code == "" {
			code = "INTERNAL"
		}
	}
	m.CallsTotal.WithLabelValues(op, code).Inc()
	m.CallDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

// ObserveFire records one scheduled call dispatch.
func (m *MarketMetrics) ObserveFire(op domain.Operation, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.FiresTotal.WithLabelValues(string(op), result).Inc()
}

// Emit folds committed events into the collectors. It never fails.
func (m *MarketMetrics) Emit(_ context.Context, events []domain.Event) error {
	for _, e := range events {
		m.EventsTotal.WithLabelValues(string(e.Name)).Inc()
		switch e.Name {
		case domain.EventStartRound:
			m.CurrentEpoch.Set(float64(e.Epoch))
		case domain.EventBetUp:
			m.StakeTotal.WithLabelValues("up").Add(attrFloat(e, "amount"))
		case domain.EventBetDown:
			m.StakeTotal.WithLabelValues("down").Add(attrFloat(e, "amount"))
		case domain.EventClaim:
			m.ClaimedTotal.Add(attrFloat(e, "amount"))
		case domain.EventRewardsCalculated:
			m.TreasuryCut.Add(attrFloat(e, "treasury_cut"))
		}
	}
	return nil
}

func attrFloat(e domain.Event, key string) float64 {
	v, err := strconv.ParseUint(e.Attrs[key], 10, 64)
	if err != nil {
		return 0
	}
	return float64(v)
}
