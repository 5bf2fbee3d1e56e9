// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Ledger metrics
	PositionsWrapped   prometheus.Counter
	PositionsUnwrapped prometheus.Counter
	VotesCast          prometheus.Counter
	GlobalWeight       prometheus.Gauge

	// Dividend metrics
	PayoutsDistributed *prometheus.CounterVec
	ClaimsPaid         *prometheus.CounterVec
	AmountClaimed      *prometheus.CounterVec

	// Epoch metrics
	LastCheckpointTime prometheus.Gauge
	EmissionRate       prometheus.Gauge
	KillSwitch         prometheus.Gauge
	EpochStepsTotal    prometheus.Counter

	// Audit metrics
	EventsEmitted *prometheus.CounterVec

	// Feed metrics
	FeedClients       prometheus.Gauge
	FeedBroadcasts    prometheus.Counter
	FeedDroppedEvents prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "weight_ledger"
	}

	return &Metrics{
		// Ledger metrics
		PositionsWrapped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "positions_wrapped_total",
			Help:      "Total number of positions wrapped",
		}),
		PositionsUnwrapped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "positions_unwrapped_total",
			Help:      "Total number of positions unwrapped",
		}),
		VotesCast: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "votes_cast_total",
			Help:      "Total number of weight votes applied",
		}),
		GlobalWeight: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "global_weight",
			Help:      "Current global weight sum",
		}),

		// Dividend metrics
		PayoutsDistributed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dividend",
			Name:      "payouts_distributed_total",
			Help:      "Total number of payout records appended by currency and source",
		}, []string{"currency", "source"}),
		ClaimsPaid: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dividend",
			Name:      "claims_paid_total",
			Help:      "Total number of claim batches paid by currency",
		}, []string{"currency"}),
		AmountClaimed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dividend",
			Name:      "amount_claimed_total",
			Help:      "Total amount paid out to claimants by currency",
		}, []string{"currency"}),

		// Epoch metrics
		LastCheckpointTime: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "epoch",
			Name:      "last_checkpoint_timestamp",
			Help:      "Unix timestamp of the last completed epoch checkpoint",
		}),
		EmissionRate: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "epoch",
			Name:      "emission_rate",
			Help:      "Cached emission rate per second",
		}),
		KillSwitch: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "epoch",
			Name:      "kill_switch",
			Help:      "1 when the kill switch is engaged, 0 otherwise",
		}),
		EpochStepsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "epoch",
			Name:      "steps_total",
			Help:      "Total number of epoch intervals walked by the checkpointer",
		}),

		// Audit metrics
		EventsEmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "events_emitted_total",
			Help:      "Total number of audit events emitted by type",
		}, []string{"type"}),

		// Feed metrics
		FeedClients: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "clients",
			Help:      "Number of connected websocket feed clients",
		}),
		FeedBroadcasts: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "broadcasts_total",
			Help:      "Total number of events broadcast to the websocket feed",
		}),
		FeedDroppedEvents: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "dropped_events_total",
			Help:      "Total number of events dropped on slow feed clients",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordPositionWrapped increments the positions wrapped counter.
func RecordPositionWrapped() {
	DefaultMetrics.PositionsWrapped.Inc()
}

// RecordPositionUnwrapped increments the positions unwrapped counter.
func RecordPositionUnwrapped() {
	DefaultMetrics.PositionsUnwrapped.Inc()
}

// RecordVoteCast increments the votes cast counter.
func RecordVoteCast() {
	DefaultMetrics.VotesCast.Inc()
}

// UpdateGlobalWeight updates the global weight gauge.
func UpdateGlobalWeight(weight uint64) {
	DefaultMetrics.GlobalWeight.Set(float64(weight))
}

// RecordPayout records an appended payout record.
func RecordPayout(currency, source string) {
	DefaultMetrics.PayoutsDistributed.WithLabelValues(currency, source).Inc()
}

// RecordClaim records a paid claim batch and its total amount.
func RecordClaim(currency string, amount uint64) {
	DefaultMetrics.ClaimsPaid.WithLabelValues(currency).Inc()
	DefaultMetrics.AmountClaimed.WithLabelValues(currency).Add(float64(amount))
}

// UpdateEpochCheckpoint updates the last checkpoint timestamp gauge.
func UpdateEpochCheckpoint(ts int64) {
	DefaultMetrics.LastCheckpointTime.Set(float64(ts))
}

// UpdateEmissionRate updates the cached emission rate gauge.
func UpdateEmissionRate(rate uint64) {
	DefaultMetrics.EmissionRate.Set(float64(rate))
}

// UpdateKillSwitch updates the kill switch gauge.
func UpdateKillSwitch(killed bool) {
	if killed {
		DefaultMetrics.KillSwitch.Set(1)
	} else {
		DefaultMetrics.KillSwitch.Set(0)
	}
}

// RecordEpochSteps adds walked intervals to the epoch step counter.
func RecordEpochSteps(n int) {
	DefaultMetrics.EpochStepsTotal.Add(float64(n))
}

// RecordEventEmitted increments the emitted events counter for a type.
func RecordEventEmitted(eventType string) {
	DefaultMetrics.EventsEmitted.WithLabelValues(eventType).Inc()
}

// FeedClientConnected increments the connected feed clients gauge.
func FeedClientConnected() {
	DefaultMetrics.FeedClients.Inc()
}

// FeedClientDisconnected decrements the connected feed clients gauge.
func FeedClientDisconnected() {
	DefaultMetrics.FeedClients.Dec()
}

// RecordFeedBroadcast increments the feed broadcast counter.
func RecordFeedBroadcast() {
	DefaultMetrics.FeedBroadcasts.Inc()
}

// RecordFeedDropped increments the dropped feed events counter.
func RecordFeedDropped() {
	DefaultMetrics.FeedDroppedEvents.Inc()
}
