package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MarketsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polyfactory_markets_created_total",
		Help: "Markets deployed by the factory",
	})

	Deposits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polyfactory_deposits_total",
		Help: "Accepted deposits by outcome",
	}, []string{"outcome"})

	Resolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polyfactory_resolutions_total",
		Help: "Finalized markets by terminal state",
	}, []string{"state"})

	Claims = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polyfactory_claims_total",
		Help: "Successful claims",
	})

	ReputationAdjustments = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polyfactory_reputation_adjustments_total",
		Help: "Ledger score writes by direction",
	}, []string{"direction"})

	Rejects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polyfactory_rejects_total",
		Help: "Rejected operations by error code",
	}, []string{"code"})

	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polyfactory_events_dropped_total",
		Help: "Events dropped because the event buffer was full",
	})

	PersistFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polyfactory_persist_failures_total",
		Help: "Snapshot writes that failed",
	}, []string{"entity"})

	StreamClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "polyfactory_stream_clients",
		Help: "Connected websocket clients",
	})

	LatencyBucket = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "polyfactory_latency_bucket",
		Help:    "Request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})
)
