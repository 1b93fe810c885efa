// Package metrics declares the Prometheus instruments exported by the
// coordinator.
//
// Naming convention: namespace_subsystem_name
//   - namespace: room_coordinator (application-level grouping)
//   - subsystem: session, room, dispatch, data, lock, circuit_breaker,
//     storage (feature grouping)
//   - name: specific metric
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveSessions tracks the current number of attached sessions
	// across all rooms.
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "room_coordinator",
		Subsystem: "session",
		Name:      "active",
		Help:      "Current number of attached sessions",
	})

	// ActiveRooms tracks the current number of live room actors.
	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "room_coordinator",
		Subsystem: "room",
		Name:      "active",
		Help:      "Current number of live rooms",
	})

	// RoomPeers tracks the number of attached sessions per room.
	RoomPeers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "room_coordinator",
		Subsystem: "room",
		Name:      "peers",
		Help:      "Number of attached sessions in each room",
	}, []string{"room"})

	// FramesRouted counts every inbound frame routed to a traffic class.
	FramesRouted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "room_coordinator",
		Subsystem: "dispatch",
		Name:      "frames_routed_total",
		Help:      "Total inbound frames routed, by traffic class and outcome",
	}, []string{"class", "outcome"})

	// DispatchDuration tracks time spent applying one frame inside a
	// room's actor goroutine.
	DispatchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "room_coordinator",
		Subsystem: "dispatch",
		Name:      "duration_seconds",
		Help:      "Time spent applying one routed frame",
		Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
	}, []string{"class"})

	// DeadHandEvents counts deadhand/livehand ownership transitions.
	DeadHandEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "room_coordinator",
		Subsystem: "data",
		Name:      "ownership_events_total",
		Help:      "Total deadhand/livehand ownership transitions",
	}, []string{"event"})

	// LockGrants counts lock-service grant transitions.
	LockGrants = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "room_coordinator",
		Subsystem: "lock",
		Name:      "grants_total",
		Help:      "Total lock grants issued",
	}, []string{"lock"})

	// CircuitBreakerState tracks the current state of a named circuit
	// breaker. 0: Closed (healthy), 1: Open (failing), 2: Half-Open
	// (recovering).
	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "room_coordinator",
		Subsystem: "circuit_breaker",
		Name:      "state",
		Help:      "Current state of the circuit breaker (0: Closed, 1: Open, 2: Half-Open)",
	}, []string{"store"})

	// CircuitBreakerRejections counts storage calls rejected while the
	// breaker is open or half-open and saturated.
	CircuitBreakerRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "room_coordinator",
		Subsystem: "circuit_breaker",
		Name:      "rejections_total",
		Help:      "Total storage calls rejected by the circuit breaker",
	}, []string{"store"})

	// StorageOperationDuration tracks durable-store call latency.
	StorageOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "room_coordinator",
		Subsystem: "storage",
		Name:      "operation_duration_seconds",
		Help:      "Duration of durable storage operations",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})
)

// IncSession records a session attach.
func IncSession() {
	ActiveSessions.Inc()
}

// DecSession records a session detach.
func DecSession() {
	ActiveSessions.Dec()
}
