package metrics

import "github.com/prometheus/client_golang/prometheus"

// CoordinatorStats reports the live size of the session coordinator.
type CoordinatorStats interface {
	IdentifiedConnections() int
	RoomCount() int
	RoomMembers() int
}

// RegisterCoordinatorGauges exposes coordinator sizes as gauge functions so
// they are read on scrape instead of being pushed from the hot path.
func RegisterCoordinatorGauges(reg prometheus.Registerer, stats CoordinatorStats) {
	reg.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "coordinator",
			Name:      "identified_connections",
			Help:      "Number of connections with a registered profile.",
		}, func() float64 { return float64(stats.IdentifiedConnections()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "coordinator",
			Name:      "rooms",
			Help:      "Number of document rooms created since start.",
		}, func() float64 { return float64(stats.RoomCount()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "coordinator",
			Name:      "room_members",
			Help:      "Number of connections currently inside a room.",
		}, func() float64 { return float64(stats.RoomMembers()) }),
	)
}
