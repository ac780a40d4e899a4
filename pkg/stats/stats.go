// Package stats exposes the route-accounting counters the change
// dispatcher (pkg/dispatch) touches on every accepted route add/delete.
// The metric names and registration style follow pkg/metrics in the
// reference stack: Prometheus counters, namespaced, registered once at
// construction.
package stats

import "github.com/prometheus/client_golang/prometheus"

const (
	namespace = "netlinkbridge"
	subsystem = "route"
)

// Sink is the stats collaborator consumed by the route handler
// (spec §4.4.2, §6). Implementations must be safe for concurrent use —
// in this design only the listener goroutine calls it, but the interface
// makes no such assumption.
type Sink interface {
	AddRouteV4()
	AddRouteV6()
	DelRouteV4()
	DelRouteV6()
}

// PrometheusSink implements Sink with four registered counters.
type PrometheusSink struct {
	addV4 prometheus.Counter
	addV6 prometheus.Counter
	delV4 prometheus.Counter
	delV6 prometheus.Counter
}

// NewPrometheusSink builds and registers the counters against reg. Pass
// prometheus.DefaultRegisterer for the global registry.
func NewPrometheusSink(reg prometheus.Registerer) *PrometheusSink {
	s := &PrometheusSink{
		addV4: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "add_v4_total",
			Help:      "Number of IPv4 routes installed from kernel netlink route-new events.",
		}),
		addV6: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "add_v6_total",
			Help:      "Number of IPv6 routes installed from kernel netlink route-new events.",
		}),
		delV4: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "del_v4_total",
			Help:      "Number of IPv4 routes removed from kernel netlink route-delete events.",
		}),
		delV6: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "del_v6_total",
			Help:      "Number of IPv6 routes removed from kernel netlink route-delete events.",
		}),
	}
	reg.MustRegister(s.addV4, s.addV6, s.delV4, s.delV6)
	return s
}

func (s *PrometheusSink) AddRouteV4() { s.addV4.Inc() }
func (s *PrometheusSink) AddRouteV6() { s.addV6.Inc() }
func (s *PrometheusSink) DelRouteV4() { s.delV4.Inc() }
func (s *PrometheusSink) DelRouteV6() { s.delV6.Inc() }

// NoopSink discards all counts. Useful for tests that don't care about
// metrics plumbing.
type NoopSink struct{}

func (NoopSink) AddRouteV4() {}
func (NoopSink) AddRouteV6() {}
func (NoopSink) DelRouteV4() {}
func (NoopSink) DelRouteV6() {}
