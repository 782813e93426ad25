// Package metrics exposes the relay's counters as prometheus collectors
// behind a method-per-counter facade so call sites stay free of label
// plumbing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	reg *prometheus.Registry

	relayed       prometheus.Counter
	dropDuplicate prometheus.Counter
	dropStamped   prometheus.Counter
	emitFail      prometheus.Counter
	rewires       prometheus.Counter
	endpoints     prometheus.Gauge
	editsAppended prometheus.Counter
	faninRebuilds prometheus.Counter
	socketsJoined prometheus.Counter
	socketsLeft   prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		reg: reg,
		relayed: factory.NewCounter(prometheus.CounterOpts{
			Name: "editmesh_relayed_total",
			Help: "Messages accepted as fresh and fanned out to peers.",
		}),
		dropDuplicate: factory.NewCounter(prometheus.CounterOpts{
			Name: "editmesh_drop_duplicate_total",
			Help: "Messages dropped because their reference id was already seen.",
		}),
		dropStamped: factory.NewCounter(prometheus.CounterOpts{
			Name: "editmesh_drop_stamped_total",
			Help: "Messages delivered but not re-relayed because they carried an origin stamp.",
		}),
		emitFail: factory.NewCounter(prometheus.CounterOpts{
			Name: "editmesh_emit_fail_total",
			Help: "Best-effort forwards that failed at the transport.",
		}),
		rewires: factory.NewCounter(prometheus.CounterOpts{
			Name: "editmesh_rewires_total",
			Help: "Full subscription rebuilds triggered by membership changes.",
		}),
		endpoints: factory.NewGauge(prometheus.GaugeOpts{
			Name: "editmesh_endpoints",
			Help: "Endpoints currently registered.",
		}),
		editsAppended: factory.NewCounter(prometheus.CounterOpts{
			Name: "editmesh_edits_appended_total",
			Help: "Edits appended to the local log.",
		}),
		faninRebuilds: factory.NewCounter(prometheus.CounterOpts{
			Name: "editmesh_fanin_rebuilds_total",
			Help: "Fan-in surface rebuilds.",
		}),
		socketsJoined: factory.NewCounter(prometheus.CounterOpts{
			Name: "editmesh_sockets_joined_total",
			Help: "Sockets accepted into the relay.",
		}),
		socketsLeft: factory.NewCounter(prometheus.CounterOpts{
			Name: "editmesh_sockets_left_total",
			Help: "Endpoints removed from the registry.",
		}),
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

func (m *Metrics) IncRelayed()        { m.relayed.Inc() }
func (m *Metrics) IncDropDuplicate()  { m.dropDuplicate.Inc() }
func (m *Metrics) IncDropStamped()    { m.dropStamped.Inc() }
func (m *Metrics) IncEmitFail()       { m.emitFail.Inc() }
func (m *Metrics) IncRewires()        { m.rewires.Inc() }
func (m *Metrics) SetEndpoints(n int) { m.endpoints.Set(float64(n)) }
func (m *Metrics) IncEditsAppended()  { m.editsAppended.Inc() }
func (m *Metrics) IncFaninRebuilds()  { m.faninRebuilds.Inc() }
func (m *Metrics) IncSocketsJoined()  { m.socketsJoined.Inc() }
func (m *Metrics) IncSocketsLeft()    { m.socketsLeft.Inc() }
