// Package metrics exposes simulator activity as Prometheus metrics.  A
// Collector is an observer of a netsim.Simulator: pass it with
// netsim.WithObserver and every transmission is counted.
package metrics

import (
	"fmt"
	"net/http"

	"github.com/iti/netsim"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// outcome label values
const (
	Delivered = "delivered"
	Lost      = "lost"
)

// Collector bundles the Prometheus metrics of one simulator.
type Collector struct {
	gatherer prometheus.Gatherer

	Transmissions *prometheus.CounterVec
	Latency       prometheus.Histogram
	HopsLost      *prometheus.CounterVec

	TopologyDevices prometheus.Gauge
	TopologyLinks   prometheus.Gauge
	TopologyVersion prometheus.Gauge
}

// NewCollector registers the simulator metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	transmissions, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "netsim_transmissions_total",
		Help: "Simulated transmissions, labeled by outcome (delivered or lost).",
	}, []string{"outcome"}), "netsim_transmissions_total")
	if err != nil {
		return nil, err
	}

	latency, err := register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "netsim_transmission_latency_ms",
		Help:    "Total simulated latency of a transmission in milliseconds, lost ones included.",
		Buckets: []float64{1, 2, 5, 10, 20, 50, 100, 200, 500, 1000, 2000},
	}), "netsim_transmission_latency_ms")
	if err != nil {
		return nil, err
	}

	hopsLost, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "netsim_hops_lost_total",
		Help: "Transmissions lost on a link, labeled by the link's endpoints.",
	}, []string{"link"}), "netsim_hops_lost_total")
	if err != nil {
		return nil, err
	}

	devices, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "netsim_topology_devices",
		Help: "Current number of devices in the topology.",
	}), "netsim_topology_devices")
	if err != nil {
		return nil, err
	}
	links, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "netsim_topology_links",
		Help: "Current number of links in the topology.",
	}), "netsim_topology_links")
	if err != nil {
		return nil, err
	}
	version, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "netsim_topology_version",
		Help: "Version counter of the topology, raised by every mutation.",
	}), "netsim_topology_version")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:        gatherer,
		Transmissions:   transmissions,
		Latency:         latency,
		HopsLost:        hopsLost,
		TopologyDevices: devices,
		TopologyLinks:   links,
		TopologyVersion: version,
	}, nil
}

// ObserveTransmission satisfies netsim.Observer.
func (c *Collector) ObserveTransmission(rec netsim.TransmissionRecord) {
	if c == nil {
		return
	}
	outcome := Delivered
	if !rec.Success {
		outcome = Lost
		for _, hop := range rec.Hops {
			if hop.Lost {
				c.HopsLost.WithLabelValues(LinkLabel(hop.From, hop.To)).Inc()
			}
		}
	}
	c.Transmissions.WithLabelValues(outcome).Inc()
	c.Latency.Observe(rec.TotalLatencyMs)
}

// ObserveTopology refreshes the topology gauges.
func (c *Collector) ObserveTopology(topo *netsim.Topology) {
	if c == nil || topo == nil {
		return
	}
	devs, lnks := topo.Len()
	c.TopologyDevices.Set(float64(devs))
	c.TopologyLinks.Set(float64(lnks))
	c.TopologyVersion.Set(float64(topo.Version()))
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// LinkLabel names an undirected link independently of traversal direction.
func LinkLabel(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "<->" + b
}

// register adds a collector, reusing one already registered under the same
// description when its type matches.
func register[T prometheus.Collector](reg prometheus.Registerer, c T, name string) (T, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
			var zero T
			return zero, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		var zero T
		return zero, err
	}
	return c, nil
}
