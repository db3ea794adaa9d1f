package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/iti/netsim"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

// constSource always draws the same value
type constSource float64

func (cs constSource) RandU01() float64 { return float64(cs) }

func newObservedSimulator(t *testing.T, collector *Collector) *netsim.Simulator {
	t.Helper()
	sim, err := netsim.CreateSimulator(
		netsim.WithSource(constSource(0.5)),
		netsim.WithSettings(netsim.Settings{JitterMin: 1, JitterMax: 1}),
		netsim.WithObserver(collector),
	)
	if err != nil {
		t.Fatalf("CreateSimulator: %v", err)
	}
	if err := netsim.BuildSampleNetwork(sim.Topology()); err != nil {
		t.Fatalf("BuildSampleNetwork: %v", err)
	}
	return sim
}

func TestCollectorCountsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}
	sim := newObservedSimulator(t, collector)

	for range 3 {
		if _, err := sim.Send("PC_Helsinki", "Palvelin_Berlin", "m"); err != nil {
			t.Fatalf("Send: %v", err)
		}
	}
	if err := sim.Topology().SetLinkLoss("Reititin_C", "Reititin_B", 1); err != nil {
		t.Fatalf("SetLinkLoss: %v", err)
	}
	if _, err := sim.Send("PC_Helsinki", "Palvelin_Berlin", "m"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if got := testutil.ToFloat64(collector.Transmissions.WithLabelValues(Delivered)); got != 3 {
		t.Fatalf("delivered = %v, want 3", got)
	}
	if got := testutil.ToFloat64(collector.Transmissions.WithLabelValues(Lost)); got != 1 {
		t.Fatalf("lost = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.HopsLost.WithLabelValues(LinkLabel("Reititin_B", "Reititin_C"))); got != 1 {
		t.Fatalf("hops lost on B-C = %v, want 1", got)
	}

	count, sum := histogram(t, reg, "netsim_transmission_latency_ms")
	if count != 4 {
		t.Fatalf("latency sample_count = %d, want 4", count)
	}
	// three full 30 ms routes plus 25 ms up to the lost hop
	if sum != 115 {
		t.Fatalf("latency sample_sum = %v, want 115", sum)
	}
}

func TestObserveTopology(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}
	sim := newObservedSimulator(t, collector)
	collector.ObserveTopology(sim.Topology())

	if got := testutil.ToFloat64(collector.TopologyDevices); got != 5 {
		t.Fatalf("devices = %v, want 5", got)
	}
	if got := testutil.ToFloat64(collector.TopologyLinks); got != 5 {
		t.Fatalf("links = %v, want 5", got)
	}
	if got := testutil.ToFloat64(collector.TopologyVersion); got != float64(sim.Topology().Version()) {
		t.Fatalf("version = %v, want %d", got, sim.Topology().Version())
	}
}

func TestNewCollectorReusesRegisteredMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("first NewCollector: %v", err)
	}
	second, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("second NewCollector: %v", err)
	}
	first.Transmissions.WithLabelValues(Delivered).Inc()
	if got := testutil.ToFloat64(second.Transmissions.WithLabelValues(Delivered)); got != 1 {
		t.Fatalf("shared counter = %v, want 1", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}
	collector.Transmissions.WithLabelValues(Delivered).Inc()

	rr := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	body, _ := io.ReadAll(rr.Body)
	for _, want := range []string{"netsim_transmissions_total", "netsim_topology_devices"} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("metrics output missing %s:\n%s", want, body)
		}
	}
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *Collector
	c.ObserveTransmission(netsim.TransmissionRecord{})
	c.ObserveTopology(nil)
}

func histogram(t *testing.T, reg *prometheus.Registry, name string) (uint64, float64) {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		var h *dto.Histogram
		for _, m := range mf.GetMetric() {
			h = m.GetHistogram()
		}
		if h == nil {
			t.Fatalf("%s has no histogram sample", name)
		}
		return h.GetSampleCount(), h.GetSampleSum()
	}
	t.Fatalf("metric family %s not found", name)
	return 0, 0
}
