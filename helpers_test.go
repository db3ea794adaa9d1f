package netsim

import (
	"time"
)

// scriptedSource replays a fixed sequence of draws, cycling when exhausted
type scriptedSource struct {
	vals  []float64
	drawn int
}

func (ss *scriptedSource) RandU01() float64 {
	v := ss.vals[ss.drawn%len(ss.vals)]
	ss.drawn++
	return v
}

// fakeClock returns a fixed time and records sleeps instead of sleeping
type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func (fc *fakeClock) Now() time.Time { return fc.now }

func (fc *fakeClock) Sleep(d time.Duration) { fc.sleeps = append(fc.sleeps, d) }

var testEpoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// newTestSimulator builds a simulator with jitter fixed at 1.0, a scripted
// source and a fake clock
func newTestSimulator(draws ...float64) (*Simulator, *fakeClock, *scriptedSource) {
	if len(draws) == 0 {
		draws = []float64{0.5}
	}
	src := &scriptedSource{vals: draws}
	clk := &fakeClock{now: testEpoch}
	sim, err := CreateSimulator(
		WithSource(src),
		WithClock(clk),
		WithSettings(Settings{JitterMin: 1.0, JitterMax: 1.0}),
	)
	if err != nil {
		panic(err)
	}
	return sim, clk, src
}

// addDevices adds routers with the given ids, failing loudly on error
func addDevices(topo *Topology, ids ...string) {
	for _, id := range ids {
		if err := topo.AddDevice(id, Router); err != nil {
			panic(err)
		}
	}
}
