package netsim

// transmit.go simulates the passage of one message along its planned route,
// drawing a jitter factor and a loss trial for every hop it attempts

import (
	"context"
	"fmt"

	"github.com/iti/evt/vrtime"
	"github.com/iti/netsim/logging"
)

// An Observer is told about every record appended to the packet log
type Observer interface {
	ObserveTransmission(rec TransmissionRecord)
}

// Simulator bundles one topology, its resolver, its packet log and the
// transmission settings.  Every operation runs to completion before it
// returns; a Simulator is not safe for concurrent use.
type Simulator struct {
	topo     *Topology
	resolver *Resolver
	pcktLog  *PacketLog
	settings Settings

	rng      Source
	clock    Clock
	observer Observer
	logger   logging.Logger
}

// An Option adjusts a Simulator under construction
type Option func(*Simulator) error

// WithSource injects the generator of jitter and loss draws
func WithSource(src Source) Option {
	return func(sim *Simulator) error {
		if src == nil {
			return fmt.Errorf("%w: nil random source", ErrInvalidInput)
		}
		sim.rng = src
		return nil
	}
}

// WithClock injects the clock used for timestamps and pacing
func WithClock(clk Clock) Option {
	return func(sim *Simulator) error {
		if clk == nil {
			return fmt.Errorf("%w: nil clock", ErrInvalidInput)
		}
		sim.clock = clk
		return nil
	}
}

// WithSettings replaces the default settings
func WithSettings(s Settings) Option {
	return func(sim *Simulator) error {
		if err := s.Validate(); err != nil {
			return err
		}
		sim.settings = s
		return nil
	}
}

// WithObserver registers an observer of appended records
func WithObserver(obs Observer) Option {
	return func(sim *Simulator) error {
		sim.observer = obs
		return nil
	}
}

// WithLogger sets the logger that receives a debug entry per transmission
func WithLogger(logger logging.Logger) Option {
	return func(sim *Simulator) error {
		if logger != nil {
			sim.logger = logger
		}
		return nil
	}
}

// CreateSimulator is a constructor.  Without options the simulator starts
// with an empty topology, an empty log, DefaultSettings, an rngstream
// source and the wall clock.
func CreateSimulator(opts ...Option) (*Simulator, error) {
	sim := new(Simulator)
	sim.topo = CreateTopology()
	sim.resolver = CreateResolver(sim.topo)
	sim.pcktLog = CreatePacketLog()
	sim.settings = DefaultSettings()
	sim.clock = WallClock()
	sim.logger = logging.Noop()

	for _, opt := range opts {
		if err := opt(sim); err != nil {
			return nil, err
		}
	}
	if sim.rng == nil {
		sim.rng = NewStreamSource("netsim")
	}
	return sim, nil
}

// Topology gives access to the device and link store
func (sim *Simulator) Topology() *Topology {
	return sim.topo
}

// PacketLog gives access to the history of transmissions
func (sim *Simulator) PacketLog() *PacketLog {
	return sim.pcktLog
}

// Resolve returns the route Send would plan between source and dest
func (sim *Simulator) Resolve(source, dest string) (Route, error) {
	return sim.resolver.Resolve(source, dest)
}

// Settings returns the current transmission settings
func (sim *Simulator) Settings() Settings {
	return sim.settings
}

// SetSettings replaces the transmission settings after validating them
func (sim *Simulator) SetSettings(s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	sim.settings = s
	return nil
}

// SetJitter changes the bounds of the jitter factor
func (sim *Simulator) SetJitter(min, max float64) error {
	s := sim.settings
	s.JitterMin, s.JitterMax = min, max
	return sim.SetSettings(s)
}

// SetPacing changes the per-hop pacing delay given in seconds
func (sim *Simulator) SetPacing(secs float64) error {
	pacing, err := pacingFromSeconds(secs)
	if err != nil {
		return err
	}
	s := sim.settings
	s.Pacing = pacing
	return sim.SetSettings(s)
}

// drawJitter returns a factor uniformly distributed in [JitterMin, JitterMax)
func (sim *Simulator) drawJitter() float64 {
	lo, hi := sim.settings.JitterMin, sim.settings.JitterMax
	if lo == hi {
		return lo
	}
	return lo + (hi-lo)*sim.rng.RandU01()
}

// Send simulates the transmission of payload from sender to receiver along
// the minimum-latency route.  Each hop draws a jitter factor and then a loss
// trial; the first lost hop ends the transmission.  A lost message is not
// resent.  The record is appended to the packet log and returned.
// Errors (unknown devices, no route) leave the log untouched.
func (sim *Simulator) Send(sender, receiver, payload string) (TransmissionRecord, error) {
	if !sim.topo.HasDevice(sender) {
		return TransmissionRecord{}, fmt.Errorf("%w: sender %q", ErrNotFound, sender)
	}
	if !sim.topo.HasDevice(receiver) {
		return TransmissionRecord{}, fmt.Errorf("%w: receiver %q", ErrNotFound, receiver)
	}

	route, err := sim.resolver.Resolve(sender, receiver)
	if err != nil {
		return TransmissionRecord{}, err
	}

	rec := TransmissionRecord{
		Sender:       sender,
		Receiver:     receiver,
		Payload:      payload,
		PlannedRoute: route.Nodes,
		ActualRoute:  []string{sender},
		Success:      true,
		Hops:         make([]HopTrace, 0, len(route.Nodes)-1),
	}

	for idx := 1; idx < len(route.Nodes); idx++ {
		from, to := route.Nodes[idx-1], route.Nodes[idx]
		lnk, err := sim.topo.Link(from, to)
		if err != nil {
			return TransmissionRecord{}, err
		}

		jitter := sim.drawJitter()
		actual := lnk.LatencyMs * jitter
		rec.TotalLatencyMs += actual
		lost := sim.rng.RandU01() < lnk.LossProbability

		rec.Hops = append(rec.Hops, HopTrace{
			From:            from,
			To:              to,
			NominalMs:       lnk.LatencyMs,
			Jitter:          jitter,
			ActualMs:        actual,
			LossProbability: lnk.LossProbability,
			Lost:            lost,
			Arrival:         vrtime.SecondsToTime(rec.TotalLatencyMs / 1000.0),
		})

		if lost {
			rec.Success = false
			rec.FailureReason = fmt.Sprintf("packet lost on link %s <-> %s", from, to)
			break
		}
		rec.ActualRoute = append(rec.ActualRoute, to)

		if sim.settings.Pacing > 0 {
			sim.clock.Sleep(sim.settings.Pacing)
		}
	}

	rec.Time = sim.clock.Now()
	sim.pcktLog.Append(rec)

	if sim.observer != nil {
		sim.observer.ObserveTransmission(rec.clone())
	}
	sim.logger.Debug(context.Background(), "transmission",
		logging.String("sender", sender),
		logging.String("receiver", receiver),
		logging.String("route", route.String()),
		logging.Int("hops", len(rec.Hops)),
		logging.Float("latency_ms", rec.TotalLatencyMs),
		logging.Bool("success", rec.Success))

	return rec, nil
}
