package netsim

// topo.go holds the devices and links of a simulated network and enforces the
// structural rules every mutation has to respect.  The store keeps no layout
// or rendering state; a presentation layer watches Version() to learn when
// something changed.

import (
	"fmt"
	"math"
	"strings"

	"golang.org/x/exp/slices"
)

// DeviceKind says whether a device is a router or a host.  The kind is
// carried along as metadata only, routing and transmission ignore it.
type DeviceKind int

const (
	Router DeviceKind = iota
	Host
)

// String returns the textual form used in documents
func (dk DeviceKind) String() string {
	switch dk {
	case Router:
		return "router"
	case Host:
		return "host"
	}
	return fmt.Sprintf("DeviceKind(%d)", int(dk))
}

// valid reports whether dk is one of the declared kinds
func (dk DeviceKind) valid() bool {
	return dk == Router || dk == Host
}

// ParseDeviceKind converts the textual form of a kind back to a DeviceKind.
// The empty string is accepted as Router, the kind devices get when none is named.
func ParseDeviceKind(kind string) (DeviceKind, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", "router":
		return Router, nil
	case "host":
		return Host, nil
	}
	return Router, fmt.Errorf("%w: unknown device kind %q", ErrInvalidInput, kind)
}

// A Device is a node of the simulated network
type Device struct {
	ID   string
	Kind DeviceKind
}

// A Link is an undirected connection between two devices.  A and B are
// stored so that A < B, whatever order the link was created with.
type Link struct {
	A, B            string
	LatencyMs       float64
	LossProbability float64
}

// Other returns the endpoint of the link that is not id
func (lnk Link) Other(id string) string {
	if lnk.A == id {
		return lnk.B
	}
	return lnk.A
}

// linkKey identifies a link by its (ordered) pair of endpoints
type linkKey struct {
	a, b string
}

func makeLinkKey(a, b string) linkKey {
	if b < a {
		a, b = b, a
	}
	return linkKey{a: a, b: b}
}

// Topology is the store of devices and links.  The zero value is not ready
// for use, create one with CreateTopology.  A Topology is not safe for
// concurrent use; hosts that share one across goroutines serialize access.
type Topology struct {
	devices map[string]*Device

	// links indexed by ordered endpoint pair
	links map[linkKey]*Link

	// adjacency lists the link keys incident on each device
	adjacency map[string]map[linkKey]bool

	version uint64
}

// CreateTopology is a constructor
func CreateTopology() *Topology {
	topo := new(Topology)
	topo.devices = make(map[string]*Device)
	topo.links = make(map[linkKey]*Link)
	topo.adjacency = make(map[string]map[linkKey]bool)
	return topo
}

// Version returns a counter that increases with every successful mutation
func (topo *Topology) Version() uint64 {
	return topo.version
}

func (topo *Topology) bump() {
	topo.version++
}

// AddDevice includes a new device in the topology
func (topo *Topology) AddDevice(id string, kind DeviceKind) error {
	if id == "" {
		return fmt.Errorf("%w: device id is empty", ErrInvalidInput)
	}
	if !kind.valid() {
		return fmt.Errorf("%w: unknown device kind %d", ErrInvalidInput, int(kind))
	}
	if _, present := topo.devices[id]; present {
		return fmt.Errorf("%w: device %q already exists", ErrDuplicateID, id)
	}
	topo.devices[id] = &Device{ID: id, Kind: kind}
	topo.adjacency[id] = make(map[linkKey]bool)
	topo.bump()
	return nil
}

// UpdateDeviceKind changes the kind of an existing device
func (topo *Topology) UpdateDeviceKind(id string, kind DeviceKind) error {
	dev, present := topo.devices[id]
	if !present {
		return fmt.Errorf("%w: device %q", ErrNotFound, id)
	}
	if !kind.valid() {
		return fmt.Errorf("%w: unknown device kind %d", ErrInvalidInput, int(kind))
	}
	dev.Kind = kind
	topo.bump()
	return nil
}

// RemoveDevice deletes a device together with every link incident on it
func (topo *Topology) RemoveDevice(id string) error {
	if _, present := topo.devices[id]; !present {
		return fmt.Errorf("%w: device %q", ErrNotFound, id)
	}
	for key := range topo.adjacency[id] {
		other := key.a
		if other == id {
			other = key.b
		}
		delete(topo.adjacency[other], key)
		delete(topo.links, key)
	}
	delete(topo.adjacency, id)
	delete(topo.devices, id)
	topo.bump()
	return nil
}

// validLatency and validLoss hold the range rules applied at mutation time
func validLatency(latencyMs float64) error {
	if math.IsNaN(latencyMs) || math.IsInf(latencyMs, 0) || latencyMs < 0 {
		return fmt.Errorf("%w: latency %v ms must be a finite value >= 0", ErrInvalidInput, latencyMs)
	}
	return nil
}

func validLoss(loss float64) error {
	if math.IsNaN(loss) || loss < 0 || loss > 1 {
		return fmt.Errorf("%w: loss probability %v must be in [0,1]", ErrInvalidInput, loss)
	}
	return nil
}

// AddLink connects devices a and b
func (topo *Topology) AddLink(a, b string, latencyMs, loss float64) error {
	if a == b {
		return fmt.Errorf("%w: device %q cannot link to itself", ErrSelfLink, a)
	}
	for _, id := range []string{a, b} {
		if _, present := topo.devices[id]; !present {
			return fmt.Errorf("%w: device %q", ErrNotFound, id)
		}
	}
	key := makeLinkKey(a, b)
	if _, present := topo.links[key]; present {
		return fmt.Errorf("%w: %s <-> %s", ErrDuplicateLink, key.a, key.b)
	}
	if err := validLatency(latencyMs); err != nil {
		return err
	}
	if err := validLoss(loss); err != nil {
		return err
	}

	topo.links[key] = &Link{A: key.a, B: key.b, LatencyMs: latencyMs, LossProbability: loss}
	topo.adjacency[key.a][key] = true
	topo.adjacency[key.b][key] = true
	topo.bump()
	return nil
}

// findLink returns the link between a and b, in either order
func (topo *Topology) findLink(a, b string) (*Link, error) {
	lnk, present := topo.links[makeLinkKey(a, b)]
	if !present {
		return nil, fmt.Errorf("%w: link %s <-> %s", ErrNotFound, a, b)
	}
	return lnk, nil
}

// RemoveLink deletes the link between a and b
func (topo *Topology) RemoveLink(a, b string) error {
	if _, err := topo.findLink(a, b); err != nil {
		return err
	}
	key := makeLinkKey(a, b)
	delete(topo.links, key)
	delete(topo.adjacency[key.a], key)
	delete(topo.adjacency[key.b], key)
	topo.bump()
	return nil
}

// SetLinkLatency changes the nominal latency of the link between a and b
func (topo *Topology) SetLinkLatency(a, b string, latencyMs float64) error {
	lnk, err := topo.findLink(a, b)
	if err != nil {
		return err
	}
	if err := validLatency(latencyMs); err != nil {
		return err
	}
	lnk.LatencyMs = latencyMs
	topo.bump()
	return nil
}

// SetLinkLoss changes the loss probability of the link between a and b
func (topo *Topology) SetLinkLoss(a, b string, loss float64) error {
	lnk, err := topo.findLink(a, b)
	if err != nil {
		return err
	}
	if err := validLoss(loss); err != nil {
		return err
	}
	lnk.LossProbability = loss
	topo.bump()
	return nil
}

// Clear removes every device and link
func (topo *Topology) Clear() {
	topo.devices = make(map[string]*Device)
	topo.links = make(map[linkKey]*Link)
	topo.adjacency = make(map[string]map[linkKey]bool)
	topo.bump()
}

// HasDevice reports whether a device with the given id exists
func (topo *Topology) HasDevice(id string) bool {
	_, present := topo.devices[id]
	return present
}

// Device returns a copy of the named device
func (topo *Topology) Device(id string) (Device, error) {
	dev, present := topo.devices[id]
	if !present {
		return Device{}, fmt.Errorf("%w: device %q", ErrNotFound, id)
	}
	return *dev, nil
}

// Devices lists copies of all devices, sorted by id
func (topo *Topology) Devices() []Device {
	devs := make([]Device, 0, len(topo.devices))
	for _, dev := range topo.devices {
		devs = append(devs, *dev)
	}
	slices.SortFunc(devs, func(x, y Device) int { return strings.Compare(x.ID, y.ID) })
	return devs
}

// Link returns a copy of the link between a and b
func (topo *Topology) Link(a, b string) (Link, error) {
	lnk, err := topo.findLink(a, b)
	if err != nil {
		return Link{}, err
	}
	return *lnk, nil
}

// Links lists copies of all links, sorted by (A, B)
func (topo *Topology) Links() []Link {
	lnks := make([]Link, 0, len(topo.links))
	for _, lnk := range topo.links {
		lnks = append(lnks, *lnk)
	}
	slices.SortFunc(lnks, compareLinks)
	return lnks
}

func compareLinks(x, y Link) int {
	if c := strings.Compare(x.A, y.A); c != 0 {
		return c
	}
	return strings.Compare(x.B, y.B)
}

// Neighbors returns the ids of the devices directly linked to id, sorted
func (topo *Topology) Neighbors(id string) ([]string, error) {
	incident, present := topo.adjacency[id]
	if !present {
		return nil, fmt.Errorf("%w: device %q", ErrNotFound, id)
	}
	nbrs := make([]string, 0, len(incident))
	for key := range incident {
		if key.a == id {
			nbrs = append(nbrs, key.b)
		} else {
			nbrs = append(nbrs, key.a)
		}
	}
	slices.Sort(nbrs)
	return nbrs, nil
}

// Len returns the number of devices and the number of links
func (topo *Topology) Len() (devices, links int) {
	return len(topo.devices), len(topo.links)
}
