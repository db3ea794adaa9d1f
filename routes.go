package netsim

// routes.go provides functions to create and access minimum-latency routes through a netsim topology

import (
	"fmt"
	"math"
	"strings"

	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
)

// The general approach we use is to convert the topology into the data structures
// used by a graph package that has built-in path discovery algorithms.  Each link
// becomes an undirected edge weighted by its nominal latency, so a shortest path
// minimizes the sum of latencies along the route.
//
//   Device ids are sorted and numbered 0..n-1, so the order of graph node ids is the
// order of device ids.  The Dijkstra algorithm computes a tree of shortest distances
// rooted in the destination.  From the source we then walk only 'tight' edges, those
// (u,v) where weight(u,v) + dist(v) equals dist(u).  At each step the walk takes the
// smallest neighbor from which the destination can still be reached over tight edges
// without touching a node already on the path.  Every tight walk is a shortest path,
// and choosing the smallest viable neighbor each time yields the lexicographically
// smallest sequence of device ids, the tie-break rule among equal-latency routes.
// The reachability check means the walk never has to backtrack, so groups of
// zero-latency links cost one search per candidate rather than one per path.

// epsilon is the unit roundoff of float64
const epsilon = 0x1p-52

// A Route is a path through the topology together with its nominal latency
type Route struct {
	Nodes     []string
	LatencyMs float64
}

// String lists the devices on the route, in order
func (rt Route) String() string {
	return strings.Join(rt.Nodes, " -> ")
}

// Resolver computes minimum-latency routes over a Topology.  It caches the
// graph representation and the shortest-path trees it computes, and drops
// those caches whenever the topology version changes.
type Resolver struct {
	topo *Topology

	// version of the topology the caches were built from
	version uint64
	built   bool

	connGraph *simple.WeightedUndirectedGraph
	nodeByID  map[string]int64
	idByNode  []string

	// tol is the relative rounding error a sum of latencies along a simple path may carry
	tol float64

	// cachedSP saves the result of computing shortest-path trees.
	// The key is the graph node id of the tree root
	cachedSP map[int64]path.Shortest
}

// CreateResolver is a constructor
func CreateResolver(topo *Topology) *Resolver {
	return &Resolver{topo: topo}
}

// buildConnGraph (re)creates the gonum representation of the topology
func (rs *Resolver) buildConnGraph() {
	devs := rs.topo.Devices()

	rs.connGraph = simple.NewWeightedUndirectedGraph(0, math.Inf(1))
	rs.nodeByID = make(map[string]int64, len(devs))
	rs.idByNode = make([]string, len(devs))
	rs.cachedSP = make(map[int64]path.Shortest)
	rs.tol = float64(len(devs)+1) * epsilon

	for idx, dev := range devs {
		rs.nodeByID[dev.ID] = int64(idx)
		rs.idByNode[idx] = dev.ID
		rs.connGraph.AddNode(simple.Node(idx))
	}
	for _, lnk := range rs.topo.Links() {
		edge := simple.WeightedEdge{
			F: simple.Node(rs.nodeByID[lnk.A]),
			T: simple.Node(rs.nodeByID[lnk.B]),
			W: lnk.LatencyMs,
		}
		rs.connGraph.SetWeightedEdge(edge)
	}

	rs.version = rs.topo.Version()
	rs.built = true
}

// refresh makes sure the caches describe the current topology
func (rs *Resolver) refresh() {
	if !rs.built || rs.version != rs.topo.Version() {
		rs.buildConnGraph()
	}
}

// getSPTree returns the shortest path tree rooted in 'root'.  If the tree is
// found in the cache it is returned, if not it is computed, saved, and returned.
func (rs *Resolver) getSPTree(root int64) path.Shortest {
	spTree, present := rs.cachedSP[root]
	if present {
		return spTree
	}
	spTree = path.DijkstraFrom(rs.connGraph.Node(root), rs.connGraph)
	rs.cachedSP[root] = spTree
	return spTree
}

// Resolve returns the minimum total-latency simple path from source to dest.
// Among paths of equal latency the lexicographically smallest sequence of
// device ids is returned.
func (rs *Resolver) Resolve(source, dest string) (Route, error) {
	for _, id := range []string{source, dest} {
		if !rs.topo.HasDevice(id) {
			return Route{}, fmt.Errorf("%w: device %q", ErrNotFound, id)
		}
	}
	if source == dest {
		return Route{Nodes: []string{source}}, nil
	}

	rs.refresh()
	srcNode := rs.nodeByID[source]
	dstNode := rs.nodeByID[dest]

	// distances are measured to the destination, links are undirected
	spTree := rs.getSPTree(dstNode)
	if math.IsInf(spTree.WeightTo(srcNode), 1) {
		return Route{}, fmt.Errorf("%w: no route from %s to %s", ErrNoPath, source, dest)
	}

	nodeSeq, found := rs.tightWalk(srcNode, dstNode, spTree)
	if !found {
		// cannot happen when dist(source) is finite, kept as a guard
		return Route{}, fmt.Errorf("%w: no route from %s to %s", ErrNoPath, source, dest)
	}

	route := Route{Nodes: make([]string, 0, len(nodeSeq))}
	for idx, node := range nodeSeq {
		route.Nodes = append(route.Nodes, rs.idByNode[node])
		if idx > 0 {
			w, _ := rs.connGraph.Weight(nodeSeq[idx-1], node)
			route.LatencyMs += w
		}
	}
	return route, nil
}

// tightWalk builds the lexicographically smallest shortest path from src to dst
func (rs *Resolver) tightWalk(src, dst int64, spTree path.Shortest) ([]int64, bool) {
	onPath := make([]bool, len(rs.idByNode))
	seq := []int64{src}
	onPath[src] = true

	for here := src; here != dst; {
		nxt, ok := rs.nextTight(here, dst, spTree, onPath)
		if !ok {
			return nil, false
		}
		seq = append(seq, nxt)
		onPath[nxt] = true
		here = nxt
	}
	return seq, true
}

// nextTight returns the smallest neighbor of 'here' across a tight edge from
// which dst stays reachable while avoiding the nodes on the path
func (rs *Resolver) nextTight(here, dst int64, spTree path.Shortest, onPath []bool) (int64, bool) {
	for _, nxt := range rs.sortedNeighbors(here) {
		if onPath[nxt] || !rs.tightEdge(here, nxt, spTree) {
			continue
		}
		if rs.reachesOverTight(nxt, dst, spTree, onPath) {
			return nxt, true
		}
	}
	return -1, false
}

// reachesOverTight is a breadth-first search from 'from' to dst over tight
// edges that skips the nodes marked in 'avoid'
func (rs *Resolver) reachesOverTight(from, dst int64, spTree path.Shortest, avoid []bool) bool {
	seen := make([]bool, len(rs.idByNode))
	seen[from] = true
	queue := []int64{from}
	for len(queue) > 0 {
		here := queue[0]
		queue = queue[1:]
		if here == dst {
			return true
		}
		nbrs := rs.connGraph.From(here)
		for nbrs.Next() {
			nxt := nbrs.Node().ID()
			if seen[nxt] || avoid[nxt] || !rs.tightEdge(here, nxt, spTree) {
				continue
			}
			seen[nxt] = true
			queue = append(queue, nxt)
		}
	}
	return false
}

// sortedNeighbors lists the graph neighbors of a node in ascending id order
func (rs *Resolver) sortedNeighbors(node int64) []int64 {
	ids := make([]int64, 0)
	nbrs := rs.connGraph.From(node)
	for nbrs.Next() {
		ids = append(ids, nbrs.Node().ID())
	}
	slices.Sort(ids)
	return ids
}

// tightEdge reports whether the edge (u,v) lies on a shortest path toward the tree root
func (rs *Resolver) tightEdge(u, v int64, spTree path.Shortest) bool {
	w, _ := rs.connGraph.Weight(u, v)
	return rs.tight(w+spTree.WeightTo(v), spTree.WeightTo(u))
}

// tight reports whether two summed latencies are equal up to rounding.  All
// latencies are non-negative, so the error of a sum is bounded relative to its size.
func (rs *Resolver) tight(x, y float64) bool {
	if math.IsInf(x, 0) || math.IsInf(y, 0) {
		return false
	}
	return math.Abs(x-y) <= rs.tol*math.Max(math.Abs(x), math.Abs(y))
}
