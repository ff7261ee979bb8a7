package analysis

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/orneryd/muninn/pkg/graph"
	"github.com/orneryd/muninn/pkg/ident"
)

// CommunityOptions configures Louvain community detection.
type CommunityOptions struct {
	// Resolution multiplies the expected-edge term of the modularity gain.
	// 1.0 is canonical Newman; higher values favor smaller communities.
	Resolution float64
	// MinCommunitySize drops communities below this many members.
	MinCommunitySize int
	// MaxIterations bounds the local-move passes.
	MaxIterations int
	// RandomSeed seeds the node-order shuffle. The same seed on the same
	// graph yields the same communities.
	RandomSeed int64
	// Logger receives per-pass debug output.
	Logger *zap.Logger
}

// DefaultCommunityOptions returns the spec defaults. The seed is taken from
// the wall clock at call time, so fix it explicitly for reproducible runs.
func DefaultCommunityOptions() CommunityOptions {
	return CommunityOptions{
		Resolution:       1.0,
		MinCommunitySize: 1,
		MaxIterations:    200,
		RandomSeed:       ident.WallClock{}.Now().UnixNano(),
	}
}

// CommunityDetector finds communities by Louvain modularity maximization.
type CommunityDetector struct {
	opts CommunityOptions
	log  *zap.Logger
}

// NewCommunityDetector creates a detector with the given options.
func NewCommunityDetector(opts CommunityOptions) *CommunityDetector {
	if opts.Resolution <= 0 {
		opts.Resolution = 1.0
	}
	if opts.MinCommunitySize < 1 {
		opts.MinCommunitySize = 1
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = 200
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &CommunityDetector{opts: opts, log: log}
}

// weightedGraph is the undirected weighted projection Louvain runs on.
type weightedGraph struct {
	nodes     []graph.NodeID
	index     map[graph.NodeID]int
	neighbors [][]weightedArc // excludes self-loops
	selfLoop  []float64
	degree    []float64 // k_u: sum of incident weights, self-loop once
	m         float64   // total edge weight
}

type weightedArc struct {
	to     int
	weight float64
}

func buildWeightedGraph(store *graph.Store) *weightedGraph {
	nodes := store.AllNodes()
	wg := &weightedGraph{
		nodes:     make([]graph.NodeID, len(nodes)),
		index:     make(map[graph.NodeID]int, len(nodes)),
		neighbors: make([][]weightedArc, len(nodes)),
		selfLoop:  make([]float64, len(nodes)),
		degree:    make([]float64, len(nodes)),
	}
	for i, n := range nodes {
		wg.nodes[i] = n.ID
		wg.index[n.ID] = i
	}

	for _, e := range store.AllEdges() {
		u := wg.index[e.From]
		v := wg.index[e.To]
		w := e.Strength
		wg.m += w
		if u == v {
			wg.selfLoop[u] += w
			wg.degree[u] += w
			continue
		}
		wg.neighbors[u] = append(wg.neighbors[u], weightedArc{to: v, weight: w})
		wg.neighbors[v] = append(wg.neighbors[v], weightedArc{to: u, weight: w})
		wg.degree[u] += w
		wg.degree[v] += w
	}
	return wg
}

// louvainState tracks community membership and the incremental sums.
type louvainState struct {
	community []int     // node index -> community id
	sigmaTot  []float64 // community -> sum of member degrees
	sigmaIn   []float64 // community -> internal edge weight (each edge once)
	members   []map[int]struct{}
}

func newLouvainState(wg *weightedGraph) *louvainState {
	n := len(wg.nodes)
	st := &louvainState{
		community: make([]int, n),
		sigmaTot:  make([]float64, n),
		sigmaIn:   make([]float64, n),
		members:   make([]map[int]struct{}, n),
	}
	for i := 0; i < n; i++ {
		st.community[i] = i
		st.sigmaTot[i] = wg.degree[i]
		st.sigmaIn[i] = wg.selfLoop[i]
		st.members[i] = map[int]struct{}{i: {}}
	}
	return st
}

// weightToCommunity sums edge weights from u into each adjacent community.
func (st *louvainState) weightToCommunity(wg *weightedGraph, u int) map[int]float64 {
	out := make(map[int]float64)
	for _, arc := range wg.neighbors[u] {
		out[st.community[arc.to]] += arc.weight
	}
	return out
}

func (st *louvainState) remove(wg *weightedGraph, u int, kToComm map[int]float64) {
	c := st.community[u]
	st.sigmaTot[c] -= wg.degree[u]
	st.sigmaIn[c] -= kToComm[c] + wg.selfLoop[u]
	delete(st.members[c], u)
	st.community[u] = -1
}

func (st *louvainState) insert(wg *weightedGraph, u, c int, kToComm map[int]float64) {
	st.sigmaTot[c] += wg.degree[u]
	st.sigmaIn[c] += kToComm[c] + wg.selfLoop[u]
	st.members[c][u] = struct{}{}
	st.community[u] = c
}

// DetectCommunities runs Louvain on the store's current graph.
//
// Edge cases: an empty graph yields an empty result; a graph with zero total
// edge weight yields one singleton cluster per node with coherence 1.
// Disconnected components are never merged (no positive gain can join them).
func (d *CommunityDetector) DetectCommunities(store *graph.Store) []KnowledgeCluster {
	wg := buildWeightedGraph(store)
	n := len(wg.nodes)
	if n == 0 {
		return []KnowledgeCluster{}
	}

	st := newLouvainState(wg)

	if wg.m > 0 {
		d.localMove(wg, st)
	}

	return d.collect(wg, st)
}

// localMove is Louvain phase 1: move nodes between communities while any
// move yields a strictly positive modularity gain.
//
// The gain of moving u into community C is
//
//	dQ = k_uC/m - resolution * sigmaTot(C) * k_u / (2m^2)
//
// evaluated with u removed from its own community. Ties keep the current
// community.
func (d *CommunityDetector) localMove(wg *weightedGraph, st *louvainState) {
	n := len(wg.nodes)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	rng := ident.NewRand(d.opts.RandomSeed)

	m := wg.m
	for pass := 0; pass < d.opts.MaxIterations; pass++ {
		rng.Shuffle(n, func(i, j int) { order[i], order[j] = order[j], order[i] })

		moved := 0
		for _, u := range order {
			kToComm := st.weightToCommunity(wg, u)
			current := st.community[u]
			st.remove(wg, u, kToComm)

			gain := func(c int) float64 {
				return kToComm[c]/m - d.opts.Resolution*st.sigmaTot[c]*wg.degree[u]/(2*m*m)
			}

			best := current
			bestGain := gain(current)
			// Candidate communities: every community holding a neighbor.
			candidates := make([]int, 0, len(kToComm))
			for c := range kToComm {
				if c != current {
					candidates = append(candidates, c)
				}
			}
			sort.Ints(candidates)
			for _, c := range candidates {
				if g := gain(c); g > bestGain {
					bestGain = g
					best = c
				}
			}

			st.insert(wg, u, best, kToComm)
			if best != current {
				moved++
			}
		}

		d.log.Debug("louvain pass", zap.Int("pass", pass), zap.Int("moved", moved))
		if moved == 0 {
			break
		}
	}
}

// collect turns the final state into clusters, applying MinCommunitySize.
func (d *CommunityDetector) collect(wg *weightedGraph, st *louvainState) []KnowledgeCluster {
	clusters := make([]KnowledgeCluster, 0)

	commIDs := make([]int, 0)
	for c := range st.members {
		if len(st.members[c]) > 0 {
			commIDs = append(commIDs, c)
		}
	}
	// Order clusters by their smallest member id for stable output.
	sort.Slice(commIDs, func(i, j int) bool {
		return smallestMember(wg, st, commIDs[i]) < smallestMember(wg, st, commIDs[j])
	})

	seq := 0
	for _, c := range commIDs {
		members := st.members[c]
		if len(members) < d.opts.MinCommunitySize {
			continue
		}
		nodes := make([]graph.NodeID, 0, len(members))
		for idx := range members {
			nodes = append(nodes, wg.nodes[idx])
		}
		sort.Slice(nodes, func(i, j int) bool { return nodes[i] < nodes[j] })

		coherence := 1.0
		if len(members) > 1 && st.sigmaTot[c] > 0 {
			coherence = 2 * st.sigmaIn[c] / st.sigmaTot[c]
			if coherence > 1 {
				coherence = 1
			}
		}

		modularity := 0.0
		if wg.m > 0 {
			frac := st.sigmaTot[c] / (2 * wg.m)
			modularity = st.sigmaIn[c]/wg.m - frac*frac
		}

		seq++
		clusters = append(clusters, KnowledgeCluster{
			ID:         fmt.Sprintf("community_%d", seq),
			Nodes:      nodes,
			Algorithm:  AlgorithmCommunity,
			Coherence:  coherence,
			Modularity: modularity,
		})
	}
	return clusters
}

func smallestMember(wg *weightedGraph, st *louvainState, c int) graph.NodeID {
	var smallest graph.NodeID
	first := true
	for idx := range st.members[c] {
		if first || wg.nodes[idx] < smallest {
			smallest = wg.nodes[idx]
			first = false
		}
	}
	return smallest
}
