package analysis

import (
	"fmt"
	"sort"

	"github.com/orneryd/muninn/pkg/graph"
	"github.com/orneryd/muninn/pkg/ident"
)

// StructuralOptions configures the pattern miner.
type StructuralOptions struct {
	// MinSupport drops candidates whose support (occurrences / node count)
	// falls below it.
	MinSupport float64
	// MinConfidence drops candidates below this template-specific score.
	MinConfidence float64
	// MaxPatternSize bounds chain, cycle, and tree instances (in nodes).
	MaxPatternSize int
	// MinChainLength is the minimum chain length in edges.
	MinChainLength int
	// StarMinNeighbors is the minimum distinct same-type neighbors of a
	// star center.
	StarMinNeighbors int
	// Templates restricts mining to the listed pattern types; empty means
	// all templates.
	Templates []PatternType
	// Clock stamps LastSeen on discovered patterns.
	Clock ident.Clock
}

// DefaultStructuralOptions returns permissive mining defaults.
func DefaultStructuralOptions() StructuralOptions {
	return StructuralOptions{
		MinSupport:       0.0,
		MinConfidence:    0.0,
		MaxPatternSize:   6,
		MinChainLength:   3,
		StarMinNeighbors: 3,
		Clock:            ident.WallClock{},
	}
}

// StructuralPatternMiner enumerates structural motifs by template.
type StructuralPatternMiner struct {
	opts StructuralOptions
}

// NewStructuralPatternMiner creates a miner with the given options.
func NewStructuralPatternMiner(opts StructuralOptions) *StructuralPatternMiner {
	if opts.MaxPatternSize < 3 {
		opts.MaxPatternSize = 6
	}
	if opts.MinChainLength < 2 {
		opts.MinChainLength = 3
	}
	if opts.StarMinNeighbors < 2 {
		opts.StarMinNeighbors = 3
	}
	if opts.Clock == nil {
		opts.Clock = ident.WallClock{}
	}
	return &StructuralPatternMiner{opts: opts}
}

// Mine runs every enabled template over the store and returns the patterns
// passing the support and confidence thresholds, ordered by template then
// discovery order.
func (m *StructuralPatternMiner) Mine(store *graph.Store) []GraphPattern {
	if store.NodeCount() == 0 {
		return []GraphPattern{}
	}

	enabled := make(map[PatternType]bool)
	if len(m.opts.Templates) == 0 {
		for _, t := range []PatternType{PatternStar, PatternChain, PatternCycle, PatternTree, PatternBridge, PatternCluster, PatternHub} {
			enabled[t] = true
		}
	} else {
		for _, t := range m.opts.Templates {
			enabled[t] = true
		}
	}

	patterns := make([]GraphPattern, 0)
	if enabled[PatternStar] {
		patterns = append(patterns, m.mineStars(store)...)
	}
	if enabled[PatternChain] {
		patterns = append(patterns, m.mineChains(store)...)
	}
	if enabled[PatternCycle] {
		patterns = append(patterns, m.mineCycles(store)...)
	}
	if enabled[PatternTree] {
		patterns = append(patterns, m.mineTrees(store)...)
	}
	if enabled[PatternBridge] {
		patterns = append(patterns, m.mineBridges(store)...)
	}
	if enabled[PatternCluster] {
		patterns = append(patterns, m.mineClusters(store)...)
	}
	if enabled[PatternHub] {
		patterns = append(patterns, m.mineHubs(store)...)
	}

	kept := patterns[:0]
	for _, p := range patterns {
		if p.Support >= m.opts.MinSupport && p.Confidence >= m.opts.MinConfidence {
			kept = append(kept, p)
		}
	}
	return kept
}

func (m *StructuralPatternMiner) newPattern(t PatternType, seq int, nodes []graph.NodeID, edges []PatternEdge, support, confidence float64, frequency int) GraphPattern {
	if support > 1 {
		support = 1
	}
	if confidence > 1 {
		confidence = 1
	}
	return GraphPattern{
		ID:         fmt.Sprintf("%s_%d", t, seq),
		Type:       t,
		Nodes:      nodes,
		Edges:      edges,
		Support:    support,
		Confidence: confidence,
		Frequency:  frequency,
		LastSeen:   m.opts.Clock.Now(),
	}
}

// mineStars finds centers with >= StarMinNeighbors distinct neighbors over
// edges of a single type. Confidence is the fraction of the center's
// incident edges participating in the star.
func (m *StructuralPatternMiner) mineStars(store *graph.Store) []GraphPattern {
	nodeCount := float64(store.NodeCount())
	patterns := make([]GraphPattern, 0)
	seq := 0

	for _, node := range store.AllNodes() {
		incident := store.GetNodeEdges(node.ID, graph.DirectionBoth)
		if len(incident) == 0 {
			continue
		}

		byType := make(map[string][]*graph.Edge)
		for _, e := range incident {
			byType[e.Type] = append(byType[e.Type], e)
		}
		types := make([]string, 0, len(byType))
		for t := range byType {
			types = append(types, t)
		}
		sort.Strings(types)

		for _, edgeType := range types {
			edges := byType[edgeType]
			neighbors := make(map[graph.NodeID]struct{})
			for _, e := range edges {
				other := e.To
				if other == node.ID {
					other = e.From
				}
				if other != node.ID {
					neighbors[other] = struct{}{}
				}
			}
			if len(neighbors) < m.opts.StarMinNeighbors {
				continue
			}

			ids := []graph.NodeID{node.ID}
			for n := range neighbors {
				ids = append(ids, n)
			}
			sort.Slice(ids[1:], func(i, j int) bool { return ids[1+i] < ids[1+j] })

			patternEdges := make([]PatternEdge, 0, len(edges))
			for _, e := range edges {
				patternEdges = append(patternEdges, PatternEdge{From: e.From, To: e.To, Type: e.Type})
			}

			seq++
			patterns = append(patterns, m.newPattern(
				PatternStar, seq, ids, patternEdges,
				float64(len(neighbors))/nodeCount,
				float64(len(edges))/float64(len(incident)),
				len(neighbors),
			))
		}
	}
	return patterns
}

// mineChains finds maximal simple directed paths whose successive edges
// share one type, with length in [MinChainLength, MaxPatternSize-1] edges.
// Confidence is the average strength of the chain's edges.
func (m *StructuralPatternMiner) mineChains(store *graph.Store) []GraphPattern {
	nodeCount := float64(store.NodeCount())
	patterns := make([]GraphPattern, 0)
	seen := make(map[string]struct{})
	seq := 0

	var extend func(chain []graph.NodeID, edges []*graph.Edge, edgeType string)
	extend = func(chain []graph.NodeID, edges []*graph.Edge, edgeType string) {
		tail := chain[len(chain)-1]
		extended := false

		if len(chain) < m.opts.MaxPatternSize {
			for _, e := range store.GetNodeEdges(tail, graph.DirectionOut) {
				if e.Type != edgeType || containsNode(chain, e.To) {
					continue
				}
				extended = true
				extend(append(chain, e.To), append(edges, e), edgeType)
			}
		}

		if !extended && len(edges) >= m.opts.MinChainLength {
			key := edgeType + "|" + joinIDs(chain)
			if _, dup := seen[key]; dup {
				return
			}
			seen[key] = struct{}{}

			patternEdges := make([]PatternEdge, len(edges))
			var strength float64
			for i, e := range edges {
				patternEdges[i] = PatternEdge{From: e.From, To: e.To, Type: e.Type}
				strength += e.Strength
			}

			seq++
			chainCopy := make([]graph.NodeID, len(chain))
			copy(chainCopy, chain)
			patterns = append(patterns, m.newPattern(
				PatternChain, seq, chainCopy, patternEdges,
				float64(len(chain))/nodeCount,
				strength/float64(len(edges)),
				len(chain),
			))
		}
	}

	for _, node := range store.AllNodes() {
		// Only start chains at nodes with no same-type predecessor, so
		// each maximal chain is found once from its head.
		outgoing := store.GetNodeEdges(node.ID, graph.DirectionOut)
		startTypes := make(map[string]struct{})
		for _, e := range outgoing {
			startTypes[e.Type] = struct{}{}
		}
		incoming := store.GetNodeEdges(node.ID, graph.DirectionIn)
		for _, e := range incoming {
			delete(startTypes, e.Type)
		}
		types := make([]string, 0, len(startTypes))
		for t := range startTypes {
			types = append(types, t)
		}
		sort.Strings(types)
		for _, edgeType := range types {
			extend([]graph.NodeID{node.ID}, nil, edgeType)
		}
	}
	return patterns
}

// mineCycles finds simple directed cycles of length 3..MaxPatternSize,
// each reported once from its smallest node. Confidence is the average
// strength of the cycle's edges.
func (m *StructuralPatternMiner) mineCycles(store *graph.Store) []GraphPattern {
	nodeCount := float64(store.NodeCount())
	patterns := make([]GraphPattern, 0)
	seen := make(map[string]struct{})
	seq := 0

	nodes := store.AllNodes()
	for _, start := range nodes {
		var dfs func(chain []graph.NodeID, edges []*graph.Edge)
		dfs = func(chain []graph.NodeID, edges []*graph.Edge) {
			tail := chain[len(chain)-1]
			for _, e := range store.GetNodeEdges(tail, graph.DirectionOut) {
				if e.To == start.ID && len(chain) >= 3 {
					cycle := make([]graph.NodeID, len(chain))
					copy(cycle, chain)
					key := canonicalCycleKey(cycle)
					if _, dup := seen[key]; dup {
						continue
					}
					seen[key] = struct{}{}

					cycleEdges := make([]PatternEdge, 0, len(edges)+1)
					var strength float64
					for _, ce := range edges {
						cycleEdges = append(cycleEdges, PatternEdge{From: ce.From, To: ce.To, Type: ce.Type})
						strength += ce.Strength
					}
					cycleEdges = append(cycleEdges, PatternEdge{From: e.From, To: e.To, Type: e.Type})
					strength += e.Strength

					seq++
					patterns = append(patterns, m.newPattern(
						PatternCycle, seq, cycle, cycleEdges,
						float64(len(cycle))/nodeCount,
						strength/float64(len(cycleEdges)),
						len(cycle),
					))
					continue
				}
				// Canonical form: only explore nodes larger than the start.
				if e.To <= start.ID || containsNode(chain, e.To) {
					continue
				}
				if len(chain) >= m.opts.MaxPatternSize {
					continue
				}
				dfs(append(chain, e.To), append(edges, e))
			}
		}
		dfs([]graph.NodeID{start.ID}, nil)
	}
	return patterns
}

// mineTrees finds out-trees: a root with >= 2 children whose BFS expansion
// up to MaxPatternSize nodes revisits nothing. Confidence is the average
// strength of the tree's edges.
func (m *StructuralPatternMiner) mineTrees(store *graph.Store) []GraphPattern {
	nodeCount := float64(store.NodeCount())
	patterns := make([]GraphPattern, 0)
	seq := 0

	for _, root := range store.AllNodes() {
		out := store.GetNodeEdges(root.ID, graph.DirectionOut)
		if len(out) < 2 {
			continue
		}

		visited := map[graph.NodeID]bool{root.ID: true}
		nodes := []graph.NodeID{root.ID}
		treeEdges := make([]PatternEdge, 0)
		var strength float64
		isTree := true

		queue := []graph.NodeID{root.ID}
		for len(queue) > 0 && isTree && len(nodes) < m.opts.MaxPatternSize {
			current := queue[0]
			queue = queue[1:]
			for _, e := range store.GetNodeEdges(current, graph.DirectionOut) {
				if visited[e.To] {
					// A revisit means a shared descendant or a cycle.
					isTree = false
					break
				}
				if len(nodes) >= m.opts.MaxPatternSize {
					break
				}
				visited[e.To] = true
				nodes = append(nodes, e.To)
				treeEdges = append(treeEdges, PatternEdge{From: e.From, To: e.To, Type: e.Type})
				strength += e.Strength
				queue = append(queue, e.To)
			}
		}

		if !isTree || len(treeEdges) < 2 {
			continue
		}
		seq++
		patterns = append(patterns, m.newPattern(
			PatternTree, seq, nodes, treeEdges,
			float64(len(nodes))/nodeCount,
			strength/float64(len(treeEdges)),
			len(nodes),
		))
	}
	return patterns
}

// mineBridges reports each undirected bridge as a two-node pattern with
// structural confidence 1.
func (m *StructuralPatternMiner) mineBridges(store *graph.Store) []GraphPattern {
	nodeCount := float64(store.NodeCount())
	engine := NewCentralityEngine()
	patterns := make([]GraphPattern, 0)

	for seq, pair := range engine.BridgeEdges(store) {
		edges := make([]PatternEdge, 0, 2)
		for _, e := range store.GetNodeEdges(pair[0], graph.DirectionBoth) {
			if (e.From == pair[0] && e.To == pair[1]) || (e.From == pair[1] && e.To == pair[0]) {
				edges = append(edges, PatternEdge{From: e.From, To: e.To, Type: e.Type})
			}
		}
		patterns = append(patterns, m.newPattern(
			PatternBridge, seq+1, []graph.NodeID{pair[0], pair[1]}, edges,
			2/nodeCount, 1.0, 1,
		))
	}
	return patterns
}

// mineClusters reports connected components of >= 3 nodes whose undirected
// density reaches 0.5. Confidence is that density.
func (m *StructuralPatternMiner) mineClusters(store *graph.Store) []GraphPattern {
	nodeCount := float64(store.NodeCount())
	patterns := make([]GraphPattern, 0)
	seq := 0

	for _, component := range store.ConnectedComponents() {
		if len(component) < 3 {
			continue
		}
		inComponent := make(map[graph.NodeID]bool, len(component))
		for _, id := range component {
			inComponent[id] = true
		}

		edges := make([]PatternEdge, 0)
		seenPairs := make(map[[2]graph.NodeID]struct{})
		for _, id := range component {
			for _, e := range store.GetNodeEdges(id, graph.DirectionOut) {
				if !inComponent[e.To] || e.From == e.To {
					continue
				}
				edges = append(edges, PatternEdge{From: e.From, To: e.To, Type: e.Type})
				a, b := e.From, e.To
				if b < a {
					a, b = b, a
				}
				seenPairs[[2]graph.NodeID{a, b}] = struct{}{}
			}
		}

		n := float64(len(component))
		density := float64(len(seenPairs)) / (n * (n - 1) / 2)
		if density < 0.5 {
			continue
		}

		seq++
		patterns = append(patterns, m.newPattern(
			PatternCluster, seq, component, edges,
			n/nodeCount, density, len(component),
		))
	}
	return patterns
}

// mineHubs reports nodes whose total degree is at least twice the graph
// average (and at least StarMinNeighbors). Confidence is the node's share
// of the maximum degree.
func (m *StructuralPatternMiner) mineHubs(store *graph.Store) []GraphPattern {
	nodes := store.AllNodes()
	nodeCount := float64(len(nodes))
	if nodeCount == 0 {
		return []GraphPattern{}
	}

	degrees := make(map[graph.NodeID]int, len(nodes))
	total := 0
	maxDegree := 0
	for _, n := range nodes {
		d := len(store.GetNodeEdges(n.ID, graph.DirectionBoth))
		degrees[n.ID] = d
		total += d
		if d > maxDegree {
			maxDegree = d
		}
	}
	if maxDegree == 0 {
		return []GraphPattern{}
	}
	avg := float64(total) / nodeCount

	patterns := make([]GraphPattern, 0)
	seq := 0
	for _, n := range nodes {
		d := degrees[n.ID]
		if float64(d) < 2*avg || d < m.opts.StarMinNeighbors {
			continue
		}
		edges := make([]PatternEdge, 0, d)
		hubNodes := []graph.NodeID{n.ID}
		for _, e := range store.GetNodeEdges(n.ID, graph.DirectionBoth) {
			edges = append(edges, PatternEdge{From: e.From, To: e.To, Type: e.Type})
			other := e.To
			if other == n.ID {
				other = e.From
			}
			if other != n.ID && !containsNode(hubNodes, other) {
				hubNodes = append(hubNodes, other)
			}
		}
		seq++
		patterns = append(patterns, m.newPattern(
			PatternHub, seq, hubNodes, edges,
			float64(len(hubNodes))/nodeCount,
			float64(d)/float64(maxDegree),
			d,
		))
	}
	return patterns
}

func containsNode(ids []graph.NodeID, id graph.NodeID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

func joinIDs(ids []graph.NodeID) string {
	out := ""
	for i, id := range ids {
		if i > 0 {
			out += ","
		}
		out += string(id)
	}
	return out
}

// canonicalCycleKey fingerprints a cycle independent of rotation; the DFS
// already fixes the start at the smallest node, so joining suffices.
func canonicalCycleKey(cycle []graph.NodeID) string {
	return joinIDs(cycle)
}
