package analysis

import (
	"math"
	"sort"

	"github.com/orneryd/muninn/pkg/graph"
)

// pageRankDamping is the teleport damping factor.
const pageRankDamping = 0.85

// iterationEpsilon stops PageRank and eigenvector power iteration when the
// L1 residual between passes falls below it.
const iterationEpsilon = 1e-6

// maxPowerIterations caps PageRank and eigenvector iteration.
const maxPowerIterations = 100

// adjacency is an index-based view of the store, built once per analysis
// call so every metric sees the same point-in-time graph.
type adjacency struct {
	ids        []graph.NodeID
	index      map[graph.NodeID]int
	out        [][]int // distinct successor indexes, sorted
	in         [][]int
	undirected [][]int // distinct neighbor indexes over both directions, no self
	inDegree   []int   // incoming edge count (edges, not distinct nodes)
	outDegree  []int
}

func buildAdjacency(store *graph.Store) *adjacency {
	nodes := store.AllNodes()
	adj := &adjacency{
		ids:        make([]graph.NodeID, len(nodes)),
		index:      make(map[graph.NodeID]int, len(nodes)),
		out:        make([][]int, len(nodes)),
		in:         make([][]int, len(nodes)),
		undirected: make([][]int, len(nodes)),
		inDegree:   make([]int, len(nodes)),
		outDegree:  make([]int, len(nodes)),
	}
	for i, n := range nodes {
		adj.ids[i] = n.ID
		adj.index[n.ID] = i
	}

	outSet := make([]map[int]struct{}, len(nodes))
	inSet := make([]map[int]struct{}, len(nodes))
	bothSet := make([]map[int]struct{}, len(nodes))
	for i := range nodes {
		outSet[i] = make(map[int]struct{})
		inSet[i] = make(map[int]struct{})
		bothSet[i] = make(map[int]struct{})
	}

	for _, e := range store.AllEdges() {
		u := adj.index[e.From]
		v := adj.index[e.To]
		adj.outDegree[u]++
		adj.inDegree[v]++
		outSet[u][v] = struct{}{}
		inSet[v][u] = struct{}{}
		if u != v {
			bothSet[u][v] = struct{}{}
			bothSet[v][u] = struct{}{}
		}
	}

	for i := range nodes {
		adj.out[i] = sortedKeys(outSet[i])
		adj.in[i] = sortedKeys(inSet[i])
		adj.undirected[i] = sortedKeys(bothSet[i])
	}
	return adj
}

func sortedKeys(set map[int]struct{}) []int {
	out := make([]int, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}

// CentralityEngine computes per-node and graph-level metrics.
type CentralityEngine struct{}

// NewCentralityEngine creates a CentralityEngine.
func NewCentralityEngine() *CentralityEngine { return &CentralityEngine{} }

// NodeMetrics computes every per-node measure in one pass over the graph.
// Results are keyed by node id.
func (c *CentralityEngine) NodeMetrics(store *graph.Store) map[graph.NodeID]NodeMetrics {
	adj := buildAdjacency(store)
	n := len(adj.ids)
	result := make(map[graph.NodeID]NodeMetrics, n)
	if n == 0 {
		return result
	}

	betweenness := brandesBetweenness(adj)
	closeness := closenessCentrality(adj)
	pagerank := pageRank(adj)
	eigen := eigenvectorCentrality(adj)
	clustering := clusteringCoefficients(adj)

	for i, id := range adj.ids {
		result[id] = NodeMetrics{
			NodeID:                id,
			Degree:                adj.inDegree[i] + adj.outDegree[i],
			Betweenness:           betweenness[i],
			Closeness:             closeness[i],
			PageRank:              pagerank[i],
			EigenvectorCentrality: eigen[i],
			ClusteringCoefficient: clustering[i],
		}
	}
	return result
}

// GraphLevelMetrics computes the graph-wide measures. Modularity is taken
// from the best community decomposition found with communitySeed, so a
// fixed seed gives a reproducible value.
func (c *CentralityEngine) GraphLevelMetrics(store *graph.Store, communitySeed int64) GraphMetrics {
	adj := buildAdjacency(store)
	n := len(adj.ids)

	metrics := GraphMetrics{}
	if n == 0 {
		return metrics
	}

	if n >= 2 {
		metrics.Density = float64(store.EdgeCount()) / float64(n*(n-1))
	}

	// Mean and max BFS distance over reachable ordered pairs.
	var totalDist, pairs float64
	for src := 0; src < n; src++ {
		dist := bfsDistances(adj.out, src, n)
		for dst := 0; dst < n; dst++ {
			if dst == src || dist[dst] < 0 {
				continue
			}
			totalDist += float64(dist[dst])
			pairs++
			if dist[dst] > metrics.Diameter {
				metrics.Diameter = dist[dst]
			}
		}
	}
	if pairs > 0 {
		metrics.AveragePathLength = totalDist / pairs
	}

	clustering := clusteringCoefficients(adj)
	var sum float64
	for _, v := range clustering {
		sum += v
	}
	metrics.ClusteringCoefficient = sum / float64(n)

	metrics.ComponentCount = len(store.ConnectedComponents())

	detector := NewCommunityDetector(CommunityOptions{
		Resolution:       1.0,
		MinCommunitySize: 1,
		MaxIterations:    200,
		RandomSeed:       communitySeed,
	})
	for _, cluster := range detector.DetectCommunities(store) {
		metrics.Modularity += cluster.Modularity
	}
	return metrics
}

// Hubs returns the top-k nodes by total degree, highest first. Degree ties
// break by id for stable output.
func (c *CentralityEngine) Hubs(store *graph.Store, k int) []graph.NodeID {
	adj := buildAdjacency(store)
	type ranked struct {
		idx    int
		degree int
	}
	nodes := make([]ranked, len(adj.ids))
	for i := range adj.ids {
		nodes[i] = ranked{idx: i, degree: adj.inDegree[i] + adj.outDegree[i]}
	}
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].degree != nodes[j].degree {
			return nodes[i].degree > nodes[j].degree
		}
		return adj.ids[nodes[i].idx] < adj.ids[nodes[j].idx]
	})
	if k > len(nodes) {
		k = len(nodes)
	}
	out := make([]graph.NodeID, 0, k)
	for _, r := range nodes[:k] {
		out = append(out, adj.ids[r.idx])
	}
	return out
}

// ArticulationPoints returns the nodes whose removal disconnects their
// component, via DFS low-link on the undirected projection.
func (c *CentralityEngine) ArticulationPoints(store *graph.Store) []graph.NodeID {
	adj := buildAdjacency(store)
	points, _ := lowLink(adj)
	sort.Slice(points, func(i, j int) bool { return points[i] < points[j] })
	return points
}

// BridgeEdges returns the undirected bridges: node pairs whose connecting
// edges are the only link between two parts of a component.
func (c *CentralityEngine) BridgeEdges(store *graph.Store) [][2]graph.NodeID {
	adj := buildAdjacency(store)
	_, bridges := lowLink(adj)
	sort.Slice(bridges, func(i, j int) bool {
		if bridges[i][0] != bridges[j][0] {
			return bridges[i][0] < bridges[j][0]
		}
		return bridges[i][1] < bridges[j][1]
	})
	return bridges
}

// brandesBetweenness computes betweenness over unweighted directed
// reachability (Brandes 2001), normalized by (n-1)(n-2) for n >= 3.
func brandesBetweenness(adj *adjacency) []float64 {
	n := len(adj.ids)
	betweenness := make([]float64, n)

	for src := 0; src < n; src++ {
		stack := make([]int, 0, n)
		pred := make([][]int, n)
		sigma := make([]float64, n)
		dist := make([]int, n)
		for i := range dist {
			dist[i] = -1
		}
		sigma[src] = 1
		dist[src] = 0

		queue := []int{src}
		for len(queue) > 0 {
			v := queue[0]
			queue = queue[1:]
			stack = append(stack, v)
			for _, w := range adj.out[v] {
				if dist[w] < 0 {
					dist[w] = dist[v] + 1
					queue = append(queue, w)
				}
				if dist[w] == dist[v]+1 {
					sigma[w] += sigma[v]
					pred[w] = append(pred[w], v)
				}
			}
		}

		delta := make([]float64, n)
		for i := len(stack) - 1; i >= 0; i-- {
			w := stack[i]
			for _, v := range pred[w] {
				delta[v] += (sigma[v] / sigma[w]) * (1 + delta[w])
			}
			if w != src {
				betweenness[w] += delta[w]
			}
		}
	}

	if n >= 3 {
		norm := 1.0 / (float64(n-1) * float64(n-2))
		for i := range betweenness {
			betweenness[i] *= norm
		}
	}
	return betweenness
}

// closenessCentrality is (reachable)/(sum of BFS distances), 0 for nodes
// that reach nothing.
func closenessCentrality(adj *adjacency) []float64 {
	n := len(adj.ids)
	closeness := make([]float64, n)
	for src := 0; src < n; src++ {
		dist := bfsDistances(adj.out, src, n)
		var sum float64
		reachable := 0
		for dst := 0; dst < n; dst++ {
			if dst != src && dist[dst] > 0 {
				sum += float64(dist[dst])
				reachable++
			}
		}
		if reachable > 0 {
			closeness[src] = float64(reachable) / sum
		}
	}
	return closeness
}

func bfsDistances(out [][]int, src, n int) []int {
	dist := make([]int, n)
	for i := range dist {
		dist[i] = -1
	}
	dist[src] = 0
	queue := []int{src}
	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		for _, w := range out[v] {
			if dist[w] < 0 {
				dist[w] = dist[v] + 1
				queue = append(queue, w)
			}
		}
	}
	return dist
}

// pageRank iterates with damping 0.85 and uniform teleport until the L1
// residual drops below iterationEpsilon or 100 passes elapse. Dangling mass
// is redistributed uniformly, so the scores sum to 1.
func pageRank(adj *adjacency) []float64 {
	n := len(adj.ids)
	scores := make([]float64, n)
	for i := range scores {
		scores[i] = 1.0 / float64(n)
	}

	next := make([]float64, n)
	for iter := 0; iter < maxPowerIterations; iter++ {
		var danglingMass float64
		for i := range next {
			next[i] = (1 - pageRankDamping) / float64(n)
		}
		for v := 0; v < n; v++ {
			if adj.outDegree[v] == 0 {
				danglingMass += scores[v]
				continue
			}
			share := pageRankDamping * scores[v] / float64(len(adj.out[v]))
			for _, w := range adj.out[v] {
				next[w] += share
			}
		}
		if danglingMass > 0 {
			spread := pageRankDamping * danglingMass / float64(n)
			for i := range next {
				next[i] += spread
			}
		}

		var residual float64
		for i := range next {
			residual += math.Abs(next[i] - scores[i])
		}
		copy(scores, next)
		if residual < iterationEpsilon {
			break
		}
	}
	return scores
}

// eigenvectorCentrality runs power iteration on the undirected adjacency
// with L2 normalization and the same stopping rule as PageRank.
func eigenvectorCentrality(adj *adjacency) []float64 {
	n := len(adj.ids)
	scores := make([]float64, n)
	for i := range scores {
		scores[i] = 1.0 / float64(n)
	}

	next := make([]float64, n)
	for iter := 0; iter < maxPowerIterations; iter++ {
		for i := range next {
			next[i] = 0
		}
		for v := 0; v < n; v++ {
			for _, w := range adj.undirected[v] {
				next[v] += scores[w]
			}
		}

		var norm float64
		for _, x := range next {
			norm += x * x
		}
		norm = math.Sqrt(norm)
		if norm == 0 {
			// No edges: every node scores zero.
			return next
		}
		for i := range next {
			next[i] /= norm
		}

		var residual float64
		for i := range next {
			residual += math.Abs(next[i] - scores[i])
		}
		copy(scores, next)
		if residual < iterationEpsilon {
			break
		}
	}
	return scores
}

// clusteringCoefficients computes 2*triangles/(deg*(deg-1)) per node on the
// undirected projection; 0 when the distinct-neighbor degree is below 2.
func clusteringCoefficients(adj *adjacency) []float64 {
	n := len(adj.ids)
	coeffs := make([]float64, n)

	neighborSets := make([]map[int]struct{}, n)
	for i := range neighborSets {
		neighborSets[i] = make(map[int]struct{}, len(adj.undirected[i]))
		for _, w := range adj.undirected[i] {
			neighborSets[i][w] = struct{}{}
		}
	}

	for v := 0; v < n; v++ {
		deg := len(adj.undirected[v])
		if deg < 2 {
			continue
		}
		triangles := 0
		neighbors := adj.undirected[v]
		for i := 0; i < len(neighbors); i++ {
			for j := i + 1; j < len(neighbors); j++ {
				if _, ok := neighborSets[neighbors[i]][neighbors[j]]; ok {
					triangles++
				}
			}
		}
		coeffs[v] = 2 * float64(triangles) / (float64(deg) * float64(deg-1))
	}
	return coeffs
}

// lowLink runs the standard DFS low-link pass on the undirected projection,
// returning articulation points and bridges.
func lowLink(adj *adjacency) ([]graph.NodeID, [][2]graph.NodeID) {
	n := len(adj.ids)
	disc := make([]int, n)
	low := make([]int, n)
	visited := make([]bool, n)
	isArticulation := make([]bool, n)
	var bridges [][2]graph.NodeID
	timer := 0

	var dfs func(u, parent int)
	dfs = func(u, parent int) {
		visited[u] = true
		timer++
		disc[u] = timer
		low[u] = timer
		children := 0
		parentSkipped := false

		for _, v := range adj.undirected[u] {
			if v == parent && !parentSkipped {
				// Skip the tree edge back to the parent exactly once.
				// Neighbor lists hold distinct nodes, so parallel edges
				// to the parent collapse into this one entry.
				parentSkipped = true
				continue
			}
			if visited[v] {
				if disc[v] < low[u] {
					low[u] = disc[v]
				}
				continue
			}
			children++
			dfs(v, u)
			if low[v] < low[u] {
				low[u] = low[v]
			}
			if parent != -1 && low[v] >= disc[u] {
				isArticulation[u] = true
			}
			if low[v] > disc[u] {
				a, b := adj.ids[u], adj.ids[v]
				if b < a {
					a, b = b, a
				}
				bridges = append(bridges, [2]graph.NodeID{a, b})
			}
		}
		if parent == -1 && children > 1 {
			isArticulation[u] = true
		}
	}

	for u := 0; u < n; u++ {
		if !visited[u] {
			dfs(u, -1)
		}
	}

	points := make([]graph.NodeID, 0)
	for u := 0; u < n; u++ {
		if isArticulation[u] {
			points = append(points, adj.ids[u])
		}
	}
	return points, bridges
}
