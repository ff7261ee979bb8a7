package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/muninn/pkg/graph"
)

// lineGraph builds a -> b -> c.
func lineGraph(t *testing.T) *graph.Store {
	t.Helper()
	s := graph.NewStore(graph.DefaultOptions())
	for _, id := range []graph.NodeID{"a", "b", "c"} {
		addNode(t, s, id)
	}
	addEdge(t, s, "a", "b", 1)
	addEdge(t, s, "b", "c", 1)
	return s
}

func TestDegree(t *testing.T) {
	store := lineGraph(t)
	metrics := NewCentralityEngine().NodeMetrics(store)

	assert.Equal(t, 1, metrics["a"].Degree)
	assert.Equal(t, 2, metrics["b"].Degree)
	assert.Equal(t, 1, metrics["c"].Degree)
}

func TestBetweennessMiddleNode(t *testing.T) {
	store := lineGraph(t)
	metrics := NewCentralityEngine().NodeMetrics(store)

	assert.Greater(t, metrics["b"].Betweenness, 0.0, "middle of a path must have betweenness")
	assert.Equal(t, 0.0, metrics["a"].Betweenness)
	assert.Equal(t, 0.0, metrics["c"].Betweenness)
}

func TestCloseness(t *testing.T) {
	store := lineGraph(t)
	metrics := NewCentralityEngine().NodeMetrics(store)

	// a reaches b at 1 and c at 2: closeness = 2/3.
	assert.InDelta(t, 2.0/3.0, metrics["a"].Closeness, 1e-9)
	// c reaches nothing over outgoing edges.
	assert.Equal(t, 0.0, metrics["c"].Closeness)
}

func TestPageRankSumsToOne(t *testing.T) {
	store := twoTriangles(t)
	metrics := NewCentralityEngine().NodeMetrics(store)

	var sum float64
	for _, m := range metrics {
		sum += m.PageRank
		assert.GreaterOrEqual(t, m.PageRank, 0.0)
	}
	assert.InDelta(t, 1.0, sum, 1e-3, "PageRank must sum to 1")
}

func TestClusteringCoefficientTriangle(t *testing.T) {
	store := graph.NewStore(graph.DefaultOptions())
	for _, id := range []graph.NodeID{"a", "b", "c", "d"} {
		addNode(t, store, id)
	}
	addEdge(t, store, "a", "b", 1)
	addEdge(t, store, "b", "c", 1)
	addEdge(t, store, "a", "c", 1)
	addEdge(t, store, "c", "d", 1)

	metrics := NewCentralityEngine().NodeMetrics(store)
	assert.InDelta(t, 1.0, metrics["a"].ClusteringCoefficient, 1e-9, "triangle member with deg 2")
	// c has neighbors {a, b, d}; only (a,b) of 3 pairs connected.
	assert.InDelta(t, 1.0/3.0, metrics["c"].ClusteringCoefficient, 1e-9)
	// d has a single neighbor.
	assert.Equal(t, 0.0, metrics["d"].ClusteringCoefficient)
}

func TestEigenvectorCentrality(t *testing.T) {
	store := twoTriangles(t)
	metrics := NewCentralityEngine().NodeMetrics(store)

	// C sits in a triangle and carries the bridge: strictly more central
	// than the isolated G.
	assert.Greater(t, metrics["C"].EigenvectorCentrality, metrics["G"].EigenvectorCentrality)
	assert.Equal(t, 0.0, metrics["G"].EigenvectorCentrality)
}

func TestGraphLevelMetrics(t *testing.T) {
	store := lineGraph(t)
	metrics := NewCentralityEngine().GraphLevelMetrics(store, 12345)

	// 2 edges over 3*2 possible directed pairs.
	assert.InDelta(t, 2.0/6.0, metrics.Density, 1e-9)
	assert.Equal(t, 2, metrics.Diameter)
	// Reachable pairs: a->b(1), a->c(2), b->c(1): mean 4/3.
	assert.InDelta(t, 4.0/3.0, metrics.AveragePathLength, 1e-9)
	assert.Equal(t, 1, metrics.ComponentCount)
}

func TestGraphLevelMetricsEmptyAndSmall(t *testing.T) {
	empty := graph.NewStore(graph.DefaultOptions())
	metrics := NewCentralityEngine().GraphLevelMetrics(empty, 1)
	assert.Equal(t, GraphMetrics{}, metrics)

	single := graph.NewStore(graph.DefaultOptions())
	addNode(t, single, "only")
	metrics = NewCentralityEngine().GraphLevelMetrics(single, 1)
	assert.Equal(t, 0.0, metrics.Density, "density must be 0 below 2 nodes")
	assert.Equal(t, 1, metrics.ComponentCount)
}

func TestModularityBounds(t *testing.T) {
	store := twoTriangles(t)
	metrics := NewCentralityEngine().GraphLevelMetrics(store, 12345)
	assert.GreaterOrEqual(t, metrics.Modularity, -0.5)
	assert.LessOrEqual(t, metrics.Modularity, 1.0)
	assert.Greater(t, metrics.Modularity, 0.0, "two communities should score positive modularity")
}

func TestHubs(t *testing.T) {
	store := twoTriangles(t)
	hubs := NewCentralityEngine().Hubs(store, 2)
	require.Len(t, hubs, 2)
	// C and D carry the bridge on top of their triangles.
	assert.Contains(t, hubs, graph.NodeID("C"))
	assert.Contains(t, hubs, graph.NodeID("D"))
}

func TestArticulationPointsAndBridges(t *testing.T) {
	store := twoTriangles(t)
	engine := NewCentralityEngine()

	points := engine.ArticulationPoints(store)
	assert.Contains(t, points, graph.NodeID("C"))
	assert.Contains(t, points, graph.NodeID("D"))

	bridges := engine.BridgeEdges(store)
	require.Len(t, bridges, 1)
	assert.Equal(t, [2]graph.NodeID{"C", "D"}, bridges[0])
}
