package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/muninn/pkg/graph"
)

func addNode(t *testing.T, s *graph.Store, id graph.NodeID) {
	t.Helper()
	_, err := s.AddNode(&graph.Node{ID: id, Content: graph.StringContent(string(id)), Type: "note"})
	require.NoError(t, err)
}

func addEdge(t *testing.T, s *graph.Store, from, to graph.NodeID, strength float64) {
	t.Helper()
	_, err := s.AddEdge(&graph.Edge{From: from, To: to, Type: "rel", Strength: strength})
	require.NoError(t, err)
}

// twoTriangles builds the calibration graph: triangles {A,B,C} and {D,E,F}
// joined by a weak bridge C->D, plus an isolated G.
func twoTriangles(t *testing.T) *graph.Store {
	t.Helper()
	s := graph.NewStore(graph.DefaultOptions())
	for _, id := range []graph.NodeID{"A", "B", "C", "D", "E", "F", "G"} {
		addNode(t, s, id)
	}
	addEdge(t, s, "A", "B", 0.9)
	addEdge(t, s, "B", "C", 0.9)
	addEdge(t, s, "A", "C", 0.8)
	addEdge(t, s, "D", "E", 0.9)
	addEdge(t, s, "E", "F", 0.9)
	addEdge(t, s, "D", "F", 0.8)
	addEdge(t, s, "C", "D", 0.3)
	return s
}

func clusterOf(clusters []KnowledgeCluster, id graph.NodeID) *KnowledgeCluster {
	for i := range clusters {
		for _, n := range clusters[i].Nodes {
			if n == id {
				return &clusters[i]
			}
		}
	}
	return nil
}

func TestLouvainTwoTriangles(t *testing.T) {
	store := twoTriangles(t)
	detector := NewCommunityDetector(CommunityOptions{
		Resolution:       1.0,
		MinCommunitySize: 1,
		MaxIterations:    200,
		RandomSeed:       12345,
	})

	clusters := detector.DetectCommunities(store)
	require.GreaterOrEqual(t, len(clusters), 3, "expected at least 3 clusters")

	abc := clusterOf(clusters, "A")
	require.NotNil(t, abc)
	assert.Equal(t, abc, clusterOf(clusters, "B"), "A and B split across clusters")
	assert.Equal(t, abc, clusterOf(clusters, "C"), "A and C split across clusters")

	def := clusterOf(clusters, "D")
	require.NotNil(t, def)
	assert.Equal(t, def, clusterOf(clusters, "E"))
	assert.Equal(t, def, clusterOf(clusters, "F"))
	assert.NotEqual(t, abc, def, "bridge merged the triangles")

	g := clusterOf(clusters, "G")
	require.NotNil(t, g)
	assert.Len(t, g.Nodes, 1, "isolated G must stay alone")
	assert.Equal(t, 1.0, g.Coherence, "singleton coherence must be 1")

	for _, c := range clusters {
		assert.GreaterOrEqual(t, c.Coherence, 0.0)
		assert.LessOrEqual(t, c.Coherence, 1.0)
		assert.GreaterOrEqual(t, c.Modularity, -0.5)
		assert.LessOrEqual(t, c.Modularity, 1.0)
		if len(c.Nodes) > 1 {
			assert.GreaterOrEqual(t, c.Coherence, 0.3, "non-singleton coherence too low")
		}
		assert.Equal(t, AlgorithmCommunity, c.Algorithm)
	}
}

func TestLouvainDeterministicWithSeed(t *testing.T) {
	store := twoTriangles(t)
	opts := CommunityOptions{Resolution: 1.0, MinCommunitySize: 1, MaxIterations: 200, RandomSeed: 42}

	first := NewCommunityDetector(opts).DetectCommunities(store)
	second := NewCommunityDetector(opts).DetectCommunities(store)
	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].Nodes, second[i].Nodes, "cluster %d differs between runs", i)
	}
}

func TestLouvainEmptyGraph(t *testing.T) {
	store := graph.NewStore(graph.DefaultOptions())
	clusters := NewCommunityDetector(DefaultCommunityOptions()).DetectCommunities(store)
	assert.Empty(t, clusters)
}

func TestLouvainZeroWeightGraph(t *testing.T) {
	store := graph.NewStore(graph.DefaultOptions())
	addNode(t, store, "x")
	addNode(t, store, "y")

	clusters := NewCommunityDetector(CommunityOptions{RandomSeed: 1}).DetectCommunities(store)
	require.Len(t, clusters, 2, "m=0 must yield one singleton per node")
	for _, c := range clusters {
		assert.Len(t, c.Nodes, 1)
		assert.Equal(t, 1.0, c.Coherence)
	}
}

func TestLouvainMinCommunitySize(t *testing.T) {
	store := twoTriangles(t)
	clusters := NewCommunityDetector(CommunityOptions{
		MinCommunitySize: 2,
		RandomSeed:       12345,
	}).DetectCommunities(store)

	for _, c := range clusters {
		assert.GreaterOrEqual(t, len(c.Nodes), 2)
	}
	assert.Nil(t, clusterOf(clusters, "G"), "singleton G must be filtered out")
}

func TestLouvainDisconnectedComponentsNeverMerge(t *testing.T) {
	store := graph.NewStore(graph.DefaultOptions())
	for _, id := range []graph.NodeID{"a1", "a2", "b1", "b2"} {
		addNode(t, store, id)
	}
	addEdge(t, store, "a1", "a2", 1.0)
	addEdge(t, store, "b1", "b2", 1.0)

	clusters := NewCommunityDetector(CommunityOptions{RandomSeed: 7}).DetectCommunities(store)
	a := clusterOf(clusters, "a1")
	b := clusterOf(clusters, "b1")
	require.NotNil(t, a)
	require.NotNil(t, b)
	assert.NotEqual(t, a, b, "disconnected components merged")
}
