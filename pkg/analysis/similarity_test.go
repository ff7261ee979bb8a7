package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/muninn/pkg/graph"
)

func addTypedNode(t *testing.T, s *graph.Store, id graph.NodeID, typ, text string) {
	t.Helper()
	_, err := s.AddNode(&graph.Node{ID: id, Content: graph.StringContent(text), Type: typ})
	require.NoError(t, err)
}

func TestTokenize(t *testing.T) {
	tokens := Tokenize("The quick-BROWN fox, and his dog! For real: x1")
	assert.Equal(t, []string{"quick", "brown", "fox", "his", "dog", "real"}, tokens)
}

func TestJaccardTokens(t *testing.T) {
	a := TokenSet("graph community detection")
	b := TokenSet("community detection algorithms")
	// intersection {community, detection} = 2, union = 4
	assert.InDelta(t, 0.5, JaccardTokens(a, b), 1e-9)

	assert.Equal(t, 0.0, JaccardTokens(a, TokenSet("")))
	assert.InDelta(t, 1.0, JaccardTokens(a, a), 1e-9)
}

func TestCosineTokens(t *testing.T) {
	a := Tokenize("alpha beta alpha")
	b := Tokenize("alpha beta alpha")
	assert.InDelta(t, 1.0, CosineTokens(a, b), 1e-9)

	disjoint := Tokenize("gamma delta")
	assert.Equal(t, 0.0, CosineTokens(a, disjoint))
}

func TestClusterGroupsSimilarContent(t *testing.T) {
	store := graph.NewStore(graph.DefaultOptions())
	addTypedNode(t, store, "n1", "note", "distributed systems consensus raft protocol")
	addTypedNode(t, store, "n2", "note", "raft consensus protocol for distributed systems")
	addTypedNode(t, store, "n3", "note", "gardening tomato seeds watering schedule")

	clusterer := NewSimilarityClusterer(SimilarityOptions{Threshold: 0.3})
	clusters := clusterer.Cluster(store)

	require.Len(t, clusters, 2)
	var together *KnowledgeCluster
	for i := range clusters {
		if len(clusters[i].Nodes) == 2 {
			together = &clusters[i]
		}
	}
	require.NotNil(t, together, "similar notes did not cluster")
	assert.Equal(t, []graph.NodeID{"n1", "n2"}, together.Nodes)
	assert.Equal(t, AlgorithmSimilarity, together.Algorithm)
	assert.Greater(t, together.Coherence, 0.3)
	assert.Equal(t, together.Coherence, together.AvgSimilarity)
}

func TestClusterConsiderType(t *testing.T) {
	store := graph.NewStore(graph.DefaultOptions())
	addTypedNode(t, store, "n1", "note", "raft consensus protocol")
	addTypedNode(t, store, "n2", "paper", "raft consensus protocol")

	strict := NewSimilarityClusterer(SimilarityOptions{Threshold: 0.3, ConsiderType: true})
	clusters := strict.Cluster(store)
	assert.Len(t, clusters, 2, "different types must not cluster with ConsiderType")

	loose := NewSimilarityClusterer(SimilarityOptions{Threshold: 0.3})
	clusters = loose.Cluster(store)
	assert.Len(t, clusters, 1, "identical content must cluster without type constraint")
}

func TestClusterIsolatedSingletons(t *testing.T) {
	store := graph.NewStore(graph.DefaultOptions())
	addTypedNode(t, store, "n1", "note", "alpha beta gamma")
	addTypedNode(t, store, "n2", "note", "delta epsilon zeta")

	clusters := NewSimilarityClusterer(DefaultSimilarityOptions()).Cluster(store)
	require.Len(t, clusters, 2)
	for _, c := range clusters {
		assert.Len(t, c.Nodes, 1)
		assert.Equal(t, 1.0, c.Coherence, "singleton coherence")
	}
}

func TestClusterEmptyStore(t *testing.T) {
	store := graph.NewStore(graph.DefaultOptions())
	assert.Empty(t, NewSimilarityClusterer(DefaultSimilarityOptions()).Cluster(store))
}
