// Package analysis implements Muninn's graph intelligence: community
// detection, content-similarity clustering, centrality and graph-level
// metrics, and structural pattern mining.
//
// Every algorithm reads the graph store through point-in-time copies and is
// deterministic for a fixed random seed; stochastic steps (the Louvain
// shuffle) never consume an ambient RNG.
package analysis

import (
	"time"

	"github.com/orneryd/muninn/pkg/graph"
)

// ClusterAlgorithm names the algorithm that produced a cluster.
type ClusterAlgorithm string

const (
	// AlgorithmCommunity marks clusters from Louvain community detection.
	AlgorithmCommunity ClusterAlgorithm = "community"
	// AlgorithmSimilarity marks clusters from content-similarity grouping.
	AlgorithmSimilarity ClusterAlgorithm = "similarity"
)

// KnowledgeCluster is a group of nodes produced by a clustering algorithm.
//
// Coherence is in [0, 1]: for community clusters it is the fraction of the
// cluster's incident weight that stays internal (1 for singletons); for
// similarity clusters it is the average pairwise similarity. Modularity is
// meaningful only for community clusters, AvgSimilarity only for similarity
// clusters.
type KnowledgeCluster struct {
	ID            string
	Nodes         []graph.NodeID
	Algorithm     ClusterAlgorithm
	Coherence     float64
	Modularity    float64
	AvgSimilarity float64
}

// PatternType names a structural motif template.
type PatternType string

const (
	PatternStar    PatternType = "star"
	PatternChain   PatternType = "chain"
	PatternCycle   PatternType = "cycle"
	PatternTree    PatternType = "tree"
	PatternBridge  PatternType = "bridge"
	PatternCluster PatternType = "cluster"
	PatternHub     PatternType = "hub"
)

// PatternEdge references one edge participating in a structural pattern.
type PatternEdge struct {
	From graph.NodeID
	To   graph.NodeID
	Type string
}

// GraphPattern is a structural motif discovered in the graph.
type GraphPattern struct {
	ID         string
	Type       PatternType
	Nodes      []graph.NodeID
	Edges      []PatternEdge
	Support    float64
	Confidence float64
	Frequency  int
	LastSeen   time.Time
}

// NodeMetrics carries the per-node centrality measures.
type NodeMetrics struct {
	NodeID                graph.NodeID
	Degree                int
	Betweenness           float64
	Closeness             float64
	PageRank              float64
	EigenvectorCentrality float64
	ClusteringCoefficient float64
}

// GraphMetrics carries the graph-level measures.
type GraphMetrics struct {
	Density               float64
	AveragePathLength     float64
	Diameter              int
	ClusteringCoefficient float64
	ComponentCount        int
	Modularity            float64
}
