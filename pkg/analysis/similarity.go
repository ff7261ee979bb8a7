package analysis

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/orneryd/muninn/pkg/graph"
)

// SimilarityMetric selects how node contents are compared.
type SimilarityMetric string

const (
	// MetricJaccard compares token sets: |A n B| / |A u B|.
	MetricJaccard SimilarityMetric = "jaccard"
	// MetricCosine compares token-frequency vectors.
	MetricCosine SimilarityMetric = "cosine"
)

// SimilarityOptions configures the content-similarity clusterer.
type SimilarityOptions struct {
	// Threshold is the similarity a cross-cluster pair must exceed for
	// the two clusters to merge.
	Threshold float64
	// Metric selects jaccard (default) or cosine comparison.
	Metric SimilarityMetric
	// ConsiderType zeroes similarity between nodes of different types.
	ConsiderType bool
}

// DefaultSimilarityOptions returns a jaccard clusterer at threshold 0.3.
func DefaultSimilarityOptions() SimilarityOptions {
	return SimilarityOptions{Threshold: 0.3, Metric: MetricJaccard}
}

// stopwords dropped during tokenization.
var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "with": {}, "for": {},
	"this": {}, "that": {}, "from": {},
}

var nonWord = regexp.MustCompile(`\W+`)

// Tokenize lowercases text, replaces non-word characters with spaces,
// splits on whitespace, and drops short tokens and stopwords.
func Tokenize(text string) []string {
	cleaned := nonWord.ReplaceAllString(strings.ToLower(text), " ")
	fields := strings.Fields(cleaned)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) <= 2 {
			continue
		}
		if _, stop := stopwords[f]; stop {
			continue
		}
		out = append(out, f)
	}
	return out
}

// TokenSet returns the distinct tokens of text.
func TokenSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range Tokenize(text) {
		set[tok] = struct{}{}
	}
	return set
}

// JaccardTokens computes |a n b| / |a u b| over two token sets. Two empty
// sets are disjoint, not identical: the result is 0.
func JaccardTokens(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// CosineTokens computes cosine similarity over token-frequency vectors.
func CosineTokens(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	freqA := make(map[string]float64)
	for _, tok := range a {
		freqA[tok]++
	}
	freqB := make(map[string]float64)
	for _, tok := range b {
		freqB[tok]++
	}

	var dot, normA, normB float64
	for tok, fa := range freqA {
		normA += fa * fa
		if fb, ok := freqB[tok]; ok {
			dot += fa * fb
		}
	}
	for _, fb := range freqB {
		normB += fb * fb
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// SimilarityClusterer groups nodes whose content reads alike.
type SimilarityClusterer struct {
	opts SimilarityOptions
}

// NewSimilarityClusterer creates a clusterer with the given options.
func NewSimilarityClusterer(opts SimilarityOptions) *SimilarityClusterer {
	if opts.Threshold <= 0 {
		opts.Threshold = 0.3
	}
	if opts.Metric == "" {
		opts.Metric = MetricJaccard
	}
	return &SimilarityClusterer{opts: opts}
}

// NodeSimilarity compares two nodes' content under the configured metric.
// With ConsiderType set, nodes of different types score 0.
func (c *SimilarityClusterer) NodeSimilarity(a, b *graph.Node) float64 {
	if a == nil || b == nil {
		return 0
	}
	if c.opts.ConsiderType && a.Type != b.Type {
		return 0
	}
	switch c.opts.Metric {
	case MetricCosine:
		return CosineTokens(Tokenize(a.Content.Text()), Tokenize(b.Content.Text()))
	default:
		return JaccardTokens(TokenSet(a.Content.Text()), TokenSet(b.Content.Text()))
	}
}

// Cluster groups the store's nodes by greedy single-linkage: clusters merge
// while the maximum pairwise similarity across any two clusters exceeds the
// threshold. Nodes similar to nothing remain singletons.
func (c *SimilarityClusterer) Cluster(store *graph.Store) []KnowledgeCluster {
	nodes := store.AllNodes()
	n := len(nodes)
	if n == 0 {
		return []KnowledgeCluster{}
	}

	// Pairwise similarity matrix; nodes are already sorted by id.
	sim := make([][]float64, n)
	for i := range sim {
		sim[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			s := c.NodeSimilarity(nodes[i], nodes[j])
			sim[i][j] = s
			sim[j][i] = s
		}
	}

	// Single-linkage via union-find: any pair above threshold joins.
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(x int) int {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra != rb {
			if ra > rb {
				ra, rb = rb, ra
			}
			parent[rb] = ra
		}
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if sim[i][j] > c.opts.Threshold {
				union(i, j)
			}
		}
	}

	groups := make(map[int][]int)
	for i := 0; i < n; i++ {
		root := find(i)
		groups[root] = append(groups[root], i)
	}
	roots := make([]int, 0, len(groups))
	for root := range groups {
		roots = append(roots, root)
	}
	sort.Ints(roots)

	clusters := make([]KnowledgeCluster, 0, len(roots))
	for seq, root := range roots {
		members := groups[root]
		ids := make([]graph.NodeID, len(members))
		for i, idx := range members {
			ids[i] = nodes[idx].ID
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

		avg := averagePairwise(sim, members)
		clusters = append(clusters, KnowledgeCluster{
			ID:            fmt.Sprintf("similarity_%d", seq+1),
			Nodes:         ids,
			Algorithm:     AlgorithmSimilarity,
			Coherence:     avg,
			AvgSimilarity: avg,
		})
	}
	return clusters
}

// averagePairwise is the mean similarity over all member pairs; 1 for a
// singleton (a node is perfectly coherent with itself).
func averagePairwise(sim [][]float64, members []int) float64 {
	if len(members) < 2 {
		return 1
	}
	var total float64
	pairs := 0
	for i := 0; i < len(members); i++ {
		for j := i + 1; j < len(members); j++ {
			total += sim[members[i]][members[j]]
			pairs++
		}
	}
	return total / float64(pairs)
}
