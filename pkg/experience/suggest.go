package experience

import (
	"fmt"
	"sort"

	"github.com/orneryd/muninn/pkg/graph"
	"github.com/orneryd/muninn/pkg/ident"
)

// Suggestion is one ranked next-node candidate.
type Suggestion struct {
	NodeID     graph.NodeID
	Confidence float64
	Reasoning  string
}

// SuggestConfig configures the suggestion engine.
type SuggestConfig struct {
	// MinConfidence drops candidates scoring below it.
	MinConfidence float64
	// Limit is the default result cap when a call passes limit <= 0.
	Limit int
	// MaxDaysForRecency is the age at which the recency factor bottoms
	// out at RecencyFloor.
	MaxDaysForRecency int
	// RecencyFloor is the minimum recency factor for old experiences.
	RecencyFloor float64
	// ContextMatchBonus scales the context-similarity bonus:
	// score *= 1 + ContextMatchBonus*contextSim.
	ContextMatchBonus float64
	// HasNode restricts suggestions to nodes still present in the graph.
	HasNode NodeChecker
	// Clock supplies ages for the recency factor.
	Clock ident.Clock
}

// DefaultSuggestConfig returns the spec defaults.
func DefaultSuggestConfig() SuggestConfig {
	return SuggestConfig{
		MinConfidence:     0.1,
		Limit:             5,
		MaxDaysForRecency: 30,
		RecencyFloor:      0.1,
		ContextMatchBonus: 0.5,
	}
}

// SuggestionEngine ranks next-node candidates from experience history,
// blending reinforcement, recency, and context similarity.
type SuggestionEngine struct {
	cfg   SuggestConfig
	clock ident.Clock
	store *Store
}

// NewSuggestionEngine creates an engine over store.
func NewSuggestionEngine(store *Store, cfg SuggestConfig) *SuggestionEngine {
	if cfg.Limit <= 0 {
		cfg.Limit = 5
	}
	if cfg.MaxDaysForRecency <= 0 {
		cfg.MaxDaysForRecency = 30
	}
	if cfg.RecencyFloor <= 0 {
		cfg.RecencyFloor = 0.1
	}
	if cfg.Clock == nil {
		cfg.Clock = ident.WallClock{}
	}
	return &SuggestionEngine{cfg: cfg, clock: cfg.Clock, store: store}
}

// recencyFactor decays linearly from 1 at age zero to the floor at
// MaxDaysForRecency.
func (e *SuggestionEngine) recencyFactor(exp *Experience) float64 {
	ageDays := e.clock.Now().Sub(exp.Timestamp).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	frac := ageDays / float64(e.cfg.MaxDaysForRecency)
	if frac > 1 {
		frac = 1
	}
	return 1 - (1-e.cfg.RecencyFloor)*frac
}

func (e *SuggestionEngine) nodeExists(id graph.NodeID) bool {
	return e.cfg.HasNode == nil || e.cfg.HasNode(id)
}

func (e *SuggestionEngine) limit(limit int) int {
	if limit <= 0 {
		return e.cfg.Limit
	}
	return limit
}

// rank sorts accumulated scores, applies the confidence floor, the graph
// presence filter, and the result cap.
func (e *SuggestionEngine) rank(scores map[graph.NodeID]float64, reasons map[graph.NodeID]string, limit int) []Suggestion {
	out := make([]Suggestion, 0, len(scores))
	for id, score := range scores {
		if score < e.cfg.MinConfidence {
			continue
		}
		if !e.nodeExists(id) {
			continue
		}
		out = append(out, Suggestion{NodeID: id, Confidence: score, Reasoning: reasons[id]})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].NodeID < out[j].NodeID
	})
	if max := e.limit(limit); len(out) > max {
		out = out[:max]
	}
	return out
}

// SuggestNext ranks candidate successors of currentNode across all
// experiences whose path visits it. Each occurrence contributes
// reinforcement * recency * (1 + bonus*contextSim) for the node that
// followed it.
func (e *SuggestionEngine) SuggestNext(currentNode graph.NodeID, context string, limit int) []Suggestion {
	scores := make(map[graph.NodeID]float64)
	reasons := make(map[graph.NodeID]string)

	for _, exp := range e.store.All() {
		contextSim := 0.0
		if context != "" {
			contextSim = ContextSimilarity(context, exp.Context)
		}
		weight := exp.Reinforcement * e.recencyFactor(exp) * (1 + e.cfg.ContextMatchBonus*contextSim)

		for i, node := range exp.Path {
			if node != currentNode || i+1 >= len(exp.Path) {
				continue
			}
			next := exp.Path[i+1]
			scores[next] += weight
			if _, ok := reasons[next]; !ok {
				reasons[next] = fmt.Sprintf("followed %s in %q", currentNode, exp.Context)
			}
		}
	}
	return e.rank(scores, reasons, limit)
}

// SuggestForContext ranks nodes from experiences whose context overlaps
// the given one; the reasoning cites the matched context.
func (e *SuggestionEngine) SuggestForContext(context string, limit int) []Suggestion {
	scores := make(map[graph.NodeID]float64)
	reasons := make(map[graph.NodeID]string)

	for _, exp := range e.store.All() {
		contextSim := ContextSimilarity(context, exp.Context)
		if contextSim == 0 {
			continue
		}
		weight := exp.Reinforcement * e.recencyFactor(exp) * (1 + e.cfg.ContextMatchBonus*contextSim)
		for _, node := range exp.Path {
			scores[node] += weight
			if _, ok := reasons[node]; !ok {
				reasons[node] = fmt.Sprintf("seen in similar context %q", exp.Context)
			}
		}
	}
	return e.rank(scores, reasons, limit)
}

// SuggestCompletion proposes next nodes for a partial path from
// experiences whose prefix matches it exactly. Steps closer to the match
// point weigh more than deeper ones.
func (e *SuggestionEngine) SuggestCompletion(partial []graph.NodeID, limit int) []Suggestion {
	if len(partial) == 0 {
		return []Suggestion{}
	}
	scores := make(map[graph.NodeID]float64)
	reasons := make(map[graph.NodeID]string)

	for _, exp := range e.store.All() {
		if len(exp.Path) <= len(partial) || !hasPrefix(exp.Path, partial) {
			continue
		}
		base := exp.Reinforcement * e.recencyFactor(exp)
		for depth, node := range exp.Path[len(partial):] {
			scores[node] += base / float64(depth+1)
			if _, ok := reasons[node]; !ok {
				reasons[node] = fmt.Sprintf("completes a %d-step traversal in %q", len(exp.Path), exp.Context)
			}
		}
	}
	return e.rank(scores, reasons, limit)
}

// SuggestAlternatives proposes divergence points for a failed path: among
// successful experiences sharing the longest common prefix with it, the
// first node after the shared prefix.
func (e *SuggestionEngine) SuggestAlternatives(failedPath []graph.NodeID, limit int) []Suggestion {
	if len(failedPath) == 0 {
		return []Suggestion{}
	}

	bestPrefix := 0
	for _, exp := range e.store.All() {
		if exp.Outcome != OutcomeSuccess {
			continue
		}
		if p := commonPrefixLen(exp.Path, failedPath); p > bestPrefix {
			bestPrefix = p
		}
	}
	if bestPrefix == 0 {
		return []Suggestion{}
	}

	scores := make(map[graph.NodeID]float64)
	reasons := make(map[graph.NodeID]string)
	for _, exp := range e.store.All() {
		if exp.Outcome != OutcomeSuccess {
			continue
		}
		if commonPrefixLen(exp.Path, failedPath) != bestPrefix || len(exp.Path) <= bestPrefix {
			continue
		}
		divergence := exp.Path[bestPrefix]
		scores[divergence] += exp.Reinforcement * e.recencyFactor(exp)
		if _, ok := reasons[divergence]; !ok {
			reasons[divergence] = fmt.Sprintf("successful traversal diverged here after %d shared steps", bestPrefix)
		}
	}
	return e.rank(scores, reasons, limit)
}

func hasPrefix(path, prefix []graph.NodeID) bool {
	if len(prefix) > len(path) {
		return false
	}
	for i := range prefix {
		if path[i] != prefix[i] {
			return false
		}
	}
	return true
}

func commonPrefixLen(a, b []graph.NodeID) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return i
		}
	}
	return n
}
