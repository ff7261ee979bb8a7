package experience

import (
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/orneryd/muninn/pkg/graph"
	"github.com/orneryd/muninn/pkg/ident"
)

// LearningConfig configures the learning engine.
type LearningConfig struct {
	// SimilarityThreshold is the minimum path similarity for an experience
	// to receive propagated reinforcement.
	SimilarityThreshold float64
	// MaxUpdatesPerReinforce caps how many experiences one propagation
	// call may touch (the most similar win).
	MaxUpdatesPerReinforce int
	// UseContext requires a non-zero context similarity for propagation
	// and scales the update by it.
	UseContext bool
	// ReinforcementDecayRate scales the decay applied per sweep.
	ReinforcementDecayRate float64
	// DecayPeriodDays is the age beyond which decay applies.
	DecayPeriodDays int
	// MinReinforcement floors decayed reinforcement.
	MinReinforcement float64
	// RelatedThreshold is the minimum blended similarity for a related
	// experience.
	RelatedThreshold float64
	// Clock supplies ages for decay and recency.
	Clock ident.Clock
	// Logger receives propagation debug output.
	Logger *zap.Logger
}

// DefaultLearningConfig returns the spec defaults.
func DefaultLearningConfig() LearningConfig {
	return LearningConfig{
		SimilarityThreshold:    0.3,
		MaxUpdatesPerReinforce: 20,
		ReinforcementDecayRate: 0.1,
		DecayPeriodDays:        30,
		MinReinforcement:       0.1,
		RelatedThreshold:       0.3,
	}
}

// LearningEngine maintains reinforcement across the experience store:
// propagation to similar experiences, time decay, and related-experience
// discovery.
type LearningEngine struct {
	cfg   LearningConfig
	clock ident.Clock
	log   *zap.Logger
	store *Store
}

// NewLearningEngine creates an engine over store.
func NewLearningEngine(store *Store, cfg LearningConfig) *LearningEngine {
	if cfg.SimilarityThreshold <= 0 {
		cfg.SimilarityThreshold = 0.3
	}
	if cfg.MaxUpdatesPerReinforce <= 0 {
		cfg.MaxUpdatesPerReinforce = 20
	}
	if cfg.DecayPeriodDays <= 0 {
		cfg.DecayPeriodDays = 30
	}
	if cfg.RelatedThreshold <= 0 {
		cfg.RelatedThreshold = 0.3
	}
	if cfg.Clock == nil {
		cfg.Clock = ident.WallClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &LearningEngine{cfg: cfg, clock: cfg.Clock, log: cfg.Logger, store: store}
}

// PathSimilarity blends set overlap and sequence alignment:
// 0.6*jaccard + 0.4*(LCS / max(len(a), len(b))). Identical paths score 1,
// disjoint paths 0.
func PathSimilarity(a, b []graph.NodeID) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	j := jaccardNodeSets(a, b)
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	l := float64(lcsLength(a, b)) / float64(maxLen)
	return 0.6*j + 0.4*l
}

// ContextSimilarity is token-set Jaccard over lowercased,
// whitespace-split context strings.
func ContextSimilarity(a, b string) float64 {
	setA := splitContext(a)
	setB := splitContext(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	intersection := 0
	for tok := range setA {
		if _, ok := setB[tok]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union)
}

func splitContext(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range strings.Fields(strings.ToLower(s)) {
		set[tok] = struct{}{}
	}
	return set
}

// ReinforceSimilarExperiences propagates reinforcement from a target path
// to the stored experiences most similar to it.
//
// The weight is clamped to [0, 1]. Every experience whose path similarity
// reaches the threshold (and whose context matches, when context use is
// enabled) is a candidate; only the top MaxUpdatesPerReinforce most similar
// are updated, each by weight*similarity*contextFactor, clamped to [0, 1].
// Returns the number of experiences updated.
func (l *LearningEngine) ReinforceSimilarExperiences(target []graph.NodeID, weight float64, context string) int {
	if len(target) == 0 {
		return 0
	}
	weight = clamp01(weight)
	if weight == 0 {
		return 0
	}

	type candidate struct {
		exp           *Experience
		sim           float64
		contextFactor float64
	}
	candidates := make([]candidate, 0)

	for _, exp := range l.store.All() {
		sim := PathSimilarity(exp.Path, target)
		if sim < l.cfg.SimilarityThreshold {
			continue
		}
		contextFactor := 1.0
		if l.cfg.UseContext && context != "" {
			contextFactor = ContextSimilarity(context, exp.Context)
			if contextFactor == 0 {
				continue
			}
		}
		candidates = append(candidates, candidate{exp: exp, sim: sim, contextFactor: contextFactor})
	}

	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].sim > candidates[j].sim })
	if len(candidates) > l.cfg.MaxUpdatesPerReinforce {
		candidates = candidates[:l.cfg.MaxUpdatesPerReinforce]
	}

	for _, c := range candidates {
		before := c.exp.Reinforcement
		c.exp.Reinforcement = clamp01(before + weight*c.sim*c.contextFactor)
		l.log.Debug("reinforcement propagated",
			zap.String("experience", c.exp.ID),
			zap.Float64("similarity", c.sim),
			zap.Float64("before", before),
			zap.Float64("after", c.exp.Reinforcement))
	}
	return len(candidates)
}

// ApplyReinforcementDecay reduces reinforcement on experiences older than
// the decay period by ReinforcementDecayRate * (age / period), floored at
// MinReinforcement. Returns the number of experiences touched.
func (l *LearningEngine) ApplyReinforcementDecay() int {
	now := l.clock.Now()
	period := float64(l.cfg.DecayPeriodDays)
	touched := 0

	for _, exp := range l.store.All() {
		ageDays := now.Sub(exp.Timestamp).Hours() / 24
		if ageDays <= period {
			continue
		}
		ageFactor := ageDays / period
		decayed := exp.Reinforcement - l.cfg.ReinforcementDecayRate*ageFactor
		if decayed < l.cfg.MinReinforcement {
			decayed = l.cfg.MinReinforcement
		}
		if decayed != exp.Reinforcement {
			exp.Reinforcement = clamp01(decayed)
			touched++
		}
	}
	return touched
}

// RelatedExperiences returns the ids of up to 10 experiences most related
// to the given one, ranked by 0.6*pathSim + 0.4*contextSim above the
// related threshold, excluding the experience itself. The ranking is also
// written back to the experience's RelatedExperiences field.
func (l *LearningEngine) RelatedExperiences(id string) []string {
	exp, ok := l.store.Get(id)
	if !ok {
		return nil
	}

	type scored struct {
		id    string
		score float64
	}
	ranked := make([]scored, 0)
	for _, other := range l.store.All() {
		if other.ID == id {
			continue
		}
		score := 0.6*PathSimilarity(exp.Path, other.Path) + 0.4*ContextSimilarity(exp.Context, other.Context)
		if score >= l.cfg.RelatedThreshold {
			ranked = append(ranked, scored{id: other.ID, score: score})
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
	if len(ranked) > 10 {
		ranked = ranked[:10]
	}

	ids := make([]string, len(ranked))
	for i, r := range ranked {
		ids[i] = r.id
	}
	exp.RelatedExperiences = ids
	return ids
}

// ForgetCandidates returns experiences whose reinforcement sits at the
// floor and whose age exceeds archiveAfter. The facade moves these to the
// archive.
func (l *LearningEngine) ForgetCandidates(archiveAfter time.Duration) []*Experience {
	now := l.clock.Now()
	out := make([]*Experience, 0)
	for _, exp := range l.store.All() {
		if exp.Reinforcement <= l.cfg.MinReinforcement && now.Sub(exp.Timestamp) > archiveAfter {
			out = append(out, exp)
		}
	}
	return out
}
