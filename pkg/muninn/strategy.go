package muninn

import (
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/orneryd/muninn/pkg/experience"
	"github.com/orneryd/muninn/pkg/graph"
)

// ErrStrategyNotFound is returned for unknown strategy ids.
var ErrStrategyNotFound = errors.New("strategy not found")

// Strategy is a goal-directed plan distilled from experience: the path
// of the best-reinforced successful traversal whose context matches the
// goal. Strategies are thin plumbing over Experience; the learning lives
// below them.
type Strategy struct {
	ID         string
	Goal       string
	Steps      []graph.NodeID
	Confidence float64
	Outcome    experience.Outcome
	Created    time.Time
	Updated    time.Time
	Feedback   []string
}

// StrategyComparison pairs two strategies with their blended similarity.
type StrategyComparison struct {
	A          string
	B          string
	Similarity float64
}

// Plan derives a strategy for a goal from the recorded experiences: the
// successful traversal with the best reinforcement among those whose
// context overlaps the goal. Returns nil when nothing qualifies.
func (db *DB) Plan(goal string) *Strategy {
	if strings.TrimSpace(goal) == "" {
		return nil
	}

	var best *experience.Experience
	bestScore := 0.0
	for _, exp := range db.experiences.All() {
		if exp.Outcome != experience.OutcomeSuccess {
			continue
		}
		overlap := experience.ContextSimilarity(goal, exp.Context)
		if overlap == 0 {
			continue
		}
		score := exp.Reinforcement * (0.5 + 0.5*overlap)
		if score > bestScore {
			bestScore = score
			best = exp
		}
	}
	if best == nil {
		return nil
	}

	now := db.clock.Now()
	st := &Strategy{
		ID:         db.ids.NewID("strategy"),
		Goal:       goal,
		Steps:      append([]graph.NodeID(nil), best.Path...),
		Confidence: bestScore,
		Outcome:    best.Outcome,
		Created:    now,
		Updated:    now,
	}
	db.strategies[st.ID] = st
	db.bus.Emit(EventStrategyAfterPlan, st)
	return st
}

// GetStrategy returns a strategy by id.
func (db *DB) GetStrategy(id string) (*Strategy, bool) {
	st, ok := db.strategies[id]
	return st, ok
}

// Strategies returns all strategies sorted by id.
func (db *DB) Strategies() []*Strategy {
	out := make([]*Strategy, 0, len(db.strategies))
	for _, st := range db.strategies {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AdaptStrategy records feedback against a strategy and re-plans its steps
// from the current experience pool.
func (db *DB) AdaptStrategy(id, feedback string) (*Strategy, error) {
	st, ok := db.strategies[id]
	if !ok {
		return nil, ErrStrategyNotFound
	}
	if feedback != "" {
		st.Feedback = append(st.Feedback, feedback)
	}
	if replanned := db.Plan(st.Goal); replanned != nil {
		st.Steps = replanned.Steps
		st.Confidence = replanned.Confidence
		// Plan registered a throwaway strategy; fold it back in.
		delete(db.strategies, replanned.ID)
	}
	st.Updated = db.clock.Now()
	db.bus.Emit(EventStrategyAfterAdapt, st)
	return st, nil
}

// UpdateStrategy replaces a strategy's steps directly.
func (db *DB) UpdateStrategy(id string, steps []graph.NodeID) (*Strategy, error) {
	st, ok := db.strategies[id]
	if !ok {
		return nil, ErrStrategyNotFound
	}
	st.Steps = append([]graph.NodeID(nil), steps...)
	st.Updated = db.clock.Now()
	db.bus.Emit(EventStrategyAfterUpdate, st)
	return st, nil
}

// DeleteStrategy removes a strategy.
func (db *DB) DeleteStrategy(id string) bool {
	if _, ok := db.strategies[id]; !ok {
		return false
	}
	delete(db.strategies, id)
	db.bus.Emit(EventStrategyAfterDelete, id)
	return true
}

// CompareStrategies scores two strategies by step-path similarity.
func (db *DB) CompareStrategies(a, b string) (*StrategyComparison, error) {
	sa, ok := db.strategies[a]
	if !ok {
		return nil, ErrStrategyNotFound
	}
	sb, ok := db.strategies[b]
	if !ok {
		return nil, ErrStrategyNotFound
	}
	cmp := &StrategyComparison{
		A:          a,
		B:          b,
		Similarity: experience.PathSimilarity(sa.Steps, sb.Steps),
	}
	db.bus.Emit(EventStrategyAfterCompare, cmp)
	return cmp, nil
}

// strategiesTouching returns strategies whose steps include the node.
func (db *DB) strategiesTouching(id graph.NodeID) []*Strategy {
	out := make([]*Strategy, 0)
	for _, st := range db.strategies {
		for _, step := range st.Steps {
			if step == id {
				out = append(out, st)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
