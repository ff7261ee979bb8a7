// Package experience implements Muninn's learning layer: concurrent path
// tracking, sequential pattern detection, reinforcement learning, and the
// suggestion engine.
//
// An Experience is a recorded traversal - an ordered path of node ids plus
// its context, outcome, timing, and learning state. Experiences accumulate
// in a shared Store that the detector, learning engine, and suggestion
// engine all read; the graph facade owns the store and cascades node
// deletions into it.
//
// Reinforcement and confidence are [0, 1] scalars and stay in range after
// any sequence of updates; every clamp lives next to the update that needs
// it.
package experience

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/orneryd/muninn/pkg/graph"
)

// Outcome classifies how a traversal ended.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeNeutral Outcome = "neutral"
)

// ValidOutcome reports whether o is one of the three outcomes.
func ValidOutcome(o Outcome) bool {
	return o == OutcomeSuccess || o == OutcomeFailure || o == OutcomeNeutral
}

// Experience is a recorded traversal with its learning state.
type Experience struct {
	ID                 string
	Path               []graph.NodeID
	Context            string
	Outcome            Outcome
	Feedback           string
	Timestamp          time.Time
	TraversalTime      int64 // milliseconds, pauses excluded
	Reinforcement      float64
	Confidence         float64
	Patterns           []*Pattern
	Insights           []Insight
	RelatedExperiences []string
	Metadata           map[string]any
}

// Pattern is a recurring node sequence distilled from similar experiences.
type Pattern struct {
	ID               string
	Description      string
	Frequency        int
	Confidence       float64
	Nodes            []graph.NodeID
	Contexts         []string
	SuccessRate      float64
	AvgTraversalTime float64
	LastSeen         time.Time

	// statSamples counts UpdateStats calls for the running averages.
	statSamples int
}

// Insight is a short derived observation attached to an experience.
type Insight struct {
	ID          string
	Description string
	Confidence  float64
	CreatedAt   time.Time
}

// Store holds experiences, shared by the tracker, learning engine, and
// suggestion engine. Thread-safe.
type Store struct {
	mu          sync.RWMutex
	experiences map[string]*Experience
	order       []string // insertion order for stable iteration
}

// NewStore creates an empty experience store.
func NewStore() *Store {
	return &Store{experiences: make(map[string]*Experience)}
}

// Add inserts an experience. A duplicate id replaces the prior record.
func (s *Store) Add(exp *Experience) {
	if exp == nil || strings.TrimSpace(exp.ID) == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.experiences[exp.ID]; !exists {
		s.order = append(s.order, exp.ID)
	}
	s.experiences[exp.ID] = exp
}

// Get returns the experience with the given id.
func (s *Store) Get(id string) (*Experience, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	exp, ok := s.experiences[id]
	return exp, ok
}

// All returns the experiences in insertion order.
func (s *Store) All() []*Experience {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Experience, 0, len(s.order))
	for _, id := range s.order {
		if exp, ok := s.experiences[id]; ok {
			out = append(out, exp)
		}
	}
	return out
}

// Remove deletes the experience with the given id.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.experiences[id]; !ok {
		return false
	}
	delete(s.experiences, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

// RemoveByNode deletes every experience whose path contains nodeID and
// returns the removed experiences. Used by the node-deletion cascade.
func (s *Store) RemoveByNode(nodeID graph.NodeID) []*Experience {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := make([]*Experience, 0)
	kept := s.order[:0]
	for _, id := range s.order {
		exp := s.experiences[id]
		if exp != nil && pathContains(exp.Path, nodeID) {
			removed = append(removed, exp)
			delete(s.experiences, id)
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
	return removed
}

// Count returns the number of stored experiences.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.experiences)
}

// ByContext returns experiences whose context equals ctx exactly, in
// insertion order.
func (s *Store) ByContext(ctx string) []*Experience {
	out := make([]*Experience, 0)
	for _, exp := range s.All() {
		if exp.Context == ctx {
			out = append(out, exp)
		}
	}
	return out
}

// Recent returns up to limit experiences, newest timestamp first.
func (s *Store) Recent(limit int) []*Experience {
	all := s.All()
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Timestamp.After(all[j].Timestamp)
	})
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all
}

func pathContains(path []graph.NodeID, id graph.NodeID) bool {
	for _, n := range path {
		if n == id {
			return true
		}
	}
	return false
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
