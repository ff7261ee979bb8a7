package muninn

import (
	"sort"
	"time"

	"github.com/orneryd/muninn/pkg/graph"
)

// Intuition is a fast pattern-triggered shortcut: when the trigger node is
// visited, the target is proposed without consulting the full suggestion
// pipeline. Shortcuts are built from well-supported sequential patterns and
// are thin plumbing over Experience.
type Intuition struct {
	ID         string
	Trigger    graph.NodeID
	Target     graph.NodeID
	Confidence float64
	Created    time.Time
}

// intuitionMinConfidence is the pattern confidence floor for shortcuts.
const intuitionMinConfidence = 0.5

// intuitionMinFrequency is the pattern support floor for shortcuts.
const intuitionMinFrequency = 2

// BuildIntuitions derives shortcuts from the detected sequential patterns:
// each sufficiently frequent, confident pattern contributes one shortcut
// from its first node to its last. Rebuilding replaces earlier shortcuts.
// Returns the number of shortcuts.
func (db *DB) BuildIntuitions() int {
	db.intuitions = make(map[string]*Intuition)
	for _, p := range db.detector.All() {
		if p.Confidence < intuitionMinConfidence || p.Frequency < intuitionMinFrequency {
			continue
		}
		if len(p.Nodes) < 2 {
			continue
		}
		in := &Intuition{
			ID:         db.ids.NewID("intuition"),
			Trigger:    p.Nodes[0],
			Target:     p.Nodes[len(p.Nodes)-1],
			Confidence: p.Confidence * p.SuccessRate,
			Created:    db.clock.Now(),
		}
		db.intuitions[in.ID] = in
	}
	return len(db.intuitions)
}

// TriggerIntuition returns the shortcuts fired by visiting a node, best
// confidence first.
func (db *DB) TriggerIntuition(node graph.NodeID) []*Intuition {
	out := make([]*Intuition, 0)
	for _, in := range db.intuitions {
		if in.Trigger == node {
			out = append(out, in)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Intuitions returns all shortcuts sorted by id.
func (db *DB) Intuitions() []*Intuition {
	out := make([]*Intuition, 0, len(db.intuitions))
	for _, in := range db.intuitions {
		out = append(out, in)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
