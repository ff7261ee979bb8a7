package experience

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/orneryd/muninn/pkg/graph"
	"github.com/orneryd/muninn/pkg/ident"
)

// ErrDuplicatePattern is returned when a pattern id is registered twice.
var ErrDuplicatePattern = errors.New("duplicate pattern id")

// DetectorConfig configures the sequential pattern detector.
type DetectorConfig struct {
	// SimilarityThreshold is the minimum path-to-pattern similarity for an
	// existing pattern to absorb a new path.
	SimilarityThreshold float64
	// MinPathLength is the shortest path that can seed a new pattern.
	MinPathLength int
	// Clock stamps LastSeen.
	Clock ident.Clock
	// IDs mints pattern ids.
	IDs *ident.Generator
}

// DefaultDetectorConfig returns the spec defaults.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		SimilarityThreshold: 0.7,
		MinPathLength:       3,
	}
}

// PatternDetector groups similar experience paths into Pattern records.
//
// Each observed path is compared to every known pattern with
// 0.6*jaccard(pathSet, patternSet) + 0.4*(2*LCS / (|path|+|pattern|)). The
// best match above the threshold absorbs the path; otherwise a
// sufficiently long path seeds a new pattern.
type PatternDetector struct {
	cfg      DetectorConfig
	clock    ident.Clock
	ids      *ident.Generator
	patterns map[string]*Pattern
	order    []string
}

// NewPatternDetector creates a detector with the given config.
func NewPatternDetector(cfg DetectorConfig) *PatternDetector {
	if cfg.SimilarityThreshold <= 0 {
		cfg.SimilarityThreshold = 0.7
	}
	if cfg.MinPathLength <= 0 {
		cfg.MinPathLength = 3
	}
	if cfg.Clock == nil {
		cfg.Clock = ident.WallClock{}
	}
	if cfg.IDs == nil {
		cfg.IDs = ident.NewGenerator(cfg.Clock, time.Now().UnixNano())
	}
	return &PatternDetector{
		cfg:      cfg,
		clock:    cfg.Clock,
		ids:      cfg.IDs,
		patterns: make(map[string]*Pattern),
	}
}

// Observe processes a completed path with its context. Returns the pattern
// that absorbed the path (updated or freshly created), or nil when the path
// is too short to seed one and matched nothing.
func (d *PatternDetector) Observe(path []graph.NodeID, context string) *Pattern {
	if len(path) == 0 {
		return nil
	}

	var best *Pattern
	bestSim := 0.0
	for _, id := range d.order {
		p := d.patterns[id]
		sim := pathToPatternSimilarity(path, p.Nodes)
		if sim > bestSim {
			bestSim = sim
			best = p
		}
	}

	if best != nil && bestSim > d.cfg.SimilarityThreshold {
		best.Frequency++
		best.LastSeen = d.clock.Now()
		if context != "" && !containsString(best.Contexts, context) {
			best.Contexts = append(best.Contexts, context)
		}
		return best
	}

	if len(path) < d.cfg.MinPathLength {
		return nil
	}

	pattern := &Pattern{
		ID:          d.ids.NewID("pattern"),
		Description: describePath(path),
		Frequency:   1,
		Confidence:  0.6,
		Nodes:       append([]graph.NodeID(nil), path...),
		SuccessRate: 1.0,
		LastSeen:    d.clock.Now(),
	}
	if context != "" {
		pattern.Contexts = []string{context}
	}
	d.patterns[pattern.ID] = pattern
	d.order = append(d.order, pattern.ID)
	return pattern
}

// Register adds an externally built pattern. Duplicate ids are rejected.
func (d *PatternDetector) Register(p *Pattern) error {
	if p == nil || strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("pattern: %w", graph.ErrInvalidData)
	}
	if _, exists := d.patterns[p.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicatePattern, p.ID)
	}
	d.patterns[p.ID] = p
	d.order = append(d.order, p.ID)
	return nil
}

// Get returns the pattern with the given id.
func (d *PatternDetector) Get(id string) (*Pattern, bool) {
	p, ok := d.patterns[id]
	return p, ok
}

// All returns the patterns in creation order.
func (d *PatternDetector) All() []*Pattern {
	out := make([]*Pattern, 0, len(d.order))
	for _, id := range d.order {
		out = append(out, d.patterns[id])
	}
	return out
}

// UpdateStats folds a traversal's duration and outcome into the pattern's
// running averages.
func (d *PatternDetector) UpdateStats(id string, traversalMs int64, success bool) bool {
	p, ok := d.patterns[id]
	if !ok {
		return false
	}
	p.statSamples++
	n := float64(p.statSamples)
	p.AvgTraversalTime = (p.AvgTraversalTime*(n-1) + float64(traversalMs)) / n

	hit := 0.0
	if success {
		hit = 1.0
	}
	p.SuccessRate = (p.SuccessRate*(n-1) + hit) / n
	return true
}

// Prune removes patterns whose confidence fell below minConfidence or whose
// LastSeen is older than maxAgeDays. Returns the number removed.
func (d *PatternDetector) Prune(minConfidence float64, maxAgeDays int) int {
	cutoff := d.clock.Now().AddDate(0, 0, -maxAgeDays)
	removed := 0
	kept := d.order[:0]
	for _, id := range d.order {
		p := d.patterns[id]
		stale := maxAgeDays > 0 && p.LastSeen.Before(cutoff)
		weak := p.Confidence < minConfidence
		if stale || weak {
			delete(d.patterns, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	d.order = kept
	return removed
}

// pathToPatternSimilarity blends set overlap with sequence alignment:
// 0.6*jaccard + 0.4*(2*LCS / (len(a)+len(b))).
func pathToPatternSimilarity(path, pattern []graph.NodeID) float64 {
	if len(path) == 0 || len(pattern) == 0 {
		return 0
	}
	j := jaccardNodeSets(path, pattern)
	l := float64(2*lcsLength(path, pattern)) / float64(len(path)+len(pattern))
	return 0.6*j + 0.4*l
}

// jaccardNodeSets is |A n B| / |A u B| over the distinct nodes of two
// paths.
func jaccardNodeSets(a, b []graph.NodeID) float64 {
	setA := make(map[graph.NodeID]struct{}, len(a))
	for _, n := range a {
		setA[n] = struct{}{}
	}
	setB := make(map[graph.NodeID]struct{}, len(b))
	for _, n := range b {
		setB[n] = struct{}{}
	}
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	intersection := 0
	for n := range setA {
		if _, ok := setB[n]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union)
}

// lcsLength is the longest-common-subsequence length of two node
// sequences (classic O(len(a)*len(b)) dynamic program).
func lcsLength(a, b []graph.NodeID) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1] + 1
			} else if prev[j] >= curr[j-1] {
				curr[j] = prev[j]
			} else {
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func describePath(path []graph.NodeID) string {
	parts := make([]string, len(path))
	for i, n := range path {
		parts[i] = string(n)
	}
	return "sequence " + strings.Join(parts, " -> ")
}

func containsString(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}
