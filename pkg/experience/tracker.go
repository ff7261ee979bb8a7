package experience

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/orneryd/muninn/pkg/graph"
	"github.com/orneryd/muninn/pkg/ident"
)

// Tracker errors.
var (
	ErrPathNotFound   = errors.New("path not found")
	ErrPathPaused     = errors.New("path is paused")
	ErrPathEmpty      = errors.New("path has no nodes")
	ErrTooManyPaths   = errors.New("max concurrent paths reached")
	ErrInvalidContext = errors.New("context is empty")
	ErrInvalidNode    = errors.New("invalid node")
	ErrUnknownNode    = errors.New("unknown node")
	ErrInvalidOutcome = errors.New("invalid outcome")
)

// completionKeywords mark a node as goal-completing when its id contains
// one of them.
var completionKeywords = []string{"complete", "finish", "success", "done", "end", "achieve"}

// NodeChecker is the node-existence predicate the tracker consults when
// node validation is enabled. The graph store's HasNode satisfies it.
type NodeChecker func(graph.NodeID) bool

// TrackerConfig configures the PathTracker.
type TrackerConfig struct {
	// MaxConcurrentPaths bounds simultaneously active traversals.
	MaxConcurrentPaths int
	// AutoCompleteTimeout is the idle age beyond which
	// CleanupInactivePaths force-completes a path as neutral.
	AutoCompleteTimeout time.Duration
	// ValidateNodes, when set with a HasNode predicate, rejects unknown
	// initial nodes on StartPath.
	ValidateNodes bool
	// HasNode is the node-existence predicate for validation.
	HasNode NodeChecker
	// Clock supplies all timing; tests inject a manual clock.
	Clock ident.Clock
	// IDs mints path and experience ids.
	IDs *ident.Generator
	// Logger receives lifecycle debug output.
	Logger *zap.Logger
}

// DefaultTrackerConfig returns the spec defaults: 10 concurrent paths,
// 300 s auto-complete timeout, no node validation.
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		MaxConcurrentPaths:  10,
		AutoCompleteTimeout: 300 * time.Second,
	}
}

// activePath is one in-flight traversal.
//
// State machine: Running -> Paused -> Running ... -> Completed | Cancelled.
type activePath struct {
	id              string
	context         string
	nodes           []graph.NodeID
	startTime       time.Time
	lastNodeTime    time.Time
	paused          bool
	pausedDuration  time.Duration
	pauseStartTime  time.Time
	metadata        map[string]any
	goal            string
	expectedOutcome Outcome
}

// PathTracker manages the lifecycle of active traversals and turns
// completed ones into Experience records.
//
// Example:
//
//	tracker := experience.NewPathTracker(store, experience.DefaultTrackerConfig())
//	pathID, _ := tracker.StartPath("debugging session", "info_1", nil)
//	tracker.AddNode(pathID, "info_2", nil)
//	exp, _ := tracker.CompletePath(pathID, experience.OutcomeSuccess, "found it")
//	fmt.Printf("traversal took %d ms\n", exp.TraversalTime)
type PathTracker struct {
	cfg    TrackerConfig
	clock  ident.Clock
	ids    *ident.Generator
	log    *zap.Logger
	store  *Store
	active map[string]*activePath
}

// NewPathTracker creates a tracker writing completed experiences into
// store.
func NewPathTracker(store *Store, cfg TrackerConfig) *PathTracker {
	if cfg.MaxConcurrentPaths <= 0 {
		cfg.MaxConcurrentPaths = 10
	}
	if cfg.AutoCompleteTimeout <= 0 {
		cfg.AutoCompleteTimeout = 300 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = ident.WallClock{}
	}
	if cfg.IDs == nil {
		cfg.IDs = ident.NewGenerator(cfg.Clock, time.Now().UnixNano())
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &PathTracker{
		cfg:    cfg,
		clock:  cfg.Clock,
		ids:    cfg.IDs,
		log:    cfg.Logger,
		store:  store,
		active: make(map[string]*activePath),
	}
}

// StartPath begins tracking a traversal and returns its path id.
//
// Fails when the active-path count has reached MaxConcurrentPaths, when the
// context is blank, or (with validation enabled) when initialNode does not
// exist. The goal, when present under metadata["goal"], drives
// expected-outcome detection in AddNode.
func (t *PathTracker) StartPath(context string, initialNode graph.NodeID, metadata map[string]any) (string, error) {
	if strings.TrimSpace(context) == "" {
		return "", ErrInvalidContext
	}
	if len(t.active) >= t.cfg.MaxConcurrentPaths {
		return "", fmt.Errorf("%w (%d)", ErrTooManyPaths, t.cfg.MaxConcurrentPaths)
	}

	initial := graph.NodeID(strings.TrimSpace(string(initialNode)))
	if initial != "" && t.cfg.ValidateNodes && t.cfg.HasNode != nil && !t.cfg.HasNode(initial) {
		return "", fmt.Errorf("%w: %s", ErrUnknownNode, initial)
	}

	now := t.clock.Now()
	path := &activePath{
		id:           t.ids.NewID("path"),
		context:      context,
		startTime:    now,
		lastNodeTime: now,
		metadata:     metadata,
	}
	if goal, ok := metadata["goal"].(string); ok {
		path.goal = goal
	}
	if initial != "" {
		path.nodes = append(path.nodes, initial)
	}

	t.active[path.id] = path
	t.log.Debug("path started", zap.String("path", path.id), zap.String("context", context))
	return path.id, nil
}

// AddNode appends a node to an active path. Fails when the path is missing
// or paused, or when nodeID is blank. The id is trimmed before recording.
func (t *PathTracker) AddNode(pathID string, nodeID graph.NodeID, stepMeta map[string]any) error {
	path, ok := t.active[pathID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrPathNotFound, pathID)
	}
	if path.paused {
		return fmt.Errorf("%w: %s", ErrPathPaused, pathID)
	}
	trimmed := graph.NodeID(strings.TrimSpace(string(nodeID)))
	if trimmed == "" {
		return ErrInvalidNode
	}

	path.nodes = append(path.nodes, trimmed)
	path.lastNodeTime = t.clock.Now()
	if stepMeta != nil {
		if path.metadata == nil {
			path.metadata = make(map[string]any)
		}
		path.metadata[fmt.Sprintf("step_%d", len(path.nodes)-1)] = stepMeta
	}

	if path.goal != "" && path.expectedOutcome == "" && t.indicatesCompletion(trimmed, path.goal) {
		path.expectedOutcome = OutcomeSuccess
	}
	return nil
}

// indicatesCompletion reports whether a node name signals the path's goal
// was reached: it contains a completion keyword or shares a significant
// token with the goal.
func (t *PathTracker) indicatesCompletion(nodeID graph.NodeID, goal string) bool {
	name := strings.ToLower(string(nodeID))
	for _, kw := range completionKeywords {
		if strings.Contains(name, kw) {
			return true
		}
	}
	goalTokens := make(map[string]struct{})
	for _, tok := range strings.Fields(strings.ToLower(goal)) {
		if len(tok) > 2 {
			goalTokens[tok] = struct{}{}
		}
	}
	for _, tok := range strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-' || r == ' ' || r == ':'
	}) {
		if len(tok) <= 2 {
			continue
		}
		if _, ok := goalTokens[tok]; ok {
			return true
		}
	}
	return false
}

// PausePath suspends timing for a path. Idempotent: pausing a paused path
// is a no-op.
func (t *PathTracker) PausePath(pathID string) error {
	path, ok := t.active[pathID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrPathNotFound, pathID)
	}
	if path.paused {
		return nil
	}
	path.paused = true
	path.pauseStartTime = t.clock.Now()
	return nil
}

// ResumePath resumes a paused path, accumulating the paused duration.
// Idempotent: resuming a running path is a no-op.
func (t *PathTracker) ResumePath(pathID string) error {
	path, ok := t.active[pathID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrPathNotFound, pathID)
	}
	if !path.paused {
		return nil
	}
	path.paused = false
	path.pausedDuration += t.clock.Now().Sub(path.pauseStartTime)
	path.pauseStartTime = time.Time{}
	return nil
}

// CompletePath finishes a path and records the resulting Experience in the
// store. Requires at least one node. A still-paused path is resumed first
// so its final pause counts toward pausedDuration.
func (t *PathTracker) CompletePath(pathID string, outcome Outcome, feedback string) (*Experience, error) {
	path, ok := t.active[pathID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPathNotFound, pathID)
	}
	if !ValidOutcome(outcome) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidOutcome, outcome)
	}
	if len(path.nodes) == 0 {
		return nil, ErrPathEmpty
	}

	now := t.clock.Now()
	if path.paused {
		path.pausedDuration += now.Sub(path.pauseStartTime)
		path.paused = false
	}

	elapsed := now.Sub(path.startTime) - path.pausedDuration
	traversalMs := int64(math.Round(float64(elapsed) / float64(time.Millisecond)))
	if traversalMs < 0 {
		traversalMs = 0
	}

	exp := &Experience{
		ID:            t.ids.NewID("exp"),
		Path:          append([]graph.NodeID(nil), path.nodes...),
		Context:       path.context,
		Outcome:       outcome,
		Feedback:      feedback,
		Timestamp:     now,
		TraversalTime: traversalMs,
		Reinforcement: InitialReinforcement(outcome, len(path.nodes), traversalMs),
		Confidence:    t.completionConfidence(path, outcome),
		Metadata:      path.metadata,
	}

	delete(t.active, pathID)
	if t.store != nil {
		t.store.Add(exp)
	}
	t.log.Debug("path completed",
		zap.String("path", pathID),
		zap.String("experience", exp.ID),
		zap.String("outcome", string(outcome)),
		zap.Int64("traversal_ms", traversalMs))
	return exp, nil
}

// CancelPath discards a path without producing an Experience.
func (t *PathTracker) CancelPath(pathID string) bool {
	if _, ok := t.active[pathID]; !ok {
		return false
	}
	delete(t.active, pathID)
	return true
}

// ActiveCount returns the number of in-flight paths.
func (t *PathTracker) ActiveCount() int { return len(t.active) }

// ActivePathIDs returns the in-flight path ids, sorted.
func (t *PathTracker) ActivePathIDs() []string {
	ids := make([]string, 0, len(t.active))
	for id := range t.active {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// CleanupInactivePaths force-completes paths idle longer than maxAge (or
// the configured AutoCompleteTimeout when maxAge <= 0) with a neutral
// outcome, returning the produced experiences. Paths with no nodes are
// cancelled instead.
func (t *PathTracker) CleanupInactivePaths(maxAge time.Duration) []*Experience {
	if maxAge <= 0 {
		maxAge = t.cfg.AutoCompleteTimeout
	}
	now := t.clock.Now()

	stale := make([]string, 0)
	for id, path := range t.active {
		if now.Sub(path.lastNodeTime) > maxAge {
			stale = append(stale, id)
		}
	}
	sort.Strings(stale)

	completed := make([]*Experience, 0, len(stale))
	for _, id := range stale {
		if len(t.active[id].nodes) == 0 {
			t.CancelPath(id)
			continue
		}
		exp, err := t.CompletePath(id, OutcomeNeutral, "auto-completed: inactive")
		if err != nil {
			t.log.Warn("cleanup failed to complete path", zap.String("path", id), zap.Error(err))
			continue
		}
		completed = append(completed, exp)
	}
	return completed
}

// InitialReinforcement computes the reinforcement assigned at completion:
// an outcome base (0.8 success / 0.5 neutral / 0.2 failure), plus an
// efficiency bonus up to 0.2 that falls linearly with traversal time
// (success only), minus a length penalty up to 0.1 that grows with path
// length. Clamped to [0, 1].
func InitialReinforcement(outcome Outcome, pathLen int, traversalMs int64) float64 {
	var base float64
	switch outcome {
	case OutcomeSuccess:
		base = 0.8
	case OutcomeFailure:
		base = 0.2
	default:
		base = 0.5
	}

	if outcome == OutcomeSuccess {
		timeFactor := math.Min(float64(traversalMs)/10000.0, 1.0)
		base += 0.2 * (1.0 - timeFactor)
	}

	lengthFactor := math.Min(float64(pathLen)/10.0, 1.0)
	base -= 0.1 * lengthFactor

	return clamp01(base)
}

// completionConfidence scores how much to trust a freshly recorded
// experience: 0.7 base, +0.02 per node capped at +0.2, +0.1 when the
// expected outcome matched, -0.2 for single-node paths, -0.1 for paths
// over 20 nodes, -0.05 when the path was ever paused. Clamped to [0, 1].
func (t *PathTracker) completionConfidence(path *activePath, outcome Outcome) float64 {
	confidence := 0.7

	nodeBonus := 0.02 * float64(len(path.nodes))
	if nodeBonus > 0.2 {
		nodeBonus = 0.2
	}
	confidence += nodeBonus

	if path.expectedOutcome != "" && path.expectedOutcome == outcome {
		confidence += 0.1
	}
	if len(path.nodes) < 2 {
		confidence -= 0.2
	}
	if len(path.nodes) > 20 {
		confidence -= 0.1
	}
	if path.pausedDuration > 0 {
		confidence -= 0.05
	}

	return clamp01(confidence)
}
