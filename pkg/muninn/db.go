// Package muninn provides the embedded knowledge graph engine API.
//
// A DB owns one graph and its five abstraction layers: Information (nodes),
// Knowledge (typed edges), Experience (recorded traversals with
// reinforcement), Strategy (goal-directed plans), and Intuition
// (pattern-triggered shortcuts). Callers add nodes, connect them, record
// traversals, and query for paths, clusters, metrics, patterns, and
// suggestions.
//
// Node, edge, recorded-experience, and strategy changes emit named events on
// the DB's bus, which is how external collaborators observe the engine
// without static linkage. The text index is notified by direct calls.
//
// Example:
//
//	db, err := muninn.Open(config.Default(), muninn.Options{})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer db.Close()
//
//	a, _ := db.AddInformation(graph.StringContent("first note"), "note", "", nil)
//	b, _ := db.AddInformation(graph.StringContent("second note"), "note", "", nil)
//	db.Connect(a.ID, b.ID, "relates_to", 0.8, nil)
//
//	pathID, _ := db.StartPath("research session", a.ID, nil)
//	db.AddPathNode(pathID, b.ID, nil)
//	exp, _ := db.CompletePath(pathID, experience.OutcomeSuccess, "")
//	fmt.Println(exp.Reinforcement)
package muninn

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/orneryd/muninn/pkg/analysis"
	"github.com/orneryd/muninn/pkg/archive"
	"github.com/orneryd/muninn/pkg/config"
	"github.com/orneryd/muninn/pkg/event"
	"github.com/orneryd/muninn/pkg/experience"
	"github.com/orneryd/muninn/pkg/graph"
	"github.com/orneryd/muninn/pkg/ident"
	"github.com/orneryd/muninn/pkg/index"
	"github.com/orneryd/muninn/pkg/snapshot"
)

// Event names emitted by the facade.
const (
	EventInformationAfterAdd    = "information:afterAdd"
	EventInformationAfterUpdate = "information:afterUpdate"
	EventInformationAfterDelete = "information:afterDelete"

	EventKnowledgeAfterConnect    = "knowledge:afterConnect"
	EventKnowledgeAfterDisconnect = "knowledge:afterDisconnect"
	EventKnowledgeOnCluster       = "knowledge:onCluster"

	EventExperienceAfterRecord    = "experience:afterRecord"
	EventExperienceBeforeLearn    = "experience:beforeLearn"
	EventExperienceOnLearn        = "experience:onLearn"
	EventExperienceAfterReinforce = "experience:afterReinforce"
	EventExperienceAfterForget    = "experience:afterForget"

	EventStrategyAfterPlan    = "strategy:afterPlan"
	EventStrategyAfterAdapt   = "strategy:afterAdapt"
	EventStrategyAfterCompare = "strategy:afterCompare"
	EventStrategyAfterUpdate  = "strategy:afterUpdate"
	EventStrategyAfterDelete  = "strategy:afterDelete"
)

// ErrClosed is returned by operations on a closed DB.
var ErrClosed = errors.New("muninn: closed")

// Options carries injectable collaborators; zero values get sane defaults.
type Options struct {
	// Clock drives all timing. Tests inject a manual clock.
	Clock ident.Clock
	// Logger overrides the config-built zap logger.
	Logger *zap.Logger
	// TextIndex overrides the default in-memory text index.
	TextIndex index.TextIndex
	// IDSeed seeds the id generator; 0 means wall clock.
	IDSeed int64
}

// DB is the engine facade. A single process owns one DB; callers serialize
// their own mutations (the engine is a single-writer design).
type DB struct {
	cfg   config.Config
	log   *zap.Logger
	clock ident.Clock
	ids   *ident.Generator

	bus         *event.Bus
	graph       *graph.Store
	experiences *experience.Store
	tracker     *experience.PathTracker
	detector    *experience.PatternDetector
	learning    *experience.LearningEngine
	suggester   *experience.SuggestionEngine
	persist     *snapshot.Controller
	textIndex   index.TextIndex
	arc         *archive.Archive

	strategies map[string]*Strategy
	intuitions map[string]*Intuition

	closed bool
}

// Open builds a DB from config.
func Open(cfg config.Config, opts Options) (*DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	clock := opts.Clock
	if clock == nil {
		clock = ident.WallClock{}
	}
	log := opts.Logger
	if log == nil {
		var err error
		log, err = buildLogger(cfg.Logging)
		if err != nil {
			return nil, err
		}
	}
	seed := opts.IDSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	ids := ident.NewGenerator(clock, seed)

	bus := event.NewBus(event.Options{
		MaxListeners: cfg.Events.MaxListeners,
		OnError: func(name string, recovered any) {
			log.Warn("event handler panicked", zap.String("event", name), zap.Any("panic", recovered))
		},
	})

	store := graph.NewStore(graph.Options{Clock: clock, Logger: log})
	experiences := experience.NewStore()

	trackerCfg := experience.TrackerConfig{
		MaxConcurrentPaths:  cfg.Experience.MaxConcurrentPaths,
		AutoCompleteTimeout: cfg.Experience.AutoCompleteTimeout.Std(),
		ValidateNodes:       cfg.Experience.ValidateNodes,
		HasNode:             store.HasNode,
		Clock:               clock,
		IDs:                 ids,
		Logger:              log,
	}

	learningCfg := experience.DefaultLearningConfig()
	learningCfg.SimilarityThreshold = cfg.Experience.SimilarityThreshold
	learningCfg.DecayPeriodDays = cfg.Experience.DecayPeriodDays
	learningCfg.ReinforcementDecayRate = cfg.Experience.DecayRate
	learningCfg.MinReinforcement = cfg.Experience.MinReinforcement
	learningCfg.Clock = clock
	learningCfg.Logger = log

	suggestCfg := experience.DefaultSuggestConfig()
	suggestCfg.HasNode = store.HasNode
	suggestCfg.Clock = clock

	detectorCfg := experience.DefaultDetectorConfig()
	detectorCfg.Clock = clock
	detectorCfg.IDs = ids

	textIndex := opts.TextIndex
	if textIndex == nil {
		textIndex = index.NewMemoryIndex()
	}

	db := &DB{
		cfg:         cfg,
		log:         log,
		clock:       clock,
		ids:         ids,
		bus:         bus,
		graph:       store,
		experiences: experiences,
		tracker:     experience.NewPathTracker(experiences, trackerCfg),
		detector:    experience.NewPatternDetector(detectorCfg),
		learning:    experience.NewLearningEngine(experiences, learningCfg),
		suggester:   experience.NewSuggestionEngine(experiences, suggestCfg),
		persist:     snapshot.NewController(clock, log),
		textIndex:   textIndex,
		strategies:  make(map[string]*Strategy),
		intuitions:  make(map[string]*Intuition),
	}

	if cfg.Archive.Enabled {
		arc, err := archive.Open(archive.Options{Dir: cfg.Archive.Dir, Logger: log})
		if err != nil {
			bus.Close()
			return nil, err
		}
		db.arc = arc
	}

	return db, nil
}

func buildLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	if cfg.Development {
		return zap.NewDevelopment()
	}
	zcfg := zap.NewProductionConfig()
	if cfg.Level != "" {
		level, err := zap.ParseAtomicLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("muninn: log level: %w", err)
		}
		zcfg.Level = level
	}
	return zcfg.Build()
}

// Close shuts the engine down: the event bus drains and the archive
// closes. Idempotent.
func (db *DB) Close() error {
	if db.closed {
		return nil
	}
	db.closed = true
	db.bus.Close()
	if db.arc != nil {
		return db.arc.Close()
	}
	return nil
}

// Bus exposes the event bus for external subscribers.
func (db *DB) Bus() *event.Bus { return db.bus }

// Graph exposes the underlying graph store for read-heavy callers.
func (db *DB) Graph() *graph.Store { return db.graph }

// ---------------------------------------------------------------------------
// Information
// ---------------------------------------------------------------------------

// AddInformation stores a content record as a graph node and returns it.
// Content must not be null and the type must be non-empty.
func (db *DB) AddInformation(content graph.Content, nodeType, source string, metadata map[string]any) (*graph.Node, error) {
	if db.closed {
		return nil, ErrClosed
	}
	if content.IsZero() {
		return nil, fmt.Errorf("muninn: content missing: %w", graph.ErrInvalidData)
	}

	node := &graph.Node{
		ID:       graph.NodeID(db.ids.NewID("info")),
		Content:  content,
		Type:     nodeType,
		Source:   source,
		Metadata: metadata,
	}
	if _, err := db.graph.AddNode(node); err != nil {
		return nil, err
	}

	stored, _ := db.graph.GetNode(node.ID)
	db.textIndex.AddNode(stored)
	db.bus.Emit(EventInformationAfterAdd, stored)
	return stored, nil
}

// GetInformation returns the node with the given id.
func (db *DB) GetInformation(id graph.NodeID) (*graph.Node, bool) {
	return db.graph.GetNode(id)
}

// UpdateInformation merges a patch into the node, bumping its modified
// timestamp.
func (db *DB) UpdateInformation(id graph.NodeID, patch graph.NodePatch) bool {
	if !db.graph.UpdateNode(id, patch) {
		return false
	}
	updated, _ := db.graph.GetNode(id)
	db.textIndex.UpdateNode(updated)
	db.bus.Emit(EventInformationAfterUpdate, updated)
	return true
}

// DeleteInformation removes a node and cascades: incident edges, every
// experience whose path contains the node, and every strategy touching it
// all go; the text index is notified.
func (db *DB) DeleteInformation(id graph.NodeID) bool {
	removedEdges, ok := db.graph.DeleteNode(id)
	if !ok {
		return false
	}

	db.textIndex.RemoveNode(id)
	for _, edge := range removedEdges {
		db.bus.Emit(EventKnowledgeAfterDisconnect, edge.Key())
	}
	for _, exp := range db.experiences.RemoveByNode(id) {
		db.bus.Emit(EventExperienceAfterForget, exp.ID)
	}
	for _, st := range db.strategiesTouching(id) {
		delete(db.strategies, st.ID)
		db.bus.Emit(EventStrategyAfterDelete, st.ID)
	}

	db.bus.Emit(EventInformationAfterDelete, id)
	return true
}

// SearchInformation queries the text-index collaborator.
func (db *DB) SearchInformation(query string, opts index.SearchOptions) []*graph.Node {
	return db.textIndex.Search(query, opts)
}

// ---------------------------------------------------------------------------
// Knowledge
// ---------------------------------------------------------------------------

// Connect adds (or replaces) a typed directed edge between two nodes.
// Strength 0 defaults to 1.0.
func (db *DB) Connect(from, to graph.NodeID, edgeType string, strength float64, metadata map[string]any) (graph.EdgeKey, error) {
	if db.closed {
		return graph.EdgeKey{}, ErrClosed
	}
	key, err := db.graph.AddEdge(&graph.Edge{
		From:     from,
		To:       to,
		Type:     edgeType,
		Strength: strength,
		Metadata: metadata,
	})
	if err != nil {
		return graph.EdgeKey{}, err
	}
	edge, _ := db.graph.GetEdge(key)
	db.bus.Emit(EventKnowledgeAfterConnect, edge)
	return key, nil
}

// Disconnect removes the edge with the given key.
func (db *DB) Disconnect(key graph.EdgeKey) bool {
	if !db.graph.DeleteEdge(key) {
		return false
	}
	db.bus.Emit(EventKnowledgeAfterDisconnect, key)
	return true
}

// FindPaths enumerates simple paths between two nodes (see
// graph.Store.FindPaths).
func (db *DB) FindPaths(src, dst graph.NodeID, maxDepth int) [][]graph.NodeID {
	return db.graph.FindPaths(src, dst, maxDepth)
}

// FindShortestPath returns one shortest path between two nodes.
func (db *DB) FindShortestPath(src, dst graph.NodeID) []graph.NodeID {
	return db.graph.FindShortestPath(src, dst)
}

// GetSubgraph returns the neighborhood of a node with full edge context.
func (db *DB) GetSubgraph(root graph.NodeID, depth int) []graph.SubgraphEntry {
	return db.graph.GetSubgraph(root, depth)
}

// DetectCommunities runs Louvain over the graph and emits onCluster.
func (db *DB) DetectCommunities(opts analysis.CommunityOptions) []analysis.KnowledgeCluster {
	if opts.MaxIterations == 0 && opts.RandomSeed == 0 {
		opts = analysis.DefaultCommunityOptions()
		if db.cfg.Analysis.CommunitySeed != 0 {
			opts.RandomSeed = db.cfg.Analysis.CommunitySeed
		}
		opts.Resolution = db.cfg.Analysis.CommunityResolution
		opts.MinCommunitySize = db.cfg.Analysis.MinCommunitySize
	}
	opts.Logger = db.log
	clusters := analysis.NewCommunityDetector(opts).DetectCommunities(db.graph)
	db.bus.Emit(EventKnowledgeOnCluster, clusters)
	return clusters
}

// ClusterBySimilarity groups nodes by content similarity and emits
// onCluster.
func (db *DB) ClusterBySimilarity(opts analysis.SimilarityOptions) []analysis.KnowledgeCluster {
	if opts.Threshold == 0 {
		opts.Threshold = db.cfg.Analysis.SimilarityThreshold
	}
	clusters := analysis.NewSimilarityClusterer(opts).Cluster(db.graph)
	db.bus.Emit(EventKnowledgeOnCluster, clusters)
	return clusters
}

// NodeMetrics computes per-node centrality measures.
func (db *DB) NodeMetrics() map[graph.NodeID]analysis.NodeMetrics {
	return analysis.NewCentralityEngine().NodeMetrics(db.graph)
}

// GraphMetrics computes graph-level measures.
func (db *DB) GraphMetrics() analysis.GraphMetrics {
	seed := db.cfg.Analysis.CommunitySeed
	if seed == 0 {
		seed = db.clock.Now().UnixNano()
	}
	return analysis.NewCentralityEngine().GraphLevelMetrics(db.graph, seed)
}

// MinePatterns runs the structural pattern miner.
func (db *DB) MinePatterns(opts analysis.StructuralOptions) []analysis.GraphPattern {
	if opts.Clock == nil {
		opts.Clock = db.clock
	}
	return analysis.NewStructuralPatternMiner(opts).Mine(db.graph)
}

// ---------------------------------------------------------------------------
// Experience
// ---------------------------------------------------------------------------

// StartPath begins tracking a traversal.
func (db *DB) StartPath(context string, initialNode graph.NodeID, metadata map[string]any) (string, error) {
	if db.closed {
		return "", ErrClosed
	}
	return db.tracker.StartPath(context, initialNode, metadata)
}

// AddPathNode appends a node to an active traversal.
func (db *DB) AddPathNode(pathID string, nodeID graph.NodeID, stepMeta map[string]any) error {
	return db.tracker.AddNode(pathID, nodeID, stepMeta)
}

// PausePath suspends a traversal's timing.
func (db *DB) PausePath(pathID string) error { return db.tracker.PausePath(pathID) }

// ResumePath resumes a paused traversal.
func (db *DB) ResumePath(pathID string) error { return db.tracker.ResumePath(pathID) }

// CancelPath discards a traversal without recording an experience.
func (db *DB) CancelPath(pathID string) bool { return db.tracker.CancelPath(pathID) }

// CompletePath finishes a traversal, records the experience, and runs the
// learning pipeline: pattern detection, pattern stats, and related-
// experience discovery.
func (db *DB) CompletePath(pathID string, outcome experience.Outcome, feedback string) (*experience.Experience, error) {
	exp, err := db.tracker.CompletePath(pathID, outcome, feedback)
	if err != nil {
		return nil, err
	}
	db.bus.Emit(EventExperienceAfterRecord, exp)

	db.bus.Emit(EventExperienceBeforeLearn, exp.ID)
	if pattern := db.detector.Observe(exp.Path, exp.Context); pattern != nil {
		exp.Patterns = append(exp.Patterns, pattern)
		db.detector.UpdateStats(pattern.ID, exp.TraversalTime, outcome == experience.OutcomeSuccess)
	}
	db.learning.RelatedExperiences(exp.ID)
	db.bus.Emit(EventExperienceOnLearn, exp.ID)
	return exp, nil
}

// CleanupInactivePaths auto-completes idle traversals as neutral.
func (db *DB) CleanupInactivePaths(maxAge time.Duration) []*experience.Experience {
	completed := db.tracker.CleanupInactivePaths(maxAge)
	for _, exp := range completed {
		db.bus.Emit(EventExperienceAfterRecord, exp)
	}
	return completed
}

// GetExperience returns a recorded experience by id.
func (db *DB) GetExperience(id string) (*experience.Experience, bool) {
	return db.experiences.Get(id)
}

// Experiences returns all recorded experiences in insertion order.
func (db *DB) Experiences() []*experience.Experience { return db.experiences.All() }

// Patterns returns the sequential patterns detected so far.
func (db *DB) Patterns() []*experience.Pattern { return db.detector.All() }

// Reinforce propagates reinforcement from a path to similar experiences
// and emits afterReinforce with the number updated.
func (db *DB) Reinforce(path []graph.NodeID, weight float64, context string) int {
	updated := db.learning.ReinforceSimilarExperiences(path, weight, context)
	db.bus.Emit(EventExperienceAfterReinforce, updated)
	return updated
}

// DecaySweep applies time decay to stored reinforcement.
func (db *DB) DecaySweep() int { return db.learning.ApplyReinforcementDecay() }

// ForgetSweep archives experiences whose reinforcement sits at the floor
// and whose age exceeds the configured archive threshold. Without an
// archive the sweep is a no-op. Returns the number archived.
func (db *DB) ForgetSweep() int {
	if db.arc == nil {
		return 0
	}
	after := time.Duration(db.cfg.Archive.ArchiveAfterDays) * 24 * time.Hour
	archived := 0
	for _, exp := range db.learning.ForgetCandidates(after) {
		if _, err := db.arc.Put(exp); err != nil {
			db.log.Warn("archive failed", zap.String("experience", exp.ID), zap.Error(err))
			continue
		}
		db.experiences.Remove(exp.ID)
		db.bus.Emit(EventExperienceAfterForget, exp.ID)
		archived++
	}
	return archived
}

// RestoreExperience moves an archived experience back into the live store.
func (db *DB) RestoreExperience(id string) (*experience.Experience, error) {
	if db.arc == nil {
		return nil, archive.ErrNotFound
	}
	exp, err := db.arc.Restore(id)
	if err != nil {
		return nil, err
	}
	db.experiences.Add(exp)
	return exp, nil
}

// SuggestNext ranks next-node candidates for the current node.
func (db *DB) SuggestNext(current graph.NodeID, context string, limit int) []experience.Suggestion {
	return db.suggester.SuggestNext(current, context, limit)
}

// SuggestForContext ranks nodes from experiences with overlapping context.
func (db *DB) SuggestForContext(context string, limit int) []experience.Suggestion {
	return db.suggester.SuggestForContext(context, limit)
}

// SuggestCompletion proposes continuations of a partial path.
func (db *DB) SuggestCompletion(partial []graph.NodeID, limit int) []experience.Suggestion {
	return db.suggester.SuggestCompletion(partial, limit)
}

// SuggestAlternatives proposes divergence points for a failed path.
func (db *DB) SuggestAlternatives(failed []graph.NodeID, limit int) []experience.Suggestion {
	return db.suggester.SuggestAlternatives(failed, limit)
}

// ---------------------------------------------------------------------------
// Persistence
// ---------------------------------------------------------------------------

// SaveSnapshot persists the graph to path (or the configured snapshot
// path), backing up any prior snapshot first. Returns the content digest.
func (db *DB) SaveSnapshot(ctx context.Context, path string) (string, error) {
	if db.closed {
		return "", ErrClosed
	}
	if strings.TrimSpace(path) == "" {
		path = db.cfg.Persistence.SnapshotPath
	}
	doc := snapshot.FromStore(db.graph, db.clock.Now())
	return db.persist.SaveWithBackup(ctx, doc, path)
}

// LoadSnapshot replaces the graph with the snapshot at path (or the
// configured path), recovering from the backup on corruption. The text
// index is rebuilt.
func (db *DB) LoadSnapshot(ctx context.Context, path string) error {
	if db.closed {
		return ErrClosed
	}
	if strings.TrimSpace(path) == "" {
		path = db.cfg.Persistence.SnapshotPath
	}
	doc, err := db.persist.LoadWithRecovery(ctx, path)
	if err != nil {
		return err
	}
	if err := doc.ApplyTo(db.graph); err != nil {
		return err
	}
	for _, node := range db.graph.AllNodes() {
		db.textIndex.AddNode(node)
	}
	return nil
}

// ListBackups enumerates snapshot backups, newest first.
func (db *DB) ListBackups(path string) ([]snapshot.BackupInfo, error) {
	if strings.TrimSpace(path) == "" {
		path = db.cfg.Persistence.SnapshotPath
	}
	return db.persist.ListBackups(path)
}

// CleanupBackups removes all but the configured number of newest backups.
func (db *DB) CleanupBackups(path string) (int, error) {
	if strings.TrimSpace(path) == "" {
		path = db.cfg.Persistence.SnapshotPath
	}
	return db.persist.CleanupOldBackups(path, db.cfg.Persistence.BackupsToKeep)
}

// Stats summarizes the store.
func (db *DB) Stats() graph.StoreStats { return db.graph.Stats() }
