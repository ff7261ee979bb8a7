package graph

import (
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/orneryd/muninn/pkg/ident"
)

// Options configures a Store.
type Options struct {
	// Clock supplies timestamps for Created/Modified bookkeeping.
	Clock ident.Clock
	// Logger receives structured debug output. Defaults to a no-op logger.
	Logger *zap.Logger
}

// DefaultOptions returns options on the wall clock with no logging.
func DefaultOptions() Options {
	return Options{Clock: ident.WallClock{}, Logger: zap.NewNop()}
}

// Store is the thread-safe in-memory graph store.
//
// It exclusively owns all nodes and edges. Adjacency indexes are maintained
// on every mutation, so neighbor queries cost O(degree) and edge lookups
// O(1). All read methods return deep copies.
//
// Performance characteristics:
//   - Node lookup by id: O(1)
//   - Edge lookup by (from, to, type): O(1)
//   - Incident edges: O(degree)
//   - Path enumeration: bounded DFS, O(paths * depth)
type Store struct {
	mu    sync.RWMutex
	clock ident.Clock
	log   *zap.Logger

	nodes map[NodeID]*Node
	edges map[EdgeKey]*Edge

	outgoing map[NodeID]map[EdgeKey]struct{}
	incoming map[NodeID]map[EdgeKey]struct{}

	// edgeSeq orders edges by insertion for deterministic traversal output.
	edgeSeq uint64
}

// NewStore creates an empty store.
func NewStore(opts Options) *Store {
	if opts.Clock == nil {
		opts.Clock = ident.WallClock{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Store{
		clock:    opts.Clock,
		log:      opts.Logger,
		nodes:    make(map[NodeID]*Node),
		edges:    make(map[EdgeKey]*Edge),
		outgoing: make(map[NodeID]map[EdgeKey]struct{}),
		incoming: make(map[NodeID]map[EdgeKey]struct{}),
	}
}

func blankID(id NodeID) bool {
	return strings.TrimSpace(string(id)) == ""
}

// AddNode inserts a node and returns its id.
//
// Write-path validation is strict: a blank id returns ErrInvalidID, an empty
// type or null content returns ErrInvalidData, a duplicate id returns
// ErrAlreadyExists. Created/Modified default to the store clock when unset.
func (s *Store) AddNode(node *Node) (NodeID, error) {
	if node == nil {
		return "", ErrInvalidData
	}
	if blankID(node.ID) {
		return "", ErrInvalidID
	}
	if strings.TrimSpace(node.Type) == "" {
		return "", ErrInvalidData
	}
	if node.Content.IsZero() {
		return "", ErrInvalidData
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.nodes[node.ID]; exists {
		return "", ErrAlreadyExists
	}

	stored := s.copyNode(node)
	now := s.clock.Now()
	if stored.Created.IsZero() {
		stored.Created = now
	}
	if stored.Modified.Before(stored.Created) {
		stored.Modified = stored.Created
	}
	s.nodes[stored.ID] = stored

	s.log.Debug("node added", zap.String("id", string(stored.ID)), zap.String("type", stored.Type))
	return stored.ID, nil
}

// GetNode returns a copy of the node, or nil and false when the id is blank
// or unknown. Read paths treat invalid ids as "not found".
//
// Reads bump the node's access counters.
func (s *Store) GetNode(id NodeID) (*Node, bool) {
	if blankID(id) {
		return nil, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	node, ok := s.nodes[id]
	if !ok {
		return nil, false
	}
	node.AccessCount++
	node.LastAccessed = s.clock.Now()
	return s.copyNode(node), true
}

// HasNode reports whether the node exists. Does not touch access counters,
// so validators (PathTracker) can probe freely.
func (s *Store) HasNode(id NodeID) bool {
	if blankID(id) {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.nodes[id]
	return ok
}

// UpdateNode merges patch into the node and bumps Modified. Returns false
// for a blank or unknown id. The id itself can never change.
func (s *Store) UpdateNode(id NodeID, patch NodePatch) bool {
	if blankID(id) {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	node, ok := s.nodes[id]
	if !ok {
		return false
	}

	if patch.Content != nil {
		node.Content = patch.Content.Clone()
	}
	if patch.Type != nil && strings.TrimSpace(*patch.Type) != "" {
		node.Type = *patch.Type
	}
	if patch.Source != nil {
		node.Source = *patch.Source
	}
	if patch.Metadata != nil {
		if node.Metadata == nil {
			node.Metadata = make(map[string]any, len(patch.Metadata))
		}
		for k, v := range patch.Metadata {
			node.Metadata[k] = v
		}
	}
	node.Modified = s.clock.Now()
	if node.Modified.Before(node.Created) {
		node.Modified = node.Created
	}
	return true
}

// DeleteNode removes the node and every incident edge. It returns the
// removed edges (for collaborators that need to react) and whether the node
// existed. Cascading to experiences and strategies is the facade's job; the
// store owns only graph state.
func (s *Store) DeleteNode(id NodeID) ([]*Edge, bool) {
	if blankID(id) {
		return nil, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.nodes[id]; !ok {
		return nil, false
	}

	removed := make([]*Edge, 0)

	if out := s.outgoing[id]; out != nil {
		for key := range out {
			if edge := s.edges[key]; edge != nil {
				removed = append(removed, s.copyEdge(edge))
				if in := s.incoming[edge.To]; in != nil {
					delete(in, key)
				}
				delete(s.edges, key)
			}
		}
		delete(s.outgoing, id)
	}

	if in := s.incoming[id]; in != nil {
		for key := range in {
			if edge := s.edges[key]; edge != nil {
				removed = append(removed, s.copyEdge(edge))
				if out := s.outgoing[edge.From]; out != nil {
					delete(out, key)
				}
				delete(s.edges, key)
			}
		}
		delete(s.incoming, id)
	}

	delete(s.nodes, id)
	sortEdges(removed)

	s.log.Debug("node deleted", zap.String("id", string(id)), zap.Int("edges_removed", len(removed)))
	return removed, true
}

// AddEdge inserts a directed typed edge and returns its key.
//
// Both endpoints must exist (ErrInvalidEdge otherwise); the type must be
// non-empty and the strength within [0, 1]. A strength of exactly 0 on a
// fresh edge means "unset" and defaults to 1.0. Inserting over an existing
// key replaces that edge in place.
func (s *Store) AddEdge(edge *Edge) (EdgeKey, error) {
	if edge == nil {
		return EdgeKey{}, ErrInvalidData
	}
	if blankID(edge.From) || blankID(edge.To) {
		return EdgeKey{}, ErrInvalidID
	}
	if strings.TrimSpace(edge.Type) == "" {
		return EdgeKey{}, ErrInvalidData
	}
	if edge.Strength < 0 || edge.Strength > 1 {
		return EdgeKey{}, ErrInvalidData
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.nodes[edge.From]; !ok {
		return EdgeKey{}, ErrInvalidEdge
	}
	if _, ok := s.nodes[edge.To]; !ok {
		return EdgeKey{}, ErrInvalidEdge
	}

	key := edge.Key()
	stored := s.copyEdge(edge)
	if stored.Strength == 0 {
		stored.Strength = 1.0
	}
	if stored.Created.IsZero() {
		stored.Created = s.clock.Now()
	}

	if prior, ok := s.edges[key]; ok {
		// Identical key replaces the prior edge; keep its insertion order
		// so traversal output stays stable.
		stored.seq = prior.seq
		s.edges[key] = stored
		return key, nil
	}

	s.edgeSeq++
	stored.seq = s.edgeSeq
	s.edges[key] = stored

	if s.outgoing[key.From] == nil {
		s.outgoing[key.From] = make(map[EdgeKey]struct{})
	}
	s.outgoing[key.From][key] = struct{}{}

	if s.incoming[key.To] == nil {
		s.incoming[key.To] = make(map[EdgeKey]struct{})
	}
	s.incoming[key.To][key] = struct{}{}

	return key, nil
}

// GetEdge returns a copy of the edge for the key, or nil and false.
func (s *Store) GetEdge(key EdgeKey) (*Edge, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	edge, ok := s.edges[key]
	if !ok {
		return nil, false
	}
	return s.copyEdge(edge), true
}

// HasEdge reports whether an edge with the key exists.
func (s *Store) HasEdge(key EdgeKey) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.edges[key]
	return ok
}

// DeleteEdge removes the edge for the key, reporting whether it existed.
func (s *Store) DeleteEdge(key EdgeKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.edges[key]; !ok {
		return false
	}

	if out := s.outgoing[key.From]; out != nil {
		delete(out, key)
	}
	if in := s.incoming[key.To]; in != nil {
		delete(in, key)
	}
	delete(s.edges, key)
	return true
}

// GetNodeEdges returns the node's incident edges in the given direction,
// ordered by insertion. DirectionBoth unions in and out; a self-loop appears
// once.
func (s *Store) GetNodeEdges(id NodeID, dir Direction) []*Edge {
	if blankID(id) {
		return []*Edge{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nodeEdgesLocked(id, dir)
}

func (s *Store) nodeEdgesLocked(id NodeID, dir Direction) []*Edge {
	seen := make(map[EdgeKey]struct{})
	edges := make([]*Edge, 0)

	collect := func(keys map[EdgeKey]struct{}) {
		for key := range keys {
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			if edge := s.edges[key]; edge != nil {
				edges = append(edges, s.copyEdge(edge))
			}
		}
	}

	switch dir {
	case DirectionOut:
		collect(s.outgoing[id])
	case DirectionIn:
		collect(s.incoming[id])
	default:
		collect(s.outgoing[id])
		collect(s.incoming[id])
	}

	sortEdges(edges)
	return edges
}

// GetNeighbors returns the ids of all nodes adjacent to id in either
// direction, deduplicated and sorted. A self-loop contributes the node
// itself.
func (s *Store) GetNeighbors(id NodeID) []NodeID {
	if blankID(id) {
		return []NodeID{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	set := make(map[NodeID]struct{})
	for key := range s.outgoing[id] {
		set[key.To] = struct{}{}
	}
	for key := range s.incoming[id] {
		set[key.From] = struct{}{}
	}

	out := make([]NodeID, 0, len(set))
	for n := range set {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// AllNodes returns copies of every node, sorted by id.
func (s *Store) AllNodes() []*Node {
	s.mu.RLock()
	defer s.mu.RUnlock()

	nodes := make([]*Node, 0, len(s.nodes))
	for _, node := range s.nodes {
		nodes = append(nodes, s.copyNode(node))
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	return nodes
}

// AllEdges returns copies of every edge, ordered by insertion.
func (s *Store) AllEdges() []*Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()

	edges := make([]*Edge, 0, len(s.edges))
	for _, edge := range s.edges {
		edges = append(edges, s.copyEdge(edge))
	}
	sortEdges(edges)
	return edges
}

// NodeCount returns the number of nodes.
func (s *Store) NodeCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}

// EdgeCount returns the number of edges.
func (s *Store) EdgeCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.edges)
}

// Stats summarizes the store's contents by type.
func (s *Store) Stats() StoreStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := StoreStats{
		NodeCount:   len(s.nodes),
		EdgeCount:   len(s.edges),
		NodesByType: make(map[string]int),
		EdgesByType: make(map[string]int),
	}
	for id, node := range s.nodes {
		stats.NodesByType[node.Type]++
		if len(s.outgoing[id]) == 0 && len(s.incoming[id]) == 0 {
			stats.IsolatedNodes++
		}
	}
	for _, edge := range s.edges {
		stats.EdgesByType[edge.Type]++
	}
	return stats
}

// Clear drops all nodes and edges. Used by snapshot import.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nodes = make(map[NodeID]*Node)
	s.edges = make(map[EdgeKey]*Edge)
	s.outgoing = make(map[NodeID]map[EdgeKey]struct{})
	s.incoming = make(map[NodeID]map[EdgeKey]struct{})
	s.edgeSeq = 0
}

func (s *Store) copyNode(n *Node) *Node {
	if n == nil {
		return nil
	}
	return &Node{
		ID:           n.ID,
		Content:      n.Content.Clone(),
		Type:         n.Type,
		Source:       n.Source,
		Created:      n.Created,
		Modified:     n.Modified,
		Metadata:     copyMetadata(n.Metadata),
		LastAccessed: n.LastAccessed,
		AccessCount:  n.AccessCount,
	}
}

func (s *Store) copyEdge(e *Edge) *Edge {
	if e == nil {
		return nil
	}
	return &Edge{
		From:     e.From,
		To:       e.To,
		Type:     e.Type,
		Strength: e.Strength,
		Created:  e.Created,
		Metadata: copyMetadata(e.Metadata),
		seq:      e.seq,
	}
}

func sortEdges(edges []*Edge) {
	sort.Slice(edges, func(i, j int) bool { return edges[i].seq < edges[j].seq })
}
