// Package index defines the text-index collaborator contract the engine
// notifies on every node mutation, plus an in-memory adapter.
//
// Full text search is intentionally outside the engine core; the adapter
// here exists so embedded deployments work out of the box and so the
// contract has a reference implementation. Heavier backends implement the
// same TextIndex interface.
package index

import (
	"sort"
	"sync"

	"github.com/orneryd/muninn/pkg/analysis"
	"github.com/orneryd/muninn/pkg/graph"
)

// SearchOptions narrows a search.
type SearchOptions struct {
	// Limit caps results; <= 0 means no cap.
	Limit int
	// Type restricts matches to nodes of one type.
	Type string
}

// TextIndex is the collaborator contract. The engine calls AddNode,
// UpdateNode, and RemoveNode on every CRUD event; Search is for callers.
type TextIndex interface {
	AddNode(node *graph.Node)
	UpdateNode(node *graph.Node)
	RemoveNode(id graph.NodeID)
	Search(query string, opts SearchOptions) []*graph.Node
}

// MemoryIndex is a token inverted index over node content. Thread-safe.
type MemoryIndex struct {
	mu     sync.RWMutex
	nodes  map[graph.NodeID]*graph.Node
	tokens map[string]map[graph.NodeID]struct{}
}

// NewMemoryIndex creates an empty index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		nodes:  make(map[graph.NodeID]*graph.Node),
		tokens: make(map[string]map[graph.NodeID]struct{}),
	}
}

// AddNode indexes a node's content tokens.
func (m *MemoryIndex) AddNode(node *graph.Node) {
	if node == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(node.ID)
	m.nodes[node.ID] = node
	for _, tok := range analysis.Tokenize(node.Content.Text()) {
		if m.tokens[tok] == nil {
			m.tokens[tok] = make(map[graph.NodeID]struct{})
		}
		m.tokens[tok][node.ID] = struct{}{}
	}
}

// UpdateNode reindexes a node.
func (m *MemoryIndex) UpdateNode(node *graph.Node) { m.AddNode(node) }

// RemoveNode drops a node from the index.
func (m *MemoryIndex) RemoveNode(id graph.NodeID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(id)
}

func (m *MemoryIndex) removeLocked(id graph.NodeID) {
	if _, ok := m.nodes[id]; !ok {
		return
	}
	delete(m.nodes, id)
	for tok, ids := range m.tokens {
		delete(ids, id)
		if len(ids) == 0 {
			delete(m.tokens, tok)
		}
	}
}

// Search returns nodes matching any query token, ranked by the number of
// matching tokens (ties by id).
func (m *MemoryIndex) Search(query string, opts SearchOptions) []*graph.Node {
	m.mu.RLock()
	defer m.mu.RUnlock()

	hits := make(map[graph.NodeID]int)
	for _, tok := range analysis.Tokenize(query) {
		for id := range m.tokens[tok] {
			hits[id]++
		}
	}

	type ranked struct {
		node  *graph.Node
		score int
	}
	out := make([]ranked, 0, len(hits))
	for id, score := range hits {
		node := m.nodes[id]
		if node == nil {
			continue
		}
		if opts.Type != "" && node.Type != opts.Type {
			continue
		}
		out = append(out, ranked{node: node, score: score})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		return out[i].node.ID < out[j].node.ID
	})

	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	nodes := make([]*graph.Node, len(out))
	for i, r := range out {
		nodes[i] = r.node
	}
	return nodes
}

// Count returns the number of indexed nodes.
func (m *MemoryIndex) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.nodes)
}

var _ TextIndex = (*MemoryIndex)(nil)
