// Package graph provides the in-memory graph store at the heart of Muninn.
//
// The store owns every node (a unit of Information) and every directed typed
// edge (a unit of Knowledge) in the engine. All other components reference
// graph entities by id only; there are no owning back-pointers, so cyclic
// graphs never produce cyclic ownership.
//
// Design principles:
//   - Adjacency indexes maintained on every mutation for O(degree) queries
//   - Deep copies on read to prevent external mutation
//   - No dangling edges: endpoints are validated on insert, cascades on delete
//   - Thread-safe via RWMutex, though the engine targets single-writer use
//
// Example Usage:
//
//	store := graph.NewStore(graph.DefaultOptions())
//
//	_, err := store.AddNode(&graph.Node{
//		ID:      "info_001",
//		Content: graph.StringContent("TCP handshake overview"),
//		Type:    "note",
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	_, err = store.AddEdge(&graph.Edge{
//		From: "info_001", To: "info_002", Type: "relates_to", Strength: 0.8,
//	})
//
//	paths := store.FindPaths("info_001", "info_002", 5)
//	fmt.Printf("%d paths\n", len(paths))
package graph

import (
	"errors"
	"time"
)

// Common errors.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalidID     = errors.New("invalid id")
	ErrInvalidData   = errors.New("invalid data")
	ErrInvalidEdge   = errors.New("invalid edge: endpoint not found")
)

// NodeID is a strongly-typed unique identifier for graph nodes.
//
// Ids are opaque to the store. The facade mints them as
// <prefix>_<unixMillis>_<rand>, but any non-blank string is accepted.
type NodeID string

// Direction selects which incident edges a query returns.
type Direction string

const (
	// DirectionOut selects edges leaving the node.
	DirectionOut Direction = "out"
	// DirectionIn selects edges arriving at the node.
	DirectionIn Direction = "in"
	// DirectionBoth unions incoming and outgoing edges.
	DirectionBoth Direction = "both"
)

// EdgeKey uniquely identifies an edge by the (from, to, type) triple.
//
// Inserting a second edge with an identical key replaces the first; the
// store never holds two edges with the same key.
type EdgeKey struct {
	From NodeID `json:"from"`
	To   NodeID `json:"to"`
	Type string `json:"type"`
}

// String renders the key as "from->to:type" for logs and error messages.
func (k EdgeKey) String() string {
	return string(k.From) + "->" + string(k.To) + ":" + k.Type
}

// Node is a unit of Information stored as a graph vertex.
//
// Content is opaque: the store neither inspects nor requires a fixed schema,
// and the original form survives snapshot round-trips (see Content).
//
// Invariants:
//   - ID is immutable once assigned
//   - Type is non-empty
//   - Modified >= Created
type Node struct {
	ID       NodeID         `json:"id"`
	Content  Content        `json:"content"`
	Type     string         `json:"type"`
	Source   string         `json:"source,omitempty"`
	Created  time.Time      `json:"created"`
	Modified time.Time      `json:"modified"`
	Metadata map[string]any `json:"metadata,omitempty"`

	// Access tracking, maintained by the store on reads.
	LastAccessed time.Time `json:"-"`
	AccessCount  int64     `json:"-"`
}

// Edge is a unit of Knowledge: a directed typed relationship between two
// nodes with a strength in [0, 1]. Self-loops are permitted.
type Edge struct {
	From     NodeID         `json:"from"`
	To       NodeID         `json:"to"`
	Type     string         `json:"type"`
	Strength float64        `json:"strength"`
	Created  time.Time      `json:"created"`
	Metadata map[string]any `json:"metadata,omitempty"`

	// seq is the edge's insertion sequence number, used for deterministic
	// neighbor ordering in traversals. Replacing an edge keeps its seq.
	seq uint64
}

// Key returns the edge's uniqueness key.
func (e *Edge) Key() EdgeKey {
	return EdgeKey{From: e.From, To: e.To, Type: e.Type}
}

// NodePatch describes a partial node update. Nil fields are left untouched;
// the id can never be patched. Metadata merges key-by-key.
type NodePatch struct {
	Content  *Content
	Type     *string
	Source   *string
	Metadata map[string]any
}

// SubgraphEntry pairs a node with every edge incident to it (in and out) at
// the time of the subgraph query.
type SubgraphEntry struct {
	Node  *Node
	Edges []*Edge
}

// StoreStats summarizes the store's contents.
type StoreStats struct {
	NodeCount     int
	EdgeCount     int
	NodesByType   map[string]int
	EdgesByType   map[string]int
	IsolatedNodes int
}

func copyMetadata(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
