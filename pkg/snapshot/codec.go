// Package snapshot implements the validated JSON snapshot format and the
// persistence controller for Muninn graphs.
//
// A snapshot is a single self-contained JSON document:
//
//	{
//	  "nodes": [...],
//	  "edges": [...],
//	  "metadata": {"version": "1.0", "created": "...", "nodeCount": 2, "edgeCount": 1}
//	}
//
// Timestamps are ISO-8601 strings in UTC. Content blobs round-trip without
// loss. Unknown fields at node, edge, and metadata level are preserved
// silently so that newer writers stay readable by older readers.
//
// Persistence is crash-safe: saves serialize to a temporary sibling file and
// rename over the destination, so a partially-written snapshot is never
// observable. Backups live beside the snapshot, and recovery falls back to
// the plain <path>.backup copy when the snapshot fails to load.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/orneryd/muninn/pkg/graph"
)

// FormatVersion is the snapshot schema version written by this codec.
const FormatVersion = "1.0"

// Errors surfaced by the codec and controller.
var (
	ErrFileNotFound     = errors.New("snapshot file not found")
	ErrInvalidJSON      = errors.New("invalid json")
	ErrInvalidGraphData = errors.New("invalid graph data")
	ErrNoBackup         = errors.New("no snapshot and no backup")
	ErrIO               = errors.New("io error")
)

// ValidationError reports the first schema violation found in a document.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid graph data: %s: %s", e.Field, e.Reason)
}

// Unwrap lets errors.Is(err, ErrInvalidGraphData) match.
func (e *ValidationError) Unwrap() error { return ErrInvalidGraphData }

// NodeRecord is a node in snapshot form. Unknown JSON fields survive in
// extra and are written back verbatim.
type NodeRecord struct {
	ID       string         `json:"id"`
	Content  graph.Content  `json:"content"`
	Type     string         `json:"type"`
	Source   string         `json:"source,omitempty"`
	Created  time.Time      `json:"created"`
	Modified time.Time      `json:"modified"`
	Metadata map[string]any `json:"metadata,omitempty"`

	extra      map[string]json.RawMessage
	hasContent bool
}

// EdgeRecord is an edge in snapshot form, with unknown fields preserved.
type EdgeRecord struct {
	From     string         `json:"from"`
	To       string         `json:"to"`
	Type     string         `json:"type"`
	Strength float64        `json:"strength"`
	Created  time.Time      `json:"created"`
	Metadata map[string]any `json:"metadata,omitempty"`

	extra       map[string]json.RawMessage
	hasStrength bool
}

// Metadata describes the document itself.
type Metadata struct {
	Version   string    `json:"version"`
	Created   time.Time `json:"created"`
	NodeCount int       `json:"nodeCount"`
	EdgeCount int       `json:"edgeCount"`

	extra map[string]json.RawMessage
}

// Document is a complete snapshot.
type Document struct {
	Nodes    []NodeRecord `json:"nodes"`
	Edges    []EdgeRecord `json:"edges"`
	Metadata Metadata     `json:"metadata"`
}

// FromStore captures the store's current contents as a document.
func FromStore(store *graph.Store, created time.Time) *Document {
	nodes := store.AllNodes()
	edges := store.AllEdges()

	doc := &Document{
		Nodes: make([]NodeRecord, len(nodes)),
		Edges: make([]EdgeRecord, len(edges)),
		Metadata: Metadata{
			Version:   FormatVersion,
			Created:   created.UTC(),
			NodeCount: len(nodes),
			EdgeCount: len(edges),
		},
	}
	for i, n := range nodes {
		doc.Nodes[i] = NodeRecord{
			ID:         string(n.ID),
			Content:    n.Content,
			Type:       n.Type,
			Source:     n.Source,
			Created:    n.Created.UTC(),
			Modified:   n.Modified.UTC(),
			Metadata:   n.Metadata,
			hasContent: true,
		}
	}
	for i, e := range edges {
		doc.Edges[i] = EdgeRecord{
			From:        string(e.From),
			To:          string(e.To),
			Type:        e.Type,
			Strength:    e.Strength,
			Created:     e.Created.UTC(),
			Metadata:    e.Metadata,
			hasStrength: true,
		}
	}
	return doc
}

// ApplyTo replaces the store's contents with the document's. The document
// must already be validated; edge insertion still re-checks endpoints.
func (d *Document) ApplyTo(store *graph.Store) error {
	store.Clear()
	for i := range d.Nodes {
		rec := &d.Nodes[i]
		node := &graph.Node{
			ID:       graph.NodeID(rec.ID),
			Content:  rec.Content,
			Type:     rec.Type,
			Source:   rec.Source,
			Created:  rec.Created,
			Modified: rec.Modified,
			Metadata: rec.Metadata,
		}
		if _, err := store.AddNode(node); err != nil {
			return fmt.Errorf("%w: node %s: %v", ErrInvalidGraphData, rec.ID, err)
		}
	}
	for i := range d.Edges {
		rec := &d.Edges[i]
		edge := &graph.Edge{
			From:     graph.NodeID(rec.From),
			To:       graph.NodeID(rec.To),
			Type:     rec.Type,
			Strength: rec.Strength,
			Created:  rec.Created,
			Metadata: rec.Metadata,
		}
		if _, err := store.AddEdge(edge); err != nil {
			return fmt.Errorf("%w: edge %s->%s: %v", ErrInvalidGraphData, rec.From, rec.To, err)
		}
	}
	return nil
}

// Encode serializes the document to indented JSON.
func Encode(doc *Document) ([]byte, error) {
	return json.MarshalIndent(doc, "", "  ")
}

// Decode parses and fully validates a snapshot document.
//
// Parse failures return ErrInvalidJSON; schema violations return a
// *ValidationError wrapping ErrInvalidGraphData.
func Decode(data []byte) (*Document, error) {
	var probe any
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	if _, ok := probe.(map[string]any); !ok {
		return nil, &ValidationError{Field: "document", Reason: "not a JSON object"}
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		// The shape probe passed, so a failure here is a schema problem
		// (e.g. nodes is not an array), not a parse problem.
		return nil, &ValidationError{Field: "document", Reason: err.Error()}
	}
	if err := Validate(&doc, data); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Validate checks the document against the snapshot schema. raw is the
// original JSON when available, used to distinguish absent sections from
// empty ones; pass nil to validate an in-memory document.
func Validate(doc *Document, raw []byte) error {
	if doc == nil {
		return &ValidationError{Field: "document", Reason: "missing"}
	}

	if raw != nil {
		var top map[string]json.RawMessage
		if err := json.Unmarshal(raw, &top); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidJSON, err)
		}
		for _, section := range []string{"nodes", "edges", "metadata"} {
			if _, ok := top[section]; !ok {
				return &ValidationError{Field: section, Reason: "missing"}
			}
		}
		for _, section := range []string{"nodes", "edges"} {
			trimmed := strings.TrimSpace(string(top[section]))
			if !strings.HasPrefix(trimmed, "[") {
				return &ValidationError{Field: section, Reason: "not an array"}
			}
		}
		trimmed := strings.TrimSpace(string(top["metadata"]))
		if !strings.HasPrefix(trimmed, "{") {
			return &ValidationError{Field: "metadata", Reason: "not an object"}
		}
	}

	for i := range doc.Nodes {
		rec := &doc.Nodes[i]
		field := fmt.Sprintf("nodes[%d]", i)
		if strings.TrimSpace(rec.ID) == "" {
			return &ValidationError{Field: field + ".id", Reason: "missing"}
		}
		if strings.TrimSpace(rec.Type) == "" {
			return &ValidationError{Field: field + ".type", Reason: "missing"}
		}
		if !rec.hasContent {
			return &ValidationError{Field: field + ".content", Reason: "missing"}
		}
		if rec.Created.IsZero() {
			return &ValidationError{Field: field + ".created", Reason: "missing or unparseable"}
		}
		if rec.Modified.IsZero() {
			return &ValidationError{Field: field + ".modified", Reason: "missing or unparseable"}
		}
	}

	for i := range doc.Edges {
		rec := &doc.Edges[i]
		field := fmt.Sprintf("edges[%d]", i)
		if strings.TrimSpace(rec.From) == "" {
			return &ValidationError{Field: field + ".from", Reason: "missing"}
		}
		if strings.TrimSpace(rec.To) == "" {
			return &ValidationError{Field: field + ".to", Reason: "missing"}
		}
		if strings.TrimSpace(rec.Type) == "" {
			return &ValidationError{Field: field + ".type", Reason: "missing"}
		}
		if !rec.hasStrength {
			return &ValidationError{Field: field + ".strength", Reason: "missing"}
		}
		if rec.Strength < 0 || rec.Strength > 1 {
			return &ValidationError{Field: field + ".strength", Reason: "out of range"}
		}
		if rec.Created.IsZero() {
			return &ValidationError{Field: field + ".created", Reason: "missing or unparseable"}
		}
	}

	return nil
}
