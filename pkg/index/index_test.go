package index

import (
	"testing"

	"github.com/orneryd/muninn/pkg/graph"
)

func note(id graph.NodeID, text string) *graph.Node {
	return &graph.Node{ID: id, Content: graph.StringContent(text), Type: "note"}
}

func TestSearchRanksByTokenMatches(t *testing.T) {
	idx := NewMemoryIndex()
	idx.AddNode(note("n1", "raft consensus protocol details"))
	idx.AddNode(note("n2", "raft leader election"))
	idx.AddNode(note("n3", "cooking recipes"))

	results := idx.Search("raft consensus", SearchOptions{})
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].ID != "n1" {
		t.Errorf("top result = %s, want n1 (two token matches)", results[0].ID)
	}
}

func TestSearchTypeFilterAndLimit(t *testing.T) {
	idx := NewMemoryIndex()
	idx.AddNode(note("n1", "graph theory"))
	idx.AddNode(&graph.Node{ID: "n2", Content: graph.StringContent("graph theory"), Type: "paper"})

	results := idx.Search("graph", SearchOptions{Type: "paper"})
	if len(results) != 1 || results[0].ID != "n2" {
		t.Errorf("type filter failed: %v", results)
	}

	results = idx.Search("graph", SearchOptions{Limit: 1})
	if len(results) != 1 {
		t.Errorf("limit ignored: got %d", len(results))
	}
}

func TestUpdateReindexes(t *testing.T) {
	idx := NewMemoryIndex()
	idx.AddNode(note("n1", "original topic"))
	idx.UpdateNode(note("n1", "replacement subject"))

	if len(idx.Search("original", SearchOptions{})) != 0 {
		t.Error("stale tokens survived update")
	}
	if len(idx.Search("replacement", SearchOptions{})) != 1 {
		t.Error("new tokens not indexed")
	}
}

func TestRemoveNode(t *testing.T) {
	idx := NewMemoryIndex()
	idx.AddNode(note("n1", "ephemeral entry"))
	idx.RemoveNode("n1")

	if idx.Count() != 0 {
		t.Errorf("Count = %d after remove", idx.Count())
	}
	if len(idx.Search("ephemeral", SearchOptions{})) != 0 {
		t.Error("removed node still searchable")
	}
}
