package snapshot

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/muninn/pkg/graph"
	"github.com/orneryd/muninn/pkg/ident"
)

func buildStore(t *testing.T) *graph.Store {
	t.Helper()
	store := graph.NewStore(graph.Options{Clock: ident.NewManualClock(time.UnixMilli(1_700_000_000_000).UTC())})

	content := graph.MapContent(map[string]graph.Content{
		"nested": graph.MapContent(map[string]graph.Content{
			"data":    graph.StringContent("t"),
			"numbers": graph.ListContent(graph.NumberContent(1), graph.NumberContent(2), graph.NumberContent(3)),
		}),
	})
	_, err := store.AddNode(&graph.Node{ID: "n1", Content: content, Type: "заметка"})
	require.NoError(t, err)
	_, err = store.AddNode(&graph.Node{ID: "n2", Content: graph.StringContent("plain"), Type: "note", Source: "import"})
	require.NoError(t, err)
	_, err = store.AddEdge(&graph.Edge{From: "n1", To: "n2", Type: "relates_to", Strength: 0.75})
	require.NoError(t, err)
	return store
}

func TestSnapshotRoundTrip(t *testing.T) {
	store := buildStore(t)
	doc := FromStore(store, time.UnixMilli(1_700_000_100_000).UTC())

	data, err := Encode(doc)
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)

	require.Len(t, decoded.Nodes, 2)
	require.Len(t, decoded.Edges, 1)
	assert.Equal(t, FormatVersion, decoded.Metadata.Version)
	assert.Equal(t, 2, decoded.Metadata.NodeCount)

	restored := graph.NewStore(graph.DefaultOptions())
	require.NoError(t, decoded.ApplyTo(restored))

	// Structural equality, including nested content and non-ASCII type.
	original, _ := store.GetNode("n1")
	loaded, ok := restored.GetNode("n1")
	require.True(t, ok)
	assert.True(t, original.Content.Equal(loaded.Content), "content lost in round trip")
	assert.Equal(t, "заметка", loaded.Type)
	assert.True(t, original.Created.Equal(loaded.Created), "created timestamp drifted: %v vs %v", original.Created, loaded.Created)
	assert.True(t, original.Modified.Equal(loaded.Modified), "modified timestamp drifted: %v vs %v", original.Modified, loaded.Modified)

	edge, ok := restored.GetEdge(graph.EdgeKey{From: "n1", To: "n2", Type: "relates_to"})
	require.True(t, ok)
	assert.Equal(t, 0.75, edge.Strength)
}

func TestSnapshotTimestampsISO8601(t *testing.T) {
	store := buildStore(t)
	doc := FromStore(store, time.UnixMilli(1_700_000_100_000).UTC())
	data, err := Encode(doc)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	meta := raw["metadata"].(map[string]any)
	created, ok := meta["created"].(string)
	require.True(t, ok, "metadata.created must be a string")
	_, err = time.Parse(time.RFC3339Nano, created)
	assert.NoError(t, err, "metadata.created must parse as ISO-8601")
}

func TestUnknownFieldsPreserved(t *testing.T) {
	input := `{
		"nodes": [{
			"id": "n1", "content": "x", "type": "note",
			"created": "2024-01-01T00:00:00Z", "modified": "2024-01-01T00:00:00Z",
			"futureField": {"a": [1, 2]}
		}],
		"edges": [],
		"metadata": {"version": "9.9", "created": "2024-01-01T00:00:00Z",
			"nodeCount": 1, "edgeCount": 0, "generator": "vNext"}
	}`

	doc, err := Decode([]byte(input))
	require.NoError(t, err)

	out, err := Encode(doc)
	require.NoError(t, err)

	var reread map[string]any
	require.NoError(t, json.Unmarshal(out, &reread))
	node := reread["nodes"].([]any)[0].(map[string]any)
	assert.Contains(t, node, "futureField", "unknown node field dropped")
	meta := reread["metadata"].(map[string]any)
	assert.Equal(t, "vNext", meta["generator"], "unknown metadata field dropped")
}

func TestDecodeRejections(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  error
	}{
		{"not json", `{nope`, ErrInvalidJSON},
		{"not an object", `[1,2,3]`, ErrInvalidGraphData},
		{"nodes not array", `{"nodes": {}, "edges": [], "metadata": {"version":"1","created":"2024-01-01T00:00:00Z","nodeCount":0,"edgeCount":0}}`, ErrInvalidGraphData},
		{"missing metadata", `{"nodes": [], "edges": []}`, ErrInvalidGraphData},
		{
			"node missing type",
			`{"nodes": [{"id":"a","content":"x","created":"2024-01-01T00:00:00Z","modified":"2024-01-01T00:00:00Z"}], "edges": [], "metadata": {"version":"1","created":"2024-01-01T00:00:00Z","nodeCount":1,"edgeCount":0}}`,
			ErrInvalidGraphData,
		},
		{
			"node missing content",
			`{"nodes": [{"id":"a","type":"note","created":"2024-01-01T00:00:00Z","modified":"2024-01-01T00:00:00Z"}], "edges": [], "metadata": {"version":"1","created":"2024-01-01T00:00:00Z","nodeCount":1,"edgeCount":0}}`,
			ErrInvalidGraphData,
		},
		{
			"edge missing strength",
			`{"nodes": [], "edges": [{"from":"a","to":"b","type":"rel","created":"2024-01-01T00:00:00Z"}], "metadata": {"version":"1","created":"2024-01-01T00:00:00Z","nodeCount":0,"edgeCount":1}}`,
			ErrInvalidGraphData,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode([]byte(tc.input))
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.want), "got %v, want %v", err, tc.want)
		})
	}
}

func TestValidationErrorDetail(t *testing.T) {
	input := `{"nodes": [{"content":"x","type":"note","created":"2024-01-01T00:00:00Z","modified":"2024-01-01T00:00:00Z"}], "edges": [], "metadata": {"version":"1","created":"2024-01-01T00:00:00Z","nodeCount":1,"edgeCount":0}}`
	_, err := Decode([]byte(input))
	require.Error(t, err)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "nodes[0].id", verr.Field)
}

func TestNullContentSurvives(t *testing.T) {
	input := `{
		"nodes": [{"id":"n1","content":null,"type":"note","created":"2024-01-01T00:00:00Z","modified":"2024-01-01T00:00:00Z"}],
		"edges": [],
		"metadata": {"version":"1","created":"2024-01-01T00:00:00Z","nodeCount":1,"edgeCount":0}
	}`
	doc, err := Decode([]byte(input))
	require.NoError(t, err)
	assert.Equal(t, graph.KindNull, doc.Nodes[0].Content.Kind())

	out, err := Encode(doc)
	require.NoError(t, err)
	var reread map[string]any
	require.NoError(t, json.Unmarshal(out, &reread))
	node := reread["nodes"].([]any)[0].(map[string]any)
	val, present := node["content"]
	assert.True(t, present, "null content field must be written")
	assert.Nil(t, val)
}
