package experience

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/muninn/pkg/graph"
	"github.com/orneryd/muninn/pkg/ident"
)

func newTestDetector(clock *ident.ManualClock) *PatternDetector {
	cfg := DefaultDetectorConfig()
	cfg.Clock = clock
	cfg.IDs = ident.NewGenerator(clock, 1)
	return NewPatternDetector(cfg)
}

func nodePath(ids ...string) []graph.NodeID {
	out := make([]graph.NodeID, len(ids))
	for i, id := range ids {
		out[i] = graph.NodeID(id)
	}
	return out
}

func TestObserveCreatesPattern(t *testing.T) {
	clock := ident.NewManualClock(time.UnixMilli(1000).UTC())
	d := newTestDetector(clock)

	p := d.Observe(nodePath("a", "b", "c"), "debugging")
	require.NotNil(t, p)
	assert.Equal(t, 1, p.Frequency)
	assert.Equal(t, 0.6, p.Confidence)
	assert.Equal(t, 1.0, p.SuccessRate)
	assert.Equal(t, []string{"debugging"}, p.Contexts)
	assert.Equal(t, nodePath("a", "b", "c"), p.Nodes)
}

func TestObserveShortPathIgnored(t *testing.T) {
	clock := ident.NewManualClock(time.UnixMilli(1000).UTC())
	d := newTestDetector(clock)

	assert.Nil(t, d.Observe(nodePath("a", "b"), "ctx"), "2-node path below MinPathLength must not seed")
	assert.Empty(t, d.All())
}

func TestObserveUpdatesSimilarPattern(t *testing.T) {
	clock := ident.NewManualClock(time.UnixMilli(1000).UTC())
	d := newTestDetector(clock)

	first := d.Observe(nodePath("a", "b", "c", "d"), "ctx one")
	require.NotNil(t, first)

	clock.Advance(time.Hour)
	second := d.Observe(nodePath("a", "b", "c", "d"), "ctx two")
	require.NotNil(t, second)

	assert.Equal(t, first.ID, second.ID, "identical path must update, not create")
	assert.Equal(t, 2, second.Frequency)
	assert.Equal(t, []string{"ctx one", "ctx two"}, second.Contexts)
	assert.Equal(t, clock.Now(), second.LastSeen)
	assert.Len(t, d.All(), 1)
}

func TestObserveDissimilarCreatesNew(t *testing.T) {
	clock := ident.NewManualClock(time.UnixMilli(1000).UTC())
	d := newTestDetector(clock)

	d.Observe(nodePath("a", "b", "c"), "ctx")
	d.Observe(nodePath("x", "y", "z"), "ctx")
	assert.Len(t, d.All(), 2, "disjoint paths must form separate patterns")
}

func TestUpdateStatsRunningAverages(t *testing.T) {
	clock := ident.NewManualClock(time.UnixMilli(1000).UTC())
	d := newTestDetector(clock)

	p := d.Observe(nodePath("a", "b", "c"), "ctx")
	require.True(t, d.UpdateStats(p.ID, 1000, true))
	require.True(t, d.UpdateStats(p.ID, 3000, false))

	assert.InDelta(t, 2000, p.AvgTraversalTime, 1e-9)
	assert.InDelta(t, 0.5, p.SuccessRate, 1e-9)

	assert.False(t, d.UpdateStats("missing", 1, true))
}

func TestRegisterDuplicate(t *testing.T) {
	clock := ident.NewManualClock(time.UnixMilli(1000).UTC())
	d := newTestDetector(clock)

	p := &Pattern{ID: "pat_1", Nodes: nodePath("a"), Confidence: 0.9}
	require.NoError(t, d.Register(p))
	assert.ErrorIs(t, d.Register(&Pattern{ID: "pat_1", Nodes: nodePath("b")}), ErrDuplicatePattern)
}

func TestPrune(t *testing.T) {
	clock := ident.NewManualClock(time.UnixMilli(1000).UTC())
	d := newTestDetector(clock)

	weak := d.Observe(nodePath("a", "b", "c"), "ctx")
	weak.Confidence = 0.1
	stale := d.Observe(nodePath("x", "y", "z"), "ctx")
	stale.LastSeen = clock.Now().AddDate(0, 0, -90)
	strong := d.Observe(nodePath("p", "q", "r"), "ctx")

	removed := d.Prune(0.5, 30)
	assert.Equal(t, 2, removed)
	_, ok := d.Get(strong.ID)
	assert.True(t, ok, "healthy pattern pruned")
}

func TestPathToPatternSimilarity(t *testing.T) {
	identical := pathToPatternSimilarity(nodePath("a", "b", "c"), nodePath("a", "b", "c"))
	assert.InDelta(t, 1.0, identical, 1e-9)

	disjoint := pathToPatternSimilarity(nodePath("a", "b"), nodePath("x", "y"))
	assert.Equal(t, 0.0, disjoint)

	// One node of three shared, LCS 1: 0.6*(1/5) + 0.4*(2/6).
	partial := pathToPatternSimilarity(nodePath("a", "b", "c"), nodePath("a", "x", "y"))
	assert.InDelta(t, 0.6*(1.0/5.0)+0.4*(2.0/6.0), partial, 1e-9)
}

func TestLCSLength(t *testing.T) {
	assert.Equal(t, 3, lcsLength(nodePath("a", "b", "c"), nodePath("a", "b", "c")))
	assert.Equal(t, 2, lcsLength(nodePath("a", "b", "c"), nodePath("a", "x", "c")))
	assert.Equal(t, 0, lcsLength(nodePath("a"), nodePath("b")))
	assert.Equal(t, 3, lcsLength(nodePath("a", "b", "x", "c", "d"), nodePath("a", "b", "d")))
}
