package muninn

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/orneryd/muninn/pkg/analysis"
	"github.com/orneryd/muninn/pkg/config"
	"github.com/orneryd/muninn/pkg/experience"
	"github.com/orneryd/muninn/pkg/graph"
	"github.com/orneryd/muninn/pkg/ident"
	"github.com/orneryd/muninn/pkg/index"
)

func openTestDB(t *testing.T) (*DB, *ident.ManualClock) {
	t.Helper()
	clock := ident.NewManualClock(time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC))
	cfg := config.Default()
	cfg.Analysis.CommunitySeed = 12345
	db, err := Open(cfg, Options{Clock: clock, Logger: zap.NewNop(), IDSeed: 7})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, clock
}

func addInfo(t *testing.T, db *DB, text string) *graph.Node {
	t.Helper()
	node, err := db.AddInformation(graph.StringContent(text), "note", "", nil)
	require.NoError(t, err)
	return node
}

func TestAddInformationEmitsAndIndexes(t *testing.T) {
	db, _ := openTestDB(t)

	var emitted *graph.Node
	db.Bus().On(EventInformationAfterAdd, func(args ...any) {
		emitted = args[0].(*graph.Node)
	})

	node := addInfo(t, db, "zookeeper coordination notes")
	require.NotNil(t, emitted)
	assert.Equal(t, node.ID, emitted.ID)

	results := db.SearchInformation("zookeeper", index.SearchOptions{})
	require.Len(t, results, 1)
	assert.Equal(t, node.ID, results[0].ID)
}

func TestDeleteInformationCascades(t *testing.T) {
	db, _ := openTestDB(t)

	a := addInfo(t, db, "node a")
	b := addInfo(t, db, "node b")
	c := addInfo(t, db, "node c")
	_, err := db.Connect(a.ID, b.ID, "rel", 1, nil)
	require.NoError(t, err)
	_, err = db.Connect(b.ID, c.ID, "rel", 1, nil)
	require.NoError(t, err)

	// Record an experience through b and one that avoids it.
	pathID, _ := db.StartPath("walk", a.ID, nil)
	db.AddPathNode(pathID, b.ID, nil)
	_, err = db.CompletePath(pathID, experience.OutcomeSuccess, "")
	require.NoError(t, err)

	other, _ := db.StartPath("other walk", c.ID, nil)
	_, err = db.CompletePath(other, experience.OutcomeSuccess, "")
	require.NoError(t, err)

	// Strategy touching b.
	st := db.Plan("walk")
	require.NotNil(t, st)

	forgotten := 0
	db.Bus().On(EventExperienceAfterForget, func(args ...any) { forgotten++ })

	require.True(t, db.DeleteInformation(b.ID))

	assert.False(t, db.Graph().HasNode(b.ID))
	assert.Equal(t, 0, db.Graph().EdgeCount(), "incident edges must cascade")
	assert.Equal(t, 1, len(db.Experiences()), "experience through b must cascade")
	assert.Equal(t, 1, forgotten)
	assert.Empty(t, db.Strategies(), "strategy touching b must cascade")

	// Unrelated data survives.
	assert.True(t, db.Graph().HasNode(a.ID))
	assert.True(t, db.Graph().HasNode(c.ID))
}

func TestCompletePathLearningPipeline(t *testing.T) {
	db, clock := openTestDB(t)

	a := addInfo(t, db, "start")
	b := addInfo(t, db, "middle")
	c := addInfo(t, db, "finish")

	var events []string
	for _, name := range []string{EventExperienceAfterRecord, EventExperienceBeforeLearn, EventExperienceOnLearn} {
		event := name
		db.Bus().On(event, func(args ...any) { events = append(events, event) })
	}

	pathID, err := db.StartPath("first walk", a.ID, nil)
	require.NoError(t, err)
	clock.Advance(time.Second)
	require.NoError(t, db.AddPathNode(pathID, b.ID, nil))
	require.NoError(t, db.AddPathNode(pathID, c.ID, nil))
	clock.Advance(time.Second)

	exp, err := db.CompletePath(pathID, experience.OutcomeSuccess, "smooth")
	require.NoError(t, err)

	assert.Equal(t, []string{EventExperienceAfterRecord, EventExperienceBeforeLearn, EventExperienceOnLearn}, events)
	assert.Equal(t, int64(2000), exp.TraversalTime)
	require.Len(t, exp.Patterns, 1, "3-node path must seed a pattern")
	assert.Len(t, db.Patterns(), 1)
}

func TestReinforceAndSuggest(t *testing.T) {
	db, _ := openTestDB(t)

	a := addInfo(t, db, "a")
	b := addInfo(t, db, "b")
	c := addInfo(t, db, "c")

	pathID, _ := db.StartPath("routine", a.ID, nil)
	db.AddPathNode(pathID, b.ID, nil)
	db.AddPathNode(pathID, c.ID, nil)
	_, err := db.CompletePath(pathID, experience.OutcomeSuccess, "")
	require.NoError(t, err)

	before := db.Experiences()[0].Reinforcement
	updated := db.Reinforce([]graph.NodeID{a.ID, b.ID, c.ID}, 0.5, "")
	assert.Equal(t, 1, updated)
	assert.GreaterOrEqual(t, db.Experiences()[0].Reinforcement, before)

	suggestions := db.SuggestNext(a.ID, "", 5)
	require.NotEmpty(t, suggestions)
	assert.Equal(t, b.ID, suggestions[0].NodeID)
}

func TestSuggestionsRespectNodeDeletion(t *testing.T) {
	db, _ := openTestDB(t)

	a := addInfo(t, db, "a")
	b := addInfo(t, db, "b")
	x := addInfo(t, db, "x")

	p1, _ := db.StartPath("w1", a.ID, nil)
	db.AddPathNode(p1, b.ID, nil)
	db.CompletePath(p1, experience.OutcomeSuccess, "")

	p2, _ := db.StartPath("w2", a.ID, nil)
	db.AddPathNode(p2, x.ID, nil)
	db.CompletePath(p2, experience.OutcomeSuccess, "")

	// Deleting x also removes the experience through it, so only b remains.
	db.DeleteInformation(x.ID)
	suggestions := db.SuggestNext(a.ID, "", 5)
	require.Len(t, suggestions, 1)
	assert.Equal(t, b.ID, suggestions[0].NodeID)
}

func TestSnapshotSaveLoadCycle(t *testing.T) {
	db, _ := openTestDB(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "graph.json")

	a := addInfo(t, db, "persisted note")
	b := addInfo(t, db, "second note")
	_, err := db.Connect(a.ID, b.ID, "rel", 0.7, nil)
	require.NoError(t, err)

	digest, err := db.SaveSnapshot(context.Background(), path)
	require.NoError(t, err)
	assert.NotEmpty(t, digest)

	// Mutate, then load back: state must match the snapshot.
	db.DeleteInformation(b.ID)
	require.NoError(t, db.LoadSnapshot(context.Background(), path))

	assert.Equal(t, 2, db.Graph().NodeCount())
	edge, ok := db.Graph().GetEdge(graph.EdgeKey{From: a.ID, To: b.ID, Type: "rel"})
	require.True(t, ok)
	assert.Equal(t, 0.7, edge.Strength)
}

func TestDetectCommunitiesEmitsClusterEvent(t *testing.T) {
	db, _ := openTestDB(t)

	a := addInfo(t, db, "a")
	b := addInfo(t, db, "b")
	_, err := db.Connect(a.ID, b.ID, "rel", 0.9, nil)
	require.NoError(t, err)

	clustered := false
	db.Bus().On(EventKnowledgeOnCluster, func(args ...any) { clustered = true })

	clusters := db.DetectCommunities(analysis.CommunityOptions{RandomSeed: 12345, MaxIterations: 200})
	assert.NotEmpty(t, clusters)
	assert.True(t, clustered)
}

func TestPlanAdaptCompareDelete(t *testing.T) {
	db, _ := openTestDB(t)

	a := addInfo(t, db, "a")
	b := addInfo(t, db, "b")

	p, _ := db.StartPath("deploy service", a.ID, nil)
	db.AddPathNode(p, b.ID, nil)
	_, err := db.CompletePath(p, experience.OutcomeSuccess, "")
	require.NoError(t, err)

	st := db.Plan("deploy service")
	require.NotNil(t, st)
	assert.Equal(t, []graph.NodeID{a.ID, b.ID}, st.Steps)

	adapted, err := db.AdaptStrategy(st.ID, "worked well")
	require.NoError(t, err)
	assert.Len(t, adapted.Feedback, 1)

	second := db.Plan("deploy service")
	require.NotNil(t, second)
	cmp, err := db.CompareStrategies(st.ID, second.ID)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, cmp.Similarity, 1e-9, "same steps must compare as identical")

	assert.True(t, db.DeleteStrategy(st.ID))
	assert.False(t, db.DeleteStrategy(st.ID))
}

func TestIntuitions(t *testing.T) {
	db, _ := openTestDB(t)

	a := addInfo(t, db, "a")
	b := addInfo(t, db, "b")
	c := addInfo(t, db, "c")

	// Walk the same path twice so the pattern's frequency reaches 2.
	for i := 0; i < 2; i++ {
		p, _ := db.StartPath("routine", a.ID, nil)
		db.AddPathNode(p, b.ID, nil)
		db.AddPathNode(p, c.ID, nil)
		_, err := db.CompletePath(p, experience.OutcomeSuccess, "")
		require.NoError(t, err)
	}

	require.Equal(t, 1, db.BuildIntuitions())
	fired := db.TriggerIntuition(a.ID)
	require.Len(t, fired, 1)
	assert.Equal(t, c.ID, fired[0].Target)
	assert.Empty(t, db.TriggerIntuition(b.ID))
}

func TestForgetSweepWithArchive(t *testing.T) {
	clock := ident.NewManualClock(time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC))
	cfg := config.Default()
	cfg.Archive.Enabled = true
	cfg.Archive.Dir = filepath.Join(t.TempDir(), "archive")
	cfg.Archive.ArchiveAfterDays = 30

	db, err := Open(cfg, Options{Clock: clock, Logger: zap.NewNop(), IDSeed: 7})
	require.NoError(t, err)
	defer db.Close()

	a, err := db.AddInformation(graph.StringContent("a"), "note", "", nil)
	require.NoError(t, err)

	p, _ := db.StartPath("old work", a.ID, nil)
	exp, err := db.CompletePath(p, experience.OutcomeFailure, "")
	require.NoError(t, err)

	// Drive reinforcement to the floor and age the record.
	exp.Reinforcement = cfg.Experience.MinReinforcement
	exp.Timestamp = clock.Now().AddDate(0, 0, -60)

	archived := db.ForgetSweep()
	assert.Equal(t, 1, archived)
	assert.Equal(t, 0, len(db.Experiences()))

	restored, err := db.RestoreExperience(exp.ID)
	require.NoError(t, err)
	assert.Equal(t, exp.ID, restored.ID)
	assert.Equal(t, 1, len(db.Experiences()))
}

func TestMaxConcurrentPathsEnforced(t *testing.T) {
	clock := ident.NewManualClock(time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC))
	cfg := config.Default()
	cfg.Experience.MaxConcurrentPaths = 1
	db, err := Open(cfg, Options{Clock: clock, Logger: zap.NewNop(), IDSeed: 7})
	require.NoError(t, err)
	defer db.Close()

	_, err = db.StartPath("one", "", nil)
	require.NoError(t, err)
	_, err = db.StartPath("two", "", nil)
	assert.ErrorIs(t, err, experience.ErrTooManyPaths)
}
