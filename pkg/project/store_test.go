package project

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildFlow returns a store with steps a, b, c wired a->b->c plus a->c and
// a guide over all three.
func buildFlow(t *testing.T) *Store {
	t.Helper()
	s := NewStore(New("flow", KindBuilder))
	for _, id := range []string{"a", "b", "c"} {
		_, err := s.AddStep(Step{ID: id})
		require.NoError(t, err)
		_, err = s.AddToGuide(id)
		require.NoError(t, err)
	}
	for _, c := range []Connection{
		{ID: "ab", Source: "a", Target: "b"},
		{ID: "bc", Source: "b", Target: "c"},
		{ID: "ac", Source: "a", Target: "c"},
	} {
		_, err := s.AddConnection(c)
		require.NoError(t, err)
	}
	return s
}

func TestAddStepFillsDefaults(t *testing.T) {
	s := NewStore(New("p", ""))
	step, err := s.AddStep(Step{})
	require.NoError(t, err)

	assert.NotEmpty(t, step.ID)
	assert.Equal(t, "New step", step.Title)
	assert.Equal(t, ShapeCube, step.Shape)
	assert.Equal(t, 1.0, step.Scale)
	assert.True(t, step.Color.Valid())

	snap := s.Snapshot()
	assert.Equal(t, KindBuilder, snap.Kind)
	require.Len(t, snap.Steps, 1)
}

func TestAddStepDuplicate(t *testing.T) {
	s := NewStore(New("p", KindBuilder))
	_, err := s.AddStep(Step{ID: "x"})
	require.NoError(t, err)
	_, err = s.AddStep(Step{ID: "x"})
	assert.ErrorIs(t, err, ErrDuplicateID)
}

func TestDeleteStepCascades(t *testing.T) {
	s := buildFlow(t)
	require.NoError(t, s.SetPosition("b", Vec2{X: 10, Y: 20}))

	require.NoError(t, s.DeleteStep("b"))
	snap := s.Snapshot()

	require.Len(t, snap.Steps, 2)
	require.Len(t, snap.Connections, 1)
	assert.Equal(t, "ac", snap.Connections[0].ID)
	require.Len(t, snap.Guide, 2)
	assert.Equal(t, "a", snap.Guide[0].StepID)
	assert.Equal(t, "c", snap.Guide[1].StepID)
	_, ok := snap.Layout["b"]
	assert.False(t, ok)
}

func TestDeleteMissingStep(t *testing.T) {
	s := buildFlow(t)
	err := s.DeleteStep("zzz")
	assert.True(t, errors.Is(err, ErrStepNotFound))
}

func TestAddConnectionRequiresEndpoints(t *testing.T) {
	s := buildFlow(t)
	_, err := s.AddConnection(Connection{Source: "a", Target: "missing"})
	assert.ErrorIs(t, err, ErrStepNotFound)

	c, err := s.AddConnection(Connection{Source: "c", Target: "a"})
	require.NoError(t, err)
	assert.NotEmpty(t, c.ID)
	assert.Equal(t, StyleStandard, c.Style)
}

func TestDeleteConnectionKeepsEndpoints(t *testing.T) {
	s := buildFlow(t)
	require.NoError(t, s.DeleteConnection("ab"))
	snap := s.Snapshot()
	assert.Len(t, snap.Steps, 3)
	assert.Len(t, snap.Connections, 2)
	assert.ErrorIs(t, s.DeleteConnection("ab"), ErrConnectionNotFound)
}

func TestUpdateConnection(t *testing.T) {
	s := buildFlow(t)
	require.NoError(t, s.UpdateConnection(Connection{ID: "bc", Style: StyleNeon, Description: "bolt it", Marker: ShapeSphere}))
	snap := s.Snapshot()
	assert.Equal(t, StyleNeon, snap.Connections[1].Style)
	assert.Equal(t, "bolt it", snap.Connections[1].Description)
	assert.Equal(t, "b", snap.Connections[1].Source)
}

func TestMoveGuideStep(t *testing.T) {
	s := buildFlow(t)
	require.NoError(t, s.MoveGuideStep(0, 2))
	snap := s.Snapshot()
	assert.Equal(t, []string{"b", "c", "a"}, snap.Sequence())

	require.NoError(t, s.MoveGuideStep(2, 0))
	snap = s.Snapshot()
	assert.Equal(t, []string{"a", "b", "c"}, snap.Sequence())

	assert.ErrorIs(t, s.MoveGuideStep(0, 3), ErrGuideStepNotFound)
}

func TestAddToGuideTwice(t *testing.T) {
	s := buildFlow(t)
	g, err := s.AddToGuide("a")
	require.NoError(t, err)
	assert.NotEqual(t, "a", g.ID)
	assert.Equal(t, "a", g.StepID)

	require.NoError(t, s.RemoveGuideStep(g.ID))
	assert.Len(t, s.Snapshot().Guide, 3)
}

func TestSubscribeReceivesSnapshots(t *testing.T) {
	s := NewStore(New("p", KindBuilder))
	var changes []Change
	unsubscribe := s.Subscribe(func(c Change) { changes = append(changes, c) })

	_, err := s.AddStep(Step{ID: "a"})
	require.NoError(t, err)
	require.NoError(t, s.UpdateStep(Step{ID: "a", Title: "Renamed"}))

	require.Len(t, changes, 2)
	assert.Equal(t, OpAddStep, changes[0].Op)
	assert.Equal(t, uint64(1), changes[0].Revision)
	assert.Equal(t, "Renamed", changes[1].Snapshot.Steps[0].Title)

	// Snapshots are isolated from the live document.
	changes[1].Snapshot.Steps[0].Title = "mutated"
	assert.Equal(t, "Renamed", s.Snapshot().Steps[0].Title)

	unsubscribe()
	s.Rename("other")
	assert.Len(t, changes, 2)
	assert.Equal(t, uint64(3), s.Revision())
}

func TestFailedMutationDoesNotNotify(t *testing.T) {
	s := NewStore(New("p", KindBuilder))
	calls := 0
	s.Subscribe(func(Change) { calls++ })
	assert.Error(t, s.UpdateStep(Step{ID: "ghost"}))
	assert.Equal(t, 0, calls)
	assert.Equal(t, uint64(0), s.Revision())
}

func TestSnapshotDeepCopiesPointers(t *testing.T) {
	s := NewStore(New("p", KindUpload))
	_, err := s.AddStep(Step{ID: "a", Shape: ShapeCustom, Camera: &Pose{Eye: Vec3{1, 2, 3}}, FocusPoint: &Vec3{4, 5, 6}})
	require.NoError(t, err)

	snap := s.Snapshot()
	snap.Steps[0].Camera.Eye.X = 99
	snap.Steps[0].FocusPoint.X = 99

	again := s.Snapshot()
	assert.Equal(t, 1.0, again.Steps[0].Camera.Eye.X)
	assert.Equal(t, 4.0, again.Steps[0].FocusPoint.X)
}
