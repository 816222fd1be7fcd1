package layout

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chazu/stepwise/pkg/project"
)

func stepsOf(ids ...string) []project.Step {
	out := make([]project.Step, len(ids))
	for i, id := range ids {
		out[i] = project.Step{ID: id, Shape: project.ShapeCube}
	}
	return out
}

func TestAuthoredFallbackSpacing(t *testing.T) {
	got := NewAuthored().Project(stepsOf("a", "b", "c"), nil)
	require.Len(t, got, 3)
	assert.Equal(t, project.Vec3{X: 0}, got["a"])
	assert.Equal(t, project.Vec3{X: 4}, got["b"])
	assert.Equal(t, project.Vec3{X: 8}, got["c"])
}

func TestAuthoredCentersOnOrigin(t *testing.T) {
	pos := Positions2D{"a": {X: 0, Y: 0}, "b": {X: 100, Y: 0}}
	got := NewAuthored().Project(stepsOf("a", "b"), pos)

	assert.InDelta(t, -50*ScaleFactor, got["a"].X, 1e-12)
	assert.InDelta(t, 50*ScaleFactor, got["b"].X, 1e-12)
	assert.Equal(t, got["a"].Z, got["b"].Z)
	assert.Zero(t, got["a"].Y)
	assert.Zero(t, got["b"].Y)
}

func TestAuthoredMapsYToDepth(t *testing.T) {
	pos := Positions2D{"a": {X: 10, Y: -20}, "b": {X: 30, Y: 60}, "c": {X: 20, Y: 20}}
	got := NewAuthored().Project(stepsOf("a", "b", "c"), pos)

	// Bounding box center is (20, 20).
	assert.InDelta(t, -10*ScaleFactor, got["a"].X, 1e-12)
	assert.InDelta(t, -40*ScaleFactor, got["a"].Z, 1e-12)
	assert.InDelta(t, 40*ScaleFactor, got["b"].Z, 1e-12)
	assert.Equal(t, project.Vec3{}, got["c"])
}

func TestAuthoredMissingPositionAtOrigin(t *testing.T) {
	pos := Positions2D{"a": {X: 100, Y: 100}, "b": {X: 200, Y: 100}}
	got := NewAuthored().Project(stepsOf("a", "b", "loose"), pos)
	assert.Equal(t, project.Vec3{}, got["loose"])
}

func TestAuthoredIgnoresPositionsOfUnknownSteps(t *testing.T) {
	pos := Positions2D{"a": {X: 0, Y: 0}, "gone": {X: 1000, Y: 1000}}
	got := NewAuthored().Project(stepsOf("a"), pos)
	require.Len(t, got, 1)
	assert.Equal(t, project.Vec3{}, got["a"])
}

func TestAuthoredDeterministic(t *testing.T) {
	steps := stepsOf("a", "b", "c", "d")
	pos := Positions2D{"a": {X: 3.3, Y: 1.1}, "b": {X: -7, Y: 2}, "d": {X: 12.5, Y: -9}}
	p := NewAuthored()
	assert.Equal(t, p.Project(steps, pos), p.Project(steps, pos))
}

func TestHierarchicalLayers(t *testing.T) {
	conns := []project.Connection{
		{ID: "ab", Source: "a", Target: "b"},
		{ID: "ac", Source: "a", Target: "c"},
		{ID: "bd", Source: "b", Target: "d"},
		{ID: "cd", Source: "c", Target: "d"},
	}
	got := NewHierarchical(conns).Project(stepsOf("a", "b", "c", "d", "e"), nil)

	assert.Equal(t, project.Vec3{X: -2, Z: 0}, got["a"])
	assert.Equal(t, project.Vec3{X: 2, Z: 0}, got["e"])
	assert.Equal(t, project.Vec3{X: -2, Z: -4}, got["b"])
	assert.Equal(t, project.Vec3{X: 2, Z: -4}, got["c"])
	assert.Equal(t, project.Vec3{X: 0, Z: -8}, got["d"])
}

func TestHierarchicalIgnoresDanglingConnections(t *testing.T) {
	conns := []project.Connection{{ID: "xa", Source: "x", Target: "a"}}
	got := NewHierarchical(conns).Project(stepsOf("a"), nil)
	assert.Equal(t, project.Vec3{}, got["a"])
}

func TestForStrategy(t *testing.T) {
	p := project.New("p", project.KindBuilder)

	pr, err := ForStrategy("", p)
	require.NoError(t, err)
	assert.IsType(t, Authored{}, pr)

	pr, err = ForStrategy(StrategyHierarchical, p)
	require.NoError(t, err)
	assert.IsType(t, Hierarchical{}, pr)

	_, err = ForStrategy("radial", p)
	assert.Error(t, err)
}
