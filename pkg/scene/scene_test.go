package scene

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chazu/stepwise/pkg/layout"
	"github.com/chazu/stepwise/pkg/project"
)

// fakeAssets returns canned states per consumer key and records calls.
type fakeAssets struct {
	states map[string]NodeState
	panics map[string]bool
	calls  map[string]string
}

func (f *fakeAssets) Status(key, ref string) (NodeState, error) {
	if f.calls == nil {
		f.calls = map[string]string{}
	}
	f.calls[key] = ref
	if f.panics[key] {
		panic("decoder exploded")
	}
	st, ok := f.states[key]
	if !ok {
		return StateLoading, nil
	}
	if st == StateFailed {
		return st, errors.New("corrupt asset")
	}
	return st, nil
}

func builderProject() project.Project {
	p := project.New("demo", project.KindBuilder)
	p.Steps = []project.Step{
		{ID: "a", Title: "Base", Shape: project.ShapeCube, Color: "#ff0000"},
		{ID: "b", Title: "Axle", Shape: project.ShapeCylinder, Color: "#00ff00", Scale: 2},
		{ID: "c", Title: "Wheel", Shape: project.ShapeCustom, Asset: "https://cdn.example.com/wheel.glb"},
	}
	p.Connections = []project.Connection{
		{ID: "ab", Source: "a", Target: "b", Style: project.StyleGlow, Description: "slide the axle in", Marker: project.ShapeSphere},
		{ID: "bc", Source: "b", Target: "c", Style: "plasma"},
		{ID: "xc", Source: "x", Target: "c"},
	}
	return p
}

func build(t *testing.T, assets Assets, p project.Project, active string, elapsed float64) Scene {
	t.Helper()
	pos := layout.NewAuthored().Project(p.Steps, nil)
	return NewBuilder(assets, nil).Build(Input{Project: p, Positions: pos, Active: active, Elapsed: elapsed})
}

func TestBuildPrunesDanglingConnections(t *testing.T) {
	sc := build(t, &fakeAssets{}, builderProject(), "", 0)
	require.Len(t, sc.Curves, 2)
	_, ok := sc.Curve("xc")
	assert.False(t, ok)
}

func TestBuildAfterStepDeletion(t *testing.T) {
	s := project.NewStore(builderProject())
	require.NoError(t, s.DeleteStep("a"))

	// Reintroduce a dangling connection the way a stale document would.
	p := s.Snapshot()
	p.Connections = append(p.Connections, project.Connection{ID: "ab", Source: "a", Target: "b"})

	sc := build(t, &fakeAssets{}, p, "", 0)
	_, ok := sc.Curve("ab")
	assert.False(t, ok)
	assert.Len(t, sc.Nodes, 2)
}

func TestNodesFollowPositions(t *testing.T) {
	sc := build(t, &fakeAssets{}, builderProject(), "", 0)
	require.Len(t, sc.Nodes, 3)
	assert.Equal(t, project.Vec3{X: 4}, sc.Nodes[1].Position)
	assert.Equal(t, 2.0, sc.Nodes[1].Scale)
	assert.Equal(t, 1.0, sc.Nodes[0].Scale)
}

func TestActiveOutlineOnlyOnPrimitives(t *testing.T) {
	sc := build(t, &fakeAssets{states: map[string]NodeState{"c": StateReady}}, builderProject(), "b", 0)
	b, _ := sc.Node("b")
	require.NotNil(t, b.Outline)
	assert.Equal(t, project.ShapeCylinder, b.Outline.Shape)
	assert.InDelta(t, OutlineScale*2, b.Outline.Scale, 1e-12)
	assert.InDelta(t, 0.25, b.Outline.Opacity, 1e-12)

	a, _ := sc.Node("a")
	assert.Nil(t, a.Outline)

	sc = build(t, &fakeAssets{states: map[string]NodeState{"c": StateReady}}, builderProject(), "c", 0)
	c, _ := sc.Node("c")
	assert.True(t, c.Active)
	assert.Nil(t, c.Outline)
}

func TestAssetPlaceholders(t *testing.T) {
	t.Run("loading", func(t *testing.T) {
		sc := build(t, &fakeAssets{}, builderProject(), "", 0)
		c, _ := sc.Node("c")
		assert.Equal(t, StateLoading, c.State)
		assert.True(t, c.Wireframe)
		assert.Equal(t, LoadingColor, c.Color)
	})
	t.Run("failed", func(t *testing.T) {
		sc := build(t, &fakeAssets{states: map[string]NodeState{"c": StateFailed}}, builderProject(), "", 0)
		c, _ := sc.Node("c")
		assert.Equal(t, StateFailed, c.State)
		assert.Equal(t, FailedColor, c.Color)
		assert.Equal(t, FailedOpacity, c.Opacity)
		assert.Equal(t, "corrupt asset", c.Error)

		a, _ := sc.Node("a")
		assert.Equal(t, StateReady, a.State)
	})
	t.Run("ready", func(t *testing.T) {
		f := &fakeAssets{states: map[string]NodeState{"c": StateReady}}
		sc := build(t, f, builderProject(), "", 0)
		c, _ := sc.Node("c")
		assert.Equal(t, StateReady, c.State)
		assert.Equal(t, "https://cdn.example.com/wheel.glb", f.calls["c"])
	})
}

func TestNodePanicIsIsolated(t *testing.T) {
	f := &fakeAssets{panics: map[string]bool{"c": true}}
	sc := build(t, f, builderProject(), "c", 0)

	c, _ := sc.Node("c")
	assert.Equal(t, StateFailed, c.State)
	assert.True(t, c.Active)
	assert.Contains(t, c.Error, "decoder exploded")

	for _, id := range []string{"a", "b"} {
		n, _ := sc.Node(id)
		assert.Equal(t, StateReady, n.State, id)
	}
	assert.Len(t, sc.Curves, 2)
}

func TestCustomWithoutAssetFails(t *testing.T) {
	p := builderProject()
	p.Steps[2].Asset = ""
	sc := build(t, &fakeAssets{}, p, "", 0)
	c, _ := sc.Node("c")
	assert.Equal(t, StateFailed, c.State)
}

func TestUploadProjectBackdrop(t *testing.T) {
	p := project.New("engine", project.KindUpload)
	p.Asset = "https://cdn.example.com/engine.glb"
	p.Steps = []project.Step{
		{ID: "s1", Shape: project.ShapeCustom, FocusMesh: "Bolt"},
		{ID: "s2", Shape: project.ShapeCustom, FocusMesh: "Housing"},
	}
	f := &fakeAssets{states: map[string]NodeState{BackdropKey: StateReady}}
	sc := build(t, f, p, "s1", 0)

	require.NotNil(t, sc.Backdrop)
	assert.Equal(t, StateReady, sc.Backdrop.State)
	assert.Equal(t, p.Asset, f.calls[BackdropKey])
	assert.Len(t, f.calls, 1, "anchors do not load their own copy")
	for _, n := range sc.Nodes {
		assert.Equal(t, StateAnchor, n.State)
	}
}

func TestCurveStyling(t *testing.T) {
	sc := build(t, &fakeAssets{}, builderProject(), "", 0)

	ab, _ := sc.Curve("ab")
	assert.Equal(t, project.StyleGlow, ab.Style)
	assert.Equal(t, project.Color("#ffb347"), ab.Color)
	assert.True(t, ab.Glow)
	assert.InDelta(t, 0.8, ab.Opacity, 1e-12)
	assert.Equal(t, "slide the axle in", ab.Description)

	bc, _ := sc.Curve("bc")
	assert.Equal(t, project.StyleStandard, bc.Style, "unknown style resolves to standard")
	assert.False(t, bc.Glow)
}

func TestCurveActiveWhenEndpointSelected(t *testing.T) {
	sc := build(t, &fakeAssets{}, builderProject(), "b", 0)
	ab, _ := sc.Curve("ab")
	bc, _ := sc.Curve("bc")
	assert.True(t, ab.Active)
	assert.True(t, bc.Active)
	assert.Equal(t, project.Color("#ffd699"), ab.Color)

	sc = build(t, &fakeAssets{}, builderProject(), "a", 0)
	bc, _ = sc.Curve("bc")
	assert.False(t, bc.Active)
}

func TestCurveGeometry(t *testing.T) {
	sc := build(t, &fakeAssets{}, builderProject(), "", 0)
	ab, _ := sc.Curve("ab")

	require.Len(t, ab.Points, CurveSegments+1)
	assert.Equal(t, project.Vec3{X: 0}, ab.Points[0])
	assert.InDelta(t, 4, ab.Points[CurveSegments].X, 1e-12)
	assert.InDelta(t, 0, ab.Points[CurveSegments].Y, 1e-12)

	// Chord 4: control point lifted 0.6, apex at half that.
	mid := ab.Points[CurveSegments/2]
	assert.InDelta(t, 2, mid.X, 1e-12)
	assert.InDelta(t, 0.3, mid.Y, 1e-12)

	require.NotNil(t, ab.Marker)
	assert.Equal(t, project.ShapeSphere, ab.Marker.Shape)
	assert.InDelta(t, 0.3+MarkerLift, ab.Marker.Position.Y, 1e-12)
	assert.Greater(t, ab.Marker.Position.Y, mid.Y)

	bc, _ := sc.Curve("bc")
	assert.Nil(t, bc.Marker)
}

func TestPulse(t *testing.T) {
	glow := StyleFor(project.StyleGlow)
	assert.InDelta(t, 0.8+0.15, glow.Pulse(math.Pi/4, false), 1e-12)

	// sin(2t) = -1: the active amplitude is doubled with the same phase.
	trough := 3 * math.Pi / 4
	assert.InDelta(t, 0.8-0.15, glow.Pulse(trough, false), 1e-12)
	assert.InDelta(t, 0.8-0.30, glow.Pulse(trough, true), 1e-12)

	neon := StyleFor(project.StyleNeon)
	assert.InDelta(t, 1.0, neon.Pulse(math.Pi/8, false), 1e-12, "clamped")

	std := StyleFor(project.StyleStandard)
	assert.Equal(t, std.Opacity, std.Pulse(1.234, true))
}

func TestStyleFor(t *testing.T) {
	for _, s := range []project.ConnectionStyle{project.StyleStandard, project.StyleGlass, project.StyleGlow, project.StyleNeon} {
		assert.Equal(t, s, StyleFor(s).Name)
	}
	assert.Equal(t, project.StyleStandard, StyleFor("").Name)
	assert.True(t, StyleFor(project.StyleNeon).GlowShell)
	assert.False(t, StyleFor(project.StyleGlass).GlowShell)
}
