package focus

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/chazu/stepwise/pkg/camera"
	"github.com/chazu/stepwise/pkg/layout"
	"github.com/chazu/stepwise/pkg/project"
)

type meshTable map[string]project.Vec3

func (m meshTable) MeshCenter(stepID, mesh string) (project.Vec3, bool) {
	c, ok := m[stepID+"/"+mesh]
	return c, ok
}

func vec(x, y, z float64) *project.Vec3 { return &project.Vec3{X: x, Y: y, Z: z} }

func testProject() project.Project {
	p := project.New("demo", project.KindBuilder)
	authored := project.Pose{Eye: project.Vec3{X: 1, Y: 2, Z: 3}, LookAt: project.Vec3{X: 9, Y: 9, Z: 9}}
	p.Steps = []project.Step{
		{ID: "cube", Shape: project.ShapeCube, Camera: &authored},
		{ID: "wheel", Shape: project.ShapeCustom, Asset: "wheel.glb", FocusMesh: "Rim", Camera: &authored, FocusPoint: vec(7, 0, 7)},
		{ID: "point", Shape: project.ShapeCustom, Asset: "a.glb", FocusPoint: vec(1, 1, 1)},
		{ID: "posed", Shape: project.ShapeCustom, Asset: "a.glb", Camera: &authored},
		{ID: "bare", Shape: project.ShapeCustom, Asset: "a.glb"},
	}
	return p
}

func positions() layout.Positions3D {
	return layout.Positions3D{"cube": {X: 5, Y: 0, Z: 5}}
}

func TestResolveDefault(t *testing.T) {
	r := Resolver{Meshes: meshTable{}}
	for _, p := range []project.Project{testProject(), project.New("empty", project.KindUpload)} {
		assert.Equal(t, DefaultPose, r.Resolve(p, positions(), "", camera.ModeAuto))
		assert.Equal(t, DefaultPose, r.Resolve(p, positions(), "missing", camera.ModeAuto))
	}
}

func TestResolvePrimitive(t *testing.T) {
	got := Resolver{}.Resolve(testProject(), positions(), "cube", camera.ModeAuto)
	assert.Equal(t, project.Vec3{X: 5, Y: 0, Z: 5}, got.LookAt)
	assert.Equal(t, project.Vec3{X: 5, Y: 5, Z: 13}, got.Eye)
	assert.Equal(t, CameraHeight, got.Eye.Y)
}

func TestResolveFocusMesh(t *testing.T) {
	r := Resolver{Meshes: meshTable{"wheel/Rim": {X: 2, Y: 1, Z: -4}}}
	got := r.Resolve(testProject(), positions(), "wheel", camera.ModeAuto)
	assert.Equal(t, project.Vec3{X: 1, Y: 2, Z: 3}, got.Eye)
	assert.Equal(t, project.Vec3{X: 2, Y: 1, Z: -4}, got.LookAt)
}

func TestResolveMissingMeshFallsBack(t *testing.T) {
	got := Resolver{Meshes: meshTable{}}.Resolve(testProject(), positions(), "wheel", camera.ModeAuto)
	assert.Equal(t, project.Vec3{X: 7, Y: 0, Z: 7}, got.LookAt)
	assert.Equal(t, project.Vec3{X: 10, Y: 3, Z: 10}, got.Eye)
}

func TestResolveFocusPoint(t *testing.T) {
	got := Resolver{}.Resolve(testProject(), positions(), "point", camera.ModeAuto)
	assert.Equal(t, project.Pose{Eye: project.Vec3{X: 4, Y: 4, Z: 4}, LookAt: project.Vec3{X: 1, Y: 1, Z: 1}}, got)
}

func TestResolveAuthoredAndBare(t *testing.T) {
	p := testProject()
	got := Resolver{}.Resolve(p, positions(), "posed", camera.ModeAuto)
	assert.Equal(t, *p.Steps[3].Camera, got)

	assert.Equal(t, DefaultPose, Resolver{}.Resolve(p, positions(), "bare", camera.ModeAuto))
}

func TestResolveDoesNotMutate(t *testing.T) {
	p := testProject()
	before := p.Clone()
	r := Resolver{Meshes: meshTable{"wheel/Rim": {X: 2}}}
	first := r.Resolve(p, positions(), "wheel", camera.ModeAuto)
	second := r.Resolve(p, positions(), "wheel", camera.ModeAuto)
	assert.Equal(t, first, second)
	assert.Equal(t, before, p)
}

func TestResolveIgnoresMode(t *testing.T) {
	r := Resolver{Meshes: meshTable{"wheel/Rim": {X: 2}}}
	p := testProject()
	for _, target := range []string{"", "cube", "wheel", "point", "posed", "bare"} {
		assert.Equal(t,
			r.Resolve(p, positions(), target, camera.ModeAuto),
			r.Resolve(p, positions(), target, camera.ModeFree),
			target)
	}
}
