// Package focus computes the camera pose that frames a step.
package focus

import (
	"github.com/chazu/stepwise/pkg/camera"
	"github.com/chazu/stepwise/pkg/layout"
	"github.com/chazu/stepwise/pkg/project"
)

// Framing constants.
const (
	CameraHeight = 5.0 // eye height above a primitive step
	PullBack     = 8.0 // horizontal distance in front of a primitive step
)

var (
	// DefaultPose is the overview used when nothing is focused.
	DefaultPose = project.Pose{
		Eye:    project.Vec3{X: 0, Y: 10, Z: 20},
		LookAt: project.Vec3{},
	}
	// PointOffset places the eye diagonally away from a focus point.
	PointOffset = project.Vec3{X: 3, Y: 3, Z: 3}
)

// MeshLocator finds the world-space bounding box center of a named mesh in
// the asset rendered for a step. ok is false when the asset is not loaded
// or has no such mesh.
type MeshLocator interface {
	MeshCenter(stepID, mesh string) (center project.Vec3, ok bool)
}

// Resolver maps a focused step to a camera pose. It holds no state of its
// own and never mutates its inputs.
type Resolver struct {
	Meshes MeshLocator
}

// Resolve returns the pose framing target. An empty or unknown target
// yields DefaultPose.
//
// Order: primitive steps derive their pose from their position; an asset
// step whose focus mesh is located looks at the mesh center from its
// authored eye; a focus point is viewed from PointOffset; an authored pose
// is used as is; anything else falls back to DefaultPose.
//
// The pose does not depend on mode. The choreographer decides whether to
// move toward it.
func (r Resolver) Resolve(p project.Project, positions layout.Positions3D, target string, _ camera.Mode) project.Pose {
	if target == "" {
		return DefaultPose
	}
	step, ok := p.Step(target)
	if !ok {
		return DefaultPose
	}

	if step.Shape.IsPrimitive() && p.Kind != project.KindUpload {
		pos := positions[step.ID]
		return project.Pose{
			Eye:    pos.Add(project.Vec3{Y: CameraHeight, Z: PullBack}),
			LookAt: pos,
		}
	}

	if step.FocusMesh != "" && step.Camera != nil && r.Meshes != nil {
		if center, ok := r.Meshes.MeshCenter(step.ID, step.FocusMesh); ok {
			return project.Pose{Eye: step.Camera.Eye, LookAt: center}
		}
	}
	if step.FocusPoint != nil {
		fp := *step.FocusPoint
		return project.Pose{Eye: fp.Add(PointOffset), LookAt: fp}
	}
	if step.Camera != nil {
		return *step.Camera
	}
	return DefaultPose
}
