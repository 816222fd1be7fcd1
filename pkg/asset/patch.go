package asset

import (
	"github.com/deadsy/sdfx/sdf"

	"github.com/chazu/stepwise/pkg/project"
)

// Highlight presets.
var (
	HoverColor     project.Color = "#4488ff"
	HoverIntensity               = 0.6
	FocusColor     project.Color = "#ffaa00"
	FocusIntensity               = 0.8
)

// Placement is where a model clone is drawn: translate then uniform scale.
type Placement struct {
	Position project.Vec3 `json:"position"`
	Scale    float64      `json:"scale"`
}

// Box maps a model-space box into world space.
func (p Placement) Box(b sdf.Box3) sdf.Box3 {
	s := p.Scale
	if s <= 0 {
		s = 1
	}
	pos := p.Position.V3()
	return sdf.Box3{
		Min: b.Min.MulScalar(s).Add(pos),
		Max: b.Max.MulScalar(s).Add(pos),
	}
}

// WorldBounds returns the world-space bounds of the named mesh.
func (m *Model) WorldBounds(name string, at Placement) (sdf.Box3, bool) {
	mesh, ok := m.Mesh(name)
	if !ok {
		return sdf.Box3{}, false
	}
	return at.Box(mesh.Bounds), true
}

// PickResult is handed to step authoring when a mesh is clicked in pick
// mode.
type PickResult struct {
	MeshName string       `json:"meshName"`
	Center   project.Vec3 `json:"center"`
	Camera   project.Pose `json:"camera"`
}

func tint(c project.Color, fallback project.Color, intensity float64) Material {
	rgb, err := c.RGB()
	if err != nil {
		rgb, _ = fallback.RGB()
	}
	return Material{Emissive: rgb, Intensity: intensity}
}

// Patcher applies reversible emissive highlights to one model clone.
type Patcher struct {
	model   *Model
	hovered string
}

// NewPatcher returns a patcher over m.
func NewPatcher(m *Model) *Patcher {
	return &Patcher{model: m}
}

// Model returns the patched model.
func (p *Patcher) Model() *Model { return p.model }

// Hovered returns the mesh currently carrying the hover highlight.
func (p *Patcher) Hovered() string { return p.hovered }

func (p *Patcher) set(name string, mat Material) bool {
	hit := false
	for _, mesh := range p.model.Meshes {
		if mesh.Name == name {
			mesh.Material = mat
			hit = true
		}
	}
	return hit
}

func (p *Patcher) restore(name string) {
	for _, mesh := range p.model.Meshes {
		if mesh.Name == name {
			mesh.Material = mesh.Original
		}
	}
}

// Hover moves the transient pick-mode highlight to name.
func (p *Patcher) Hover(name string) bool {
	if name == p.hovered {
		return name != ""
	}
	p.Unhover()
	if !p.set(name, tint(HoverColor, HoverColor, HoverIntensity)) {
		return false
	}
	p.hovered = name
	return true
}

// Unhover removes the hover highlight.
func (p *Patcher) Unhover() {
	if p.hovered == "" {
		return
	}
	p.restore(p.hovered)
	p.hovered = ""
}

// Pick reports the clicked mesh with its world-space center and the
// camera pose at the time of the click.
func (p *Patcher) Pick(name string, at Placement, cam project.Pose) (PickResult, bool) {
	box, ok := p.model.WorldBounds(name, at)
	if !ok {
		return PickResult{}, false
	}
	return PickResult{
		MeshName: name,
		Center:   project.FromV3(box.Center()),
		Camera:   cam,
	}, true
}

// ApplyDisplay tints the focus mesh and every highlighted mesh. All other
// meshes return to their original state. The focus mesh uses color when
// it parses and FocusColor otherwise.
func (p *Patcher) ApplyDisplay(focus string, color project.Color, highlights map[string]project.Color) {
	p.hovered = ""
	for _, mesh := range p.model.Meshes {
		switch c, hl := highlights[mesh.Name]; {
		case focus != "" && mesh.Name == focus:
			mesh.Material = tint(color, FocusColor, FocusIntensity)
		case hl:
			mesh.Material = tint(c, FocusColor, FocusIntensity)
		default:
			mesh.Material = mesh.Original
		}
	}
}

// RestoreAll returns every mesh to its original material.
func (p *Patcher) RestoreAll() {
	p.hovered = ""
	for _, mesh := range p.model.Meshes {
		mesh.Material = mesh.Original
	}
}
