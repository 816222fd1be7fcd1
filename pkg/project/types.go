// Package project defines the instructional-guide document: steps, the
// connections between them, the curated guide order and the authored 2D
// layout, together with the in-memory edit store that owns it.
package project

import "time"

// Kind distinguishes projects built from primitive shapes from projects
// that share a single uploaded asset across every step.
type Kind string

const (
	KindBuilder Kind = "builder"
	KindUpload  Kind = "upload"
)

// ShapeKind is the visual representation of a step.
type ShapeKind string

const (
	ShapeCube     ShapeKind = "cube"
	ShapeSphere   ShapeKind = "sphere"
	ShapeCylinder ShapeKind = "cylinder"
	ShapeCone     ShapeKind = "cone"
	ShapeCustom   ShapeKind = "custom"
)

// PrimitiveShapes lists the closed primitive family in display order.
var PrimitiveShapes = []ShapeKind{ShapeCube, ShapeSphere, ShapeCylinder, ShapeCone}

// IsPrimitive reports whether k is one of the primitive shapes.
func (k ShapeKind) IsPrimitive() bool {
	switch k {
	case ShapeCube, ShapeSphere, ShapeCylinder, ShapeCone:
		return true
	}
	return false
}

// ConnectionStyle selects the visual treatment of a connection curve.
type ConnectionStyle string

const (
	StyleStandard ConnectionStyle = "standard"
	StyleGlass    ConnectionStyle = "glass"
	StyleGlow     ConnectionStyle = "glow"
	StyleNeon     ConnectionStyle = "neon"
)

// Known reports whether s is one of the four defined styles.
func (s ConnectionStyle) Known() bool {
	switch s {
	case StyleStandard, StyleGlass, StyleGlow, StyleNeon:
		return true
	}
	return false
}

// Pose is a camera eye position plus look-at target.
type Pose struct {
	Eye    Vec3 `json:"eye"`
	LookAt Vec3 `json:"lookAt"`
}

// Step is one stop in the instructional flow.
type Step struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Color       Color     `json:"color"`
	Shape       ShapeKind `json:"shape"`
	Asset       string    `json:"asset,omitempty"` // URL, data: URL or blob: handle
	Scale       float64   `json:"scale,omitempty"`
	Camera      *Pose     `json:"camera,omitempty"`
	FocusMesh   string    `json:"focusMesh,omitempty"`
	FocusPoint  *Vec3     `json:"focusPoint,omitempty"`
}

// IsAssetBased reports whether the step renders an external asset rather
// than a primitive shape.
func (s Step) IsAssetBased() bool {
	return s.Shape == ShapeCustom
}

// UniformScale returns the step's scale factor, treating zero as 1.
func (s Step) UniformScale() float64 {
	if s.Scale <= 0 {
		return 1
	}
	return s.Scale
}

// Connection is a directed edge between two steps.
type Connection struct {
	ID          string          `json:"id"`
	Source      string          `json:"source"`
	Target      string          `json:"target"`
	Style       ConnectionStyle `json:"style,omitempty"`
	Description string          `json:"description,omitempty"`
	Marker      ShapeKind       `json:"marker,omitempty"` // empty = no marker
}

// Touches reports whether either endpoint is the given step.
func (c Connection) Touches(stepID string) bool {
	return stepID != "" && (c.Source == stepID || c.Target == stepID)
}

// GuideStep is a curated reference to a step used for linear playback.
type GuideStep struct {
	ID     string `json:"id"`
	StepID string `json:"stepId"`
}

// Project is the aggregate root.
type Project struct {
	ID          string          `json:"id,omitempty"`
	Name        string          `json:"name"`
	Kind        Kind            `json:"kind"`
	Asset       string          `json:"asset,omitempty"` // shared asset for KindUpload
	Steps       []Step          `json:"steps"`
	Connections []Connection    `json:"connections"`
	Guide       []GuideStep     `json:"guide,omitempty"`
	Layout      map[string]Vec2 `json:"layout,omitempty"`
	UpdatedAt   time.Time       `json:"updatedAt,omitempty"`
}

// New returns an empty project of the given kind.
func New(name string, kind Kind) Project {
	if kind == "" {
		kind = KindBuilder
	}
	return Project{
		Name:        name,
		Kind:        kind,
		Steps:       []Step{},
		Connections: []Connection{},
		Layout:      map[string]Vec2{},
	}
}

// Step returns the step with the given id.
func (p *Project) Step(id string) (Step, bool) {
	if i := p.stepIndex(id); i >= 0 {
		return p.Steps[i], true
	}
	return Step{}, false
}

// AssetFor returns the asset reference a step renders: the shared asset
// for upload projects, the step's own reference otherwise.
func (p *Project) AssetFor(s Step) string {
	if p.Kind == KindUpload {
		return p.Asset
	}
	return s.Asset
}

func (p *Project) stepIndex(id string) int {
	for i := range p.Steps {
		if p.Steps[i].ID == id {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy that shares no mutable state with p.
func (p Project) Clone() Project {
	out := p
	out.Steps = make([]Step, len(p.Steps))
	for i, s := range p.Steps {
		if s.Camera != nil {
			c := *s.Camera
			s.Camera = &c
		}
		if s.FocusPoint != nil {
			fp := *s.FocusPoint
			s.FocusPoint = &fp
		}
		out.Steps[i] = s
	}
	out.Connections = append([]Connection(nil), p.Connections...)
	if out.Connections == nil {
		out.Connections = []Connection{}
	}
	if p.Guide != nil {
		out.Guide = append([]GuideStep(nil), p.Guide...)
	}
	out.Layout = make(map[string]Vec2, len(p.Layout))
	for k, v := range p.Layout {
		out.Layout[k] = v
	}
	return out
}
