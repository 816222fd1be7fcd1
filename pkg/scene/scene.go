// Package scene builds the renderable description of a project: one node
// per step at its projected position and one styled curve per valid
// connection. The builder is pure apart from asking the asset layer for
// the load state of asset-based nodes.
package scene

import (
	"fmt"
	"math"

	"github.com/chazu/stepwise/pkg/layout"
	"github.com/chazu/stepwise/pkg/logger"
	"github.com/chazu/stepwise/pkg/project"
)

// NodeState describes what a node currently renders.
type NodeState string

const (
	StateReady   NodeState = "ready"   // primitive or loaded asset
	StateLoading NodeState = "loading" // wireframe placeholder
	StateFailed  NodeState = "failed"  // error placeholder
	StateAnchor  NodeState = "anchor"  // no geometry, upload projects
)

// Placeholder appearance.
const (
	LoadingColor   project.Color = "#888888"
	FailedColor    project.Color = "#ff4d4f"
	FailedOpacity                = 0.5
	OutlineScale                 = 1.12
	outlineOpacity               = 0.25
	outlinePulse                 = 0.1
	outlineFreq                  = 3
)

// Outline is the pulsing translucent shell drawn around the active
// primitive step.
type Outline struct {
	Shape   project.ShapeKind `json:"shape"`
	Scale   float64           `json:"scale"`
	Opacity float64           `json:"opacity"`
}

// Node is one step in the scene.
type Node struct {
	StepID    string            `json:"stepId"`
	Title     string            `json:"title"`
	Position  project.Vec3      `json:"position"`
	Scale     float64           `json:"scale"`
	Shape     project.ShapeKind `json:"shape"`
	Asset     string            `json:"asset,omitempty"`
	Color     project.Color     `json:"color"`
	Opacity   float64           `json:"opacity"`
	Wireframe bool              `json:"wireframe,omitempty"`
	Active    bool              `json:"active"`
	State     NodeState         `json:"state"`
	Outline   *Outline          `json:"outline,omitempty"`
	Error     string            `json:"error,omitempty"`
}

// Marker is a primitive drawn above a connection's apex.
type Marker struct {
	Shape    project.ShapeKind `json:"shape"`
	Position project.Vec3      `json:"position"`
}

// Curve is one rendered connection.
type Curve struct {
	ConnectionID string                  `json:"connectionId"`
	Source       string                  `json:"source"`
	Target       string                  `json:"target"`
	Style        project.ConnectionStyle `json:"style"`
	Points       []project.Vec3          `json:"points"`
	Color        project.Color           `json:"color"`
	Opacity      float64                 `json:"opacity"`
	Emissive     float64                 `json:"emissive"`
	Glow         bool                    `json:"glow"`
	GlowOpacity  float64                 `json:"glowOpacity,omitempty"`
	Active       bool                    `json:"active"`
	Description  string                  `json:"description,omitempty"`
	Marker       *Marker                 `json:"marker,omitempty"`
}

// Backdrop is the shared asset of an upload project, drawn once at the
// origin.
type Backdrop struct {
	Asset string    `json:"asset"`
	State NodeState `json:"state"`
	Error string    `json:"error,omitempty"`
}

// Scene is the full renderable description.
type Scene struct {
	Nodes    []Node    `json:"nodes"`
	Curves   []Curve   `json:"curves"`
	Backdrop *Backdrop `json:"backdrop,omitempty"`
	Active   string    `json:"active,omitempty"`
	Elapsed  float64   `json:"elapsed"`
}

// Node returns the node for stepID.
func (s *Scene) Node(stepID string) (Node, bool) {
	for _, n := range s.Nodes {
		if n.StepID == stepID {
			return n, true
		}
	}
	return Node{}, false
}

// Curve returns the curve for a connection id.
func (s *Scene) Curve(id string) (Curve, bool) {
	for _, c := range s.Curves {
		if c.ConnectionID == id {
			return c, true
		}
	}
	return Curve{}, false
}

// Assets reports the load state of an asset reference for a consumer key,
// starting the load if needed. A non-nil error accompanies StateFailed.
type Assets interface {
	Status(key, ref string) (NodeState, error)
}

// BackdropKey is the consumer key of an upload project's shared asset.
const BackdropKey = "__backdrop__"

// Input is everything one build needs.
type Input struct {
	Project   project.Project
	Positions layout.Positions3D
	Active    string  // selected step id, may be empty
	Elapsed   float64 // seconds, drives pulses
}

// Builder constructs scenes.
type Builder struct {
	assets Assets
	log    *logger.Logger
}

// NewBuilder returns a builder. assets may be nil when no step is
// asset-based.
func NewBuilder(assets Assets, log *logger.Logger) *Builder {
	if log == nil {
		log = logger.Nop()
	}
	return &Builder{assets: assets, log: log}
}

// Build produces the scene for in. Connections with a missing endpoint are
// skipped. A failure while building one node turns only that node into an
// error placeholder.
func (b *Builder) Build(in Input) Scene {
	p := in.Project
	sc := Scene{
		Nodes:   make([]Node, 0, len(p.Steps)),
		Curves:  []Curve{},
		Active:  in.Active,
		Elapsed: in.Elapsed,
	}

	upload := p.Kind == project.KindUpload
	if upload {
		sc.Backdrop = b.backdrop(p.Asset)
	}
	for _, step := range p.Steps {
		sc.Nodes = append(sc.Nodes, b.safeNode(p, step, in, upload))
	}
	for _, c := range p.ValidConnections() {
		sc.Curves = append(sc.Curves, b.curve(c, in))
	}
	return sc
}

func (b *Builder) backdrop(ref string) *Backdrop {
	bd := &Backdrop{Asset: ref, State: StateFailed}
	if ref == "" {
		bd.Error = "upload project has no asset"
		return bd
	}
	if b.assets == nil {
		bd.Error = "no asset loader"
		return bd
	}
	state, err := b.assets.Status(BackdropKey, ref)
	bd.State = state
	if err != nil {
		bd.Error = err.Error()
	}
	return bd
}

// safeNode isolates each node: a panic becomes an error placeholder.
func (b *Builder) safeNode(p project.Project, step project.Step, in Input, upload bool) (n Node) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("scene node construction failed", "step", step.ID, "project", p.ID, "panic", r)
			n = failedNode(step, in.Positions[step.ID], fmt.Sprint(r))
			n.Active = step.ID == in.Active
		}
	}()
	return b.node(p, step, in, upload)
}

func (b *Builder) node(p project.Project, step project.Step, in Input, upload bool) Node {
	n := Node{
		StepID:   step.ID,
		Title:    step.Title,
		Position: in.Positions[step.ID],
		Scale:    step.UniformScale(),
		Shape:    step.Shape,
		Color:    step.Color,
		Opacity:  1,
		Active:   step.ID == in.Active,
		State:    StateReady,
	}

	switch {
	case upload:
		n.State = StateAnchor
		n.Shape = project.ShapeCustom
		n.Asset = p.Asset
	case step.Shape.IsPrimitive():
		if n.Active {
			n.Outline = &Outline{
				Shape:   step.Shape,
				Scale:   OutlineScale * n.Scale,
				Opacity: outlineOpacity + outlinePulse*math.Sin(outlineFreq*in.Elapsed),
			}
		}
	case step.Shape == project.ShapeCustom:
		ref := p.AssetFor(step)
		n.Asset = ref
		if ref == "" {
			return failedNode(step, n.Position, "custom step has no asset")
		}
		if b.assets == nil {
			return failedNode(step, n.Position, "no asset loader")
		}
		state, err := b.assets.Status(step.ID, ref)
		switch state {
		case StateLoading:
			n.State = StateLoading
			n.Wireframe = true
			n.Color = LoadingColor
		case StateFailed:
			msg := "asset failed to load"
			if err != nil {
				msg = err.Error()
			}
			failed := failedNode(step, n.Position, msg)
			failed.Active = n.Active
			failed.Asset = ref
			return failed
		}
	default:
		return failedNode(step, n.Position, fmt.Sprintf("unknown shape kind %q", step.Shape))
	}
	return n
}

// failedNode is the translucent error placeholder, drawn as a cube.
func failedNode(step project.Step, pos project.Vec3, msg string) Node {
	return Node{
		StepID:   step.ID,
		Title:    step.Title,
		Position: pos,
		Scale:    step.UniformScale(),
		Shape:    project.ShapeCube,
		Color:    FailedColor,
		Opacity:  FailedOpacity,
		State:    StateFailed,
		Error:    msg,
	}
}

func (b *Builder) curve(c project.Connection, in Input) Curve {
	from := in.Positions[c.Source]
	to := in.Positions[c.Target]
	active := c.Touches(in.Active)
	st := StyleFor(c.Style)

	cv := Curve{
		ConnectionID: c.ID,
		Source:       c.Source,
		Target:       c.Target,
		Style:        st.Name,
		Points:       bezier(from, to, CurveSegments),
		Color:        st.ColorFor(active),
		Opacity:      st.Pulse(in.Elapsed, active),
		Emissive:     st.Emissive,
		Glow:         st.GlowShell,
		Active:       active,
		Description:  c.Description,
	}
	if cv.Glow {
		cv.GlowOpacity = cv.Opacity * 0.5
	}
	if c.Marker.IsPrimitive() {
		pos := apex(from, to)
		pos.Y += MarkerLift
		cv.Marker = &Marker{Shape: c.Marker, Position: pos}
	}
	return cv
}
