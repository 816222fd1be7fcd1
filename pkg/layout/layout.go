// Package layout projects authored 2D graph-editor positions into 3D world
// positions. Two strategies share the Projector interface: Authored, which
// follows the editor's layout, and Hierarchical, which layers steps by their
// depth in the connection graph.
package layout

import (
	"fmt"
	"math"

	"github.com/chazu/stepwise/pkg/graph"
	"github.com/chazu/stepwise/pkg/project"
)

const (
	// ScaleFactor converts authored editor units into world units.
	ScaleFactor = 0.05
	// FallbackSpacing separates steps along +X when nothing is authored.
	FallbackSpacing = 4.0

	LevelSpacing   = 4.0
	SiblingSpacing = 4.0
)

// Strategy names accepted by ForStrategy.
const (
	StrategyAuthored     = "authored"
	StrategyHierarchical = "hierarchical"
)

// Positions2D maps step ids to authored editor positions.
type Positions2D map[string]project.Vec2

// Positions3D maps step ids to world positions.
type Positions3D map[string]project.Vec3

// Projector maps steps and their authored positions into world space.
// Implementations are pure: identical inputs give identical outputs.
type Projector interface {
	Project(steps []project.Step, positions Positions2D) Positions3D
}

// Authored centers the bounding rectangle of the authored positions on the
// origin and scales it onto the ground plane. 2D-X maps to X, 2D-Y to Z.
type Authored struct {
	Scale   float64
	Spacing float64
}

// NewAuthored returns the default authored projector.
func NewAuthored() Authored {
	return Authored{Scale: ScaleFactor, Spacing: FallbackSpacing}
}

// Project implements Projector.
func (a Authored) Project(steps []project.Step, positions Positions2D) Positions3D {
	out := make(Positions3D, len(steps))

	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	authored := false
	for _, s := range steps {
		p, ok := positions[s.ID]
		if !ok {
			continue
		}
		authored = true
		minX, maxX = math.Min(minX, p.X), math.Max(maxX, p.X)
		minY, maxY = math.Min(minY, p.Y), math.Max(maxY, p.Y)
	}

	if !authored {
		for i, s := range steps {
			out[s.ID] = project.Vec3{X: float64(i) * a.Spacing}
		}
		return out
	}

	cx, cy := (minX+maxX)/2, (minY+maxY)/2
	for _, s := range steps {
		p, ok := positions[s.ID]
		if !ok {
			out[s.ID] = project.Vec3{}
			continue
		}
		out[s.ID] = project.Vec3{
			X: (p.X - cx) * a.Scale,
			Z: (p.Y - cy) * a.Scale,
		}
	}
	return out
}

// Hierarchical ignores authored positions and layers steps by flow depth.
// Depth d lands at Z = -d*LevelSpacing; steps sharing a depth are spread
// symmetrically along X in document order.
type Hierarchical struct {
	Connections    []project.Connection
	LevelSpacing   float64
	SiblingSpacing float64
}

// NewHierarchical returns a hierarchical projector over conns.
func NewHierarchical(conns []project.Connection) Hierarchical {
	return Hierarchical{
		Connections:    conns,
		LevelSpacing:   LevelSpacing,
		SiblingSpacing: SiblingSpacing,
	}
}

// Project implements Projector.
func (h Hierarchical) Project(steps []project.Step, _ Positions2D) Positions3D {
	flow := graph.New(steps, h.Connections)
	depths := flow.Depths()

	levels := make(map[int][]string)
	for _, id := range flow.Order() {
		d := depths[id]
		levels[d] = append(levels[d], id)
	}

	out := make(Positions3D, len(steps))
	for d, ids := range levels {
		width := float64(len(ids)-1) * h.SiblingSpacing
		for i, id := range ids {
			out[id] = project.Vec3{
				X: float64(i)*h.SiblingSpacing - width/2,
				Z: -float64(d) * h.LevelSpacing,
			}
		}
	}
	return out
}

// ForStrategy returns the projector named by strategy for p. An empty name
// selects the authored strategy.
func ForStrategy(strategy string, p project.Project) (Projector, error) {
	switch strategy {
	case "", StrategyAuthored:
		return NewAuthored(), nil
	case StrategyHierarchical:
		return NewHierarchical(p.ValidConnections()), nil
	default:
		return nil, fmt.Errorf("layout: unknown strategy %q", strategy)
	}
}
