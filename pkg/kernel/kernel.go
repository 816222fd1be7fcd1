// Package kernel defines the abstract geometry kernel interface used to
// produce the primitive step shapes. The sdfx subpackage provides the
// implementation; the abstraction keeps the scene code independent of it.
package kernel

// Solid is an opaque handle to a geometry kernel solid.
// Implementations wrap their internal representation.
type Solid interface {
	// BoundingBox returns the axis-aligned bounding box.
	BoundingBox() (min, max [3]float64)
}

// Kernel is the abstract geometry kernel interface. Every primitive is
// centered on the origin with +Y as its axis of symmetry.
type Kernel interface {
	// Primitives
	Box(x, y, z float64) Solid
	Sphere(radius float64) Solid
	Cylinder(height, radius float64) Solid
	Cone(height, radius float64) Solid

	// Transforms
	Translate(s Solid, x, y, z float64) Solid

	// Mesh output
	ToMesh(s Solid) (*Mesh, error)
}
