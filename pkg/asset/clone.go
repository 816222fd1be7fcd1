package asset

import (
	"fmt"

	"github.com/jinzhu/copier"
)

// Clone returns an independently mutable deep copy of src. Each mesh's
// current material is recorded as its original, and the clone is centered
// on its own origin.
func Clone(src *Model) (*Model, error) {
	dst := new(Model)
	if err := copier.CopyWithOption(dst, src, copier.Option{DeepCopy: true}); err != nil {
		return nil, fmt.Errorf("asset: clone %s: %w", src.Source, err)
	}
	for _, m := range dst.Meshes {
		m.Original = m.Material
	}
	dst.Center()
	return dst, nil
}

// Center translates the model so its bounding box center sits at the
// origin. It runs at most once per model.
func (m *Model) Center() {
	if m.Centered {
		return
	}
	d := m.Bounds.Center().MulScalar(-1)
	for _, mesh := range m.Meshes {
		mesh.Bounds = shift(mesh.Bounds, d)
	}
	m.Bounds = shift(m.Bounds, d)
	m.Offset = d
	m.Centered = true
}
