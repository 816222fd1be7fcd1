// Package tessellate turns primitive shape kinds into triangle meshes using
// a geometry kernel. Every primitive is tessellated once at unit size and
// shared by all step nodes; placement and scale are applied by the scene.
package tessellate

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/chazu/stepwise/pkg/kernel"
	"github.com/chazu/stepwise/pkg/project"
)

// ErrNotPrimitive is returned for shape kinds without kernel geometry.
var ErrNotPrimitive = errors.New("tessellate: shape kind has no primitive geometry")

// Solid builds the unit-size solid for kind: every primitive fits inside
// the unit cube centered on the origin.
func Solid(k kernel.Kernel, kind project.ShapeKind) (kernel.Solid, error) {
	switch kind {
	case project.ShapeCube:
		return k.Box(1, 1, 1), nil
	case project.ShapeSphere:
		return k.Sphere(0.5), nil
	case project.ShapeCylinder:
		return k.Cylinder(1, 0.5), nil
	case project.ShapeCone:
		return k.Cone(1, 0.5), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrNotPrimitive, kind)
	}
}

// Tessellate produces the triangle mesh for kind. The mesh is named after
// the shape kind.
func Tessellate(k kernel.Kernel, kind project.ShapeKind) (*kernel.Mesh, error) {
	solid, err := Solid(k, kind)
	if err != nil {
		return nil, err
	}
	mesh, err := k.ToMesh(solid)
	if err != nil {
		return nil, fmt.Errorf("tessellate: ToMesh failed for %s: %w", kind, err)
	}
	mesh.Name = string(kind)
	return mesh, nil
}

// Cache tessellates each primitive once. Concurrent requests for the same
// kind share one kernel call. Returned meshes are shared and must be
// treated as read-only.
type Cache struct {
	k      kernel.Kernel
	group  singleflight.Group
	mu     sync.RWMutex
	meshes map[project.ShapeKind]*kernel.Mesh
}

// NewCache returns an empty cache over k.
func NewCache(k kernel.Kernel) *Cache {
	return &Cache{k: k, meshes: make(map[project.ShapeKind]*kernel.Mesh)}
}

// Mesh returns the cached mesh for kind, tessellating it on first use.
func (c *Cache) Mesh(kind project.ShapeKind) (*kernel.Mesh, error) {
	c.mu.RLock()
	m, ok := c.meshes[kind]
	c.mu.RUnlock()
	if ok {
		return m, nil
	}

	v, err, _ := c.group.Do(string(kind), func() (interface{}, error) {
		c.mu.RLock()
		cached, ok := c.meshes[kind]
		c.mu.RUnlock()
		if ok {
			return cached, nil
		}
		mesh, err := Tessellate(c.k, kind)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.meshes[kind] = mesh
		c.mu.Unlock()
		return mesh, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*kernel.Mesh), nil
}

// Warm tessellates every primitive kind in parallel.
func (c *Cache) Warm(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, kind := range project.PrimitiveShapes {
		kind := kind
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			_, err := c.Mesh(kind)
			return err
		})
	}
	return g.Wait()
}

// Bounds returns the cached mesh bounds for kind.
func (c *Cache) Bounds(kind project.ShapeKind) (min, max [3]float64, err error) {
	m, err := c.Mesh(kind)
	if err != nil {
		return min, max, err
	}
	min, max = m.Bounds()
	return min, max, nil
}
