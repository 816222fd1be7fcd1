package tessellate_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/chazu/stepwise/pkg/kernel"
	"github.com/chazu/stepwise/pkg/kernel/sdfx"
	"github.com/chazu/stepwise/pkg/project"
	"github.com/chazu/stepwise/pkg/tessellate"
)

// countingKernel wraps a kernel and counts ToMesh calls.
type countingKernel struct {
	kernel.Kernel
	calls atomic.Int32
}

func (k *countingKernel) ToMesh(s kernel.Solid) (*kernel.Mesh, error) {
	k.calls.Add(1)
	return k.Kernel.ToMesh(s)
}

// newKernel returns a coarse sdfx kernel so tests stay fast.
func newKernel() *countingKernel {
	return &countingKernel{Kernel: sdfx.WithCells(12)}
}

func TestTessellatePrimitives(t *testing.T) {
	k := newKernel()
	for _, kind := range project.PrimitiveShapes {
		t.Run(string(kind), func(t *testing.T) {
			m, err := tessellate.Tessellate(k, kind)
			if err != nil {
				t.Fatalf("Tessellate(%s) error: %v", kind, err)
			}
			if m.IsEmpty() {
				t.Fatalf("Tessellate(%s) produced an empty mesh", kind)
			}
			if m.Name != string(kind) {
				t.Errorf("Name = %q, want %q", m.Name, kind)
			}
			min, max := m.Bounds()
			for i := 0; i < 3; i++ {
				if min[i] < -0.55 || max[i] > 0.55 {
					t.Errorf("axis %d bounds [%f, %f] exceed the unit cube", i, min[i], max[i])
				}
			}
		})
	}
}

func TestTessellateCustomRejected(t *testing.T) {
	_, err := tessellate.Tessellate(newKernel(), project.ShapeCustom)
	if !errors.Is(err, tessellate.ErrNotPrimitive) {
		t.Fatalf("error = %v, want ErrNotPrimitive", err)
	}
}

func TestCacheTessellatesOnce(t *testing.T) {
	k := newKernel()
	c := tessellate.NewCache(k)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Mesh(project.ShapeCube); err != nil {
				t.Errorf("Mesh error: %v", err)
			}
		}()
	}
	wg.Wait()

	a, _ := c.Mesh(project.ShapeCube)
	b, _ := c.Mesh(project.ShapeCube)
	if a != b {
		t.Error("cache returned different meshes for the same kind")
	}
	if n := k.calls.Load(); n != 1 {
		t.Errorf("ToMesh called %d times, want 1", n)
	}
}

func TestCacheWarm(t *testing.T) {
	k := newKernel()
	c := tessellate.NewCache(k)
	if err := c.Warm(context.Background()); err != nil {
		t.Fatalf("Warm error: %v", err)
	}
	if n := k.calls.Load(); n != int32(len(project.PrimitiveShapes)) {
		t.Errorf("ToMesh called %d times, want %d", n, len(project.PrimitiveShapes))
	}
	if _, _, err := c.Bounds(project.ShapeSphere); err != nil {
		t.Errorf("Bounds error: %v", err)
	}
}
