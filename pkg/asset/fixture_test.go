package asset

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// fixtureGLTF is a self-contained glTF document with three meshes:
// "Housing" (node name), "Bolt" (mesh name, child of Housing) and an
// unnamed mesh that falls back to its index.
const fixtureGLTF = `{
  "asset": {"version": "2.0"},
  "scene": 0,
  "scenes": [{"nodes": [0, 2]}],
  "nodes": [
    {"name": "Housing", "mesh": 0, "children": [1]},
    {"mesh": 1, "translation": [4, 0, 0]},
    {"mesh": 2, "translation": [0, 2, 0]}
  ],
  "meshes": [
    {"name": "housingMesh", "primitives": [{"attributes": {"POSITION": 0}, "material": 0}]},
    {"name": "Bolt", "primitives": [{"attributes": {"POSITION": 1}}]},
    {"primitives": [{"attributes": {"POSITION": 1}}]}
  ],
  "accessors": [
    {"componentType": 5126, "count": 8, "type": "VEC3", "min": [-1, -1, -1], "max": [1, 1, 1]},
    {"componentType": 5126, "count": 8, "type": "VEC3", "min": [-0.5, -0.5, -0.5], "max": [0.5, 0.5, 0.5]}
  ],
  "materials": [{"name": "steel", "emissiveFactor": [0.2, 0.1, 0]}]
}`

// fakeFetcher serves fixed payloads and counts calls. When gate is set,
// every fetch blocks until it is closed.
type fakeFetcher struct {
	mu    sync.Mutex
	files map[string][]byte
	gate  chan struct{}
	calls atomic.Int32
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{files: map[string][]byte{
		"https://cdn.example.com/engine.gltf": []byte(fixtureGLTF),
		"https://cdn.example.com/broken.glb":  []byte("glTF\x02\x00\x00\x00garbage"),
	}}
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	f.calls.Add(1)
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.files[url]
	if !ok {
		return nil, fmt.Errorf("fake: 404 %s", url)
	}
	return data, nil
}
