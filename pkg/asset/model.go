package asset

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/qmuntal/gltf"
)

// ErrEmptyModel is returned for documents without any renderable mesh.
var ErrEmptyModel = errors.New("asset: model has no meshes")

// Material is the emissive state of a mesh.
type Material struct {
	Emissive  [3]float64 `json:"emissive"`
	Intensity float64    `json:"intensity"`
}

// Mesh is one named, independently highlightable part of a model. Bounds
// are in model space.
type Mesh struct {
	Name     string   `json:"name"`
	Bounds   sdf.Box3 `json:"-"`
	Material Material `json:"material"`
	Original Material `json:"original"`
}

// Model is a decoded asset reduced to what framing and highlighting need.
type Model struct {
	Source   string   `json:"source"`
	Meshes   []*Mesh  `json:"meshes"`
	Bounds   sdf.Box3 `json:"-"`
	Offset   v3.Vec   `json:"offset"`
	Centered bool     `json:"centered"`
}

// Decode reads a binary or JSON glTF document.
func Decode(r io.Reader) (*gltf.Document, error) {
	doc := new(gltf.Document)
	if err := gltf.NewDecoder(r).Decode(doc); err != nil {
		return nil, fmt.Errorf("asset: decode gltf: %w", err)
	}
	return doc, nil
}

// Parse decodes data and builds its model.
func Parse(source string, data []byte) (*Model, error) {
	doc, err := Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	m, err := FromDocument(doc)
	if err != nil {
		return nil, err
	}
	m.Source = source
	return m, nil
}

// FromDocument walks the default scene and collects one Mesh per node that
// references a mesh. Bounds come from the POSITION accessor min/max
// transformed into model space.
func FromDocument(doc *gltf.Document) (*Model, error) {
	model := &Model{}
	visited := make(map[int]bool, len(doc.Nodes))

	var walk func(idx int, parent mat4)
	walk = func(idx int, parent mat4) {
		if idx < 0 || idx >= len(doc.Nodes) || visited[idx] {
			return
		}
		visited[idx] = true
		n := doc.Nodes[idx]
		world := parent.mul(local(n.Matrix, n.Translation, n.Rotation, n.Scale))

		if n.Mesh != nil {
			if mesh, ok := buildMesh(doc, n.Name, int(*n.Mesh), world); ok {
				model.Meshes = append(model.Meshes, mesh)
			}
		}
		for _, child := range n.Children {
			walk(int(child), world)
		}
	}
	for _, root := range sceneRoots(doc) {
		walk(root, identity())
	}

	if len(model.Meshes) == 0 {
		return nil, ErrEmptyModel
	}
	model.Bounds = model.Meshes[0].Bounds
	for _, m := range model.Meshes[1:] {
		model.Bounds = union(model.Bounds, m.Bounds)
	}
	return model, nil
}

// sceneRoots returns the root nodes of the default scene, falling back to
// the first scene and then to every parentless node.
func sceneRoots(doc *gltf.Document) []int {
	if len(doc.Scenes) > 0 {
		i := 0
		if doc.Scene != nil && int(*doc.Scene) < len(doc.Scenes) {
			i = int(*doc.Scene)
		}
		roots := make([]int, 0, len(doc.Scenes[i].Nodes))
		for _, n := range doc.Scenes[i].Nodes {
			roots = append(roots, int(n))
		}
		return roots
	}
	child := make(map[int]bool)
	for _, n := range doc.Nodes {
		for _, c := range n.Children {
			child[int(c)] = true
		}
	}
	var roots []int
	for i := range doc.Nodes {
		if !child[i] {
			roots = append(roots, i)
		}
	}
	return roots
}

func buildMesh(doc *gltf.Document, nodeName string, meshIdx int, world mat4) (*Mesh, bool) {
	if meshIdx < 0 || meshIdx >= len(doc.Meshes) {
		return nil, false
	}
	gm := doc.Meshes[meshIdx]

	name := nodeName
	if name == "" {
		name = gm.Name
	}
	if name == "" {
		name = fmt.Sprintf("mesh_%d", meshIdx)
	}

	out := &Mesh{Name: name, Material: Material{Intensity: 1}}
	found := false
	for i, prim := range gm.Primitives {
		if i == 0 && prim.Material != nil && int(*prim.Material) < len(doc.Materials) {
			out.Material.Emissive = doc.Materials[*prim.Material].EmissiveFactor
		}
		pos, ok := prim.Attributes["POSITION"]
		if !ok || int(pos) >= len(doc.Accessors) {
			continue
		}
		acc := doc.Accessors[pos]
		if len(acc.Min) < 3 || len(acc.Max) < 3 {
			continue
		}
		b := world.box(sdf.Box3{
			Min: v3.Vec{X: acc.Min[0], Y: acc.Min[1], Z: acc.Min[2]},
			Max: v3.Vec{X: acc.Max[0], Y: acc.Max[1], Z: acc.Max[2]},
		})
		if !found {
			out.Bounds = b
			found = true
		} else {
			out.Bounds = union(out.Bounds, b)
		}
	}
	out.Original = out.Material
	return out, found
}

// Mesh returns the first mesh with the given name.
func (m *Model) Mesh(name string) (*Mesh, bool) {
	if m == nil || name == "" {
		return nil, false
	}
	for _, mesh := range m.Meshes {
		if mesh.Name == name {
			return mesh, true
		}
	}
	return nil, false
}

// MeshNames returns the mesh names in traversal order.
func (m *Model) MeshNames() []string {
	names := make([]string, len(m.Meshes))
	for i, mesh := range m.Meshes {
		names[i] = mesh.Name
	}
	return names
}
