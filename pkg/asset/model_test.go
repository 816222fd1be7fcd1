package asset

import (
	"math"
	"testing"

	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertVec(t *testing.T, want, got v3.Vec) {
	t.Helper()
	assert.InDelta(t, want.X, got.X, 1e-9, "X")
	assert.InDelta(t, want.Y, got.Y, 1e-9, "Y")
	assert.InDelta(t, want.Z, got.Z, 1e-9, "Z")
}

func parseFixture(t *testing.T) *Model {
	t.Helper()
	m, err := Parse("fixture", []byte(fixtureGLTF))
	require.NoError(t, err)
	return m
}

func TestParseMeshNames(t *testing.T) {
	m := parseFixture(t)
	assert.Equal(t, []string{"Housing", "Bolt", "mesh_2"}, m.MeshNames())
	assert.Equal(t, "fixture", m.Source)
	assert.False(t, m.Centered)
}

func TestParseBoundsFollowNodeTransforms(t *testing.T) {
	m := parseFixture(t)

	bolt, ok := m.Mesh("Bolt")
	require.True(t, ok)
	assertVec(t, v3.Vec{X: 3.5, Y: -0.5, Z: -0.5}, bolt.Bounds.Min)
	assertVec(t, v3.Vec{X: 4.5, Y: 0.5, Z: 0.5}, bolt.Bounds.Max)

	assertVec(t, v3.Vec{X: -1, Y: -1, Z: -1}, m.Bounds.Min)
	assertVec(t, v3.Vec{X: 4.5, Y: 2.5, Z: 1}, m.Bounds.Max)
}

func TestParseMaterials(t *testing.T) {
	m := parseFixture(t)
	housing, _ := m.Mesh("Housing")
	assert.Equal(t, Material{Emissive: [3]float64{0.2, 0.1, 0}, Intensity: 1}, housing.Material)
	assert.Equal(t, housing.Material, housing.Original)

	bolt, _ := m.Mesh("Bolt")
	assert.Equal(t, Material{Intensity: 1}, bolt.Material)
}

func TestParseRejectsEmptyAndCorrupt(t *testing.T) {
	_, err := Parse("empty", []byte(`{"asset":{"version":"2.0"},"nodes":[{"name":"lonely"}]}`))
	assert.ErrorIs(t, err, ErrEmptyModel)

	_, err = Parse("corrupt", []byte("glTF\x02\x00\x00\x00garbage"))
	assert.Error(t, err)
}

func TestMeshLookupMiss(t *testing.T) {
	m := parseFixture(t)
	_, ok := m.Mesh("Nope")
	assert.False(t, ok)
	_, ok = m.Mesh("")
	assert.False(t, ok)

	var nilModel *Model
	_, ok = nilModel.Mesh("Bolt")
	assert.False(t, ok)
}

func TestTRSRotation(t *testing.T) {
	// 90 degrees about +Y maps +X onto -Z.
	s := math.Sqrt2 / 2
	m := trs([3]float64{1, 0, 0}, [4]float64{0, s, 0, s}, [3]float64{2, 2, 2})
	got := m.apply(v3.Vec{X: 1})
	assertVec(t, v3.Vec{X: 1, Y: 0, Z: -2}, got)
}

func TestLocalPrefersExplicitMatrix(t *testing.T) {
	matrix := identity()
	matrix[12], matrix[13], matrix[14] = 5, 6, 7
	got := local(matrix, [3]float64{1, 1, 1}, [4]float64{}, [3]float64{})
	assertVec(t, v3.Vec{X: 5, Y: 6, Z: 7}, got.apply(v3.Vec{}))

	got = local(identity(), [3]float64{1, 2, 3}, [4]float64{}, [3]float64{})
	assertVec(t, v3.Vec{X: 1, Y: 2, Z: 3}, got.apply(v3.Vec{}))
}
