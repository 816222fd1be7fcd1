package asset

import (
	"testing"

	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCloneCentersOnce(t *testing.T) {
	src := parseFixture(t)
	c, err := Clone(src)
	require.NoError(t, err)

	assert.True(t, c.Centered)
	assertVec(t, v3.Vec{}, c.Bounds.Center())
	assertVec(t, v3.Vec{X: -1.75, Y: -0.75}, c.Offset)

	bolt, _ := c.Mesh("Bolt")
	assertVec(t, v3.Vec{X: 2.25, Y: -0.75}, bolt.Bounds.Center())

	c.Center()
	assertVec(t, v3.Vec{X: 2.25, Y: -0.75}, bolt.Bounds.Center())

	// The source is untouched.
	assert.False(t, src.Centered)
	srcBolt, _ := src.Mesh("Bolt")
	assertVec(t, v3.Vec{X: 4}, srcBolt.Bounds.Center())
}

func TestCloneIndependence(t *testing.T) {
	src := parseFixture(t)
	a, err := Clone(src)
	require.NoError(t, err)
	b, err := Clone(src)
	require.NoError(t, err)

	NewPatcher(a).ApplyDisplay("Housing", "#00ff00", nil)

	ah, _ := a.Mesh("Housing")
	bh, _ := b.Mesh("Housing")
	sh, _ := src.Mesh("Housing")
	assert.Equal(t, [3]float64{0, 1, 0}, ah.Material.Emissive)
	assert.Equal(t, [3]float64{0.2, 0.1, 0}, bh.Material.Emissive)
	assert.Equal(t, [3]float64{0.2, 0.1, 0}, sh.Material.Emissive)
	assert.NotSame(t, ah, bh)
}

func TestCloneRecordsCurrentMaterialAsOriginal(t *testing.T) {
	src := parseFixture(t)
	bolt, _ := src.Mesh("Bolt")
	bolt.Material = Material{Emissive: [3]float64{0, 0, 1}, Intensity: 0.5}

	c, err := Clone(src)
	require.NoError(t, err)
	cb, _ := c.Mesh("Bolt")
	assert.Equal(t, bolt.Material, cb.Original)
}
