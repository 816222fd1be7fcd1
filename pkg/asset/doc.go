// Package asset acquires external 3D assets for step nodes.
//
// An asset reference is a remote URL, an embedded data URL or a transient
// handle. Data URLs are turned into handles owned by a Scope before the
// loader sees them. The loader decodes each source glTF document once and
// gives every consumer its own deep clone, centered on its origin, whose
// per-mesh emissive state is recorded at clone time so highlights applied
// by a Patcher can be undone exactly.
package asset
