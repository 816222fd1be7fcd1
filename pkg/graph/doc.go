// Package graph builds the flow graph of a project: steps are nodes,
// connections are directed edges. It provides the traversal used by the
// hierarchical layout and the structural validation of a project document.
package graph
