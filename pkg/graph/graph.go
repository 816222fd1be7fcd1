package graph

import "github.com/chazu/stepwise/pkg/project"

// Flow is a read-only adjacency view over a project's steps and valid
// connections. It is rebuilt on every use; it is never mutated in place.
type Flow struct {
	order []string
	index map[string]int
	out   map[string][]string
	in    map[string]int
}

// New builds the flow graph. Connections whose endpoints are missing are
// ignored.
func New(steps []project.Step, conns []project.Connection) *Flow {
	f := &Flow{
		order: make([]string, 0, len(steps)),
		index: make(map[string]int, len(steps)),
		out:   make(map[string][]string, len(steps)),
		in:    make(map[string]int, len(steps)),
	}
	for _, s := range steps {
		if _, dup := f.index[s.ID]; dup {
			continue
		}
		f.index[s.ID] = len(f.order)
		f.order = append(f.order, s.ID)
	}
	for _, c := range conns {
		if !f.Has(c.Source) || !f.Has(c.Target) {
			continue
		}
		f.out[c.Source] = append(f.out[c.Source], c.Target)
		f.in[c.Target]++
	}
	return f
}

// FromProject builds the flow graph of p.
func FromProject(p project.Project) *Flow {
	return New(p.Steps, p.Connections)
}

// Has reports whether id is a node.
func (f *Flow) Has(id string) bool {
	_, ok := f.index[id]
	return ok
}

// Len returns the number of nodes.
func (f *Flow) Len() int {
	return len(f.order)
}

// Order returns the node ids in document order.
func (f *Flow) Order() []string {
	return append([]string(nil), f.order...)
}

// Children returns the direct successors of id.
func (f *Flow) Children(id string) []string {
	return append([]string(nil), f.out[id]...)
}

// Roots returns the nodes without incoming edges, in document order. When
// every node has an incoming edge the first node is used as the root.
func (f *Flow) Roots() []string {
	var roots []string
	for _, id := range f.order {
		if f.in[id] == 0 {
			roots = append(roots, id)
		}
	}
	if len(roots) == 0 && len(f.order) > 0 {
		roots = []string{f.order[0]}
	}
	return roots
}

// Depths assigns every node a layer via breadth-first traversal from the
// roots. A node reachable along several paths takes the maximum depth seen,
// so long alternate paths push it further down. Depth is capped at Len()-1,
// which stops the relaxation from circling inside a cycle. Nodes that are
// never reached get depth zero.
func (f *Flow) Depths() map[string]int {
	depth := make(map[string]int, len(f.order))
	limit := len(f.order) - 1

	queue := make([]string, 0, len(f.order))
	for _, r := range f.Roots() {
		depth[r] = 0
		queue = append(queue, r)
	}
	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]
		for _, v := range f.out[u] {
			nd := depth[u] + 1
			if nd > limit {
				continue
			}
			if cur, seen := depth[v]; seen && cur >= nd {
				continue
			}
			depth[v] = nd
			queue = append(queue, v)
		}
	}
	for _, id := range f.order {
		if _, ok := depth[id]; !ok {
			depth[id] = 0
		}
	}
	return depth
}

// FindCycle returns a node that lies on a cycle, using DFS with 3-color
// marking. White = unvisited, gray = on the current path, black = done.
func (f *Flow) FindCycle() (string, bool) {
	const (
		white = iota
		gray
		black
	)
	color := make(map[string]int, len(f.order))

	var found string
	var visit func(id string) bool
	visit = func(id string) bool {
		switch color[id] {
		case black:
			return false
		case gray:
			found = id
			return true
		}
		color[id] = gray
		for _, next := range f.out[id] {
			if visit(next) {
				return true
			}
		}
		color[id] = black
		return false
	}

	for _, id := range f.order {
		if color[id] == white && visit(id) {
			return found, true
		}
	}
	return "", false
}
