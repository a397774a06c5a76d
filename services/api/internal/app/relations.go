package app

// RelationGraph tracks which units were added on behalf of which origin
// unit. Every node has at most one parent, so the graph is a forest.
type RelationGraph struct {
	parent   map[string]string
	children map[string][]string
}

func NewRelationGraph() *RelationGraph {
	return &RelationGraph{
		parent:   make(map[string]string),
		children: make(map[string][]string),
	}
}

// Add records child -> origin. It refuses self edges, a second parent, and
// any edge that would make origin a descendant of child.
func (g *RelationGraph) Add(child, origin string) bool {
	if child == "" || origin == "" || child == origin {
		return false
	}
	if _, ok := g.parent[child]; ok {
		return false
	}
	for cur, ok := origin, true; ok; cur, ok = g.parent[cur] {
		if cur == child {
			return false
		}
	}
	g.parent[child] = origin
	g.children[origin] = append(g.children[origin], child)
	return true
}

// Parent returns the origin a unit was added for.
func (g *RelationGraph) Parent(id string) (string, bool) {
	p, ok := g.parent[id]
	return p, ok
}

// Descendants walks the whole subtree below root breadth first. Nodes for
// which keep returns true are left out of the result but still walked.
func (g *RelationGraph) Descendants(root string, keep func(id string) bool) []string {
	visited := map[string]struct{}{root: {}}
	queue := append([]string(nil), g.children[root]...)
	var out []string
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if _, seen := visited[id]; seen {
			continue
		}
		visited[id] = struct{}{}
		queue = append(queue, g.children[id]...)
		if keep == nil || !keep(id) {
			out = append(out, id)
		}
	}
	return out
}

// Remove detaches id from its parent and orphans its children.
func (g *RelationGraph) Remove(id string) {
	if p, ok := g.parent[id]; ok {
		siblings := g.children[p]
		for i, c := range siblings {
			if c == id {
				siblings = append(siblings[:i], siblings[i+1:]...)
				break
			}
		}
		if len(siblings) == 0 {
			delete(g.children, p)
		} else {
			g.children[p] = siblings
		}
		delete(g.parent, id)
	}
	for _, c := range g.children[id] {
		delete(g.parent, c)
	}
	delete(g.children, id)
}

func (g *RelationGraph) Len() int {
	return len(g.parent)
}

func (g *RelationGraph) Reset() {
	clear(g.parent)
	clear(g.children)
}
