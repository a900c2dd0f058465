package family

// Graph is the raw, untransformed content of one tree: the three flat
// collections as loaded, plus lookup indexes. Collection order is preserved
// because root selection, spouse lookup and child ordering all depend on it.
type Graph struct {
	Tree      Tree
	Persons   []Person
	Edges     []ParentChildEdge
	Marriages []Marriage

	byID        map[int64]int
	byParent    map[int64][]int
	childIDs    map[int64]bool
	firstParent map[int64]int64
}

// NewGraph indexes the collections of one tree. The slices are retained, not
// copied. When two persons share an id the first one wins.
func NewGraph(tree Tree, persons []Person, edges []ParentChildEdge, marriages []Marriage) *Graph {
	g := &Graph{
		Tree:      tree,
		Persons:   persons,
		Edges:     edges,
		Marriages: marriages,
		byID:      make(map[int64]int, len(persons)),
		byParent:  make(map[int64][]int),
		childIDs:  make(map[int64]bool, len(edges)),

		firstParent: make(map[int64]int64),
	}
	for i := range persons {
		if _, dup := g.byID[persons[i].ID]; !dup {
			g.byID[persons[i].ID] = i
		}
	}
	for i, e := range edges {
		g.byParent[e.Parent] = append(g.byParent[e.Parent], i)
		g.childIDs[e.Child] = true
		if _, known := g.byID[e.Parent]; known && e.Parent != e.Child {
			if _, set := g.firstParent[e.Child]; !set {
				g.firstParent[e.Child] = e.Parent
			}
		}
	}
	return g
}

// Empty reports whether the tree has no persons.
func (g *Graph) Empty() bool {
	return g == nil || len(g.Persons) == 0
}

// Person returns the person with the given id.
func (g *Graph) Person(id int64) (*Person, bool) {
	i, ok := g.byID[id]
	if !ok {
		return nil, false
	}
	return &g.Persons[i], true
}

// HasParent reports whether any edge names id as a child. Edges pointing at
// unknown parents still count, matching how the data was recorded.
func (g *Graph) HasParent(id int64) bool {
	return g.childIDs[id]
}

// FirstParent returns the parent named by the first edge, in edge order, that
// links id to a known person other than itself.
func (g *Graph) FirstParent(id int64) (int64, bool) {
	p, ok := g.firstParent[id]
	return p, ok
}

// SpouseOf returns the other side of the first marriage naming id, in
// collection order. Marriages of a person to themselves or to an unknown
// person are skipped.
func (g *Graph) SpouseOf(id int64) (*Person, bool) {
	for _, m := range g.Marriages {
		other, ok := m.Other(id)
		if !ok || other == id {
			continue
		}
		if sp, ok := g.Person(other); ok {
			return sp, true
		}
	}
	return nil, false
}

// MarriageCount returns how many usable marriages name id.
func (g *Graph) MarriageCount(id int64) int {
	n := 0
	for _, m := range g.Marriages {
		if other, ok := m.Other(id); ok && other != id {
			if _, known := g.byID[other]; known {
				n++
			}
		}
	}
	return n
}

// childEdges returns the edges whose parent is one of ids, in edge order.
func (g *Graph) childEdges(ids ...int64) []ParentChildEdge {
	var idx []int
	for _, id := range ids {
		idx = mergeAscending(idx, g.byParent[id])
	}
	out := make([]ParentChildEdge, len(idx))
	for i, j := range idx {
		out[i] = g.Edges[j]
	}
	return out
}

func mergeAscending(a, b []int) []int {
	if len(a) == 0 {
		return append([]int(nil), b...)
	}
	out := make([]int, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if a[i] <= b[j] {
			out = append(out, a[i])
			i++
		} else {
			out = append(out, b[j])
			j++
		}
	}
	out = append(out, a[i:]...)
	return append(out, b[j:]...)
}
