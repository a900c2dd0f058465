package family

import (
	"fmt"
	"slices"

	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// Diagnostics collects data problems that the builder tolerates silently.
type Diagnostics struct {
	// FallbackRoot is set when every person had a parent.
	FallbackRoot bool `json:"fallback_root,omitempty"`

	// Cycles are the strongly connected groups of the parent-child graph,
	// each sorted by id. Self-parenting persons appear as single-element groups.
	Cycles [][]int64 `json:"cycles,omitempty"`

	// Truncated lists ids that the builder cut off as cycle leaves.
	Truncated []int64 `json:"truncated,omitempty"`

	// Unplaced lists persons missing from the drawing.
	Unplaced []int64 `json:"unplaced,omitempty"`

	// MultipleParents lists children with edges from more than one parent
	// that ended up under only one of them.
	MultipleParents []int64 `json:"multiple_parents,omitempty"`

	// MultipleMarriages lists persons named by more than one marriage; only
	// the first is drawn.
	MultipleMarriages []int64 `json:"multiple_marriages,omitempty"`

	// DanglingEdges are edges naming a person that does not exist.
	DanglingEdges []ParentChildEdge `json:"dangling_edges,omitempty"`

	// DanglingMarriages are marriages naming an unknown person or the same
	// person twice.
	DanglingMarriages []Marriage `json:"dangling_marriages,omitempty"`
}

// Diagnose inspects the raw graph and the hierarchy built from it.
func Diagnose(g *Graph, h *Hierarchy) Diagnostics {
	var d Diagnostics
	if g == nil {
		return d
	}
	if h != nil {
		d.FallbackRoot = h.Fallback
		d.Truncated = slices.Clone(h.Cycles)
		d.Unplaced = slices.Clone(h.Unplaced)
	}
	d.Cycles = parentCycles(g)

	parents := make(map[int64]map[int64]bool)
	var multi []int64
	for _, e := range g.Edges {
		_, okP := g.Person(e.Parent)
		_, okC := g.Person(e.Child)
		if !okP || !okC {
			d.DanglingEdges = append(d.DanglingEdges, e)
			continue
		}
		if parents[e.Child] == nil {
			parents[e.Child] = make(map[int64]bool)
		}
		parents[e.Child][e.Parent] = true
		if len(parents[e.Child]) == 2 {
			multi = append(multi, e.Child)
		}
	}
	for _, id := range multi {
		if !coParents(g, parents[id]) {
			d.MultipleParents = append(d.MultipleParents, id)
		}
	}

	for _, m := range g.Marriages {
		_, ok1 := g.Person(m.Spouse1)
		_, ok2 := g.Person(m.Spouse2)
		if !ok1 || !ok2 || m.Spouse1 == m.Spouse2 {
			d.DanglingMarriages = append(d.DanglingMarriages, m)
		}
	}
	for i := range g.Persons {
		if id := g.Persons[i].ID; g.MarriageCount(id) > 1 {
			d.MultipleMarriages = append(d.MultipleMarriages, id)
		}
	}
	return d
}

// coParents reports whether a set of exactly two parents are each other's
// drawn spouse, in which case the child is shared rather than dropped.
func coParents(g *Graph, set map[int64]bool) bool {
	if len(set) != 2 {
		return false
	}
	var ids []int64
	for id := range set {
		ids = append(ids, id)
	}
	if sp, ok := g.SpouseOf(ids[0]); ok && sp.ID == ids[1] {
		return true
	}
	sp, ok := g.SpouseOf(ids[1])
	return ok && sp.ID == ids[0]
}

// parentCycles finds cycles in the parent-child edges with Tarjan's algorithm.
func parentCycles(g *Graph) [][]int64 {
	dg := simple.NewDirectedGraph()
	var cycles [][]int64
	selfLoops := make(map[int64]bool)
	for _, e := range g.Edges {
		if e.Parent == e.Child {
			if !selfLoops[e.Parent] {
				selfLoops[e.Parent] = true
				cycles = append(cycles, []int64{e.Parent})
			}
			continue
		}
		from, to := simple.Node(e.Parent), simple.Node(e.Child)
		if dg.Node(e.Parent) == nil {
			dg.AddNode(from)
		}
		if dg.Node(e.Child) == nil {
			dg.AddNode(to)
		}
		dg.SetEdge(dg.NewEdge(from, to))
	}

	for _, scc := range topo.TarjanSCC(dg) {
		if len(scc) < 2 {
			continue
		}
		ids := make([]int64, len(scc))
		for i, n := range scc {
			ids[i] = n.ID()
		}
		slices.Sort(ids)
		cycles = append(cycles, ids)
	}
	slices.SortFunc(cycles, func(a, b []int64) int { return slices.Compare(a, b) })
	return cycles
}

// Clean reports whether no problems were found.
func (d Diagnostics) Clean() bool {
	return !d.FallbackRoot && len(d.Cycles) == 0 && len(d.Truncated) == 0 &&
		len(d.Unplaced) == 0 && len(d.MultipleParents) == 0 &&
		len(d.MultipleMarriages) == 0 && len(d.DanglingEdges) == 0 &&
		len(d.DanglingMarriages) == 0
}

// Warnings renders the diagnostics as human-readable lines.
func (d Diagnostics) Warnings() []string {
	var out []string
	if d.FallbackRoot {
		out = append(out, "every person has a recorded parent; the earliest-born person was used as root")
	}
	for _, c := range d.Cycles {
		out = append(out, fmt.Sprintf("parent-child cycle through persons %v", c))
	}
	if len(d.Truncated) > 0 {
		out = append(out, fmt.Sprintf("cycle leaves drawn for persons %v", d.Truncated))
	}
	if len(d.Unplaced) > 0 {
		out = append(out, fmt.Sprintf("persons not reachable from any root: %v", d.Unplaced))
	}
	if len(d.MultipleParents) > 0 {
		out = append(out, fmt.Sprintf("children with unrelated parents, drawn under the first only: %v", d.MultipleParents))
	}
	if len(d.MultipleMarriages) > 0 {
		out = append(out, fmt.Sprintf("persons with several marriages, only the first is drawn: %v", d.MultipleMarriages))
	}
	for _, e := range d.DanglingEdges {
		out = append(out, fmt.Sprintf("relationship %d -> %d names an unknown person", e.Parent, e.Child))
	}
	for _, m := range d.DanglingMarriages {
		out = append(out, fmt.Sprintf("marriage %d - %d is not usable", m.Spouse1, m.Spouse2))
	}
	return out
}
