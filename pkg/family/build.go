package family

import (
	"slices"
	"time"
)

// BuildOptions configures [Build].
type BuildOptions struct {
	// Now is the reference time for the birth-date fallback. Zero means
	// time.Now().
	Now time.Time
}

// Build selects the roots of g and assembles the hierarchy beneath them.
//
// A node's children are the edges whose parent is the node's person or its
// attached spouse, in edge order and de-duplicated by child id. A person is
// placed once, under the node holding its first parent in edge order (see
// [Graph.FirstParent]). When that parent never appears in the hierarchy the
// child goes to the first node that passed it over. A child that is already
// an ancestor on the current path is added as a leaf with Cycle set and is
// not expanded again.
func Build(g *Graph, opts BuildOptions) *Hierarchy {
	h := &Hierarchy{index: make(map[int64]*Node)}
	if g == nil {
		return h
	}
	h.Tree = g.Tree
	if g.Empty() {
		return h
	}

	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	rs := SelectRoots(g, now)
	h.Fallback = rs.Fallback

	b := &builder{
		g:       g,
		h:       h,
		onPath:  make(map[int64]bool),
		spouses: make(map[int64]bool),
	}
	for _, p := range rs.Roots {
		if h.index[p.ID] != nil {
			continue
		}
		h.Roots = append(h.Roots, b.build(p, "", nil))
	}
	b.placeDeferred()

	for i := range g.Persons {
		id := g.Persons[i].ID
		if h.index[id] == nil && !b.spouses[id] {
			h.Unplaced = append(h.Unplaced, id)
		}
	}
	return h
}

type builder struct {
	g        *Graph
	h        *Hierarchy
	onPath   map[int64]bool
	spouses  map[int64]bool
	deferred []deferral
}

// deferral is a child skipped by a node that is not its first parent.
type deferral struct {
	parent *Node
	child  *Person
	rel    RelationshipType
}

// claims reports whether a node whose parents are ids may take the child.
func (b *builder) claims(child int64, ids []int64) bool {
	first, ok := b.g.FirstParent(child)
	return !ok || slices.Contains(ids, first)
}

// placeDeferred attaches the children whose first parent was never placed,
// each under the earliest node that skipped it. Newly built subtrees can
// defer further children, so it runs until nothing is left.
func (b *builder) placeDeferred() {
	for len(b.deferred) > 0 {
		pending := b.deferred
		b.deferred = nil
		for _, d := range pending {
			if b.h.index[d.child.ID] != nil {
				continue
			}
			for a := d.parent; a != nil; a = a.parent {
				b.onPath[a.ID] = true
			}
			d.parent.Children = append(d.parent.Children, b.build(d.child, d.rel, d.parent))
			clear(b.onPath)
		}
	}
}

func (b *builder) build(p *Person, rel RelationshipType, parent *Node) *Node {
	n := &Node{
		ID:       p.ID,
		Name:     p.DisplayName(),
		Person:   p,
		Relation: rel,
		parent:   parent,
	}
	b.h.index[p.ID] = n

	parents := []int64{p.ID}
	if sp, ok := b.g.SpouseOf(p.ID); ok {
		n.Spouse = &Spouse{ID: sp.ID, Name: sp.DisplayName(), Person: sp}
		b.spouses[sp.ID] = true
		parents = append(parents, sp.ID)
	}

	b.onPath[p.ID] = true
	defer delete(b.onPath, p.ID)

	seen := make(map[int64]bool)
	for _, e := range b.g.childEdges(parents...) {
		if seen[e.Child] {
			continue
		}
		seen[e.Child] = true

		child, ok := b.g.Person(e.Child)
		if !ok {
			continue
		}
		switch {
		case b.onPath[child.ID]:
			n.Children = append(n.Children, &Node{
				ID:       child.ID,
				Name:     child.DisplayName(),
				Person:   child,
				Relation: edgeType(e),
				Cycle:    true,
				parent:   n,
			})
			b.h.Cycles = append(b.h.Cycles, child.ID)
		case b.h.index[child.ID] != nil:
			// Already placed under its first parent.
		case !b.claims(child.ID, parents):
			b.deferred = append(b.deferred, deferral{parent: n, child: child, rel: edgeType(e)})
		default:
			n.Children = append(n.Children, b.build(child, edgeType(e), n))
		}
	}
	return n
}

func edgeType(e ParentChildEdge) RelationshipType {
	if e.Type == "" {
		return Biological
	}
	return e.Type
}
