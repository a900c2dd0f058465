package family

// Spouse is the partner attached beside a node. It is display data only:
// a spouse has no children list and is never laid out on its own.
type Spouse struct {
	ID     int64   `json:"id"`
	Name   string  `json:"name"`
	Person *Person `json:"person"`
}

// Node is one person in the built hierarchy.
type Node struct {
	ID       int64            `json:"id"`
	Name     string           `json:"name"`
	Person   *Person          `json:"person"`
	Relation RelationshipType `json:"relation,omitempty"`
	Spouse   *Spouse          `json:"spouse,omitempty"`

	// Children are the visible children, in edge order.
	Children []*Node `json:"children,omitempty"`

	// Hidden holds the children of a collapsed node.
	Hidden []*Node `json:"collapsed_children,omitempty"`

	// Cycle marks a leaf that repeats one of its own ancestors.
	Cycle bool `json:"cycle,omitempty"`

	parent *Node
}

// Parent returns the node's parent, or nil for a root.
func (n *Node) Parent() *Node { return n.parent }

// HasChildren reports whether the node has children, visible or not.
func (n *Node) HasChildren() bool {
	return len(n.Children) > 0 || len(n.Hidden) > 0
}

// Collapsed reports whether the node's children are hidden.
func (n *Node) Collapsed() bool { return len(n.Hidden) > 0 }

// Collapse hides the node's children. It is a no-op for leaves.
func (n *Node) Collapse() {
	if len(n.Children) == 0 {
		return
	}
	n.Hidden, n.Children = n.Children, nil
}

// Expand shows the node's hidden children.
func (n *Node) Expand() {
	if len(n.Hidden) == 0 {
		return
	}
	n.Children, n.Hidden = n.Hidden, nil
}

// Toggle flips the node between expanded and collapsed and reports whether it
// is collapsed afterwards.
func (n *Node) Toggle() bool {
	if n.Collapsed() {
		n.Expand()
	} else {
		n.Collapse()
	}
	return n.Collapsed()
}

// Depth returns the number of ancestor edges between the node and its root.
func (n *Node) Depth() int {
	d := 0
	for p := n.parent; p != nil; p = p.parent {
		d++
	}
	return d
}

// Hierarchy is the rooted structure produced by [Build].
type Hierarchy struct {
	Tree  Tree    `json:"tree"`
	Roots []*Node `json:"roots"`

	// Fallback is set when the root was chosen by birth date because every
	// person had a recorded parent.
	Fallback bool `json:"fallback_root,omitempty"`

	// Cycles lists ids that were truncated because they repeated an ancestor.
	Cycles []int64 `json:"cycles,omitempty"`

	// Unplaced lists persons that appear neither as a node nor as a spouse.
	Unplaced []int64 `json:"unplaced,omitempty"`

	index map[int64]*Node
}

// Empty reports whether there is nothing to draw.
func (h *Hierarchy) Empty() bool {
	return h == nil || len(h.Roots) == 0
}

// Find returns the node built for a person id, whether visible or collapsed
// away. Cycle markers are never returned.
func (h *Hierarchy) Find(id int64) *Node {
	if h == nil {
		return nil
	}
	return h.index[id]
}

// Walk visits visible nodes in pre-order. Returning false from fn stops the
// descent into that node's children.
func (h *Hierarchy) Walk(fn func(n *Node) bool) {
	for _, r := range h.Roots {
		walk(r, false, fn)
	}
}

// WalkAll is like Walk but also descends into collapsed children.
func (h *Hierarchy) WalkAll(fn func(n *Node) bool) {
	for _, r := range h.Roots {
		walk(r, true, fn)
	}
}

func walk(n *Node, all bool, fn func(*Node) bool) {
	if !fn(n) {
		return
	}
	for _, c := range n.Children {
		walk(c, all, fn)
	}
	if all {
		for _, c := range n.Hidden {
			walk(c, all, fn)
		}
	}
}

// Visible returns the ids of the visible nodes in pre-order.
func (h *Hierarchy) Visible() []int64 {
	var ids []int64
	h.Walk(func(n *Node) bool {
		ids = append(ids, n.ID)
		return true
	})
	return ids
}

// Size returns the number of nodes, collapsed ones included.
func (h *Hierarchy) Size() int {
	n := 0
	h.WalkAll(func(*Node) bool { n++; return true })
	return n
}

// ExpandAll expands every node in the hierarchy.
func (h *Hierarchy) ExpandAll() {
	h.WalkAll(func(n *Node) bool {
		n.Expand()
		return true
	})
}

// CollapseAll collapses every node below the roots so that only the roots
// remain visible. Descendants are collapsed too, so expanding a root shows
// its children with their own subtrees still folded.
func (h *Hierarchy) CollapseAll() {
	h.WalkAll(func(n *Node) bool {
		n.Collapse()
		return true
	})
}

// CollapsedIDs returns the ids of collapsed nodes in pre-order.
func (h *Hierarchy) CollapsedIDs() []int64 {
	var ids []int64
	h.WalkAll(func(n *Node) bool {
		if n.Collapsed() {
			ids = append(ids, n.ID)
		}
		return true
	})
	return ids
}

// SetCollapsed expands every node and then collapses the listed ids.
// Unknown ids are ignored.
func (h *Hierarchy) SetCollapsed(ids []int64) {
	h.ExpandAll()
	for _, id := range ids {
		if n := h.Find(id); n != nil {
			n.Collapse()
		}
	}
}
