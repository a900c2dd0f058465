// Package family models a family tree and turns it into a renderable hierarchy.
//
// A tree arrives as three flat collections: persons, parent-child edges and
// marriages. [NewGraph] indexes them without transforming anything. From a
// [Graph], [SelectRoots] decides which persons start the drawing and [Build]
// assembles a strictly hierarchical [Hierarchy] of [Node] values, attaching
// each person's spouse beside them instead of giving the spouse a node of
// their own.
//
// # Roots
//
// Roots are persons with no recorded parent. A married pair of parentless
// persons yields a single root (the smaller id); a parentless person married
// into a family that has parents is left out so the spouse's subtree can
// claim them. If every person has a parent, the earliest-born person is used.
//
// # Building
//
// The builder never revisits a person: each person id produces at most one
// node, and a child that would repeat an ancestor on the current path becomes
// a leaf flagged with [Node.Cycle]. This keeps cyclic input finite.
//
// # Collapse state
//
// Each [Node] keeps its visible children in Children and its collapsed
// children in Hidden. Layout only ever reads Children, so collapsing a node
// removes its subtree from the drawing without discarding it.
//
//	g := family.NewGraph(tree, persons, edges, marriages)
//	h := family.Build(g, family.BuildOptions{})
//	h.Find(3).Toggle()
package family
