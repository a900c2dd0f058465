// Package layout assigns 2D coordinates to a family hierarchy.
//
// [Compute] lays out the visible part of a [family.Hierarchy]: collapsed
// nodes contribute themselves but none of their descendants. Every call
// recomputes the whole drawing from scratch, so coordinates depend only on
// the hierarchy's shape and collapse state.
//
// # Algorithm
//
// Horizontal positions come from the Buchheim–Jünger–Leipert refinement of
// Walker's tidy-tree algorithm, which runs in linear time and never lets two
// subtrees overlap. Multiple roots are laid out as children of an invisible
// super-root so that separate families share one row.
//
// Separation is measured in units of [Options.NodeSpacing]: neighbours that
// share a parent are [Options.SiblingSeparation] units apart, neighbours from
// different parents [Options.CousinSeparation] units, which leaves a visible
// gap between branches.
//
// Vertical positions are fixed per generation: y = depth * LevelHeight, with
// roots at depth 0.
//
// Spouses are not layout nodes. They are placed [Options.SpouseOffset] to the
// right of their partner on the same row and never take part in overlap
// avoidance.
package layout
