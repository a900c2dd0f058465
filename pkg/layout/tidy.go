package layout

import "github.com/matzehuels/stemma/pkg/family"

// walker carries the per-node state of the tidy-tree algorithm. The field
// names follow the Buchheim et al. paper: prelim (z), mod (m), change (c),
// shift (s), thread (t), ancestor (a) and the default ancestor (A) that a
// parent hands to its next child.
type walker struct {
	node     *family.Node
	parent   *walker
	children []*walker
	index    int
	depth    int

	z, m, c, s float64
	t          *walker
	a          *walker
	A          *walker

	x float64
}

func newWalker(n *family.Node, parent *walker, index, depth int) *walker {
	w := &walker{node: n, parent: parent, index: index, depth: depth}
	w.a = w
	return w
}

// tidy positions the visible forest and returns the invisible super-root.
// Root walkers sit at depth 0; x is in final units.
func tidy(roots []*family.Node, opts Options) *walker {
	// anchor only exists so that the super-root has a parent during the walks.
	anchor := newWalker(nil, nil, 0, -2)
	top := newWalker(nil, anchor, 0, -1)
	anchor.children = []*walker{top}

	var wrap func(n *family.Node, parent *walker, index int) *walker
	wrap = func(n *family.Node, parent *walker, index int) *walker {
		w := newWalker(n, parent, index, parent.depth+1)
		for i, c := range n.Children {
			w.children = append(w.children, wrap(c, w, i))
		}
		return w
	}
	for i, r := range roots {
		top.children = append(top.children, wrap(r, top, i))
	}

	sep := func(a, b *walker) float64 {
		if a.parent == b.parent {
			return opts.SiblingSeparation
		}
		return opts.CousinSeparation
	}

	eachAfter(top, func(v *walker) { firstWalk(v, sep) })
	anchor.m = -top.z
	eachBefore(top, secondWalk)

	if opts.Width > 0 {
		fitWidth(top, opts.Width, sep)
	} else {
		eachBefore(top, func(v *walker) { v.x *= opts.NodeSpacing })
	}
	return top
}

func eachAfter(v *walker, fn func(*walker)) {
	for _, c := range v.children {
		eachAfter(c, fn)
	}
	fn(v)
}

func eachBefore(v *walker, fn func(*walker)) {
	fn(v)
	for _, c := range v.children {
		eachBefore(c, fn)
	}
}

func firstWalk(v *walker, sep func(a, b *walker) float64) {
	siblings := v.parent.children
	var w *walker
	if v.index > 0 {
		w = siblings[v.index-1]
	}
	if len(v.children) > 0 {
		executeShifts(v)
		midpoint := (v.children[0].z + v.children[len(v.children)-1].z) / 2
		if w != nil {
			v.z = w.z + sep(v, w)
			v.m = v.z - midpoint
		} else {
			v.z = midpoint
		}
	} else if w != nil {
		v.z = w.z + sep(v, w)
	}
	ancestor := v.parent.A
	if ancestor == nil {
		ancestor = siblings[0]
	}
	v.parent.A = apportion(v, w, ancestor, sep)
}

func secondWalk(v *walker) {
	v.x = v.z + v.parent.m
	v.m += v.parent.m
}

// apportion pushes the subtree of v right until its left contour clears the
// right contour of every subtree to its left, spreading the shift across the
// siblings in between.
func apportion(v, w, ancestor *walker, sep func(a, b *walker) float64) *walker {
	if w == nil {
		return ancestor
	}
	vip, vop := v, v
	vim := w
	vom := vip.parent.children[0]
	sip, sop := vip.m, vop.m
	sim, som := vim.m, vom.m

	for {
		vim = nextRight(vim)
		vip = nextLeft(vip)
		if vim == nil || vip == nil {
			break
		}
		vom = nextLeft(vom)
		vop = nextRight(vop)
		vop.a = v
		shift := vim.z + sim - vip.z - sip + sep(vim, vip)
		if shift > 0 {
			moveSubtree(nextAncestor(vim, v, ancestor), v, shift)
			sip += shift
			sop += shift
		}
		sim += vim.m
		sip += vip.m
		som += vom.m
		sop += vop.m
	}
	if vim != nil && nextRight(vop) == nil {
		vop.t = vim
		vop.m += sim - sop
	}
	if vip != nil && nextLeft(vom) == nil {
		vom.t = vip
		vom.m += sip - som
		ancestor = v
	}
	return ancestor
}

func nextLeft(v *walker) *walker {
	if len(v.children) > 0 {
		return v.children[0]
	}
	return v.t
}

func nextRight(v *walker) *walker {
	if len(v.children) > 0 {
		return v.children[len(v.children)-1]
	}
	return v.t
}

func moveSubtree(wm, wp *walker, shift float64) {
	change := shift / float64(wp.index-wm.index)
	wp.c -= change
	wp.s += shift
	wm.c += change
	wp.z += shift
	wp.m += shift
}

func executeShifts(v *walker) {
	var shift, change float64
	for i := len(v.children) - 1; i >= 0; i-- {
		w := v.children[i]
		w.z += shift
		w.m += shift
		change += w.c
		shift += w.s + change
	}
}

func nextAncestor(vim, v, ancestor *walker) *walker {
	if vim.a.parent == v.parent {
		return vim.a
	}
	return ancestor
}

// fitWidth scales x so the leftmost and rightmost nodes span width, leaving
// half a separation at each edge.
func fitWidth(top *walker, width float64, sep func(a, b *walker) float64) {
	var left, right *walker
	eachBefore(top, func(v *walker) {
		if v == top {
			return
		}
		if left == nil || v.x < left.x {
			left = v
		}
		if right == nil || v.x > right.x {
			right = v
		}
	})
	if left == nil {
		return
	}
	s := 1.0
	if left != right {
		s = sep(left, right) / 2
	}
	tx := s - left.x
	kx := width / (right.x + s + tx)
	eachBefore(top, func(v *walker) { v.x = (v.x + tx) * kx })
}
