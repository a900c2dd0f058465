package layout

import (
	"math"

	"github.com/matzehuels/stemma/pkg/family"
)

// Defaults used when an [Options] field is zero.
const (
	DefaultLevelHeight       = 150.0
	DefaultNodeSpacing       = 100.0
	DefaultSiblingSeparation = 1.5
	DefaultCousinSeparation  = 2.0
	DefaultSpouseOffset      = 80.0
	DefaultNodeRadius        = 30.0
)

// Options configures [Compute].
type Options struct {
	// LevelHeight is the vertical distance between generations.
	LevelHeight float64 `json:"level_height,omitempty"`

	// NodeSpacing is the horizontal length of one separation unit.
	NodeSpacing float64 `json:"node_spacing,omitempty"`

	// Width, when positive, scales the layout so that it spans exactly this
	// width instead of using NodeSpacing.
	Width float64 `json:"width,omitempty"`

	SiblingSeparation float64 `json:"sibling_separation,omitempty"`
	CousinSeparation  float64 `json:"cousin_separation,omitempty"`

	// SpouseOffset is the horizontal distance from a node to its spouse.
	SpouseOffset float64 `json:"spouse_offset,omitempty"`

	// NodeRadius is used for the bounding box only.
	NodeRadius float64 `json:"node_radius,omitempty"`
}

// WithDefaults returns a copy of o with zero fields set to their defaults.
func (o Options) WithDefaults() Options {
	if o.LevelHeight == 0 {
		o.LevelHeight = DefaultLevelHeight
	}
	if o.NodeSpacing == 0 {
		o.NodeSpacing = DefaultNodeSpacing
	}
	if o.SiblingSeparation == 0 {
		o.SiblingSeparation = DefaultSiblingSeparation
	}
	if o.CousinSeparation == 0 {
		o.CousinSeparation = DefaultCousinSeparation
	}
	if o.SpouseOffset == 0 {
		o.SpouseOffset = DefaultSpouseOffset
	}
	if o.NodeRadius == 0 {
		o.NodeRadius = DefaultNodeRadius
	}
	return o
}

// Point is a 2D coordinate.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Rect is an axis-aligned box.
type Rect struct {
	MinX float64 `json:"min_x"`
	MinY float64 `json:"min_y"`
	MaxX float64 `json:"max_x"`
	MaxY float64 `json:"max_y"`
}

// EmptyRect is the identity for [Rect.Union].
var EmptyRect = Rect{MinX: math.Inf(1), MinY: math.Inf(1), MaxX: math.Inf(-1), MaxY: math.Inf(-1)}

func (r Rect) Width() float64  { return r.MaxX - r.MinX }
func (r Rect) Height() float64 { return r.MaxY - r.MinY }

// IsEmpty reports whether the box contains no points.
func (r Rect) IsEmpty() bool { return r.MaxX < r.MinX || r.MaxY < r.MinY }

// Union returns the smallest box containing both r and o.
func (r Rect) Union(o Rect) Rect {
	return Rect{
		MinX: math.Min(r.MinX, o.MinX), MinY: math.Min(r.MinY, o.MinY),
		MaxX: math.Max(r.MaxX, o.MaxX), MaxY: math.Max(r.MaxY, o.MaxY),
	}
}

// Around returns the box of the given radii around (x, y).
func Around(x, y, rx, ry float64) Rect {
	return Rect{MinX: x - rx, MinY: y - ry, MaxX: x + rx, MaxY: y + ry}
}

// Pad grows the box by p on every side.
func (r Rect) Pad(p float64) Rect {
	return Rect{MinX: r.MinX - p, MinY: r.MinY - p, MaxX: r.MaxX + p, MaxY: r.MaxY + p}
}

// Spouse is a positioned spouse attachment.
type Spouse struct {
	ID     int64          `json:"id"`
	Name   string         `json:"name"`
	Person *family.Person `json:"person"`
	X      float64        `json:"x"`
	Y      float64        `json:"y"`
}

// Node is a positioned hierarchy node.
type Node struct {
	ID       int64          `json:"id"`
	Name     string         `json:"name"`
	Person   *family.Person `json:"person"`
	X        float64        `json:"x"`
	Y        float64        `json:"y"`
	Depth    int            `json:"depth"`
	ParentID int64          `json:"parent_id,omitempty"`
	IsRoot   bool           `json:"is_root,omitempty"`

	HasChildren bool `json:"has_children,omitempty"`
	Collapsed   bool `json:"collapsed,omitempty"`
	Cycle       bool `json:"cycle,omitempty"`

	Spouse *Spouse `json:"spouse,omitempty"`
}

// Link is a parent-child edge between two laid-out nodes.
type Link struct {
	ParentID int64                   `json:"parent_id"`
	ChildID  int64                   `json:"child_id"`
	Relation family.RelationshipType `json:"relation"`
	Source   Point                   `json:"source"`
	Target   Point                   `json:"target"`
}

// Layout is the renderer-agnostic result of [Compute].
type Layout struct {
	Tree family.Tree `json:"tree"`

	// Nodes are in pre-order of the visible hierarchy.
	Nodes []Node `json:"nodes"`
	Links []Link `json:"links"`

	// Bounds covers every node and spouse circle. It is the zero Rect for an
	// empty layout.
	Bounds Rect `json:"bounds"`

	Options Options `json:"options"`
}

// Empty reports whether there is nothing to draw.
func (l Layout) Empty() bool { return len(l.Nodes) == 0 }

// Node returns the positioned node for id.
func (l Layout) Node(id int64) (Node, bool) {
	for _, n := range l.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// Compute lays out the visible nodes of h.
func Compute(h *family.Hierarchy, opts Options) Layout {
	opts = opts.WithDefaults()
	out := Layout{Options: opts}
	if h == nil {
		return out
	}
	out.Tree = h.Tree
	if h.Empty() {
		return out
	}

	out.Bounds = EmptyRect
	top := tidy(h.Roots, opts)
	r := opts.NodeRadius
	var emit func(w *walker)
	emit = func(w *walker) {
		n := w.node
		ln := Node{
			ID:          n.ID,
			Name:        n.Name,
			Person:      n.Person,
			X:           w.x,
			Y:           float64(w.depth) * opts.LevelHeight,
			Depth:       w.depth,
			IsRoot:      w.parent.node == nil,
			HasChildren: n.HasChildren(),
			Collapsed:   n.Collapsed(),
			Cycle:       n.Cycle,
		}
		out.Bounds = out.Bounds.Union(Around(ln.X, ln.Y, r, r))
		if n.Spouse != nil {
			ln.Spouse = &Spouse{
				ID:     n.Spouse.ID,
				Name:   n.Spouse.Name,
				Person: n.Spouse.Person,
				X:      ln.X + opts.SpouseOffset,
				Y:      ln.Y,
			}
			out.Bounds = out.Bounds.Union(Around(ln.Spouse.X, ln.Spouse.Y, r, r))
		}
		if p := w.parent; p.node != nil {
			ln.ParentID = p.node.ID
			out.Links = append(out.Links, Link{
				ParentID: p.node.ID,
				ChildID:  n.ID,
				Relation: n.Relation,
				Source:   Point{X: p.x, Y: float64(p.depth) * opts.LevelHeight},
				Target:   Point{X: ln.X, Y: ln.Y},
			})
		}
		out.Nodes = append(out.Nodes, ln)
		for _, c := range w.children {
			emit(c)
		}
	}
	for _, c := range top.children {
		emit(c)
	}
	return out
}
