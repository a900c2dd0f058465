package render

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/goccy/go-graphviz"

	"github.com/matzehuels/stemma/pkg/family"
	"github.com/matzehuels/stemma/pkg/layout"
)

// DOTOptions configures [ToDOT].
type DOTOptions struct {
	// Detailed adds the year range to each label.
	Detailed bool
	Theme    Theme
}

// ToDOT converts the visible part of a layout to Graphviz DOT. Spouses share
// a rank with their partner and are joined by an undirected edge.
func ToDOT(l layout.Layout, opts DOTOptions) string {
	th := opts.Theme.WithDefaults()

	var buf bytes.Buffer
	buf.WriteString("digraph G {\n")
	buf.WriteString("  rankdir=TB;\n")
	fmt.Fprintf(&buf, "  bgcolor=%q;\n", th.Background)
	fmt.Fprintf(&buf, "  node [shape=circle, style=filled, fillcolor=%q, fontcolor=%q, penwidth=3, fixedsize=false];\n", th.NodeFill, th.Text)
	fmt.Fprintf(&buf, "  edge [color=%q, arrowhead=none, penwidth=2];\n", th.Link)
	buf.WriteString("  ranksep=0.8;\n")
	buf.WriteString("  nodesep=0.4;\n")
	buf.WriteString("\n")

	person := func(id string, name string, p *family.Person, fill string) {
		var g family.Gender
		if p != nil {
			g = p.Gender
		}
		attrs := []string{
			fmt.Sprintf("label=%q", dotLabel(name, p, opts.Detailed)),
			fmt.Sprintf("color=%q", th.GenderColor(g)),
		}
		if fill != "" {
			attrs = append(attrs, fmt.Sprintf("fillcolor=%q", fill))
		}
		fmt.Fprintf(&buf, "  %q [%s];\n", id, strings.Join(attrs, ", "))
	}

	for _, n := range l.Nodes {
		fill := ""
		if n.Collapsed {
			fill = th.CollapsedFill
		}
		person(dotID(n.ID), n.Name, n.Person, fill)
		if sp := n.Spouse; sp != nil {
			person(dotSpouseID(n.ID, sp.ID), sp.Name, sp.Person, "")
			fmt.Fprintf(&buf, "  { rank=same; %q; %q; }\n", dotID(n.ID), dotSpouseID(n.ID, sp.ID))
			fmt.Fprintf(&buf, "  %q -> %q [dir=none, color=%q, constraint=false];\n", dotID(n.ID), dotSpouseID(n.ID, sp.ID), th.Connector)
		}
	}

	buf.WriteString("\n")
	for _, lk := range l.Links {
		style := ""
		if lk.Relation != "" && lk.Relation != family.Biological {
			style = " [style=dashed]"
		}
		fmt.Fprintf(&buf, "  %q -> %q%s;\n", dotID(lk.ParentID), dotID(lk.ChildID), style)
	}

	buf.WriteString("}\n")
	return buf.String()
}

func dotID(id int64) string { return "p" + strconv.FormatInt(id, 10) }

// Spouse nodes are keyed by their partner too: the same person may be drawn
// as a spouse beside several nodes.
func dotSpouseID(partner, id int64) string {
	return fmt.Sprintf("s%d_%d", partner, id)
}

func dotLabel(name string, p *family.Person, detailed bool) string {
	if !detailed || p == nil {
		return name
	}
	return name + "\n" + p.Lifespan()
}

// GraphvizSVG renders a DOT graph to SVG using Graphviz.
func GraphvizSVG(ctx context.Context, dot string) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("init graphviz: %w", err)
	}
	defer gv.Close()

	g, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, fmt.Errorf("parse DOT: %w", err)
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, graphviz.SVG, &buf); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return normalizeViewBox(buf.Bytes()), nil
}

var (
	svgTagRe  = regexp.MustCompile(`<svg[^>]*>`)
	viewBoxRe = regexp.MustCompile(`viewBox="([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)"`)
)

// normalizeViewBox replaces Graphviz's pt-sized root element with a plain
// pixel-sized one.
func normalizeViewBox(svg []byte) []byte {
	match := viewBoxRe.FindSubmatch(svg)
	if match == nil {
		return svg
	}
	w, _ := strconv.ParseFloat(string(match[3]), 64)
	h, _ := strconv.ParseFloat(string(match[4]), 64)
	if w == 0 || h == 0 {
		return svg
	}
	root := fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" xmlns:xlink="http://www.w3.org/1999/xlink" viewBox="0 0 %.2f %.2f" width="%.0f" height="%.0f">`, w, h, w, h)
	return svgTagRe.ReplaceAll(svg, []byte(root))
}
