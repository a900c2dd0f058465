// Package render draws a computed family-tree layout onto a drawing surface.
//
// # Overview
//
// [Draw] walks a [layout.Layout] and issues shape, text and photo calls
// against a [Surface]. Surfaces decide what those calls mean:
//
//   - [SVGSurface] writes an SVG document
//   - [RasterSurface] paints into an image with fogleman/gg (PNG, JPEG)
//   - [GridSurface] plots onto a character grid for terminals
//
// Because the layout is renderer-agnostic, the same diagram can be produced
// in every format and inspected in tests without a display.
//
// # Frames
//
// A [Frame] describes the viewport the diagram is drawn into: its pixel
// size, the visible region of diagram space (the viewBox), the current
// pan/zoom [Transform] and the background color. [FitFrame] builds a frame
// that shows the whole diagram, which is what exports use.
//
//	l := layout.Compute(h, layout.Options{})
//	svg, err := render.RenderSVG(l)
//	jpg, err := render.RenderJPEG(l, 2, 95)
//
// # Node-Link Diagrams
//
// [ToDOT] converts a layout into Graphviz DOT, and [GraphvizSVG] renders it
// with the embedded Graphviz engine. [ToPDF] converts any SVG to PDF with
// rsvg-convert.
package render
