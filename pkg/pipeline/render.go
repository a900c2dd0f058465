package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/matzehuels/stemma/pkg/errors"
	"github.com/matzehuels/stemma/pkg/layout"
	"github.com/matzehuels/stemma/pkg/observability"
	"github.com/matzehuels/stemma/pkg/render"
)

// Render generates output artifacts in the requested formats.
func Render(ctx context.Context, l layout.Layout, opts Options) (map[string][]byte, error) {
	artifacts := make(map[string][]byte, len(opts.Formats))
	for _, format := range opts.Formats {
		if _, done := artifacts[format]; done {
			continue
		}
		start := time.Now()
		data, err := renderFormat(ctx, l, format, opts, artifacts)
		observability.Pipeline().OnRenderComplete(ctx, format, len(data), time.Since(start), err)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeExportFailed, err, "render %s", format)
		}
		artifacts[format] = data
	}
	return artifacts, nil
}

// renderFormat draws one format. Earlier artifacts are reused where one
// format is derived from another.
func renderFormat(ctx context.Context, l layout.Layout, format string, opts Options, done map[string][]byte) ([]byte, error) {
	ropts := opts.RenderOptions()
	switch format {
	case FormatSVG:
		return render.RenderSVG(l, ropts...)
	case FormatPNG:
		return render.RenderPNG(l, opts.Scale, ropts...)
	case FormatJPEG:
		return render.RenderJPEG(l, opts.Scale, opts.JPEG, ropts...)
	case FormatPDF:
		svg, ok := done[FormatSVG]
		if !ok {
			var err error
			if svg, err = render.RenderSVG(l, ropts...); err != nil {
				return nil, err
			}
		}
		return render.ToPDF(ctx, svg)
	case FormatDOT:
		return []byte(dot(l, opts)), nil
	case FormatGraphviz:
		src, ok := done[FormatDOT]
		if !ok {
			src = []byte(dot(l, opts))
		}
		return render.GraphvizSVG(ctx, string(src))
	case FormatJSON:
		return json.MarshalIndent(l, "", "  ")
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

func dot(l layout.Layout, opts Options) string {
	return render.ToDOT(l, render.DOTOptions{Detailed: opts.Detailed, Theme: opts.Theme})
}
