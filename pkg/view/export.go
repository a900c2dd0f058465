package view

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/matzehuels/stemma/pkg/cache"
	"github.com/matzehuels/stemma/pkg/errors"
	"github.com/matzehuels/stemma/pkg/layout"
	"github.com/matzehuels/stemma/pkg/observability"
	"github.com/matzehuels/stemma/pkg/render"
)

// Quality is an export size preset.
type Quality struct {
	Name  string  `json:"name"`
	Scale float64 `json:"scale"`
}

// Export presets.
var (
	QualityHD = Quality{Name: "HD", Scale: 2}
	Quality4K = Quality{Name: "4K", Scale: 4}
)

// Qualities lists the presets in order.
var Qualities = []Quality{QualityHD, Quality4K}

// ParseQuality looks up a preset by case-insensitive name.
func ParseQuality(name string) (Quality, error) {
	for _, q := range Qualities {
		if strings.EqualFold(q.Name, strings.TrimSpace(name)) {
			return q, nil
		}
	}
	return Quality{}, errors.New(errors.ErrCodeInvalidInput, "unknown quality %q (must be HD or 4K)", name)
}

// ExportTTL bounds how long exports are cached.
const ExportTTL = 24 * time.Hour

// Export is a finished raster export.
type Export struct {
	ID       string  `json:"id"`
	Filename string  `json:"filename"`
	Quality  Quality `json:"quality"`
	Scale    float64 `json:"scale"`
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	Cached   bool    `json:"cached"`
	Data     []byte  `json:"-"`
}

// ContentType is always JPEG.
func (e *Export) ContentType() string { return "image/jpeg" }

var whitespace = regexp.MustCompile(`\s+`)

// Slug turns a tree name into a file name stem: whitespace runs become
// hyphens and the result is lower-cased. A blank name gives "family-tree".
func Slug(treeName string) string {
	name := strings.TrimSpace(treeName)
	if name == "" {
		return "family-tree"
	}
	return strings.ToLower(whitespace.ReplaceAllString(name, "-"))
}

// ExportFilename names an export after the tree, appending the quality tag:
// "The Berg Family" at 4K becomes "the-berg-family-tree-4K.jpg".
func ExportFilename(treeName string, q Quality) string {
	return fmt.Sprintf("%s-tree-%s.jpg", Slug(treeName), q.Name)
}

// Rasterizer draws l into f at the given pixel scale and encodes the result
// as JPEG.
type Rasterizer func(ctx context.Context, l layout.Layout, f render.Frame, scale float64, quality int, opts ...render.Option) ([]byte, error)

// RasterizeJPEG is the default [Rasterizer], built on [render.RasterSurface].
func RasterizeJPEG(ctx context.Context, l layout.Layout, f render.Frame, scale float64, quality int, opts ...render.Option) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	surface := render.NewRasterSurface(render.WithScale(scale))
	if err := render.Draw(surface, l, f, opts...); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := surface.EncodeJPEG(&buf, quality); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Export renders the whole current diagram, collapse state included, to a
// JPEG at the preset's scale.
//
// For the duration of the export the view is resized to the tight bounds of
// the diagram plus padding, the zoom is reset and photos are hidden, so the
// image shows initials only. When the preset's scale would make an edge
// longer than [render.MaxRasterSide] pixels, the scale is lowered until the
// image fits and Export.Scale records the scale used. The previous view state is restored before
// Export returns, whether or not rasterizing succeeded. Exports on one
// session never overlap.
func (s *Session) Export(ctx context.Context, q Quality) (exp *Export, err error) {
	if q.Scale <= 0 {
		return nil, errors.New(errors.ErrCodeInvalidInput, "export scale must be positive")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loaded(); err != nil {
		return nil, err
	}

	start := time.Now()
	id := uuid.NewString()
	logger := s.runner.Logger.With("export_id", id, "quality", q.Name)
	defer func() {
		size := 0
		if exp != nil {
			size = len(exp.Data)
		}
		observability.Pipeline().OnExportComplete(ctx, q.Name, size, time.Since(start), err)
		if err != nil {
			logger.Error("export failed", "error", err)
			return
		}
		logger.Info("exported tree", "bytes", size, "cached", exp.Cached, "duration", time.Since(start))
	}()

	fit := render.FitFrame(s.lay, s.theme, s.padding)
	scale := render.FitScale(fit.Width, fit.Height, q.Scale)
	if scale < q.Scale {
		logger.Warn("export scaled down to fit the raster limit",
			"scale", scale, "max_side", render.MaxRasterSide)
	}
	exp = &Export{
		ID:       id,
		Filename: ExportFilename(s.treeNameLocked(), q),
		Quality:  q,
		Scale:    scale,
		Width:    int(math.Ceil(fit.Width * scale)),
		Height:   int(math.Ceil(fit.Height * scale)),
	}

	key, keyErr := s.exportKeyLocked(q)
	if keyErr == nil {
		if data, hit, err := s.runner.Cache.Get(ctx, key); err == nil && hit {
			exp.Data, exp.Cached = data, true
			return exp, nil
		}
	}

	data, err := s.rasterizeFitted(ctx, fit, q, scale)
	if err != nil {
		return nil, err
	}
	exp.Data = data
	if keyErr == nil {
		if err := s.runner.Cache.Set(ctx, key, data, ExportTTL); err != nil {
			logger.Warn("cache write failed", "error", err)
		}
	}
	return exp, nil
}

// rasterizeFitted switches the view into export mode, rasterizes and
// restores the view. s.mu must be held.
func (s *Session) rasterizeFitted(ctx context.Context, fit render.Frame, q Quality, scale float64) (data []byte, err error) {
	saved := s.view
	defer func() {
		s.view = saved
		if r := recover(); r != nil {
			data, err = nil, errors.New(errors.ErrCodeExportFailed, "rasterize %s: %v", q.Name, r)
		}
	}()

	s.view = viewState{
		width:     fit.Width,
		height:    fit.Height,
		viewBox:   fit.ViewBox,
		transform: render.Identity,
		photos:    false,
	}
	data, err = s.rasterize(ctx, s.lay, s.frameLocked(), scale, s.jpeg, s.renderOptionsLocked()...)
	if err != nil {
		if errors.GetCode(err) == errors.ErrCodeTimeout {
			return nil, err
		}
		return nil, errors.Wrap(errors.ErrCodeExportFailed, err, "rasterize %s", q.Name)
	}
	return data, nil
}

func (s *Session) treeNameLocked() string {
	if s.snap == nil {
		return ""
	}
	return s.snap.Tree.Name
}

func (s *Session) exportKeyLocked(q Quality) (string, error) {
	if s.hash == "" {
		h, err := cache.HashJSON(s.lay)
		if err != nil {
			return "", err
		}
		s.hash = h
	}
	theme, _ := cache.HashJSON(s.theme)
	return s.runner.Keyer.ExportKey(s.hash, cache.ExportKeyOpts{
		Quality: q.Name,
		Scale:   q.Scale,
		JPEG:    s.jpeg,
		Padding: s.padding,
		Theme:   theme,
	}), nil
}
