// Package fonts provides embedded font faces for raster rendering.
//
// The Go font family is compiled into the binary, so exports look the same
// on every machine and never depend on system fonts.
package fonts

import (
	"sync"

	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
)

// FontFamily is the CSS font-family used in SVG output.
const FontFamily = "Go, Inter, system-ui, -apple-system, sans-serif"

var (
	regular, bold *truetype.Font
	parseOnce     sync.Once
	parseErr      error
)

func parse() error {
	parseOnce.Do(func() {
		if regular, parseErr = truetype.Parse(goregular.TTF); parseErr != nil {
			return
		}
		bold, parseErr = truetype.Parse(gobold.TTF)
	})
	return parseErr
}

// Face returns a face of the given pixel size.
func Face(size float64, isBold bool) (font.Face, error) {
	if err := parse(); err != nil {
		return nil, err
	}
	f := regular
	if isBold {
		f = bold
	}
	return truetype.NewFace(f, &truetype.Options{Size: size, Hinting: font.HintingFull}), nil
}
