package cache

// RenderKeyOpts are the options that change a rendered diagram.
type RenderKeyOpts struct {
	Format   string  `json:"format"`
	Theme    string  `json:"theme,omitempty"`
	Photos   string  `json:"photos,omitempty"`
	Scale    float64 `json:"scale,omitempty"`
	JPEG     int     `json:"jpeg,omitempty"`
	Padding  float64 `json:"padding,omitempty"`
	Detailed bool    `json:"detailed,omitempty"`
}

// ExportKeyOpts are the options that change a raster export.
type ExportKeyOpts struct {
	Quality string  `json:"quality"`
	Scale   float64 `json:"scale"`
	JPEG    int     `json:"jpeg"`
	Padding float64 `json:"padding"`
	Theme   string  `json:"theme,omitempty"`
}

// Keyer builds cache keys from a layout hash and render options.
type Keyer interface {
	RenderKey(layoutHash string, opts RenderKeyOpts) string
	ExportKey(layoutHash string, opts ExportKeyOpts) string
}

// DefaultKeyer produces keys of the form "kind:sha256".
type DefaultKeyer struct{}

// NewDefaultKeyer returns the default keyer.
func NewDefaultKeyer() Keyer { return DefaultKeyer{} }

func (DefaultKeyer) RenderKey(layoutHash string, opts RenderKeyOpts) string {
	return hashKey("render", layoutHash, opts)
}

func (DefaultKeyer) ExportKey(layoutHash string, opts ExportKeyOpts) string {
	return hashKey("export", layoutHash, opts)
}
