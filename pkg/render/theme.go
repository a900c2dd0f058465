package render

import "github.com/matzehuels/stemma/pkg/family"

// Theme holds the colors and font size used by [Draw].
type Theme struct {
	Background    string `json:"background"`
	NodeFill      string `json:"node_fill"`
	CollapsedFill string `json:"collapsed_fill"`

	Male   string `json:"male"`
	Female string `json:"female"`
	Other  string `json:"other"`

	Link      string `json:"link"`
	Connector string `json:"connector"`
	Text      string `json:"text"`
	Muted     string `json:"muted"`
	Initials  string `json:"initials"`
	Indicator string `json:"indicator"`

	// FontSize is the base (1em) text size in diagram units.
	FontSize float64 `json:"font_size"`
}

// DefaultBackground is the export background color.
const DefaultBackground = "#1a1a2e"

// DefaultTheme is the dark theme of the web viewer.
func DefaultTheme() Theme {
	return Theme{
		Background:    DefaultBackground,
		NodeFill:      "#16213e",
		CollapsedFill: "#8b5cf6",
		Male:          "#3b82f6",
		Female:        "#ec4899",
		Other:         "#6366f1",
		Link:          "#4a5568",
		Connector:     "#f59e0b",
		Text:          "#e2e8f0",
		Muted:         "#94a3b8",
		Initials:      "#ffffff",
		Indicator:     "#6366f1",
		FontSize:      16,
	}
}

// WithDefaults returns a copy of th with empty fields taken from the default
// theme.
func (th Theme) WithDefaults() Theme {
	d := DefaultTheme()
	fill := func(v *string, def string) {
		if *v == "" {
			*v = def
		}
	}
	fill(&th.Background, d.Background)
	fill(&th.NodeFill, d.NodeFill)
	fill(&th.CollapsedFill, d.CollapsedFill)
	fill(&th.Male, d.Male)
	fill(&th.Female, d.Female)
	fill(&th.Other, d.Other)
	fill(&th.Link, d.Link)
	fill(&th.Connector, d.Connector)
	fill(&th.Text, d.Text)
	fill(&th.Muted, d.Muted)
	fill(&th.Initials, d.Initials)
	fill(&th.Indicator, d.Indicator)
	if th.FontSize <= 0 {
		th.FontSize = d.FontSize
	}
	return th
}

// GenderColor returns the border color for g.
func (th Theme) GenderColor(g family.Gender) string {
	switch g {
	case family.GenderMale:
		return th.Male
	case family.GenderFemale:
		return th.Female
	default:
		return th.Other
	}
}

// Label offsets and sizes in em.
const (
	nameOffset     = -2.5
	datesOffset    = 4.2
	initialsSize   = 1.2
	labelSize      = 0.9
	datesSize      = 0.75
	indicatorSize  = 0.8
	indicatorR     = 0.5
	charWidthRatio = 0.55
)

func textWidth(s string, size float64) float64 {
	return float64(len([]rune(s))) * size * charWidthRatio
}
