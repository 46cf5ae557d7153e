package app

import (
	"image/color"
	"math"

	"github.com/lucasb-eyer/go-colorful"
)

// ColorTheme represents a predefined color scheme for magnitude rendering:
// - ClassicTheme: Traditional spectrum display (blue to red)
// - GrayscaleTheme: Monochrome visualization
// - ThermalTheme: Heat map visualization
// - MarineTheme: Water-depth inspired colors
type ColorTheme string

const (
	ClassicTheme   ColorTheme = "classic"
	GrayscaleTheme ColorTheme = "grayscale"
	ThermalTheme   ColorTheme = "thermal"
	MarineTheme    ColorTheme = "marine"

	DefaultColorMapSize = 256
)

// noDataColor marks bins with no signal: silence rows carry NaN.
var noDataColor = color.Black

// ColorMapper provides magnitude-to-color mapping with pre-computed colors
// and dynamic range adjustment
type ColorMapper struct {
	colorMap      []color.Color
	theme         func(float64) color.Color
	themeName     ColorTheme
	size          int
	powerPerIndex float64
	boundsMin     float64
}

// NewColorMapper creates a color mapper with the specified theme and bounds
func NewColorMapper(theme ColorTheme, bounds PowerBounds) *ColorMapper {
	cm := &ColorMapper{
		colorMap:  make([]color.Color, DefaultColorMapSize),
		theme:     getColorTheme(theme),
		themeName: theme,
		size:      DefaultColorMapSize,
	}
	cm.UpdateBounds(bounds)
	return cm
}

// UpdateBounds updates the magnitude bounds and recomputes the color map
func (cm *ColorMapper) UpdateBounds(bounds PowerBounds) {
	cm.boundsMin = bounds.Min
	cm.powerPerIndex = (bounds.Max - bounds.Min) / float64(cm.size-1)

	for i := 0; i < cm.size; i++ {
		normalized := float64(i) / float64(cm.size-1)
		cm.colorMap[i] = cm.theme(normalized)
	}
}

// GetColor returns a color for the given magnitude value
func (cm *ColorMapper) GetColor(power float64) color.Color {
	if math.IsNaN(power) || math.IsInf(power, 0) {
		return noDataColor
	}

	index := int((power - cm.boundsMin) / cm.powerPerIndex)
	if index < 0 {
		return cm.colorMap[0]
	}
	if index >= cm.size {
		return cm.colorMap[cm.size-1]
	}
	return cm.colorMap[index]
}

// ThemeName returns the current color theme name
func (cm *ColorMapper) ThemeName() ColorTheme {
	return cm.themeName
}

func getColorTheme(theme ColorTheme) func(float64) color.Color {
	switch theme {
	case GrayscaleTheme:
		return func(power float64) color.Color {
			v := uint8(math.Pow(power, 0.7) * 255)
			return color.RGBA{R: v, G: v, B: v, A: 255}
		}

	case ThermalTheme: // Black -> Red -> Yellow -> White
		return func(power float64) color.Color {
			if power < 0.33 {
				return color.RGBA{R: uint8(power * 3 * 255), A: 255}
			}
			if power < 0.66 {
				return color.RGBA{R: 255, G: uint8((power - 0.33) * 3 * 255), A: 255}
			}
			return color.RGBA{R: 255, G: 255, B: uint8((power - 0.66) * 3 * 255), A: 255}
		}

	case MarineTheme: // Deep Blue -> Cyan -> White
		return func(power float64) color.Color {
			return toRGBA(colorful.Hsv(
				240-(power*60),
				1.0-(power*0.8),
				0.3+(math.Pow(power, 0.6)*0.7)))
		}

	default: // ClassicTheme, Blue -> Red
		return func(power float64) color.Color {
			return toRGBA(colorful.Hsv(
				240-(power*240),
				0.9+(power*0.1),
				math.Pow(power, 0.7)))
		}
	}
}

func toRGBA(c colorful.Color) color.Color {
	r, g, b := c.Clamped().RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 255}
}
