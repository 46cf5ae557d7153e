package app

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
)

const (
	dpi            = 120.0
	fontSize       = 12.0
	tickMarkHeight = 5
	pixelsPerLabel = 150.0

	// Default border sizes in pixels
	defaultTopBorder    = 40
	defaultLeftBorder   = 80
	defaultBottomBorder = 40
	defaultRightBorder  = 40

	defaultTimeFormat     = "15:04:05"
	defaultDatetimeFormat = time.DateTime
)

// BorderConfig defines the sizes of white space around the waterfall
type BorderConfig struct {
	Top    int // Space for frequency scale
	Left   int // Space for time scale
	Bottom int // Space for information bar
	Right  int // Right padding
}

// RenderConfig holds all configuration options for waterfall rendering
type RenderConfig struct {
	TimeFormat     string         // Format string for time labels
	DatetimeFormat string         // Format string for the info bar
	Location       *time.Location // Timezone for time display

	FontPath string  // TTF font for annotations; empty disables them
	FontSize float64 // Font size in points
	Theme    ColorTheme

	Borders BorderConfig
}

// Renderer draws the accumulated waterfall onto an image
type Renderer struct {
	colorMap *ColorMapper
	config   RenderConfig
}

// NewRenderer creates a renderer with the given configuration
func NewRenderer(config RenderConfig) *Renderer {
	if config.TimeFormat == "" {
		config.TimeFormat = defaultTimeFormat
	}
	if config.DatetimeFormat == "" {
		config.DatetimeFormat = defaultDatetimeFormat
	}
	if config.Location == nil {
		config.Location = time.Local
	}
	if config.FontSize == 0 {
		config.FontSize = fontSize
	}
	if config.Borders.Top == 0 {
		config.Borders.Top = defaultTopBorder
	}
	if config.Borders.Left == 0 {
		config.Borders.Left = defaultLeftBorder
	}
	if config.Borders.Bottom == 0 {
		config.Borders.Bottom = defaultBottomBorder
	}
	if config.Borders.Right == 0 {
		config.Borders.Right = defaultRightBorder
	}

	return &Renderer{config: config}
}

// Render creates an image of the waterfall with annotations. Annotations
// require a font file; without one only the waterfall area is drawn.
func (r *Renderer) Render(data *WaterfallData, bounds PowerBounds) (*image.RGBA, error) {
	fullWidth := data.Width + r.config.Borders.Left + r.config.Borders.Right
	fullHeight := data.Height + r.config.Borders.Top + r.config.Borders.Bottom
	img := image.NewRGBA(image.Rect(0, 0, fullWidth, fullHeight))

	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	area := image.Rect(
		r.config.Borders.Left,
		r.config.Borders.Top,
		r.config.Borders.Left+data.Width,
		r.config.Borders.Top+data.Height,
	)

	if r.colorMap == nil {
		r.colorMap = NewColorMapper(r.config.Theme, bounds)
	} else {
		r.colorMap.UpdateBounds(bounds)
	}

	if r.config.FontPath != "" {
		ann, err := newAnnotator(r.config)
		if err != nil {
			return nil, fmt.Errorf("creating annotator: %w", err)
		}
		defer ann.Close()

		if err = ann.annotate(img, data); err != nil {
			return nil, fmt.Errorf("drawing annotations: %w", err)
		}
	}

	r.renderWaterfall(img, area, data)

	return img, nil
}

func (r *Renderer) renderWaterfall(img *image.RGBA, area image.Rectangle, data *WaterfallData) {
	for y, row := range data.Rows {
		imgY := area.Min.Y + y
		for x, power := range row {
			img.Set(area.Min.X+x, imgY, r.colorMap.GetColor(power))
		}
	}
}

type annotator struct {
	context  *freetype.Context
	config   RenderConfig
	fontFace font.Face
}

func newAnnotator(config RenderConfig) (*annotator, error) {
	fontBytes, err := os.ReadFile(config.FontPath)
	if err != nil {
		return nil, fmt.Errorf("reading font: %w", err)
	}
	parsedFont, err := freetype.ParseFont(fontBytes)
	if err != nil {
		return nil, fmt.Errorf("parsing font: %w", err)
	}

	ctx := freetype.NewContext()
	ctx.SetDPI(dpi)
	ctx.SetFont(parsedFont)
	ctx.SetFontSize(config.FontSize)
	ctx.SetHinting(font.HintingNone)
	ctx.SetSrc(image.Black)

	return &annotator{
		context: ctx,
		config:  config,
		fontFace: truetype.NewFace(parsedFont, &truetype.Options{
			Size:    config.FontSize,
			DPI:     dpi,
			Hinting: font.HintingNone,
		}),
	}, nil
}

func (a *annotator) Close() error {
	if a.fontFace != nil {
		return a.fontFace.Close()
	}
	return nil
}

func (a *annotator) annotate(img *image.RGBA, data *WaterfallData) error {
	a.context.SetClip(img.Bounds())
	a.context.SetDst(img)

	if err := a.drawFrequencyScale(img, data); err != nil {
		return fmt.Errorf("drawing frequency scale: %w", err)
	}
	if err := a.drawTimeScale(img, data); err != nil {
		return fmt.Errorf("drawing time scale: %w", err)
	}
	if err := a.drawInfoBar(img, data); err != nil {
		return fmt.Errorf("drawing info bar: %w", err)
	}

	return nil
}

func (a *annotator) drawFrequencyScale(img *image.RGBA, data *WaterfallData) error {
	freqStep := calculateNiceFrequencyStep(data.FreqHigh-data.FreqLow, data.Width)
	startFreq := math.Ceil(data.FreqLow/freqStep) * freqStep

	metrics := a.fontFace.Metrics()
	fontHeight := (metrics.Ascent + metrics.Descent).Round()
	textY := a.config.Borders.Top - tickMarkHeight - fontHeight/2

	for freq := startFreq; freq <= data.FreqHigh; freq += freqStep {
		xRatio := (freq - data.FreqLow) / (data.FreqHigh - data.FreqLow)
		x := a.config.Borders.Left + int(xRatio*float64(data.Width))

		for y := a.config.Borders.Top - tickMarkHeight; y < a.config.Borders.Top; y++ {
			img.Set(x, y, color.Black)
		}

		label := formatFrequency(freq)
		width := font.MeasureString(a.fontFace, label)
		pt := freetype.Pt(x-(width.Round()/2), textY)
		if _, err := a.context.DrawString(label, pt); err != nil {
			return fmt.Errorf("drawing frequency label: %w", err)
		}
	}
	return nil
}

func (a *annotator) drawTimeScale(img *image.RGBA, data *WaterfallData) error {
	duration := data.TimestampEnd.Sub(data.TimestampStart)
	if duration <= 0 || data.Height < 2 {
		return nil
	}

	rowStep := timeLabelRowStep(data.Height)
	rowDuration := duration / time.Duration(data.Height-1)

	metrics := a.fontFace.Metrics()
	fontHeight := (metrics.Ascent + metrics.Descent).Round()

	for y := 0; y < data.Height; y += rowStep {
		imgY := y + a.config.Borders.Top

		for x := a.config.Borders.Left - tickMarkHeight; x < a.config.Borders.Left; x++ {
			img.Set(x, imgY, color.Black)
		}

		textY := imgY + fontHeight/2 - metrics.Descent.Round()

		at := data.TimestampStart.Add(rowDuration * time.Duration(y)).In(a.config.Location)
		pt := freetype.Pt(10, textY)
		if _, err := a.context.DrawString(at.Format(a.config.TimeFormat), pt); err != nil {
			return fmt.Errorf("drawing time label: %w", err)
		}
	}
	return nil
}

func (a *annotator) drawInfoBar(img *image.RGBA, data *WaterfallData) error {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Freq: %s - %s",
		formatFrequency(data.FreqLow), formatFrequency(data.FreqHigh)))
	sb.WriteString("; ")
	sb.WriteString(fmt.Sprintf("Time: %s - %s",
		data.TimestampStart.In(a.config.Location).Format(a.config.DatetimeFormat),
		data.TimestampEnd.In(a.config.Location).Format(a.config.DatetimeFormat)))

	freqPerPixel := (data.FreqHigh - data.FreqLow) / float64(data.Width)
	sb.WriteString("; ")
	sb.WriteString(fmt.Sprintf("1px = %s", formatFrequency(freqPerPixel)))

	metrics := a.fontFace.Metrics()
	fontHeight := (metrics.Ascent + metrics.Descent).Round()
	textY := img.Bounds().Max.Y - (a.config.Borders.Bottom-fontHeight)/2 - metrics.Descent.Round()

	pt := freetype.Pt(a.config.Borders.Left, textY)
	if _, err := a.context.DrawString(sb.String(), pt); err != nil {
		return fmt.Errorf("drawing info text: %w", err)
	}

	return nil
}

// Helper functions

func calculateNiceFrequencyStep(span float64, width int) float64 {
	// Standard step sizes in Hz
	steps := []float64{1, 5, 10, 50, 100, 500, 1_000, 5_000, 10_000}

	desiredSteps := float64(width) / pixelsPerLabel
	targetStep := span / desiredSteps

	for _, step := range steps {
		if step >= targetStep {
			if span/step >= 2 {
				return step
			}
			break
		}
	}

	// Fall back to half the span to show at least the centre frequency
	return span / 2
}

// timeLabelRowStep spaces time labels roughly 100 pixels apart.
func timeLabelRowStep(height int) int {
	step := height / 8
	if step < 20 {
		step = 20
	}
	return step
}

func formatFrequency(freq float64) string {
	fract, suffix := humanize.ComputeSI(freq)
	return fmt.Sprintf("%0.1f %sHz", fract, suffix)
}
