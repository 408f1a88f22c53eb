// Package render draws an assembled sweep spectrum as a PNG chart:
// power trace over frequency, axis scales and peak markers.
package render

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"math"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"

	"github.com/openrf/wsasweep/internal/spectrum"
)

const (
	dpi            = 120.0
	defaultWidth   = 1200
	defaultHeight  = 500
	fontSize       = 11.0
	tickMarkHeight = 5

	// Default border sizes in pixels
	defaultTopBorder    = 20
	defaultLeftBorder   = 70
	defaultBottomBorder = 50
	defaultRightBorder  = 20

	// Headroom above and below the trace, dB.
	powerMargin = 5
)

var (
	traceColor = color.RGBA{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff}
	gridColor  = color.RGBA{R: 0xd0, G: 0xd0, B: 0xd0, A: 0xff}
	peakColor  = color.RGBA{R: 0xd6, G: 0x27, B: 0x28, A: 0xff}
)

// BorderConfig defines the white space around the chart area.
type BorderConfig struct {
	Top    int
	Left   int // space for the power scale
	Bottom int // space for the frequency scale
	Right  int
}

// Config holds the chart options. FontPath names a TTF file used for
// axis and peak labels; when empty the chart is drawn without text.
type Config struct {
	Width    int
	Height   int
	FontPath string
	FontSize float64
	Borders  BorderConfig
}

// Renderer draws sweep spectra.
type Renderer struct {
	config   Config
	context  *freetype.Context
	fontFace font.Face
}

// New creates a renderer, loading the label font when configured.
func New(config Config) (*Renderer, error) {
	if config.Width == 0 {
		config.Width = defaultWidth
	}
	if config.Height == 0 {
		config.Height = defaultHeight
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

	r := Renderer{config: config}

	if config.FontPath != "" {
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

		r.context = ctx
		r.fontFace = truetype.NewFace(parsedFont, &truetype.Options{
			Size:    config.FontSize,
			DPI:     dpi,
			Hinting: font.HintingNone,
		})
	}

	return &r, nil
}

// Close releases the font face.
func (r *Renderer) Close() error {
	if r.fontFace != nil {
		return r.fontFace.Close()
	}
	return nil
}

// Render draws the spectrum trace with the given peaks marked.
func (r *Renderer) Render(buf *spectrum.Buffer, peaks []spectrum.Peak) (*image.RGBA, error) {
	if buf == nil || buf.Len() == 0 {
		return nil, fmt.Errorf("render: empty spectrum")
	}

	img := image.NewRGBA(image.Rect(0, 0, r.config.Width, r.config.Height))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	area := image.Rect(
		r.config.Borders.Left,
		r.config.Borders.Top,
		r.config.Width-r.config.Borders.Right,
		r.config.Height-r.config.Borders.Bottom,
	)

	bins := buf.Bins()
	pMin, pMax := powerBounds(bins)

	scale := chartScale{
		area: area,
		fMin: float64(buf.Config().FStart),
		fMax: float64(buf.Config().FStop),
		pMin: pMin,
		pMax: pMax,
	}

	if r.context != nil {
		r.context.SetClip(img.Bounds())
		r.context.SetDst(img)

		if err := r.drawFrequencyScale(img, scale); err != nil {
			return nil, fmt.Errorf("drawing frequency scale: %w", err)
		}
		if err := r.drawPowerScale(img, scale); err != nil {
			return nil, fmt.Errorf("drawing power scale: %w", err)
		}
	}

	r.drawTrace(img, scale, buf)
	if err := r.drawPeaks(img, scale, peaks); err != nil {
		return nil, fmt.Errorf("drawing peak markers: %w", err)
	}

	return img, nil
}

// RenderTo encodes the chart as PNG onto w.
func (r *Renderer) RenderTo(w io.Writer, buf *spectrum.Buffer, peaks []spectrum.Peak) error {
	img, err := r.Render(buf, peaks)
	if err != nil {
		return err
	}
	return png.Encode(w, img)
}

// chartScale maps frequency and power onto chart pixels.
type chartScale struct {
	area       image.Rectangle
	fMin, fMax float64
	pMin, pMax float64
}

func (s chartScale) x(freq float64) int {
	ratio := (freq - s.fMin) / (s.fMax - s.fMin)
	return s.area.Min.X + int(ratio*float64(s.area.Dx()-1))
}

func (s chartScale) y(power float64) int {
	ratio := (power - s.pMin) / (s.pMax - s.pMin)
	return s.area.Max.Y - 1 - int(ratio*float64(s.area.Dy()-1))
}

func powerBounds(bins []float64) (float64, float64) {
	pMin, pMax := math.Inf(1), math.Inf(-1)
	for _, p := range bins {
		pMin = math.Min(pMin, p)
		pMax = math.Max(pMax, p)
	}
	if pMax-pMin < 1 {
		pMax = pMin + 1
	}
	return pMin - powerMargin, pMax + powerMargin
}

func (r *Renderer) drawTrace(img *image.RGBA, scale chartScale, buf *spectrum.Buffer) {
	bins := buf.Bins()

	prevX, prevY := -1, 0
	for i, p := range bins {
		x := scale.x(buf.FrequencyAt(i))
		y := scale.y(p)
		if prevX >= 0 {
			drawLine(img, prevX, prevY, x, y, traceColor)
		}
		prevX, prevY = x, y
	}
}

func (r *Renderer) drawPeaks(img *image.RGBA, scale chartScale, peaks []spectrum.Peak) error {
	for _, p := range peaks {
		x := scale.x(p.Frequency)
		y := scale.y(p.Power)

		for d := -3; d <= 3; d++ {
			img.Set(x+d, y, peakColor)
			img.Set(x, y+d, peakColor)
		}

		if r.context == nil {
			continue
		}

		label := fmt.Sprintf("%.1f dBm @ %s", p.Power, humanize.SIWithDigits(p.Frequency, 3, "Hz"))
		width := font.MeasureString(r.fontFace, label).Round()
		lx := min(max(x-width/2, scale.area.Min.X), scale.area.Max.X-width)
		ly := max(y-8, scale.area.Min.Y+10)

		r.context.SetSrc(image.NewUniform(peakColor))
		if _, err := r.context.DrawString(label, freetype.Pt(lx, ly)); err != nil {
			return fmt.Errorf("drawing peak label: %w", err)
		}
		r.context.SetSrc(image.Black)
	}
	return nil
}

func (r *Renderer) drawFrequencyScale(img *image.RGBA, scale chartScale) error {
	step := niceStep(scale.fMax-scale.fMin, scale.area.Dx()/150)
	start := math.Ceil(scale.fMin/step) * step

	metrics := r.fontFace.Metrics()
	fontHeight := (metrics.Ascent + metrics.Descent).Round()
	textY := scale.area.Max.Y + tickMarkHeight + fontHeight

	for freq := start; freq <= scale.fMax; freq += step {
		x := scale.x(freq)

		for y := scale.area.Min.Y; y < scale.area.Max.Y; y++ {
			img.Set(x, y, gridColor)
		}
		for y := scale.area.Max.Y; y < scale.area.Max.Y+tickMarkHeight; y++ {
			img.Set(x, y, color.Black)
		}

		label := humanize.SIWithDigits(freq, 4, "Hz")
		width := font.MeasureString(r.fontFace, label).Round()
		if _, err := r.context.DrawString(label, freetype.Pt(x-width/2, textY)); err != nil {
			return fmt.Errorf("drawing frequency label: %w", err)
		}
	}
	return nil
}

func (r *Renderer) drawPowerScale(img *image.RGBA, scale chartScale) error {
	step := niceStep(scale.pMax-scale.pMin, scale.area.Dy()/60)

	metrics := r.fontFace.Metrics()
	fontHeight := (metrics.Ascent + metrics.Descent).Round()

	start := math.Ceil(scale.pMin/step) * step
	for p := start; p <= scale.pMax; p += step {
		y := scale.y(p)

		for x := scale.area.Min.X; x < scale.area.Max.X; x++ {
			img.Set(x, y, gridColor)
		}
		for x := scale.area.Min.X - tickMarkHeight; x < scale.area.Min.X; x++ {
			img.Set(x, y, color.Black)
		}

		label := fmt.Sprintf("%.0f dBm", p)
		width := font.MeasureString(r.fontFace, label).Round()
		pt := freetype.Pt(scale.area.Min.X-tickMarkHeight-width-4, y+fontHeight/2-metrics.Descent.Round())
		if _, err := r.context.DrawString(label, pt); err != nil {
			return fmt.Errorf("drawing power label: %w", err)
		}
	}
	return nil
}

// niceStep picks a 1/2/5 series step so roughly targetTicks ticks fit
// in the span.
func niceStep(span float64, targetTicks int) float64 {
	if targetTicks < 1 {
		targetTicks = 1
	}
	raw := span / float64(targetTicks)

	mag := math.Pow(10, math.Floor(math.Log10(raw)))
	switch {
	case raw/mag < 1.5:
		return mag
	case raw/mag < 3.5:
		return 2 * mag
	case raw/mag < 7.5:
		return 5 * mag
	default:
		return 10 * mag
	}
}

// drawLine draws a line segment using integer Bresenham stepping.
func drawLine(img *image.RGBA, x0, y0, x1, y1 int, c color.Color) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}

	err := dx + dy
	for {
		img.Set(x0, y0, c)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
