package imagegen

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"sync"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/lox/sameday/internal/models"
)

// CardWidth and CardHeight are the standard Open Graph image dimensions.
const (
	CardWidth  = 1200
	CardHeight = 630
)

var (
	fontLarge   font.Face
	fontRegular font.Face
	fontSmall   font.Face
	fontOnce    sync.Once
	fontErr     error
)

func newFace(data []byte, size float64) (font.Face, error) {
	f, err := opentype.Parse(data)
	if err != nil {
		return nil, err
	}
	return opentype.NewFace(f, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
}

func loadFonts() {
	fontOnce.Do(func() {
		var err error
		if fontLarge, err = newFace(gobold.TTF, 120); err != nil {
			fontErr = fmt.Errorf("create large face: %w", err)
			return
		}
		if fontRegular, err = newFace(goregular.TTF, 36); err != nil {
			fontErr = fmt.Errorf("create regular face: %w", err)
			return
		}
		if fontSmall, err = newFace(goregular.TTF, 22); err != nil {
			fontErr = fmt.Errorf("create small face: %w", err)
			return
		}
	})
}

var (
	white     = color.RGBA{255, 255, 255, 255}
	lightGray = color.RGBA{200, 200, 200, 255}
	hotRed    = color.RGBA{231, 76, 60, 255}
	coolBlue  = color.RGBA{52, 152, 219, 255}
	dimWhite  = color.RGBA{110, 110, 110, 110}
)

// RenderCard draws a share card for c. When banner is nil or cannot be
// decoded, a plain gradient background is used instead.
func RenderCard(c *models.Comparison, banner []byte) ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("render card: nil comparison")
	}
	loadFonts()
	if fontErr != nil {
		return nil, fmt.Errorf("load fonts: %w", fontErr)
	}

	dst := image.NewRGBA(image.Rect(0, 0, CardWidth, CardHeight))
	if !drawBanner(dst, banner) {
		drawGradientBackground(dst)
	}
	drawGradientOverlay(dst)
	drawSparkline(dst, c, image.Rect(660, 70, 1140, 330))
	drawTextOverlay(dst, c)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("encode card: %w", err)
	}
	return buf.Bytes(), nil
}

// drawBanner scales the banner to cover dst, cropping the centre.
func drawBanner(dst *image.RGBA, banner []byte) bool {
	if len(banner) == 0 {
		return false
	}
	src, _, err := image.Decode(bytes.NewReader(banner))
	if err != nil {
		return false
	}

	sb := src.Bounds()
	srcW, srcH := sb.Dx(), sb.Dy()
	if srcW == 0 || srcH == 0 {
		return false
	}

	// Largest source rectangle with the card's aspect ratio.
	cropW, cropH := srcW, srcW*CardHeight/CardWidth
	if cropH > srcH {
		cropW, cropH = srcH*CardWidth/CardHeight, srcH
	}
	x0 := sb.Min.X + (srcW-cropW)/2
	y0 := sb.Min.Y + (srcH-cropH)/2
	crop := image.Rect(x0, y0, x0+cropW, y0+cropH)

	draw.CatmullRom.Scale(dst, dst.Bounds(), src, crop, draw.Src, nil)
	return true
}

func drawGradientBackground(img *image.RGBA) {
	for y := 0; y < CardHeight; y++ {
		progress := float64(y) / float64(CardHeight)
		r := uint8(20 + progress*10)
		g := uint8(20 + progress*15)
		b := uint8(40 + progress*20)
		for x := 0; x < CardWidth; x++ {
			img.SetRGBA(x, y, color.RGBA{r, g, b, 255})
		}
	}
}

// drawGradientOverlay darkens the bottom of the image for text readability.
func drawGradientOverlay(img *image.RGBA) {
	bounds := img.Bounds()
	gradientHeight := 360

	for y := bounds.Max.Y - gradientHeight; y < bounds.Max.Y; y++ {
		progress := float64(y-(bounds.Max.Y-gradientHeight)) / float64(gradientHeight)
		progress = progress * progress
		darken(img, image.Rect(bounds.Min.X, y, bounds.Max.X, y+1), progress*0.85)
	}
}

func darken(img *image.RGBA, r image.Rectangle, alpha float64) {
	r = r.Intersect(img.Bounds())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			orig := img.RGBAAt(x, y)
			orig.R = uint8(float64(orig.R) * (1 - alpha))
			orig.G = uint8(float64(orig.G) * (1 - alpha))
			orig.B = uint8(float64(orig.B) * (1 - alpha))
			img.SetRGBA(x, y, orig)
		}
	}
}

func drawTextOverlay(img *image.RGBA, c *models.Comparison) {
	drawText(img, c.TargetDate.Format("January 2, 2006"), 60, 80, white, fontRegular)

	drawText(img, fmt.Sprintf("%.1f°C", c.TargetAvg), 60, CardHeight-200, white, fontLarge)

	diffColor := lightGray
	switch BandFor(c.DiffFromMean) {
	case BandHot:
		diffColor = hotRed
	case BandCold:
		diffColor = coolBlue
	}
	drawText(img, fmt.Sprintf("%+.1f°C vs the %.1f°C average", c.DiffFromMean, c.HistoricalMean),
		60, CardHeight-140, diffColor, fontRegular)

	drawText(img, fmt.Sprintf("%s hottest of %d years on record", Ordinal(c.HotRank), c.HistoricalCount),
		60, CardHeight-90, lightGray, fontRegular)

	drawText(img, "sameday", 60, CardHeight-35, lightGray, fontSmall)
}

// drawSparkline plots the cohort's averages by year inside r, with the
// historical mean as a faint guide and the target year highlighted.
func drawSparkline(img *image.RGBA, c *models.Comparison, r image.Rectangle) {
	if len(c.Cohort) == 0 {
		return
	}
	darken(img, r.Inset(-16), 0.45)

	lo, hi := c.HistoricalMin, c.HistoricalMax
	if hi-lo < 1 {
		mid := (hi + lo) / 2
		lo, hi = mid-0.5, mid+0.5
	}
	n := len(c.Cohort)

	point := func(i int, v float64) (int, int) {
		x := r.Min.X + r.Dx()/2
		if n > 1 {
			x = r.Min.X + i*r.Dx()/(n-1)
		}
		y := r.Max.Y - int(math.Round((v-lo)/(hi-lo)*float64(r.Dy())))
		return x, y
	}

	_, meanY := point(0, c.HistoricalMean)
	for x := r.Min.X; x < r.Max.X; x += 12 {
		drawLine(img, x, meanY, min(x+6, r.Max.X), meanY, dimWhite, 1)
	}

	var px, py int
	targetIdx := -1
	for i, rec := range c.Cohort {
		x, y := point(i, rec.AvgTemp.Float64)
		if i > 0 {
			drawLine(img, px, py, x, y, coolBlue, 3)
		}
		px, py = x, y
		if targetIdx < 0 && rec.Year == c.TargetDate.Year() && rec.AvgTemp.Float64 == c.TargetAvg {
			targetIdx = i
		}
	}

	if targetIdx >= 0 {
		x, y := point(targetIdx, c.TargetAvg)
		fillCircle(img, x, y, 10, white)
		fillCircle(img, x, y, 7, hotRed)
	}

	first, last := c.Cohort[0].Year, c.Cohort[n-1].Year
	drawText(img, fmt.Sprintf("%d", first), r.Min.X, r.Max.Y+40, lightGray, fontSmall)
	lastLabel := fmt.Sprintf("%d", last)
	drawText(img, lastLabel, r.Max.X-font.MeasureString(fontSmall, lastLabel).Round(), r.Max.Y+40, lightGray, fontSmall)
}

func drawText(img *image.RGBA, text string, x, y int, col color.Color, face font.Face) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(col),
		Face: face,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}

func drawLine(img *image.RGBA, x0, y0, x1, y1 int, col color.RGBA, width int) {
	steps := max(abs(x1-x0), abs(y1-y0), 1)
	src := image.NewUniform(col)
	half := width / 2
	for i := 0; i <= steps; i++ {
		x := x0 + (x1-x0)*i/steps
		y := y0 + (y1-y0)*i/steps
		dot := image.Rect(x-half, y-half, x-half+width, y-half+width)
		draw.Draw(img, dot, src, image.Point{}, draw.Over)
	}
}

func fillCircle(img *image.RGBA, cx, cy, radius int, col color.RGBA) {
	for y := -radius; y <= radius; y++ {
		for x := -radius; x <= radius; x++ {
			if x*x+y*y <= radius*radius {
				if p := (image.Point{X: cx + x, Y: cy + y}); p.In(img.Bounds()) {
					img.SetRGBA(p.X, p.Y, col)
				}
			}
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// Ordinal formats n as "1st", "2nd", "3rd", "4th", "11th" and so on.
func Ordinal(n int) string {
	suffix := "th"
	switch n % 100 {
	case 11, 12, 13:
	default:
		switch n % 10 {
		case 1:
			suffix = "st"
		case 2:
			suffix = "nd"
		case 3:
			suffix = "rd"
		}
	}
	return fmt.Sprintf("%d%s", n, suffix)
}
