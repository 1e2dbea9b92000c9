// Package render draws annotated views of an image: the visible viewport with
// its boxes, or the whole image with every box, and writes them to disk.
package render

import (
	"image"
	"image/color"
	"math"
	"os"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"

	"github.com/Willayat060/data-annotating-tool/internal/errors"
	"github.com/Willayat060/data-annotating-tool/pkg/selection"
	"github.com/Willayat060/data-annotating-tool/pkg/transform"
	"github.com/Willayat060/data-annotating-tool/pkg/types"
)

// Colors used for box outlines.
var (
	Background = color.NRGBA{32, 32, 32, 255}
	Passive    = color.NRGBA{128, 128, 128, 255}
	Active     = color.NRGBA{0, 255, 0, 255}
	Handle     = color.NRGBA{255, 0, 0, 255}
)

const (
	passiveStroke = 1
	activeStroke  = 3
)

// View renders what a vpW x vpH viewport shows of img under tr. The visible
// part of the image is scaled with nearest-neighbour sampling, boxes are
// outlined and the active box (index into boxes, -1 for none) gets corner
// handles.
func View(img image.Image, tr *transform.Transform, boxes []types.Box, active, vpW, vpH int) *image.NRGBA {
	canvas := imaging.New(vpW, vpH, Background)

	window := tr.VisibleWindow(float64(vpW), float64(vpH))
	if !window.Empty() {
		src := window.Add(img.Bounds().Min)
		dispW := int(float64(window.Dx()) * tr.View.Zoom)
		dispH := int(float64(window.Dy()) * tr.View.Zoom)
		if dispW > 0 && dispH > 0 {
			scaled := image.NewNRGBA(image.Rect(0, 0, dispW, dispH))
			draw.NearestNeighbor.Scale(scaled, scaled.Bounds(), img, src, draw.Src, nil)

			drawX := int((float64(window.Min.X) - tr.View.OriginX) * tr.View.Zoom)
			drawY := int((float64(window.Min.Y) - tr.View.OriginY) * tr.View.Zoom)
			canvas = imaging.Paste(canvas, scaled, image.Pt(drawX, drawY))
		}
	}

	for i, b := range boxes {
		if i == active {
			continue
		}
		drawRect(canvas, tr.BoxToView(b), Passive, passiveStroke)
	}
	if active >= 0 && active < len(boxes) {
		r := tr.BoxToView(boxes[active])
		drawRect(canvas, r, Active, activeStroke)
		drawHandles(canvas, r, selection.HandleRadius)
	}
	return canvas
}

// Overlay draws every box over a copy of the full image at its native size.
func Overlay(img image.Image, boxes []types.Box, active int) *image.NRGBA {
	nrgba := imaging.Clone(img)
	w := nrgba.Bounds().Dx()
	h := nrgba.Bounds().Dy()
	tr := transform.New(w, h, 0, 0)

	// ~0.4% of min side
	stroke := int(math.Max(2, 0.004*float64(min(w, h))))

	for i, b := range boxes {
		if i == active {
			continue
		}
		drawRect(nrgba, tr.BoxToView(b), Passive, stroke)
	}
	if active >= 0 && active < len(boxes) {
		drawRect(nrgba, tr.BoxToView(boxes[active]), Active, stroke+1)
	}
	return nrgba
}

// Save writes img to path in the given format (png, jpg or webp).
func Save(img image.Image, path, format string, quality int) error {
	var err error
	switch strings.ToLower(format) {
	case "webp":
		var f *os.File
		f, err = os.Create(path)
		if err == nil {
			err = webp.Encode(f, img, &webp.Options{Quality: float32(quality)})
			if cerr := f.Close(); err == nil {
				err = cerr
			}
		}
	case "png":
		err = imaging.Save(img, path)
	case "jpg", "jpeg":
		err = imaging.Save(img, path, imaging.JPEGQuality(quality))
	default:
		return errors.Newf("unsupported output format: %s", format).
			Component("render").
			Category(errors.CategoryValidation).
			Build()
	}
	if err != nil {
		return errors.New(err).
			Component("render").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}
	return nil
}

func drawRect(img *image.NRGBA, r types.PixelRect, c color.NRGBA, stroke int) {
	x0 := int(math.Round(math.Min(r.Left, r.Right)))
	y0 := int(math.Round(math.Min(r.Top, r.Bottom)))
	x1 := int(math.Round(math.Max(r.Left, r.Right)))
	y1 := int(math.Round(math.Max(r.Top, r.Bottom)))
	if x1 <= x0 {
		x1 = x0 + 1
	}
	if y1 <= y0 {
		y1 = y0 + 1
	}
	for s := 0; s < stroke; s++ {
		drawHLine(img, y0+s, x0, x1, c)
		drawHLine(img, y1-1-s, x0, x1, c)
		drawVLine(img, x0+s, y0, y1, c)
		drawVLine(img, x1-1-s, y0, y1, c)
	}
}

func drawHandles(img *image.NRGBA, r types.PixelRect, radius float64) {
	hs := int(radius)
	for _, p := range [4][2]float64{
		{r.Left, r.Top}, {r.Right, r.Top}, {r.Left, r.Bottom}, {r.Right, r.Bottom},
	} {
		x := int(math.Round(p[0]))
		y := int(math.Round(p[1]))
		for yy := y - hs; yy <= y+hs; yy++ {
			drawHLine(img, yy, x-hs, x+hs+1, Handle)
		}
	}
}

func drawHLine(img *image.NRGBA, y, x0, x1 int, c color.NRGBA) {
	if y < 0 || y >= img.Bounds().Dy() {
		return
	}
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	if x1 <= 0 || x0 >= img.Bounds().Dx() {
		return
	}
	x0 = max(x0, 0)
	x1 = min(x1, img.Bounds().Dx())
	i := y*img.Stride + x0*4
	for x := x0; x < x1; x++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += 4
	}
}

func drawVLine(img *image.NRGBA, x, y0, y1 int, c color.NRGBA) {
	if x < 0 || x >= img.Bounds().Dx() {
		return
	}
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	if y1 <= 0 || y0 >= img.Bounds().Dy() {
		return
	}
	y0 = max(y0, 0)
	y1 = min(y1, img.Bounds().Dy())
	i := y0*img.Stride + x*4
	for y := y0; y < y1; y++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += img.Stride
	}
}
