package assist

import (
	"context"
	"image"
	"math"

	"github.com/disintegration/imaging"

	"github.com/Willayat060/data-annotating-tool/internal/errors"
	"github.com/Willayat060/data-annotating-tool/pkg/types"
)

// SaliencyConfig tunes the local proposer.
type SaliencyConfig struct {
	// MaxDim is the longer side the image is reduced to before analysis.
	MaxDim int
	// PeakRatio keeps pixels whose saliency is at least this share of the peak.
	PeakRatio float64
	// MinSubjectRatio is the smallest box area, as a share of the image, worth proposing.
	MinSubjectRatio float64
}

// DefaultSaliencyConfig returns the settings used by NewSaliency.
func DefaultSaliencyConfig() SaliencyConfig {
	return SaliencyConfig{
		MaxDim:          256,
		PeakRatio:       0.3,
		MinSubjectRatio: 0.001,
	}
}

// Saliency proposes the bounding box of the high-contrast part of an image.
// It needs no model server.
type Saliency struct {
	config SaliencyConfig
}

// NewSaliency creates a saliency proposer with default settings.
func NewSaliency() *Saliency {
	return NewSaliencyWithConfig(DefaultSaliencyConfig())
}

// NewSaliencyWithConfig creates a saliency proposer with custom settings.
func NewSaliencyWithConfig(cfg SaliencyConfig) *Saliency {
	return &Saliency{config: cfg}
}

// Propose returns a class 0 box around the salient pixels of img.
func (s *Saliency) Propose(ctx context.Context, img image.Image) (types.Proposal, error) {
	if err := ctx.Err(); err != nil {
		return types.Proposal{}, err
	}

	src := s.prepare(img)
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	if w == 0 || h == 0 {
		return types.Proposal{}, s.noSubject()
	}

	sal := saliencyMap(src)
	peak := 0.0
	for _, v := range sal {
		peak = math.Max(peak, v)
	}
	if peak == 0 {
		return types.Proposal{}, s.noSubject()
	}

	threshold := math.Max(s.config.PeakRatio*peak, meanPlusStd(sal, 2))
	x0, y0, x1, y1 := w, h, -1, -1
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if sal[y*w+x] < threshold {
				continue
			}
			x0 = min(x0, x)
			y0 = min(y0, y)
			x1 = max(x1, x)
			y1 = max(y1, y)
		}
	}
	if x1 < x0 || y1 < y0 {
		return types.Proposal{}, s.noSubject()
	}

	region := types.Region{
		X: float64(x0) / float64(w),
		Y: float64(y0) / float64(h),
		W: float64(x1-x0+1) / float64(w),
		H: float64(y1-y0+1) / float64(h),
	}
	if region.W*region.H < s.config.MinSubjectRatio {
		return types.Proposal{}, s.noSubject()
	}

	return types.Proposal{
		Box:        region.ToBox(0),
		Label:      "salient region",
		Confidence: regionScore(sal, w, x0, y0, x1, y1) / peak,
		Source:     BackendSaliency,
	}, nil
}

func (s *Saliency) prepare(img image.Image) *image.NRGBA {
	b := img.Bounds()
	if s.config.MaxDim > 0 && (b.Dx() > s.config.MaxDim || b.Dy() > s.config.MaxDim) {
		return imaging.Fit(img, s.config.MaxDim, s.config.MaxDim, imaging.Box)
	}
	return imaging.Clone(img)
}

func (s *Saliency) noSubject() error {
	return errors.New(errors.ErrNoSubject).
		Component("assist").
		Category(errors.CategoryNotFound).
		Context("backend", BackendSaliency).
		Build()
}

// saliencyMap scores every pixel by its mean color distance to its eight
// neighbours, scaled to [0,1].
func saliencyMap(img *image.NRGBA) []float64 {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	out := make([]float64, w*h)
	maxDiff := math.Sqrt(3) * 255

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*img.Stride + x*4
			r1, g1, b1 := float64(img.Pix[i]), float64(img.Pix[i+1]), float64(img.Pix[i+2])

			var edge float64
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					if dx == 0 && dy == 0 {
						continue
					}
					nx, ny := x+dx, y+dy
					if nx < 0 || nx >= w || ny < 0 || ny >= h {
						continue
					}
					j := ny*img.Stride + nx*4
					dr := r1 - float64(img.Pix[j])
					dg := g1 - float64(img.Pix[j+1])
					db := b1 - float64(img.Pix[j+2])
					edge += math.Sqrt(dr*dr+dg*dg+db*db) / maxDiff
				}
			}
			out[y*w+x] = edge / 8
		}
	}
	return out
}

func meanPlusStd(vals []float64, k float64) float64 {
	var sum, sq float64
	for _, v := range vals {
		sum += v
		sq += v * v
	}
	n := float64(len(vals))
	mean := sum / n
	return mean + k*math.Sqrt(math.Max(0, sq/n-mean*mean))
}

func regionScore(sal []float64, w, x0, y0, x1, y1 int) float64 {
	var total float64
	count := 0
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			total += sal[y*w+x]
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return total / float64(count)
}
