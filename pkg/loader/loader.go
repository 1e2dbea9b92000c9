// Package loader decodes dataset images and reports their dimensions.
package loader

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/patrickmn/go-cache"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/Willayat060/data-annotating-tool/internal/errors"
)

// Sizer reports the pixel dimensions of an image file.
type Sizer interface {
	Size(path string) (width, height int, err error)
}

// SizerFunc adapts a function to Sizer.
type SizerFunc func(path string) (int, int, error)

// Size calls f(path).
func (f SizerFunc) Size(path string) (int, int, error) { return f(path) }

// ImageInfo contains basic image metadata
type ImageInfo struct {
	Width       int
	Height      int
	Format      string
	AspectRatio float64
}

// Loader decodes images and caches header information per path.
type Loader struct {
	formats []string
	infos   *cache.Cache
}

// New creates a Loader accepting jpeg, png, bmp and webp files.
func New() *Loader {
	return NewWithFormats([]string{"jpeg", "png", "bmp", "webp"})
}

// NewWithFormats creates a Loader accepting the given decoder format names.
func NewWithFormats(formats []string) *Loader {
	return &Loader{
		formats: formats,
		// No expiry and no janitor: entries live until Forget.
		infos: cache.New(cache.NoExpiration, 0),
	}
}

// Info returns the dimensions and format of the image at path, reading only
// its header. Results are cached.
func (l *Loader) Info(path string) (ImageInfo, error) {
	if v, ok := l.infos.Get(path); ok {
		return v.(ImageInfo), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return ImageInfo{}, errors.New(err).
			Component("loader").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}
	defer f.Close()

	cfg, format, err := decodeConfig(f)
	if err != nil {
		return ImageInfo{}, errors.Newf("failed to read image header of %s: %w", path, err).
			Component("loader").
			Category(errors.CategoryFileParsing).
			Context("path", path).
			Build()
	}
	if !l.isFormatSupported(format) {
		return ImageInfo{}, errors.Newf("unsupported image format: %s", format).
			Component("loader").
			Category(errors.CategoryValidation).
			Context("path", path).
			Build()
	}

	info := ImageInfo{Width: cfg.Width, Height: cfg.Height, Format: format}
	if cfg.Height > 0 {
		info.AspectRatio = float64(cfg.Width) / float64(cfg.Height)
	}
	l.infos.Set(path, info, cache.NoExpiration)
	return info, nil
}

func decodeConfig(r io.ReadSeeker) (image.Config, string, error) {
	cfg, format, err := image.DecodeConfig(r)
	if err == nil {
		return cfg, format, nil
	}
	if _, serr := r.Seek(0, io.SeekStart); serr != nil {
		return image.Config{}, "", err
	}
	if wcfg, werr := webp.DecodeConfig(r); werr == nil {
		return wcfg, "webp", nil
	}
	return image.Config{}, "", err
}

// Size implements Sizer.
func (l *Loader) Size(path string) (int, int, error) {
	info, err := l.Info(path)
	if err != nil {
		return 0, 0, err
	}
	return info.Width, info.Height, nil
}

// Forget drops the cached header of path, e.g. after the file was replaced.
func (l *Loader) Forget(path string) {
	l.infos.Delete(path)
}

// Cached returns the number of cached headers.
func (l *Loader) Cached() int {
	return l.infos.ItemCount()
}

// LoadImage decodes the full image at path with WebP support
func (l *Loader) LoadImage(path string) (image.Image, error) {
	if img, err := imaging.Open(path); err == nil {
		l.infos.Set(path, infoOf(img, formatFromExt(path)), cache.NoExpiration)
		return img, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.New(err).
			Component("loader").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}
	defer f.Close()

	if img, err := webp.Decode(f); err == nil {
		l.infos.Set(path, infoOf(img, "webp"), cache.NoExpiration)
		return img, nil
	}
	if _, err := f.Seek(0, io.SeekStart); err == nil {
		if img, format, err := image.Decode(f); err == nil {
			l.infos.Set(path, infoOf(img, format), cache.NoExpiration)
			return img, nil
		}
	}
	return nil, errors.Newf("image: unknown format for %s", path).
		Component("loader").
		Category(errors.CategoryFileParsing).
		Context("path", path).
		Build()
}

func infoOf(img image.Image, format string) ImageInfo {
	b := img.Bounds()
	info := ImageInfo{Width: b.Dx(), Height: b.Dy(), Format: format}
	if b.Dy() > 0 {
		info.AspectRatio = float64(b.Dx()) / float64(b.Dy())
	}
	return info
}

func formatFromExt(path string) string {
	switch ext := strings.ToLower(path[strings.LastIndex(path, ".")+1:]); ext {
	case "jpg", "jpeg":
		return "jpeg"
	default:
		return ext
	}
}

func (l *Loader) isFormatSupported(format string) bool {
	for _, supported := range l.formats {
		if strings.EqualFold(format, supported) {
			return true
		}
	}
	return false
}

// String describes the accepted formats.
func (l *Loader) String() string {
	return fmt.Sprintf("loader(%s)", strings.Join(l.formats, ","))
}
