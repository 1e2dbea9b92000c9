// Package labels reads and writes per-image label files: one
// "classId cx cy w h" line per box, geometry normalized to the image size.
package labels

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Willayat060/data-annotating-tool/internal/errors"
	"github.com/Willayat060/data-annotating-tool/pkg/types"
)

// SkippedLine describes a line that Decode could not turn into a box.
type SkippedLine struct {
	Line   int
	Text   string
	Reason string
}

// Result is the outcome of decoding one label file.
type Result struct {
	Boxes   []types.Box
	Skipped []SkippedLine
	// Pixel counts lines that were read as pixel coordinates and normalized.
	Pixel int
}

// Err returns a joined ErrMalformedLabelLine error describing every skipped
// line, or nil when all lines decoded.
func (r Result) Err() error {
	if len(r.Skipped) == 0 {
		return nil
	}
	errs := make([]error, 0, len(r.Skipped))
	for _, s := range r.Skipped {
		errs = append(errs, fmt.Errorf("line %d: %s: %w", s.Line, s.Reason, errors.ErrMalformedLabelLine))
	}
	return errors.Join(errs...)
}

// Encode renders boxes in label file form, one line per box in order.
func Encode(boxes []types.Box) string {
	var sb strings.Builder
	for _, b := range boxes {
		fmt.Fprintf(&sb, "%d %.6f %.6f %.6f %.6f\n", b.ClassID, b.CX, b.CY, b.W, b.H)
	}
	return sb.String()
}

// Decode parses label text. Fields may be separated by whitespace or commas.
// When cx or cy exceeds 1 the whole line is taken as pixels of a width x height
// image and normalized.
func Decode(text string, width, height int) Result {
	var res Result

	for i, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(strings.ReplaceAll(raw, ",", " "))
		if line == "" {
			continue
		}
		box, pixel, reason := decodeLine(line, width, height)
		if reason != "" {
			res.Skipped = append(res.Skipped, SkippedLine{Line: i + 1, Text: raw, Reason: reason})
			continue
		}
		if pixel {
			res.Pixel++
		}
		res.Boxes = append(res.Boxes, box)
	}
	return res
}

func decodeLine(line string, width, height int) (types.Box, bool, string) {
	fields := strings.Fields(line)
	if len(fields) < 5 {
		return types.Box{}, false, fmt.Sprintf("expected 5 fields, got %d", len(fields))
	}

	var vals [5]float64
	for j := range vals {
		v, err := strconv.ParseFloat(fields[j], 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return types.Box{}, false, fmt.Sprintf("field %d %q is not a number", j+1, fields[j])
		}
		vals[j] = v
	}

	box := types.Box{
		ClassID: int(math.Trunc(vals[0])),
		CX:      vals[1],
		CY:      vals[2],
		W:       vals[3],
		H:       vals[4],
	}

	pixel := box.CX > 1 || box.CY > 1
	if pixel {
		if width <= 0 || height <= 0 {
			return types.Box{}, false, "pixel coordinates without image size"
		}
		box.CX /= float64(width)
		box.W /= float64(width)
		box.CY /= float64(height)
		box.H /= float64(height)
	}

	if !box.Valid() {
		return types.Box{}, false, "non-positive width or height"
	}
	return box, pixel, ""
}

// ReadFile decodes the label file at path. A missing file yields an empty
// result and no error; any other read failure is returned.
func ReadFile(path string, width, height int) (Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{}, nil
		}
		return Result{}, errors.New(err).
			Component("labels").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}
	return Decode(string(data), width, height), nil
}

// WriteFile replaces the label file at path with boxes, creating the parent
// directory when needed. The file is written to a temporary sibling and
// renamed into place.
func WriteFile(path string, boxes []types.Box) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return unwritable(path, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return unwritable(path, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.WriteString(Encode(boxes)); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return unwritable(path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return unwritable(path, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return unwritable(path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return unwritable(path, err)
	}
	return nil
}

func unwritable(path string, err error) error {
	return errors.Newf("write %s: %w: %w", path, errors.ErrUnwritableLabelPath, err).
		Component("labels").
		Category(errors.CategoryFileIO).
		Context("path", path).
		Build()
}
