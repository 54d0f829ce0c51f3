// Package compare decides whether a captured screenshot matches its
// baseline under a perceptual tolerance model.
package compare

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"

	"github.com/orisano/pixelmatch"
)

// Tolerance bounds how different two screenshots may be. All three bounds
// must hold for a comparison to pass.
type Tolerance struct {
	// MaxDiffPixels is the largest number of differing pixels allowed.
	MaxDiffPixels int `yaml:"max_diff_pixels" json:"maxDiffPixels"`
	// Threshold is the per-pixel color distance, 0 to 1, above which a
	// pixel counts as different.
	Threshold float64 `yaml:"threshold" json:"threshold"`
	// MaxDiffPixelRatio is the largest fraction of all pixels that may differ.
	MaxDiffPixelRatio float64 `yaml:"max_diff_pixel_ratio" json:"maxDiffPixelRatio"`
}

// DefaultTolerance is 50 pixels, a 0.05 color threshold, and a 0.5% ratio.
func DefaultTolerance() Tolerance {
	return Tolerance{MaxDiffPixels: 50, Threshold: 0.05, MaxDiffPixelRatio: 0.005}
}

// Validate rejects bounds outside their meaningful range.
func (t Tolerance) Validate() error {
	if t.MaxDiffPixels < 0 {
		return fmt.Errorf("max_diff_pixels must not be negative")
	}
	if t.Threshold < 0 || t.Threshold > 1 {
		return fmt.Errorf("threshold must be between 0 and 1")
	}
	if t.MaxDiffPixelRatio < 0 || t.MaxDiffPixelRatio > 1 {
		return fmt.Errorf("max_diff_pixel_ratio must be between 0 and 1")
	}
	return nil
}

// Result is the outcome of one comparison.
type Result struct {
	Pass        bool
	DiffPixels  int
	TotalPixels int
	Ratio       float64
	// Reason explains a failure.
	Reason string
	// Diff highlights differing pixels. Nil when the images are identical
	// or their sizes differ.
	Diff image.Image
}

// Compare decodes two PNGs and compares them. Errors are returned only for
// undecodable input; a mismatch is a Result with Pass false.
func Compare(actual, expected []byte, tol Tolerance) (*Result, error) {
	if bytes.Equal(actual, expected) {
		cfg, err := png.DecodeConfig(bytes.NewReader(actual))
		if err != nil {
			return nil, fmt.Errorf("decode actual: %w", err)
		}
		return &Result{Pass: true, TotalPixels: cfg.Width * cfg.Height}, nil
	}

	act, err := png.Decode(bytes.NewReader(actual))
	if err != nil {
		return nil, fmt.Errorf("decode actual: %w", err)
	}
	exp, err := png.Decode(bytes.NewReader(expected))
	if err != nil {
		return nil, fmt.Errorf("decode expected: %w", err)
	}
	return Images(act, exp, tol)
}

// Images compares decoded images.
func Images(actual, expected image.Image, tol Tolerance) (*Result, error) {
	as, es := actual.Bounds().Size(), expected.Bounds().Size()
	if as != es {
		return &Result{
			Reason: fmt.Sprintf("expected an image %dpx by %dpx, received %dpx by %dpx",
				es.X, es.Y, as.X, as.Y),
		}, nil
	}

	// pixelmatch requires identical rectangles, not just sizes.
	actual = rebase(actual)
	expected = rebase(expected)

	var diff image.Image
	n, err := pixelmatch.MatchPixel(expected, actual,
		pixelmatch.Threshold(tol.Threshold),
		pixelmatch.WriteTo(&diff),
	)
	if errors.Is(err, pixelmatch.ErrImageSizesNotMatch) {
		return &Result{Reason: err.Error()}, nil
	}
	if err != nil {
		return nil, err
	}

	total := as.X * as.Y
	r := &Result{DiffPixels: n, TotalPixels: total}
	if total > 0 {
		r.Ratio = float64(n) / float64(total)
	}
	r.Pass = n <= tol.MaxDiffPixels && r.Ratio <= tol.MaxDiffPixelRatio
	if n > 0 {
		r.Diff = diff
	}
	if !r.Pass {
		r.Reason = fmt.Sprintf("%d pixels (ratio %.4f of all image pixels) are different, allowed %d pixels and ratio %.4f",
			n, r.Ratio, tol.MaxDiffPixels, tol.MaxDiffPixelRatio)
	}
	return r, nil
}

func rebase(img image.Image) image.Image {
	b := img.Bounds()
	if b.Min == (image.Point{}) {
		return img
	}
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			out.Set(x-b.Min.X, y-b.Min.Y, img.At(x, y))
		}
	}
	return out
}
