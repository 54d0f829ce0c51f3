package compare

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

// speckle paints n isolated black pixels on a copy of img, three pixels
// apart and away from the border, so none of them reads as anti-aliasing.
func speckle(img *image.RGBA, n int) *image.RGBA {
	out := image.NewRGBA(img.Bounds())
	copy(out.Pix, img.Pix)
	w := img.Bounds().Dx()
	x, y := 2, 2
	for i := 0; i < n; i++ {
		out.Set(x, y, color.Black)
		x += 3
		if x >= w-2 {
			x = 2
			y += 3
		}
	}
	return out
}

func encode(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestCompareIdenticalAlwaysPasses(t *testing.T) {
	img := encode(t, speckle(solid(64, 64, color.White), 20))

	strict := Tolerance{MaxDiffPixels: 0, Threshold: 0, MaxDiffPixelRatio: 0}
	for _, tol := range []Tolerance{DefaultTolerance(), strict} {
		r, err := Compare(img, img, tol)
		require.NoError(t, err)
		assert.True(t, r.Pass)
		assert.Equal(t, 0, r.DiffPixels)
		assert.Equal(t, 64*64, r.TotalPixels)
	}
}

func TestCompareIdenticalPixelsDifferentEncoding(t *testing.T) {
	base := solid(32, 32, color.White)
	var fast, best bytes.Buffer
	require.NoError(t, (&png.Encoder{CompressionLevel: png.NoCompression}).Encode(&fast, base))
	require.NoError(t, (&png.Encoder{CompressionLevel: png.BestCompression}).Encode(&best, base))
	require.NotEqual(t, fast.Bytes(), best.Bytes())

	r, err := Compare(fast.Bytes(), best.Bytes(), Tolerance{})
	require.NoError(t, err)
	assert.True(t, r.Pass)
	assert.Nil(t, r.Diff)
}

func TestCompareMaxDiffPixels(t *testing.T) {
	// 200x200 keeps 51 pixels well under the 0.5% ratio (0.1275%).
	base := solid(200, 200, color.White)
	expected := encode(t, base)

	tests := []struct {
		name  string
		diffs int
		pass  bool
	}{
		{"at cap", 50, true},
		{"one over cap", 51, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := Compare(encode(t, speckle(base, tt.diffs)), expected, DefaultTolerance())
			require.NoError(t, err)
			assert.Equal(t, tt.diffs, r.DiffPixels)
			assert.Less(t, r.Ratio, DefaultTolerance().MaxDiffPixelRatio)
			assert.Equal(t, tt.pass, r.Pass)
			if !tt.pass {
				assert.Contains(t, r.Reason, "51 pixels")
				assert.NotNil(t, r.Diff)
			}
		})
	}
}

func TestCompareRatioBound(t *testing.T) {
	// 60 of 10,000 pixels is 0.6%: under a generous pixel cap, over the ratio.
	base := solid(100, 100, color.White)
	tol := Tolerance{MaxDiffPixels: 1000, Threshold: 0.05, MaxDiffPixelRatio: 0.005}

	r, err := Compare(encode(t, speckle(base, 60)), encode(t, base), tol)
	require.NoError(t, err)
	assert.Equal(t, 60, r.DiffPixels)
	assert.False(t, r.Pass)
}

func TestCompareThreshold(t *testing.T) {
	base := solid(50, 50, color.White)
	faint := solid(50, 50, color.RGBA{R: 250, G: 250, B: 250, A: 255})

	r, err := Compare(encode(t, faint), encode(t, base), DefaultTolerance())
	require.NoError(t, err)
	assert.Equal(t, 0, r.DiffPixels, "a 2% shift is under the 5% threshold")
	assert.True(t, r.Pass)

	r, err = Compare(encode(t, faint), encode(t, base), Tolerance{Threshold: 0, MaxDiffPixels: 50, MaxDiffPixelRatio: 0.005})
	require.NoError(t, err)
	assert.Equal(t, 2500, r.DiffPixels)
	assert.False(t, r.Pass)
}

func TestCompareSizeMismatch(t *testing.T) {
	r, err := Compare(encode(t, solid(10, 20, color.White)), encode(t, solid(10, 30, color.White)), DefaultTolerance())
	require.NoError(t, err)
	assert.False(t, r.Pass)
	assert.Equal(t, "expected an image 10px by 30px, received 10px by 20px", r.Reason)
}

func TestCompareUndecodable(t *testing.T) {
	_, err := Compare([]byte("not a png"), encode(t, solid(1, 1, color.White)), DefaultTolerance())
	assert.ErrorContains(t, err, "decode actual")
}

func TestImagesOffsetBounds(t *testing.T) {
	a := solid(10, 10, color.White)
	b := image.NewRGBA(image.Rect(5, 5, 15, 15))
	copy(b.Pix, a.Pix)

	r, err := Images(b, a, DefaultTolerance())
	require.NoError(t, err)
	assert.True(t, r.Pass)
}

func TestToleranceValidate(t *testing.T) {
	assert.NoError(t, DefaultTolerance().Validate())
	assert.Error(t, Tolerance{MaxDiffPixels: -1}.Validate())
	assert.Error(t, Tolerance{Threshold: 1.5}.Validate())
	assert.Error(t, Tolerance{MaxDiffPixelRatio: -0.1}.Validate())
}

func TestWriteArtifacts(t *testing.T) {
	dir := t.TempDir()
	base := solid(100, 100, color.White)
	actual := encode(t, speckle(base, 60))
	expected := encode(t, base)

	r, err := Compare(actual, expected, DefaultTolerance())
	require.NoError(t, err)
	require.False(t, r.Pass)

	a, err := WriteArtifacts(dir, "cards-0-mobile.png", actual, expected, r)
	require.NoError(t, err)
	assert.Equal(t, Artifacts{
		Actual:   "cards-0-mobile-actual.png",
		Expected: "cards-0-mobile-expected.png",
		Diff:     "cards-0-mobile-diff.png",
	}, a)

	for _, name := range []string{a.Actual, a.Expected, a.Diff} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}

	got, err := os.ReadFile(filepath.Join(dir, a.Actual))
	require.NoError(t, err)
	assert.Equal(t, actual, got)
}

func TestWriteArtifactsMissingBaseline(t *testing.T) {
	dir := t.TempDir()
	a, err := WriteArtifacts(dir, "hero-0-large.png", encode(t, solid(2, 2, color.White)), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, Artifacts{Actual: "hero-0-large-actual.png"}, a)
}
