package vtest

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/livetemplate/blockshot/internal/baseline"
	"github.com/livetemplate/blockshot/internal/compare"
	"github.com/livetemplate/blockshot/internal/report"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeEnv(vars map[string]string) lookupEnv {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

func pngOf(t *testing.T, w, h int, speckles int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.White)
		}
	}
	for i := 0; i < speckles; i++ {
		img.Set(2+(i%30)*3, 2+(i/30)*3, color.Black)
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestNewHarnessPrecedence(t *testing.T) {
	opts := Options{Host: "http://generated:3000", Baselines: "testdata/snaps", Report: "../report"}

	h, err := newHarness(opts, fakeEnv(nil))
	require.NoError(t, err)
	assert.Equal(t, "http://generated:3000", h.host)
	assert.Equal(t, "../report", h.reportDir)
	assert.False(t, h.store.Updating())
	assert.Equal(t, 1280, h.width)

	h, err = newHarness(opts, fakeEnv(map[string]string{
		EnvHost:      "http://env:3000",
		EnvChromeURL: "ws://chrome:9222",
		EnvUpdate:    "1",
	}))
	require.NoError(t, err)
	assert.Equal(t, "http://env:3000", h.host)
	assert.Equal(t, "ws://chrome:9222", h.chromeURL)
	assert.True(t, h.store.Updating())
	assert.Equal(t, "http://env:3000", h.capture.Host)
	assert.Equal(t, 1280, h.capture.OuterWidth, "remote tabs are reset to the outer viewport")
	assert.Equal(t, 2000, h.capture.OuterHeight)
}

func TestNewHarnessErrors(t *testing.T) {
	_, err := newHarness(Options{}, fakeEnv(nil))
	assert.Error(t, err, "baseline dir is required")

	_, err = newHarness(Options{Baselines: "x"}, fakeEnv(map[string]string{EnvUpdate: "maybe"}))
	assert.ErrorContains(t, err, EnvUpdate)
}

func testHarness(t *testing.T, update bool) *harness {
	t.Helper()
	root := t.TempDir()
	return &harness{
		reportDir: filepath.Join(root, "report"),
		store:     baseline.Open(filepath.Join(root, "snapshots"), update),
		run:       report.NewRun(time.Now()),
	}
}

func cardsCase() Case {
	return Case{Block: "cards", Label: "mobile", Baseline: "cards-0-mobile.png", Tolerance: compare.DefaultTolerance()}
}

func seed(t *testing.T, h *harness, name string, data []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(h.store.Dir(), 0755))
	require.NoError(t, os.WriteFile(h.store.Path(name), data, 0644))
}

func TestJudgePass(t *testing.T) {
	h := testHarness(t, false)
	img := pngOf(t, 100, 100, 0)
	seed(t, h, "cards-0-mobile.png", img)

	got := h.judge(cardsCase(), img, report.Case{})
	assert.Equal(t, report.StatusPassed, got.Status)
	assert.Zero(t, got.DiffPixels)
	assert.Empty(t, got.Artifacts)
}

func TestJudgeFailWritesArtifacts(t *testing.T) {
	h := testHarness(t, false)
	seed(t, h, "cards-0-mobile.png", pngOf(t, 100, 100, 0))

	got := h.judge(cardsCase(), pngOf(t, 100, 100, 60), report.Case{})
	assert.Equal(t, report.StatusFailed, got.Status)
	assert.Equal(t, 60, got.DiffPixels)
	assert.Contains(t, got.Message, "60 pixels")
	require.NotEmpty(t, got.Artifacts.Diff)

	_, err := os.Stat(filepath.Join(h.reportDir, report.ArtifactDir, got.Artifacts.Diff))
	assert.NoError(t, err)

	data, err := os.ReadFile(h.store.Path("cards-0-mobile.png"))
	require.NoError(t, err)
	assert.Equal(t, pngOf(t, 100, 100, 0), data, "a failing case must not touch the baseline")
}

func TestJudgeMissingBaseline(t *testing.T) {
	h := testHarness(t, false)

	got := h.judge(cardsCase(), pngOf(t, 10, 10, 0), report.Case{})
	assert.Equal(t, report.StatusFailed, got.Status)
	assert.Contains(t, got.Message, "cards-0-mobile.png")
	assert.Contains(t, got.Message, "-update")
	assert.Equal(t, "cards-0-mobile-actual.png", got.Artifacts.Actual)

	_, err := os.Stat(h.store.Path("cards-0-mobile.png"))
	assert.True(t, os.IsNotExist(err))
}

func TestJudgeUpdateRecordsMissingBaseline(t *testing.T) {
	h := testHarness(t, true)
	img := pngOf(t, 10, 10, 0)

	got := h.judge(cardsCase(), img, report.Case{})
	assert.Equal(t, report.StatusUpdated, got.Status)

	data, err := os.ReadFile(h.store.Path("cards-0-mobile.png"))
	require.NoError(t, err)
	assert.Equal(t, img, data)
}

func TestJudgeUpdateReplacesFailingBaseline(t *testing.T) {
	h := testHarness(t, true)
	seed(t, h, "cards-0-mobile.png", pngOf(t, 100, 100, 0))
	changed := pngOf(t, 100, 100, 60)

	got := h.judge(cardsCase(), changed, report.Case{})
	assert.Equal(t, report.StatusUpdated, got.Status)

	data, err := os.ReadFile(h.store.Path("cards-0-mobile.png"))
	require.NoError(t, err)
	assert.Equal(t, changed, data)
}

func TestJudgeUpdateKeepsPassingBaseline(t *testing.T) {
	h := testHarness(t, true)
	img := pngOf(t, 100, 100, 0)
	seed(t, h, "cards-0-mobile.png", img)

	got := h.judge(cardsCase(), img, report.Case{})
	assert.Equal(t, report.StatusPassed, got.Status)
}

func TestJudgeUndecodable(t *testing.T) {
	h := testHarness(t, false)
	seed(t, h, "cards-0-mobile.png", pngOf(t, 10, 10, 0))

	got := h.judge(cardsCase(), []byte("not a png"), report.Case{})
	assert.Equal(t, report.StatusError, got.Status)
}
