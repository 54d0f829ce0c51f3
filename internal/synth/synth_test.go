package synth

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"go/format"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/livetemplate/blockshot/internal/catalog"
	"github.com/livetemplate/blockshot/internal/viewport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var updateGolden = flag.Bool("update", false, "update golden files")

type goldenInput struct {
	Options struct {
		Host       string   `json:"host"`
		FrameChain []string `json:"frameChain"`
	} `json:"options"`
	Viewports viewport.Matrix `json:"viewports"`
	Entries   []catalog.Entry `json:"entries"`
}

func TestSynthesizeGolden(t *testing.T) {
	inputs, err := filepath.Glob("testdata/golden/*.json")
	require.NoError(t, err)
	require.NotEmpty(t, inputs)

	for _, inputPath := range inputs {
		name := strings.TrimSuffix(filepath.Base(inputPath), ".json")
		t.Run(name, func(t *testing.T) {
			data, err := os.ReadFile(inputPath)
			require.NoError(t, err)
			var in goldenInput
			require.NoError(t, json.Unmarshal(data, &in))

			matrix := in.Viewports
			if len(matrix) == 0 {
				matrix = viewport.DefaultMatrix()
			}
			got, err := Synthesize(in.Entries, matrix, Options{Host: in.Options.Host, FrameChain: in.Options.FrameChain})
			require.NoError(t, err)

			goldenPath := strings.TrimSuffix(inputPath, ".json") + ".golden"
			if *updateGolden {
				require.NoError(t, os.WriteFile(goldenPath, got, 0644))
				return
			}

			golden, err := os.ReadFile(goldenPath)
			require.NoError(t, err, "run with -update to create %s", goldenPath)
			want, err := format.Source(golden)
			require.NoError(t, err)
			assert.Equal(t, string(want), string(got))
		})
	}
}

func cardsEntry() catalog.Entry {
	return catalog.Entry{Name: "Cards", VariationName: "Cards", Path: "/tools/sidekick/library/templates/cards", VariationIndex: 0}
}

func TestPlanEndToEndScenario(t *testing.T) {
	groups, err := Plan([]catalog.Entry{cardsEntry()}, viewport.DefaultMatrix(), Options{})
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "cards", groups[0].Block)

	var names, baselines []string
	for _, c := range groups[0].Cases {
		names = append(names, c.Name)
		baselines = append(baselines, c.Baseline)
	}
	assert.Equal(t, []string{
		"Cards visual test at mobile viewport",
		"Cards visual test at tablet viewport",
		"Cards visual test at desktop viewport",
		"Cards visual test at large viewport",
	}, names)
	assert.Equal(t, []string{
		"cards-0-mobile.png",
		"cards-0-tablet.png",
		"cards-0-desktop.png",
		"cards-0-large.png",
	}, baselines)
}

func TestPlanCountAndUniqueness(t *testing.T) {
	entries := []catalog.Entry{
		cardsEntry(),
		{Name: "Cards", VariationName: "Cards (horizontal)", Path: "/cards", VariationIndex: 1},
		{Name: "Call To Action", VariationName: "Call To Action", Path: "/call to action", VariationIndex: 0},
		{Name: "call-to-action", VariationName: "CTA (legacy)", Path: "/call-to-action", VariationIndex: 1},
		{Name: "Hero", VariationName: "Hero", Path: "/hero", VariationIndex: 0},
	}
	matrix := viewport.DefaultMatrix()

	groups, err := Plan(entries, matrix, Options{})
	require.NoError(t, err)

	seen := make(map[string]bool)
	total := 0
	for _, g := range groups {
		for _, c := range g.Cases {
			total++
			assert.False(t, seen[c.Baseline], "duplicate baseline %s", c.Baseline)
			seen[c.Baseline] = true
		}
	}
	assert.Equal(t, len(entries)*len(matrix), total)
	assert.Len(t, groups, 3, "families group by slug in first-seen order")
	assert.Equal(t, "call-to-action", groups[1].Block)
}

func TestPlanDuplicate(t *testing.T) {
	entries := []catalog.Entry{
		{Name: "Call To Action", VariationName: "CTA", VariationIndex: 0},
		{Name: "call  to action", VariationName: "CTA again", VariationIndex: 0},
	}
	_, err := Plan(entries, viewport.DefaultMatrix(), Options{})

	var dup *DuplicateError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, "call-to-action", dup.Block)
	assert.Equal(t, "CTA", dup.First)
}

func TestPlanSettle(t *testing.T) {
	groups, err := Plan([]catalog.Entry{cardsEntry()}, viewport.DefaultMatrix(), Options{})
	require.NoError(t, err)

	settle := make(map[string]time.Duration)
	for _, c := range groups[0].Cases {
		settle[c.Label] = c.Settle
	}
	// The default 1280px window sits in the desktop breakpoint.
	assert.Equal(t, DefaultLayoutSettle, settle["desktop"])
	assert.Equal(t, DefaultBreakpointSettle, settle["mobile"])
	assert.Equal(t, DefaultBreakpointSettle, settle["tablet"])
	assert.Equal(t, DefaultBreakpointSettle, settle["large"])
}

func TestPlanInvalidMatrix(t *testing.T) {
	_, err := Plan([]catalog.Entry{cardsEntry()}, viewport.Matrix{}, Options{})
	assert.Error(t, err)
}

func TestSynthesizeDeterministic(t *testing.T) {
	entries := []catalog.Entry{
		cardsEntry(),
		{Name: "Hero", VariationName: "Hero", Path: "/hero", VariationIndex: 0},
	}
	a, err := Synthesize(entries, viewport.DefaultMatrix(), Options{Host: "http://localhost:3000"})
	require.NoError(t, err)
	b, err := Synthesize(entries, viewport.DefaultMatrix(), Options{Host: "http://localhost:3000"})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestSynthesizeQuoting(t *testing.T) {
	entries := []catalog.Entry{
		{Name: "Quote", VariationName: `Quote "pull"`, Path: "/quote", VariationIndex: 0},
	}
	src, err := Synthesize(entries, viewport.DefaultMatrix(), Options{})
	require.NoError(t, err)
	assert.Contains(t, string(src), `"Quote \"pull\" visual test at mobile viewport"`)
}

func TestGoDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{time.Second, "1 * time.Second"},
		{30 * time.Second, "30 * time.Second"},
		{1500 * time.Millisecond, "1500 * time.Millisecond"},
		{1500, "time.Duration(1500)"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, goDuration(tt.d))
	}
}

func TestGenerate(t *testing.T) {
	out := filepath.Join(t.TempDir(), "visualtests", "visual_test.go")
	discover := func(context.Context) []catalog.Entry { return []catalog.Entry{cardsEntry()} }

	n, err := Generate(context.Background(), discover, out, viewport.DefaultMatrix(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), "DO NOT EDIT")
}

func TestGenerateNothing(t *testing.T) {
	out := filepath.Join(t.TempDir(), "visual_test.go")
	require.NoError(t, os.WriteFile(out, []byte("existing"), 0644))
	discover := func(context.Context) []catalog.Entry { return []catalog.Entry{} }

	n, err := Generate(context.Background(), discover, out, viewport.DefaultMatrix(), Options{})
	assert.ErrorIs(t, err, ErrNothingGenerated)
	assert.Zero(t, n)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "existing", string(data), "an empty catalog must not touch the file")
}

func TestCheck(t *testing.T) {
	out := filepath.Join(t.TempDir(), "visual_test.go")
	src, err := Synthesize([]catalog.Entry{cardsEntry()}, viewport.DefaultMatrix(), Options{})
	require.NoError(t, err)

	diff, err := Check(out, src)
	require.NoError(t, err)
	assert.Contains(t, diff, "+// Code generated by blockshot generate")

	require.NoError(t, Write(out, src))
	diff, err = Check(out, src)
	require.NoError(t, err)
	assert.Empty(t, diff)

	changed := []byte(strings.Replace(string(src), "cards-0-large.png", "cards-0-huge.png", 1))
	diff, err = Check(out, changed)
	require.NoError(t, err)
	assert.Contains(t, diff, `-				Baseline:  "cards-0-large.png",`)
	assert.Contains(t, diff, `+				Baseline:  "cards-0-huge.png",`)
}
