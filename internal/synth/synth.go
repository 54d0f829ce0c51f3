// Package synth turns a discovered catalog and a viewport matrix into a Go
// test file that captures and compares every (variation, viewport) pair.
package synth

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"go/format"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/livetemplate/blockshot/internal/catalog"
	"github.com/livetemplate/blockshot/internal/compare"
	"github.com/livetemplate/blockshot/internal/viewport"
	"github.com/pmezard/go-difflib/difflib"
)

// ErrNothingGenerated is returned when the catalog is empty. No file is
// written in that case.
var ErrNothingGenerated = errors.New("no catalog entries found, nothing generated")

// DuplicateError reports two catalog entries that would share baseline
// files.
type DuplicateError struct {
	Block string
	Index int
	First string
	Again string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("variations %q and %q both map to %s-%d", e.First, e.Again, e.Block, e.Index)
}

// Options configures the generated file.
type Options struct {
	Package     string
	Host        string
	LibraryPath string
	Plugin      string
	// Baselines and Report are written into the generated file as-is,
	// relative to the package directory.
	Baselines string
	Report    string
	// Outer is the default viewport set before every case.
	OuterWidth  int
	OuterHeight int

	SelectorTimeout  time.Duration
	LayoutSettle     time.Duration
	BreakpointSettle time.Duration
	FrameChain       []string
	Tolerance        compare.Tolerance
}

const (
	DefaultPackage          = "visualtests"
	DefaultBaselines        = "testdata/visual_test.go-snapshots"
	DefaultReport           = "../blockshot-report"
	DefaultLayoutSettle     = time.Second
	DefaultBreakpointSettle = 2 * time.Second
)

func (o *Options) defaults() {
	if o.Package == "" {
		o.Package = DefaultPackage
	}
	if o.LibraryPath == "" {
		o.LibraryPath = catalog.DefaultLibraryPath
	}
	if o.Plugin == "" {
		o.Plugin = catalog.DefaultPlugin
	}
	if o.Baselines == "" {
		o.Baselines = DefaultBaselines
	}
	if o.Report == "" {
		o.Report = DefaultReport
	}
	if o.OuterWidth <= 0 {
		o.OuterWidth = 1280
	}
	if o.OuterHeight <= 0 {
		o.OuterHeight = 2000
	}
	if o.SelectorTimeout <= 0 {
		o.SelectorTimeout = catalog.DefaultSelectorTimeout
	}
	if o.LayoutSettle <= 0 {
		o.LayoutSettle = DefaultLayoutSettle
	}
	if o.BreakpointSettle <= 0 {
		o.BreakpointSettle = DefaultBreakpointSettle
	}
	if o.Tolerance == (compare.Tolerance{}) {
		o.Tolerance = compare.DefaultTolerance()
	}
}

// Case is one generated test case.
type Case struct {
	Name     string
	Path     string
	Index    int
	Block    string
	Label    string
	Width    int
	Height   int
	Settle   time.Duration
	Baseline string
}

// Group holds the cases of one component family, in catalog order.
type Group struct {
	Block string
	Cases []Case
}

// Plan expands entries x matrix into groups of cases. Families appear in
// the order they are first seen; cases keep catalog order, then matrix
// order.
func Plan(entries []catalog.Entry, matrix viewport.Matrix, opts Options) ([]Group, error) {
	opts.defaults()
	if err := matrix.Validate(); err != nil {
		return nil, err
	}

	seen := make(map[string]string)
	index := make(map[string]int)
	var groups []Group
	for _, e := range entries {
		block := viewport.Slug(e.Name)
		key := block + "\x00" + strconv.Itoa(e.VariationIndex)
		if first, ok := seen[key]; ok {
			return nil, &DuplicateError{Block: block, Index: e.VariationIndex, First: first, Again: e.VariationName}
		}
		seen[key] = e.VariationName

		gi, ok := index[block]
		if !ok {
			gi = len(groups)
			index[block] = gi
			groups = append(groups, Group{Block: block})
		}
		for _, vp := range matrix {
			settle := opts.LayoutSettle
			if matrix.CrossesBreakpoint(opts.OuterWidth, vp.Width.Resolve(opts.OuterWidth)) {
				settle = opts.BreakpointSettle
			}
			groups[gi].Cases = append(groups[gi].Cases, Case{
				Name:     fmt.Sprintf("%s visual test at %s viewport", e.VariationName, vp.Label),
				Path:     e.Path,
				Index:    e.VariationIndex,
				Block:    block,
				Label:    vp.Label,
				Width:    vp.Width.Resolve(opts.OuterWidth),
				Height:   vp.Height,
				Settle:   settle,
				Baseline: viewport.BaselineName(e.Name, e.VariationIndex, vp.Label),
			})
		}
	}
	return groups, nil
}

// Synthesize returns the gofmt'ed source of the generated test file.
func Synthesize(entries []catalog.Entry, matrix viewport.Matrix, opts Options) ([]byte, error) {
	opts.defaults()
	groups, err := Plan(entries, matrix, opts)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := fileTemplate.Execute(&buf, struct {
		Options
		Groups []Group
	}{opts, groups}); err != nil {
		return nil, fmt.Errorf("render test file: %w", err)
	}
	src, err := format.Source(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("format test file: %w", err)
	}
	return src, nil
}

// Write stores src at path, creating parent directories and replacing any
// existing file.
func Write(path string, src []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if err := os.WriteFile(path, src, 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// DiscoverFunc yields the catalog. catalog.Discover bound to a host
// satisfies it.
type DiscoverFunc func(ctx context.Context) []catalog.Entry

// Generate discovers the catalog, synthesizes the test file and writes it
// to path. It returns the number of catalog entries processed.
func Generate(ctx context.Context, discover DiscoverFunc, path string, matrix viewport.Matrix, opts Options) (int, error) {
	entries := discover(ctx)
	if len(entries) == 0 {
		return 0, ErrNothingGenerated
	}
	src, err := Synthesize(entries, matrix, opts)
	if err != nil {
		return 0, err
	}
	if err := Write(path, src); err != nil {
		return 0, err
	}
	return len(entries), nil
}

// Check compares src with the file at path. It returns an empty diff when
// they match and a unified diff otherwise. A missing file diffs against
// empty content.
func Check(path string, src []byte) (string, error) {
	current, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return "", err
	}
	if bytes.Equal(current, src) {
		return "", nil
	}
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(current)),
		B:        difflib.SplitLines(string(src)),
		FromFile: path,
		ToFile:   path + " (generated)",
		Context:  3,
	})
}

var fileTemplate = template.Must(template.New("visual_test.go").Funcs(template.FuncMap{
	"duration": goDuration,
	"quote":    strconv.Quote,
	"float":    func(f float64) string { return strconv.FormatFloat(f, 'g', -1, 64) },
	"quoteAll": quoteAll,
}).Parse(fileSource))

// goDuration renders d as a Go expression.
func goDuration(d time.Duration) string {
	switch {
	case d == 0:
		return "0"
	case d%time.Second == 0:
		return fmt.Sprintf("%d * time.Second", d/time.Second)
	case d%time.Millisecond == 0:
		return fmt.Sprintf("%d * time.Millisecond", d/time.Millisecond)
	default:
		return fmt.Sprintf("time.Duration(%d)", int64(d))
	}
}

func quoteAll(ss []string) string {
	q := make([]string, len(ss))
	for i, s := range ss {
		q[i] = strconv.Quote(s)
	}
	return strings.Join(q, ", ")
}
