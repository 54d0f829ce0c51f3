// Package capture drives one tab through the capture protocol: size the
// window, load the renderer, cross into its iframe, isolate the block
// element, stabilize it and take a clipped PNG of exactly its box.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/livetemplate/blockshot/internal/browser"
	"github.com/livetemplate/blockshot/internal/catalog"
)

// Stage names one step of the protocol.
type Stage string

const (
	StageResize      Stage = "outer resize"
	StageNavigate    Stage = "navigate"
	StageHost        Stage = "locate host widget"
	StageFrame       Stage = "cross iframe boundary"
	StageTarget      Stage = "locate target element"
	StageStabilize   Stage = "stabilize layout"
	StageMeasure     Stage = "measure"
	StageTightResize Stage = "tight resize"
	StageCapture     Stage = "capture"
)

// DefaultFrameChain locates the renderer iframe: each selector is searched
// inside the previous match, through shadow roots.
var DefaultFrameChain = []string{
	"sidekick-library",
	"sp-theme",
	"plugin-renderer",
	".view block-renderer",
	"iframe",
}

var (
	// ErrNoFrameDocument is returned when the renderer iframe exists but has
	// no content document.
	ErrNoFrameDocument = errors.New("could not get iframe content document")
	errDetached        = errors.New("target element is no longer attached")
)

// StageError reports the stage a case failed in.
type StageError struct {
	Stage Stage
	Block string
	Err   error
}

func (e *StageError) Error() string {
	if e.Timeout() {
		return fmt.Sprintf("%s: %s timed out: %v", e.Block, e.Stage, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Block, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the stage ran out of time rather than failing
// outright.
func (e *StageError) Timeout() bool {
	return errors.Is(e.Err, chromedp.ErrPollingTimeout) || errors.Is(e.Err, context.DeadlineExceeded)
}

// Options are shared by every case of a run.
type Options struct {
	Host        string
	LibraryPath string // default catalog.DefaultLibraryPath
	Plugin      string // default catalog.DefaultPlugin

	RootSelector string   // default catalog.DefaultRootSelector
	FrameChain   []string // default DefaultFrameChain

	// OuterWidth and OuterHeight are the default outer viewport every case
	// is reset to before it resizes to its own. Zero skips the reset.
	OuterWidth  int
	OuterHeight int

	SelectorTimeout time.Duration // default 30s
	NavigateTimeout time.Duration // default 60s
	ActionTimeout   time.Duration // default 10s, for resize, stabilize, measure and capture

	Debug bool
}

func (o *Options) defaults() {
	if o.LibraryPath == "" {
		o.LibraryPath = catalog.DefaultLibraryPath
	}
	if o.Plugin == "" {
		o.Plugin = catalog.DefaultPlugin
	}
	if o.RootSelector == "" {
		o.RootSelector = catalog.DefaultRootSelector
	}
	if len(o.FrameChain) == 0 {
		o.FrameChain = DefaultFrameChain
	}
	if o.SelectorTimeout <= 0 {
		o.SelectorTimeout = catalog.DefaultSelectorTimeout
	}
	if o.NavigateTimeout <= 0 {
		o.NavigateTimeout = 60 * time.Second
	}
	if o.ActionTimeout <= 0 {
		o.ActionTimeout = 10 * time.Second
	}
}

// Case is one (variation, viewport) pair.
type Case struct {
	Path   string
	Index  int
	Block  string // slug of the family name, also the block's CSS class
	Width  int
	Height int
	Settle time.Duration
}

// Shot is a captured screenshot.
type Shot struct {
	PNG []byte
	Box Box
	URL string
}

// Run executes the protocol for c in the tab held by ctx. Every stage is
// bounded by its own timeout and the first failure ends the case.
func Run(ctx context.Context, c Case, opts Options) (*Shot, error) {
	opts.defaults()
	url := catalog.RenderURL(opts.Host, opts.LibraryPath, opts.Plugin, c.Path, c.Index)
	target := ClassSelector(c.Block)
	chain := opts.FrameChain

	// Attach the tab on the unbounded context so stage timeouts cannot
	// close it.
	if err := chromedp.Run(ctx); err != nil {
		return nil, &StageError{Stage: StageResize, Block: c.Block, Err: err}
	}

	run := func(stage Stage, timeout time.Duration, actions ...chromedp.Action) error {
		sctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		if opts.Debug {
			log.Printf("[Capture] %s %s", c.Block, stage)
		}
		if err := chromedp.Run(sctx, actions...); err != nil {
			return &StageError{Stage: stage, Block: c.Block, Err: err}
		}
		return nil
	}

	var resize []chromedp.Action
	for _, size := range viewportSteps(c, opts) {
		resize = append(resize, chromedp.EmulateViewport(int64(size.Width), int64(size.Height)))
	}
	if err := run(StageResize, opts.ActionTimeout, resize...); err != nil {
		return nil, err
	}
	if err := run(StageNavigate, opts.NavigateTimeout, chromedp.Navigate(url)); err != nil {
		return nil, err
	}
	if err := run(StageHost, opts.SelectorTimeout,
		browser.WaitComposed(opts.RootSelector, opts.SelectorTimeout),
	); err != nil {
		return nil, err
	}

	var state string
	if err := run(StageFrame, opts.SelectorTimeout,
		chromedp.Poll(browser.Expr("frameState", chain)+" !== 'missing'", nil,
			chromedp.WithPollingTimeout(opts.SelectorTimeout),
			chromedp.WithPollingInterval(100*time.Millisecond),
		),
		chromedp.Evaluate(browser.Expr("frameState", chain), &state),
	); err != nil {
		return nil, err
	}
	if state != "ready" {
		return nil, &StageError{Stage: StageFrame, Block: c.Block, Err: ErrNoFrameDocument}
	}

	if err := run(StageTarget, opts.SelectorTimeout,
		chromedp.Poll(browser.Expr("targetVisible", chain, target), nil,
			chromedp.WithPollingTimeout(opts.SelectorTimeout),
			chromedp.WithPollingInterval(100*time.Millisecond),
		),
	); err != nil {
		return nil, err
	}

	var stable bool
	if err := run(StageStabilize, c.Settle+opts.ActionTimeout,
		chromedp.Sleep(c.Settle),
		chromedp.Evaluate(browser.Expr("stabilize", chain, target), &stable),
	); err != nil {
		return nil, err
	}
	if !stable {
		return nil, &StageError{Stage: StageStabilize, Block: c.Block, Err: errDetached}
	}

	box, err := measure(run, chain, target, c.Block, opts.ActionTimeout)
	if err != nil {
		return nil, err
	}

	if err := run(StageTightResize, opts.ActionTimeout,
		chromedp.EmulateViewport(int64(c.Width), int64(box.TightHeight())),
	); err != nil {
		return nil, err
	}
	// Width is unchanged, so only the offset can move; measure again.
	if box, err = measure(run, chain, target, c.Block, opts.ActionTimeout); err != nil {
		return nil, err
	}

	var png []byte
	var frozen bool
	if err := run(StageCapture, opts.ActionTimeout,
		chromedp.Evaluate(browser.Expr("freeze", chain), &frozen),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			png, err = page.CaptureScreenshot().
				WithFormat(page.CaptureScreenshotFormatPng).
				WithCaptureBeyondViewport(true).
				WithFromSurface(true).
				WithClip(box.Clip()).
				Do(ctx)
			return err
		}),
	); err != nil {
		return nil, err
	}

	return &Shot{PNG: png, Box: box, URL: url}, nil
}

// size is a viewport in CSS pixels.
type size struct {
	Width, Height int
}

// viewportSteps lists the sizes a case's tab is emulated at before
// navigation: the default outer viewport, when configured, then the case's
// own. A tab on a remote browser does not inherit a window size, so the
// reset is explicit.
func viewportSteps(c Case, opts Options) []size {
	steps := make([]size, 0, 2)
	if opts.OuterWidth > 0 && opts.OuterHeight > 0 {
		steps = append(steps, size{opts.OuterWidth, opts.OuterHeight})
	}
	return append(steps, size{c.Width, c.Height})
}

type stageRunner func(stage Stage, timeout time.Duration, actions ...chromedp.Action) error

func measure(run stageRunner, chain []string, target, block string, timeout time.Duration) (Box, error) {
	var box *Box
	if err := run(StageMeasure, timeout,
		chromedp.Evaluate(browser.Expr("measure", chain, target), &box),
	); err != nil {
		return Box{}, err
	}
	if box == nil || !box.Valid() {
		return Box{}, &StageError{Stage: StageMeasure, Block: block, Err: fmt.Errorf("could not get bounding box for %s", block)}
	}
	return *box, nil
}

// Box is an element's border box in page coordinates.
type Box struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Valid reports whether the box has a capturable area.
func (b Box) Valid() bool {
	return b.Width > 0 && b.Height > 0 &&
		!math.IsNaN(b.X) && !math.IsNaN(b.Y) &&
		!math.IsInf(b.Width, 0) && !math.IsInf(b.Height, 0)
}

// TightHeight is the window height that ends exactly at the bottom edge
// of the box.
func (b Box) TightHeight() int {
	h := int(math.Ceil(b.Y + b.Height))
	if h < 1 {
		return 1
	}
	return h
}

// Clip rounds the box to whole pixels the way chromedp's element
// screenshots do: the origin is rounded, and the size grows or shrinks by
// what rounding moved the origin.
func (b Box) Clip() *page.Viewport {
	x, y := math.Round(b.X), math.Round(b.Y)
	return &page.Viewport{
		X:      x,
		Y:      y,
		Width:  math.Round(b.Width + b.X - x),
		Height: math.Round(b.Height + b.Y - y),
		Scale:  1,
	}
}

// ClassSelector returns a CSS class selector for block, escaping what a
// slug can contain but an identifier cannot.
func ClassSelector(block string) string {
	var sb strings.Builder
	sb.WriteByte('.')
	for i, r := range block {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_', r >= 0x80:
			sb.WriteRune(r)
		case r == '-':
			if i == 0 && len(block) == 1 {
				sb.WriteString(`\-`)
			} else {
				sb.WriteRune(r)
			}
		case r >= '0' && r <= '9':
			if i == 0 || (i == 1 && block[0] == '-') {
				fmt.Fprintf(&sb, `\3%c `, r)
			} else {
				sb.WriteRune(r)
			}
		default:
			sb.WriteByte('\\')
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
