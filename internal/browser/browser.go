// Package browser sets up Chrome for discovery and capture and carries the
// in-page helpers that query across shadow roots and frames.
package browser

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
)

//go:embed composed.js
var composedJS string

// Config selects and tunes the browser.
type Config struct {
	// ChromeURL is the DevTools endpoint of an already running Chrome
	// (e.g. http://localhost:9222). Empty launches a local headless Chrome.
	ChromeURL string

	// Headful shows the browser window when launching locally.
	Headful bool

	// WindowWidth and WindowHeight size a locally launched window.
	// Default: 1280x2000.
	WindowWidth  int
	WindowHeight int

	// Debug forwards chromedp protocol logs to the standard logger.
	Debug bool
}

func (c *Config) defaults() {
	if c.WindowWidth <= 0 {
		c.WindowWidth = 1280
	}
	if c.WindowHeight <= 0 {
		c.WindowHeight = 2000
	}
}

// NewAllocator returns an allocator context for cfg. Cancel it to release
// the browser (and stop a locally launched process).
func NewAllocator(parent context.Context, cfg Config) (context.Context, context.CancelFunc) {
	cfg.defaults()
	if cfg.ChromeURL != "" {
		return chromedp.NewRemoteAllocator(parent, cfg.ChromeURL)
	}
	return chromedp.NewExecAllocator(parent, execOptions(cfg)...)
}

func execOptions(cfg Config) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", !cfg.Headful),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("font-render-hinting", "none"),
		chromedp.WindowSize(cfg.WindowWidth, cfg.WindowHeight),
	)
	return opts
}

// NewTab opens a new tab. A parent allocator context gets its own browser;
// a parent tab context shares its browser.
func NewTab(parent context.Context, debug bool) (context.Context, context.CancelFunc) {
	var opts []chromedp.ContextOption
	if debug {
		opts = append(opts, chromedp.WithLogf(log.Printf))
	}
	return chromedp.NewContext(parent, opts...)
}

// Expr builds a JavaScript expression calling the named composed-tree
// helper with JSON-encoded arguments.
func Expr(fn string, args ...any) string {
	enc := make([]string, len(args))
	for i, a := range args {
		b, err := json.Marshal(a)
		if err != nil {
			b = []byte("null")
		}
		enc[i] = string(b)
	}
	return fmt.Sprintf("(%s).%s(%s)", strings.TrimSpace(composedJS), fn, strings.Join(enc, ", "))
}

// WaitComposed polls until selector matches an element anywhere in the
// composed tree of the current page.
func WaitComposed(selector string, timeout time.Duration) chromedp.Action {
	return chromedp.Poll(Expr("exists", selector), nil,
		chromedp.WithPollingTimeout(timeout),
		chromedp.WithPollingInterval(100*time.Millisecond),
	)
}
