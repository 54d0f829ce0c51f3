// Package catalog discovers the component variants an authoring host
// exposes in its block library.
package catalog

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/chromedp"
	"golang.org/x/net/html"

	"github.com/livetemplate/blockshot/internal/browser"
	"github.com/livetemplate/blockshot/internal/domtree"
)

// Entry is one renderable variant. Identity is (Name, VariationIndex).
type Entry struct {
	Name           string `json:"name"`
	VariationName  string `json:"variationName"`
	Path           string `json:"path"`
	VariationIndex int    `json:"variationIndex"`
}

// Options configures discovery. Zero values take the defaults noted on
// each field.
type Options struct {
	LibraryPath   string // default "/tools/sidekick/library.html"
	Plugin        string // default "blocks"
	TemplatesPath string // default "/tools/sidekick/library/templates"

	RootSelector string // default "sidekick-library"
	NavSelector  string // default `sp-sidenav[data-testid="blocks"]`
	ItemSelector string // default "sp-sidenav > sp-sidenav-item > sp-sidenav-item.descendant"

	SelectorTimeout time.Duration // default 30s
	RenderSettle    time.Duration // default 3s

	Browser browser.Config
}

const (
	DefaultLibraryPath   = "/tools/sidekick/library.html"
	DefaultPlugin        = "blocks"
	DefaultTemplatesPath = "/tools/sidekick/library/templates"
	DefaultRootSelector  = "sidekick-library"
	DefaultNavSelector   = `sp-sidenav[data-testid="blocks"]`
	DefaultItemSelector  = "sp-sidenav > sp-sidenav-item > sp-sidenav-item.descendant"

	DefaultSelectorTimeout = 30 * time.Second
	DefaultRenderSettle    = 3 * time.Second
)

func (o *Options) defaults() {
	if o.LibraryPath == "" {
		o.LibraryPath = DefaultLibraryPath
	}
	if o.Plugin == "" {
		o.Plugin = DefaultPlugin
	}
	if o.TemplatesPath == "" {
		o.TemplatesPath = DefaultTemplatesPath
	}
	if o.RootSelector == "" {
		o.RootSelector = DefaultRootSelector
	}
	if o.NavSelector == "" {
		o.NavSelector = DefaultNavSelector
	}
	if o.ItemSelector == "" {
		o.ItemSelector = DefaultItemSelector
	}
	if o.SelectorTimeout <= 0 {
		o.SelectorTimeout = DefaultSelectorTimeout
	}
	if o.RenderSettle <= 0 {
		o.RenderSettle = DefaultRenderSettle
	}
}

// Discover opens the block library on hostURL and returns its variants in
// document order. It never fails: errors are logged and yield an empty
// catalog, which callers treat as nothing to generate.
func Discover(ctx context.Context, hostURL string, opts Options) []Entry {
	opts.defaults()
	entries, err := discover(ctx, hostURL, opts)
	if err != nil {
		log.Printf("[Catalog] Discovery failed: %v", err)
		return []Entry{}
	}
	if len(entries) == 0 {
		log.Printf("[Catalog] No blocks found at %s", hostURL)
	}
	return entries
}

func discover(ctx context.Context, hostURL string, opts Options) ([]Entry, error) {
	allocCtx, cancelAlloc := browser.NewAllocator(ctx, opts.Browser)
	defer cancelAlloc()
	tabCtx, cancelTab := browser.NewTab(allocCtx, opts.Browser.Debug)
	defer cancelTab()

	url := LibraryURL(hostURL, opts.LibraryPath, opts.Plugin)
	var doc *cdp.Node
	err := chromedp.Run(tabCtx,
		chromedp.Navigate(url),
		waitFor(opts.RootSelector, opts.SelectorTimeout),
		waitFor(opts.NavSelector, opts.SelectorTimeout),
		chromedp.Sleep(opts.RenderSettle),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			doc, err = dom.GetDocument().WithDepth(-1).WithPierce(true).Do(ctx)
			return err
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", url, err)
	}

	return Extract(domtree.FlattenCDP(doc), opts)
}

func waitFor(selector string, timeout time.Duration) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := browser.WaitComposed(selector, timeout).Do(ctx); err != nil {
			return fmt.Errorf("waiting for %s: %w", selector, err)
		}
		return nil
	})
}

// Extract reads variants out of a flattened composed tree. Items whose
// family label is missing or whose data-index is not a non-negative integer
// are skipped.
func Extract(root *html.Node, opts Options) ([]Entry, error) {
	opts.defaults()
	items, err := domtree.Select(root, opts.ItemSelector)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(items))
	for _, item := range items {
		variation, _ := domtree.Attr(item, "label")

		var name string
		if parent := domtree.ParentElement(item); parent != nil {
			name, _ = domtree.Attr(parent, "label")
		}
		if strings.TrimSpace(name) == "" {
			log.Printf("[Catalog] Skipping variation %q: parent item has no label", variation)
			continue
		}

		raw, _ := domtree.Attr(item, "data-index")
		index, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil || index < 0 {
			log.Printf("[Catalog] Skipping %s / %s: invalid data-index %q", name, variation, raw)
			continue
		}

		if variation == "" {
			variation = name
		}
		entries = append(entries, Entry{
			Name:           name,
			VariationName:  variation,
			Path:           TemplatePath(opts.TemplatesPath, name),
			VariationIndex: index,
		})
	}
	return entries, nil
}

// TemplatePath is the renderer locator for a family: the templates path
// followed by the lower-cased family name.
func TemplatePath(templatesPath, name string) string {
	return strings.TrimRight(templatesPath, "/") + "/" + strings.ToLower(name)
}
