// Package vtest is the harness generated visual tests run on. Main starts
// one browser for the test binary and writes the report when the tests
// finish; Run captures one case in its own tab and compares it with the
// recorded baseline.
package vtest

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/livetemplate/blockshot/internal/baseline"
	"github.com/livetemplate/blockshot/internal/browser"
	"github.com/livetemplate/blockshot/internal/capture"
	"github.com/livetemplate/blockshot/internal/compare"
	"github.com/livetemplate/blockshot/internal/report"
)

var (
	updateFlag = flag.Bool("update", false, "record captured screenshots as the new baselines")
	hostFlag   = flag.String("host", "", "authoring host URL (default $BLOCKSHOT_HOST or the generated value)")
	chromeFlag = flag.String("chrome-url", "", "DevTools URL of a running Chrome (default $BLOCKSHOT_CHROME_URL)")
	reportFlag = flag.String("report", "", "report directory (default the generated value)")
	debugFlag  = flag.Bool("blockshot.debug", false, "log browser protocol traffic")
)

// Environment variables read by Main. Flags win over the environment.
const (
	EnvHost      = "BLOCKSHOT_HOST"
	EnvChromeURL = "BLOCKSHOT_CHROME_URL"
	EnvUpdate    = "BLOCKSHOT_UPDATE"
)

// Options are written into the generated TestMain.
type Options struct {
	Host        string
	LibraryPath string
	Plugin      string
	// Baselines is the baseline directory, relative to the test package.
	Baselines string
	// Report is the report directory, relative to the test package.
	Report string
	// Width and Height are the default outer viewport.
	Width           int
	Height          int
	SelectorTimeout time.Duration
	FrameChain      []string
}

// Tolerance bounds how far a capture may drift from its baseline.
type Tolerance = compare.Tolerance

// Case is one generated test case.
type Case struct {
	Path      string
	Index     int
	Block     string
	Label     string
	Width     int
	Height    int
	Settle    time.Duration
	Baseline  string
	Tolerance Tolerance
}

type harness struct {
	host      string
	chromeURL string
	reportDir string
	debug     bool
	store     *baseline.Store
	capture   capture.Options
	width     int
	height    int
	run       *report.Run

	browserCtx context.Context
}

var (
	mu      sync.Mutex
	current *harness
)

// Main runs the tests in m and exits.
func Main(m *testing.M, opts Options) {
	if !flag.Parsed() {
		flag.Parse()
	}
	os.Exit(run(m, opts))
}

func run(m *testing.M, opts Options) int {
	h, err := newHarness(opts, os.LookupEnv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "vtest: %v\n", err)
		return 2
	}

	if h.host != "" {
		cancel, err := h.start()
		if err != nil {
			fmt.Fprintf(os.Stderr, "vtest: start browser: %v\n", err)
			return 1
		}
		defer cancel()
	}
	if err := report.Reset(h.reportDir); err != nil {
		fmt.Fprintf(os.Stderr, "vtest: %v\n", err)
		return 1
	}

	setCurrent(h)
	defer setCurrent(nil)

	code := m.Run()

	if err := report.Write(h.reportDir, h.run); err != nil {
		log.Printf("[Report] Failed to write report: %v", err)
	} else {
		s := h.run.Summary()
		log.Printf("[Report] %d passed, %d failed, %d updated, %d errors. Report: %s",
			s.Passed, s.Failed, s.Updated, s.Errors, filepath.Join(h.reportDir, "index.html"))
	}
	return code
}

func setCurrent(h *harness) {
	mu.Lock()
	defer mu.Unlock()
	current = h
}

func getCurrent() *harness {
	mu.Lock()
	defer mu.Unlock()
	return current
}

type lookupEnv func(string) (string, bool)

// newHarness resolves flags, then the environment, then the generated
// options.
func newHarness(opts Options, env lookupEnv) (*harness, error) {
	h := &harness{
		host:      firstNonEmpty(*hostFlag, envValue(env, EnvHost), opts.Host),
		chromeURL: firstNonEmpty(*chromeFlag, envValue(env, EnvChromeURL)),
		reportDir: firstNonEmpty(*reportFlag, opts.Report, "blockshot-report"),
		debug:     *debugFlag,
		width:     opts.Width,
		height:    opts.Height,
		run:       report.NewRun(time.Now()),
	}
	if h.width <= 0 {
		h.width = 1280
	}
	if h.height <= 0 {
		h.height = 2000
	}

	update := *updateFlag
	if v, ok := env(EnvUpdate); ok && v != "" && !update {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", EnvUpdate, err)
		}
		update = b
	}

	dir := opts.Baselines
	if dir == "" {
		return nil, errors.New("no baseline directory configured")
	}
	h.store = baseline.Open(dir, update)
	h.capture = capture.Options{
		Host:            h.host,
		LibraryPath:     opts.LibraryPath,
		Plugin:          opts.Plugin,
		FrameChain:      opts.FrameChain,
		SelectorTimeout: opts.SelectorTimeout,
		OuterWidth:      h.width,
		OuterHeight:     h.height,
		Debug:           h.debug,
	}
	return h, nil
}

func envValue(env lookupEnv, key string) string {
	v, _ := env(key)
	return v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// start launches (or connects to) the browser every case opens its tab in.
func (h *harness) start() (context.CancelFunc, error) {
	allocCtx, cancelAlloc := browser.NewAllocator(context.Background(), browser.Config{
		ChromeURL:    h.chromeURL,
		WindowWidth:  h.width,
		WindowHeight: h.height,
		Debug:        h.debug,
	})
	browserCtx, cancelBrowser := browser.NewTab(allocCtx, h.debug)
	if err := chromedp.Run(browserCtx); err != nil {
		cancelBrowser()
		cancelAlloc()
		return nil, err
	}
	h.browserCtx = browserCtx
	return func() {
		cancelBrowser()
		cancelAlloc()
	}, nil
}

// Run captures c and compares it with its baseline. Cases run in
// parallel, each in its own tab.
func Run(t *testing.T, c Case) {
	t.Helper()
	t.Parallel()

	h := getCurrent()
	if h == nil {
		t.Fatal("vtest.Run needs vtest.Main in TestMain")
	}
	result := report.Case{
		Name:     t.Name(),
		Block:    c.Block,
		Label:    c.Label,
		Baseline: c.Baseline,
		Width:    c.Width,
		Height:   c.Height,
	}
	start := time.Now()
	defer func() {
		result.Duration = time.Since(start)
		h.run.Add(result)
	}()

	if h.host == "" {
		result.Status = report.StatusSkipped
		result.Message = "no host configured"
		t.Skipf("no authoring host: pass -host or set %s", EnvHost)
	}

	tabCtx, cancel := browser.NewTab(h.browserCtx, h.debug)
	defer cancel()

	shot, err := capture.Run(tabCtx, capture.Case{
		Path:   c.Path,
		Index:  c.Index,
		Block:  c.Block,
		Width:  c.Width,
		Height: c.Height,
		Settle: c.Settle,
	}, h.capture)
	if err != nil {
		result.Status = report.StatusError
		result.Message = err.Error()
		t.Fatalf("capture %s: %v", c.Baseline, err)
	}

	result = h.judge(c, shot.PNG, result)
	switch result.Status {
	case report.StatusUpdated:
		t.Logf("recorded baseline %s", h.store.Path(c.Baseline))
	case report.StatusFailed, report.StatusError:
		t.Errorf("%s: %s", c.Baseline, result.Message)
	}
}

// judge compares png with the baseline for c, records or reports the
// outcome and fills in result.
func (h *harness) judge(c Case, png []byte, result report.Case) report.Case {
	artifactDir := filepath.Join(h.reportDir, report.ArtifactDir)

	expected, err := h.store.Read(c.Baseline)
	var missing *baseline.MissingError
	switch {
	case errors.As(err, &missing):
		if h.store.Updating() {
			return h.record(c, png, result)
		}
		result.Status = report.StatusFailed
		result.Message = err.Error()
		result.Artifacts, _ = compare.WriteArtifacts(artifactDir, c.Baseline, png, nil, nil)
		return result
	case err != nil:
		result.Status = report.StatusError
		result.Message = err.Error()
		return result
	}

	cmp, err := compare.Compare(png, expected, c.Tolerance)
	if err != nil {
		result.Status = report.StatusError
		result.Message = err.Error()
		return result
	}
	result.DiffPixels = cmp.DiffPixels
	result.Ratio = cmp.Ratio

	if cmp.Pass {
		result.Status = report.StatusPassed
		return result
	}
	if h.store.Updating() {
		return h.record(c, png, result)
	}

	result.Status = report.StatusFailed
	result.Message = cmp.Reason
	artifacts, err := compare.WriteArtifacts(artifactDir, c.Baseline, png, expected, cmp)
	if err != nil {
		log.Printf("[Report] Failed to write artifacts for %s: %v", c.Baseline, err)
	}
	result.Artifacts = artifacts
	return result
}

func (h *harness) record(c Case, png []byte, result report.Case) report.Case {
	if err := h.store.Write(c.Baseline, png); err != nil {
		result.Status = report.StatusError
		result.Message = err.Error()
		return result
	}
	result.Status = report.StatusUpdated
	return result
}
