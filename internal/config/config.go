package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/livetemplate/blockshot/internal/baseline"
	"github.com/livetemplate/blockshot/internal/browser"
	"github.com/livetemplate/blockshot/internal/capture"
	"github.com/livetemplate/blockshot/internal/catalog"
	"github.com/livetemplate/blockshot/internal/compare"
	"github.com/livetemplate/blockshot/internal/synth"
	"github.com/livetemplate/blockshot/internal/viewport"
	"gopkg.in/yaml.v3"
)

// FileName is the configuration file looked up by LoadFromDir.
const FileName = "blockshot.yaml"

// Config represents the blockshot configuration
type Config struct {
	Host            HostConfig        `yaml:"host"`
	Viewports       viewport.Matrix   `yaml:"viewports"`
	DefaultViewport OuterViewport     `yaml:"default_viewport"`
	Timeouts        TimeoutsConfig    `yaml:"timeouts"`
	Tolerance       compare.Tolerance `yaml:"tolerance"`
	Generate        GenerateConfig    `yaml:"generate"`
	Selectors       SelectorsConfig   `yaml:"selectors"`
	Server          ServerConfig      `yaml:"server"`
	Browser         BrowserConfig     `yaml:"browser"`
}

// HostConfig locates the authoring host and its block library
type HostConfig struct {
	URL           string `yaml:"url"`            // e.g. http://localhost:3000
	LibraryPath   string `yaml:"library_path"`   // Library page (default: /tools/sidekick/library.html)
	TemplatesPath string `yaml:"templates_path"` // Prefix of variation paths (default: /tools/sidekick/library/templates)
	Plugin        string `yaml:"plugin"`         // Library plugin (default: blocks)
}

// OuterViewport is the window size set before every case
type OuterViewport struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// TimeoutsConfig holds durations as strings (e.g., "30s", "1500ms")
type TimeoutsConfig struct {
	Selector   string `yaml:"selector,omitempty"`   // Wait for an element (default: 30s)
	Render     string `yaml:"render,omitempty"`     // Settle after the catalog appears (default: 3s)
	Layout     string `yaml:"layout,omitempty"`     // Settle before capture (default: 1s)
	Breakpoint string `yaml:"breakpoint,omitempty"` // Settle after crossing a breakpoint (default: 2s)
	Command    string `yaml:"command,omitempty"`    // On-demand test run (default: 10m)
}

// GenerateConfig controls the generated test file
type GenerateConfig struct {
	Output  string `yaml:"output"`  // Generated file (default: visualtests/visual_test.go)
	Package string `yaml:"package"` // Package name (default: visualtests)
}

// SelectorsConfig holds the selectors used to find the catalog and the
// renderer iframe
type SelectorsConfig struct {
	Root       string   `yaml:"root,omitempty"`
	Nav        string   `yaml:"nav,omitempty"`
	Item       string   `yaml:"item,omitempty"`
	FrameChain []string `yaml:"frame_chain,omitempty"`
}

// ServerConfig holds orchestration service configuration
type ServerConfig struct {
	Host      string              `yaml:"host"`
	Port      int                 `yaml:"port"`     // Preferred port (default: 3001)
	MaxPort   int                 `yaml:"max_port"` // Last fallback port (default: 3010)
	PortFile  string              `yaml:"port_file"`
	ReportDir string              `yaml:"report_dir"`
	HistoryDB string              `yaml:"history_db"`
	Workdir   string              `yaml:"workdir"` // Directory commands run in (default: current directory)
	Debug     bool                `yaml:"debug"`
	Commands  map[string][]string `yaml:"commands,omitempty"`
	CORS      *CORSConfig         `yaml:"cors,omitempty"`
	RateLimit *RateLimitConfig    `yaml:"rate_limit,omitempty"`
}

// CORSConfig holds CORS configuration for the service
type CORSConfig struct {
	Origins []string `yaml:"origins,omitempty"` // Allowed origins (e.g., ["http://localhost:3000", "*"])
}

// RateLimitConfig holds rate limiting configuration for the service
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second,omitempty"` // Rate limit in requests per second (default: 2)
	Burst             int     `yaml:"burst,omitempty"`               // Burst size (default: 5)
}

// BrowserConfig selects the browser
type BrowserConfig struct {
	ChromeURL string `yaml:"chrome_url,omitempty"` // DevTools URL of a running Chrome
	Headful   bool   `yaml:"headful,omitempty"`
}

// Command names accepted by the run-on-demand endpoint.
const (
	CommandComponent = "test:visual:component"
	CommandUpdate    = "test:visual:update"
)

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Host: HostConfig{
			URL:           "http://localhost:3000",
			LibraryPath:   catalog.DefaultLibraryPath,
			TemplatesPath: catalog.DefaultTemplatesPath,
			Plugin:        catalog.DefaultPlugin,
		},
		Viewports:       viewport.DefaultMatrix(),
		DefaultViewport: OuterViewport{Width: 1280, Height: 2000},
		Tolerance:       compare.DefaultTolerance(),
		Generate: GenerateConfig{
			Output:  "visualtests/visual_test.go",
			Package: synth.DefaultPackage,
		},
		Server: ServerConfig{
			Host:      "localhost",
			Port:      3001,
			MaxPort:   3010,
			PortFile:  ".blockshot/port.txt",
			ReportDir: "blockshot-report",
			HistoryDB: ".blockshot/history.db",
			Commands: map[string][]string{
				CommandComponent: {"go", "test", "./visualtests/", "-count=1", "-run", "TestVisual/^{component}$/"},
				CommandUpdate:    {"go", "test", "./visualtests/", "-count=1", "-run", "TestVisual/^{component}$/", "-update"},
			},
		},
	}
}

// Validate checks the parts of the configuration that have no usable
// fallback.
func (c *Config) Validate() error {
	if err := c.Viewports.Validate(); err != nil {
		return err
	}
	if err := c.Viewports.CheckFluid(c.DefaultViewport.Width); err != nil {
		return fmt.Errorf("%w (raise default_viewport.width)", err)
	}
	if err := c.Tolerance.Validate(); err != nil {
		return fmt.Errorf("tolerance: %w", err)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Server.MaxPort < c.Server.Port {
		return fmt.Errorf("server.max_port %d is below server.port %d", c.Server.MaxPort, c.Server.Port)
	}
	for name, argv := range c.Server.Commands {
		if len(argv) == 0 {
			return fmt.Errorf("server.commands.%s is empty", name)
		}
	}
	return nil
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// GetSelector returns the selector timeout (default: 30s)
func (t TimeoutsConfig) GetSelector() time.Duration {
	return parseDuration(t.Selector, catalog.DefaultSelectorTimeout)
}

// GetRender returns the catalog render settle time (default: 3s)
func (t TimeoutsConfig) GetRender() time.Duration {
	return parseDuration(t.Render, catalog.DefaultRenderSettle)
}

// GetLayout returns the layout settle time (default: 1s)
func (t TimeoutsConfig) GetLayout() time.Duration {
	return parseDuration(t.Layout, synth.DefaultLayoutSettle)
}

// GetBreakpoint returns the breakpoint settle time (default: 2s)
func (t TimeoutsConfig) GetBreakpoint() time.Duration {
	return parseDuration(t.Breakpoint, synth.DefaultBreakpointSettle)
}

// GetCommand returns the on-demand command timeout (default: 10m)
func (t TimeoutsConfig) GetCommand() time.Duration {
	return parseDuration(t.Command, 10*time.Minute)
}

// GetCORSOrigins returns the configured CORS origins, or nil if not configured
func (c *ServerConfig) GetCORSOrigins() []string {
	if c == nil || c.CORS == nil {
		return nil
	}
	return c.CORS.Origins
}

// GetRateLimitRPS returns the rate limit in requests per second (default: 2)
func (c *ServerConfig) GetRateLimitRPS() float64 {
	if c == nil || c.RateLimit == nil || c.RateLimit.RequestsPerSecond <= 0 {
		return 2
	}
	return c.RateLimit.RequestsPerSecond
}

// GetRateLimitBurst returns the burst size (default: 5)
func (c *ServerConfig) GetRateLimitBurst() int {
	if c == nil || c.RateLimit == nil || c.RateLimit.Burst <= 0 {
		return 5
	}
	return c.RateLimit.Burst
}

// ServerPath resolves a configured path against server.workdir.
func (c *Config) ServerPath(p string) string {
	if c.Server.Workdir == "" || p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Server.Workdir, p)
}

// BaselineDir is the directory the generated tests keep their baselines in.
func (c *Config) BaselineDir() string {
	return baseline.DirFor(c.Generate.Output)
}

// BrowserOptions returns the browser settings.
func (c *Config) BrowserOptions() browser.Config {
	return browser.Config{
		ChromeURL:    c.Browser.ChromeURL,
		Headful:      c.Browser.Headful,
		WindowWidth:  c.DefaultViewport.Width,
		WindowHeight: c.DefaultViewport.Height,
		Debug:        IsVerbose(),
	}
}

// CatalogOptions returns the discovery settings.
func (c *Config) CatalogOptions() catalog.Options {
	return catalog.Options{
		LibraryPath:     c.Host.LibraryPath,
		Plugin:          c.Host.Plugin,
		TemplatesPath:   c.Host.TemplatesPath,
		RootSelector:    c.Selectors.Root,
		NavSelector:     c.Selectors.Nav,
		ItemSelector:    c.Selectors.Item,
		SelectorTimeout: c.Timeouts.GetSelector(),
		RenderSettle:    c.Timeouts.GetRender(),
		Browser:         c.BrowserOptions(),
	}
}

// SynthOptions returns the generation settings. Paths written into the
// generated file are relative to its directory.
func (c *Config) SynthOptions() (synth.Options, error) {
	outDir := filepath.Dir(c.Generate.Output)
	report, err := relPath(outDir, c.Server.ReportDir)
	if err != nil {
		return synth.Options{}, fmt.Errorf("report dir relative to %s: %w", outDir, err)
	}
	baselines, err := relPath(outDir, c.BaselineDir())
	if err != nil {
		return synth.Options{}, fmt.Errorf("baseline dir relative to %s: %w", outDir, err)
	}
	frameChain := c.Selectors.FrameChain
	if len(frameChain) == 0 {
		frameChain = capture.DefaultFrameChain
	}
	return synth.Options{
		Package:          c.Generate.Package,
		Host:             c.Host.URL,
		LibraryPath:      c.Host.LibraryPath,
		Plugin:           c.Host.Plugin,
		Baselines:        filepath.ToSlash(baselines),
		Report:           filepath.ToSlash(report),
		OuterWidth:       c.DefaultViewport.Width,
		OuterHeight:      c.DefaultViewport.Height,
		SelectorTimeout:  c.Timeouts.GetSelector(),
		LayoutSettle:     c.Timeouts.GetLayout(),
		BreakpointSettle: c.Timeouts.GetBreakpoint(),
		FrameChain:       frameChain,
		Tolerance:        c.Tolerance,
	}, nil
}

// relPath is filepath.Rel for a mix of absolute and relative paths.
func relPath(base, target string) (string, error) {
	if filepath.IsAbs(base) == filepath.IsAbs(target) {
		return filepath.Rel(base, target)
	}
	absBase, err := filepath.Abs(base)
	if err != nil {
		return "", err
	}
	absTarget, err := filepath.Abs(target)
	if err != nil {
		return "", err
	}
	return filepath.Rel(absBase, absTarget)
}

// Load loads configuration from a YAML file
// If the file doesn't exist, returns the default configuration
func Load(configPath string) (*Config, error) {
	// If no config path provided, use default
	if configPath == "" {
		return DefaultConfig(), nil
	}

	// Check if file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig() // Start with defaults
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
	}

	return config, nil
}

// LoadFromDir looks for blockshot.yaml in the given directory
// If it is missing, returns the default configuration
func LoadFromDir(dir string) (*Config, error) {
	return Load(filepath.Join(dir, FileName))
}

// Save writes the configuration to a YAML file
func (c *Config) Save(configPath string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
