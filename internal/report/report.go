// Package report writes the summary of the most recent visual test run:
// results.json for tools and index.html for people.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/livetemplate/blockshot/internal/compare"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// Status is the outcome of one case.
type Status string

const (
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusUpdated Status = "updated"
	StatusError   Status = "error"
	StatusSkipped Status = "skipped"
)

// ArtifactDir is the report subdirectory holding actual, expected and diff
// images.
const ArtifactDir = "artifacts"

// Case is the result of one test case.
type Case struct {
	Name       string            `json:"name"`
	Block      string            `json:"block"`
	Label      string            `json:"label"`
	Baseline   string            `json:"baseline"`
	Width      int               `json:"width"`
	Height     int               `json:"height"`
	Status     Status            `json:"status"`
	Message    string            `json:"message,omitempty"`
	DiffPixels int               `json:"diffPixels"`
	Ratio      float64           `json:"ratio"`
	Duration   time.Duration     `json:"duration"`
	Artifacts  compare.Artifacts `json:"artifacts"`
}

// Run collects case results. It is safe for concurrent use.
type Run struct {
	mu      sync.Mutex
	Started time.Time `json:"started"`
	Cases   []Case    `json:"cases"`
}

// NewRun starts a run at now.
func NewRun(now time.Time) *Run {
	return &Run{Started: now}
}

// Add records a case result.
func (r *Run) Add(c Case) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Cases = append(r.Cases, c)
}

// Summary counts cases per status.
type Summary struct {
	Total   int `json:"total"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Updated int `json:"updated"`
	Errors  int `json:"errors"`
	Skipped int `json:"skipped"`
}

// Summary counts the recorded cases.
func (r *Run) Summary() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	var s Summary
	for _, c := range r.Cases {
		s.Total++
		switch c.Status {
		case StatusPassed:
			s.Passed++
		case StatusFailed:
			s.Failed++
		case StatusUpdated:
			s.Updated++
		case StatusError:
			s.Errors++
		case StatusSkipped:
			s.Skipped++
		}
	}
	return s
}

// sorted returns the cases ordered by name.
func (r *Run) sorted() []Case {
	r.mu.Lock()
	defer r.mu.Unlock()
	cases := make([]Case, len(r.Cases))
	copy(cases, r.Cases)
	sort.SliceStable(cases, func(i, j int) bool { return cases[i].Name < cases[j].Name })
	return cases
}

// Reset empties dir so it only ever holds the most recent run.
func Reset(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("clear report dir: %w", err)
	}
	return os.MkdirAll(filepath.Join(dir, ArtifactDir), 0755)
}

// Write stores results.json and index.html in dir.
func Write(dir string, r *Run) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}

	cases := r.sorted()
	summary := r.Summary()

	data, err := json.MarshalIndent(struct {
		Started time.Time `json:"started"`
		Summary Summary   `json:"summary"`
		Cases   []Case    `json:"cases"`
	}{r.Started, summary, cases}, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "results.json"), data, 0644); err != nil {
		return fmt.Errorf("write results.json: %w", err)
	}

	page, err := HTML(Markdown(r.Started, summary, cases))
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "index.html"), page, 0644); err != nil {
		return fmt.Errorf("write index.html: %w", err)
	}
	return nil
}

// Markdown renders the run as a GitHub-flavored markdown document.
func Markdown(started time.Time, s Summary, cases []Case) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "# Visual test report\n\n")
	fmt.Fprintf(&b, "Run started %s.\n\n", started.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "**%d passed**, %d failed, %d updated, %d errors, %d skipped of %d cases.\n\n",
		s.Passed, s.Failed, s.Updated, s.Errors, s.Skipped, s.Total)

	if len(cases) == 0 {
		b.WriteString("No cases ran.\n")
		return b.Bytes()
	}

	b.WriteString("| Status | Case | Viewport | Baseline | Diff | Details |\n")
	b.WriteString("|---|---|---|---|---|---|\n")
	for _, c := range cases {
		fmt.Fprintf(&b, "| %s | %s | %s %dx%d | %s | %s | %s |\n",
			statusCell(c.Status),
			cell(c.Name),
			cell(c.Label), c.Width, c.Height,
			cell(c.Baseline),
			diffCell(c),
			artifactLinks(c.Artifacts),
		)
	}
	return b.Bytes()
}

func statusCell(s Status) string {
	switch s {
	case StatusPassed:
		return "✅ passed"
	case StatusFailed:
		return "❌ failed"
	case StatusUpdated:
		return "📝 updated"
	case StatusError:
		return "⚠️ error"
	default:
		return string(s)
	}
}

func diffCell(c Case) string {
	if c.Status == StatusError || c.Status == StatusSkipped {
		return cell(c.Message)
	}
	s := fmt.Sprintf("%d px (%.4f)", c.DiffPixels, c.Ratio)
	if c.Status == StatusFailed && c.Message != "" {
		s += "; " + cell(c.Message)
	}
	return s
}

func artifactLinks(a compare.Artifacts) string {
	var links []string
	for _, l := range []struct{ label, file string }{
		{"actual", a.Actual},
		{"expected", a.Expected},
		{"diff", a.Diff},
	} {
		if l.file != "" {
			links = append(links, fmt.Sprintf("[%s](%s/%s)", l.label, ArtifactDir, l.file))
		}
	}
	return strings.Join(links, " · ")
}

// cell escapes text for a markdown table cell.
func cell(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "|", `\|`)
	s = strings.ReplaceAll(s, "<", "&lt;")
	return s
}

var (
	md = goldmark.New(goldmark.WithExtensions(extension.GFM))

	policy = bluemonday.UGCPolicy()

	pageTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Visual test report</title>
<style>
body { font-family: system-ui, sans-serif; margin: 2rem; color: #1f2328; }
table { border-collapse: collapse; width: 100%; }
th, td { border: 1px solid #d0d7de; padding: 6px 10px; text-align: left; vertical-align: top; }
th { background: #f6f8fa; }
</style>
</head>
<body>
{{.}}
</body>
</html>
`))
)

// HTML converts the markdown report to a standalone, sanitized page.
func HTML(markdown []byte) ([]byte, error) {
	var body bytes.Buffer
	if err := md.Convert(markdown, &body); err != nil {
		return nil, fmt.Errorf("render report: %w", err)
	}
	safe := policy.SanitizeBytes(body.Bytes())

	var out bytes.Buffer
	if err := pageTemplate.Execute(&out, template.HTML(safe)); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
