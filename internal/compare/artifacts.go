package compare

import (
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"strings"
)

// Artifacts are the files written for a failed comparison, relative to the
// directory they were written to.
type Artifacts struct {
	Actual   string `json:"actual,omitempty"`
	Expected string `json:"expected,omitempty"`
	Diff     string `json:"diff,omitempty"`
}

// WriteArtifacts stores the captured image, the baseline (when present),
// and the diff image under dir as <base>-actual.png, <base>-expected.png,
// and <base>-diff.png, where base is name without its extension.
func WriteArtifacts(dir, name string, actual, expected []byte, r *Result) (Artifacts, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return Artifacts{}, fmt.Errorf("create artifact dir: %w", err)
	}
	base := strings.TrimSuffix(name, filepath.Ext(name))

	var a Artifacts
	a.Actual = base + "-actual.png"
	if err := os.WriteFile(filepath.Join(dir, a.Actual), actual, 0644); err != nil {
		return a, fmt.Errorf("write actual: %w", err)
	}
	if expected != nil {
		a.Expected = base + "-expected.png"
		if err := os.WriteFile(filepath.Join(dir, a.Expected), expected, 0644); err != nil {
			return a, fmt.Errorf("write expected: %w", err)
		}
	}
	if r != nil && r.Diff != nil {
		a.Diff = base + "-diff.png"
		f, err := os.Create(filepath.Join(dir, a.Diff))
		if err != nil {
			return a, fmt.Errorf("write diff: %w", err)
		}
		defer f.Close()
		if err := png.Encode(f, r.Diff); err != nil {
			return a, fmt.Errorf("encode diff: %w", err)
		}
	}
	return a, nil
}
