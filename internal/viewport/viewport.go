// Package viewport holds the responsive viewport matrix shared by test
// generation, capture, and overlay alignment, together with the baseline
// naming scheme every consumer must agree on.
package viewport

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Fluid is the width token for a viewport that spans the whole window.
const Fluid = "100%"

// Width is a viewport width in CSS pixels, or fluid ("100%").
type Width struct {
	px    int
	fluid bool
}

// Px returns a fixed pixel width.
func Px(n int) Width { return Width{px: n} }

// FluidWidth returns the unbounded width.
func FluidWidth() Width { return Width{fluid: true} }

// IsFluid reports whether w is "100%".
func (w Width) IsFluid() bool { return w.fluid }

// Pixels returns the fixed width, or 0 for a fluid width.
func (w Width) Pixels() int { return w.px }

// Resolve returns the pixel width to use when actually sizing a browser.
// Fluid widths take the given outer width.
func (w Width) Resolve(outer int) int {
	if w.fluid {
		return outer
	}
	return w.px
}

// order returns the sort key: fluid sorts above every fixed width.
func (w Width) order() float64 {
	if w.fluid {
		return math.Inf(1)
	}
	return float64(w.px)
}

func (w Width) String() string {
	if w.fluid {
		return Fluid
	}
	return strconv.Itoa(w.px)
}

// ParseWidth accepts "320", "320px", or "100%".
func ParseWidth(s string) (Width, error) {
	s = strings.TrimSpace(s)
	if s == Fluid {
		return FluidWidth(), nil
	}
	n, err := strconv.Atoi(strings.TrimSuffix(s, "px"))
	if err != nil || n <= 0 {
		return Width{}, fmt.Errorf("invalid viewport width %q", s)
	}
	return Px(n), nil
}

// UnmarshalYAML accepts integer and string forms.
func (w *Width) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := ParseWidth(node.Value)
	if err != nil {
		return err
	}
	*w = parsed
	return nil
}

// MarshalYAML writes fixed widths as integers.
func (w Width) MarshalYAML() (interface{}, error) {
	if w.fluid {
		return Fluid, nil
	}
	return w.px, nil
}

// UnmarshalJSON accepts integer and string forms.
func (w *Width) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	parsed, err := ParseWidth(s)
	if err != nil {
		return err
	}
	*w = parsed
	return nil
}

// MarshalJSON writes fixed widths as numbers and fluid as "100%".
func (w Width) MarshalJSON() ([]byte, error) {
	if w.fluid {
		return json.Marshal(Fluid)
	}
	return json.Marshal(w.px)
}

// Viewport is one named (width, height) pair.
type Viewport struct {
	Width  Width  `yaml:"width" json:"width"`
	Height int    `yaml:"height" json:"height"`
	Label  string `yaml:"label" json:"label"`
}

// Matrix is the ordered viewport set. Order matters only for generation
// (cases are emitted in matrix order); breakpoint mapping sorts its own copy.
type Matrix []Viewport

// DefaultMatrix returns mobile, tablet, desktop, and large.
func DefaultMatrix() Matrix {
	return Matrix{
		{Width: Px(320), Height: 568, Label: "mobile"},
		{Width: Px(768), Height: 1024, Label: "tablet"},
		{Width: Px(1024), Height: 768, Label: "desktop"},
		{Width: Px(1440), Height: 900, Label: "large"},
	}
}

// Validate checks labels are present and unique and heights positive.
func (m Matrix) Validate() error {
	if len(m) == 0 {
		return fmt.Errorf("viewport matrix is empty")
	}
	seen := make(map[string]bool, len(m))
	for i, v := range m {
		if v.Label == "" {
			return fmt.Errorf("viewport %d: label is required", i)
		}
		if Slug(v.Label) != v.Label {
			return fmt.Errorf("viewport %q: label must be lower-case without spaces", v.Label)
		}
		if seen[v.Label] {
			return fmt.Errorf("viewport %q: duplicate label", v.Label)
		}
		seen[v.Label] = true
		if v.Height <= 0 {
			return fmt.Errorf("viewport %q: height must be positive", v.Label)
		}
		if !v.Width.IsFluid() && v.Width.Pixels() <= 0 {
			return fmt.Errorf("viewport %q: width must be positive", v.Label)
		}
	}
	return nil
}

// Labels returns the labels in matrix order.
func (m Matrix) Labels() []string {
	labels := make([]string, len(m))
	for i, v := range m {
		labels[i] = v.Label
	}
	return labels
}
