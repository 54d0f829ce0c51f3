package viewport

import (
	"fmt"
	"sort"
)

// Breakpoint is one conditional image source: it applies while the window
// width is within [Min, Max], or at least Min when Unbounded.
type Breakpoint struct {
	Label     string
	Min       int
	Max       int
	Unbounded bool
}

// Media renders the breakpoint as a CSS media condition.
func (b Breakpoint) Media() string {
	if b.Unbounded {
		return fmt.Sprintf("(min-width: %dpx)", b.Min)
	}
	return fmt.Sprintf("(min-width: %dpx) and (max-width: %dpx)", b.Min, b.Max)
}

// Matches reports whether width falls inside the breakpoint.
func (b Breakpoint) Matches(width int) bool {
	if width < b.Min {
		return false
	}
	return b.Unbounded || width <= b.Max
}

// Breakpoints orders the matrix widest first, fluid treated as +inf, and
// gives each entry a range ending one pixel below the next wider entry's
// lower bound. The widest entry has no upper bound. A fluid entry's lower
// bound is outer, the width the page is captured at, raised to one pixel
// above the next narrower entry when outer does not clear it.
func (m Matrix) Breakpoints(outer int) []Breakpoint {
	sorted := make(Matrix, len(m))
	copy(sorted, m)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Width.order() > sorted[j].Width.order()
	})

	mins := make([]int, len(sorted))
	for i := len(sorted) - 1; i >= 0; i-- {
		mins[i] = sorted[i].Width.Resolve(outer)
		if sorted[i].Width.IsFluid() && i+1 < len(sorted) && mins[i] <= mins[i+1] {
			mins[i] = mins[i+1] + 1
		}
	}

	bps := make([]Breakpoint, 0, len(sorted))
	for i, v := range sorted {
		bp := Breakpoint{Label: v.Label, Min: mins[i], Unbounded: i == 0}
		if i > 0 {
			bp.Max = mins[i-1] - 1
		}
		bps = append(bps, bp)
	}
	return bps
}

// CheckFluid reports an error when a fluid entry would resolve, at outer,
// to a width no wider than a fixed entry. Breakpoints still orders such a
// matrix, but the fixed entry's range shrinks to the pixels left below the
// fluid one.
func (m Matrix) CheckFluid(outer int) error {
	widest := 0
	var widestLabel string
	for _, v := range m {
		if !v.Width.IsFluid() && v.Width.Pixels() > widest {
			widest, widestLabel = v.Width.Pixels(), v.Label
		}
	}
	for _, v := range m {
		if v.Width.IsFluid() && widestLabel != "" && outer <= widest {
			return fmt.Errorf("viewport %q: fluid width resolves to %dpx, not wider than %q (%dpx)",
				v.Label, outer, widestLabel, widest)
		}
	}
	return nil
}

// Select returns the label whose breakpoint matches width, first match in
// widest-first order. ok is false below the narrowest entry, where callers
// show the fallback image.
func (m Matrix) Select(width, outer int) (label string, ok bool) {
	for _, bp := range m.Breakpoints(outer) {
		if bp.Matches(width) {
			return bp.Label, true
		}
	}
	return "", false
}

// CrossesBreakpoint reports whether sizing the window from outer to width
// lands in a different breakpoint, which makes layout reflow asynchronous.
func (m Matrix) CrossesBreakpoint(outer, width int) bool {
	from, _ := m.Select(outer, outer)
	to, _ := m.Select(width, outer)
	return from != to
}
