// Package overlay computes which baseline image the in-page overlay shows
// at each window width.
package overlay

import (
	"fmt"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/livetemplate/blockshot/internal/viewport"
)

// Source is one <source> of the overlay's <picture>.
type Source struct {
	Label  string `json:"label"`
	Media  string `json:"media"`
	Srcset string `json:"srcset"`
}

// Picture is the responsive image for one variation: sources widest
// first, and a fallback used below the narrowest breakpoint.
type Picture struct {
	Block    string   `json:"block"`
	Index    int      `json:"index"`
	Sources  []Source `json:"sources"`
	Fallback string   `json:"fallback"`
}

// NewPicture builds the picture for block (a family name or its slug) and
// variation index. imageRoot is the URL prefix baselines are served from.
// outer resolves fluid viewports.
func NewPicture(matrix viewport.Matrix, block string, index int, imageRoot string, outer int) Picture {
	root := strings.TrimRight(imageRoot, "/")
	p := Picture{
		Block:    viewport.Slug(block),
		Index:    index,
		Fallback: root + "/" + viewport.FallbackName(block),
	}
	for _, bp := range matrix.Breakpoints(outer) {
		p.Sources = append(p.Sources, Source{
			Label:  bp.Label,
			Media:  bp.Media(),
			Srcset: root + "/" + viewport.BaselineName(block, index, bp.Label),
		})
	}
	return p
}

// Select returns the image shown at width: the first matching source, or
// the fallback.
func (p Picture) Select(matrix viewport.Matrix, width, outer int) string {
	label, ok := matrix.Select(width, outer)
	if !ok {
		return p.Fallback
	}
	for _, s := range p.Sources {
		if s.Label == label {
			return s.Srcset
		}
	}
	return p.Fallback
}

// Location is the variation the authoring UI currently shows.
type Location struct {
	Block string
	Index int
}

// ParseLocation reads the component and variation index from an authoring
// URL query, e.g. "plugin=blocks&path=/tools/sidekick/library/templates/cards&index=1".
// The component is the last segment of path. A missing index means 0.
func ParseLocation(rawQuery string) (Location, error) {
	q, err := url.ParseQuery(strings.TrimPrefix(rawQuery, "?"))
	if err != nil {
		return Location{}, fmt.Errorf("parse query: %w", err)
	}
	p := strings.TrimRight(q.Get("path"), "/")
	if p == "" {
		return Location{}, fmt.Errorf("missing path")
	}
	block := viewport.Slug(path.Base(p))
	if block == "" || block == "." {
		return Location{}, fmt.Errorf("invalid path %q", p)
	}

	loc := Location{Block: block}
	if raw := q.Get("index"); raw != "" {
		i, err := strconv.Atoi(raw)
		if err != nil || i < 0 {
			return Location{}, fmt.Errorf("invalid index %q", raw)
		}
		loc.Index = i
	}
	return loc, nil
}
