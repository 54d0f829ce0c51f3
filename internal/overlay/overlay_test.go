package overlay

import (
	"testing"

	"github.com/livetemplate/blockshot/internal/viewport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPicture(t *testing.T) {
	p := NewPicture(viewport.DefaultMatrix(), "Call To Action", 1, "/baselines/", 1280)

	assert.Equal(t, "call-to-action", p.Block)
	assert.Equal(t, "/baselines/call-to-action-mobile.png", p.Fallback)
	assert.Equal(t, []Source{
		{Label: "large", Media: "(min-width: 1440px)", Srcset: "/baselines/call-to-action-1-large.png"},
		{Label: "desktop", Media: "(min-width: 1024px) and (max-width: 1439px)", Srcset: "/baselines/call-to-action-1-desktop.png"},
		{Label: "tablet", Media: "(min-width: 768px) and (max-width: 1023px)", Srcset: "/baselines/call-to-action-1-tablet.png"},
		{Label: "mobile", Media: "(min-width: 320px) and (max-width: 767px)", Srcset: "/baselines/call-to-action-1-mobile.png"},
	}, p.Sources)
}

func TestPictureSelect(t *testing.T) {
	matrix := viewport.DefaultMatrix()
	p := NewPicture(matrix, "cards", 0, "/baselines", 1280)

	tests := []struct {
		width int
		want  string
	}{
		{900, "/baselines/cards-0-tablet.png"},
		{1500, "/baselines/cards-0-large.png"},
		{200, "/baselines/cards-mobile.png"},
		{320, "/baselines/cards-0-mobile.png"},
		{1439, "/baselines/cards-0-desktop.png"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, p.Select(matrix, tt.width, 1280), "width %d", tt.width)
	}
}

func TestPictureSharesBaselineNames(t *testing.T) {
	matrix := viewport.DefaultMatrix()
	p := NewPicture(matrix, "Cards", 2, "", 1280)
	for _, vp := range matrix {
		found := false
		for _, s := range p.Sources {
			if s.Srcset == "/"+viewport.BaselineName("Cards", 2, vp.Label) {
				found = true
			}
		}
		assert.True(t, found, "no source for %s", vp.Label)
	}
}

func TestParseLocation(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		want    Location
		wantErr bool
	}{
		{"path and index", "plugin=blocks&path=/tools/sidekick/library/templates/cards&index=1", Location{Block: "cards", Index: 1}, false},
		{"leading question mark", "?path=/templates/hero", Location{Block: "hero"}, false},
		{"escaped spaces", "path=%2Ftemplates%2Fcall+to+action&index=0", Location{Block: "call-to-action"}, false},
		{"trailing slash", "path=/templates/cards/", Location{Block: "cards"}, false},
		{"missing path", "plugin=blocks", Location{}, true},
		{"bad index", "path=/templates/cards&index=x", Location{}, true},
		{"negative index", "path=/templates/cards&index=-1", Location{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLocation(tt.query)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
