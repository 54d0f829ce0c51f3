package viewport

import (
	"fmt"
	"regexp"
	"strings"
)

// FallbackLabel names the image used below the narrowest breakpoint.
const FallbackLabel = "mobile"

var whitespaceRun = regexp.MustCompile(`\s+`)

// Slug lower-cases s and replaces every run of whitespace with a single
// hyphen, including leading and trailing runs. Slug(Slug(s)) == Slug(s).
func Slug(s string) string {
	return whitespaceRun.ReplaceAllString(strings.ToLower(s), "-")
}

// BaselineName is the identity shared by the capture engine and the overlay:
// "<slug(family)>-<index>-<label>.png".
func BaselineName(family string, index int, label string) string {
	return fmt.Sprintf("%s-%d-%s.png", Slug(family), index, label)
}

// FallbackName is "<slug(family)>-mobile.png".
func FallbackName(family string) string {
	return fmt.Sprintf("%s-%s.png", Slug(family), FallbackLabel)
}
