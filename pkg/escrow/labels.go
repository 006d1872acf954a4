package escrow

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var labelCaser = cases.Lower(language.Und)

// NormalizeLabel canonicalizes a category or subcategory label so that
// "Sports", "sports" and "SPORTS " index the same bucket.
func NormalizeLabel(label string) string {
	return labelCaser.String(strings.TrimSpace(label))
}
