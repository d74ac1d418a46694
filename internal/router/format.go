package router

import (
	"fmt"
	"html"
	"math"
	"regexp"
	"strings"
)

const (
	metersPerMile = 1609.344
	feetPerMeter  = 3.28084
)

// FormatDistance renders meters the way walking directions are usually
// shown in the US: feet rounded to 10 under a tenth of a mile, otherwise
// miles with one decimal.
func FormatDistance(meters float64) string {
	if meters < 0 || math.IsNaN(meters) {
		meters = 0
	}
	if miles := meters / metersPerMile; miles >= 0.1 {
		return fmt.Sprintf("%.1f mi", miles)
	}
	feet := math.Round(meters*feetPerMeter/10) * 10
	if feet < 10 {
		feet = 10
	}
	return fmt.Sprintf("%d ft", int(feet))
}

var (
	tagPattern   = regexp.MustCompile(`<[^>]*>`)
	spacePattern = regexp.MustCompile(`\s+`)
)

// plainText strips markup from upstream text so instructions are always
// plain data. Entities are decoded after tags are removed, which means an
// encoded "&lt;b&gt;" survives as literal text rather than becoming markup.
func plainText(s string) string {
	s = tagPattern.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)
	return strings.TrimSpace(spacePattern.ReplaceAllString(s, " "))
}
