// Package ansi provides visual-width math and color handling for
// terminal output. Widths are measured in terminal cells after ANSI
// SGR sequences are discarded, so padding and frame geometry stay
// correct for colored text.
package ansi

import (
	"regexp"
	"strings"
)

// sgrRe matches ANSI CSI-m (SGR) sequences: ESC [ params m.
var sgrRe = regexp.MustCompile(`\x1b\[[0-9;]*m`)

// Strip removes every ANSI SGR sequence from s.
func Strip(s string) string {
	if !strings.ContainsRune(s, 0x1b) {
		return s
	}
	return sgrRe.ReplaceAllString(s, "")
}

// wideRanges lists code point ranges that occupy two terminal cells.
// Box-drawing (U+2500..U+257F) deliberately counts as one cell.
var wideRanges = [...][2]rune{
	{0x1F300, 0x1F9FF}, // emoji & pictographs
	{0x2600, 0x26FF},   // miscellaneous symbols
	{0x2700, 0x27BF},   // dingbats
	{0x4E00, 0x9FFF},   // CJK unified ideographs
	{0x3400, 0x4DBF},   // CJK extension A
}

// RuneWidth returns the cell width of a single code point.
func RuneWidth(r rune) int {
	for _, rg := range wideRanges {
		if r >= rg[0] && r <= rg[1] {
			return 2
		}
	}
	return 1
}

// Width returns the visual cell width of s, ignoring ANSI SGR
// sequences. The empty string has width 0.
func Width(s string) int {
	if s == "" {
		return 0
	}
	w := 0
	for _, r := range Strip(s) {
		w += RuneWidth(r)
	}
	return w
}

// Fits reports whether s occupies at most max cells.
func Fits(s string, max int) bool {
	return Width(s) <= max
}

// Truncate shortens s so that the result, including the ellipsis,
// occupies at most max cells. An empty ellipsis defaults to "...".
// Strings that already fit are returned unchanged.
func Truncate(s string, max int, ellipsis string) string {
	if ellipsis == "" {
		ellipsis = "..."
	}
	if Width(s) <= max {
		return s
	}
	budget := max - Width(ellipsis)
	if budget < 0 {
		budget = 0
	}
	var b strings.Builder
	w := 0
	for _, r := range Strip(s) {
		rw := RuneWidth(r)
		if w+rw > budget {
			break
		}
		b.WriteRune(r)
		w += rw
	}
	return b.String() + ellipsis
}
