package ansi

import (
	"html"
	"strconv"
	"strings"
)

// Reset is the SGR sequence that clears all attributes.
const Reset = "\x1b[0m"

// Color is one of the eight named palette colors.
type Color string

const (
	Red     Color = "red"
	Green   Color = "green"
	Yellow  Color = "yellow"
	Blue    Color = "blue"
	Magenta Color = "magenta"
	Cyan    Color = "cyan"
	White   Color = "white"
	Gray    Color = "gray"
)

// paletteEntry ties a named color to its SGR code and HTML hex value.
// The palette is fixed: CGA bright colors, the look of a classic BBS.
type paletteEntry struct {
	code int
	hex  string
}

var palette = map[Color]paletteEntry{
	Red:     {31, "#ff5555"},
	Green:   {32, "#55ff55"},
	Yellow:  {33, "#ffff55"},
	Blue:    {34, "#5555ff"},
	Magenta: {35, "#ff55ff"},
	Cyan:    {36, "#55ffff"},
	White:   {37, "#ffffff"},
	Gray:    {90, "#aaaaaa"},
}

// sgrToColor maps SGR foreground codes (normal and bright) back to
// palette names for HTML conversion.
var sgrToColor = map[int]Color{
	31: Red, 91: Red,
	32: Green, 92: Green,
	33: Yellow, 93: Yellow,
	34: Blue, 94: Blue,
	35: Magenta, 95: Magenta,
	36: Cyan, 96: Cyan,
	37: White, 97: White,
	90: Gray,
}

// IsValidColor reports whether name is a member of the palette.
func IsValidColor(name string) bool {
	_, ok := palette[Color(name)]
	return ok
}

// Code returns the SGR escape sequence that selects c. Unknown colors
// return the empty string.
func Code(c Color) string {
	e, ok := palette[c]
	if !ok {
		return ""
	}
	return "\x1b[" + strconv.Itoa(e.code) + "m"
}

// Hex returns the HTML hex value for c, or "" for unknown colors.
func Hex(c Color) string {
	return palette[c].hex
}

// Colorize wraps text in the SGR sequence for c followed by a reset.
// Unknown colors return the text unchanged.
func Colorize(text string, c Color) string {
	code := Code(c)
	if code == "" {
		return text
	}
	return code + text + Reset
}

// ToHTML converts ANSI-colored text to HTML. Each SGR sequence is
// replaced by span markup: a reset closes any open span, a recognized
// color code opens a span with the palette hex, and unknown codes are
// dropped. Text between sequences is HTML-escaped, so the output never
// contains an ESC byte.
func ToHTML(s string) string {
	var b strings.Builder
	open := false

	closeSpan := func() {
		if open {
			b.WriteString("</span>")
			open = false
		}
	}

	rest := s
	for {
		loc := sgrRe.FindStringIndex(rest)
		if loc == nil {
			b.WriteString(html.EscapeString(rest))
			break
		}
		b.WriteString(html.EscapeString(rest[:loc[0]]))
		seq := rest[loc[0]:loc[1]]
		rest = rest[loc[1]:]

		if c, ok := parseSGRColor(seq); ok {
			closeSpan()
			b.WriteString(`<span style="color:` + Hex(c) + `">`)
			open = true
		} else if isSGRReset(seq) {
			closeSpan()
		}
		// Unrecognized codes produce no markup.
	}

	closeSpan()
	return b.String()
}

// parseSGRColor extracts the palette color selected by an SGR
// sequence. The last numeric parameter wins, matching how terminals
// apply combined sequences like ESC[1;32m.
func parseSGRColor(seq string) (Color, bool) {
	params := seq[2 : len(seq)-1] // trim ESC[ and m
	if params == "" {
		return "", false
	}
	parts := strings.Split(params, ";")
	n, err := strconv.Atoi(parts[len(parts)-1])
	if err != nil {
		return "", false
	}
	c, ok := sgrToColor[n]
	return c, ok
}

// isSGRReset reports whether seq resets attributes (ESC[m or ESC[0m,
// possibly as the last parameter).
func isSGRReset(seq string) bool {
	params := seq[2 : len(seq)-1]
	if params == "" {
		return true
	}
	parts := strings.Split(params, ";")
	return parts[len(parts)-1] == "0"
}
