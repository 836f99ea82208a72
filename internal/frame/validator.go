package frame

import (
	"fmt"
	"strings"

	"github.com/retrobbs/retrobbs/internal/ansi"
)

// Result is the outcome of validating a frame.
type Result struct {
	Valid  bool
	Width  int
	Height int
	Issues []string
}

var (
	topLeftCorners  = map[rune]Style{'┌': StyleSingle, '╔': StyleDouble}
	topRightCorners = map[rune]Style{'┐': StyleSingle, '╗': StyleDouble}
	bottomLeft      = map[rune]Style{'└': StyleSingle, '╚': StyleDouble}
	bottomRight     = map[rune]Style{'┘': StyleSingle, '╝': StyleDouble}
	horizontals     = map[rune]Style{'─': StyleSingle, '═': StyleDouble}
	verticalish     = map[rune]Style{
		'│': StyleSingle, '├': StyleSingle, '┤': StyleSingle,
		'║': StyleDouble, '╠': StyleDouble, '╣': StyleDouble,
	}
)

// splitFrame normalizes line endings, strips ANSI, and drops trailing
// empty lines.
func splitFrame(text string) []string {
	raw := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	for len(raw) > 0 && strings.TrimSpace(raw[len(raw)-1]) == "" {
		raw = raw[:len(raw)-1]
	}
	lines := make([]string, len(raw))
	for i, l := range raw {
		lines[i] = ansi.Strip(l)
	}
	return lines
}

// Validate checks alignment, borders, and corner glyphs of a frame.
func Validate(text string) Result {
	lines := splitFrame(text)
	res := Result{Height: len(lines)}
	if len(lines) == 0 {
		res.Issues = append(res.Issues, "frame is empty")
		return res
	}

	res.Width = ansi.Width(lines[0])
	for i, l := range lines {
		if w := ansi.Width(l); w != res.Width {
			res.Issues = append(res.Issues,
				fmt.Sprintf("line %d width %d differs from expected %d", i, w, res.Width))
		}
	}

	top := []rune(lines[0])
	bottom := []rune(lines[len(lines)-1])
	styles := map[Style]bool{}

	if len(top) < 2 || len(bottom) < 2 {
		res.Issues = append(res.Issues, "frame rows too short for borders")
		res.Valid = len(res.Issues) == 0
		return res
	}

	if s, ok := topLeftCorners[top[0]]; ok {
		styles[s] = true
	} else {
		res.Issues = append(res.Issues, fmt.Sprintf("invalid top-left corner %q", top[0]))
	}
	if s, ok := topRightCorners[top[len(top)-1]]; ok {
		styles[s] = true
	} else {
		res.Issues = append(res.Issues, fmt.Sprintf("invalid top-right corner %q", top[len(top)-1]))
	}
	if s, ok := bottomLeft[bottom[0]]; ok {
		styles[s] = true
	} else {
		res.Issues = append(res.Issues, fmt.Sprintf("invalid bottom-left corner %q", bottom[0]))
	}
	if s, ok := bottomRight[bottom[len(bottom)-1]]; ok {
		styles[s] = true
	} else {
		res.Issues = append(res.Issues, fmt.Sprintf("invalid bottom-right corner %q", bottom[len(bottom)-1]))
	}

	for i, row := range [][]rune{top, bottom} {
		name := "top"
		if i == 1 {
			name = "bottom"
		}
		for _, r := range row[1 : len(row)-1] {
			if _, ok := horizontals[r]; !ok {
				res.Issues = append(res.Issues,
					fmt.Sprintf("%s border contains non-horizontal glyph %q", name, r))
				break
			}
		}
	}

	for i := 1; i < len(lines)-1; i++ {
		row := []rune(lines[i])
		if len(row) < 2 {
			res.Issues = append(res.Issues, fmt.Sprintf("line %d too short for borders", i))
			continue
		}
		for _, r := range []rune{row[0], row[len(row)-1]} {
			if s, ok := verticalish[r]; ok {
				styles[s] = true
			} else {
				res.Issues = append(res.Issues,
					fmt.Sprintf("line %d has invalid border glyph %q", i, r))
			}
		}
	}

	if styles[StyleSingle] && styles[StyleDouble] {
		res.Issues = append(res.Issues, "mixed single and double border styles")
	}

	res.Valid = len(res.Issues) == 0
	return res
}

// ValidateMultiple validates each frame found in text. Frames are
// located by their top-corner rows; text between frames is ignored.
func ValidateMultiple(text string) []Result {
	lines := splitFrame(text)
	var results []Result
	start := -1
	for i, l := range lines {
		runes := []rune(l)
		if len(runes) < 2 {
			continue
		}
		_, isTop := topLeftCorners[runes[0]]
		_, isBottom := bottomLeft[runes[0]]
		switch {
		case isTop:
			start = i
		case isBottom && start >= 0:
			results = append(results, Validate(strings.Join(lines[start:i+1], "\n")))
			start = -1
		}
	}
	return results
}

// ValidateBorders performs a stricter check that every border glyph in
// the frame belongs to the given style.
func ValidateBorders(text string, style Style) Result {
	res := Validate(text)
	lines := splitFrame(text)
	for i, l := range lines {
		for _, r := range l {
			s, isCorner := cornerStyle(r)
			if !isCorner {
				if hs, ok := horizontals[r]; ok {
					s, isCorner = hs, true
				} else if vs, ok := verticalish[r]; ok {
					s, isCorner = vs, true
				}
			}
			if isCorner && s != style {
				res.Issues = append(res.Issues,
					fmt.Sprintf("line %d uses %s-style glyph %q, want %s", i, s, r, style))
				res.Valid = false
			}
		}
	}
	return res
}

func cornerStyle(r rune) (Style, bool) {
	for _, m := range []map[rune]Style{topLeftCorners, topRightCorners, bottomLeft, bottomRight} {
		if s, ok := m[r]; ok {
			return s, true
		}
	}
	return "", false
}

// ValidateMaxWidth reports every line wider than max cells.
func ValidateMaxWidth(text string, max int) Result {
	lines := splitFrame(text)
	res := Result{Valid: true, Height: len(lines)}
	if len(lines) > 0 {
		res.Width = ansi.Width(lines[0])
	}
	for i, l := range lines {
		if w := ansi.Width(l); w > max {
			res.Issues = append(res.Issues,
				fmt.Sprintf("line %d width %d exceeds maximum %d", i, w, max))
			res.Valid = false
		}
	}
	return res
}
