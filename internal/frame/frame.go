// Package frame builds and validates fixed-width bordered text frames
// using CP437 box-drawing glyphs. The builder and the validator are
// deliberately independent so the validator can serve as an oracle in
// tests.
package frame

import (
	"fmt"
	"strings"

	"github.com/retrobbs/retrobbs/internal/ansi"
)

// Style selects the box-drawing glyph set.
type Style string

const (
	StyleSingle Style = "single"
	StyleDouble Style = "double"
)

// Align selects horizontal alignment of content within a frame.
type Align string

const (
	AlignLeft   Align = "left"
	AlignCenter Align = "center"
)

// glyphSet holds the nine glyphs a frame is drawn with.
type glyphSet struct {
	topLeft, topRight       string
	bottomLeft, bottomRight string
	horizontal, vertical    string
	teeLeft, teeRight       string
}

var glyphs = map[Style]glyphSet{
	StyleSingle: {"┌", "┐", "└", "┘", "─", "│", "├", "┤"},
	StyleDouble: {"╔", "╗", "╚", "╝", "═", "║", "╠", "╣"},
}

// Line is one logical content line. Color may be a palette color name
// or a raw escape sequence, which is applied literally.
type Line struct {
	Text  string
	Align Align  // defaults to the builder's alignment
	Color string // palette name or raw ESC sequence
}

// WidthExceededError reports a rendered line wider than the allowed
// maximum.
type WidthExceededError struct {
	Actual int
	Max    int
}

func (e *WidthExceededError) Error() string {
	return fmt.Sprintf("frame width %d exceeds maximum %d", e.Actual, e.Max)
}

// Builder constructs frames of a fixed visual width.
type Builder struct {
	width    int
	maxWidth int
	padding  int
	style    Style
	align    Align
}

// Config holds Builder construction parameters.
type Config struct {
	Width    int
	MaxWidth int
	Padding  int
	Style    Style
	Align    Align
}

// NewBuilder validates the configuration and returns a Builder.
func NewBuilder(cfg Config) (*Builder, error) {
	if cfg.Width <= 0 {
		return nil, fmt.Errorf("frame width must be positive, got %d", cfg.Width)
	}
	if cfg.MaxWidth > 0 && cfg.Width > cfg.MaxWidth {
		return nil, &WidthExceededError{Actual: cfg.Width, Max: cfg.MaxWidth}
	}
	if cfg.Style == "" {
		cfg.Style = StyleSingle
	}
	if _, ok := glyphs[cfg.Style]; !ok {
		return nil, fmt.Errorf("unknown frame style %q", cfg.Style)
	}
	if cfg.Align == "" {
		cfg.Align = AlignLeft
	}
	if cfg.MaxWidth == 0 {
		cfg.MaxWidth = cfg.Width
	}
	return &Builder{
		width:    cfg.Width,
		maxWidth: cfg.MaxWidth,
		padding:  cfg.Padding,
		style:    cfg.Style,
		align:    cfg.Align,
	}, nil
}

// contentWidth is the cell budget available for text between the
// borders and padding.
func (b *Builder) contentWidth() int {
	return b.width - 2 - 2*b.padding
}

// Build renders the frame around the given lines. The returned slice
// contains the top border, one row per line, and the bottom border.
func (b *Builder) Build(lines []Line) ([]string, error) {
	g := glyphs[b.style]
	out := make([]string, 0, len(lines)+2)
	out = append(out, b.horizontalRow(g.topLeft, g.topRight))
	for _, ln := range lines {
		row, err := b.contentRow(ln)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	out = append(out, b.horizontalRow(g.bottomLeft, g.bottomRight))
	return out, b.checkWidths(out)
}

// BuildWithTitle renders a frame with a centered title block above a
// divider row, then the content lines.
func (b *Builder) BuildWithTitle(title string, lines []Line, titleColor string) ([]string, error) {
	g := glyphs[b.style]
	out := make([]string, 0, len(lines)+6)
	out = append(out, b.horizontalRow(g.topLeft, g.topRight))

	blank, err := b.contentRow(Line{})
	if err != nil {
		return nil, err
	}
	titleRow, err := b.contentRow(Line{Text: title, Align: AlignCenter, Color: titleColor})
	if err != nil {
		return nil, err
	}
	out = append(out, blank, titleRow, blank)
	out = append(out, b.horizontalRow(g.teeLeft, g.teeRight))

	for _, ln := range lines {
		row, err := b.contentRow(ln)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	out = append(out, b.horizontalRow(g.bottomLeft, g.bottomRight))
	return out, b.checkWidths(out)
}

// BuildMessage renders a single centered message line in a frame.
func (b *Builder) BuildMessage(message string, color string) ([]string, error) {
	return b.Build([]Line{{Text: message, Align: AlignCenter, Color: color}})
}

// horizontalRow draws a full-width border row with the given corners.
func (b *Builder) horizontalRow(left, right string) string {
	g := glyphs[b.style]
	return left + strings.Repeat(g.horizontal, b.width-2) + right
}

// contentRow pads, colors, and borders one logical line.
func (b *Builder) contentRow(ln Line) (string, error) {
	g := glyphs[b.style]
	cw := b.contentWidth()
	if cw < 0 {
		return "", fmt.Errorf("frame width %d too small for padding %d", b.width, b.padding)
	}

	text := ln.Text
	if ansi.Width(text) > cw {
		return "", &WidthExceededError{Actual: ansi.Width(text), Max: cw}
	}

	align := ln.Align
	if align == "" {
		align = b.align
	}
	padded := pad(text, cw, align)

	if ln.Color != "" {
		if strings.HasPrefix(ln.Color, "\x1b") {
			padded = ln.Color + padded + ansi.Reset
		} else if ansi.IsValidColor(ln.Color) {
			padded = ansi.Colorize(padded, ansi.Color(ln.Color))
		}
	}

	gap := strings.Repeat(" ", b.padding)
	return g.vertical + gap + padded + gap + g.vertical, nil
}

// pad fills text with spaces to exactly width cells.
func pad(text string, width int, align Align) string {
	fill := width - ansi.Width(text)
	if fill <= 0 {
		return text
	}
	if align == AlignCenter {
		left := fill / 2
		return strings.Repeat(" ", left) + text + strings.Repeat(" ", fill-left)
	}
	return text + strings.Repeat(" ", fill)
}

// checkWidths verifies every emitted row stays within maxWidth.
func (b *Builder) checkWidths(rows []string) error {
	for _, row := range rows {
		if w := ansi.Width(row); w > b.maxWidth {
			return &WidthExceededError{Actual: w, Max: b.maxWidth}
		}
	}
	return nil
}

// Check is a light sanity check on assembled frame text: uniform width
// and known corner glyphs. The full oracle lives in Validate.
func Check(frameText string) bool {
	return Validate(frameText).Valid
}
