// Package render turns logical frame content into wire-ready strings
// for a specific client surface. The same frame renders with LF line
// endings on a local terminal, CRLF on a telnet-style stream, and as
// HTML spans for web clients.
package render

import (
	"fmt"
	"strings"

	"github.com/retrobbs/retrobbs/internal/ansi"
	"github.com/retrobbs/retrobbs/internal/frame"
)

// ContextType identifies the client surface being rendered for.
type ContextType string

const (
	ContextTerminal ContextType = "terminal"
	ContextStream   ContextType = "stream"
	ContextWeb      ContextType = "web"
)

// Context describes the rendering target.
type Context struct {
	Type  ContextType
	Width int
}

// DefaultWidth is the column budget used when a context does not set
// one. Classic 80-column hardware is the reference terminal.
const DefaultWidth = 80

func (c Context) width() int {
	if c.Width > 0 {
		return c.Width
	}
	return DefaultWidth
}

// FrameInvalidError reports validator issues found in rendered output.
type FrameInvalidError struct {
	Issues []string
}

func (e *FrameInvalidError) Error() string {
	return fmt.Sprintf("frame failed validation: %s", strings.Join(e.Issues, "; "))
}

// Service renders frames, text, and templates for render contexts.
type Service struct {
	templates *TemplateCache
	validate  bool
}

// NewService creates a Service. When validate is true every rendered
// frame is checked against the frame validator before being returned.
func NewService(validate bool) *Service {
	return &Service{
		templates: NewTemplateCache(),
		validate:  validate,
	}
}

// Templates exposes the service's template cache.
func (s *Service) Templates() *TemplateCache { return s.templates }

// LineEnding returns the line separator for a context. Telnet-style
// streams require CRLF; everything else uses LF.
func (s *Service) LineEnding(ctx Context) string {
	if ctx.Type == ContextStream {
		return "\r\n"
	}
	return "\n"
}

// RenderFrame builds a frame around lines and returns it as a single
// string joined with the context's line ending.
func (s *Service) RenderFrame(lines []frame.Line, cfg frame.Config, ctx Context) (string, error) {
	b, err := frame.NewBuilder(s.contextConfig(cfg, ctx))
	if err != nil {
		return "", err
	}
	rows, err := b.Build(lines)
	if err != nil {
		return "", err
	}
	return s.finish(rows, ctx)
}

// RenderFrameWithTitle is RenderFrame with a centered title block.
func (s *Service) RenderFrameWithTitle(title string, lines []frame.Line, titleColor string, cfg frame.Config, ctx Context) (string, error) {
	b, err := frame.NewBuilder(s.contextConfig(cfg, ctx))
	if err != nil {
		return "", err
	}
	rows, err := b.BuildWithTitle(title, lines, titleColor)
	if err != nil {
		return "", err
	}
	return s.finish(rows, ctx)
}

// RenderText colorizes a plain text line for the context. Web contexts
// receive HTML instead of raw escapes.
func (s *Service) RenderText(text string, color string, ctx Context) string {
	out := text
	if color != "" && ansi.IsValidColor(color) {
		out = ansi.Colorize(text, ansi.Color(color))
	}
	if ctx.Type == ContextWeb {
		out = ansi.ToHTML(out)
	}
	return out
}

// contextConfig caps the builder's max width at the context budget.
func (s *Service) contextConfig(cfg frame.Config, ctx Context) frame.Config {
	if cfg.MaxWidth == 0 || cfg.MaxWidth > ctx.width() {
		cfg.MaxWidth = ctx.width()
	}
	return cfg
}

// finish validates built rows, applies web conversion, and joins.
func (s *Service) finish(rows []string, ctx Context) (string, error) {
	max := ctx.width()
	for _, row := range rows {
		if w := ansi.Width(row); w > max {
			return "", &frame.WidthExceededError{Actual: w, Max: max}
		}
	}

	if s.validate {
		res := frame.Validate(strings.Join(rows, "\n"))
		if !res.Valid {
			return "", &FrameInvalidError{Issues: res.Issues}
		}
	}

	out := rows
	if ctx.Type == ContextWeb {
		out = make([]string, len(rows))
		for i, row := range rows {
			out[i] = ansi.ToHTML(row)
		}
	}
	return strings.Join(out, s.LineEnding(ctx)), nil
}
