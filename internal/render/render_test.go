package render

import (
	"errors"
	"math/rand"
	"strings"
	"testing"

	"github.com/retrobbs/retrobbs/internal/ansi"
	"github.com/retrobbs/retrobbs/internal/frame"
)

var (
	termCtx   = Context{Type: ContextTerminal, Width: 80}
	streamCtx = Context{Type: ContextStream, Width: 80}
	webCtx    = Context{Type: ContextWeb, Width: 80}
)

func TestLineEndings(t *testing.T) {
	s := NewService(false)
	if s.LineEnding(termCtx) != "\n" {
		t.Error("terminal should use LF")
	}
	if s.LineEnding(streamCtx) != "\r\n" {
		t.Error("stream should use CRLF")
	}
	if s.LineEnding(webCtx) != "\n" {
		t.Error("web should use LF")
	}
}

func TestRenderFramePerContext(t *testing.T) {
	s := NewService(true)
	lines := []frame.Line{{Text: "hello", Color: "green"}}
	cfg := frame.Config{Width: 40, Style: frame.StyleDouble}

	term, err := s.RenderFrame(lines, cfg, termCtx)
	if err != nil {
		t.Fatalf("terminal render: %v", err)
	}
	if strings.Contains(term, "\r\n") {
		t.Error("terminal output contains CRLF")
	}

	stream, err := s.RenderFrame(lines, cfg, streamCtx)
	if err != nil {
		t.Fatalf("stream render: %v", err)
	}
	if strings.Count(stream, "\r\n") != strings.Count(stream, "\n") {
		t.Error("stream output has bare LF separators")
	}

	web, err := s.RenderFrame(lines, cfg, webCtx)
	if err != nil {
		t.Fatalf("web render: %v", err)
	}
	if strings.ContainsRune(web, 0x1b) {
		t.Error("web output contains ESC byte")
	}
	if !strings.Contains(web, "<span") {
		t.Error("web output lost color markup")
	}
}

func TestRenderFrameWidthExceeded(t *testing.T) {
	s := NewService(true)
	long := strings.Repeat("x", 200)
	_, err := s.RenderFrame(
		[]frame.Line{{Text: long}},
		frame.Config{Width: 210, MaxWidth: 210},
		Context{Type: ContextTerminal, Width: 80},
	)
	var we *frame.WidthExceededError
	if !errors.As(err, &we) {
		t.Fatalf("expected WidthExceededError, got %v", err)
	}
	if we.Actual < 200 || we.Max != 80 {
		t.Fatalf("wrong bounds in error: %+v", we)
	}
}

func TestRenderFrameWithTitle(t *testing.T) {
	s := NewService(true)
	out, err := s.RenderFrameWithTitle("WELCOME", []frame.Line{{Text: "line"}},
		"yellow", frame.Config{Width: 40}, termCtx)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(out, "WELCOME") {
		t.Error("title missing from output")
	}
	res := frame.Validate(out)
	if !res.Valid {
		t.Fatalf("titled frame invalid: %v", res.Issues)
	}
}

func TestRenderText(t *testing.T) {
	s := NewService(false)
	out := s.RenderText("danger", "red", termCtx)
	if !strings.HasPrefix(out, ansi.Code(ansi.Red)) || !strings.HasSuffix(out, ansi.Reset) {
		t.Fatalf("terminal text not colorized: %q", out)
	}

	webOut := s.RenderText("danger", "red", webCtx)
	if strings.ContainsRune(webOut, 0x1b) {
		t.Fatalf("web text contains ESC: %q", webOut)
	}
	if !strings.Contains(webOut, "<span") {
		t.Fatalf("web text missing span: %q", webOut)
	}
}

func TestRenderTemplate(t *testing.T) {
	s := NewService(true)
	tpl := &Template{
		Name:  "greeting",
		Width: 40,
		Style: frame.StyleSingle,
		Content: []frame.Line{
			{Text: "Hello, {{handle}}!"},
			{Text: "Last on: {{last}}"},
		},
		Variables: []string{"handle", "last"},
	}

	out, err := s.RenderTemplate(tpl, map[string]string{
		"handle": "sysop",
		"last":   "yesterday",
	}, termCtx)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(out, "Hello, sysop!") {
		t.Errorf("substitution failed: %q", out)
	}

	_, err = s.RenderTemplate(tpl, map[string]string{"handle": "sysop"}, termCtx)
	var mv *MissingVariableError
	if !errors.As(err, &mv) {
		t.Fatalf("expected MissingVariableError, got %v", err)
	}
	if mv.Variable != "last" {
		t.Fatalf("wrong missing variable: %q", mv.Variable)
	}
}

func TestRenderTemplateLiteralDollar(t *testing.T) {
	s := NewService(true)
	tpl := &Template{
		Name:      "cost",
		Width:     40,
		Content:   []frame.Line{{Text: "You owe {{amount}}"}},
		Variables: []string{"amount"},
	}
	out, err := s.RenderTemplate(tpl, map[string]string{"amount": "$1 & ${2}"}, termCtx)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(out, "$1 & ${2}") {
		t.Fatalf("dollar sequences not literal: %q", out)
	}
}

// Randomized: substitution never breaks frame alignment.
func TestTemplateSubstitutionPreservesAlignment(t *testing.T) {
	s := NewService(true)
	rng := rand.New(rand.NewSource(11))
	for i := 0; i < 200; i++ {
		val := strings.Repeat("v", rng.Intn(10))
		tpl := &Template{
			Name:      "t",
			Width:     40,
			Content:   []frame.Line{{Text: "a {{x}} b"}, {Text: "plain"}},
			Variables: []string{"x"},
		}
		out, err := s.RenderTemplate(tpl, map[string]string{"x": val}, termCtx)
		if err != nil {
			t.Fatalf("iteration %d: %v", i, err)
		}
		first := -1
		for _, line := range strings.Split(out, "\n") {
			w := ansi.Width(line)
			if first == -1 {
				first = w
			} else if w != first {
				t.Fatalf("iteration %d: ragged output\n%s", i, out)
			}
		}
	}
}

func TestTemplateCache(t *testing.T) {
	s := NewService(false)
	s.Templates().Register(&Template{Name: "menu", Width: 30, Content: []frame.Line{{Text: "hi"}}})
	if _, ok := s.Templates().Get("menu"); !ok {
		t.Fatal("registered template not found")
	}
	if _, err := s.RenderNamedTemplate("nope", nil, termCtx); err == nil {
		t.Fatal("expected error for unknown template")
	}
}
