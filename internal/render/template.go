package render

import (
	"fmt"
	"strings"
	"sync"

	"github.com/retrobbs/retrobbs/internal/frame"
)

// Template is a reusable frame layout with {{name}} placeholders.
type Template struct {
	Name      string
	Width     int
	Style     frame.Style
	Content   []frame.Line
	Variables []string
}

// MissingVariableError reports a declared template variable with no
// supplied value.
type MissingVariableError struct {
	Template string
	Variable string
}

func (e *MissingVariableError) Error() string {
	return fmt.Sprintf("template %q: missing value for variable %q", e.Template, e.Variable)
}

// TemplateCache is a concurrency-safe registry of named templates.
// Writes are rare (first touch); reads happen on every render.
type TemplateCache struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewTemplateCache creates an empty cache.
func NewTemplateCache() *TemplateCache {
	return &TemplateCache{templates: make(map[string]*Template)}
}

// Register stores a template under its name, replacing any previous
// registration.
func (c *TemplateCache) Register(t *Template) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.templates[t.Name] = t
}

// Get returns the template registered under name.
func (c *TemplateCache) Get(name string) (*Template, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.templates[name]
	return t, ok
}

// RenderTemplate substitutes vars into tpl's content and renders the
// result as a frame for the context. Every variable declared by the
// template must have a value; substitution is literal, so replacement
// values containing "$" or "{{" are inserted as-is.
func (s *Service) RenderTemplate(tpl *Template, vars map[string]string, ctx Context) (string, error) {
	for _, name := range tpl.Variables {
		if _, ok := vars[name]; !ok {
			return "", &MissingVariableError{Template: tpl.Name, Variable: name}
		}
	}

	lines := make([]frame.Line, len(tpl.Content))
	for i, ln := range tpl.Content {
		text := ln.Text
		for name, value := range vars {
			text = strings.ReplaceAll(text, "{{"+name+"}}", value)
		}
		lines[i] = frame.Line{Text: text, Align: ln.Align, Color: ln.Color}
	}

	cfg := frame.Config{Width: tpl.Width, Style: tpl.Style}
	return s.RenderFrame(lines, cfg, ctx)
}

// RenderNamedTemplate looks up a cached template and renders it.
func (s *Service) RenderNamedTemplate(name string, vars map[string]string, ctx Context) (string, error) {
	tpl, ok := s.templates.Get(name)
	if !ok {
		return "", fmt.Errorf("unknown template %q", name)
	}
	return s.RenderTemplate(tpl, vars, ctx)
}
