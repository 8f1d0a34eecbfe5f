package tplengine

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"text/template"

	"github.com/Masterminds/sprig/v3"
)

// TemplateEngine renders named prompt templates with the sprig function set.
// Templates fail on missing map keys instead of printing "<no value>".
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]*template.Template
}

func NewEngine() *TemplateEngine {
	return &TemplateEngine{templates: make(map[string]*template.Template)}
}

// HasTemplate returns true if the text contains template markers
func HasTemplate(text string) bool {
	return strings.Contains(text, "{{")
}

// AddTemplate parses and registers a template under name, replacing any
// previous one.
func (e *TemplateEngine) AddTemplate(name, text string) error {
	tmpl, err := parse(name, text)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.templates[name] = tmpl
	e.mu.Unlock()
	return nil
}

// MustAddTemplate is AddTemplate for package-level prompts known at compile time.
func (e *TemplateEngine) MustAddTemplate(name, text string) *TemplateEngine {
	if err := e.AddTemplate(name, text); err != nil {
		panic(err)
	}
	return e
}

// Render executes the named template against data.
func (e *TemplateEngine) Render(name string, data any) (string, error) {
	e.mu.RLock()
	tmpl, ok := e.templates[name]
	e.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("template not found: %s", name)
	}
	return execute(tmpl, data)
}

// RenderString parses and executes text in one step. Text without template
// markers is returned as is.
func (e *TemplateEngine) RenderString(text string, data any) (string, error) {
	if !HasTemplate(text) {
		return text, nil
	}
	tmpl, err := parse("inline", text)
	if err != nil {
		return "", err
	}
	return execute(tmpl, data)
}

func parse(name, text string) (*template.Template, error) {
	tmpl, err := template.New(name).Option("missingkey=error").Funcs(sprig.TxtFuncMap()).Parse(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}
	return tmpl, nil
}

func execute(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("template execution error: %w", err)
	}
	return buf.String(), nil
}
