// Package templates renders the Markdown documents toolrelay writes to disk.
//
// Templates are embedded in the binary so the server has no runtime file
// dependencies beyond its output directories.
package templates

import (
	"embed"
	"fmt"
	"strings"
	"text/template"
)

//go:embed *.md.tmpl
var files embed.FS

// Name identifies an embedded template.
type Name string

const (
	// Task is the per-task record written by create_task.
	Task Name = "task"
)

// Renderer renders a named template with the given data.
type Renderer interface {
	Render(name Name, data any) (string, error)
}

// TemplateRenderer is the embed-backed Renderer.
type TemplateRenderer struct {
	templates map[Name]*template.Template
}

// NewRenderer parses all embedded templates up front so a malformed
// template fails at startup rather than on the first request.
func NewRenderer() (*TemplateRenderer, error) {
	r := &TemplateRenderer{templates: make(map[Name]*template.Template)}

	for _, name := range []Name{Task} {
		filename := string(name) + ".md.tmpl"
		raw, err := files.ReadFile(filename)
		if err != nil {
			return nil, fmt.Errorf("reading template %s: %w", filename, err)
		}
		tmpl, err := template.New(filename).Option("missingkey=error").Parse(string(raw))
		if err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", filename, err)
		}
		r.templates[name] = tmpl
	}

	return r, nil
}

// Render executes the named template.
func (r *TemplateRenderer) Render(name Name, data any) (string, error) {
	tmpl, ok := r.templates[name]
	if !ok {
		return "", fmt.Errorf("unknown template %q", name)
	}

	var b strings.Builder
	if err := tmpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("rendering %s: %w", name, err)
	}
	return b.String(), nil
}

// TaskData is the input for the Task template.
type TaskData struct {
	ID          string
	Title       string
	Description string
	Context     string
	Priority    string
	Status      string
	CreatedAt   string
	NextSteps   []string
}
