// Package templates renders the HTML fragments streamed to Datastar pages.
package templates

import (
	"bytes"
	"embed"
	"html/template"
	"io/fs"
	"os"
)

//go:embed fragments/*.html
var embedded embed.FS

var funcMap = template.FuncMap{
	// safe marks already-escaped HTML such as rendered popup content.
	"safe": func(s string) template.HTML {
		return template.HTML(s)
	},
}

// Renderer executes the named fragment templates.
type Renderer struct {
	templates *template.Template
}

// New loads the fragment templates from fragmentsDir, e.g.
// web/templates/fragments. Files there override the built-in fragments
// of the same name.
func New(fragmentsDir string) (*Renderer, error) {
	tmpl, err := parse(os.DirFS(fragmentsDir))
	if err != nil {
		return nil, err
	}
	return &Renderer{templates: tmpl}, nil
}

// Default returns a renderer with the built-in fragments only.
func Default() *Renderer {
	tmpl, err := parse(nil)
	if err != nil {
		panic(err)
	}
	return &Renderer{templates: tmpl}
}

func parse(dir fs.FS) (*template.Template, error) {
	tmpl, err := template.New("").Funcs(funcMap).ParseFS(embedded, "fragments/*.html")
	if err != nil {
		return nil, err
	}
	if dir == nil {
		return tmpl, nil
	}
	matches, err := fs.Glob(dir, "*.html")
	if err != nil || len(matches) == 0 {
		return tmpl, err
	}
	return tmpl.ParseFS(dir, "*.html")
}

// Render renders a named template to a string.
func (r *Renderer) Render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := r.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderToBuffer renders a named template to a buffer.
func (r *Renderer) RenderToBuffer(buf *bytes.Buffer, name string, data any) error {
	return r.templates.ExecuteTemplate(buf, name, data)
}
