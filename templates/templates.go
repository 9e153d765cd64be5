// Package templates holds the embedded HTML pages and a gin renderer for them.
package templates

import (
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"path"
	"strings"
	"time"

	"github.com/gin-gonic/gin/render"

	"github.com/cppla/bloghub/models"
)

//go:embed *.html
var templateFS embed.FS

// Renderer maps page names such as "index.html" to a template made of the layout, the shared
// partials, and that page.
type Renderer struct {
	pages map[string]*template.Template
}

var permissionNames = map[string]models.Permission{
	"FOLLOW":   models.PermFollow,
	"COMMENT":  models.PermComment,
	"WRITE":    models.PermWrite,
	"MODERATE": models.PermModerate,
	"ADMIN":    models.PermAdmin,
}

var funcs = template.FuncMap{
	"can": func(u *models.User, name string) bool {
		perm, ok := permissionNames[name]
		return ok && u.Can(perm)
	},
	"formatTime": func(t time.Time) string { return t.UTC().Format("2006-01-02 15:04") },
	"isoTime":    func(t time.Time) string { return t.UTC().Format(time.RFC3339) },
	"html":       func(s string) template.HTML { return template.HTML(s) }, // only for sanitized body_html
	"gravatar":   func(u *models.User, size int) string { return u.Gravatar(size, true) },
	"add":        func(a, b int) int { return a + b },
}

// Load parses every embedded page.
func Load() (*Renderer, error) {
	layout, err := templateFS.ReadFile("layout.html")
	if err != nil {
		return nil, err
	}
	names, err := fs.Glob(templateFS, "*.html")
	if err != nil {
		return nil, err
	}
	var partials, pages []string
	for _, name := range names {
		switch {
		case name == "layout.html":
		case strings.HasPrefix(name, "_"):
			partials = append(partials, name)
		default:
			pages = append(pages, name)
		}
	}

	r := &Renderer{pages: map[string]*template.Template{}}
	for _, page := range pages {
		t, err := template.New("layout").Funcs(funcs).Parse(string(layout))
		if err != nil {
			return nil, fmt.Errorf("parse layout: %w", err)
		}
		for _, name := range append(partials, page) {
			body, err := templateFS.ReadFile(name)
			if err != nil {
				return nil, err
			}
			if _, err := t.New(path.Base(name)).Parse(string(body)); err != nil {
				return nil, fmt.Errorf("parse %s: %w", name, err)
			}
		}
		r.pages[page] = t
	}
	return r, nil
}

// Instance implements render.HTMLRender.
func (r *Renderer) Instance(name string, data interface{}) render.Render {
	t, ok := r.pages[name]
	if !ok {
		t = r.pages["error.html"]
	}
	return render.HTML{Template: t, Name: "layout", Data: data}
}
