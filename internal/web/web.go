package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"net/http"
	"os"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

// Page template names.
const (
	PageIndex    = "index.html"
	PageServices = "services.html"
	PageRGBW     = "rgbw.html"
	PageShade    = "shcnt.html"
	PageError    = "error.html"
)

// ServiceRow is one line of the device list.
type ServiceRow struct {
	ID    string
	Label string
	Type  string
	Addr  string
}

// ServicesPage is the data for PageServices.
type ServicesPage struct {
	Services []ServiceRow
}

// RGBWPage is the data for PageRGBW. RGB is six lowercase hex digits
// without a leading '#'.
type RGBWPage struct {
	ID        string
	Name      string
	RGB       string
	W         uint8
	Submitted bool
}

// ShadePage is the data for PageShade.
type ShadePage struct {
	ID        string
	Name      string
	Pos       uint8
	Submitted bool
}

// ErrorPage is the data for PageError.
type ErrorPage struct {
	ID      string
	Message string
}

// Renderer executes the embedded page templates.
// It is safe for concurrent use.
type Renderer struct {
	pages map[string]*template.Template
}

// NewRenderer parses the embedded templates.
func NewRenderer() (*Renderer, error) {
	names := []string{PageIndex, PageServices, PageRGBW, PageShade, PageError}

	r := &Renderer{pages: make(map[string]*template.Template, len(names))}
	for _, name := range names {
		t, err := template.New(name).ParseFS(templateFS, "templates/layout.html", "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		r.pages[name] = t
	}
	return r, nil
}

// Render writes page name to w. The page is rendered to memory first, so
// nothing is written when execution fails.
func (r *Renderer) Render(w io.Writer, name string, data any) error {
	t, ok := r.pages[name]
	if !ok {
		return fmt.Errorf("unknown page %q", name)
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, name, data); err != nil {
		return fmt.Errorf("rendering %s: %w", name, err)
	}
	_, err := buf.WriteTo(w)
	return err
}

// StaticHandler serves the stylesheet and other static assets. Mount it
// with http.StripPrefix("/static/", ...).
//
// When dir is non-empty and exists, assets are served from the filesystem
// (no rebuild needed while editing CSS). Otherwise the embedded copies are
// served.
// Panics if the embedded assets cannot be loaded (build error).
func StaticHandler(dir string) http.Handler {
	var fileSystem http.FileSystem

	if dir != "" {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			fileSystem = http.Dir(dir)
		}
	}

	if fileSystem == nil {
		sub, err := fs.Sub(staticFS, "static")
		if err != nil {
			panic(fmt.Sprintf("web: failed to load embedded static assets: %v", err))
		}
		fileSystem = http.FS(sub)
	}

	fileServer := http.FileServer(fileSystem)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache, must-revalidate")
		fileServer.ServeHTTP(w, r)
	})
}
