// Package web holds the HTMX front end: page templates, shared partials and
// the static assets the pages load.
package web

import (
	"embed"
	"html/template"
	"io/fs"
)

//go:embed templates/*.html
var templatesFS embed.FS

//go:embed static/*
var staticFS embed.FS

// Templates parses every page and partial into one set. Pages are looked up
// by file name ("list.html"), partials by their define name ("list-body").
func Templates(funcs template.FuncMap) (*template.Template, error) {
	return template.New("").Funcs(funcs).ParseFS(templatesFS, "templates/*.html")
}

// Static is the asset tree served under /static/.
func Static() (fs.FS, error) {
	return fs.Sub(staticFS, "static")
}
