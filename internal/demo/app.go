// Package demo is a small site whose handlers and models are instrumented
// for tracing. The speedtracer binary serves it so that traces can be
// produced without wiring up a real application.
package demo

import (
	"html/template"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"goji.io"
	"goji.io/pat"
)

type App struct {
	catalog   *Catalog
	logger    *logrus.Entry
	templates *template.Template
}

// New returns the demo site, serving pages from catalog.
func New(catalog *Catalog, logger *logrus.Entry) *App {
	if catalog == nil {
		catalog = NewCatalog(2*time.Millisecond, DefaultPages...)
	}
	return &App{
		catalog:   catalog,
		logger:    logger,
		templates: template.Must(template.New("demo").Parse(templates)),
	}
}

// Handler routes the demo site's pages.
func (a *App) Handler() http.Handler {
	mux := goji.NewMux()
	mux.HandleFunc(pat.Get("/"), a.indexHandler)
	mux.HandleFunc(pat.Get("/pages/:slug"), a.pageHandler)
	mux.HandleFunc(pat.Get("/search"), a.searchHandler)
	return mux
}

func shardsParam(r *http.Request) int {
	shards, err := strconv.Atoi(r.URL.Query().Get("shards"))
	if err != nil || shards < 1 {
		return 2
	}
	return shards
}

const templates = `
{{define "page"}}<!DOCTYPE html>
<html><head><title>{{.Title}}</title></head>
<body><h1>{{.Title}}</h1><p>{{.Body}}</p></body></html>
{{end}}
{{define "results"}}<!DOCTYPE html>
<html><head><title>Search: {{.Term}}</title></head>
<body><ul>{{range .Pages}}<li><a href="/pages/{{.Slug}}">{{.Title}}</a></li>{{end}}</ul></body></html>
{{end}}
`
