package demo

import (
	"context"
	"net/http"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"goji.io/pat"

	"github.com/stripe/speedtracer/trace"
)

func (a *App) indexHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defer trace.Func(ctx).Exit()

	page := &Page{}
	if err := page.Load(ctx, a.catalog, "index"); err != nil {
		a.fail(w, r, err)
		return
	}
	a.render(ctx, w, "page", page)
}

func (a *App) pageHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defer trace.Func(ctx).Exit()

	page := &Page{}
	if err := page.Load(ctx, a.catalog, pat.Param(r, "slug")); err != nil {
		a.fail(w, r, err)
		return
	}
	a.render(ctx, w, "page", page)
}

func (a *App) searchHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defer trace.Func(ctx).Exit()

	term := r.URL.Query().Get("q")
	pages := a.catalog.Search(ctx, term, shardsParam(r))
	a.render(ctx, w, "results", struct {
		Term  string
		Pages []Page
	}{term, pages})
}

// render is instrumented through OpenTracing rather than trace.Func, the way
// a library that only knows the OpenTracing API would be.
func (a *App) render(ctx context.Context, w http.ResponseWriter, name string, data interface{}) {
	span, _ := opentracing.StartSpanFromContextWithTracer(ctx, trace.Tracer{}, "render_template")
	defer span.Finish()
	span.SetTag("template", name)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := a.templates.ExecuteTemplate(w, name, data); err != nil {
		a.logger.WithError(err).WithField("template", name).Error("Could not render template")
	}
}

func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, ErrPageNotFound) {
		http.NotFound(w, r)
		return
	}
	a.logger.WithError(err).Error("Could not load page")
	http.Error(w, "internal error", http.StatusInternalServerError)
}
