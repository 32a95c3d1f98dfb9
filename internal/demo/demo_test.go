package demo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stripe/speedtracer/trace"
)

const demoModule = "github.com/stripe/speedtracer/internal/demo."

func serveTraced(t *testing.T, app *App, url string) (*httptest.ResponseRecorder, []*trace.Span) {
	rec := trace.NewRecorder(nil)
	rec.Start()
	ctx := trace.ContextWithRequestSpan(context.Background(), rec)

	req := httptest.NewRequest(http.MethodGet, url, nil).WithContext(ctx)
	w := httptest.NewRecorder()
	app.Handler().ServeHTTP(w, req)
	rec.Stop()

	assert.Zero(t, rec.Stats().Unbalanced)
	return w, rec.Roots()
}

func labels(spans []*trace.Span) []string {
	out := make([]string, len(spans))
	for i, span := range spans {
		out[i] = strings.TrimPrefix(span.Label(), demoModule)
	}
	return out
}

func newTestApp() (*App, *test.Hook) {
	logger, hook := test.NewNullLogger()
	return New(NewCatalog(0, DefaultPages...), logrus.NewEntry(logger)), hook
}

func TestPageIsTraced(t *testing.T) {
	app, _ := newTestApp()
	w, roots := serveTraced(t, app, "/pages/about")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "<h1>About</h1>")

	require.Equal(t, []string{"App.pageHandler"}, labels(roots))
	handler := roots[0]
	require.Equal(t, []string{"Page.Load", "render_template"}, labels(handler.Children))
	assert.Equal(t, []string{"Catalog.roundTrip"}, labels(handler.Children[0].Children))
	assert.Empty(t, handler.Children[1].Children)

	location := handler.Operation.SourceCodeLocation
	require.NotNil(t, location)
	assert.True(t, strings.HasSuffix(location.ClassName, "views.go"), location.ClassName)
	assert.Equal(t, "pageHandler", location.MethodName)
}

func TestMissingPage(t *testing.T) {
	app, hook := newTestApp()
	w, roots := serveTraced(t, app, "/pages/nope")

	assert.Equal(t, http.StatusNotFound, w.Code)
	require.Len(t, roots, 1)
	assert.Equal(t, []string{"Page.Load"}, labels(roots[0].Children))
	assert.Empty(t, hook.AllEntries(), "a missing page is not an error")
}

func TestSearchMergesBranches(t *testing.T) {
	app, _ := newTestApp()
	w, roots := serveTraced(t, app, "/search?q=spans&shards=3")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `href="/pages/tracing"`)
	assert.NotContains(t, w.Body.String(), `href="/pages/about"`)

	require.Equal(t, []string{"App.searchHandler"}, labels(roots))
	handler := roots[0]
	require.Equal(t, []string{"Catalog.Search", "render_template"}, labels(handler.Children))

	search := handler.Children[0]
	assert.Equal(t, []string{"Catalog.scanShard", "Catalog.scanShard", "Catalog.scanShard"}, labels(search.Children))
	for _, shard := range search.Children {
		assert.Equal(t, []string{"Catalog.roundTrip"}, labels(shard.Children))
		assert.False(t, shard.Range.End.After(search.Range.End))
	}
}

func TestUntracedRequest(t *testing.T) {
	app, _ := newTestApp()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	app.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "<h1>Home</h1>")
}
