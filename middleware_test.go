package speedtracer_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stripe/speedtracer"
	"github.com/stripe/speedtracer/scopedstatsd"
	"github.com/stripe/speedtracer/stores"
	"github.com/stripe/speedtracer/stores/memory"
	"github.com/stripe/speedtracer/stores/mock"
	"github.com/stripe/speedtracer/trace"
)

type fakeClock struct {
	mtx sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.now = c.now.Add(d)
}

var (
	pageHandlerFrame = trace.Frame{
		File: "/srv/app/views/page.go", Line: 12, Function: "page_handler", Module: "views",
	}
	pageLoadFrame = trace.Frame{
		File: "/srv/app/models/page.go", Line: 40, Function: "load", Type: "Page", Module: "models",
	}
	templateFrame = trace.Frame{
		File: "/usr/lib/go/src/html/template/exec.go", Line: 200, Function: "Execute", Module: "html/template",
	}
)

type testMiddleware struct {
	*speedtracer.Middleware
	clock *fakeClock
	hook  *test.Hook
	store stores.Store
}

func newMemoryStore(t *testing.T) stores.Store {
	store, err := memory.New("memory", memory.MemoryStoreConfig{
		NumCounters: 1000,
		MaxCost:     1 << 20,
		BufferItems: 64,
	}, logrus.NewEntry(logrus.New()))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestMiddleware(t *testing.T, store stores.Store, statsd scopedstatsd.Client) testMiddleware {
	logger, hook := test.NewNullLogger()
	clock := &fakeClock{now: time.Unix(1500000000, 0)}
	filter, err := trace.NewFilter(trace.FilterConfig{Pattern: "/srv/app/"}, logrus.NewEntry(logger))
	require.NoError(t, err)

	m := speedtracer.NewMiddleware(speedtracer.MiddlewareConfig{
		CachePrefix: "speedtracer-%s",
		TraceURL:    "/__speedtracer__/",
		TTL:         time.Hour,
		Filter:      filter,
		Store:       store,
		Statsd:      statsd,
		Logger:      logrus.NewEntry(logger),
		Now:         clock.Now,
	})
	return testMiddleware{Middleware: m, clock: clock, hook: hook, store: store}
}

// pageHandler calls views.page_handler, which loads a models.Page and renders
// a template that the filter excludes.
func pageHandler(clock *fakeClock) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		clock.Advance(time.Millisecond)

		page := trace.Enter(ctx, pageHandlerFrame)
		defer page.Exit()
		clock.Advance(2 * time.Millisecond)

		load := trace.Enter(ctx, pageLoadFrame)
		clock.Advance(5 * time.Millisecond)
		load.Exit()

		render := trace.Enter(ctx, templateFrame)
		clock.Advance(3 * time.Millisecond)
		render.Exit()

		clock.Advance(time.Millisecond)
		w.Write([]byte("<html>page</html>"))
	})
}

func fetchTrace(t *testing.T, handler http.Handler, url string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, url, nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func TestWrapStoresTrace(t *testing.T) {
	tm := newTestMiddleware(t, newMemoryStore(t), nil)
	handler := tm.Wrap(pageHandler(tm.clock))

	req := httptest.NewRequest(http.MethodGet, "/app/page", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "<html>page</html>", w.Body.String())
	traceURL := w.Header().Get(speedtracer.TraceURLHeader)
	require.True(t, strings.HasPrefix(traceURL, "/__speedtracer__/"), traceURL)

	retrieved := fetchTrace(t, handler, traceURL)
	require.Equal(t, http.StatusOK, retrieved.Code)
	assert.Equal(t, "application/json; charset=UTF-8", retrieved.Header().Get("Content-Type"))

	doc := trace.Document{}
	require.NoError(t, json.Unmarshal(retrieved.Body.Bytes(), &doc))
	assert.Equal(t, strings.TrimPrefix(traceURL, "/__speedtracer__/"), doc.Trace.ID)
	assert.Equal(t, trace.ApplicationLabel, doc.Trace.Application)

	root := doc.Trace.FrameStack
	require.NotNil(t, root)
	assert.Equal(t, trace.RootSpanID, root.ID)
	assert.Equal(t, trace.KindHTTP, root.Operation.Type)
	assert.Equal(t, "GET /app/page", root.Operation.Label)
	assert.InDelta(t, 12*time.Millisecond, root.Range.Duration(), float64(time.Microsecond))

	require.Len(t, root.Children, 1)
	page := root.Children[0]
	assert.Equal(t, "views.page_handler", page.Operation.Label)
	assert.Equal(t, trace.KindMethod, page.Operation.Type)
	require.NotNil(t, page.Operation.SourceCodeLocation)
	assert.Equal(t, "/srv/app/views/page.go", page.Operation.SourceCodeLocation.ClassName)
	assert.Equal(t, "page_handler", page.Operation.SourceCodeLocation.MethodName)
	assert.Equal(t, 12, page.Operation.SourceCodeLocation.LineNumber)
	assert.InDelta(t, 11*time.Millisecond, page.Range.Duration(), float64(time.Microsecond))

	// The template frame is outside the application and is not recorded.
	require.Len(t, page.Children, 1)
	load := page.Children[0]
	assert.Equal(t, "models.Page.load", load.Operation.Label)
	assert.InDelta(t, 5*time.Millisecond, load.Range.Duration(), float64(time.Microsecond))
	assert.Empty(t, load.Children)
}

func TestServeTraceReturnsStoredBytes(t *testing.T) {
	store := newMemoryStore(t)
	tm := newTestMiddleware(t, store, nil)
	handler := tm.Wrap(http.NotFoundHandler())

	stored := []byte(`{"trace":{"id":"abc","custom":[1,2,3]}}`)
	require.NoError(t, store.Put(context.Background(), "speedtracer-abc", stored, time.Hour))

	w := fetchTrace(t, handler, "/__speedtracer__/abc")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, stored, w.Body.Bytes())
}

func TestServeTraceMissing(t *testing.T) {
	tm := newTestMiddleware(t, newMemoryStore(t), nil)
	handler := tm.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("retrieval requests should not reach the application")
	}))

	for _, url := range []string{"/__speedtracer__/nonexistent-key", "/__speedtracer__/"} {
		w := fetchTrace(t, handler, url)
		assert.Equal(t, http.StatusOK, w.Code, url)
		assert.Equal(t, "application/json; charset=UTF-8", w.Header().Get("Content-Type"), url)
		assert.Equal(t, "{}", w.Body.String(), url)
		assert.Empty(t, w.Header().Get(speedtracer.TraceURLHeader), url)
	}
}

func TestServeTraceStoreError(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mock.NewMockStore(ctrl)
	store.EXPECT().Name().Return("broken").AnyTimes()
	store.EXPECT().Get(gomock.Any(), "speedtracer-abc").Return(nil, errors.New("connection refused"))

	tm := newTestMiddleware(t, store, nil)
	w := fetchTrace(t, tm.Wrap(http.NotFoundHandler()), "/__speedtracer__/abc")
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	entry := tm.hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.ErrorLevel, entry.Level)
	assert.Equal(t, "abc", entry.Data["trace_id"])
}

func TestStoreFailureDoesNotFailRequest(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mock.NewMockStore(ctrl)
	store.EXPECT().Name().Return("broken").AnyTimes()
	store.EXPECT().Put(gomock.Any(), gomock.Any(), gomock.Any(), time.Hour).Return(errors.New("disk full"))

	statsd := scopedstatsd.NewMockClient(ctrl)
	statsd.EXPECT().Count(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).AnyTimes()
	statsd.EXPECT().Timing("request_duration_ns", gomock.Any(), gomock.Any(), gomock.Any())
	statsd.EXPECT().Incr("store_errors_total", []string{"reason:put", "store:broken"}, 1.0)

	tm := newTestMiddleware(t, store, statsd)
	req := httptest.NewRequest(http.MethodGet, "/app/page", nil)
	w := httptest.NewRecorder()
	tm.Wrap(pageHandler(tm.clock)).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "<html>page</html>", w.Body.String())
	entry := tm.hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, "Could not store trace", entry.Message)
}

func TestFinishMetrics(t *testing.T) {
	ctrl := gomock.NewController(t)
	statsd := scopedstatsd.NewMockClient(ctrl)
	statsd.EXPECT().Count("spans_recorded_total", int64(2), nil, 1.0)
	statsd.EXPECT().Count("frames_skipped_total", int64(1), nil, 1.0)
	statsd.EXPECT().Timing("request_duration_ns", 12*time.Millisecond, nil, 1.0)
	statsd.EXPECT().Incr("traces_stored_total", []string{"store:memory"}, 1.0)

	tm := newTestMiddleware(t, newMemoryStore(t), statsd)
	req := httptest.NewRequest(http.MethodGet, "/app/page", nil)
	tm.Wrap(pageHandler(tm.clock)).ServeHTTP(httptest.NewRecorder(), req)

	statsd.EXPECT().Incr("retrievals_total", []string{"found:false"}, 1.0)
	fetchTrace(t, tm.Wrap(http.NotFoundHandler()), "/__speedtracer__/missing")
}

func TestHeaderWithoutBody(t *testing.T) {
	tm := newTestMiddleware(t, newMemoryStore(t), nil)
	handler := tm.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer trace.Enter(r.Context(), pageHandlerFrame).Exit()
	}))

	req := httptest.NewRequest(http.MethodPost, "/app/submit", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	traceURL := w.Header().Get(speedtracer.TraceURLHeader)
	require.NotEmpty(t, traceURL)

	doc := trace.Document{}
	require.NoError(t, json.Unmarshal(fetchTrace(t, handler, traceURL).Body.Bytes(), &doc))
	assert.Equal(t, "POST /app/submit", doc.Trace.FrameStack.Operation.Label)
	require.Len(t, doc.Trace.FrameStack.Children, 1)
}

func TestHeaderIsSetAtCommit(t *testing.T) {
	tm := newTestMiddleware(t, newMemoryStore(t), nil)
	var committed string
	handler := tm.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		committed = w.Header().Get(speedtracer.TraceURLHeader)
		// Spans recorded after the response is committed still belong to
		// the trace the header names.
		defer trace.Enter(r.Context(), pageHandlerFrame).Exit()
	}))

	req := httptest.NewRequest(http.MethodGet, "/app/async", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)
	require.NotEmpty(t, committed)
	assert.Equal(t, committed, w.Header().Get(speedtracer.TraceURLHeader))

	doc := trace.Document{}
	require.NoError(t, json.Unmarshal(fetchTrace(t, handler, committed).Body.Bytes(), &doc))
	require.Len(t, doc.Trace.FrameStack.Children, 1)
	assert.Equal(t, "views.page_handler", doc.Trace.FrameStack.Children[0].Operation.Label)
}

func TestPanicStillStoresTrace(t *testing.T) {
	store := newMemoryStore(t)
	tm := newTestMiddleware(t, store, nil)
	var traceURL string
	handler := tm.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceURL, _ = tm.TraceURL(r)
		trace.Enter(r.Context(), pageHandlerFrame)
		tm.clock.Advance(4 * time.Millisecond)
		panic("template exploded")
	}))

	req := httptest.NewRequest(http.MethodGet, "/app/broken", nil)
	assert.PanicsWithValue(t, "template exploded", func() {
		handler.ServeHTTP(httptest.NewRecorder(), req)
	})
	require.NotEmpty(t, traceURL)

	doc := trace.Document{}
	require.NoError(t, json.Unmarshal(fetchTrace(t, handler, traceURL).Body.Bytes(), &doc))
	require.Len(t, doc.Trace.FrameStack.Children, 1)
	page := doc.Trace.FrameStack.Children[0]
	assert.False(t, page.Range.Open(), "open spans are closed when the request ends")
	assert.InDelta(t, 4*time.Millisecond, page.Range.Duration(), float64(time.Microsecond))
}

func TestHooksWithoutWrap(t *testing.T) {
	tm := newTestMiddleware(t, newMemoryStore(t), nil)

	req := tm.Begin(httptest.NewRequest(http.MethodGet, "/app/page", nil))
	w := httptest.NewRecorder()
	pageHandler(tm.clock).ServeHTTP(w, req)
	tm.Finish(w, req)

	traceURL := w.Header().Get(speedtracer.TraceURLHeader)
	require.NotEmpty(t, traceURL)
	expected, ok := tm.TraceURL(req)
	require.True(t, ok)
	assert.Equal(t, expected, traceURL)

	// A second Finish does not store the trace again.
	tm.Finish(httptest.NewRecorder(), req)
}

func TestFinishWithoutBeginPassesThrough(t *testing.T) {
	ctrl := gomock.NewController(t)
	// No calls are expected on the store.
	store := mock.NewMockStore(ctrl)
	tm := newTestMiddleware(t, store, nil)

	req := httptest.NewRequest(http.MethodGet, "/app/page", nil)
	w := httptest.NewRecorder()
	tm.Finish(w, req)
	assert.Empty(t, w.Header().Get(speedtracer.TraceURLHeader))

	_, ok := tm.TraceURL(req)
	assert.False(t, ok)

	// Begin leaves retrieval requests alone as well.
	retrieval := httptest.NewRequest(http.MethodGet, "/__speedtracer__/abc", nil)
	assert.Same(t, retrieval, tm.Begin(retrieval))
	tm.Finish(w, retrieval)
}

func TestConcurrentRequestsAreIsolated(t *testing.T) {
	tm := newTestMiddleware(t, newMemoryStore(t), nil)
	handler := tm.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for i := 0; i < 10; i++ {
			trace.Enter(r.Context(), pageLoadFrame).Exit()
		}
	}))

	const requests = 20
	urls := make([]string, requests)
	wg := sync.WaitGroup{}
	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/app/list", nil))
			urls[i] = w.Header().Get(speedtracer.TraceURLHeader)
		}(i)
	}
	wg.Wait()

	seen := map[string]bool{}
	for _, url := range urls {
		require.NotEmpty(t, url)
		assert.False(t, seen[url], "trace ids are unique")
		seen[url] = true

		doc := trace.Document{}
		require.NoError(t, json.Unmarshal(fetchTrace(t, handler, url).Body.Bytes(), &doc))
		assert.Len(t, doc.Trace.FrameStack.Children, 10)
	}
}
