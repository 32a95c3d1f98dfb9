package speedtracer

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/stripe/speedtracer/scopedstatsd"
	"github.com/stripe/speedtracer/stores"
	"github.com/stripe/speedtracer/trace"
)

// TraceURLHeader is the response header that points a client at the stored
// trace of its request.
const TraceURLHeader = "X-TraceUrl"

const traceContentType = "application/json; charset=UTF-8"

// MiddlewareConfig holds the dependencies of a Middleware.
type MiddlewareConfig struct {
	// CachePrefix is the key template; "%s" is replaced with the trace id.
	CachePrefix string
	// TraceURL is the path prefix traces are retrieved under. It should
	// end in "/".
	TraceURL string
	TTL      time.Duration
	Debug    bool
	Filter   trace.Matcher
	Store    stores.Store
	Statsd   scopedstatsd.Client
	Logger   *logrus.Entry
	// Now replaces time.Now for request and span timestamps.
	Now func() time.Time
}

// Middleware records a span tree for every request it wraps and stores the
// assembled trace document, and serves stored documents back under its
// trace URL.
type Middleware struct {
	assembler   *trace.Assembler
	cachePrefix string
	traceURL    string
	ttl         time.Duration
	debug       bool
	filter      trace.Matcher
	store       stores.Store
	statsd      scopedstatsd.Client
	logger      *logrus.Entry
	now         func() time.Time
}

func NewMiddleware(config MiddlewareConfig) *Middleware {
	m := &Middleware{
		assembler:   trace.NewAssembler(),
		cachePrefix: config.CachePrefix,
		traceURL:    config.TraceURL,
		ttl:         config.TTL,
		debug:       config.Debug,
		filter:      config.Filter,
		store:       config.Store,
		statsd:      scopedstatsd.Ensure(config.Statsd),
		logger:      config.Logger,
		now:         config.Now,
	}
	if m.cachePrefix == "" {
		m.cachePrefix = defaultCachePrefix
	}
	if m.traceURL == "" {
		m.traceURL = defaultTraceURL
	}
	if m.logger == nil {
		m.logger = logrus.NewEntry(logrus.StandardLogger())
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m
}

type requestTraceKey struct{}

// requestTrace is the per-request state between Begin and Finish.
type requestTrace struct {
	recorder *trace.Recorder
	start    time.Time

	mtx      sync.Mutex
	id       string
	finished bool
}

// reserveID returns the request's trace id, allocating it on first use.
func (t *requestTrace) reserveID(assembler *trace.Assembler) string {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	if t.id == "" {
		t.id = assembler.NewID()
	}
	return t.id
}

// finish reports whether this is the first call, so a trace is stored once.
func (t *requestTrace) finish() bool {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	if t.finished {
		return false
	}
	t.finished = true
	return true
}

func requestTraceFromContext(ctx context.Context) (*requestTrace, bool) {
	state, ok := ctx.Value(requestTraceKey{}).(*requestTrace)
	return state, ok
}

// IsTraceRequest reports whether r asks for a stored trace rather than for
// the application.
func (m *Middleware) IsTraceRequest(r *http.Request) bool {
	return strings.HasPrefix(r.URL.Path, m.traceURL)
}

// Begin starts recording for r and returns the request to hand to the
// application. Trace retrieval requests are returned unchanged.
func (m *Middleware) Begin(r *http.Request) *http.Request {
	if m.IsTraceRequest(r) {
		return r
	}

	recorder := trace.NewRecorder(m.filter,
		trace.WithLogger(m.logger.WithField("path", r.URL.Path)),
		trace.WithDebug(m.debug),
		trace.WithClock(m.now),
	)
	state := &requestTrace{
		recorder: recorder,
		start:    m.now(),
	}
	recorder.Start()

	ctx := trace.ContextWithRequestSpan(r.Context(), recorder)
	ctx = context.WithValue(ctx, requestTraceKey{}, state)
	return r.WithContext(ctx)
}

// TraceURL returns the URL the trace of r will be served from, reserving its
// trace id. It returns false if r is not being traced.
func (m *Middleware) TraceURL(r *http.Request) (string, bool) {
	state, ok := requestTraceFromContext(r.Context())
	if !ok {
		return "", false
	}
	return m.traceURL + state.reserveID(m.assembler), true
}

// Finish stops recording for r, sets the trace URL header on w and stores
// the trace. Requests that Begin did not start pass through untouched.
// Failures are logged and never affect the response.
func (m *Middleware) Finish(w http.ResponseWriter, r *http.Request) {
	state, ok := requestTraceFromContext(r.Context())
	if !ok {
		return
	}
	state.recorder.Stop()
	if !state.finish() {
		return
	}

	id := state.reserveID(m.assembler)
	end := m.now()
	w.Header().Set(TraceURLHeader, m.traceURL+id)

	logger := m.logger.WithFields(logrus.Fields{
		"trace_id": id,
		"path":     r.URL.Path,
	})

	stats := state.recorder.Stats()
	m.statsd.Count("spans_recorded_total", int64(stats.Recorded), nil, 1.0)
	m.statsd.Count("frames_skipped_total", int64(stats.Skipped), nil, 1.0)
	if stats.Unbalanced > 0 {
		m.statsd.Count("unbalanced_returns_total", int64(stats.Unbalanced), nil, 1.0)
	}
	m.statsd.Timing("request_duration_ns", end.Sub(state.start), nil, 1.0)

	doc := m.assembler.AssembleWithID(id, r.Method, r.URL.Path, state.start, end, state.recorder.Roots())
	value, err := json.Marshal(doc)
	if err != nil {
		logger.WithError(err).Error("Could not marshal trace")
		m.statsd.Incr("store_errors_total", []string{"reason:marshal"}, 1.0)
		return
	}

	// The store write outlives a client that has already gone away.
	ctx := context.WithoutCancel(r.Context())
	err = m.store.Put(ctx, stores.Key(m.cachePrefix, id), value, m.ttl)
	if err != nil {
		logger.WithError(err).WithField("store", m.store.Name()).Error("Could not store trace")
		m.statsd.Incr("store_errors_total", []string{"reason:put", "store:" + m.store.Name()}, 1.0)
		return
	}
	m.statsd.Incr("traces_stored_total", []string{"store:" + m.store.Name()}, 1.0)
	logger.WithField("spans", stats.Recorded).Debug("Stored trace")
}

// ServeTrace writes the stored trace named by the last path segment of r,
// or an empty document when there is none.
func (m *Middleware) ServeTrace(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
	logger := m.logger.WithField("trace_id", id)

	value, err := stores.Fetch(r.Context(), m.store, stores.Key(m.cachePrefix, id))
	if err != nil {
		logger.WithError(err).WithField("store", m.store.Name()).Error("Could not read trace")
		m.statsd.Incr("store_errors_total", []string{"reason:get", "store:" + m.store.Name()}, 1.0)
		http.Error(w, "could not read trace", http.StatusInternalServerError)
		return
	}
	found := string(value) != string(stores.EmptyDocument)
	m.statsd.Incr("retrievals_total", []string{"found:" + strconv.FormatBool(found)}, 1.0)

	w.Header().Set("Content-Type", traceContentType)
	w.WriteHeader(http.StatusOK)
	w.Write(value)
}

// Wrap returns a handler that serves stored traces under the trace URL and
// traces every other request on its way to next. A panic in next still
// stores the trace before it propagates.
func (m *Middleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.IsTraceRequest(r) {
			m.ServeTrace(w, r)
			return
		}

		r = m.Begin(r)
		tw := newTraceResponseWriter(w, m, r)
		defer m.Finish(tw, r)

		next.ServeHTTP(tw, r)
	})
}
