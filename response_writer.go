package speedtracer

import (
	"net/http"
)

// traceResponseWriter adds the trace URL header when the response is
// committed, since headers cannot change after the first write.
type traceResponseWriter struct {
	http.ResponseWriter

	middleware  *Middleware
	request     *http.Request
	wroteHeader bool
}

var _ http.Flusher = &traceResponseWriter{}

func newTraceResponseWriter(w http.ResponseWriter, m *Middleware, r *http.Request) *traceResponseWriter {
	return &traceResponseWriter{
		ResponseWriter: w,
		middleware:     m,
		request:        r,
	}
}

func (w *traceResponseWriter) commit() {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true
	if url, ok := w.middleware.TraceURL(w.request); ok {
		w.Header().Set(TraceURLHeader, url)
	}
}

func (w *traceResponseWriter) WriteHeader(code int) {
	w.commit()
	w.ResponseWriter.WriteHeader(code)
}

func (w *traceResponseWriter) Write(b []byte) (int, error) {
	w.commit()
	return w.ResponseWriter.Write(b)
}

func (w *traceResponseWriter) Flush() {
	w.commit()
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *traceResponseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
