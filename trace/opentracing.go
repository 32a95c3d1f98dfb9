package trace

import (
	"context"
	"reflect"
	"runtime"
	"strings"
	"sync"

	opentracing "github.com/opentracing/opentracing-go"
	opentracinglog "github.com/opentracing/opentracing-go/log"
)

var _ opentracing.Tracer = Tracer{}
var _ opentracing.Span = &otSpan{}
var _ opentracing.SpanContext = &spanContext{}

// Tracer lets code that is instrumented with OpenTracing record into the
// request's Recorder. Spans are only recorded when they are children of a
// span that came from ContextWithRequestSpan; everything else gets a span
// that records nothing.
//
// Inject and Extract are not supported, since traces never leave the
// process that recorded them.
type Tracer struct{}

// ContextWithRequestSpan returns a copy of ctx that carries rec and an
// OpenTracing span standing for the whole request, so that
// opentracing.StartSpanFromContextWithTracer(ctx, trace.Tracer{}, name)
// records into rec.
func ContextWithRequestSpan(ctx context.Context, rec *Recorder) context.Context {
	ctx = WithRecorder(ctx, rec)
	root := &otSpan{context: &spanContext{recorder: rec}}
	return opentracing.ContextWithSpan(ctx, root)
}

// spanContext is shared by every goroutine holding the span, so its
// baggage is guarded by mtx.
type spanContext struct {
	recorder *Recorder

	mtx     sync.RWMutex
	baggage map[string]string
}

func (c *spanContext) ForeachBaggageItem(handler func(k, v string) bool) {
	for k, v := range c.baggageCopy() {
		if !handler(k, v) {
			return
		}
	}
}

func (c *spanContext) setBaggageItem(key, value string) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if c.baggage == nil {
		c.baggage = map[string]string{}
	}
	c.baggage[key] = value
}

func (c *spanContext) baggageItem(key string) string {
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	return c.baggage[key]
}

func (c *spanContext) baggageCopy() map[string]string {
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	return copyBaggage(c.baggage)
}

// otSpan is the OpenTracing view of one recorded Span. span is nil when
// nothing was recorded for it.
type otSpan struct {
	context *spanContext
	span    *Span
}

func (s *otSpan) Finish() {
	if s == nil || s.span == nil {
		return
	}
	s.context.recorder.exit(s.span)
}

// FinishWithOptions finishes the span. The recorder's clock always decides
// the end time, so opts is ignored.
func (s *otSpan) FinishWithOptions(opts opentracing.FinishOptions) {
	s.Finish()
}

func (s *otSpan) Context() opentracing.SpanContext {
	return s.context
}

func (s *otSpan) SetOperationName(name string) opentracing.Span {
	if s.span != nil {
		s.context.recorder.relabel(s.span, name)
	}
	return s
}

// SetTag is accepted and ignored: spans carry no tags.
func (s *otSpan) SetTag(key string, value interface{}) opentracing.Span {
	return s
}

func (s *otSpan) LogFields(fields ...opentracinglog.Field) {}

func (s *otSpan) LogKV(alternatingKeyValues ...interface{}) {}

func (s *otSpan) SetBaggageItem(restrictedKey, value string) opentracing.Span {
	s.context.setBaggageItem(restrictedKey, value)
	return s
}

func (s *otSpan) BaggageItem(restrictedKey string) string {
	return s.context.baggageItem(restrictedKey)
}

func (s *otSpan) Tracer() opentracing.Tracer {
	return Tracer{}
}

// LogEvent is deprecated and unimplemented.
// It is included only to satisfy the opentracing.Span interface.
func (s *otSpan) LogEvent(event string) {}

// LogEventWithPayload is deprecated and unimplemented.
// It is included only to satisfy the opentracing.Span interface.
func (s *otSpan) LogEventWithPayload(event string, payload interface{}) {}

// Log is deprecated and unimplemented.
// It is included only to satisfy the opentracing.Span interface.
func (s *otSpan) Log(data opentracing.LogData) {}

// StartSpan records a call named operationName under the first ChildOf or
// FollowsFrom reference that belongs to a Recorder. The span's source
// location is that of the code that started it. The start time option is
// ignored.
func (t Tracer) StartSpan(operationName string, opts ...opentracing.StartSpanOption) opentracing.Span {
	sso := opentracing.StartSpanOptions{}
	for _, o := range opts {
		o.Apply(&sso)
	}

	var parent *spanContext
	for _, ref := range sso.References {
		switch ref.Type {
		case opentracing.ChildOfRef, opentracing.FollowsFromRef:
			if sc, ok := ref.ReferencedContext.(*spanContext); ok && sc.recorder != nil {
				parent = sc
			}
		}
		if parent != nil {
			break
		}
	}
	if parent == nil {
		return &otSpan{context: &spanContext{}}
	}

	f := instrumentedCaller()
	f.Function = operationName
	return &otSpan{
		context: &spanContext{recorder: parent.recorder, baggage: parent.baggageCopy()},
		span:    parent.recorder.Call(f),
	}
}

// Inject always returns opentracing.ErrUnsupportedFormat.
func (t Tracer) Inject(sm opentracing.SpanContext, format interface{}, carrier interface{}) error {
	return opentracing.ErrUnsupportedFormat
}

// Extract always returns opentracing.ErrUnsupportedFormat.
func (t Tracer) Extract(format interface{}, carrier interface{}) (opentracing.SpanContext, error) {
	return nil, opentracing.ErrUnsupportedFormat
}

var tracePackage = reflect.TypeOf(Tracer{}).PkgPath() + "."

const opentracingPackage = "github.com/opentracing/opentracing-go."

// instrumentedCaller returns the location of the first stack frame outside
// this package and the OpenTracing API.
func instrumentedCaller() Frame {
	pcs := make([]uintptr, 16)
	n := runtime.Callers(2, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		fr, more := frames.Next()
		if !strings.HasPrefix(fr.Function, tracePackage) && !strings.HasPrefix(fr.Function, opentracingPackage) {
			return Frame{File: fr.File, Line: fr.Line}
		}
		if !more {
			return Frame{}
		}
	}
}

func copyBaggage(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

