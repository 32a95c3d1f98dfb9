// Package trace records request-scoped call trees: nested, timed spans for
// the function activations that happen while a single request is served.
//
// Structure of the API
//
// The package is built on four abstractions: the Filter, the Recorder, the
// Span and the Assembler.
//
// A Filter decides which source files are worth recording. It is built once
// at startup, either from an explicit regular expression or from a list of
// application roots, and is shared read-only by every request.
//
// A Recorder is owned by exactly one request. It keeps the live call chain
// (the execution stack) and the list of completed top-level spans. Call and
// Return are the enter/exit events; Start and Stop bracket the request.
//
// Contexts
//
// Recorders travel in the request's Context, the same way the rest of a Go
// service passes request-scoped values. Instrumented functions take the
// Context and open a Region for their own activation:
//
//   func (p *Page) Load(ctx context.Context) error {
//           defer trace.Func(ctx).Exit()
//           ...
//   }
//
// Func captures the caller's file, line, function and receiver type, so the
// resulting span is labeled like "example.com/app/models.Page.Load". Enter
// takes an explicit Frame for call sites that want to name themselves.
//
// If the Context carries no Recorder, or the Filter rejects the caller's
// file, the Region is a no-op and Exit does nothing. Rejected frames are
// transparent: calls nested inside them are still recorded, at the depth they
// would have had.
//
// Concurrency
//
// A Recorder assumes one logical call stack. Work that runs on another
// goroutine during the request should use Branch, which hands the goroutine
// its own Recorder and grafts the resulting spans back under the span that
// was open when the branch was created:
//
//   bctx, branch := trace.Branch(ctx)
//   go func() {
//           defer wg.Done()
//           defer branch.Merge()
//           fetchSidebar(bctx)
//   }()
//
// Documents
//
// When the request completes, an Assembler wraps the recorded top-level spans
// in a synthetic HTTP span and produces a Document, which serializes to the
// nested frameStack JSON shape understood by SpeedTracer clients.
//
// OpenTracing Compatibility
//
// Tracer implements the OpenTracing interfaces. Code already instrumented
// with opentracing.StartSpanFromContext is recorded as long as the request
// context was prepared with ContextWithRequestSpan.
package trace
