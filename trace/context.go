package trace

import (
	"context"

	opentracing "github.com/opentracing/opentracing-go"
	"github.com/sirupsen/logrus"
)

type recorderKey struct{}

// WithRecorder returns a copy of ctx that carries r.
func WithRecorder(ctx context.Context, r *Recorder) context.Context {
	return context.WithValue(ctx, recorderKey{}, r)
}

// RecorderFromContext returns the Recorder carried by ctx, or nil.
func RecorderFromContext(ctx context.Context) *Recorder {
	if ctx == nil {
		return nil
	}
	r, _ := ctx.Value(recorderKey{}).(*Recorder)
	return r
}

// Region is one recorded activation, returned by Enter and Func. A nil
// Region is valid and does nothing.
type Region struct {
	recorder *Recorder
	span     *Span
}

// Span returns the span recorded for the region, or nil.
func (g *Region) Span() *Span {
	if g == nil {
		return nil
	}
	return g.span
}

// Exit closes the region's span. Calling defer region.Exit() is always
// safe, including for regions that were not recorded.
func (g *Region) Exit() {
	if g == nil || g.span == nil {
		return
	}
	g.recorder.exit(g.span)
}

// Enter records the activation f on the Recorder carried by ctx. It returns
// nil if there is none or f is filtered out.
func Enter(ctx context.Context, f Frame) *Region {
	r := RecorderFromContext(ctx)
	if r == nil {
		return nil
	}
	span := r.Call(f)
	if span == nil {
		return nil
	}
	return &Region{recorder: r, span: span}
}

// Func records an activation of the function that calls it, with the frame
// taken from the call stack:
//
//	defer trace.Func(ctx).Exit()
func Func(ctx context.Context) *Region {
	if RecorderFromContext(ctx) == nil {
		return nil
	}
	f, ok := Caller(1)
	if !ok {
		return nil
	}
	return Enter(ctx, f)
}

// A BranchHandle joins the spans recorded on a branch back into the request
// that created it.
type BranchHandle struct {
	parent *Recorder
	child  *Recorder
	anchor *Span
}

// Branch returns a context whose Recorder is independent of the one in ctx,
// for work that runs on another goroutine. The branch's spans are attached
// under the span that is open in ctx now when Merge is called. If ctx
// carries no Recorder, Branch returns ctx and a no-op handle.
func Branch(ctx context.Context) (context.Context, *BranchHandle) {
	parent := RecorderFromContext(ctx)
	if parent == nil {
		return ctx, nil
	}
	child := NewRecorder(parent.filter,
		WithLogger(parent.logger),
		WithDebug(parent.debug),
		WithClock(parent.now),
	)
	child.Start()
	b := &BranchHandle{
		parent: parent,
		child:  child,
		anchor: parent.top(),
	}
	bctx := WithRecorder(ctx, child)
	// OpenTracing spans started in the branch record into it too.
	if sp, ok := opentracing.SpanFromContext(ctx).(*otSpan); ok && sp.context.recorder != nil {
		branchSpan := &otSpan{context: &spanContext{recorder: child, baggage: sp.context.baggageCopy()}}
		bctx = opentracing.ContextWithSpan(bctx, branchSpan)
	}
	return bctx, b
}

// Merge stops the branch and attaches what it recorded to the request. The
// anchor span must still be open: spans merged after it closed are dropped
// with a warning.
func (b *BranchHandle) Merge() {
	if b == nil {
		return
	}
	b.child.Stop()
	roots := b.child.Roots()
	if len(roots) == 0 {
		return
	}
	if !b.parent.adopt(b.anchor, roots) {
		fields := logrus.Fields{"spans": len(roots)}
		if b.anchor != nil {
			fields["anchor"] = b.anchor.Label()
		}
		b.parent.logger.WithFields(fields).Warn("Branch merged after its parent span closed; dropping its spans")
	}
}
