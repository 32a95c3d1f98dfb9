package trace

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Stats counts what a Recorder did with the events it received since the
// last Start.
type Stats struct {
	// Recorded is the number of spans created.
	Recorded int
	// Skipped is the number of call events rejected by the filter.
	Skipped int
	// Unbalanced is the number of return events that had no open span
	// to close.
	Unbalanced int
}

// Recorder turns the enter/exit events of one request into a tree of spans.
//
// A Recorder belongs to a single request. Its methods are safe to call from
// several goroutines, but events from concurrent call chains interleave on
// the one execution stack; use Branch to give other goroutines their own
// Recorder.
type Recorder struct {
	mtx sync.Mutex

	filter Matcher
	logger *logrus.Entry
	debug  bool
	now    func() time.Time

	active bool
	stack  []*Span
	roots  []*Span
	stats  Stats
}

// RecorderOption configures a Recorder. Its implementation borrows from
// Dave Cheney's functional options API
// (https://dave.cheney.net/2014/10/17/functional-options-for-friendly-apis).
type RecorderOption func(*Recorder)

// WithLogger sets the logger that diagnostics are written to.
func WithLogger(logger *logrus.Entry) RecorderOption {
	return func(r *Recorder) {
		r.logger = logger
	}
}

// WithDebug makes the Recorder log every event it receives at debug level.
func WithDebug(debug bool) RecorderOption {
	return func(r *Recorder) {
		r.debug = debug
	}
}

// WithClock replaces time.Now as the source of span timestamps.
func WithClock(now func() time.Time) RecorderOption {
	return func(r *Recorder) {
		r.now = now
	}
}

// NewRecorder returns an inactive Recorder that records the frames filter
// accepts. A nil filter accepts everything.
func NewRecorder(filter Matcher, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		filter: filter,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return r
}

// Start discards anything recorded before and begins accepting events.
func (r *Recorder) Start() {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	r.active = true
	r.stack = nil
	r.roots = []*Span{}
	r.stats = Stats{}
}

// Stop stops accepting events. Spans that are still open, because the
// request was aborted in the middle of a call, are closed at the time of
// Stop so that the recorded tree stays well formed. The recorded roots stay
// available until the next Start.
func (r *Recorder) Stop() {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	if !r.active {
		return
	}
	if len(r.stack) > 0 {
		r.logger.WithField("open_spans", len(r.stack)).Debug("Closing spans still open at the end of the request")
		end := r.now()
		for len(r.stack) > 0 {
			r.pop(end)
		}
	}
	r.active = false
}

// Active reports whether the Recorder is between Start and Stop.
func (r *Recorder) Active() bool {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	return r.active
}

// Call records that the activation f was entered. It returns the new open
// span, or nil if the Recorder is inactive or f was filtered out.
func (r *Recorder) Call(f Frame) *Span {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	return r.call(f)
}

func (r *Recorder) call(f Frame) *Span {
	if !r.active {
		return nil
	}
	if r.filter != nil && !r.filter.Match(f.File) {
		r.stats.Skipped++
		return nil
	}
	if r.debug {
		r.logEvent("call", f)
	}

	span := newMethodSpan(f, r.now())
	r.stack = append(r.stack, span)
	r.stats.Recorded++
	return span
}

// Return records that the most recently entered activation returned. f is
// only consulted for filtering: returns from filtered-out frames are
// ignored, as their calls were.
func (r *Recorder) Return(f Frame) {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	if !r.active {
		return
	}
	if r.filter != nil && !r.filter.Match(f.File) {
		return
	}
	if r.debug {
		r.logEvent("return", f)
	}
	if len(r.stack) == 0 {
		r.stats.Unbalanced++
		r.logger.WithField("function", f.Function).Warn("Return without a matching call; ignoring it")
		return
	}
	r.pop(r.now())
}

// exit closes span, which must be on the execution stack. Spans opened after
// it that are still open are closed first.
func (r *Recorder) exit(span *Span) {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	if !r.active {
		return
	}
	if r.debug {
		r.logEvent("return", span.Frame)
	}

	depth := -1
	for i := len(r.stack) - 1; i >= 0; i-- {
		if r.stack[i] == span {
			depth = i
			break
		}
	}
	if depth < 0 {
		r.stats.Unbalanced++
		r.logger.WithField("label", span.Label()).Warn("Exit for a span that is not open; ignoring it")
		return
	}
	if unwound := len(r.stack) - 1 - depth; unwound > 0 {
		r.logger.WithFields(logrus.Fields{
			"label":   span.Label(),
			"unwound": unwound,
		}).Warn("Exit with nested spans still open; closing them")
	}

	end := r.now()
	for len(r.stack) > depth {
		r.pop(end)
	}
}

// pop closes the top of the stack and attaches it to its parent, or to the
// roots if it has none. Callers hold r.mtx.
func (r *Recorder) pop(end time.Time) {
	top := r.stack[len(r.stack)-1]
	r.stack[len(r.stack)-1] = nil
	r.stack = r.stack[:len(r.stack)-1]

	top.close(end)
	if len(r.stack) == 0 {
		r.roots = append(r.roots, top)
	} else {
		parent := r.stack[len(r.stack)-1]
		parent.Children = append(parent.Children, top)
	}
}

// top returns the innermost open span, or nil.
func (r *Recorder) top() *Span {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	if len(r.stack) == 0 {
		return nil
	}
	return r.stack[len(r.stack)-1]
}

// adopt attaches spans recorded elsewhere under anchor, or to the roots if
// anchor is nil. It reports false if the Recorder has stopped or anchor
// has already been closed.
func (r *Recorder) adopt(anchor *Span, spans []*Span) bool {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	if !r.active {
		return false
	}
	if anchor == nil {
		r.roots = append(r.roots, spans...)
		return true
	}
	if !anchor.Range.Open() {
		return false
	}
	anchor.Children = append(anchor.Children, spans...)
	return true
}

// relabel replaces the label of span, which must still be open.
func (r *Recorder) relabel(span *Span, label string) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	if span.Range.Open() {
		span.Operation.Label = label
	}
}

// Roots returns the completed top-level spans in call order.
func (r *Recorder) Roots() []*Span {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	roots := make([]*Span, len(r.roots))
	copy(roots, r.roots)
	return roots
}

// Depth is the number of spans currently open.
func (r *Recorder) Depth() int {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	return len(r.stack)
}

// Stats returns the event counts since the last Start.
func (r *Recorder) Stats() Stats {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	return r.stats
}

func (r *Recorder) logEvent(event string, f Frame) {
	r.logger.Debugf("%s: %s %s[%d]", event, f.Function, f.File, f.Line)
}
