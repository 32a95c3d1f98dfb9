package trace

import (
	"encoding/json"
	"math"
	"sync/atomic"
	"time"
)

// Kind distinguishes recorded function activations from the synthetic span
// that stands for the whole HTTP request.
type Kind string

const (
	KindMethod Kind = "METHOD"
	KindHTTP   Kind = "HTTP"
)

// RootSpanID is the ID of the synthetic HTTP span of every Document.
const RootSpanID uint64 = 0

var lastSpanID uint64

// nextSpanID hands out process-local span IDs. IDs are unique per
// activation, so recursive calls get distinct spans.
func nextSpanID() uint64 {
	return atomic.AddUint64(&lastSpanID, 1)
}

// Range is the time interval covered by a span. A zero End means the span
// is still open.
type Range struct {
	Start time.Time
	End   time.Time
}

// Open reports whether the range has not been closed yet.
func (r Range) Open() bool {
	return r.End.IsZero()
}

// Duration is the difference between the End and Start timestamps. It is
// -1 for a range that has not been closed.
func (r Range) Duration() time.Duration {
	if r.Open() {
		return -1
	}
	return r.End.Sub(r.Start)
}

type jsonRange struct {
	Start    float64  `json:"start"`
	End      *float64 `json:"end,omitempty"`
	Duration *float64 `json:"duration,omitempty"`
}

// MarshalJSON writes the range as fractional Unix seconds. Open ranges only
// carry their start.
func (r Range) MarshalJSON() ([]byte, error) {
	out := jsonRange{Start: epochSeconds(r.Start)}
	if !r.Open() {
		end := epochSeconds(r.End)
		duration := end - out.Start
		out.End = &end
		out.Duration = &duration
	}
	return json.Marshal(out)
}

func (r *Range) UnmarshalJSON(data []byte) error {
	in := jsonRange{}
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	r.Start = fromEpochSeconds(in.Start)
	r.End = time.Time{}
	if in.End != nil {
		r.End = fromEpochSeconds(*in.End)
	}
	return nil
}

func epochSeconds(t time.Time) float64 {
	return float64(t.Unix()) + float64(t.Nanosecond())/float64(time.Second)
}

func fromEpochSeconds(s float64) time.Time {
	whole, frac := math.Modf(s)
	return time.Unix(int64(whole), int64(math.Round(frac*float64(time.Second))))
}

// SourceCodeLocation identifies where a recorded function lives. ClassName
// carries the source file path, which is what SpeedTracer clients display.
type SourceCodeLocation struct {
	ClassName  string `json:"className"`
	MethodName string `json:"methodName"`
	LineNumber int    `json:"lineNumber"`
}

// Operation describes what a span stands for.
type Operation struct {
	SourceCodeLocation *SourceCodeLocation `json:"sourceCodeLocation,omitempty"`
	Type               Kind                `json:"type"`
	Label              string              `json:"label"`
}

// Span is one traced function activation, or the synthetic HTTP span at the
// top of a Document.
type Span struct {
	ID        uint64    `json:"id"`
	Range     Range     `json:"range"`
	Operation Operation `json:"operation"`
	Children  []*Span   `json:"children"`

	// Frame is the activation the span was created for. It is zero for the
	// HTTP span.
	Frame Frame `json:"-"`
}

// newMethodSpan creates an open span for an activation of f.
func newMethodSpan(f Frame, start time.Time) *Span {
	return &Span{
		ID:    nextSpanID(),
		Range: Range{Start: start},
		Operation: Operation{
			SourceCodeLocation: &SourceCodeLocation{
				ClassName:  f.File,
				MethodName: f.Function,
				LineNumber: f.Line,
			},
			Type:  KindMethod,
			Label: f.Label(),
		},
		Children: []*Span{},
		Frame:    f,
	}
}

// Label is the dot-joined module/type/function name of the span.
func (s *Span) Label() string {
	return s.Operation.Label
}

// Walk visits s and its descendants depth first, in call order. The depth of
// s itself is 0.
func (s *Span) Walk(fn func(span *Span, depth int)) {
	s.walk(fn, 0)
}

func (s *Span) walk(fn func(*Span, int), depth int) {
	fn(s, depth)
	for _, child := range s.Children {
		child.walk(fn, depth+1)
	}
}

func (s *Span) close(end time.Time) {
	if end.Before(s.Range.Start) {
		end = s.Range.Start
	}
	s.Range.End = end
}

type spanAlias Span

// MarshalJSON guarantees that leaf spans serialize "children" as an empty
// list rather than null.
func (s *Span) MarshalJSON() ([]byte, error) {
	out := (*spanAlias)(s)
	if out.Children == nil {
		cp := *out
		cp.Children = []*Span{}
		out = &cp
	}
	return json.Marshal(out)
}
