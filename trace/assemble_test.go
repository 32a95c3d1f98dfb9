package trace

import (
	"encoding/json"
	"math/rand"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssembleWithoutSpans(t *testing.T) {
	start := time.Unix(1500000000, 0)
	doc := NewAssembler().Assemble("GET", "/empty", start, start.Add(time.Millisecond), nil)

	_, err := uuid.Parse(doc.Trace.ID)
	assert.NoError(t, err)
	assert.Equal(t, ApplicationLabel, doc.Trace.Application)
	require.NotNil(t, doc.Trace.FrameStack)
	assert.Equal(t, RootSpanID, doc.Trace.FrameStack.ID)
	assert.Equal(t, KindHTTP, doc.Trace.FrameStack.Operation.Type)
	assert.Equal(t, "GET /empty", doc.Trace.FrameStack.Label())
	assert.NotNil(t, doc.Trace.FrameStack.Children)
	assert.Empty(t, doc.Trace.FrameStack.Children)

	out, err := json.Marshal(doc)
	require.NoError(t, err)

	var raw map[string]map[string]interface{}
	require.NoError(t, json.Unmarshal(out, &raw))
	frameStack := raw["trace"]["frameStack"].(map[string]interface{})
	assert.Equal(t, []interface{}{}, frameStack["children"])
	assert.NotContains(t, frameStack["operation"], "sourceCodeLocation")
}

func TestAssembleFreshIDs(t *testing.T) {
	a := NewAssembler()
	now := time.Now()
	first := a.Assemble("GET", "/", now, now, nil)
	second := a.Assemble("GET", "/", now, now, nil)
	assert.NotEqual(t, first.Trace.ID, second.Trace.ID)
}

func TestAssembleScenario(t *testing.T) {
	r, clock, _ := newTestRecorder(t, nil)
	a := &Assembler{now: clock.Now, newID: func() string { return "trace-1" }}

	start := clock.Now()
	r.Start()
	clock.Advance(time.Millisecond)
	r.Call(Frame{File: "/srv/app/views.go", Line: 12, Module: "views", Function: "page_handler"})
	clock.Advance(4 * time.Millisecond)
	r.Call(Frame{File: "/srv/app/models.go", Line: 30, Module: "models", Type: "Page", Function: "load"})
	clock.Advance(5 * time.Millisecond)
	r.Return(Frame{File: "/srv/app/models.go"})
	clock.Advance(3 * time.Millisecond)
	r.Return(Frame{File: "/srv/app/views.go"})
	clock.Advance(time.Millisecond)
	r.Stop()
	end := clock.Now()

	doc := a.Assemble("GET", "/app/page", start, end, r.Roots())
	out, err := json.Marshal(doc)
	require.NoError(t, err)

	var decoded Document
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.Equal(t, "trace-1", decoded.Trace.ID)
	assert.Equal(t, ApplicationLabel, decoded.Trace.Application)
	assert.WithinDuration(t, end, time.Time(decoded.Trace.Date), time.Millisecond)
	assert.InDelta(t, 0.014, decoded.Trace.Range.Duration().Seconds(), 1e-6)

	root := decoded.Trace.FrameStack
	require.NotNil(t, root)
	assert.Equal(t, "GET /app/page", root.Label())
	assert.Equal(t, KindHTTP, root.Operation.Type)
	require.Len(t, root.Children, 1)

	handler := root.Children[0]
	assert.Equal(t, "views.page_handler", handler.Label())
	assert.Equal(t, KindMethod, handler.Operation.Type)
	assert.InDelta(t, 0.012, handler.Range.Duration().Seconds(), 1e-6)
	require.NotNil(t, handler.Operation.SourceCodeLocation)
	assert.Equal(t, SourceCodeLocation{ClassName: "/srv/app/views.go", MethodName: "page_handler", LineNumber: 12},
		*handler.Operation.SourceCodeLocation)
	require.Len(t, handler.Children, 1)

	load := handler.Children[0]
	assert.Equal(t, "models.Page.load", load.Label())
	assert.InDelta(t, 0.005, load.Range.Duration().Seconds(), 1e-6)
	assert.Empty(t, load.Children)
}

func TestRangeJSON(t *testing.T) {
	start := time.Unix(1500000000, 250000000)

	out, err := json.Marshal(Range{Start: start, End: start.Add(1500 * time.Millisecond)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"start": 1500000000.25, "end": 1500000001.75, "duration": 1.5}`, string(out))

	out, err = json.Marshal(Range{Start: start})
	require.NoError(t, err)
	assert.JSONEq(t, `{"start": 1500000000.25}`, string(out))

	var decoded Range
	require.NoError(t, json.Unmarshal([]byte(`{"start": 1500000000.25}`), &decoded))
	assert.True(t, decoded.Open())
	assert.Equal(t, time.Duration(-1), decoded.Duration())
}

func TestRangeJSONDurationIsEndMinusStart(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 1000; i++ {
		start := time.Unix(1700000000+rng.Int63n(1000000), rng.Int63n(int64(time.Second)))
		end := start.Add(time.Duration(rng.Int63n(int64(10 * time.Second))))

		out, err := json.Marshal(Range{Start: start, End: end})
		require.NoError(t, err)

		var raw struct{ Start, End, Duration float64 }
		require.NoError(t, json.Unmarshal(out, &raw))
		require.Equal(t, raw.End-raw.Start, raw.Duration, "range %s", out)
	}
}

func TestSpanJSONNeverHasNullChildren(t *testing.T) {
	span := &Span{ID: 7, Range: Range{Start: time.Unix(1, 0), End: time.Unix(2, 0)}}
	out, err := json.Marshal(span)
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(out, &raw))
	assert.Equal(t, []interface{}{}, raw["children"])
	assert.Nil(t, span.Children, "marshalling must not modify the span")
}

func TestSpanClosesNoEarlierThanStart(t *testing.T) {
	start := time.Unix(10, 0)
	span := newMethodSpan(Frame{Function: "f"}, start)
	span.close(start.Add(-time.Second))
	assert.Equal(t, time.Duration(0), span.Range.Duration())
}
