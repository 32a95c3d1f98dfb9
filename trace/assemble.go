package trace

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ApplicationLabel is the application name written into every Document.
const ApplicationLabel = "Go SpeedTracer"

// Document is the stored form of one request's trace.
type Document struct {
	Trace TraceInfo `json:"trace"`
}

// TraceInfo is the body of a Document.
type TraceInfo struct {
	ID          string    `json:"id"`
	Application string    `json:"application"`
	Date        Timestamp `json:"date"`
	Range       Range     `json:"range"`
	FrameStack  *Span     `json:"frameStack"`
}

// Timestamp is a time that serializes as fractional Unix seconds.
type Timestamp time.Time

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(epochSeconds(time.Time(t)))
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var s float64
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*t = Timestamp(fromEpochSeconds(s))
	return nil
}

// Assembler wraps the root spans of a request into a Document.
type Assembler struct {
	now   func() time.Time
	newID func() string
}

// NewAssembler returns an Assembler that stamps documents with the current
// time and random UUIDs.
func NewAssembler() *Assembler {
	return &Assembler{
		now:   time.Now,
		newID: func() string { return uuid.New().String() },
	}
}

// NewID returns a fresh trace identifier.
func (a *Assembler) NewID() string {
	return a.newID()
}

// Assemble builds the Document for a request under a fresh identifier.
func (a *Assembler) Assemble(method, path string, start, end time.Time, roots []*Span) Document {
	return a.AssembleWithID(a.newID(), method, path, start, end, roots)
}

// AssembleWithID is Assemble with a caller-chosen identifier, for requests
// whose identifier had to be published before the request finished.
func (a *Assembler) AssembleWithID(id, method, path string, start, end time.Time, roots []*Span) Document {
	children := make([]*Span, len(roots))
	copy(children, roots)

	if end.Before(start) {
		end = start
	}
	root := &Span{
		ID:    RootSpanID,
		Range: Range{Start: start, End: end},
		Operation: Operation{
			Type:  KindHTTP,
			Label: fmt.Sprintf("%s %s", method, path),
		},
		Children: children,
	}
	return Document{
		Trace: TraceInfo{
			ID:          id,
			Application: ApplicationLabel,
			Date:        Timestamp(a.now()),
			Range:       root.Range,
			FrameStack:  root,
		},
	}
}
