package vertex

import (
	"fmt"
	"time"
)

// RecordKind tells the three kinds of latency records apart.
type RecordKind int

// The kinds of records a vertex writes to its sink.
const (
	// RecordStart is written once by the origin when it injects the token.
	RecordStart RecordKind = iota

	// RecordFirst is written on the first reception at a non-origin vertex.
	RecordFirst

	// RecordArrival is written on every later reception, with the time
	// elapsed since the previous one.
	RecordArrival
)

func (k RecordKind) String() string {
	switch k {
	case RecordStart:
		return "start"
	case RecordFirst:
		return "first"
	case RecordArrival:
		return "arrival"
	default:
		return "unknown"
	}
}

// ParseRecordKind is the inverse of RecordKind.String.
func ParseRecordKind(s string) (RecordKind, error) {
	for _, k := range []RecordKind{RecordStart, RecordFirst, RecordArrival} {
		if k.String() == s {
			return k, nil
		}
	}

	return 0, fmt.Errorf("unknown record kind %q", s)
}

// A Record is one line of a vertex's output.
type Record struct {
	Vertex  int
	Kind    RecordKind
	Token   int
	Elapsed time.Duration
}

// ElapsedMicroseconds returns the inter-arrival time in microseconds.
func (r Record) ElapsedMicroseconds() int64 {
	return r.Elapsed.Microseconds()
}

// String renders the record in the line format of the vertex output files.
func (r Record) String() string {
	switch r.Kind {
	case RecordStart:
		return fmt.Sprintf("starting token: %d", r.Token)
	case RecordFirst:
		return fmt.Sprintf("first received token: %d", r.Token)
	default:
		return fmt.Sprintf("Token: %d, Time : %d",
			r.Token, r.ElapsedMicroseconds())
	}
}

// A Sink is the private output of one vertex.
type Sink interface {
	Write(rec Record) error
	Close() error
}

// A SinkOpener opens the sink of the given vertex.
type SinkOpener func(vertexID int) (Sink, error)
