package vertex

import "fmt"

// FailureKind classifies why a unit stopped abnormally.
type FailureKind int

// Failures fatal to a single unit.
const (
	TransportFailure FailureKind = iota
	SinkFailure
)

func (k FailureKind) String() string {
	if k == SinkFailure {
		return "sink failure"
	}

	return "transport failure"
}

// A Failure ends one unit. The rest of the simulation keeps running.
type Failure struct {
	Kind   FailureKind
	Vertex int
	Err    error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("vertex %d: %s: %v", f.Vertex, f.Kind, f.Err)
}

// Cause returns the underlying error, for github.com/pkg/errors.Cause.
func (f *Failure) Cause() error {
	return f.Err
}

// Unwrap returns the underlying error.
func (f *Failure) Unwrap() error {
	return f.Err
}
