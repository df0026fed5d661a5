package vertex

import (
	"fmt"

	"github.com/sarchlab/hypercube/fabric"
	"github.com/sarchlab/hypercube/hooking"
	"github.com/sarchlab/hypercube/topology"
)

// OriginID is the vertex that injects the token.
const OriginID = 0

// Builder can build vertex units.
type Builder struct {
	dimension      int
	sinkOpener     SinkOpener
	chooserFactory ChooserFactory
	mailboxCap     int
	hooks          []hooking.Hook
}

// MakeBuilder creates a Builder with default parameters.
func MakeBuilder() Builder {
	return Builder{
		chooserFactory: NewStreamChooser,
		mailboxCap:     DefaultMailboxCapacity,
	}
}

// WithDimension sets the dimension of the hypercube.
func (b Builder) WithDimension(n int) Builder {
	b.dimension = n
	return b
}

// WithSinkOpener sets how a unit opens its private output.
func (b Builder) WithSinkOpener(opener SinkOpener) Builder {
	b.sinkOpener = opener
	return b
}

// WithChooserFactory replaces the random stream chooser.
func (b Builder) WithChooserFactory(f ChooserFactory) Builder {
	b.chooserFactory = f
	return b
}

// WithMailboxCapacity sets how many Pause/Resume commands can be pending.
func (b Builder) WithMailboxCapacity(capacity int) Builder {
	b.mailboxCap = capacity
	return b
}

// WithHook registers a hook on every unit built.
func (b Builder) WithHook(hook hooking.Hook) Builder {
	hooks := make([]hooking.Hook, len(b.hooks), len(b.hooks)+1)
	copy(hooks, b.hooks)
	b.hooks = append(hooks, hook)

	return b
}

func (b Builder) parametersMustBeValid(id int, endpoints *fabric.Endpoints) {
	if b.sinkOpener == nil {
		panic("sink opener is not set")
	}

	if b.chooserFactory == nil {
		panic("chooser factory is not set")
	}

	if b.mailboxCap < 1 {
		panic("mailbox capacity must be at least 1")
	}

	if id < 0 || id >= topology.NumVertices(b.dimension) {
		panic(fmt.Sprintf("vertex %d is not in a %d-cube", id, b.dimension))
	}

	if endpoints == nil || endpoints.Vertex != id ||
		endpoints.Dimension() != b.dimension ||
		len(endpoints.In) != b.dimension {
		panic(fmt.Sprintf("endpoints do not belong to vertex %d", id))
	}
}

// Build creates the unit of vertex id. The unit takes ownership of the
// endpoints and closes them when it stops.
func (b Builder) Build(id int, endpoints *fabric.Endpoints) *Unit {
	b.parametersMustBeValid(id, endpoints)

	address := topology.Address(id, b.dimension)
	name := fmt.Sprintf("Vertex[%s]", address)

	u := &Unit{
		id:        id,
		dimension: b.dimension,
		address:   address,
		name:      name,
		endpoints: endpoints,
		openSink:  b.sinkOpener,
		chooser:   b.chooserFactory(id, name),
		mailbox:   NewMailbox(b.mailboxCap),
	}
	u.lastToken.Store(-1)

	for _, hook := range b.hooks {
		u.AcceptHook(hook)
	}

	return u
}
