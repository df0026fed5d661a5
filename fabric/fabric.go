// Package fabric allocates the directed channels that realize every edge of a
// hypercube and hands each vertex exactly the endpoints it owns.
package fabric

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/sarchlab/hypercube/topology"
)

// DefaultCapacity is the number of token values a channel buffers before a
// send blocks. With one circulating token a channel holds at most one value.
const DefaultCapacity = 64

// ErrReleased is returned when acquiring endpoints from a released fabric.
var ErrReleased = errors.New("fabric released")

// Builder creates fabrics.
type Builder struct {
	capacity int
}

// MakeBuilder creates a Builder with default parameters.
func MakeBuilder() Builder {
	return Builder{
		capacity: DefaultCapacity,
	}
}

// WithCapacity sets the buffer capacity of every channel.
func (b Builder) WithCapacity(capacity int) Builder {
	b.capacity = capacity
	return b
}

// Build allocates the n*2^n channels of a dimension-n hypercube. The fabric
// holds one handle on every endpoint until Release is called.
func (b Builder) Build(n int) (*Fabric, error) {
	if err := topology.ValidateDimension(n); err != nil {
		return nil, errors.Wrap(err, "cannot allocate fabric")
	}

	if b.capacity < 0 {
		return nil, errors.Errorf(
			"cannot allocate fabric: negative channel capacity %d", b.capacity)
	}

	numChannels := topology.NumChannels(n)
	f := &Fabric{
		dimension: n,
		channels:  make([]*Channel, 0, numChannels),
		writers:   make([]*WriteEnd, 0, numChannels),
		readers:   make([]*ReadEnd, 0, numChannels),
	}

	for v := 0; v < topology.NumVertices(n); v++ {
		for j := 0; j < n; j++ {
			if err := f.allocate(ChannelID{Src: v, Dim: j}, b.capacity); err != nil {
				f.Release()
				return nil, err
			}
		}
	}

	return f, nil
}

// A Fabric is the full set of channels of one hypercube.
type Fabric struct {
	dimension int
	channels  []*Channel
	writers   []*WriteEnd
	readers   []*ReadEnd

	lock     sync.Mutex
	released bool
}

func (f *Fabric) allocate(id ChannelID, capacity int) error {
	ch := newChannel(id, capacity)

	w, err := ch.openWriter()
	if err != nil {
		return errors.Wrapf(err, "cannot allocate %s", id)
	}

	r, err := ch.openReader()
	if err != nil {
		_ = w.Close()
		return errors.Wrapf(err, "cannot allocate %s", id)
	}

	f.channels = append(f.channels, ch)
	f.writers = append(f.writers, w)
	f.readers = append(f.readers, r)

	return nil
}

// Dimension returns n.
func (f *Fabric) Dimension() int {
	return f.dimension
}

// NumChannels returns the number of directed channels in the fabric.
func (f *Fabric) NumChannels() int {
	return len(f.channels)
}

func (f *Fabric) index(v, j int) int {
	if v < 0 || v >= topology.NumVertices(f.dimension) ||
		j < 0 || j >= f.dimension {
		panic(errors.Errorf("vertex %d dimension %d is not in a %d-cube",
			v, j, f.dimension))
	}

	return v*f.dimension + j
}

// Outgoing returns the fabric's handle on the write side of the channel from
// v toward its neighbor on dimension j.
func (f *Fabric) Outgoing(v, j int) *WriteEnd {
	return f.writers[f.index(v, j)]
}

// Incoming returns the fabric's handle on the read side of the channel from
// the neighbor of v on dimension j toward v.
func (f *Fabric) Incoming(v, j int) *ReadEnd {
	return f.readers[f.index(topology.Neighbor(v, j), j)]
}

// Acquire returns fresh handles on the n incoming read ends and the n outgoing
// write ends owned by vertex v. No other endpoint is handed out.
func (f *Fabric) Acquire(v int) (*Endpoints, error) {
	f.lock.Lock()
	defer f.lock.Unlock()

	if f.released {
		return nil, errors.Wrapf(ErrReleased, "acquire vertex %d", v)
	}

	e := &Endpoints{
		Vertex: v,
		In:     make([]*ReadEnd, 0, f.dimension),
		Out:    make([]*WriteEnd, 0, f.dimension),
	}

	for j := 0; j < f.dimension; j++ {
		r, err := f.Incoming(v, j).Dup()
		if err != nil {
			e.Close()
			return nil, errors.Wrapf(err, "acquire vertex %d", v)
		}
		e.In = append(e.In, r)

		w, err := f.Outgoing(v, j).Dup()
		if err != nil {
			e.Close()
			return nil, errors.Wrapf(err, "acquire vertex %d", v)
		}
		e.Out = append(e.Out, w)
	}

	return e, nil
}

// Release drops the fabric's own handle on every endpoint. Channels stay alive
// as long as vertex units hold handles on them. Release is idempotent.
func (f *Fabric) Release() {
	f.lock.Lock()
	defer f.lock.Unlock()

	if f.released {
		return
	}
	f.released = true

	for _, w := range f.writers {
		_ = w.Close()
	}

	for _, r := range f.readers {
		_ = r.Close()
	}
}

// Stats counts the handles still open across the fabric.
type Stats struct {
	Channels     int
	OpenWriters  int
	OpenReaders  int
	ClosedToRead int
}

// Stats reports how many endpoint handles are still open. After every unit
// has exited and the fabric is released, both counts must be zero.
func (f *Fabric) Stats() Stats {
	s := Stats{Channels: len(f.channels)}

	for _, ch := range f.channels {
		writers, readers := ch.handles()
		s.OpenWriters += writers
		s.OpenReaders += readers

		if writers == 0 {
			s.ClosedToRead++
		}
	}

	return s
}
