package vertex

import (
	"sync"

	"github.com/iti/rngstream"
)

// A NeighborChooser picks the dimension to forward the token on.
type NeighborChooser interface {
	// Choose returns an index in [0, n).
	Choose(n int) int
}

// A ChooserFactory creates the chooser of one vertex.
type ChooserFactory func(vertexID int, name string) NeighborChooser

// MaxStreamSeed bounds the seeds SeedStreams accepts. Larger seeds are
// reduced modulo MaxStreamSeed.
const MaxStreamSeed = 4294944443 - 6

var streamLock sync.Mutex

// SeedStreams restarts the sequence of streams handed out by
// NewStreamChooser. Units created in the same order after the same seed make
// the same choices.
func SeedStreams(seed uint64) {
	streamLock.Lock()
	defer streamLock.Unlock()

	rngstream.SetRngStreamMasterSeed(seed % MaxStreamSeed)
}

type streamChooser struct {
	stream *rngstream.RngStream
}

// NewStreamChooser draws uniformly from a fresh random stream. Every stream
// created this way is statistically independent from the others.
func NewStreamChooser(_ int, name string) NeighborChooser {
	streamLock.Lock()
	defer streamLock.Unlock()

	return &streamChooser{
		stream: rngstream.New(name),
	}
}

func (c *streamChooser) Choose(n int) int {
	idx := int(c.stream.RandU01() * float64(n))
	if idx >= n {
		idx = n - 1
	}

	return idx
}
