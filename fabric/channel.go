package fabric

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkg/errors"
)

var (
	// ErrClosed is returned when an endpoint handle is used after Close.
	ErrClosed = errors.New("endpoint closed")

	// ErrBrokenPipe is returned when sending on a channel whose read side has
	// been released by every holder.
	ErrBrokenPipe = errors.New("broken pipe")
)

// ChannelID locates a channel: it carries tokens from Src toward the neighbor
// of Src on dimension Dim.
type ChannelID struct {
	Src int
	Dim int
}

func (id ChannelID) String() string {
	return fmt.Sprintf("ch[%d.%d]", id.Src, id.Dim)
}

// A Channel is a unidirectional FIFO pipe of token values. Its two sides are
// reference counted the way file descriptors are: closing the last write
// handle makes the reader observe EOF, and closing the last read handle
// breaks the pipe for writers.
type Channel struct {
	id   ChannelID
	data chan int

	lock       sync.Mutex
	writers    int
	readers    int
	eof        bool
	broken     bool
	readerGone chan struct{}
}

func newChannel(id ChannelID, capacity int) *Channel {
	return &Channel{
		id:         id,
		data:       make(chan int, capacity),
		readerGone: make(chan struct{}),
	}
}

// ID returns the location of the channel in the fabric.
func (c *Channel) ID() ChannelID {
	return c.id
}

func (c *Channel) openWriter() (*WriteEnd, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	if c.eof {
		return nil, errors.Wrapf(ErrClosed, "%s write side", c.id)
	}

	c.writers++

	return &WriteEnd{ch: c}, nil
}

func (c *Channel) openReader() (*ReadEnd, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	if c.broken {
		return nil, errors.Wrapf(ErrClosed, "%s read side", c.id)
	}

	c.readers++

	return &ReadEnd{ch: c}, nil
}

func (c *Channel) closeWriter() {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.writers--
	if c.writers == 0 {
		c.eof = true
		close(c.data)
	}
}

func (c *Channel) closeReader() {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.readers--
	if c.readers == 0 {
		c.broken = true
		close(c.readerGone)
	}
}

func (c *Channel) isBroken() bool {
	select {
	case <-c.readerGone:
		return true
	default:
		return false
	}
}

// A WriteEnd is one handle on the write side of a channel.
type WriteEnd struct {
	ch     *Channel
	once   sync.Once
	closed bool
}

// Channel returns the id of the channel this handle writes to.
func (w *WriteEnd) Channel() ChannelID {
	return w.ch.id
}

// Dup returns a new independent handle on the same write side.
func (w *WriteEnd) Dup() (*WriteEnd, error) {
	if w.closed {
		return nil, ErrClosed
	}

	return w.ch.openWriter()
}

// Send writes a token value. It blocks only while the channel buffer is full.
func (w *WriteEnd) Send(ctx context.Context, token int) error {
	if w.closed {
		return errors.Wrapf(ErrClosed, "send on %s", w.ch.id)
	}

	if w.ch.isBroken() {
		return errors.Wrapf(ErrBrokenPipe, "send on %s", w.ch.id)
	}

	select {
	case w.ch.data <- token:
		return nil
	case <-w.ch.readerGone:
		return errors.Wrapf(ErrBrokenPipe, "send on %s", w.ch.id)
	case <-ctx.Done():
		return errors.Wrapf(ctx.Err(), "send on %s", w.ch.id)
	}
}

// Close releases this handle. Closing twice returns ErrClosed.
func (w *WriteEnd) Close() error {
	err := ErrClosed

	w.once.Do(func() {
		w.closed = true
		w.ch.closeWriter()
		err = nil
	})

	return err
}

// A ReadEnd is one handle on the read side of a channel.
type ReadEnd struct {
	ch     *Channel
	once   sync.Once
	closed bool
}

// Channel returns the id of the channel this handle reads from.
func (r *ReadEnd) Channel() ChannelID {
	return r.ch.id
}

// C exposes the receive side for use in select statements. The Go channel is
// closed once every write handle has been closed.
func (r *ReadEnd) C() <-chan int {
	return r.ch.data
}

// Dup returns a new independent handle on the same read side.
func (r *ReadEnd) Dup() (*ReadEnd, error) {
	if r.closed {
		return nil, ErrClosed
	}

	return r.ch.openReader()
}

// Close releases this handle. Closing twice returns ErrClosed.
func (r *ReadEnd) Close() error {
	err := ErrClosed

	r.once.Do(func() {
		r.closed = true
		r.ch.closeReader()
		err = nil
	})

	return err
}

func (c *Channel) handles() (writers, readers int) {
	c.lock.Lock()
	defer c.lock.Unlock()

	return c.writers, c.readers
}
