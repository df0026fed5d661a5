// Package vertex implements the vertex unit: the independently scheduled
// runtime of one hypercube vertex that receives the circulating token,
// records its inter-arrival latency and forwards it to a random neighbor.
package vertex

import (
	"context"
	"io"
	"reflect"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/sarchlab/hypercube/fabric"
	"github.com/sarchlab/hypercube/hooking"
)

var (
	// HookPosTokenStart marks the origin injecting the token.
	HookPosTokenStart = &hooking.HookPos{Name: "Token Start"}

	// HookPosTokenRecv marks a unit recording a token arrival. Detail is the
	// Record.
	HookPosTokenRecv = &hooking.HookPos{Name: "Token Recv"}

	// HookPosTokenSend marks a unit forwarding the token. Detail is the
	// dimension it was sent on.
	HookPosTokenSend = &hooking.HookPos{Name: "Token Send"}

	// HookPosStateChange marks a unit moving to a new State. Detail is the
	// new State.
	HookPosStateChange = &hooking.HookPos{Name: "State Change"}
)

var errTerminated = errors.New("terminated")

// A Unit is the runtime of one vertex. Only its own goroutine touches the
// protocol fields; the atomic counters may be read by observers.
type Unit struct {
	hooking.HookableBase

	id        int
	dimension int
	address   string
	name      string

	endpoints *fabric.Endpoints
	openSink  SinkOpener
	chooser   NeighborChooser
	mailbox   *Mailbox

	state     atomic.Int32
	hops      atomic.Uint64
	lastToken atomic.Int64

	sink        Sink
	token       int
	received    bool
	lastArrival time.Time
	open        []bool
}

// ID returns the vertex ID.
func (u *Unit) ID() int {
	return u.id
}

// Name returns the name of the unit, derived from its binary address.
func (u *Unit) Name() string {
	return u.name
}

// Address returns the n-bit binary address of the vertex.
func (u *Unit) Address() string {
	return u.address
}

// IsOrigin tells whether this unit injects the token.
func (u *Unit) IsOrigin() bool {
	return u.id == OriginID
}

// Mailbox returns the mailbox commands are delivered to.
func (u *Unit) Mailbox() *Mailbox {
	return u.mailbox
}

// State returns the current protocol state.
func (u *Unit) State() State {
	return State(u.state.Load())
}

// Hops returns the number of token arrivals handled so far.
func (u *Unit) Hops() uint64 {
	return u.hops.Load()
}

// LastToken returns the last token value recorded, or -1.
func (u *Unit) LastToken() int64 {
	return u.lastToken.Load()
}

func (u *Unit) setState(s State) {
	if State(u.state.Swap(int32(s))) == s {
		return
	}

	u.InvokeHook(hooking.HookCtx{
		Domain: u,
		Pos:    HookPosStateChange,
		Item:   u.id,
		Detail: s,
	})
}

// Run executes the token protocol until the unit is terminated, the context
// ends, every incoming channel reaches EOF, or a failure occurs. The first
// three are normal shutdowns and return nil. The unit's endpoints are always
// closed when Run returns.
func (u *Unit) Run(ctx context.Context) (err error) {
	defer u.setState(Stopped)
	defer u.endpoints.Close()

	if err = u.init(); err != nil {
		return err
	}

	defer func() {
		closeErr := u.sink.Close()
		if err == nil && closeErr != nil {
			err = u.fail(SinkFailure, closeErr)
		}
	}()

	if u.IsOrigin() {
		if err = u.start(ctx); err != nil {
			return stopReason(err)
		}
	}

	return stopReason(u.loop(ctx))
}

// stopReason maps the normal ways a unit stops to nil.
func stopReason(err error) error {
	var failure *Failure
	if errors.As(err, &failure) {
		return err
	}

	if errors.Is(err, errTerminated) || errors.Is(err, io.EOF) {
		return nil
	}

	return err
}

func (u *Unit) init() error {
	sink, err := u.openSink(u.id)
	if err != nil {
		return u.fail(SinkFailure, errors.Wrap(err, "open sink"))
	}

	u.sink = sink
	u.open = make([]bool, len(u.endpoints.In))
	for j := range u.open {
		u.open[j] = true
	}

	return nil
}

func (u *Unit) fail(kind FailureKind, err error) error {
	return &Failure{Kind: kind, Vertex: u.id, Err: err}
}

func (u *Unit) start(ctx context.Context) error {
	u.setState(TokenHeld)

	u.token = 1
	u.received = true
	u.lastArrival = time.Now()

	rec := Record{Vertex: u.id, Kind: RecordStart, Token: u.token}
	if err := u.sink.Write(rec); err != nil {
		return u.fail(SinkFailure, err)
	}

	u.lastToken.Store(int64(u.token))
	u.InvokeHook(hooking.HookCtx{
		Domain: u,
		Pos:    HookPosTokenStart,
		Item:   u.id,
		Detail: rec,
	})

	return u.forward(ctx)
}

func (u *Unit) loop(ctx context.Context) error {
	u.setState(AwaitingToken)

	for {
		token, err := u.wait(ctx)
		if err != nil {
			return err
		}

		if err := u.handleToken(ctx, token); err != nil {
			return err
		}
	}
}

// wait is the only suspension point of the protocol. It blocks until at
// least one incoming channel is ready or a command arrives. Commands that are
// already pending are handled before any token is taken.
func (u *Unit) wait(ctx context.Context) (int, error) {
	for {
		if err := u.observeCommands(ctx); err != nil {
			return 0, err
		}

		if u.State() == Paused {
			if err := u.waitWhilePaused(ctx); err != nil {
				return 0, err
			}

			continue
		}

		cases, dims := u.selectCases(ctx)
		if len(dims) == 0 {
			return 0, io.EOF
		}

		chosen, value, ok := reflect.Select(cases)
		switch {
		case chosen < len(dims):
			j := dims[chosen]
			if !ok {
				u.open[j] = false
				continue
			}

			return u.holdWhilePaused(ctx, u.readReady(j, int(value.Int())))
		case chosen == len(dims):
			if err := u.handleCommand(Command(value.Int())); err != nil {
				return 0, err
			}
		default:
			return 0, errTerminated
		}
	}
}

func (u *Unit) selectCases(ctx context.Context) ([]reflect.SelectCase, []int) {
	cases := make([]reflect.SelectCase, 0, len(u.open)+3)
	dims := make([]int, 0, len(u.open))

	for j, open := range u.open {
		if !open {
			continue
		}

		cases = append(cases, reflect.SelectCase{
			Dir:  reflect.SelectRecv,
			Chan: reflect.ValueOf(u.endpoints.In[j].C()),
		})
		dims = append(dims, j)
	}

	cases = append(cases,
		reflect.SelectCase{
			Dir:  reflect.SelectRecv,
			Chan: reflect.ValueOf(u.mailbox.Commands()),
		},
		reflect.SelectCase{
			Dir:  reflect.SelectRecv,
			Chan: reflect.ValueOf(u.mailbox.Terminated()),
		},
		reflect.SelectCase{
			Dir:  reflect.SelectRecv,
			Chan: reflect.ValueOf(ctx.Done()),
		},
	)

	return cases, dims
}

// readReady collects the value that woke the unit together with any other
// channel that is ready at the same time, in dimension order. The last value
// read wins. Outside of a duplicated token only one channel is ever ready.
func (u *Unit) readReady(woken, value int) int {
	token := value

	for j, in := range u.endpoints.In {
		if j == woken {
			token = value
			continue
		}

		if !u.open[j] {
			continue
		}

		select {
		case v, ok := <-in.C():
			if !ok {
				u.open[j] = false
				continue
			}

			token = v
		default:
		}
	}

	return token
}

// observeCommands handles every command pending in the mailbox without
// blocking. Terminate and the end of ctx take precedence over the queue.
func (u *Unit) observeCommands(ctx context.Context) error {
	if u.terminating() || ctx.Err() != nil {
		return errTerminated
	}

	for {
		select {
		case cmd := <-u.mailbox.Commands():
			if err := u.handleCommand(cmd); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

// holdWhilePaused keeps a token that was taken in the same instant a command
// arrived until the unit is resumed. The token is dropped on termination.
func (u *Unit) holdWhilePaused(ctx context.Context, token int) (int, error) {
	if err := u.observeCommands(ctx); err != nil {
		return 0, err
	}

	for u.State() == Paused {
		if err := u.waitWhilePaused(ctx); err != nil {
			return 0, err
		}
	}

	return token, nil
}

func (u *Unit) waitWhilePaused(ctx context.Context) error {
	select {
	case cmd := <-u.mailbox.Commands():
		return u.handleCommand(cmd)
	case <-u.mailbox.Terminated():
		return errTerminated
	case <-ctx.Done():
		return errTerminated
	}
}

func (u *Unit) handleCommand(cmd Command) error {
	switch cmd {
	case Pause:
		u.setState(Paused)
	case Resume:
		if u.State() == Paused {
			u.setState(AwaitingToken)
		}
	case Terminate:
		return errTerminated
	}

	return nil
}

func (u *Unit) handleToken(ctx context.Context, token int) error {
	u.setState(TokenHeld)

	now := time.Now()
	u.token = token + 1

	rec := Record{Vertex: u.id, Token: u.token}
	if u.received {
		rec.Kind = RecordArrival
		rec.Elapsed = now.Sub(u.lastArrival)
	} else {
		rec.Kind = RecordFirst
		u.received = true
	}
	u.lastArrival = now

	if err := u.sink.Write(rec); err != nil {
		return u.fail(SinkFailure, err)
	}

	u.hops.Add(1)
	u.lastToken.Store(int64(u.token))
	u.InvokeHook(hooking.HookCtx{
		Domain: u,
		Pos:    HookPosTokenRecv,
		Time:   now,
		Item:   u.id,
		Detail: rec,
	})

	if err := u.forward(ctx); err != nil {
		return err
	}

	u.setState(AwaitingToken)

	return nil
}

// forward sends the token to a neighbor chosen uniformly at random. The
// neighbor the token came from is not excluded.
func (u *Unit) forward(ctx context.Context) error {
	if u.dimension == 0 {
		return nil
	}

	j := u.chooser.Choose(u.dimension)

	err := u.endpoints.Out[j].Send(ctx, u.token)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return errTerminated
	}

	if errors.Is(err, fabric.ErrBrokenPipe) && u.terminating() {
		return errTerminated
	}

	if err != nil {
		return u.fail(TransportFailure, err)
	}

	u.InvokeHook(hooking.HookCtx{
		Domain: u,
		Pos:    HookPosTokenSend,
		Item:   u.id,
		Detail: j,
	})

	return nil
}

// terminating tells whether Terminate has been delivered. Neighbors that
// stopped first leave broken pipes behind, which is then a normal shutdown.
func (u *Unit) terminating() bool {
	select {
	case <-u.mailbox.Terminated():
		return true
	default:
		return false
	}
}

// Snapshot is a point-in-time view of a unit for observers.
type Snapshot struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	Address   string `json:"address"`
	State     string `json:"state"`
	Hops      uint64 `json:"hops"`
	LastToken int64  `json:"last_token"`
}

// Snapshot reads the observable counters of the unit.
func (u *Unit) Snapshot() Snapshot {
	return Snapshot{
		ID:        u.id,
		Name:      u.name,
		Address:   u.address,
		State:     u.State().String(),
		Hops:      u.Hops(),
		LastToken: u.LastToken(),
	}
}
