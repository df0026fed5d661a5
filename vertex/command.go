package vertex

import "sync"

// A Command is broadcast by the control plane to every vertex unit.
type Command int

// Commands a vertex unit accepts at any suspension point.
const (
	Pause Command = iota
	Resume
	Terminate
)

func (c Command) String() string {
	switch c {
	case Pause:
		return "Pause"
	case Resume:
		return "Resume"
	case Terminate:
		return "Terminate"
	default:
		return "Unknown"
	}
}

// DefaultMailboxCapacity is the number of Pause/Resume commands a unit can
// have pending.
const DefaultMailboxCapacity = 16

// A Mailbox delivers commands to one unit. Pause and Resume are queued on a
// best-effort basis. Terminate latches, so it can never be dropped.
type Mailbox struct {
	cmds      chan Command
	terminate chan struct{}
	once      sync.Once
}

// NewMailbox creates a mailbox that queues up to capacity commands.
func NewMailbox(capacity int) *Mailbox {
	return &Mailbox{
		cmds:      make(chan Command, capacity),
		terminate: make(chan struct{}),
	}
}

// Deliver hands a command to the unit without waiting for it to be observed.
// It returns false if a Pause or Resume was dropped because the queue is full.
func (m *Mailbox) Deliver(cmd Command) bool {
	if cmd == Terminate {
		m.once.Do(func() { close(m.terminate) })
		return true
	}

	select {
	case m.cmds <- cmd:
		return true
	default:
		return false
	}
}

// Commands returns the queue of Pause and Resume commands.
func (m *Mailbox) Commands() <-chan Command {
	return m.cmds
}

// Terminated is closed once Terminate has been delivered.
func (m *Mailbox) Terminated() <-chan struct{} {
	return m.terminate
}
