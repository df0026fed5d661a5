// Package control turns external pause/resume and terminate requests into
// commands broadcast to every vertex unit.
package control

import (
	"context"
	"os"
	"os/signal"
	"sync"

	"github.com/sarchlab/hypercube/vertex"
	"github.com/sirupsen/logrus"
)

// A Broadcaster delivers a command to every vertex unit without waiting.
type Broadcaster interface {
	Broadcast(cmd vertex.Command)
}

// RunState is the process-wide pause toggle.
type RunState int

// Toggle states.
const (
	Running RunState = iota
	Paused
)

func (s RunState) String() string {
	if s == Paused {
		return "paused"
	}

	return "running"
}

// A ControlPlane owns the pause toggle and rebroadcasts control requests.
type ControlPlane struct {
	target Broadcaster
	logger logrus.FieldLogger

	lock       sync.Mutex
	state      RunState
	terminated bool
}

// New creates a ControlPlane in the running state.
func New(target Broadcaster, logger logrus.FieldLogger) *ControlPlane {
	return &ControlPlane{
		target: target,
		logger: logger,
	}
}

// State returns the current toggle state.
func (c *ControlPlane) State() RunState {
	c.lock.Lock()
	defer c.lock.Unlock()

	return c.state
}

// Terminated tells whether Terminate has been requested.
func (c *ControlPlane) Terminated() bool {
	c.lock.Lock()
	defer c.lock.Unlock()

	return c.terminated
}

// Toggle pauses every unit if running, resumes every unit if paused, and
// returns the new state.
func (c *ControlPlane) Toggle() RunState {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.flip()

	return c.state
}

// Pause toggles only if the simulation is running. It reports whether a
// Pause was broadcast.
func (c *ControlPlane) Pause() bool {
	return c.toggleFrom(Running)
}

// Resume toggles only if the simulation is paused. It reports whether a
// Resume was broadcast.
func (c *ControlPlane) Resume() bool {
	return c.toggleFrom(Paused)
}

func (c *ControlPlane) toggleFrom(from RunState) bool {
	c.lock.Lock()
	defer c.lock.Unlock()

	if c.state != from {
		return false
	}

	c.flip()

	return true
}

// flip must be called with the lock held.
func (c *ControlPlane) flip() {
	if c.state == Running {
		c.target.Broadcast(vertex.Pause)
		c.state = Paused
	} else {
		c.target.Broadcast(vertex.Resume)
		c.state = Running
	}

	c.logger.WithField("state", c.state).Info("simulation toggled")
}

// Terminate broadcasts Terminate regardless of the toggle, which is left
// untouched.
func (c *ControlPlane) Terminate() {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.terminated = true
	c.target.Broadcast(vertex.Terminate)

	c.logger.Info("simulation terminating")
}

// ListenSignals installs the OS signal handlers: the toggle signal flips
// pause/resume and the terminate signals broadcast Terminate. Handling stops
// and the default signal behavior is restored when ctx ends. The returned
// channel is closed after that.
func (c *ControlPlane) ListenSignals(ctx context.Context) <-chan struct{} {
	sigs := make(chan os.Signal, 4)
	signal.Notify(sigs, append(toggleSignals(), terminateSignals()...)...)

	done := make(chan struct{})

	go func() {
		defer close(done)
		defer signal.Stop(sigs)

		for {
			select {
			case <-ctx.Done():
				return
			case sig := <-sigs:
				c.handleSignal(sig)
			}
		}
	}()

	return done
}

func (c *ControlPlane) handleSignal(sig os.Signal) {
	c.logger.WithField("signal", sig).Debug("caught signal")

	for _, s := range toggleSignals() {
		if s == sig {
			c.Toggle()
			return
		}
	}

	c.Terminate()
}
