package simulation

import (
	"io"
	"time"

	"github.com/rs/xid"
	"github.com/sarchlab/hypercube/fabric"
	"github.com/sarchlab/hypercube/hooking"
	"github.com/sarchlab/hypercube/vertex"
	"github.com/sirupsen/logrus"
)

// Builder can be used to build a simulation.
type Builder struct {
	dimension       int
	outputDir       string
	channelCapacity int
	mailboxCapacity int
	monitorOn       bool
	monitorPort     int
	openBrowser     bool
	recordOn        bool
	recordPath      string
	signalsOn       bool
	seed            uint64
	seedSet         bool
	sinkOpener      vertex.SinkOpener
	chooserFactory  vertex.ChooserFactory
	hooks           []hooking.Hook
	logger          logrus.FieldLogger
}

// MakeBuilder creates a new builder.
func MakeBuilder() Builder {
	return Builder{
		outputDir:       ".",
		channelCapacity: fabric.DefaultCapacity,
		mailboxCapacity: vertex.DefaultMailboxCapacity,
		chooserFactory:  vertex.NewStreamChooser,
	}
}

// WithDimension sets the dimension of the hypercube.
func (b Builder) WithDimension(n int) Builder {
	b.dimension = n
	return b
}

// WithOutputDir sets the root directory of the per-vertex output files.
func (b Builder) WithOutputDir(dir string) Builder {
	b.outputDir = dir
	return b
}

// WithChannelCapacity sets how many tokens a channel buffers.
func (b Builder) WithChannelCapacity(capacity int) Builder {
	b.channelCapacity = capacity
	return b
}

// WithMailboxCapacity sets how many Pause/Resume commands a unit can hold.
func (b Builder) WithMailboxCapacity(capacity int) Builder {
	b.mailboxCapacity = capacity
	return b
}

// WithMonitoring turns on the monitoring server.
func (b Builder) WithMonitoring() Builder {
	b.monitorOn = true
	return b
}

// WithoutMonitoring sets the simulation to not use monitoring.
func (b Builder) WithoutMonitoring() Builder {
	b.monitorOn = false
	b.monitorPort = 0
	b.openBrowser = false

	return b
}

// WithMonitorPort sets the port number for the monitoring server.
func (b Builder) WithMonitorPort(port int) Builder {
	b.monitorPort = port
	return b
}

// WithBrowser opens the monitoring page in a browser when the server starts.
func (b Builder) WithBrowser() Builder {
	b.openBrowser = true
	return b
}

// WithRecording records every token arrival into a SQLite database. An
// empty path selects a unique file name.
func (b Builder) WithRecording(path string) Builder {
	b.recordOn = true
	b.recordPath = path

	return b
}

// WithSignals makes the simulation handle the OS pause/resume and terminate
// signals while it runs.
func (b Builder) WithSignals() Builder {
	b.signalsOn = true
	return b
}

// WithSeed fixes the seed of the neighbor choices, so that runs with the
// same seed and dimension walk the same route. Without it every run is
// seeded from the clock.
func (b Builder) WithSeed(seed uint64) Builder {
	b.seed = seed
	b.seedSet = true

	return b
}

// WithSinkOpener replaces the per-vertex output files.
func (b Builder) WithSinkOpener(opener vertex.SinkOpener) Builder {
	b.sinkOpener = opener
	return b
}

// WithChooserFactory replaces the random neighbor choice of the units.
func (b Builder) WithChooserFactory(f vertex.ChooserFactory) Builder {
	b.chooserFactory = f
	return b
}

// WithHook registers a hook on every vertex unit.
func (b Builder) WithHook(hook hooking.Hook) Builder {
	hooks := make([]hooking.Hook, len(b.hooks), len(b.hooks)+1)
	copy(hooks, b.hooks)
	b.hooks = append(hooks, hook)

	return b
}

// WithLogger sets the logger for diagnostics.
func (b Builder) WithLogger(logger logrus.FieldLogger) Builder {
	b.logger = logger
	return b
}

func (b Builder) parametersMustBeValid() {
	if !b.monitorOn && (b.monitorPort != 0 || b.openBrowser) {
		panic("monitor options cannot be set when monitoring is disabled")
	}

	if b.channelCapacity < 0 {
		panic("channel capacity cannot be negative")
	}

	if b.mailboxCapacity < 1 {
		panic("mailbox capacity must be at least 1")
	}

	if b.chooserFactory == nil {
		panic("chooser factory is not set")
	}
}

// Build builds the simulation. The dimension is checked when the simulation
// runs.
func (b Builder) Build() *Simulation {
	b.parametersMustBeValid()

	logger := b.logger
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}

	seed := b.seed
	if !b.seedSet {
		seed = uint64(time.Now().UnixNano())
	}

	s := &Simulation{
		id:        xid.New().String(),
		dimension: b.dimension,
		seed:      seed % vertex.MaxStreamSeed,
		builder:   b,
		ready:     make(chan struct{}),
	}
	s.logger = logger.WithField("run", s.id)

	return s
}
