// Package simulation supervises a token circulation run: it wires the
// channel fabric, spawns one vertex unit per vertex, hands the control plane
// to signals and the monitor, and reclaims everything once the units stop.
package simulation

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/sarchlab/hypercube/analysis"
	"github.com/sarchlab/hypercube/control"
	"github.com/sarchlab/hypercube/datarecording"
	"github.com/sarchlab/hypercube/fabric"
	"github.com/sarchlab/hypercube/monitoring"
	"github.com/sarchlab/hypercube/sink"
	"github.com/sarchlab/hypercube/topology"
	"github.com/sarchlab/hypercube/vertex"
	"github.com/sirupsen/logrus"
)

// ErrAlreadyRun is returned when Run is called a second time.
var ErrAlreadyRun = errors.New("simulation already run")

// A SetupError aborts the whole simulation before any unit runs.
type SetupError struct {
	Stage string
	Err   error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("setup failed at %s: %v", e.Stage, e.Err)
}

// Cause returns the underlying error, for github.com/pkg/errors.Cause.
func (e *SetupError) Cause() error {
	return e.Err
}

// Unwrap returns the underlying error.
func (e *SetupError) Unwrap() error {
	return e.Err
}

// A Simulation owns the fabric, the units and every observer of one run.
type Simulation struct {
	id        string
	dimension int
	seed      uint64
	builder   Builder
	logger    logrus.FieldLogger

	fabric   *fabric.Fabric
	units    []*vertex.Unit
	results  []error
	control  *control.ControlPlane
	monitor  *monitoring.Monitor
	url      string
	progress *monitoring.ProgressBar
	recorder datarecording.DataRecorder
	tracer   *datarecording.TokenTracer
	analyzer *analysis.LatencyAnalyzer

	started   atomic.Bool
	ready     chan struct{}
	readyOnce sync.Once
}

// ID returns the unique ID of the run.
func (s *Simulation) ID() string {
	return s.id
}

// Dimension returns the dimension of the hypercube.
func (s *Simulation) Dimension() int {
	return s.dimension
}

// Seed returns the seed of the neighbor choices of the run.
func (s *Simulation) Seed() uint64 {
	return s.seed
}

// Ready is closed once the units are running, or once setup has failed.
func (s *Simulation) Ready() <-chan struct{} {
	return s.ready
}

// Control returns the control plane. It is nil until Ready is closed and
// stays nil if setup failed.
func (s *Simulation) Control() *control.ControlPlane {
	return s.control
}

// Units returns the vertex units, indexed by vertex ID. It is valid after
// Ready is closed.
func (s *Simulation) Units() []*vertex.Unit {
	return s.units
}

// Results returns how each unit stopped, indexed by vertex ID. A nil entry
// is a normal stop. It is valid after Run returns.
func (s *Simulation) Results() []error {
	return s.results
}

// Analyzer returns the latency analyzer of the run. It is valid after Ready
// is closed.
func (s *Simulation) Analyzer() *analysis.LatencyAnalyzer {
	return s.analyzer
}

// Monitor returns the monitor, or nil if monitoring is off.
func (s *Simulation) Monitor() *monitoring.Monitor {
	return s.monitor
}

// MonitorURL returns the address of the monitoring server, or "" if
// monitoring is off.
func (s *Simulation) MonitorURL() string {
	return s.url
}

// FabricStats returns the handle counts of the channel fabric.
func (s *Simulation) FabricStats() fabric.Stats {
	if s.fabric == nil {
		return fabric.Stats{}
	}

	return s.fabric.Stats()
}

// Broadcast delivers a command to every unit without waiting for it to be
// observed. Dropped Pause and Resume commands are logged.
func (s *Simulation) Broadcast(cmd vertex.Command) {
	dropped := 0

	for _, u := range s.units {
		if !u.Mailbox().Deliver(cmd) {
			dropped++
		}
	}

	if dropped > 0 {
		s.logger.WithFields(logrus.Fields{
			"command": cmd,
			"dropped": dropped,
		}).Warn("command dropped by busy units")
	}
}

// Run executes the simulation until every unit has stopped. Cancelling ctx
// has the same effect as Terminate. Only a SetupError is returned; units
// that fail are logged and reported through Results.
func (s *Simulation) Run(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyRun
	}

	defer s.markReady()

	err := s.setup()
	if err != nil {
		s.logger.WithError(err).Error("simulation aborted")
		s.teardown()

		return err
	}

	signalCtx, stopSignals := context.WithCancel(ctx)
	defer stopSignals()

	var signalsDone <-chan struct{}
	if s.builder.signalsOn {
		signalsDone = s.control.ListenSignals(signalCtx)
	}

	start := time.Now()
	s.spawn(ctx).Wait()

	stopSignals()
	if signalsDone != nil {
		<-signalsDone
	}

	s.logger.WithField("elapsed", time.Since(start)).
		Info("all vertex units stopped")

	s.teardown()
	s.reportLatency()

	return nil
}

func (s *Simulation) markReady() {
	s.readyOnce.Do(func() { close(s.ready) })
}

func (s *Simulation) setup() error {
	n := s.dimension

	err := topology.ValidateDimension(n)
	if err != nil {
		return &SetupError{Stage: "validate", Err: err}
	}

	s.analyzer = analysis.NewLatencyAnalyzer(n)

	s.fabric, err = fabric.MakeBuilder().
		WithCapacity(s.builder.channelCapacity).
		Build(n)
	if err != nil {
		return &SetupError{Stage: "fabric", Err: err}
	}

	if s.builder.recordOn {
		err = s.startRecording()
		if err != nil {
			return &SetupError{Stage: "recording", Err: err}
		}
	}

	if s.builder.monitorOn {
		err = s.startMonitor()
		if err != nil {
			return &SetupError{Stage: "monitor", Err: err}
		}
	}

	err = s.buildUnits()
	if err != nil {
		return &SetupError{Stage: "spawn", Err: err}
	}

	s.fabric.Release()

	s.control = control.New(s, s.logger)
	if s.monitor != nil {
		s.monitor.RegisterController(s.control)
	}

	return nil
}

func (s *Simulation) startRecording() error {
	recorder, err := datarecording.New(s.builder.recordPath)
	if err != nil {
		return err
	}

	s.recorder = recorder

	s.tracer, err = datarecording.NewTokenTracer(datarecording.Run{
		ID:        s.id,
		Dimension: s.dimension,
		StartNS:   time.Now().UnixNano(),
	}, recorder)

	return err
}

func (s *Simulation) startMonitor() error {
	s.monitor = monitoring.NewMonitor().
		WithPortNumber(s.builder.monitorPort).
		WithBrowser(s.builder.openBrowser)
	s.monitor.RegisterRun(s.id, s.dimension)

	url, err := s.monitor.StartServer()
	if err != nil {
		s.monitor = nil
		return err
	}

	s.url = url

	s.progress = s.monitor.CreateProgressBar("Vertex units",
		uint64(topology.NumVertices(s.dimension)))

	return nil
}

func (s *Simulation) unitBuilder() vertex.Builder {
	opener := s.builder.sinkOpener
	if opener == nil {
		opener = sink.FileOpener(s.builder.outputDir, s.dimension)
	}

	b := vertex.MakeBuilder().
		WithDimension(s.dimension).
		WithSinkOpener(opener).
		WithChooserFactory(s.builder.chooserFactory).
		WithMailboxCapacity(s.builder.mailboxCapacity).
		WithHook(s.analyzer).
		WithHook(vertex.NewLogHook(s.logger))

	if s.tracer != nil {
		b = b.WithHook(s.tracer)
	}

	for _, h := range s.builder.hooks {
		b = b.WithHook(h)
	}

	return b
}

// buildUnits hands every vertex its own endpoints. On failure, the
// endpoints already handed out are closed again.
func (s *Simulation) buildUnits() error {
	vertex.SeedStreams(s.seed)
	s.logger.WithField("seed", s.seed).Debug("seeded neighbor choices")

	b := s.unitBuilder()
	numVertices := topology.NumVertices(s.dimension)

	acquired := make([]*fabric.Endpoints, 0, numVertices)
	units := make([]*vertex.Unit, 0, numVertices)

	for v := 0; v < numVertices; v++ {
		endpoints, err := s.fabric.Acquire(v)
		if err != nil {
			for _, e := range acquired {
				e.Close()
			}

			return errors.Wrapf(err, "vertex %d", v)
		}

		acquired = append(acquired, endpoints)
		units = append(units, b.Build(v, endpoints))
	}

	s.units = units
	for _, u := range units {
		if s.monitor != nil {
			s.monitor.RegisterUnit(u)
		}
	}

	return nil
}

func (s *Simulation) spawn(ctx context.Context) *sync.WaitGroup {
	wg := &sync.WaitGroup{}
	s.results = make([]error, len(s.units))

	for i, u := range s.units {
		wg.Add(1)

		if s.progress != nil {
			s.progress.IncrementInProgress(1)
		}

		go func(i int, u *vertex.Unit) {
			defer wg.Done()
			s.results[i] = s.runUnit(ctx, u)
		}(i, u)
	}

	s.logger.WithFields(logrus.Fields{
		"dimension": s.dimension,
		"vertices":  len(s.units),
		"channels":  s.fabric.NumChannels(),
	}).Info("simulation started")

	s.markReady()

	return wg
}

func (s *Simulation) runUnit(ctx context.Context, u *vertex.Unit) error {
	err := u.Run(ctx)

	if s.progress != nil {
		s.progress.MoveInProgressToFinished(1)
	}

	entry := s.logger.WithFields(logrus.Fields{
		"vertex": u.Address(),
		"hops":   u.Hops(),
	})
	if err != nil {
		entry.WithError(err).Error("vertex unit failed")
	} else {
		entry.Debug("vertex unit stopped")
	}

	return err
}

// teardown releases everything setup acquired. It is safe after a partial
// setup.
func (s *Simulation) teardown() {
	if s.fabric != nil {
		s.fabric.Release()
	}

	if s.monitor != nil {
		if s.progress != nil {
			s.monitor.CompleteProgressBar(s.progress)
		}

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		err := s.monitor.StopServer(ctx)
		if err != nil {
			s.logger.WithError(err).Warn("monitor did not stop cleanly")
		}
	}

	if s.tracer != nil {
		if err := s.tracer.Err(); err != nil {
			s.logger.WithError(err).Warn("token recording incomplete")
		}
	}

	if s.recorder != nil {
		if err := s.recorder.Close(); err != nil {
			s.logger.WithError(err).Error("closing recording")
		}
	}
}

func (s *Simulation) reportLatency() {
	overall := s.analyzer.Overall()

	s.logger.WithFields(logrus.Fields{
		"visits":  overall.Visits,
		"samples": overall.Samples,
		"mean_us": overall.MeanUS,
		"std_us":  overall.StdDevUS,
		"min_us":  overall.MinUS,
		"max_us":  overall.MaxUS,
	}).Info("inter-arrival latency")

	buf := new(bytes.Buffer)
	if err := analysis.WriteTable(buf, s.analyzer.Summary()); err == nil {
		s.logger.Debug("per-vertex latency\n" + buf.String())
	}
}
