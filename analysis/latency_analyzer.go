// Package analysis summarizes the token circulation of a simulation.
package analysis

import (
	"fmt"
	"io"
	"sync"
	"text/tabwriter"

	"github.com/sarchlab/hypercube/hooking"
	"github.com/sarchlab/hypercube/topology"
	"github.com/sarchlab/hypercube/vertex"
	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/stat"
)

// VertexLatency summarizes the token arrivals at one vertex. Latencies are in
// microseconds and only cover the receptions that have a previous one.
type VertexLatency struct {
	Vertex   int
	Address  string
	Distance int
	Visits   int
	Samples  int
	MeanUS   float64
	StdDevUS float64
	MinUS    float64
	MaxUS    float64
}

// LatencyAnalyzer is a hook that collects the inter-arrival latencies
// recorded by the vertex units.
type LatencyAnalyzer struct {
	dimension int
	distances []int

	lock    sync.Mutex
	visits  map[int]int
	samples map[int][]float64
}

// NewLatencyAnalyzer creates a LatencyAnalyzer for a dimension-n hypercube.
func NewLatencyAnalyzer(n int) *LatencyAnalyzer {
	return &LatencyAnalyzer{
		dimension: n,
		distances: topology.Distances(n, vertex.OriginID),
		visits:    make(map[int]int),
		samples:   make(map[int][]float64),
	}
}

// Func collects the records carried by token start and receive hooks.
func (a *LatencyAnalyzer) Func(ctx hooking.HookCtx) {
	if ctx.Pos != vertex.HookPosTokenStart &&
		ctx.Pos != vertex.HookPosTokenRecv {
		return
	}

	rec, ok := ctx.Detail.(vertex.Record)
	if !ok {
		return
	}

	a.Add(rec)
}

// Add accounts for one record.
func (a *LatencyAnalyzer) Add(rec vertex.Record) {
	if rec.Vertex < 0 || rec.Vertex >= len(a.distances) {
		return
	}

	a.lock.Lock()
	defer a.lock.Unlock()

	a.visits[rec.Vertex]++

	if rec.Kind == vertex.RecordArrival {
		a.samples[rec.Vertex] = append(a.samples[rec.Vertex],
			float64(rec.ElapsedMicroseconds()))
	}
}

// Summary returns one entry per vertex, ordered by vertex ID.
func (a *LatencyAnalyzer) Summary() []VertexLatency {
	a.lock.Lock()
	defer a.lock.Unlock()

	summary := make([]VertexLatency, 0, len(a.distances))
	for v, d := range a.distances {
		entry := VertexLatency{
			Vertex:   v,
			Address:  topology.Address(v, a.dimension),
			Distance: d,
			Visits:   a.visits[v],
		}
		fillLatency(&entry, a.samples[v])

		summary = append(summary, entry)
	}

	return summary
}

// Overall summarizes the latencies of all vertices together.
func (a *LatencyAnalyzer) Overall() VertexLatency {
	a.lock.Lock()
	defer a.lock.Unlock()

	entry := VertexLatency{Vertex: -1, Address: "all", Distance: -1}

	var all []float64
	for v := range a.distances {
		entry.Visits += a.visits[v]
		all = append(all, a.samples[v]...)
	}

	fillLatency(&entry, all)

	return entry
}

func fillLatency(entry *VertexLatency, samples []float64) {
	entry.Samples = len(samples)
	if len(samples) == 0 {
		return
	}

	entry.MinUS = slices.Min(samples)
	entry.MaxUS = slices.Max(samples)

	if len(samples) == 1 {
		entry.MeanUS = samples[0]
		return
	}

	entry.MeanUS, entry.StdDevUS = stat.MeanStdDev(samples, nil)
}

// WriteTable prints a summary as an aligned text table.
func WriteTable(w io.Writer, summary []VertexLatency) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)

	fmt.Fprintln(tw, "vertex\tdistance\tvisits\tsamples\t"+
		"mean(us)\tstddev(us)\tmin(us)\tmax(us)\t")

	for _, e := range summary {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%.1f\t%.1f\t%.0f\t%.0f\t\n",
			e.Address, e.Distance, e.Visits, e.Samples,
			e.MeanUS, e.StdDevUS, e.MinUS, e.MaxUS)
	}

	return tw.Flush()
}
