package datarecording

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/sarchlab/hypercube/hooking"
	"github.com/sarchlab/hypercube/vertex"
)

// Names of the tables written by a TokenTracer.
const (
	RunTable          = "runs"
	TokenArrivalTable = "token_arrivals"
)

// A Run is a row of the run table, describing one simulation.
type Run struct {
	ID        string
	Dimension int
	StartNS   int64
}

// A TokenArrival is a row of the token arrival table.
type TokenArrival struct {
	RunID      string
	Vertex     int
	Address    string
	Kind       string
	Token      int
	ElapsedUS  int64
	WallTimeNS int64
}

// A TokenTracer is a hook that copies every record written by the units it
// is attached to into a DataRecorder.
type TokenTracer struct {
	runID    string
	recorder DataRecorder

	lock sync.Mutex
	err  error
}

// NewTokenTracer creates the run and token arrival tables in recorder, adds
// the run, and returns a tracer that records the arrivals of that run.
func NewTokenTracer(run Run, recorder DataRecorder) (*TokenTracer, error) {
	err := recorder.CreateTable(RunTable, Run{})
	if err != nil {
		return nil, err
	}

	err = recorder.CreateTable(TokenArrivalTable, TokenArrival{})
	if err != nil {
		return nil, err
	}

	err = recorder.InsertData(RunTable, run)
	if err != nil {
		return nil, err
	}

	return &TokenTracer{
		runID:    run.ID,
		recorder: recorder,
	}, nil
}

// Func records the token start and token receive hooks.
func (t *TokenTracer) Func(ctx hooking.HookCtx) {
	if ctx.Pos != vertex.HookPosTokenStart &&
		ctx.Pos != vertex.HookPosTokenRecv {
		return
	}

	rec, ok := ctx.Detail.(vertex.Record)
	if !ok {
		return
	}

	address := ""
	if unit, ok := ctx.Domain.(*vertex.Unit); ok {
		address = unit.Address()
	}

	err := t.recorder.InsertData(TokenArrivalTable, TokenArrival{
		RunID:      t.runID,
		Vertex:     rec.Vertex,
		Address:    address,
		Kind:       rec.Kind.String(),
		Token:      rec.Token,
		ElapsedUS:  rec.ElapsedMicroseconds(),
		WallTimeNS: ctx.Time.UnixNano(),
	})
	if err != nil {
		t.lock.Lock()
		if t.err == nil {
			t.err = err
		}
		t.lock.Unlock()
	}
}

// Err returns the first error met while recording.
func (t *TokenTracer) Err() error {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.err
}

// ReadRuns returns all the runs stored in a recording.
func ReadRuns(ctx context.Context, reader DataReader) ([]Run, error) {
	reader.MapTable(RunTable, Run{})

	rows, _, err := reader.Query(ctx, RunTable, QueryParams{OrderBy: "StartNS"})
	if err != nil {
		return nil, errors.Wrap(err, "reading runs")
	}

	runs := make([]Run, 0, len(rows))
	for _, row := range rows {
		runs = append(runs, *row.(*Run))
	}

	return runs, nil
}

// ReadTokenArrivals returns the arrivals recorded for a vertex in the order
// they were recorded. A negative vertex selects all vertices.
func ReadTokenArrivals(
	ctx context.Context,
	reader DataReader,
	vertexID int,
) ([]TokenArrival, error) {
	reader.MapTable(TokenArrivalTable, TokenArrival{})

	params := QueryParams{OrderBy: "rowid"}
	if vertexID >= 0 {
		params.Where = "Vertex = ?"
		params.Args = []any{vertexID}
	}

	rows, _, err := reader.Query(ctx, TokenArrivalTable, params)
	if err != nil {
		return nil, errors.Wrap(err, "reading token arrivals")
	}

	arrivals := make([]TokenArrival, 0, len(rows))
	for _, row := range rows {
		arrivals = append(arrivals, *row.(*TokenArrival))
	}

	return arrivals, nil
}
