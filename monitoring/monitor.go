// Package monitoring turns a running simulation into an HTTP server that can
// be used to watch and remote-control it.
package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"strconv"
	"sync"
	"time"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/pkg/browser"
	"github.com/rs/xid"
	"github.com/sarchlab/hypercube/control"
	"github.com/sarchlab/hypercube/monitoring/web"
	"github.com/sarchlab/hypercube/vertex"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"
	"golang.org/x/exp/slices"
)

// Controller is the part of the control plane the monitor drives.
type Controller interface {
	State() control.RunState
	Toggle() control.RunState
	Pause() bool
	Resume() bool
	Terminate()
	Terminated() bool
}

// Monitor can turn a simulation into a server and allows external monitoring
// controlling of the simulation.
type Monitor struct {
	runID       string
	dimension   int
	portNumber  int
	openBrowser bool

	controllerLock sync.RWMutex
	controller     Controller

	unitsLock sync.RWMutex
	units     []*vertex.Unit

	progressBarsLock sync.Mutex
	progressBars     []*ProgressBar

	server *http.Server
}

// NewMonitor creates a new Monitor
func NewMonitor() *Monitor {
	return &Monitor{}
}

// WithPortNumber sets the port number of the monitor. Port 0 selects a
// random port.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber != 0 && portNumber < 1000 {
		fmt.Fprintf(os.Stderr,
			"Port number %d is assigned to the monitoring server, "+
				"which is not allowed. Using a random port instead.\n", portNumber)
		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// WithBrowser makes StartServer open the monitor page in a web browser.
func (m *Monitor) WithBrowser(open bool) *Monitor {
	m.openBrowser = open
	return m
}

// RegisterRun sets the identity of the simulation being monitored.
func (m *Monitor) RegisterRun(runID string, dimension int) {
	m.runID = runID
	m.dimension = dimension
}

// RegisterController sets the control plane driven by the monitor.
func (m *Monitor) RegisterController(c Controller) {
	m.controllerLock.Lock()
	defer m.controllerLock.Unlock()

	m.controller = c
}

func (m *Monitor) currentController() Controller {
	m.controllerLock.RLock()
	defer m.controllerLock.RUnlock()

	return m.controller
}

// RegisterUnit registers a vertex unit to be monitored.
func (m *Monitor) RegisterUnit(u *vertex.Unit) {
	m.unitsLock.Lock()
	defer m.unitsLock.Unlock()

	m.units = append(m.units, u)
}

// CreateProgressBar creates a new progress bar.
func (m *Monitor) CreateProgressBar(name string, total uint64) *ProgressBar {
	bar := &ProgressBar{
		ID:        xid.New().String(),
		Name:      name,
		StartTime: time.Now(),
		Total:     total,
	}

	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	m.progressBars = append(m.progressBars, bar)

	return bar
}

// CompleteProgressBar removes a bar to be shown on the webpage.
func (m *Monitor) CompleteProgressBar(pb *ProgressBar) {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	m.progressBars = slices.DeleteFunc(m.progressBars,
		func(b *ProgressBar) bool { return b == pb })
}

// Handler returns the HTTP handler serving the monitor.
func (m *Monitor) Handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/api/toggle", m.toggle)
	r.HandleFunc("/api/pause", m.pause)
	r.HandleFunc("/api/continue", m.resume)
	r.HandleFunc("/api/terminate", m.terminate)
	r.HandleFunc("/api/status", m.status)
	r.HandleFunc("/api/vertices", m.listVertices)
	r.HandleFunc("/api/vertex/{id}", m.vertexDetails)
	r.HandleFunc("/api/progress", m.listProgressBars)
	r.HandleFunc("/api/resource", m.listResources)
	r.HandleFunc("/api/profile", m.collectProfile)
	r.PathPrefix("/").Handler(http.FileServer(web.GetAssets()))

	return r
}

// StartServer starts the monitor as a web server and returns its URL.
func (m *Monitor) StartServer() (string, error) {
	listener, err := net.Listen("tcp", ":"+strconv.Itoa(m.portNumber))
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("http://localhost:%d",
		listener.Addr().(*net.TCPAddr).Port)

	fmt.Fprintf(os.Stderr, "Monitoring simulation with %s\n", url)

	m.server = &http.Server{
		Handler:           m.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		err := m.server.Serve(listener)
		if err != http.ErrServerClosed {
			dieOnErr(err)
		}
	}()

	if m.openBrowser {
		err = browser.OpenURL(url)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Cannot open browser: %v\n", err)
		}
	}

	return url, nil
}

// StopServer shuts the web server down.
func (m *Monitor) StopServer(ctx context.Context) error {
	if m.server == nil {
		return nil
	}

	return m.server.Shutdown(ctx)
}

func (m *Monitor) controllerOr503(w http.ResponseWriter) Controller {
	c := m.currentController()
	if c == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, err := w.Write([]byte("No controller registered"))
		dieOnErr(err)
	}

	return c
}

type stateRsp struct {
	State   string `json:"state"`
	Changed bool   `json:"changed"`
}

func writeState(w http.ResponseWriter, c Controller, changed bool) {
	writeJSON(w, stateRsp{
		State:   c.State().String(),
		Changed: changed,
	})
}

func (m *Monitor) toggle(w http.ResponseWriter, _ *http.Request) {
	c := m.controllerOr503(w)
	if c == nil {
		return
	}

	c.Toggle()
	writeState(w, c, true)
}

func (m *Monitor) pause(w http.ResponseWriter, _ *http.Request) {
	c := m.controllerOr503(w)
	if c == nil {
		return
	}

	writeState(w, c, c.Pause())
}

func (m *Monitor) resume(w http.ResponseWriter, _ *http.Request) {
	c := m.controllerOr503(w)
	if c == nil {
		return
	}

	writeState(w, c, c.Resume())
}

func (m *Monitor) terminate(w http.ResponseWriter, _ *http.Request) {
	c := m.controllerOr503(w)
	if c == nil {
		return
	}

	c.Terminate()
	writeState(w, c, true)
}

type statusRsp struct {
	ID         string `json:"id"`
	Dimension  int    `json:"dimension"`
	State      string `json:"state"`
	Terminated bool   `json:"terminated"`
	Vertices   int    `json:"vertices"`
	Stopped    int    `json:"stopped"`
	Hops       uint64 `json:"hops"`
}

func (m *Monitor) status(w http.ResponseWriter, _ *http.Request) {
	rsp := statusRsp{
		ID:        m.runID,
		Dimension: m.dimension,
	}

	if c := m.currentController(); c != nil {
		rsp.State = c.State().String()
		rsp.Terminated = c.Terminated()
	}

	for _, s := range m.snapshots() {
		rsp.Vertices++
		rsp.Hops += s.Hops

		if s.State == vertex.Stopped.String() {
			rsp.Stopped++
		}
	}

	writeJSON(w, rsp)
}

func (m *Monitor) snapshots() []vertex.Snapshot {
	m.unitsLock.RLock()
	defer m.unitsLock.RUnlock()

	snapshots := make([]vertex.Snapshot, 0, len(m.units))
	for _, u := range m.units {
		snapshots = append(snapshots, u.Snapshot())
	}

	return snapshots
}

func (m *Monitor) listVertices(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, m.snapshots())
}

func (m *Monitor) findUnitOr404(w http.ResponseWriter, id string) *vertex.Unit {
	m.unitsLock.RLock()
	defer m.unitsLock.RUnlock()

	for _, u := range m.units {
		if strconv.Itoa(u.ID()) == id || u.Address() == id {
			return u
		}
	}

	w.WriteHeader(http.StatusNotFound)
	_, err := w.Write([]byte("Vertex not found"))
	dieOnErr(err)

	return nil
}

func (m *Monitor) vertexDetails(w http.ResponseWriter, r *http.Request) {
	unit := m.findUnitOr404(w, mux.Vars(r)["id"])
	if unit == nil {
		return
	}

	snapshot := unit.Snapshot()

	serializer := goseth.NewSerializer()
	serializer.SetRoot(&snapshot)
	serializer.SetMaxDepth(1)
	err := serializer.Serialize(w)

	dieOnErr(err)
}

func (m *Monitor) listProgressBars(w http.ResponseWriter, _ *http.Request) {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	bars := make([]progressBarRsp, 0, len(m.progressBars))
	for _, b := range m.progressBars {
		bars = append(bars, b.rsp())
	}

	writeJSON(w, bars)
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	pid := os.Getpid()
	process, err := process.NewProcess(int32(pid))
	dieOnErr(err)

	cpuPercent, err := process.CPUPercent()
	dieOnErr(err)

	memorySize, err := process.MemoryInfo()
	dieOnErr(err)

	writeJSON(w, resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memorySize.RSS,
	})
}

func (m *Monitor) collectProfile(w http.ResponseWriter, _ *http.Request) {
	buf := bytes.NewBuffer(nil)

	err := pprof.StartCPUProfile(buf)
	if err != nil {
		w.WriteHeader(http.StatusConflict)
		fmt.Fprintf(w, "Error: %s", err)
		return
	}

	time.Sleep(time.Second)

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	dieOnErr(err)

	writeJSON(w, prof)
}

func writeJSON(w http.ResponseWriter, v any) {
	bytes, err := json.Marshal(v)
	dieOnErr(err)

	w.Header().Set("Content-Type", "application/json")
	_, err = w.Write(bytes)
	dieOnErr(err)
}

func dieOnErr(err error) {
	if err != nil {
		log.Panic(err)
	}
}
