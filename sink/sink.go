// Package sink writes vertex records to their private outputs.
package sink

import (
	"bufio"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pkg/errors"
	"github.com/sarchlab/hypercube/topology"
	"github.com/sarchlab/hypercube/vertex"
)

// A FileSink writes one record per line to a text file, flushing after every
// record so the file can be tailed while the simulation runs.
type FileSink struct {
	path   string
	file   *os.File
	writer *bufio.Writer
}

// Dir returns the directory that holds the outputs of a dimension-n run.
func Dir(root string, n int) string {
	return filepath.Join(root, strconv.Itoa(n))
}

// Path returns the output file of vertex v in a dimension-n run.
func Path(root string, n, v int) string {
	return filepath.Join(Dir(root, n), topology.Address(v, n)+".txt")
}

// OpenFile creates (or truncates) the output file of vertex v, creating the
// dimension directory if needed.
func OpenFile(root string, n, v int) (*FileSink, error) {
	dir := Dir(root, n)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create output directory %s", dir)
	}

	path := Path(root, n, v)

	file, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrapf(err, "create output file %s", path)
	}

	return &FileSink{
		path:   path,
		file:   file,
		writer: bufio.NewWriter(file),
	}, nil
}

// FileOpener returns a vertex.SinkOpener that opens file sinks under root.
func FileOpener(root string, n int) vertex.SinkOpener {
	return func(v int) (vertex.Sink, error) {
		return OpenFile(root, n, v)
	}
}

// Path returns the file the sink writes to.
func (s *FileSink) Path() string {
	return s.path
}

// Write appends the record as one line.
func (s *FileSink) Write(rec vertex.Record) error {
	if _, err := s.writer.WriteString(rec.String()); err != nil {
		return errors.Wrapf(err, "write %s", s.path)
	}

	if err := s.writer.WriteByte('\n'); err != nil {
		return errors.Wrapf(err, "write %s", s.path)
	}

	return errors.Wrapf(s.writer.Flush(), "flush %s", s.path)
}

// Close flushes and closes the file.
func (s *FileSink) Close() error {
	flushErr := s.writer.Flush()
	closeErr := s.file.Close()

	if flushErr != nil {
		return errors.Wrapf(flushErr, "flush %s", s.path)
	}

	return errors.Wrapf(closeErr, "close %s", s.path)
}
