package recorder

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rs/xid"
)

const defaultBufferSize = 500

// DefaultCSVName returns a unique file name for a recording in dir.
func DefaultCSVName(dir string) string {
	return filepath.Join(dir, "portmark_telemetry_"+xid.New().String()+".csv")
}

// CSV writes samples to a comma-separated file.
type CSV struct {
	path string
	file *os.File
	w    *csv.Writer

	pending    []Sample
	bufferSize int
}

// NewCSV creates the file at path and writes the header. An existing file is
// never overwritten. An empty path picks a unique name in the working
// directory.
func NewCSV(path string) (*CSV, error) {
	if path == "" {
		path = DefaultCSVName(".")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create recording directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create recording: %w", err)
	}

	r := &CSV{path: path, file: f, w: csv.NewWriter(f), bufferSize: defaultBufferSize}
	if err := r.w.Write(Header); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("write header: %w", err)
	}
	return r, nil
}

// Path is the file being written.
func (r *CSV) Path() string { return r.path }

func (r *CSV) Record(s Sample) error {
	r.pending = append(r.pending, s)
	if len(r.pending) >= r.bufferSize {
		return r.Flush()
	}
	return nil
}

func (r *CSV) Flush() error {
	row := make([]string, len(Header))
	for n, s := range r.pending {
		for i, v := range s.Values() {
			row[i] = strconv.FormatFloat(v, 'f', -1, 64)
		}
		row[len(row)-1] = strconv.FormatBool(s.Printing)
		if err := r.w.Write(row); err != nil {
			// Rows before n were accepted and must not be written again.
			r.pending = r.pending[n:]
			return fmt.Errorf("write sample: %w", err)
		}
	}
	r.pending = r.pending[:0]
	r.w.Flush()
	return r.w.Error()
}

func (r *CSV) Close() error {
	return errors.Join(r.Flush(), r.file.Close())
}
