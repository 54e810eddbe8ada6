package jsondir

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hed1ad/netanomaly/internal/atomicfile"
	"github.com/hed1ad/netanomaly/pkg/events"
)

const defaultBatchSize = 100

// Writer buffers records and writes them as JSON array files into a directory.
// Each flush produces one new file whose name sorts after every earlier one, and
// files appear atomically so a concurrent Reader never sees a partial batch.
type Writer struct {
	mu        sync.Mutex
	dir       string
	prefix    string
	batchSize int
	now       func() time.Time

	pending []events.Record
	seq     int
	written int
	files   []string
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithPrefix sets the file name prefix. Default: "events".
func WithPrefix(prefix string) WriterOption {
	return func(w *Writer) { w.prefix = prefix }
}

// WithBatchSize sets the number of buffered records that triggers a flush.
func WithBatchSize(n int) WriterOption {
	return func(w *Writer) { w.batchSize = n }
}

// WithClock overrides the time source used in file names.
func WithClock(now func() time.Time) WriterOption {
	return func(w *Writer) { w.now = now }
}

// NewWriter creates a writer for dir, creating the directory if needed.
func NewWriter(dir string, opts ...WriterOption) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create %s: %v: %w", dir, err, events.ErrResource)
	}

	w := &Writer{
		dir:       dir,
		prefix:    "events",
		batchSize: defaultBatchSize,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.batchSize <= 0 {
		w.batchSize = defaultBatchSize
	}

	return w, nil
}

// Write buffers a record and flushes when the batch is full.
func (w *Writer) Write(record events.Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending = append(w.pending, record)
	if len(w.pending) >= w.batchSize {
		return w.flush()
	}
	return nil
}

// Flush writes buffered records to a new file. It is a no-op when nothing is buffered.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flush()
}

// Close flushes remaining records.
func (w *Writer) Close() error {
	return w.Flush()
}

// Written returns the number of records flushed so far.
func (w *Writer) Written() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.written
}

// Files returns the paths written so far, oldest first.
func (w *Writer) Files() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.files...)
}

func (w *Writer) flush() error {
	if len(w.pending) == 0 {
		return nil
	}

	w.seq++
	name := fmt.Sprintf("%s_%s_%06d.json",
		w.prefix, w.now().UTC().Format("20060102T150405.000000000"), w.seq)
	path := filepath.Join(w.dir, name)

	_, err := atomicfile.Write(path, 0o644, func(out io.Writer) error {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(w.pending)
	})
	if err != nil {
		return fmt.Errorf("write %s: %v: %w", path, err, events.ErrResource)
	}

	w.written += len(w.pending)
	w.files = append(w.files, path)
	w.pending = w.pending[:0]
	return nil
}
