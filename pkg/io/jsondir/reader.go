// Package jsondir loads event records from a directory of event files.
//
// Files are visited in lexicographic order. Each JSON file must hold a single
// array of objects; CSV files are read with pkg/io/csv when their extension is
// enabled. Any unreadable or malformed file aborts the whole load.
package jsondir

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/hed1ad/netanomaly/pkg/events"
	"github.com/hed1ad/netanomaly/pkg/io/csv"
)

// DefaultExtensions lists the file extensions recognized when none are configured.
var DefaultExtensions = []string{".json"}

// Reader reads every recognized file of a directory into one record slice.
type Reader struct {
	dir        string
	extensions []string
}

// Option configures a Reader.
type Option func(*Reader)

// WithExtensions sets the recognized file extensions (".json", ".csv").
func WithExtensions(exts ...string) Option {
	return func(r *Reader) {
		r.extensions = normalizeExtensions(exts)
	}
}

// NewReader creates a reader for dir. The directory is not touched until Read.
func NewReader(dir string, opts ...Option) *Reader {
	r := &Reader{
		dir:        dir,
		extensions: DefaultExtensions,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Dir returns the directory being read.
func (r *Reader) Dir() string {
	return r.dir
}

// Recognized reports whether name has one of the reader's extensions.
func (r *Reader) Recognized(name string) bool {
	return slices.Contains(r.extensions, strings.ToLower(filepath.Ext(name)))
}

// Files returns the recognized files of the directory in lexicographic order.
func (r *Reader) Files() ([]string, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %v: %w", r.dir, err, events.ErrIO)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !r.Recognized(e.Name()) {
			continue
		}
		files = append(files, filepath.Join(r.dir, e.Name()))
	}
	// os.ReadDir already sorts by name; keep the ordering explicit.
	slices.Sort(files)

	return files, nil
}

// Read loads all recognized files and concatenates their records in file order,
// then in-file order.
func (r *Reader) Read() ([]events.Record, error) {
	files, err := r.Files()
	if err != nil {
		return nil, err
	}

	var records []events.Record
	for _, path := range files {
		batch, err := r.readFile(path)
		if err != nil {
			return nil, err
		}
		records = append(records, batch...)
	}

	return records, nil
}

// Close releases resources. A directory reader holds none.
func (r *Reader) Close() error {
	return nil
}

func (r *Reader) readFile(path string) ([]events.Record, error) {
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		cr, err := csv.NewReader(path)
		if err != nil {
			return nil, err
		}
		defer cr.Close()
		return cr.Read()
	}

	return ReadFile(path)
}

// ReadFile decodes one JSON file holding an array of event objects.
func ReadFile(path string) ([]events.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %v: %w", path, err, events.ErrIO)
	}

	var records []events.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse %s: %v: %w", path, err, events.ErrIO)
	}
	if records == nil {
		// A literal null decodes without error but is not an array.
		return nil, fmt.Errorf("parse %s: expected a JSON array: %w", path, events.ErrIO)
	}

	return records, nil
}

func normalizeExtensions(exts []string) []string {
	out := make([]string, 0, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		out = append(out, ext)
	}
	return out
}
