// Package csv provides CSV event-file reading.
//
// The first row names the columns. Recognized columns are timestamp, length,
// protocol, source_ip, destination_ip, source_port, destination_port and label;
// others are ignored. An empty cell leaves the field unset.
package csv

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/hed1ad/netanomaly/pkg/events"
)

// Reader reads event records from a CSV file.
type Reader struct {
	file    *os.File
	reader  *csv.Reader
	name    string
	headers []string
}

// Option configures a CSV reader.
type Option func(*Reader)

// WithComma sets the field delimiter.
func WithComma(c rune) Option {
	return func(r *Reader) {
		r.reader.Comma = c
	}
}

// NewReader opens filename and reads its header row.
func NewReader(filename string, opts ...Option) (*Reader, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("open %s: %v: %w", filename, err, events.ErrIO)
	}

	r := &Reader{
		file:   file,
		reader: csv.NewReader(file),
		name:   filename,
	}

	for _, opt := range opts {
		opt(r)
	}

	headers, err := r.reader.Read()
	if err != nil {
		file.Close()
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%s: missing header row: %w", filename, events.ErrIO)
		}
		return nil, fmt.Errorf("%s: header: %v: %w", filename, err, events.ErrIO)
	}
	for i, h := range headers {
		headers[i] = strings.TrimSpace(h)
	}
	r.headers = headers

	return r, nil
}

// Headers returns the column headers with surrounding space trimmed. Columns
// match record fields by exact name.
func (r *Reader) Headers() []string {
	return r.headers
}

// Read returns every row as a record. Any malformed row aborts the read.
func (r *Reader) Read() ([]events.Record, error) {
	var records []events.Record

	for line := 2; ; line++ {
		row, err := r.reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %v: %w", r.name, err, events.ErrIO)
		}

		rec, err := r.parseRow(row)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %v: %w", r.name, line, err, events.ErrIO)
		}
		records = append(records, rec)
	}

	return records, nil
}

// Close releases resources.
func (r *Reader) Close() error {
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}

// parseRow maps one CSV row onto a record by header name.
func (r *Reader) parseRow(row []string) (events.Record, error) {
	var rec events.Record

	for i, val := range row {
		if i >= len(r.headers) {
			break
		}
		val = strings.TrimSpace(val)
		if val == "" {
			continue
		}

		switch r.headers[i] {
		case "timestamp":
			rec.Timestamp = &val
		case "protocol":
			rec.Protocol = &val
		case "length":
			f, err := strconv.ParseFloat(val, 64)
			if err != nil {
				return rec, fmt.Errorf("length %q: %v", val, err)
			}
			rec.Length = &f
		case "label":
			f, err := strconv.ParseFloat(val, 64)
			if err != nil {
				return rec, fmt.Errorf("label %q: %v", val, err)
			}
			rec.Label = &f
		case "source_ip":
			rec.SourceIP = val
		case "destination_ip":
			rec.DestinationIP = val
		case "source_port":
			p, err := strconv.ParseUint(val, 10, 16)
			if err != nil {
				return rec, fmt.Errorf("source_port %q: %v", val, err)
			}
			rec.SourcePort = uint16(p)
		case "destination_port":
			p, err := strconv.ParseUint(val, 10, 16)
			if err != nil {
				return rec, fmt.Errorf("destination_port %q: %v", val, err)
			}
			rec.DestinationPort = uint16(p)
		}
	}

	return rec, nil
}
