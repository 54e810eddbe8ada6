// Package io provides input/output utilities for event ingestion.
package io

import (
	"context"

	"github.com/hed1ad/netanomaly/pkg/events"
)

// Reader is the interface for reading event records from various sources.
type Reader interface {
	// Read returns the complete set of records.
	Read() ([]events.Record, error)

	// Close releases resources.
	Close() error
}

// StreamReader extends Reader with streaming for unbounded sources such as live capture.
type StreamReader interface {
	Reader

	// Stream returns a channel of records for real-time processing.
	Stream(ctx context.Context) (<-chan events.Record, error)
}

// Writer is the interface for writing event records.
type Writer interface {
	// Write buffers or outputs a single record.
	Write(record events.Record) error

	// Flush forces buffered records out.
	Flush() error

	// Close flushes and releases resources.
	Close() error
}

// Result represents a classification result for one record.
type Result struct {
	Timestamp string    `json:"timestamp"`
	Protocol  string    `json:"protocol"`
	Score     float64   `json:"score"`
	IsAnomaly bool      `json:"is_anomaly"`
	Features  []float64 `json:"features,omitempty"`
}
