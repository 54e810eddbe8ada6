// Package events defines network event records and the error kinds shared by the pipeline.
package events

import (
	"encoding/json"
	"fmt"
)

// Record is one raw network observation as read from an event file.
// Required fields are pointers so that an absent field can be told apart from a zero value.
type Record struct {
	Timestamp *string  `json:"timestamp"`
	Length    *float64 `json:"length"`
	Protocol  *string  `json:"protocol"`

	SourceIP        string   `json:"source_ip,omitempty"`
	DestinationIP   string   `json:"destination_ip,omitempty"`
	SourcePort      uint16   `json:"source_port,omitempty"`
	DestinationPort uint16   `json:"destination_port,omitempty"`
	Label           *float64 `json:"label,omitempty"`
}

// NewRecord builds a record with all required fields set.
func NewRecord(timestamp string, length float64, protocol string) Record {
	return Record{
		Timestamp: &timestamp,
		Length:    &length,
		Protocol:  &protocol,
	}
}

// UnmarshalJSON decodes an event object matching keys exactly, so "PROTOCOL"
// does not stand in for a missing "protocol".
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var rec Record
	fields := []struct {
		key string
		dst any
	}{
		{"timestamp", &rec.Timestamp},
		{"length", &rec.Length},
		{"protocol", &rec.Protocol},
		{"source_ip", &rec.SourceIP},
		{"destination_ip", &rec.DestinationIP},
		{"source_port", &rec.SourcePort},
		{"destination_port", &rec.DestinationPort},
		{"label", &rec.Label},
	}
	for _, f := range fields {
		v, ok := raw[f.key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(v, f.dst); err != nil {
			return fmt.Errorf("field %q: %w", f.key, err)
		}
	}

	*r = rec
	return nil
}

// Validate reports the first required field missing from the record.
// index is used only to make the error message point at the offending row.
func (r Record) Validate(index int) error {
	switch {
	case r.Timestamp == nil:
		return missingField(index, "timestamp")
	case r.Length == nil:
		return missingField(index, "length")
	case r.Protocol == nil:
		return missingField(index, "protocol")
	}
	return nil
}

func missingField(index int, field string) error {
	return fmt.Errorf("record %d: missing field %q: %w", index, field, ErrSchema)
}
