package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordValidate(t *testing.T) {
	ts := "2023-01-01T00:00:00Z"
	length := 10.0
	proto := "TCP"

	tests := []struct {
		name      string
		record    Record
		wantField string
	}{
		{name: "complete", record: NewRecord(ts, length, proto)},
		{name: "missing timestamp", record: Record{Length: &length, Protocol: &proto}, wantField: "timestamp"},
		{name: "missing length", record: Record{Timestamp: &ts, Protocol: &proto}, wantField: "length"},
		{name: "missing protocol", record: Record{Timestamp: &ts, Length: &length}, wantField: "protocol"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.record.Validate(7)
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrSchema)
			assert.Contains(t, err.Error(), tt.wantField)
			assert.Contains(t, err.Error(), "record 7")
		})
	}
}

func TestRecordUnmarshalJSON(t *testing.T) {
	var r Record
	err := json.Unmarshal([]byte(`{"timestamp":"2023-01-01T00:00:00Z","length":1500,"protocol":"TCP",
		"source_ip":"10.0.0.1","destination_port":443,"label":1}`), &r)
	require.NoError(t, err)
	require.NoError(t, r.Validate(0))
	assert.Equal(t, "TCP", *r.Protocol)
	assert.Equal(t, 1500.0, *r.Length)
	assert.Equal(t, "10.0.0.1", r.SourceIP)
	assert.Equal(t, uint16(443), r.DestinationPort)
	require.NotNil(t, r.Label)
	assert.Equal(t, 1.0, *r.Label)

	tests := []struct {
		name      string
		in        string
		wantField string
	}{
		{name: "upper case key", in: `{"timestamp":"2023-01-01T00:00:00Z","length":1,"PROTOCOL":"TCP"}`, wantField: "protocol"},
		{name: "title case key", in: `{"Timestamp":"2023-01-01T00:00:00Z","length":1,"protocol":"TCP"}`, wantField: "timestamp"},
		{name: "null value", in: `{"timestamp":"2023-01-01T00:00:00Z","length":null,"protocol":"TCP"}`, wantField: "length"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var r Record
			require.NoError(t, json.Unmarshal([]byte(tt.in), &r))
			err := r.Validate(0)
			assert.ErrorIs(t, err, ErrSchema)
			assert.Contains(t, err.Error(), tt.wantField)
		})
	}

	assert.Error(t, json.Unmarshal([]byte(`{"length":"big"}`), &r))
	assert.Error(t, json.Unmarshal([]byte(`[1]`), &r))
}

func TestKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{fmt.Errorf("read: %w", ErrIO), "io"},
		{fmt.Errorf("field: %w", ErrSchema), "schema"},
		{fmt.Errorf("rows: %w", ErrShape), "shape"},
		{fmt.Errorf("save: %w", ErrResource), "resource"},
		{errors.New("boom"), "unknown"},
		{context.Canceled, "unknown"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Kind(tt.err))
	}
}
