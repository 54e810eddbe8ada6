package csv

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hed1ad/netanomaly/pkg/events"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "events.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRead(t *testing.T) {
	path := writeFile(t, " timestamp ,length,protocol,source_port,label\n"+
		"2023-01-01T00:00:00Z,100,TCP,443,1\n"+
		"2023-01-01T00:01:00Z,50,UDP,,\n")

	r, err := NewReader(path)
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, []string{"timestamp", "length", "protocol", "source_port", "label"}, r.Headers())

	records, err := r.Read()
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "2023-01-01T00:00:00Z", *records[0].Timestamp)
	assert.Equal(t, 100.0, *records[0].Length)
	assert.Equal(t, "TCP", *records[0].Protocol)
	assert.Equal(t, uint16(443), records[0].SourcePort)
	require.NotNil(t, records[0].Label)
	assert.Equal(t, 1.0, *records[0].Label)

	assert.Equal(t, "UDP", *records[1].Protocol)
	assert.Zero(t, records[1].SourcePort)
	assert.Nil(t, records[1].Label)
}

func TestReadMissingColumnLeavesFieldUnset(t *testing.T) {
	path := writeFile(t, "timestamp,length\n2023-01-01T00:00:00Z,10\n")

	r, err := NewReader(path)
	require.NoError(t, err)
	defer r.Close()

	records, err := r.Read()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Nil(t, records[0].Protocol)
	assert.ErrorIs(t, records[0].Validate(0), events.ErrSchema)
}

func TestReadHeadersAreCaseSensitive(t *testing.T) {
	path := writeFile(t, "timestamp,length,PROTOCOL\n2023-01-01T00:00:00Z,10,TCP\n")

	r, err := NewReader(path)
	require.NoError(t, err)
	defer r.Close()

	records, err := r.Read()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Nil(t, records[0].Protocol)
	assert.ErrorIs(t, records[0].Validate(0), events.ErrSchema)
}

func TestReadErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "non numeric length", content: "timestamp,length,protocol\nnow,big,TCP\n"},
		{name: "port out of range", content: "timestamp,length,protocol,source_port\nnow,1,TCP,70000\n"},
		{name: "ragged row", content: "timestamp,length,protocol\nnow,1\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewReader(writeFile(t, tt.content))
			require.NoError(t, err)
			defer r.Close()

			_, err = r.Read()
			assert.ErrorIs(t, err, events.ErrIO)
		})
	}
}

func TestNewReaderErrors(t *testing.T) {
	_, err := NewReader(filepath.Join(t.TempDir(), "missing.csv"))
	assert.ErrorIs(t, err, events.ErrIO)

	_, err = NewReader(writeFile(t, ""))
	assert.ErrorIs(t, err, events.ErrIO)
}

func TestWithComma(t *testing.T) {
	r, err := NewReader(writeFile(t, "timestamp;length;protocol\nnow;5;ICMP\n"), WithComma(';'))
	require.NoError(t, err)
	defer r.Close()

	records, err := r.Read()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "ICMP", *records[0].Protocol)
}
