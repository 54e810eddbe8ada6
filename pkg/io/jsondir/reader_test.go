package jsondir

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hed1ad/netanomaly/pkg/events"
	pkgio "github.com/hed1ad/netanomaly/pkg/io"
)

var (
	_ pkgio.Reader = (*Reader)(nil)
	_ pkgio.Writer = (*Writer)(nil)
)

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func protocols(records []events.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = *r.Protocol
	}
	return out
}

func TestReadOrderAndCount(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"b.json": `[{"timestamp":"2023-01-01T00:02:00Z","length":3,"protocol":"B1"},
		            {"timestamp":"2023-01-01T00:03:00Z","length":4,"protocol":"B2"}]`,
		"a.json": `[{"timestamp":"2023-01-01T00:00:00Z","length":1,"protocol":"A1"},
		            {"timestamp":"2023-01-01T00:01:00Z","length":2,"protocol":"A2"}]`,
		"c.json":    `[]`,
		"notes.txt": `not an event file`,
		"d.JSON":    `[{"timestamp":"2023-01-01T00:04:00Z","length":5,"protocol":"D1"}]`,
	})
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.json"), 0o755))

	r := NewReader(dir)
	records, err := r.Read()
	require.NoError(t, err)

	assert.Len(t, records, 5)
	assert.Equal(t, []string{"A1", "A2", "B1", "B2", "D1"}, protocols(records))

	files, err := r.Files()
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.json"),
		filepath.Join(dir, "b.json"),
		filepath.Join(dir, "c.json"),
		filepath.Join(dir, "d.JSON"),
	}, files)
}

func TestReadKeepsOptionalFields(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"a.json": `[{"timestamp":"2023-01-01T00:00:00Z","length":100,"protocol":"TCP",
		             "source_ip":"10.0.0.1","destination_port":443,"label":1}]`,
	})

	records, err := NewReader(dir).Read()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "10.0.0.1", records[0].SourceIP)
	assert.Equal(t, uint16(443), records[0].DestinationPort)
	require.NotNil(t, records[0].Label)
	assert.Equal(t, 1.0, *records[0].Label)
}

func TestReadMissingFieldIsNotALoadError(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"a.json": `[{"timestamp":"2023-01-01T00:00:00Z","length":10}]`,
	})

	records, err := NewReader(dir).Read()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Nil(t, records[0].Protocol)
}

func TestReadMatchesKeysExactly(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"a.json": `[{"timestamp":"2023-01-01T00:00:00Z","length":10,"PROTOCOL":"TCP"}]`,
	})

	records, err := NewReader(dir).Read()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Nil(t, records[0].Protocol)
	assert.ErrorIs(t, records[0].Validate(0), events.ErrSchema)
}

func TestReadErrors(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
	}{
		{name: "malformed json", files: map[string]string{"a.json": `[{"timestamp":`}},
		{name: "object instead of array", files: map[string]string{"a.json": `{"timestamp":"x"}`}},
		{name: "null document", files: map[string]string{"a.json": `null`}},
		{name: "array of scalars", files: map[string]string{"a.json": `[1,2]`}},
		{name: "string length", files: map[string]string{"a.json": `[{"length":"10"}]`}},
		{
			name: "one bad file aborts everything",
			files: map[string]string{
				"a.json": `[{"timestamp":"2023-01-01T00:00:00Z","length":1,"protocol":"TCP"}]`,
				"b.json": `[oops]`,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := NewReader(writeFiles(t, tt.files)).Read()
			assert.ErrorIs(t, err, events.ErrIO)
			assert.Nil(t, records)
		})
	}
}

func TestReadMissingDirectory(t *testing.T) {
	_, err := NewReader(filepath.Join(t.TempDir(), "missing")).Read()
	assert.ErrorIs(t, err, events.ErrIO)
}

func TestReadCSVWhenEnabled(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"a.json": `[{"timestamp":"2023-01-01T00:00:00Z","length":1,"protocol":"JSON"}]`,
		"b.csv":  "timestamp,length,protocol\n2023-01-01T00:01:00Z,2,CSV\n",
	})

	records, err := NewReader(dir).Read()
	require.NoError(t, err)
	assert.Equal(t, []string{"JSON"}, protocols(records))

	records, err = NewReader(dir, WithExtensions("json", ".CSV")).Read()
	require.NoError(t, err)
	assert.Equal(t, []string{"JSON", "CSV"}, protocols(records))
}

func TestRecognized(t *testing.T) {
	r := NewReader("data")
	assert.True(t, r.Recognized("a.json"))
	assert.True(t, r.Recognized("/tmp/data/A.Json"))
	assert.False(t, r.Recognized(".a.json.123.tmp"))
	assert.False(t, r.Recognized("a.csv"))
	assert.Equal(t, "data", r.Dir())
}

func TestWriterRoundTrip(t *testing.T) {
	dir := t.TempDir()
	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	w, err := NewWriter(dir, WithPrefix("packets"), WithBatchSize(2), WithClock(func() time.Time { return clock }))
	require.NoError(t, err)

	require.NoError(t, w.Write(events.NewRecord("2024-05-01T12:00:00Z", 60, "TCP")))
	assert.Empty(t, w.Files(), "below batch size nothing is written")
	require.NoError(t, w.Write(events.NewRecord("2024-05-01T12:00:01Z", 70, "UDP")))
	require.Len(t, w.Files(), 1)

	require.NoError(t, w.Write(events.NewRecord("2024-05-01T12:00:02Z", 80, "ICMP")))
	require.NoError(t, w.Close())
	require.NoError(t, w.Flush(), "flushing an empty buffer is a no-op")

	files := w.Files()
	require.Len(t, files, 2)
	assert.Equal(t, 3, w.Written())
	assert.Less(t, files[0], files[1], "later batches sort after earlier ones")
	assert.Equal(t, "packets_20240501T120000.000000000_000001.json", filepath.Base(files[0]))

	records, err := NewReader(dir).Read()
	require.NoError(t, err)
	assert.Equal(t, []string{"TCP", "UDP", "ICMP"}, protocols(records))
}

func TestNewWriterUnwritable(t *testing.T) {
	parent := t.TempDir()
	blocker := filepath.Join(parent, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	_, err := NewWriter(filepath.Join(blocker, "dir"))
	assert.ErrorIs(t, err, events.ErrResource)
}
