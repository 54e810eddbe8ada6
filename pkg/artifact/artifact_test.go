package artifact

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hed1ad/netanomaly/pkg/detectors/cnn"
	"github.com/hed1ad/netanomaly/pkg/events"
	"github.com/hed1ad/netanomaly/pkg/features"
)

func newArtifact(t *testing.T) (*Artifact, *cnn.Network) {
	t.Helper()
	net, err := cnn.New(cnn.Shape{Steps: 3, Channels: 1}, cnn.WithSeed(1))
	require.NoError(t, err)

	params := features.Params{Version: 1, LengthMin: 50, LengthMax: 100, Vocabulary: []string{"TCP", "UDP"}}
	a, err := New(net, params, Training{Rows: 2, Epochs: 10, BatchSize: 32, LabelSource: "random"})
	require.NoError(t, err)
	return a, net
}

func TestNew(t *testing.T) {
	a, _ := newArtifact(t)

	_, err := uuid.Parse(a.ModelID)
	assert.NoError(t, err)
	assert.Equal(t, formatVersion, a.Format)
	assert.Equal(t, cnn.Shape{Steps: 3, Channels: 1}, a.Shape)
	assert.NotEmpty(t, a.Model)
	assert.Zero(t, a.Revision)
}

func TestStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models", "net.gob")
	store := NewStore(path)
	assert.Equal(t, path, store.Path())

	ok, err := store.Exists()
	require.NoError(t, err)
	assert.False(t, ok)

	a, net := newArtifact(t)
	res, err := store.Save(a)
	require.NoError(t, err)
	assert.Equal(t, 1, a.Revision)
	assert.Equal(t, path, res.Path)
	assert.Len(t, res.SHA256, 64)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, res.Size, info.Size())

	ok, err = store.Exists()
	require.NoError(t, err)
	assert.True(t, ok)

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, a.ModelID, loaded.ModelID)
	assert.Equal(t, 1, loaded.Revision)
	assert.Equal(t, a.Params, loaded.Params)
	assert.Equal(t, a.Training, loaded.Training)
	assert.True(t, a.CreatedAt.Equal(loaded.CreatedAt))

	restored, err := loaded.Network()
	require.NoError(t, err)
	assert.Equal(t, cnn.Shape{Steps: 3, Channels: 1}, restored.InputShape())

	sample := [][]float64{{1672531200, 1, 0}, {1672531260, 0, 1}}
	want, err := net.Predict(sample)
	require.NoError(t, err)
	got, err := restored.Predict(sample)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestSaveOverwritesInPlace(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "net.gob"))
	a, net := newArtifact(t)

	_, err := store.Save(a)
	require.NoError(t, err)

	require.NoError(t, a.Update(net, a.Params, Training{Rows: 4, Epochs: 3}))
	_, err = store.Save(a)
	require.NoError(t, err)

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.Revision)
	assert.Equal(t, 4, loaded.Training.Rows)

	entries, err := os.ReadDir(filepath.Dir(store.Path()))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files left behind")
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := NewStore(filepath.Join(dir, "missing.gob")).Load()
	assert.ErrorIs(t, err, events.ErrIO)

	garbage := filepath.Join(dir, "garbage.gob")
	require.NoError(t, os.WriteFile(garbage, []byte("not gob"), 0o644))
	_, err = NewStore(garbage).Load()
	assert.ErrorIs(t, err, events.ErrIO)

	a := &Artifact{Format: formatVersion, ModelID: "x", Model: []byte("bad")}
	_, err = a.Network()
	assert.ErrorIs(t, err, events.ErrIO)
}

func TestSaveUnwritable(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	a, _ := newArtifact(t)
	_, err := NewStore(filepath.Join(blocker, "net.gob")).Save(a)
	assert.ErrorIs(t, err, events.ErrResource)
	assert.Zero(t, a.Revision, "failed save does not bump the revision")
}
