package cnn

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"math/rand"
)

// formatVersion is bumped whenever the encoded layout changes.
const formatVersion = 1

var errCorrupt = errors.New("corrupt model data")

// snapshot is the gob-encoded form of a Network. Tensors are stored in the
// fixed layer order conv1, conv2, dense1, output (weight then bias).
type snapshot struct {
	Format       int
	Shape        Shape
	Filters1     int
	Filters2     int
	Kernel       int
	Hidden       int
	Dropout      float64
	LearningRate float64
	Step         int
	Weights      [][]float64
	Moment1      [][]float64
	Moment2      [][]float64
}

// Save serializes the network, including optimizer state, so training can resume.
func (n *Network) Save() ([]byte, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	snap := snapshot{
		Format:       formatVersion,
		Shape:        n.shape,
		Filters1:     n.filters1,
		Filters2:     n.filters2,
		Kernel:       n.kernel,
		Hidden:       n.hidden,
		Dropout:      n.dropout,
		LearningRate: n.learningRate,
		Step:         n.step,
	}
	for _, p := range n.params() {
		snap.Weights = append(snap.Weights, p.w)
		snap.Moment1 = append(snap.Moment1, p.m)
		snap.Moment2 = append(snap.Moment2, p.v)
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snap); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Load replaces the network with a serialized one. The receiver's options are
// overwritten by the stored configuration; its random source is kept.
func (n *Network) Load(data []byte) error {
	var snap snapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&snap); err != nil {
		return fmt.Errorf("%w: %v", errCorrupt, err)
	}
	if snap.Format != formatVersion {
		return fmt.Errorf("%w: unsupported format %d", errCorrupt, snap.Format)
	}
	if err := snap.Shape.Validate(); err != nil {
		return err
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	n.shape = snap.Shape
	n.filters1 = snap.Filters1
	n.filters2 = snap.Filters2
	n.kernel = snap.Kernel
	n.hidden = snap.Hidden
	n.dropout = snap.Dropout
	n.learningRate = snap.LearningRate
	n.beta1, n.beta2 = 0.9, 0.999
	n.step = snap.Step
	if n.rng == nil {
		n.rng = rand.New(rand.NewSource(42))
	}
	if err := n.validateConfig(); err != nil {
		return fmt.Errorf("%w: %v", errCorrupt, err)
	}
	n.build()

	params := n.params()
	if len(snap.Weights) != len(params) || len(snap.Moment1) != len(params) || len(snap.Moment2) != len(params) {
		return fmt.Errorf("%w: %d tensors, want %d", errCorrupt, len(snap.Weights), len(params))
	}
	for i, p := range params {
		if len(snap.Weights[i]) != len(p.w) || len(snap.Moment1[i]) != len(p.w) || len(snap.Moment2[i]) != len(p.w) {
			return fmt.Errorf("%w: tensor %d has %d values, want %d", errCorrupt, i, len(snap.Weights[i]), len(p.w))
		}
		copy(p.w, snap.Weights[i])
		copy(p.m, snap.Moment1[i])
		copy(p.v, snap.Moment2[i])
	}

	return nil
}

// Load deserializes a network saved with Network.Save.
func Load(data []byte, opts ...Option) (*Network, error) {
	n := &Network{rng: rand.New(rand.NewSource(42))}
	for _, opt := range opts {
		opt(n)
	}
	if err := n.Load(data); err != nil {
		return nil, err
	}
	return n, nil
}
