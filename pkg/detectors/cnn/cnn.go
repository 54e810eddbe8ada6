// Package cnn implements a small 1-D convolutional binary classifier for anomaly detection.
//
// The network is Conv1D(64) → Conv1D(32) → Flatten → Dense(64) → Dropout(0.5) →
// Dense(1, sigmoid), trained with Adam on binary cross-entropy. Each sample is a
// (steps, channels) sequence flattened step-major into a []float64.
package cnn

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"github.com/hed1ad/netanomaly/pkg/detectors"
	"github.com/hed1ad/netanomaly/pkg/events"
)

// epsilon bounds predicted probabilities away from 0 and 1.
const epsilon = 1e-7

// Shape is the per-sample input shape.
type Shape struct {
	Steps    int
	Channels int
}

// Size returns the number of values in one sample.
func (s Shape) Size() int {
	return s.Steps * s.Channels
}

// Validate rejects zero or negative dimensions.
func (s Shape) Validate() error {
	if s.Steps <= 0 || s.Channels <= 0 {
		return fmt.Errorf("invalid input shape (%d, %d): %w", s.Steps, s.Channels, events.ErrShape)
	}
	return nil
}

func (s Shape) String() string {
	return fmt.Sprintf("(%d, %d)", s.Steps, s.Channels)
}

// Network is a trainable Conv1D classifier. It is safe for concurrent use.
type Network struct {
	mu sync.RWMutex

	// Configuration
	shape        Shape
	filters1     int
	filters2     int
	kernel       int
	hidden       int
	dropout      float64
	learningRate float64
	beta1        float64
	beta2        float64
	rng          *rand.Rand

	// Layers
	conv1  *conv1d
	conv2  *conv1d
	dense1 *dense
	output *dense

	// Optimizer step count
	step int
}

// Option configures a Network.
type Option func(*Network)

// WithSeed sets the random seed for weight initialization, shuffling and dropout.
func WithSeed(seed int64) Option {
	return func(n *Network) {
		n.rng = rand.New(rand.NewSource(seed))
	}
}

// WithFilters sets the filter counts of the two convolution stages.
func WithFilters(first, second int) Option {
	return func(n *Network) {
		n.filters1 = first
		n.filters2 = second
	}
}

// WithKernel sets the convolution kernel width.
func WithKernel(k int) Option {
	return func(n *Network) {
		n.kernel = k
	}
}

// WithHidden sets the width of the dense hidden layer.
func WithHidden(units int) Option {
	return func(n *Network) {
		n.hidden = units
	}
}

// WithDropout sets the dropout probability applied during training.
func WithDropout(p float64) Option {
	return func(n *Network) {
		n.dropout = p
	}
}

// WithLearningRate sets the Adam learning rate.
func WithLearningRate(lr float64) Option {
	return func(n *Network) {
		n.learningRate = lr
	}
}

// New builds an untrained network for the given input shape.
func New(shape Shape, opts ...Option) (*Network, error) {
	if err := shape.Validate(); err != nil {
		return nil, err
	}

	n := &Network{
		shape:        shape,
		filters1:     64,
		filters2:     32,
		kernel:       3,
		hidden:       64,
		dropout:      0.5,
		learningRate: 0.001,
		beta1:        0.9,
		beta2:        0.999,
		rng:          rand.New(rand.NewSource(42)),
	}

	for _, opt := range opts {
		opt(n)
	}

	if err := n.validateConfig(); err != nil {
		return nil, err
	}

	n.build()
	n.conv1.init(n.rng)
	n.conv2.init(n.rng)
	n.dense1.init(n.rng)
	n.output.init(n.rng)

	return n, nil
}

func (n *Network) validateConfig() error {
	switch {
	case n.filters1 <= 0 || n.filters2 <= 0:
		return fmt.Errorf("filters must be positive, got %d and %d: %w", n.filters1, n.filters2, events.ErrShape)
	case n.kernel <= 0:
		return fmt.Errorf("kernel must be positive, got %d: %w", n.kernel, events.ErrShape)
	case n.hidden <= 0:
		return fmt.Errorf("hidden units must be positive, got %d: %w", n.hidden, events.ErrShape)
	case n.dropout < 0 || n.dropout >= 1:
		return fmt.Errorf("dropout must be in [0, 1), got %g", n.dropout)
	case n.learningRate <= 0:
		return fmt.Errorf("learning rate must be positive, got %g", n.learningRate)
	}
	return nil
}

// build allocates the layers for the current configuration.
func (n *Network) build() {
	n.conv1 = newConv1D(n.shape.Channels, n.filters1, n.kernel)
	n.conv2 = newConv1D(n.filters1, n.filters2, n.kernel)
	n.dense1 = newDense(n.shape.Steps*n.filters2, n.hidden)
	n.output = newDense(n.hidden, 1)
}

func (n *Network) params() []*param {
	var ps []*param
	ps = append(ps, n.conv1.params()...)
	ps = append(ps, n.conv2.params()...)
	ps = append(ps, n.dense1.params()...)
	ps = append(ps, n.output.params()...)
	return ps
}

// InputShape returns the per-sample input shape.
func (n *Network) InputShape() Shape {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.shape
}

// ParamCount returns the number of trainable parameters.
func (n *Network) ParamCount() int {
	n.mu.RLock()
	defer n.mu.RUnlock()

	total := 0
	for _, p := range n.params() {
		total += len(p.w)
	}
	return total
}

// Fit trains the network on data with labels in [0, 1]. Cancelling ctx stops
// training at the next epoch boundary and returns the history so far.
func (n *Network) Fit(ctx context.Context, data [][]float64, labels []float64, cfg detectors.FitConfig) (detectors.History, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if cfg.Epochs <= 0 || cfg.BatchSize <= 0 {
		return detectors.History{}, fmt.Errorf("epochs and batch size must be positive, got %d and %d", cfg.Epochs, cfg.BatchSize)
	}
	if len(data) == 0 {
		return detectors.History{}, fmt.Errorf("empty training data: %w", events.ErrShape)
	}
	if len(labels) != len(data) {
		return detectors.History{}, fmt.Errorf("%d samples but %d labels: %w", len(data), len(labels), events.ErrShape)
	}
	if err := n.checkSamples(data); err != nil {
		return detectors.History{}, err
	}
	for i, y := range labels {
		if y < 0 || y > 1 {
			return detectors.History{}, fmt.Errorf("label %d out of range: %g: %w", i, y, events.ErrSchema)
		}
	}

	ws := n.newWorkspace()
	order := make([]int, len(data))
	for i := range order {
		order[i] = i
	}

	history := detectors.History{
		Loss:     make([]float64, 0, cfg.Epochs),
		Accuracy: make([]float64, 0, cfg.Epochs),
	}

	for epoch := 0; epoch < cfg.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return history, fmt.Errorf("epoch %d: %w", epoch+1, err)
		}
		if cfg.Shuffle {
			n.rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
		}

		var lossSum float64
		var correct int
		for start := 0; start < len(order); start += cfg.BatchSize {
			end := min(start+cfg.BatchSize, len(order))
			batch := order[start:end]

			for _, p := range n.params() {
				p.zeroGrad()
			}
			scale := 1 / float64(len(batch))
			for _, idx := range batch {
				p := n.forward(ws, data[idx], true)
				y := labels[idx]
				lossSum += binaryCrossEntropy(p, y)
				if (p >= detectors.Threshold) == (y >= detectors.Threshold) {
					correct++
				}
				n.backward(ws, data[idx], (p-y)*scale)
			}

			n.step++
			for _, p := range n.params() {
				p.adam(n.learningRate, n.beta1, n.beta2, epsilon, n.step)
			}
		}

		history.Loss = append(history.Loss, lossSum/float64(len(data)))
		history.Accuracy = append(history.Accuracy, float64(correct)/float64(len(data)))
	}

	return history, nil
}

// Predict returns anomaly probabilities for the given samples.
func (n *Network) Predict(data [][]float64) ([]float64, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if err := n.checkSamples(data); err != nil {
		return nil, err
	}

	ws := n.newWorkspace()
	scores := make([]float64, len(data))
	for i, sample := range data {
		scores[i] = clip(n.forward(ws, sample, false))
	}

	return scores, nil
}

// PredictOne returns the anomaly probability for a single sample.
func (n *Network) PredictOne(sample []float64) (float64, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if err := n.checkSample(0, sample); err != nil {
		return 0, err
	}
	return clip(n.forward(n.newWorkspace(), sample, false)), nil
}

// PredictStream processes samples from a channel until it closes or ctx is done.
// Samples with the wrong width are skipped.
func (n *Network) PredictStream(ctx context.Context, input <-chan []float64, output chan<- detectors.Score) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sample, ok := <-input:
			if !ok {
				return nil
			}

			score, err := n.PredictOne(sample)
			if err != nil {
				continue
			}

			select {
			case output <- detectors.Score{
				Value:     score,
				IsAnomaly: score >= detectors.Threshold,
				Features:  sample,
			}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func (n *Network) checkSamples(data [][]float64) error {
	for i, sample := range data {
		if err := n.checkSample(i, sample); err != nil {
			return err
		}
	}
	return nil
}

func (n *Network) checkSample(i int, sample []float64) error {
	if len(sample) != n.shape.Size() {
		return fmt.Errorf("sample %d has %d values, input shape %v needs %d: %w",
			i, len(sample), n.shape, n.shape.Size(), events.ErrShape)
	}
	return nil
}

// workspace holds per-sample activations reused across forward/backward passes.
type workspace struct {
	z1, a1, z2, a2 []float64
	zh, ah, mask   []float64
	zo             []float64

	dz2, da1, dah []float64
	do            []float64
}

func (n *Network) newWorkspace() *workspace {
	steps := n.shape.Steps
	return &workspace{
		z1:   make([]float64, steps*n.filters1),
		a1:   make([]float64, steps*n.filters1),
		z2:   make([]float64, steps*n.filters2),
		a2:   make([]float64, steps*n.filters2),
		zh:   make([]float64, n.hidden),
		ah:   make([]float64, n.hidden),
		mask: make([]float64, n.hidden),
		zo:   make([]float64, 1),
		dz2:  make([]float64, steps*n.filters2),
		da1:  make([]float64, steps*n.filters1),
		dah:  make([]float64, n.hidden),
		do:   make([]float64, 1),
	}
}

// forward runs one sample through the network and returns the sigmoid output.
// In training mode dropout is applied with inverted scaling.
func (n *Network) forward(ws *workspace, x []float64, training bool) float64 {
	steps := n.shape.Steps

	n.conv1.forward(x, ws.z1, steps)
	relu(ws.z1, ws.a1)
	n.conv2.forward(ws.a1, ws.z2, steps)
	relu(ws.z2, ws.a2)
	n.dense1.forward(ws.a2, ws.zh)
	relu(ws.zh, ws.ah)

	keep := 1 - n.dropout
	for j := range ws.mask {
		ws.mask[j] = 1
		if training && n.dropout > 0 {
			if n.rng.Float64() < n.dropout {
				ws.mask[j] = 0
			} else {
				ws.mask[j] = 1 / keep
			}
		}
		ws.ah[j] *= ws.mask[j]
	}

	n.output.forward(ws.ah, ws.zo)
	return sigmoid(ws.zo[0])
}

// backward propagates dLoss/dLogit for the sample last passed to forward.
func (n *Network) backward(ws *workspace, x []float64, dLogit float64) {
	steps := n.shape.Steps

	ws.do[0] = dLogit
	n.output.backward(ws.ah, ws.do, ws.dah)

	for j := range ws.dah {
		ws.dah[j] *= ws.mask[j]
	}
	reluGrad(ws.zh, ws.dah)
	n.dense1.backward(ws.a2, ws.dah, ws.dz2)

	reluGrad(ws.z2, ws.dz2)
	n.conv2.backward(ws.a1, ws.dz2, ws.da1, steps)

	reluGrad(ws.z1, ws.da1)
	n.conv1.backward(x, ws.da1, nil, steps)
}
