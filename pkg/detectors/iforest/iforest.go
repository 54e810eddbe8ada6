// Package iforest implements the Isolation Forest algorithm for unsupervised anomaly scoring.
//
// The forest is used to derive pseudo labels for the supervised classifier when
// no ground truth is available: rows scoring in the top contamination fraction
// are labelled anomalous.
package iforest

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"slices"
	"sync"

	"github.com/hed1ad/netanomaly/pkg/events"
)

// eulerGamma is the Euler–Mascheroni constant used to approximate harmonic numbers.
const eulerGamma = 0.5772156649

// IsolationForest scores samples by how quickly random splits isolate them.
type IsolationForest struct {
	mu sync.RWMutex

	// Configuration
	nTrees        int
	sampleSize    int
	contamination float64
	maxDepth      int
	rng           *rand.Rand

	// Trained model
	trees     []*node
	nFeatures int
	threshold float64
	norm      float64
}

// node is a node in an isolation tree. Leaves have no children.
type node struct {
	feature int
	split   float64
	left    *node
	right   *node
	size    int
}

// Option configures an IsolationForest.
type Option func(*IsolationForest)

// WithTrees sets the number of isolation trees.
func WithTrees(n int) Option {
	return func(f *IsolationForest) {
		f.nTrees = n
	}
}

// WithSampleSize sets the subsample size for each tree.
func WithSampleSize(n int) Option {
	return func(f *IsolationForest) {
		f.sampleSize = n
	}
}

// WithContamination sets the expected proportion of anomalies.
func WithContamination(c float64) Option {
	return func(f *IsolationForest) {
		f.contamination = c
	}
}

// WithSeed sets the random seed for reproducibility.
func WithSeed(seed int64) Option {
	return func(f *IsolationForest) {
		f.rng = rand.New(rand.NewSource(seed))
	}
}

// New creates a new IsolationForest with the given options.
func New(opts ...Option) *IsolationForest {
	f := &IsolationForest{
		nTrees:        100,
		sampleSize:    256,
		contamination: 0.1,
		threshold:     0.5,
		rng:           rand.New(rand.NewSource(42)),
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// Fit grows the forest on data and sets the anomaly threshold at the
// (1 - contamination) quantile of the training scores.
func (f *IsolationForest) Fit(data [][]float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(data) == 0 {
		return fmt.Errorf("empty training data: %w", events.ErrShape)
	}
	if f.nTrees <= 0 || f.sampleSize <= 0 {
		return errors.New("trees and sample size must be positive")
	}
	if f.contamination < 0 || f.contamination >= 1 {
		return fmt.Errorf("contamination must be in [0, 1), got %g", f.contamination)
	}

	f.nFeatures = len(data[0])
	for i, row := range data {
		if len(row) != f.nFeatures {
			return fmt.Errorf("row %d has %d features, want %d: %w", i, len(row), f.nFeatures, events.ErrShape)
		}
	}

	sampleSize := min(f.sampleSize, len(data))
	f.maxDepth = int(math.Ceil(math.Log2(float64(max(sampleSize, 2)))))

	f.trees = make([]*node, f.nTrees)
	for i := range f.trees {
		// Sample without replacement
		indices := f.rng.Perm(len(data))[:sampleSize]
		sample := make([][]float64, sampleSize)
		for j, idx := range indices {
			sample[j] = data[idx]
		}
		f.trees[i] = f.grow(sample, 0)
	}
	f.norm = averagePathLength(float64(sampleSize))

	scores := f.scores(data)
	f.threshold = quantile(scores, 1-f.contamination)

	return nil
}

func (f *IsolationForest) grow(data [][]float64, depth int) *node {
	n := len(data)
	if depth >= f.maxDepth || n <= 1 {
		return &node{size: n}
	}

	feature := f.rng.Intn(f.nFeatures)
	lo, hi := data[0][feature], data[0][feature]
	for _, row := range data[1:] {
		lo = math.Min(lo, row[feature])
		hi = math.Max(hi, row[feature])
	}
	if lo == hi {
		return &node{size: n}
	}

	split := lo + f.rng.Float64()*(hi-lo)
	var left, right [][]float64
	for _, row := range data {
		if row[feature] < split {
			left = append(left, row)
		} else {
			right = append(right, row)
		}
	}

	return &node{
		feature: feature,
		split:   split,
		left:    f.grow(left, depth+1),
		right:   f.grow(right, depth+1),
	}
}

// Scores returns anomaly scores in (0, 1]; higher is more anomalous.
func (f *IsolationForest) Scores(data [][]float64) ([]float64, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.trees == nil {
		return nil, errors.New("model not trained")
	}
	for i, row := range data {
		if len(row) != f.nFeatures {
			return nil, fmt.Errorf("row %d has %d features, want %d: %w", i, len(row), f.nFeatures, events.ErrShape)
		}
	}
	return f.scores(data), nil
}

// Labels returns 1 for samples scoring at or above the fitted threshold and 0 otherwise.
func (f *IsolationForest) Labels(data [][]float64) ([]float64, error) {
	scores, err := f.Scores(data)
	if err != nil {
		return nil, err
	}

	threshold := f.Threshold()
	labels := make([]float64, len(scores))
	for i, s := range scores {
		if s >= threshold {
			labels[i] = 1
		}
	}
	return labels, nil
}

// Threshold returns the fitted anomaly threshold.
func (f *IsolationForest) Threshold() float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.threshold
}

func (f *IsolationForest) scores(data [][]float64) []float64 {
	out := make([]float64, len(data))
	for i, sample := range data {
		var total float64
		for _, tree := range f.trees {
			total += pathLength(sample, tree, 0)
		}
		avg := total / float64(len(f.trees))
		if f.norm == 0 {
			// A single-sample forest cannot separate anything.
			out[i] = 1
			continue
		}
		out[i] = math.Pow(2, -avg/f.norm)
	}
	return out
}

// pathLength returns the depth at which sample reaches a leaf, adjusted for the
// expected remaining depth of the leaf's unsplit samples.
func pathLength(sample []float64, n *node, depth int) float64 {
	if n.left == nil && n.right == nil {
		return float64(depth) + averagePathLength(float64(n.size))
	}
	if sample[n.feature] < n.split {
		return pathLength(sample, n.left, depth+1)
	}
	return pathLength(sample, n.right, depth+1)
}

// averagePathLength is c(n), the mean unsuccessful-search depth of a BST with n nodes.
func averagePathLength(n float64) float64 {
	if n <= 1 {
		return 0
	}
	return 2*(math.Log(n-1)+eulerGamma) - 2*(n-1)/n
}

// quantile returns the q-quantile of data by nearest-rank on a sorted copy.
func quantile(data []float64, q float64) float64 {
	if len(data) == 0 {
		return 0
	}
	sorted := slices.Clone(data)
	slices.Sort(sorted)
	return sorted[int(float64(len(sorted)-1)*q)]
}
