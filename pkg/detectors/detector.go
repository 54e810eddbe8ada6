// Package detectors provides anomaly classifiers and detectors.
package detectors

import "context"

// Classifier is the common interface for supervised anomaly classifiers.
type Classifier interface {
	// Fit trains the classifier on samples with binary labels.
	// data is a 2D slice where each row is a sample and each column is a feature.
	Fit(ctx context.Context, data [][]float64, labels []float64, cfg FitConfig) (History, error)

	// Predict returns anomaly probabilities for the given samples.
	// Probabilities lie strictly inside (0, 1).
	Predict(data [][]float64) ([]float64, error)

	// PredictOne returns the anomaly probability for a single sample.
	PredictOne(sample []float64) (float64, error)

	// Save serializes the trained model to bytes.
	Save() ([]byte, error)

	// Load deserializes a trained model from bytes.
	Load(data []byte) error
}

// StreamClassifier extends Classifier with streaming capabilities.
type StreamClassifier interface {
	Classifier

	// PredictStream processes samples from a channel and outputs scores.
	PredictStream(ctx context.Context, input <-chan []float64, output chan<- Score) error
}

// Score represents an anomaly classification result.
type Score struct {
	// Value is the anomaly probability in (0, 1).
	Value float64
	// IsAnomaly indicates if the score reaches the threshold.
	IsAnomaly bool
	// Features contains the original input features.
	Features []float64
}

// FitConfig controls a training run.
type FitConfig struct {
	// Epochs is the number of full passes over the data.
	Epochs int
	// BatchSize is the number of samples per gradient step.
	BatchSize int
	// Shuffle reorders samples before every epoch.
	Shuffle bool
}

// DefaultFitConfig returns the one-shot training defaults.
func DefaultFitConfig() FitConfig {
	return FitConfig{
		Epochs:    10,
		BatchSize: 32,
		Shuffle:   true,
	}
}

// History records per-epoch training metrics.
type History struct {
	Loss     []float64
	Accuracy []float64
}

// Last returns the metrics of the final epoch, or zeros for an empty history.
func (h History) Last() (loss, accuracy float64) {
	if len(h.Loss) == 0 {
		return 0, 0
	}
	return h.Loss[len(h.Loss)-1], h.Accuracy[len(h.Accuracy)-1]
}

// Threshold is the probability at or above which a sample is labelled anomalous.
const Threshold = 0.5
