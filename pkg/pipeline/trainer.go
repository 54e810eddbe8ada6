// Package pipeline wires loading, preprocessing, labelling, training and
// persistence into one-shot runs and the periodic watch loop.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hed1ad/netanomaly/internal/atomicfile"
	"github.com/hed1ad/netanomaly/pkg/artifact"
	"github.com/hed1ad/netanomaly/pkg/detectors"
	"github.com/hed1ad/netanomaly/pkg/detectors/cnn"
	"github.com/hed1ad/netanomaly/pkg/events"
	"github.com/hed1ad/netanomaly/pkg/features"
	"github.com/hed1ad/netanomaly/pkg/history"
	pkgio "github.com/hed1ad/netanomaly/pkg/io"
	"github.com/hed1ad/netanomaly/pkg/labels"
	"github.com/hed1ad/netanomaly/pkg/logging"
	"github.com/hed1ad/netanomaly/pkg/metrics"
)

// Run modes.
const (
	ModeTrain = "train"
	ModeCycle = "cycle"
)

// InputShape is the classifier input: one feature frame row as a 3-step,
// single-channel sequence.
var InputShape = cnn.Shape{Steps: len(features.Columns), Channels: 1}

// Result describes a completed run.
type Result struct {
	RunID    string
	Mode     string
	Artifact *artifact.Artifact
	Write    atomicfile.Result
	History  detectors.History
	Rows     int
	Duration time.Duration
}

// Trainer runs training passes against one data source and one artifact store.
type Trainer struct {
	reader   pkgio.Reader
	store    *artifact.Store
	labels   labels.Source
	logger   *zap.Logger
	metrics  *metrics.Metrics
	history  history.Recorder
	netOpts  []cnn.Option
	trainFit detectors.FitConfig
	cycleFit detectors.FitConfig
}

// Option configures a Trainer.
type Option func(*Trainer)

// WithLabelSource sets where training labels come from.
func WithLabelSource(src labels.Source) Option {
	return func(t *Trainer) {
		t.labels = src
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(t *Trainer) {
		t.logger = logging.OrNop(logger)
	}
}

// WithMetrics enables Prometheus reporting.
func WithMetrics(m *metrics.Metrics) Option {
	return func(t *Trainer) {
		t.metrics = m
	}
}

// WithHistory sets the run-history recorder.
func WithHistory(r history.Recorder) Option {
	return func(t *Trainer) {
		t.history = r
	}
}

// WithNetworkOptions passes options to every network built or loaded.
func WithNetworkOptions(opts ...cnn.Option) Option {
	return func(t *Trainer) {
		t.netOpts = append(t.netOpts, opts...)
	}
}

// WithTrainConfig sets the fit configuration for TrainOnce.
func WithTrainConfig(cfg detectors.FitConfig) Option {
	return func(t *Trainer) {
		t.trainFit = cfg
	}
}

// WithCycleConfig sets the fit configuration for Cycle.
func WithCycleConfig(cfg detectors.FitConfig) Option {
	return func(t *Trainer) {
		t.cycleFit = cfg
	}
}

// NewTrainer creates a trainer reading from reader and persisting to store.
// Defaults: random labels, 10 epochs for TrainOnce, 3 for Cycle, batch 32.
func NewTrainer(reader pkgio.Reader, store *artifact.Store, opts ...Option) *Trainer {
	cycle := detectors.DefaultFitConfig()
	cycle.Epochs = 3

	t := &Trainer{
		reader:   reader,
		store:    store,
		labels:   labels.NewRandom(time.Now().UnixNano()),
		logger:   zap.NewNop(),
		history:  history.Nop{},
		trainFit: detectors.DefaultFitConfig(),
		cycleFit: cycle,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// TrainOnce trains a fresh model on the current data and persists it,
// replacing any existing artifact.
func (t *Trainer) TrainOnce(ctx context.Context) (*Result, error) {
	return t.run(ctx, ModeTrain)
}

// Cycle continues training the persisted model on the current data, or starts
// a fresh one when no artifact exists yet.
func (t *Trainer) Cycle(ctx context.Context) (*Result, error) {
	return t.run(ctx, ModeCycle)
}

func (t *Trainer) run(ctx context.Context, mode string) (*Result, error) {
	start := time.Now()
	res, err := t.execute(ctx, mode)
	elapsed := time.Since(start)

	if err != nil {
		if t.metrics != nil {
			t.metrics.Failure(elapsed, events.Kind(err))
		}
		return nil, err
	}

	res.Duration = elapsed
	loss, acc := res.History.Last()
	if t.metrics != nil {
		t.metrics.Success(elapsed, res.Rows, loss, acc, res.Write.Size)
	}

	t.logger.Info("model updated",
		zap.String("mode", mode),
		zap.String("run_id", res.RunID),
		zap.String("model_id", res.Artifact.ModelID),
		zap.Int("revision", res.Artifact.Revision),
		zap.String("path", res.Write.Path),
		zap.Int("rows", res.Rows),
		zap.Float64("loss", loss),
		zap.Float64("accuracy", acc),
		zap.Duration("duration", elapsed),
	)

	if err := t.history.Record(ctx, t.summary(res)); err != nil {
		t.logger.Warn("failed to record training run", zap.String("run_id", res.RunID), zap.Error(err))
	}

	return res, nil
}

func (t *Trainer) execute(ctx context.Context, mode string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	records, err := t.reader.Read()
	if err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}
	t.logger.Debug("records loaded", zap.Int("rows", len(records)))

	fit := t.trainFit
	var art *artifact.Artifact
	if mode == ModeCycle {
		fit = t.cycleFit
		if art, err = t.acquire(); err != nil {
			return nil, err
		}
	}

	var params features.Params
	if art != nil {
		params, err = art.Params.Refit(records)
	} else {
		params, err = features.Fit(records)
	}
	if err != nil {
		return nil, fmt.Errorf("preprocess: %w", err)
	}

	frame, err := features.Preprocess(records, params)
	if err != nil {
		return nil, fmt.Errorf("preprocess: %w", err)
	}

	net, err := t.network(art)
	if err != nil {
		return nil, err
	}

	y, err := t.labels.Labels(records, frame)
	if err != nil {
		return nil, fmt.Errorf("labels (%s): %w", t.labels.Name(), err)
	}

	start := time.Now()
	hist, err := net.Fit(ctx, frame.Matrix(), y, fit)
	if err != nil {
		return nil, fmt.Errorf("train: %w", err)
	}
	loss, acc := hist.Last()

	training := artifact.Training{
		Rows:        frame.Len(),
		Epochs:      fit.Epochs,
		BatchSize:   fit.BatchSize,
		Loss:        loss,
		Accuracy:    acc,
		LabelSource: t.labels.Name(),
		Duration:    time.Since(start),
	}

	if art == nil {
		art, err = artifact.New(net, params, training)
	} else {
		err = art.Update(net, params, training)
	}
	if err != nil {
		return nil, fmt.Errorf("persist: %v: %w", err, events.ErrResource)
	}

	written, err := t.store.Save(art)
	if err != nil {
		return nil, fmt.Errorf("persist: %w", err)
	}

	return &Result{
		RunID:    uuid.NewString(),
		Mode:     mode,
		Artifact: art,
		Write:    written,
		History:  hist,
		Rows:     frame.Len(),
	}, nil
}

// acquire loads the persisted artifact, or returns nil when there is none.
func (t *Trainer) acquire() (*artifact.Artifact, error) {
	ok, err := t.store.Exists()
	if err != nil || !ok {
		return nil, err
	}

	art, err := t.store.Load()
	if err != nil {
		return nil, err
	}
	if art.Shape != InputShape {
		return nil, fmt.Errorf("artifact %s has input shape %s, batch needs %s: %w",
			t.store.Path(), art.Shape, InputShape, events.ErrShape)
	}

	t.logger.Debug("artifact loaded",
		zap.String("model_id", art.ModelID),
		zap.Int("revision", art.Revision),
		zap.Stringer("params", art.Params),
	)
	return art, nil
}

func (t *Trainer) network(art *artifact.Artifact) (*cnn.Network, error) {
	if art == nil {
		net, err := cnn.New(InputShape, t.netOpts...)
		if err != nil {
			return nil, fmt.Errorf("build model: %w", err)
		}
		return net, nil
	}

	net, err := art.Network(t.netOpts...)
	if err != nil {
		return nil, err
	}
	if net.InputShape() != InputShape {
		return nil, fmt.Errorf("model %s has input shape %s, batch needs %s: %w",
			art.ModelID, net.InputShape(), InputShape, events.ErrShape)
	}
	return net, nil
}

func (t *Trainer) summary(res *Result) history.Run {
	art := res.Artifact
	return history.Run{
		RunID:          res.RunID,
		ModelID:        art.ModelID,
		Revision:       art.Revision,
		Mode:           res.Mode,
		ArtifactPath:   res.Write.Path,
		ArtifactSHA256: res.Write.SHA256,
		ArtifactBytes:  res.Write.Size,
		Rows:           res.Rows,
		Epochs:         art.Training.Epochs,
		Loss:           art.Training.Loss,
		Accuracy:       art.Training.Accuracy,
		LabelSource:    art.Training.LabelSource,
		ParamsVersion:  art.Params.Version,
		Vocabulary:     append([]string(nil), art.Params.Vocabulary...),
		Duration:       res.Duration,
		FinishedAt:     time.Now().UTC(),
	}
}
