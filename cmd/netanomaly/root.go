package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/hed1ad/netanomaly/pkg/artifact"
	"github.com/hed1ad/netanomaly/pkg/config"
	"github.com/hed1ad/netanomaly/pkg/detectors"
	"github.com/hed1ad/netanomaly/pkg/detectors/cnn"
	"github.com/hed1ad/netanomaly/pkg/history"
	"github.com/hed1ad/netanomaly/pkg/io/jsondir"
	"github.com/hed1ad/netanomaly/pkg/labels"
	"github.com/hed1ad/netanomaly/pkg/logging"
	"github.com/hed1ad/netanomaly/pkg/metrics"
	"github.com/hed1ad/netanomaly/pkg/pipeline"
)

// app carries state shared by all subcommands of one invocation.
type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     config.Config
	logger  *zap.Logger

	// binds maps config keys to flag names, per command.
	binds map[*cobra.Command]map[string]string
}

func newRootCommand() *cobra.Command {
	a := &app{
		v:      config.New(),
		logger: zap.NewNop(),
		binds:  make(map[*cobra.Command]map[string]string),
	}

	root := &cobra.Command{
		Use:   "netanomaly",
		Short: "Network anomaly classifier trainer",
		Long: `netanomaly loads network event records from a data directory, turns them
into a numeric feature frame and trains a 1-D convolutional classifier on it.
The watch command keeps retraining the persisted model as new data arrives.

Settings come from defaults, an optional YAML file (--config), NETANOMALY_*
environment variables and flags, in increasing order of precedence.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			_ = a.logger.Sync()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (YAML)")
	flags.String("data-dir", "", "directory of event files (default ./data)")
	flags.StringSlice("extensions", nil, "recognized event file extensions (default .json)")
	flags.String("model", "", "model artifact path (default ./model/netanomaly.model)")
	flags.String("log-level", "", "log level: debug, info, warn, error")
	flags.Bool("log-dev", false, "human-readable console logging")
	a.bind(root, "data.dir", "data-dir")
	a.bind(root, "data.extensions", "extensions")
	a.bind(root, "model.path", "model")
	a.bind(root, "log.level", "log-level")
	a.bind(root, "log.development", "log-dev")

	root.AddCommand(
		a.trainCommand(),
		a.watchCommand(),
		a.predictCommand(),
		a.preprocessCommand(),
		a.captureCommand(),
		a.generateCommand(),
	)

	return root
}

// bind records that flag overrides key when cmd runs.
func (a *app) bind(cmd *cobra.Command, key, flag string) {
	if a.binds[cmd] == nil {
		a.binds[cmd] = make(map[string]string)
	}
	a.binds[cmd][key] = flag
}

// setup binds the running command's flags, loads the configuration and builds
// the logger.
func (a *app) setup(cmd *cobra.Command) error {
	for c := cmd; c != nil; c = c.Parent() {
		for key, name := range a.binds[c] {
			if err := a.v.BindPFlag(key, cmd.Flags().Lookup(name)); err != nil {
				return fmt.Errorf("bind --%s: %w", name, err)
			}
		}
	}

	cfg, err := config.Load(a.v, a.cfgFile)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.logger = logger
	if f := a.v.ConfigFileUsed(); f != "" {
		a.logger.Debug("using config file", zap.String("path", f))
	}
	return nil
}

func (a *app) reader(dir string) *jsondir.Reader {
	if dir == "" {
		dir = a.cfg.Data.Dir
	}
	return jsondir.NewReader(dir, jsondir.WithExtensions(a.cfg.Data.Extensions...))
}

func (a *app) store() *artifact.Store {
	return artifact.NewStore(a.cfg.Model.Path)
}

func (a *app) labelSource() (labels.Source, error) {
	seed := a.cfg.Labels.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return labels.New(labels.Config{
		Source:        a.cfg.Labels.Source,
		Seed:          seed,
		Contamination: a.cfg.Labels.Contamination,
	})
}

// newTrainer builds a trainer from the configuration. The returned function
// releases the history backends.
func (a *app) newTrainer(ctx context.Context, m *metrics.Metrics) (*pipeline.Trainer, func(), error) {
	src, err := a.labelSource()
	if err != nil {
		return nil, nil, err
	}

	rec, err := history.Open(ctx, a.cfg.History.RedisURL, a.cfg.History.PostgresDSN)
	if err != nil {
		return nil, nil, err
	}

	t := pipeline.NewTrainer(a.reader(""), a.store(),
		pipeline.WithLabelSource(src),
		pipeline.WithLogger(a.logger),
		pipeline.WithMetrics(m),
		pipeline.WithHistory(rec),
		pipeline.WithNetworkOptions(cnn.WithSeed(a.cfg.Model.Seed)),
		pipeline.WithTrainConfig(detectors.FitConfig{
			Epochs:    a.cfg.Train.Epochs,
			BatchSize: a.cfg.Train.BatchSize,
			Shuffle:   true,
		}),
		pipeline.WithCycleConfig(detectors.FitConfig{
			Epochs:    a.cfg.Watch.Epochs,
			BatchSize: a.cfg.Train.BatchSize,
			Shuffle:   true,
		}),
	)

	closeFn := func() {
		if err := rec.Close(); err != nil {
			a.logger.Warn("failed to close history recorder", zap.Error(err))
		}
	}
	return t, closeFn, nil
}

// labelFlags adds the label-source flags shared by train and watch.
func (a *app) labelFlags(cmd *cobra.Command) {
	cmd.Flags().String("labels", "", "label source: random, field, iforest")
	cmd.Flags().Int64("label-seed", 0, "label source seed (0 picks one from the clock)")
	cmd.Flags().Float64("contamination", 0, "expected anomaly fraction for iforest labels (default 0.1)")
	cmd.Flags().Int64("seed", 0, "weight initialization seed (default 42)")
	a.bind(cmd, "labels.source", "labels")
	a.bind(cmd, "labels.seed", "label-seed")
	a.bind(cmd, "labels.contamination", "contamination")
	a.bind(cmd, "model.seed", "seed")
}
