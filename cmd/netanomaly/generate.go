package main

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hed1ad/netanomaly/internal/synth"
	"github.com/hed1ad/netanomaly/pkg/config"
	pkgio "github.com/hed1ad/netanomaly/pkg/io"
	"github.com/hed1ad/netanomaly/pkg/io/jsondir"
)

func (a *app) generateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write synthetic event files into the data directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			g := a.cfg.Generate
			seed := g.Seed
			if seed == 0 {
				seed = time.Now().UnixNano()
			}
			gen := synth.New(synth.WithSeed(seed), synth.WithAnomalyRate(g.AnomalyRate))

			w, err := jsondir.NewWriter(a.cfg.Data.Dir,
				jsondir.WithPrefix(g.Prefix),
				jsondir.WithBatchSize(g.Records),
			)
			if err != nil {
				return err
			}

			err = runGenerate(cmd.Context(), gen, w, g, a.logger)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().Duration("interval", 0, "time between files (default 5s)")
	cmd.Flags().Int("records", 0, "records per file (default 50)")
	cmd.Flags().Int("files", 0, "stop after this many files (default: run until interrupted)")
	cmd.Flags().Int64("seed", 0, "random seed (0 picks one from the clock)")
	cmd.Flags().String("prefix", "", "file name prefix (default events)")
	cmd.Flags().Float64("anomaly-rate", 0, "fraction of anomalous records (default 0.02)")
	a.bind(cmd, "generate.interval", "interval")
	a.bind(cmd, "generate.records", "records")
	a.bind(cmd, "generate.files", "files")
	a.bind(cmd, "generate.seed", "seed")
	a.bind(cmd, "generate.prefix", "prefix")
	a.bind(cmd, "generate.anomaly_rate", "anomaly-rate")

	return cmd
}

// runGenerate writes one file immediately and then one per interval, until
// cfg.Files files exist or ctx is cancelled.
func runGenerate(ctx context.Context, gen *synth.Generator, w pkgio.Writer, cfg config.GenerateConfig, logger *zap.Logger) error {
	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for n := 0; cfg.Files <= 0 || n < cfg.Files; n++ {
		if n > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		}

		for _, rec := range gen.Records(cfg.Records, time.Now()) {
			if err := w.Write(rec); err != nil {
				return err
			}
		}
		if err := w.Flush(); err != nil {
			return err
		}
		logger.Debug("generated event file", zap.Int("records", cfg.Records), zap.Int("file", n+1))
	}
	return nil
}
