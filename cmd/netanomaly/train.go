package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hed1ad/netanomaly/pkg/metrics"
	"github.com/hed1ad/netanomaly/pkg/pipeline"
)

func (a *app) trainCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train a fresh model on the data directory and save it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			t, closeHistory, err := a.newTrainer(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer closeHistory()

			res, err := t.TrainOnce(cmd.Context())
			if err != nil {
				return err
			}

			loss, acc := res.History.Last()
			fmt.Fprintf(cmd.OutOrStdout(), "saved %s: model %s, %d rows, loss %.4f, accuracy %.3f\n",
				res.Write.Path, res.Artifact.ModelID, res.Rows, loss, acc)
			return nil
		},
	}

	cmd.Flags().Int("epochs", 0, "training epochs (default 10)")
	cmd.Flags().Int("batch-size", 0, "samples per gradient step (default 32)")
	a.bind(cmd, "train.epochs", "epochs")
	a.bind(cmd, "train.batch_size", "batch-size")
	a.labelFlags(cmd)

	return cmd
}

func (a *app) watchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Retrain the persisted model periodically until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			var m *metrics.Metrics
			if addr := a.cfg.Metrics.Addr; addr != "" {
				reg := prometheus.NewRegistry()
				reg.MustRegister(
					collectors.NewGoCollector(),
					collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
				)
				m = metrics.New(reg)
				go func() {
					if err := metrics.Serve(ctx, addr, reg, a.logger); err != nil {
						a.logger.Error("metrics server failed", zap.Error(err))
					}
				}()
			}

			t, closeHistory, err := a.newTrainer(ctx, m)
			if err != nil {
				return err
			}
			defer closeHistory()

			opts := []pipeline.WatcherOption{
				pipeline.WithInterval(a.cfg.Watch.Interval),
				pipeline.WithContinueOnError(a.cfg.Watch.ContinueOnError),
				pipeline.WithWatcherLogger(a.logger),
			}
			if a.cfg.Watch.WatchFiles {
				opts = append(opts, pipeline.WithFileTrigger(a.cfg.Data.Dir, a.reader("").Recognized))
			}

			err = pipeline.NewWatcher(t, opts...).Run(ctx)
			if errors.Is(err, context.Canceled) {
				a.logger.Info("shutting down")
				return nil
			}
			return err
		},
	}

	cmd.Flags().Duration("interval", 0, "time between cycles (default 60s)")
	cmd.Flags().Int("epochs", 0, "epochs per cycle (default 3)")
	cmd.Flags().Int("batch-size", 0, "samples per gradient step (default 32)")
	cmd.Flags().Bool("watch-files", false, "also retrain as soon as new data files appear")
	cmd.Flags().Bool("continue-on-error", false, "log failed cycles and keep running")
	cmd.Flags().String("metrics-addr", "", "serve /metrics and /health on this address")
	a.bind(cmd, "watch.interval", "interval")
	a.bind(cmd, "watch.epochs", "epochs")
	a.bind(cmd, "train.batch_size", "batch-size")
	a.bind(cmd, "watch.watch_files", "watch-files")
	a.bind(cmd, "watch.continue_on_error", "continue-on-error")
	a.bind(cmd, "metrics.addr", "metrics-addr")
	a.labelFlags(cmd)

	return cmd
}
