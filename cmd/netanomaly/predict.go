package main

import (
	"encoding/json"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hed1ad/netanomaly/internal/atomicfile"
	"github.com/hed1ad/netanomaly/pkg/detectors"
	"github.com/hed1ad/netanomaly/pkg/features"
	pkgio "github.com/hed1ad/netanomaly/pkg/io"
)

func (a *app) predictCommand() *cobra.Command {
	var (
		input        string
		output       string
		withFeatures bool
	)

	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Score event files with the persisted model",
		Long: `predict loads the model artifact, preprocesses the input directory with the
parameters stored in it and writes one JSON result per record.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			art, err := a.store().Load()
			if err != nil {
				return err
			}
			net, err := art.Network()
			if err != nil {
				return err
			}

			records, err := a.reader(input).Read()
			if err != nil {
				return err
			}
			frame, err := features.Preprocess(records, art.Params)
			if err != nil {
				return err
			}
			rows := frame.Matrix()
			scores, err := net.Predict(rows)
			if err != nil {
				return err
			}

			anomalies := 0
			write := func(w io.Writer) error {
				enc := json.NewEncoder(w)
				for i, score := range scores {
					res := pkgio.Result{
						Timestamp: *records[i].Timestamp,
						Protocol:  *records[i].Protocol,
						Score:     score,
						IsAnomaly: score >= detectors.Threshold,
					}
					if res.IsAnomaly {
						anomalies++
					}
					if withFeatures {
						res.Features = rows[i]
					}
					if err := enc.Encode(res); err != nil {
						return err
					}
				}
				return nil
			}

			if output == "" {
				err = write(cmd.OutOrStdout())
			} else {
				_, err = atomicfile.Write(output, 0o644, write)
			}
			if err != nil {
				return err
			}

			a.logger.Info("prediction complete",
				zap.String("model_id", art.ModelID),
				zap.Int("records", len(records)),
				zap.Int("anomalies", anomalies),
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&input, "input", "", "directory to score (default: the data directory)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write results to this file instead of stdout")
	cmd.Flags().BoolVar(&withFeatures, "features", false, "include the feature row in each result")

	return cmd
}
