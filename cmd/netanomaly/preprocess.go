package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/hed1ad/netanomaly/internal/atomicfile"
	"github.com/hed1ad/netanomaly/pkg/features"
)

type paramsJSON struct {
	Version    int      `json:"version"`
	LengthMin  float64  `json:"length_min"`
	LengthMax  float64  `json:"length_max"`
	Vocabulary []string `json:"vocabulary"`
}

type frameJSON struct {
	Columns []string    `json:"columns"`
	Params  paramsJSON  `json:"params"`
	Rows    [][]float64 `json:"rows"`
}

func (a *app) preprocessCommand() *cobra.Command {
	var (
		input    string
		output   string
		useModel bool
	)

	cmd := &cobra.Command{
		Use:   "preprocess",
		Short: "Print the feature frame for the data directory as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			records, err := a.reader(input).Read()
			if err != nil {
				return err
			}

			var frame *features.Frame
			if useModel {
				art, err := a.store().Load()
				if err != nil {
					return err
				}
				frame, err = features.Preprocess(records, art.Params)
				if err != nil {
					return err
				}
			} else {
				frame, err = features.FitTransform(records)
				if err != nil {
					return err
				}
			}

			doc := frameJSON{
				Columns: features.Columns,
				Params: paramsJSON{
					Version:    frame.Params.Version,
					LengthMin:  frame.Params.LengthMin,
					LengthMax:  frame.Params.LengthMax,
					Vocabulary: frame.Params.Vocabulary,
				},
				Rows: frame.Matrix(),
			}
			data, err := json.MarshalIndent(doc, "", "  ")
			if err != nil {
				return err
			}
			data = append(data, '\n')

			if output != "" {
				_, err = atomicfile.WriteBytes(output, data, 0o644)
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	cmd.Flags().StringVar(&input, "input", "", "directory to preprocess (default: the data directory)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the frame to this file instead of stdout")
	cmd.Flags().BoolVar(&useModel, "use-model", false, "use the parameters stored in the model artifact")

	return cmd
}
