package main

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	pkgio "github.com/hed1ad/netanomaly/pkg/io"
	"github.com/hed1ad/netanomaly/pkg/io/jsondir"
	"github.com/hed1ad/netanomaly/pkg/io/pcap"
)

func (a *app) captureCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Write captured packets into the data directory as event files",
		Long: `capture reads packets from a live interface (--interface, usually needs root)
or a pcap file (--file) and writes them as event record batches into the data
directory, where train and watch pick them up.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := a.cfg.Capture

			var (
				r   *pcap.Reader
				err error
			)
			switch {
			case c.File != "":
				r, err = pcap.NewFileReader(c.File, c.Filter)
			case c.Interface != "":
				live := pcap.DefaultLiveConfig()
				live.Snaplen = int32(c.Snaplen)
				live.Promiscuous = c.Promiscuous
				live.Filter = c.Filter
				r, err = pcap.NewLiveReader(c.Interface, live)
			default:
				return errors.New("capture: --interface or --file is required")
			}
			if err != nil {
				return err
			}
			defer r.Close()

			w, err := jsondir.NewWriter(a.cfg.Data.Dir,
				jsondir.WithPrefix(c.Prefix),
				jsondir.WithBatchSize(c.BatchSize),
			)
			if err != nil {
				return err
			}

			a.logger.Info("capture started",
				zap.String("interface", c.Interface),
				zap.String("file", c.File),
				zap.String("filter", c.Filter),
				zap.String("data_dir", a.cfg.Data.Dir),
			)
			n, err := runCapture(cmd.Context(), r, w, c.FlushInterval)
			a.logger.Info("capture stopped", zap.Int("records", n), zap.Int("files", len(w.Files())))
			return err
		},
	}

	cmd.Flags().StringP("interface", "i", "", "network interface to capture on")
	cmd.Flags().String("file", "", "pcap file to read instead of a live interface")
	cmd.Flags().String("filter", "", "BPF filter (default \"tcp or udp\")")
	cmd.Flags().Int("snaplen", 0, "bytes captured per packet (default 65535)")
	cmd.Flags().Bool("promisc", false, "put the interface in promiscuous mode")
	cmd.Flags().Int("batch-size", 0, "records per written file (default 100)")
	cmd.Flags().Duration("flush-interval", 0, "write a partial batch after this long (default 5s)")
	cmd.Flags().String("prefix", "", "file name prefix (default packets)")
	a.bind(cmd, "capture.interface", "interface")
	a.bind(cmd, "capture.file", "file")
	a.bind(cmd, "capture.filter", "filter")
	a.bind(cmd, "capture.snaplen", "snaplen")
	a.bind(cmd, "capture.promiscuous", "promisc")
	a.bind(cmd, "capture.batch_size", "batch-size")
	a.bind(cmd, "capture.flush_interval", "flush-interval")
	a.bind(cmd, "capture.prefix", "prefix")

	return cmd
}

// runCapture copies records from src into w until the stream ends, flushing
// partial batches every flushEvery. It returns the number of records copied.
func runCapture(ctx context.Context, src pkgio.StreamReader, w pkgio.Writer, flushEvery time.Duration) (int, error) {
	ch, err := src.Stream(ctx)
	if err != nil {
		return 0, err
	}

	ticker := time.NewTicker(flushEvery)
	defer ticker.Stop()

	n := 0
	for {
		select {
		case rec, ok := <-ch:
			if !ok {
				return n, w.Close()
			}
			if err := w.Write(rec); err != nil {
				return n, err
			}
			n++
		case <-ticker.C:
			if err := w.Flush(); err != nil {
				return n, err
			}
		}
	}
}
