// Package cmd holds the stkcam subcommands that work on transfer traces.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/smazurov/stkcam/internal/bayer"
	"github.com/smazurov/stkcam/internal/logging"
	"github.com/smazurov/stkcam/internal/reassembly"
	"github.com/smazurov/stkcam/internal/source"
	"github.com/smazurov/stkcam/internal/tracelog"
	"github.com/smazurov/stkcam/internal/version"
	"github.com/spf13/cobra"
)

// RecordOptions configure a synthetic trace recording.
type RecordOptions struct {
	Out               string
	Frames            int
	Resolution        string
	Sensor            string
	PacketSize        int
	PacketErrorRate   float64
	TransferErrorRate float64
	Seed              uint64
}

// discard drops transfers once the tee has recorded them.
type discard struct{}

func (discard) OnTransferComplete(reassembly.Transfer) {}

// Record renders synthetic frames for the sensor size behind the resolution
// and writes their transfers to opts.Out. It returns the transfer count.
func Record(ctx context.Context, opts RecordOptions) (int, error) {
	sensor, err := bayer.ParseSensor(opts.Sensor)
	if err != nil {
		return 0, err
	}
	res, err := bayer.ParseResolution(opts.Resolution)
	if err != nil {
		return 0, err
	}
	if !sensor.Supports(res) {
		return 0, fmt.Errorf("resolution %s not supported by %s sensor", res, sensor)
	}
	if opts.Frames <= 0 {
		return 0, fmt.Errorf("frames must be positive, got %d", opts.Frames)
	}

	size := sensor.FrameSize(res)
	w, err := tracelog.Create(opts.Out, tracelog.Header{
		Sensor: size,
		Source: "synthetic " + version.Agent(),
	})
	if err != nil {
		return 0, fmt.Errorf("create trace: %w", err)
	}

	src := source.NewSynthetic(source.SyntheticOptions{
		Frames:            opts.Frames,
		PacketSize:        opts.PacketSize,
		PacketErrorRate:   opts.PacketErrorRate,
		TransferErrorRate: opts.TransferErrorRate,
		Seed:              opts.Seed,
	})
	runErr := src.Run(ctx, size, tracelog.NewTee(discard{}, w, logging.GetLogger("record")))
	count := w.Count()
	if err := w.Close(); err != nil && runErr == nil {
		runErr = fmt.Errorf("close trace: %w", err)
	}
	return count, runErr
}

// CreateRecordCmd creates the record command.
func CreateRecordCmd() *cobra.Command {
	var opts RecordOptions

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record a synthetic transfer trace",
		Long: `Renders moving colour bars as a bayer mosaic, packetises them like the camera does ` +
			`and writes the transfer completions to a trace that serve --replay and convert can read.`,
		Args: cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			logger := logging.GetLogger("record")
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			n, err := Record(ctx, opts)
			if err != nil {
				logger.Error("Recording failed", "error", err)
				os.Exit(1)
			}
			logger.Info("Trace recorded", "path", opts.Out, "transfers", n, "frames", opts.Frames)
		},
	}

	cmd.Flags().StringVarP(&opts.Out, "out", "o", "trace.stk", "Trace file to write")
	cmd.Flags().IntVarP(&opts.Frames, "frames", "n", 30, "Number of frames to render")
	cmd.Flags().StringVar(&opts.Resolution, "resolution", "640x480", "Mode whose sensor size is recorded")
	cmd.Flags().StringVar(&opts.Sensor, "sensor", "vga", "Sensor family (vga, sxga or pal)")
	cmd.Flags().IntVar(&opts.PacketSize, "packet-size", source.DefaultPacketSize, "Bytes per packet, header included")
	cmd.Flags().Float64Var(&opts.PacketErrorRate, "packet-error-rate", 0, "Probability a packet completes with an error")
	cmd.Flags().Float64Var(&opts.TransferErrorRate, "transfer-error-rate", 0, "Probability a whole transfer fails")
	cmd.Flags().Uint64Var(&opts.Seed, "seed", 1, "Random seed for error injection")

	return cmd
}
