package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/smazurov/stkcam/internal/bayer"
	"github.com/smazurov/stkcam/internal/capture"
	"github.com/smazurov/stkcam/internal/framepool"
	"github.com/smazurov/stkcam/internal/logging"
	"github.com/smazurov/stkcam/internal/reassembly"
	"github.com/smazurov/stkcam/internal/tracelog"
	"github.com/spf13/cobra"
)

// ConvertOptions select how trace frames are converted.
type ConvertOptions struct {
	OutDir     string
	Resolution string
	View       string
	Format     string
	HFlip      bool
	VFlip      bool
	Brightness uint16
	MaxFrames  int // 0 converts every frame
}

// ConvertResult reports what a conversion produced.
type ConvertResult struct {
	Frames   []string
	Counters reassembly.CounterSnapshot
}

// quietObserver satisfies reassembly.Observer for an offline pipeline.
type quietObserver struct{}

func (quietObserver) FrameBoundary()     {}
func (quietObserver) TransferFailed(int) {}
func (quietObserver) TransferRecovered() {}
func (quietObserver) PoolFailed(error)   {}

// Params resolves the options against the sensor recorded in a trace.
func (o ConvertOptions) Params(sensor bayer.Size) (capture.Params, error) {
	family := bayer.SensorVGA
	switch {
	case sensor == bayer.Res720x576.Size():
		family = bayer.SensorPAL
	case sensor.W > bayer.Res640x480.Size().W:
		family = bayer.SensorSXGA
	}

	p := capture.DefaultParams()
	p.Sensor = family
	if o.Resolution != "" {
		res, err := bayer.ParseResolution(o.Resolution)
		if err != nil {
			return p, err
		}
		p.Resolution = res
		p.View = res.Size()
	}
	if o.View != "" {
		view, err := bayer.ParseSize(o.View)
		if err != nil {
			return p, err
		}
		p.View = view
	}
	if o.Format != "" {
		f, err := bayer.ParseFormat(o.Format)
		if err != nil {
			return p, err
		}
		p.Format = f
	}
	p.HFlip, p.VFlip = o.HFlip, o.VFlip
	if o.Brightness != 0 {
		p.Brightness = o.Brightness
	}

	p = p.Normalize()
	if err := p.Validate(family); err != nil {
		return p, err
	}
	if got := family.FrameSize(p.Resolution); got != sensor {
		return p, fmt.Errorf("resolution %s needs a %s sensor frame, trace has %s", p.Resolution, got, sensor)
	}
	return p, nil
}

// ConvertTrace reassembles every frame of a trace and writes each converted
// image to opts.OutDir. Frames are drained after every transfer, so none are
// dumped for backpressure.
func ConvertTrace(path string, opts ConvertOptions) (ConvertResult, error) {
	var res ConvertResult

	r, err := tracelog.Open(path)
	if err != nil {
		return res, err
	}
	defer r.Close()

	p, err := opts.Params(r.Header().Sensor)
	if err != nil {
		return res, err
	}
	if err := os.MkdirAll(opts.OutDir, 0755); err != nil {
		return res, fmt.Errorf("create output directory: %w", err)
	}

	pool, err := framepool.New(framepool.DefaultCount, p.FrameSize())
	if err != nil {
		return res, err
	}
	counters := &reassembly.Counters{}
	producer := reassembly.New(pool, p.FrameSize(), counters, quietObserver{})
	geometry := p.Geometry()
	img := make([]byte, p.ImageSize())

	done := func() bool { return opts.MaxFrames > 0 && len(res.Frames) >= opts.MaxFrames }
	for !done() {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return res, fmt.Errorf("read trace: %w", err)
		}
		producer.OnTransferComplete(rec.Transfer)

		for !done() {
			frame, ok := pool.TryAcquireRead()
			if !ok {
				break
			}
			convErr := bayer.Convert(img, frame.Data, geometry, p.Format)
			if err := pool.ReleaseRead(frame); err != nil {
				return res, err
			}
			if convErr != nil {
				return res, convErr
			}
			bayer.CorrectBrightness(img, p.View.W, p.View.H, p.Brightness, p.Format)

			name, err := writeImage(opts.OutDir, len(res.Frames), p, img)
			if err != nil {
				return res, err
			}
			res.Frames = append(res.Frames, name)
		}
	}
	res.Counters = counters.Snapshot()
	return res, nil
}

// writeImage stores RGB24 as binary PPM and every other layout raw.
func writeImage(dir string, index int, p capture.Params, img []byte) (string, error) {
	ext := "." + p.Format.String()
	if p.Format == bayer.RGB24 {
		ext = ".ppm"
	}
	name := filepath.Join(dir, fmt.Sprintf("frame-%05d%s", index, ext))

	f, err := os.Create(name)
	if err != nil {
		return "", err
	}
	w := bufio.NewWriter(f)
	if p.Format == bayer.RGB24 {
		fmt.Fprintf(w, "P6\n%d %d\n255\n", p.View.W, p.View.H)
	}
	if _, err := w.Write(img); err != nil {
		f.Close()
		return "", err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return "", err
	}
	return name, f.Close()
}

// CreateConvertCmd creates the convert command.
func CreateConvertCmd() *cobra.Command {
	var opts ConvertOptions

	cmd := &cobra.Command{
		Use:   "convert [trace]",
		Short: "Convert the frames of a trace to images",
		Long: `Runs a recorded trace through reassembly, demosaicing and brightness correction ` +
			`and writes one file per frame: PPM for rgb24, raw bytes for the other formats.`,
		Args: cobra.ExactArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			logger := logging.GetLogger("convert")
			res, err := ConvertTrace(args[0], opts)
			if err != nil {
				logger.Error("Conversion failed", "trace", args[0], "error", err)
				os.Exit(1)
			}
			logger.Info("Trace converted",
				"frames", len(res.Frames),
				"out", opts.OutDir,
				"dropped", res.Counters.DroppedFrames,
				"isoc_errors", res.Counters.IsocErrors)
		},
	}

	cmd.Flags().StringVarP(&opts.OutDir, "out", "o", "frames", "Output directory")
	cmd.Flags().StringVar(&opts.Resolution, "resolution", "640x480", "Resolution mode")
	cmd.Flags().StringVar(&opts.View, "view", "", "Output canvas, defaults to the mode size")
	cmd.Flags().StringVarP(&opts.Format, "format", "f", "rgb24", "Output pixel format")
	cmd.Flags().BoolVar(&opts.HFlip, "hflip", false, "Mirror horizontally")
	cmd.Flags().BoolVar(&opts.VFlip, "vflip", false, "Mirror vertically")
	cmd.Flags().Uint16Var(&opts.Brightness, "brightness", bayer.NeutralBrightness, "Brightness, 32767 is neutral")
	cmd.Flags().IntVarP(&opts.MaxFrames, "max", "n", 0, "Stop after this many frames")

	return cmd
}
