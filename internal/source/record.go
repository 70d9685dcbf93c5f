package source

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/smazurov/stkcam/internal/bayer"
	"github.com/smazurov/stkcam/internal/reassembly"
	"github.com/smazurov/stkcam/internal/tracelog"
)

// Runner is anything that delivers transfers to a sink, such as Synthetic
// or Replay.
type Runner interface {
	Run(ctx context.Context, sensor bayer.Size, sink reassembly.Sink) error
}

// Recording tees every transfer of Inner into a trace at Path. Each run
// truncates the file, so a trace always holds the latest session.
type Recording struct {
	Inner  Runner
	Path   string
	Name   string // stored in the trace header
	Logger *slog.Logger
}

// Run implements capture.Source.
func (r *Recording) Run(ctx context.Context, sensor bayer.Size, sink reassembly.Sink) error {
	w, err := tracelog.Create(r.Path, tracelog.Header{Sensor: sensor, Source: r.Name})
	if err != nil {
		return fmt.Errorf("create trace: %w", err)
	}

	runErr := r.Inner.Run(ctx, sensor, tracelog.NewTee(sink, w, r.Logger))
	if err := w.Close(); err != nil && runErr == nil {
		runErr = fmt.Errorf("close trace: %w", err)
	}
	if r.Logger != nil {
		r.Logger.Info("Trace written", "path", r.Path, "transfers", w.Count())
	}
	return runErr
}
