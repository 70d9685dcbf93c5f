package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/smazurov/stkcam/internal/bayer"
	"github.com/smazurov/stkcam/internal/reassembly"
	"github.com/smazurov/stkcam/internal/tracelog"
)

// ErrSensorMismatch is returned when a trace was recorded for another sensor
// frame size than the stream expects.
var ErrSensorMismatch = errors.New("trace sensor size does not match stream")

// ErrEmptyTrace is returned when a looping replay finds no transfers to play.
var ErrEmptyTrace = errors.New("trace holds no transfers")

// Replay plays back a recorded trace.
type Replay struct {
	Path string
	// Pace reproduces the recorded inter-transfer timing.
	Pace bool
	// Loop restarts from the beginning at the end of the trace.
	Loop bool
}

// NewReplay creates a replay source for path.
func NewReplay(path string, pace, loop bool) *Replay {
	return &Replay{Path: path, Pace: pace, Loop: loop}
}

// Run implements capture.Source.
func (r *Replay) Run(ctx context.Context, sensor bayer.Size, sink reassembly.Sink) error {
	for {
		n, err := r.playOnce(ctx, sensor, sink)
		if err != nil {
			return err
		}
		if !r.Loop || ctx.Err() != nil {
			return nil
		}
		if n == 0 {
			return fmt.Errorf("%w: %s", ErrEmptyTrace, r.Path)
		}
	}
}

// playOnce delivers the trace once and returns how many transfers it played.
func (r *Replay) playOnce(ctx context.Context, sensor bayer.Size, sink reassembly.Sink) (int, error) {
	tr, err := tracelog.Open(r.Path)
	if err != nil {
		return 0, err
	}
	defer tr.Close()

	if got := tr.Header().Sensor; got != sensor {
		return 0, fmt.Errorf("%w: trace %s, stream %s", ErrSensorMismatch, got, sensor)
	}

	var prev time.Time
	played := 0
	for {
		if ctx.Err() != nil {
			return played, nil
		}
		rec, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return played, nil
		}
		if err != nil {
			return played, err
		}

		if r.Pace && !prev.IsZero() {
			if gap := rec.Time.Sub(prev); gap > 0 {
				timer := time.NewTimer(gap)
				select {
				case <-ctx.Done():
					timer.Stop()
					return played, nil
				case <-timer.C:
				}
			}
		}
		prev = rec.Time
		sink.OnTransferComplete(rec.Transfer)
		played++
	}
}
