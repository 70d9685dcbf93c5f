// Package capture coordinates a capture stream: it owns the frame pool, the
// stream state and the output slots, runs the transfer source, and turns
// completed raw frames into converted images on demand.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/smazurov/stkcam/internal/bayer"
	"github.com/smazurov/stkcam/internal/events"
	"github.com/smazurov/stkcam/internal/framepool"
	"github.com/smazurov/stkcam/internal/logging"
	"github.com/smazurov/stkcam/internal/reassembly"
)

// DefaultStatsInterval is how often counters are logged and published.
const DefaultStatsInterval = time.Second

// Source delivers transfer completions for a sensor frame size until ctx
// ends. A nil return means the source has nothing more to deliver.
type Source interface {
	Run(ctx context.Context, sensor bayer.Size, sink reassembly.Sink) error
}

// Options configure an Orchestrator.
type Options struct {
	PoolSize      int
	Slots         int
	Sensor        bayer.Sensor
	Source        Source // nil: transfers are fed through Producer
	Events        *events.Bus
	StatsInterval time.Duration // negative disables the stats loop
	Logger        *slog.Logger
}

// CountersSnapshot is a copy of the stream counters.
type CountersSnapshot = reassembly.CounterSnapshot

// Status summarises the orchestrator for control surfaces.
type Status struct {
	Running   bool
	SessionID string
	Params    Params
	Counters  CountersSnapshot
	Err       error
}

// Orchestrator runs one capture stream at a time.
type Orchestrator struct {
	opts   Options
	logger *slog.Logger

	ctlMu  sync.Mutex // serialises Start, Stop and Configure
	mu     sync.Mutex
	params Params
	pool   *framepool.Pool
	run    *session

	slots    *slotRing
	counters reassembly.Counters
	pullMu   sync.Mutex

	converting func() // test hook, runs while a frame is held for reading
}

type session struct {
	id       string
	params   Params
	geometry bayer.Geometry
	state    *StreamState
	pool     *framepool.Pool
	producer *reassembly.Reassembler
	seq      atomic.Uint64
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// New creates an idle orchestrator with default parameters.
func New(opts Options) *Orchestrator {
	if opts.PoolSize == 0 {
		opts.PoolSize = framepool.DefaultCount
	}
	if opts.Slots < 2 {
		opts.Slots = DefaultSlots
	}
	if opts.StatsInterval == 0 {
		opts.StatsInterval = DefaultStatsInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.GetLogger("capture")
	}

	params := DefaultParams()
	params.Sensor = opts.Sensor
	if opts.Sensor == bayer.SensorSXGA {
		params = ParamsForSize(1280, 1024, opts.Sensor, bayer.RGB24)
	}

	return &Orchestrator{
		opts:   opts,
		logger: logger,
		params: params,
		slots:  newSlotRing(opts.Slots),
	}
}

// Start allocates or resets the pool, clears the counters and begins
// receiving transfers with p.
func (o *Orchestrator) Start(ctx context.Context, p Params) error {
	o.ctlMu.Lock()
	defer o.ctlMu.Unlock()
	return o.start(ctx, p)
}

func (o *Orchestrator) start(ctx context.Context, p Params) error {
	p = p.Normalize()
	p.Sensor = o.opts.Sensor
	if err := p.Validate(o.opts.Sensor); err != nil {
		return newError(ErrCodeInvalidParams, "cannot start stream", err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.run != nil {
		return newError(ErrCodeStreaming, "stream already running", ErrStreaming)
	}

	if o.pool == nil {
		pool, err := framepool.New(o.opts.PoolSize, bayer.MaxSensorSize.Pixels())
		if err != nil {
			return newError(ErrCodeInvalidParams, "cannot allocate frame pool", fmt.Errorf("%w: %w", ErrInvalidParams, err))
		}
		o.pool = pool
	} else {
		o.pool.Reset()
	}
	o.slots.resize(p.View)
	o.counters.Reset()
	o.params = p

	state := newStreamState()
	run := &session{
		id:       uuid.NewString(),
		params:   p,
		geometry: p.Geometry(),
		state:    state,
		pool:     o.pool,
		producer: reassembly.New(o.pool, p.FrameSize(), &o.counters, state),
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	run.cancel = cancel

	if o.opts.Source != nil {
		run.wg.Add(1)
		go o.runSource(runCtx, run)
	}
	if o.opts.StatsInterval > 0 {
		run.wg.Add(1)
		go o.statsLoop(runCtx, run)
	}
	o.run = run

	o.logger.Info("Capture started",
		"session", run.id,
		"resolution", p.Resolution.String(),
		"view", p.View.String(),
		"format", p.Format.String(),
		"factor", p.Factor(),
		"pool", o.pool.Len())
	o.opts.Events.Publish(events.StreamStateChangedEvent{
		SessionID:  run.id,
		Running:    true,
		Resolution: p.Resolution.String(),
		Format:     p.Format.String(),
		Timestamp:  time.Now().Format(time.RFC3339),
	})
	return nil
}

// Stop ends the producer loop and wakes every waiting consumer with
// ErrStreamClosed.
func (o *Orchestrator) Stop() error {
	o.ctlMu.Lock()
	defer o.ctlMu.Unlock()
	return o.stop()
}

func (o *Orchestrator) stop() error {
	o.mu.Lock()
	run := o.run
	o.run = nil
	o.mu.Unlock()

	if run == nil {
		return newError(ErrCodeNotStreaming, "stream not running", ErrNotStreaming)
	}

	run.cancel()
	run.state.close()
	run.wg.Wait()
	// A pull may still be converting a frame of this session. The next Start
	// resets the pool, so the Read frame has to come back first.
	o.pullMu.Lock()
	o.pullMu.Unlock() //nolint:staticcheck // barrier

	counters := o.counters.Snapshot()
	o.logger.Info("Capture stopped",
		"session", run.id,
		"frames", run.seq.Load(),
		"published", counters.PublishedFrames,
		"dropped", counters.DroppedFrames,
		"dumped", counters.DumpedFrames,
		"isoc_errors", counters.IsocErrors)
	o.opts.Events.Publish(events.StreamStateChangedEvent{
		SessionID:  run.id,
		Running:    false,
		Resolution: run.params.Resolution.String(),
		Format:     run.params.Format.String(),
		Timestamp:  time.Now().Format(time.RFC3339),
	})
	return nil
}

// Configure replaces the stream parameters. It fails while streaming.
func (o *Orchestrator) Configure(p Params) error {
	o.ctlMu.Lock()
	defer o.ctlMu.Unlock()
	return o.configure(p)
}

func (o *Orchestrator) configure(p Params) error {
	p = p.Normalize()
	p.Sensor = o.opts.Sensor
	if err := p.Validate(o.opts.Sensor); err != nil {
		return newError(ErrCodeInvalidParams, "cannot configure stream", err)
	}

	o.mu.Lock()
	if o.run != nil {
		o.mu.Unlock()
		return newError(ErrCodeStreaming, "cannot configure a running stream", ErrStreaming)
	}
	o.params = p
	o.mu.Unlock()

	o.logger.Debug("Stream configured", "resolution", p.Resolution.String(), "view", p.View.String(), "format", p.Format.String())
	o.opts.Events.Publish(events.StreamConfiguredEvent{
		Resolution: p.Resolution.String(),
		View:       p.View.String(),
		Format:     p.Format.String(),
		HFlip:      p.HFlip,
		VFlip:      p.VFlip,
		Brightness: p.Brightness,
		Timestamp:  time.Now().Format(time.RFC3339),
	})
	return nil
}

// Reconfigure restarts a running stream with new parameters, or just
// configures an idle one.
func (o *Orchestrator) Reconfigure(ctx context.Context, p Params) error {
	o.ctlMu.Lock()
	defer o.ctlMu.Unlock()

	if !o.Running() {
		return o.configure(p)
	}
	// Validate first so a bad file does not leave the stream stopped.
	if err := p.Normalize().Validate(o.opts.Sensor); err != nil {
		return newError(ErrCodeInvalidParams, "cannot reconfigure stream", err)
	}
	if err := o.stop(); err != nil && !errors.Is(err, ErrNotStreaming) {
		return err
	}
	if err := o.configure(p); err != nil {
		return err
	}
	return o.start(ctx, o.Params())
}

// PullFrame waits for the next completed frame and converts it into slot.
// It returns the number of bytes written. Only one pull may be in progress.
func (o *Orchestrator) PullFrame(ctx context.Context, slot int) (int, error) {
	if !o.pullMu.TryLock() {
		return 0, newError(ErrCodeBusy, "frame pull already in progress", ErrBusy)
	}
	defer o.pullMu.Unlock()

	run := o.session()
	if run == nil {
		return 0, newError(ErrCodeNotStreaming, "stream not running", ErrNotStreaming)
	}
	dst, err := o.slots.bytes(slot)
	if err != nil {
		return 0, err
	}

	frame, err := run.state.waitFrame(ctx, run.pool)
	if err != nil {
		return 0, err
	}

	started := time.Now()
	if o.converting != nil {
		o.converting()
	}
	convErr := bayer.Convert(dst, frame.Data, run.geometry, run.params.Format)
	if err := run.pool.ReleaseRead(frame); err != nil {
		run.state.PoolFailed(err)
		return 0, newError(ErrCodeInternal, "cannot release frame", fmt.Errorf("%w: %w", ErrInternal, err))
	}
	if run.state.isClosed() {
		return 0, newError(ErrCodeClosed, "stream closed", ErrStreamClosed)
	}
	if convErr != nil {
		return 0, newError(ErrCodeInternal, "conversion failed", fmt.Errorf("%w: %w", ErrInternal, convErr))
	}

	view := run.params.View
	bayer.CorrectBrightness(dst, view.W, view.H, run.params.Brightness, run.params.Format)
	elapsed := time.Since(started)

	n := run.params.ImageSize()
	seq := run.seq.Add(1)
	o.slots.advance(slot)

	o.opts.Events.Publish(events.FrameCapturedEvent{
		SessionID: run.id,
		Seq:       seq,
		Slot:      slot,
		Bytes:     n,
		Format:    run.params.Format.String(),
		ConvertUS: elapsed.Microseconds(),
		Timestamp: started.Format(time.RFC3339Nano),
	})
	return n, nil
}

// PullNext pulls into the next unclaimed slot and returns that slot.
func (o *Orchestrator) PullNext(ctx context.Context) (slot, n int, err error) {
	slot, err = o.slots.peek()
	if err != nil {
		return -1, 0, err
	}
	n, err = o.PullFrame(ctx, slot)
	return slot, n, err
}

// PollReady reports whether PullFrame would return without blocking.
func (o *Orchestrator) PollReady() bool {
	run := o.session()
	if run == nil {
		return false
	}
	return run.state.ready(run.pool)
}

// Counters returns a copy of the stream counters.
func (o *Orchestrator) Counters() CountersSnapshot {
	return o.counters.Snapshot()
}

// Params returns the configured parameters.
func (o *Orchestrator) Params() Params {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.params
}

// Running reports whether a stream is active.
func (o *Orchestrator) Running() bool {
	return o.session() != nil
}

// Err returns the error a consumer would currently observe.
func (o *Orchestrator) Err() error {
	run := o.session()
	if run == nil {
		return nil
	}
	return run.state.Err()
}

// Status returns a summary for control surfaces.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	run := o.run
	st := Status{Running: run != nil, Params: o.params}
	o.mu.Unlock()

	st.Counters = o.counters.Snapshot()
	if run != nil {
		st.SessionID = run.id
		st.Err = run.state.Err()
	}
	return st
}

// Producer returns the transfer entry point of the running stream, or nil.
func (o *Orchestrator) Producer() *reassembly.Reassembler {
	run := o.session()
	if run == nil {
		return nil
	}
	return run.producer
}

// Slot returns the bytes of output slot i. The slice stays valid until the
// next Start with a larger view.
func (o *Orchestrator) Slot(i int) ([]byte, error) {
	return o.slots.bytes(i)
}

// Claim keeps PullNext from writing into slot i.
func (o *Orchestrator) Claim(i int) error {
	return o.slots.claim(i)
}

// Release returns slot i to the rotation.
func (o *Orchestrator) Release(i int) error {
	return o.slots.release(i)
}

// NextSlot returns the slot PullNext will write into.
func (o *Orchestrator) NextSlot() (int, error) {
	return o.slots.peek()
}

// SlotCount returns the number of output slots.
func (o *Orchestrator) SlotCount() int {
	return len(o.slots.claimed)
}

func (o *Orchestrator) session() *session {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.run
}

func (o *Orchestrator) runSource(ctx context.Context, run *session) {
	defer run.wg.Done()

	err := o.opts.Source.Run(ctx, run.geometry.Sensor, run.producer)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		o.logger.Error("Transfer source failed", "session", run.id, "error", err)
		run.state.sourceEnded(newError(ErrCodeSourceEnded, "transfer source failed", fmt.Errorf("%w: %w", ErrSourceEnded, err)))
		return
	}
	o.logger.Info("Transfer source finished", "session", run.id)
	run.state.sourceEnded(newError(ErrCodeSourceEnded, "transfer source finished", ErrSourceEnded))
}
