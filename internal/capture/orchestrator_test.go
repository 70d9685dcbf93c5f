package capture

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/smazurov/stkcam/internal/bayer"
	"github.com/smazurov/stkcam/internal/reassembly"
)

func newTestOrchestrator(t *testing.T, opts Options) *Orchestrator {
	t.Helper()
	if opts.StatsInterval == 0 {
		opts.StatsInterval = -1
	}
	o := New(opts)
	t.Cleanup(func() {
		if o.Running() {
			_ = o.Stop()
		}
	})
	return o
}

func grey(n int, v byte) []byte {
	raw := make([]byte, n)
	for i := range raw {
		raw[i] = v
	}
	return raw
}

// frameTransfer splits raw into header+data packets followed by the end marker.
func frameTransfer(raw []byte, chunks int) reassembly.Transfer {
	var packets []reassembly.Packet
	step := (len(raw) + chunks - 1) / chunks
	for off := 0; off < len(raw); off += step {
		end := min(off+step, len(raw))
		data := append([]byte{0x80, byte(len(packets)), 0, 0, 0, 0, 0, 0}, raw[off:end]...)
		packets = append(packets, reassembly.Packet{Data: data})
	}
	packets = append(packets, reassembly.Packet{Data: []byte{0, 0, 0, 0}})
	return reassembly.Transfer{Packets: packets}
}

func TestPullFrameVGAScenario(t *testing.T) {
	o := newTestOrchestrator(t, Options{PoolSize: 3})
	p := DefaultParams()
	if err := o.Start(context.Background(), p); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	raw := grey(640*480, 120)
	o.Producer().OnTransferComplete(frameTransfer(raw, 2))

	counters := o.Counters()
	if counters.PublishedFrames != 1 || counters.DroppedFrames != 0 {
		t.Fatalf("Expected one publish and no drops, got %+v", counters)
	}

	n, err := o.PullFrame(context.Background(), 0)
	if err != nil {
		t.Fatalf("PullFrame failed: %v", err)
	}
	if n != 640*480*3 {
		t.Errorf("Expected %d bytes, got %d", 640*480*3, n)
	}

	img, err := o.Slot(0)
	if err != nil {
		t.Fatalf("Slot failed: %v", err)
	}
	img = img[:n]
	stride := 640 * 3
	for x := 0; x < stride; x++ {
		if img[x] != 0 || img[479*stride+x] != 0 {
			t.Fatalf("Expected zero top/bottom border at byte %d", x)
		}
	}
	for y := 0; y < 480; y++ {
		for c := 0; c < 3; c++ {
			if img[y*stride+c] != 0 || img[y*stride+639*3+c] != 0 {
				t.Fatalf("Expected zero left/right border on row %d", y)
			}
		}
	}
	if img[240*stride+320*3] != 120 {
		t.Errorf("Expected interior value 120, got %d", img[240*stride+320*3])
	}
}

func TestPullFrameAppliesBrightness(t *testing.T) {
	o := newTestOrchestrator(t, Options{})
	p := ParamsForSize(80, 60, bayer.SensorVGA, bayer.YUYV)
	p.Brightness = 0
	if err := o.Start(context.Background(), p); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	o.Producer().OnTransferComplete(frameTransfer(grey(640*480, 200), 4))

	n, err := o.PullFrame(context.Background(), 1)
	if err != nil {
		t.Fatalf("PullFrame failed: %v", err)
	}
	if n != 80*60*2 {
		t.Errorf("Expected %d bytes, got %d", 80*60*2, n)
	}
	img, _ := o.Slot(1)
	// Border luma 16 darkened by 127 saturates at zero, chroma stays 128.
	if img[0] != 0 || img[1] != 128 {
		t.Errorf("Expected darkened border (0,128), got (%d,%d)", img[0], img[1])
	}
}

func TestPullFrameInterrupted(t *testing.T) {
	o := newTestOrchestrator(t, Options{})
	if err := o.Start(context.Background(), DefaultParams()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := o.PullFrame(ctx, 0)
	if !errors.Is(err, ErrInterrupted) {
		t.Fatalf("Expected ErrInterrupted, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected the context error to be wrapped, got %v", err)
	}
	if Code(err) != ErrCodeInterrupted {
		t.Errorf("Expected code %s, got %q", ErrCodeInterrupted, Code(err))
	}
}

func TestStopWakesWaiter(t *testing.T) {
	o := newTestOrchestrator(t, Options{})
	if err := o.Start(context.Background(), DefaultParams()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	errCh := make(chan error, 1)
	go func() {
		_, err := o.PullFrame(context.Background(), 0)
		errCh <- err
	}()

	time.Sleep(50 * time.Millisecond)
	if err := o.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrStreamClosed) {
			t.Errorf("Expected ErrStreamClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Waiter was not woken by Stop")
	}
}

func TestConcurrentPullIsBusy(t *testing.T) {
	o := newTestOrchestrator(t, Options{})
	if err := o.Start(context.Background(), DefaultParams()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = o.PullFrame(ctx, 0)
	}()
	time.Sleep(50 * time.Millisecond)

	if _, err := o.PullFrame(context.Background(), 1); !errors.Is(err, ErrBusy) {
		t.Errorf("Expected ErrBusy, got %v", err)
	}
	cancel()
	<-done
}

func TestTransportErrorIsSticky(t *testing.T) {
	o := newTestOrchestrator(t, Options{})
	if err := o.Start(context.Background(), DefaultParams()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	producer := o.Producer()

	producer.OnTransferComplete(reassembly.Transfer{Status: reassembly.StatusStall})
	if !o.PollReady() {
		t.Error("Expected PollReady with a pending error")
	}
	if _, err := o.PullFrame(context.Background(), 0); !errors.Is(err, ErrTransport) {
		t.Fatalf("Expected ErrTransport, got %v", err)
	}
	if _, err := o.PullFrame(context.Background(), 0); !errors.Is(err, ErrTransport) {
		t.Fatalf("Expected ErrTransport to persist, got %v", err)
	}
	if got := o.Counters().IsocErrors; got != 1 {
		t.Errorf("Expected 1 isoc error, got %d", got)
	}

	producer.OnTransferComplete(frameTransfer(grey(640*480, 10), 3))
	if _, err := o.PullFrame(context.Background(), 0); err != nil {
		t.Fatalf("Expected recovery after a good transfer, got %v", err)
	}
}

func TestLifecycleErrors(t *testing.T) {
	o := newTestOrchestrator(t, Options{})

	if err := o.Stop(); !errors.Is(err, ErrNotStreaming) {
		t.Errorf("Expected ErrNotStreaming from idle Stop, got %v", err)
	}
	if _, err := o.PullFrame(context.Background(), 0); !errors.Is(err, ErrNotStreaming) {
		t.Errorf("Expected ErrNotStreaming from idle pull, got %v", err)
	}
	if o.PollReady() {
		t.Error("Expected idle orchestrator not ready")
	}

	if err := o.Start(context.Background(), DefaultParams()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := o.Start(context.Background(), DefaultParams()); !errors.Is(err, ErrStreaming) {
		t.Errorf("Expected ErrStreaming from second Start, got %v", err)
	}
	if err := o.Configure(DefaultParams()); !errors.Is(err, ErrStreaming) {
		t.Errorf("Expected ErrStreaming from Configure, got %v", err)
	}
	if Code(o.Configure(DefaultParams())) != ErrCodeStreaming {
		t.Error("Expected STREAMING code")
	}
}

func TestStartResetsCounters(t *testing.T) {
	o := newTestOrchestrator(t, Options{})
	if err := o.Start(context.Background(), DefaultParams()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	o.Producer().OnTransferComplete(reassembly.Transfer{Status: reassembly.StatusOverflow})
	o.Producer().OnTransferComplete(frameTransfer(grey(1000, 1), 1))
	if err := o.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if c := o.Counters(); c.IsocErrors != 1 || c.DroppedFrames != 1 {
		t.Errorf("Expected counters kept after stop, got %+v", c)
	}

	if err := o.Start(context.Background(), DefaultParams()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if c := o.Counters(); c != (CountersSnapshot{}) {
		t.Errorf("Expected zero counters after restart, got %+v", c)
	}
}

func TestReconfigureRestartsStream(t *testing.T) {
	o := newTestOrchestrator(t, Options{})
	if err := o.Start(context.Background(), DefaultParams()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	p := ParamsForSize(320, 240, bayer.SensorVGA, bayer.UYVY)
	if err := o.Reconfigure(context.Background(), p); err != nil {
		t.Fatalf("Reconfigure failed: %v", err)
	}
	if !o.Running() {
		t.Error("Expected stream running after reconfigure")
	}
	if got := o.Params(); got.Resolution != bayer.Res320x240 || got.Format != bayer.UYVY {
		t.Errorf("Expected 320x240 uyvy, got %s %s", got.Resolution, got.Format)
	}

	bad := p
	bad.Resolution = bayer.Res1280x1024
	if err := o.Reconfigure(context.Background(), bad); !errors.Is(err, ErrInvalidParams) {
		t.Errorf("Expected ErrInvalidParams, got %v", err)
	}
	if !o.Running() {
		t.Error("Expected a rejected reconfigure to leave the stream running")
	}
}

type oneFrameSource struct {
	value byte
}

func (s oneFrameSource) Run(_ context.Context, sensor bayer.Size, sink reassembly.Sink) error {
	sink.OnTransferComplete(frameTransfer(grey(sensor.Pixels(), s.value), 5))
	return nil
}

func TestSourceEndDrainsQueuedFrames(t *testing.T) {
	o := newTestOrchestrator(t, Options{Source: oneFrameSource{value: 77}})
	if err := o.Start(context.Background(), DefaultParams()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	slot, n, err := o.PullNext(ctx)
	if err != nil {
		t.Fatalf("Expected the queued frame, got %v", err)
	}
	img, _ := o.Slot(slot)
	if img[n/2+3*320] != 77 {
		t.Errorf("Expected pixel value 77, got %d", img[n/2+3*320])
	}

	if _, _, err := o.PullNext(ctx); !errors.Is(err, ErrSourceEnded) {
		t.Errorf("Expected ErrSourceEnded, got %v", err)
	}
}

func TestPullNextRotatesAndSkipsClaimed(t *testing.T) {
	o := newTestOrchestrator(t, Options{Slots: 3})
	p := ParamsForSize(80, 60, bayer.SensorVGA, bayer.RGB24)
	if err := o.Start(context.Background(), p); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if err := o.Claim(1); err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if err := o.Claim(1); !errors.Is(err, ErrInvalidSlot) {
		t.Errorf("Expected double claim to fail, got %v", err)
	}

	var got []int
	for i := 0; i < 3; i++ {
		o.Producer().OnTransferComplete(frameTransfer(grey(640*480, 9), 2))
		slot, _, err := o.PullNext(context.Background())
		if err != nil {
			t.Fatalf("PullNext failed: %v", err)
		}
		got = append(got, slot)
	}
	want := []int{0, 2, 0}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Expected slots %v, got %v", want, got)
		}
	}

	if err := o.Release(1); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if next, _ := o.NextSlot(); next != 1 {
		t.Errorf("Expected next slot 1 after release, got %d", next)
	}
	if _, err := o.Slot(3); !errors.Is(err, ErrInvalidSlot) {
		t.Errorf("Expected ErrInvalidSlot, got %v", err)
	}
}

func TestAllSlotsClaimed(t *testing.T) {
	o := newTestOrchestrator(t, Options{})
	if err := o.Start(context.Background(), DefaultParams()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	for i := 0; i < o.SlotCount(); i++ {
		if err := o.Claim(i); err != nil {
			t.Fatalf("Claim(%d) failed: %v", i, err)
		}
	}
	if _, _, err := o.PullNext(context.Background()); !errors.Is(err, ErrInvalidSlot) {
		t.Errorf("Expected ErrInvalidSlot, got %v", err)
	}
}

func TestStopWaitsForConvertingPull(t *testing.T) {
	o := newTestOrchestrator(t, Options{Sensor: bayer.SensorSXGA})
	p := ParamsForSize(1280, 1024, bayer.SensorSXGA, bayer.UYVY)
	if err := o.Start(context.Background(), p); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	entered := make(chan struct{})
	proceed := make(chan struct{})
	o.converting = func() {
		close(entered)
		<-proceed
	}

	raw := grey(1280*1024, 90)
	o.Producer().OnTransferComplete(frameTransfer(raw, 4))

	pullErr := make(chan error, 1)
	go func() {
		_, err := o.PullFrame(context.Background(), 0)
		pullErr <- err
	}()
	<-entered

	stopped := make(chan error, 1)
	go func() { stopped <- o.Stop() }()

	select {
	case <-stopped:
		t.Fatal("Expected Stop to wait for the converting pull")
	case <-time.After(50 * time.Millisecond):
	}

	o.converting = nil
	close(proceed)

	if err := <-stopped; err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := <-pullErr; !errors.Is(err, ErrStreamClosed) {
		t.Errorf("Expected ErrStreamClosed, got %v", err)
	}

	roles := o.pool.Snapshot()
	if roles.Read != -1 {
		t.Errorf("Expected no Read frame after stop, got %d", roles.Read)
	}

	if err := o.Start(context.Background(), p); err != nil {
		t.Fatalf("Restart failed: %v", err)
	}
	o.Producer().OnTransferComplete(frameTransfer(raw, 4))
	n, err := o.PullFrame(context.Background(), 0)
	if err != nil {
		t.Fatalf("PullFrame after restart failed: %v", err)
	}
	if n != p.ImageSize() {
		t.Errorf("Expected %d bytes, got %d", p.ImageSize(), n)
	}
}
