package systemd

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/smazurov/stkcam/internal/events"
)

type recorder struct {
	mu     sync.Mutex
	states []string
}

func (r *recorder) notify(state string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, state)
	return true, nil
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.states...)
}

func newTestNotifier(r *recorder, interval time.Duration) *Notifier {
	return &Notifier{
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		notify:   r.notify,
		watchdog: func() (time.Duration, error) { return interval, nil },
	}
}

func TestReadyAndStopping(t *testing.T) {
	r := &recorder{}
	n := newTestNotifier(r, 0)
	n.Ready()
	n.Stopping()

	got := r.snapshot()
	if len(got) != 2 || got[0] != daemon.SdNotifyReady || got[1] != daemon.SdNotifyStopping {
		t.Errorf("Expected READY then STOPPING, got %v", got)
	}
}

func TestStatusLine(t *testing.T) {
	tests := []struct {
		event events.StreamStateChangedEvent
		want  string
	}{
		{events.StreamStateChangedEvent{Running: false}, "idle"},
		{events.StreamStateChangedEvent{Running: true, Resolution: "640x480", Format: "rgb24"}, "capturing 640x480 rgb24"},
	}
	for _, tt := range tests {
		if got := statusLine(tt.event); got != tt.want {
			t.Errorf("Expected %q, got %q", tt.want, got)
		}
	}
}

func TestFollowPublishesStatus(t *testing.T) {
	r := &recorder{}
	n := newTestNotifier(r, 0)
	bus := events.New()
	n.Follow(bus)
	defer n.Unfollow()

	bus.Publish(events.StreamStateChangedEvent{Running: true, Resolution: "320x240", Format: "yuyv"})

	want := "STATUS=capturing 320x240 yuyv"
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		states := r.snapshot()
		if len(states) > 0 && states[len(states)-1] == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Errorf("Expected %q, got %v", want, r.snapshot())
}

func TestRunWatchdog(t *testing.T) {
	r := &recorder{}
	n := newTestNotifier(r, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	n.RunWatchdog(ctx)

	pings := 0
	for _, s := range r.snapshot() {
		if s == daemon.SdNotifyWatchdog {
			pings++
		}
	}
	if pings < 2 {
		t.Errorf("Expected at least 2 watchdog pings, got %d", pings)
	}
}

func TestRunWatchdogDisabled(t *testing.T) {
	r := &recorder{}
	n := newTestNotifier(r, 0)
	n.RunWatchdog(context.Background())

	n.watchdog = func() (time.Duration, error) { return 0, errors.New("bad WATCHDOG_USEC") }
	n.RunWatchdog(context.Background())

	if got := r.snapshot(); len(got) != 0 {
		t.Errorf("Expected no notifications, got %v", got)
	}
}
