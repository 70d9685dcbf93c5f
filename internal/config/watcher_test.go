package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/smazurov/stkcam/internal/bayer"
	"github.com/smazurov/stkcam/internal/capture"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func writeStream(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func startWatcher(t *testing.T, path string, opts ...WatcherOption[capture.Params]) *Watcher[capture.Params] {
	t.Helper()
	opts = append([]WatcherOption[capture.Params]{WithDebounce[capture.Params](50 * time.Millisecond)}, opts...)
	w := NewConfigWatcher(path, StreamLoader(bayer.SensorVGA), newTestLogger(), opts...)
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := w.Stop(); err != nil {
			t.Errorf("Stop failed: %v", err)
		}
	})
	// Let the watcher settle before writing.
	time.Sleep(100 * time.Millisecond)
	return w
}

func TestWatcherReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stream.toml")
	writeStream(t, path, "[stream]\nresolution = \"640x480\"\n")

	w := startWatcher(t, path)
	received := make(chan capture.Params, 1)
	w.OnReload(func(p capture.Params) { received <- p })

	writeStream(t, path, "[stream]\nresolution = \"320x240\"\nformat = \"uyvy\"\n")

	select {
	case p := <-received:
		if p.Resolution != bayer.Res320x240 || p.Format != bayer.UYVY {
			t.Errorf("Expected 320x240 uyvy, got %s %s", p.Resolution, p.Format)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timeout waiting for reload")
	}
}

func TestWatcherDebouncesBursts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stream.toml")
	writeStream(t, path, "[stream]\n")

	var loads atomic.Int32
	loader := func(p string) (capture.Params, error) {
		loads.Add(1)
		return LoadStreamFile(p, bayer.SensorVGA)
	}
	w := NewConfigWatcher(path, loader, newTestLogger(), WithDebounce[capture.Params](200*time.Millisecond))
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()
	time.Sleep(100 * time.Millisecond)

	for i := range 5 {
		writeStream(t, path, "[stream]\nbrightness = "+string(rune('1'+i))+"\n")
		time.Sleep(20 * time.Millisecond)
	}
	time.Sleep(500 * time.Millisecond)

	if n := loads.Load(); n != 1 {
		t.Errorf("Expected 1 load after a burst, got %d", n)
	}
}

func TestWatcherErrorHandler(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stream.toml")
	writeStream(t, path, "[stream]\n")

	errs := make(chan error, 1)
	w := startWatcher(t, path, WithErrorHandler[capture.Params](func(err error) { errs <- err }))
	called := false
	w.OnReload(func(capture.Params) { called = true })

	writeStream(t, path, "[stream]\nformat = \"h264\"\n")

	select {
	case err := <-errs:
		if !errors.Is(err, capture.ErrInvalidParams) {
			t.Errorf("Expected invalid params error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timeout waiting for error handler")
	}
	if called {
		t.Error("Expected handlers to be skipped on load error")
	}
}

func TestWatcherUnsubscribeAndManualReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stream.toml")
	writeStream(t, path, "[stream]\nvflip = true\n")

	w := NewConfigWatcher(path, StreamLoader(bayer.SensorVGA), newTestLogger())

	var first, second atomic.Int32
	unsub := w.OnReload(func(capture.Params) { first.Add(1) })
	w.OnReload(func(p capture.Params) {
		if p.VFlip {
			second.Add(1)
		}
	})

	if err := w.Reload(); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	unsub()
	unsub()
	if err := w.Reload(); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}

	if first.Load() != 1 || second.Load() != 2 {
		t.Errorf("Expected 1 and 2 calls, got %d and %d", first.Load(), second.Load())
	}
}

func TestWatcherStopIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stream.toml")
	writeStream(t, path, "[stream]\n")

	w := NewConfigWatcher(path, StreamLoader(bayer.SensorVGA), newTestLogger())
	if err := w.Stop(); err != nil {
		t.Errorf("Stop before Start failed: %v", err)
	}

	w = NewConfigWatcher(path, StreamLoader(bayer.SensorVGA), newTestLogger(), WithDebounce[capture.Params](10*time.Millisecond))
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	if err := w.Stop(); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
	if err := w.Stop(); err != nil {
		t.Errorf("Second Stop failed: %v", err)
	}

	received := make(chan capture.Params, 1)
	w.OnReload(func(p capture.Params) { received <- p })
	writeStream(t, path, "[stream]\nhflip = true\n")
	select {
	case <-received:
		t.Error("Expected no reload after Stop")
	case <-time.After(200 * time.Millisecond):
	}
}
