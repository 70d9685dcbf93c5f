package main

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/smazurov/stkcam/internal/bayer"
	"github.com/smazurov/stkcam/internal/capture"
	"github.com/smazurov/stkcam/internal/events"
	"github.com/smazurov/stkcam/internal/source"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewSource(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr bool
		check   func(capture.Source) bool
	}{
		{"synthetic", Options{SourceKind: "synthetic", SourceFPS: 15}, false, func(s capture.Source) bool {
			_, ok := s.(*source.Synthetic)
			return ok
		}},
		{"replay", Options{SourceKind: "replay", SourceReplayPath: "trace.stk"}, false, func(s capture.Source) bool {
			_, ok := s.(*source.Replay)
			return ok
		}},
		{"replay without path", Options{SourceKind: "replay"}, true, nil},
		{"recording", Options{SourceKind: "synthetic", SourceRecordPath: "out.stk"}, false, func(s capture.Source) bool {
			r, ok := s.(*source.Recording)
			return ok && r.Path == "out.stk"
		}},
		{"unknown", Options{SourceKind: "usb"}, true, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, err := newSource(&tt.opts, quietLogger())
			if tt.wantErr {
				if err == nil {
					t.Error("Expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if !tt.check(src) {
				t.Errorf("Unexpected source type %T", src)
			}
		})
	}
}

func TestApplyReloadedParams(t *testing.T) {
	bus := events.New()
	orch := capture.New(capture.Options{
		PoolSize:      3,
		Sensor:        bayer.SensorVGA,
		Source:        source.NewSynthetic(source.SyntheticOptions{FPS: 100}),
		Events:        bus,
		StatsInterval: -1,
	})
	defer func() {
		if orch.Running() {
			_ = orch.Stop()
		}
	}()

	reloads := make(chan events.ParamsReloadedEvent, 4)
	unsub := bus.Subscribe(func(e events.ParamsReloadedEvent) { reloads <- e })
	defer unsub()

	path := filepath.Join(t.TempDir(), "stream.toml")

	// Unchanged parameters are not reapplied.
	if err := applyReloadedParams(orch, bus, path, orch.Params(), quietLogger()); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	p := orch.Params()
	p.Format = bayer.YUYV
	if err := applyReloadedParams(orch, bus, path, p, quietLogger()); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if orch.Params().Format != bayer.YUYV {
		t.Errorf("Expected yuyv after reload, got %s", orch.Params().Format)
	}

	select {
	case e := <-reloads:
		if !e.Applied || e.Path != path {
			t.Errorf("Expected applied reload of %s, got %+v", path, e)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timeout waiting for reload event")
	}

	bad := p
	bad.Format = bayer.Format(99)
	if err := applyReloadedParams(orch, bus, path, bad, quietLogger()); err == nil {
		t.Error("Expected error for invalid parameters")
	}
	select {
	case e := <-reloads:
		if e.Applied || e.Error == "" {
			t.Errorf("Expected rejected reload, got %+v", e)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timeout waiting for rejected reload event")
	}
}
