// Package collectors feeds the capture stream's events into Prometheus metrics.
package collectors

import (
	"log/slog"
	"sync"
	"time"

	"github.com/smazurov/stkcam/internal/events"
	"github.com/smazurov/stkcam/internal/metrics"
)

// StreamCollector subscribes to the event bus and records stream metrics.
type StreamCollector struct {
	logger   *slog.Logger
	bus      *events.Bus
	unsubs   []func()
	stopOnce sync.Once
}

// NewStreamCollector creates a collector for bus.
func NewStreamCollector(bus *events.Bus) *StreamCollector {
	return &StreamCollector{
		logger: slog.With("component", "stream_collector"),
		bus:    bus,
	}
}

// Start subscribes to stream events.
func (c *StreamCollector) Start() {
	c.unsubs = append(c.unsubs,
		c.bus.Subscribe(c.onState),
		c.bus.Subscribe(c.onCounters),
		c.bus.Subscribe(c.onFrame),
		c.bus.Subscribe(c.onError),
	)
	c.logger.Debug("Stream collector started")
}

// Stop unsubscribes and clears the stream metrics.
func (c *StreamCollector) Stop() {
	c.stopOnce.Do(func() {
		for _, unsub := range c.unsubs {
			unsub()
		}
		c.unsubs = nil
		metrics.ResetStreamMetrics()
	})
}

func (c *StreamCollector) onState(e events.StreamStateChangedEvent) {
	metrics.SetStreamRunning(e.SessionID, e.IsRunning(), e.Resolution, e.Format)
}

func (c *StreamCollector) onCounters(e events.CountersEvent) {
	metrics.SetStreamCounters(metrics.StreamCounters{
		IsocErrors:      e.IsocErrors,
		DroppedFrames:   e.DroppedFrames,
		DumpedFrames:    e.DumpedFrames,
		PublishedFrames: e.PublishedFrames,
		Transfers:       e.Transfers,
		Bytes:           e.Bytes,
		FullFrames:      e.FullFrames,
	})
}

func (c *StreamCollector) onFrame(e events.FrameCapturedEvent) {
	metrics.ObserveDelivery(e.Format, time.Duration(e.ConvertUS)*time.Microsecond)
}

func (c *StreamCollector) onError(e events.StreamErrorEvent) {
	metrics.IncStreamError(e.Code)
}
