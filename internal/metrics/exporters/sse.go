package exporters

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/smazurov/stkcam/internal/events"
	"github.com/smazurov/stkcam/internal/metrics"
)

// EventPublisher interface for publishing events.
type EventPublisher interface {
	Publish(ev events.Event)
}

// RateExporter turns consecutive metric samples into StreamRatesEvents for
// the SSE endpoints.
type RateExporter struct {
	eventBus EventPublisher
	interval time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	prev     metrics.StreamMetrics
	prevTime time.Time
}

// NewRateExporter creates a new rate exporter.
func NewRateExporter(eventBus EventPublisher) *RateExporter {
	return &RateExporter{
		eventBus: eventBus,
		interval: 1 * time.Second,
	}
}

// Start begins the export loop.
func (s *RateExporter) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.run()
}

// Stop stops the exporter and waits for the goroutine to finish.
func (s *RateExporter) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *RateExporter) run() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case now := <-ticker.C:
			s.publishRates(metrics.GetStreamMetrics(), now)
		}
	}
}

func (s *RateExporter) publishRates(cur metrics.StreamMetrics, now time.Time) {
	prev, prevTime := s.prev, s.prevTime
	s.prev, s.prevTime = cur, now

	// The first sample of a session only primes the baseline.
	if !cur.Running || prevTime.IsZero() || prev.SessionID != cur.SessionID {
		return
	}
	secs := now.Sub(prevTime).Seconds()
	if secs <= 0 {
		return
	}

	s.eventBus.Publish(events.StreamRatesEvent{
		SessionID:   cur.SessionID,
		CaptureFPS:  rate(prev.Counters.PublishedFrames, cur.Counters.PublishedFrames, secs),
		DeliveryFPS: rate(prev.Delivered, cur.Delivered, secs),
		Mbps:        rate(prev.Counters.Bytes, cur.Counters.Bytes, secs) * 8 / 1e6,
		Timestamp:   now.UTC().Format(time.RFC3339),
	})
}

// rate returns the per-second increase, or 0 when the counter went backwards.
func rate(prev, cur uint64, secs float64) float64 {
	if cur < prev {
		return 0
	}
	return math.Round(float64(cur-prev)/secs*100) / 100
}

// GetEventTypes returns event types for SSE endpoint registration.
func GetEventTypes() map[string]any {
	return map[string]any{
		"stream-rates": events.StreamRatesEvent{},
	}
}
