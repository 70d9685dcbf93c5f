// Package metrics provides Prometheus metrics for the capture stream.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "stkcam"

var (
	streamRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "stream",
		Name:      "running",
		Help:      "Whether capture is running",
	})

	streamMode = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "stream",
		Name:      "mode_info",
		Help:      "Active resolution and pixel format, value is always 1",
	}, []string{"resolution", "format"})

	streamCounters = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "stream",
		Name:      "events_total",
		Help:      "Stream counters since the current session started",
	}, []string{"counter"})

	streamBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "stream",
		Name:      "received_bytes_total",
		Help:      "Bytes received since the current session started",
	})

	streamFullFrames = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "stream",
		Name:      "pending_frames",
		Help:      "Complete frames waiting for a consumer",
	})

	deliveredFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "consumer",
		Name:      "frames_total",
		Help:      "Frames converted for consumers",
	}, []string{"format"})

	convertSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "consumer",
		Name:      "convert_seconds",
		Help:      "Time spent demosaicing one frame",
		Buckets:   []float64{.0005, .001, .002, .005, .01, .02, .05, .1},
	}, []string{"format"})

	streamErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "stream",
		Name:      "errors_total",
		Help:      "Stream errors by code",
	}, []string{"code"})

	cache   StreamMetrics
	cacheMu sync.RWMutex
)

// Counter label values of stkcam_stream_events_total.
const (
	CounterIsocErrors = "isoc_errors"
	CounterDropped    = "dropped_frames"
	CounterDumped     = "dumped_frames"
	CounterPublished  = "published_frames"
	CounterTransfers  = "transfers"
)

// StreamCounters are the values of one counter sample.
type StreamCounters struct {
	IsocErrors      uint64
	DroppedFrames   uint64
	DumpedFrames    uint64
	PublishedFrames uint64
	Transfers       uint64
	Bytes           uint64
	FullFrames      int
}

// StreamMetrics holds the current metric values for the rate exporter.
type StreamMetrics struct {
	SessionID string
	Running   bool
	Counters  StreamCounters
	Delivered uint64
	Sampled   time.Time
}

// SetStreamRunning records a session start or stop.
func SetStreamRunning(sessionID string, running bool, resolution, format string) {
	streamMode.Reset()
	if running {
		streamRunning.Set(1)
		streamMode.WithLabelValues(resolution, format).Set(1)
	} else {
		streamRunning.Set(0)
	}

	cacheMu.Lock()
	defer cacheMu.Unlock()
	if running && cache.SessionID != sessionID {
		cache = StreamMetrics{SessionID: sessionID}
	}
	cache.Running = running
}

// SetStreamCounters records a counter sample.
func SetStreamCounters(c StreamCounters) {
	streamCounters.WithLabelValues(CounterIsocErrors).Set(float64(c.IsocErrors))
	streamCounters.WithLabelValues(CounterDropped).Set(float64(c.DroppedFrames))
	streamCounters.WithLabelValues(CounterDumped).Set(float64(c.DumpedFrames))
	streamCounters.WithLabelValues(CounterPublished).Set(float64(c.PublishedFrames))
	streamCounters.WithLabelValues(CounterTransfers).Set(float64(c.Transfers))
	streamBytes.Set(float64(c.Bytes))
	streamFullFrames.Set(float64(c.FullFrames))

	cacheMu.Lock()
	cache.Counters = c
	cache.Sampled = time.Now()
	cacheMu.Unlock()
}

// ObserveDelivery records one frame converted for a consumer.
func ObserveDelivery(format string, convert time.Duration) {
	deliveredFrames.WithLabelValues(format).Inc()
	convertSeconds.WithLabelValues(format).Observe(convert.Seconds())

	cacheMu.Lock()
	cache.Delivered++
	cacheMu.Unlock()
}

// IncStreamError counts a stream error by code.
func IncStreamError(code string) {
	streamErrors.WithLabelValues(code).Inc()
}

// GetStreamMetrics returns the current metric values.
func GetStreamMetrics() StreamMetrics {
	cacheMu.RLock()
	defer cacheMu.RUnlock()
	return cache
}

// ResetStreamMetrics clears every stream metric.
func ResetStreamMetrics() {
	streamRunning.Set(0)
	streamMode.Reset()
	streamCounters.Reset()
	streamBytes.Set(0)
	streamFullFrames.Set(0)

	cacheMu.Lock()
	cache = StreamMetrics{}
	cacheMu.Unlock()
}
