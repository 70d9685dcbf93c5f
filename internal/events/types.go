package events

// Event type constants for kelindar/event.
const (
	TypeStreamStateChanged uint32 = iota + 1
	TypeStreamConfigured
	TypeFrameCaptured
	TypeCounters
	TypeStreamError
	TypeParamsReloaded
	TypeLogEntry
	TypeStreamRates
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// StreamStateChangedEvent is published when capture starts or stops.
type StreamStateChangedEvent struct {
	SessionID  string `json:"session_id" example:"3f0c6a9e-3b7a-4f0e-9a43-2f2c1f7d9b10" doc:"Capture session identifier"`
	Running    bool   `json:"running" example:"true" doc:"Whether capture is running"`
	Resolution string `json:"resolution" example:"640x480" doc:"Active resolution mode"`
	Format     string `json:"format" example:"rgb24" doc:"Output pixel format"`
	Timestamp  string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for StreamStateChangedEvent.
func (e StreamStateChangedEvent) Type() uint32 { return TypeStreamStateChanged }

// IsRunning reports the new state.
func (e StreamStateChangedEvent) IsRunning() bool {
	return e.Running
}

// StreamConfiguredEvent is published when stream parameters change.
type StreamConfiguredEvent struct {
	Resolution string `json:"resolution" example:"640x480" doc:"Resolution mode"`
	View       string `json:"view" example:"640x480" doc:"Output canvas size"`
	Format     string `json:"format" example:"rgb24" doc:"Output pixel format"`
	HFlip      bool   `json:"hflip" doc:"Horizontal flip"`
	VFlip      bool   `json:"vflip" doc:"Vertical flip"`
	Brightness uint16 `json:"brightness" example:"32767" doc:"Brightness, 32767 is neutral"`
	Timestamp  string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for StreamConfiguredEvent.
func (e StreamConfiguredEvent) Type() uint32 { return TypeStreamConfigured }

// FrameCapturedEvent is published for every frame handed to a consumer.
type FrameCapturedEvent struct {
	SessionID string `json:"session_id" doc:"Capture session identifier"`
	Seq       uint64 `json:"seq" example:"42" doc:"Frame sequence number within the session"`
	Slot      int    `json:"slot" example:"0" doc:"Output slot the frame was written to"`
	Bytes     int    `json:"bytes" example:"921600" doc:"Converted image size"`
	Format    string `json:"format" example:"rgb24" doc:"Output pixel format"`
	ConvertUS int64  `json:"convert_us" example:"3200" doc:"Conversion time in microseconds"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for FrameCapturedEvent.
func (e FrameCapturedEvent) Type() uint32 { return TypeFrameCaptured }

// CountersEvent carries a periodic snapshot of the stream counters.
type CountersEvent struct {
	SessionID       string `json:"session_id" doc:"Capture session identifier"`
	IsocErrors      uint64 `json:"isoc_errors" doc:"Failed transfers and packets"`
	DroppedFrames   uint64 `json:"dropped_frames" doc:"Short or overflowing frames discarded"`
	DumpedFrames    uint64 `json:"dumped_frames" doc:"Unread frames discarded under backpressure"`
	PublishedFrames uint64 `json:"published_frames" doc:"Frames completed by the reassembler"`
	Transfers       uint64 `json:"transfers" doc:"Transfer completions seen"`
	Bytes           uint64 `json:"bytes" doc:"Bytes received"`
	FullFrames      int    `json:"full_frames" doc:"Frames waiting for a consumer"`
	Timestamp       string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for CountersEvent.
func (e CountersEvent) Type() uint32 { return TypeCounters }

// StreamErrorEvent is published when the stream records an error.
type StreamErrorEvent struct {
	SessionID string `json:"session_id" doc:"Capture session identifier"`
	Code      string `json:"code" example:"TRANSPORT" doc:"Error code"`
	Message   string `json:"message" doc:"Error description"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for StreamErrorEvent.
func (e StreamErrorEvent) Type() uint32 { return TypeStreamError }

// ParamsReloadedEvent is published when the stream parameters file changes.
type ParamsReloadedEvent struct {
	Path      string `json:"path" example:"stream.toml" doc:"Reloaded file"`
	Applied   bool   `json:"applied" doc:"Whether the new parameters took effect"`
	Error     string `json:"error,omitempty" doc:"Why the reload was rejected"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for ParamsReloadedEvent.
func (e ParamsReloadedEvent) Type() uint32 { return TypeParamsReloaded }

// LogEntryEvent represents a log entry for SSE streaming.
type LogEntryEvent struct {
	Seq        uint64         `json:"seq" example:"42" doc:"Monotonic sequence number for deduplication"`
	Timestamp  string         `json:"timestamp" example:"2025-01-09T10:30:00.123Z" doc:"Log timestamp"`
	Level      string         `json:"level" example:"info" doc:"Log level"`
	Module     string         `json:"module" example:"capture" doc:"Source module"`
	Message    string         `json:"message" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured log attributes"`
}

// Type returns the event type identifier for LogEntryEvent.
func (e LogEntryEvent) Type() uint32 { return TypeLogEntry }

// StreamRatesEvent carries throughput derived from consecutive counter samples.
type StreamRatesEvent struct {
	SessionID   string  `json:"session_id" doc:"Capture session identifier"`
	CaptureFPS  float64 `json:"capture_fps" example:"14.9" doc:"Frames completed by the reassembler per second"`
	DeliveryFPS float64 `json:"delivery_fps" example:"14.7" doc:"Frames converted for consumers per second"`
	Mbps        float64 `json:"mbps" example:"36.4" doc:"Received megabits per second"`
	Timestamp   string  `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for StreamRatesEvent.
func (e StreamRatesEvent) Type() uint32 { return TypeStreamRates }
