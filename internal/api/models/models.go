package models

// Health check models
type HealthData struct {
	Status  string `json:"status" example:"ok" doc:"Service status"`
	Message string `json:"message" example:"API is healthy" doc:"Status message"`
}

type HealthResponse struct {
	Body HealthData
}

// Version models
type VersionData struct {
	Name      string `json:"name" example:"stkcam" doc:"Service name"`
	Version   string `json:"version" example:"1.0.0" doc:"Application version"`
	GitCommit string `json:"git_commit" example:"abc1234" doc:"Git commit hash"`
	BuildDate string `json:"build_date" example:"2025-01-27T10:30:00Z" doc:"Build timestamp"`
	GoVersion string `json:"go_version" example:"go1.24.11" doc:"Go runtime version"`
	Platform  string `json:"platform" example:"linux/arm64" doc:"Target platform"`
}

type VersionResponse struct {
	Body VersionData
}

// StreamParamsData is the wire form of the stream parameters.
type StreamParamsData struct {
	Resolution string `json:"resolution" example:"640x480" doc:"Resolution mode"`
	View       string `json:"view" example:"640x480" doc:"Output canvas, at least the image size"`
	Format     string `json:"format" example:"rgb24" enum:"rgb24,bgr24,rgb32,bgr32,uyvy,yuyv" doc:"Output pixel format"`
	HFlip      bool   `json:"hflip" doc:"Mirror horizontally"`
	VFlip      bool   `json:"vflip" doc:"Mirror vertically"`
	Brightness uint16 `json:"brightness" example:"32767" doc:"Brightness, 32767 is neutral"`
	ImageBytes int    `json:"image_bytes" example:"921600" doc:"Size of one converted image"`
}

type CountersData struct {
	IsocErrors      uint64 `json:"isoc_errors" doc:"Failed transfers and packets"`
	DroppedFrames   uint64 `json:"dropped_frames" doc:"Short or overflowing frames discarded"`
	DumpedFrames    uint64 `json:"dumped_frames" doc:"Unread frames discarded under backpressure"`
	PublishedFrames uint64 `json:"published_frames" doc:"Frames completed by the reassembler"`
	Transfers       uint64 `json:"transfers" doc:"Transfer completions seen"`
	Bytes           uint64 `json:"bytes" doc:"Bytes received"`
}

type StreamStatusData struct {
	Running   bool             `json:"running" doc:"Whether capture is running"`
	SessionID string           `json:"session_id,omitempty" doc:"Capture session identifier"`
	Sensor    string           `json:"sensor" example:"vga" doc:"Sensor family"`
	Params    StreamParamsData `json:"params" doc:"Configured stream parameters"`
	Counters  CountersData     `json:"counters" doc:"Stream counters"`
	Ready     bool             `json:"ready" doc:"Whether a frame pull would return immediately"`
	Error     string           `json:"error,omitempty" doc:"Error a consumer would currently observe"`
}

type StreamStatusResponse struct {
	Body StreamStatusData
}

// StreamConfigData is a partial update; omitted fields keep their value.
type StreamConfigData struct {
	Resolution string  `json:"resolution,omitempty" example:"320x240" doc:"Resolution mode"`
	Width      int     `json:"width,omitempty" minimum:"0" example:"352" doc:"Requested picture width, picks the largest mode that fits"`
	Height     int     `json:"height,omitempty" minimum:"0" example:"288" doc:"Requested picture height"`
	View       string  `json:"view,omitempty" example:"352x288" doc:"Output canvas"`
	Format     string  `json:"format,omitempty" example:"yuyv" doc:"Output pixel format"`
	HFlip      *bool   `json:"hflip,omitempty" doc:"Mirror horizontally"`
	VFlip      *bool   `json:"vflip,omitempty" doc:"Mirror vertically"`
	Brightness *uint16 `json:"brightness,omitempty" doc:"Brightness, 32767 is neutral"`
	Persist    bool    `json:"persist,omitempty" doc:"Write the result to the stream file"`
}

type StreamConfigRequest struct {
	Body StreamConfigData
}

type StreamParamsResponse struct {
	Body StreamParamsData
}

type ReadyData struct {
	Ready bool `json:"ready" doc:"Whether a frame pull would return immediately"`
}

type ReadyResponse struct {
	Body ReadyData
}

type CountersResponse struct {
	Body CountersData
}

// Frame models
type FrameRequest struct {
	TimeoutMs int `query:"timeout_ms" minimum:"1" maximum:"60000" default:"2000" doc:"How long to wait for a frame"`
}

type FrameResponse struct {
	ContentType string `header:"Content-Type"`
	Seq         string `header:"X-Frame-Seq"`
	Width       string `header:"X-Frame-Width"`
	Height      string `header:"X-Frame-Height"`
	Format      string `header:"X-Frame-Format"`
	Body        []byte
}

// Log level models
type LogLevelsData struct {
	Modules map[string]string `json:"modules" doc:"Effective level per module"`
}

type LogLevelsResponse struct {
	Body LogLevelsData
}

type LogLevelRequest struct {
	Module string `path:"module" example:"capture" doc:"Logger module"`
	Body   struct {
		Level string `json:"level" enum:"debug,info,warn,error" doc:"New level"`
	}
}
