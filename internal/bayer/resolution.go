package bayer

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Resolution identifies one of the supported output modes.
type Resolution int

// Supported resolutions, smallest first.
const (
	Res80x60 Resolution = iota
	Res128x96
	Res160x120
	Res213x160
	Res320x240
	Res640x480
	Res720x576
	Res800x600
	Res1024x768
	Res1280x1024
	numResolutions
)

// Size is a width/height pair in pixels.
type Size struct {
	W int `json:"width" toml:"width"`
	H int `json:"height" toml:"height"`
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.W, s.H)
}

// Pixels returns W*H.
func (s Size) Pixels() int {
	return s.W * s.H
}

var modeSizes = [numResolutions]Size{
	{80, 60},
	{128, 96},
	{160, 120},
	{213, 160},
	{320, 240},
	{640, 480},
	{720, 576},
	{800, 600},
	{1024, 768},
	{1280, 1024},
}

var decimation = [numResolutions]int{8, 5, 4, 3, 2, 1, 2, 2, 2, 1}

// MaxSensorSize is the largest native frame any sensor delivers.
var MaxSensorSize = modeSizes[Res1280x1024]

// Resolutions returns every supported mode in ascending order.
func Resolutions() []Resolution {
	out := make([]Resolution, numResolutions)
	for i := range out {
		out[i] = Resolution(i)
	}
	return out
}

// Valid reports whether r names a supported mode.
func (r Resolution) Valid() bool {
	return r >= 0 && r < numResolutions
}

// Size returns the nominal output size of the mode.
func (r Resolution) Size() Size {
	return modeSizes[r]
}

// Factor returns the decimation factor applied to the native sensor frame.
func (r Resolution) Factor() int {
	return decimation[r]
}

// SensorSize returns the native frame the sensor captures in this mode.
// Modes up to 640x480 are decimated from a VGA frame, larger ones from SXGA.
func (r Resolution) SensorSize() Size {
	if r <= Res640x480 {
		return modeSizes[Res640x480]
	}
	return modeSizes[Res1280x1024]
}

func (r Resolution) String() string {
	if !r.Valid() {
		return "invalid(" + strconv.Itoa(int(r)) + ")"
	}
	return modeSizes[r].String()
}

// ParseSize parses a "WxH" string with positive dimensions.
func ParseSize(s string) (Size, error) {
	w, h, ok := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "x")
	if !ok {
		return Size{}, fmt.Errorf("invalid size %q: expected WxH", s)
	}
	width, err := strconv.Atoi(w)
	if err != nil || width <= 0 {
		return Size{}, fmt.Errorf("invalid width %q", w)
	}
	height, err := strconv.Atoi(h)
	if err != nil || height <= 0 {
		return Size{}, fmt.Errorf("invalid height %q", h)
	}
	return Size{W: width, H: height}, nil
}

// ParseResolution accepts "WxH" strings naming a supported mode.
func ParseResolution(s string) (Resolution, error) {
	size, err := ParseSize(s)
	if err != nil {
		return 0, fmt.Errorf("invalid resolution: %w", err)
	}
	for i, sz := range modeSizes {
		if sz == size {
			return Resolution(i), nil
		}
	}
	return 0, fmt.Errorf("unsupported resolution %s", s)
}

// MarshalText implements encoding.TextMarshaler.
func (r Resolution) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("invalid resolution %d", int(r))
	}
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Resolution) UnmarshalText(text []byte) error {
	parsed, err := ParseResolution(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Sensor describes the capture capability of a camera model.
type Sensor int

// Sensor families. VGA and SXGA sensors decimate one native frame into the
// smaller modes. PAL video grabbers deliver each of their two modes natively.
const (
	SensorVGA Sensor = iota
	SensorSXGA
	SensorPAL
)

func (s Sensor) String() string {
	switch s {
	case SensorSXGA:
		return "sxga"
	case SensorPAL:
		return "pal"
	}
	return "vga"
}

// ParseSensor accepts "vga", "sxga" or "pal".
func ParseSensor(s string) (Sensor, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "vga":
		return SensorVGA, nil
	case "sxga":
		return SensorSXGA, nil
	case "pal":
		return SensorPAL, nil
	}
	return 0, fmt.Errorf("unknown sensor %q: expected vga, sxga or pal", s)
}

// MaxResolution returns the largest mode the sensor can produce.
func (s Sensor) MaxResolution() Resolution {
	switch s {
	case SensorSXGA:
		return Res1280x1024
	case SensorPAL:
		return Res720x576
	}
	return Res640x480
}

// Supports reports whether the sensor can capture in mode r.
func (s Sensor) Supports(r Resolution) bool {
	if !r.Valid() {
		return false
	}
	if s == SensorPAL {
		return r == Res640x480 || r == Res720x576
	}
	return r <= s.MaxResolution()
}

// FrameSize returns the native frame the sensor captures in mode r.
func (s Sensor) FrameSize(r Resolution) Size {
	if s == SensorPAL {
		return modeSizes[r]
	}
	return r.SensorSize()
}

// Factor returns the decimation factor the sensor needs for mode r.
func (s Sensor) Factor(r Resolution) int {
	if s == SensorPAL {
		return 1
	}
	return r.Factor()
}

// Geometry derives the conversion geometry of mode r on this sensor.
func (s Sensor) Geometry(r Resolution, view Size, hflip, vflip bool) Geometry {
	g := NewGeometry(r, view, hflip, vflip)
	g.Sensor = s.FrameSize(r)
	g.Factor = s.Factor(r)
	return g
}

// palSizes are the picture sizes a PAL grabber accepts; anything else is
// treated as a 640x480 request.
var palSizes = []Size{{720, 576}, {720, 480}, {640, 480}}

// SelectVideoMode picks the largest supported mode that fits inside the
// requested size. Requests are first clamped to [80x60, sensor maximum].
// The clamped request becomes the view the converted image is centred in.
// PAL sensors only accept 720x576, 720x480 and 640x480.
func SelectVideoMode(width, height int, sensor Sensor) (Resolution, Size) {
	if sensor == SensorPAL && !slices.Contains(palSizes, Size{W: width, H: height}) {
		width, height = 640, 480
	}

	smallest := modeSizes[Res80x60]
	if width < smallest.W || height < smallest.H {
		width, height = smallest.W, smallest.H
	}

	maxRes := sensor.MaxResolution()
	largest := modeSizes[maxRes]
	if width > largest.W || height > largest.H {
		width, height = largest.W, largest.H
	}

	found := Res80x60
	for r := Res80x60; r <= maxRes; r++ {
		if modeSizes[r].W <= width && modeSizes[r].H <= height {
			found = r
		}
	}

	return found, Size{W: width, H: height}
}
