package bayer

import (
	"fmt"
	"strings"
)

// Format is an output pixel layout.
type Format int

// Output pixel layouts.
const (
	RGB24 Format = iota
	RGB32
	BGR24
	BGR32
	UYVY
	YUYV
	numFormats
)

var formatNames = [numFormats]string{"rgb24", "rgb32", "bgr24", "bgr32", "uyvy", "yuyv"}

// Formats returns every output layout.
func Formats() []Format {
	out := make([]Format, numFormats)
	for i := range out {
		out[i] = Format(i)
	}
	return out
}

// Valid reports whether f names a supported layout.
func (f Format) Valid() bool {
	return f >= 0 && f < numFormats
}

// BytesPerPixel returns the encoded size of one pixel.
func (f Format) BytesPerPixel() int {
	switch f {
	case RGB24, BGR24:
		return 3
	case RGB32, BGR32:
		return 4
	case UYVY, YUYV:
		return 2
	default:
		return 0
	}
}

// IsYUV reports whether f is a packed 4:2:2 layout.
func (f Format) IsYUV() bool {
	return f == UYVY || f == YUYV
}

func (f Format) String() string {
	if !f.Valid() {
		return fmt.Sprintf("invalid(%d)", int(f))
	}
	return formatNames[f]
}

// ParseFormat parses a case-insensitive layout name such as "rgb24".
func ParseFormat(s string) (Format, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range formatNames {
		if n == name {
			return Format(i), nil
		}
	}
	return 0, fmt.Errorf("unsupported pixel format %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (f Format) MarshalText() ([]byte, error) {
	if !f.Valid() {
		return nil, fmt.Errorf("invalid pixel format %d", int(f))
	}
	return []byte(f.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *Format) UnmarshalText(text []byte) error {
	parsed, err := ParseFormat(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// OutputSize returns the number of bytes a converted image of the given view
// occupies in format f.
func OutputSize(view Size, f Format) int {
	return view.Pixels() * f.BytesPerPixel()
}
