package bayer

import (
	"bytes"
	"testing"
)

func TestCorrectBrightness(t *testing.T) {
	tests := []struct {
		name       string
		brightness uint16
		format     Format
		in         []byte
		want       []byte
	}{
		{"neutral", NeutralBrightness, RGB24, []byte{0, 128, 255}, []byte{0, 128, 255}},
		{"max brightens and saturates", 65535, RGB24, []byte{0, 127, 200}, []byte{128, 255, 255}},
		{"min darkens and saturates", 0, RGB24, []byte{0, 127, 200}, []byte{0, 0, 73}},
		{"small step rounds to zero", 32767 + 255, RGB24, []byte{10, 20, 30}, []byte{10, 20, 30}},
		{"one level", 32767 + 256, BGR24, []byte{10, 20, 255}, []byte{11, 21, 255}},
		{"uyvy touches luma only", 65535, UYVY, []byte{100, 100, 100, 200}, []byte{100, 228, 100, 255}},
		{"yuyv touches luma only", 0, YUYV, []byte{100, 100, 200, 100}, []byte{0, 100, 73, 100}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img := append([]byte(nil), tt.in...)
			w := len(img) / tt.format.BytesPerPixel()
			CorrectBrightness(img, w, 1, tt.brightness, tt.format)
			if !bytes.Equal(img, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, img)
			}
		})
	}
}

func TestCorrectBrightnessStaysInsideView(t *testing.T) {
	img := []byte{10, 10, 10, 10, 10, 10}
	// A 1x1 RGB24 view covers only the first three bytes.
	CorrectBrightness(img, 1, 1, 65535, RGB24)
	if !bytes.Equal(img, []byte{138, 138, 138, 10, 10, 10}) {
		t.Errorf("Expected only the view to change, got %v", img)
	}
}
