package capture

import (
	"errors"
	"testing"

	"github.com/smazurov/stkcam/internal/bayer"
)

func TestParamsValidate(t *testing.T) {
	tests := []struct {
		name   string
		params Params
		sensor bayer.Sensor
		ok     bool
	}{
		{"defaults", DefaultParams(), bayer.SensorVGA, true},
		{"zero view uses mode size", Params{Resolution: bayer.Res160x120, Format: bayer.UYVY}, bayer.SensorVGA, true},
		{"padded view", Params{Resolution: bayer.Res213x160, View: bayer.Size{W: 300, H: 300}}, bayer.SensorVGA, true},
		{"sxga mode on vga sensor", Params{Resolution: bayer.Res800x600}, bayer.SensorVGA, false},
		{"sxga mode on sxga sensor", Params{Resolution: bayer.Res800x600}, bayer.SensorSXGA, true},
		{"view smaller than image", Params{Resolution: bayer.Res640x480, View: bayer.Size{W: 320, H: 240}}, bayer.SensorVGA, false},
		{"view larger than sensor", Params{Resolution: bayer.Res640x480, View: bayer.Size{W: 700, H: 480}}, bayer.SensorVGA, false},
		{"unknown format", Params{Resolution: bayer.Res640x480, Format: bayer.Format(9)}, bayer.SensorVGA, false},
		{"unknown resolution", Params{Resolution: bayer.Resolution(20)}, bayer.SensorSXGA, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.params.Normalize().Validate(tt.sensor)
			if tt.ok && err != nil {
				t.Errorf("Expected valid params, got %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrInvalidParams) {
				t.Errorf("Expected ErrInvalidParams, got %v", err)
			}
		})
	}
}

func TestParamsForSize(t *testing.T) {
	p := ParamsForSize(1000, 700, bayer.SensorSXGA, bayer.BGR32)
	if p.Resolution != bayer.Res800x600 {
		t.Errorf("Expected 800x600 mode, got %s", p.Resolution)
	}
	if p.View != (bayer.Size{W: 1000, H: 700}) {
		t.Errorf("Expected view 1000x700, got %s", p.View)
	}
	if p.Brightness != bayer.NeutralBrightness {
		t.Errorf("Expected neutral brightness, got %d", p.Brightness)
	}
	if p.FrameSize() != 1280*1024 {
		t.Errorf("Expected SXGA frame size, got %d", p.FrameSize())
	}
	if p.ImageSize() != 1000*700*4 {
		t.Errorf("Expected image size %d, got %d", 1000*700*4, p.ImageSize())
	}
	if p.Factor() != 2 {
		t.Errorf("Expected factor 2, got %d", p.Factor())
	}
}

func TestParamsForSizePAL(t *testing.T) {
	p := ParamsForSize(720, 576, bayer.SensorPAL, bayer.UYVY)
	if p.Resolution != bayer.Res720x576 || p.Factor() != 1 {
		t.Errorf("Expected native 720x576, got %s at factor %d", p.Resolution, p.Factor())
	}
	if p.FrameSize() != 720*576 {
		t.Errorf("Expected PAL frame size %d, got %d", 720*576, p.FrameSize())
	}
	if err := p.Validate(bayer.SensorPAL); err != nil {
		t.Errorf("Validate failed: %v", err)
	}
	if err := p.Validate(bayer.SensorVGA); err == nil {
		t.Error("Expected 720x576 to be rejected on a VGA sensor")
	}
}

func TestErrorFormatting(t *testing.T) {
	err := newError(ErrCodeBusy, "frame pull already in progress", ErrBusy)
	if err.Error() != "BUSY: frame pull already in progress: another consumer is pulling a frame" {
		t.Errorf("Unexpected message: %q", err.Error())
	}
	if !errors.Is(err, ErrBusy) {
		t.Error("Expected error to unwrap to ErrBusy")
	}
	if Code(errors.New("plain")) != "" {
		t.Error("Expected empty code for plain errors")
	}

	bare := &Error{Code: ErrCodeInternal, Message: "boom"}
	if bare.Error() != "INTERNAL: boom" {
		t.Errorf("Unexpected message: %q", bare.Error())
	}
}
