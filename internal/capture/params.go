package capture

import (
	"fmt"

	"github.com/smazurov/stkcam/internal/bayer"
)

// Params are the client-selected stream parameters.
type Params struct {
	Resolution bayer.Resolution `json:"resolution" toml:"resolution" doc:"Resolution mode, e.g. 640x480"`
	View       bayer.Size       `json:"view" toml:"view" doc:"Output canvas; zero means the mode size"`
	Format     bayer.Format     `json:"format" toml:"format" doc:"Output pixel format"`
	HFlip      bool             `json:"hflip" toml:"hflip" doc:"Mirror horizontally"`
	VFlip      bool             `json:"vflip" toml:"vflip" doc:"Mirror vertically"`
	Brightness uint16           `json:"brightness" toml:"brightness" doc:"Brightness, 32767 is neutral"`

	// Sensor is the family the parameters were resolved for. The orchestrator
	// stamps its own family on Start and Configure.
	Sensor bayer.Sensor `json:"-" toml:"-"`
}

// DefaultParams returns VGA RGB24 with neutral brightness.
func DefaultParams() Params {
	return Params{
		Resolution: bayer.Res640x480,
		View:       bayer.Res640x480.Size(),
		Format:     bayer.RGB24,
		Brightness: bayer.NeutralBrightness,
	}
}

// ParamsForSize picks the mode for a requested picture size and keeps the
// request as the view.
func ParamsForSize(width, height int, sensor bayer.Sensor, f bayer.Format) Params {
	res, view := bayer.SelectVideoMode(width, height, sensor)
	p := DefaultParams()
	p.Resolution = res
	p.View = view
	p.Format = f
	p.Sensor = sensor
	return p
}

// Normalize fills in a zero view with the mode size.
func (p Params) Normalize() Params {
	if p.View.W == 0 || p.View.H == 0 {
		if p.Resolution.Valid() {
			p.View = p.Resolution.Size()
		}
	}
	return p
}

// Validate checks the parameters against a sensor family.
func (p Params) Validate(sensor bayer.Sensor) error {
	p.Sensor = sensor
	if !p.Resolution.Valid() {
		return fmt.Errorf("%w: unknown resolution %d", ErrInvalidParams, int(p.Resolution))
	}
	if !sensor.Supports(p.Resolution) {
		return fmt.Errorf("%w: resolution %s not supported by %s sensor", ErrInvalidParams, p.Resolution, sensor)
	}
	if !p.Format.Valid() {
		return fmt.Errorf("%w: unknown format %d", ErrInvalidParams, int(p.Format))
	}

	g := p.Geometry()
	img := g.Image()
	if p.View.W < img.W || p.View.H < img.H {
		return fmt.Errorf("%w: view %s smaller than image %s", ErrInvalidParams, p.View, img)
	}
	maxView := sensor.MaxResolution().Size()
	if p.View.W > maxView.W || p.View.H > maxView.H {
		return fmt.Errorf("%w: view %s larger than %s", ErrInvalidParams, p.View, maxView)
	}
	return nil
}

// Factor returns the decimation factor of the mode.
func (p Params) Factor() int {
	return p.Sensor.Factor(p.Resolution)
}

// Geometry returns the conversion geometry for these parameters.
func (p Params) Geometry() bayer.Geometry {
	return p.Sensor.Geometry(p.Resolution, p.View, p.HFlip, p.VFlip)
}

// FrameSize returns the raw bytes a complete sensor frame carries.
func (p Params) FrameSize() int {
	return p.Sensor.FrameSize(p.Resolution).Pixels()
}

// ImageSize returns the converted image size in bytes.
func (p Params) ImageSize() int {
	return bayer.OutputSize(p.View, p.Format)
}
