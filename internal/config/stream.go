package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
	"github.com/smazurov/stkcam/internal/bayer"
	"github.com/smazurov/stkcam/internal/capture"
)

// StreamFile is the on-disk form of the stream parameters.
//
//	[stream]
//	resolution = "640x480"  # or width/height to pick the mode
//	view = "800x600"        # optional output canvas
//	format = "rgb24"
//	hflip = false
//	vflip = false
//	brightness = 32767
type StreamFile struct {
	Stream StreamSection `toml:"stream"`
}

// StreamSection holds the [stream] table.
type StreamSection struct {
	Resolution string `toml:"resolution,omitempty"`
	Width      int    `toml:"width,omitempty"`
	Height     int    `toml:"height,omitempty"`
	View       string `toml:"view,omitempty"`
	Format     string `toml:"format,omitempty"`
	HFlip      bool   `toml:"hflip"`
	VFlip      bool   `toml:"vflip"`
	Brightness *int   `toml:"brightness,omitempty"`
}

// Params converts the section into validated stream parameters. Missing
// keys fall back to capture.DefaultParams.
func (s StreamSection) Params(sensor bayer.Sensor) (capture.Params, error) {
	p := capture.DefaultParams()

	if s.Format != "" {
		f, err := bayer.ParseFormat(s.Format)
		if err != nil {
			return p, fmt.Errorf("%w: %w", capture.ErrInvalidParams, err)
		}
		p.Format = f
	}

	switch {
	case s.Resolution != "":
		res, err := bayer.ParseResolution(s.Resolution)
		if err != nil {
			return p, fmt.Errorf("%w: %w", capture.ErrInvalidParams, err)
		}
		p.Resolution = res
		p.View = res.Size()
	case s.Width > 0 || s.Height > 0:
		p = capture.ParamsForSize(s.Width, s.Height, sensor, p.Format)
	}

	if s.View != "" {
		view, err := bayer.ParseSize(s.View)
		if err != nil {
			return p, fmt.Errorf("%w: %w", capture.ErrInvalidParams, err)
		}
		p.View = view
	}

	p.HFlip = s.HFlip
	p.VFlip = s.VFlip
	if s.Brightness != nil {
		if *s.Brightness < 0 || *s.Brightness > 0xffff {
			return p, fmt.Errorf("%w: brightness %d out of range", capture.ErrInvalidParams, *s.Brightness)
		}
		p.Brightness = uint16(*s.Brightness)
	}

	p = p.Normalize()
	p.Sensor = sensor
	if err := p.Validate(sensor); err != nil {
		return p, err
	}
	return p, nil
}

// StreamSectionFor is the inverse of StreamSection.Params.
func StreamSectionFor(p capture.Params) StreamSection {
	b := int(p.Brightness)
	return StreamSection{
		Resolution: p.Resolution.String(),
		View:       p.View.String(),
		Format:     p.Format.String(),
		HFlip:      p.HFlip,
		VFlip:      p.VFlip,
		Brightness: &b,
	}
}

// LoadStreamFile reads and validates a stream parameters file.
func LoadStreamFile(path string, sensor bayer.Sensor) (capture.Params, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return capture.Params{}, fmt.Errorf("failed to read stream file: %w", err)
	}

	var file StreamFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return capture.Params{}, fmt.Errorf("failed to parse stream file: %w", err)
	}
	return file.Stream.Params(sensor)
}

// StreamLoader adapts LoadStreamFile to a Watcher loader.
func StreamLoader(sensor bayer.Sensor) func(path string) (capture.Params, error) {
	return func(path string) (capture.Params, error) {
		return LoadStreamFile(path, sensor)
	}
}

// LoadOrCreateStreamFile loads path, writing defaults first when it does not
// exist yet.
func LoadOrCreateStreamFile(path string, sensor bayer.Sensor) (capture.Params, error) {
	p, err := LoadStreamFile(path, sensor)
	if err == nil || !errors.Is(err, os.ErrNotExist) {
		return p, err
	}
	p = capture.DefaultParams()
	if err := SaveStreamFile(path, p); err != nil {
		return p, err
	}
	return p, nil
}

// SaveStreamFile writes p to path. The file is replaced atomically so a
// watcher never loads a partial write.
func SaveStreamFile(path string, p capture.Params) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := toml.Marshal(StreamFile{Stream: StreamSectionFor(p)})
	if err != nil {
		return fmt.Errorf("failed to marshal stream file: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".stream-*.toml")
	if err != nil {
		return fmt.Errorf("failed to write stream file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write stream file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write stream file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to write stream file: %w", err)
	}
	return nil
}
