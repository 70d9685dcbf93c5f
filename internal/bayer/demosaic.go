package bayer

import (
	"errors"
	"fmt"
)

// ErrGeometry is returned when a Geometry cannot describe a valid conversion.
var ErrGeometry = errors.New("invalid conversion geometry")

// Geometry describes how a raw sensor frame maps onto the output view.
type Geometry struct {
	Sensor Size // native raw frame, one byte per pixel
	Factor int  // decimation factor
	View   Size // output canvas; the decimated image is centred inside it
	HFlip  bool
	VFlip  bool
}

// NewGeometry derives the conversion geometry of a resolution mode.
// A zero view means the mode's nominal size.
func NewGeometry(res Resolution, view Size, hflip, vflip bool) Geometry {
	if view.W == 0 || view.H == 0 {
		view = res.Size()
	}
	return Geometry{
		Sensor: res.SensorSize(),
		Factor: res.Factor(),
		View:   view,
		HFlip:  hflip,
		VFlip:  vflip,
	}
}

// Image returns the size of the decimated image before centring.
func (g Geometry) Image() Size {
	return Size{W: g.Sensor.W / g.Factor, H: g.Sensor.H / g.Factor}
}

// Validate checks that the geometry is internally consistent.
func (g Geometry) Validate() error {
	if g.Factor < 1 {
		return fmt.Errorf("%w: factor %d", ErrGeometry, g.Factor)
	}
	if g.Sensor.W < 3 || g.Sensor.H < 3 {
		return fmt.Errorf("%w: sensor %s too small", ErrGeometry, g.Sensor)
	}
	img := g.Image()
	if g.View.W < img.W || g.View.H < img.H {
		return fmt.Errorf("%w: view %s smaller than image %s", ErrGeometry, g.View, img)
	}
	return nil
}

// pixelWriter encodes one output pixel. Implementations are small value
// types so each format gets its own instantiation of demosaic.
type pixelWriter interface {
	size() int
	// background writes the "unknown" pixel used for borders and padding.
	background(px []byte)
	// put writes an interpolated pixel; i is its index within the image row.
	put(px []byte, i int, r, g, b uint8)
}

type rgbWriter struct {
	bpp  int
	swap bool
}

func (w rgbWriter) size() int { return w.bpp }

func (w rgbWriter) background(px []byte) { clear(px[:w.bpp]) }

func (w rgbWriter) put(px []byte, _ int, r, g, b uint8) {
	if w.swap {
		r, b = b, r
	}
	px[0], px[1], px[2] = r, g, b
	if w.bpp == 4 {
		px[3] = 0
	}
}

type yuvWriter struct {
	lumaFirst bool
}

func (w yuvWriter) size() int { return 2 }

func (w yuvWriter) background(px []byte) {
	if w.lumaFirst {
		px[0], px[1] = 16, 128
	} else {
		px[0], px[1] = 128, 16
	}
}

func (w yuvWriter) put(px []byte, i int, r, g, b uint8) {
	y, u, v := videoRange(rgbToYUV(r, g, b))
	c := v
	if i%2 == 1 {
		c = u
	}
	if w.lumaFirst {
		px[0], px[1] = y, c
	} else {
		px[0], px[1] = c, y
	}
}

// Convert demosaics raw into dst using the output layout f.
// raw must hold at least Sensor.W*Sensor.H bytes and dst at least
// OutputSize(g.View, f) bytes.
func Convert(dst, raw []byte, g Geometry, f Format) error {
	if err := g.Validate(); err != nil {
		return err
	}
	if !f.Valid() {
		return fmt.Errorf("unsupported pixel format %d", int(f))
	}
	if len(raw) < g.Sensor.Pixels() {
		return fmt.Errorf("raw frame holds %d bytes, need %d", len(raw), g.Sensor.Pixels())
	}
	if need := OutputSize(g.View, f); len(dst) < need {
		return fmt.Errorf("output buffer holds %d bytes, need %d", len(dst), need)
	}

	switch f {
	case RGB24:
		demosaic(dst, raw, g, rgbWriter{bpp: 3})
	case RGB32:
		demosaic(dst, raw, g, rgbWriter{bpp: 4})
	case BGR24:
		demosaic(dst, raw, g, rgbWriter{bpp: 3, swap: true})
	case BGR32:
		demosaic(dst, raw, g, rgbWriter{bpp: 4, swap: true})
	case UYVY:
		demosaic(dst, raw, g, yuvWriter{})
	case YUYV:
		demosaic(dst, raw, g, yuvWriter{lumaFirst: true})
	}
	return nil
}

func demosaic[W pixelWriter](dst, raw []byte, g Geometry, w W) {
	width, height := g.Sensor.W, g.Sensor.H
	img := g.Image()
	bpp := w.size()
	stride := g.View.W * bpp

	// Paint the whole view with the background first: padding, the
	// first/last rows and the first/last column of each row stay this way.
	for p := 0; p < g.View.W; p++ {
		w.background(dst[p*bpp:])
	}
	for row := 1; row < g.View.H; row++ {
		copy(dst[row*stride:(row+1)*stride], dst[:stride])
	}

	top := (g.View.H - img.H) / 2
	left := (g.View.W - img.W) / 2

	starty, stepy := 0, g.Factor
	if g.VFlip {
		starty, stepy = height-2, -g.Factor
	}
	startx, stepx, offset := 0, g.Factor, 1
	if g.HFlip {
		startx, stepx, offset = width-1, -g.Factor, width-2
	}

	last := (height - 1) * width
	y := starty
	for j := 0; j < img.H-2; j++ {
		// The first raw row is never sampled directly.
		center := (y + 1) * width
		above := center - width
		below := center + width
		if below > last {
			below = last
		}

		out := dst[(top+1+j)*stride+(left+1)*bpp:]
		oddRow := y&1 == 1
		x, col := startx, offset
		for i := 0; i < img.W-2; i++ {
			var r, gr, b uint8
			c := center + col
			switch {
			case oddRow && x&1 == 1:
				// blue site on a GB row
				r = diag(raw, above+col, below+col)
				gr = cross(raw, above+col, c, below+col)
				b = raw[c]
			case oddRow:
				// green site on a GB row
				r = pair(raw[above+col], raw[below+col])
				gr = raw[c]
				b = pair(raw[c-1], raw[c+1])
			case x&1 == 1:
				// green site on an RG row
				r = pair(raw[c-1], raw[c+1])
				gr = raw[c]
				b = pair(raw[above+col], raw[below+col])
			default:
				// red site on an RG row
				r = raw[c]
				gr = cross(raw, above+col, c, below+col)
				b = diag(raw, above+col, below+col)
			}
			w.put(out[i*bpp:], i, r, gr, b)

			x += stepx
			col += stepx
		}
		y += stepy
	}
}

func pair(a, b uint8) uint8 {
	return uint8((int(a) + int(b)) >> 1)
}

// cross averages the four horizontal/vertical neighbours of c.
func cross(raw []byte, up, c, down int) uint8 {
	return uint8((int(raw[up]) + int(raw[c-1]) + int(raw[c+1]) + int(raw[down])) >> 2)
}

// diag averages the four diagonal neighbours of the site between up and down.
func diag(raw []byte, up, down int) uint8 {
	return uint8((int(raw[up-1]) + int(raw[up+1]) + int(raw[down-1]) + int(raw[down+1])) >> 2)
}
