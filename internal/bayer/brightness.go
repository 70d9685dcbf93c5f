package bayer

// NeutralBrightness leaves an image unchanged.
const NeutralBrightness uint16 = 32767

// CorrectBrightness shifts an already converted image in place. Values above
// NeutralBrightness brighten, values below darken, by (|b-32767|)/256 levels
// with saturation. RGB/BGR layouts shift every byte of the width*height
// image, YUV layouts shift only the luma bytes.
func CorrectBrightness(img []byte, width, height int, brightness uint16, f Format) {
	var delta int
	brighten := brightness >= NeutralBrightness
	if brighten {
		delta = int(brightness-NeutralBrightness) / 256
	} else {
		delta = int(NeutralBrightness-brightness) / 256
	}
	if delta == 0 || !f.Valid() {
		return
	}

	n := width * height * f.BytesPerPixel()
	if n > len(img) {
		n = len(img)
	}

	start, step := 0, 1
	switch f {
	case UYVY:
		start, step = 1, 2
	case YUYV:
		start, step = 0, 2
	}

	if brighten {
		limit := 255 - delta
		for i := start; i < n; i += step {
			if int(img[i]) >= limit {
				img[i] = 255
			} else {
				img[i] += uint8(delta)
			}
		}
		return
	}
	for i := start; i < n; i += step {
		if int(img[i]) <= delta {
			img[i] = 0
		} else {
			img[i] -= uint8(delta)
		}
	}
}
