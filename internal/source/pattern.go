package source

import "github.com/smazurov/stkcam/internal/bayer"

var barColours = [8][3]byte{
	{235, 235, 235}, // white
	{235, 235, 16},  // yellow
	{16, 235, 235},  // cyan
	{16, 235, 16},   // green
	{235, 16, 235},  // magenta
	{235, 16, 16},   // red
	{16, 16, 235},   // blue
	{16, 16, 16},    // black
}

// RenderBars fills raw with a bayer mosaic of eight vertical colour bars
// scrolled by frame. Red sites sit on odd rows and odd columns, blue sites on
// even rows and even columns, green everywhere else. The bottom eighth is a
// horizontal grey ramp.
func RenderBars(raw []byte, size bayer.Size, frame int) {
	barW := max(size.W/len(barColours), 1)
	shift := frame * 4
	rampTop := size.H - size.H/8

	for y := 0; y < size.H; y++ {
		row := raw[y*size.W : (y+1)*size.W]
		for x := range row {
			if y >= rampTop {
				row[x] = byte((x * 255) / max(size.W-1, 1))
				continue
			}
			c := barColours[((x+shift)/barW)%len(barColours)]
			switch {
			case y%2 == 1 && x%2 == 1:
				row[x] = c[0]
			case y%2 == 0 && x%2 == 0:
				row[x] = c[2]
			default:
				row[x] = c[1]
			}
		}
	}
}
