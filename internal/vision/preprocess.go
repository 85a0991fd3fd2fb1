package vision

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"
)

func grayColor(v uint8) color.Gray {
	return color.Gray{Y: v}
}

const (
	// maxQueryWidth bounds the extractor's work per image.
	maxQueryWidth = 640
	claheClip     = 2.0
	claheTiles    = 8
)

// Preprocess produces the exact pixel representation the feature extractor
// expects: width capped at 640 (bilinear), single-channel grayscale,
// contrast-limited adaptive histogram equalization (clip 2.0, 8x8 tiles).
// The same transform is applied to query frames and to templates at
// indexing time. On degenerate input it returns what it has unchanged.
func Preprocess(img image.Image) *image.Gray {
	if img == nil {
		return nil
	}
	bounds := img.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return toGray(img)
	}

	if bounds.Dx() > maxQueryWidth {
		scale := float64(maxQueryWidth) / float64(bounds.Dx())
		newHeight := int(float64(bounds.Dy()) * scale)
		if newHeight < 1 {
			newHeight = 1
		}
		resized := image.NewRGBA(image.Rect(0, 0, maxQueryWidth, newHeight))
		draw.BiLinear.Scale(resized, resized.Bounds(), img, bounds, draw.Over, nil)
		img = resized
	}

	gray := toGray(img)
	return equalizeAdaptive(gray, claheClip, claheTiles)
}

// toGray converts an image to single-channel grayscale using the
// ITU-R BT.601 luma formula.
func toGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok && g.Bounds().Min == image.Pt(0, 0) {
		return g
	}
	bounds := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			luma := 0.299*float64(r>>8) + 0.587*float64(g>>8) + 0.114*float64(b>>8)
			if luma > 255 {
				luma = 255
			}
			gray.SetGray(x-bounds.Min.X, y-bounds.Min.Y, grayColor(uint8(luma)))
		}
	}
	return gray
}

// equalizeAdaptive applies CLAHE: the image is divided into a tiles x tiles
// grid, each tile gets a clipped-histogram equalization LUT, and every pixel
// is mapped through a bilinear blend of the four nearest tile LUTs.
func equalizeAdaptive(gray *image.Gray, clip float64, tiles int) *image.Gray {
	width := gray.Bounds().Dx()
	height := gray.Bounds().Dy()
	if width < tiles || height < tiles {
		return gray
	}

	tileW := (width + tiles - 1) / tiles
	tileH := (height + tiles - 1) / tiles

	// Per-tile LUTs from clipped histograms.
	luts := make([][]uint8, tiles*tiles)
	for ty := 0; ty < tiles; ty++ {
		for tx := 0; tx < tiles; tx++ {
			x0 := tx * tileW
			y0 := ty * tileH
			x1 := min(x0+tileW, width)
			y1 := min(y0+tileH, height)
			luts[ty*tiles+tx] = tileLUT(gray, x0, y0, x1, y1, clip)
		}
	}

	out := image.NewGray(gray.Bounds())
	for y := 0; y < height; y++ {
		// Vertical position relative to tile centers.
		fy := (float64(y) - float64(tileH)/2) / float64(tileH)
		ty0 := int(fy)
		if fy < 0 {
			ty0 = -1
		}
		wy := fy - float64(ty0)
		ty1 := ty0 + 1
		ty0 = clampTile(ty0, tiles)
		ty1 = clampTile(ty1, tiles)

		for x := 0; x < width; x++ {
			fx := (float64(x) - float64(tileW)/2) / float64(tileW)
			tx0 := int(fx)
			if fx < 0 {
				tx0 = -1
			}
			wx := fx - float64(tx0)
			tx1 := tx0 + 1
			tx0 = clampTile(tx0, tiles)
			tx1 = clampTile(tx1, tiles)

			v := gray.GrayAt(x, y).Y
			tl := float64(luts[ty0*tiles+tx0][v])
			tr := float64(luts[ty0*tiles+tx1][v])
			bl := float64(luts[ty1*tiles+tx0][v])
			br := float64(luts[ty1*tiles+tx1][v])

			top := tl*(1-wx) + tr*wx
			bottom := bl*(1-wx) + br*wx
			out.SetGray(x, y, grayColor(uint8(top*(1-wy)+bottom*wy+0.5)))
		}
	}
	return out
}

// tileLUT builds the equalization lookup table for one tile. The histogram
// is clipped at clip times the average bin height and the excess is
// redistributed uniformly before computing the CDF.
func tileLUT(gray *image.Gray, x0, y0, x1, y1 int, clip float64) []uint8 {
	var hist [256]int
	pixels := (x1 - x0) * (y1 - y0)
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			hist[gray.GrayAt(x, y).Y]++
		}
	}

	limit := int(clip * float64(pixels) / 256)
	if limit < 1 {
		limit = 1
	}
	excess := 0
	for i := range hist {
		if hist[i] > limit {
			excess += hist[i] - limit
			hist[i] = limit
		}
	}
	share := excess / 256
	rem := excess % 256
	for i := range hist {
		hist[i] += share
		if i < rem {
			hist[i]++
		}
	}

	lut := make([]uint8, 256)
	cdf := 0
	for i := range hist {
		cdf += hist[i]
		v := (cdf*255 + pixels/2) / pixels
		if v > 255 {
			v = 255
		}
		lut[i] = uint8(v)
	}
	return lut
}

func clampTile(t, tiles int) int {
	if t < 0 {
		return 0
	}
	if t >= tiles {
		return tiles - 1
	}
	return t
}
