package orb

import (
	"image"
	"math"
	"math/rand"
)

const numPairs = DescriptorSize * 8

// sampleRadius bounds pattern points so that any rotation of a sample
// stays within the patch border.
const sampleRadius = 13

// pattern holds the fixed BRIEF test pairs (x1, y1, x2, y2). It is
// generated once from a constant seed so descriptors are identical across
// processes and across ingestion and query.
var pattern [numPairs][4]int8

func init() {
	rng := rand.New(rand.NewSource(0x0b5e55ed))
	sigma := float64(patchSize) / 5
	point := func() (int8, int8) {
		for {
			x := int(math.Round(rng.NormFloat64() * sigma))
			y := int(math.Round(rng.NormFloat64() * sigma))
			if x*x+y*y <= sampleRadius*sampleRadius {
				return int8(x), int8(y)
			}
		}
	}
	for i := range pattern {
		x1, y1 := point()
		x2, y2 := point()
		pattern[i] = [4]int8{x1, y1, x2, y2}
	}
}

// smoothed holds 5x5 box-blurred intensities; BRIEF compares smoothed
// pixels to be robust against sensor noise and JPEG artifacts.
type smoothed struct {
	w, h int
	pix  []uint8
}

func (s *smoothed) at(x, y int) uint8 {
	return s.pix[y*s.w+x]
}

// boxBlur5 computes a 5x5 mean filter over the whole image using an
// integral image, clamping the window at the edges.
func boxBlur5(img *image.Gray) *smoothed {
	w := img.Bounds().Dx()
	h := img.Bounds().Dy()
	stride := img.Stride
	pix := img.Pix

	// Integral image with a zero row/column border.
	integral := make([]uint32, (w+1)*(h+1))
	iw := w + 1
	for y := 0; y < h; y++ {
		var rowSum uint32
		row := y * stride
		for x := 0; x < w; x++ {
			rowSum += uint32(pix[row+x])
			integral[(y+1)*iw+x+1] = integral[y*iw+x+1] + rowSum
		}
	}

	out := &smoothed{w: w, h: h, pix: make([]uint8, w*h)}
	for y := 0; y < h; y++ {
		y0 := max(y-2, 0)
		y1 := min(y+2, h-1)
		for x := 0; x < w; x++ {
			x0 := max(x-2, 0)
			x1 := min(x+2, w-1)
			sum := integral[(y1+1)*iw+x1+1] - integral[y0*iw+x1+1] -
				integral[(y1+1)*iw+x0] + integral[y0*iw+x0]
			area := uint32((y1 - y0 + 1) * (x1 - x0 + 1))
			out.pix[y*w+x] = uint8(sum / area)
		}
	}
	return out
}

// describe computes the steered BRIEF descriptor for the keypoint at
// (x, y): every test pair is rotated by the keypoint angle before sampling.
func describe(s *smoothed, x, y int, angle float32) Descriptor {
	cos := math.Cos(float64(angle))
	sin := math.Sin(float64(angle))

	rotate := func(px, py int8) (int, int) {
		fx := float64(px)
		fy := float64(py)
		return int(math.Round(cos*fx - sin*fy)), int(math.Round(sin*fx + cos*fy))
	}

	var d Descriptor
	for i, p := range pattern {
		ax, ay := rotate(p[0], p[1])
		bx, by := rotate(p[2], p[3])
		if s.at(x+ax, y+ay) < s.at(x+bx, y+by) {
			d[i>>3] |= 1 << uint(i&7)
		}
	}
	return d
}
