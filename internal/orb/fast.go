package orb

import (
	"image"
	"math"
)

const (
	patchSize   = 31 // descriptor patch diameter
	patchRadius = 15
	// patchBorder keeps rotated descriptor samples and the 5x5 smoothing
	// window inside the image.
	patchBorder = 16
	// segment test: 9 contiguous circle pixels must all be brighter or
	// all darker than the center.
	fastArc = 9
)

// Bresenham circle of radius 3, clockwise from 12 o'clock.
var circle16 = [16][2]int{
	{0, -3}, {1, -3}, {2, -2}, {3, -1},
	{3, 0}, {3, 1}, {2, 2}, {1, 3},
	{0, 3}, {-1, 3}, {-2, 2}, {-3, 1},
	{-3, 0}, {-3, -1}, {-2, -2}, {-1, -3},
}

type corner struct {
	x, y  int
	score float32
}

// detectFAST runs the FAST-9 segment test with non-maximum suppression.
// Corners closer than patchBorder to an edge are discarded so descriptor
// sampling never leaves the image.
func detectFAST(img *image.Gray, threshold uint8) []corner {
	w := img.Bounds().Dx()
	h := img.Bounds().Dy()
	if w <= 2*patchBorder || h <= 2*patchBorder {
		return nil
	}

	stride := img.Stride
	pix := img.Pix
	t := int(threshold)

	offsets := make([]int, 16)
	for i, c := range circle16 {
		offsets[i] = c[1]*stride + c[0]
	}

	scores := make([]float32, w*h)
	for y := patchBorder; y < h-patchBorder; y++ {
		row := y * stride
		for x := patchBorder; x < w-patchBorder; x++ {
			p := row + x
			c := int(pix[p])

			// Quick reject on the four compass points.
			bright, dark := 0, 0
			for _, i := range [4]int{0, 4, 8, 12} {
				v := int(pix[p+offsets[i]])
				if v >= c+t {
					bright++
				} else if v <= c-t {
					dark++
				}
			}
			if bright < 3 && dark < 3 {
				continue
			}

			if s := segmentScore(pix, p, offsets, c, t); s > 0 {
				scores[y*w+x] = s
			}
		}
	}

	var corners []corner
	for y := patchBorder; y < h-patchBorder; y++ {
		for x := patchBorder; x < w-patchBorder; x++ {
			s := scores[y*w+x]
			if s == 0 {
				continue
			}
			if !isLocalMax(scores, w, x, y, s) {
				continue
			}
			corners = append(corners, corner{x: x, y: y, score: s})
		}
	}
	return corners
}

// segmentScore returns a positive corner score when at least fastArc
// contiguous circle pixels are all brighter or all darker than the center
// by the threshold, and 0 otherwise. The score is the summed absolute
// contrast of the circle pixels that exceed the threshold.
func segmentScore(pix []uint8, p int, offsets []int, c, t int) float32 {
	var flags [32]int8 // doubled to handle wrap-around runs
	score := 0
	for i, off := range offsets {
		v := int(pix[p+off])
		if v >= c+t {
			flags[i] = 1
			flags[i+16] = 1
			score += v - c
		} else if v <= c-t {
			flags[i] = -1
			flags[i+16] = -1
			score += c - v
		}
	}

	for _, want := range [2]int8{1, -1} {
		run := 0
		for i := 0; i < 32; i++ {
			if flags[i] == want {
				run++
				if run >= fastArc {
					return float32(score)
				}
			} else {
				run = 0
			}
		}
	}
	return 0
}

// isLocalMax implements 3x3 non-maximum suppression; ties go to the
// earlier pixel in scan order.
func isLocalMax(scores []float32, w, x, y int, s float32) bool {
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			n := scores[(y+dy)*w+x+dx]
			if n > s {
				return false
			}
			if n == s && (dy < 0 || (dy == 0 && dx < 0)) {
				return false
			}
		}
	}
	return true
}

// orientation computes the intensity-centroid angle of the circular patch
// around (x, y).
func orientation(img *image.Gray, x, y int) float32 {
	stride := img.Stride
	pix := img.Pix

	var m10, m01 float64
	for dy := -patchRadius; dy <= patchRadius; dy++ {
		limit := int(math.Sqrt(float64(patchRadius*patchRadius - dy*dy)))
		row := (y + dy) * stride
		for dx := -limit; dx <= limit; dx++ {
			v := float64(pix[row+x+dx])
			m10 += float64(dx) * v
			m01 += float64(dy) * v
		}
	}
	return float32(math.Atan2(m01, m10))
}
