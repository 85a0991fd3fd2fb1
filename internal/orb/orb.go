// Package orb extracts rotation- and scale-aware binary feature descriptors
// from grayscale images and matches them by Hamming distance. It follows the
// ORB construction: FAST-9 corners over a small image pyramid, intensity
// centroid orientation, and a steered 256-bit BRIEF descriptor.
package orb

import (
	"image"
	"sort"

	"golang.org/x/image/draw"
)

// DescriptorSize is the fixed descriptor width in bytes (256 bits).
// It must be stable across ingestion and query; distances computed by
// HammingDistance therefore range 0..256.
const DescriptorSize = 32

// Descriptor is one binary feature descriptor.
type Descriptor [DescriptorSize]byte

// Keypoint is a detected corner in base-image coordinates.
type Keypoint struct {
	X, Y     float32
	Size     float32 // patch diameter in base-image pixels
	Angle    float32 // orientation in radians
	Response float32
	Octave   int
}

// Options configure the extractor.
type Options struct {
	MaxFeatures int     // keypoint budget per image
	Threshold   uint8   // FAST intensity threshold
	Levels      int     // pyramid levels
	ScaleFactor float64 // scale between pyramid levels
}

// DefaultOptions returns the extractor configuration used across ingestion
// and query: up to 1000 keypoints, FAST threshold 20, 4 pyramid levels.
func DefaultOptions() Options {
	return Options{
		MaxFeatures: 1000,
		Threshold:   20,
		Levels:      4,
		ScaleFactor: 1.2,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxFeatures <= 0 {
		o.MaxFeatures = d.MaxFeatures
	}
	if o.Threshold == 0 {
		o.Threshold = d.Threshold
	}
	if o.Levels <= 0 {
		o.Levels = d.Levels
	}
	if o.ScaleFactor <= 1 {
		o.ScaleFactor = d.ScaleFactor
	}
	return o
}

// minSide is the smallest pyramid level worth processing; the descriptor
// patch needs a 16 pixel border on every side.
const minSide = 2*patchBorder + 1

// Extract detects keypoints and computes their descriptors. Both slices are
// index-aligned. Textureless or too-small images yield empty results;
// callers must handle that.
func Extract(img *image.Gray, opts Options) ([]Keypoint, []Descriptor) {
	if img == nil {
		return nil, nil
	}
	opts = opts.withDefaults()

	var keypoints []Keypoint
	var descriptors []Descriptor

	scale := 1.0
	level := img
	for octave := 0; octave < opts.Levels; octave++ {
		if octave > 0 {
			scale *= opts.ScaleFactor
			level = downscale(img, scale)
		}
		if level == nil || level.Bounds().Dx() < minSide || level.Bounds().Dy() < minSide {
			break
		}

		corners := detectFAST(level, opts.Threshold)
		if len(corners) == 0 {
			continue
		}
		smooth := boxBlur5(level)
		for _, c := range corners {
			angle := orientation(level, c.x, c.y)
			keypoints = append(keypoints, Keypoint{
				X:        float32(float64(c.x) * scale),
				Y:        float32(float64(c.y) * scale),
				Size:     float32(patchSize * scale),
				Angle:    angle,
				Response: c.score,
				Octave:   octave,
			})
			descriptors = append(descriptors, describe(smooth, c.x, c.y, angle))
		}
	}

	if len(keypoints) > opts.MaxFeatures {
		keypoints, descriptors = strongest(keypoints, descriptors, opts.MaxFeatures)
	}
	return keypoints, descriptors
}

// strongest keeps the n keypoints with the highest response, preserving
// detection order among equals.
func strongest(kps []Keypoint, descs []Descriptor, n int) ([]Keypoint, []Descriptor) {
	idx := make([]int, len(kps))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return kps[idx[a]].Response > kps[idx[b]].Response
	})
	idx = idx[:n]
	sort.Ints(idx)

	outK := make([]Keypoint, n)
	outD := make([]Descriptor, n)
	for i, j := range idx {
		outK[i] = kps[j]
		outD[i] = descs[j]
	}
	return outK, outD
}

func downscale(img *image.Gray, scale float64) *image.Gray {
	w := int(float64(img.Bounds().Dx()) / scale)
	h := int(float64(img.Bounds().Dy()) / scale)
	if w < 1 || h < 1 {
		return nil
	}
	dst := image.NewGray(image.Rect(0, 0, w, h))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}
