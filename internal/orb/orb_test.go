package orb

import (
	"image"
	"math/rand"
	"testing"
)

// texturedImage draws deterministic random rectangles so FAST has plenty
// of corners to find.
func texturedImage(width, height int, seed int64) *image.Gray {
	rng := rand.New(rand.NewSource(seed))
	img := image.NewGray(image.Rect(0, 0, width, height))
	for i := range img.Pix {
		img.Pix[i] = 128
	}
	for n := 0; n < 60; n++ {
		x0 := rng.Intn(width - 12)
		y0 := rng.Intn(height - 12)
		w := 4 + rng.Intn(24)
		h := 4 + rng.Intn(24)
		v := uint8(rng.Intn(256))
		for y := y0; y < y0+h && y < height; y++ {
			for x := x0; x < x0+w && x < width; x++ {
				img.Pix[y*img.Stride+x] = v
			}
		}
	}
	return img
}

func solidGray(width, height int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, width, height))
	for i := range img.Pix {
		img.Pix[i] = 128
	}
	return img
}

func TestExtractTextured(t *testing.T) {
	kps, descs := Extract(texturedImage(320, 240, 1), DefaultOptions())
	if len(kps) == 0 {
		t.Fatal("expected keypoints on a textured image")
	}
	if len(kps) != len(descs) {
		t.Fatalf("keypoints (%d) and descriptors (%d) not aligned", len(kps), len(descs))
	}
	if len(kps) > DefaultOptions().MaxFeatures {
		t.Errorf("keypoint budget exceeded: %d", len(kps))
	}
	for i, kp := range kps {
		if kp.X < 0 || kp.Y < 0 {
			t.Fatalf("keypoint %d has negative coordinates: %+v", i, kp)
		}
	}
}

func TestExtractTextureless(t *testing.T) {
	kps, descs := Extract(solidGray(224, 224), DefaultOptions())
	if len(kps) != 0 || len(descs) != 0 {
		t.Errorf("solid image should yield no features, got %d", len(kps))
	}
}

func TestExtractTooSmall(t *testing.T) {
	kps, _ := Extract(solidGray(8, 8), DefaultOptions())
	if len(kps) != 0 {
		t.Errorf("tiny image should yield no features, got %d", len(kps))
	}
}

func TestExtractNil(t *testing.T) {
	kps, descs := Extract(nil, DefaultOptions())
	if kps != nil || descs != nil {
		t.Error("nil image should yield nil results")
	}
}

func TestExtractDeterministic(t *testing.T) {
	img := texturedImage(320, 240, 2)
	_, a := Extract(img, DefaultOptions())
	_, b := Extract(img, DefaultOptions())
	if len(a) != len(b) {
		t.Fatalf("descriptor count differs: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("descriptor %d differs between runs", i)
		}
	}
}

func TestExtractBudget(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxFeatures = 50
	kps, descs := Extract(texturedImage(480, 360, 3), opts)
	if len(kps) > 50 || len(descs) > 50 {
		t.Errorf("budget 50 exceeded: %d keypoints", len(kps))
	}
	if len(kps) != len(descs) {
		t.Errorf("truncation misaligned: %d vs %d", len(kps), len(descs))
	}
}

func TestHammingDistance(t *testing.T) {
	var zero, ones, one Descriptor
	for i := range ones {
		ones[i] = 0xFF
	}
	one[0] = 0x01

	tests := []struct {
		name     string
		a, b     *Descriptor
		expected int
	}{
		{"identical", &zero, &zero, 0},
		{"all bits differ", &zero, &ones, 256},
		{"single bit", &zero, &one, 1},
		{"symmetric", &one, &zero, 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := HammingDistance(tc.a, tc.b); got != tc.expected {
				t.Errorf("HammingDistance = %d, want %d", got, tc.expected)
			}
		})
	}
}

func randomDescriptors(n int, seed int64) []Descriptor {
	rng := rand.New(rand.NewSource(seed))
	out := make([]Descriptor, n)
	for i := range out {
		for j := range out[i] {
			out[i][j] = uint8(rng.Intn(256))
		}
	}
	return out
}

func TestMatchMutualIdentical(t *testing.T) {
	descs := randomDescriptors(40, 11)
	matches := MatchMutual(descs, descs)
	if len(matches) != 40 {
		t.Fatalf("identical sets should fully match, got %d of 40", len(matches))
	}
	for _, m := range matches {
		if m.QueryIdx != m.TrainIdx {
			t.Errorf("match crossed indices: %+v", m)
		}
		if m.Distance != 0 {
			t.Errorf("identical descriptors should match at distance 0, got %d", m.Distance)
		}
	}
}

func TestMatchMutualInverted(t *testing.T) {
	descs := randomDescriptors(20, 12)
	inverted := make([]Descriptor, len(descs))
	for i := range descs {
		for j := range descs[i] {
			inverted[i][j] = ^descs[i][j]
		}
	}
	for _, m := range MatchMutual(descs, inverted) {
		if m.Distance < 96 {
			t.Errorf("inverted corpus should stay far, got distance %d", m.Distance)
		}
	}
}

func TestMatchMutualEmpty(t *testing.T) {
	descs := randomDescriptors(5, 13)
	if MatchMutual(nil, descs) != nil {
		t.Error("empty query should yield no matches")
	}
	if MatchMutual(descs, nil) != nil {
		t.Error("empty train should yield no matches")
	}
}

func TestMatchMutualIsCrossChecked(t *testing.T) {
	query := randomDescriptors(30, 14)
	train := randomDescriptors(10, 15)
	matches := MatchMutual(query, train)

	// Cross-checking means a train descriptor appears in at most one pair.
	seen := make(map[int]bool)
	for _, m := range matches {
		if seen[m.TrainIdx] {
			t.Fatalf("train descriptor %d matched twice", m.TrainIdx)
		}
		seen[m.TrainIdx] = true
	}
	if len(matches) > len(train) {
		t.Fatalf("more matches (%d) than train descriptors (%d)", len(matches), len(train))
	}
}
