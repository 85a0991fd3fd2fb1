// Package vision converts between external encoded images and the internal
// pixel representation the feature extractor works on.
package vision

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"strings"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
)

// ErrInvalidImage means decoding produced no pixel data.
var ErrInvalidImage = errors.New("invalid image")

const thumbnailQuality = 85

// Decode decodes a submitted image. It accepts raw bytes in any registered
// still-image container (JPEG, PNG, GIF, BMP) and also textual inline
// base64, with or without a data: URL prefix.
func Decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrInvalidImage)
	}
	if img, err := decodeRaw(data); err == nil {
		return img, nil
	}
	return DecodeInline(string(data))
}

// DecodeInline decodes a base64-encoded image string, stripping an
// optional "data:...;base64," prefix first.
func DecodeInline(s string) (image.Image, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "data:") {
		if i := strings.Index(s, ","); i >= 0 {
			s = s[i+1:]
		}
	}
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: not raw image bytes nor base64", ErrInvalidImage)
	}
	return decodeRaw(raw)
}

func decodeRaw(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if b := img.Bounds(); b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, fmt.Errorf("%w: zero-dimension image", ErrInvalidImage)
	}
	return img, nil
}

// EncodeJPEG encodes an image as JPEG with the given quality.
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encoding jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodeThumbnail downscales preserving aspect ratio so the larger dimension
// equals maxDim, then encodes as JPEG. Used only for preview blobs, never on
// the matching path.
func EncodeThumbnail(img image.Image, maxDim int) ([]byte, error) {
	if img == nil {
		return nil, ErrInvalidImage
	}
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	if maxDim > 0 && (width > maxDim || height > maxDim) {
		var newWidth, newHeight int
		if width > height {
			newWidth = maxDim
			newHeight = int(float64(height) * float64(maxDim) / float64(width))
		} else {
			newHeight = maxDim
			newWidth = int(float64(width) * float64(maxDim) / float64(height))
		}
		if newWidth < 1 {
			newWidth = 1
		}
		if newHeight < 1 {
			newHeight = 1
		}
		resized := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
		draw.BiLinear.Scale(resized, resized.Bounds(), img, bounds, draw.Over, nil)
		img = resized
	}

	return EncodeJPEG(img, thumbnailQuality)
}
