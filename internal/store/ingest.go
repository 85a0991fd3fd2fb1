package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/centrominero/labvision/internal/catalog"
	"github.com/centrominero/labvision/internal/orb"
	"github.com/centrominero/labvision/internal/vision"
)

const (
	trainingImageQuality = 95
	thumbnailMaxDim      = 320
)

// IngestRequest describes one training image being registered.
type IngestRequest struct {
	OwnerKind catalog.OwnerKind
	OwnerID   int64
	OwnerName string
	Category  string
	ViewTag   catalog.ViewTag
	Source    string // "upload" or "camera"
	Notes     string
}

// IngestResult reports a successful registration.
type IngestResult struct {
	ReferenceID  int64  `json:"reference_id"`
	FeatureCount int    `json:"feature_count"`
	ImagePath    string `json:"image_path"`
	Slug         string `json:"slug"`
}

// featureSidecar caches the extracted feature set next to the image.
// Purely an optimization artifact: nothing reads it back for correctness.
type featureSidecar struct {
	Count       int          `json:"count"`
	Keypoints   [][4]float32 `json:"keypoints"` // x, y, angle, size
	Descriptors [][]byte     `json:"descriptors"`
}

type imageMetadata struct {
	OwnerKind   string `json:"owner_kind"`
	OwnerID     int64  `json:"owner_id"`
	Nombre      string `json:"nombre"`
	Vista       string `json:"vista,omitempty"`
	Fuente      string `json:"fuente"`
	Notas       string `json:"notas,omitempty"`
	NumFeatures int    `json:"num_features"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Timestamp   string `json:"timestamp"`
}

type objectMetadata struct {
	Nombre    string `json:"nombre"`
	Tipo      string `json:"tipo"`
	Categoria string `json:"categoria,omitempty"`
}

// SaveTrainingImage persists one training image: the JPEG file under the
// object's directory, the feature and metadata sidecars, and the database
// row when a reference store is configured. Registration is strict: any
// failure is surfaced, and an image without extractable features fails
// with ErrNoFeatures (only the raw image file is left behind).
func (s *Store) SaveTrainingImage(ctx context.Context, img image.Image, req IngestRequest) (*IngestResult, error) {
	if !req.OwnerKind.Valid() {
		return nil, fmt.Errorf("unknown owner kind %q", req.OwnerKind)
	}
	slug := catalog.Slugify(req.OwnerName)
	if slug == "" {
		return nil, fmt.Errorf("owner name %q yields an empty slug", req.OwnerName)
	}
	if req.Source == "" {
		req.Source = "upload"
	}

	objectDir := filepath.Join(s.root, req.OwnerKind.Dir(), slug)
	imageDir := objectDir
	if req.ViewTag != catalog.ViewUnspecified {
		imageDir = filepath.Join(objectDir, string(req.ViewTag))
	}
	if err := os.MkdirAll(imageDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", imageDir, err)
	}

	encoded, err := vision.EncodeJPEG(img, trainingImageQuality)
	if err != nil {
		return nil, err
	}

	sum := sha256.Sum256(encoded)
	fileName := fmt.Sprintf("%s_%s.jpg", time.Now().Format("20060102_150405"), hex.EncodeToString(sum[:4]))
	imagePath := filepath.Join(imageDir, fileName)
	if err := os.WriteFile(imagePath, encoded, 0o644); err != nil {
		return nil, fmt.Errorf("writing %s: %w", imagePath, err)
	}

	prepared := vision.Preprocess(img)
	keypoints, descriptors := orb.Extract(prepared, s.orbOpts)
	if len(descriptors) == 0 {
		return nil, ErrNoFeatures
	}

	stem := strings.TrimSuffix(imagePath, ".jpg")
	if err := s.writeFeatureSidecar(stem, keypoints, descriptors); err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	meta := imageMetadata{
		OwnerKind:   string(req.OwnerKind),
		OwnerID:     req.OwnerID,
		Nombre:      req.OwnerName,
		Vista:       string(req.ViewTag),
		Fuente:      req.Source,
		Notas:       req.Notes,
		NumFeatures: len(descriptors),
		Width:       bounds.Dx(),
		Height:      bounds.Dy(),
		Timestamp:   time.Now().Format(time.RFC3339),
	}
	if err := writeJSON(stem+"_metadata.json", meta); err != nil {
		return nil, err
	}

	objMeta := objectMetadata{
		Nombre:    req.OwnerName,
		Tipo:      string(req.OwnerKind),
		Categoria: req.Category,
	}
	if err := writeJSON(filepath.Join(objectDir, "metadata.json"), objMeta); err != nil {
		return nil, err
	}

	var referenceID int64
	if s.refs != nil {
		thumb, err := vision.EncodeThumbnail(img, thumbnailMaxDim)
		if err != nil {
			return nil, err
		}
		relPath, err := filepath.Rel(s.root, imagePath)
		if err != nil {
			relPath = imagePath
		}
		referenceID, err = s.refs.InsertReference(ctx, NewReference{
			OwnerID:     req.OwnerID,
			Path:        filepath.ToSlash(relPath),
			Blob:        encoded,
			Thumb:       thumb,
			ContentType: "image/jpeg",
			Source:      req.Source,
			ViewTag:     req.ViewTag,
			Notes:       req.Notes,
		})
		if err != nil {
			return nil, fmt.Errorf("inserting reference row: %w", err)
		}
	}

	s.Invalidate()

	return &IngestResult{
		ReferenceID:  referenceID,
		FeatureCount: len(descriptors),
		ImagePath:    imagePath,
		Slug:         slug,
	}, nil
}

func (s *Store) writeFeatureSidecar(stem string, keypoints []orb.Keypoint, descriptors []orb.Descriptor) error {
	sidecar := featureSidecar{
		Count:       len(descriptors),
		Keypoints:   make([][4]float32, len(keypoints)),
		Descriptors: make([][]byte, len(descriptors)),
	}
	for i, kp := range keypoints {
		sidecar.Keypoints[i] = [4]float32{kp.X, kp.Y, kp.Angle, kp.Size}
	}
	for i := range descriptors {
		d := descriptors[i]
		sidecar.Descriptors[i] = d[:]
	}
	return writeJSON(stem+"_features.json", sidecar)
}

// DeleteTrainingData removes every training artifact for one object: its
// directory tree under the image root and, when a reference store is
// configured, its database rows. Returns the number of files removed.
func (s *Store) DeleteTrainingData(ctx context.Context, kind catalog.OwnerKind, ownerID int64, name string) (int, error) {
	if !kind.Valid() {
		return 0, fmt.Errorf("unknown owner kind %q", kind)
	}
	slug := catalog.Slugify(name)
	if slug == "" {
		return 0, fmt.Errorf("owner name %q yields an empty slug", name)
	}

	dir := filepath.Join(s.root, kind.Dir(), slug)
	files := 0
	_ = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			files++
		}
		return nil
	})
	if err := os.RemoveAll(dir); err != nil {
		return 0, fmt.Errorf("removing %s: %w", dir, err)
	}

	if s.refs != nil && ownerID > 0 {
		if _, err := s.refs.DeleteReferences(ctx, ownerID); err != nil {
			return files, fmt.Errorf("deleting reference rows: %w", err)
		}
	}

	s.Invalidate()
	return files, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
