// Package recognizer exposes the recognition pipeline as one service:
// decode, preprocess, extract, match against the template population.
package recognizer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/centrominero/labvision/internal/catalog"
	"github.com/centrominero/labvision/internal/matcher"
	"github.com/centrominero/labvision/internal/orb"
	"github.com/centrominero/labvision/internal/store"
	"github.com/centrominero/labvision/internal/vision"
)

// ErrUnknownObject means a register or delete call named an owner id that
// does not exist in the registry.
var ErrUnknownObject = errors.New("unknown object")

// Config wires a Service. Objects may be nil when no database is
// configured; owner names must then be supplied explicitly.
type Config struct {
	Store     *store.Store
	Objects   catalog.ObjectGetter
	Extractor orb.Options
	Matcher   matcher.Options
	MaxPerKey int
}

// Service runs the recognition pipeline over a template store.
type Service struct {
	store     *store.Store
	objects   catalog.ObjectGetter
	orbOpts   orb.Options
	matchOpts matcher.Options
	maxPerKey int
}

// New creates a Service.
func New(cfg Config) *Service {
	if cfg.MaxPerKey <= 0 {
		cfg.MaxPerKey = store.DefaultMaxPerKey
	}
	return &Service{
		store:     cfg.Store,
		objects:   cfg.Objects,
		orbOpts:   cfg.Extractor,
		matchOpts: cfg.Matcher,
		maxPerKey: cfg.MaxPerKey,
	}
}

// QueryOptions override the service's matching defaults for one recognize
// call. Zero values keep the configured defaults.
type QueryOptions struct {
	// Cap bounds how many templates one object contributes.
	Cap int
	// MinGood is the minimum number of good descriptor pairs per template.
	MinGood int
	// Threshold is the minimum best score for a positive result.
	Threshold float64
}

// Recognition is one query outcome plus pipeline metadata.
type Recognition struct {
	matcher.Result
	QueryFeatures    int   `json:"query_features"`
	TemplatesChecked int   `json:"templates_checked"`
	DurationMS       int64 `json:"duration_ms"`
}

// Recognize answers whether the image shows a known object. Image data may
// be raw encoded bytes or base64 of the same; a data-URL prefix is
// tolerated. ErrInvalidImage and ErrStorageUnavailable pass through to the
// caller; every other outcome is a regular negative result.
func (s *Service) Recognize(ctx context.Context, imageData []byte, opts QueryOptions) (*Recognition, error) {
	started := time.Now()

	maxPerKey := s.maxPerKey
	if opts.Cap > 0 {
		maxPerKey = opts.Cap
	}
	matchOpts := s.matchOpts
	if opts.MinGood > 0 {
		matchOpts.MinGoodMatches = opts.MinGood
	}
	if opts.Threshold > 0 {
		matchOpts.ConfidenceThreshold = opts.Threshold
	}

	img, err := vision.Decode(imageData)
	if err != nil {
		return nil, err
	}
	prepared := vision.Preprocess(img)
	_, descs := orb.Extract(prepared, s.orbOpts)

	rec := &Recognition{QueryFeatures: len(descs)}
	if len(descs) == 0 {
		rec.Result = matcher.Result{Reason: matcher.ReasonNoFeatures}
		rec.DurationMS = time.Since(started).Milliseconds()
		return rec, nil
	}

	bundle, err := s.store.CurrentBundle(ctx, maxPerKey)
	if err != nil {
		return nil, err
	}
	rec.TemplatesChecked = len(bundle.Templates)
	rec.Result = matcher.Match(ctx, descs, bundle.Templates, matchOpts)
	rec.DurationMS = time.Since(started).Milliseconds()
	return rec, nil
}

// RegisterRequest describes one training-image registration.
type RegisterRequest struct {
	Kind      catalog.OwnerKind
	OwnerID   int64
	OwnerName string
	ImageData []byte
	Category  string
	ViewTag   catalog.ViewTag
	Source    string
	Notes     string
}

// RegisterReference ingests one training image. When the owner name is
// absent it is resolved from the registry by id.
func (s *Service) RegisterReference(ctx context.Context, req RegisterRequest) (*store.IngestResult, error) {
	name, err := s.resolveName(ctx, req.OwnerID, req.OwnerName)
	if err != nil {
		return nil, err
	}

	img, err := vision.Decode(req.ImageData)
	if err != nil {
		return nil, err
	}

	return s.store.SaveTrainingImage(ctx, img, store.IngestRequest{
		OwnerKind: req.Kind,
		OwnerID:   req.OwnerID,
		OwnerName: name,
		Category:  req.Category,
		ViewTag:   req.ViewTag,
		Source:    req.Source,
		Notes:     req.Notes,
	})
}

// DeleteObjectData removes every training artifact of one object.
func (s *Service) DeleteObjectData(ctx context.Context, kind catalog.OwnerKind, ownerID int64, name string) (int, error) {
	resolved, err := s.resolveName(ctx, ownerID, name)
	if err != nil {
		return 0, err
	}
	return s.store.DeleteTrainingData(ctx, kind, ownerID, resolved)
}

// Stats reports the storage breakdown and the loaded template population.
type Stats struct {
	Storage       store.Stats `json:"storage"`
	Templates     int         `json:"templates"`
	BundleVersion uint64      `json:"bundle_version"`
}

// Stats counts stored training data and the currently loaded templates.
// Template counting is best effort; storage being unreachable degrades to
// a zero count rather than failing the whole call.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	storage, err := s.store.CollectStats(ctx)
	if err != nil {
		return nil, err
	}
	st := &Stats{Storage: storage}
	if bundle, err := s.store.CurrentBundle(ctx, s.maxPerKey); err == nil {
		st.Templates = len(bundle.Templates)
		st.BundleVersion = bundle.Version
	}
	return st, nil
}

func (s *Service) resolveName(ctx context.Context, ownerID int64, name string) (string, error) {
	if name != "" {
		return name, nil
	}
	if s.objects == nil || ownerID <= 0 {
		return "", errors.New("owner name is required")
	}
	obj, err := s.objects.GetObject(ctx, ownerID)
	if err != nil {
		return "", fmt.Errorf("resolving object %d: %w", ownerID, err)
	}
	if obj == nil {
		return "", fmt.Errorf("%w: id %d", ErrUnknownObject, ownerID)
	}
	return obj.Name, nil
}
