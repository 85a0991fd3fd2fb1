// Package store persists training images for registered objects and
// enumerates the template population the matcher runs against. Reference
// images live in two places: inline blobs in the database (primary, written
// by the web UI) and image files under the filesystem root (the older path,
// kept for compatibility). Either side may be missing; enumeration
// tolerates both.
package store

import (
	"context"
	"errors"
	"image"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/centrominero/labvision/internal/catalog"
	"github.com/centrominero/labvision/internal/orb"
	"github.com/centrominero/labvision/internal/vision"
)

// DefaultMaxPerKey caps how many templates a single object contributes to
// one match call. Without it a heavily photographed object would dominate
// the matcher's time budget.
const DefaultMaxPerKey = 12

var (
	// ErrNoFeatures means extraction produced empty descriptors for a
	// training image.
	ErrNoFeatures = errors.New("no features extracted from image")
	// ErrStorageUnavailable means the filesystem root is missing and the
	// database is unreachable at the same time.
	ErrStorageUnavailable = errors.New("template storage unavailable")
)

// Template is one enumerated matching unit: the owning object's slug, the
// preprocessed grayscale image and its precomputed descriptors.
type Template struct {
	Key         string
	Image       *image.Gray
	Descriptors []orb.Descriptor
}

// Bundle is an immutable template snapshot. Callers hold a reference for
// the duration of one match; a later ingestion produces a new bundle
// instead of mutating this one.
type Bundle struct {
	Version   uint64
	MaxPerKey int
	Templates []Template
	LoadedAt  time.Time
}

// NewReference is a reference-image row to be inserted in the database.
type NewReference struct {
	OwnerID     int64
	Path        string
	Blob        []byte
	Thumb       []byte
	ContentType string
	Source      string
	ViewTag     catalog.ViewTag
	Notes       string
}

// ReferenceStats is the database-side breakdown used by the stats surface.
type ReferenceStats struct {
	Objects   int
	Total     int
	ByViewTag map[string]int
}

// ReferenceStore is the database side of the template store. All methods
// are optional as a group: a Store built without one works filesystem-only.
type ReferenceStore interface {
	InsertReference(ctx context.Context, ref NewReference) (int64, error)
	DeleteReferences(ctx context.Context, ownerID int64) (int64, error)
	ReferenceStats(ctx context.Context) (ReferenceStats, error)
}

// Config wires a Store. Registry, Blobs and References may each be nil.
type Config struct {
	Root       string
	Registry   catalog.ObjectRegistry
	Blobs      catalog.BlobReader
	References ReferenceStore
	Extractor  orb.Options
}

// Store owns the reference-image storage and the current template bundle.
type Store struct {
	root     string
	registry catalog.ObjectRegistry
	blobs    catalog.BlobReader
	refs     ReferenceStore
	orbOpts  orb.Options

	version atomic.Uint64
	bundle  atomic.Pointer[Bundle]
}

// New creates a Store over the given backends.
func New(cfg Config) *Store {
	return &Store{
		root:     cfg.Root,
		registry: cfg.Registry,
		blobs:    cfg.Blobs,
		refs:     cfg.References,
		orbOpts:  cfg.Extractor,
	}
}

// Root returns the filesystem image root.
func (s *Store) Root() string {
	return s.root
}

// CurrentBundle returns the template bundle for the running version,
// rebuilding it when an ingestion has invalidated the previous one or the
// cap changed. Readers never block each other; concurrent rebuilds are
// wasteful but harmless.
func (s *Store) CurrentBundle(ctx context.Context, maxPerKey int) (*Bundle, error) {
	if maxPerKey <= 0 {
		maxPerKey = DefaultMaxPerKey
	}
	version := s.version.Load()
	if b := s.bundle.Load(); b != nil && b.Version == version && b.MaxPerKey == maxPerKey {
		return b, nil
	}

	templates, err := s.LoadTemplates(ctx, maxPerKey)
	if err != nil {
		return nil, err
	}
	b := &Bundle{
		Version:   version,
		MaxPerKey: maxPerKey,
		Templates: templates,
		LoadedAt:  time.Now(),
	}
	s.bundle.Store(b)
	return b, nil
}

// Invalidate marks the current bundle stale; the next enumeration rebuilds.
func (s *Store) Invalidate() {
	s.version.Add(1)
}

// LoadTemplates enumerates eligible templates: database blobs first, then
// the filesystem tree, both capped per key. Individual unreadable entries
// are skipped; the call fails only when neither storage location is
// reachable at all. No ordering is guaranteed.
func (s *Store) LoadTemplates(ctx context.Context, maxPerKey int) ([]Template, error) {
	if maxPerKey <= 0 {
		maxPerKey = DefaultMaxPerKey
	}

	allow := s.allowedKeys(ctx)
	counts := make(map[string]int)
	var templates []Template

	dbOK := false
	if s.blobs != nil {
		rows, err := s.blobs.ReferenceRows(ctx)
		if err != nil {
			log.Printf("template store: database enumeration failed: %v", err)
		} else {
			dbOK = true
			for _, row := range rows {
				if len(row.Blob) == 0 {
					continue
				}
				key := catalog.Slugify(row.Name)
				if key == "" {
					continue
				}
				if len(allow) > 0 && !allow[key] {
					continue
				}
				if counts[key] >= maxPerKey {
					continue
				}
				tpl, ok := s.templateFromBytes(key, row.Blob)
				if !ok {
					continue
				}
				templates = append(templates, tpl)
				counts[key]++
			}
		}
	}

	fsOK := false
	if s.root != "" {
		if info, err := os.Stat(s.root); err == nil && info.IsDir() {
			fsOK = true
			// The registry allow-list filters registered objects; the
			// equipment tree has no recognize flag and is always eligible.
			s.walkKindDir(filepath.Join(s.root, catalog.KindItem.Dir()), allow, maxPerKey, counts, &templates)
			s.walkKindDir(filepath.Join(s.root, catalog.KindEquipment.Dir()), nil, maxPerKey, counts, &templates)
		}
	}

	if !dbOK && !fsOK {
		return nil, ErrStorageUnavailable
	}
	return templates, nil
}

// allowedKeys builds the slug allow-list from objects flagged for
// recognition. An empty set disables filtering, matching the behavior when
// no registry is configured or the flag column is missing.
func (s *Store) allowedKeys(ctx context.Context) map[string]bool {
	if s.registry == nil {
		return nil
	}
	objects, err := s.registry.ListObjects(ctx)
	if err != nil {
		log.Printf("template store: object registry unavailable: %v", err)
		return nil
	}
	allow := make(map[string]bool, len(objects))
	for _, o := range objects {
		if !o.Recognize {
			continue
		}
		key := o.Slug
		if key == "" {
			key = catalog.Slugify(o.Name)
		}
		if key != "" {
			allow[key] = true
		}
	}
	return allow
}

func (s *Store) walkKindDir(base string, allow map[string]bool, maxPerKey int, counts map[string]int, out *[]Template) {
	entries, err := os.ReadDir(base)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		key := catalog.Slugify(entry.Name())
		if key == "" {
			continue
		}
		if len(allow) > 0 && !allow[key] {
			continue
		}
		if counts[key] >= maxPerKey {
			continue
		}
		s.walkObjectDir(filepath.Join(base, entry.Name()), key, maxPerKey, counts, out)
	}
}

func (s *Store) walkObjectDir(dir, key string, maxPerKey int, counts map[string]int, out *[]Template) {
	_ = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if counts[key] >= maxPerKey {
			return filepath.SkipAll
		}
		if !isImageFile(d.Name()) {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			log.Printf("template store: skipping unreadable %s: %v", path, err)
			return nil
		}
		tpl, ok := s.templateFromBytes(key, data)
		if !ok {
			log.Printf("template store: skipping undecodable %s", path)
			return nil
		}
		*out = append(*out, tpl)
		counts[key]++
		return nil
	})
}

// templateFromBytes decodes and preprocesses one stored image and computes
// its descriptors so match calls do not repeat the work.
func (s *Store) templateFromBytes(key string, data []byte) (Template, bool) {
	img, err := vision.Decode(data)
	if err != nil {
		return Template{}, false
	}
	prepared := vision.Preprocess(img)
	_, descs := orb.Extract(prepared, s.orbOpts)
	return Template{Key: key, Image: prepared, Descriptors: descs}, true
}

func isImageFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png":
		return true
	}
	return false
}
