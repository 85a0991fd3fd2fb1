package store

import (
	"context"
	"os"
	"path/filepath"

	"github.com/centrominero/labvision/internal/catalog"
)

// KindStats counts the filesystem side of one owner kind.
type KindStats struct {
	Objects int `json:"objects"`
	Images  int `json:"images"`
}

// Stats is the combined storage breakdown served by the stats endpoint.
type Stats struct {
	Filesystem map[string]KindStats `json:"filesystem"`
	Database   *ReferenceStats      `json:"database,omitempty"`
}

// CollectStats counts training images without decoding them. The database
// side is included when a reference store is configured and reachable;
// counting never fails on a missing directory.
func (s *Store) CollectStats(ctx context.Context) (Stats, error) {
	st := Stats{Filesystem: make(map[string]KindStats, 2)}
	for _, kind := range []catalog.OwnerKind{catalog.KindItem, catalog.KindEquipment} {
		st.Filesystem[kind.Dir()] = countKind(filepath.Join(s.root, kind.Dir()))
	}
	if s.refs != nil {
		ref, err := s.refs.ReferenceStats(ctx)
		if err != nil {
			return st, err
		}
		st.Database = &ref
	}
	return st, nil
}

func countKind(base string) KindStats {
	var ks KindStats
	entries, err := os.ReadDir(base)
	if err != nil {
		return ks
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		ks.Objects++
		_ = filepath.WalkDir(filepath.Join(base, entry.Name()), func(path string, d os.DirEntry, err error) error {
			if err == nil && !d.IsDir() && isImageFile(d.Name()) {
				ks.Images++
			}
			return nil
		})
	}
	return ks
}
