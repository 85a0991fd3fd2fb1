package mysql

import (
	"context"
	"fmt"

	"github.com/centrominero/labvision/internal/catalog"
	"github.com/centrominero/labvision/internal/store"
)

// ReferenceRepository reads and writes the objetos_imagenes table.
type ReferenceRepository struct {
	pool *Pool
}

// NewReferenceRepository creates a repository over the given pool.
func NewReferenceRepository(pool *Pool) *ReferenceRepository {
	return &ReferenceRepository{pool: pool}
}

// ReferenceRows returns every reference image joined with its owning
// object's name. Thumbnails are not loaded; the matcher works on the full
// blob.
func (r *ReferenceRepository) ReferenceRows(ctx context.Context) ([]catalog.ReferenceRow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT i.id, i.objeto_id, o.nombre, COALESCE(i.imagen, ''), COALESCE(i.path, ''), COALESCE(i.vista, '')
		FROM objetos_imagenes i
		JOIN objetos o ON o.id = i.objeto_id
		ORDER BY i.objeto_id, i.id
	`)
	if err != nil {
		return nil, fmt.Errorf("list reference images: %w", err)
	}
	defer rows.Close()

	var out []catalog.ReferenceRow
	for rows.Next() {
		var row catalog.ReferenceRow
		var vista string
		if err := rows.Scan(&row.ID, &row.OwnerID, &row.Name, &row.Blob, &row.Path, &vista); err != nil {
			return nil, fmt.Errorf("scan reference image: %w", err)
		}
		row.ViewTag = catalog.ParseViewTag(vista)
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reference images: %w", err)
	}
	return out, nil
}

// InsertReference stores one reference image row.
func (r *ReferenceRepository) InsertReference(ctx context.Context, ref store.NewReference) (int64, error) {
	var vista any
	if ref.ViewTag != catalog.ViewUnspecified {
		vista = string(ref.ViewTag)
	}
	res, err := r.pool.Exec(ctx, `
		INSERT INTO objetos_imagenes (objeto_id, path, imagen, thumb, content_type, fuente, vista, notas)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, ref.OwnerID, ref.Path, ref.Blob, ref.Thumb, ref.ContentType, ref.Source, vista, ref.Notes)
	if err != nil {
		return 0, fmt.Errorf("insert reference image: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert reference image id: %w", err)
	}
	return id, nil
}

// DeleteReferences removes every reference image of one object and returns
// the number of rows deleted.
func (r *ReferenceRepository) DeleteReferences(ctx context.Context, ownerID int64) (int64, error) {
	res, err := r.pool.Exec(ctx, `DELETE FROM objetos_imagenes WHERE objeto_id = ?`, ownerID)
	if err != nil {
		return 0, fmt.Errorf("delete reference images: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete reference images count: %w", err)
	}
	return n, nil
}

// ReferenceStats returns the database-side storage breakdown.
func (r *ReferenceRepository) ReferenceStats(ctx context.Context) (store.ReferenceStats, error) {
	var stats store.ReferenceStats
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(DISTINCT objeto_id), COUNT(*) FROM objetos_imagenes
	`).Scan(&stats.Objects, &stats.Total)
	if err != nil {
		return stats, fmt.Errorf("reference stats: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT COALESCE(vista, ''), COUNT(*) FROM objetos_imagenes GROUP BY vista
	`)
	if err != nil {
		return stats, fmt.Errorf("reference stats by view: %w", err)
	}
	defer rows.Close()

	stats.ByViewTag = make(map[string]int)
	for rows.Next() {
		var vista string
		var n int
		if err := rows.Scan(&vista, &n); err != nil {
			return stats, fmt.Errorf("scan view stats: %w", err)
		}
		if vista == "" {
			vista = "sin_vista"
		}
		stats.ByViewTag[vista] = n
	}
	if err := rows.Err(); err != nil {
		return stats, fmt.Errorf("iterate view stats: %w", err)
	}
	return stats, nil
}
