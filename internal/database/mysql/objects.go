package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	godriver "github.com/go-sql-driver/mysql"

	"github.com/centrominero/labvision/internal/catalog"
)

// errUnknownColumn is MySQL error 1054; older installations predate the
// reconocer column and the repository has to keep working against them.
const errUnknownColumn = 1054

// ObjectRepository reads and writes the objetos table.
type ObjectRepository struct {
	pool *Pool
}

// NewObjectRepository creates a repository over the given pool.
func NewObjectRepository(pool *Pool) *ObjectRepository {
	return &ObjectRepository{pool: pool}
}

// ListObjects returns every registered object. When the reconocer column
// is missing from the schema, every object is treated as recognizable.
// The slug column is optional in deployed schemas; a missing or NULL slug
// falls back to deriving it from the name.
func (r *ObjectRepository) ListObjects(ctx context.Context) ([]catalog.Object, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, nombre, COALESCE(slug, ''), COALESCE(categoria, ''), reconocer
		FROM objetos
		ORDER BY id
	`)
	if err != nil {
		if isUnknownColumn(err) {
			return r.listObjectsLegacy(ctx)
		}
		return nil, fmt.Errorf("list objects: %w", err)
	}
	defer rows.Close()

	var objects []catalog.Object
	for rows.Next() {
		var o catalog.Object
		if err := rows.Scan(&o.ID, &o.Name, &o.Slug, &o.Category, &o.Recognize); err != nil {
			return nil, fmt.Errorf("scan object: %w", err)
		}
		if o.Slug == "" {
			o.Slug = catalog.Slugify(o.Name)
		}
		objects = append(objects, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate objects: %w", err)
	}
	return objects, nil
}

// listObjectsLegacy serves schemas that predate both the reconocer and the
// slug columns; slugs are derived from names.
func (r *ObjectRepository) listObjectsLegacy(ctx context.Context) ([]catalog.Object, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, nombre, COALESCE(categoria, '')
		FROM objetos
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("list objects: %w", err)
	}
	defer rows.Close()

	var objects []catalog.Object
	for rows.Next() {
		o := catalog.Object{Recognize: true}
		if err := rows.Scan(&o.ID, &o.Name, &o.Category); err != nil {
			return nil, fmt.Errorf("scan object: %w", err)
		}
		o.Slug = catalog.Slugify(o.Name)
		objects = append(objects, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate objects: %w", err)
	}
	return objects, nil
}

// GetObject resolves one object by id. Returns nil when no row exists.
func (r *ObjectRepository) GetObject(ctx context.Context, id int64) (*catalog.Object, error) {
	var o catalog.Object
	err := r.pool.QueryRow(ctx, `
		SELECT id, nombre, COALESCE(slug, ''), COALESCE(categoria, ''), reconocer
		FROM objetos WHERE id = ?
	`, id).Scan(&o.ID, &o.Name, &o.Slug, &o.Category, &o.Recognize)
	if isUnknownColumn(err) {
		o.Recognize = true
		err = r.pool.QueryRow(ctx, `
			SELECT id, nombre, COALESCE(categoria, '')
			FROM objetos WHERE id = ?
		`, id).Scan(&o.ID, &o.Name, &o.Category)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get object %d: %w", id, err)
	}
	if o.Slug == "" {
		o.Slug = catalog.Slugify(o.Name)
	}
	return &o, nil
}

// CreateObject inserts an object, generating the slug from the name. An
// existing slug is reused: registering more images for a known object
// must not fork a second row.
func (r *ObjectRepository) CreateObject(ctx context.Context, name, category string, recognize bool) (*catalog.Object, error) {
	slug := catalog.Slugify(name)
	if slug == "" {
		return nil, fmt.Errorf("name %q yields an empty slug", name)
	}

	var existing catalog.Object
	err := r.pool.QueryRow(ctx, `
		SELECT id, nombre, slug, COALESCE(categoria, '')
		FROM objetos WHERE slug = ?
	`, slug).Scan(&existing.ID, &existing.Name, &existing.Slug, &existing.Category)
	if err == nil {
		existing.Recognize = recognize
		return &existing, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("lookup slug %q: %w", slug, err)
	}

	res, err := r.pool.Exec(ctx, `
		INSERT INTO objetos (nombre, slug, categoria, reconocer) VALUES (?, ?, ?, ?)
	`, name, slug, category, recognize)
	if err != nil {
		return nil, fmt.Errorf("insert object: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("insert object id: %w", err)
	}
	return &catalog.Object{ID: id, Name: name, Slug: slug, Category: category, Recognize: recognize}, nil
}

func isUnknownColumn(err error) bool {
	var myErr *godriver.MySQLError
	return errors.As(err, &myErr) && myErr.Number == errUnknownColumn
}
