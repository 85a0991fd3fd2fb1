// Package catalog defines the object registry types shared between the
// template store, the database layer and the recognition service.
package catalog

import "context"

// OwnerKind distinguishes the two trainable entity kinds.
type OwnerKind string

const (
	KindEquipment OwnerKind = "equipment"
	KindItem      OwnerKind = "item"
)

// Valid reports whether k is one of the known owner kinds.
func (k OwnerKind) Valid() bool {
	return k == KindEquipment || k == KindItem
}

// Dir returns the directory name for this kind under the image root.
// The on-disk layout is part of the external contract and keeps the
// Spanish names of the installation it serves.
func (k OwnerKind) Dir() string {
	if k == KindEquipment {
		return "equipos"
	}
	return "objetos"
}

// ParseOwnerKind accepts both the API names and the legacy Spanish ones.
func ParseOwnerKind(s string) (OwnerKind, bool) {
	switch s {
	case "equipment", "equipo", "equipos":
		return KindEquipment, true
	case "item", "items", "objeto", "objetos":
		return KindItem, true
	}
	return "", false
}

// ViewTag labels which side of an object a reference image shows.
type ViewTag string

const (
	ViewUnspecified  ViewTag = ""
	ViewFrontal      ViewTag = "frontal"
	ViewPosterior    ViewTag = "posterior"
	ViewSuperior     ViewTag = "superior"
	ViewInferior     ViewTag = "inferior"
	ViewLateralLeft  ViewTag = "lateral_left"
	ViewLateralRight ViewTag = "lateral_right"
)

// ViewTags lists the known tags, unspecified excluded.
var ViewTags = []ViewTag{
	ViewFrontal, ViewPosterior, ViewSuperior,
	ViewInferior, ViewLateralLeft, ViewLateralRight,
}

// ParseViewTag maps arbitrary input to a known tag; anything unknown
// becomes unspecified rather than an error.
func ParseViewTag(s string) ViewTag {
	for _, v := range ViewTags {
		if s == string(v) {
			return v
		}
	}
	return ViewUnspecified
}

// Object is one registered physical item the system may be asked to recognize.
type Object struct {
	ID       int64
	Name     string
	Slug     string
	Category string
	// Recognize excludes the object from online matching when false;
	// it may still be listed administratively.
	Recognize bool
}

// ReferenceRow is one reference-image record from the database. Either
// Blob or Path may be empty; a row is usable if at least one of the two
// resolves to a decodable image.
type ReferenceRow struct {
	ID      int64
	OwnerID int64
	Name    string
	Blob    []byte
	Path    string
	ViewTag ViewTag
}

// ObjectRegistry is the read-only object listing consumed during template
// enumeration. Implementations may cache the result for the lifetime of
// one enumeration.
type ObjectRegistry interface {
	ListObjects(ctx context.Context) ([]Object, error)
}

// ObjectGetter resolves a single object by id; used when a caller supplies
// an owner id without a name.
type ObjectGetter interface {
	GetObject(ctx context.Context, id int64) (*Object, error)
}

// BlobReader iterates reference-image rows stored in the database.
type BlobReader interface {
	ReferenceRows(ctx context.Context) ([]ReferenceRow, error)
}
