//go:build integration

package mysql

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/centrominero/labvision/internal/catalog"
	"github.com/centrominero/labvision/internal/config"
	"github.com/centrominero/labvision/internal/store"
)

func setupTestContainer(t *testing.T) (*Pool, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "mariadb:11",
		ExposedPorts: []string{"3306/tcp"},
		Env: map[string]string{
			"MARIADB_USER":          "test",
			"MARIADB_PASSWORD":      "test",
			"MARIADB_ROOT_PASSWORD": "root",
			"MARIADB_DATABASE":      "testdb",
		},
		WaitingFor: wait.ForLog("ready for connections").
			WithOccurrence(2).
			WithStartupTimeout(120 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Docker not available or container failed to start, skipping integration test: %v", err)
		return nil, func() {}
	}
	if container == nil {
		t.Skip("Docker not available, skipping integration test")
		return nil, func() {}
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "3306")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	cfg := &config.DatabaseConfig{
		DSN:          fmt.Sprintf("test:test@tcp(%s:%s)/testdb", host, port.Port()),
		MaxOpenConns: 5,
		MaxIdleConns: 2,
	}

	pool, err := NewPool(cfg)
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("Failed to create pool: %v", err)
	}

	if err := pool.Migrate(ctx); err != nil {
		pool.Close()
		container.Terminate(ctx)
		t.Fatalf("Failed to run migrations: %v", err)
	}

	cleanup := func() {
		pool.Close()
		container.Terminate(ctx)
	}

	return pool, cleanup
}

func TestObjectRepository(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	repo := NewObjectRepository(pool)

	t.Run("CreateAndGet", func(t *testing.T) {
		obj, err := repo.CreateObject(ctx, "Martillo de Bola", "herramientas", true)
		if err != nil {
			t.Fatalf("Failed to create object: %v", err)
		}
		if obj.Slug != "martillo_de_bola" {
			t.Errorf("Expected slug 'martillo_de_bola', got '%s'", obj.Slug)
		}

		got, err := repo.GetObject(ctx, obj.ID)
		if err != nil {
			t.Fatalf("Failed to get object: %v", err)
		}
		if got == nil {
			t.Fatal("Expected object, got nil")
		}
		if got.Name != "Martillo de Bola" || !got.Recognize {
			t.Errorf("Unexpected object: %+v", got)
		}
	})

	t.Run("CreateReusesSlug", func(t *testing.T) {
		a, err := repo.CreateObject(ctx, "Llave Inglesa", "herramientas", true)
		if err != nil {
			t.Fatalf("Failed to create object: %v", err)
		}
		b, err := repo.CreateObject(ctx, "llave inglesa", "", true)
		if err != nil {
			t.Fatalf("Failed to re-create object: %v", err)
		}
		if a.ID != b.ID {
			t.Errorf("Same slug should reuse the row: %d vs %d", a.ID, b.ID)
		}
	})

	t.Run("ListFiltersNothing", func(t *testing.T) {
		if _, err := repo.CreateObject(ctx, "Taladro Viejo", "", false); err != nil {
			t.Fatalf("Failed to create object: %v", err)
		}
		objects, err := repo.ListObjects(ctx)
		if err != nil {
			t.Fatalf("Failed to list objects: %v", err)
		}
		// Listing returns every object; the recognize flag is applied by
		// the template store, not here.
		flagged := 0
		for _, o := range objects {
			if !o.Recognize {
				flagged++
			}
		}
		if flagged == 0 {
			t.Error("Expected the non-recognizable object in the listing")
		}
	})

	t.Run("GetMissing", func(t *testing.T) {
		got, err := repo.GetObject(ctx, 999999)
		if err != nil {
			t.Fatalf("Missing object should not error: %v", err)
		}
		if got != nil {
			t.Errorf("Expected nil, got %+v", got)
		}
	})
}

func TestObjectRepositoryLegacySchema(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	repo := NewObjectRepository(pool)

	// Deployed schemas may carry NULL slugs; listing must not abort on them.
	t.Run("NullSlug", func(t *testing.T) {
		if _, err := pool.Exec(ctx, `ALTER TABLE objetos MODIFY slug VARCHAR(255) NULL`); err != nil {
			t.Fatalf("Failed to relax slug column: %v", err)
		}
		if _, err := pool.Exec(ctx, `INSERT INTO objetos (nombre, slug) VALUES ('Martillo de Bola', NULL)`); err != nil {
			t.Fatalf("Failed to insert NULL-slug row: %v", err)
		}

		objects, err := repo.ListObjects(ctx)
		if err != nil {
			t.Fatalf("Failed to list objects: %v", err)
		}
		if len(objects) != 1 {
			t.Fatalf("Expected 1 object, got %d", len(objects))
		}
		if objects[0].Slug != "martillo_de_bola" {
			t.Errorf("Expected derived slug, got '%s'", objects[0].Slug)
		}

		got, err := repo.GetObject(ctx, objects[0].ID)
		if err != nil {
			t.Fatalf("Failed to get object: %v", err)
		}
		if got.Slug != "martillo_de_bola" {
			t.Errorf("Expected derived slug, got '%s'", got.Slug)
		}
	})

	// The oldest installations predate the reconocer and slug columns
	// entirely; the fallback query must not reference either.
	t.Run("MissingColumns", func(t *testing.T) {
		if _, err := pool.Exec(ctx, `ALTER TABLE objetos DROP COLUMN reconocer`); err != nil {
			t.Fatalf("Failed to drop reconocer column: %v", err)
		}
		if _, err := pool.Exec(ctx, `ALTER TABLE objetos DROP COLUMN slug`); err != nil {
			t.Fatalf("Failed to drop slug column: %v", err)
		}

		objects, err := repo.ListObjects(ctx)
		if err != nil {
			t.Fatalf("Legacy listing failed: %v", err)
		}
		if len(objects) != 1 {
			t.Fatalf("Expected 1 object, got %d", len(objects))
		}
		if !objects[0].Recognize {
			t.Error("Legacy objects should default to recognizable")
		}
		if objects[0].Slug != "martillo_de_bola" {
			t.Errorf("Expected slug derived from nombre, got '%s'", objects[0].Slug)
		}

		got, err := repo.GetObject(ctx, objects[0].ID)
		if err != nil {
			t.Fatalf("Legacy get failed: %v", err)
		}
		if got == nil || got.Slug != "martillo_de_bola" || !got.Recognize {
			t.Errorf("Unexpected legacy object: %+v", got)
		}
	})
}

func TestReferenceRepository(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	objects := NewObjectRepository(pool)
	refs := NewReferenceRepository(pool)

	obj, err := objects.CreateObject(ctx, "Destornillador", "herramientas", true)
	if err != nil {
		t.Fatalf("Failed to create object: %v", err)
	}

	t.Run("InsertAndList", func(t *testing.T) {
		id, err := refs.InsertReference(ctx, store.NewReference{
			OwnerID:     obj.ID,
			Path:        "objetos/destornillador/20260101_120000_abcd1234.jpg",
			Blob:        []byte{0xFF, 0xD8, 0xFF, 0xE0},
			Thumb:       []byte{0xFF, 0xD8},
			ContentType: "image/jpeg",
			Source:      "upload",
			ViewTag:     catalog.ViewFrontal,
		})
		if err != nil {
			t.Fatalf("Failed to insert reference: %v", err)
		}
		if id == 0 {
			t.Error("Expected a generated id")
		}

		rows, err := refs.ReferenceRows(ctx)
		if err != nil {
			t.Fatalf("Failed to list references: %v", err)
		}
		if len(rows) != 1 {
			t.Fatalf("Expected 1 row, got %d", len(rows))
		}
		if rows[0].Name != "Destornillador" {
			t.Errorf("Expected joined object name, got '%s'", rows[0].Name)
		}
		if rows[0].ViewTag != catalog.ViewFrontal {
			t.Errorf("Expected view frontal, got '%s'", rows[0].ViewTag)
		}
		if len(rows[0].Blob) != 4 {
			t.Errorf("Expected 4 blob bytes, got %d", len(rows[0].Blob))
		}
	})

	t.Run("Stats", func(t *testing.T) {
		stats, err := refs.ReferenceStats(ctx)
		if err != nil {
			t.Fatalf("Failed to get stats: %v", err)
		}
		if stats.Objects != 1 || stats.Total != 1 {
			t.Errorf("Unexpected stats: %+v", stats)
		}
		if stats.ByViewTag["frontal"] != 1 {
			t.Errorf("Expected 1 frontal image, got %+v", stats.ByViewTag)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		n, err := refs.DeleteReferences(ctx, obj.ID)
		if err != nil {
			t.Fatalf("Failed to delete references: %v", err)
		}
		if n != 1 {
			t.Errorf("Expected 1 deleted row, got %d", n)
		}

		rows, err := refs.ReferenceRows(ctx)
		if err != nil {
			t.Fatalf("Failed to list references: %v", err)
		}
		if len(rows) != 0 {
			t.Errorf("Expected empty listing, got %d rows", len(rows))
		}
	})
}

func TestMigrations(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	applied, err := pool.MigrationsApplied(context.Background())
	if err != nil {
		t.Fatalf("Failed to get applied migrations: %v", err)
	}

	expected := []string{
		"001_create_objetos.sql",
		"002_create_objetos_imagenes.sql",
	}
	if len(applied) != len(expected) {
		t.Fatalf("Expected %d migrations, got %d", len(expected), len(applied))
	}
	for i, want := range expected {
		if applied[i] != want {
			t.Errorf("Migration %d: expected '%s', got '%s'", i, want, applied[i])
		}
	}
}
