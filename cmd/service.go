package cmd

import (
	"context"
	"fmt"

	"github.com/centrominero/labvision/internal/config"
	"github.com/centrominero/labvision/internal/database/mysql"
	"github.com/centrominero/labvision/internal/matcher"
	"github.com/centrominero/labvision/internal/orb"
	"github.com/centrominero/labvision/internal/recognizer"
	"github.com/centrominero/labvision/internal/store"
)

// buildService wires the recognition service from the loaded configuration.
// The database is optional: without a DSN the service runs filesystem-only.
// The returned cleanup closes the pool and is safe to call always.
func buildService(cfg *config.Config) (*recognizer.Service, func(), error) {
	extractor := orb.DefaultOptions()
	extractor.MaxFeatures = cfg.Recognition.MaxFeatures

	storeCfg := store.Config{
		Root:      cfg.Storage.ImageRoot,
		Extractor: extractor,
	}
	serviceCfg := recognizer.Config{
		Extractor: extractor,
		MaxPerKey: cfg.Recognition.MaxPerKey,
		Matcher: matcher.Options{
			MinGoodMatches:      cfg.Recognition.MinGoodMatches,
			ConfidenceThreshold: cfg.Recognition.ConfidenceThreshold,
		},
	}

	cleanup := func() {}
	if cfg.Database.DSN != "" {
		pool, err := mysql.NewPool(&cfg.Database)
		if err != nil {
			return nil, cleanup, fmt.Errorf("connecting to database: %w", err)
		}
		if err := pool.Migrate(context.Background()); err != nil {
			pool.Close()
			return nil, cleanup, fmt.Errorf("running migrations: %w", err)
		}
		cleanup = func() { pool.Close() }

		objects := mysql.NewObjectRepository(pool)
		refs := mysql.NewReferenceRepository(pool)
		storeCfg.Registry = objects
		storeCfg.Blobs = refs
		storeCfg.References = refs
		serviceCfg.Objects = objects
	}

	serviceCfg.Store = store.New(storeCfg)
	return recognizer.New(serviceCfg), cleanup, nil
}
