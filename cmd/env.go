package main

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/trailmix-app/trailgeo/internal/flagstore"
	"github.com/trailmix-app/trailgeo/internal/pgcache"
	"github.com/trailmix-app/trailgeo/pkg/geocode"
)

// geoEnv holds the initialized flag store, optional persistent cache and the
// pipeline needed by the lookup/batch/serve commands.
type geoEnv struct {
	Flags    *flagstore.Store
	Pipeline *geocode.Pipeline

	closePG func()
}

// Close releases resources held by the environment.
func (e *geoEnv) Close() {
	if e.closePG != nil {
		e.closePG()
	}
	if e.Flags != nil {
		_ = e.Flags.Close()
	}
}

// initGeo opens the flag store, connects the optional Postgres cache tier and
// builds the provider pipeline. Callers should defer env.Close().
func initGeo(ctx context.Context) (*geoEnv, error) {
	flags, err := flagstore.Open(cfg.Flags.Path)
	if err != nil {
		return nil, err
	}
	if err := flags.Migrate(ctx); err != nil {
		flags.Close()
		return nil, err
	}

	providers := geocode.DefaultProviders(
		geocode.GoogleConfig{APIKey: cfg.Google.Key, BaseURL: cfg.Google.BaseURL, RPS: cfg.Google.RPS},
		geocode.GeoapifyConfig{APIKey: cfg.Geoapify.Key, BaseURL: cfg.Geoapify.BaseURL, RPS: cfg.Geoapify.RPS},
		geocode.PlaceKitConfig{APIKey: cfg.PlaceKit.Key, BaseURL: cfg.PlaceKit.BaseURL, RPS: cfg.PlaceKit.RPS},
		geocode.NominatimConfig{BaseURL: cfg.Nominatim.BaseURL, UserAgent: cfg.Nominatim.UserAgent, RPS: cfg.Nominatim.RPS},
	)

	opts := []geocode.PipelineOption{
		geocode.WithFlagSource(flags),
		geocode.WithCacheBounds(cfg.Cache.MaxEntries, time.Duration(cfg.Cache.MaxAgeMins)*time.Minute),
	}

	env := &geoEnv{Flags: flags}
	if cfg.PGCache.Enabled {
		pc, closePG, err := pgcache.Connect(ctx, cfg.PGCache.DatabaseURL, time.Duration(cfg.PGCache.TTLHours)*time.Hour)
		if err != nil {
			flags.Close()
			return nil, err
		}
		if err := pc.Migrate(ctx); err != nil {
			closePG()
			flags.Close()
			return nil, err
		}
		env.closePG = closePG
		opts = append(opts, geocode.WithPersistentCache(pc))
		zap.L().Info("persistent suggestion cache enabled")
	}

	env.Pipeline = geocode.NewPipeline(providers, opts...)
	return env, nil
}
