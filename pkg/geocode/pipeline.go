package geocode

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// GoogleEnabledFlag is the persisted feature flag gating the enhanced
// provider. When the flag is off Google is skipped even if its key is set.
const GoogleEnabledFlag = "google_enabled"

const (
	flagCacheMaxAge     = 5 * time.Minute
	flagCacheMaxEntries = 32
)

// FlagSource reads persisted boolean feature flags. Implementations live
// outside the pipeline (sqlite store, test stubs).
type FlagSource interface {
	Bool(ctx context.Context, key string) (bool, error)
}

// PersistentCache is an optional durable cache tier consulted after an
// in-memory miss and written through on provider success. A (nil, nil)
// return is a miss. Failures are soft: the pipeline logs and moves on.
type PersistentCache interface {
	Lookup(ctx context.Context, key string) ([]Suggestion, error)
	Store(ctx context.Context, key string, results []Suggestion) error
}

// Pipeline resolves free-text queries through the provider fallback chain.
// It is safe for concurrent use; overlapping identical queries are coalesced
// into a single provider round-trip.
type Pipeline struct {
	providers  []Provider
	details    map[ProviderName]DetailsProvider
	reverse    []ReverseProvider
	flags      FlagSource
	persistent PersistentCache
	weights    RankWeights

	cache        *suggestionCache
	detailsCache *keyedCache[*PlaceDetails]
	reverseCache *keyedCache[*ReverseResult]
	flagCache    *keyedCache[bool]
	group        singleflight.Group
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithFlagSource wires the persisted feature-flag store. Without one the
// enhanced provider is gated only on key availability.
func WithFlagSource(flags FlagSource) PipelineOption {
	return func(p *Pipeline) { p.flags = flags }
}

// WithPersistentCache adds a durable cache tier behind the in-memory one.
func WithPersistentCache(pc PersistentCache) PipelineOption {
	return func(p *Pipeline) { p.persistent = pc }
}

// WithRankWeights overrides the composite ranking weights.
func WithRankWeights(w RankWeights) PipelineOption {
	return func(p *Pipeline) { p.weights = w }
}

// WithCacheBounds overrides the suggestion cache limits. Used by tests and
// memory-constrained deployments.
func WithCacheBounds(maxEntries int, maxAge time.Duration) PipelineOption {
	return func(p *Pipeline) { p.cache = newSuggestionCache(maxEntries, maxAge) }
}

// NewPipeline creates a Pipeline over the given providers, attempted in the
// order supplied. Providers that also implement DetailsProvider or
// ReverseProvider serve the secondary paths.
func NewPipeline(providers []Provider, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		providers:    providers,
		details:      make(map[ProviderName]DetailsProvider),
		cache:        newSuggestionCache(SuggestCacheMaxEntries, SuggestCacheMaxAge),
		detailsCache: newKeyedCache[*PlaceDetails](DetailsCacheMaxEntries, DetailsCacheMaxAge),
		reverseCache: newKeyedCache[*ReverseResult](SuggestCacheMaxEntries, SuggestCacheMaxAge),
		flagCache:    newKeyedCache[bool](flagCacheMaxEntries, flagCacheMaxAge),
	}
	for _, prov := range providers {
		if dp, ok := prov.(DetailsProvider); ok {
			p.details[prov.Name()] = dp
		}
		if rp, ok := prov.(ReverseProvider); ok {
			p.reverse = append(p.reverse, rp)
		}
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// DefaultProviders builds the standard chain: Google (flag-gated), Geoapify,
// PlaceKit, then Nominatim.
func DefaultProviders(google GoogleConfig, geoapify GeoapifyConfig, placekit PlaceKitConfig, nominatim NominatimConfig) []Provider {
	return []Provider{
		NewGoogle(google),
		NewGeoapify(geoapify),
		NewPlaceKit(placekit),
		NewNominatim(nominatim),
	}
}

// Suggest resolves a query to a ranked suggestion list. Queries shorter than
// MinQueryLen non-whitespace characters return an empty list with no cache
// or network interaction. All provider failures except the final provider's
// are soft; an all-empty chain yields an empty list and no error.
func (p *Pipeline) Suggest(ctx context.Context, query string, opts SuggestOptions) ([]Suggestion, error) {
	if queryLength(query) < MinQueryLen {
		return []Suggestion{}, nil
	}

	outgoing := collapseWhitespace(query) // case preserved for providers
	normQuery := fold(outgoing)           // folded for cache keys and matching
	limit := opts.limit()
	bucket := locationBucket(opts.Location)

	if results, ok := p.cache.lookup(normQuery, limit, bucket); ok {
		return results, nil
	}

	// Coalesce concurrent identical queries into one provider round-trip.
	flightKey := fmt.Sprintf("%s|%d|%s", normQuery, limit, bucket)
	v, err, _ := p.group.Do(flightKey, func() (any, error) {
		return p.resolve(ctx, outgoing, normQuery, limit, bucket, opts)
	})
	if err != nil {
		return nil, err
	}
	return v.([]Suggestion), nil
}

// resolve runs the persistent-cache consult and the provider chain.
func (p *Pipeline) resolve(ctx context.Context, outgoing, normQuery string, limit int, bucket string, opts SuggestOptions) ([]Suggestion, error) {
	if p.persistent != nil {
		for _, name := range chainOrder {
			key := suggestionKey(name, normQuery, limit, bucket)
			results, err := p.persistent.Lookup(ctx, key)
			if err != nil {
				zap.L().Debug("geocode: persistent cache lookup failed",
					zap.String("key", key),
					zap.Error(err),
				)
				continue
			}
			// Exact-key tier: entries were stored under this very query, so
			// they are served as stored.
			if len(results) > 0 {
				p.cache.put(name, normQuery, limit, bucket, results)
				return results, nil
			}
		}
	}

	googleOn := p.googleEnabled(ctx)

	var lastErr error
	for _, prov := range p.providers {
		if prov.Name() == ProviderGoogle && !googleOn {
			continue
		}
		if !prov.Available() {
			continue
		}

		results, err := prov.Suggest(ctx, outgoing, opts)
		if err != nil {
			lastErr = err
			zap.L().Debug("geocode: provider failed, trying next",
				zap.String("provider", string(prov.Name())),
				zap.Bool("timeout", IsTimeout(err)),
				zap.Error(err),
			)
			continue
		}
		lastErr = nil
		if len(results) == 0 {
			zap.L().Debug("geocode: provider returned no results, trying next",
				zap.String("provider", string(prov.Name())),
				zap.String("query", outgoing),
			)
			continue
		}

		for i := range results {
			results[i].Provider = prov.Name()
		}
		ranked := Rank(results, outgoing, opts.Location, limit, p.weights)

		p.cache.put(prov.Name(), normQuery, limit, bucket, ranked)
		if p.persistent != nil {
			key := suggestionKey(prov.Name(), normQuery, limit, bucket)
			if err := p.persistent.Store(ctx, key, ranked); err != nil {
				zap.L().Debug("geocode: persistent cache store failed",
					zap.String("key", key),
					zap.Error(err),
				)
			}
		}
		return ranked, nil
	}

	// lastErr survives only when the final attempted provider failed; an
	// earlier failure followed by a later empty result clears it.
	if lastErr != nil {
		return nil, eris.Wrap(lastErr, "geocode: all providers failed")
	}
	return []Suggestion{}, nil
}

// googleEnabled consults the persisted feature flag through its TTL cache.
// With no flag source the enhanced provider is gated only on availability.
func (p *Pipeline) googleEnabled(ctx context.Context) bool {
	if p.flags == nil {
		return true
	}
	if enabled, ok := p.flagCache.get(GoogleEnabledFlag); ok {
		return enabled
	}
	enabled, err := p.flags.Bool(ctx, GoogleEnabledFlag)
	if err != nil {
		zap.L().Warn("geocode: flag read failed, leaving enhanced provider off", zap.Error(err))
		return false
	}
	p.flagCache.put(GoogleEnabledFlag, enabled)
	return enabled
}

// Stats reports suggestion cache performance.
func (p *Pipeline) Stats() CacheStats {
	return p.cache.stats()
}

// InvalidateFlags drops only the flag cache so a persisted flag change takes
// effect on the next request without discarding warm suggestion caches.
func (p *Pipeline) InvalidateFlags() {
	p.flagCache.clear()
}

// ClearCaches drops every in-memory cache, including the flag cache. The
// persistent tier is untouched.
func (p *Pipeline) ClearCaches() {
	p.cache.clear()
	p.detailsCache.clear()
	p.reverseCache.clear()
	p.flagCache.clear()
}
