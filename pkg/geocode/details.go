package geocode

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// DetailsRequest identifies a place to enrich: either a provider-native
// place id (meaningful only with its issuing provider) or bare coordinates.
// An empty Provider lets the pipeline choose, falling back from Google to
// Geoapify; a pinned provider is authoritative and never falls back.
type DetailsRequest struct {
	Provider ProviderName
	PlaceID  string
	Location *Location
}

func (r DetailsRequest) validate() error {
	if r.PlaceID == "" && r.Location == nil {
		return eris.New("geocode: details request needs a place id or coordinates")
	}
	if r.PlaceID != "" && r.Provider == "" {
		return eris.New("geocode: a place id is only meaningful with its provider")
	}
	return nil
}

// cacheKey keys the details cache by provider plus id or rounded coordinates.
func (r DetailsRequest) cacheKey() string {
	provider := string(r.Provider)
	if provider == "" {
		provider = "auto"
	}
	if r.PlaceID != "" {
		return fmt.Sprintf("%s_%s", provider, r.PlaceID)
	}
	return fmt.Sprintf("%s_%.5f,%.5f", provider, r.Location.Lat, r.Location.Lng)
}

// Details fetches enriched details for one selected suggestion, caching the
// result for an hour. Place ids never cross providers.
func (p *Pipeline) Details(ctx context.Context, req DetailsRequest) (*PlaceDetails, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	key := req.cacheKey()
	if d, ok := p.detailsCache.get(key); ok {
		return d, nil
	}

	v, err, _ := p.group.Do("details|"+key, func() (any, error) {
		d, err := p.resolveDetails(ctx, req)
		if err != nil {
			return nil, err
		}
		p.detailsCache.put(key, d)
		return d, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*PlaceDetails), nil
}

func (p *Pipeline) resolveDetails(ctx context.Context, req DetailsRequest) (*PlaceDetails, error) {
	// Pinned provider: authoritative, no fallback.
	if req.Provider != "" {
		dp, ok := p.details[req.Provider]
		if !ok {
			return nil, eris.Errorf("geocode: provider %s cannot resolve place details", req.Provider)
		}
		if !dp.Available() {
			return nil, eris.Errorf("geocode: provider %s is not configured", req.Provider)
		}
		d, err := dp.Details(ctx, req.PlaceID, req.Location)
		if err != nil {
			return nil, eris.Wrapf(err, "geocode: %s place details", req.Provider)
		}
		return d, nil
	}

	// Unpinned: Google first when enabled, then Geoapify.
	var lastErr error
	for _, name := range []ProviderName{ProviderGoogle, ProviderGeoapify} {
		if name == ProviderGoogle && !p.googleEnabled(ctx) {
			continue
		}
		dp, ok := p.details[name]
		if !ok || !dp.Available() {
			continue
		}
		d, err := dp.Details(ctx, "", req.Location)
		if err != nil {
			lastErr = err
			zap.L().Debug("geocode: details provider failed, trying next",
				zap.String("provider", string(name)),
				zap.Error(err),
			)
			continue
		}
		if d != nil {
			return d, nil
		}
	}
	if lastErr != nil {
		return nil, eris.Wrap(lastErr, "geocode: place details")
	}
	return nil, eris.New("geocode: no details provider configured")
}

// Reverse resolves coordinates to an address, trying Geoapify first and
// Nominatim as the keyless anchor, with the suggestion chain's soft-failure
// policy. Results are cached under the rounded coordinates.
func (p *Pipeline) Reverse(ctx context.Context, loc Location) (*ReverseResult, error) {
	key := fmt.Sprintf("%.5f,%.5f", loc.Lat, loc.Lng)
	if r, ok := p.reverseCache.get(key); ok {
		return r, nil
	}

	v, err, _ := p.group.Do("reverse|"+key, func() (any, error) {
		var lastErr error
		for _, rp := range p.reverse {
			if !rp.Available() {
				continue
			}
			r, err := rp.Reverse(ctx, loc)
			if err != nil {
				lastErr = err
				zap.L().Debug("geocode: reverse provider failed, trying next",
					zap.String("provider", string(rp.Name())),
					zap.Error(err),
				)
				continue
			}
			p.reverseCache.put(key, r)
			return r, nil
		}
		if lastErr != nil {
			return nil, eris.Wrap(lastErr, "geocode: reverse geocode")
		}
		return nil, eris.New("geocode: no reverse provider configured")
	})
	if err != nil {
		return nil, err
	}
	return v.(*ReverseResult), nil
}
