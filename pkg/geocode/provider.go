package geocode

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
)

// Provider is a single autocomplete backend. Implementations own their
// request timeout and rate limiting; the pipeline owns fallthrough policy,
// tagging, ranking and caching.
type Provider interface {
	// Name identifies the backend; the pipeline stamps it onto results.
	Name() ProviderName

	// Available reports whether the provider can be attempted at all
	// (typically: its API key is configured). Unavailable providers are
	// skipped silently.
	Available() bool

	// Suggest returns raw, untagged suggestions for a query. An empty
	// result list is not an error; both empty lists and errors advance
	// the chain to the next provider.
	Suggest(ctx context.Context, query string, opts SuggestOptions) ([]Suggestion, error)
}

// DetailsProvider is a backend that can resolve enriched place details.
// PlaceIDs are provider-native and never valid across implementations.
type DetailsProvider interface {
	Name() ProviderName
	Available() bool

	// Details fetches enriched details for a place id, or for bare
	// coordinates when placeID is empty.
	Details(ctx context.Context, placeID string, loc *Location) (*PlaceDetails, error)
}

// ReverseProvider is a backend that can resolve a coordinate to an address.
type ReverseProvider interface {
	Name() ProviderName
	Available() bool
	Reverse(ctx context.Context, loc Location) (*ReverseResult, error)
}

// doJSON issues a GET with the provider's timeout bound to the context,
// verifies the status and decodes the JSON body into v.
func doJSON(ctx context.Context, client *http.Client, provider ProviderName, timeout time.Duration, url string, header http.Header, v any) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return eris.Wrapf(err, "geocode: %s build request", provider)
	}
	for k, vals := range header {
		for _, val := range vals {
			req.Header.Add(k, val)
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return eris.Wrapf(err, "geocode: %s request", provider)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return &StatusError{Provider: provider, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrapf(err, "geocode: %s read body", provider)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return eris.Wrapf(err, "geocode: %s parse response", provider)
	}
	return nil
}
