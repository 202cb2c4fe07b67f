package geocode

import (
	"math"
	"sort"
	"strings"
)

// Composite score weights. Match quality dominates, proximity second,
// provider-native confidence a light tiebreaker.
const (
	WeightMatch        = 0.6
	WeightDistance     = 0.3
	WeightProviderRank = 0.1
)

// Match-quality tiers, best to worst.
const (
	matchExactPrimary  = 1.2
	matchExactDisplay  = 1.1
	matchPrefixPrimary = 1.0
	matchPrefixDisplay = 0.9
	matchSubstrPrimary = 0.7
	matchSubstrDisplay = 0.5
	matchFloor         = 0.3
)

// Distance buckets, in meters, and their scores.
const (
	distanceNear    = 5_000.0
	distanceMid     = 20_000.0
	distanceFar     = 50_000.0
	distScoreNear   = 1.0
	distScoreMid    = 0.7
	distScoreFar    = 0.4
	distScoreBeyond = 0.2
	distScoreNoLoc  = 0.5
)

// providerRankNeutral is used when a provider supplied no native rank.
const providerRankNeutral = 0.5

// earthRadiusMeters is the mean Earth radius used by the Haversine formula.
const earthRadiusMeters = 6_371_000.0

// RankWeights overrides the composite score weights. Zero-value fields fall
// back to the package defaults.
type RankWeights struct {
	Match        float64
	Distance     float64
	ProviderRank float64
}

func (w RankWeights) withDefaults() RankWeights {
	if w.Match == 0 {
		w.Match = WeightMatch
	}
	if w.Distance == 0 {
		w.Distance = WeightDistance
	}
	if w.ProviderRank == 0 {
		w.ProviderRank = WeightProviderRank
	}
	return w
}

// Rank orders suggestions by composite desirability for the given query and
// optional user location, truncating to limit. Pre-supplied distance and rank
// fields are reused, never overwritten; a missing distance is computed from
// the user location. The transient score is never exposed to callers.
func Rank(results []Suggestion, query string, loc *Location, limit int, weights RankWeights) []Suggestion {
	if len(results) == 0 {
		return results
	}
	w := weights.withDefaults()
	normQuery := normalizeQuery(query)

	type scored struct {
		s     Suggestion
		score float64
	}
	ranked := make([]scored, 0, len(results))
	for _, s := range results {
		if loc != nil && s.DistanceMeters == nil {
			s.DistanceMeters = float64Ptr(Haversine(*loc, Location{Lat: s.Latitude, Lng: s.Longitude}))
		}
		score := w.Match*matchScore(s, normQuery) +
			w.Distance*distanceScore(s, loc) +
			w.ProviderRank*providerRankScore(s)
		ranked = append(ranked, scored{s: s, score: score})
	}

	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	out := make([]Suggestion, len(ranked))
	for i, r := range ranked {
		out[i] = r.s
	}
	return out
}

// matchScore compares the candidate's primary and full display text against
// the folded query.
func matchScore(s Suggestion, normQuery string) float64 {
	primary := fold(s.primaryText())
	display := fold(s.DisplayName)

	switch {
	case primary == normQuery:
		return matchExactPrimary
	case display == normQuery:
		return matchExactDisplay
	case strings.HasPrefix(primary, normQuery):
		return matchPrefixPrimary
	case strings.HasPrefix(display, normQuery):
		return matchPrefixDisplay
	case strings.Contains(primary, normQuery):
		return matchSubstrPrimary
	case strings.Contains(display, normQuery):
		return matchSubstrDisplay
	default:
		return matchFloor
	}
}

// distanceScore buckets the great-circle distance from the user. Without a
// user location every candidate gets the neutral score.
func distanceScore(s Suggestion, loc *Location) float64 {
	if loc == nil {
		return distScoreNoLoc
	}
	var d float64
	if s.DistanceMeters != nil {
		d = *s.DistanceMeters
	} else {
		d = Haversine(*loc, Location{Lat: s.Latitude, Lng: s.Longitude})
	}
	switch {
	case d < distanceNear:
		return distScoreNear
	case d < distanceMid:
		return distScoreMid
	case d < distanceFar:
		return distScoreFar
	default:
		return distScoreBeyond
	}
}

// providerRankScore normalizes the provider-native confidence. Scales vary by
// provider, so the value is divided by 10 and clamped to [0,1]; absence maps
// to neutral.
func providerRankScore(s Suggestion) float64 {
	if s.Rank == nil {
		return providerRankNeutral
	}
	r := *s.Rank / 10
	if r < 0 {
		return 0
	}
	if r > 1 {
		return 1
	}
	return r
}

// Haversine returns the great-circle distance between two points in meters.
func Haversine(a, b Location) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusMeters * math.Asin(math.Sqrt(h))
}
