package geocode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRank_ExactBeatsPrefixBeatsSubstring(t *testing.T) {
	results := []Suggestion{
		{DisplayName: "Coffee by Starbucks, Campbell, CA", AddressLine1: "Coffee by Starbucks", Latitude: 37.28, Longitude: -121.95},
		{DisplayName: "Starbucks Reserve, San Jose, CA", AddressLine1: "Starbucks Reserve", Latitude: 37.33, Longitude: -121.89},
		{DisplayName: "Starbucks, San Jose, CA", AddressLine1: "Starbucks", Latitude: 37.33, Longitude: -121.89},
	}

	ranked := Rank(results, "Starbucks", nil, 10, RankWeights{})
	require.Len(t, ranked, 3)
	assert.Equal(t, "Starbucks", ranked[0].AddressLine1)
	assert.Equal(t, "Starbucks Reserve", ranked[1].AddressLine1)
	assert.Equal(t, "Coffee by Starbucks", ranked[2].AddressLine1)
}

func TestRank_CloserWinsOnEqualMatch(t *testing.T) {
	user := &Location{Lat: 37.33, Lng: -121.89}
	results := []Suggestion{
		{DisplayName: "Starbucks, Sacramento, CA", AddressLine1: "Starbucks", Latitude: 38.58, Longitude: -121.49},
		{DisplayName: "Starbucks, San Jose, CA", AddressLine1: "Starbucks", Latitude: 37.334, Longitude: -121.888},
	}

	ranked := Rank(results, "Starbucks", user, 10, RankWeights{})
	require.Len(t, ranked, 2)
	assert.Contains(t, ranked[0].DisplayName, "San Jose")
	require.NotNil(t, ranked[0].DistanceMeters, "a missing distance is computed from the user location")
	assert.Less(t, *ranked[0].DistanceMeters, distanceNear)
}

func TestRank_Idempotent(t *testing.T) {
	user := &Location{Lat: 37.33, Lng: -121.89}
	results := []Suggestion{
		{DisplayName: "Starbucks, Sacramento, CA", AddressLine1: "Starbucks", Latitude: 38.58, Longitude: -121.49},
		{DisplayName: "Starbucks Reserve, San Jose, CA", AddressLine1: "Starbucks Reserve", Latitude: 37.34, Longitude: -121.89},
		{DisplayName: "Starbucks, San Jose, CA", AddressLine1: "Starbucks", Latitude: 37.334, Longitude: -121.888},
	}

	once := Rank(results, "Starbucks", user, 10, RankWeights{})
	twice := Rank(once, "Starbucks", user, 10, RankWeights{})
	assert.Equal(t, once, twice, "ranking already-ranked results is a no-op")
}

func TestRank_TruncatesToLimit(t *testing.T) {
	var results []Suggestion
	for i := 0; i < 8; i++ {
		results = append(results, Suggestion{
			DisplayName:  "Starbucks, San Jose, CA",
			AddressLine1: "Starbucks",
			Latitude:     37.33,
			Longitude:    -121.89,
		})
	}
	assert.Len(t, Rank(results, "Starbucks", nil, 5, RankWeights{}), 5)
}

func TestRank_StableForTies(t *testing.T) {
	results := []Suggestion{
		{DisplayName: "Starbucks, San Jose, CA", AddressLine1: "Starbucks", Latitude: 37.33, Longitude: -121.89, PlaceID: "first"},
		{DisplayName: "Starbucks, San Jose, CA", AddressLine1: "Starbucks", Latitude: 37.33, Longitude: -121.89, PlaceID: "second"},
	}
	ranked := Rank(results, "Starbucks", nil, 10, RankWeights{})
	require.Len(t, ranked, 2)
	assert.Equal(t, "first", ranked[0].PlaceID, "ties keep provider order")
}

func TestRank_PreSuppliedDistanceKept(t *testing.T) {
	user := &Location{Lat: 37.33, Lng: -121.89}
	supplied := 1234.0
	results := []Suggestion{
		{DisplayName: "Starbucks, San Jose, CA", AddressLine1: "Starbucks", Latitude: 37.40, Longitude: -121.95, DistanceMeters: &supplied},
	}
	ranked := Rank(results, "Starbucks", user, 10, RankWeights{})
	require.NotNil(t, ranked[0].DistanceMeters)
	assert.Equal(t, supplied, *ranked[0].DistanceMeters, "provider-supplied distance is never overwritten")
}

func TestMatchScore_Tiers(t *testing.T) {
	cases := []struct {
		name string
		s    Suggestion
		want float64
	}{
		{"exact primary", Suggestion{AddressLine1: "Starbucks", DisplayName: "Starbucks, CA"}, matchExactPrimary},
		{"exact display", Suggestion{AddressLine1: "Main St", DisplayName: "starbucks"}, matchExactDisplay},
		{"prefix primary", Suggestion{AddressLine1: "Starbucks Reserve", DisplayName: "x"}, matchPrefixPrimary},
		{"prefix display", Suggestion{AddressLine1: "Reserve", DisplayName: "Starbucks Reserve, CA"}, matchPrefixDisplay},
		{"substring primary", Suggestion{AddressLine1: "Coffee by Starbucks", DisplayName: "x"}, matchSubstrPrimary},
		{"substring display", Suggestion{AddressLine1: "Coffee", DisplayName: "Coffee by Starbucks, CA"}, matchSubstrDisplay},
		{"no match", Suggestion{AddressLine1: "Peets", DisplayName: "Peets, CA"}, matchFloor},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, matchScore(tc.s, "starbucks"))
		})
	}
}

func TestDistanceScore_Buckets(t *testing.T) {
	user := &Location{Lat: 37.33, Lng: -121.89}
	cases := []struct {
		meters float64
		want   float64
	}{
		{1_000, distScoreNear},
		{4_999, distScoreNear},
		{5_000, distScoreMid},
		{19_999, distScoreMid},
		{20_000, distScoreFar},
		{49_999, distScoreFar},
		{50_000, distScoreBeyond},
		{500_000, distScoreBeyond},
	}
	for _, tc := range cases {
		s := Suggestion{DistanceMeters: float64Ptr(tc.meters)}
		assert.Equal(t, tc.want, distanceScore(s, user), "distance %.0fm", tc.meters)
	}

	assert.Equal(t, distScoreNoLoc, distanceScore(Suggestion{}, nil), "no user location is neutral")
}

func TestProviderRankScore(t *testing.T) {
	assert.Equal(t, providerRankNeutral, providerRankScore(Suggestion{}), "absent rank is neutral")
	assert.InDelta(t, 0.095, providerRankScore(Suggestion{Rank: float64Ptr(0.95)}), 1e-9)
	assert.Equal(t, 1.0, providerRankScore(Suggestion{Rank: float64Ptr(42)}), "rank clamps at 1")
	assert.Equal(t, 0.0, providerRankScore(Suggestion{Rank: float64Ptr(-3)}), "rank clamps at 0")
}

func TestHaversine(t *testing.T) {
	sj := Location{Lat: 37.3382, Lng: -121.8863}
	sf := Location{Lat: 37.7749, Lng: -122.4194}

	assert.Zero(t, Haversine(sj, sj))
	assert.InDelta(t, Haversine(sj, sf), Haversine(sf, sj), 1e-9, "symmetric")

	// San Jose to San Francisco is about 67 km great-circle.
	d := Haversine(sj, sf)
	assert.InDelta(t, 67_000, d, 2_000)
}

func TestRankWeights_Defaults(t *testing.T) {
	w := RankWeights{}.withDefaults()
	assert.Equal(t, WeightMatch, w.Match)
	assert.Equal(t, WeightDistance, w.Distance)
	assert.Equal(t, WeightProviderRank, w.ProviderRank)

	custom := RankWeights{Match: 0.9, Distance: 0.05, ProviderRank: 0.05}.withDefaults()
	assert.Equal(t, 0.9, custom.Match)
}
