package awards

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/awebisam/chemezy/internal/storage"
)

func TestDecodeCriteria(t *testing.T) {
	tests := []struct {
		name    string
		spec    storage.CriteriaSpec
		stats   storage.UserStats
		evt     *Event
		want    float64
		wantErr bool
	}{
		{
			name:  "discovery count reads discoveries",
			spec:  storage.CriteriaSpec{Kind: KindDiscoveryCount},
			stats: storage.UserStats{Discoveries: 7},
			want:  7,
		},
		{
			name:  "unique effects reads effect variety",
			spec:  storage.CriteriaSpec{Kind: KindUniqueEffects},
			stats: storage.UserStats{UniqueEffects: 4},
			want:  4,
		},
		{
			name:  "debug submissions reads contributions",
			spec:  storage.CriteriaSpec{Kind: KindDebugSubmissions},
			stats: storage.UserStats{Contributions: 12},
			want:  12,
		},
		{
			name:  "consecutive days reads streak",
			spec:  storage.CriteriaSpec{Kind: KindConsecutiveDays},
			stats: storage.UserStats{ConsecutiveDays: 30},
			want:  30,
		},
		{
			name: "reaction complexity reads the triggering event",
			spec: storage.CriteriaSpec{Kind: KindReactionComplexity},
			evt:  &Event{Complexity: 8.5},
			want: 8.5,
		},
		{
			name: "reaction complexity without an event reads zero",
			spec: storage.CriteriaSpec{Kind: KindReactionComplexity},
			want: 0,
		},
		{
			name:    "unknown kind is quarantined",
			spec:    storage.CriteriaSpec{Kind: "karma"},
			stats:   storage.UserStats{Discoveries: 100},
			want:    -1,
			wantErr: true,
		},
		{
			name:    "negative min_submissions is quarantined",
			spec:    storage.CriteriaSpec{Kind: KindCorrectionAccuracy, MinSubmissions: -1},
			stats:   storage.UserStats{Contributions: 10, AcceptedContributions: 10},
			want:    -1,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := decodeCriteria(tt.spec)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			require.NotNil(t, c)
			assert.Equal(t, tt.want, c.measure(&tt.stats, tt.evt))
		})
	}
}

func TestCorrectionAccuracy_MinSubmissions(t *testing.T) {
	c, err := decodeCriteria(storage.CriteriaSpec{Kind: KindCorrectionAccuracy, MinSubmissions: 5})
	require.NoError(t, err)

	// Below the sample floor the metric reads zero regardless of accuracy.
	stats := &storage.UserStats{Contributions: 4, AcceptedContributions: 4}
	assert.Equal(t, float64(0), c.measure(stats, nil))

	stats = &storage.UserStats{Contributions: 10, AcceptedContributions: 9}
	assert.Equal(t, float64(90), c.measure(stats, nil))

	stats = &storage.UserStats{}
	assert.Equal(t, float64(0), c.measure(stats, nil))
}

func TestHighestTier(t *testing.T) {
	tiers := []storage.TierSpec{
		{Threshold: 1, Name: "Bronze"},
		{Threshold: 10, Name: "Silver"},
		{Threshold: 50, Name: "Gold"},
	}

	tests := []struct {
		current float64
		want    int
	}{
		{0, 0},
		{1, 1},
		{9, 1},
		{10, 2},
		{49, 2},
		{50, 3},
		{500, 3},
		{-1, 0}, // quarantined criteria can never place
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, highestTier(tiers, tt.current), "current=%v", tt.current)
	}

	assert.Equal(t, 0, highestTier(nil, 100))
}

func TestNextThreshold(t *testing.T) {
	tiers := []storage.TierSpec{
		{Threshold: 1, Name: "Bronze"},
		{Threshold: 10, Name: "Silver"},
	}

	next, ok := nextThreshold(tiers, 0)
	require.True(t, ok)
	assert.Equal(t, float64(1), next)

	next, ok = nextThreshold(tiers, 3)
	require.True(t, ok)
	assert.Equal(t, float64(10), next)

	_, ok = nextThreshold(tiers, 10)
	assert.False(t, ok)
}
