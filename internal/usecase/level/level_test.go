package level_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boyiajas/omni247-sub001/internal/domain"
	"github.com/boyiajas/omni247-sub001/internal/usecase/level"
)

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func ptr(v float64) *float64 { return &v }

func baseUser() domain.User {
	return domain.User{
		ID:        "user-1",
		CreatedAt: now.AddDate(-2, 0, 0),
	}
}

func TestRegistry_CoversAllKeys(t *testing.T) {
	registry := level.Registry()

	keys := []string{
		level.KeyReputation, level.KeyLocation, level.KeyMedia,
		level.KeyTemporal, level.KeyContent, level.KeyCommunity,
		level.KeyExternal,
	}
	require.Len(t, registry, len(keys))
	for _, key := range keys {
		impl, ok := registry[key]
		require.True(t, ok, "missing level %s", key)
		assert.Equal(t, key, impl.Key())
		assert.NotEmpty(t, impl.Label())
		assert.GreaterOrEqual(t, impl.MaxScore(), 0)
	}
}

func TestAllLevels_ScoreWithinRange(t *testing.T) {
	// Even on an empty report every level must return a clipped result
	// instead of an error.
	report := domain.Report{ID: "r-1", CreatedAt: now}
	user := domain.User{ID: "u-1", CreatedAt: now}

	for key, impl := range level.Registry() {
		result := impl.Run(report, user, level.Env{Now: now})
		assert.GreaterOrEqual(t, result.Score, 0, key)
		assert.LessOrEqual(t, result.Score, result.MaxScore, key)
		assert.Equal(t, key, result.Key)
	}
}

func TestReputation_WorkedExample(t *testing.T) {
	// Account age 400 days, 3 verified, 1 rejected, reputation 150:
	// 10 + min(10,6) - min(10,2) + 4 = 18.
	user := domain.User{
		ID:              "user-1",
		CreatedAt:       now.AddDate(0, 0, -400),
		VerifiedReports: 3,
		RejectedReports: 1,
		ReputationScore: 150,
	}

	result := level.Reputation{}.Run(domain.Report{CreatedAt: now}, user, level.Env{Now: now})

	assert.Equal(t, 18, result.Score)
	assert.Equal(t, 30, result.MaxScore)
	assert.Equal(t, 400, result.Signals["account_age_days"])
}

func TestReputation_NeverNegative(t *testing.T) {
	user := domain.User{
		ID:              "user-1",
		CreatedAt:       now.AddDate(0, 0, -1),
		RejectedReports: 20,
	}

	result := level.Reputation{}.Run(domain.Report{CreatedAt: now}, user, level.Env{Now: now})

	assert.Equal(t, 0, result.Score)
}

func TestLocation_DistanceBands(t *testing.T) {
	// Longitude offsets at the equator, chosen just inside each band.
	degPerKm := 1.0 / 111.194926
	tests := []struct {
		name string
		km   float64
		want int
	}{
		{name: "within 0.5km", km: 0.4, want: 20},
		{name: "within 2km", km: 1.8, want: 15},
		{name: "within 5km", km: 4.5, want: 10},
		{name: "within 10km", km: 9.5, want: 5},
		{name: "beyond 10km", km: 12, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := domain.Report{
				Latitude:           ptr(0),
				Longitude:          ptr(0),
				SubmitterLatitude:  ptr(0),
				SubmitterLongitude: ptr(tt.km * degPerKm),
				CreatedAt:          now,
			}
			result := level.Location{}.Run(report, baseUser(), level.Env{Now: now})
			assert.Equal(t, tt.want, result.Score)
		})
	}
}

func TestLocation_AccuracyBonus(t *testing.T) {
	report := domain.Report{
		Latitude:           ptr(52.52),
		Longitude:          ptr(13.405),
		SubmitterLatitude:  ptr(52.52),
		SubmitterLongitude: ptr(13.405),
		CreatedAt:          now,
	}

	// Distance 0 scores 20 already; the +2 accuracy bonus clips at max.
	report.SubmitterAccuracyM = ptr(30)
	result := level.Location{}.Run(report, baseUser(), level.Env{Now: now})
	assert.Equal(t, 20, result.Score)

	// Low accuracy leaves a note and no bonus.
	report.SubmitterAccuracyM = ptr(250)
	result = level.Location{}.Run(report, baseUser(), level.Env{Now: now})
	assert.Equal(t, 20, result.Score)
	assert.True(t, containsSubstring(result.Notes, "low accuracy"))
}

func TestLocation_MissingCoordinates(t *testing.T) {
	report := domain.Report{
		Latitude:  ptr(52.52),
		Longitude: ptr(13.405),
		CreatedAt: now,
	}

	result := level.Location{}.Run(report, baseUser(), level.Env{Now: now})

	assert.Equal(t, 0, result.Score)
	assert.True(t, containsSubstring(result.Notes, "submitter coordinates"))
}

func TestMedia_Scoring(t *testing.T) {
	tests := []struct {
		name  string
		media []domain.Media
		want  int
	}{
		{name: "none", media: nil, want: 0},
		{
			name:  "single image",
			media: []domain.Media{{Type: domain.MediaTypeImage, CreatedAt: now.Add(48 * time.Hour)}},
			want:  10,
		},
		{
			name: "two fresh images",
			media: []domain.Media{
				{Type: domain.MediaTypeImage, CreatedAt: now.Add(time.Hour)},
				{Type: domain.MediaTypeImage, CreatedAt: now.Add(2 * time.Hour)},
			},
			want: 17,
		},
		{
			name: "two items with fresh video",
			media: []domain.Media{
				{Type: domain.MediaTypeImage, CreatedAt: now.Add(time.Hour)},
				{Type: domain.MediaTypeVideo, CreatedAt: now.Add(time.Hour)},
			},
			want: 20,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := domain.Report{CreatedAt: now, Media: tt.media}
			result := level.Media{}.Run(report, baseUser(), level.Env{Now: now})
			assert.Equal(t, tt.want, result.Score)
		})
	}
}

func TestTemporal_UsesPrecomputedNearbyCount(t *testing.T) {
	report := domain.Report{
		Latitude:  ptr(52.52),
		Longitude: ptr(13.405),
		CreatedAt: now,
	}

	result := level.Temporal{}.Run(report, baseUser(), level.Env{Now: now, NearbyReports: 2, NearbyKnown: true})
	assert.Equal(t, 7, result.Score)

	// Without coordinates the count cannot exist.
	result = level.Temporal{}.Run(domain.Report{CreatedAt: now}, baseUser(), level.Env{Now: now, NearbyKnown: false})
	assert.Equal(t, 0, result.Score)
	assert.True(t, containsSubstring(result.Notes, "coordinates missing"))
}

func TestTemporal_CountUnavailableWithValidCoordinates(t *testing.T) {
	report := domain.Report{
		Latitude:  ptr(52.52),
		Longitude: ptr(13.405),
		CreatedAt: now,
	}

	// Valid coordinates but no count available: the note must name the
	// missing count, not the coordinates.
	result := level.Temporal{}.Run(report, baseUser(), level.Env{Now: now, NearbyKnown: false})
	assert.Equal(t, 0, result.Score)
	assert.True(t, containsSubstring(result.Notes, "count unavailable"))
	assert.False(t, containsSubstring(result.Notes, "coordinates missing"))
}

func TestContent_WorkedExample(t *testing.T) {
	// Title length 14 and description length 130 score the full 10.
	report := domain.Report{
		Title:       strings.Repeat("t", 14),
		Description: strings.Repeat("d", 130),
		CreatedAt:   now,
	}

	result := level.Content{}.Run(report, baseUser(), level.Env{Now: now})

	assert.Equal(t, 10, result.Score)
	assert.Equal(t, 10, result.MaxScore)
}

func TestCommunity_Scoring(t *testing.T) {
	report := domain.Report{
		CreatedAt: now,
		Comments:  []domain.Comment{{}, {}, {}},
		Ratings:   []domain.Rating{{Value: 4}},
	}

	result := level.Community{}.Run(report, baseUser(), level.Env{Now: now})

	assert.Equal(t, 8, result.Score)
	assert.Equal(t, 10, result.MaxScore)
}

func TestExternalSignals_ZeroContribution(t *testing.T) {
	env := level.Env{
		Now: now,
		Services: map[string]domain.ServiceConfig{
			"weather": {Key: "weather", Provider: "openweather", Enabled: true, HasCredential: true},
			"news":    {Key: "news", Provider: "newsapi", Enabled: true, HasCredential: false},
			"social":  {Key: "social", Provider: "none", Enabled: false},
		},
	}

	result := level.ExternalSignals{}.Run(domain.Report{CreatedAt: now}, baseUser(), env)

	assert.Equal(t, 0, result.Score)
	assert.Equal(t, 0, result.MaxScore)
	assert.Equal(t, "configured", result.Signals["weather"])
	assert.NotContains(t, result.Signals, "news")
	assert.True(t, containsSubstring(result.Notes, "no credential"))
	assert.True(t, containsSubstring(result.Notes, "disabled"))
}

func containsSubstring(notes []string, substr string) bool {
	for _, note := range notes {
		if strings.Contains(note, substr) {
			return true
		}
	}
	return false
}
