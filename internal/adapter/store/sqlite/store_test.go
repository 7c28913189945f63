package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boyiajas/omni247-sub001/internal/adapter/store/sqlite"
	"github.com/boyiajas/omni247-sub001/internal/domain"
	"github.com/boyiajas/omni247-sub001/internal/usecase/policy"
)

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func ptr(v float64) *float64 { return &v }

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seedReport(t *testing.T, store *sqlite.Store) domain.Report {
	t.Helper()
	ctx := context.Background()

	user := domain.User{
		ID:                "user-1",
		CreatedAt:         now.AddDate(-1, 0, 0),
		VerifiedReports:   3,
		RejectedReports:   1,
		ReputationScore:   150,
		AutoVerifyEnabled: true,
		TierOverride:      "basic",
		LevelOverride:     []string{"reputation", "content"},
	}
	require.NoError(t, store.CreateUser(ctx, user))

	report := domain.Report{
		ID:                 "report-1",
		Category:           "flood",
		Title:              "Street flooding",
		Description:        "Water level rising on the main road",
		Latitude:           ptr(52.52),
		Longitude:          ptr(13.405),
		SubmitterLatitude:  ptr(52.521),
		SubmitterLongitude: ptr(13.406),
		SubmitterAccuracyM: ptr(40),
		SubmittedAt:        &now,
		CreatedAt:          now,
		User:               &user,
		Media: []domain.Media{
			{ID: "media-1", Type: domain.MediaTypeImage, CreatedAt: now},
			{ID: "media-2", Type: domain.MediaTypeVideo, CreatedAt: now.Add(time.Hour)},
		},
		Ratings:  []domain.Rating{{ID: "rating-1", Value: 4, CreatedAt: now}},
		Comments: []domain.Comment{{ID: "comment-1", Body: "can confirm", CreatedAt: now}},
	}
	require.NoError(t, store.CreateReport(ctx, report))
	return report
}

func TestStore_GetReport_RoundTrip(t *testing.T) {
	store := newStore(t)
	seedReport(t, store)

	got, err := store.GetReport(context.Background(), "report-1")

	require.NoError(t, err)
	assert.Equal(t, "flood", got.Category)
	assert.Equal(t, "Street flooding", got.Title)
	require.NotNil(t, got.Latitude)
	assert.InDelta(t, 52.52, *got.Latitude, 1e-9)
	require.NotNil(t, got.SubmitterAccuracyM)
	assert.InDelta(t, 40, *got.SubmitterAccuracyM, 1e-9)

	require.NotNil(t, got.User)
	assert.Equal(t, "user-1", got.User.ID)
	assert.True(t, got.User.AutoVerifyEnabled)
	assert.Equal(t, "basic", got.User.TierOverride)
	assert.Equal(t, []string{"reputation", "content"}, got.User.LevelOverride)

	require.Len(t, got.Media, 2)
	assert.Equal(t, domain.MediaTypeVideo, got.Media[1].Type)
	require.Len(t, got.Ratings, 1)
	require.Len(t, got.Comments, 1)
}

func TestStore_GetReport_NotFound(t *testing.T) {
	store := newStore(t)

	_, err := store.GetReport(context.Background(), "no-such-report")

	assert.ErrorIs(t, err, domain.ErrReportNotFound)
}

func TestStore_GetReport_WithoutUser(t *testing.T) {
	store := newStore(t)
	report := domain.Report{ID: "orphan", CreatedAt: now}
	require.NoError(t, store.CreateReport(context.Background(), report))

	got, err := store.GetReport(context.Background(), "orphan")

	require.NoError(t, err)
	assert.Nil(t, got.User)
}

func TestStore_SaveVerification_RoundTrip(t *testing.T) {
	store := newStore(t)
	seedReport(t, store)
	ctx := context.Background()

	started := now
	completed := now.Add(2 * time.Second)
	v := domain.Verification{
		Status:      domain.StatusPending,
		Tier:        "basic",
		Score:       56,
		MaxScore:    80,
		Breakdown:   `{"score":56}`,
		StartedAt:   &started,
		CompletedAt: &completed,
	}
	require.NoError(t, store.SaveVerification(ctx, "report-1", v))

	got, err := store.GetReport(ctx, "report-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, got.Verification.Status)
	assert.Equal(t, "basic", got.Verification.Tier)
	assert.Equal(t, 56, got.Verification.Score)
	assert.Equal(t, 80, got.Verification.MaxScore)
	assert.Equal(t, `{"score":56}`, got.Verification.Breakdown)
	require.NotNil(t, got.Verification.StartedAt)
	assert.Equal(t, started.Unix(), got.Verification.StartedAt.Unix())

	// The unknown report errors instead of silently updating nothing.
	err = store.SaveVerification(ctx, "no-such-report", v)
	assert.ErrorIs(t, err, domain.ErrReportNotFound)
}

func TestStore_CountNearbyReports(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	center := domain.Report{ID: "center", Latitude: ptr(52.52), Longitude: ptr(13.405), CreatedAt: now}
	require.NoError(t, store.CreateReport(ctx, center))

	// ~0.7 km away, recent.
	near := domain.Report{ID: "near", Latitude: ptr(52.5245), Longitude: ptr(13.41), CreatedAt: now.Add(-time.Hour)}
	require.NoError(t, store.CreateReport(ctx, near))

	// Same position but outside the window.
	old := domain.Report{ID: "old", Latitude: ptr(52.5245), Longitude: ptr(13.41), CreatedAt: now.Add(-5 * time.Hour)}
	require.NoError(t, store.CreateReport(ctx, old))

	// ~20 km away.
	far := domain.Report{ID: "far", Latitude: ptr(52.7), Longitude: ptr(13.405), CreatedAt: now}
	require.NoError(t, store.CreateReport(ctx, far))

	// No coordinates.
	blank := domain.Report{ID: "blank", CreatedAt: now}
	require.NoError(t, store.CreateReport(ctx, blank))

	count, err := store.CountNearbyReports(ctx, "center", 52.52, 13.405, 2.0, now.Add(-3*time.Hour))

	require.NoError(t, err)
	assert.Equal(t, 1, count, "only the recent nearby report counts")
}

func TestStore_CountNearbyReportsAcrossAntimeridian(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	center := domain.Report{ID: "center", Latitude: ptr(0.0), Longitude: ptr(179.995), CreatedAt: now}
	require.NoError(t, store.CreateReport(ctx, center))

	// ~1.1 km away, on the other side of the 180° meridian.
	farSide := domain.Report{ID: "far-side", Latitude: ptr(0.0), Longitude: ptr(-179.995), CreatedAt: now.Add(-time.Hour)}
	require.NoError(t, store.CreateReport(ctx, farSide))

	// Same hemisphere flip, but well outside the radius.
	distant := domain.Report{ID: "distant", Latitude: ptr(0.0), Longitude: ptr(-179.5), CreatedAt: now}
	require.NoError(t, store.CreateReport(ctx, distant))

	count, err := store.CountNearbyReports(ctx, "center", 0.0, 179.995, 2.0, now.Add(-3*time.Hour))

	require.NoError(t, err)
	assert.Equal(t, 1, count, "reports straddling the antimeridian still cluster")
}

func TestStore_SettingsRoundTrip(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	_, ok, err := store.Get(ctx, policy.KeySystemEnabled)
	require.NoError(t, err)
	assert.False(t, ok, "missing keys are absent, not errors")

	require.NoError(t, store.SetSetting(ctx, policy.KeySystemEnabled, "false"))
	value, ok, err := store.Get(ctx, policy.KeySystemEnabled)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "false", value)

	// Upsert overwrites.
	require.NoError(t, store.SetSetting(ctx, policy.KeySystemEnabled, "true"))
	value, _, err = store.Get(ctx, policy.KeySystemEnabled)
	require.NoError(t, err)
	assert.Equal(t, "true", value)
}

func TestStore_BacksPolicyResolver(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	require.NoError(t, store.SetSetting(ctx, policy.KeyEnabledLevels, `["reputation","content"]`))

	resolver := policy.NewResolver(store, nil)

	levels := resolver.ResolveUserLevels(ctx, domain.User{}, policy.TierBasic)
	assert.Equal(t, []string{"reputation", "content"}, levels)
}
