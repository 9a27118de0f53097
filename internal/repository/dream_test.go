package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"reverie/internal/database"
	"reverie/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	return db
}

func seedUser(t *testing.T, db *gorm.DB, subject string) *models.User {
	t.Helper()
	user := &models.User{Subject: subject, Email: subject + "@example.com", Name: "Tester"}
	require.NoError(t, db.Create(user).Error)
	return user
}

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

func TestDreamCreateAndGetScopedToOwner(t *testing.T) {
	db := openTestDB(t)
	repo := NewDreamRepository(db)
	ctx := context.Background()

	owner := seedUser(t, db, "owner")
	stranger := seedUser(t, db, "stranger")

	dream := &models.Dream{
		UserID: owner.ID,
		Title:  "The Bridge",
		Text:   "I crossed a glass bridge.",
		Tags:   []string{"bridge", "heights"},
	}
	require.NoError(t, repo.Create(ctx, dream))
	require.NotZero(t, dream.ID)

	got, err := repo.GetByID(ctx, owner.ID, dream.ID)
	require.NoError(t, err)
	assert.Equal(t, "The Bridge", got.Title)
	assert.Equal(t, []string{"bridge", "heights"}, got.Tags)

	// Someone else's lookup is indistinguishable from a missing row.
	_, err = repo.GetByID(ctx, stranger.ID, dream.ID)
	var appErr *models.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, models.CodeNotFound, appErr.Code)
}

func seedDreams(t *testing.T, repo DreamRepository, userID uint) {
	t.Helper()
	ctx := context.Background()
	dreams := []*models.Dream{
		{UserID: userID, Title: "Ocean Flight", Text: "Flying over the ocean at dawn.",
			Date: time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC),
			Tags: []string{"flying", "ocean"}, Mood: strPtr("peaceful"), IsFavorite: true, Lucidity: intPtr(4)},
		{UserID: userID, Title: "Empty School", Text: "Wandering an empty school.",
			Date: time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC),
			Tags: []string{"school"}, Mood: strPtr("anxious")},
		{UserID: userID, Title: "Glass City", Text: "A city made of glass and light.",
			Date: time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC),
			Tags: []string{"city", "flying"}, Mood: strPtr("peaceful"), Lucidity: intPtr(2)},
		{UserID: userID, Title: "The Storm", Text: "A storm over the ocean, story untold.",
			Date: time.Date(2026, 4, 20, 0, 0, 0, 0, time.UTC),
			Tags: []string{"ocean", "storm"}, IsFavorite: true},
	}
	for _, d := range dreams {
		require.NoError(t, repo.Create(ctx, d))
	}
}

func TestDreamListFilters(t *testing.T) {
	db := openTestDB(t)
	repo := NewDreamRepository(db)
	ctx := context.Background()
	owner := seedUser(t, db, "owner")
	seedDreams(t, repo, owner.ID)

	page := Page{Number: 1, Size: 20}

	t.Run("search is case-insensitive over text", func(t *testing.T) {
		result, err := repo.List(ctx, owner.ID, DreamFilter{Search: "OCEAN"}, Sort{}, page)
		require.NoError(t, err)
		assert.EqualValues(t, 2, result.Total)
	})

	t.Run("tag membership admits any requested tag", func(t *testing.T) {
		result, err := repo.List(ctx, owner.ID, DreamFilter{Tags: []string{"school", "storm"}}, Sort{}, page)
		require.NoError(t, err)
		assert.EqualValues(t, 2, result.Total)
	})

	t.Run("mood filter is exact", func(t *testing.T) {
		result, err := repo.List(ctx, owner.ID, DreamFilter{Mood: "peaceful"}, Sort{}, page)
		require.NoError(t, err)
		assert.EqualValues(t, 2, result.Total)
	})

	t.Run("favorites only", func(t *testing.T) {
		result, err := repo.List(ctx, owner.ID, DreamFilter{FavoritesOnly: true}, Sort{}, page)
		require.NoError(t, err)
		assert.EqualValues(t, 2, result.Total)
	})

	t.Run("date range is inclusive", func(t *testing.T) {
		from := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
		to := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
		result, err := repo.List(ctx, owner.ID, DreamFilter{From: &from, To: &to}, Sort{}, page)
		require.NoError(t, err)
		assert.EqualValues(t, 2, result.Total)
	})

	t.Run("filters combine conjunctively", func(t *testing.T) {
		result, err := repo.List(ctx, owner.ID, DreamFilter{
			Tags:          []string{"ocean"},
			FavoritesOnly: true,
			Mood:          "peaceful",
		}, Sort{}, page)
		require.NoError(t, err)
		assert.EqualValues(t, 1, result.Total)
		require.Len(t, result.Items, 1)
		assert.Equal(t, "Ocean Flight", result.Items[0].Title)
	})
}

func TestDreamListPagination(t *testing.T) {
	db := openTestDB(t)
	repo := NewDreamRepository(db)
	ctx := context.Background()
	owner := seedUser(t, db, "owner")
	seedDreams(t, repo, owner.ID)

	first, err := repo.List(ctx, owner.ID, DreamFilter{}, Sort{Field: "date", Direction: "asc"}, Page{Number: 1, Size: 3})
	require.NoError(t, err)
	assert.EqualValues(t, 4, first.Total)
	assert.Len(t, first.Items, 3)
	assert.True(t, first.HasMore)
	assert.Equal(t, "Ocean Flight", first.Items[0].Title)

	second, err := repo.List(ctx, owner.ID, DreamFilter{}, Sort{Field: "date", Direction: "asc"}, Page{Number: 2, Size: 3})
	require.NoError(t, err)
	assert.Len(t, second.Items, 1)
	assert.False(t, second.HasMore)
	assert.Equal(t, "The Storm", second.Items[0].Title)
}

func TestDreamListUnknownSortFallsBack(t *testing.T) {
	db := openTestDB(t)
	repo := NewDreamRepository(db)
	ctx := context.Background()
	owner := seedUser(t, db, "owner")
	seedDreams(t, repo, owner.ID)

	// An unvetted sort field must not reach SQL; the query still succeeds
	// with the default ordering.
	result, err := repo.List(ctx, owner.ID, DreamFilter{},
		Sort{Field: "tags); DROP TABLE dreams;--", Direction: "sideways"}, Page{Number: 1, Size: 10})
	require.NoError(t, err)
	assert.Len(t, result.Items, 4)
}

func TestDreamListGuestGetsEmptyPage(t *testing.T) {
	db := openTestDB(t)
	repo := NewDreamRepository(db)

	result, err := repo.List(context.Background(), 0, DreamFilter{}, Sort{}, Page{Number: 1, Size: 10})
	require.NoError(t, err)
	assert.Empty(t, result.Items)
	assert.Zero(t, result.Total)
	assert.False(t, result.HasMore)
}

func TestDreamUpdateScopedAndPartial(t *testing.T) {
	db := openTestDB(t)
	repo := NewDreamRepository(db)
	ctx := context.Background()
	owner := seedUser(t, db, "owner")
	stranger := seedUser(t, db, "stranger")

	dream := &models.Dream{UserID: owner.ID, Text: "original", Mood: strPtr("peaceful")}
	require.NoError(t, repo.Create(ctx, dream))

	err := repo.Update(ctx, owner.ID, dream.ID, map[string]any{
		"title": "Renamed",
		"mood":  (*string)(nil),
	})
	require.NoError(t, err)

	got, err := repo.GetByID(ctx, owner.ID, dream.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Title)
	assert.Nil(t, got.Mood)
	assert.Equal(t, "original", got.Text, "unmentioned column untouched")

	// The same update from another owner is a miss.
	err = repo.Update(ctx, stranger.ID, dream.ID, map[string]any{"title": "Stolen"})
	var appErr *models.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, models.CodeNotFound, appErr.Code)
}

func TestReplaceImagesSwapsWholesale(t *testing.T) {
	db := openTestDB(t)
	repo := NewDreamRepository(db)
	ctx := context.Background()
	owner := seedUser(t, db, "owner")

	url1 := "https://img.example/old"
	dream := &models.Dream{
		UserID: owner.ID,
		Text:   "with images",
		Images: []models.DreamImage{
			{ImageURL: &url1, Scene: models.SceneBeginning},
			{ImageURL: &url1, Scene: models.SceneMiddle},
		},
	}
	require.NoError(t, repo.Create(ctx, dream))

	url2 := "https://img.example/new"
	err := repo.ReplaceImages(ctx, dream.ID, []models.DreamImage{
		{ImageURL: &url2, Scene: models.SceneBeginning},
		{ImageURL: nil, Scene: models.SceneMiddle},
		{ImageURL: &url2, Scene: models.SceneEnd},
	})
	require.NoError(t, err)

	got, err := repo.GetByID(ctx, owner.ID, dream.ID)
	require.NoError(t, err)
	require.Len(t, got.Images, 3)
	assert.Equal(t, models.SceneBeginning, got.Images[0].Scene)
	assert.Nil(t, got.Images[1].ImageURL)
}

func TestDreamDeleteCascadesAndScopes(t *testing.T) {
	db := openTestDB(t)
	repo := NewDreamRepository(db)
	ctx := context.Background()
	owner := seedUser(t, db, "owner")

	dream := &models.Dream{UserID: owner.ID, Text: "to delete"}
	require.NoError(t, repo.Create(ctx, dream))

	require.NoError(t, repo.Delete(ctx, owner.ID, dream.ID))

	_, err := repo.GetByID(ctx, owner.ID, dream.ID)
	var appErr *models.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, models.CodeNotFound, appErr.Code)

	err = repo.Delete(ctx, owner.ID, dream.ID)
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, models.CodeNotFound, appErr.Code)
}

func TestToggleFavoriteFlips(t *testing.T) {
	db := openTestDB(t)
	repo := NewDreamRepository(db)
	ctx := context.Background()
	owner := seedUser(t, db, "owner")

	dream := &models.Dream{UserID: owner.ID, Text: "favorite me"}
	require.NoError(t, repo.Create(ctx, dream))

	favorite, err := repo.ToggleFavorite(ctx, owner.ID, dream.ID)
	require.NoError(t, err)
	assert.True(t, favorite)

	favorite, err = repo.ToggleFavorite(ctx, owner.ID, dream.ID)
	require.NoError(t, err)
	assert.False(t, favorite)

	_, err = repo.ToggleFavorite(ctx, owner.ID+1, dream.ID)
	var appErr *models.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, models.CodeNotFound, appErr.Code)
}

func TestStatsSnapshot(t *testing.T) {
	db := openTestDB(t)
	repo := NewDreamRepository(db)
	ctx := context.Background()
	owner := seedUser(t, db, "owner")
	other := seedUser(t, db, "other")
	seedDreams(t, repo, owner.ID)

	// Another user's dream must not leak into the snapshot.
	require.NoError(t, repo.Create(ctx, &models.Dream{UserID: other.ID, Text: "foreign", Lucidity: intPtr(5)}))

	stats, err := repo.Stats(ctx, owner.ID)
	require.NoError(t, err)

	assert.EqualValues(t, 4, stats.TotalDreams)
	assert.EqualValues(t, 2, stats.FavoriteDreams)
	assert.EqualValues(t, 4, stats.DreamsThisMonth, "seeded rows are created now")

	assert.Equal(t, map[string]int64{"peaceful": 2, "anxious": 1}, stats.MoodDistribution)

	require.NotNil(t, stats.AverageLucidity)
	assert.InDelta(t, 3.0, *stats.AverageLucidity, 0.001)

	// ocean and flying tie at 2; alphabetical tiebreak puts flying first.
	require.GreaterOrEqual(t, len(stats.MostCommonTags), 2)
	assert.Equal(t, models.TagCount{Tag: "flying", Count: 2}, stats.MostCommonTags[0])
	assert.Equal(t, models.TagCount{Tag: "ocean", Count: 2}, stats.MostCommonTags[1])
}

func TestStatsEmptyUser(t *testing.T) {
	db := openTestDB(t)
	repo := NewDreamRepository(db)

	stats, err := repo.Stats(context.Background(), 999)
	require.NoError(t, err)

	assert.Zero(t, stats.TotalDreams)
	assert.Nil(t, stats.AverageLucidity, "unrated corpus has no average")
	assert.Empty(t, stats.MostCommonTags)
	assert.Empty(t, stats.MoodDistribution)
}
