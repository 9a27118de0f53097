package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"reverie/internal/models"

	"gorm.io/gorm"
)

// DreamFilter holds the optional, AND-combined predicates of a dream query.
type DreamFilter struct {
	// Search matches the dream body, story or title, case-insensitive.
	Search string
	// Tags admits dreams carrying at least one of the given tags.
	Tags []string
	// From/To bound the dream's occurrence date, inclusive.
	From *time.Time
	To   *time.Time
	// Mood filters on exact mood value.
	Mood          string
	FavoritesOnly bool
}

// Sort selects the result ordering. Unknown fields and directions fall back
// to created_at descending rather than erroring.
type Sort struct {
	Field     string
	Direction string
}

// Page is a 1-indexed page request.
type Page struct {
	Number int
	Size   int
}

// DreamPage is one materialized result page with query-wide metadata.
type DreamPage struct {
	Items   []*models.Dream `json:"items"`
	Total   int64           `json:"total"`
	HasMore bool            `json:"hasMore"`
}

// DreamRepository defines the interface for dream data operations.
type DreamRepository interface {
	Create(ctx context.Context, dream *models.Dream) error
	GetByID(ctx context.Context, ownerID, id uint) (*models.Dream, error)
	List(ctx context.Context, ownerID uint, filter DreamFilter, s Sort, page Page) (*DreamPage, error)
	Update(ctx context.Context, ownerID, id uint, fields map[string]any) error
	ReplaceImages(ctx context.Context, dreamID uint, images []models.DreamImage) error
	Delete(ctx context.Context, ownerID, id uint) error
	ToggleFavorite(ctx context.Context, ownerID, id uint) (bool, error)
	Stats(ctx context.Context, ownerID uint) (*models.DreamStats, error)
}

type dreamRepository struct {
	db *gorm.DB
}

// NewDreamRepository creates a new dream repository
func NewDreamRepository(db *gorm.DB) DreamRepository {
	return &dreamRepository{db: db}
}

// sortColumns is the allow-list of sortable fields. Caller-supplied names
// outside this set fall back to the default rather than reaching the SQL
// layer.
var sortColumns = map[string]string{
	"created_at": "created_at",
	"updated_at": "updated_at",
	"date":       "date",
	"title":      "title",
	"mood":       "mood",
	"lucidity":   "lucidity",
}

func orderClause(s Sort) string {
	column, ok := sortColumns[s.Field]
	if !ok {
		column = "created_at"
	}
	direction := "DESC"
	if strings.EqualFold(s.Direction, "asc") {
		direction = "ASC"
	}
	return column + " " + direction
}

func (r *dreamRepository) Create(ctx context.Context, dream *models.Dream) error {
	if dream.Date.IsZero() {
		dream.Date = time.Now()
	}
	if err := r.db.WithContext(ctx).Create(dream).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *dreamRepository) GetByID(ctx context.Context, ownerID, id uint) (*models.Dream, error) {
	var dream models.Dream
	err := r.db.WithContext(ctx).
		Preload("Images", func(db *gorm.DB) *gorm.DB { return db.Order("dream_images.id ASC") }).
		Preload("Analyses", func(db *gorm.DB) *gorm.DB { return db.Order("dream_analyses.created_at ASC") }).
		Where("user_id = ?", ownerID).
		First(&dream, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Dream", id)
		}
		return nil, models.NewInternalError(err)
	}
	return &dream, nil
}

// filtered returns a fresh query with all filter predicates applied. A fresh
// build per use keeps the count and page queries independent.
func (r *dreamRepository) filtered(ctx context.Context, ownerID uint, filter DreamFilter) *gorm.DB {
	q := r.db.WithContext(ctx).Model(&models.Dream{}).Where("user_id = ?", ownerID)

	if search := strings.TrimSpace(filter.Search); search != "" {
		pattern := "%" + strings.ToLower(search) + "%"
		q = q.Where("LOWER(text) LIKE ? OR LOWER(story) LIKE ? OR LOWER(title) LIKE ?", pattern, pattern, pattern)
	}

	if len(filter.Tags) > 0 {
		// Tags are stored as a JSON array; membership of any requested tag
		// is a quoted-substring match on the serialized column.
		conditions := make([]string, 0, len(filter.Tags))
		args := make([]any, 0, len(filter.Tags))
		for _, tag := range filter.Tags {
			conditions = append(conditions, "LOWER(tags) LIKE ?")
			args = append(args, fmt.Sprintf("%%%q%%", strings.ToLower(tag)))
		}
		q = q.Where(strings.Join(conditions, " OR "), args...)
	}

	if filter.From != nil {
		q = q.Where("date >= ?", *filter.From)
	}
	if filter.To != nil {
		q = q.Where("date <= ?", *filter.To)
	}
	if filter.Mood != "" {
		q = q.Where("mood = ?", filter.Mood)
	}
	if filter.FavoritesOnly {
		q = q.Where("is_favorite = ?", true)
	}

	return q
}

// List materializes one page plus the independent total count and has-more
// flag. ownerID 0 (no resolved owner) short-circuits to an empty page.
func (r *dreamRepository) List(ctx context.Context, ownerID uint, filter DreamFilter, s Sort, page Page) (*DreamPage, error) {
	if ownerID == 0 {
		return &DreamPage{Items: []*models.Dream{}}, nil
	}

	if page.Number < 1 {
		page.Number = 1
	}
	if page.Size < 1 {
		page.Size = 20
	}
	offset := (page.Number - 1) * page.Size

	var total int64
	if err := r.filtered(ctx, ownerID, filter).Count(&total).Error; err != nil {
		return nil, models.NewInternalError(err)
	}

	var items []*models.Dream
	err := r.filtered(ctx, ownerID, filter).
		Preload("Images", func(db *gorm.DB) *gorm.DB { return db.Order("dream_images.id ASC") }).
		Order(orderClause(s)).
		Limit(page.Size).
		Offset(offset).
		Find(&items).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}

	return &DreamPage{
		Items:   items,
		Total:   total,
		HasMore: int64(offset+page.Size) < total,
	}, nil
}

// Update applies a prepared column map to the owner's dream. Absent patch
// fields never reach this map, so untouched columns stay untouched.
func (r *dreamRepository) Update(ctx context.Context, ownerID, id uint, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	result := r.db.WithContext(ctx).
		Model(&models.Dream{}).
		Where("id = ? AND user_id = ?", id, ownerID).
		Updates(fields)
	if result.Error != nil {
		return models.NewInternalError(result.Error)
	}
	if result.RowsAffected == 0 {
		return models.NewNotFoundError("Dream", id)
	}
	return nil
}

// ReplaceImages swaps a dream's image set wholesale: the old rows are deleted
// and the new set inserted in one transaction.
func (r *dreamRepository) ReplaceImages(ctx context.Context, dreamID uint, images []models.DreamImage) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("dream_id = ?", dreamID).Delete(&models.DreamImage{}).Error; err != nil {
			return err
		}
		for i := range images {
			images[i].ID = 0
			images[i].DreamID = dreamID
		}
		if len(images) == 0 {
			return nil
		}
		return tx.Create(&images).Error
	})
	if err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *dreamRepository) Delete(ctx context.Context, ownerID, id uint) error {
	result := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, ownerID).
		Delete(&models.Dream{})
	if result.Error != nil {
		return models.NewInternalError(result.Error)
	}
	if result.RowsAffected == 0 {
		return models.NewNotFoundError("Dream", id)
	}
	return nil
}

// ToggleFavorite flips the favorite flag and returns the new value.
func (r *dreamRepository) ToggleFavorite(ctx context.Context, ownerID, id uint) (bool, error) {
	var favorite bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var dream models.Dream
		if err := tx.Select("id", "is_favorite").Where("user_id = ?", ownerID).First(&dream, id).Error; err != nil {
			return err
		}
		favorite = !dream.IsFavorite
		return tx.Model(&models.Dream{}).Where("id = ?", id).Update("is_favorite", favorite).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, models.NewNotFoundError("Dream", id)
		}
		return false, models.NewInternalError(err)
	}
	return favorite, nil
}

// Stats computes the per-user statistics snapshot in one read pass.
func (r *dreamRepository) Stats(ctx context.Context, ownerID uint) (*models.DreamStats, error) {
	stats := &models.DreamStats{
		MostCommonTags:   []models.TagCount{},
		MoodDistribution: map[string]int64{},
	}

	base := func() *gorm.DB {
		return r.db.WithContext(ctx).Model(&models.Dream{}).Where("user_id = ?", ownerID)
	}

	if err := base().Count(&stats.TotalDreams).Error; err != nil {
		return nil, models.NewInternalError(err)
	}

	now := time.Now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	if err := base().Where("created_at >= ?", monthStart).Count(&stats.DreamsThisMonth).Error; err != nil {
		return nil, models.NewInternalError(err)
	}

	if err := base().Where("is_favorite = ?", true).Count(&stats.FavoriteDreams).Error; err != nil {
		return nil, models.NewInternalError(err)
	}

	var moodRows []struct {
		Mood  string
		Count int64
	}
	err := base().
		Select("mood, COUNT(*) AS count").
		Where("mood IS NOT NULL").
		Group("mood").
		Scan(&moodRows).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	for _, row := range moodRows {
		stats.MoodDistribution[row.Mood] = row.Count
	}

	var avg sql.NullFloat64
	row := base().
		Select("AVG(lucidity)").
		Where("lucidity IS NOT NULL").
		Row()
	if err := row.Scan(&avg); err != nil {
		return nil, models.NewInternalError(err)
	}
	if avg.Valid {
		stats.AverageLucidity = &avg.Float64
	}

	topTags, err := r.topTags(ctx, ownerID, 10)
	if err != nil {
		return nil, err
	}
	stats.MostCommonTags = topTags

	return stats, nil
}

// topTags counts tag frequency across the owner's dreams in memory; the tag
// sets are small and JSON-serialized, so the database cannot aggregate them
// portably.
func (r *dreamRepository) topTags(ctx context.Context, ownerID uint, limit int) ([]models.TagCount, error) {
	var dreams []models.Dream
	err := r.db.WithContext(ctx).
		Model(&models.Dream{}).
		Select("id", "tags").
		Where("user_id = ?", ownerID).
		Find(&dreams).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}

	counts := map[string]int64{}
	for _, dream := range dreams {
		for _, tag := range dream.Tags {
			counts[tag]++
		}
	}

	tags := make([]models.TagCount, 0, len(counts))
	for tag, count := range counts {
		tags = append(tags, models.TagCount{Tag: tag, Count: count})
	}
	// Count descending, tag ascending for a deterministic tiebreak.
	sort.Slice(tags, func(i, j int) bool {
		if tags[i].Count != tags[j].Count {
			return tags[i].Count > tags[j].Count
		}
		return tags[i].Tag < tags[j].Tag
	})
	if len(tags) > limit {
		tags = tags[:limit]
	}
	return tags, nil
}
