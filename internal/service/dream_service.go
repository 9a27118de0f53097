package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"reverie/internal/cache"
	"reverie/internal/models"
	"reverie/internal/observability"
	"reverie/internal/repository"

	"github.com/redis/go-redis/v9"
)

const statsCacheTTL = 60 * time.Second

// DreamService owns journal entries: CRUD, querying, and the cached
// statistics snapshot.
type DreamService struct {
	dreams   repository.DreamRepository
	analyses repository.AnalysisRepository
	redis    *redis.Client
}

// NewDreamService wires the service. redis may be nil; caching degrades to
// pass-through.
func NewDreamService(dreams repository.DreamRepository, analyses repository.AnalysisRepository, redisClient *redis.Client) *DreamService {
	return &DreamService{dreams: dreams, analyses: analyses, redis: redisClient}
}

// ImageInput is one scene illustration attached on create or update.
type ImageInput struct {
	ImageURL    *string `json:"image_url"`
	Scene       string  `json:"scene"`
	Description string  `json:"description"`
	Prompt      string  `json:"prompt"`
	Error       bool    `json:"error"`
}

// CreateDreamInput is the create payload. Only Text is required; everything
// else defaults.
type CreateDreamInput struct {
	Title         string       `json:"title"`
	Text          string       `json:"text"`
	Date          *time.Time   `json:"date"`
	Story         string       `json:"story"`
	Tone          string       `json:"tone"`
	Length        string       `json:"length"`
	AudioURL      string       `json:"audio_url"`
	AudioDuration float64      `json:"audio_duration"`
	IsPrivate     bool         `json:"is_private"`
	Tags          []string     `json:"tags"`
	Mood          *string      `json:"mood"`
	Lucidity      *int         `json:"lucidity"`
	Images        []ImageInput `json:"images"`
}

// UpdateDreamInput is the partial update payload. Every field distinguishes
// absent from null: absent leaves the column untouched, null clears it where
// the column is clearable.
type UpdateDreamInput struct {
	Title         models.Optional[string]       `json:"title"`
	Text          models.Optional[string]       `json:"text"`
	Date          models.Optional[time.Time]    `json:"date"`
	Story         models.Optional[string]       `json:"story"`
	Tone          models.Optional[string]       `json:"tone"`
	Length        models.Optional[string]       `json:"length"`
	AudioURL      models.Optional[string]       `json:"audio_url"`
	AudioDuration models.Optional[float64]      `json:"audio_duration"`
	IsPrivate     models.Optional[bool]         `json:"is_private"`
	Tags          models.Optional[[]string]     `json:"tags"`
	Mood          models.Optional[string]       `json:"mood"`
	Lucidity      models.Optional[int]          `json:"lucidity"`
	Images        models.Optional[[]ImageInput] `json:"images"`
}

func validLucidity(l *int) error {
	if l != nil && (*l < 1 || *l > 5) {
		return models.NewValidationError("Lucidity must be between 1 and 5")
	}
	return nil
}

func toImageModels(dreamID uint, in []ImageInput) []models.DreamImage {
	images := make([]models.DreamImage, 0, len(in))
	for _, img := range in {
		images = append(images, models.DreamImage{
			DreamID:     dreamID,
			ImageURL:    img.ImageURL,
			Scene:       img.Scene,
			Description: img.Description,
			Prompt:      img.Prompt,
		})
	}
	return images
}

// Create records a new dream for ownerID.
func (s *DreamService) Create(ctx context.Context, ownerID uint, in CreateDreamInput) (*models.Dream, error) {
	if strings.TrimSpace(in.Text) == "" {
		return nil, models.NewValidationError("Dream text is required")
	}
	if err := validLucidity(in.Lucidity); err != nil {
		return nil, err
	}

	date := time.Now().UTC()
	if in.Date != nil {
		date = *in.Date
	}

	dream := &models.Dream{
		UserID:        ownerID,
		Title:         strings.TrimSpace(in.Title),
		Text:          in.Text,
		Date:          date,
		Story:         in.Story,
		Tone:          in.Tone,
		Length:        in.Length,
		AudioURL:      in.AudioURL,
		AudioDuration: in.AudioDuration,
		HasAudio:      in.AudioURL != "",
		IsPrivate:     in.IsPrivate,
		Tags:          normalizeTags(in.Tags),
		Mood:          in.Mood,
		Lucidity:      in.Lucidity,
		Images:        toImageModels(0, in.Images),
	}

	if err := s.dreams.Create(ctx, dream); err != nil {
		return nil, err
	}
	s.invalidateStats(ctx, ownerID)
	return dream, nil
}

// Get returns one dream with its images and analyses, scoped to the owner.
func (s *DreamService) Get(ctx context.Context, ownerID, id uint) (*models.Dream, error) {
	return s.dreams.GetByID(ctx, ownerID, id)
}

// List runs the filtered, sorted, paginated query. Guests (ownerID 0) get an
// empty page rather than an error.
func (s *DreamService) List(ctx context.Context, ownerID uint, filter repository.DreamFilter, sort repository.Sort, page repository.Page) (*repository.DreamPage, error) {
	return s.dreams.List(ctx, ownerID, filter, sort, page)
}

// Update applies a partial update. Absent fields are untouched; null clears
// nullable columns. Clearing the dream text is rejected.
func (s *DreamService) Update(ctx context.Context, ownerID, id uint, in UpdateDreamInput) (*models.Dream, error) {
	fields := map[string]any{}

	if in.Title.Present {
		fields["title"] = strings.TrimSpace(deref(in.Title.Value, ""))
	}
	if in.Text.Present {
		text := deref(in.Text.Value, "")
		if strings.TrimSpace(text) == "" {
			return nil, models.NewValidationError("Dream text cannot be empty")
		}
		fields["text"] = text
	}
	if in.Date.Present {
		if in.Date.Value == nil {
			return nil, models.NewValidationError("Dream date cannot be null")
		}
		fields["date"] = *in.Date.Value
	}
	if in.Story.Present {
		fields["story"] = deref(in.Story.Value, "")
	}
	if in.Tone.Present {
		fields["tone"] = deref(in.Tone.Value, "")
	}
	if in.Length.Present {
		fields["length"] = deref(in.Length.Value, "")
	}
	if in.AudioURL.Present {
		url := deref(in.AudioURL.Value, "")
		fields["audio_url"] = url
		fields["has_audio"] = url != ""
	}
	if in.AudioDuration.Present {
		fields["audio_duration"] = deref(in.AudioDuration.Value, 0)
	}
	if in.IsPrivate.Present {
		fields["is_private"] = deref(in.IsPrivate.Value, false)
	}
	if in.Tags.Present {
		fields["tags"] = normalizeTags(deref(in.Tags.Value, nil))
	}
	if in.Mood.Present {
		// Pointer passthrough: nil clears the mood.
		fields["mood"] = in.Mood.Value
	}
	if in.Lucidity.Present {
		if err := validLucidity(in.Lucidity.Value); err != nil {
			return nil, err
		}
		fields["lucidity"] = in.Lucidity.Value
	}

	if len(fields) > 0 {
		if err := s.dreams.Update(ctx, ownerID, id, fields); err != nil {
			return nil, err
		}
	} else if !in.Images.Present {
		return nil, models.NewValidationError("No fields to update")
	}

	if in.Images.Present {
		// Ownership check before touching images when no column update ran.
		if len(fields) == 0 {
			if _, err := s.dreams.GetByID(ctx, ownerID, id); err != nil {
				return nil, err
			}
		}
		images := toImageModels(id, deref(in.Images.Value, nil))
		if err := s.dreams.ReplaceImages(ctx, id, images); err != nil {
			return nil, err
		}
	}

	s.invalidateStats(ctx, ownerID)
	return s.dreams.GetByID(ctx, ownerID, id)
}

// Delete removes a dream and its dependents.
func (s *DreamService) Delete(ctx context.Context, ownerID, id uint) error {
	if err := s.dreams.Delete(ctx, ownerID, id); err != nil {
		return err
	}
	s.invalidateStats(ctx, ownerID)
	return nil
}

// ToggleFavorite flips the favorite flag and returns the new state.
func (s *DreamService) ToggleFavorite(ctx context.Context, ownerID, id uint) (bool, error) {
	favorite, err := s.dreams.ToggleFavorite(ctx, ownerID, id)
	if err != nil {
		return false, err
	}
	s.invalidateStats(ctx, ownerID)
	return favorite, nil
}

// Analyses lists the stored analysis runs for a dream, newest first.
func (s *DreamService) Analyses(ctx context.Context, ownerID, dreamID uint) ([]models.DreamAnalysis, error) {
	return s.analyses.ListByDream(ctx, ownerID, dreamID)
}

// Stats returns the statistics snapshot, served from Redis when fresh.
func (s *DreamService) Stats(ctx context.Context, ownerID uint) (*models.DreamStats, error) {
	var stats models.DreamStats
	fromCache, err := cache.Aside(ctx, s.redis, statsKey(ownerID), &stats, statsCacheTTL, func() error {
		fresh, err := s.dreams.Stats(ctx, ownerID)
		if err != nil {
			return err
		}
		stats = *fresh
		return nil
	})
	if err != nil {
		// Cache trouble should not take stats down.
		fresh, ferr := s.dreams.Stats(ctx, ownerID)
		if ferr != nil {
			return nil, ferr
		}
		return fresh, nil
	}
	if fromCache {
		observability.StatsCacheHits.WithLabelValues("hit").Inc()
	} else {
		observability.StatsCacheHits.WithLabelValues("miss").Inc()
	}
	return &stats, nil
}

func statsKey(ownerID uint) string {
	return fmt.Sprintf("reverie:stats:user:%d", ownerID)
}

func (s *DreamService) invalidateStats(ctx context.Context, ownerID uint) {
	cache.Invalidate(ctx, s.redis, statsKey(ownerID))
}

// normalizeTags trims, lowercases and dedupes while keeping first-seen order.
func normalizeTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

func deref[T any](p *T, fallback T) T {
	if p == nil {
		return fallback
	}
	return *p
}
