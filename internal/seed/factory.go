// Package seed creates demo data for development databases. Not used by the
// server itself.
package seed

import (
	"fmt"
	"math/rand"
	"time"

	"reverie/internal/models"

	"github.com/brianvoe/gofakeit/v6"
	"gorm.io/gorm"
)

var (
	tagPool  = []string{"flying", "water", "family", "school", "animals", "chase", "falling", "house", "childhood", "ocean", "forest", "city", "strangers", "teeth"}
	moodPool = []string{"peaceful", "anxious", "joyful", "confused", "melancholy", "excited"}
	tonePool = []string{"whimsical", "mystical", "adventurous", "gentle", "mysterious", "comedy"}
)

// Factory builds domain entities and persists them to the database.
type Factory struct {
	db  *gorm.DB
	rng *rand.Rand
}

// NewFactory creates a Factory bound to the provided Gorm DB.
func NewFactory(db *gorm.DB) *Factory {
	gofakeit.Seed(time.Now().UnixNano())
	return &Factory{db: db, rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// CreateUser persists a fake user.
func (f *Factory) CreateUser() (*models.User, error) {
	user := &models.User{
		Subject: "seed|" + gofakeit.UUID(),
		Email:   gofakeit.Email(),
		Name:    gofakeit.Name(),
	}
	if err := f.db.Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// CreateDream persists a fake dream for the user, with a realistic spread of
// dates, tags, moods and ratings. Roughly a third carry a generated story
// with images.
func (f *Factory) CreateDream(user *models.User) (*models.Dream, error) {
	daysBack := f.rng.Intn(180)
	dream := &models.Dream{
		UserID:     user.ID,
		Title:      gofakeit.Sentence(4),
		Text:       gofakeit.Paragraph(1, 4, 10, " "),
		Date:       time.Now().AddDate(0, 0, -daysBack),
		IsPrivate:  f.rng.Intn(4) == 0,
		IsFavorite: f.rng.Intn(5) == 0,
		Tags:       f.pickTags(),
	}

	if f.rng.Intn(2) == 0 {
		mood := moodPool[f.rng.Intn(len(moodPool))]
		dream.Mood = &mood
	}
	if f.rng.Intn(3) != 0 {
		lucidity := 1 + f.rng.Intn(5)
		dream.Lucidity = &lucidity
	}

	if f.rng.Intn(3) == 0 {
		dream.Story = gofakeit.Paragraph(3, 5, 12, "\n\n")
		dream.Tone = tonePool[f.rng.Intn(len(tonePool))]
		dream.Length = "medium"
		for _, scene := range []string{models.SceneBeginning, models.SceneMiddle, models.SceneEnd} {
			url := fmt.Sprintf("https://picsum.photos/seed/%s/1024/1024", gofakeit.UUID())
			dream.Images = append(dream.Images, models.DreamImage{
				ImageURL:    &url,
				Scene:       scene,
				Description: gofakeit.Sentence(6),
				Prompt:      gofakeit.Sentence(12),
			})
		}
	}

	if err := f.db.Create(dream).Error; err != nil {
		return nil, err
	}
	return dream, nil
}

func (f *Factory) pickTags() []string {
	n := f.rng.Intn(4)
	tags := make([]string, 0, n)
	seen := map[string]bool{}
	for len(tags) < n {
		t := tagPool[f.rng.Intn(len(tagPool))]
		if !seen[t] {
			seen[t] = true
			tags = append(tags, t)
		}
	}
	return tags
}

// ClearAll truncates the seeded tables, dependents first.
func ClearAll(db *gorm.DB) error {
	for _, model := range []any{
		&models.DreamAnalysis{},
		&models.DreamImage{},
		&models.Dream{},
		&models.User{},
	} {
		if err := db.Unscoped().Where("1 = 1").Delete(model).Error; err != nil {
			return err
		}
	}
	return nil
}
