package models

import (
	"time"

	"gorm.io/gorm"
)

// Scene labels for generated dream illustrations. The set is fixed and ordered.
const (
	SceneBeginning = "Scene 1"
	SceneMiddle    = "Scene 2"
	SceneEnd       = "Scene 3"
)

// Dream is a single journal entry owned by exactly one user.
type Dream struct {
	ID     uint   `gorm:"primaryKey" json:"id"`
	UserID uint   `gorm:"not null;index" json:"user_id"`
	User   User   `gorm:"foreignKey:UserID" json:"-"`
	Title  string `json:"title"`
	Text   string `gorm:"not null" json:"text"`
	// Date is when the dream occurred, not when it was recorded.
	Date  time.Time `gorm:"not null" json:"date"`
	Story string    `json:"story"`
	// Tone and Length record the selectors used at story generation time.
	Tone          string   `json:"tone"`
	Length        string   `json:"length"`
	HasAudio      bool     `json:"has_audio"`
	AudioURL      string   `json:"audio_url"`
	AudioDuration float64  `json:"audio_duration"`
	IsPrivate     bool     `json:"is_private"`
	IsFavorite    bool     `json:"is_favorite"`
	Tags          []string `gorm:"serializer:json" json:"tags"`
	Mood          *string  `json:"mood"`
	// Lucidity is a 1-5 self rating, nil when not rated.
	Lucidity  *int            `gorm:"check:lucidity >= 1 AND lucidity <= 5" json:"lucidity"`
	Images    []DreamImage    `gorm:"foreignKey:DreamID;constraint:OnDelete:CASCADE" json:"images,omitempty"`
	Analyses  []DreamAnalysis `gorm:"foreignKey:DreamID;constraint:OnDelete:CASCADE" json:"analyses,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	DeletedAt gorm.DeletedAt  `gorm:"index" json:"-"`
}

// DreamImage is one generated scene illustration. Images for a dream are
// replaced wholesale on update; there is no partial image editing.
type DreamImage struct {
	ID      uint  `gorm:"primaryKey" json:"id"`
	DreamID uint  `gorm:"not null;index" json:"dream_id"`
	Dream   Dream `gorm:"foreignKey:DreamID" json:"-"`
	// ImageURL is nil when generation of this scene failed.
	ImageURL    *string   `json:"image_url"`
	Scene       string    `gorm:"not null" json:"scene"`
	Description string    `json:"description"`
	Prompt      string    `json:"prompt"`
	CreatedAt   time.Time `json:"created_at"`
}

// DreamAnalysis is one analysis run over a dream. Append-only: a dream
// accumulates one row per run, never updated in place. UserID is denormalized
// for query convenience.
type DreamAnalysis struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	DreamID   uint           `gorm:"not null;index" json:"dream_id"`
	Dream     Dream          `gorm:"foreignKey:DreamID" json:"-"`
	UserID    uint           `gorm:"not null;index" json:"user_id"`
	Analysis  string         `gorm:"not null" json:"analysis"`
	Symbols   map[string]string `gorm:"serializer:json" json:"symbols"`
	Themes    []string       `gorm:"serializer:json" json:"themes"`
	Emotions  []string       `gorm:"serializer:json" json:"emotions"`
	CreatedAt time.Time      `json:"created_at"`
}

// TagCount is a tag with its frequency across a user's dreams.
type TagCount struct {
	Tag   string `json:"tag"`
	Count int64  `json:"count"`
}

// DreamStats is the per-user statistics snapshot.
type DreamStats struct {
	TotalDreams      int64            `json:"totalDreams"`
	DreamsThisMonth  int64            `json:"dreamsThisMonth"`
	FavoriteDreams   int64            `json:"favoriteDreams"`
	MostCommonTags   []TagCount       `json:"mostCommonTags"`
	MoodDistribution map[string]int64 `json:"moodDistribution"`
	// AverageLucidity is nil when no dream carries a lucidity rating.
	AverageLucidity *float64 `json:"averageLucidity"`
}
