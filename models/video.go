package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const DefaultVideoTitle = "Untitled Video"

type Video struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey"`
	UserID    string         `gorm:"size:64;uniqueIndex:idx_videos_user_link,priority:1"`
	Link      string         `gorm:"size:500;not null;uniqueIndex:idx_videos_user_link,priority:2"`
	Title     string         `gorm:"size:255"`
	CreatedAt time.Time      `gorm:"index"`
	Sessions  []VideoSession `gorm:"constraint:OnDelete:CASCADE"`
}

func (v *Video) BeforeCreate(tx *gorm.DB) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	return nil
}

// VideoSession holds one transcript and the conversation about it.
type VideoSession struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	VideoID     uuid.UUID `gorm:"type:uuid;index;not null"`
	Video       Video
	Transcript  string
	Summary     string
	ChatHistory datatypes.JSONSlice[Turn]
	CreatedAt   time.Time
}

func (s *VideoSession) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.ChatHistory == nil {
		s.ChatHistory = datatypes.JSONSlice[Turn]{}
	}
	return nil
}
