package models

import (
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Task struct {
	gorm.Model
	Title        string `gorm:"size:200;not null"`
	Description  string
	IsCompleted  bool
	UserID       uint `gorm:"index;not null"`
	ParentTaskID *uint
	Subtasks     []Task `gorm:"foreignKey:ParentTaskID;constraint:OnDelete:CASCADE"`
}

// ChatHistory keeps the running conversation with the task assistant and
// everything archived before the last clear.
type ChatHistory struct {
	gorm.Model
	UserID      uint `gorm:"uniqueIndex;not null"`
	FullHistory datatypes.JSONSlice[Turn]
	CurrentChat datatypes.JSONSlice[Turn]
}

func (h *ChatHistory) BeforeSave(tx *gorm.DB) error {
	if h.FullHistory == nil {
		h.FullHistory = datatypes.JSONSlice[Turn]{}
	}
	if h.CurrentChat == nil {
		h.CurrentChat = datatypes.JSONSlice[Turn]{}
	}
	return nil
}
