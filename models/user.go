package models

import "gorm.io/gorm"

// User is an account shared by the shop, tasks and movie sites.
type User struct {
	gorm.Model
	Username     string `gorm:"size:150;uniqueIndex;not null"`
	Email        string `gorm:"size:254"`
	PasswordHash string `gorm:"not null"`
}
