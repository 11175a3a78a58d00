package models

import (
	"time"

	"gorm.io/gorm"
)

var ReferralSources = []string{"instagram", "linkedin", "twitter", "facebook", "other"}

type PricingPlan struct {
	gorm.Model
	Name        string  `gorm:"size:100;uniqueIndex;not null"`
	Description string
	Price       float64 `gorm:"not null"`
	Sessions    int     `gorm:"not null"`
	Featured    bool
}

type CoachingRequest struct {
	gorm.Model
	ScheduledAt    time.Time `gorm:"index;not null"`
	Details        string
	Name           string `gorm:"size:100;not null"`
	Email          string `gorm:"size:254;not null"`
	Phone          string `gorm:"size:17"`
	ReferralSource string `gorm:"size:20"`
	PlanID         *uint
	Plan           *PricingPlan `gorm:"constraint:OnDelete:SET NULL"`
}
