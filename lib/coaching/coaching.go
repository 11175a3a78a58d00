// Package coaching takes bookings for coaching sessions.
package coaching

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/medleyhq/medley/lib/validation"
	"github.com/medleyhq/medley/models"
	"gorm.io/gorm"
)

// LeadTime is how far ahead a session must be booked.
const LeadTime = 24 * time.Hour

var ErrTooSoon = errors.New("scheduled time is less than 24 hours away")

// FormError carries per-field messages keyed by form field name.
type FormError struct {
	Fields map[string]string
}

func (e *FormError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "invalid coaching request: " + strings.Join(parts, "; ")
}

// RequestInput is the booking form as submitted.
type RequestInput struct {
	ScheduledAt    string `form:"scheduled_datetime" validate:"required"`
	Details        string `form:"details"`
	Name           string `form:"name" validate:"required,max=100"`
	Email          string `form:"email" validate:"required,email,max=254"`
	Phone          string `form:"phone" validate:"required,phone"`
	ReferralSource string `form:"referral_source" validate:"required,oneof=instagram linkedin twitter facebook other"`
	PlanID         string `form:"plan" validate:"omitempty,numeric"`
}

// PlanInput describes a new pricing plan.
type PlanInput struct {
	Name        string  `validate:"required,max=100"`
	Description string
	Price       float64 `validate:"gte=0"`
	Sessions    int     `validate:"min=1"`
	Featured    bool
}

type Service struct {
	db     *gorm.DB
	loc    *time.Location
	logger *slog.Logger
	now    func() time.Time
}

// New returns the booking service. Form times are read in loc.
func New(db *gorm.DB, loc *time.Location, logger *slog.Logger) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{db: db, loc: loc, logger: logger, now: time.Now}
}

// Plans lists pricing plans, cheapest first.
func (s *Service) Plans(ctx context.Context) ([]models.PricingPlan, error) {
	var plans []models.PricingPlan
	if err := s.db.WithContext(ctx).Order("price").Order("id").Find(&plans).Error; err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	return plans, nil
}

func (s *Service) CreatePlan(ctx context.Context, in PlanInput) (*models.PricingPlan, error) {
	if err := validation.Struct(in); err != nil {
		return nil, &FormError{Fields: validation.FieldErrors(err)}
	}
	plan := &models.PricingPlan{
		Name:        in.Name,
		Description: in.Description,
		Price:       in.Price,
		Sessions:    in.Sessions,
		Featured:    in.Featured,
	}
	if err := s.db.WithContext(ctx).Create(plan).Error; err != nil {
		return nil, fmt.Errorf("failed to create plan: %w", err)
	}
	return plan, nil
}

// Submit validates and stores a coaching request. Invalid fields come back
// as a *FormError; a time inside the lead window as ErrTooSoon.
func (s *Service) Submit(ctx context.Context, in RequestInput) (*models.CoachingRequest, error) {
	fields := map[string]string{}
	if err := validation.Struct(in); err != nil {
		fields = validation.FieldErrors(err)
	}

	var scheduled time.Time
	if _, bad := fields["scheduled_datetime"]; !bad {
		t, err := validation.ParseDateTime(in.ScheduledAt, s.loc)
		if err != nil {
			fields["scheduled_datetime"] = "Enter a valid date/time."
		}
		scheduled = t
	}

	var planID *uint
	if _, bad := fields["plan"]; !bad && in.PlanID != "" {
		id, err := strconv.ParseUint(in.PlanID, 10, 64)
		if err == nil {
			var n int64
			err = s.db.WithContext(ctx).Model(&models.PricingPlan{}).Where("id = ?", id).Count(&n).Error
			if err != nil {
				return nil, fmt.Errorf("failed to check plan: %w", err)
			}
			if n > 0 {
				pid := uint(id)
				planID = &pid
			}
		}
		if planID == nil {
			fields["plan"] = "Select a valid choice. That choice is not one of the available choices."
		}
	}

	if len(fields) > 0 {
		return nil, &FormError{Fields: fields}
	}
	if err := validation.ValidateLeadTime(scheduled, s.now(), LeadTime); err != nil {
		return nil, ErrTooSoon
	}

	req := &models.CoachingRequest{
		ScheduledAt:    scheduled,
		Details:        in.Details,
		Name:           in.Name,
		Email:          in.Email,
		Phone:          in.Phone,
		ReferralSource: in.ReferralSource,
		PlanID:         planID,
	}
	if err := s.db.WithContext(ctx).Create(req).Error; err != nil {
		return nil, fmt.Errorf("failed to save coaching request: %w", err)
	}
	s.logger.Info("Coaching request submitted",
		slog.Uint64("id", uint64(req.ID)),
		slog.Time("scheduled_at", scheduled))
	return req, nil
}

// Requests lists coaching requests, latest scheduled first.
func (s *Service) Requests(ctx context.Context) ([]models.CoachingRequest, error) {
	var out []models.CoachingRequest
	if err := s.db.WithContext(ctx).Preload("Plan").Order("scheduled_at DESC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list coaching requests: %w", err)
	}
	return out, nil
}
