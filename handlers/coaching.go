package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/medleyhq/medley/lib/coaching"
	"github.com/medleyhq/medley/models"
)

const (
	siteCoach          = "coach"
	coachingRequestURL = "/coach/coaching-request/"
)

type coachIndexData struct {
	Plans []models.PricingPlan
}

func HandleCoachIndex(svc *coaching.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		plans, err := svc.Plans(r.Context())
		if err != nil {
			slog.Error("Failed to list pricing plans", slog.Any("error", err))
			renderError(w, "We couldn't load the coaching plans.", http.StatusInternalServerError)
			return
		}
		render(w, r, "coach_index.html", page{Title: "Coaching", Site: siteCoach, Data: coachIndexData{Plans: plans}})
	}
}

type coachRequestData struct {
	Form   coaching.RequestInput
	Errors map[string]string
	Plans  []models.PricingPlan
	// Referrals lists the accepted referral sources for the select box.
	Referrals []string
}

func HandleCoachingRequest(svc *coaching.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		plans, err := svc.Plans(r.Context())
		if err != nil {
			slog.Error("Failed to list pricing plans", slog.Any("error", err))
			renderError(w, "We couldn't load the booking form.", http.StatusInternalServerError)
			return
		}
		data := coachRequestData{Plans: plans, Referrals: models.ReferralSources}
		if r.Method != http.MethodPost {
			data.Form.PlanID = r.URL.Query().Get("plan")
			render(w, r, "coach_request.html", page{Title: "Book a session", Site: siteCoach, Data: data})
			return
		}

		data.Form = coaching.RequestInput{
			ScheduledAt:    strings.TrimSpace(r.PostFormValue("scheduled_datetime")),
			Details:        strings.TrimSpace(r.PostFormValue("details")),
			Name:           strings.TrimSpace(r.PostFormValue("name")),
			Email:          strings.TrimSpace(r.PostFormValue("email")),
			Phone:          strings.TrimSpace(r.PostFormValue("phone")),
			ReferralSource: r.PostFormValue("referral_source"),
			PlanID:         r.PostFormValue("plan"),
		}

		_, err = svc.Submit(r.Context(), data.Form)
		var formErr *coaching.FormError
		switch {
		case err == nil:
			redirectWithFlash(w, r, coachingRequestURL, flashSuccess, "Your coaching request has been submitted successfully!")
			return
		case errors.As(err, &formErr):
			data.Errors = formErr.Fields
		case errors.Is(err, coaching.ErrTooSoon):
			p := page{Title: "Book a session", Site: siteCoach, Data: data, Flashes: []Flash{{
				Level:   flashError,
				Message: "Please select a date and time at least 24 hours in the future.",
			}}}
			render(w, r, "coach_request.html", p)
			return
		default:
			slog.Error("Failed to submit coaching request", slog.Any("error", err))
			renderError(w, "We couldn't save your request. Please try again.", http.StatusInternalServerError)
			return
		}
		render(w, r, "coach_request.html", page{Title: "Book a session", Site: siteCoach, Data: data})
	}
}
