package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/medleyhq/medley/lib/validation"
	"github.com/medleyhq/medley/lib/videoqa"
	"github.com/medleyhq/medley/models"
)

const siteYTQA = "ytqa"

type analyzeRequest struct {
	Link   string `json:"link" validate:"required"`
	UserID string `json:"user_id"`
}

type askRequest struct {
	Question  string `json:"question" validate:"required"`
	SessionID string `json:"session_id" validate:"required"`
}

type ytqaIndexData struct {
	Error string
}

type videoListData struct {
	UserID string
	Videos []models.Video
}

type videoDetailData struct {
	UserID string
	Video  *models.Video
}

func HandleYTQAIndex() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		render(w, r, "ytqa_index.html", page{Title: "YouTube Q&A", Site: siteYTQA, Data: ytqaIndexData{}})
	}
}

func HandleAnalyzeVideo(svc *videoqa.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeJSONError(w, "Invalid request method", http.StatusMethodNotAllowed)
			return
		}

		var req analyzeRequest
		if err := decodeJSON(r, &req); err != nil {
			writeJSONError(w, "Invalid data sent", http.StatusBadRequest)
			return
		}
		req.Link = strings.TrimSpace(req.Link)
		if err := validation.Struct(req); err != nil {
			writeJSONError(w, "Invalid data sent", http.StatusBadRequest)
			return
		}

		analysis, err := svc.Analyze(r.Context(), req.Link, req.UserID)
		if err != nil {
			if errors.Is(err, videoqa.ErrNoTranscript) {
				writeJSONError(w, "Failed to get transcript", http.StatusInternalServerError)
				return
			}
			slog.Error("Failed to analyze video", slog.String("link", req.Link), slog.Any("error", err))
			writeJSONError(w, "Failed to analyze video", http.StatusInternalServerError)
			return
		}
		validation.WriteJSON(w, analysis, http.StatusOK)
	}
}

func HandleAskQuestion(svc *videoqa.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeJSONError(w, "Invalid request method", http.StatusMethodNotAllowed)
			return
		}

		var req askRequest
		if err := decodeJSON(r, &req); err != nil {
			writeJSONError(w, "Invalid data sent", http.StatusBadRequest)
			return
		}
		if err := validation.Struct(req); err != nil {
			writeJSONError(w, "Invalid data sent", http.StatusBadRequest)
			return
		}

		answer, err := svc.Ask(r.Context(), req.SessionID, req.Question)
		if err != nil {
			if errors.Is(err, videoqa.ErrSessionNotFound) {
				writeJSONError(w, "Session not found", http.StatusNotFound)
				return
			}
			slog.Error("Failed to answer question", slog.String("session_id", req.SessionID), slog.Any("error", err))
			writeJSONError(w, "Failed to answer question", http.StatusInternalServerError)
			return
		}
		validation.WriteJSON(w, map[string]string{"answer": answer}, http.StatusOK)
	}
}

func HandleVideoList(svc *videoqa.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("user_id")
		if userID == "" {
			render(w, r, "ytqa_index.html", page{Title: "YouTube Q&A", Site: siteYTQA, Data: ytqaIndexData{Error: "User ID is required."}})
			return
		}

		videos, err := svc.Videos(r.Context(), userID)
		if err != nil {
			slog.Error("Failed to list videos", slog.Any("error", err))
			renderError(w, "We couldn't load your videos.", http.StatusInternalServerError)
			return
		}
		render(w, r, "ytqa_videos.html", page{Title: "Your videos", Site: siteYTQA, Data: videoListData{UserID: userID, Videos: videos}})
	}
}

func HandleVideoDetails(svc *videoqa.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("user_id")
		if userID == "" {
			render(w, r, "ytqa_index.html", page{Title: "YouTube Q&A", Site: siteYTQA, Data: ytqaIndexData{Error: "User ID is required."}})
			return
		}

		video, err := svc.Video(r.Context(), chi.URLParam(r, "id"), userID)
		if err != nil {
			if errors.Is(err, videoqa.ErrVideoNotFound) {
				renderError(w, "We couldn't find that video.", http.StatusNotFound)
				return
			}
			slog.Error("Failed to load video", slog.Any("error", err))
			renderError(w, "We couldn't load that video.", http.StatusInternalServerError)
			return
		}
		render(w, r, "ytqa_video.html", page{Title: video.Title, Site: siteYTQA, Data: videoDetailData{UserID: userID, Video: video}})
	}
}
