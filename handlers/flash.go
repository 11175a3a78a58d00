package handlers

import (
	"encoding/base64"
	"log/slog"
	"net/http"

	"github.com/goccy/go-json"
)

const flashCookie = "medley_flash"

// Flash levels, matching the alert styles of the templates.
const (
	flashSuccess = "success"
	flashInfo    = "info"
	flashWarning = "warning"
	flashError   = "error"
)

// Flash is a one-shot message shown on the next rendered page.
type Flash struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

func readFlashes(r *http.Request) []Flash {
	cookie, err := r.Cookie(flashCookie)
	if err != nil || cookie.Value == "" {
		return nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(cookie.Value)
	if err != nil {
		return nil
	}
	var flashes []Flash
	if err := json.Unmarshal(raw, &flashes); err != nil {
		slog.Debug("Dropping malformed flash cookie", slog.Any("error", err))
		return nil
	}
	return flashes
}

// addFlash queues a message for the next page the visitor sees.
func addFlash(w http.ResponseWriter, r *http.Request, level, message string) {
	flashes := append(readFlashes(r), Flash{Level: level, Message: message})
	raw, err := json.Marshal(flashes)
	if err != nil {
		slog.Error("Failed to encode flash", slog.Any("error", err))
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookie,
		Value:    base64.RawURLEncoding.EncodeToString(raw),
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// popFlashes returns the queued messages and clears them.
func popFlashes(w http.ResponseWriter, r *http.Request) []Flash {
	flashes := readFlashes(r)
	if flashes == nil {
		return nil
	}
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
	return flashes
}

// redirectWithFlash queues a message and sends the visitor to url.
func redirectWithFlash(w http.ResponseWriter, r *http.Request, url, level, message string) {
	addFlash(w, r, level, message)
	http.Redirect(w, r, url, http.StatusFound)
}
