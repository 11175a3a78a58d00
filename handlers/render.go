package handlers

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/medleyhq/medley/lib/auth"
	"github.com/medleyhq/medley/lib/movies"
	"github.com/medleyhq/medley/lib/shop"
	"github.com/medleyhq/medley/lib/validation"
)

//go:embed templates/*.html
var templateFS embed.FS

// maxBodyBytes caps JSON request bodies. Multipart uploads are capped
// separately.
const maxBodyBytes = 1 << 20

var errEmptyBody = errors.New("empty request body")

var funcMap = template.FuncMap{
	"add": func(a, b int) int {
		return a + b
	},
	"subtract": func(a, b int) int {
		return a - b
	},
	"seq": func(n int) []int {
		return make([]int, max(n, 0))
	},
	"stars":     movies.Stars,
	"lineTotal": shop.LineTotal,
	"lineFinal": shop.LineFinal,
	"money": func(v float64) string {
		return fmt.Sprintf("$%.2f", v)
	},
	"date": func(t time.Time) string {
		return t.Format("Jan 2, 2006")
	},
	"datePtr": func(t *time.Time) string {
		if t == nil {
			return ""
		}
		return t.Format("Jan 2, 2006")
	},
	"year": func(t *time.Time) string {
		if t == nil {
			return ""
		}
		return t.Format("2006")
	},
	"alertClass": func(level string) string {
		if level == flashError {
			return "danger"
		}
		return level
	},
}

// parseTemplates parses the named templates. The first file is the one
// executed.
func parseTemplates(files ...string) (*template.Template, error) {
	return template.New(path.Base(files[0])).Funcs(funcMap).ParseFS(templateFS, files...)
}

// page is the data every full page receives.
type page struct {
	Title   string
	Site    string
	User    *auth.Claims
	Flashes []Flash
	Data    any
}

type errorData struct {
	Message string
}

func renderError(w http.ResponseWriter, message string, status int) {
	tmpl, err := parseTemplates("templates/base.html", "templates/error.html")
	if err != nil {
		slog.Error("Failed to parse error template", slog.Any("error", err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := tmpl.Execute(w, page{Title: "Error", Data: errorData{Message: message}}); err != nil {
		slog.Error("Failed to execute error template", slog.Any("error", err))
	}
}

// render writes the named page inside the base layout, along with the
// visitor's pending flash messages.
func render(w http.ResponseWriter, r *http.Request, name string, p page) {
	renderStatus(w, r, http.StatusOK, name, p)
}

func renderStatus(w http.ResponseWriter, r *http.Request, status int, name string, p page) {
	tmpl, err := parseTemplates("templates/base.html", "templates/partials.html", "templates/"+name)
	if err != nil {
		slog.Error("Failed to parse template", slog.String("template", name), slog.Any("error", err))
		renderError(w, "Something went wrong while loading the page.", http.StatusInternalServerError)
		return
	}

	if p.User == nil {
		p.User, _ = auth.FromContext(r.Context())
	}
	p.Flashes = append(popFlashes(w, r), p.Flashes...)

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, p); err != nil {
		slog.Error("Failed to execute template", slog.String("template", name), slog.Any("error", err))
		renderError(w, "Something went wrong while displaying the page.", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := buf.WriteTo(w); err != nil {
		slog.Debug("Failed to write response", slog.Any("error", err))
	}
}

// renderFragment executes a named template block on its own, for HTML
// returned inside JSON responses.
func renderFragment(file, name string, data any) (string, error) {
	tmpl, err := parseTemplates("templates/" + file)
	if err != nil {
		return "", fmt.Errorf("failed to parse fragment: %w", err)
	}
	var buf strings.Builder
	if err := tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("failed to execute fragment: %w", err)
	}
	return buf.String(), nil
}

// decodeJSON reads a JSON request body into v.
func decodeJSON(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("failed to read body: %w", err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return errEmptyBody
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

func writeJSONError(w http.ResponseWriter, message string, status int) {
	validation.WriteJSON(w, map[string]string{"error": message}, status)
}

func currentUserID(r *http.Request) uint {
	if claims, ok := auth.FromContext(r.Context()); ok {
		return claims.UserID()
	}
	return 0
}

// safeNext returns next when it is a local path, else fallback.
func safeNext(next, fallback string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return fallback
	}
	return next
}
