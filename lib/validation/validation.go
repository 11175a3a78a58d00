package validation

import (
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"time"

	"github.com/goccy/go-json"
)

// dateTimeRegex matches the value an HTML datetime-local input submits.
var dateTimeRegex = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}(:\d{2})?$`)

// ParseDateTime parses a datetime-local form value in loc.
func ParseDateTime(value string, loc *time.Location) (time.Time, error) {
	if !dateTimeRegex.MatchString(value) {
		return time.Time{}, fmt.Errorf("invalid date and time: %q, expected YYYY-MM-DDTHH:MM", value)
	}

	layout := "2006-01-02T15:04"
	if len(value) == len("2006-01-02T15:04:05") {
		layout = "2006-01-02T15:04:05"
	}
	parsed, err := time.ParseInLocation(layout, value, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date and time: %w", err)
	}
	return parsed, nil
}

// ValidateLeadTime checks that t lies strictly more than lead after now.
func ValidateLeadTime(t, now time.Time, lead time.Duration) error {
	if !t.After(now.Add(lead)) {
		return fmt.Errorf("time must be more than %s in the future", lead)
	}
	return nil
}

// ValidatePagination validates pagination parameters to ensure they are within
// acceptable ranges. Returns an error if the parameters are invalid.
func ValidatePagination(page, size int) error {
	if page < 1 {
		return fmt.Errorf("page must be greater than 0")
	}
	if size < 1 || size > 100 {
		return fmt.Errorf("size must be between 1 and 100")
	}
	return nil
}

// WriteJSON writes v as the JSON response body with the given status.
func WriteJSON(w http.ResponseWriter, v any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", slog.Any("error", err))
	}
}

// WriteError writes a validation error response to the HTTP response writer.
// It takes a response writer, error message, and HTTP status code.
func WriteError(w http.ResponseWriter, err error, status int) {
	WriteJSON(w, map[string]string{"error": err.Error()}, status)
}
