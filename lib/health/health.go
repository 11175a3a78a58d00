package health

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"gorm.io/gorm"
)

// Pinger is an optional dependency checked alongside the database.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Component is the status of one checked dependency.
type Component struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// Health is the health check response.
type Health struct {
	Status     string               `json:"status"`
	Timestamp  time.Time            `json:"timestamp"`
	DB         Component            `json:"db"`
	Components map[string]Component `json:"components,omitempty"`
}

// Check returns a handler that pings the database and every named dependency.
// Any failure degrades the response to 503.
func Check(db *gorm.DB, deps map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := Health{
			Status:    "ok",
			Timestamp: time.Now(),
			DB:        Component{Status: "ok"},
		}
		status := http.StatusOK

		sqlDB, err := db.DB()
		if err != nil {
			health.DB = Component{Status: "error", Message: "Failed to get database connection"}
		} else if err := sqlDB.PingContext(ctx); err != nil {
			health.DB = Component{Status: "error", Message: "Database ping failed"}
		}
		if health.DB.Status != "ok" {
			health.Status = "degraded"
			status = http.StatusServiceUnavailable
		}

		if len(deps) > 0 {
			health.Components = make(map[string]Component, len(deps))
			for name, dep := range deps {
				if err := dep.Ping(ctx); err != nil {
					slog.Warn("Health check failed", slog.String("component", name), slog.Any("error", err))
					health.Components[name] = Component{Status: "error", Message: "ping failed"}
					health.Status = "degraded"
					status = http.StatusServiceUnavailable
					continue
				}
				health.Components[name] = Component{Status: "ok"}
			}
		}

		writeHealth(w, health, status)
	}
}

func writeHealth(w http.ResponseWriter, health Health, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(health); err != nil {
		slog.Error("Failed to encode health response", slog.Any("error", err))
	}
}
