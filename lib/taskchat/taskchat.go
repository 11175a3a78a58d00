// Package taskchat is the personal task manager: tasks owned by a user and
// a running conversation with an assistant that proposes new tasks.
package taskchat

import (
	"errors"
	"log/slog"

	"github.com/medleyhq/medley/lib/assistant"
	"github.com/medleyhq/medley/lib/storage"
	"gorm.io/gorm"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrForbidden    = errors.New("you do not have permission to perform this action")
	ErrEmptyMessage = errors.New("message cannot be empty")
)

type Service struct {
	db     *gorm.DB
	chat   assistant.Chatter
	store  storage.Store
	prompt string
	logger *slog.Logger
}

// New returns the task service. prompt opens every new conversation; store
// may be nil, in which case attachments are sent to the model but only
// their names are kept in the history.
func New(db *gorm.DB, chat assistant.Chatter, store storage.Store, prompt string, logger *slog.Logger) *Service {
	if prompt == "" {
		prompt = assistant.TaskPromptFallback
	}
	return &Service{db: db, chat: chat, store: store, prompt: prompt, logger: logger}
}
