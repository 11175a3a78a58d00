package taskchat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/medleyhq/medley/lib/assistant"
	"github.com/medleyhq/medley/lib/validation"
	"github.com/medleyhq/medley/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Upload is a file attached to a chat message.
type Upload struct {
	Name        string
	ContentType string
	Data        []byte
}

// Reply is the assistant's answer and the tasks it proposed.
type Reply struct {
	Parts          string                      `json:"parts"`
	SuggestedTasks []validation.TaskSuggestion `json:"suggested_tasks"`
}

// HistoryPatch replaces the non-nil conversation lists.
type HistoryPatch struct {
	FullHistory *[]models.Turn `json:"full_history"`
	CurrentChat *[]models.Turn `json:"current_chat"`
}

// Histories lists the user's chat histories.
func (s *Service) Histories(ctx context.Context, userID uint) ([]models.ChatHistory, error) {
	var out []models.ChatHistory
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("id").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list chat histories: %w", err)
	}
	return out, nil
}

func historyFor(tx *gorm.DB, userID uint) (*models.ChatHistory, error) {
	var h models.ChatHistory
	if err := tx.Where(models.ChatHistory{UserID: userID}).FirstOrCreate(&h).Error; err != nil {
		return nil, fmt.Errorf("failed to load chat history: %w", err)
	}
	return &h, nil
}

// opening returns the current chat, starting it with the task prompt when
// it is empty.
func (s *Service) opening(current []models.Turn) []models.Turn {
	if len(current) > 0 {
		return current
	}
	return []models.Turn{{Role: models.RoleUser, Parts: []string{s.prompt}}}
}

// Send posts content, and optionally a file, to the user's current chat
// and records both sides of the exchange.
func (s *Service) Send(ctx context.Context, userID uint, content string, file *Upload) (*Reply, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyMessage
	}

	h, err := historyFor(s.db.WithContext(ctx), userID)
	if err != nil {
		return nil, err
	}
	history := s.opening(h.CurrentChat)

	userTurn := models.Turn{Role: models.RoleUser, Parts: []string{content}}
	var files []assistant.Attachment
	if file != nil {
		ref := file.Name
		if s.store != nil {
			uri, err := s.store.Put(ctx, fmt.Sprintf("chat/%d", userID), file.Name, file.ContentType, file.Data)
			if err != nil {
				return nil, fmt.Errorf("failed to store attachment: %w", err)
			}
			ref = uri
		}
		files = append(files, assistant.Attachment{Name: file.Name, MIMEType: file.ContentType, Data: file.Data})
		userTurn.Parts = []string{ref, content}
	}

	text, err := s.chat.Chat(ctx, assistant.Tasks, history, []string{content}, files...)
	if err != nil {
		return nil, fmt.Errorf("failed to get chat response: %w", err)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current models.ChatHistory
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&current, h.ID).Error; err != nil {
			return err
		}
		chat := append(s.opening(current.CurrentChat), userTurn, models.Turn{Role: models.RoleModel, Parts: []string{text}})
		return tx.Model(&current).Update("current_chat", datatypes.JSONSlice[models.Turn](chat)).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save chat: %w", err)
	}

	suggested := validation.ExtractTaskSuggestions(text)
	if suggested == nil {
		suggested = []validation.TaskSuggestion{}
	}
	s.logger.Debug("Task chat reply",
		slog.Uint64("user_id", uint64(userID)),
		slog.Int("suggested_tasks", len(suggested)))
	return &Reply{Parts: text, SuggestedTasks: suggested}, nil
}

// Clear archives the current chat at the end of the full history.
func (s *Service) Clear(ctx context.Context, userID uint) (*models.ChatHistory, error) {
	var h *models.ChatHistory
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if h, err = historyFor(tx, userID); err != nil {
			return err
		}
		h.FullHistory = append(h.FullHistory, h.CurrentChat...)
		h.CurrentChat = datatypes.JSONSlice[models.Turn]{}
		return tx.Model(h).Select("full_history", "current_chat").Updates(h).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to clear chat: %w", err)
	}
	return h, nil
}

func findHistory(tx *gorm.DB, userID, id uint) (*models.ChatHistory, error) {
	var h models.ChatHistory
	err := tx.Where("id = ? AND user_id = ?", id, userID).First(&h).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load chat history: %w", err)
	}
	return &h, nil
}

// UpdateHistory replaces parts of one of the user's chat histories.
func (s *Service) UpdateHistory(ctx context.Context, userID, id uint, patch HistoryPatch) (*models.ChatHistory, error) {
	var h *models.ChatHistory
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if h, err = findHistory(tx, userID, id); err != nil {
			return err
		}
		if patch.FullHistory != nil {
			h.FullHistory = *patch.FullHistory
		}
		if patch.CurrentChat != nil {
			h.CurrentChat = *patch.CurrentChat
		}
		return tx.Model(h).Select("full_history", "current_chat").Updates(h).Error
	})
	if err != nil {
		return nil, err
	}
	return h, nil
}

// DeleteHistory removes one of the user's chat histories for good.
func (s *Service) DeleteHistory(ctx context.Context, userID, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		h, err := findHistory(tx, userID, id)
		if err != nil {
			return err
		}
		return tx.Unscoped().Delete(h).Error
	})
}
